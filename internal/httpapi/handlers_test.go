package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/watchdog/internal/config"
	"github.com/hamed0406/watchdog/internal/domain"
	"github.com/hamed0406/watchdog/internal/escalation"
	apimw "github.com/hamed0406/watchdog/internal/httpapi/middleware"
	"github.com/hamed0406/watchdog/internal/scheduler"
	"github.com/hamed0406/watchdog/internal/uptime"
)

// ---- test helpers ----

type fakeEngine struct {
	services  map[string]scheduler.ServiceView
	history   []domain.CheckResult
	lastLimit int
	acked     []string
	reloadErr error
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{services: map[string]scheduler.ServiceView{
		"api": {ServiceState: domain.ServiceState{Name: "api", Status: domain.StatusHealthy}, Type: domain.TypeHTTP, Enabled: true},
		"db": {
			ServiceState: domain.ServiceState{Name: "db", Status: domain.StatusCritical, ConsecutiveFailures: 4},
			Type:         domain.TypeDatabase,
			Escalation:   &escalation.State{Service: "db", Level: 1, Active: true},
		},
	}}
}

func (f *fakeEngine) Services() []scheduler.ServiceView {
	return []scheduler.ServiceView{f.services["api"], f.services["db"]}
}

func (f *fakeEngine) Service(name string) (scheduler.ServiceView, bool) {
	v, ok := f.services[name]
	return v, ok
}

func (f *fakeEngine) History(_ context.Context, name string, limit int) ([]domain.CheckResult, error) {
	f.lastLimit = limit
	return f.history, nil
}

func (f *fakeEngine) Uptime(name string, now time.Time) []uptime.Summary {
	return []uptime.Summary{{Period: domain.PeriodDay, UptimePercent: 99.5, TotalChecks: 200}}
}

func (f *fakeEngine) Escalations() []escalation.State {
	return []escalation.State{*f.services["db"].Escalation}
}

func (f *fakeEngine) Acknowledge(service string) error {
	if f.services[service].Escalation == nil {
		return escalation.ErrNoEscalation
	}
	f.acked = append(f.acked, service)
	return nil
}

func (f *fakeEngine) Reload() (*config.Snapshot, error) {
	if f.reloadErr != nil {
		return nil, f.reloadErr
	}
	return &config.Snapshot{Version: 7, Catalog: &config.Catalog{Services: make([]domain.ServiceDefinition, 2)}}, nil
}

func (f *fakeEngine) Counts() map[domain.Status]int {
	return map[domain.Status]int{domain.StatusHealthy: 1, domain.StatusCritical: 1}
}

func setupServer(t *testing.T, eng Engine) *httptest.Server {
	t.Helper()
	srv := NewServer(zap.NewNop(), eng)
	keys := apimw.Keys{
		Public: []string{"pub_test"},
		Admin:  []string{"adm_test"},
	}
	// very high rate limits to avoid flakiness in tests
	ts := httptest.NewServer(srv.Router(Options{
		Keys:        keys,
		PublicRPM:   10_000,
		PublicBurst: 10_000,
		AdminRPM:    10_000,
		AdminBurst:  10_000,
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("watchdog_services 2\n"))
		}),
	}))
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, method, url, key string) *http.Response {
	t.Helper()
	req, _ := http.NewRequest(method, url, nil)
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

// ---- tests ----

func TestListAndGetServices(t *testing.T) {
	ts := setupServer(t, newFakeEngine())

	resp := do(t, http.MethodGet, ts.URL+"/api/services", "pub_test")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("want 200 list, got %d", resp.StatusCode)
	}
	var list []struct {
		Name                string `json:"name"`
		Status              string `json:"status"`
		Type                string `json:"type"`
		ConsecutiveFailures int    `json:"consecutive_failures"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list) != 2 || list[1].Name != "db" || list[1].Status != "critical" || list[1].ConsecutiveFailures != 4 {
		t.Fatalf("unexpected list: %+v", list)
	}

	resp = do(t, http.MethodGet, ts.URL+"/api/services/api", "pub_test")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("want 200 get, got %d", resp.StatusCode)
	}
	resp = do(t, http.MethodGet, ts.URL+"/api/services/nope", "pub_test")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("want 404 for unknown service, got %d", resp.StatusCode)
	}
}

func TestReadRoutesNeedKey(t *testing.T) {
	ts := setupServer(t, newFakeEngine())
	for _, path := range []string{"/api/services", "/api/escalations", "/api/summary", "/api/services/api/uptime"} {
		if resp := do(t, http.MethodGet, ts.URL+path, ""); resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("%s without key: want 401, got %d", path, resp.StatusCode)
		}
	}
	if resp := do(t, http.MethodGet, ts.URL+"/healthz", ""); resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz must be open, got %d", resp.StatusCode)
	}
	if resp := do(t, http.MethodGet, ts.URL+"/metrics", ""); resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics must be open, got %d", resp.StatusCode)
	}
}

func TestHistoryLimit(t *testing.T) {
	eng := newFakeEngine()
	eng.history = []domain.CheckResult{{Service: "api", Outcome: domain.OutcomeHealthy}}
	ts := setupServer(t, eng)

	resp := do(t, http.MethodGet, ts.URL+"/api/services/api/history?limit=5", "pub_test")
	if resp.StatusCode != http.StatusOK || eng.lastLimit != 5 {
		t.Fatalf("want 200 and limit 5, got %d / %d", resp.StatusCode, eng.lastLimit)
	}
	var hist []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&hist); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(hist) != 1 || hist[0]["outcome"] != "healthy" {
		t.Fatalf("unexpected history: %+v", hist)
	}

	do(t, http.MethodGet, ts.URL+"/api/services/api/history?limit=100000", "pub_test")
	if eng.lastLimit != maxHistoryLimit {
		t.Fatalf("limit should be capped, got %d", eng.lastLimit)
	}
	if resp := do(t, http.MethodGet, ts.URL+"/api/services/api/history?limit=x", "pub_test"); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("want 400 for bad limit, got %d", resp.StatusCode)
	}
}

func TestUptimeAndSummary(t *testing.T) {
	ts := setupServer(t, newFakeEngine())

	resp := do(t, http.MethodGet, ts.URL+"/api/services/api/uptime", "pub_test")
	var up struct {
		Service string `json:"service"`
		Periods []struct {
			Period        string  `json:"period"`
			UptimePercent float64 `json:"uptime_percent"`
		} `json:"periods"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&up); err != nil {
		t.Fatalf("decode uptime: %v", err)
	}
	if up.Service != "api" || len(up.Periods) != 1 || up.Periods[0].UptimePercent != 99.5 {
		t.Fatalf("unexpected uptime: %+v", up)
	}

	resp = do(t, http.MethodGet, ts.URL+"/api/summary", "pub_test")
	var sum struct {
		Total    int            `json:"total"`
		ByStatus map[string]int `json:"by_status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&sum); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if sum.Total != 2 || sum.ByStatus["critical"] != 1 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
}

func TestAck_AdminOnly(t *testing.T) {
	eng := newFakeEngine()
	ts := setupServer(t, eng)

	if resp := do(t, http.MethodPost, ts.URL+"/api/services/db/ack", "pub_test"); resp.StatusCode != http.StatusForbidden {
		t.Fatalf("public key must not ack, got %d", resp.StatusCode)
	}
	if resp := do(t, http.MethodPost, ts.URL+"/api/services/db/ack", "adm_test"); resp.StatusCode != http.StatusOK {
		t.Fatalf("admin ack: want 200, got %d", resp.StatusCode)
	}
	if len(eng.acked) != 1 || eng.acked[0] != "db" {
		t.Fatalf("ack not forwarded: %v", eng.acked)
	}
	if resp := do(t, http.MethodPost, ts.URL+"/api/services/api/ack", "adm_test"); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("ack without escalation: want 404, got %d", resp.StatusCode)
	}
}

func TestReload(t *testing.T) {
	eng := newFakeEngine()
	ts := setupServer(t, eng)

	resp := do(t, http.MethodPost, ts.URL+"/api/reload", "adm_test")
	var out struct {
		Version  uint64 `json:"version"`
		Services int    `json:"services"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode reload: %v", err)
	}
	if out.Version != 7 || out.Services != 2 {
		t.Fatalf("unexpected reload response: %+v", out)
	}

	eng.reloadErr = fmt.Errorf("%w: services[0]: name is required", domain.ErrConfigInvalid)
	if resp := do(t, http.MethodPost, ts.URL+"/api/reload", "adm_test"); resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("invalid catalogue: want 422, got %d", resp.StatusCode)
	}
}
