package probe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/hamed0406/watchdog/internal/domain"
)

const maxBodyBytes = 64 << 10

type HTTPChecker struct {
	Client *http.Client

	name            string
	method          string
	url             string
	headers         map[string]string
	expected        []int
	expectBody      string
	degradedLatency time.Duration
}

func NewHTTPChecker(def domain.ServiceDefinition) *HTTPChecker {
	method := def.Probe.Method
	if method == "" {
		method = http.MethodGet
	}
	return &HTTPChecker{
		// The per-check deadline comes from the context.
		Client:          &http.Client{},
		name:            def.Name,
		method:          strings.ToUpper(method),
		url:             def.Probe.URL,
		headers:         def.Probe.Headers,
		expected:        def.Probe.ExpectedStatus,
		expectBody:      def.Probe.ExpectBody,
		degradedLatency: time.Duration(def.Probe.DegradedLatencyMS) * time.Millisecond,
	}
}

func (h *HTTPChecker) Check(ctx context.Context) domain.CheckResult {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, h.method, h.url, nil)
	if err != nil {
		return failure(h.name, start, protocolError("build request: %v", err))
	}
	for k, v := range h.headers {
		req.Header.Set(k, v)
	}

	resp, err := h.Client.Do(req)
	if err != nil {
		return failure(h.name, start, err)
	}
	defer resp.Body.Close()

	var body []byte
	if h.expectBody != "" {
		body, err = io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return failure(h.name, start, err)
		}
	}

	details := map[string]any{"status_code": resp.StatusCode}
	switch {
	case !h.statusOK(resp.StatusCode) && resp.StatusCode >= 500:
		return withDetails(newResult(h.name, start, domain.OutcomeUnhealthy, resp.Status), details)
	case !h.statusOK(resp.StatusCode):
		return withDetails(degraded(h.name, start, resp.Status), details)
	case h.expectBody != "" && !strings.Contains(string(body), h.expectBody):
		return withDetails(degraded(h.name, start, fmt.Sprintf("%s; body does not contain %q", resp.Status, h.expectBody)), details)
	}

	out := withDetails(healthy(h.name, start, resp.Status), details)
	if h.degradedLatency > 0 && out.Latency > h.degradedLatency {
		out.Outcome = domain.OutcomeDegraded
		out.Message = fmt.Sprintf("%s; slow response %s", resp.Status, out.Latency.Round(time.Millisecond))
	}
	return out
}

func (h *HTTPChecker) statusOK(code int) bool {
	if len(h.expected) > 0 {
		return slices.Contains(h.expected, code)
	}
	return code >= 200 && code < 400
}
