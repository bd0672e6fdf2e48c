package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/hamed0406/watchdog/internal/domain"
)

func TestMetrics_TriStateStatus(t *testing.T) {
	m := New()
	st := domain.ServiceState{
		Name:                "db",
		Status:              domain.StatusCritical,
		ConsecutiveFailures: 3,
		LastResult:          domain.CheckResult{Outcome: domain.OutcomeUnhealthy, Latency: 250 * time.Millisecond},
	}
	m.ObserveState(st)
	require.Equal(t, -1.0, testutil.ToFloat64(m.status.WithLabelValues("db")))
	require.Equal(t, 3.0, testutil.ToFloat64(m.failures.WithLabelValues("db")))
	require.Equal(t, 0.25, testutil.ToFloat64(m.latency.WithLabelValues("db")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.checks.WithLabelValues("db", "unhealthy")))

	st.Status = domain.StatusDegraded
	m.ObserveState(st)
	require.Equal(t, 0.0, testutil.ToFloat64(m.status.WithLabelValues("db")))

	st.Status = domain.StatusUnknown
	m.ObserveState(st)
	require.Equal(t, 0, testutil.CollectAndCount(m.status))
}

func TestMetrics_CountsAndForget(t *testing.T) {
	m := New()
	m.SetCounts(map[domain.Status]int{domain.StatusHealthy: 4, domain.StatusCritical: 1})
	require.Equal(t, 4.0, testutil.ToFloat64(m.services.WithLabelValues("healthy")))
	require.Equal(t, 0.0, testutil.ToFloat64(m.services.WithLabelValues("degraded")))

	m.SetUptime("db", domain.PeriodDay, 0.5)
	m.SetEscalationLevel("db", 2)
	m.Forget("db")
	require.Equal(t, 0, testutil.CollectAndCount(m.uptime))
	require.Equal(t, 0, testutil.CollectAndCount(m.escalation))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.Notification("slack", "sent")
	m.RecoveryAction("db", domain.RecoveryFailed)
	m.CheckSkipped("db")
	m.TickDuration(time.Second)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{
		`watchdog_notifications_total{channel="slack",outcome="sent"} 1`,
		`watchdog_recovery_actions_total{outcome="failed",service="db"} 1`,
		`watchdog_checks_skipped_total{service="db"} 1`,
		`watchdog_tick_duration_seconds_count 1`,
	} {
		require.True(t, strings.Contains(string(body), want), "missing %s", want)
	}
}
