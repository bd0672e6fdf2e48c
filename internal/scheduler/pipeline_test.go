package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hamed0406/watchdog/internal/domain"
	"github.com/hamed0406/watchdog/internal/notify"
)

const basicCatalogue = `
watchdog:
  interval: 30s
  timezone: UTC
services:
  - name: api
    type: http
    url: http://127.0.0.1:1/health
    critical_after_failures: 3
notifications:
  channels:
    - name: hook
      type: webhook
      url: http://127.0.0.1:1/hook
`

func TestPipeline_CriticalOnThirdFailure(t *testing.T) {
	f := newFixture(t, basicCatalogue, nil)
	def := f.def(t, "api")
	ctx := context.Background()
	t0 := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

	outcomes := []domain.Outcome{domain.OutcomeHealthy, domain.OutcomeUnhealthy, domain.OutcomeUnhealthy, domain.OutcomeUnhealthy}
	want := []struct {
		status domain.Status
		cf     int
	}{
		{domain.StatusHealthy, 0},
		{domain.StatusHealthy, 1},
		{domain.StatusDegraded, 2},
		{domain.StatusCritical, 3},
	}
	for i, o := range outcomes {
		f.engine.pipeline.Process(ctx, def, result("api", o, t0.Add(time.Duration(i)*30*time.Second)))
		v, ok := f.engine.Service("api")
		require.True(t, ok)
		require.Equal(t, want[i].status, v.Status, "step %d", i)
		require.Equal(t, want[i].cf, v.ConsecutiveFailures, "step %d", i)
	}

	// Unknown->Healthy is silent; Degraded and Critical are announced.
	require.Equal(t, []notify.Kind{notify.KindStatusChanged, notify.KindStatusChanged}, f.sent.kinds())
	evs := f.sent.all()
	require.Equal(t, notify.SeverityWarning, evs[0].Severity)
	require.Equal(t, notify.SeverityCritical, evs[1].Severity)

	// One healthy result resets everything.
	f.engine.pipeline.Process(ctx, def, result("api", domain.OutcomeHealthy, t0.Add(4*30*time.Second)))
	v, _ := f.engine.Service("api")
	require.Equal(t, domain.StatusHealthy, v.Status)
	require.Zero(t, v.ConsecutiveFailures)
	require.Equal(t, notify.KindRecovered, f.sent.all()[2].Kind)

	hist, err := f.engine.History(ctx, "api", 10)
	require.NoError(t, err)
	require.Len(t, hist, 5)
	require.True(t, hist[0].Healthy(), "newest first")
}

const maintenanceCatalogue = `
watchdog:
  interval: 30s
  timezone: UTC
services:
  - name: db
    type: http
    url: http://127.0.0.1:1/
    critical_after_failures: 3
    recovery:
      enabled: true
      failures_before_recovery: 3
      actions:
        - type: notify-only
escalation:
  enabled: true
  levels:
    - name: oncall
      delay_minutes: 0
      recipients: [ops@example.com]
maintenance:
  - name: nightly
    start: "02:00"
    end: "04:00"
notifications:
  channels:
    - name: hook
      type: webhook
      url: http://127.0.0.1:1/hook
`

func TestPipeline_MaintenanceSuppressesAlertingButCountsOutage(t *testing.T) {
	f := newFixture(t, maintenanceCatalogue, nil)
	def := f.def(t, "db")
	ctx := context.Background()
	t0 := time.Date(2025, 6, 2, 2, 30, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		f.engine.pipeline.Process(ctx, def, result("db", domain.OutcomeUnhealthy, t0.Add(time.Duration(i)*time.Minute)))
	}
	f.engine.recovery.Wait()

	v, _ := f.engine.Service("db")
	require.Equal(t, domain.StatusCritical, v.Status)
	require.True(t, v.Suppressed)
	require.Nil(t, v.Escalation)
	require.Empty(t, f.sent.all())
	require.Zero(t, f.runner.count())

	day := f.engine.Uptime("db", t0.Add(3*time.Minute))[0]
	require.Equal(t, domain.PeriodDay, day.Period)
	require.Equal(t, int64(4), day.TotalChecks)
	// 30s nominal interval for the first result, then 3 one-minute gaps.
	require.InDelta(t, 210.0, day.OutageSeconds, 0.001)
	require.InDelta(t, 0.0, day.UptimePercent, 0.001)
}

func TestPipeline_AfterMaintenanceAlertingResumes(t *testing.T) {
	f := newFixture(t, maintenanceCatalogue, nil)
	def := f.def(t, "db")
	ctx := context.Background()
	t0 := time.Date(2025, 6, 2, 3, 58, 0, 0, time.UTC)

	f.engine.pipeline.Process(ctx, def, result("db", domain.OutcomeUnhealthy, t0))
	f.engine.pipeline.Process(ctx, def, result("db", domain.OutcomeUnhealthy, t0.Add(time.Minute)))
	require.Empty(t, f.sent.all())

	// 04:00 is outside the window.
	f.engine.pipeline.Process(ctx, def, result("db", domain.OutcomeUnhealthy, t0.Add(2*time.Minute)))
	f.engine.recovery.Wait()

	require.Contains(t, f.sent.kinds(), notify.KindStatusChanged)
	require.Contains(t, f.sent.kinds(), notify.KindEscalated)
	require.Contains(t, f.sent.kinds(), notify.KindRecoveryAttempt)
	require.Equal(t, 1, f.runner.count())
}

const escalationCatalogue = `
watchdog:
  interval: 1m
  timezone: UTC
services:
  - name: db
    type: http
    url: http://127.0.0.1:1/
    critical_after_failures: 1
escalation:
  enabled: true
  levels:
    - name: oncall
      delay_minutes: 0
      recipients: [ops@example.com]
    - name: lead
      delay_minutes: 15
      recipients: [lead@example.com]
    - name: cto
      delay_minutes: 60
      recipients: [cto@example.com]
notifications:
  channels:
    - name: hook
      type: webhook
      url: http://127.0.0.1:1/hook
`

func TestPipeline_EscalatesThroughLevels(t *testing.T) {
	f := newFixture(t, escalationCatalogue, nil)
	def := f.def(t, "db")
	ctx := context.Background()
	t0 := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)

	var levels []int
	for m := 0; m <= 70; m++ {
		f.engine.pipeline.Process(ctx, def, result("db", domain.OutcomeUnhealthy, t0.Add(time.Duration(m)*time.Minute)))
	}
	for _, ev := range f.sent.all() {
		if ev.Kind == notify.KindEscalated {
			levels = append(levels, ev.Level)
		}
	}
	require.Equal(t, []int{1, 2, 3}, levels)
	require.Len(t, f.engine.Escalations(), 1)
	require.Equal(t, 3, f.engine.Escalations()[0].Level)
}

func TestPipeline_AcknowledgeStopsEscalation(t *testing.T) {
	f := newFixture(t, escalationCatalogue, nil)
	def := f.def(t, "db")
	ctx := context.Background()
	t0 := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)

	f.engine.pipeline.Process(ctx, def, result("db", domain.OutcomeUnhealthy, t0))
	require.NoError(t, f.engine.Acknowledge("db"))
	f.engine.pipeline.Process(ctx, def, result("db", domain.OutcomeUnhealthy, t0.Add(20*time.Minute)))

	v, _ := f.engine.Service("db")
	require.NotNil(t, v.Escalation)
	require.Equal(t, 1, v.Escalation.Level)
	require.True(t, v.Escalation.Acknowledged)

	require.Error(t, f.engine.Acknowledge("nope"))
}

func TestPipeline_StaleAndCanceledResultsAreIgnored(t *testing.T) {
	f := newFixture(t, basicCatalogue, nil)
	def := f.def(t, "api")
	t0 := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

	f.engine.pipeline.Process(context.Background(), def, result("api", domain.OutcomeHealthy, t0))
	f.engine.pipeline.Process(context.Background(), def, result("api", domain.OutcomeUnhealthy, t0.Add(-time.Minute)))
	v, _ := f.engine.Service("api")
	require.Zero(t, v.ConsecutiveFailures)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f.engine.pipeline.Process(ctx, def, result("api", domain.OutcomeUnhealthy, t0.Add(time.Minute)))
	v, _ = f.engine.Service("api")
	require.Zero(t, v.ConsecutiveFailures)
	require.Equal(t, int64(1), f.engine.Uptime("api", t0)[0].TotalChecks)
}

const windowEscalationCatalogue = `
watchdog:
  interval: 1m
  timezone: UTC
services:
  - name: db
    type: http
    url: http://127.0.0.1:1/
    critical_after_failures: 1
escalation:
  enabled: true
  reset_on_recovery: true
  levels:
    - name: oncall
      delay_minutes: 0
    - name: lead
      delay_minutes: 15
    - name: cto
      delay_minutes: 60
maintenance:
  - name: nightly
    start: "02:00"
    end: "04:00"
notifications:
  channels:
    - name: hook
      type: webhook
      url: http://127.0.0.1:1/hook
`

func TestPipeline_RecoveryInsideWindowEndsEscalation(t *testing.T) {
	f := newFixture(t, windowEscalationCatalogue, nil)
	def := f.def(t, "db")
	ctx := context.Background()
	at := func(h, m int) time.Time { return time.Date(2025, 6, 2, h, m, 0, 0, time.UTC) }

	f.engine.pipeline.Process(ctx, def, result("db", domain.OutcomeUnhealthy, at(1, 50)))
	f.engine.pipeline.Process(ctx, def, result("db", domain.OutcomeHealthy, at(2, 30)))
	require.Empty(t, f.engine.Escalations(), "recovery in the window resets the escalation")

	f.engine.pipeline.Process(ctx, def, result("db", domain.OutcomeUnhealthy, at(4, 10)))
	f.engine.pipeline.Process(ctx, def, result("db", domain.OutcomeUnhealthy, at(4, 11)))

	esc := f.engine.Escalations()
	require.Len(t, esc, 1)
	require.Equal(t, 1, esc[0].Level)
	require.Equal(t, at(4, 10), esc[0].OnsetAt)

	var levels []int
	for _, ev := range f.sent.all() {
		if ev.Kind == notify.KindEscalated {
			levels = append(levels, ev.Level)
		}
	}
	require.Equal(t, []int{1, 1}, levels)
}
