package scheduler

import (
	"context"
	"errors"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/hamed0406/watchdog/internal/domain"
	"github.com/hamed0406/watchdog/internal/escalation"
	"github.com/hamed0406/watchdog/internal/hub"
	"github.com/hamed0406/watchdog/internal/maintenance"
	"github.com/hamed0406/watchdog/internal/metrics"
	"github.com/hamed0406/watchdog/internal/recovery"
	"github.com/hamed0406/watchdog/internal/repo"
	"github.com/hamed0406/watchdog/internal/status"
	"github.com/hamed0406/watchdog/internal/uptime"
)

// Pipeline moves one check result through the engine:
// maintenance filter, status tracker, then escalation, recovery and
// notifications unless suppressed. Uptime, history, metrics and the hub see
// every result.
type Pipeline struct {
	log        *zap.Logger
	status     *status.Tracker
	escalation *escalation.Tracker
	recovery   *recovery.Orchestrator
	outbox     *outbox
	uptime     *uptime.Aggregator
	history    repo.ResultStore
	metrics    *metrics.Metrics
	hub        *hub.Hub
	windows    atomic.Pointer[maintenance.Evaluator]
}

func (p *Pipeline) SetMaintenance(e *maintenance.Evaluator) { p.windows.Store(e) }

// Wait blocks until queued notifications have been handed to the channels.
func (p *Pipeline) Wait() { p.outbox.wait() }

// Process must be called at most once at a time per service, in result
// order. It does nothing once ctx is done.
func (p *Pipeline) Process(ctx context.Context, def domain.ServiceDefinition, r domain.CheckResult) {
	if ctx.Err() != nil {
		return
	}
	log := p.log.With(zap.String("service", def.Name))

	window, suppressed := p.windows.Load().Active(def.Name, r.Timestamp)
	st, change, err := p.status.Apply(def.Threshold(), r, suppressed)
	if errors.Is(err, status.ErrStaleResult) {
		log.Warn("stale_result_dropped", zap.Time("timestamp", r.Timestamp))
		return
	}

	p.uptime.Record(r)
	p.observe(def.Name, st, r)
	if err := p.history.Append(ctx, r); err != nil {
		log.Warn("history_append_failed", zap.Error(err))
	}
	log.Debug("check_completed",
		zap.String("outcome", r.Outcome.String()),
		zap.Duration("latency", r.Latency),
		zap.String("message", r.Message),
	)
	p.hub.Broadcast(hub.Event{Type: hub.TypeCheckResult, Service: def.Name, Timestamp: r.Timestamp, Payload: st})

	if change != nil {
		log.Info("status_changed",
			zap.String("previous", change.Previous.String()),
			zap.String("current", change.Current.String()),
			zap.Int("consecutive_failures", change.ConsecutiveFailures),
			zap.Bool("suppressed", suppressed),
		)
		p.hub.Broadcast(hub.Event{Type: hub.TypeStatusChanged, Service: def.Name, Timestamp: change.Timestamp, Payload: change})
	}
	if suppressed {
		// A recovery inside a window still ends the escalation.
		if st.Status == domain.StatusHealthy {
			p.escalation.Update(def.Name, st.Status, r.Timestamp)
			p.observeEscalation(def.Name)
		}
		log.Debug("alerting_suppressed", zap.String("window", window))
		return
	}
	if ctx.Err() != nil {
		return
	}

	escalations := p.escalation.Update(def.Name, st.Status, r.Timestamp)
	p.observeEscalation(def.Name)

	if change != nil {
		if ev, ok := statusEvent(def, *change, r); ok {
			p.outbox.send(ctx, ev)
		}
	}
	for _, e := range escalations {
		if ctx.Err() != nil {
			return
		}
		log.Warn("escalated", zap.Int("level", e.Level), zap.String("level_name", e.LevelName), zap.Strings("recipients", e.Recipients))
		p.hub.Broadcast(hub.Event{Type: hub.TypeEscalated, Service: def.Name, Timestamp: e.Timestamp, Payload: e})
		p.outbox.send(ctx, escalationEvent(e))
	}

	if ctx.Err() != nil {
		return
	}
	started, reason := p.recovery.Trigger(ctx, def, st)
	switch {
	case started:
		log.Info("recovery_triggered", zap.Int("consecutive_failures", st.ConsecutiveFailures))
	case reason != recovery.ReasonNotCritical && reason != recovery.ReasonDisabled:
		log.Debug("recovery_skipped", zap.String("reason", reason))
	}
}

func (p *Pipeline) observeEscalation(service string) {
	level := 0
	if es, ok := p.escalation.Get(service); ok {
		level = es.Level
	}
	p.metrics.SetEscalationLevel(service, level)
}

func (p *Pipeline) observe(service string, st domain.ServiceState, r domain.CheckResult) {
	p.metrics.ObserveState(st)
	p.metrics.SetCounts(p.status.Counts())
	for _, s := range p.uptime.Summaries(service, r.Timestamp) {
		p.metrics.SetUptime(service, s.Period, s.UptimePercent/100)
	}
}

// onRecovery is the orchestrator's event sink.
func (p *Pipeline) onRecovery(ctx context.Context, e domain.RecoveryEvent) {
	p.metrics.RecoveryAction(e.Service, e.Outcome)
	p.hub.Broadcast(hub.Event{Type: hub.TypeRecovery, Service: e.Service, Timestamp: e.Timestamp, Payload: e})
	if ctx.Err() != nil {
		return
	}
	p.outbox.send(ctx, recoveryEvent(e))
}
