// Package recovery runs remediation action chains for services that stay
// critical.
package recovery

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hamed0406/watchdog/internal/domain"
)

// Skip reasons returned by Trigger.
const (
	ReasonNotCritical  = "not_critical"
	ReasonDisabled     = "disabled"
	ReasonBelowTrigger = "below_failure_trigger"
	ReasonRunning      = "already_running"
	ReasonCooldown     = "cooldown"
	ReasonServiceLimit = "service_hourly_limit"
	ReasonGlobalLimit  = "global_hourly_limit"
)

var errAborted = errors.New("skipped after earlier action failed")

// Orchestrator decides when a chain may start and runs it in the
// background. It never changes service status; the next check does.
type Orchestrator struct {
	logger *zap.Logger
	runner Runner
	sink   func(context.Context, domain.RecoveryEvent)
	now    func() time.Time

	mu          sync.Mutex
	globalLimit int
	running     map[string]bool
	cooldown    map[string]time.Time
	attempts    map[string][]time.Time
	global      []time.Time
	wg          sync.WaitGroup
}

// NewOrchestrator wires a runner and an event sink. sink is called from the
// chain goroutine and must not block for long.
func NewOrchestrator(logger *zap.Logger, runner Runner, sink func(context.Context, domain.RecoveryEvent)) *Orchestrator {
	if sink == nil {
		sink = func(context.Context, domain.RecoveryEvent) {}
	}
	return &Orchestrator{
		logger:   logger,
		runner:   runner,
		sink:     sink,
		now:      time.Now,
		running:  map[string]bool{},
		cooldown: map[string]time.Time{},
		attempts: map[string][]time.Time{},
	}
}

// SetGlobalLimit caps chains per rolling hour across all services. 0 means
// no cap.
func (o *Orchestrator) SetGlobalLimit(n int) {
	o.mu.Lock()
	o.globalLimit = n
	o.mu.Unlock()
}

// Trigger starts the recovery chain of def when st warrants it. It returns
// false and the reason when nothing was started.
func (o *Orchestrator) Trigger(ctx context.Context, def domain.ServiceDefinition, st domain.ServiceState) (bool, string) {
	if st.Status != domain.StatusCritical {
		return false, ReasonNotCritical
	}
	pol := def.Recovery
	if pol == nil || !pol.Enabled || len(pol.Actions) == 0 {
		return false, ReasonDisabled
	}
	trigger := pol.FailuresBeforeRecovery
	if trigger < 1 {
		trigger = def.Threshold()
	}
	if st.ConsecutiveFailures < trigger {
		return false, ReasonBelowTrigger
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	now := o.now()
	switch {
	case o.running[def.Name]:
		return false, ReasonRunning
	case now.Before(o.cooldown[def.Name]):
		return false, ReasonCooldown
	}
	o.attempts[def.Name] = withinHour(o.attempts[def.Name], now)
	o.global = withinHour(o.global, now)
	if pol.MaxAttemptsPerHour > 0 && len(o.attempts[def.Name]) >= pol.MaxAttemptsPerHour {
		return false, ReasonServiceLimit
	}
	if o.globalLimit > 0 && len(o.global)+len(o.running) >= o.globalLimit {
		return false, ReasonGlobalLimit
	}

	o.running[def.Name] = true
	o.wg.Add(1)
	go o.run(ctx, def.Name, *pol)
	return true, ""
}

func (o *Orchestrator) run(ctx context.Context, service string, pol domain.RecoveryPolicy) {
	defer o.wg.Done()
	attempt := uuid.NewString()
	log := o.logger.With(zap.String("service", service), zap.String("attempt_id", attempt))
	log.Info("recovery_started", zap.Int("actions", len(pol.Actions)))

	defer func() {
		o.mu.Lock()
		now := o.now()
		delete(o.running, service)
		o.cooldown[service] = now.Add(time.Duration(pol.CooldownMinutes) * time.Minute)
		o.attempts[service] = append(o.attempts[service], now)
		o.global = append(o.global, now)
		o.mu.Unlock()
	}()

	failed := false
	for i, a := range pol.Actions {
		if ctx.Err() != nil {
			log.Info("recovery_canceled", zap.Int("action", i+1))
			return
		}
		if failed {
			o.emit(ctx, attempt, service, a, domain.RecoverySkipped, errAborted.Error())
			continue
		}
		if a.DelaySeconds > 0 && !sleep(ctx, time.Duration(a.DelaySeconds)*time.Second) {
			log.Info("recovery_canceled", zap.Int("action", i+1))
			return
		}

		actx, cancel := context.WithTimeout(ctx, a.Timeout())
		msg, err := o.runner.Execute(actx, service, a)
		cancel()
		if ctx.Err() != nil {
			log.Info("recovery_canceled", zap.Int("action", i+1))
			return
		}
		if err != nil {
			log.Warn("recovery_action_failed", zap.String("action", a.Label()), zap.Error(err))
			o.emit(ctx, attempt, service, a, domain.RecoveryFailed, err.Error())
			failed = !a.ContinueOnFailure
			continue
		}
		log.Info("recovery_action_succeeded", zap.String("action", a.Label()), zap.String("output", msg))
		o.emit(ctx, attempt, service, a, domain.RecoverySucceeded, msg)
	}
	log.Info("recovery_finished", zap.Bool("aborted", failed))
}

func (o *Orchestrator) emit(ctx context.Context, attempt, service string, a domain.RecoveryAction, out domain.RecoveryOutcome, msg string) {
	if ctx.Err() != nil {
		return
	}
	o.sink(ctx, domain.RecoveryEvent{
		AttemptID: attempt,
		Service:   service,
		Action:    a.Label(),
		Outcome:   out,
		Message:   msg,
		Timestamp: o.now(),
	})
}

// Running reports whether a chain for service is in progress.
func (o *Orchestrator) Running(service string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running[service]
}

// Attempts returns how many chains finished for service in the last hour.
func (o *Orchestrator) Attempts(service string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(withinHour(o.attempts[service], o.now()))
}

// Wait blocks until every started chain has returned.
func (o *Orchestrator) Wait() { o.wg.Wait() }

func withinHour(ts []time.Time, now time.Time) []time.Time {
	cut := now.Add(-time.Hour)
	i := 0
	for i < len(ts) && !ts[i].After(cut) {
		i++
	}
	return ts[i:]
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
