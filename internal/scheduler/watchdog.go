package scheduler

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/watchdog/internal/config"
	"github.com/hamed0406/watchdog/internal/domain"
	"github.com/hamed0406/watchdog/internal/metrics"
	"github.com/hamed0406/watchdog/internal/probe"
)

// Watchdog drives the checks. Every tick it takes the current catalogue
// snapshot, starts one task per enabled service and feeds each result into
// the pipeline as soon as it arrives.
type Watchdog struct {
	log      *zap.Logger
	store    *config.Store
	factory  *probe.Factory
	pipeline *Pipeline
	metrics  *metrics.Metrics

	mu       sync.Mutex
	inflight map[string]bool
	version  uint64
	checkers map[string]probe.Checker

	wg sync.WaitGroup
}

func NewWatchdog(log *zap.Logger, store *config.Store, factory *probe.Factory, p *Pipeline, m *metrics.Metrics) *Watchdog {
	return &Watchdog{
		log:      log,
		store:    store,
		factory:  factory,
		pipeline: p,
		metrics:  m,
		inflight: map[string]bool{},
	}
}

// Run does an immediate pass, then one per interval. It returns after ctx
// is cancelled and every in-flight task has finished.
func (w *Watchdog) Run(ctx context.Context) {
	snap := w.store.Current()
	if snap == nil {
		w.log.Error("watchdog_no_catalogue")
		return
	}
	interval := snap.Catalog.Watchdog.Interval
	t := time.NewTicker(interval)
	defer t.Stop()
	w.log.Info("watchdog_started",
		zap.Duration("interval", interval),
		zap.Int("services", len(snap.Catalog.Services)),
	)

	w.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			w.wg.Wait()
			w.log.Info("watchdog_stopped")
			return
		case <-t.C:
			if cur := w.store.Current().Catalog.Watchdog.Interval; cur != interval {
				w.log.Info("watchdog_interval_changed", zap.Duration("from", interval), zap.Duration("to", cur))
				interval = cur
				t.Reset(interval)
			}
			w.Tick(ctx)
		}
	}
}

// Tick runs one pass and returns the number of checks started. It waits
// for them at most until the tick deadline; stragglers keep running and
// their service is skipped by later ticks until they finish.
func (w *Watchdog) Tick(ctx context.Context) int {
	snap := w.store.Current()
	if snap == nil || ctx.Err() != nil {
		return 0
	}
	start := time.Now()
	checkers := w.checkersFor(snap)

	var tick sync.WaitGroup
	launched := 0
	for _, def := range ordered(snap.Catalog.Services) {
		if !def.Enabled {
			continue
		}
		if !w.claim(def.Name) {
			w.metrics.CheckSkipped(def.Name)
			w.log.Debug("check_skipped_in_flight", zap.String("service", def.Name))
			continue
		}
		d, c := def, checkers[def.Name]
		launched++
		tick.Add(1)
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			defer tick.Done()
			defer w.release(d.Name)

			r := w.check(ctx, d, c)
			if ctx.Err() != nil {
				return
			}
			w.pipeline.Process(ctx, d, r)
		}()
	}

	done := make(chan struct{})
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		tick.Wait()
		close(done)
	}()

	deadline := time.NewTimer(snap.Catalog.Watchdog.TickDeadline)
	defer deadline.Stop()
	select {
	case <-done:
		w.metrics.TickDuration(time.Since(start))
	case <-deadline.C:
		w.log.Warn("tick_deadline_exceeded", zap.Duration("deadline", snap.Catalog.Watchdog.TickDeadline))
	case <-ctx.Done():
	}
	return launched
}

// check runs one probe under its own timeout. A checker that overruns its
// deadline or panics still yields an Unhealthy result.
func (w *Watchdog) check(ctx context.Context, def domain.ServiceDefinition, c probe.Checker) domain.CheckResult {
	cctx, cancel := context.WithTimeout(ctx, def.Timeout())
	defer cancel()
	start := time.Now()

	out := make(chan domain.CheckResult, 1)
	go func() {
		defer func() {
			if v := recover(); v != nil {
				w.log.Error("check_panicked", zap.String("service", def.Name), zap.Any("panic", v), zap.Stack("stack"))
				out <- domain.CheckResult{
					Service:   def.Name,
					Timestamp: time.Now(),
					Outcome:   domain.OutcomeUnhealthy,
					Latency:   time.Since(start),
					Message:   fmt.Sprintf("check panicked: %v", v),
					Details:   map[string]any{"error_kind": "panic"},
				}
			}
		}()
		out <- c.Check(cctx)
	}()

	var r domain.CheckResult
	select {
	case r = <-out:
	case <-cctx.Done():
		select {
		case r = <-out:
		default:
			r = probe.Failed(def.Name, start, cctx.Err())
		}
	}
	if r.Service == "" {
		r.Service = def.Name
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now()
	}
	return r
}

// checkersFor returns the checkers of snap, rebuilt only when the snapshot
// version changes.
func (w *Watchdog) checkersFor(snap *config.Snapshot) map[string]probe.Checker {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.checkers != nil && w.version == snap.Version {
		return w.checkers
	}
	out := make(map[string]probe.Checker, len(snap.Catalog.Services))
	for _, def := range snap.Catalog.Services {
		if !def.Enabled {
			continue
		}
		c, err := w.factory.Build(def)
		if err != nil {
			w.log.Error("checker_build_failed", zap.String("service", def.Name), zap.Error(err))
			buildErr := err
			name := def.Name
			c = probe.Func(func(context.Context) domain.CheckResult {
				return domain.CheckResult{
					Service:   name,
					Timestamp: time.Now(),
					Outcome:   domain.OutcomeUnhealthy,
					Message:   buildErr.Error(),
				}
			})
		}
		out[def.Name] = c
	}
	w.version, w.checkers = snap.Version, out
	return out
}

func (w *Watchdog) claim(service string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.inflight[service] {
		return false
	}
	w.inflight[service] = true
	return true
}

func (w *Watchdog) release(service string) {
	w.mu.Lock()
	delete(w.inflight, service)
	w.mu.Unlock()
}

// Wait blocks until every task started by Tick has returned.
func (w *Watchdog) Wait() { w.wg.Wait() }

// ordered puts prioritized services first and keeps catalogue order
// otherwise.
func ordered(defs []domain.ServiceDefinition) []domain.ServiceDefinition {
	out := slices.Clone(defs)
	slices.SortStableFunc(out, func(a, b domain.ServiceDefinition) int {
		switch {
		case a.Prioritized == b.Prioritized:
			return 0
		case a.Prioritized:
			return -1
		}
		return 1
	})
	return out
}
