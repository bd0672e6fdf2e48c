package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/watchdog/internal/config"
	"github.com/hamed0406/watchdog/internal/domain"
	"github.com/hamed0406/watchdog/internal/escalation"
	"github.com/hamed0406/watchdog/internal/hub"
	"github.com/hamed0406/watchdog/internal/maintenance"
	"github.com/hamed0406/watchdog/internal/metrics"
	"github.com/hamed0406/watchdog/internal/notify"
	"github.com/hamed0406/watchdog/internal/probe"
	"github.com/hamed0406/watchdog/internal/recovery"
	"github.com/hamed0406/watchdog/internal/repo"
	"github.com/hamed0406/watchdog/internal/repo/memory"
	"github.com/hamed0406/watchdog/internal/status"
	"github.com/hamed0406/watchdog/internal/uptime"
)

const (
	DefaultHistoryRetention     = 30 * 24 * time.Hour
	DefaultHousekeepingSchedule = "@every 1m"
	defaultHistoryLimit         = 20
)

type Options struct {
	Store   *config.Store
	Results repo.Store // defaults to an in-memory store
	Factory *probe.Factory
	Runner  recovery.Runner
	Metrics *metrics.Metrics
	Hub     *hub.Hub
	// BuildSender defaults to notify.BuildSender.
	BuildSender func(config.Channel) (notify.Notifier, error)

	HistoryRetention     time.Duration
	HousekeepingSchedule string
}

// Engine owns every stateful component and is the single entry point for
// the API and the CLI.
type Engine struct {
	log   *zap.Logger
	opts  Options
	store *config.Store

	results    repo.Store
	status     *status.Tracker
	escalation *escalation.Tracker
	recovery   *recovery.Orchestrator
	dispatcher *notify.Dispatcher
	uptime     *uptime.Aggregator
	metrics    *metrics.Metrics
	hub        *hub.Hub
	pipeline   *Pipeline
	watchdog   *Watchdog

	reloadMu sync.Mutex
}

// NewEngine wires the components and applies c as the first snapshot. It
// fails when c cannot be activated.
func NewEngine(log *zap.Logger, c *config.Catalog, opts Options) (*Engine, error) {
	if opts.Store == nil {
		opts.Store = config.NewStore("")
	}
	if opts.Results == nil {
		opts.Results = memory.New()
	}
	if opts.Factory == nil {
		opts.Factory = probe.NewFactory()
	}
	if opts.Runner == nil {
		opts.Runner = recovery.NewExecutor(recovery.SystemctlController{})
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	if opts.Hub == nil {
		opts.Hub = hub.New(log, nil)
	}
	if opts.BuildSender == nil {
		opts.BuildSender = func(ch config.Channel) (notify.Notifier, error) { return notify.BuildSender(ch, log) }
	}
	if opts.HistoryRetention <= 0 {
		opts.HistoryRetention = DefaultHistoryRetention
	}
	if opts.HousekeepingSchedule == "" {
		opts.HousekeepingSchedule = DefaultHousekeepingSchedule
	}

	e := &Engine{
		log:        log,
		opts:       opts,
		store:      opts.Store,
		results:    opts.Results,
		status:     status.NewTracker(c.Watchdog.HistorySize),
		escalation: escalation.NewTracker(c.Escalation),
		dispatcher: notify.NewDispatcher(log, opts.Metrics.Notification),
		uptime:     uptime.NewAggregator(time.Local, c.Watchdog.Interval),
		metrics:    opts.Metrics,
		hub:        opts.Hub,
	}
	e.pipeline = &Pipeline{
		log:        log,
		status:     e.status,
		escalation: e.escalation,
		outbox:     newOutbox(e.dispatcher),
		uptime:     e.uptime,
		history:    e.results,
		metrics:    e.metrics,
		hub:        e.hub,
	}
	e.recovery = recovery.NewOrchestrator(log, opts.Runner, e.pipeline.onRecovery)
	e.pipeline.recovery = e.recovery
	e.watchdog = NewWatchdog(log, e.store, opts.Factory, e.pipeline, e.metrics)

	if _, err := e.activate(c); err != nil {
		return nil, err
	}
	return e, nil
}

// Reload reads the catalogue file again. A catalogue that fails validation
// is rejected and the active snapshot stays in place.
func (e *Engine) Reload() (*config.Snapshot, error) {
	c, err := config.LoadFile(e.store.Path())
	if err != nil {
		e.log.Warn("reload_rejected", zap.Error(err))
		return nil, err
	}
	snap, err := e.activate(c)
	if err != nil {
		e.log.Warn("reload_rejected", zap.Error(err))
		return nil, err
	}
	return snap, nil
}

// activate prepares everything that can fail, publishes the snapshot and
// then pushes it into the components. In-flight checks keep the snapshot
// they started with.
func (e *Engine) activate(c *config.Catalog) (*config.Snapshot, error) {
	e.reloadMu.Lock()
	defer e.reloadMu.Unlock()

	loc, err := c.Location()
	if err != nil {
		return nil, err
	}
	windows, err := maintenance.Compile(c.Maintenance, loc)
	if err != nil {
		return nil, err
	}
	if err := e.dispatcher.Configure(c.Notifications.Channels, e.opts.BuildSender); err != nil {
		return nil, err
	}
	snap, err := e.store.Publish(c)
	if err != nil {
		return nil, err
	}

	e.pipeline.SetMaintenance(windows)
	e.escalation.Configure(c.Escalation)
	e.uptime.Configure(snap.Location, c.Watchdog.Interval)
	e.status.SetHistorySize(c.Watchdog.HistorySize)
	e.recovery.SetGlobalLimit(c.Watchdog.MaxRecoveryAttemptsPerHour)

	names := make([]string, 0, len(c.Services))
	for _, s := range c.Services {
		names = append(names, s.Name)
		e.status.Seed(s.Name, snap.LoadedAt)
	}
	for _, gone := range e.status.Retain(names) {
		e.metrics.Forget(gone)
		e.log.Info("service_removed", zap.String("service", gone))
	}
	e.escalation.Retain(names)
	e.uptime.Retain(names)
	e.metrics.SetCounts(e.status.Counts())

	e.log.Info("catalogue_activated",
		zap.Uint64("version", snap.Version),
		zap.Int("services", len(c.Services)),
		zap.Int("channels", len(e.dispatcher.Channels())),
		zap.Int("maintenance_windows", len(c.Maintenance)),
	)
	e.hub.Broadcast(hub.Event{Type: hub.TypeReloaded, Timestamp: snap.LoadedAt, Payload: map[string]any{
		"version":  snap.Version,
		"services": len(c.Services),
	}})
	return snap, nil
}

// Run restores uptime buckets, starts housekeeping and the watchdog, and
// blocks until ctx is cancelled and everything has drained.
func (e *Engine) Run(ctx context.Context) error {
	e.restoreUptime(ctx)
	hk, err := e.startHousekeeping(ctx)
	if err != nil {
		return err
	}

	e.watchdog.Run(ctx)
	e.recovery.Wait()
	e.pipeline.Wait()
	<-hk.Stop().Done()

	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	e.flushUptime(fctx)
	e.log.Info("engine_stopped")
	return nil
}

// ServiceView is what the query surface shows for one service.
type ServiceView struct {
	domain.ServiceState
	Type            domain.ServiceType `json:"type"`
	Enabled         bool               `json:"enabled"`
	Prioritized     bool               `json:"prioritized"`
	Tags            []string           `json:"tags,omitempty"`
	Escalation      *escalation.State  `json:"escalation,omitempty"`
	RecoveryRunning bool               `json:"recovery_running"`
}

func (e *Engine) view(st domain.ServiceState, c *config.Catalog) ServiceView {
	v := ServiceView{ServiceState: st, RecoveryRunning: e.recovery.Running(st.Name)}
	if def, ok := c.Service(st.Name); ok {
		v.Type, v.Enabled, v.Prioritized, v.Tags = def.Type, def.Enabled, def.Prioritized, def.Tags
	}
	if es, ok := e.escalation.Get(st.Name); ok {
		v.Escalation = &es
	}
	return v
}

// Services returns every known service sorted by name.
func (e *Engine) Services() []ServiceView {
	c := e.store.Current().Catalog
	states := e.status.Snapshot()
	out := make([]ServiceView, len(states))
	for i, st := range states {
		out[i] = e.view(st, c)
	}
	return out
}

func (e *Engine) Service(name string) (ServiceView, bool) {
	st, ok := e.status.Get(name)
	if !ok {
		return ServiceView{}, false
	}
	return e.view(st, e.store.Current().Catalog), true
}

// History returns up to limit recent results, newest first. The in-memory
// ring answers when it holds enough; otherwise the history store does.
func (e *Engine) History(ctx context.Context, name string, limit int) ([]domain.CheckResult, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	mem := e.status.History(name, limit)
	if len(mem) >= limit {
		return mem, nil
	}
	stored, err := e.results.Recent(ctx, name, limit)
	if err != nil {
		return nil, err
	}
	if len(stored) > len(mem) {
		return stored, nil
	}
	return mem, nil
}

func (e *Engine) Uptime(name string, now time.Time) []uptime.Summary {
	return e.uptime.Summaries(name, now)
}

func (e *Engine) Escalations() []escalation.State { return e.escalation.Snapshot() }

// Acknowledge stops further escalation notifications for service.
func (e *Engine) Acknowledge(service string) error {
	if err := e.escalation.Acknowledge(service); err != nil {
		return err
	}
	e.log.Info("escalation_acknowledged", zap.String("service", service))
	level := 0
	if es, ok := e.escalation.Get(service); ok {
		level = es.Level
	}
	e.metrics.SetEscalationLevel(service, level)
	return nil
}

func (e *Engine) Counts() map[domain.Status]int { return e.status.Counts() }

func (e *Engine) Snapshot() *config.Snapshot { return e.store.Current() }

// Tick runs one watchdog pass synchronously. Used by tests and `run --once`.
func (e *Engine) Tick(ctx context.Context) int {
	n := e.watchdog.Tick(ctx)
	e.watchdog.Wait()
	return n
}
