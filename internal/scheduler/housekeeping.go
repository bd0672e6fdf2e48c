package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/hamed0406/watchdog/internal/domain"
	"github.com/hamed0406/watchdog/internal/uptime"
)

// cronLogger routes cron's own messages into zap.
type cronLogger struct{ s *zap.SugaredLogger }

func (l cronLogger) Info(msg string, kv ...any) { l.s.Debugw("cron_"+msg, kv...) }

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.s.Errorw("cron_"+msg, append(kv, "error", err)...)
}

func (e *Engine) startHousekeeping(ctx context.Context) (*cron.Cron, error) {
	cl := cronLogger{e.log.Sugar()}
	c := cron.New(
		cron.WithLocation(e.store.Current().Location),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if _, err := c.AddFunc(e.opts.HousekeepingSchedule, func() { e.housekeep(ctx) }); err != nil {
		return nil, err
	}
	c.Start()
	e.log.Info("housekeeping_started", zap.String("schedule", e.opts.HousekeepingSchedule))
	return c, nil
}

func (e *Engine) housekeep(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	e.flushUptime(ctx)
	e.pruneHistory(ctx, time.Now())
}

// flushUptime writes changed uptime buckets. Failed writes are re-queued
// for the next run.
func (e *Engine) flushUptime(ctx context.Context) {
	recs := e.uptime.Flush()
	if len(recs) == 0 {
		return
	}
	if err := e.results.UpsertUptime(ctx, recs); err != nil {
		e.uptime.MarkDirty(recs)
		e.log.Warn("uptime_flush_failed", zap.Int("records", len(recs)), zap.Error(err))
		return
	}
	e.log.Debug("uptime_flushed", zap.Int("records", len(recs)))
}

func (e *Engine) pruneHistory(ctx context.Context, now time.Time) {
	n, err := e.results.PruneBefore(ctx, now.Add(-e.opts.HistoryRetention))
	if err != nil {
		e.log.Warn("history_prune_failed", zap.Error(err))
	} else if n > 0 {
		e.log.Info("history_pruned", zap.Int64("rows", n))
	}
	if pruned := e.uptime.Prune(bucketHorizon(now, e.store.Current().Location)); pruned > 0 {
		e.log.Debug("uptime_buckets_pruned", zap.Int("buckets", pruned))
	}
}

// bucketHorizon is the oldest period start still needed in memory: the
// earlier of this week's and this month's start.
func bucketHorizon(now time.Time, loc *time.Location) time.Time {
	week := uptime.PeriodStart(domain.PeriodWeek, now, loc)
	month := uptime.PeriodStart(domain.PeriodMonth, now, loc)
	if week.Before(month) {
		return week
	}
	return month
}

func (e *Engine) restoreUptime(ctx context.Context) {
	since := bucketHorizon(time.Now(), e.store.Current().Location)
	recs, err := e.results.LoadUptime(ctx, since)
	if err != nil {
		e.log.Warn("uptime_restore_failed", zap.Error(err))
		return
	}
	e.uptime.Load(recs)
	e.log.Info("uptime_restored", zap.Int("records", len(recs)))
}

// RunOnce performs a single pass: restore, one tick, wait for recovery
// chains and notifications, flush.
func (e *Engine) RunOnce(ctx context.Context) int {
	e.restoreUptime(ctx)
	n := e.Tick(ctx)
	e.recovery.Wait()
	e.pipeline.Wait()
	e.flushUptime(ctx)
	return n
}
