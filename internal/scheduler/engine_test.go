package scheduler

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hamed0406/watchdog/internal/domain"
	"github.com/hamed0406/watchdog/internal/repo/memory"
)

func TestEngine_ReloadDropsRemovedServices(t *testing.T) {
	f := newFixture(t, twoServices, nil)
	before := f.engine.Snapshot().Version
	require.Len(t, f.engine.Services(), 3)

	next := strings.Replace(twoServices, "  - name: web\n    type: http\n    url: http://127.0.0.1:1/\n", "", 1)
	require.NoError(t, os.WriteFile(f.path, []byte(next), 0o600))

	snap, err := f.engine.Reload()
	require.NoError(t, err)
	require.Greater(t, snap.Version, before)

	_, ok := f.engine.Service("web")
	require.False(t, ok)
	require.Len(t, f.engine.Services(), 2)
}

func TestEngine_InvalidReloadKeepsSnapshot(t *testing.T) {
	f := newFixture(t, twoServices, nil)
	active := f.engine.Snapshot()

	require.NoError(t, os.WriteFile(f.path, []byte("services:\n  - name: x\n    type: carrier-pigeon\n"), 0o600))
	_, err := f.engine.Reload()
	require.ErrorIs(t, err, domain.ErrConfigInvalid)
	require.Same(t, active, f.engine.Snapshot())
}

func TestEngine_ServiceViewCarriesDefinition(t *testing.T) {
	f := newFixture(t, twoServices, nil)
	v, ok := f.engine.Service("off")
	require.True(t, ok)
	require.False(t, v.Enabled)
	require.Equal(t, domain.TypeHTTP, v.Type)
	require.Equal(t, domain.StatusUnknown, v.Status)
}

type failingUptime struct {
	*memory.Store
	fail bool
}

func (s *failingUptime) UpsertUptime(ctx context.Context, recs []domain.UptimeRecord) error {
	if s.fail {
		return errors.New("db down")
	}
	return s.Store.UpsertUptime(ctx, recs)
}

func TestEngine_FlushRequeuesOnFailure(t *testing.T) {
	f := newFixture(t, basicCatalogue, nil)
	store := &failingUptime{Store: memory.New(), fail: true}
	f.engine.results = store
	f.engine.pipeline.history = store

	ctx := context.Background()
	ts := time.Now()
	f.engine.pipeline.Process(ctx, f.def(t, "api"), result("api", domain.OutcomeUnhealthy, ts))

	f.engine.flushUptime(ctx)
	got, err := store.LoadUptime(ctx, time.Time{})
	require.NoError(t, err)
	require.Empty(t, got)

	store.fail = false
	f.engine.flushUptime(ctx)
	got, err = store.LoadUptime(ctx, time.Time{})
	require.NoError(t, err)
	require.Len(t, got, len(domain.Periods))
}

func TestEngine_PruneHistory(t *testing.T) {
	f := newFixture(t, basicCatalogue, nil)
	ctx := context.Background()
	now := time.Now()
	def := f.def(t, "api")
	f.engine.pipeline.Process(ctx, def, result("api", domain.OutcomeHealthy, now.Add(-40*24*time.Hour)))
	f.engine.pipeline.Process(ctx, def, result("api", domain.OutcomeHealthy, now))

	f.engine.pruneHistory(ctx, now)
	recent, err := f.engine.results.Recent(ctx, "api", 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
}

func TestEngine_RestoreUptimeFromStore(t *testing.T) {
	f := newFixture(t, basicCatalogue, nil)
	ctx := context.Background()
	now := time.Now().UTC()
	day := bucketHorizon(now, time.UTC)
	require.NoError(t, f.engine.results.UpsertUptime(ctx, []domain.UptimeRecord{{
		Service: "api", Period: domain.PeriodMonth,
		PeriodStart:   time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC),
		TotalChecks:   10,
		HealthyChecks: 9,
		CoverageStart: day,
		LastCheck:     day.Add(time.Hour),
		OutageSeconds: 360,
	}}))

	f.engine.restoreUptime(ctx)
	month := f.engine.Uptime("api", now)[2]
	require.Equal(t, domain.PeriodMonth, month.Period)
	require.Equal(t, int64(10), month.TotalChecks)
	require.InDelta(t, 90.0, month.UptimePercent, 0.001)
}
