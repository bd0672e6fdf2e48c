package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hamed0406/watchdog/internal/domain"
	"github.com/hamed0406/watchdog/internal/repo"
)

var _ repo.Store = (*Store)(nil)

type uptimeKey struct {
	service string
	period  domain.Period
	start   int64
}

// Store keeps everything in process memory. It is used when no database is
// configured and in tests.
type Store struct {
	mu      sync.RWMutex
	results map[string][]domain.CheckResult
	uptime  map[uptimeKey]domain.UptimeRecord
}

func New() *Store {
	return &Store{
		results: make(map[string][]domain.CheckResult),
		uptime:  make(map[uptimeKey]domain.UptimeRecord),
	}
}

func (m *Store) Close() {}

func (m *Store) Append(ctx context.Context, r domain.CheckResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[r.Service] = append(m.results[r.Service], r)
	return nil
}

func (m *Store) Recent(ctx context.Context, service string, limit int) ([]domain.CheckResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rs := m.results[service]
	out := make([]domain.CheckResult, 0, min(len(rs), max(limit, 0)))
	for i := len(rs) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		out = append(out, rs[i])
	}
	return out, nil
}

func (m *Store) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for svc, rs := range m.results {
		kept := rs[:0]
		for _, r := range rs {
			if r.Timestamp.Before(cutoff) {
				n++
				continue
			}
			kept = append(kept, r)
		}
		if len(kept) == 0 {
			delete(m.results, svc)
			continue
		}
		m.results[svc] = kept
	}
	return n, nil
}

func (m *Store) UpsertUptime(ctx context.Context, recs []domain.UptimeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range recs {
		m.uptime[uptimeKey{r.Service, r.Period, r.PeriodStart.Unix()}] = r
	}
	return nil
}

func (m *Store) LoadUptime(ctx context.Context, since time.Time) ([]domain.UptimeRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.UptimeRecord
	for _, r := range m.uptime {
		if !r.PeriodStart.Before(since) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Service != out[j].Service {
			return out[i].Service < out[j].Service
		}
		return out[i].PeriodStart.Before(out[j].PeriodStart)
	})
	return out, nil
}
