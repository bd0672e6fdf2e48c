// Package status keeps the health state of every service and derives status
// transitions from the stream of check results.
package status

import (
	"errors"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/hamed0406/watchdog/internal/domain"
)

// ErrStaleResult is returned when a result is older than the last one
// applied for the same service.
var ErrStaleResult = errors.New("stale check result")

const DefaultHistorySize = 50

type entry struct {
	state   domain.ServiceState
	history []domain.CheckResult // oldest first, bounded
}

// Tracker owns ServiceState for every service. Writes for one service come
// from a single pipeline stage; readers get copies.
type Tracker struct {
	mu          sync.RWMutex
	entries     map[string]*entry
	historySize int
}

func NewTracker(historySize int) *Tracker {
	if historySize <= 0 {
		historySize = DefaultHistorySize
	}
	return &Tracker{entries: map[string]*entry{}, historySize: historySize}
}

// SetHistorySize changes the per-service history bound. Existing histories
// are trimmed on their next append.
func (t *Tracker) SetHistorySize(n int) {
	if n <= 0 {
		n = DefaultHistorySize
	}
	t.mu.Lock()
	t.historySize = n
	t.mu.Unlock()
}

// Apply folds r into the service state and returns the new state, plus the
// transition when the status changed.
//
// A Healthy outcome resets the failure streak. Otherwise the streak grows
// and the service is Critical once it reaches threshold. Below that it is
// Degraded, except that a single failure after a Healthy status is treated
// as a blip and leaves the status Healthy.
func (t *Tracker) Apply(threshold int, r domain.CheckResult, suppressed bool) (domain.ServiceState, *domain.StatusChange, error) {
	if threshold < 1 {
		threshold = 1
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[r.Service]
	if !ok {
		e = &entry{state: domain.ServiceState{Name: r.Service, Status: domain.StatusUnknown}}
		t.entries[r.Service] = e
	}
	if last := e.state.LastResult.Timestamp; !last.IsZero() && r.Timestamp.Before(last) {
		return e.state, nil, ErrStaleResult
	}

	prev := e.state.Status
	next := prev
	if r.Healthy() {
		e.state.ConsecutiveFailures = 0
		next = domain.StatusHealthy
	} else {
		e.state.ConsecutiveFailures++
		cf := e.state.ConsecutiveFailures
		switch {
		case cf >= threshold:
			next = domain.StatusCritical
		case cf == 1 && prev == domain.StatusHealthy:
			next = domain.StatusHealthy
		default:
			next = domain.StatusDegraded
		}
	}

	e.state.LastResult = r
	e.state.Suppressed = suppressed
	e.history = append(e.history, r)
	if over := len(e.history) - t.historySize; over > 0 {
		e.history = slices.Delete(e.history, 0, over)
	}

	if next == prev {
		return e.state, nil, nil
	}
	e.state.Status = next
	e.state.LastChange = r.Timestamp
	return e.state, &domain.StatusChange{
		Service:             r.Service,
		Previous:            prev,
		Current:             next,
		ConsecutiveFailures: e.state.ConsecutiveFailures,
		Timestamp:           r.Timestamp,
		Message:             r.Message,
	}, nil
}

// Get returns a copy of one service state.
func (t *Tracker) Get(name string) (domain.ServiceState, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[name]
	if !ok {
		return domain.ServiceState{}, false
	}
	return e.state, true
}

// Snapshot returns every state sorted by name.
func (t *Tracker) Snapshot() []domain.ServiceState {
	t.mu.RLock()
	out := make([]domain.ServiceState, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e.state)
	}
	t.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// History returns up to limit recent results for name, newest first.
// limit <= 0 returns everything kept.
func (t *Tracker) History(name string, limit int) []domain.CheckResult {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[name]
	if !ok {
		return nil
	}
	n := len(e.history)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]domain.CheckResult, 0, n)
	for i := len(e.history) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, e.history[i])
	}
	return out
}

// Counts returns the number of services per status.
func (t *Tracker) Counts() map[domain.Status]int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[domain.Status]int, 4)
	for _, e := range t.entries {
		out[e.state.Status]++
	}
	return out
}

// Retain drops every service not in names and returns the dropped names.
func (t *Tracker) Retain(names []string) []string {
	keep := make(map[string]bool, len(names))
	for _, n := range names {
		keep[n] = true
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	var dropped []string
	for name := range t.entries {
		if !keep[name] {
			delete(t.entries, name)
			dropped = append(dropped, name)
		}
	}
	sort.Strings(dropped)
	return dropped
}

// Seed registers a service in the Unknown state so it shows up before its
// first result.
func (t *Tracker) Seed(name string, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries[name]; ok {
		return
	}
	t.entries[name] = &entry{state: domain.ServiceState{Name: name, Status: domain.StatusUnknown, LastChange: now}}
}
