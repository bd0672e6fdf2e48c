// Package escalation moves critical services through ordered alert levels.
package escalation

import (
	"errors"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hamed0406/watchdog/internal/config"
	"github.com/hamed0406/watchdog/internal/domain"
)

var ErrNoEscalation = errors.New("no escalation for service")

// State is the escalation progress of one service. Level 0 means no level
// has been entered yet. An inactive state is one held after recovery,
// waiting for an acknowledgement.
type State struct {
	Service        string    `json:"service"`
	Level          int       `json:"level"`
	LevelName      string    `json:"level_name,omitempty"`
	OnsetAt        time.Time `json:"onset_at"`
	LevelEnteredAt time.Time `json:"level_entered_at"`
	Acknowledged   bool      `json:"acknowledged"`
	Active         bool      `json:"active"`
}

type Tracker struct {
	mu     sync.Mutex
	cfg    config.Escalation
	states map[string]*State
}

func NewTracker(cfg config.Escalation) *Tracker {
	return &Tracker{cfg: cfg, states: map[string]*State{}}
}

// Configure swaps the escalation policy. Existing states keep their level,
// clamped to the new level count, and take the new level's name.
func (t *Tracker) Configure(cfg config.Escalation) {
	t.mu.Lock()
	t.cfg = cfg
	for _, st := range t.states {
		st.Level = min(st.Level, len(cfg.Levels))
		st.LevelName = ""
		if st.Level > 0 {
			st.LevelName = cfg.Levels[st.Level-1].Name
		}
	}
	t.mu.Unlock()
}

// Update feeds the current status of service at now and returns the levels
// entered by this call. At most one level is entered per call.
func (t *Tracker) Update(service string, status domain.Status, now time.Time) []domain.EscalationEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.cfg.Enabled || len(t.cfg.Levels) == 0 {
		return nil
	}

	st, ok := t.states[service]
	switch status {
	case domain.StatusCritical:
	case domain.StatusHealthy:
		if !ok {
			return nil
		}
		if t.cfg.ResetOnRecovery {
			delete(t.states, service)
		} else {
			st.Active = false
		}
		return nil
	default:
		return nil
	}

	if !ok {
		st = &State{Service: service, OnsetAt: now, LevelEnteredAt: now, Active: true}
		t.states[service] = st
		return t.advance(st, now)
	}
	if !st.Active {
		// Critical again while held: resume at the held level with a fresh
		// clock and notify that level again.
		st.Active = true
		st.Acknowledged = false
		st.LevelEnteredAt = now
		st.OnsetAt = now
		if st.Level > 0 && !t.cfg.DelayFromPreviousLevel {
			st.OnsetAt = now.Add(-t.delay(st.Level - 1))
		}
		if st.Level == 0 {
			return t.advance(st, now)
		}
		return []domain.EscalationEvent{t.event(st, now)}
	}
	if st.Acknowledged {
		return nil
	}
	return t.advance(st, now)
}

func (t *Tracker) advance(st *State, now time.Time) []domain.EscalationEvent {
	if st.Level >= len(t.cfg.Levels) {
		return nil
	}
	ref := st.OnsetAt
	if t.cfg.DelayFromPreviousLevel && st.Level > 0 {
		ref = st.LevelEnteredAt
	}
	if now.Sub(ref) < t.delay(st.Level) {
		return nil
	}
	st.Level++
	st.LevelName = t.cfg.Levels[st.Level-1].Name
	st.LevelEnteredAt = now
	return []domain.EscalationEvent{t.event(st, now)}
}

// delay is the configured delay of the level at index i.
func (t *Tracker) delay(i int) time.Duration {
	return time.Duration(t.cfg.Levels[i].DelayMinutes) * time.Minute
}

func (t *Tracker) event(st *State, now time.Time) domain.EscalationEvent {
	from := st.Level - 1
	if t.cfg.NotifyAllPreviousLevels {
		from = 0
	}
	var recipients, channels []string
	for _, l := range t.cfg.Levels[from:st.Level] {
		for _, r := range l.Recipients {
			if !slices.Contains(recipients, r) {
				recipients = append(recipients, r)
			}
		}
		for _, c := range l.Channels {
			if !slices.Contains(channels, c) {
				channels = append(channels, c)
			}
		}
	}
	return domain.EscalationEvent{
		ID:         uuid.NewString(),
		Service:    st.Service,
		Level:      st.Level,
		LevelName:  st.LevelName,
		Recipients: recipients,
		Channels:   channels,
		Timestamp:  now,
	}
}

// Acknowledge stops further notifications for an active escalation without
// touching its level. A held escalation is cleared.
func (t *Tracker) Acknowledge(service string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.states[service]
	if !ok {
		return ErrNoEscalation
	}
	if !st.Active {
		delete(t.states, service)
		return nil
	}
	st.Acknowledged = true
	return nil
}

func (t *Tracker) Get(service string) (State, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.states[service]
	if !ok {
		return State{}, false
	}
	return *st, true
}

// Snapshot returns copies of every escalation, sorted by service.
func (t *Tracker) Snapshot() []State {
	t.mu.Lock()
	out := make([]State, 0, len(t.states))
	for _, st := range t.states {
		out = append(out, *st)
	}
	t.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Service < out[j].Service })
	return out
}

// Retain drops escalations of services not in names.
func (t *Tracker) Retain(names []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for name := range t.states {
		if !slices.Contains(names, name) {
			delete(t.states, name)
		}
	}
}
