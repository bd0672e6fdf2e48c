// Package notify delivers watchdog events to operator channels.
package notify

import (
	"context"
	"time"
)

type Kind string

const (
	KindStatusChanged   Kind = "status_changed"
	KindEscalated       Kind = "escalated"
	KindRecovered       Kind = "recovered"
	KindRecoveryAttempt Kind = "recovery_attempt"
)

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Event is one notification candidate. Channels, when set, restricts the
// event to those channel names. Level is set for escalations.
type Event struct {
	ID         string    `json:"id"`
	Service    string    `json:"service"`
	Kind       Kind      `json:"kind"`
	Severity   Severity  `json:"severity"`
	Title      string    `json:"title"`
	Text       string    `json:"text"`
	Level      int       `json:"level,omitempty"`
	Recipients []string  `json:"recipients,omitempty"`
	Channels   []string  `json:"-"`
	Timestamp  time.Time `json:"timestamp"`
}

// Notifier is a channel specific sender.
type Notifier interface {
	Send(ctx context.Context, ev Event) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, ev Event) error

func (f NotifierFunc) Send(ctx context.Context, ev Event) error { return f(ctx, ev) }
