package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hamed0406/watchdog/internal/domain"
	"github.com/hamed0406/watchdog/internal/notify"
)

// statusEvent turns a transition into a notification. The first result of a
// service (Unknown to Healthy) is not worth a message.
func statusEvent(def domain.ServiceDefinition, ch domain.StatusChange, r domain.CheckResult) (notify.Event, bool) {
	var (
		title string
		kind  = notify.KindStatusChanged
		sev   notify.Severity
	)
	switch ch.Current {
	case domain.StatusCritical:
		title, sev = "🔴 Service CRITICAL", notify.SeverityCritical
	case domain.StatusDegraded:
		title, sev = "🟠 Service DEGRADED", notify.SeverityWarning
	case domain.StatusHealthy:
		if ch.Previous == domain.StatusUnknown {
			return notify.Event{}, false
		}
		title, sev, kind = "🟢 Service RECOVERED", notify.SeverityInfo, notify.KindRecovered
	default:
		return notify.Event{}, false
	}

	text := fmt.Sprintf(
		"Service: %s\nType: %s\nStatus: %s -> %s\nFailures: %d\nLatency: %s\nReason: %s\nChecked: %s",
		def.Name, def.Type, ch.Previous, ch.Current, ch.ConsecutiveFailures,
		latencyText(r.Latency), reasonText(r.Message), ch.Timestamp.Format(time.RFC3339),
	)
	return notify.Event{
		ID:        uuid.NewString(),
		Service:   def.Name,
		Kind:      kind,
		Severity:  sev,
		Title:     title + ": " + def.Name,
		Text:      text,
		Timestamp: ch.Timestamp,
	}, true
}

func escalationEvent(e domain.EscalationEvent) notify.Event {
	level := fmt.Sprintf("level %d", e.Level)
	if e.LevelName != "" {
		level += " (" + e.LevelName + ")"
	}
	text := fmt.Sprintf("Service: %s\nEscalated to %s\nSince: %s",
		e.Service, level, e.Timestamp.Format(time.RFC3339))
	return notify.Event{
		ID:         e.ID,
		Service:    e.Service,
		Kind:       notify.KindEscalated,
		Severity:   notify.SeverityCritical,
		Title:      "🚨 Escalation " + level + ": " + e.Service,
		Text:       text,
		Level:      e.Level,
		Recipients: e.Recipients,
		Channels:   e.Channels,
		Timestamp:  e.Timestamp,
	}
}

func recoveryEvent(e domain.RecoveryEvent) notify.Event {
	sev := notify.SeverityInfo
	icon := "🔧"
	if e.Outcome == domain.RecoveryFailed {
		sev, icon = notify.SeverityWarning, "⚠️"
	}
	return notify.Event{
		ID:       uuid.NewString(),
		Service:  e.Service,
		Kind:     notify.KindRecoveryAttempt,
		Severity: sev,
		Title:    fmt.Sprintf("%s Recovery %s: %s", icon, e.Outcome, e.Service),
		Text: fmt.Sprintf("Service: %s\nAction: %s\nOutcome: %s\nOutput: %s\nAttempt: %s",
			e.Service, e.Action, e.Outcome, reasonText(e.Message), e.AttemptID),
		Timestamp: e.Timestamp,
	}
}

func latencyText(d time.Duration) string {
	if d <= 0 {
		return "n/a"
	}
	return fmt.Sprintf("%.0f ms", float64(d)/float64(time.Millisecond))
}

func reasonText(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "n/a"
	}
	return s
}
