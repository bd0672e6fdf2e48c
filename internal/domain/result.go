package domain

import "time"

// CheckResult is produced once per probe and never modified afterwards.
type CheckResult struct {
	Service   string         `json:"service"`
	Timestamp time.Time      `json:"timestamp"`
	Outcome   Outcome        `json:"outcome"`
	Latency   time.Duration  `json:"latency_ns"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
}

func (r CheckResult) Healthy() bool { return r.Outcome == OutcomeHealthy }

// ServiceState is the tracker's view of one service.
type ServiceState struct {
	Name                string      `json:"name"`
	Status              Status      `json:"status"`
	ConsecutiveFailures int         `json:"consecutive_failures"`
	LastChange          time.Time   `json:"last_change"`
	LastResult          CheckResult `json:"last_result"`
	Suppressed          bool        `json:"suppressed"`
}

// StatusChange is emitted on every status transition.
type StatusChange struct {
	Service             string    `json:"service"`
	Previous            Status    `json:"previous_status"`
	Current             Status    `json:"new_status"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	Timestamp           time.Time `json:"timestamp"`
	Message             string    `json:"message,omitempty"`
}

// EscalationEvent is emitted when a service enters an escalation level.
type EscalationEvent struct {
	ID         string    `json:"id"`
	Service    string    `json:"service"`
	Level      int       `json:"level"`
	LevelName  string    `json:"level_name,omitempty"`
	Recipients []string  `json:"recipients"`
	Channels   []string  `json:"channels,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

type RecoveryOutcome string

const (
	RecoverySucceeded RecoveryOutcome = "succeeded"
	RecoveryFailed    RecoveryOutcome = "failed"
	RecoverySkipped   RecoveryOutcome = "skipped"
)

// RecoveryEvent reports the outcome of one remediation action.
type RecoveryEvent struct {
	AttemptID string          `json:"attempt_id"`
	Service   string          `json:"service"`
	Action    string          `json:"action"`
	Outcome   RecoveryOutcome `json:"outcome"`
	Message   string          `json:"message,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}
