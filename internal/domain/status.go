package domain

import (
	"fmt"
	"strings"
)

// Outcome is the classification of a single probe.
type Outcome int

const (
	OutcomeHealthy Outcome = iota
	OutcomeDegraded
	OutcomeUnhealthy
)

func (o Outcome) String() string {
	switch o {
	case OutcomeHealthy:
		return "healthy"
	case OutcomeDegraded:
		return "degraded"
	case OutcomeUnhealthy:
		return "unhealthy"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

func (o Outcome) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

func (o *Outcome) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "healthy":
		*o = OutcomeHealthy
	case "degraded":
		*o = OutcomeDegraded
	case "unhealthy":
		*o = OutcomeUnhealthy
	default:
		return fmt.Errorf("unknown outcome %q", string(b))
	}
	return nil
}

// Status is the health state the tracker derives from a stream of outcomes.
type Status int

const (
	StatusUnknown Status = iota
	StatusHealthy
	StatusDegraded
	StatusCritical
)

func (s Status) String() string {
	switch s {
	case StatusUnknown:
		return "unknown"
	case StatusHealthy:
		return "healthy"
	case StatusDegraded:
		return "degraded"
	case StatusCritical:
		return "critical"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Status) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "unknown":
		*s = StatusUnknown
	case "healthy":
		*s = StatusHealthy
	case "degraded":
		*s = StatusDegraded
	case "critical":
		*s = StatusCritical
	default:
		return fmt.Errorf("unknown status %q", string(b))
	}
	return nil
}

// Code is the tri-state value exported to metrics: 1 healthy, 0 degraded,
// -1 critical. ok is false for Unknown, which has no code.
func (s Status) Code() (code float64, ok bool) {
	switch s {
	case StatusHealthy:
		return 1, true
	case StatusDegraded:
		return 0, true
	case StatusCritical:
		return -1, true
	}
	return 0, false
}
