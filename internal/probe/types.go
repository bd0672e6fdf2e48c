package probe

import (
	"context"
	"time"

	"github.com/hamed0406/watchdog/internal/domain"
)

// Checker is implemented by every service probe. Check must always return a
// result: faults are folded into an Unhealthy or Degraded outcome, never
// returned or panicked. The context carries the per-check deadline.
type Checker interface {
	Check(ctx context.Context) domain.CheckResult
}

// Func adapts a plain function to Checker.
type Func func(ctx context.Context) domain.CheckResult

func (f Func) Check(ctx context.Context) domain.CheckResult { return f(ctx) }

func newResult(service string, start time.Time, outcome domain.Outcome, msg string) domain.CheckResult {
	return domain.CheckResult{
		Service:   service,
		Timestamp: time.Now(),
		Outcome:   outcome,
		Latency:   time.Since(start),
		Message:   msg,
	}
}

func healthy(service string, start time.Time, msg string) domain.CheckResult {
	return newResult(service, start, domain.OutcomeHealthy, msg)
}

func degraded(service string, start time.Time, msg string) domain.CheckResult {
	return newResult(service, start, domain.OutcomeDegraded, msg)
}

// failure classifies err and folds it into an Unhealthy result.
func failure(service string, start time.Time, err error) domain.CheckResult {
	kind, classified := Classify(err)
	r := newResult(service, start, domain.OutcomeUnhealthy, classified.Error())
	r.Details = map[string]any{"error_kind": kind}
	return r
}

func withDetails(r domain.CheckResult, kv map[string]any) domain.CheckResult {
	if r.Details == nil {
		r.Details = make(map[string]any, len(kv))
	}
	for k, v := range kv {
		r.Details[k] = v
	}
	return r
}

// Failed builds the Unhealthy result for a fault raised around a checker
// rather than inside it, such as an overrun deadline.
func Failed(service string, start time.Time, err error) domain.CheckResult {
	return failure(service, start, err)
}
