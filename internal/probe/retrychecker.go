package probe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/hamed0406/watchdog/internal/domain"
)

var errStillUnhealthy = errors.New("still unhealthy")

// RetryChecker re-runs Inner while it reports Unhealthy, up to Attempts
// times in total, within the caller's deadline. Degraded results are
// returned as is.
type RetryChecker struct {
	Inner    Checker
	Attempts int
	Backoff  time.Duration
}

func (r *RetryChecker) Check(ctx context.Context) domain.CheckResult {
	attempts := r.Attempts
	if attempts < 1 {
		attempts = 1
	}
	var (
		last domain.CheckResult
		runs int
	)
	op := func() (struct{}, error) {
		runs++
		last = r.Inner.Check(ctx)
		if last.Outcome == domain.OutcomeUnhealthy {
			return struct{}{}, errStillUnhealthy
		}
		return struct{}{}, nil
	}
	_, _ = backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewConstantBackOff(r.Backoff)),
		backoff.WithMaxTries(uint(attempts)),
	)
	if runs > 1 && last.Outcome == domain.OutcomeUnhealthy {
		last.Message = fmt.Sprintf("%s (after %d attempts)", last.Message, runs)
	}
	return last
}
