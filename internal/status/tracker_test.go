package status

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hamed0406/watchdog/internal/domain"
)

var t0 = time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)

func result(service string, i int, o domain.Outcome) domain.CheckResult {
	return domain.CheckResult{Service: service, Timestamp: t0.Add(time.Duration(i) * 30 * time.Second), Outcome: o, Message: o.String()}
}

func TestTracker_CriticalAfterThreeScenario(t *testing.T) {
	tr := NewTracker(10)
	seq := []domain.Outcome{domain.OutcomeHealthy, domain.OutcomeUnhealthy, domain.OutcomeUnhealthy, domain.OutcomeUnhealthy}
	want := []struct {
		status domain.Status
		cf     int
	}{
		{domain.StatusHealthy, 0},
		{domain.StatusHealthy, 1},
		{domain.StatusDegraded, 2},
		{domain.StatusCritical, 3},
	}
	var changes []domain.StatusChange
	for i, o := range seq {
		st, ch, err := tr.Apply(3, result("db", i, o), false)
		require.NoError(t, err)
		require.Equal(t, want[i].status, st.Status, "step %d", i)
		require.Equal(t, want[i].cf, st.ConsecutiveFailures, "step %d", i)
		if ch != nil {
			changes = append(changes, *ch)
		}
	}
	require.Len(t, changes, 3)
	require.Equal(t, domain.StatusUnknown, changes[0].Previous)
	require.Equal(t, domain.StatusHealthy, changes[1].Previous)
	require.Equal(t, domain.StatusDegraded, changes[1].Current)
	require.Equal(t, domain.StatusCritical, changes[2].Current)
	require.Equal(t, 3, changes[2].ConsecutiveFailures)
}

func TestTracker_CriticalExactlyOnNth(t *testing.T) {
	for n := 1; n <= 6; n++ {
		tr := NewTracker(10)
		svc := fmt.Sprintf("svc-%d", n)
		for i := 1; i <= n; i++ {
			st, _, err := tr.Apply(n, result(svc, i, domain.OutcomeUnhealthy), false)
			require.NoError(t, err)
			if i < n {
				require.NotEqual(t, domain.StatusCritical, st.Status, "n=%d i=%d", n, i)
			} else {
				require.Equal(t, domain.StatusCritical, st.Status, "n=%d", n)
			}
		}
	}
}

func TestTracker_HealthyResetsStreak(t *testing.T) {
	tr := NewTracker(10)
	for i := 0; i < 20; i++ {
		_, _, err := tr.Apply(3, result("web", i, domain.OutcomeDegraded), false)
		require.NoError(t, err)
	}
	st, ch, err := tr.Apply(3, result("web", 20, domain.OutcomeHealthy), false)
	require.NoError(t, err)
	require.Equal(t, domain.StatusHealthy, st.Status)
	require.Zero(t, st.ConsecutiveFailures)
	require.NotNil(t, ch)
	require.Equal(t, domain.StatusCritical, ch.Previous)
}

func TestTracker_FirstFailureFromUnknownIsDegraded(t *testing.T) {
	tr := NewTracker(10)
	st, ch, err := tr.Apply(3, result("web", 0, domain.OutcomeUnhealthy), false)
	require.NoError(t, err)
	require.Equal(t, domain.StatusDegraded, st.Status)
	require.NotNil(t, ch)
}

func TestTracker_NoEventWhenUnchangedButResultRefreshed(t *testing.T) {
	tr := NewTracker(10)
	_, _, _ = tr.Apply(3, result("web", 0, domain.OutcomeHealthy), false)
	r := result("web", 1, domain.OutcomeHealthy)
	st, ch, err := tr.Apply(3, r, true)
	require.NoError(t, err)
	require.Nil(t, ch)
	require.Equal(t, r.Timestamp, st.LastResult.Timestamp)
	require.True(t, st.Suppressed)
	require.Equal(t, t0, st.LastChange)
}

func TestTracker_RejectsStaleResult(t *testing.T) {
	tr := NewTracker(10)
	_, _, _ = tr.Apply(3, result("web", 5, domain.OutcomeHealthy), false)
	_, ch, err := tr.Apply(3, result("web", 4, domain.OutcomeUnhealthy), false)
	require.ErrorIs(t, err, ErrStaleResult)
	require.Nil(t, ch)
	st, _ := tr.Get("web")
	require.Zero(t, st.ConsecutiveFailures)
}

func TestTracker_HistoryIsBoundedNewestFirst(t *testing.T) {
	tr := NewTracker(3)
	for i := 0; i < 5; i++ {
		_, _, _ = tr.Apply(3, result("web", i, domain.OutcomeHealthy), false)
	}
	h := tr.History("web", 0)
	require.Len(t, h, 3)
	require.Equal(t, result("web", 4, domain.OutcomeHealthy).Timestamp, h[0].Timestamp)
	require.Equal(t, result("web", 2, domain.OutcomeHealthy).Timestamp, h[2].Timestamp)
	require.Len(t, tr.History("web", 2), 2)
	require.Nil(t, tr.History("nope", 2))
}

func TestTracker_RetainSnapshotCounts(t *testing.T) {
	tr := NewTracker(3)
	tr.Seed("c", t0)
	_, _, _ = tr.Apply(1, result("a", 0, domain.OutcomeUnhealthy), false)
	_, _, _ = tr.Apply(1, result("b", 0, domain.OutcomeHealthy), false)

	snap := tr.Snapshot()
	require.Equal(t, []string{"a", "b", "c"}, []string{snap[0].Name, snap[1].Name, snap[2].Name})
	counts := tr.Counts()
	require.Equal(t, 1, counts[domain.StatusCritical])
	require.Equal(t, 1, counts[domain.StatusUnknown])

	require.Equal(t, []string{"c"}, tr.Retain([]string{"a", "b"}))
	_, ok := tr.Get("c")
	require.False(t, ok)
}
