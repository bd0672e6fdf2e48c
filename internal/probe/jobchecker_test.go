package probe

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hamed0406/watchdog/internal/domain"
)

func TestJobChecker_HeartbeatAge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backup.heartbeat")
	require.NoError(t, os.WriteFile(path, nil, 0o644))
	ran := time.Date(2024, 3, 1, 2, 0, 0, 0, time.UTC)
	require.NoError(t, os.Chtimes(path, ran, ran))

	def := domain.ServiceDefinition{Name: "backup", Type: domain.TypeJob, Probe: domain.ProbeParams{
		HeartbeatFile: path, WarnAge: 25 * time.Hour, MaxAge: 49 * time.Hour,
	}}
	j, err := NewJobChecker(def)
	require.NoError(t, err)

	cases := []struct {
		after time.Duration
		want  domain.Outcome
	}{
		{time.Hour, domain.OutcomeHealthy},
		{26 * time.Hour, domain.OutcomeDegraded},
		{50 * time.Hour, domain.OutcomeUnhealthy},
	}
	for _, tc := range cases {
		now := ran.Add(tc.after)
		j.Now = func() time.Time { return now }
		out := j.Check(context.Background())
		require.Equal(t, tc.want, out.Outcome, tc.after.String())
	}
}

func TestJobChecker_MissingHeartbeat(t *testing.T) {
	def := domain.ServiceDefinition{Name: "backup", Probe: domain.ProbeParams{HeartbeatFile: filepath.Join(t.TempDir(), "none")}}
	j, err := NewJobChecker(def)
	require.NoError(t, err)
	out := j.Check(context.Background())
	require.Equal(t, domain.OutcomeUnhealthy, out.Outcome)
	require.Contains(t, out.Message, "never reported")
}

func TestJobChecker_NeedsSource(t *testing.T) {
	_, err := NewJobChecker(domain.ServiceDefinition{Name: "x"})
	require.ErrorIs(t, err, domain.ErrConfigInvalid)
}
