package probe

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/hamed0406/watchdog/internal/domain"
	"github.com/hamed0406/watchdog/internal/procexec"
)

// ScriptChecker runs an external command. Exit 0 is healthy, exit codes in
// degraded (default 1) are degraded, anything else is unhealthy. The first
// line of output becomes the result message.
type ScriptChecker struct {
	name     string
	proc     procexec.Cmd
	degraded []int
}

func NewScriptChecker(def domain.ServiceDefinition) *ScriptChecker {
	deg := def.Probe.DegradedExitCodes
	if deg == nil {
		deg = []int{1}
	}
	return &ScriptChecker{
		name: def.Name,
		proc: procexec.Cmd{
			Command:   def.Probe.Command,
			Args:      def.Probe.Args,
			Env:       def.Probe.Env,
			Dir:       def.Probe.WorkDir,
			MaxOutput: def.Probe.MaxOutputBytes,
		},
		degraded: deg,
	}
}

func (s *ScriptChecker) Check(ctx context.Context) domain.CheckResult {
	start := time.Now()
	res, err := procexec.Run(ctx, s.proc)
	if err != nil {
		return failure(s.name, start, err)
	}
	details := map[string]any{"exit_code": res.ExitCode}
	if res.Truncated {
		details["truncated"] = true
	}
	msg := firstLine(res.Output())

	switch {
	case res.ExitCode == 0:
		if msg == "" {
			msg = "ok"
		}
		return withDetails(healthy(s.name, start, msg), details)
	case slices.Contains(s.degraded, res.ExitCode):
		if msg == "" {
			msg = fmt.Sprintf("exit status %d", res.ExitCode)
		}
		return withDetails(degraded(s.name, start, msg), details)
	}
	if msg == "" {
		msg = fmt.Sprintf("exit status %d", res.ExitCode)
	}
	return withDetails(newResult(s.name, start, domain.OutcomeUnhealthy, msg), details)
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	return s
}
