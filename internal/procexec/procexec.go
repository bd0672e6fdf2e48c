// Package procexec runs child processes with a hard deadline and bounded
// output capture. It backs the script checker and the command based
// recovery actions.
package procexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"
)

const DefaultMaxOutput = 4096

// waitDelay bounds how long Wait blocks on inherited pipes after the child
// was killed.
const waitDelay = 2 * time.Second

type Cmd struct {
	Command   string
	Args      []string
	Env       map[string]string
	Dir       string
	MaxOutput int
}

type Result struct {
	ExitCode  int
	Stdout    string
	Stderr    string
	Truncated bool
	TimedOut  bool
	Duration  time.Duration
}

// Output returns stdout, or stderr when stdout is empty.
func (r Result) Output() string {
	if len(bytes.TrimSpace([]byte(r.Stdout))) > 0 {
		return r.Stdout
	}
	return r.Stderr
}

// Run executes c and waits for it. A non-zero exit is reported through
// Result.ExitCode, not as an error. The returned error is non-nil only when
// the process could not be started or was killed because ctx ended.
func Run(ctx context.Context, c Cmd) (Result, error) {
	max := c.MaxOutput
	if max <= 0 {
		max = DefaultMaxOutput
	}
	stdout := &limitedBuffer{max: max}
	stderr := &limitedBuffer{max: max}

	cmd := exec.CommandContext(ctx, c.Command, c.Args...)
	cmd.Dir = c.Dir
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = waitDelay
	if len(c.Env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range c.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
	}

	start := time.Now()
	err := cmd.Run()
	res := Result{
		ExitCode:  -1,
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		Truncated: stdout.truncated || stderr.truncated,
		Duration:  time.Since(start),
	}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		res.TimedOut = errors.Is(ctxErr, context.DeadlineExceeded)
		return res, ctxErr
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return res, nil
		}
		return res, fmt.Errorf("start %s: %w", c.Command, err)
	}
	return res, nil
}

// limitedBuffer keeps the first max bytes and silently drops the rest so a
// chatty child never blocks on a full pipe.
type limitedBuffer struct {
	mu        sync.Mutex
	buf       bytes.Buffer
	max       int
	truncated bool
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	room := b.max - b.buf.Len()
	if room <= 0 {
		b.truncated = true
		return len(p), nil
	}
	if len(p) > room {
		b.buf.Write(p[:room])
		b.truncated = true
		return len(p), nil
	}
	b.buf.Write(p)
	return len(p), nil
}

func (b *limitedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
