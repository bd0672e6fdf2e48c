package recovery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/hamed0406/watchdog/internal/domain"
	"github.com/hamed0406/watchdog/internal/procexec"
)

// ServiceController restarts a managed service (systemd unit, container,
// windows service). It is the process control facility behind the
// restart-service action.
type ServiceController interface {
	Restart(ctx context.Context, unit string) error
}

// SystemctlController restarts systemd units.
type SystemctlController struct {
	Command string // defaults to systemctl
}

func (s SystemctlController) Restart(ctx context.Context, unit string) error {
	cmd := s.Command
	if cmd == "" {
		cmd = "systemctl"
	}
	res, err := procexec.Run(ctx, procexec.Cmd{Command: cmd, Args: []string{"restart", unit}})
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("%s restart %s: exit %d: %s", cmd, unit, res.ExitCode, strings.TrimSpace(res.Output()))
	}
	return nil
}

// Runner executes a single remediation action.
type Runner interface {
	Execute(ctx context.Context, service string, a domain.RecoveryAction) (string, error)
}

// Executor is the default Runner.
type Executor struct {
	Controller   ServiceController
	Client       *http.Client
	RetryBackoff time.Duration
}

func NewExecutor(ctrl ServiceController) *Executor {
	if ctrl == nil {
		ctrl = SystemctlController{}
	}
	return &Executor{Controller: ctrl, Client: &http.Client{}, RetryBackoff: time.Second}
}

// Execute runs a and returns a short description of what happened. Every
// failure wraps domain.ErrActionFailed.
func (e *Executor) Execute(ctx context.Context, service string, a domain.RecoveryAction) (string, error) {
	var (
		msg string
		err error
	)
	switch a.Type {
	case domain.ActionRestartService:
		err = e.Controller.Restart(ctx, a.Target)
		msg = "restarted " + a.Target
	case domain.ActionRunScript:
		msg, err = e.command(ctx, procexec.Cmd{Command: a.Command, Args: a.Args})
	case domain.ActionRunCommand:
		line := strings.TrimSpace(a.Command + " " + strings.Join(a.Args, " "))
		msg, err = e.command(ctx, procexec.Cmd{Command: "sh", Args: []string{"-c", line}})
	case domain.ActionHTTP:
		msg, err = e.callHTTP(ctx, a)
	case domain.ActionNotifyOnly:
		msg = fmt.Sprintf("operators notified about %s", service)
	default:
		err = fmt.Errorf("unknown action type %q", a.Type)
	}
	if err != nil {
		return msg, fmt.Errorf("%w: %s: %w", domain.ErrActionFailed, a.Label(), err)
	}
	return msg, nil
}

func (e *Executor) command(ctx context.Context, c procexec.Cmd) (string, error) {
	res, err := procexec.Run(ctx, c)
	if err != nil {
		return "", err
	}
	out := strings.TrimSpace(res.Output())
	if res.ExitCode != 0 {
		return out, fmt.Errorf("exit status %d: %s", res.ExitCode, out)
	}
	return out, nil
}

// callHTTP retries 5xx answers and transport errors with exponential
// backoff. 4xx answers are final.
func (e *Executor) callHTTP(ctx context.Context, a domain.RecoveryAction) (string, error) {
	method := a.Method
	if method == "" {
		method = http.MethodPost
	}
	op := func() (string, error) {
		var body io.Reader
		if a.Body != "" {
			body = strings.NewReader(a.Body)
		}
		req, err := http.NewRequestWithContext(ctx, method, a.URL, body)
		if err != nil {
			return "", backoff.Permanent(err)
		}
		for k, v := range a.Headers {
			req.Header.Set(k, v)
		}
		resp, err := e.Client.Do(req)
		if err != nil {
			return "", err
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		switch {
		case resp.StatusCode >= 500:
			return "", fmt.Errorf("%s %s: %s", method, a.URL, resp.Status)
		case resp.StatusCode >= 300:
			return "", backoff.Permanent(fmt.Errorf("%s %s: %s", method, a.URL, resp.Status))
		}
		return fmt.Sprintf("%s %s: %s", method, a.URL, resp.Status), nil
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = e.RetryBackoff
	msg, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(exp),
		backoff.WithMaxTries(uint(max(a.Retries, 0)+1)),
	)
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		err = perm.Err
	}
	return msg, err
}
