package config

import (
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/hamed0406/watchdog/internal/domain"
)

// Validate reports every problem in the catalogue at once. The returned error
// wraps domain.ErrConfigInvalid.
func Validate(c *Catalog) error {
	var errs error
	add := func(format string, args ...any) {
		errs = multierr.Append(errs, fmt.Errorf(format, args...))
	}

	if _, err := c.Location(); err != nil {
		add("watchdog.timezone: %v", err)
	}
	if c.Watchdog.TickDeadline > c.Watchdog.Interval {
		add("watchdog.tick_deadline %s exceeds interval %s", c.Watchdog.TickDeadline, c.Watchdog.Interval)
	}

	seen := make(map[string]bool, len(c.Services))
	for i, s := range c.Services {
		where := fmt.Sprintf("services[%d]", i)
		if s.Name == "" {
			add("%s: name is required", where)
		} else {
			where = fmt.Sprintf("service %q", s.Name)
			if seen[s.Name] {
				add("%s: duplicate name", where)
			}
			seen[s.Name] = true
		}
		if s.CriticalAfterFailures < 1 {
			add("%s: critical_after_failures must be >= 1", where)
		}
		if s.TimeoutSeconds < 0 {
			add("%s: timeout_seconds must not be negative", where)
		}
		for _, msg := range probeProblems(s) {
			add("%s: %s", where, msg)
		}
		if s.Recovery != nil {
			for _, msg := range recoveryProblems(*s.Recovery) {
				add("%s: recovery: %s", where, msg)
			}
		}
	}

	errs = multierr.Append(errs, validateEscalation(c.Escalation))

	channels := make(map[string]bool, len(c.Notifications.Channels))
	for i, ch := range c.Notifications.Channels {
		where := fmt.Sprintf("notifications.channels[%d]", i)
		if ch.Name == "" {
			add("%s: name is required", where)
		} else if channels[ch.Name] {
			add("%s: duplicate name %q", where, ch.Name)
		}
		channels[ch.Name] = true
		if ch.CooldownMinutes < 0 {
			add("%s: cooldown_minutes must not be negative", where)
		}
		switch ch.Type {
		case ChannelWebhook, ChannelSlack:
			if ch.URL == "" {
				add("%s: url is required for %s", where, ch.Type)
			}
		case ChannelEmail:
			if ch.SMTP.Host == "" || ch.SMTP.From == "" || len(ch.SMTP.To) == 0 {
				add("%s: smtp host, from and to are required", where)
			}
		default:
			add("%s: unknown channel type %q", where, ch.Type)
		}
	}
	for _, lvl := range c.Escalation.Levels {
		for _, name := range lvl.Channels {
			if !channels[name] {
				add("escalation level %q: unknown channel %q", lvl.Name, name)
			}
		}
	}

	for i, w := range c.Maintenance {
		where := fmt.Sprintf("maintenance[%d]", i)
		if w.Name != "" {
			where = fmt.Sprintf("maintenance %q", w.Name)
		}
		if _, err := ParseClock(w.Start); err != nil {
			add("%s: start: %v", where, err)
		}
		if _, err := ParseClock(w.End); err != nil {
			add("%s: end: %v", where, err)
		}
		for _, d := range w.Days {
			if _, err := ParseWeekday(d); err != nil {
				add("%s: %v", where, err)
			}
		}
		for _, name := range w.Services {
			if !seen[name] {
				add("%s: unknown service %q", where, name)
			}
		}
	}

	if errs != nil {
		return fmt.Errorf("%w: %w", domain.ErrConfigInvalid, errs)
	}
	return nil
}

func validateEscalation(e Escalation) error {
	if !e.Enabled {
		return nil
	}
	if len(e.Levels) == 0 {
		return fmt.Errorf("escalation: enabled without levels")
	}
	var errs error
	prev := -1
	for i, l := range e.Levels {
		if l.DelayMinutes < 0 {
			errs = multierr.Append(errs, fmt.Errorf("escalation level %d: negative delay", i+1))
		}
		if !e.DelayFromPreviousLevel && l.DelayMinutes < prev {
			errs = multierr.Append(errs, fmt.Errorf("escalation level %d: delay %dm is lower than level %d", i+1, l.DelayMinutes, i))
		}
		prev = l.DelayMinutes
	}
	return errs
}

func probeProblems(s domain.ServiceDefinition) []string {
	p := s.Probe
	var out []string
	need := func(ok bool, msg string) {
		if !ok {
			out = append(out, msg)
		}
	}
	switch s.Type {
	case domain.TypeHTTP, domain.TypeSearch:
		need(p.URL != "", "url is required")
	case domain.TypeTCP, domain.TypeGRPC:
		need(p.Host != "", "host is required")
		need(p.Port > 0 && p.Port < 65536, "port must be 1-65535")
	case domain.TypePing, domain.TypeDNS:
		need(p.Host != "", "host is required")
	case domain.TypeDatabase:
		need(p.Driver == "postgres" || p.Driver == "redis", "driver must be postgres or redis")
		need(p.DSN != "", "dsn is required")
	case domain.TypeBroker:
		need(p.Driver == "rabbitmq" || p.Driver == "redis", "driver must be rabbitmq or redis")
		need(p.DSN != "", "dsn is required")
	case domain.TypeScript:
		need(p.Command != "", "command is required")
	case domain.TypeJob:
		need(p.HeartbeatFile != "" || (p.Query != "" && p.DSN != ""), "heartbeat_file or query+dsn is required")
		need(p.MaxAge > 0, "max_age is required")
		need(p.WarnAge == 0 || p.WarnAge < p.MaxAge, "warn_age must be below max_age")
	default:
		out = append(out, fmt.Sprintf("%v %q", domain.ErrUnknownServiceType, s.Type))
	}
	return out
}

func recoveryProblems(r domain.RecoveryPolicy) []string {
	var out []string
	if r.Enabled && len(r.Actions) == 0 {
		out = append(out, "enabled without actions")
	}
	if r.CooldownMinutes < 0 || r.MaxAttemptsPerHour < 0 || r.FailuresBeforeRecovery < 0 {
		out = append(out, "negative limits")
	}
	for i, a := range r.Actions {
		switch a.Type {
		case domain.ActionRestartService:
			if a.Target == "" {
				out = append(out, fmt.Sprintf("action %d: target is required", i+1))
			}
		case domain.ActionRunScript, domain.ActionRunCommand:
			if a.Command == "" {
				out = append(out, fmt.Sprintf("action %d: command is required", i+1))
			}
		case domain.ActionHTTP:
			if a.URL == "" {
				out = append(out, fmt.Sprintf("action %d: url is required", i+1))
			}
		case domain.ActionNotifyOnly:
		default:
			out = append(out, fmt.Sprintf("action %d: unknown type %q", i+1, a.Type))
		}
		if a.DelaySeconds < 0 || a.TimeoutSeconds < 0 {
			out = append(out, fmt.Sprintf("action %d: negative timing", i+1))
		}
	}
	return out
}

// Cooldown converts CooldownMinutes to a duration.
func (ch Channel) Cooldown() time.Duration {
	return time.Duration(ch.CooldownMinutes) * time.Minute
}
