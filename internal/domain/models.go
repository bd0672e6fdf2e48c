package domain

import "time"

type ServiceType string

const (
	TypeHTTP     ServiceType = "http"
	TypeTCP      ServiceType = "tcp"
	TypePing     ServiceType = "ping"
	TypeDatabase ServiceType = "database"
	TypeBroker   ServiceType = "broker"
	TypeSearch   ServiceType = "search"
	TypeScript   ServiceType = "script"
	TypeJob      ServiceType = "job"
	TypeGRPC     ServiceType = "grpc"
	TypeDNS      ServiceType = "dns"
)

const (
	DefaultTimeout               = 10 * time.Second
	DefaultCriticalAfterFailures = 3
)

// ServiceDefinition is one entry of the service catalogue. Values are never
// mutated after a snapshot is built; a reload produces new definitions.
type ServiceDefinition struct {
	Name                  string      `yaml:"name" json:"name"`
	Type                  ServiceType `yaml:"type" json:"type"`
	Enabled               bool        `yaml:"enabled" json:"enabled"`
	Prioritized           bool        `yaml:"prioritized" json:"prioritized"`
	TimeoutSeconds        int         `yaml:"timeout_seconds" json:"timeout_seconds"`
	CriticalAfterFailures int         `yaml:"critical_after_failures" json:"critical_after_failures"`
	Retries               int         `yaml:"retries" json:"retries,omitempty"`
	Tags                  []string    `yaml:"tags" json:"tags,omitempty"`

	Probe    ProbeParams     `yaml:",inline" json:"probe"`
	Recovery *RecoveryPolicy `yaml:"recovery" json:"recovery,omitempty"`
}

// Timeout is the per-check deadline.
func (d ServiceDefinition) Timeout() time.Duration {
	if d.TimeoutSeconds <= 0 {
		return DefaultTimeout
	}
	return time.Duration(d.TimeoutSeconds) * time.Second
}

// Threshold returns criticalAfterFailures, never below 1.
func (d ServiceDefinition) Threshold() int {
	if d.CriticalAfterFailures < 1 {
		return 1
	}
	return d.CriticalAfterFailures
}

// ProbeParams carries the protocol specific settings. Which fields matter
// depends on the service type.
type ProbeParams struct {
	// http, search
	URL               string            `yaml:"url" json:"url,omitempty"`
	Method            string            `yaml:"method" json:"method,omitempty"`
	Headers           map[string]string `yaml:"headers" json:"-"`
	ExpectedStatus    []int             `yaml:"expected_status" json:"expected_status,omitempty"`
	ExpectBody        string            `yaml:"expect_body" json:"expect_body,omitempty"`
	DegradedLatencyMS int               `yaml:"degraded_latency_ms" json:"degraded_latency_ms,omitempty"`

	// tcp, ping, grpc, dns
	Host        string `yaml:"host" json:"host,omitempty"`
	Port        int    `yaml:"port" json:"port,omitempty"`
	Send        string `yaml:"send" json:"send,omitempty"`
	Expect      string `yaml:"expect" json:"expect,omitempty"`
	Count       int    `yaml:"count" json:"count,omitempty"`
	Privileged  bool   `yaml:"privileged" json:"privileged,omitempty"`
	GRPCService string `yaml:"grpc_service" json:"grpc_service,omitempty"`

	// database, broker, job
	Driver string `yaml:"driver" json:"driver,omitempty"`
	DSN    string `yaml:"dsn" json:"-"`
	Query  string `yaml:"query" json:"query,omitempty"`

	// script
	Command           string            `yaml:"command" json:"command,omitempty"`
	Args              []string          `yaml:"args" json:"args,omitempty"`
	Env               map[string]string `yaml:"env" json:"-"`
	WorkDir           string            `yaml:"work_dir" json:"work_dir,omitempty"`
	DegradedExitCodes []int             `yaml:"degraded_exit_codes" json:"degraded_exit_codes,omitempty"`
	MaxOutputBytes    int               `yaml:"max_output_bytes" json:"max_output_bytes,omitempty"`

	// job
	HeartbeatFile string        `yaml:"heartbeat_file" json:"heartbeat_file,omitempty"`
	MaxAge        time.Duration `yaml:"max_age" json:"max_age,omitempty"`
	WarnAge       time.Duration `yaml:"warn_age" json:"warn_age,omitempty"`
}

type ActionType string

const (
	ActionRestartService ActionType = "restart-service"
	ActionRunScript      ActionType = "run-script"
	ActionRunCommand     ActionType = "run-command"
	ActionHTTP           ActionType = "http"
	ActionNotifyOnly     ActionType = "notify-only"
)

// RecoveryPolicy configures automated remediation for one service.
type RecoveryPolicy struct {
	Enabled                bool             `yaml:"enabled" json:"enabled"`
	FailuresBeforeRecovery int              `yaml:"failures_before_recovery" json:"failures_before_recovery"`
	CooldownMinutes        int              `yaml:"cooldown_minutes" json:"cooldown_minutes"`
	MaxAttemptsPerHour     int              `yaml:"max_attempts_per_hour" json:"max_attempts_per_hour"`
	Actions                []RecoveryAction `yaml:"actions" json:"actions"`
}

type RecoveryAction struct {
	Type              ActionType        `yaml:"type" json:"type"`
	Target            string            `yaml:"target" json:"target,omitempty"`
	Command           string            `yaml:"command" json:"command,omitempty"`
	Args              []string          `yaml:"args" json:"args,omitempty"`
	URL               string            `yaml:"url" json:"url,omitempty"`
	Method            string            `yaml:"method" json:"method,omitempty"`
	Headers           map[string]string `yaml:"headers" json:"-"`
	Body              string            `yaml:"body" json:"-"`
	Retries           int               `yaml:"retries" json:"retries,omitempty"`
	TimeoutSeconds    int               `yaml:"timeout_seconds" json:"timeout_seconds"`
	DelaySeconds      int               `yaml:"delay_seconds" json:"delay_seconds,omitempty"`
	ContinueOnFailure bool              `yaml:"continue_on_failure" json:"continue_on_failure"`
}

func (a RecoveryAction) Timeout() time.Duration {
	if a.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(a.TimeoutSeconds) * time.Second
}

// Label is a short human readable name for logs and events.
func (a RecoveryAction) Label() string {
	switch {
	case a.Target != "":
		return string(a.Type) + ":" + a.Target
	case a.Command != "":
		return string(a.Type) + ":" + a.Command
	case a.URL != "":
		return string(a.Type) + ":" + a.URL
	}
	return string(a.Type)
}
