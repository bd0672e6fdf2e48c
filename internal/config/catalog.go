package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hamed0406/watchdog/internal/domain"
)

const (
	DefaultInterval    = 30 * time.Second
	DefaultHistorySize = 50
)

// Catalog is the parsed service catalogue file.
type Catalog struct {
	Watchdog      Engine
	Services      []domain.ServiceDefinition
	Escalation    Escalation
	Maintenance   []MaintenanceWindow
	Notifications Notifications
}

type Engine struct {
	Interval     time.Duration `yaml:"interval"`
	TickDeadline time.Duration `yaml:"tick_deadline"`
	Timezone     string        `yaml:"timezone"`
	HistorySize  int           `yaml:"history_size"`
	// MaxRecoveryAttemptsPerHour caps remediation chains across all
	// services. Zero means no global cap.
	MaxRecoveryAttemptsPerHour int `yaml:"max_recovery_attempts_per_hour"`
}

type Escalation struct {
	Enabled                 bool              `yaml:"enabled"`
	ResetOnRecovery         bool              `yaml:"reset_on_recovery"`
	NotifyAllPreviousLevels bool              `yaml:"notify_all_previous_levels"`
	DelayFromPreviousLevel  bool              `yaml:"delay_from_previous_level"`
	Levels                  []EscalationLevel `yaml:"levels"`
}

type EscalationLevel struct {
	Name         string   `yaml:"name" json:"name"`
	DelayMinutes int      `yaml:"delay_minutes" json:"delay_minutes"`
	Recipients   []string `yaml:"recipients" json:"recipients"`
	Channels     []string `yaml:"channels" json:"channels,omitempty"`
}

type MaintenanceWindow struct {
	Name     string   `yaml:"name"`
	Enabled  bool     `yaml:"enabled"`
	Start    string   `yaml:"start"` // HH:MM local time, inclusive
	End      string   `yaml:"end"`   // HH:MM local time, exclusive
	Days     []string `yaml:"days"`
	Services []string `yaml:"services"`
}

type Notifications struct {
	Channels []Channel
}

type ChannelType string

const (
	ChannelWebhook ChannelType = "webhook"
	ChannelSlack   ChannelType = "slack"
	ChannelEmail   ChannelType = "email"
)

type Channel struct {
	Name            string            `yaml:"name"`
	Type            ChannelType       `yaml:"type"`
	Enabled         bool              `yaml:"enabled"`
	CriticalOnly    bool              `yaml:"critical_only"`
	CooldownMinutes int               `yaml:"cooldown_minutes"`
	URL             string            `yaml:"url"`
	Headers         map[string]string `yaml:"headers"`
	SMTP            SMTP              `yaml:"smtp"`
}

type SMTP struct {
	Host     string   `yaml:"host"`
	Port     int      `yaml:"port"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	From     string   `yaml:"from"`
	To       []string `yaml:"to"`
}

// file mirrors Catalog with entry types that know their own defaults.
type file struct {
	Watchdog      Engine         `yaml:"watchdog"`
	Services      []serviceEntry `yaml:"services"`
	Escalation    Escalation     `yaml:"escalation"`
	Maintenance   []windowEntry  `yaml:"maintenance"`
	Notifications struct {
		Channels []channelEntry `yaml:"channels"`
	} `yaml:"notifications"`
}

type serviceEntry domain.ServiceDefinition

func (e *serviceEntry) UnmarshalYAML(n *yaml.Node) error {
	type plain domain.ServiceDefinition
	p := plain{Enabled: true, CriticalAfterFailures: domain.DefaultCriticalAfterFailures}
	if err := n.Decode(&p); err != nil {
		return err
	}
	*e = serviceEntry(p)
	return nil
}

type windowEntry MaintenanceWindow

func (e *windowEntry) UnmarshalYAML(n *yaml.Node) error {
	type plain MaintenanceWindow
	p := plain{Enabled: true}
	if err := n.Decode(&p); err != nil {
		return err
	}
	*e = windowEntry(p)
	return nil
}

type channelEntry Channel

func (e *channelEntry) UnmarshalYAML(n *yaml.Node) error {
	type plain Channel
	p := plain{Enabled: true}
	if err := n.Decode(&p); err != nil {
		return err
	}
	*e = channelEntry(p)
	return nil
}

// Parse decodes a catalogue document and fills engine defaults. It does not
// validate; call Validate for that.
func Parse(data []byte) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfigInvalid, err)
	}
	c := &Catalog{
		Watchdog:   f.Watchdog,
		Escalation: f.Escalation,
	}
	for _, s := range f.Services {
		c.Services = append(c.Services, domain.ServiceDefinition(s))
	}
	for _, w := range f.Maintenance {
		c.Maintenance = append(c.Maintenance, MaintenanceWindow(w))
	}
	for _, ch := range f.Notifications.Channels {
		c.Notifications.Channels = append(c.Notifications.Channels, Channel(ch))
	}

	if c.Watchdog.Interval <= 0 {
		c.Watchdog.Interval = DefaultInterval
	}
	if c.Watchdog.TickDeadline <= 0 {
		c.Watchdog.TickDeadline = c.Watchdog.Interval
	}
	if c.Watchdog.HistorySize <= 0 {
		c.Watchdog.HistorySize = DefaultHistorySize
	}
	return c, nil
}

// LoadFile reads, parses and validates the catalogue at path.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", domain.ErrConfigInvalid, path, err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if err := Validate(c); err != nil {
		return nil, err
	}
	return c, nil
}

// Location resolves the configured timezone, defaulting to the host zone.
func (c *Catalog) Location() (*time.Location, error) {
	if c.Watchdog.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Watchdog.Timezone)
}

// Service finds a definition by name.
func (c *Catalog) Service(name string) (domain.ServiceDefinition, bool) {
	for _, s := range c.Services {
		if s.Name == name {
			return s, true
		}
	}
	return domain.ServiceDefinition{}, false
}

// ParseClock parses "HH:MM" into an offset from midnight.
func ParseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// ParseWeekday accepts full or three letter English day names.
func ParseWeekday(s string) (time.Weekday, error) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := d.String()
		if strings.EqualFold(s, name) || strings.EqualFold(s, name[:3]) {
			return d, nil
		}
	}
	return 0, fmt.Errorf("invalid day %q", s)
}
