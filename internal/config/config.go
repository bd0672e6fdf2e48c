package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Settings are the process level knobs read from the environment. The service
// catalogue lives in the YAML file named by Config.
type Settings struct {
	Addr        string `default:"127.0.0.1:8080"`          // API bind address, ":8080" in Docker
	LogDir      string `split_words:"true" default:"logs"` // rotating log files
	LogLevel    string `split_words:"true" default:"info"` // debug|info|warn|error
	LogStderr   bool   `split_words:"true"`                // tee logs to stderr
	Config      string `default:"watchdog.yaml"`           // service catalogue
	DatabaseURL string `envconfig:"DATABASE_URL"`          // empty means in-memory stores

	PublicAPIKeys  []string `envconfig:"PUBLIC_API_KEYS"`
	AdminAPIKeys   []string `envconfig:"ADMIN_API_KEYS"`
	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS"`
	PublicRPM      int      `envconfig:"PUBLIC_RPM" default:"120"`
	PublicBurst    int      `envconfig:"PUBLIC_BURST" default:"60"`
	AdminRPM       int      `envconfig:"ADMIN_RPM" default:"60"`
	AdminBurst     int      `envconfig:"ADMIN_BURST" default:"30"`

	HousekeepingSchedule string        `split_words:"true" default:"@every 1m"`
	HistoryRetention     time.Duration `split_words:"true" default:"720h"`
}

// FromEnv reads WATCHDOG_* variables. Unprefixed names (DATABASE_URL,
// ADMIN_API_KEYS, ...) are honoured as fallbacks.
func FromEnv() (Settings, error) {
	var s Settings
	if err := envconfig.Process("watchdog", &s); err != nil {
		return Settings{}, err
	}
	return s, nil
}
