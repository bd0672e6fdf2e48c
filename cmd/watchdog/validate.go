package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/hamed0406/watchdog/internal/config"
)

func newValidateCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the service catalogue and the environment without starting anything",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.FromEnv()
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "✖", err)
				return err
			}
			if cfgPath != "" {
				settings.Config = cfgPath
			}
			return preflight(cmd.OutOrStdout(), cmd.ErrOrStderr(), settings)
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "service catalogue (overrides WATCHDOG_CONFIG)")
	return cmd
}

// preflight loads the catalogue and reports on the environment. Only an
// unusable catalogue is fatal; the rest are warnings.
func preflight(out, errOut io.Writer, s config.Settings) error {
	ok := func(msg string) { fmt.Fprintln(out, "✔", msg) }
	warn := func(msg string) { fmt.Fprintln(errOut, "⚠", msg) }

	c, err := config.LoadFile(s.Config)
	if err != nil {
		fmt.Fprintln(errOut, "✖", err)
		return err
	}
	enabled := 0
	for _, svc := range c.Services {
		if svc.Enabled {
			enabled++
		}
	}
	ok(fmt.Sprintf("%s: %d services (%d enabled), %d channels, %d maintenance windows",
		s.Config, len(c.Services), enabled, len(c.Notifications.Channels), len(c.Maintenance)))

	if len(s.AdminAPIKeys) == 0 {
		warn("ADMIN_API_KEYS is empty; ack and reload are open to anyone who can reach the API")
	}
	if len(s.PublicAPIKeys) == 0 && len(s.AdminAPIKeys) == 0 {
		warn("no API keys configured; read routes are open")
	}
	if s.DatabaseURL == "" {
		warn("DATABASE_URL empty; history and uptime are kept in memory only")
	} else {
		ok("DATABASE_URL present")
	}
	if len(s.AllowedOrigins) == 0 {
		warn("ALLOWED_ORIGINS empty; CORS allows every origin")
	} else {
		ok(fmt.Sprintf("ALLOWED_ORIGINS=%v", s.AllowedOrigins))
	}
	if s.LogDir != "" {
		if err := os.MkdirAll(s.LogDir, 0o755); err != nil {
			warn(fmt.Sprintf("log dir %s not writable: %v", s.LogDir, err))
		}
	}
	ok("preflight passed")
	return nil
}
