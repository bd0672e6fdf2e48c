package main

import (
	"os"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "watchdog",
		Short: "Probe services, track their health and escalate when they stay down",
		Long: `watchdog checks a catalogue of services on a fixed interval, keeps a
health state per service, escalates alerts through ordered levels, runs
recovery actions and keeps day/week/month uptime.

Process settings come from WATCHDOG_* environment variables; the service
catalogue is a YAML file (WATCHDOG_CONFIG or --config).`,
		SilenceUsage: true,
	}

	apiURL := os.Getenv("WATCHDOG_API")
	if apiURL == "" {
		apiURL = "http://localhost:8080"
	}
	cl := &clientFlags{}
	root.PersistentFlags().StringVar(&cl.baseURL, "api", apiURL, "watchdog API base URL (client commands)")
	root.PersistentFlags().StringVar(&cl.key, "key", os.Getenv("WATCHDOG_API_KEY"), "API key (client commands)")

	root.AddCommand(newRunCmd(), newValidateCmd(), newStatusCmd(cl), newAckCmd(cl), newReloadCmd(cl))
	return root
}
