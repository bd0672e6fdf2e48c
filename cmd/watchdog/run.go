package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hamed0406/watchdog/internal/config"
	"github.com/hamed0406/watchdog/internal/httpapi"
	apimw "github.com/hamed0406/watchdog/internal/httpapi/middleware"
	"github.com/hamed0406/watchdog/internal/hub"
	"github.com/hamed0406/watchdog/internal/logging"
	"github.com/hamed0406/watchdog/internal/metrics"
	"github.com/hamed0406/watchdog/internal/repo"
	"github.com/hamed0406/watchdog/internal/repo/memory"
	"github.com/hamed0406/watchdog/internal/repo/postgres"
	"github.com/hamed0406/watchdog/internal/scheduler"
)

func newRunCmd() *cobra.Command {
	var (
		cfgPath string
		once    bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the watchdog engine and its HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEngine(cmd.Context(), cfgPath, once)
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "service catalogue (overrides WATCHDOG_CONFIG)")
	cmd.Flags().BoolVar(&once, "once", false, "run a single pass, print the results and exit")
	return cmd
}

func runEngine(parent context.Context, cfgPath string, once bool) error {
	settings, err := config.FromEnv()
	if err != nil {
		return fmt.Errorf("environment: %w", err)
	}
	if cfgPath != "" {
		settings.Config = cfgPath
	}
	logger, err := logging.NewLogger(logging.Options{Dir: settings.LogDir, Level: settings.LogLevel, Stderr: settings.LogStderr})
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	catalog, err := config.LoadFile(settings.Config)
	if err != nil {
		logger.Error("config_invalid", zap.String("path", settings.Config), zap.Error(err))
		fmt.Fprintln(os.Stderr, "✖", err)
		return err
	}

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	results, err := openStore(ctx, settings.DatabaseURL, logger)
	if err != nil {
		logger.Error("store_open_failed", zap.Error(err))
		return err
	}
	defer results.Close()

	m := metrics.New()
	h := hub.New(logger, settings.AllowedOrigins)
	engine, err := scheduler.NewEngine(logger, catalog, scheduler.Options{
		Store:                config.NewStore(settings.Config),
		Results:              results,
		Metrics:              m,
		Hub:                  h,
		HistoryRetention:     settings.HistoryRetention,
		HousekeepingSchedule: settings.HousekeepingSchedule,
	})
	if err != nil {
		logger.Error("engine_init_failed", zap.Error(err))
		return err
	}

	if once {
		engine.RunOnce(ctx)
		return printServices(os.Stdout, engine.Services())
	}

	go h.Run(ctx)
	go reloadOnHangup(ctx, engine, logger)

	api := httpapi.NewServer(logger, engine)
	srv := &http.Server{
		Addr: settings.Addr,
		Handler: api.Router(httpapi.Options{
			Keys:           apimw.Keys{Public: settings.PublicAPIKeys, Admin: settings.AdminAPIKeys},
			AllowedOrigins: settings.AllowedOrigins,
			PublicRPM:      settings.PublicRPM,
			PublicBurst:    settings.PublicBurst,
			AdminRPM:       settings.AdminRPM,
			AdminBurst:     settings.AdminBurst,
			Metrics:        m.Handler(),
			WebSocket:      h.HandleConnect,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("api_listen", zap.String("addr", settings.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api_listen_failed", zap.Error(err))
			stop()
		}
	}()

	runErr := engine.Run(ctx)

	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		logger.Warn("api_shutdown_failed", zap.Error(err))
	}
	return runErr
}

func openStore(ctx context.Context, dsn string, logger *zap.Logger) (repo.Store, error) {
	if dsn == "" {
		logger.Info("store_memory")
		return memory.New(), nil
	}
	return postgres.New(ctx, dsn, logger)
}

func reloadOnHangup(ctx context.Context, engine *scheduler.Engine, logger *zap.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if snap, err := engine.Reload(); err == nil {
				logger.Info("reload_applied", zap.Uint64("version", snap.Version), zap.String("trigger", "sighup"))
			}
		}
	}
}
