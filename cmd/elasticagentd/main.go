// Package main is the entry point for the elastic-agent scheduler
// daemon.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/riverci/elasticagent/internal/adminapi"
	"github.com/riverci/elasticagent/internal/ciserver"
	"github.com/riverci/elasticagent/internal/config"
	"github.com/riverci/elasticagent/internal/dispatcher"
	"github.com/riverci/elasticagent/internal/eventstream"
	"github.com/riverci/elasticagent/internal/executorclient"
	"github.com/riverci/elasticagent/internal/pluginapi"
	"github.com/riverci/elasticagent/internal/reconcile"
	"github.com/riverci/elasticagent/internal/statemachine"
	"github.com/riverci/elasticagent/internal/store"
	"github.com/riverci/elasticagent/pkg/health"
	applog "github.com/riverci/elasticagent/pkg/log"
	"github.com/riverci/elasticagent/pkg/metrics"
	"github.com/riverci/elasticagent/pkg/tracing"
)

// Build information, set by ldflags during build.
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	logger := setupLogger()
	log.Logger = logger

	logger.Info().
		Str("version", version).
		Str("commit", commit).
		Str("build_time", buildTime).
		Str("go_version", runtime.Version()).
		Msg("starting elastic-agent scheduler")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	appMetrics := metrics.NewMetrics()
	logger.Info().Msg("metrics initialized")

	var tracer *tracing.Tracer
	if cfg.Observability.TracingEnabled && cfg.Observability.TracingEndpoint != "" {
		tracingCfg := tracing.Config{
			ServiceName:    "elasticagentd",
			ServiceVersion: version,
			Endpoint:       cfg.Observability.TracingEndpoint,
			Insecure:       cfg.Observability.TracingInsecure,
			SampleRate:     cfg.Observability.TracingSampleRate,
			Environment:    cfg.Observability.Environment,
			Enabled:        true,
		}
		tracer, err = tracing.InitTracer(tracingCfg)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to initialize tracing - continuing without tracing")
		} else {
			logger.Info().
				Str("endpoint", cfg.Observability.TracingEndpoint).
				Float64("sample_rate", cfg.Observability.TracingSampleRate).
				Msg("tracing initialized")
		}
	} else {
		logger.Info().Msg("tracing disabled")
	}

	componentLogger := func(name string) *slog.Logger {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})).With("component", name)
	}

	st := store.New(componentLogger("store"))
	go st.Run(ctx)

	// The wire transport for the executor's job RPC and the CI server's
	// plugin RPC is explicitly out of scope (spec §1/§6): only the Go
	// interfaces matter here. Until a real adapter is wired in, Dialer
	// and Transport resolve to a no-op that reports nothing running and
	// accepts every call silently.
	execGW := executorclient.New(dialNoopExecutor, componentLogger("executorclient"))
	ciGW := ciserver.New(noopCIServerTransport{})

	disp := dispatcher.New(
		dispatcher.Config{Workers: cfg.Dispatcher.Workers},
		execGW, ciGW, st,
		componentLogger("dispatcher"),
		appMetrics.Scheduler,
	)
	disp.Run(ctx, cfg.Dispatcher.Workers)

	hub := eventstream.New(componentLogger("eventstream"))
	go hub.Run(ctx)

	statemachine.DefaultTimeouts = statemachine.Timeouts{
		Launching:  cfg.Reconcile.LaunchingTimeout,
		Pending:    cfg.Reconcile.PendingTimeout,
		Starting:   cfg.Reconcile.StartingTimeout,
		IdleRetire: cfg.Reconcile.IdleRetireTimeout,
		Retiring:   cfg.Reconcile.RetiringTimeout,
		Killing:    cfg.Reconcile.KillingTimeout,
		Removing:   cfg.Reconcile.RemovingTimeout,
		Legacy:     cfg.Reconcile.LegacyTimeout,
		Orphan:     cfg.Reconcile.OrphanTimeout,
		Failed:     cfg.Reconcile.FailedTTL,
		Terminated: cfg.Reconcile.TerminatedTTL,
	}

	loop := reconcile.New(
		reconcile.Config{
			Interval: cfg.Reconcile.PingInterval,
		},
		st, execGW, ciGW, disp,
		componentLogger("reconcile"),
		appMetrics.Scheduler,
		hub,
	)
	go loop.Run(ctx)

	plugin := pluginapi.New(st, disp, pluginapi.Config{
		AutoRegisterKey: cfg.Bootstrap.AutoRegisterKey,
		PluginID:        cfg.Bootstrap.PluginID,
		InstallerURL:    cfg.Bootstrap.InstallerURL,
	}, time.Now)
	_ = plugin // constructed for an external RPC adapter to call Dispatch; the plugin transport framing is out of scope.

	adminLogger := applog.New(cfg.Log.Level, cfg.Log.Format)
	eventstreamCheck := health.NewEventStreamCheck(hub)
	adminHandler := adminapi.New(st, loop, adminLogger, eventstreamCheck)
	adminServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.AdminPort),
		Handler: adminHandler,
	}

	eventstreamServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.EventStreamPort),
		Handler: eventstream.NewHandler(hub, componentLogger("eventstream_handler")),
	}

	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.MetricsPort),
		Handler: appMetrics.Handler(),
	}

	errCh := make(chan error, 3)

	go func() {
		if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("admin server error: %w", err)
		}
	}()
	go func() {
		if err := eventstreamServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("eventstream server error: %w", err)
		}
	}()
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("metrics server error: %w", err)
		}
	}()

	logger.Info().
		Int("admin_port", cfg.Server.AdminPort).
		Int("eventstream_port", cfg.Server.EventStreamPort).
		Int("metrics_port", cfg.Server.MetricsPort).
		Dur("ping_interval", cfg.Reconcile.PingInterval).
		Int("dispatcher_workers", cfg.Dispatcher.Workers).
		Msg("elastic-agent scheduler started")

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error")
	}

	logger.Info().Msg("initiating graceful shutdown")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	var shutdownErr error

	if tracer != nil {
		if err := tracer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("tracer shutdown error")
			shutdownErr = err
		} else {
			logger.Info().Msg("tracer shutdown complete")
		}
	}

	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("metrics server shutdown error")
		shutdownErr = err
	}
	if err := eventstreamServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("eventstream server shutdown error")
		shutdownErr = err
	}
	if err := adminServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("admin server shutdown error")
		shutdownErr = err
	}

	if shutdownErr != nil {
		logger.Error().Msg("shutdown completed with errors")
		os.Exit(1)
	}

	logger.Info().Msg("shutdown completed successfully")
}

// setupLogger initializes the zerolog logger used for process-lifecycle
// narration; per-subsystem components get their own slog.Logger instead
// (see componentLogger in main), matching the split the teacher's own
// control-plane binary uses.
func setupLogger() zerolog.Logger {
	format := os.Getenv("ELASTICAGENT_LOG_FORMAT")
	level := os.Getenv("ELASTICAGENT_LOG_LEVEL")

	var logLevel zerolog.Level
	switch level {
	case "debug":
		logLevel = zerolog.DebugLevel
	case "warn":
		logLevel = zerolog.WarnLevel
	case "error":
		logLevel = zerolog.ErrorLevel
	default:
		logLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(logLevel)

	var logger zerolog.Logger
	if format == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(os.Stdout)
	}

	return logger.With().Timestamp().Str("service", "elasticagentd").Logger()
}
