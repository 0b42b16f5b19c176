package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	apihttp "github.com/fyrsmithlabs/clustereval/internal/http"
	"github.com/fyrsmithlabs/clustereval/internal/progress"
	"github.com/fyrsmithlabs/clustereval/internal/session"
	"github.com/fyrsmithlabs/clustereval/internal/telemetry"
)

const instrumentationName = "github.com/fyrsmithlabs/clustereval"

// serveCmd runs the annotation API
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve annotation sessions over HTTP",
	Long: `Load the campaign, open the progress store and serve the annotation API
until interrupted.

Examples:
  # Serve with a config file
  clustereval serve --config clustereval.yaml

  # Share progress through NATS JetStream
  CLUSTEREVAL_STORE_BACKEND=nats clustereval serve`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return serve(ctx)
}

// serve starts the server and blocks until ctx is cancelled.
//
//  1. Loads configuration and initializes the logger
//  2. Starts telemetry (degrades instead of failing)
//  3. Loads the campaign and opens the progress store
//  4. Serves HTTP and shuts down gracefully on cancellation
func serve(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := initLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync() // Best-effort sync on shutdown
	}()

	tel, err := telemetry.New(ctx, telemetry.FromAppConfig(cfg.Telemetry, version))
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Warn(shutdownCtx, "telemetry shutdown failed", zap.Error(err))
		}
	}()
	if health := tel.Health(); health.Degraded {
		logger.Warn(ctx, "telemetry degraded", zap.Strings("reasons", health.Reasons))
	}

	a, err := openApp(true, progress.WithTracer(tel.Tracer(instrumentationName+"/progress")))
	if err != nil {
		return err
	}
	defer a.Close()

	logger.Info(ctx, "starting clustereval",
		zap.String("version", version),
		zap.String("campaign", a.campaign.String()),
		zap.String("store", storeName(cfg.Store)),
		zap.Bool("telemetry", tel.IsEnabled()),
	)

	srv, err := apihttp.NewServer(a.campaign, a.store, logger.Underlying(), &apihttp.Config{
		Host:      cfg.Server.Host,
		Port:      cfg.Server.Port,
		RateLimit: cfg.Server.RateLimit,
		RateBurst: cfg.Server.RateBurst,
	}, apihttp.WithSessionOptions(
		session.WithTracer(tel.Tracer(instrumentationName+"/session")),
		session.WithMeter(tel.Meter(instrumentationName+"/session")),
	))
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	logger.Info(shutdownCtx, "server shutdown complete")
	return nil
}
