package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/rmacdonaldsmith/seqbroker/internal/broker"
	"github.com/rmacdonaldsmith/seqbroker/internal/healthcheck"
	"github.com/rmacdonaldsmith/seqbroker/internal/httpapi"
	"github.com/rmacdonaldsmith/seqbroker/internal/logging"
	"github.com/rmacdonaldsmith/seqbroker/internal/tracing"
)

const (
	// Application info
	appName    = "seqbroker"
	appVersion = "0.1.0"

	shutdownTimeout = 10 * time.Second
)

func main() {
	cfg, err := loadConfig(os.Args[1:], nil, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Invalid configuration: %v\n", err)
		os.Exit(2)
	}

	if cfg.ShowVersion {
		fmt.Printf("%s v%s\n", appName, appVersion)
		os.Exit(0)
	}

	logger, err := logging.New(cfg.Log, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Invalid logging configuration: %v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, nil); err != nil {
		logger.Error().Err(err).Msg("❌ broker exited with error")
		os.Exit(1)
	}
	logger.Info().Msgf("👋 %s stopped", appName)
}

// run starts the broker, the admin API and the health service and blocks
// until ctx ends or one of them fails. ready, when non-nil, receives the
// broker once every component has been created.
func run(ctx context.Context, cfg *appConfig, logger zerolog.Logger, ready chan<- *broker.Broker) error {
	logger.Info().Msgf("🚀 Starting %s v%s", appName, appVersion)
	logger.Info().Msgf("🔌 Broker UDP: %s", cfg.Broker.ListenAddress)
	logger.Info().Msgf("🌐 Admin API: %s", cfg.Admin.Address)
	logger.Info().Msgf("🏥 Health gRPC: %s", cfg.HealthAddress)

	shutdownTracing, err := tracing.Setup(cfg.Tracing)
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}

	generatedSecret := cfg.Admin.SecretKey == ""
	if generatedSecret {
		cfg.Admin.SecretKey = uuid.NewString()
	}

	b, err := broker.Listen(&cfg.Broker, broker.WithLogger(logger))
	if err != nil {
		return err
	}

	admin, err := httpapi.NewServer(b, b.Registry(), cfg.Admin, logger)
	if err != nil {
		_ = b.Close()
		return err
	}
	health := healthcheck.New(logger)

	if generatedSecret {
		token, _, err := admin.Auth().GenerateToken("operator", true, 0)
		if err == nil {
			logger.Warn().Msg("⚠️  No admin secret configured; generated one for this run")
			logger.Info().Msgf("🔑 Admin token: %s", token)
		}
	}
	if cfg.Broker.LossRate > 0 {
		logger.Warn().Float64("loss_rate", cfg.Broker.LossRate).Msg("⚠️  Dropping outbound publishes for loss testing")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return b.Serve(gctx) })
	g.Go(func() error { return admin.Start() })
	g.Go(func() error { return health.Listen(cfg.HealthAddress) })
	g.Go(func() error {
		health.Watch(gctx, b.Serving, healthcheck.DefaultInterval)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("🛑 Shutting down...")
		return shutdown(admin, health, b, shutdownTracing)
	})

	logger.Info().Msgf("✅ %s started successfully!", appName)
	logger.Info().Msg("💡 Use Ctrl+C to shutdown gracefully")
	if ready != nil {
		ready <- b
	}

	return g.Wait()
}

// shutdown stops every component, collecting all failures
func shutdown(admin *httpapi.Server, health *healthcheck.Server, b *broker.Broker, shutdownTracing func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var result *multierror.Error
	if err := admin.Stop(ctx); err != nil {
		result = multierror.Append(result, fmt.Errorf("admin API: %w", err))
	}
	if err := health.Stop(ctx); err != nil {
		result = multierror.Append(result, fmt.Errorf("health service: %w", err))
	}
	if err := b.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("broker: %w", err))
	}
	if err := shutdownTracing(ctx); err != nil {
		result = multierror.Append(result, fmt.Errorf("tracing: %w", err))
	}
	return result.ErrorOrNil()
}
