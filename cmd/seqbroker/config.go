package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/rmacdonaldsmith/seqbroker/internal/broker"
	"github.com/rmacdonaldsmith/seqbroker/internal/healthcheck"
	"github.com/rmacdonaldsmith/seqbroker/internal/httpapi"
	"github.com/rmacdonaldsmith/seqbroker/internal/logging"
)

// envPrefix namespaces every environment variable the daemon reads
const envPrefix = "SEQBROKER_"

// appConfig is the daemon's full configuration
type appConfig struct {
	Log    logging.Config
	Broker broker.Config
	Admin  httpapi.Config

	HealthAddress string `env:"HEALTH_ADDR" envDefault:":7090"`
	Tracing       bool   `env:"TRACING"`

	ShowVersion bool
}

// loadConfig resolves configuration in increasing precedence: built-in
// defaults, the optional env file, the process environment (or environ when
// non-nil), then command-line flags.
func loadConfig(args []string, environ map[string]string, stderr io.Writer) (*appConfig, error) {
	fs := flag.NewFlagSet("seqbroker", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		envFile          = fs.String("env-file", ".env", "Optional dotenv file loaded before the environment")
		listenAddr       = fs.String("listen", "", "UDP listen address for the broker")
		adminAddr        = fs.String("admin", "", "Listen address for the admin HTTP API")
		healthAddr       = fs.String("health", "", "Listen address for the gRPC health service")
		adminSecret      = fs.String("admin-secret", "", "Secret signing admin tokens")
		logLevel         = fs.String("log-level", "", "Log level (trace, debug, info, warn, error)")
		logFormat        = fs.String("log-format", "", "Log format (console or json)")
		maxSubscriptions = fs.Int("max-subscriptions", 0, "Subscription table capacity")
		maxTopics        = fs.Int("max-topics", 0, "Topic sequencer capacity")
		historySize      = fs.Int("history", 0, "Replay ring size")
		lossRate         = fs.Float64("loss-rate", 0, "Fraction of outbound publishes to drop (testing only)")
		legacyLookup     = fs.Bool("legacy-lookup", false, "Resolve retransmissions by sequence alone")
		enableTracing    = fs.Bool("tracing", false, "Export OpenTelemetry spans to stdout")
		showVersion      = fs.Bool("version", false, "Show version and exit")
	)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	opts := env.Options{Prefix: envPrefix, Environment: environ}
	if environ == nil {
		if err := loadEnvFile(*envFile); err != nil {
			return nil, err
		}
	}

	var cfg appConfig
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	// Flags win over the environment, but only when given
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "listen":
			cfg.Broker.ListenAddress = *listenAddr
		case "admin":
			cfg.Admin.Address = *adminAddr
		case "health":
			cfg.HealthAddress = *healthAddr
		case "admin-secret":
			cfg.Admin.SecretKey = *adminSecret
		case "log-level":
			cfg.Log.Level = *logLevel
		case "log-format":
			cfg.Log.Format = *logFormat
		case "max-subscriptions":
			cfg.Broker.MaxSubscriptions = *maxSubscriptions
		case "max-topics":
			cfg.Broker.MaxTopics = *maxTopics
		case "history":
			cfg.Broker.HistorySize = *historySize
		case "loss-rate":
			cfg.Broker.LossRate = *lossRate
		case "legacy-lookup":
			cfg.Broker.LegacySequenceLookup = *legacyLookup
		case "tracing":
			cfg.Tracing = *enableTracing
		case "version":
			cfg.ShowVersion = *showVersion
		}
	})

	cfg.Log.SetDefaults()
	cfg.Broker.SetDefaults()
	cfg.Admin.SetDefaults()
	if cfg.HealthAddress == "" {
		cfg.HealthAddress = healthcheck.DefaultAddress
	}

	if err := cfg.Log.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Broker.Validate(); err != nil {
		return nil, fmt.Errorf("invalid broker config: %w", err)
	}
	return &cfg, nil
}

// loadEnvFile loads path into the process environment. A missing file is
// not an error; existing variables are not overridden.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}
