package main

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rmacdonaldsmith/seqbroker/internal/logging"
	"github.com/rmacdonaldsmith/seqbroker/pkg/client"
	"github.com/rmacdonaldsmith/seqbroker/pkg/httpclient"
)

const envPrefix = "SEQBROKER_"

var (
	// Global flags
	brokerAddr string
	adminURL   string
	token      string
	timeout    time.Duration
	ackTimeout time.Duration
	logLevel   string
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "seqbroker-cli",
		Short: "seqbroker command line interface",
		Long: `seqbroker-cli publishes and subscribes over the broker's UDP protocol
and queries the broker's admin API.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&brokerAddr, "broker", client.DefaultBrokerAddress, "Broker UDP address")
	rootCmd.PersistentFlags().StringVar(&adminURL, "admin", "http://localhost:7080", "Admin API URL")
	rootCmd.PersistentFlags().StringVar(&token, "token", os.Getenv(envPrefix+"ADMIN_TOKEN"), "Admin JWT token")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "Admin API request timeout")
	rootCmd.PersistentFlags().DurationVar(&ackTimeout, "ack-timeout", client.DefaultAckTimeout, "How long to wait for a broker Ack")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Client log level")

	rootCmd.AddCommand(newPublishCommand())
	rootCmd.AddCommand(newSubscribeCommand())
	rootCmd.AddCommand(newTokenCommand())
	rootCmd.AddCommand(newAdminCommand())
	rootCmd.AddCommand(newHealthCommand())

	return rootCmd
}

// clientConfig loads the UDP client configuration from SEQBROKER_* variables
// and applies any flags given on the command line
func clientConfig(cmd *cobra.Command) (*client.Config, error) {
	cfg := &client.Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: envPrefix}); err != nil {
		return nil, fmt.Errorf("failed to read client environment: %w", err)
	}
	if cmd.Flags().Changed("broker") {
		cfg.BrokerAddress = brokerAddr
	}
	if cmd.Flags().Changed("ack-timeout") {
		cfg.AckTimeout = ackTimeout
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func clientLogger(cmd *cobra.Command) (zerolog.Logger, error) {
	return logging.New(logging.Config{Level: logLevel, Format: "console"}, cmd.ErrOrStderr())
}

// adminClient builds the admin API client from the global flags
func adminClient() (*httpclient.Client, error) {
	c, err := httpclient.NewClient(httpclient.Config{
		ServerURL: adminURL,
		Token:     token,
		Timeout:   timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create admin client: %w", err)
	}
	return c, nil
}
