package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rmacdonaldsmith/seqbroker/internal/httpapi"
)

func newTokenCommand() *cobra.Command {
	var (
		secret  string
		subject string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an admin token",
		Long: `Mint an admin JWT signed with the broker's admin secret. The token is
printed on stdout so it can be captured, e.g.

  export SEQBROKER_ADMIN_TOKEN=$(seqbroker-cli token --secret ...)`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runToken(cmd, secret, subject, ttl)
		},
	}

	cmd.Flags().StringVar(&secret, "secret", os.Getenv(envPrefix+"ADMIN_SECRET"), "Admin API secret")
	cmd.Flags().StringVar(&subject, "subject", "admin", "Token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", httpapi.DefaultTokenTTL, "Token lifetime")

	return cmd
}

func runToken(cmd *cobra.Command, secret, subject string, ttl time.Duration) error {
	if secret == "" {
		return fmt.Errorf("secret is required (--secret or %sADMIN_SECRET)", envPrefix)
	}

	signed, expiresAt, err := httpapi.NewJWTAuth(secret).GenerateToken(subject, true, ttl)
	if err != nil {
		return fmt.Errorf("failed to generate token: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), signed)
	fmt.Fprintf(cmd.ErrOrStderr(), "Expires: %s\n", expiresAt.Format(time.RFC3339))
	return nil
}
