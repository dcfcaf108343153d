package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newHealthCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check broker health",
		Long:  "Check the health status reported by the broker's admin API",
		RunE:  runHealth,
	}

	return cmd
}

func runHealth(cmd *cobra.Command, args []string) error {
	c, err := adminClient()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	health, err := c.GetHealth(ctx)
	if err != nil {
		return fmt.Errorf("failed to check health: %w", err)
	}

	out := cmd.OutOrStdout()
	if health.Healthy {
		fmt.Fprintln(out, "✅ Broker is healthy!")
	} else {
		fmt.Fprintln(out, "❌ Broker is not healthy!")
	}
	fmt.Fprintf(out, "Serving: %t\n", health.Serving)
	fmt.Fprintf(out, "Uptime: %s\n", health.Uptime)
	if health.Message != "" {
		fmt.Fprintf(out, "Message: %s\n", health.Message)
	}

	return nil
}
