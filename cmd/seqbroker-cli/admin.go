package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rmacdonaldsmith/seqbroker/pkg/httpclient"
)

func newAdminCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Admin commands (requires an admin token)",
		Long:  "Administrative commands for inspecting a running broker",
	}

	cmd.AddCommand(newAdminStatsCommand())
	cmd.AddCommand(newAdminSubscriptionsCommand())
	cmd.AddCommand(newAdminTopicsCommand())
	cmd.AddCommand(newAdminHistoryCommand())

	return cmd
}

func newAdminStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show broker statistics",
		RunE:  runAdminStats,
	}
}

func newAdminSubscriptionsCommand() *cobra.Command {
	var topic string

	cmd := &cobra.Command{
		Use:   "subscriptions",
		Short: "List subscriptions",
		Long:  "List every (topic, endpoint) subscription, optionally for one topic",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdminSubscriptions(cmd, topic)
		},
	}

	cmd.Flags().StringVar(&topic, "topic", "", "Only list subscriptions to this topic")
	return cmd
}

func newAdminTopicsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "topics",
		Short: "List sequenced topics and their last sequence",
		RunE:  runAdminTopics,
	}
}

func newAdminHistoryCommand() *cobra.Command {
	var (
		topic string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List retained messages",
		Long:  "List the messages retained for retransmission, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdminHistory(cmd, topic, limit)
		},
	}

	cmd.Flags().StringVar(&topic, "topic", "", "Only list messages of this topic")
	cmd.Flags().IntVar(&limit, "limit", 0, "Only list the newest N messages")
	return cmd
}

// withAdmin runs fn with an admin client and a request-scoped context
func withAdmin(cmd *cobra.Command, fn func(ctx context.Context, c *httpclient.Client) error) error {
	if token == "" {
		return fmt.Errorf("an admin token is required - run 'seqbroker-cli token' or set %sADMIN_TOKEN", envPrefix)
	}
	c, err := adminClient()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()
	return fn(ctx, c)
}

func runAdminStats(cmd *cobra.Command, args []string) error {
	return withAdmin(cmd, func(ctx context.Context, c *httpclient.Client) error {
		stats, err := c.AdminGetStats(ctx)
		if err != nil {
			return fmt.Errorf("failed to get stats: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "📊 Broker Statistics")
		fmt.Fprintf(out, "Serving: %t (since %s)\n", stats.Serving, stats.StartedAt.Format("2006-01-02 15:04:05"))
		fmt.Fprintf(out, "Subscriptions: %d/%d across %d topic(s)\n", stats.Subscriptions, stats.MaxSubscriptions, stats.SubscribedTopics)
		fmt.Fprintf(out, "Sequenced topics: %d/%d\n", stats.SequencedTopics, stats.MaxTopics)
		fmt.Fprintf(out, "History: %d/%d\n", stats.HistoryEntries, stats.HistoryCapacity)
		fmt.Fprintf(out, "Published: %d\n", stats.Published)
		fmt.Fprintf(out, "Fan-out: %d sent, %d failed\n", stats.FanoutSent, stats.FanoutFailed)
		fmt.Fprintf(out, "Retransmissions: %d served, %d refused\n", stats.Retransmitted, stats.RetransmitRefused)
		fmt.Fprintf(out, "Dropped: %d\n", stats.Dropped)
		return nil
	})
}

func runAdminSubscriptions(cmd *cobra.Command, topic string) error {
	return withAdmin(cmd, func(ctx context.Context, c *httpclient.Client) error {
		resp, err := c.AdminListSubscriptions(ctx, topic)
		if err != nil {
			return fmt.Errorf("failed to list subscriptions: %w", err)
		}

		out := cmd.OutOrStdout()
		if resp.Count == 0 {
			fmt.Fprintln(out, "No subscriptions")
			return nil
		}
		fmt.Fprintf(out, "Found %d subscription(s):\n\n", resp.Count)
		for i, s := range resp.Subscriptions {
			fmt.Fprintf(out, "%d. %s -> %s\n", i+1, s.Topic, s.Endpoint)
		}
		return nil
	})
}

func runAdminTopics(cmd *cobra.Command, args []string) error {
	return withAdmin(cmd, func(ctx context.Context, c *httpclient.Client) error {
		resp, err := c.AdminListTopics(ctx)
		if err != nil {
			return fmt.Errorf("failed to list topics: %w", err)
		}

		out := cmd.OutOrStdout()
		if resp.Count == 0 {
			fmt.Fprintln(out, "No topics have been published yet")
			return nil
		}
		fmt.Fprintf(out, "Found %d topic(s):\n\n", resp.Count)
		for _, t := range resp.Topics {
			fmt.Fprintf(out, "%s: last sequence %d, %d subscriber(s)\n", t.Topic, t.LastSequence, t.Subscribers)
		}
		return nil
	})
}

func runAdminHistory(cmd *cobra.Command, topic string, limit int) error {
	return withAdmin(cmd, func(ctx context.Context, c *httpclient.Client) error {
		resp, err := c.AdminListHistory(ctx, topic, limit)
		if err != nil {
			return fmt.Errorf("failed to list history: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Retained %d message(s) (capacity %d):\n\n", resp.Count, resp.Capacity)
		for _, e := range resp.Entries {
			fmt.Fprintf(out, "[%s #%d] %s\n", e.Topic, e.Sequence, e.Content)
		}
		return nil
	})
}
