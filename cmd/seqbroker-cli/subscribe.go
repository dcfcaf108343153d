package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rmacdonaldsmith/seqbroker/pkg/client"
)

func newSubscribeCommand() *cobra.Command {
	var (
		topics    string
		count     int
		gapPolicy string
	)

	cmd := &cobra.Command{
		Use:   "subscribe",
		Short: "Subscribe to topics and print messages",
		Long: `Subscribe to one or more comma separated topics and print every message
in sequence order until interrupted. Recovered messages are marked, and
messages the broker could no longer provide are reported as lost.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubscribe(cmd, splitTopics(topics), count, client.GapPolicy(gapPolicy))
		},
	}

	cmd.Flags().StringVar(&topics, "topics", "", "Comma separated topics (required)")
	cmd.Flags().IntVar(&count, "count", 0, "Exit after this many messages (0 runs until interrupted)")
	cmd.Flags().StringVar(&gapPolicy, "gap-policy", "", "What to do about missing sequences: recover or skip")
	if err := cmd.MarkFlagRequired("topics"); err != nil {
		panic(fmt.Sprintf("Failed to mark topics as required: %v", err))
	}

	return cmd
}

func splitTopics(s string) []string {
	var topics []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			topics = append(topics, t)
		}
	}
	return topics
}

func runSubscribe(cmd *cobra.Command, topics []string, count int, policy client.GapPolicy) error {
	if len(topics) == 0 {
		return fmt.Errorf("at least one topic is required")
	}

	cfg, err := clientConfig(cmd)
	if err != nil {
		return err
	}
	if policy != "" {
		cfg.GapPolicy = policy
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	logger, err := clientLogger(cmd)
	if err != nil {
		return err
	}

	sub, err := client.NewSubscriber(cfg, client.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to create subscriber: %w", err)
	}
	defer sub.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	out := cmd.OutOrStdout()
	for _, topic := range topics {
		if err := sub.Subscribe(ctx, topic); err != nil {
			return fmt.Errorf("failed to subscribe to '%s': %w", topic, err)
		}
		fmt.Fprintf(out, "✅ Subscribed to '%s'\n", topic)
	}
	fmt.Fprintln(out, "Listening for messages (Ctrl+C to stop)...")

	received := 0
	err = sub.Listen(ctx, func(m client.Message) {
		printMessage(cmd, m)
		received++
		if count > 0 && received >= count {
			cancel()
		}
	})
	if err != nil {
		return fmt.Errorf("subscription failed: %w", err)
	}
	return nil
}

func printMessage(cmd *cobra.Command, m client.Message) {
	out := cmd.OutOrStdout()
	switch {
	case m.Lost:
		fmt.Fprintf(out, "[%s #%d] ⚠️  lost\n", m.Topic, m.Sequence)
	case m.Recovered:
		fmt.Fprintf(out, "[%s #%d] %s (recovered)\n", m.Topic, m.Sequence, m.Content)
	default:
		fmt.Fprintf(out, "[%s #%d] %s\n", m.Topic, m.Sequence, m.Content)
	}
}
