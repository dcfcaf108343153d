package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rmacdonaldsmith/seqbroker/pkg/client"
)

func newPublishCommand() *cobra.Command {
	var (
		topic   string
		content string
	)

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish a message to a topic",
		Long: `Publish a message to a topic and wait for the broker's Ack.
Content may contain ':'; the topic may not.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPublish(cmd, topic, content)
		},
	}

	cmd.Flags().StringVar(&topic, "topic", "", "Topic to publish to (required)")
	cmd.Flags().StringVar(&content, "content", "", "Message content")
	if err := cmd.MarkFlagRequired("topic"); err != nil {
		panic(fmt.Sprintf("Failed to mark topic as required: %v", err))
	}

	return cmd
}

func runPublish(cmd *cobra.Command, topic, content string) error {
	cfg, err := clientConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := clientLogger(cmd)
	if err != nil {
		return err
	}

	pub, err := client.NewPublisher(cfg, client.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to create publisher: %w", err)
	}
	defer pub.Close()

	if err := pub.Publish(cmd.Context(), topic, content); err != nil {
		return fmt.Errorf("failed to publish: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "✅ Published to '%s' (packet %d)\n", topic, pub.Sequence())
	return nil
}
