package history

// Entry is a single message kept for retransmission.
type Entry struct {
	// Sequence is the per-topic sequence the broker assigned on publish
	Sequence uint32

	// Topic is the topic the message was published to
	Topic string

	// Content is the message body without the topic prefix
	Content string
}
