package packet

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// Delimiter separates topic from content in a Publish payload.
	Delimiter = ':'
	// MaxTopicSize is the longest topic, in bytes, the protocol accepts.
	MaxTopicSize = 50
)

var (
	// ErrMissingDelimiter is returned for a Publish payload without a ':'
	ErrMissingDelimiter = errors.New("publish payload has no topic delimiter")
	// ErrEmptyTopic is returned when a topic is the empty string
	ErrEmptyTopic = errors.New("topic cannot be empty")
	// ErrTopicTooLong is returned when a topic exceeds MaxTopicSize bytes
	ErrTopicTooLong = errors.New("topic exceeds maximum size")
	// ErrTopicDelimiter is returned when a topic contains the payload delimiter
	ErrTopicDelimiter = errors.New("topic cannot contain the delimiter")
)

// ValidateTopic checks that topic can be carried by the protocol.
func ValidateTopic(topic string) error {
	if topic == "" {
		return ErrEmptyTopic
	}
	if len(topic) > MaxTopicSize {
		return fmt.Errorf("%w: %d bytes", ErrTopicTooLong, len(topic))
	}
	if strings.IndexByte(topic, Delimiter) >= 0 {
		return fmt.Errorf("%w: %q", ErrTopicDelimiter, topic)
	}
	return nil
}

// JoinPublish formats the "topic:content" payload of a Publish packet.
func JoinPublish(topic, content string) string {
	return topic + string(Delimiter) + content
}

// SplitPublish splits a Publish payload at the first delimiter. Content may
// itself contain the delimiter.
func SplitPublish(payload string) (topic, content string, err error) {
	i := strings.IndexByte(payload, Delimiter)
	if i < 0 {
		return "", "", ErrMissingDelimiter
	}
	return payload[:i], payload[i+1:], nil
}
