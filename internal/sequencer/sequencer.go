// Package sequencer assigns per-topic sequence numbers for the broker.
package sequencer

import (
	"errors"
	"fmt"
)

// DefaultCapacity is the number of distinct topics the broker sequences.
const DefaultCapacity = 50

var (
	// ErrTopicSpaceExhausted is returned when a new topic arrives and the
	// counter table is already full
	ErrTopicSpaceExhausted = errors.New("topic sequence table is full")
)

// TopicSequencer hands out independent, monotonically increasing sequences
// per topic. Counters are created lazily on first use, start at 1 and are
// never removed, so the table is bounded by its capacity rather than evicted.
//
// TopicSequencer is not safe for concurrent use; the broker serializes access.
type TopicSequencer struct {
	capacity int
	counters map[string]uint32
}

// New creates a sequencer tracking at most capacity topics. A non-positive
// capacity falls back to DefaultCapacity.
func New(capacity int) *TopicSequencer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &TopicSequencer{
		capacity: capacity,
		counters: make(map[string]uint32, capacity),
	}
}

// Next returns the next sequence for topic.
func (s *TopicSequencer) Next(topic string) (uint32, error) {
	if seq, ok := s.counters[topic]; ok {
		seq++
		s.counters[topic] = seq
		return seq, nil
	}
	if len(s.counters) >= s.capacity {
		return 0, fmt.Errorf("%w: cannot sequence %q (capacity %d)", ErrTopicSpaceExhausted, topic, s.capacity)
	}
	s.counters[topic] = 1
	return 1, nil
}

// Current returns the last sequence assigned to topic, if any.
func (s *TopicSequencer) Current(topic string) (uint32, bool) {
	seq, ok := s.counters[topic]
	return seq, ok
}

// Len returns the number of topics with a counter.
func (s *TopicSequencer) Len() int {
	return len(s.counters)
}

// Cap returns the maximum number of topics.
func (s *TopicSequencer) Cap() int {
	return s.capacity
}

// Snapshot returns a copy of every topic's last assigned sequence.
func (s *TopicSequencer) Snapshot() map[string]uint32 {
	out := make(map[string]uint32, len(s.counters))
	for topic, seq := range s.counters {
		out[topic] = seq
	}
	return out
}
