package client

import "fmt"

// GapTracker holds the last committed sequence of each followed topic.
// A topic is tracked from Track onwards with no sequence seen yet.
//
// GapTracker is not safe for concurrent use.
type GapTracker struct {
	capacity int
	order    []string
	last     map[string]uint32
	seen     map[string]bool
}

// NewGapTracker creates a tracker following at most capacity topics.
func NewGapTracker(capacity int) *GapTracker {
	if capacity <= 0 {
		capacity = DefaultMaxTopics
	}
	return &GapTracker{
		capacity: capacity,
		last:     make(map[string]uint32, capacity),
		seen:     make(map[string]bool, capacity),
	}
}

// Track starts following topic. Tracking a followed topic is a no-op.
func (g *GapTracker) Track(topic string) error {
	if _, ok := g.last[topic]; ok {
		return nil
	}
	if len(g.order) >= g.capacity {
		return fmt.Errorf("%w: cannot follow %q (limit %d)", ErrTooManyTopics, topic, g.capacity)
	}
	g.order = append(g.order, topic)
	g.last[topic] = 0
	return nil
}

// Tracking reports whether topic is followed.
func (g *GapTracker) Tracking(topic string) bool {
	_, ok := g.last[topic]
	return ok
}

// Last returns the last committed sequence of topic. ok is false until the
// first sequence is committed.
func (g *GapTracker) Last(topic string) (seq uint32, ok bool) {
	return g.last[topic], g.seen[topic]
}

// Missing reports the sequences skipped between the last committed value and
// seq as the range first .. first+n-1; n is 0 when nothing is missing. The
// first sequence seen on a topic never reports a gap, nor does a sequence at
// or below the last committed one. duplicate is true when seq equals the last
// committed value.
func (g *GapTracker) Missing(topic string, seq uint32) (first, n uint32, duplicate bool) {
	if !g.seen[topic] {
		return 0, 0, false
	}
	last := g.last[topic]
	switch {
	case seq == last:
		return 0, 0, true
	case seq < last:
		// The broker's counters went backwards, e.g. after a restart
		return 0, 0, false
	}
	return last + 1, seq - last - 1, false
}

// Commit records seq as the last sequence of topic.
func (g *GapTracker) Commit(topic string, seq uint32) {
	if !g.Tracking(topic) {
		return
	}
	g.last[topic] = seq
	g.seen[topic] = true
}

// Topics returns the followed topics in the order they were tracked.
func (g *GapTracker) Topics() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}
