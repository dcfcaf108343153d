// Package history holds the broker's replay ring, the fixed window of recent
// publications that retransmission requests are served from.
package history

import (
	"github.com/rmacdonaldsmith/seqbroker/pkg/history"
)

// DefaultCapacity is the number of messages the broker keeps for retransmission.
const DefaultCapacity = 100

type slot struct {
	entry history.Entry
	used  bool
}

// Ring implements history.Buffer as a fixed array of slots written in
// circular order. Slot next is always the oldest entry once the ring is full.
//
// Ring is not safe for concurrent use; the broker serializes access.
type Ring struct {
	slots []slot
	next  int
	count int
}

// NewRing creates a ring holding at most capacity entries. A non-positive
// capacity falls back to DefaultCapacity.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring{slots: make([]slot, capacity)}
}

// Record overwrites the oldest slot with the new entry.
func (r *Ring) Record(sequence uint32, topic, content string) {
	r.slots[r.next] = slot{
		entry: history.Entry{Sequence: sequence, Topic: topic, Content: content},
		used:  true,
	}
	r.next = (r.next + 1) % len(r.slots)
	if r.count < len(r.slots) {
		r.count++
	}
}

// Lookup scans every slot and returns the first whose sequence matches.
func (r *Ring) Lookup(sequence uint32) (history.Entry, bool) {
	for _, s := range r.slots {
		if s.used && s.entry.Sequence == sequence {
			return s.entry, true
		}
	}
	return history.Entry{}, false
}

// LookupTopic scans every slot for an entry matching topic and sequence.
func (r *Ring) LookupTopic(topic string, sequence uint32) (history.Entry, bool) {
	for _, s := range r.slots {
		if s.used && s.entry.Sequence == sequence && s.entry.Topic == topic {
			return s.entry, true
		}
	}
	return history.Entry{}, false
}

// Entries returns live entries from oldest to newest.
func (r *Ring) Entries() []history.Entry {
	out := make([]history.Entry, 0, r.count)
	start := 0
	if r.count == len(r.slots) {
		start = r.next
	}
	for i := 0; i < r.count; i++ {
		out = append(out, r.slots[(start+i)%len(r.slots)].entry)
	}
	return out
}

// Len returns the number of live entries.
func (r *Ring) Len() int {
	return r.count
}

// Cap returns the fixed capacity of the ring.
func (r *Ring) Cap() int {
	return len(r.slots)
}

// Verify that Ring implements the Buffer interface at compile time
var _ history.Buffer = (*Ring)(nil)
