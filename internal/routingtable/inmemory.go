// Package routingtable implements the broker's bounded subscription table.
package routingtable

import (
	"fmt"
	"net"

	"github.com/rmacdonaldsmith/seqbroker/pkg/routingtable"
)

// DefaultCapacity is the number of subscriptions the broker accepts.
const DefaultCapacity = 100

type subscriptionKey struct {
	topic string
	addr  string
}

// InMemoryRoutingTable implements routingtable.RoutingTable with a bounded
// slice of subscriptions and an index for duplicate detection.
//
// It is not safe for concurrent use; the broker serializes access.
type InMemoryRoutingTable struct {
	capacity      int
	subscriptions []routingtable.Subscription
	index         map[subscriptionKey]struct{}
	topics        map[string]int // topic -> subscription count
}

// NewInMemoryRoutingTable creates a routing table holding at most capacity
// subscriptions. A non-positive capacity falls back to DefaultCapacity.
func NewInMemoryRoutingTable(capacity int) *InMemoryRoutingTable {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &InMemoryRoutingTable{
		capacity:      capacity,
		subscriptions: make([]routingtable.Subscription, 0, capacity),
		index:         make(map[subscriptionKey]struct{}, capacity),
		topics:        make(map[string]int),
	}
}

// Subscribe adds (topic, addr) unless it is already present.
func (rt *InMemoryRoutingTable) Subscribe(topic string, addr net.Addr) (bool, error) {
	if topic == "" {
		return false, routingtable.ErrEmptyTopic
	}
	if addr == nil {
		return false, routingtable.ErrNilAddress
	}

	key := subscriptionKey{topic: topic, addr: routingtable.AddrKey(addr)}
	if _, exists := rt.index[key]; exists {
		return false, nil
	}
	if len(rt.subscriptions) >= rt.capacity {
		return false, fmt.Errorf("%w: capacity %d", routingtable.ErrTableFull, rt.capacity)
	}

	rt.subscriptions = append(rt.subscriptions, routingtable.Subscription{Topic: topic, Addr: addr})
	rt.index[key] = struct{}{}
	rt.topics[topic]++
	return true, nil
}

// Subscribers returns the endpoints subscribed to exactly topic.
func (rt *InMemoryRoutingTable) Subscribers(topic string) []net.Addr {
	var out []net.Addr
	for _, sub := range rt.subscriptions {
		if sub.Topic == topic {
			out = append(out, sub.Addr)
		}
	}
	return out
}

// IsSubscribed reports whether addr is subscribed to topic.
func (rt *InMemoryRoutingTable) IsSubscribed(topic string, addr net.Addr) bool {
	if addr == nil {
		return false
	}
	_, ok := rt.index[subscriptionKey{topic: topic, addr: routingtable.AddrKey(addr)}]
	return ok
}

// Subscriptions returns a copy of all subscriptions in insertion order.
func (rt *InMemoryRoutingTable) Subscriptions() []routingtable.Subscription {
	out := make([]routingtable.Subscription, len(rt.subscriptions))
	copy(out, rt.subscriptions)
	return out
}

// Len returns the number of subscriptions.
func (rt *InMemoryRoutingTable) Len() int {
	return len(rt.subscriptions)
}

// TopicCount returns the number of distinct subscribed topics.
func (rt *InMemoryRoutingTable) TopicCount() int {
	return len(rt.topics)
}

// Cap returns the maximum number of subscriptions.
func (rt *InMemoryRoutingTable) Cap() int {
	return rt.capacity
}

// Verify that InMemoryRoutingTable implements the RoutingTable interface at compile time
var _ routingtable.RoutingTable = (*InMemoryRoutingTable)(nil)
