package routingtable

import (
	"errors"
	"net"
)

var (
	// ErrTableFull is returned when a new subscription would exceed capacity
	ErrTableFull = errors.New("subscription table is full")
	// ErrNilAddress is returned when a subscription has no endpoint address
	ErrNilAddress = errors.New("subscriber address cannot be nil")
	// ErrEmptyTopic is returned when a subscription has an empty topic
	ErrEmptyTopic = errors.New("topic cannot be empty")
)

// Subscription represents one endpoint's interest in one topic.
type Subscription struct {
	// Topic is matched exactly against published topics
	Topic string

	// Addr is the datagram endpoint fanout is sent to
	Addr net.Addr
}

// RoutingTable manages topic-to-endpoint mappings for fanout.
type RoutingTable interface {
	// Subscribe adds (topic, addr). It reports whether the pair was new;
	// re-subscribing an existing pair succeeds without adding a duplicate.
	Subscribe(topic string, addr net.Addr) (bool, error)

	// Subscribers returns every endpoint subscribed to exactly topic, in
	// subscription order.
	Subscribers(topic string) []net.Addr

	// IsSubscribed reports whether addr currently holds a subscription to topic.
	IsSubscribed(topic string, addr net.Addr) bool

	// Subscriptions returns all current subscriptions.
	Subscriptions() []Subscription

	// Len returns the number of subscriptions.
	Len() int

	// TopicCount returns the number of distinct subscribed topics.
	TopicCount() int
}

// AddrKey returns the identity used to compare endpoint addresses.
func AddrKey(addr net.Addr) string {
	return addr.Network() + "/" + addr.String()
}
