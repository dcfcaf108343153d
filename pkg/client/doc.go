// Package client implements the two client roles of the broker protocol.
//
// A Publisher sends one Publish datagram per message and waits a bounded time
// for the broker's Ack. Delivery is at most once: a timeout is reported, the
// message is never resent.
//
// A Subscriber registers topics and listens for Publish datagrams. It keeps
// the last sequence seen per topic; when a sequence jumps ahead it asks the
// broker to retransmit each missing value in order, waiting a bounded time for
// each, before delivering the message that revealed the gap. Values that
// cannot be recovered are delivered as Lost markers so callers always observe
// a contiguous sequence.
//
// Both roles are single goroutine: while a wait is in progress nothing else
// is read from the socket.
package client
