// Package routingtable provides interfaces for topic-to-endpoint routing.
//
// This package defines the abstractions for the broker's subscription table:
//   - Subscription: a (topic, endpoint address) pair
//   - RoutingTable: a bounded set of subscriptions used for fanout and for
//     authorizing retransmission requests
//
// Topics match by exact byte equality; there are no wildcards. Adding the same
// (topic, address) pair twice is a no-op, so an endpoint never receives the
// same fanout twice. Subscriptions are never removed: the table grows until
// its capacity is reached and then rejects new pairs with ErrTableFull.
//
// Example usage:
//
//	added, err := table.Subscribe("orders", addr)
//	if errors.Is(err, routingtable.ErrTableFull) {
//		return err // surface to the caller, do not ack
//	}
//
//	for _, endpoint := range table.Subscribers("orders") {
//		conn.WriteTo(datagram, endpoint)
//	}
package routingtable
