// Package history provides interfaces for the broker's bounded replay store.
//
// This package defines the abstractions for the retransmission history:
//   - Entry: a published message as it was fanned out (sequence, topic, content)
//   - Buffer: a fixed-capacity store that always overwrites its oldest slot
//
// Sequences are assigned per topic, so the same sequence value is expected to
// be live for several topics at once. Lookup by sequence alone is therefore
// ambiguous; LookupTopic keys on (topic, sequence) and is what retransmission
// should use.
//
// Example usage:
//
//	buf.Record(seq, "orders", "created")
//
//	entry, ok := buf.LookupTopic("orders", seq)
//	if !ok {
//		return // already overwritten, nothing to resend
//	}
//	resend(entry)
package history
