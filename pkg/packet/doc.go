// Package packet defines the datagram wire format shared by the broker,
// publishers and subscribers.
//
// Every datagram carries exactly one packet:
//
//	+----------------+--------+----------------------+
//	| sequence (4 B) | kind   | payload (0..500 B)   |
//	| big endian     | 1 byte | ASCII                |
//	+----------------+--------+----------------------+
//
// Kinds:
//   - 'S' Subscribe: payload is the bare topic
//   - 'P' Publish: payload is "topic:content", split at the first ':'
//   - 'A' Ack: payload is "OK", sequence echoes the acknowledged packet
//   - 'R' RetransmitRequest: sequence names the missing message, payload the topic
//
// Example usage:
//
//	buf, err := packet.NewPublish(7, "orders", "created").MarshalBinary()
//	if err != nil {
//		return err
//	}
//	conn.WriteTo(buf, brokerAddr)
//
//	var p packet.Packet
//	if err := p.UnmarshalBinary(datagram); err != nil {
//		return err // not one of ours
//	}
//	topic, content, err := packet.SplitPublish(p.Payload)
package packet
