package packet

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// HeaderSize is the fixed header size: Sequence(4) + Kind(1).
	HeaderSize = 5
	// MaxPayloadSize is the largest payload a single packet may carry.
	MaxPayloadSize = 500
	// MaxDatagramSize is the largest datagram the protocol ever produces.
	MaxDatagramSize = HeaderSize + MaxPayloadSize

	// AckPayload is the literal payload of every Ack packet.
	AckPayload = "OK"
)

var (
	// ErrShortPacket is returned when a datagram is smaller than the header
	ErrShortPacket = errors.New("packet shorter than header")
	// ErrPayloadTooLarge is returned when a payload exceeds MaxPayloadSize
	ErrPayloadTooLarge = errors.New("payload exceeds maximum size")
	// ErrUnknownKind is returned when the kind byte is not a known tag
	ErrUnknownKind = errors.New("unknown packet kind")
)

// Kind is the one-byte tag identifying what a packet means.
type Kind byte

const (
	Subscribe         Kind = 'S'
	Publish           Kind = 'P'
	Ack               Kind = 'A'
	RetransmitRequest Kind = 'R'
)

// Valid reports whether k is one of the protocol's packet kinds.
func (k Kind) Valid() bool {
	switch k {
	case Subscribe, Publish, Ack, RetransmitRequest:
		return true
	}
	return false
}

func (k Kind) String() string {
	switch k {
	case Subscribe:
		return "subscribe"
	case Publish:
		return "publish"
	case Ack:
		return "ack"
	case RetransmitRequest:
		return "retransmit"
	default:
		return fmt.Sprintf("unknown(%#x)", byte(k))
	}
}

// Packet is a single protocol message.
type Packet struct {
	Sequence uint32
	Kind     Kind
	Payload  string
}

// NewSubscribe builds a Subscribe packet for topic.
func NewSubscribe(seq uint32, topic string) Packet {
	return Packet{Sequence: seq, Kind: Subscribe, Payload: topic}
}

// NewPublish builds a Publish packet carrying "topic:content".
func NewPublish(seq uint32, topic, content string) Packet {
	return Packet{Sequence: seq, Kind: Publish, Payload: JoinPublish(topic, content)}
}

// NewAck builds an Ack echoing seq.
func NewAck(seq uint32) Packet {
	return Packet{Sequence: seq, Kind: Ack, Payload: AckPayload}
}

// NewRetransmitRequest asks for the message with sequence seq on topic.
func NewRetransmitRequest(seq uint32, topic string) Packet {
	return Packet{Sequence: seq, Kind: RetransmitRequest, Payload: topic}
}

// MarshalBinary encodes the packet into a single datagram.
func (p Packet) MarshalBinary() ([]byte, error) {
	if !p.Kind.Valid() {
		return nil, fmt.Errorf("%w: %v", ErrUnknownKind, p.Kind)
	}
	if len(p.Payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(p.Payload))
	}

	buf := make([]byte, HeaderSize+len(p.Payload))
	binary.BigEndian.PutUint32(buf[0:4], p.Sequence)
	buf[4] = byte(p.Kind)
	copy(buf[HeaderSize:], p.Payload)
	return buf, nil
}

// UnmarshalBinary decodes a datagram. The payload is copied, so data may be
// reused by the caller afterwards.
func (p *Packet) UnmarshalBinary(data []byte) error {
	if len(data) < HeaderSize {
		return fmt.Errorf("%w: %d bytes", ErrShortPacket, len(data))
	}
	kind := Kind(data[4])
	if !kind.Valid() {
		return fmt.Errorf("%w: %#x", ErrUnknownKind, data[4])
	}
	if len(data)-HeaderSize > MaxPayloadSize {
		return fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(data)-HeaderSize)
	}

	p.Sequence = binary.BigEndian.Uint32(data[0:4])
	p.Kind = kind
	p.Payload = string(data[HeaderSize:])
	return nil
}

func (p Packet) String() string {
	return fmt.Sprintf("%s seq=%d payload=%q", p.Kind, p.Sequence, p.Payload)
}
