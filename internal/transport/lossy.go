// Package transport provides datagram helpers shared by the broker and its
// tests, most notably a PacketConn that drops selected outbound datagrams.
package transport

import (
	"math/rand"
	"net"
	"sync"
	"sync/atomic"

	"github.com/rmacdonaldsmith/seqbroker/pkg/packet"
)

// DropFunc decides whether an outbound datagram is silently discarded.
type DropFunc func(datagram []byte, addr net.Addr) bool

// LossyConn wraps a net.PacketConn and drops outbound datagrams selected by
// its DropFunc. Dropped writes report success, exactly like a datagram lost
// on the wire.
type LossyConn struct {
	net.PacketConn
	drop    DropFunc
	dropped atomic.Int64
}

// NewLossyConn wraps conn. A nil drop function drops nothing.
func NewLossyConn(conn net.PacketConn, drop DropFunc) *LossyConn {
	return &LossyConn{PacketConn: conn, drop: drop}
}

// WriteTo sends b to addr unless the drop function discards it.
func (c *LossyConn) WriteTo(b []byte, addr net.Addr) (int, error) {
	if c.drop != nil && c.drop(b, addr) {
		c.dropped.Add(1)
		return len(b), nil
	}
	return c.PacketConn.WriteTo(b, addr)
}

// Dropped returns how many datagrams have been discarded.
func (c *LossyConn) Dropped() int64 {
	return c.dropped.Load()
}

// DropPublishOnce discards the first Publish datagram for each listed
// (topic, sequence). Later sends of the same message, such as a
// retransmission, go through.
func DropPublishOnce(topic string, seqs ...uint32) DropFunc {
	var mu sync.Mutex
	pending := make(map[uint32]bool, len(seqs))
	for _, s := range seqs {
		pending[s] = true
	}
	return func(b []byte, _ net.Addr) bool {
		var p packet.Packet
		if err := p.UnmarshalBinary(b); err != nil || p.Kind != packet.Publish {
			return false
		}
		t, _, err := packet.SplitPublish(p.Payload)
		if err != nil || t != topic {
			return false
		}
		mu.Lock()
		defer mu.Unlock()
		if pending[p.Sequence] {
			delete(pending, p.Sequence)
			return true
		}
		return false
	}
}

// DropKind discards every datagram of the given kind.
func DropKind(kind packet.Kind) DropFunc {
	return func(b []byte, _ net.Addr) bool {
		return len(b) >= packet.HeaderSize && packet.Kind(b[4]) == kind
	}
}

// RandomLoss discards Publish datagrams with probability rate. It is meant
// for exercising subscriber recovery against a live broker.
func RandomLoss(rate float64, seed int64) DropFunc {
	var mu sync.Mutex
	rng := rand.New(rand.NewSource(seed))
	return func(b []byte, _ net.Addr) bool {
		if len(b) < packet.HeaderSize || packet.Kind(b[4]) != packet.Publish {
			return false
		}
		mu.Lock()
		defer mu.Unlock()
		return rng.Float64() < rate
	}
}
