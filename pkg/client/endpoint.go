package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rmacdonaldsmith/seqbroker/internal/logging"
	"github.com/rmacdonaldsmith/seqbroker/pkg/packet"
)

// endpoint is the UDP socket a client shares between sends and bounded
// receives.
type endpoint struct {
	id     uuid.UUID
	conn   net.PacketConn
	broker net.Addr
	logger zerolog.Logger
	buf    []byte
}

func resolve(address string) (net.Addr, error) {
	broker, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve broker %s: %w", address, err)
	}
	return broker, nil
}

func dial(cfg *Config) (net.PacketConn, net.Addr, error) {
	broker, err := resolve(cfg.BrokerAddress)
	if err != nil {
		return nil, nil, err
	}
	local := cfg.LocalAddress
	if local == "" {
		local = ":0"
	}
	conn, err := net.ListenPacket("udp", local)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open socket on %s: %w", local, err)
	}
	return conn, broker, nil
}

func newEndpoint(conn net.PacketConn, broker net.Addr, role string, o options) *endpoint {
	id := uuid.New()
	return &endpoint{
		id:     id,
		conn:   conn,
		broker: broker,
		logger: logging.Component(o.logger, role).With().Str("client_id", id.String()).Logger(),
		buf:    make([]byte, packet.MaxDatagramSize+1),
	}
}

func (e *endpoint) send(p packet.Packet) error {
	data, err := p.MarshalBinary()
	if err != nil {
		return err
	}
	if _, err := e.conn.WriteTo(data, e.broker); err != nil {
		return fmt.Errorf("failed to send %s: %w", p.Kind, err)
	}
	return nil
}

// recv returns the next decodable datagram. It gives up with errWaitExpired
// at deadline (zero means no deadline) and with the context's error when ctx
// ends first.
func (e *endpoint) recv(ctx context.Context, deadline time.Time) (packet.Packet, error) {
	ctxBound := false
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
		ctxBound = true
	}
	if err := e.conn.SetReadDeadline(deadline); err != nil {
		return packet.Packet{}, err
	}
	stop := context.AfterFunc(ctx, func() {
		_ = e.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	for {
		n, from, err := e.conn.ReadFrom(e.buf)
		if err != nil {
			if ctx.Err() != nil {
				return packet.Packet{}, ctx.Err()
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				// The read deadline may fire just before the context's timer
				if ctxBound {
					return packet.Packet{}, context.DeadlineExceeded
				}
				return packet.Packet{}, errWaitExpired
			}
			return packet.Packet{}, err
		}
		var p packet.Packet
		if err := p.UnmarshalBinary(e.buf[:n]); err != nil {
			e.logger.Debug().Err(err).Str("from", from.String()).Msg("dropping undecodable datagram")
			continue
		}
		return p, nil
	}
}

// awaitAck waits until timeout for an Ack carrying seq. Other datagrams are
// discarded.
func (e *endpoint) awaitAck(ctx context.Context, seq uint32, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		p, err := e.recv(ctx, deadline)
		if errors.Is(err, errWaitExpired) {
			return fmt.Errorf("%w: seq %d after %s", ErrAckTimeout, seq, timeout)
		}
		if err != nil {
			return err
		}
		if p.Kind == packet.Ack && p.Sequence == seq {
			return nil
		}
		e.logger.Debug().Str("packet", p.String()).Uint32("awaiting", seq).Msg("discarding datagram while awaiting ack")
	}
}

// ID returns the client's instance identifier.
func (e *endpoint) ID() string {
	return e.id.String()
}

// LocalAddr returns the client's own UDP address.
func (e *endpoint) LocalAddr() net.Addr {
	return e.conn.LocalAddr()
}

// Close closes the client's socket.
func (e *endpoint) Close() error {
	return e.conn.Close()
}
