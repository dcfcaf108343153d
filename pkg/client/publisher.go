package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/rmacdonaldsmith/seqbroker/internal/tracing"
	"github.com/rmacdonaldsmith/seqbroker/pkg/packet"
)

// Publisher sends messages to the broker and waits for each Ack.
type Publisher struct {
	mu     sync.Mutex
	config *Config
	*endpoint

	// seq is the last packet sequence used; the first publish uses 1
	seq uint32
}

// NewPublisher opens a UDP socket and returns a publisher for
// config.BrokerAddress.
func NewPublisher(config *Config, opts ...Option) (*Publisher, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	conn, broker, err := dial(config)
	if err != nil {
		return nil, err
	}
	return NewPublisherConn(conn, broker, config, opts...)
}

// NewPublisherConn returns a publisher that talks to broker over conn. The
// publisher takes ownership of conn.
func NewPublisherConn(conn net.PacketConn, broker net.Addr, config *Config, opts ...Option) (*Publisher, error) {
	if conn == nil || broker == nil {
		return nil, fmt.Errorf("conn and broker address are required")
	}
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Publisher{
		config:   config,
		endpoint: newEndpoint(conn, broker, "publisher", buildOptions(opts)),
	}, nil
}

// Publish sends content under topic and waits up to AckTimeout for the
// broker's Ack. A timeout returns ErrAckTimeout; the message is not resent
// and may or may not have reached the broker.
func (p *Publisher) Publish(ctx context.Context, topic, content string) error {
	if err := packet.ValidateTopic(topic); err != nil {
		return err
	}
	if len(packet.JoinPublish(topic, content)) > packet.MaxPayloadSize {
		return packet.ErrPayloadTooLarge
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.seq++
	seq := p.seq

	ctx, span := tracing.StartSpan(ctx, "publisher.publish", tracing.Topic(topic), tracing.Sequence(seq))
	defer span.End()

	if err := p.send(packet.NewPublish(seq, topic, content)); err != nil {
		tracing.Outcome(span, "send_error")
		return err
	}

	if err := p.awaitAck(ctx, seq, p.config.AckTimeout); err != nil {
		if errors.Is(err, ErrAckTimeout) {
			tracing.Outcome(span, "timeout")
			p.logger.Warn().Str("topic", topic).Uint32("seq", seq).Msg("publish not acknowledged")
		}
		return err
	}

	tracing.Outcome(span, "acked")
	p.logger.Debug().Str("topic", topic).Uint32("seq", seq).Msg("published")
	return nil
}

// Sequence returns the packet sequence of the most recent publish.
func (p *Publisher) Sequence() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.seq
}
