package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rmacdonaldsmith/seqbroker/internal/tracing"
	"github.com/rmacdonaldsmith/seqbroker/pkg/packet"
)

// Message is one value of a topic's sequence as delivered to a Listen
// callback.
type Message struct {
	Topic    string
	Sequence uint32
	Content  string

	// Recovered is set when the message arrived through retransmission
	Recovered bool
	// Lost marks a sequence that could not be recovered; Content is empty
	Lost bool
}

// Subscriber follows topics and delivers each topic's messages in sequence
// order, recovering gaps from the broker's replay history.
type Subscriber struct {
	mu     sync.Mutex
	config *Config
	*endpoint

	tracker *GapTracker
	// seq numbers Subscribe requests so each Ack can be matched
	seq uint32
}

// NewSubscriber opens a UDP socket and returns a subscriber for
// config.BrokerAddress.
func NewSubscriber(config *Config, opts ...Option) (*Subscriber, error) {
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
	return NewSubscriberConn(conn, broker, config, opts...)
}

// NewSubscriberConn returns a subscriber that talks to broker over conn. The
// subscriber takes ownership of conn.
func NewSubscriberConn(conn net.PacketConn, broker net.Addr, config *Config, opts ...Option) (*Subscriber, error) {
	if conn == nil || broker == nil {
		return nil, fmt.Errorf("conn and broker address are required")
	}
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Subscriber{
		config:   config,
		endpoint: newEndpoint(conn, broker, "subscriber", buildOptions(opts)),
		tracker:  NewGapTracker(config.MaxTopics),
	}, nil
}

// Subscribe registers topic with the broker and waits up to AckTimeout for
// the Ack. The topic is followed only once the broker has acknowledged it.
// Subscribe must not be called while Listen is running.
func (s *Subscriber) Subscribe(ctx context.Context, topic string) error {
	if err := packet.ValidateTopic(topic); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.tracker.Tracking(topic) && len(s.tracker.Topics()) >= s.config.MaxTopics {
		return fmt.Errorf("%w: cannot follow %q (limit %d)", ErrTooManyTopics, topic, s.config.MaxTopics)
	}

	s.seq++
	seq := s.seq
	if err := s.send(packet.NewSubscribe(seq, topic)); err != nil {
		return err
	}
	if err := s.awaitAck(ctx, seq, s.config.AckTimeout); err != nil {
		return fmt.Errorf("subscribe %q: %w", topic, err)
	}

	if err := s.tracker.Track(topic); err != nil {
		return err
	}
	s.logger.Info().Str("topic", topic).Msg("subscribed")
	return nil
}

// Topics returns the followed topics in subscription order.
func (s *Subscriber) Topics() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracker.Topics()
}

// Last returns the last committed sequence for topic.
func (s *Subscriber) Last(topic string) (uint32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracker.Last(topic)
}

// Listen receives messages until ctx ends, calling fn for each message of a
// followed topic in sequence order. fn runs on the Listen goroutine and must
// not block for long: no datagrams are read while it runs. Listen returns nil
// when ctx is cancelled.
func (s *Subscriber) Listen(ctx context.Context, fn func(Message)) error {
	for {
		p, err := s.recv(ctx, time.Time{})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if p.Kind != packet.Publish {
			s.logger.Debug().Str("packet", p.String()).Msg("ignoring non-publish datagram")
			continue
		}
		if err := s.handlePublish(ctx, p, fn); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// handlePublish delivers one live Publish:
// 1. Discard topics that are not followed
// 2. Ack and drop an exact repeat of the last committed sequence
// 3. Resolve every missing sequence in order, per the gap policy
// 4. Deliver the live message, commit its sequence, then Ack it
//
// A sequence below the last committed one has nothing missing before it and
// is delivered and committed like any other, so the subscriber follows a
// broker whose counters restarted.
func (s *Subscriber) handlePublish(ctx context.Context, p packet.Packet, fn func(Message)) error {
	topic, content, err := packet.SplitPublish(p.Payload)
	if err != nil {
		s.logger.Debug().Err(err).Msg("dropping malformed publish")
		return nil
	}

	s.mu.Lock()
	following := s.tracker.Tracking(topic)
	last, _ := s.tracker.Last(topic)
	first, n, duplicate := s.tracker.Missing(topic, p.Sequence)
	s.mu.Unlock()

	if !following {
		return nil
	}
	if duplicate {
		s.logger.Debug().Str("topic", topic).Uint32("seq", p.Sequence).Msg("duplicate message")
		return s.ack(p.Sequence)
	}
	if p.Sequence < last {
		s.logger.Warn().Str("topic", topic).Uint32("seq", p.Sequence).Uint32("last", last).Msg("sequence went backwards, resynchronising")
	}

	for i := uint32(0); i < n; i++ {
		m := first + i
		if s.config.GapPolicy == GapPolicySkip {
			fn(Message{Topic: topic, Sequence: m, Lost: true})
			continue
		}
		msg, err := s.retransmit(ctx, topic, m)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Warn().Err(err).Str("topic", topic).Uint32("seq", m).Msg("could not recover message")
			fn(Message{Topic: topic, Sequence: m, Lost: true})
			continue
		}
		fn(msg)
		if err := s.ack(m); err != nil {
			return err
		}
	}

	fn(Message{Topic: topic, Sequence: p.Sequence, Content: content})

	s.mu.Lock()
	s.tracker.Commit(topic, p.Sequence)
	s.mu.Unlock()

	return s.ack(p.Sequence)
}

// retransmit requests (topic, seq) from the broker and waits up to
// RetransmitTimeout for it. Any other datagram read meanwhile is discarded.
func (s *Subscriber) retransmit(ctx context.Context, topic string, seq uint32) (Message, error) {
	ctx, span := tracing.StartSpan(ctx, "subscriber.recover", tracing.Topic(topic), tracing.Sequence(seq))
	defer span.End()

	s.logger.Info().Str("topic", topic).Uint32("seq", seq).Msg("gap detected, requesting retransmission")
	if err := s.send(packet.NewRetransmitRequest(seq, topic)); err != nil {
		tracing.Outcome(span, "send_error")
		return Message{}, err
	}

	deadline := time.Now().Add(s.config.RetransmitTimeout)
	for {
		p, err := s.recv(ctx, deadline)
		if errors.Is(err, errWaitExpired) {
			tracing.Outcome(span, "lost")
			return Message{}, fmt.Errorf("%w: %q seq %d", ErrRetransmitTimeout, topic, seq)
		}
		if err != nil {
			return Message{}, err
		}
		if p.Kind == packet.Publish && p.Sequence == seq {
			t, content, err := packet.SplitPublish(p.Payload)
			if err == nil && t == topic {
				tracing.Outcome(span, "recovered")
				s.logger.Info().Str("topic", topic).Uint32("seq", seq).Msg("recovered message")
				return Message{Topic: topic, Sequence: seq, Content: content, Recovered: true}, nil
			}
		}
		s.logger.Debug().Str("packet", p.String()).Uint32("awaiting", seq).Msg("discarding datagram during recovery")
	}
}

func (s *Subscriber) ack(seq uint32) error {
	return s.send(packet.NewAck(seq))
}
