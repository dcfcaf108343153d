// Package broker implements the UDP broker: it owns the socket, assigns
// per-topic sequence numbers, fans publications out to subscribers and
// serves retransmission requests from the replay ring.
package broker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"

	"github.com/rmacdonaldsmith/seqbroker/internal/history"
	"github.com/rmacdonaldsmith/seqbroker/internal/routingtable"
	"github.com/rmacdonaldsmith/seqbroker/internal/sequencer"
	"github.com/rmacdonaldsmith/seqbroker/internal/tracing"
	"github.com/rmacdonaldsmith/seqbroker/internal/transport"
	historypkg "github.com/rmacdonaldsmith/seqbroker/pkg/history"
	"github.com/rmacdonaldsmith/seqbroker/pkg/packet"
	routingtablepkg "github.com/rmacdonaldsmith/seqbroker/pkg/routingtable"
)

var (
	// ErrNilConn is returned when New is given no socket
	ErrNilConn = errors.New("packet conn cannot be nil")
	// ErrAlreadyServing is returned when Serve is called twice concurrently
	ErrAlreadyServing = errors.New("broker is already serving")
	// ErrClosed is returned by operations on a closed broker
	ErrClosed = errors.New("broker is closed")
)

// Retransmission outcomes, used as metric labels and span outcomes.
const (
	retransmitServed        = "served"
	retransmitNotFound      = "not_found"
	retransmitTopicMismatch = "topic_mismatch"
	retransmitUnauthorized  = "unauthorized"
)

// Delays between reads while the socket keeps failing
const (
	readRetryBase = 5 * time.Millisecond
	readRetryMax  = time.Second
)

// Drop reasons, used as metric labels.
const (
	dropDecode           = "decode"
	dropMalformed        = "malformed"
	dropSubscribeRefused = "subscribe_refused"
	dropPublishRefused   = "publish_refused"
)

// Stats is a point-in-time summary of broker state and counters.
type Stats struct {
	Serving           bool   `json:"serving"`
	Subscriptions     int    `json:"subscriptions"`
	MaxSubscriptions  int    `json:"max_subscriptions"`
	SubscribedTopics  int    `json:"subscribed_topics"`
	SequencedTopics   int    `json:"sequenced_topics"`
	MaxTopics         int    `json:"max_topics"`
	HistoryEntries    int    `json:"history_entries"`
	HistoryCapacity   int    `json:"history_capacity"`
	Published         uint64 `json:"published"`
	FanoutSent        uint64 `json:"fanout_sent"`
	FanoutFailed      uint64 `json:"fanout_failed"`
	Retransmitted     uint64 `json:"retransmitted"`
	RetransmitRefused uint64 `json:"retransmit_refused"`
	Dropped           uint64 `json:"dropped"`
}

// Broker is the single-socket publish/subscribe broker.
//
// Every datagram is handled to completion on the Serve goroutine. The mutex
// only exists so that the admin surface can read consistent snapshots while
// the broker is running; the sequencer, history ring and routing table are
// not safe for concurrent use on their own.
type Broker struct {
	mu     sync.Mutex
	config *Config
	conn   net.PacketConn

	sequencer *sequencer.TopicSequencer
	history   *history.Ring
	routes    *routingtable.InMemoryRoutingTable

	logger   zerolog.Logger
	registry *prometheus.Registry
	metrics  *Metrics

	serving atomic.Bool
	closed  atomic.Bool

	// Counters mirrored from the metrics for Stats
	published         uint64
	fanoutSent        uint64
	fanoutFailed      uint64
	retransmitted     uint64
	retransmitRefused uint64
	dropped           uint64
}

// New creates a broker on an already bound socket. The broker takes
// ownership of conn and closes it on Close.
func New(conn net.PacketConn, config *Config, opts ...Option) (*Broker, error) {
	if conn == nil {
		return nil, ErrNilConn
	}
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	b := &Broker{
		config:    config,
		conn:      conn,
		sequencer: sequencer.New(config.MaxTopics),
		history:   history.NewRing(config.HistorySize),
		routes:    routingtable.NewInMemoryRoutingTable(config.MaxSubscriptions),
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.registry == nil {
		b.registry = prometheus.NewRegistry()
	}
	b.metrics = NewMetrics(b.registry)
	return b, nil
}

// Listen binds config.ListenAddress over UDP and creates a broker on it.
// A non-zero config.LossRate wraps the socket so that that fraction of
// outbound Publish datagrams is dropped.
func Listen(config *Config, opts ...Option) (*Broker, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	udp, err := net.ListenPacket("udp", config.ListenAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", config.ListenAddress, err)
	}

	var conn net.PacketConn = udp
	if config.LossRate > 0 {
		conn = transport.NewLossyConn(udp, transport.RandomLoss(config.LossRate, time.Now().UnixNano()))
	}

	b, err := New(conn, config, opts...)
	if err != nil {
		_ = udp.Close()
		return nil, err
	}
	return b, nil
}

// Addr returns the local address the broker is bound to.
func (b *Broker) Addr() net.Addr {
	return b.conn.LocalAddr()
}

// Registry returns the registry holding the broker's metrics.
func (b *Broker) Registry() *prometheus.Registry {
	return b.registry
}

// Serving reports whether the receive loop is running.
func (b *Broker) Serving() bool {
	return b.serving.Load()
}

// Serve runs the receive loop until ctx is cancelled or the broker is
// closed. Each datagram is decoded and handled before the next is read.
// Serve returns nil on orderly shutdown.
func (b *Broker) Serve(ctx context.Context) error {
	if b.closed.Load() {
		return ErrClosed
	}
	if !b.serving.CompareAndSwap(false, true) {
		return ErrAlreadyServing
	}
	defer b.serving.Store(false)

	// Unblock ReadFrom when the context ends
	stop := context.AfterFunc(ctx, func() {
		_ = b.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	b.logger.Info().Str("addr", b.conn.LocalAddr().String()).Msg("broker serving")

	// One byte more than the protocol allows so oversized datagrams are
	// detected instead of silently truncated to a valid size
	buf := make([]byte, packet.MaxDatagramSize+1)
	var backoff retry.Backoff
	for {
		n, from, err := b.conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) || b.closed.Load() {
				b.logger.Info().Msg("broker stopped")
				return nil
			}
			if backoff == nil {
				backoff = retry.WithCappedDuration(readRetryMax, retry.NewExponential(readRetryBase))
			}
			delay, _ := backoff.Next()
			b.logger.Warn().Err(err).Dur("retry_in", delay).Msg("read failed")
			if !sleepCtx(ctx, delay) {
				b.logger.Info().Msg("broker stopped")
				return nil
			}
			continue
		}
		backoff = nil
		b.HandleDatagram(ctx, buf[:n], from)
	}
}

// sleepCtx waits for d and reports false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// HandleDatagram decodes one datagram and dispatches it by kind. Malformed
// datagrams are dropped without reply.
func (b *Broker) HandleDatagram(ctx context.Context, data []byte, from net.Addr) {
	var p packet.Packet
	if err := p.UnmarshalBinary(data); err != nil {
		b.logger.Debug().Err(err).Str("from", from.String()).Int("bytes", len(data)).Msg("dropping undecodable datagram")
		b.mu.Lock()
		b.drop(dropDecode)
		b.mu.Unlock()
		return
	}

	b.metrics.PacketsReceived.WithLabelValues(p.Kind.String()).Inc()

	_, span := tracing.StartSpan(ctx, "broker."+p.Kind.String(), tracing.Sequence(p.Sequence))
	defer span.End()

	b.mu.Lock()
	defer b.mu.Unlock()

	var outcome string
	switch p.Kind {
	case packet.Subscribe:
		outcome = b.handleSubscribe(p, from)
	case packet.Publish:
		outcome = b.handlePublish(p, from)
	case packet.RetransmitRequest:
		outcome = b.handleRetransmit(p, from)
	case packet.Ack:
		// Subscriber delivery confirmations are not tracked
		outcome = "ignored"
	}
	tracing.Outcome(span, outcome)
}

// Subscribe registers addr for topic. Re-subscribing is a no-op.
func (b *Broker) Subscribe(topic string, addr net.Addr) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.subscribeLocked(topic, addr)
}

// Publish sequences content under topic, records it for replay and fans it
// out to every current subscriber of topic. It returns the assigned
// sequence. Nothing is recorded or sent when an error is returned.
func (b *Broker) Publish(topic, content string) (uint32, error) {
	if b.closed.Load() {
		return 0, ErrClosed
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.publishLocked(topic, content)
}

func (b *Broker) subscribeLocked(topic string, addr net.Addr) error {
	if err := packet.ValidateTopic(topic); err != nil {
		return err
	}
	added, err := b.routes.Subscribe(topic, addr)
	if err != nil {
		return err
	}
	if added {
		b.logger.Info().Str("topic", topic).Str("subscriber", addr.String()).Msg("subscription added")
		b.metrics.Subscriptions.Set(float64(b.routes.Len()))
	}
	return nil
}

// publishLocked implements the distribution flow:
// 1. Validate topic and payload size
// 2. Assign the topic's next sequence
// 3. Record (sequence, topic, content) in the replay ring
// 4. Send one Publish datagram to each subscriber of topic
func (b *Broker) publishLocked(topic, content string) (uint32, error) {
	if err := packet.ValidateTopic(topic); err != nil {
		return 0, err
	}
	if len(packet.JoinPublish(topic, content)) > packet.MaxPayloadSize {
		return 0, packet.ErrPayloadTooLarge
	}

	seq, err := b.sequencer.Next(topic)
	if err != nil {
		return 0, err
	}
	b.history.Record(seq, topic, content)

	b.published++
	b.metrics.Published.WithLabelValues(topic).Inc()
	b.metrics.Topics.Set(float64(b.sequencer.Len()))
	b.metrics.TopicSequence.WithLabelValues(topic).Set(float64(seq))
	b.metrics.HistoryEntries.Set(float64(b.history.Len()))

	datagram, err := packet.NewPublish(seq, topic, content).MarshalBinary()
	if err != nil {
		return 0, err
	}

	subscribers := b.routes.Subscribers(topic)
	for _, addr := range subscribers {
		if _, err := b.conn.WriteTo(datagram, addr); err != nil {
			b.fanoutFailed++
			b.metrics.FanoutErrors.Inc()
			b.logger.Warn().Err(err).Str("topic", topic).Uint32("seq", seq).Str("subscriber", addr.String()).Msg("fan-out send failed")
			continue
		}
		b.fanoutSent++
		b.metrics.FanoutSent.Inc()
	}

	b.logger.Debug().Str("topic", topic).Uint32("seq", seq).Int("subscribers", len(subscribers)).Msg("published")
	return seq, nil
}

func (b *Broker) handleSubscribe(p packet.Packet, from net.Addr) string {
	if err := b.subscribeLocked(p.Payload, from); err != nil {
		b.logger.Warn().Err(err).Str("topic", p.Payload).Str("from", from.String()).Msg("subscribe refused")
		b.drop(dropSubscribeRefused)
		return "refused"
	}
	b.reply(p.Sequence, from)
	return "acked"
}

func (b *Broker) handlePublish(p packet.Packet, from net.Addr) string {
	topic, content, err := packet.SplitPublish(p.Payload)
	if err != nil {
		b.logger.Warn().Err(err).Str("from", from.String()).Msg("malformed publish")
		b.drop(dropMalformed)
		return "malformed"
	}

	if _, err := b.publishLocked(topic, content); err != nil {
		b.logger.Warn().Err(err).Str("topic", topic).Str("from", from.String()).Msg("publish refused")
		b.drop(dropPublishRefused)
		return "refused"
	}

	// The Ack echoes the publisher's own sequence, not the broker's
	b.reply(p.Sequence, from)
	return "acked"
}

// handleRetransmit serves a request for (topic, sequence) from the replay
// ring. It refuses silently when the entry has been overwritten, when the
// stored entry belongs to another topic, or when the requester is not
// subscribed to the topic.
func (b *Broker) handleRetransmit(p packet.Packet, from net.Addr) string {
	topic := p.Payload

	var (
		entry historypkg.Entry
		found bool
	)
	if b.config.LegacySequenceLookup {
		entry, found = b.history.Lookup(p.Sequence)
	} else {
		entry, found = b.history.LookupTopic(topic, p.Sequence)
	}

	result := retransmitServed
	switch {
	case !found:
		result = retransmitNotFound
		if _, other := b.history.Lookup(p.Sequence); other {
			result = retransmitTopicMismatch
		}
	case entry.Topic != topic:
		result = retransmitTopicMismatch
	case !b.routes.IsSubscribed(topic, from):
		result = retransmitUnauthorized
	}

	b.metrics.Retransmits.WithLabelValues(result).Inc()
	if result != retransmitServed {
		b.retransmitRefused++
		b.logger.Info().Str("topic", topic).Uint32("seq", p.Sequence).Str("from", from.String()).Str("reason", result).Msg("retransmission refused")
		return result
	}

	datagram, err := packet.NewPublish(entry.Sequence, entry.Topic, entry.Content).MarshalBinary()
	if err != nil {
		b.logger.Error().Err(err).Msg("encode retransmission")
		return "encode_error"
	}
	if _, err := b.conn.WriteTo(datagram, from); err != nil {
		b.logger.Warn().Err(err).Str("to", from.String()).Msg("retransmission send failed")
		return "send_error"
	}
	b.retransmitted++
	b.logger.Debug().Str("topic", topic).Uint32("seq", p.Sequence).Str("to", from.String()).Msg("retransmitted")
	return result
}

func (b *Broker) reply(seq uint32, to net.Addr) {
	datagram, err := packet.NewAck(seq).MarshalBinary()
	if err != nil {
		b.logger.Error().Err(err).Msg("encode ack")
		return
	}
	if _, err := b.conn.WriteTo(datagram, to); err != nil {
		b.logger.Warn().Err(err).Uint32("seq", seq).Str("to", to.String()).Msg("ack send failed")
	}
}

func (b *Broker) drop(reason string) {
	b.dropped++
	b.metrics.Dropped.WithLabelValues(reason).Inc()
}

// Stats returns a snapshot of broker state.
func (b *Broker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		Serving:           b.serving.Load(),
		Subscriptions:     b.routes.Len(),
		MaxSubscriptions:  b.routes.Cap(),
		SubscribedTopics:  b.routes.TopicCount(),
		SequencedTopics:   b.sequencer.Len(),
		MaxTopics:         b.sequencer.Cap(),
		HistoryEntries:    b.history.Len(),
		HistoryCapacity:   b.history.Cap(),
		Published:         b.published,
		FanoutSent:        b.fanoutSent,
		FanoutFailed:      b.fanoutFailed,
		Retransmitted:     b.retransmitted,
		RetransmitRefused: b.retransmitRefused,
		Dropped:           b.dropped,
	}
}

// Subscriptions returns every (topic, endpoint) pair in registration order.
func (b *Broker) Subscriptions() []routingtablepkg.Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.routes.Subscriptions()
}

// TopicSequences returns the last sequence assigned to each topic.
func (b *Broker) TopicSequences() map[string]uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sequencer.Snapshot()
}

// History returns the live replay entries, oldest first.
func (b *Broker) History() []historypkg.Entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.history.Entries()
}

// Close closes the socket, which also ends Serve. Close is idempotent.
func (b *Broker) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := b.conn.Close(); err != nil {
		return fmt.Errorf("failed to close socket: %w", err)
	}
	return nil
}
