package broker

import (
	"bytes"
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmacdonaldsmith/seqbroker/pkg/packet"
)

type sent struct {
	to  string
	pkt packet.Packet
}

// recordingConn is a net.PacketConn that records every outbound datagram
// and never delivers inbound ones.
type recordingConn struct {
	mu     sync.Mutex
	sent   []sent
	closed bool
}

func (c *recordingConn) ReadFrom([]byte) (int, net.Addr, error) { return 0, nil, net.ErrClosed }

func (c *recordingConn) WriteTo(b []byte, addr net.Addr) (int, error) {
	var p packet.Packet
	if err := p.UnmarshalBinary(b); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, sent{to: addr.String(), pkt: p})
	return len(b), nil
}

func (c *recordingConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *recordingConn) LocalAddr() net.Addr {
	return &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 7000}
}
func (c *recordingConn) SetDeadline(time.Time) error      { return nil }
func (c *recordingConn) SetReadDeadline(time.Time) error  { return nil }
func (c *recordingConn) SetWriteDeadline(time.Time) error { return nil }

// take returns and clears the datagrams sent so far.
func (c *recordingConn) take() []sent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.sent
	c.sent = nil
	return out
}

// failingConn is a recordingConn whose reads always fail.
type failingConn struct {
	recordingConn
	reads atomic.Int32
}

func (c *failingConn) ReadFrom([]byte) (int, net.Addr, error) {
	c.reads.Add(1)
	return 0, nil, errors.New("network is down")
}

func endpoint(port int) *net.UDPAddr {
	return &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port}
}

func newTestBroker(t *testing.T, cfg *Config) (*Broker, *recordingConn) {
	t.Helper()
	if cfg == nil {
		cfg = NewConfig("127.0.0.1:0")
	}
	conn := &recordingConn{}
	b, err := New(conn, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b, conn
}

func deliver(t *testing.T, b *Broker, p packet.Packet, from net.Addr) {
	t.Helper()
	data, err := p.MarshalBinary()
	require.NoError(t, err)
	b.HandleDatagram(context.Background(), data, from)
}

func TestConfig_Validate(t *testing.T) {
	cfg := NewConfig("")
	assert.Equal(t, DefaultListenAddress, cfg.ListenAddress)
	assert.Equal(t, 100, cfg.MaxSubscriptions)
	assert.Equal(t, 50, cfg.MaxTopics)
	assert.Equal(t, 100, cfg.HistorySize)
	require.NoError(t, cfg.Validate())

	cfg.LossRate = 1
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidLossRate)

	cfg = NewConfig(":7000").WithCapacities(-1, 1, 1)
	assert.ErrorIs(t, cfg.Validate(), ErrNegativeCapacity)

	cfg = &Config{}
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidListenAddress)
}

func TestNew_RejectsNilConn(t *testing.T) {
	_, err := New(nil, NewConfig(":7000"))
	assert.ErrorIs(t, err, ErrNilConn)
}

func TestSubscribe_AcksWithRequestSequence(t *testing.T) {
	b, conn := newTestBroker(t, nil)
	sub := endpoint(5001)

	deliver(t, b, packet.NewSubscribe(7, "Colombia vs Argentina"), sub)

	out := conn.take()
	require.Len(t, out, 1)
	assert.Equal(t, sub.String(), out[0].to)
	assert.Equal(t, packet.NewAck(7), out[0].pkt)
	assert.Equal(t, 1, b.Stats().Subscriptions)
}

func TestSubscribe_Idempotent(t *testing.T) {
	b, conn := newTestBroker(t, nil)
	sub := endpoint(5001)

	deliver(t, b, packet.NewSubscribe(1, "Brasil"), sub)
	deliver(t, b, packet.NewSubscribe(2, "Brasil"), endpoint(5001))

	// Both requests are acknowledged, one subscription exists
	assert.Len(t, conn.take(), 2)
	assert.Len(t, b.Subscriptions(), 1)

	_, err := b.Publish("Brasil", "Gol")
	require.NoError(t, err)
	assert.Len(t, conn.take(), 1, "a re-subscribed endpoint must receive each message once")
}

func TestSubscribe_CapacityRefusedWithoutAck(t *testing.T) {
	b, conn := newTestBroker(t, NewConfig(":0").WithCapacities(2, 50, 100))

	deliver(t, b, packet.NewSubscribe(1, "a"), endpoint(5001))
	deliver(t, b, packet.NewSubscribe(1, "b"), endpoint(5001))
	require.Len(t, conn.take(), 2)

	deliver(t, b, packet.NewSubscribe(1, "c"), endpoint(5001))
	assert.Empty(t, conn.take(), "a full table must not acknowledge")
	assert.Equal(t, 2, b.Stats().Subscriptions)
	assert.Equal(t, 1.0, testutil.ToFloat64(b.metrics.Dropped.WithLabelValues(dropSubscribeRefused)))

	// Existing pairs are still idempotent at capacity
	deliver(t, b, packet.NewSubscribe(2, "a"), endpoint(5001))
	assert.Len(t, conn.take(), 1)
}

func TestSubscribe_InvalidTopicRefused(t *testing.T) {
	b, conn := newTestBroker(t, nil)

	deliver(t, b, packet.NewSubscribe(1, ""), endpoint(5001))
	deliver(t, b, packet.NewSubscribe(1, "has:colon"), endpoint(5001))

	assert.Empty(t, conn.take())
	assert.Zero(t, b.Stats().Subscriptions)
}

func TestPublish_FanOutAndAck(t *testing.T) {
	b, conn := newTestBroker(t, nil)
	s1, s2, other, pub := endpoint(5001), endpoint(5002), endpoint(5003), endpoint(6000)

	deliver(t, b, packet.NewSubscribe(1, "Colombia vs Argentina"), s1)
	deliver(t, b, packet.NewSubscribe(1, "Colombia vs Argentina"), s2)
	deliver(t, b, packet.NewSubscribe(1, "Brasil"), other)
	conn.take()

	deliver(t, b, packet.NewPublish(42, "Colombia vs Argentina", "Gol de Colombia"), pub)

	out := conn.take()
	require.Len(t, out, 3)
	assert.Equal(t, s1.String(), out[0].to)
	assert.Equal(t, packet.NewPublish(1, "Colombia vs Argentina", "Gol de Colombia"), out[0].pkt)
	assert.Equal(t, s2.String(), out[1].to)
	assert.Equal(t, out[0].pkt, out[1].pkt)

	// The publisher's sequence is echoed in the Ack, never reused for fan-out
	assert.Equal(t, pub.String(), out[2].to)
	assert.Equal(t, packet.NewAck(42), out[2].pkt)
}

func TestPublish_ContentKeepsDelimiters(t *testing.T) {
	b, conn := newTestBroker(t, nil)
	deliver(t, b, packet.NewSubscribe(1, "score"), endpoint(5001))
	conn.take()

	deliver(t, b, packet.NewPublish(1, "score", "2:1 at 90:00"), endpoint(6000))

	out := conn.take()
	require.Len(t, out, 2)
	assert.Equal(t, "score:2:1 at 90:00", out[0].pkt.Payload)
}

func TestPublish_PerTopicSequences(t *testing.T) {
	b, _ := newTestBroker(t, nil)

	for _, tc := range []struct {
		topic string
		want  uint32
	}{
		{"A", 1}, {"A", 2}, {"B", 1}, {"A", 3}, {"B", 2},
	} {
		seq, err := b.Publish(tc.topic, "x")
		require.NoError(t, err)
		assert.Equal(t, tc.want, seq, "topic %s", tc.topic)
	}
	assert.Equal(t, map[string]uint32{"A": 3, "B": 2}, b.TopicSequences())
}

func TestPublish_NoSubscribersStillRecorded(t *testing.T) {
	b, conn := newTestBroker(t, nil)

	deliver(t, b, packet.NewPublish(9, "nobody", "hello"), endpoint(6000))

	out := conn.take()
	require.Len(t, out, 1)
	assert.Equal(t, packet.NewAck(9), out[0].pkt)

	hist := b.History()
	require.Len(t, hist, 1)
	assert.Equal(t, "nobody", hist[0].Topic)
	assert.Equal(t, uint32(1), hist[0].Sequence)
}

func TestPublish_MalformedDropped(t *testing.T) {
	b, conn := newTestBroker(t, nil)

	deliver(t, b, packet.Packet{Sequence: 1, Kind: packet.Publish, Payload: "no delimiter"}, endpoint(6000))
	deliver(t, b, packet.Packet{Sequence: 2, Kind: packet.Publish, Payload: ":empty topic"}, endpoint(6000))

	assert.Empty(t, conn.take())
	assert.Empty(t, b.History())
	assert.Empty(t, b.TopicSequences())
	assert.Equal(t, uint64(2), b.Stats().Dropped)
}

func TestPublish_TopicSpaceExhausted(t *testing.T) {
	b, conn := newTestBroker(t, NewConfig(":0").WithCapacities(100, 1, 100))

	deliver(t, b, packet.NewPublish(1, "first", "x"), endpoint(6000))
	require.Len(t, conn.take(), 1)

	deliver(t, b, packet.NewPublish(2, "second", "x"), endpoint(6000))
	assert.Empty(t, conn.take(), "a refused publish must not be acknowledged")
	assert.Len(t, b.History(), 1)

	// Known topics keep sequencing
	seq, err := b.Publish("first", "y")
	require.NoError(t, err)
	assert.Equal(t, uint32(2), seq)
}

func TestPublish_TooLarge(t *testing.T) {
	b, _ := newTestBroker(t, nil)
	content := make([]byte, packet.MaxPayloadSize)
	_, err := b.Publish("t", string(content))
	assert.ErrorIs(t, err, packet.ErrPayloadTooLarge)
	assert.Empty(t, b.TopicSequences())
}

func TestRetransmit_ServedToSubscriber(t *testing.T) {
	b, conn := newTestBroker(t, nil)
	sub := endpoint(5001)

	deliver(t, b, packet.NewSubscribe(1, "Colombia vs Argentina"), sub)
	for _, c := range []string{"Gol de Colombia", "Gol de Argentina", "Tarjeta amarilla"} {
		_, err := b.Publish("Colombia vs Argentina", c)
		require.NoError(t, err)
	}
	conn.take()

	deliver(t, b, packet.NewRetransmitRequest(2, "Colombia vs Argentina"), sub)

	out := conn.take()
	require.Len(t, out, 1)
	assert.Equal(t, sub.String(), out[0].to)
	assert.Equal(t, packet.NewPublish(2, "Colombia vs Argentina", "Gol de Argentina"), out[0].pkt)
	assert.Equal(t, uint64(1), b.Stats().Retransmitted)
	assert.Equal(t, 1.0, testutil.ToFloat64(b.metrics.Retransmits.WithLabelValues(retransmitServed)))
}

func TestRetransmit_UnauthorizedRefused(t *testing.T) {
	b, conn := newTestBroker(t, nil)
	deliver(t, b, packet.NewSubscribe(1, "private"), endpoint(5001))
	deliver(t, b, packet.NewSubscribe(1, "public"), endpoint(5002))
	_, err := b.Publish("private", "secret")
	require.NoError(t, err)
	conn.take()

	deliver(t, b, packet.NewRetransmitRequest(1, "private"), endpoint(5002))
	deliver(t, b, packet.NewRetransmitRequest(1, "private"), endpoint(5999))

	assert.Empty(t, conn.take())
	assert.Equal(t, 2.0, testutil.ToFloat64(b.metrics.Retransmits.WithLabelValues(retransmitUnauthorized)))
}

func TestRetransmit_OverwrittenNotFound(t *testing.T) {
	b, conn := newTestBroker(t, NewConfig(":0").WithCapacities(100, 50, 3))
	sub := endpoint(5001)
	deliver(t, b, packet.NewSubscribe(1, "t"), sub)
	for i := 0; i < 4; i++ {
		_, err := b.Publish("t", "x")
		require.NoError(t, err)
	}
	conn.take()

	deliver(t, b, packet.NewRetransmitRequest(1, "t"), sub)
	assert.Empty(t, conn.take())

	deliver(t, b, packet.NewRetransmitRequest(4, "t"), sub)
	assert.Len(t, conn.take(), 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(b.metrics.Retransmits.WithLabelValues(retransmitNotFound)))
}

func TestRetransmit_KeyedByTopicAndSequence(t *testing.T) {
	b, conn := newTestBroker(t, nil)
	sub := endpoint(5001)
	deliver(t, b, packet.NewSubscribe(1, "B"), sub)
	_, err := b.Publish("A", "from A")
	require.NoError(t, err)
	_, err = b.Publish("B", "from B")
	require.NoError(t, err)
	conn.take()

	// (A,1) sits before (B,1) in the ring; the request for B still resolves
	deliver(t, b, packet.NewRetransmitRequest(1, "B"), sub)

	out := conn.take()
	require.Len(t, out, 1)
	assert.Equal(t, packet.NewPublish(1, "B", "from B"), out[0].pkt)
}

func TestRetransmit_LegacyLookupRefusesTopicMismatch(t *testing.T) {
	b, conn := newTestBroker(t, NewConfig(":0").WithLegacySequenceLookup(true))
	sub := endpoint(5001)
	deliver(t, b, packet.NewSubscribe(1, "B"), sub)
	_, err := b.Publish("A", "from A")
	require.NoError(t, err)
	_, err = b.Publish("B", "from B")
	require.NoError(t, err)
	conn.take()

	deliver(t, b, packet.NewRetransmitRequest(1, "B"), sub)

	assert.Empty(t, conn.take(), "content from another topic must never be served")
	assert.Equal(t, 1.0, testutil.ToFloat64(b.metrics.Retransmits.WithLabelValues(retransmitTopicMismatch)))
}

func TestRetransmit_WrongTopicOnlyInRing(t *testing.T) {
	b, conn := newTestBroker(t, nil)
	deliver(t, b, packet.NewSubscribe(1, "B"), endpoint(5001))
	_, err := b.Publish("A", "from A")
	require.NoError(t, err)
	conn.take()

	deliver(t, b, packet.NewRetransmitRequest(1, "B"), endpoint(5001))

	assert.Empty(t, conn.take())
	assert.Equal(t, 1.0, testutil.ToFloat64(b.metrics.Retransmits.WithLabelValues(retransmitTopicMismatch)))
}

func TestHandleDatagram_IgnoresAckAndGarbage(t *testing.T) {
	b, conn := newTestBroker(t, nil)

	deliver(t, b, packet.NewAck(1), endpoint(5001))
	b.HandleDatagram(context.Background(), []byte{0, 0}, endpoint(5001))
	b.HandleDatagram(context.Background(), []byte{0, 0, 0, 1, 'Z'}, endpoint(5001))

	assert.Empty(t, conn.take())
	assert.Equal(t, uint64(2), b.Stats().Dropped)
	assert.Equal(t, 1.0, testutil.ToFloat64(b.metrics.PacketsReceived.WithLabelValues("ack")))
}

func TestStats(t *testing.T) {
	b, _ := newTestBroker(t, nil)
	require.NoError(t, b.Subscribe("a", endpoint(5001)))
	require.NoError(t, b.Subscribe("a", endpoint(5002)))
	require.NoError(t, b.Subscribe("b", endpoint(5001)))
	_, err := b.Publish("a", "1")
	require.NoError(t, err)
	_, err = b.Publish("c", "1")
	require.NoError(t, err)

	stats := b.Stats()
	assert.Equal(t, 3, stats.Subscriptions)
	assert.Equal(t, 100, stats.MaxSubscriptions)
	assert.Equal(t, 2, stats.SubscribedTopics)
	assert.Equal(t, 2, stats.SequencedTopics)
	assert.Equal(t, 2, stats.HistoryEntries)
	assert.Equal(t, uint64(2), stats.Published)
	assert.Equal(t, uint64(2), stats.FanoutSent)
	assert.False(t, stats.Serving)
}

func TestClose_Idempotent(t *testing.T) {
	b, conn := newTestBroker(t, nil)
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())
	assert.True(t, conn.closed)

	_, err := b.Publish("t", "x")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, b.Serve(context.Background()), ErrClosed)
}

func TestServe_OverUDP(t *testing.T) {
	b, err := Listen(NewConfig("127.0.0.1:0"))
	require.NoError(t, err)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Serve(ctx) }()

	client, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer client.Close()

	roundTrip := func(p packet.Packet) packet.Packet {
		data, err := p.MarshalBinary()
		require.NoError(t, err)
		_, err = client.WriteTo(data, b.Addr())
		require.NoError(t, err)

		buf := make([]byte, packet.MaxDatagramSize)
		require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
		n, _, err := client.ReadFrom(buf)
		require.NoError(t, err)
		var reply packet.Packet
		require.NoError(t, reply.UnmarshalBinary(buf[:n]))
		return reply
	}

	assert.Equal(t, packet.NewAck(1), roundTrip(packet.NewSubscribe(1, "loopback")))
	assert.True(t, b.Serving())

	// Subscribed to its own topic: the fan-out precedes the Ack
	assert.Equal(t, packet.NewPublish(1, "loopback", "ping"), roundTrip(packet.NewPublish(5, "loopback", "ping")))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	assert.False(t, b.Serving())
}

func TestServe_BacksOffOnPersistentReadErrors(t *testing.T) {
	conn := &failingConn{}
	b, err := New(conn, NewConfig("127.0.0.1:0"))
	require.NoError(t, err)
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()
	require.NoError(t, b.Serve(ctx))

	// 5ms doubling: roughly six reads fit in 250ms, a busy loop would make millions
	reads := conn.reads.Load()
	assert.GreaterOrEqual(t, reads, int32(2))
	assert.LessOrEqual(t, reads, int32(10))
	assert.False(t, b.Serving())
}

func TestWithLogger_TagsComponent(t *testing.T) {
	var buf bytes.Buffer
	b, err := New(&recordingConn{}, NewConfig("127.0.0.1:0"), WithLogger(zerolog.New(&buf)))
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, b.Subscribe("Brasil", endpoint(5001)))
	assert.Contains(t, buf.String(), `"component":"broker"`)
	assert.Contains(t, buf.String(), "subscription added")
}
