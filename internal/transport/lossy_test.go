package transport

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmacdonaldsmith/seqbroker/pkg/packet"
)

func listen(t *testing.T) net.PacketConn {
	t.Helper()
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func encode(t *testing.T, p packet.Packet) []byte {
	t.Helper()
	b, err := p.MarshalBinary()
	require.NoError(t, err)
	return b
}

func TestLossyConn_DropsSelectedDatagrams(t *testing.T) {
	sender := NewLossyConn(listen(t), DropPublishOnce("Brasil", 2))
	receiver := listen(t)

	for seq := uint32(1); seq <= 3; seq++ {
		_, err := sender.WriteTo(encode(t, packet.NewPublish(seq, "Brasil", "Gol")), receiver.LocalAddr())
		require.NoError(t, err)
	}
	// Second attempt at seq 2 is a retransmission and must pass
	_, err := sender.WriteTo(encode(t, packet.NewPublish(2, "Brasil", "Gol")), receiver.LocalAddr())
	require.NoError(t, err)

	var got []uint32
	buf := make([]byte, packet.MaxDatagramSize)
	require.NoError(t, receiver.SetReadDeadline(time.Now().Add(time.Second)))
	for len(got) < 3 {
		n, _, err := receiver.ReadFrom(buf)
		require.NoError(t, err)
		var p packet.Packet
		require.NoError(t, p.UnmarshalBinary(buf[:n]))
		got = append(got, p.Sequence)
	}

	assert.Equal(t, []uint32{1, 3, 2}, got)
	assert.Equal(t, int64(1), sender.Dropped())
}

func TestDropPublishOnce_OtherTopicsPass(t *testing.T) {
	drop := DropPublishOnce("Brasil", 1)

	assert.False(t, drop(encode(t, packet.NewPublish(1, "Uruguay", "x")), nil))
	assert.False(t, drop(encode(t, packet.NewAck(1)), nil))
	assert.True(t, drop(encode(t, packet.NewPublish(1, "Brasil", "x")), nil))
	assert.False(t, drop(encode(t, packet.NewPublish(1, "Brasil", "x")), nil))
}

func TestDropKind(t *testing.T) {
	drop := DropKind(packet.Ack)

	assert.True(t, drop(encode(t, packet.NewAck(1)), nil))
	assert.False(t, drop(encode(t, packet.NewSubscribe(1, "a")), nil))
	assert.False(t, drop([]byte{1}, nil))
}

func TestRandomLoss_Bounds(t *testing.T) {
	pub := encode(t, packet.NewPublish(1, "a", "b"))

	never := RandomLoss(0, 1)
	always := RandomLoss(1, 1)
	for i := 0; i < 50; i++ {
		assert.False(t, never(pub, nil))
		assert.True(t, always(pub, nil))
	}

	// Control traffic is never dropped
	assert.False(t, always(encode(t, packet.NewAck(1)), nil))
}

func TestLossyConn_NilDropFunc(t *testing.T) {
	sender := NewLossyConn(listen(t), nil)
	receiver := listen(t)

	_, err := sender.WriteTo(encode(t, packet.NewAck(7)), receiver.LocalAddr())
	require.NoError(t, err)
	assert.Zero(t, sender.Dropped())
}
