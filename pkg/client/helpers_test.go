package client

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rmacdonaldsmith/seqbroker/pkg/packet"
)

// fakeBroker is a raw UDP socket standing in for the broker.
type fakeBroker struct {
	t    *testing.T
	conn net.PacketConn
}

func newFakeBroker(t *testing.T) *fakeBroker {
	t.Helper()
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &fakeBroker{t: t, conn: conn}
}

func (f *fakeBroker) addr() net.Addr { return f.conn.LocalAddr() }

// read returns the next datagram from a client.
func (f *fakeBroker) read() packet.Packet {
	f.t.Helper()
	buf := make([]byte, packet.MaxDatagramSize)
	require.NoError(f.t, f.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, _, err := f.conn.ReadFrom(buf)
	require.NoError(f.t, err)
	var p packet.Packet
	require.NoError(f.t, p.UnmarshalBinary(buf[:n]))
	return p
}

// quiet asserts nothing arrives within d.
func (f *fakeBroker) quiet(d time.Duration) {
	f.t.Helper()
	buf := make([]byte, packet.MaxDatagramSize)
	require.NoError(f.t, f.conn.SetReadDeadline(time.Now().Add(d)))
	n, _, err := f.conn.ReadFrom(buf)
	if err == nil {
		var p packet.Packet
		_ = p.UnmarshalBinary(buf[:n])
		f.t.Fatalf("Expected no datagram, got %s", p)
	}
}

func (f *fakeBroker) send(p packet.Packet, to net.Addr) {
	f.t.Helper()
	data, err := p.MarshalBinary()
	require.NoError(f.t, err)
	_, err = f.conn.WriteTo(data, to)
	require.NoError(f.t, err)
}

func testConfig(broker net.Addr) *Config {
	cfg := NewConfig(broker.String())
	cfg.AckTimeout = 500 * time.Millisecond
	cfg.RetransmitTimeout = 200 * time.Millisecond
	return cfg
}

func localConn(t *testing.T) net.PacketConn {
	t.Helper()
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	return conn
}
