package httpapi

import (
	"net"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/rmacdonaldsmith/seqbroker/internal/broker"
)

// TestServerSetup holds common test dependencies
type TestServerSetup struct {
	Broker *broker.Broker
	Server *Server
	Auth   *JWTAuth
}

// NewTestServerSetup creates a broker on a loopback socket and an admin
// server reporting on it
func NewTestServerSetup(t *testing.T) *TestServerSetup {
	t.Helper()

	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	b, err := broker.New(conn, broker.NewConfig(conn.LocalAddr().String()))
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })

	server, err := NewServer(b, b.Registry(), Config{Address: "127.0.0.1:0", SecretKey: "test-secret-key"}, zerolog.Nop())
	require.NoError(t, err)

	return &TestServerSetup{
		Broker: b,
		Server: server,
		Auth:   server.Auth(),
	}
}

// GenerateTestToken creates a JWT token for testing
func (setup *TestServerSetup) GenerateTestToken(t *testing.T, subject string, isAdmin bool) string {
	t.Helper()

	token, _, err := setup.Auth.GenerateToken(subject, isAdmin, 0)
	require.NoError(t, err)
	return token
}
