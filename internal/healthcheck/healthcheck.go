// Package healthcheck exposes the broker's liveness through the standard
// gRPC health checking protocol.
package healthcheck

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"

	"github.com/rmacdonaldsmith/seqbroker/internal/logging"
)

const (
	// ServiceName is the health service name clients query
	ServiceName = "seqbroker"
	// DefaultAddress is where the health service listens by default
	DefaultAddress = ":7090"
	// DefaultInterval is how often Watch re-evaluates the probe
	DefaultInterval = time.Second
)

// Server serves grpc.health.v1.Health for the broker. Both ServiceName and
// the empty overall service report the same status.
type Server struct {
	srv    *grpc.Server
	health *health.Server
	logger zerolog.Logger
}

// New creates a health server reporting NOT_SERVING until told otherwise.
func New(logger zerolog.Logger) *Server {
	srv := grpc.NewServer(
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{MinTime: 5 * time.Second, PermitWithoutStream: true}),
	)
	h := health.NewServer()
	healthpb.RegisterHealthServer(srv, h)

	s := &Server{
		srv:    srv,
		health: h,
		logger: logging.Component(logger, "healthcheck"),
	}
	s.SetServing(false)
	return s
}

// SetServing updates the reported status.
func (s *Server) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

// Watch polls probe every interval and mirrors its result until ctx ends,
// then reports NOT_SERVING. A non-positive interval uses DefaultInterval.
func (s *Server) Watch(ctx context.Context, probe func() bool, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := probe()
	s.SetServing(last)
	for {
		select {
		case <-ctx.Done():
			s.SetServing(false)
			return
		case <-ticker.C:
			if now := probe(); now != last {
				s.logger.Info().Bool("serving", now).Msg("health status changed")
				last = now
				s.SetServing(now)
			}
		}
	}
}

// Listen binds addr and serves until Stop.
func (s *Server) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve serves on ln until Stop. It returns nil after Stop.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info().Str("addr", ln.Addr().String()).Msg("health service listening")
	if err := s.srv.Serve(ln); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// Stop reports NOT_SERVING and stops gracefully, forcing the stop if ctx
// ends first.
func (s *Server) Stop(ctx context.Context) error {
	s.health.Shutdown()
	done := make(chan struct{})
	go func() {
		s.srv.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.srv.Stop()
		return ctx.Err()
	}
}
