// Package httpapi serves the broker's read-only admin API, its health probe
// and its Prometheus metrics over HTTP.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/rmacdonaldsmith/seqbroker/internal/logging"
)

// DefaultAddress is where the admin API listens by default
const DefaultAddress = ":7080"

// ErrMissingSecret is returned when no token signing secret is configured
var ErrMissingSecret = errors.New("admin secret key cannot be empty")

// Config holds server configuration
type Config struct {
	Address   string `env:"ADMIN_ADDR" envDefault:":7080"`
	SecretKey string `env:"ADMIN_SECRET"`
}

// SetDefaults sets default values for unset fields
func (c *Config) SetDefaults() {
	if c.Address == "" {
		c.Address = DefaultAddress
	}
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	if c.SecretKey == "" {
		return ErrMissingSecret
	}
	return nil
}

// Server represents the HTTP admin server
type Server struct {
	jwtAuth    *JWTAuth
	handlers   *Handlers
	middleware *Middleware
	gatherer   prometheus.Gatherer
	server     *http.Server
	logger     zerolog.Logger
}

// NewServer creates a new admin server reporting on b. Metrics are served
// from gatherer; a nil gatherer serves the default registry.
func NewServer(b BrokerView, gatherer prometheus.Gatherer, config Config, logger zerolog.Logger) (*Server, error) {
	config.SetDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	logger = logging.Component(logger, "httpapi")
	jwtAuth := NewJWTAuth(config.SecretKey)

	server := &Server{
		jwtAuth:    jwtAuth,
		handlers:   NewHandlers(b),
		middleware: NewMiddleware(jwtAuth, logger),
		gatherer:   gatherer,
		logger:     logger,
	}

	server.server = &http.Server{
		Addr:              config.Address,
		Handler:           server.setupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1MB
	}
	return server, nil
}

// Handler returns the server's routing handler
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Auth returns the token authority used by admin endpoints
func (s *Server) Auth() *JWTAuth {
	return s.jwtAuth
}

// Start listens on the configured address and serves until Stop. It returns
// nil after an orderly Stop.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve serves on an existing listener until Stop
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info().Str("addr", ln.Addr().String()).Msg("admin API listening")
	if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() http.Handler {
	mux := http.NewServeMux()

	// Apply global middleware
	withMiddleware := func(handler http.HandlerFunc) http.Handler {
		return s.middleware.Recovery(
			s.middleware.Logging(
				s.middleware.MethodGet(
					s.middleware.ContentType(handler))))
	}

	// Health endpoint (no auth required)
	mux.Handle("/api/v1/health", withMiddleware(s.handlers.Health))

	// Admin endpoints (admin auth required)
	mux.Handle("/api/v1/admin/stats", withMiddleware(s.middleware.AdminRequired(s.handlers.AdminGetStats)))
	mux.Handle("/api/v1/admin/subscriptions", withMiddleware(s.middleware.AdminRequired(s.handlers.AdminListSubscriptions)))
	mux.Handle("/api/v1/admin/topics", withMiddleware(s.middleware.AdminRequired(s.handlers.AdminListTopics)))
	mux.Handle("/api/v1/admin/history", withMiddleware(s.middleware.AdminRequired(s.handlers.AdminListHistory)))

	// Prometheus scrape endpoint
	mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	// Root endpoint with API info
	mux.Handle("/", withMiddleware(s.handleRoot))

	return mux
}

// handleRoot provides API information
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeError(w, "Not found", http.StatusNotFound)
		return
	}

	info := map[string]interface{}{
		"service":     "seqbroker admin API",
		"version":     "1.0.0",
		"description": "Read-only view of a sequenced UDP publish/subscribe broker",
		"endpoints": map[string]interface{}{
			"admin": map[string]string{
				"stats":         "GET /api/v1/admin/stats",
				"subscriptions": "GET /api/v1/admin/subscriptions?topic={topic}",
				"topics":        "GET /api/v1/admin/topics",
				"history":       "GET /api/v1/admin/history?topic={topic}&limit={limit}",
			},
			"health":  "GET /api/v1/health",
			"metrics": "GET /metrics",
		},
		"authentication": "Bearer JWT token with admin claim required for /api/v1/admin",
	}

	writeJSON(w, info, http.StatusOK)
}
