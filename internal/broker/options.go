package broker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/rmacdonaldsmith/seqbroker/internal/logging"
)

// Option customises a Broker at construction.
type Option func(*Broker)

// WithLogger sets the broker's logger. The default discards everything.
func WithLogger(l zerolog.Logger) Option {
	return func(b *Broker) { b.logger = logging.Component(l, "broker") }
}

// WithRegistry registers the broker's metrics into reg instead of a private
// registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(b *Broker) { b.registry = reg }
}
