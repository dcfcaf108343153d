package client

import "github.com/rs/zerolog"

type options struct {
	logger zerolog.Logger
}

// Option customises a Publisher or Subscriber.
type Option func(*options)

// WithLogger sets the client logger. The default discards everything.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func buildOptions(opts []Option) options {
	o := options{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
