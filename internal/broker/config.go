package broker

import (
	"errors"
	"fmt"

	"github.com/rmacdonaldsmith/seqbroker/internal/history"
	"github.com/rmacdonaldsmith/seqbroker/internal/routingtable"
	"github.com/rmacdonaldsmith/seqbroker/internal/sequencer"
)

// DefaultListenAddress is the broker's well-known UDP port.
const DefaultListenAddress = ":7000"

var (
	// ErrInvalidListenAddress is returned when listen address is empty
	ErrInvalidListenAddress = errors.New("listen address cannot be empty")
	// ErrNegativeCapacity is returned when a table capacity is negative
	ErrNegativeCapacity = errors.New("capacity cannot be negative")
	// ErrInvalidLossRate is returned when the injected loss rate is outside [0, 1)
	ErrInvalidLossRate = errors.New("loss rate must be in [0, 1)")
)

// Config represents configuration for a Broker
type Config struct {
	// ListenAddress is the UDP address the broker binds, e.g. ":7000"
	ListenAddress string `env:"LISTEN_ADDR" envDefault:":7000"`

	// MaxSubscriptions bounds the subscription table
	MaxSubscriptions int `env:"MAX_SUBSCRIPTIONS" envDefault:"100"`

	// MaxTopics bounds the per-topic sequence table
	MaxTopics int `env:"MAX_TOPICS" envDefault:"50"`

	// HistorySize is the number of slots in the replay ring
	HistorySize int `env:"HISTORY_SIZE" envDefault:"100"`

	// LegacySequenceLookup resolves retransmissions by sequence alone and
	// relies on the topic check to refuse collisions, instead of keying the
	// lookup on (topic, sequence).
	LegacySequenceLookup bool `env:"LEGACY_SEQUENCE_LOOKUP"`

	// LossRate drops this fraction of outbound Publish datagrams. Zero in
	// production; used to exercise subscriber recovery.
	LossRate float64 `env:"LOSS_RATE"`
}

// NewConfig creates a new Broker configuration with safe defaults
func NewConfig(listenAddress string) *Config {
	c := &Config{ListenAddress: listenAddress}
	c.SetDefaults()
	return c
}

// SetDefaults sets default values for unset capacities
func (c *Config) SetDefaults() {
	if c.ListenAddress == "" {
		c.ListenAddress = DefaultListenAddress
	}
	if c.MaxSubscriptions == 0 {
		c.MaxSubscriptions = routingtable.DefaultCapacity
	}
	if c.MaxTopics == 0 {
		c.MaxTopics = sequencer.DefaultCapacity
	}
	if c.HistorySize == 0 {
		c.HistorySize = history.DefaultCapacity
	}
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	if c.ListenAddress == "" {
		return ErrInvalidListenAddress
	}
	if c.MaxSubscriptions < 0 {
		return fmt.Errorf("max subscriptions: %w", ErrNegativeCapacity)
	}
	if c.MaxTopics < 0 {
		return fmt.Errorf("max topics: %w", ErrNegativeCapacity)
	}
	if c.HistorySize < 0 {
		return fmt.Errorf("history size: %w", ErrNegativeCapacity)
	}
	if c.LossRate < 0 || c.LossRate >= 1 {
		return fmt.Errorf("%w: %v", ErrInvalidLossRate, c.LossRate)
	}
	return nil
}

// WithLegacySequenceLookup toggles sequence-only replay lookup
func (c *Config) WithLegacySequenceLookup(enabled bool) *Config {
	c.LegacySequenceLookup = enabled
	return c
}

// WithCapacities sets the subscription, topic and history bounds
func (c *Config) WithCapacities(subscriptions, topics, history int) *Config {
	c.MaxSubscriptions = subscriptions
	c.MaxTopics = topics
	c.HistorySize = history
	return c
}
