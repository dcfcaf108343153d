package client

import (
	"fmt"
	"time"
)

const (
	// DefaultBrokerAddress is where the broker listens by default
	DefaultBrokerAddress = "127.0.0.1:7000"
	// DefaultAckTimeout bounds the wait for a publish or subscribe Ack
	DefaultAckTimeout = 2000 * time.Millisecond
	// DefaultRetransmitTimeout bounds the wait for each retransmission
	DefaultRetransmitTimeout = 500 * time.Millisecond
	// DefaultMaxTopics bounds how many topics one subscriber follows
	DefaultMaxTopics = 10
)

// GapPolicy selects what a Subscriber does about missing sequences.
type GapPolicy string

const (
	// GapPolicyRecover requests each missing sequence from the broker
	GapPolicyRecover GapPolicy = "recover"
	// GapPolicySkip reports missing sequences as lost without asking
	GapPolicySkip GapPolicy = "skip"
)

// Config holds client configuration shared by publishers and subscribers.
type Config struct {
	// BrokerAddress is the broker's UDP address
	BrokerAddress string `env:"BROKER_ADDR" envDefault:"127.0.0.1:7000"`

	// LocalAddress optionally pins the client's own UDP address
	LocalAddress string `env:"LOCAL_ADDR"`

	AckTimeout        time.Duration `env:"ACK_TIMEOUT" envDefault:"2s"`
	RetransmitTimeout time.Duration `env:"RETRANSMIT_TIMEOUT" envDefault:"500ms"`

	// MaxTopics bounds Subscriber topics
	MaxTopics int `env:"MAX_TOPICS" envDefault:"10"`

	GapPolicy GapPolicy `env:"GAP_POLICY" envDefault:"recover"`
}

// NewConfig returns a configuration for brokerAddress with defaults applied
func NewConfig(brokerAddress string) *Config {
	c := &Config{BrokerAddress: brokerAddress}
	c.SetDefaults()
	return c
}

// SetDefaults fills unset fields
func (c *Config) SetDefaults() {
	if c.BrokerAddress == "" {
		c.BrokerAddress = DefaultBrokerAddress
	}
	if c.AckTimeout == 0 {
		c.AckTimeout = DefaultAckTimeout
	}
	if c.RetransmitTimeout == 0 {
		c.RetransmitTimeout = DefaultRetransmitTimeout
	}
	if c.MaxTopics == 0 {
		c.MaxTopics = DefaultMaxTopics
	}
	if c.GapPolicy == "" {
		c.GapPolicy = GapPolicyRecover
	}
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	if c.BrokerAddress == "" {
		return ErrInvalidBrokerAddress
	}
	if c.AckTimeout <= 0 {
		return fmt.Errorf("ack timeout: %w", ErrInvalidTimeout)
	}
	if c.RetransmitTimeout <= 0 {
		return fmt.Errorf("retransmit timeout: %w", ErrInvalidTimeout)
	}
	if c.MaxTopics <= 0 {
		return fmt.Errorf("max topics must be positive, got %d", c.MaxTopics)
	}
	switch c.GapPolicy {
	case GapPolicyRecover, GapPolicySkip:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownGapPolicy, c.GapPolicy)
	}
	return nil
}
