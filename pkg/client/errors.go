package client

import "errors"

var (
	// ErrAckTimeout is returned when the broker does not acknowledge a
	// request within AckTimeout
	ErrAckTimeout = errors.New("timed out waiting for broker ack")
	// ErrRetransmitTimeout is reported when a requested retransmission does
	// not arrive within RetransmitTimeout
	ErrRetransmitTimeout = errors.New("timed out waiting for retransmission")
	// ErrTooManyTopics is returned when subscribing beyond MaxTopics
	ErrTooManyTopics = errors.New("subscriber topic limit reached")
	// ErrInvalidBrokerAddress is returned when the broker address is empty
	ErrInvalidBrokerAddress = errors.New("broker address cannot be empty")
	// ErrInvalidTimeout is returned for non-positive timeouts
	ErrInvalidTimeout = errors.New("timeout must be positive")
	// ErrUnknownGapPolicy is returned for a gap policy other than recover or skip
	ErrUnknownGapPolicy = errors.New("unknown gap policy")
)

// errWaitExpired is returned internally when a bounded wait runs out
var errWaitExpired = errors.New("wait expired")
