package httpclient

import (
	"fmt"
	"time"
)

// Config holds client configuration
type Config struct {
	// ServerURL is the base URL of the admin API (e.g., "http://localhost:7080")
	ServerURL string

	// Token is the admin bearer token sent with admin requests
	Token string

	// Timeout for HTTP requests
	Timeout time.Duration
}

// SetDefaults sets reasonable default values for the config
func (c *Config) SetDefaults() {
	if c.Timeout == 0 {
		c.Timeout = 10 * time.Second
	}
}

// HealthResponse represents health check response
type HealthResponse struct {
	Healthy bool   `json:"healthy"`
	Serving bool   `json:"serving"`
	Uptime  string `json:"uptime"`
	Message string `json:"message"`
}

// StatsResponse represents broker statistics
type StatsResponse struct {
	Serving           bool      `json:"serving"`
	Subscriptions     int       `json:"subscriptions"`
	MaxSubscriptions  int       `json:"max_subscriptions"`
	SubscribedTopics  int       `json:"subscribed_topics"`
	SequencedTopics   int       `json:"sequenced_topics"`
	MaxTopics         int       `json:"max_topics"`
	HistoryEntries    int       `json:"history_entries"`
	HistoryCapacity   int       `json:"history_capacity"`
	Published         uint64    `json:"published"`
	FanoutSent        uint64    `json:"fanout_sent"`
	FanoutFailed      uint64    `json:"fanout_failed"`
	Retransmitted     uint64    `json:"retransmitted"`
	RetransmitRefused uint64    `json:"retransmit_refused"`
	Dropped           uint64    `json:"dropped"`
	StartedAt         time.Time `json:"startedAt"`
}

// SubscriptionsResponse lists (topic, endpoint) subscriptions
type SubscriptionsResponse struct {
	Subscriptions []Subscription `json:"subscriptions"`
	Count         int            `json:"count"`
}

// Subscription is one subscription as seen by the broker
type Subscription struct {
	Topic    string `json:"topic"`
	Endpoint string `json:"endpoint"`
}

// TopicsResponse lists sequenced topics
type TopicsResponse struct {
	Topics []Topic `json:"topics"`
	Count  int     `json:"count"`
}

// Topic is a topic and its last assigned sequence
type Topic struct {
	Topic        string `json:"topic"`
	LastSequence uint32 `json:"lastSequence"`
	Subscribers  int    `json:"subscribers"`
}

// HistoryResponse lists retained messages, oldest first
type HistoryResponse struct {
	Entries  []HistoryEntry `json:"entries"`
	Count    int            `json:"count"`
	Capacity int            `json:"capacity"`
}

// HistoryEntry is one retained message
type HistoryEntry struct {
	Sequence uint32 `json:"sequence"`
	Topic    string `json:"topic"`
	Content  string `json:"content"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// APIError is returned for non-2xx responses
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}
