package httpapi

import (
	"time"

	"github.com/rmacdonaldsmith/seqbroker/internal/broker"
)

// Request/Response types for the admin API

// HealthResponse represents health check response
type HealthResponse struct {
	Healthy bool   `json:"healthy"`
	Serving bool   `json:"serving"`
	Uptime  string `json:"uptime"`
	Message string `json:"message"`
}

// AdminStatsResponse represents broker statistics
type AdminStatsResponse struct {
	broker.Stats
	StartedAt time.Time `json:"startedAt"`
}

// AdminSubscriptionsResponse lists every (topic, endpoint) subscription
type AdminSubscriptionsResponse struct {
	Subscriptions []SubscriptionInfo `json:"subscriptions"`
	Count         int                `json:"count"`
}

// SubscriptionInfo is one subscription as seen by the broker
type SubscriptionInfo struct {
	Topic    string `json:"topic"`
	Endpoint string `json:"endpoint"`
}

// AdminTopicsResponse lists every sequenced topic
type AdminTopicsResponse struct {
	Topics []TopicInfo `json:"topics"`
	Count  int         `json:"count"`
}

// TopicInfo is a topic and the last sequence assigned to it
type TopicInfo struct {
	Topic        string `json:"topic"`
	LastSequence uint32 `json:"lastSequence"`
	Subscribers  int    `json:"subscribers"`
}

// AdminHistoryResponse lists replay ring entries, oldest first
type AdminHistoryResponse struct {
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
