package httpapi

import (
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/rmacdonaldsmith/seqbroker/internal/broker"
	historypkg "github.com/rmacdonaldsmith/seqbroker/pkg/history"
	"github.com/rmacdonaldsmith/seqbroker/pkg/routingtable"
)

// BrokerView is the read-only broker surface the admin API reports on.
type BrokerView interface {
	Serving() bool
	Stats() broker.Stats
	Subscriptions() []routingtable.Subscription
	TopicSequences() map[string]uint32
	History() []historypkg.Entry
}

// Verify that Broker satisfies BrokerView at compile time
var _ BrokerView = (*broker.Broker)(nil)

// Handlers contains all HTTP handlers
type Handlers struct {
	broker    BrokerView
	startedAt time.Time
}

// NewHandlers creates a new handlers instance
func NewHandlers(b BrokerView) *Handlers {
	return &Handlers{
		broker:    b,
		startedAt: time.Now(),
	}
}

// Health handles GET /api/v1/health
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	serving := h.broker.Serving()
	resp := HealthResponse{
		Healthy: serving,
		Serving: serving,
		Uptime:  time.Since(h.startedAt).Round(time.Second).String(),
		Message: "broker dispatch loop running",
	}

	statusCode := http.StatusOK
	if !serving {
		resp.Message = "broker dispatch loop not running"
		statusCode = http.StatusServiceUnavailable
	}
	writeJSON(w, resp, statusCode)
}

// Admin endpoints

// AdminGetStats handles GET /api/v1/admin/stats
func (h *Handlers) AdminGetStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, AdminStatsResponse{
		Stats:     h.broker.Stats(),
		StartedAt: h.startedAt,
	}, http.StatusOK)
}

// AdminListSubscriptions handles GET /api/v1/admin/subscriptions[?topic=]
func (h *Handlers) AdminListSubscriptions(w http.ResponseWriter, r *http.Request) {
	topic := r.URL.Query().Get("topic")

	subs := make([]SubscriptionInfo, 0)
	for _, s := range h.broker.Subscriptions() {
		if topic != "" && s.Topic != topic {
			continue
		}
		subs = append(subs, SubscriptionInfo{Topic: s.Topic, Endpoint: s.Addr.String()})
	}

	writeJSON(w, AdminSubscriptionsResponse{Subscriptions: subs, Count: len(subs)}, http.StatusOK)
}

// AdminListTopics handles GET /api/v1/admin/topics
func (h *Handlers) AdminListTopics(w http.ResponseWriter, r *http.Request) {
	subscribers := make(map[string]int)
	for _, s := range h.broker.Subscriptions() {
		subscribers[s.Topic]++
	}

	topics := make([]TopicInfo, 0)
	for topic, seq := range h.broker.TopicSequences() {
		topics = append(topics, TopicInfo{Topic: topic, LastSequence: seq, Subscribers: subscribers[topic]})
	}
	sort.Slice(topics, func(i, j int) bool { return topics[i].Topic < topics[j].Topic })

	writeJSON(w, AdminTopicsResponse{Topics: topics, Count: len(topics)}, http.StatusOK)
}

// AdminListHistory handles GET /api/v1/admin/history[?topic=&limit=]. With a
// limit only the newest entries are returned.
func (h *Handlers) AdminListHistory(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	topic := query.Get("topic")

	limit := 0
	if raw := query.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	entries := make([]HistoryEntry, 0)
	for _, e := range h.broker.History() {
		if topic != "" && e.Topic != topic {
			continue
		}
		entries = append(entries, HistoryEntry{Sequence: e.Sequence, Topic: e.Topic, Content: e.Content})
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}

	writeJSON(w, AdminHistoryResponse{
		Entries:  entries,
		Count:    len(entries),
		Capacity: h.broker.Stats().HistoryCapacity,
	}, http.StatusOK)
}
