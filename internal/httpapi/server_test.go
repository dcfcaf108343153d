package httpapi

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func do(t *testing.T, setup *TestServerSetup, method, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	setup.Server.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	require.NoError(t, json.NewDecoder(w.Body).Decode(v), "body: %s", w.Body.String())
}

func udpAddr(port int) *net.UDPAddr {
	return &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port}
}

func TestNewServer_RequiresSecret(t *testing.T) {
	_, err := NewServer(nil, nil, Config{}, zerolog.Nop())
	assert.ErrorIs(t, err, ErrMissingSecret)
}

func TestRoot(t *testing.T) {
	setup := NewTestServerSetup(t)

	w := do(t, setup, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, w.Code)
	var info map[string]interface{}
	decode(t, w, &info)
	assert.Equal(t, "seqbroker admin API", info["service"])

	w = do(t, setup, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealth(t *testing.T) {
	setup := NewTestServerSetup(t)

	t.Run("not_serving", func(t *testing.T) {
		w := do(t, setup, http.MethodGet, "/api/v1/health", "")
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		var resp HealthResponse
		decode(t, w, &resp)
		assert.False(t, resp.Healthy)
	})

	t.Run("serving", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- setup.Broker.Serve(ctx) }()
		defer func() {
			cancel()
			<-done
		}()
		require.Eventually(t, setup.Broker.Serving, time.Second, 10*time.Millisecond)

		w := do(t, setup, http.MethodGet, "/api/v1/health", "")
		assert.Equal(t, http.StatusOK, w.Code)
		var resp HealthResponse
		decode(t, w, &resp)
		assert.True(t, resp.Healthy)
		assert.True(t, resp.Serving)
	})
}

func TestAdminEndpoints_RequireAdminToken(t *testing.T) {
	setup := NewTestServerSetup(t)
	paths := []string{
		"/api/v1/admin/stats",
		"/api/v1/admin/subscriptions",
		"/api/v1/admin/topics",
		"/api/v1/admin/history",
	}
	userToken := setup.GenerateTestToken(t, "viewer", false)

	for _, path := range paths {
		t.Run(strings.TrimPrefix(path, "/api/v1/admin/"), func(t *testing.T) {
			assert.Equal(t, http.StatusUnauthorized, do(t, setup, http.MethodGet, path, "").Code)
			assert.Equal(t, http.StatusUnauthorized, do(t, setup, http.MethodGet, path, "garbage").Code)
			assert.Equal(t, http.StatusForbidden, do(t, setup, http.MethodGet, path, userToken).Code)
		})
	}
}

func TestAdminEndpoints_RejectWrites(t *testing.T) {
	setup := NewTestServerSetup(t)
	token := setup.GenerateTestToken(t, "operator", true)

	w := do(t, setup, http.MethodPost, "/api/v1/admin/stats", token)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Equal(t, "GET, HEAD", w.Header().Get("Allow"))
}

func TestAdminStats(t *testing.T) {
	setup := NewTestServerSetup(t)
	token := setup.GenerateTestToken(t, "operator", true)

	require.NoError(t, setup.Broker.Subscribe("Brasil", udpAddr(5001)))
	_, err := setup.Broker.Publish("Brasil", "Gol")
	require.NoError(t, err)

	w := do(t, setup, http.MethodGet, "/api/v1/admin/stats", token)
	require.Equal(t, http.StatusOK, w.Code)
	var resp AdminStatsResponse
	decode(t, w, &resp)
	assert.Equal(t, 1, resp.Subscriptions)
	assert.Equal(t, 1, resp.SequencedTopics)
	assert.Equal(t, uint64(1), resp.Published)
	assert.Equal(t, 100, resp.HistoryCapacity)
	assert.False(t, resp.StartedAt.IsZero())
}

func TestAdminSubscriptions(t *testing.T) {
	setup := NewTestServerSetup(t)
	token := setup.GenerateTestToken(t, "operator", true)

	require.NoError(t, setup.Broker.Subscribe("Colombia vs Argentina", udpAddr(5001)))
	require.NoError(t, setup.Broker.Subscribe("Brasil", udpAddr(5001)))
	require.NoError(t, setup.Broker.Subscribe("Brasil", udpAddr(5002)))

	w := do(t, setup, http.MethodGet, "/api/v1/admin/subscriptions", token)
	require.Equal(t, http.StatusOK, w.Code)
	var all AdminSubscriptionsResponse
	decode(t, w, &all)
	assert.Equal(t, 3, all.Count)
	assert.Equal(t, SubscriptionInfo{Topic: "Colombia vs Argentina", Endpoint: "127.0.0.1:5001"}, all.Subscriptions[0])

	w = do(t, setup, http.MethodGet, "/api/v1/admin/subscriptions?topic=Brasil", token)
	var filtered AdminSubscriptionsResponse
	decode(t, w, &filtered)
	assert.Equal(t, 2, filtered.Count)
}

func TestAdminTopics(t *testing.T) {
	setup := NewTestServerSetup(t)
	token := setup.GenerateTestToken(t, "operator", true)

	require.NoError(t, setup.Broker.Subscribe("b", udpAddr(5001)))
	for _, topic := range []string{"b", "a", "b"} {
		_, err := setup.Broker.Publish(topic, "x")
		require.NoError(t, err)
	}

	w := do(t, setup, http.MethodGet, "/api/v1/admin/topics", token)
	require.Equal(t, http.StatusOK, w.Code)
	var resp AdminTopicsResponse
	decode(t, w, &resp)
	assert.Equal(t, []TopicInfo{
		{Topic: "a", LastSequence: 1},
		{Topic: "b", LastSequence: 2, Subscribers: 1},
	}, resp.Topics)
}

func TestAdminHistory(t *testing.T) {
	setup := NewTestServerSetup(t)
	token := setup.GenerateTestToken(t, "operator", true)

	for _, m := range [][2]string{{"a", "1"}, {"b", "1"}, {"a", "2"}, {"a", "3"}} {
		_, err := setup.Broker.Publish(m[0], m[1])
		require.NoError(t, err)
	}

	var resp AdminHistoryResponse
	w := do(t, setup, http.MethodGet, "/api/v1/admin/history?topic=a&limit=2", token)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &resp)
	assert.Equal(t, []HistoryEntry{
		{Sequence: 2, Topic: "a", Content: "2"},
		{Sequence: 3, Topic: "a", Content: "3"},
	}, resp.Entries)
	assert.Equal(t, 100, resp.Capacity)

	w = do(t, setup, http.MethodGet, "/api/v1/admin/history?limit=-1", token)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	setup := NewTestServerSetup(t)
	_, err := setup.Broker.Publish("Brasil", "Gol")
	require.NoError(t, err)

	w := do(t, setup, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `seqbroker_published_total{topic="Brasil"} 1`)
}

func TestRecovery(t *testing.T) {
	m := NewMiddleware(NewJWTAuth("s"), zerolog.Nop())
	h := m.Recovery(func(http.ResponseWriter, *http.Request) { panic("boom") })

	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestServer_StartStop(t *testing.T) {
	setup := NewTestServerSetup(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- setup.Server.Serve(ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, setup.Server.Stop(ctx))
	assert.NoError(t, <-done)
}
