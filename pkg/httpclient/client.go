// Package httpclient is a typed client for the broker's admin API.
package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
)

// ErrNoToken is returned by admin calls made without a token
var ErrNoToken = errors.New("admin token required")

// Client provides HTTP client for the admin API
type Client struct {
	config     Config
	httpClient *http.Client
	baseURL    *url.URL
}

// NewClient creates a new admin API client
func NewClient(config Config) (*Client, error) {
	config.SetDefaults()

	if config.ServerURL == "" {
		return nil, fmt.Errorf("ServerURL is required")
	}

	baseURL, err := url.Parse(config.ServerURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ServerURL: %w", err)
	}

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		baseURL:    baseURL,
	}, nil
}

// GetHealth returns the broker health. An unhealthy broker answers 503,
// which is reported as a response rather than an error.
func (c *Client) GetHealth(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	err := c.doRequest(ctx, "/api/v1/health", nil, &resp, false)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusServiceUnavailable {
		return &resp, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get health: %w", err)
	}
	return &resp, nil
}

// AdminGetStats returns broker statistics
func (c *Client) AdminGetStats(ctx context.Context) (*StatsResponse, error) {
	var resp StatsResponse
	if err := c.doRequest(ctx, "/api/v1/admin/stats", nil, &resp, true); err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}
	return &resp, nil
}

// AdminListSubscriptions returns subscriptions, optionally for one topic
func (c *Client) AdminListSubscriptions(ctx context.Context, topic string) (*SubscriptionsResponse, error) {
	query := url.Values{}
	if topic != "" {
		query.Set("topic", topic)
	}
	var resp SubscriptionsResponse
	if err := c.doRequest(ctx, "/api/v1/admin/subscriptions", query, &resp, true); err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	return &resp, nil
}

// AdminListTopics returns every sequenced topic
func (c *Client) AdminListTopics(ctx context.Context) (*TopicsResponse, error) {
	var resp TopicsResponse
	if err := c.doRequest(ctx, "/api/v1/admin/topics", nil, &resp, true); err != nil {
		return nil, fmt.Errorf("failed to list topics: %w", err)
	}
	return &resp, nil
}

// AdminListHistory returns retained messages, optionally filtered by topic
// and limited to the newest limit entries
func (c *Client) AdminListHistory(ctx context.Context, topic string, limit int) (*HistoryResponse, error) {
	query := url.Values{}
	if topic != "" {
		query.Set("topic", topic)
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	var resp HistoryResponse
	if err := c.doRequest(ctx, "/api/v1/admin/history", query, &resp, true); err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	return &resp, nil
}

// doRequest performs a GET request with optional query and authentication.
// For error statuses respBody is still filled when the body decodes.
func (c *Client) doRequest(ctx context.Context, path string, query url.Values, respBody interface{}, requireAuth bool) error {
	if requireAuth && c.config.Token == "" {
		return ErrNoToken
	}

	u := &url.URL{Path: path}
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	fullURL := c.baseURL.ResolveReference(u)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if requireAuth {
		req.Header.Set("Authorization", "Bearer "+c.config.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		if respBody != nil {
			_ = json.Unmarshal(bodyBytes, respBody)
		}
		var errResp ErrorResponse
		if err := json.Unmarshal(bodyBytes, &errResp); err != nil || errResp.Message == "" {
			return &APIError{StatusCode: resp.StatusCode, Message: string(bodyBytes)}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: errResp.Message}
	}

	if respBody != nil {
		if err := json.Unmarshal(bodyBytes, respBody); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}

	return nil
}
