package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Veenoway/on-chain-chess-sub001/internal/models"
)

// APIError non-2xx response carrying a recognized error payload
type APIError struct {
	StatusCode    int
	Code          string
	Message       string
	QueueCapacity int
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("matchmaking api: %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("matchmaking api: %d %s", e.StatusCode, e.Code)
}

// Retryable QUEUE_FULL and rate limiting are worth retrying after a pause
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// IsQueueFull reports whether err is a QUEUE_FULL rejection
func IsQueueFull(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == "QUEUE_FULL"
}

// Client calls the matchmaking HTTP API
type Client struct {
	baseURL    string
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New baseURL is the server root, e.g. http://localhost:8080
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Join(ctx context.Context, req models.JoinQueueRequest) (*models.JoinQueueResponse, error) {
	var resp models.JoinQueueResponse
	if err := c.do(ctx, http.MethodPost, "/api/matchmaking/join", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Leave(ctx context.Context, address string) (*models.LeaveQueueResponse, error) {
	var resp models.LeaveQueueResponse
	if err := c.do(ctx, http.MethodPost, "/api/matchmaking/leave", models.AddressRequest{PlayerAddress: address}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Status(ctx context.Context, address string) (*models.QueueStatusResponse, error) {
	var resp models.QueueStatusResponse
	if err := c.do(ctx, http.MethodPost, "/api/matchmaking/status", models.AddressRequest{PlayerAddress: address}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Stats(ctx context.Context) (*models.QueueStatsResponse, error) {
	var resp models.QueueStatsResponse
	if err := c.do(ctx, http.MethodGet, "/api/matchmaking/stats", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var payload struct {
			Error         string `json:"error"`
			Message       string `json:"message"`
			QueueCapacity int    `json:"queueCapacity"`
		}
		if err := json.Unmarshal(data, &payload); err != nil || payload.Error == "" {
			return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
		}
		return &APIError{
			StatusCode:    resp.StatusCode,
			Code:          payload.Error,
			Message:       payload.Message,
			QueueCapacity: payload.QueueCapacity,
		}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
