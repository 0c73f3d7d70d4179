package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/msto63/wiener/internal/lock"
	"github.com/msto63/wiener/internal/orchestrator"
	"github.com/msto63/wiener/pkg/core/health"
)

// APIError is a non-2xx answer of the control API
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
}

// Client talks to a running control API
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a client for the control API at baseURL
func NewClient(baseURL string) *Client {
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Submit posts a goal or script request
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (SubmitResponse, error) {
	var out SubmitResponse
	err := c.do(ctx, http.MethodPost, "/api/v1/goals", req, &out)
	return out, err
}

// Goal fetches one goal
func (c *Client) Goal(ctx context.Context, id int64) (orchestrator.GoalInfo, error) {
	var out orchestrator.GoalInfo
	err := c.do(ctx, http.MethodGet, "/api/v1/goals/"+strconv.FormatInt(id, 10), nil, &out)
	return out, err
}

// Goals lists the goal table
func (c *Client) Goals(ctx context.Context) ([]orchestrator.GoalInfo, error) {
	var out []orchestrator.GoalInfo
	err := c.do(ctx, http.MethodGet, "/api/v1/goals", nil, &out)
	return out, err
}

// Cancel requests cancellation of a goal
func (c *Client) Cancel(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/goals/"+strconv.FormatInt(id, 10), nil, nil)
}

// Locks lists the lock set
func (c *Client) Locks(ctx context.Context) ([]lock.State, error) {
	var out []lock.State
	err := c.do(ctx, http.MethodGet, "/api/v1/locks", nil, &out)
	return out, err
}

// Providers returns the provider view
func (c *Client) Providers(ctx context.Context) (ProvidersResponse, error) {
	var out ProvidersResponse
	err := c.do(ctx, http.MethodGet, "/api/v1/providers", nil, &out)
	return out, err
}

// Health returns the health report. An unhealthy report is not an error.
func (c *Client) Health(ctx context.Context) (health.Report, error) {
	var out health.Report
	err := c.do(ctx, http.MethodGet, "/health", nil, &out)
	if apiErr, ok := err.(*APIError); ok && apiErr.Status == http.StatusServiceUnavailable && out.Service != "" {
		return out, nil
	}
	return out, err
}

// Close releases idle connections
func (c *Client) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var reader io.Reader
	if in != nil {
		body, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response of %s: %w", path, err)
	}

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(data))}
		var envelope struct {
			Error ErrorBody `json:"error"`
		}
		if json.Unmarshal(data, &envelope) == nil && envelope.Error.Message != "" {
			apiErr.Code, apiErr.Message = envelope.Error.Code, envelope.Error.Message
		} else if out != nil {
			// health reports carry their own body on 503
			json.Unmarshal(data, out)
		}
		return apiErr
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response of %s: %w", path, err)
	}
	return nil
}
