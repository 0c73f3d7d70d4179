package discovery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPClient announces providers to a control process over its HTTP API
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient creates a client for the control API at baseURL
func NewHTTPClient(baseURL string) *HTTPClient {
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Register posts info and stores the assigned id in it
func (c *HTTPClient) Register(ctx context.Context, info *ProviderInfo) error {
	body, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("encode provider info: %w", err)
	}
	var out ProviderInfo
	if err := c.do(ctx, http.MethodPost, "/api/v1/providers", body, &out); err != nil {
		return err
	}
	info.ID = out.ID
	info.RegisteredAt = out.RegisteredAt
	info.LastHeartbeat = out.LastHeartbeat
	info.Status = out.Status
	return nil
}

// Deregister deletes the provider
func (c *HTTPClient) Deregister(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/providers/"+id, nil, nil)
}

// Heartbeat refreshes the provider
func (c *HTTPClient) Heartbeat(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPut, "/api/v1/providers/"+id+"/heartbeat", nil, nil)
}

// Close releases idle connections
func (c *HTTPClient) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body []byte, out interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	case resp.StatusCode >= 300:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response of %s: %w", path, err)
	}
	return nil
}
