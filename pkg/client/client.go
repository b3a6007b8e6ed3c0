package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dennisdiepolder/monti/cdrinsight/internal/cdr"
	"github.com/dennisdiepolder/monti/cdrinsight/internal/filter"
	"github.com/dennisdiepolder/monti/cdrinsight/internal/pipeline"
)

// Client talks to the cdr-insight HTTP API
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a new client. token may be empty when the server
// runs with SKIP_AUTH.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// UploadDataset loads ds on the server and returns the first snapshot
func (c *Client) UploadDataset(ctx context.Context, ds cdr.Dataset) (*pipeline.Snapshot, error) {
	var snap pipeline.Snapshot
	if err := c.do(ctx, http.MethodPost, "/api/dataset", ds, http.StatusCreated, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// SetFilters replaces the server's filter state
func (c *Client) SetFilters(ctx context.Context, st filter.State) (*pipeline.Snapshot, error) {
	var snap pipeline.Snapshot
	if err := c.do(ctx, http.MethodPut, "/api/filters", st, http.StatusOK, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Snapshot retrieves the current snapshot
func (c *Client) Snapshot(ctx context.Context) (*pipeline.Snapshot, error) {
	var snap pipeline.Snapshot
	if err := c.do(ctx, http.MethodGet, "/api/snapshot", nil, http.StatusOK, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Health checks if the service is healthy
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, http.StatusOK, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in any, want int, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s %s: unexpected status code: %d, body: %s", method, path, resp.StatusCode, string(msg))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
