package batchclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/okian/factorlens/internal/domain/assemble"
	"github.com/okian/factorlens/internal/domain/types"
)

// Client calls the deployment API.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a client with a per-request timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Health checks GET /healthz.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnhealthy, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrUnhealthy, resp.StatusCode)
	}
	return nil
}

// Upload posts a batch and returns its ID.
func (c *Client) Upload(ctx context.Context, body types.UploadRequest) (types.UploadResponse, error) {
	var out types.UploadResponse
	err := c.do(ctx, http.MethodPost, "/v1/batches", body, &out)
	return out, err
}

// Deploy fetches the prediction table for a batch.
func (c *Client) Deploy(ctx context.Context, batchID string, factors int) (*assemble.Table, error) {
	q := url.Values{}
	if factors > 0 {
		q.Set("factors", strconv.Itoa(factors))
	}
	var t assemble.Table
	if err := c.do(ctx, http.MethodGet, batchPath(batchID, "deploy", q), nil, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// Factors fetches the top-factor table for a batch.
func (c *Client) Factors(ctx context.Context, batchID string, n int, weights bool) (*assemble.Table, error) {
	q := url.Values{}
	if n > 0 {
		q.Set("n", strconv.Itoa(n))
	}
	if weights {
		q.Set("weights", "true")
	}
	var t assemble.Table
	if err := c.do(ctx, http.MethodGet, batchPath(batchID, "factors", q), nil, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// ProcessVariables fetches the recommendation table for a batch.
func (c *Client) ProcessVariables(ctx context.Context, batchID string, body types.ProcessVariablesRequest) (*assemble.Table, error) {
	var t assemble.Table
	if err := c.do(ctx, http.MethodPost, batchPath(batchID, "process-variables", nil), body, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func batchPath(batchID, op string, q url.Values) string {
	p := "/v1/batches/" + url.PathEscape(batchID) + "/" + op
	if len(q) > 0 {
		p += "?" + q.Encode()
	}
	return p
}

// do sends body as JSON and decodes a 2xx response into out. Other statuses
// become an *APIError.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		var e types.ErrorResponse
		if json.Unmarshal(data, &e) == nil {
			apiErr.Code, apiErr.Message = e.Code, e.Message
		} else {
			apiErr.Message = strings.TrimSpace(string(data))
		}
		return apiErr
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
