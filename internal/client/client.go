// Package client is the typed HTTP client for the bugtrack API. It builds
// requests, decodes the response envelope, and maps HTTP failures back
// onto the error taxonomy the rest of the client side works with.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fieldstone/bugtrack/internal/models"
	"github.com/fieldstone/bugtrack/internal/validate"
)

// ErrNotFound is returned when the server reports 404 for an id.
var ErrNotFound = errors.New("bug not found")

// Client talks to a bugtrack server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client for the given base URL (e.g. http://localhost:5000).
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// NewBug is the create payload. The server assigns id and timestamps.
type NewBug struct {
	Title             string   `json:"title"`
	Description       string   `json:"description"`
	Severity          string   `json:"severity,omitempty"`
	Status            string   `json:"status,omitempty"`
	ReportedBy        string   `json:"reportedBy"`
	AssignedTo        string   `json:"assignedTo,omitempty"`
	Tags              []string `json:"tags,omitempty"`
	ReproductionSteps string   `json:"reproductionSteps,omitempty"`
}

// ListOptions are passed through as query parameters.
type ListOptions struct {
	Status   string
	Severity string
	Sort     string
}

type envelope struct {
	Success bool                 `json:"success"`
	Count   int                  `json:"count"`
	Message string               `json:"message"`
	Errors  []validate.Violation `json:"errors"`
}

type bugEnvelope struct {
	envelope
	Data *models.Bug `json:"data"`
}

type listEnvelope struct {
	envelope
	Data []*models.Bug `json:"data"`
}

// Health probes the server's liveness endpoint.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", http.NoBody)
	if err != nil {
		return fmt.Errorf("build health request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// ListBugs fetches bugs with optional server-side filters and sort.
func (c *Client) ListBugs(ctx context.Context, opts ListOptions) ([]*models.Bug, error) {
	q := url.Values{}
	if opts.Status != "" {
		q.Set("status", opts.Status)
	}
	if opts.Severity != "" {
		q.Set("severity", opts.Severity)
	}
	if opts.Sort != "" {
		q.Set("sort", opts.Sort)
	}

	reqURL := c.baseURL + "/bugs"
	if len(q) > 0 {
		reqURL += "?" + q.Encode()
	}

	var out listEnvelope
	if err := c.do(ctx, http.MethodGet, reqURL, nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// GetBug fetches a single bug by id.
func (c *Client) GetBug(ctx context.Context, id string) (*models.Bug, error) {
	var out bugEnvelope
	if err := c.do(ctx, http.MethodGet, c.baseURL+"/bugs/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// CreateBug submits a new bug and returns the stored record.
func (c *Client) CreateBug(ctx context.Context, nb NewBug) (*models.Bug, error) {
	var out bugEnvelope
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/bugs", nb, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// UpdateBug applies a partial update and returns the merged record.
func (c *Client) UpdateBug(ctx context.Context, id string, patch models.BugPatch) (*models.Bug, error) {
	var out bugEnvelope
	if err := c.do(ctx, http.MethodPut, c.baseURL+"/bugs/"+url.PathEscape(id), patch, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// DeleteBug removes a bug by id.
func (c *Client) DeleteBug(ctx context.Context, id string) error {
	var out bugEnvelope
	return c.do(ctx, http.MethodDelete, c.baseURL+"/bugs/"+url.PathEscape(id), nil, &out)
}

// do runs one request/response cycle. Failure responses are decoded into
// the envelope and mapped: 404 to ErrNotFound, 400 with a violation list
// to validate.Violations, everything else to the server's message.
func (c *Client) do(ctx context.Context, method, reqURL string, body any, out any) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, reqURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		var env envelope
		_ = json.NewDecoder(resp.Body).Decode(&env)
		return c.mapError(resp.StatusCode, env)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) mapError(status int, env envelope) error {
	switch status {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusBadRequest:
		if len(env.Errors) > 0 {
			return validate.Violations(env.Errors)
		}
	}
	if env.Message != "" {
		return fmt.Errorf("server error: %s", env.Message)
	}
	return fmt.Errorf("server error: status %d", status)
}
