package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// RESTClient talks to a PostgREST-style HTTP API (the hosted backend's table
// surface).
type RESTClient struct {
	baseURL string
	apiKey  string
	hc      *http.Client
	logger  *log.Logger
}

// RESTConfig holds connection settings for the hosted backend.
type RESTConfig struct {
	// BaseURL is the REST root, e.g. https://xyz.example.co/rest/v1
	BaseURL string

	// APIKey is sent as both the apikey header and a bearer token.
	APIKey string

	// Timeout bounds each request (default: 15s).
	Timeout time.Duration

	// Logger for request failures (default: stderr logger).
	Logger *log.Logger
}

// NewREST creates a REST client for the hosted backend.
func NewREST(config RESTConfig) (*RESTClient, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("base URL cannot be empty")
	}
	if config.Timeout == 0 {
		config.Timeout = 15 * time.Second
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[backend] ", log.LstdFlags)
	}

	return &RESTClient{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		apiKey:  config.APIKey,
		hc:      &http.Client{Timeout: config.Timeout},
		logger:  config.Logger,
	}, nil
}

// Select implements Client.Select.
func (c *RESTClient) Select(ctx context.Context, table string, filters ...Filter) ([]json.RawMessage, error) {
	u := fmt.Sprintf("%s/%s?%s", c.baseURL, table, encodeFilters(filters))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build select request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("select %s failed: %w", table, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, httpError("select", table, resp)
	}

	var rows []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("failed to decode select response for %s: %w", table, err)
	}
	return rows, nil
}

// Insert implements Client.Insert.
func (c *RESTClient) Insert(ctx context.Context, table string, record interface{}) error {
	body, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record for %s: %w", table, err)
	}

	u := fmt.Sprintf("%s/%s", c.baseURL, table)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build insert request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Prefer", "return=minimal")

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("insert into %s failed: %w", table, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return httpError("insert", table, resp)
	}
	return nil
}

// Update implements Client.Update.
func (c *RESTClient) Update(ctx context.Context, table, id string, record interface{}) error {
	body, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record for %s: %w", table, err)
	}

	u := fmt.Sprintf("%s/%s?id=eq.%s", c.baseURL, table, url.QueryEscape(id))
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, u, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build update request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Prefer", "return=minimal")

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("update %s/%s failed: %w", table, id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return httpError("update", table, resp)
	}
	return nil
}

// Delete implements Client.Delete.
func (c *RESTClient) Delete(ctx context.Context, table, id string) error {
	u := fmt.Sprintf("%s/%s?id=eq.%s", c.baseURL, table, url.QueryEscape(id))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, u, nil)
	if err != nil {
		return fmt.Errorf("failed to build delete request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("delete %s/%s failed: %w", table, id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return httpError("delete", table, resp)
	}
	return nil
}

// RPC implements Client.RPC.
func (c *RESTClient) RPC(ctx context.Context, name string, params interface{}) error {
	body, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to marshal params for rpc %s: %w", name, err)
	}

	u := fmt.Sprintf("%s/rpc/%s", c.baseURL, name)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build rpc request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("rpc %s failed: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return httpError("rpc", name, resp)
	}
	return nil
}

// Ping implements Client.Ping with a cheap HEAD against the REST root.
func (c *RESTClient) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL+"/", nil)
	if err != nil {
		return fmt.Errorf("failed to build ping request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("backend unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func (c *RESTClient) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

// encodeFilters renders filters as PostgREST query parameters:
// column=op.value joined by &. A column may appear more than once
// (range predicates like gte+lte on the same date column).
func encodeFilters(filters []Filter) string {
	values := url.Values{}
	for _, f := range filters {
		values.Add(f.Column, fmt.Sprintf("%s.%s", f.Op, f.Value))
	}
	return values.Encode()
}

func httpError(op, target string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = resp.Status
	}
	return fmt.Errorf("%s %s rejected: status %d: %s", op, target, resp.StatusCode, msg)
}
