package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	neturl "net/url"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/hookrelay/packages/api"
	"github.com/abdul-hamid-achik/hookrelay/packages/keys"
	"github.com/abdul-hamid-achik/hookrelay/packages/snapshot"
)

const (
	// DefaultTimeout is the default HTTP request timeout
	DefaultTimeout = 30 * time.Second
	// DefaultPollInterval is how often WaitPoll retries
	DefaultPollInterval = 500 * time.Millisecond
	// DefaultMaxIdleConns is the maximum number of idle connections in the pool
	DefaultMaxIdleConns = 10
	// DefaultIdleConnTimeout is how long idle connections stay in the pool
	DefaultIdleConnTimeout = 90 * time.Second
)

var (
	// ErrNotFound is returned when a poll finds nothing captured under the key
	ErrNotFound = errors.New("no requests captured")
	// ErrRateLimited is returned when the relay rejects a push
	ErrRateLimited = errors.New("rate limited by relay")
	// ErrUnreachable wraps transport failures talking to the relay
	ErrUnreachable = errors.New("relay unreachable")
)

// Client talks to a running relay
type Client struct {
	baseURL        string
	httpClient     *http.Client
	timeout        time.Duration
	defaultHeaders map[string]string
}

// ClientOption is a functional option for Client
type ClientOption func(*Client)

// NewClient creates a client for the relay at baseURL
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	u, err := neturl.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid relay URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid relay URL %q: scheme must be http or https", baseURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid relay URL %q: missing host", baseURL)
	}

	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		timeout:        DefaultTimeout,
		defaultHeaders: make(map[string]string),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		c.httpClient = &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:    DefaultMaxIdleConns,
				IdleConnTimeout: DefaultIdleConnTimeout,
			},
			Timeout: c.timeout,
		}
	}

	return c, nil
}

// WithTimeout sets the per-request timeout
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithDefaultHeader sets a header sent with every request
func WithDefaultHeader(key, value string) ClientOption {
	return func(c *Client) {
		c.defaultHeaders[key] = value
	}
}

// PushRequest describes a request to capture
type PushRequest struct {
	Key     string
	Method  string
	Body    string
	Headers map[string]string
	Query   string
}

// Push sends req to /push/<key> and returns the snapshot the relay stored
func (c *Client) Push(ctx context.Context, req PushRequest) (*snapshot.Snapshot, error) {
	method := req.Method
	if method == "" {
		method = http.MethodPost
		if req.Body == "" {
			method = http.MethodGet
		}
	}

	target := c.endpoint(keys.PushPrefix, req.Key)
	if req.Query != "" {
		target += "?" + strings.TrimPrefix(req.Query, "?")
	}

	var body io.Reader
	if req.Body != "" {
		body = bytes.NewBufferString(req.Body)
	}

	resp, err := c.do(ctx, method, target, body, req.Headers)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, ErrRateLimited
	case !resp.IsSuccess():
		return nil, resp.Error()
	}

	var snap snapshot.Snapshot
	if err := json.Unmarshal(resp.Body, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &snap, nil
}

// Poll takes everything captured under key. The bool is false if nothing was captured.
func (c *Client) Poll(ctx context.Context, key string) ([]snapshot.Snapshot, bool, error) {
	resp, err := c.do(ctx, http.MethodGet, c.endpoint(keys.PollPrefix, key), nil, nil)
	if err != nil {
		return nil, false, err
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, false, nil
	case !resp.IsSuccess():
		return nil, false, resp.Error()
	}

	var snaps []snapshot.Snapshot
	if err := json.Unmarshal(resp.Body, &snaps); err != nil {
		return nil, false, fmt.Errorf("failed to decode snapshots: %w", err)
	}
	return snaps, true, nil
}

// WaitPoll polls key every interval until something arrives or ctx is done.
// It returns ErrNotFound if ctx ends first.
func (c *Client) WaitPoll(ctx context.Context, key string, interval time.Duration) ([]snapshot.Snapshot, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		snaps, ok, err := c.Poll(ctx, key)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %s", ErrNotFound, keys.FromArg(key))
			}
			return nil, err
		}
		if ok {
			return snaps, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s", ErrNotFound, keys.FromArg(key))
		case <-ticker.C:
		}
	}
}

// Stats fetches /_stats
func (c *Client) Stats(ctx context.Context) (*api.StatsResponse, error) {
	resp, err := c.do(ctx, http.MethodGet, c.baseURL+"/_stats", nil, nil)
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, resp.Error()
	}

	var st api.StatsResponse
	if err := json.Unmarshal(resp.Body, &st); err != nil {
		return nil, fmt.Errorf("failed to decode stats: %w", err)
	}
	return &st, nil
}

// Health returns nil when the relay answers /healthz
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, c.baseURL+"/healthz", nil, nil)
	if err != nil {
		return err
	}
	if !resp.IsSuccess() {
		return resp.Error()
	}
	return nil
}

// endpoint escapes each key segment so '?', '#' and spaces stay part of the key
func (c *Client) endpoint(prefix, key string) string {
	segments := strings.Split(keys.FromArg(key), "/")
	for i, seg := range segments {
		segments[i] = neturl.PathEscape(seg)
	}
	return c.baseURL + prefix + strings.Join(segments, "/")
}

func (c *Client) do(ctx context.Context, method, target string, body io.Reader, headers map[string]string) (*Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	for k, v := range c.defaultHeaders {
		httpReq.Header.Set(k, v)
	}
	for k, v := range headers {
		if strings.EqualFold(k, "Host") {
			httpReq.Host = v
			continue
		}
		httpReq.Header.Set(k, v)
	}

	start := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &Response{
		StatusCode: httpResp.StatusCode,
		Status:     httpResp.Status,
		Headers:    flattenHeaders(httpResp.Header),
		Body:       respBody,
		Duration:   time.Since(start),
	}, nil
}

func flattenHeaders(h http.Header) map[string]string {
	result := make(map[string]string, len(h))
	for k, v := range h {
		result[k] = strings.Join(v, ", ")
	}
	return result
}
