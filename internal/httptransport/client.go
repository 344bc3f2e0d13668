// Package httptransport implements the single-connection-pool HTTP
// handle channel operations are built on top of.
package httptransport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/relaymesh/channelsdk/internal/logging"
	"github.com/relaymesh/channelsdk/internal/wire"
)

const (
	defaultTimeout  = 30 * time.Second
	longPollTimeout = 40 * time.Second

	throttleRequests = 12
	throttleWindow   = 1500 * time.Millisecond
	throttlePause    = 5 * time.Second
)

// ConnectionReset is the sentinel Response returned when the local
// throttle trips.
var ConnectionReset = Response{Body: []byte(`{"status":"connection-reset"}`)}

// Response is the result of a single request.
type Response struct {
	HTTPStatus int
	Body       []byte
}

// Ok reports whether the response's HTTP status is in the 2xx range.
func (r Response) Ok() bool {
	return r.HTTPStatus >= 200 && r.HTTPStatus < 300
}

// Client is the library's single per-connection HTTP handle. All
// operations share one *http.Client and one rate limiter.
type Client struct {
	baseURL      string
	apiKey       string
	httpClient   *http.Client

	limiter  *rate.Limiter
	mu       sync.Mutex
	pausedAt time.Time
}

// New builds a Client targeting baseURL (scheme+host, no trailing
// slash), optionally attaching apiKey as X-Api-Key on every request.
func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        32,
				MaxIdleConnsPerHost: 32,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Every(throttleWindow/throttleRequests), throttleRequests),
	}
}

// Get issues a GET request with the default short timeout.
func (c *Client) Get(ctx context.Context, path string) (Response, error) {
	return c.do(ctx, http.MethodGet, path, nil, defaultTimeout)
}

// Post issues a POST request with the default short timeout.
func (c *Client) Post(ctx context.Context, path string, body []byte) (Response, error) {
	return c.do(ctx, http.MethodPost, path, body, defaultTimeout)
}

// PostLongPoll issues a POST with the long-poll timeout used by
// `pull`.
func (c *Client) PostLongPoll(ctx context.Context, path string, body []byte) (Response, error) {
	return c.do(ctx, http.MethodPost, path, body, longPollTimeout)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, timeout time.Duration) (Response, error) {
	if reset := c.throttle(); reset {
		logging.Warn("http request throttled", "path", logging.Sanitize(path))
		return ConnectionReset, nil
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(reqCtx, method, c.baseURL+path, reader)
	if err != nil {
		return Response{}, fmt.Errorf("build request: %w: %v", wire.ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "*/*")
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("%s %s: %w: %v", method, logging.Sanitize(path), wire.ErrTransport, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("read response body: %w: %v", wire.ErrTransport, err)
	}
	return Response{HTTPStatus: resp.StatusCode, Body: data}, nil
}

// throttle implements the simple rate guard: once more than
// throttleRequests have been issued within throttleWindow the limiter
// runs dry and the transport enters a throttlePause cooldown during
// which every call returns ConnectionReset.
func (c *Client) throttle() (reset bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if !c.pausedAt.IsZero() {
		if now.Sub(c.pausedAt) < throttlePause {
			return true
		}
		c.pausedAt = time.Time{}
	}

	if !c.limiter.AllowN(now, 1) {
		c.pausedAt = now
		return true
	}
	return false
}

// CloseAll tears down idle connections held by the client.
func (c *Client) CloseAll() {
	c.httpClient.CloseIdleConnections()
}
