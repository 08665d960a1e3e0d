package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

type ClientOption func(*Client)

// RequestOptions describes one JSON call. URL may be relative to the
// client's base URL. Body is marshalled as JSON unless it is already bytes.
type RequestOptions struct {
	Method string
	URL    string
	Body   interface{}
}

// StatusError is a non-2xx response that survived the retries.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// IsStatus reports whether err carries the given response status.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}

// Client is a small JSON client for upstream services. Transport errors,
// 5xx and 429 responses are retried with exponential backoff; a 429 with a
// Retry-After header waits as long as the server asks, up to maxWait.
type Client struct {
	hc        *http.Client
	baseURL   string
	timeout   time.Duration
	retries   int
	backoff   time.Duration
	maxWait   time.Duration
	userAgent string
}

func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		timeout:   30 * time.Second,
		backoff:   200 * time.Millisecond,
		maxWait:   10 * time.Second,
		userAgent: "regimelab/1.0",
	}
	for _, opt := range opts {
		opt(c)
	}
	c.hc = &http.Client{Timeout: c.timeout}
	return c
}

func WithBaseURL(u string) ClientOption {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithRetry(n int, backoff time.Duration) ClientOption {
	return func(c *Client) {
		if n >= 0 {
			c.retries = n
		}
		if backoff > 0 {
			c.backoff = backoff
		}
	}
}

// SendAndParse performs the call and decodes a 2xx JSON body into dest.
// dest may be nil, or a *[]byte for the raw body.
func (c *Client) SendAndParse(ctx context.Context, opts *RequestOptions, dest interface{}) error {
	payload, err := marshalBody(opts.Body)
	if err != nil {
		return err
	}

	var (
		body   []byte
		status int
		wait   time.Duration
	)
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, wait); err != nil {
				return err
			}
		}
		status, body, wait, err = c.do(ctx, opts.Method, opts.URL, payload)
		retryable := err != nil || status >= 500 || status == http.StatusTooManyRequests
		if !retryable || attempt >= c.retries || ctx.Err() != nil {
			break
		}
		if wait <= 0 || wait > c.maxWait {
			wait = c.backoff << attempt
		}
	}
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		if len(body) > 4096 {
			body = body[:4096]
		}
		return &StatusError{StatusCode: status, Body: string(body)}
	}

	switch v := dest.(type) {
	case nil:
	case *[]byte:
		*v = body
	default:
		if err := json.Unmarshal(body, dest); err != nil {
			return fmt.Errorf("decode %s response: %w", opts.URL, err)
		}
	}
	return nil
}

// do returns the status, the body and the server's Retry-After, if any.
func (c *Client) do(ctx context.Context, method, url string, payload []byte) (int, []byte, time.Duration, error) {
	var rd io.Reader
	if payload != nil {
		rd = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.resolve(url), rd)
	if err != nil {
		return 0, nil, 0, fmt.Errorf("new request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.hc.Do(req)
	if err != nil {
		return 0, nil, 0, fmt.Errorf("%s %s: %w", method, url, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, 0, fmt.Errorf("read %s response: %w", url, err)
	}
	var wait time.Duration
	if s, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && s > 0 {
		wait = time.Duration(s) * time.Second
	}
	return resp.StatusCode, body, wait, nil
}

func (c *Client) resolve(u string) string {
	if c.baseURL == "" || strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") {
		return u
	}
	return c.baseURL + "/" + strings.TrimLeft(u, "/")
}

func marshalBody(body interface{}) ([]byte, error) {
	switch v := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case json.RawMessage:
		return v, nil
	}
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	return b, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
