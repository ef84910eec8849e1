// Package httpx is the JSON client shared by the upstream adapters.
package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"PropertyScanner/internal/domain"
	"PropertyScanner/internal/throttle"
)

const maxErrorBody = 512

// StatusError reports a non-2xx upstream response.
type StatusError struct {
	Code   int
	Status string
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %s", e.Status)
	}
	return fmt.Sprintf("unexpected status %s: %s", e.Status, e.Body)
}

// Is lets errors.Is(err, domain.ErrNotFound) match a 404.
func (e *StatusError) Is(target error) bool {
	return target == domain.ErrNotFound && e.Code == http.StatusNotFound
}

// Retryable reports whether another attempt may succeed: rate limits, server
// errors and transport failures.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code == http.StatusTooManyRequests || se.Code >= 500
	}
	var de *decodeError
	return !errors.As(err, &de)
}

type decodeError struct{ err error }

func (e *decodeError) Error() string { return "decode response: " + e.err.Error() }
func (e *decodeError) Unwrap() error { return e.err }

// Auth decorates an outgoing request with credentials.
type Auth func(req *http.Request)

// Bearer sets an Authorization bearer token.
func Bearer(token string) Auth {
	return func(req *http.Request) {
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
}

// Basic sets HTTP basic credentials.
func Basic(user, password string) Auth {
	return func(req *http.Request) {
		if user != "" || password != "" {
			req.SetBasicAuth(user, password)
		}
	}
}

// QueryKey adds the key as a query parameter.
func QueryKey(param, key string) Auth {
	return func(req *http.Request) {
		if key == "" {
			return
		}
		q := req.URL.Query()
		q.Set(param, key)
		req.URL.RawQuery = q.Encode()
	}
}

// Client issues JSON requests against one base URL.
type Client struct {
	baseURL string
	auth    Auth
	http    *http.Client
	retry   throttle.Retry
	headers map[string]string
}

// Option customises a Client.
type Option func(*Client)

// WithAuth sets the credential decorator.
func WithAuth(a Auth) Option {
	return func(c *Client) { c.auth = a }
}

// WithHTTPClient replaces the underlying transport.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithRetry replaces the retry policy.
func WithRetry(r throttle.Retry) Option {
	return func(c *Client) { c.retry = r }
}

// WithHeader adds a static request header.
func WithHeader(key, value string) Option {
	return func(c *Client) { c.headers[key] = value }
}

// New creates a reusable client. Three attempts with a 500ms base delay are
// made on retryable failures unless WithRetry overrides it.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
		retry: throttle.Retry{
			MaxAttempts: 3,
			BaseDelay:   500 * time.Millisecond,
			Retryable:   Retryable,
		},
		headers: map[string]string{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.retry.Retryable == nil {
		c.retry.Retryable = Retryable
	}
	return c
}

// BaseURL returns the endpoint root without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// GetJSON issues GET path?query and decodes the body into v.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, v any) error {
	return c.do(ctx, http.MethodGet, path, query, nil, v)
}

// PostJSON sends payload as JSON and decodes the body into v.
func (c *Client) PostJSON(ctx context.Context, path string, payload any, v any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, nil, body, v)
}

// GetRaw returns the body of GET path?query.
func (c *Client) GetRaw(ctx context.Context, path string, query url.Values) ([]byte, error) {
	var out []byte
	err := c.retry.Do(ctx, "GET "+path, func(ctx context.Context) error {
		resp, err := c.send(ctx, http.MethodGet, path, query, nil)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		out, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}
		return nil
	})
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body []byte, v any) error {
	return c.retry.Do(ctx, method+" "+path, func(ctx context.Context) error {
		resp, err := c.send(ctx, method, path, query, body)
		if err != nil {
			return err
		}

		if v == nil {
			if err := resp.Body.Close(); err != nil {
				return fmt.Errorf("close response body: %w", err)
			}
			return nil
		}

		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			_ = resp.Body.Close()
			return &decodeError{err: fmt.Errorf("%w: %v", domain.ErrMalformed, err)}
		}

		if err := resp.Body.Close(); err != nil {
			return fmt.Errorf("close response body: %w", err)
		}
		return nil
	})
}

func (c *Client) send(ctx context.Context, method, path string, query url.Values, body []byte) (*http.Response, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	if c.auth != nil {
		c.auth(req)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		_ = resp.Body.Close()
		return nil, &StatusError{
			Code:   resp.StatusCode,
			Status: resp.Status,
			Body:   strings.TrimSpace(string(snippet)),
		}
	}
	return resp, nil
}
