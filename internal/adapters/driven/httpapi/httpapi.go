// Package httpapi holds the HTTP plumbing shared by the embedding and
// LLM adapters: JSON requests, status errors, transient-failure
// classification and streamed response decoding.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"

	"github.com/custodia-labs/docqa/internal/core/domain"
)

// maxErrorBody bounds how much of an error response is kept.
const maxErrorBody = 4096

// StatusError is a non-2xx response from a provider.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: API returned status %d: %s", e.Provider, e.StatusCode, e.Body)
}

// Transient reports whether retrying may succeed: rate limiting, request
// timeouts and server errors.
func (e *StatusError) Transient() bool {
	return e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode == http.StatusRequestTimeout ||
		e.StatusCode >= http.StatusInternalServerError
}

// IsTransient classifies err as worth retrying. Caller cancellation is
// never transient; deadlines, connection resets and truncated bodies are.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Transient()
	}
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// EmbeddingError wraps err as a *domain.EmbeddingError classified by IsTransient.
func EmbeddingError(op string, err error) error {
	if err == nil {
		return nil
	}
	var embedErr *domain.EmbeddingError
	if errors.As(err, &embedErr) {
		return err
	}
	return &domain.EmbeddingError{Op: op, Transient: IsTransient(err), Err: err}
}

// Client sends JSON requests to one provider.
type Client struct {
	HTTP     *http.Client
	Provider string
	BaseURL  string
	Headers  map[string]string
}

// PostJSON sends body as JSON to path and decodes a 200 response into out.
func (c *Client) PostJSON(ctx context.Context, path string, body, out any) error {
	resp, err := c.Post(ctx, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", c.Provider, err)
	}
	return nil
}

// Post sends body as JSON to path. Non-2xx responses are returned as
// *StatusError with the body consumed; on success the caller owns
// resp.Body.
func (c *Client) Post(ctx context.Context, path string, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%s: marshal request: %w", c.Provider, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", c.Provider, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

// Get issues a GET request to path and discards a 2xx body. It backs Ping.
func (c *Client) Get(ctx context.Context, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, http.NoBody)
	if err != nil {
		return fmt.Errorf("%s: create request: %w", c.Provider, err)
	}
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	for k, v := range c.Headers {
		req.Header.Set(k, v)
	}

	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: send request: %w", c.Provider, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{Provider: c.Provider, StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(body))}
	}
	return resp, nil
}
