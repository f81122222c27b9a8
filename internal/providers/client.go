// Package providers holds the shared JSON-over-HTTP plumbing used by the
// external provider adapters in its subpackages.
package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/remitbridge-transfer-orchestrator/internal/domain/transfer"
)

// maxErrorBody bounds how much of a failed response is kept as the reason.
const maxErrorBody = 2048

// Client issues JSON requests and turns every failure into a
// transfer.ProviderError with retryability decided here: transport errors,
// 429 and 5xx are retryable; other statuses and undecodable bodies are not.
type Client struct {
	Provider string
	BaseURL  string
	HTTP     *http.Client
}

func NewClient(provider, baseURL string, timeout time.Duration) *Client {
	return &Client{
		Provider: provider,
		BaseURL:  strings.TrimRight(baseURL, "/"),
		HTTP:     &http.Client{Timeout: timeout},
	}
}

// Request describes one call. Body is JSON-encoded when non-nil; Out, when
// non-nil, receives the decoded 2xx response.
type Request struct {
	Operation string
	Method    string
	Path      string
	Query     url.Values
	Header    http.Header
	Body      any
	Out       any
	// ErrorReason extracts a provider message from a non-2xx body.
	ErrorReason func(body []byte) string
}

func (c *Client) Do(ctx context.Context, r Request) error {
	endpoint, err := url.JoinPath(c.BaseURL, r.Path)
	if err != nil {
		return c.fail(r.Operation, "invalid endpoint: "+err.Error(), false, 0)
	}
	if len(r.Query) > 0 {
		endpoint += "?" + r.Query.Encode()
	}

	var body io.Reader
	if r.Body != nil {
		b, err := json.Marshal(r.Body)
		if err != nil {
			return c.fail(r.Operation, "encode request: "+err.Error(), false, 0)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, endpoint, body)
	if err != nil {
		return c.fail(r.Operation, "build request: "+err.Error(), false, 0)
	}
	for k, vs := range r.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	if r.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		// A canceled caller is not the provider's fault and is not retried.
		retryable := !errors.Is(err, context.Canceled)
		return c.fail(r.Operation, "transport error: "+err.Error(), retryable, 0)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		reason := strings.TrimSpace(string(raw))
		if r.ErrorReason != nil {
			if msg := r.ErrorReason(raw); msg != "" {
				reason = msg
			}
		}
		if reason == "" {
			reason = resp.Status
		}
		return c.fail(r.Operation, reason, Retryable(resp.StatusCode), resp.StatusCode)
	}

	if r.Out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(r.Out); err != nil {
		return c.fail(r.Operation, "decode response: "+err.Error(), false, resp.StatusCode)
	}
	return nil
}

func (c *Client) fail(op, reason string, retryable bool, status int) error {
	return transfer.ProviderError{
		Provider:   c.Provider,
		Operation:  op,
		Reason:     reason,
		Retryable:  retryable,
		StatusCode: status,
	}
}

// Retryable reports whether an HTTP status is worth retrying.
func Retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}

// Fail builds a ProviderError for adapter-level failures found in a 2xx body.
func (c *Client) Fail(op, reason string, retryable bool) error {
	return c.fail(op, reason, retryable, 0)
}

// MessageField returns a body reason extractor that reads the first
// non-empty string among keys of a JSON object.
func MessageField(keys ...string) func([]byte) string {
	return func(body []byte) string {
		var m map[string]any
		if err := json.Unmarshal(body, &m); err != nil {
			return ""
		}
		for _, k := range keys {
			if s, ok := m[k].(string); ok && s != "" {
				return s
			}
		}
		return ""
	}
}

