package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/remitbridge-transfer-orchestrator/internal/api_gateway/handler"
	"github.com/remitbridge-transfer-orchestrator/internal/api_gateway/middleware"
	"github.com/remitbridge-transfer-orchestrator/internal/domain/transfer"
)

// envelope mirrors the gateway's response wrapper with a typed payload.
type envelope[T any] struct {
	Data          T                  `json:"data"`
	Error         *handler.ErrorInfo `json:"error"`
	CorrelationID string             `json:"correlation_id"`
}

// APIError is a non-2xx gateway reply.
type APIError struct {
	StatusCode    int
	Code          string
	Message       string
	CorrelationID string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("gateway returned %d", e.StatusCode)
	}
	return fmt.Sprintf("gateway returned %d %s: %s (correlation_id=%s)", e.StatusCode, e.Code, e.Message, e.CorrelationID)
}

// Client talks to the api_gateway REST surface.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Transfer fetches the current projection of a transfer.
func (c *Client) Transfer(ctx context.Context, transactionID string) (transfer.View, error) {
	var out envelope[transfer.View]
	err := c.do(ctx, http.MethodGet, "/api/v1/transfers/"+url.PathEscape(transactionID), &out)
	return out.Data, err
}

// Retry requests a manual retry of a failed transfer.
func (c *Client) Retry(ctx context.Context, transactionID string) (handler.TransferResponse, error) {
	var out envelope[handler.TransferResponse]
	err := c.do(ctx, http.MethodPost, "/api/v1/transfers/"+url.PathEscape(transactionID)+"/retry", &out)
	return out.Data, err
}

// Rates returns the bridge price and USD rate for a payout currency.
func (c *Client) Rates(ctx context.Context, currency string) (handler.RateResponse, error) {
	var out envelope[handler.RateResponse]
	err := c.do(ctx, http.MethodGet, "/api/v1/rates/"+url.PathEscape(currency), &out)
	return out.Data, err
}

func (c *Client) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(middleware.CorrelationIDHeader, "remitctl-"+uuid.NewString())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read gateway response: %w", err)
	}

	if resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var failed envelope[json.RawMessage]
		if json.Unmarshal(body, &failed) == nil && failed.Error != nil {
			apiErr.Code = failed.Error.Code
			apiErr.Message = failed.Error.Message
			apiErr.CorrelationID = failed.CorrelationID
		}
		return apiErr
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode gateway response: %w", err)
	}
	return nil
}
