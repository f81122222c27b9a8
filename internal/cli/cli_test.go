package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/remitbridge-transfer-orchestrator/internal/api_gateway/handler"
	"github.com/remitbridge-transfer-orchestrator/internal/domain/transfer"
	"github.com/remitbridge-transfer-orchestrator/internal/domain/transfer/transfertest"
)

type gatewayStub struct {
	t        *testing.T
	view     transfer.View
	mu       sync.Mutex
	requests []string
}

func (g *gatewayStub) seen() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.requests...)
}

func (g *gatewayStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	g.requests = append(g.requests, r.Method+" "+r.URL.Path)
	g.mu.Unlock()
	assert.True(g.t, strings.HasPrefix(r.Header.Get("X-Correlation-ID"), "remitctl-"))

	write := func(status int, body handler.Response) {
		body.CorrelationID = "corr-stub"
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		require.NoError(g.t, json.NewEncoder(w).Encode(body))
	}

	fetched := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/api/v1/transfers/"+g.view.TransactionID:
		write(http.StatusOK, handler.Response{Data: g.view})
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/api/v1/transfers/"):
		write(http.StatusNotFound, handler.Response{Error: &handler.ErrorInfo{Code: "NOT_FOUND", Message: "transfer not found"}})
	case r.Method == http.MethodPost && r.URL.Path == "/api/v1/transfers/"+g.view.TransactionID+"/retry":
		write(http.StatusOK, handler.Response{Data: handler.TransferResponse{TransactionID: g.view.TransactionID, Status: transfer.StatusPending}})
	case r.Method == http.MethodPost:
		write(http.StatusBadRequest, handler.Response{Error: &handler.ErrorInfo{Code: "VALIDATION_ERROR", Message: "status: transfer is not failed"}})
	case r.URL.Path == "/api/v1/rates/KES":
		write(http.StatusOK, handler.Response{Data: handler.RateResponse{
			Currency:   "KES",
			BridgeUSD:  handler.RateQuoteResponse{Rate: decimal.RequireFromString("0.52"), Source: transfer.RateSourceCache, FetchedAt: &fetched},
			USDToLocal: handler.RateQuoteResponse{Rate: decimal.RequireFromString("129.5"), Source: transfer.RateSourceCache, FetchedAt: &fetched},
		}})
	default:
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func newGateway(t *testing.T) (*gatewayStub, string) {
	t.Helper()
	tx := transfertest.AwaitingPayout("100", "AG_20260301_1")
	stub := &gatewayStub{t: t, view: tx.View()}
	srv := httptest.NewServer(stub)
	t.Cleanup(srv.Close)
	return stub, srv.URL
}

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := Execute("test", args, &stdout, &stderr)
	return stdout.String(), stderr.String(), err
}

func TestStatusCommand(t *testing.T) {
	stub, url := newGateway(t)
	id := stub.view.TransactionID

	t.Run("table", func(t *testing.T) {
		out, _, err := run(t, "status", id, "--gateway", url)
		require.NoError(t, err)
		assert.Contains(t, out, id)
		assert.Contains(t, out, "payout_processing")
		assert.Contains(t, out, "payout (initiated)")
		assert.Contains(t, out, "AG_20260301_1")
		assert.Contains(t, out, "0/3")
	})

	t.Run("json", func(t *testing.T) {
		out, _, err := run(t, "status", id, "--gateway", url, "-o", "json")
		require.NoError(t, err)
		var view transfer.View
		require.NoError(t, json.Unmarshal([]byte(out), &view))
		assert.Equal(t, id, view.TransactionID)
		assert.Equal(t, transfer.StatusPayoutProcessing, view.Status)
		assert.True(t, view.Amounts.USD.Equal(decimal.RequireFromString("100")))
	})

	t.Run("yaml keeps API field names", func(t *testing.T) {
		out, _, err := run(t, "status", id, "--gateway", url, "-o", "yaml")
		require.NoError(t, err)
		var doc map[string]any
		require.NoError(t, yaml.Unmarshal([]byte(out), &doc))
		assert.Equal(t, id, doc["transactionId"])
		assert.Equal(t, "payout_processing", doc["status"])
	})

	t.Run("not found", func(t *testing.T) {
		_, stderr, err := run(t, "status", "TX-MISSING", "--gateway", url)
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
		assert.Equal(t, "NOT_FOUND", apiErr.Code)
		assert.Equal(t, "corr-stub", apiErr.CorrelationID)
		assert.Contains(t, stderr, "NOT_FOUND")
	})
}

func TestRetryCommand(t *testing.T) {
	stub, url := newGateway(t)

	out, _, err := run(t, "retry", stub.view.TransactionID, "--gateway", url)
	require.NoError(t, err)
	assert.Contains(t, out, "queued")
	assert.Contains(t, stub.seen(), "POST /api/v1/transfers/"+stub.view.TransactionID+"/retry")

	_, _, err = run(t, "retry", "TX-OTHER", "--gateway", url)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "VALIDATION_ERROR", apiErr.Code)
}

func TestRatesCommand(t *testing.T) {
	stub, url := newGateway(t)

	out, _, err := run(t, "rates", "kes", "--gateway", url)
	require.NoError(t, err)
	assert.Contains(t, stub.seen(), "GET /api/v1/rates/KES")
	assert.Contains(t, out, "BRIDGE/USD")
	assert.Contains(t, out, "USD/KES")
	assert.Contains(t, out, "129.5")
	assert.Contains(t, out, "2026-03-01T12:00:00Z")
}

func TestGatewayFromEnvironment(t *testing.T) {
	stub, url := newGateway(t)
	t.Setenv("REMITCTL_GATEWAY", url)
	t.Setenv("REMITCTL_OUTPUT", "json")

	out, _, err := run(t, "status", stub.view.TransactionID)
	require.NoError(t, err)
	assert.True(t, json.Valid([]byte(out)))
}

func TestArgumentErrors(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{name: "unknown format", args: []string{"status", "TX-1", "-o", "xml"}, wantErr: "unknown output format"},
		{name: "missing id", args: []string{"status"}, wantErr: "accepts 1 arg(s)"},
		{name: "extra args", args: []string{"rates", "KES", "UGX"}, wantErr: "accepts 1 arg(s)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := run(t, tt.args...)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
