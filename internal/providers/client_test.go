package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/remitbridge-transfer-orchestrator/internal/domain/transfer"
)

func TestClient_Do(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          string
		wantErr       bool
		wantRetryable bool
		wantReason    string
	}{
		{name: "ok", status: http.StatusOK, body: `{"value":"42"}`},
		{name: "rate limited", status: http.StatusTooManyRequests, body: `{"error":"slow down"}`, wantErr: true, wantRetryable: true, wantReason: "slow down"},
		{name: "server error", status: http.StatusBadGateway, body: ``, wantErr: true, wantRetryable: true, wantReason: "502 Bad Gateway"},
		{name: "client error", status: http.StatusBadRequest, body: `{"message":"bad destination"}`, wantErr: true, wantReason: "bad destination"},
		{name: "undecodable", status: http.StatusOK, body: `not json`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/v1/thing", r.URL.Path)
				assert.Equal(t, "yes", r.URL.Query().Get("q"))
				assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
				assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewClient("test", srv.URL+"/", time.Second)
			var out struct {
				Value string `json:"value"`
			}
			err := c.Do(context.Background(), Request{
				Operation:   "thing",
				Method:      http.MethodPost,
				Path:        "/v1/thing",
				Query:       map[string][]string{"q": {"yes"}},
				Header:      http.Header{"X-Api-Key": {"secret"}},
				Body:        map[string]string{"a": "b"},
				Out:         &out,
				ErrorReason: MessageField("error", "message"),
			})

			if !tt.wantErr {
				require.NoError(t, err)
				assert.Equal(t, "42", out.Value)
				return
			}
			pe, ok := transfer.AsProviderError(err)
			require.True(t, ok)
			assert.Equal(t, "test", pe.Provider)
			assert.Equal(t, "thing", pe.Operation)
			assert.Equal(t, tt.wantRetryable, pe.Retryable)
			if tt.wantReason != "" {
				assert.Equal(t, tt.wantReason, pe.Reason)
			}
		})
	}
}

func TestClient_Do_TransportErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	err := NewClient("test", srv.URL, 100*time.Millisecond).Do(context.Background(), Request{
		Operation: "ping", Method: http.MethodGet, Path: "/",
	})
	pe, ok := transfer.AsProviderError(err)
	require.True(t, ok)
	assert.True(t, pe.Retryable)
	assert.Contains(t, pe.Reason, "transport error")
}

func TestClient_Do_CanceledIsNotRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewClient("test", srv.URL, time.Second).Do(ctx, Request{Operation: "ping", Method: http.MethodGet, Path: "/"})
	pe, ok := transfer.AsProviderError(err)
	require.True(t, ok)
	assert.False(t, pe.Retryable)
}
