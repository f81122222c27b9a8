package price

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

func TestOracle_USDPrice(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		want      string
		wantErr   bool
		retryable bool
	}{
		{name: "price", status: http.StatusOK, body: `{"ripple":{"usd":0.5231}}`, want: "0.5231"},
		{name: "asset missing", status: http.StatusOK, body: `{}`, wantErr: true, retryable: true},
		{name: "zero price", status: http.StatusOK, body: `{"ripple":{"usd":0}}`, wantErr: true, retryable: true},
		{name: "throttled", status: http.StatusTooManyRequests, body: `{"status":{"error_code":429}}`, wantErr: true, retryable: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/simple/price", r.URL.Path)
				assert.Equal(t, "ripple", r.URL.Query().Get("ids"))
				assert.Equal(t, "usd", r.URL.Query().Get("vs_currencies"))
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			got, err := NewOracle(srv.URL, "ripple", time.Second).USDPrice(context.Background())
			if tt.wantErr {
				pe, ok := transfer.AsProviderError(err)
				require.True(t, ok)
				assert.Equal(t, tt.retryable, pe.Retryable)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}
