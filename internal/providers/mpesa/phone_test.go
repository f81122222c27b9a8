package mpesa

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/remitbridge-transfer-orchestrator/internal/domain/transfer"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		country string
		want    string
		wantErr bool
	}{
		{name: "kenya national", raw: "0712345678", country: "KE", want: "254712345678"},
		{name: "kenya international", raw: "+254 712 345 678", country: "KE", want: "254712345678"},
		{name: "lower-case region", raw: "0712345678", country: "ke", want: "254712345678"},
		{name: "nigeria", raw: "08031234567", country: "NG", want: "2348031234567"},
		{name: "too short", raw: "0712", country: "KE", wantErr: true},
		{name: "letters", raw: "call me", country: "KE", wantErr: true},
		{name: "empty", raw: "", country: "KE", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizePhone(tt.raw, tt.country)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, transfer.ValidationError{Field: "receiver.phone"})
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
