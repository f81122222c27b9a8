package checkout

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/remitbridge-transfer-orchestrator/internal/domain/transfer"
	"github.com/remitbridge-transfer-orchestrator/internal/providers/checkout/checkouttest"
)

const testSecret = "whsec_test"

var sign = checkouttest.Sign

const completedEvent = `{
  "id": "evt_1",
  "object": "event",
  "api_version": "2020-08-27",
  "type": "checkout.session.completed",
  "data": {"object": {
    "id": "cs_test_123",
    "object": "checkout.session",
    "amount_total": 10050,
    "metadata": {
      "sender_name": "Ada Sender",
      "sender_email": "ada@example.com",
      "receiver_name": "Wanjiru Receiver",
      "receiver_phone": "0712345678",
      "receiver_country": "ke",
      "local_currency": "kes",
      "usd_to_local": "129.5",
      "vault": "true"
    }
  }}
}`

func TestVerifier_Verify(t *testing.T) {
	payload := []byte(completedEvent)
	v := NewVerifier(testSecret)

	t.Run("valid signature", func(t *testing.T) {
		ev, err := v.Verify(payload, sign(payload, testSecret, time.Now()))
		require.NoError(t, err)
		assert.Equal(t, EventCheckoutCompleted, string(ev.Type))
	})

	tests := []struct {
		name   string
		header string
	}{
		{"wrong secret", sign(payload, "whsec_other", time.Now())},
		{"stale timestamp", sign(payload, testSecret, time.Now().Add(-time.Hour))},
		{"missing header", ""},
		{"garbage header", "t=abc,v1=zz"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(payload, tt.header)
			assert.ErrorIs(t, err, ErrInvalidSignature)
		})
	}

	t.Run("tampered payload", func(t *testing.T) {
		header := sign(payload, testSecret, time.Now())
		_, err := v.Verify([]byte(completedEvent+" "), header)
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})
}

func TestSession_Order(t *testing.T) {
	payload := []byte(completedEvent)
	ev, err := NewVerifier(testSecret).Verify(payload, sign(payload, testSecret, time.Now()))
	require.NoError(t, err)

	s, err := SessionFromEvent(ev)
	require.NoError(t, err)
	assert.Equal(t, "cs_test_123", s.ID)
	assert.Equal(t, "stripe_cs_test_123", IdempotencyKey(s.ID))

	o, err := s.Order()
	require.NoError(t, err)
	assert.Equal(t, "Ada Sender", o.SenderName)
	assert.Equal(t, "KE", o.ReceiverCountry)
	assert.Equal(t, "KES", o.LocalCurrency)
	assert.Equal(t, "100.5", o.AmountUSD.String(), "falls back to amount_total/100")
	assert.Equal(t, "129.5", o.USDToLocal.String())
	assert.True(t, o.Vault)
}

func TestSession_Order_InvalidMetadata(t *testing.T) {
	tests := []struct {
		name  string
		md    map[string]string
		field string
	}{
		{"amount", map[string]string{"amount_usd": "ten"}, "metadata.amount_usd"},
		{"rate", map[string]string{"usd_to_local": "1,5"}, "metadata.usd_to_local"},
		{"vault", map[string]string{"vault": "maybe"}, "metadata.vault"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Session{ID: "cs_1", Metadata: tt.md}.Order()
			assert.ErrorIs(t, err, transfer.ValidationError{Field: tt.field})
		})
	}
}

func TestSession_Order_ExplicitAmountWins(t *testing.T) {
	o, err := Session{ID: "cs_1", AmountTotal: 999, Metadata: map[string]string{"amount_usd": "250.00"}}.Order()
	require.NoError(t, err)
	assert.Equal(t, "250", o.AmountUSD.String())
}
