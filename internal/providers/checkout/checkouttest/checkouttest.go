// Package checkouttest signs checkout webhook payloads for tests.
package checkouttest

import (
	"encoding/json"
	"time"

	"github.com/stripe/stripe-go/v76/webhook"
)

// Sign builds a Stripe-Signature header for payload.
func Sign(payload []byte, secret string, at time.Time) string {
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: at,
	})
	return signed.Header
}

// Event returns an event payload of the given type carrying a checkout
// session with the given id, total and metadata.
func Event(eventType, sessionID string, amountTotal int64, metadata map[string]string) []byte {
	body, err := json.Marshal(map[string]any{
		"id":          "evt_" + sessionID,
		"object":      "event",
		"api_version": "2020-08-27",
		"type":        eventType,
		"data": map[string]any{
			"object": map[string]any{
				"id":           sessionID,
				"object":       "checkout.session",
				"amount_total": amountTotal,
				"metadata":     metadata,
			},
		},
	})
	if err != nil {
		panic(err)
	}
	return body
}

// Metadata is a complete order for a Kenyan receiver.
func Metadata() map[string]string {
	return map[string]string{
		"sender_name":      "Ada Sender",
		"sender_email":     "ada@example.com",
		"receiver_name":    "Wanjiru Receiver",
		"receiver_phone":   "0712345678",
		"receiver_country": "KE",
		"local_currency":   "KES",
		"usd_to_local":     "129.5",
	}
}
