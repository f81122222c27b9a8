// Package checkout verifies and decodes card-checkout webhook events.
package checkout

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/remitbridge-transfer-orchestrator/internal/domain/transfer"
)

// EventCheckoutCompleted is the only event type that creates a transfer.
const EventCheckoutCompleted = "checkout.session.completed"

// ErrInvalidSignature means the payload was not signed with our secret or is
// outside the replay tolerance. Nothing may be mutated for such a request.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// Verifier checks the Stripe-Signature header against the shared secret.
type Verifier struct {
	secret string
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: secret}
}

// Verify returns the parsed event when the signature is valid.
func (v *Verifier) Verify(payload []byte, signatureHeader string) (stripe.Event, error) {
	ev, err := webhook.ConstructEventWithOptions(payload, signatureHeader, v.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return stripe.Event{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return ev, nil
}

// IdempotencyKey derives the transfer idempotency key from a checkout session.
// Redelivered events for one session always map to the same transfer.
func IdempotencyKey(sessionID string) string {
	return "stripe_" + sessionID
}

// Session is the part of a completed checkout session the gateway uses.
type Session struct {
	ID          string
	AmountTotal int64 // minor units
	Metadata    map[string]string
}

// SessionFromEvent decodes the checkout session carried by ev.
func SessionFromEvent(ev stripe.Event) (Session, error) {
	if ev.Data == nil {
		return Session{}, transfer.ValidationError{Field: "data", Reason: "is missing"}
	}
	var cs stripe.CheckoutSession
	if err := json.Unmarshal(ev.Data.Raw, &cs); err != nil {
		return Session{}, transfer.ValidationError{Field: "data.object", Reason: "is not a checkout session: " + err.Error()}
	}
	if cs.ID == "" {
		return Session{}, transfer.ValidationError{Field: "data.object.id", Reason: "is required"}
	}
	return Session{ID: cs.ID, AmountTotal: cs.AmountTotal, Metadata: cs.Metadata}, nil
}

// Order is the transfer request packed into session metadata by the
// checkout page.
type Order struct {
	SenderName      string
	SenderEmail     string
	ReceiverName    string
	ReceiverPhone   string
	ReceiverCountry string
	AmountUSD       decimal.Decimal
	LocalCurrency   string
	USDToLocal      decimal.Decimal // zero when the page did not quote a rate
	Vault           bool
}

// Order decodes the compact metadata. amount_usd falls back to
// amount_total/100 when absent.
func (s Session) Order() (Order, error) {
	md := s.Metadata
	o := Order{
		SenderName:      strings.TrimSpace(md["sender_name"]),
		SenderEmail:     strings.TrimSpace(md["sender_email"]),
		ReceiverName:    strings.TrimSpace(md["receiver_name"]),
		ReceiverPhone:   strings.TrimSpace(md["receiver_phone"]),
		ReceiverCountry: strings.ToUpper(strings.TrimSpace(md["receiver_country"])),
		LocalCurrency:   strings.ToUpper(strings.TrimSpace(md["local_currency"])),
	}

	if raw := strings.TrimSpace(md["amount_usd"]); raw != "" {
		amt, err := decimal.NewFromString(raw)
		if err != nil {
			return Order{}, transfer.ValidationError{Field: "metadata.amount_usd", Reason: "is not a number"}
		}
		o.AmountUSD = amt
	} else {
		o.AmountUSD = decimal.New(s.AmountTotal, -2)
	}

	if raw := strings.TrimSpace(md["usd_to_local"]); raw != "" {
		rate, err := decimal.NewFromString(raw)
		if err != nil {
			return Order{}, transfer.ValidationError{Field: "metadata.usd_to_local", Reason: "is not a number"}
		}
		o.USDToLocal = rate
	}

	if raw := strings.TrimSpace(md["vault"]); raw != "" {
		vault, err := strconv.ParseBool(raw)
		if err != nil {
			return Order{}, transfer.ValidationError{Field: "metadata.vault", Reason: "is not a boolean"}
		}
		o.Vault = vault
	}

	return o, nil
}
