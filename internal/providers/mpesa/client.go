// Package mpesa is the mobile-money payout adapter: a Daraja B2C client,
// the result callback payloads and receiver phone normalization.
package mpesa

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/remitbridge-transfer-orchestrator/internal/config"
	"github.com/remitbridge-transfer-orchestrator/internal/domain/transfer"
	"github.com/remitbridge-transfer-orchestrator/internal/providers"
)

const (
	providerName = "mpesa"
	// tokenSkew renews the access token this long before it expires.
	tokenSkew = time.Minute
)

// Client initiates B2C payouts. The OAuth token is cached until shortly
// before expiry and shared by concurrent callers.
type Client struct {
	client *providers.Client
	cfg    config.MPesaConfig
	now    func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

func NewClient(cfg config.MPesaConfig) *Client {
	return &Client{
		client: providers.NewClient(providerName, cfg.BaseURL, cfg.Timeout),
		cfg:    cfg,
		now:    time.Now,
	}
}

// PayoutRequest is one B2C disbursement.
type PayoutRequest struct {
	Phone   string // E.164 digits without '+'
	Amount  decimal.Decimal
	Remarks string
	// Occasion is echoed back in the result; the transaction id goes here.
	Occasion string
	// OriginatorConversationID identifies the request to the provider, which
	// refuses a second submission under the same id. Empty means a fresh one.
	OriginatorConversationID string
}

// ErrDuplicateRequest means the provider already holds a request under the
// same originator id. The earlier submission stands and its callback will
// carry that id.
var ErrDuplicateRequest = errors.New("payout request already submitted")

// PayoutResponse is the synchronous acknowledgement. The outcome arrives
// later on the result or timeout callback keyed by ConversationID.
type PayoutResponse struct {
	ConversationID           string `json:"ConversationID"`
	OriginatorConversationID string `json:"OriginatorConversationID"`
	ResponseCode             string `json:"ResponseCode"`
	ResponseDescription      string `json:"ResponseDescription"`
}

type b2cRequest struct {
	OriginatorConversationID string `json:"OriginatorConversationID"`
	InitiatorName            string `json:"InitiatorName"`
	SecurityCredential       string `json:"SecurityCredential"`
	CommandID                string `json:"CommandID"`
	Amount                   string `json:"Amount"`
	PartyA                   string `json:"PartyA"`
	PartyB                   string `json:"PartyB"`
	Remarks                  string `json:"Remarks"`
	QueueTimeOutURL          string `json:"QueueTimeOutURL"`
	ResultURL                string `json:"ResultURL"`
	Occasion                 string `json:"Occassion"`
}

// InitiatePayout submits a B2C payment request. ResponseCode other than "0"
// is a ProviderError.
func (c *Client) InitiatePayout(ctx context.Context, req PayoutRequest) (PayoutResponse, error) {
	originator := req.OriginatorConversationID
	if originator == "" {
		originator = uuid.NewString()
	}
	body := b2cRequest{
		OriginatorConversationID: originator,
		InitiatorName:            c.cfg.InitiatorName,
		SecurityCredential:       c.cfg.SecurityCredential,
		CommandID:                c.cfg.CommandID,
		// Mobile-money wallets settle in whole units.
		Amount:          req.Amount.Round(0).String(),
		PartyA:          c.cfg.ShortCode,
		PartyB:          req.Phone,
		Remarks:         req.Remarks,
		QueueTimeOutURL: c.cfg.TimeoutURL,
		ResultURL:       c.cfg.ResultURL,
		Occasion:        req.Occasion,
	}

	resp, err := c.submit(ctx, body)
	var pe transfer.ProviderError
	if errors.As(err, &pe) && pe.StatusCode == http.StatusUnauthorized {
		// Token revoked early; fetch a new one and try once more.
		c.invalidateToken()
		resp, err = c.submit(ctx, body)
	}
	if err != nil {
		if errors.As(err, &pe) && isDuplicate(pe.Reason) {
			return PayoutResponse{OriginatorConversationID: originator}, ErrDuplicateRequest
		}
		return PayoutResponse{}, err
	}

	if resp.ResponseCode != "0" {
		reason := resp.ResponseDescription
		if reason == "" {
			reason = "response code " + resp.ResponseCode
		}
		if isDuplicate(reason) {
			return PayoutResponse{OriginatorConversationID: originator}, ErrDuplicateRequest
		}
		return resp, c.client.Fail("payout", reason, false)
	}
	if resp.ConversationID == "" {
		return resp, c.client.Fail("payout", "accepted without a conversation id", false)
	}
	return resp, nil
}

func isDuplicate(reason string) bool {
	return strings.Contains(strings.ToLower(reason), "duplicate")
}

func (c *Client) submit(ctx context.Context, body b2cRequest) (PayoutResponse, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return PayoutResponse{}, err
	}

	var out PayoutResponse
	err = c.client.Do(ctx, providers.Request{
		Operation:   "payout",
		Method:      http.MethodPost,
		Path:        "/mpesa/b2c/v1/paymentrequest",
		Header:      http.Header{"Authorization": {"Bearer " + token}},
		Body:        body,
		Out:         &out,
		ErrorReason: providers.MessageField("errorMessage", "ResponseDescription"),
	})
	return out, err
}

type tokenResponse struct {
	AccessToken string          `json:"access_token"`
	ExpiresIn   json.RawMessage `json:"expires_in"`
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.expiresAt) {
		return c.token, nil
	}

	var out tokenResponse
	err := c.client.Do(ctx, providers.Request{
		Operation: "oauth",
		Method:    http.MethodGet,
		Path:      "/oauth/v1/generate",
		Query:     url.Values{"grant_type": {"client_credentials"}},
		Header: http.Header{"Authorization": {
			"Basic " + basicAuth(c.cfg.ConsumerKey, c.cfg.ConsumerSecret),
		}},
		Out:         &out,
		ErrorReason: providers.MessageField("errorMessage"),
	})
	if err != nil {
		return "", err
	}
	if out.AccessToken == "" {
		return "", c.client.Fail("oauth", "empty access token", true)
	}

	c.token = out.AccessToken
	c.expiresAt = c.now().Add(expiresIn(out.ExpiresIn) - tokenSkew)
	return c.token, nil
}

func (c *Client) invalidateToken() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

// expiresIn accepts the lifetime as a JSON number or numeric string.
// An unreadable value falls back to the documented one hour.
func expiresIn(raw json.RawMessage) time.Duration {
	s := strings.Trim(string(raw), `"`)
	secs, err := strconv.Atoi(s)
	if err != nil || secs <= 0 {
		return time.Hour
	}
	return time.Duration(secs) * time.Second
}

func basicAuth(key, secret string) string {
	return base64.StdEncoding.EncodeToString([]byte(key + ":" + secret))
}
