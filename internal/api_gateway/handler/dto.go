package handler

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/remitbridge-transfer-orchestrator/internal/domain/transfer"
)

// CreateTransferRequest represents a request to create a new transfer
type CreateTransferRequest struct {
	Sender struct {
		Name  string `json:"name" binding:"required"`
		Email string `json:"email" binding:"required,email"`
	} `json:"sender"`
	Receiver struct {
		Name    string `json:"name" binding:"required"`
		Phone   string `json:"phone" binding:"required"`
		Country string `json:"country" binding:"required,len=2"`
	} `json:"receiver"`
	Amounts struct {
		USD decimal.Decimal `json:"usd"`
	} `json:"amounts"`
	Vault  *VaultRequest  `json:"vault,omitempty"`
	FXRate *FXRateRequest `json:"fxRate,omitempty"`
}

// VaultRequest carries the optional vault preference
type VaultRequest struct {
	Enabled bool `json:"enabled"`
}

// FXRateRequest lets the caller pin the local currency and rate
type FXRateRequest struct {
	LocalCurrency string          `json:"localCurrency"`
	USDToLocal    decimal.Decimal `json:"usdToLocal"`
}

// RetryTransferRequest is the optional manual retry body
type RetryTransferRequest struct {
	TransactionID string `json:"transactionId"`
}

// TransferResponse is returned by create and retry
type TransferResponse struct {
	TransactionID string          `json:"transactionId"`
	Status        transfer.Status `json:"status"`
	Steps         transfer.Steps  `json:"steps"`
	Duplicate     bool            `json:"duplicate,omitempty"`
}

// RateQuoteResponse describes one rate and its origin
type RateQuoteResponse struct {
	Rate      decimal.Decimal `json:"rate"`
	Source    string          `json:"source"`
	FetchedAt *time.Time      `json:"fetchedAt,omitempty"`
}

// RateResponse represents the current rates for a payout currency
type RateResponse struct {
	Currency   string            `json:"currency"`
	BridgeUSD  RateQuoteResponse `json:"bridgeUsd"`
	USDToLocal RateQuoteResponse `json:"usdToLocal"`
}

// WebhookAck acknowledges a checkout webhook
type WebhookAck struct {
	Received      bool   `json:"received"`
	Action        string `json:"action"`
	TransactionID string `json:"transactionId,omitempty"`
}

// PayoutAck is the body the mobile-money provider expects on its callbacks
type PayoutAck struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}
