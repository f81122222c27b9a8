package mpesa

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Result parameter keys carried on a successful B2C result.
const (
	ParamReceipt     = "TransactionReceipt"
	ParamAmount      = "TransactionAmount"
	ParamCompletedAt = "TransactionCompletedDateTime"
)

// completedLayout is the provider's local timestamp format (East Africa Time).
const completedLayout = "02.01.2006 15:04:05"

var eat = time.FixedZone("EAT", 3*60*60)

// ResultCode is sent as a number by some gateways and as a string by others.
type ResultCode string

func (c *ResultCode) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*c = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*c = ResultCode(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*c = ResultCode(n.String())
	return nil
}

// PayoutResult is the body posted to both the result and timeout URLs.
type PayoutResult struct {
	Result Result `json:"Result"`
}

type Result struct {
	ResultType               json.Number       `json:"ResultType,omitempty"`
	ResultCode               ResultCode        `json:"ResultCode"`
	ResultDesc               string            `json:"ResultDesc"`
	OriginatorConversationID string            `json:"OriginatorConversationID"`
	ConversationID           string            `json:"ConversationID"`
	TransactionID            string            `json:"TransactionID"`
	ResultParameters         *ResultParameters `json:"ResultParameters,omitempty"`
}

type ResultParameters struct {
	ResultParameter []ResultParameter `json:"ResultParameter"`
}

// ResultParameter values may be strings or numbers; Value keeps the raw JSON.
type ResultParameter struct {
	Key   string          `json:"Key"`
	Value json.RawMessage `json:"Value"`
}

// Succeeded reports ResultCode 0.
func (r Result) Succeeded() bool {
	return r.ResultCode == "0"
}

// Param returns a result parameter as text.
func (r Result) Param(key string) (string, bool) {
	if r.ResultParameters == nil {
		return "", false
	}
	for _, p := range r.ResultParameters.ResultParameter {
		if p.Key != key {
			continue
		}
		var s string
		if err := json.Unmarshal(p.Value, &s); err == nil {
			return s, true
		}
		return strings.TrimSpace(string(p.Value)), true
	}
	return "", false
}

// Settlement is what the provider reports it actually paid.
type Settlement struct {
	Receipt     string
	Amount      decimal.Decimal
	CompletedAt *time.Time
}

// Settlement extracts receipt, amount and completion time. Missing or
// malformed parameters are left zero; the receipt falls back to TransactionID.
func (r Result) Settlement() Settlement {
	var s Settlement
	s.Receipt, _ = r.Param(ParamReceipt)
	if s.Receipt == "" {
		s.Receipt = r.TransactionID
	}
	if v, ok := r.Param(ParamAmount); ok {
		if d, err := decimal.NewFromString(v); err == nil {
			s.Amount = d
		}
	}
	if v, ok := r.Param(ParamCompletedAt); ok {
		if ts, err := time.ParseInLocation(completedLayout, v, eat); err == nil {
			utc := ts.UTC()
			s.CompletedAt = &utc
		}
	}
	return s
}
