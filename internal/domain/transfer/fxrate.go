package transfer

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Rate sources recorded on the snapshot.
const (
	RateSourceOracle   = "oracle"
	RateSourceCache    = "cache"
	RateSourceFallback = "fallback"
	RateSourceRequest  = "request"
)

// FXRate is the quoted rate snapshot. Hash lets an auditor confirm the
// rates, timestamp and fee percentage were not altered after quoting.
type FXRate struct {
	USDToBridge   decimal.Decimal `json:"usdToBridge" bson:"usd_to_bridge"`
	USDToLocal    decimal.Decimal `json:"usdToLocal" bson:"usd_to_local"`
	Source        string          `json:"source" bson:"source"`
	Timestamp     time.Time       `json:"timestamp" bson:"timestamp"`
	Hash          string          `json:"hash" bson:"hash"`
	FeePercentage decimal.Decimal `json:"feePercentage" bson:"fee_percentage"`
}

// NewFXRate builds a hashed snapshot. The timestamp is truncated to the
// millisecond so the hash survives a BSON round trip.
func NewFXRate(usdToBridge, usdToLocal decimal.Decimal, source string, ts time.Time, feePct decimal.Decimal) FXRate {
	f := FXRate{
		USDToBridge:   usdToBridge,
		USDToLocal:    usdToLocal,
		Source:        source,
		Timestamp:     ts.UTC().Truncate(time.Millisecond),
		FeePercentage: feePct,
	}
	f.Hash = f.ComputeHash()
	return f
}

// ComputeHash returns hex(sha256) over the canonical snapshot string.
// The source is not part of the digest.
func (f FXRate) ComputeHash() string {
	canonical := strings.Join([]string{
		f.USDToBridge.String(),
		f.USDToLocal.String(),
		f.Timestamp.UTC().Format(time.RFC3339Nano),
		f.FeePercentage.String(),
	}, "|")
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}

// Verify reports whether Hash matches the snapshot values.
func (f FXRate) Verify() bool {
	return f.Hash != "" && f.Hash == f.ComputeHash()
}
