package transfer

import (
	"github.com/shopspring/decimal"
)

const (
	bridgeAssetPlaces = 6
	localPlaces       = 2
	usdPlaces         = 2
)

var hundred = decimal.NewFromInt(100)

// FeeSchedule prices a transfer. Percentages are of the USD principal.
type FeeSchedule struct {
	NetworkFeeUSD       decimal.Decimal
	PlatformFeePercent  decimal.Decimal
	BenchmarkFeePercent decimal.Decimal
}

// TotalPercent is the platform percentage stamped on the fx snapshot.
func (f FeeSchedule) TotalPercent() decimal.Decimal {
	return f.PlatformFeePercent
}

// Quote computes fees and converted amounts for usd at the given rates.
// usdToBridge is the USD price of one bridge-asset unit.
func Quote(usd, usdToBridge, usdToLocal decimal.Decimal, schedule FeeSchedule) (Amounts, Fees, error) {
	if !usd.IsPositive() {
		return Amounts{}, Fees{}, ValidationError{Field: "amounts.usd", Reason: "must be greater than 0"}
	}
	if !usdToBridge.IsPositive() {
		return Amounts{}, Fees{}, ValidationError{Field: "fxRate.usdToBridge", Reason: "must be greater than 0"}
	}
	if !usdToLocal.IsPositive() {
		return Amounts{}, Fees{}, ValidationError{Field: "fxRate.usdToLocal", Reason: "must be greater than 0"}
	}

	platform := usd.Mul(schedule.PlatformFeePercent).Div(hundred).Round(usdPlaces)
	total := schedule.NetworkFeeUSD.Add(platform)
	if total.GreaterThanOrEqual(usd) {
		return Amounts{}, Fees{}, ValidationError{Field: "amounts.usd", Reason: "does not cover fees of " + total.StringFixed(usdPlaces)}
	}

	savings := usd.Mul(schedule.BenchmarkFeePercent).Div(hundred).Sub(total).Round(usdPlaces)
	if savings.IsNegative() {
		savings = decimal.Zero
	}

	net := usd.Sub(total)
	amounts := Amounts{
		USD:         usd,
		BridgeAsset: net.DivRound(usdToBridge, bridgeAssetPlaces),
		Local:       net.Mul(usdToLocal).Round(localPlaces),
	}
	fees := Fees{
		NetworkFee:  schedule.NetworkFeeUSD,
		PlatformFee: platform,
		TotalFee:    total,
		Savings:     savings,
	}
	return amounts, fees, nil
}
