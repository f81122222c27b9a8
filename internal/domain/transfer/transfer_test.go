package transfer

import (
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var flatFees = FeeSchedule{
	NetworkFeeUSD:       decimal.RequireFromString("0.50"),
	PlatformFeePercent:  decimal.Zero,
	BenchmarkFeePercent: decimal.RequireFromString("6.5"),
}

func validParams() NewParams {
	return NewParams{
		IdempotencyKey: "stripe_cs_test_1",
		Sender:         Sender{Name: "Ada", Email: "ada@example.com"},
		Receiver:       Receiver{Name: "Wanjiru", Phone: "0712345678", Country: "ke"},
		USD:            decimal.NewFromInt(100),
		LocalCurrency:  "kes",
		FXRate:         NewFXRate(decimal.RequireFromString("0.5"), decimal.RequireFromString("129.5"), RateSourceCache, time.Now(), decimal.Zero),
		Fees:           flatFees,
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusConverting, true},
		{StatusConverting, StatusAssetSent, true},
		{StatusAssetSent, StatusPayoutProcessing, true},
		{StatusPayoutProcessing, StatusCompleted, true},
		{StatusPayoutProcessing, StatusPayoutProcessing, true},
		{StatusPending, StatusAssetSent, false},
		{StatusAssetSent, StatusConverting, false},
		{StatusPending, StatusFailed, true},
		{StatusPayoutProcessing, StatusFailed, true},
		{StatusFailed, StatusPayoutProcessing, true},
		{StatusFailed, StatusPending, true},
		{StatusFailed, StatusCompleted, false},
		{StatusCompleted, StatusFailed, false},
		{StatusCompleted, StatusPayoutProcessing, false},
		{Status("bogus"), StatusFailed, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestNewTransaction(t *testing.T) {
	t.Run("SuccessfulCreation", func(t *testing.T) {
		now := time.Date(2024, 3, 9, 10, 0, 0, 0, time.UTC)
		tx, err := NewTransaction(validParams(), now)
		require.NoError(t, err)

		assert.Regexp(t, regexp.MustCompile(`^TX-20240309-[0-9A-F]{8}$`), tx.TransactionID)
		assert.Equal(t, StatusPending, tx.Status)
		assert.Equal(t, "KE", tx.Receiver.Country)
		assert.Equal(t, "KES", tx.Amounts.LocalCurrency)
		assert.Equal(t, DefaultMaxRetries, tx.MaxRetries)
		assert.Equal(t, 0, tx.RetryCount)
		assert.Equal(t, int64(1), tx.Version)
		assert.False(t, tx.Steps.Conversion.Completed)
		assert.False(t, tx.Steps.LedgerTransfer.Completed)
		assert.False(t, tx.Steps.Payout.Completed)
		assert.NotNil(t, tx.Errors)
	})

	tests := []struct {
		name   string
		mutate func(p *NewParams)
		field  string
	}{
		{"MissingIdempotencyKey", func(p *NewParams) { p.IdempotencyKey = "" }, "idempotencyKey"},
		{"MissingSenderName", func(p *NewParams) { p.Sender.Name = " " }, "sender.name"},
		{"MissingSenderEmail", func(p *NewParams) { p.Sender.Email = "" }, "sender.email"},
		{"MalformedSenderEmail", func(p *NewParams) { p.Sender.Email = "ada.example.com" }, "sender.email"},
		{"MissingReceiverName", func(p *NewParams) { p.Receiver.Name = "" }, "receiver.name"},
		{"MissingReceiverPhone", func(p *NewParams) { p.Receiver.Phone = "" }, "receiver.phone"},
		{"MissingReceiverCountry", func(p *NewParams) { p.Receiver.Country = "" }, "receiver.country"},
		{"ZeroAmount", func(p *NewParams) { p.USD = decimal.Zero }, "amounts.usd"},
		{"NegativeAmount", func(p *NewParams) { p.USD = decimal.NewFromInt(-5) }, "amounts.usd"},
		{"AmountBelowFees", func(p *NewParams) { p.USD = decimal.RequireFromString("0.40") }, "amounts.usd"},
		{"BadCurrency", func(p *NewParams) { p.LocalCurrency = "KE" }, "fxRate.localCurrency"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validParams()
			tt.mutate(&p)

			tx, err := NewTransaction(p, time.Now())
			require.Error(t, err)
			assert.Nil(t, tx)
			assert.True(t, errors.Is(err, ValidationError{}))
			assert.True(t, errors.Is(err, ValidationError{Field: tt.field}), err.Error())
		})
	}
}

func TestQuote(t *testing.T) {
	t.Run("FlatFee", func(t *testing.T) {
		// usd=100, f=0.50, r=0.5 => (100-0.5)/0.5 = 199
		amounts, fees, err := Quote(decimal.NewFromInt(100), decimal.RequireFromString("0.5"), decimal.RequireFromString("129.5"), flatFees)
		require.NoError(t, err)

		assert.True(t, decimal.NewFromInt(199).Equal(amounts.BridgeAsset), amounts.BridgeAsset.String())
		assert.True(t, decimal.RequireFromString("12885.25").Equal(amounts.Local), amounts.Local.String())
		assert.True(t, decimal.RequireFromString("0.50").Equal(fees.TotalFee))
		assert.True(t, decimal.RequireFromString("6.00").Equal(fees.Savings), fees.Savings.String())
	})

	t.Run("PercentageFee", func(t *testing.T) {
		schedule := FeeSchedule{
			NetworkFeeUSD:      decimal.RequireFromString("0.25"),
			PlatformFeePercent: decimal.RequireFromString("1.5"),
		}
		amounts, fees, err := Quote(decimal.NewFromInt(200), decimal.RequireFromString("2"), decimal.NewFromInt(1), schedule)
		require.NoError(t, err)

		assert.True(t, decimal.RequireFromString("3.00").Equal(fees.PlatformFee))
		assert.True(t, decimal.RequireFromString("3.25").Equal(fees.TotalFee))
		assert.True(t, decimal.RequireFromString("98.375").Equal(amounts.BridgeAsset), amounts.BridgeAsset.String())
		assert.True(t, decimal.Zero.Equal(fees.Savings))
	})

	t.Run("RejectsNonPositiveRate", func(t *testing.T) {
		_, _, err := Quote(decimal.NewFromInt(10), decimal.Zero, decimal.NewFromInt(1), flatFees)
		assert.True(t, errors.Is(err, ValidationError{Field: "fxRate.usdToBridge"}))
	})
}

func TestFXRate_Hash(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 123456789, time.UTC)
	f := NewFXRate(decimal.RequireFromString("0.52"), decimal.RequireFromString("129.5"), RateSourceOracle, ts, decimal.RequireFromString("1.0"))

	assert.Len(t, f.Hash, 64)
	assert.True(t, f.Verify())
	assert.Equal(t, ts.Truncate(time.Millisecond), f.Timestamp)

	again := NewFXRate(decimal.RequireFromString("0.52"), decimal.RequireFromString("129.5"), RateSourceCache, ts, decimal.RequireFromString("1.0"))
	assert.Equal(t, f.Hash, again.Hash, "hash is deterministic and independent of source")

	tampered := f
	tampered.USDToLocal = decimal.RequireFromString("130")
	assert.False(t, tampered.Verify())

	tampered = f
	tampered.FeePercentage = decimal.RequireFromString("0.5")
	assert.False(t, tampered.Verify())
}

func TestTransaction_HappyPath(t *testing.T) {
	now := time.Now()
	tx, err := NewTransaction(validParams(), now)
	require.NoError(t, err)

	stage, ok := tx.NextStage()
	require.True(t, ok)
	assert.Equal(t, StageConversion, stage)

	// ledger transfer cannot jump the queue
	assert.ErrorIs(t, tx.CompleteLedgerTransfer(LedgerTransaction{Hash: "H"}, now), ErrStageOutOfOrder)
	assert.ErrorIs(t, tx.InitiatePayout("R", now), ErrStageOutOfOrder)

	require.NoError(t, tx.CompleteConversion(decimal.RequireFromString("0.4"), RateSourceOracle, now))
	assert.Equal(t, StatusConverting, tx.Status)
	assert.True(t, decimal.RequireFromString("248.75").Equal(tx.Amounts.BridgeAsset), tx.Amounts.BridgeAsset.String())
	assert.True(t, tx.FXRate.Verify())
	assert.ErrorIs(t, tx.CompleteConversion(decimal.RequireFromString("0.4"), RateSourceOracle, now), ErrStepAlreadyCompleted)

	require.NoError(t, tx.CompleteLedgerTransfer(LedgerTransaction{Hash: "H", LedgerIndex: 7, Amount: tx.Amounts.BridgeAsset}, now))
	assert.Equal(t, StatusAssetSent, tx.Status)
	assert.Equal(t, "H", tx.Steps.LedgerTransfer.ProviderRef)
	require.NotNil(t, tx.LedgerTransaction)

	require.NoError(t, tx.InitiatePayout("R", now))
	assert.Equal(t, StatusPayoutProcessing, tx.Status)
	assert.True(t, tx.Steps.Payout.Completed)
	assert.Equal(t, PayoutPhaseInitiated, tx.Steps.Payout.Phase)
	assert.Equal(t, 1, tx.Steps.Payout.Attempts)
	_, ok = tx.NextStage()
	assert.False(t, ok)

	assert.ErrorIs(t, tx.ConfirmPayout("OTHER", "RCPT", decimal.Zero, nil, now), ErrPayoutNotInFlight)
	require.NoError(t, tx.ConfirmPayout("R", "RCPT", decimal.RequireFromString("12885.25"), nil, now))
	assert.Equal(t, StatusCompleted, tx.Status)
	assert.Equal(t, PayoutPhaseConfirmed, tx.Steps.Payout.Phase)
	require.NotNil(t, tx.PayoutTransaction)
	assert.Equal(t, "R", tx.PayoutTransaction.Reference)
	assert.True(t, tx.Amounts.Local.Equal(tx.PayoutTransaction.Amount))
	assert.True(t, tx.IsTerminal())

	// redelivery is refused by the state machine
	assert.ErrorIs(t, tx.ConfirmPayout("R", "RCPT", decimal.Zero, nil, now), ErrPayoutNotInFlight)
}

func TestTransaction_RejectPayout(t *testing.T) {
	newInFlight := func(t *testing.T) *Transaction {
		now := time.Now()
		tx, err := NewTransaction(validParams(), now)
		require.NoError(t, err)
		require.NoError(t, tx.CompleteConversion(tx.FXRate.USDToBridge, RateSourceCache, now))
		require.NoError(t, tx.CompleteLedgerTransfer(LedgerTransaction{Hash: "H"}, now))
		require.NoError(t, tx.InitiatePayout("R1", now))
		return tx
	}

	t.Run("RetryableWithinBudget", func(t *testing.T) {
		tx := newInFlight(t)
		require.NoError(t, tx.RejectPayout("network timeout", nil, true, time.Now()))

		assert.Equal(t, StatusPayoutProcessing, tx.Status)
		assert.Equal(t, 1, tx.RetryCount)
		assert.NotNil(t, tx.LastRetryAt)
		assert.Equal(t, PayoutPhaseRejected, tx.Steps.Payout.Phase)
		assert.True(t, tx.Steps.Payout.Completed, "completed is never cleared")
		require.Len(t, tx.Errors, 1)
		assert.Equal(t, StagePayout, tx.Errors[0].Stage)

		stage, ok := tx.NextStage()
		require.True(t, ok)
		assert.Equal(t, StagePayout, stage)

		require.NoError(t, tx.InitiatePayout("R2", time.Now()))
		assert.Equal(t, "R2", tx.Steps.Payout.ProviderRef)
		assert.Equal(t, 2, tx.Steps.Payout.Attempts)
	})

	t.Run("BudgetExhausted", func(t *testing.T) {
		tx := newInFlight(t)
		tx.RetryCount = tx.MaxRetries

		require.NoError(t, tx.RejectPayout("network timeout", nil, true, time.Now()))
		assert.Equal(t, StatusFailed, tx.Status)
		assert.Equal(t, tx.MaxRetries, tx.RetryCount)
		assert.True(t, tx.IsTerminal())
		assert.Error(t, tx.CanManualRetry())
	})

	t.Run("NonRetryable", func(t *testing.T) {
		tx := newInFlight(t)
		require.NoError(t, tx.RejectPayout("invalid account", map[string]string{"result_code": "2001"}, false, time.Now()))
		assert.Equal(t, StatusFailed, tx.Status)
		assert.Equal(t, 0, tx.RetryCount)
		assert.Equal(t, "2001", tx.LastError().Details["result_code"])
	})
}

func TestTransaction_Reopen(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(tx *Transaction)
		wantStatus Status
		wantStage  Stage
	}{
		{
			name: "ConversionFailed",
			setup: func(tx *Transaction) {
				_ = tx.FailStage(StageConversion, "oracle down", nil, time.Now())
			},
			wantStatus: StatusPending,
			wantStage:  StageConversion,
		},
		{
			name: "LedgerFailed",
			setup: func(tx *Transaction) {
				_ = tx.CompleteConversion(tx.FXRate.USDToBridge, RateSourceCache, time.Now())
				_ = tx.FailStage(StageLedgerTransfer, "tecPATH_DRY", nil, time.Now())
			},
			wantStatus: StatusConverting,
			wantStage:  StageLedgerTransfer,
		},
		{
			name: "PayoutValidationFailed",
			setup: func(tx *Transaction) {
				_ = tx.CompleteConversion(tx.FXRate.USDToBridge, RateSourceCache, time.Now())
				_ = tx.CompleteLedgerTransfer(LedgerTransaction{Hash: "H"}, time.Now())
				_ = tx.FailStage(StagePayout, "invalid phone", nil, time.Now())
			},
			wantStatus: StatusAssetSent,
			wantStage:  StagePayout,
		},
		{
			name: "PayoutRejected",
			setup: func(tx *Transaction) {
				_ = tx.CompleteConversion(tx.FXRate.USDToBridge, RateSourceCache, time.Now())
				_ = tx.CompleteLedgerTransfer(LedgerTransaction{Hash: "H"}, time.Now())
				_ = tx.InitiatePayout("R", time.Now())
				_ = tx.RejectPayout("account blocked", nil, false, time.Now())
			},
			wantStatus: StatusPayoutProcessing,
			wantStage:  StagePayout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx, err := NewTransaction(validParams(), time.Now())
			require.NoError(t, err)
			tt.setup(tx)
			require.Equal(t, StatusFailed, tx.Status)
			errorsBefore := len(tx.Errors)

			require.NoError(t, tx.Reopen(time.Now()))
			assert.Equal(t, tt.wantStatus, tx.Status)
			assert.Equal(t, 1, tx.RetryCount)
			assert.Len(t, tx.Errors, errorsBefore)

			stage, ok := tx.NextStage()
			require.True(t, ok)
			assert.Equal(t, tt.wantStage, stage)
		})
	}

	t.Run("NotFailed", func(t *testing.T) {
		tx, err := NewTransaction(validParams(), time.Now())
		require.NoError(t, err)
		err = tx.Reopen(time.Now())
		assert.True(t, errors.Is(err, ValidationError{Field: "status"}))
	})
}

func TestTransaction_CloneIsIndependent(t *testing.T) {
	tx, err := NewTransaction(validParams(), time.Now())
	require.NoError(t, err)
	tx.AppendError(StageConversion, "first", nil, time.Now())

	c := tx.Clone()
	c.AppendError(StageConversion, "second", nil, time.Now())
	c.Status = StatusFailed

	assert.Len(t, tx.Errors, 1)
	assert.Equal(t, StatusPending, tx.Status)
}

func TestErrorTypes_Is(t *testing.T) {
	assert.True(t, errors.Is(NotFoundError{Key: "transaction_id", Value: "TX-1"}, NotFoundError{}))
	assert.False(t, errors.Is(NotFoundError{Key: "transaction_id", Value: "TX-1"}, NotFoundError{Key: "transaction_id", Value: "TX-2"}))
	assert.True(t, errors.Is(DuplicateError{IdempotencyKey: "k"}, DuplicateError{}))
	assert.True(t, errors.Is(ErrConcurrentModification{TransactionID: "TX-1"}, ErrConcurrentModification{}))

	pe, ok := AsProviderError(errors.Join(errors.New("ctx"), ProviderError{Provider: "mpesa", Retryable: true}))
	require.True(t, ok)
	assert.True(t, pe.Retryable)
}
