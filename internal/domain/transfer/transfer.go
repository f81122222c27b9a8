package transfer

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultMaxRetries is the retry budget when none is configured.
const DefaultMaxRetries = 3

// Sender is the paying party snapshot.
type Sender struct {
	Name  string `json:"name" bson:"name"`
	Email string `json:"email" bson:"email"`
}

// Receiver is the payout party snapshot. Phone is stored as submitted.
type Receiver struct {
	Name    string `json:"name" bson:"name"`
	Phone   string `json:"phone" bson:"phone"`
	Country string `json:"country" bson:"country"`
}

// Amounts holds the USD principal and its converted values.
type Amounts struct {
	USD           decimal.Decimal `json:"usd" bson:"usd"`
	BridgeAsset   decimal.Decimal `json:"bridgeAsset" bson:"bridge_asset"`
	Local         decimal.Decimal `json:"local" bson:"local"`
	LocalCurrency string          `json:"localCurrency" bson:"local_currency"`
}

// Fees are denominated in USD.
type Fees struct {
	NetworkFee  decimal.Decimal `json:"networkFee" bson:"network_fee"`
	PlatformFee decimal.Decimal `json:"platformFee" bson:"platform_fee"`
	TotalFee    decimal.Decimal `json:"totalFee" bson:"total_fee"`
	Savings     decimal.Decimal `json:"savings" bson:"savings"`
}

// Vault carries the sender's vault preference through the pipeline.
type Vault struct {
	Enabled bool `json:"enabled" bson:"enabled"`
}

// Step records one pipeline stage. Completed is set once and never cleared.
type Step struct {
	Completed   bool       `json:"completed" bson:"completed"`
	Timestamp   *time.Time `json:"timestamp,omitempty" bson:"timestamp,omitempty"`
	Error       string     `json:"error,omitempty" bson:"error,omitempty"`
	ProviderRef string     `json:"providerRef,omitempty" bson:"provider_ref,omitempty"`
}

// PayoutStep is a Step with the initiated/confirmed split. Completed means
// the provider accepted an initiation; Phase says what happened after.
type PayoutStep struct {
	Completed   bool        `json:"completed" bson:"completed"`
	Timestamp   *time.Time  `json:"timestamp,omitempty" bson:"timestamp,omitempty"`
	Error       string      `json:"error,omitempty" bson:"error,omitempty"`
	ProviderRef string      `json:"providerRef,omitempty" bson:"provider_ref,omitempty"`
	Phase       PayoutPhase `json:"phase,omitempty" bson:"phase,omitempty"`
	ConfirmedAt *time.Time  `json:"confirmedAt,omitempty" bson:"confirmed_at,omitempty"`
	Attempts    int         `json:"attempts" bson:"attempts"`
}

// Steps groups the three pipeline stages.
type Steps struct {
	Conversion     Step       `json:"conversion" bson:"conversion"`
	LedgerTransfer Step       `json:"ledgerTransfer" bson:"ledger_transfer"`
	Payout         PayoutStep `json:"payout" bson:"payout"`
}

// LedgerTransaction is the partner-ledger receipt.
type LedgerTransaction struct {
	Hash        string          `json:"hash" bson:"hash"`
	LedgerIndex uint64          `json:"ledgerIndex" bson:"ledger_index"`
	Fee         decimal.Decimal `json:"fee" bson:"fee"`
	Amount      decimal.Decimal `json:"amount" bson:"amount"`
}

// PayoutTransaction is the confirmed mobile-money settlement.
type PayoutTransaction struct {
	Reference     string          `json:"reference" bson:"reference"`
	Status        string          `json:"status" bson:"status"`
	Amount        decimal.Decimal `json:"amount" bson:"amount"`
	Receipt       string          `json:"receipt,omitempty" bson:"receipt,omitempty"`
	SettledAmount decimal.Decimal `json:"settledAmount" bson:"settled_amount"`
	SettledAt     *time.Time      `json:"settledAt,omitempty" bson:"settled_at,omitempty"`
}

// ErrorEntry is one line of the append-only audit trail.
type ErrorEntry struct {
	Stage     Stage             `json:"stage" bson:"stage"`
	Message   string            `json:"message" bson:"message"`
	Timestamp time.Time         `json:"timestamp" bson:"timestamp"`
	Details   map[string]string `json:"details,omitempty" bson:"details,omitempty"`
}

// Transaction is the transfer aggregate.
type Transaction struct {
	TransactionID     string             `json:"transactionId" bson:"transaction_id"`
	IdempotencyKey    string             `json:"idempotencyKey" bson:"idempotency_key"`
	Sender            Sender             `json:"sender" bson:"sender"`
	Receiver          Receiver           `json:"receiver" bson:"receiver"`
	Amounts           Amounts            `json:"amounts" bson:"amounts"`
	Fees              Fees               `json:"fees" bson:"fees"`
	FXRate            FXRate             `json:"fxRate" bson:"fx_rate"`
	Vault             *Vault             `json:"vault,omitempty" bson:"vault,omitempty"`
	Status            Status             `json:"status" bson:"status"`
	Steps             Steps              `json:"steps" bson:"steps"`
	RetryCount        int                `json:"retryCount" bson:"retry_count"`
	MaxRetries        int                `json:"maxRetries" bson:"max_retries"`
	LastRetryAt       *time.Time         `json:"lastRetryAt,omitempty" bson:"last_retry_at,omitempty"`
	LedgerTransaction *LedgerTransaction `json:"ledgerTransaction,omitempty" bson:"ledger_transaction,omitempty"`
	PayoutTransaction *PayoutTransaction `json:"payoutTransaction,omitempty" bson:"payout_transaction,omitempty"`
	Errors            []ErrorEntry       `json:"errors" bson:"errors"`
	CorrelationID     string             `json:"correlationId,omitempty" bson:"correlation_id,omitempty"`
	Version           int64              `json:"version" bson:"version"` // For optimistic locking
	CreatedAt         time.Time          `json:"createdAt" bson:"created_at"`
	UpdatedAt         time.Time          `json:"updatedAt" bson:"updated_at"`
}

// NewParams is everything needed to open a transfer.
type NewParams struct {
	IdempotencyKey string
	Sender         Sender
	Receiver       Receiver
	USD            decimal.Decimal
	LocalCurrency  string
	Vault          *Vault
	FXRate         FXRate
	Fees           FeeSchedule
	MaxRetries     int
	CorrelationID  string
}

// NewTransaction validates params and returns a pending transfer with its
// quote computed. FXRate must already carry both rates.
func NewTransaction(p NewParams, now time.Time) (*Transaction, error) {
	if err := validateParams(p); err != nil {
		return nil, err
	}

	amounts, fees, err := Quote(p.USD, p.FXRate.USDToBridge, p.FXRate.USDToLocal, p.Fees)
	if err != nil {
		return nil, err
	}
	amounts.LocalCurrency = strings.ToUpper(p.LocalCurrency)

	maxRetries := p.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}

	now = now.UTC()
	return &Transaction{
		TransactionID:  NewTransactionID(now),
		IdempotencyKey: p.IdempotencyKey,
		Sender:         p.Sender,
		Receiver: Receiver{
			Name:    p.Receiver.Name,
			Phone:   p.Receiver.Phone,
			Country: strings.ToUpper(p.Receiver.Country),
		},
		Amounts:       amounts,
		Fees:          fees,
		FXRate:        p.FXRate,
		Vault:         p.Vault,
		Status:        StatusPending,
		MaxRetries:    maxRetries,
		Errors:        []ErrorEntry{},
		CorrelationID: p.CorrelationID,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

func validateParams(p NewParams) error {
	switch {
	case strings.TrimSpace(p.IdempotencyKey) == "":
		return ValidationError{Field: "idempotencyKey", Reason: "is required"}
	case strings.TrimSpace(p.Sender.Name) == "":
		return ValidationError{Field: "sender.name", Reason: "is required"}
	case strings.TrimSpace(p.Sender.Email) == "":
		return ValidationError{Field: "sender.email", Reason: "is required"}
	case !strings.Contains(p.Sender.Email, "@"):
		return ValidationError{Field: "sender.email", Reason: "is not an email address"}
	case strings.TrimSpace(p.Receiver.Name) == "":
		return ValidationError{Field: "receiver.name", Reason: "is required"}
	case strings.TrimSpace(p.Receiver.Phone) == "":
		return ValidationError{Field: "receiver.phone", Reason: "is required"}
	case strings.TrimSpace(p.Receiver.Country) == "":
		return ValidationError{Field: "receiver.country", Reason: "is required"}
	case !p.USD.IsPositive():
		return ValidationError{Field: "amounts.usd", Reason: "must be greater than 0"}
	case len(strings.TrimSpace(p.LocalCurrency)) != 3:
		return ValidationError{Field: "fxRate.localCurrency", Reason: "must be a 3-letter code"}
	}
	return nil
}

// NewTransactionID returns an id of the form TX-YYYYMMDD-XXXXXXXX.
func NewTransactionID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("TX-%s-%s", now.UTC().Format("20060102"), strings.ToUpper(suffix))
}

// NextStage returns the first stage that still needs work. A rejected payout
// counts as incomplete even though its Completed flag stays set.
func (t *Transaction) NextStage() (Stage, bool) {
	switch {
	case !t.Steps.Conversion.Completed:
		return StageConversion, true
	case !t.Steps.LedgerTransfer.Completed:
		return StageLedgerTransfer, true
	case !t.Steps.Payout.Completed || t.Steps.Payout.Phase == PayoutPhaseRejected:
		return StagePayout, true
	}
	return "", false
}

// AttemptKey names the provider call made for stage. It is the same for
// every delivery of one attempt and changes whenever retry budget is spent,
// so providers recognise a repeated call instead of executing it again.
func (t *Transaction) AttemptKey(stage Stage) string {
	return fmt.Sprintf("%s:%s:%d", t.TransactionID, stage, t.RetryCount)
}

// ResumeStatus is the in-progress status a manual retry reopens into.
func (t *Transaction) ResumeStatus() Status {
	stage, ok := t.NextStage()
	if !ok {
		return StatusPayoutProcessing
	}
	switch stage {
	case StageConversion:
		return StatusPending
	case StageLedgerTransfer:
		return StatusConverting
	default:
		if t.Steps.Payout.Completed {
			return StatusPayoutProcessing
		}
		return StatusAssetSent
	}
}

// RetriesExhausted reports whether the retry budget is spent.
func (t *Transaction) RetriesExhausted() bool {
	return t.RetryCount >= t.MaxRetries
}

// IsTerminal reports whether no further processing can happen.
func (t *Transaction) IsTerminal() bool {
	return t.Status == StatusCompleted || (t.Status == StatusFailed && t.RetriesExhausted())
}

func (t *Transaction) setStatus(to Status) error {
	if !CanTransition(t.Status, to) {
		return ErrInvalidTransition{From: t.Status, To: to}
	}
	t.Status = to
	return nil
}

// CompleteConversion locks the live bridge rate and recomputes the derived
// amounts from the local rate captured at creation.
func (t *Transaction) CompleteConversion(usdToBridge decimal.Decimal, source string, now time.Time) error {
	if t.Steps.Conversion.Completed {
		return ErrStepAlreadyCompleted
	}
	if !usdToBridge.IsPositive() {
		return ValidationError{Field: "fxRate.usdToBridge", Reason: "must be greater than 0"}
	}
	if err := t.setStatus(StatusConverting); err != nil {
		return err
	}

	net := t.Amounts.USD.Sub(t.Fees.TotalFee)
	t.Amounts.BridgeAsset = net.DivRound(usdToBridge, bridgeAssetPlaces)
	t.Amounts.Local = net.Mul(t.FXRate.USDToLocal).Round(localPlaces)
	t.FXRate = NewFXRate(usdToBridge, t.FXRate.USDToLocal, source, now, t.FXRate.FeePercentage)

	ts := now.UTC()
	t.Steps.Conversion = Step{Completed: true, Timestamp: &ts, ProviderRef: t.FXRate.Hash}
	return nil
}

// CompleteLedgerTransfer records the partner-ledger receipt.
func (t *Transaction) CompleteLedgerTransfer(receipt LedgerTransaction, now time.Time) error {
	if !t.Steps.Conversion.Completed {
		return ErrStageOutOfOrder
	}
	if t.Steps.LedgerTransfer.Completed {
		return ErrStepAlreadyCompleted
	}
	if err := t.setStatus(StatusAssetSent); err != nil {
		return err
	}

	ts := now.UTC()
	t.Steps.LedgerTransfer = Step{Completed: true, Timestamp: &ts, ProviderRef: receipt.Hash}
	t.LedgerTransaction = &receipt
	return nil
}

// InitiatePayout records a provider-accepted payout request under ref.
// It also serves retries: the reference is replaced, the step stays completed.
func (t *Transaction) InitiatePayout(ref string, now time.Time) error {
	if !t.Steps.LedgerTransfer.Completed {
		return ErrStageOutOfOrder
	}
	if t.Steps.Payout.Phase == PayoutPhaseInitiated || t.Steps.Payout.Phase == PayoutPhaseConfirmed {
		return ErrStepAlreadyCompleted
	}
	if strings.TrimSpace(ref) == "" {
		return ValidationError{Field: "steps.payout.providerRef", Reason: "is required"}
	}
	if err := t.setStatus(StatusPayoutProcessing); err != nil {
		return err
	}

	ts := now.UTC()
	if !t.Steps.Payout.Completed {
		t.Steps.Payout.Completed = true
		t.Steps.Payout.Timestamp = &ts
	}
	t.Steps.Payout.Phase = PayoutPhaseInitiated
	t.Steps.Payout.ProviderRef = ref
	t.Steps.Payout.Error = ""
	t.Steps.Payout.Attempts++
	return nil
}

// AwaitingPayoutResult reports whether a result for ref would be applied.
func (t *Transaction) AwaitingPayoutResult(ref string) bool {
	return t.Status == StatusPayoutProcessing &&
		t.Steps.Payout.Phase == PayoutPhaseInitiated &&
		t.Steps.Payout.ProviderRef == ref
}

// ConfirmPayout completes the transfer. The paid amount is the locked local
// amount; what the provider reports is kept as SettledAmount.
func (t *Transaction) ConfirmPayout(ref, receipt string, settled decimal.Decimal, settledAt *time.Time, now time.Time) error {
	if !t.AwaitingPayoutResult(ref) {
		return ErrPayoutNotInFlight
	}
	if err := t.setStatus(StatusCompleted); err != nil {
		return err
	}

	ts := now.UTC()
	t.Steps.Payout.Phase = PayoutPhaseConfirmed
	t.Steps.Payout.ConfirmedAt = &ts
	t.PayoutTransaction = &PayoutTransaction{
		Reference:     ref,
		Status:        "completed",
		Amount:        t.Amounts.Local,
		Receipt:       receipt,
		SettledAmount: settled,
		SettledAt:     settledAt,
	}
	return nil
}

// RejectPayout applies a failed payout attempt. When retry is true the
// transfer stays in payout_processing and one unit of budget is consumed;
// otherwise it fails.
func (t *Transaction) RejectPayout(reason string, details map[string]string, retry bool, now time.Time) error {
	if t.Steps.Payout.Phase == PayoutPhaseConfirmed {
		return ErrStepAlreadyCompleted
	}
	if retry && t.RetriesExhausted() {
		retry = false
	}

	t.Steps.Payout.Phase = PayoutPhaseRejected
	t.Steps.Payout.Error = reason
	t.AppendError(StagePayout, reason, details, now)

	if !retry {
		return t.setStatus(StatusFailed)
	}

	if err := t.setStatus(StatusPayoutProcessing); err != nil {
		return err
	}
	ts := now.UTC()
	t.RetryCount++
	t.LastRetryAt = &ts
	return nil
}

// FailStage records a stage failure and moves the transfer to failed.
func (t *Transaction) FailStage(stage Stage, reason string, details map[string]string, now time.Time) error {
	switch stage {
	case StageConversion:
		t.Steps.Conversion.Error = reason
	case StageLedgerTransfer:
		t.Steps.LedgerTransfer.Error = reason
	case StagePayout:
		t.Steps.Payout.Error = reason
		if t.Steps.Payout.Completed {
			t.Steps.Payout.Phase = PayoutPhaseRejected
		}
	}
	t.AppendError(stage, reason, details, now)
	return t.setStatus(StatusFailed)
}

// CanManualRetry reports why a manual retry is refused, or nil.
func (t *Transaction) CanManualRetry() error {
	if t.Status != StatusFailed {
		return ValidationError{Field: "status", Reason: fmt.Sprintf("is %s, only failed transfers can be retried", t.Status)}
	}
	if t.RetriesExhausted() {
		return ValidationError{Field: "retryCount", Reason: fmt.Sprintf("has reached the maximum of %d", t.MaxRetries)}
	}
	return nil
}

// Reopen moves a failed transfer back to the status of its first
// incomplete step and consumes one unit of retry budget.
func (t *Transaction) Reopen(now time.Time) error {
	if err := t.CanManualRetry(); err != nil {
		return err
	}
	if err := t.setStatus(t.ResumeStatus()); err != nil {
		return err
	}
	ts := now.UTC()
	t.RetryCount++
	t.LastRetryAt = &ts
	return nil
}

// AppendError adds to the audit trail. Existing entries are never touched.
func (t *Transaction) AppendError(stage Stage, message string, details map[string]string, now time.Time) {
	t.Errors = append(t.Errors, ErrorEntry{
		Stage:     stage,
		Message:   message,
		Timestamp: now.UTC(),
		Details:   details,
	})
}

// LastError returns the most recent audit entry, if any.
func (t *Transaction) LastError() *ErrorEntry {
	if len(t.Errors) == 0 {
		return nil
	}
	e := t.Errors[len(t.Errors)-1]
	return &e
}

// MarkUpdated bumps the optimistic lock version.
func (t *Transaction) MarkUpdated(now time.Time) {
	t.UpdatedAt = now.UTC()
	t.Version++
}

// Clone returns a deep copy so callers can mutate without sharing state.
func (t *Transaction) Clone() *Transaction {
	c := *t
	if t.Vault != nil {
		v := *t.Vault
		c.Vault = &v
	}
	if t.LedgerTransaction != nil {
		l := *t.LedgerTransaction
		c.LedgerTransaction = &l
	}
	if t.PayoutTransaction != nil {
		p := *t.PayoutTransaction
		c.PayoutTransaction = &p
	}
	c.Errors = make([]ErrorEntry, len(t.Errors))
	copy(c.Errors, t.Errors)
	return &c
}
