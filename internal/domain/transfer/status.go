package transfer

import "fmt"

// Status is the lifecycle position of a transfer.
type Status string

const (
	StatusPending          Status = "pending"
	StatusConverting       Status = "converting"
	StatusAssetSent        Status = "asset_sent"
	StatusPayoutProcessing Status = "payout_processing"
	StatusCompleted        Status = "completed"
	StatusFailed           Status = "failed"
)

// forward order of the non-failed states
var statusRank = map[Status]int{
	StatusPending:          0,
	StatusConverting:       1,
	StatusAssetSent:        2,
	StatusPayoutProcessing: 3,
	StatusCompleted:        4,
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	if s == StatusFailed {
		return true
	}
	_, ok := statusRank[s]
	return ok
}

// CanTransition reports whether a transfer may move from one status to another.
// Forward moves are one stage at a time; any non-completed status may fail;
// a failed transfer may only be reopened into an in-progress status.
func CanTransition(from, to Status) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	if from == StatusCompleted {
		return false
	}
	if to == StatusFailed {
		return true
	}
	if from == StatusFailed {
		return to != StatusCompleted
	}
	if from == to {
		return true
	}
	return statusRank[to] == statusRank[from]+1
}

// ErrInvalidTransition is returned when a status change breaks the state machine.
type ErrInvalidTransition struct {
	From Status
	To   Status
}

func (e ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invalid status transition %s -> %s", e.From, e.To)
}

// Stage names a pipeline step.
type Stage string

const (
	StageConversion     Stage = "conversion"
	StageLedgerTransfer Stage = "ledger_transfer"
	StagePayout         Stage = "payout"
)

// PayoutPhase separates "the provider accepted the request" from "the
// provider confirmed settlement".
type PayoutPhase string

const (
	PayoutPhaseNone      PayoutPhase = ""
	PayoutPhaseInitiated PayoutPhase = "initiated"
	PayoutPhaseConfirmed PayoutPhase = "confirmed"
	PayoutPhaseRejected  PayoutPhase = "rejected"
)
