package transfer

import (
	"errors"
	"fmt"
)

var (
	ErrStepAlreadyCompleted = errors.New("step already completed")
	ErrStageOutOfOrder      = errors.New("previous stage not completed")
	ErrPayoutNotInFlight    = errors.New("payout is not awaiting a result")
)

// ValidationError is a caller/input defect. It is never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

// Is matches any ValidationError when the target has no field set.
func (e ValidationError) Is(target error) bool {
	t, ok := target.(ValidationError)
	if !ok {
		return false
	}
	if t.Field == "" {
		return true
	}
	return e.Field == t.Field
}

// DuplicateError reports an idempotency-key collision. TransactionID names
// the record that already owns the key.
type DuplicateError struct {
	IdempotencyKey string
	TransactionID  string
}

func (e DuplicateError) Error() string {
	return "transfer already exists for idempotency key: " + e.IdempotencyKey
}

// Is matches any DuplicateError when the target has no key set.
func (e DuplicateError) Is(target error) bool {
	t, ok := target.(DuplicateError)
	if !ok {
		return false
	}
	if t.IdempotencyKey == "" {
		return true
	}
	return e.IdempotencyKey == t.IdempotencyKey
}

// NotFoundError is a lookup miss. Key names the lookup dimension
// (transaction_id, idempotency_key, payout_reference).
type NotFoundError struct {
	Key   string
	Value string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("transfer not found by %s: %s", e.Key, e.Value)
}

// Is matches any NotFoundError when the target has no key set.
func (e NotFoundError) Is(target error) bool {
	t, ok := target.(NotFoundError)
	if !ok {
		return false
	}
	if t.Key == "" {
		return true
	}
	return e.Key == t.Key && e.Value == t.Value
}

// ProviderError is a failed call to an external provider.
type ProviderError struct {
	Provider   string
	Operation  string
	Reason     string
	Retryable  bool
	StatusCode int
}

func (e ProviderError) Error() string {
	return fmt.Sprintf("%s %s failed: %s", e.Provider, e.Operation, e.Reason)
}

// ConfigurationError names a required setting that is missing. Fatal at startup.
type ConfigurationError struct {
	Setting string
}

func (e ConfigurationError) Error() string {
	return "missing required configuration: " + e.Setting
}

// ErrConcurrentModification indicates an optimistic lock failure.
type ErrConcurrentModification struct {
	TransactionID string
}

func (e ErrConcurrentModification) Error() string {
	return "concurrent modification detected for transfer: " + e.TransactionID
}

// Is matches any ErrConcurrentModification when the target has no id set.
func (e ErrConcurrentModification) Is(target error) bool {
	t, ok := target.(ErrConcurrentModification)
	if !ok {
		return false
	}
	return t.TransactionID == "" || t.TransactionID == e.TransactionID
}

// AsProviderError unwraps err into a ProviderError.
func AsProviderError(err error) (ProviderError, bool) {
	var pe ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return ProviderError{}, false
}
