// Package retry decides which payout failures are worth retrying, schedules
// durable retry tasks and runs them when they come due.
package retry

import (
	"errors"
	"strings"

	"github.com/remitbridge-transfer-orchestrator/internal/domain/transfer"
)

// retryableMessages are provider messages that describe a transient condition.
var retryableMessages = []string{
	"network timeout",
	"service unavailable",
	"rate limit",
	"temporary error",
	"insufficient funds",
	"timeout",
}

// IsRetryable classifies a payout failure. A ProviderError the adapter marked
// retryable is retryable; otherwise the message decides. Validation errors
// never are.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, transfer.ValidationError{}) {
		return false
	}
	if pe, ok := transfer.AsProviderError(err); ok {
		return pe.Retryable || IsRetryableMessage(pe.Reason)
	}
	return IsRetryableMessage(err.Error())
}

// IsRetryableMessage is the message half of IsRetryable, used for result
// callbacks that carry only a description.
func IsRetryableMessage(msg string) bool {
	msg = strings.ToLower(msg)
	for _, m := range retryableMessages {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
