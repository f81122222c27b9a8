package transfer

import (
	"context"
	"errors"
	"time"
)

// maxMutateAttempts bounds reload-and-reapply cycles under contention.
const maxMutateAttempts = 5

// MutateFunc changes t in place and reports whether anything changed.
// It is re-run against a fresh copy after every version conflict, so it must
// make its decisions from t alone.
type MutateFunc func(t *Transaction) (changed bool, err error)

// Mutate runs a read-modify-write against the latest persisted state of one
// transfer. It returns the stored record and whether fn changed it.
func Mutate(ctx context.Context, repo Repository, transactionID string, fn MutateFunc) (*Transaction, bool, error) {
	for attempt := 0; attempt < maxMutateAttempts; attempt++ {
		t, err := repo.GetByID(ctx, transactionID)
		if err != nil {
			return nil, false, err
		}

		changed, err := fn(t)
		if err != nil {
			return t, false, err
		}
		if !changed {
			return t, false, nil
		}

		t.MarkUpdated(time.Now())
		err = repo.Update(ctx, t)
		if err == nil {
			return t, true, nil
		}
		if !errors.Is(err, ErrConcurrentModification{}) {
			return nil, false, err
		}
		if err := ctx.Err(); err != nil {
			return nil, false, err
		}
	}
	return nil, false, ErrConcurrentModification{TransactionID: transactionID}
}
