package transfer

import (
	"context"
)

// Repository persists transfers. Update is a compare-and-swap on Version:
// it succeeds only if the stored version is t.Version-1.
type Repository interface {
	Create(ctx context.Context, t *Transaction) error
	GetByID(ctx context.Context, transactionID string) (*Transaction, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*Transaction, error)
	GetByPayoutReference(ctx context.Context, ref string) (*Transaction, error)
	Update(ctx context.Context, t *Transaction) error
	ListByStatus(ctx context.Context, status Status, limit, offset int) ([]*Transaction, error)
}
