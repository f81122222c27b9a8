// Package transfertest provides in-memory doubles for transfer storage,
// status publishing and command dispatch.
package transfertest

import (
	"context"
	"sort"
	"sync"

	"github.com/remitbridge-transfer-orchestrator/internal/domain/transfer"
)

// MemoryRepository is a transfer.Repository with the same uniqueness and
// version rules as the Mongo store.
type MemoryRepository struct {
	mu    sync.Mutex
	byID  map[string]*transfer.Transaction
	byKey map[string]string

	// BeforeUpdate, when set, runs inside Update before the version check.
	// Tests use it to inject a competing write.
	BeforeUpdate func(t *transfer.Transaction)
	// FailUpdate, when set, is asked before every Update; a non-nil result
	// is returned and nothing is stored.
	FailUpdate func(t *transfer.Transaction) error
	Updates    int
}

var _ transfer.Repository = (*MemoryRepository)(nil)

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:  make(map[string]*transfer.Transaction),
		byKey: make(map[string]string),
	}
}

func (r *MemoryRepository) Create(_ context.Context, t *transfer.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byKey[t.IdempotencyKey]; ok {
		return transfer.DuplicateError{IdempotencyKey: t.IdempotencyKey, TransactionID: existing}
	}
	r.byID[t.TransactionID] = t.Clone()
	r.byKey[t.IdempotencyKey] = t.TransactionID
	return nil
}

func (r *MemoryRepository) GetByID(_ context.Context, id string) (*transfer.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.byID[id]
	if !ok {
		return nil, transfer.NotFoundError{Key: "transaction_id", Value: id}
	}
	return t.Clone(), nil
}

func (r *MemoryRepository) GetByIdempotencyKey(_ context.Context, key string) (*transfer.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byKey[key]
	if !ok {
		return nil, transfer.NotFoundError{Key: "idempotency_key", Value: key}
	}
	return r.byID[id].Clone(), nil
}

func (r *MemoryRepository) GetByPayoutReference(_ context.Context, ref string) (*transfer.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range r.byID {
		if ref != "" && t.Steps.Payout.ProviderRef == ref {
			return t.Clone(), nil
		}
	}
	return nil, transfer.NotFoundError{Key: "payout_reference", Value: ref}
}

func (r *MemoryRepository) Update(_ context.Context, t *transfer.Transaction) error {
	if r.BeforeUpdate != nil {
		hook := r.BeforeUpdate
		r.BeforeUpdate = nil
		hook(t)
	}
	if r.FailUpdate != nil {
		if err := r.FailUpdate(t); err != nil {
			return err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.byID[t.TransactionID]
	if !ok {
		return transfer.NotFoundError{Key: "transaction_id", Value: t.TransactionID}
	}
	if stored.Version != t.Version-1 {
		return transfer.ErrConcurrentModification{TransactionID: t.TransactionID}
	}
	r.byID[t.TransactionID] = t.Clone()
	r.Updates++
	return nil
}

func (r *MemoryRepository) ListByStatus(_ context.Context, status transfer.Status, limit, offset int) ([]*transfer.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*transfer.Transaction
	for _, t := range r.byID {
		if t.Status == status {
			out = append(out, t.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

// Put stores t directly, bypassing idempotency checks.
func (r *MemoryRepository) Put(t *transfer.Transaction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[t.TransactionID] = t.Clone()
	r.byKey[t.IdempotencyKey] = t.TransactionID
}

// Count returns the number of stored transfers.
func (r *MemoryRepository) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}
