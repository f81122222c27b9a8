package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/remitbridge-transfer-orchestrator/internal/domain/transfer"
	"github.com/remitbridge-transfer-orchestrator/internal/platform/persistence"
)

const (
	// TransfersCollectionName is used when no collection is configured
	TransfersCollectionName = "transfers"

	fieldTransactionID  = "transaction_id"
	fieldIdempotencyKey = "idempotency_key"
	fieldPayoutRef      = "steps.payout.provider_ref"
)

// TransferRepository implements transfer.Repository on MongoDB. Uniqueness of
// transaction_id and idempotency_key is enforced by indexes, see EnsureIndexes.
type TransferRepository struct {
	collection *mongo.Collection
	logger     *slog.Logger
}

// NewTransferRepository binds the repository to a collection that always
// encodes decimals as Decimal128, whatever registry the client was built with.
func NewTransferRepository(logger *slog.Logger, db *mongo.Database, collection string) *TransferRepository {
	if collection == "" {
		collection = TransfersCollectionName
	}
	opts := options.Collection().SetRegistry(persistence.NewRegistry())
	return &TransferRepository{
		collection: db.Collection(collection, opts),
		logger:     logger,
	}
}

var _ transfer.Repository = (*TransferRepository)(nil)

// EnsureIndexes creates the unique and lookup indexes the store relies on.
// It is idempotent and runs at startup.
func (r *TransferRepository) EnsureIndexes(ctx context.Context) error {
	models := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: fieldTransactionID, Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_transaction_id"),
		},
		{
			Keys:    bson.D{{Key: fieldIdempotencyKey, Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_idempotency_key"),
		},
		{
			Keys: bson.D{{Key: fieldPayoutRef, Value: 1}},
			Options: options.Index().
				SetName("payout_reference").
				SetPartialFilterExpression(bson.M{fieldPayoutRef: bson.M{"$type": "string"}}),
		},
		{
			Keys:    bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: 1}},
			Options: options.Index().SetName("status_created_at"),
		},
	}

	names, err := r.collection.Indexes().CreateMany(ctx, models)
	if err != nil {
		r.logger.Error("Failed to create transfer indexes", "error", err)
		return fmt.Errorf("failed to create transfer indexes: %w", err)
	}
	r.logger.Info("Transfer indexes ready", "indexes", names)
	return nil
}

// Create inserts a new transfer. A second insert with the same idempotency key
// returns DuplicateError naming the transfer that owns the key.
func (r *TransferRepository) Create(ctx context.Context, t *transfer.Transaction) error {
	_, err := r.collection.InsertOne(ctx, t)
	if err == nil {
		return nil
	}

	if mongo.IsDuplicateKeyError(err) {
		dup := transfer.DuplicateError{IdempotencyKey: t.IdempotencyKey}
		existing, lookupErr := r.GetByIdempotencyKey(ctx, t.IdempotencyKey)
		if lookupErr == nil {
			dup.TransactionID = existing.TransactionID
		}
		return dup
	}

	r.logger.Error("Failed to create transfer",
		"transaction_id", t.TransactionID,
		"error", err)
	return fmt.Errorf("failed to create transfer: %w", err)
}

// GetByID retrieves a transfer by its transaction id.
func (r *TransferRepository) GetByID(ctx context.Context, transactionID string) (*transfer.Transaction, error) {
	return r.findOne(ctx, fieldTransactionID, transactionID)
}

// GetByIdempotencyKey retrieves the transfer owning key.
func (r *TransferRepository) GetByIdempotencyKey(ctx context.Context, key string) (*transfer.Transaction, error) {
	if key == "" {
		return nil, transfer.ValidationError{Field: "idempotencyKey", Reason: "is required"}
	}
	return r.findOne(ctx, fieldIdempotencyKey, key)
}

// GetByPayoutReference resolves a payout provider's conversation reference
// back to its transfer.
func (r *TransferRepository) GetByPayoutReference(ctx context.Context, ref string) (*transfer.Transaction, error) {
	if ref == "" {
		return nil, transfer.NotFoundError{Key: "payout_reference", Value: ref}
	}
	return r.findOne(ctx, fieldPayoutRef, ref)
}

func (r *TransferRepository) findOne(ctx context.Context, field, value string) (*transfer.Transaction, error) {
	var t transfer.Transaction
	err := r.collection.FindOne(ctx, bson.M{field: value}).Decode(&t)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, transfer.NotFoundError{Key: lookupKey(field), Value: value}
		}
		r.logger.Error("Failed to get transfer",
			"field", field,
			"value", value,
			"error", err)
		return nil, fmt.Errorf("failed to get transfer: %w", err)
	}
	return &t, nil
}

// Update replaces the stored document if it is still at t.Version-1.
// The caller bumps Version before calling; see Transaction.MarkUpdated.
func (r *TransferRepository) Update(ctx context.Context, t *transfer.Transaction) error {
	filter := bson.M{
		fieldTransactionID: t.TransactionID,
		"version":          t.Version - 1,
	}

	result, err := r.collection.ReplaceOne(ctx, filter, t)
	if err != nil {
		r.logger.Error("Failed to update transfer",
			"transaction_id", t.TransactionID,
			"version", t.Version,
			"error", err)
		return fmt.Errorf("failed to update transfer: %w", err)
	}

	if result.MatchedCount == 0 {
		count, err := r.collection.CountDocuments(ctx, bson.M{fieldTransactionID: t.TransactionID})
		if err != nil {
			return fmt.Errorf("failed to check transfer existence: %w", err)
		}
		if count == 0 {
			return transfer.NotFoundError{Key: "transaction_id", Value: t.TransactionID}
		}
		return transfer.ErrConcurrentModification{TransactionID: t.TransactionID}
	}

	return nil
}

// ListByStatus pages through transfers in a status, oldest first.
func (r *TransferRepository) ListByStatus(ctx context.Context, status transfer.Status, limit, offset int) ([]*transfer.Transaction, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, bson.M{"status": status}, opts)
	if err != nil {
		r.logger.Error("Failed to list transfers",
			"status", string(status),
			"error", err)
		return nil, fmt.Errorf("failed to list transfers: %w", err)
	}
	defer cursor.Close(ctx)

	var transfers []*transfer.Transaction
	if err := cursor.All(ctx, &transfers); err != nil {
		r.logger.Error("Failed to decode transfers",
			"status", string(status),
			"error", err)
		return nil, fmt.Errorf("failed to decode transfers: %w", err)
	}

	return transfers, nil
}

func lookupKey(field string) string {
	if field == fieldPayoutRef {
		return "payout_reference"
	}
	return field
}
