package mongo

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/remitbridge-transfer-orchestrator/internal/domain/transfer"
	"github.com/remitbridge-transfer-orchestrator/internal/domain/transfer/transfertest"
	"github.com/remitbridge-transfer-orchestrator/internal/platform/persistence"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// toDoc encodes t the way the repository stores it so it can be served back
// from a mocked cursor.
func toDoc(t *testing.T, tx *transfer.Transaction) bson.D {
	t.Helper()
	raw, err := bson.MarshalWithRegistry(persistence.NewRegistry(), tx)
	require.NoError(t, err)
	var doc bson.D
	require.NoError(t, bson.Unmarshal(raw, &doc))
	return doc
}

func TestTransferRepository(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()

	newRepo := func(mt *mtest.T) *TransferRepository {
		return NewTransferRepository(newTestLogger(), mt.DB, "transfers")
	}
	ns := func(mt *mtest.T) string { return mt.DB.Name() + ".transfers" }

	mt.Run("ensure indexes", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())
		assert.NoError(mt, newRepo(mt).EnsureIndexes(ctx))
	})

	mt.Run("create", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())
		tx := transfertest.NewTransaction("100.00")
		assert.NoError(mt, newRepo(mt).Create(ctx, tx))
	})

	mt.Run("create duplicate idempotency key names the owner", func(mt *mtest.T) {
		owner := transfertest.NewTransaction("100.00")
		again := transfertest.NewTransaction("100.00")
		again.IdempotencyKey = owner.IdempotencyKey

		mt.AddMockResponses(
			mtest.CreateWriteErrorsResponse(mtest.WriteError{Index: 0, Code: 11000, Message: "E11000 duplicate key error"}),
			mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch, toDoc(t, owner)),
		)

		err := newRepo(mt).Create(ctx, again)
		require.ErrorIs(mt, err, transfer.DuplicateError{})
		dup := err.(transfer.DuplicateError)
		assert.Equal(mt, owner.TransactionID, dup.TransactionID)
		assert.Equal(mt, owner.IdempotencyKey, dup.IdempotencyKey)
	})

	mt.Run("get by id round trips decimals and the rate hash", func(mt *mtest.T) {
		tx := transfertest.AwaitingPayout("250.00", "AG_20240301_000001")
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch, toDoc(t, tx)))

		got, err := newRepo(mt).GetByID(ctx, tx.TransactionID)
		require.NoError(mt, err)
		assert.Equal(mt, tx.TransactionID, got.TransactionID)
		assert.Equal(mt, transfer.StatusPayoutProcessing, got.Status)
		assert.True(mt, tx.Amounts.Local.Equal(got.Amounts.Local))
		assert.True(mt, tx.Fees.TotalFee.Equal(got.Fees.TotalFee))
		assert.True(mt, got.FXRate.Verify(), "rate hash must survive storage")
		assert.Equal(mt, "AG_20240301_000001", got.Steps.Payout.ProviderRef)
	})

	mt.Run("get by id not found", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch))

		_, err := newRepo(mt).GetByID(ctx, "tx_missing")
		assert.ErrorIs(mt, err, transfer.NotFoundError{Key: "transaction_id", Value: "tx_missing"})
	})

	mt.Run("get by payout reference", func(mt *mtest.T) {
		tx := transfertest.AwaitingPayout("40.00", "AG_REF")
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch, toDoc(t, tx)))

		got, err := newRepo(mt).GetByPayoutReference(ctx, "AG_REF")
		require.NoError(mt, err)
		assert.Equal(mt, tx.TransactionID, got.TransactionID)
	})

	mt.Run("empty payout reference never matches", func(mt *mtest.T) {
		_, err := newRepo(mt).GetByPayoutReference(ctx, "")
		assert.ErrorIs(mt, err, transfer.NotFoundError{})
	})

	mt.Run("empty idempotency key is rejected", func(mt *mtest.T) {
		_, err := newRepo(mt).GetByIdempotencyKey(ctx, "")
		assert.ErrorIs(mt, err, transfer.ValidationError{})
	})

	mt.Run("update", func(mt *mtest.T) {
		tx := transfertest.NewTransaction("100.00")
		tx.MarkUpdated(tx.CreatedAt)
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
			bson.E{Key: "nModified", Value: 1},
		))

		assert.NoError(mt, newRepo(mt).Update(ctx, tx))
	})

	mt.Run("update with stale version", func(mt *mtest.T) {
		tx := transfertest.NewTransaction("100.00")
		tx.MarkUpdated(tx.CreatedAt)
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}),
			mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch, bson.D{{Key: "n", Value: int32(1)}}),
		)

		err := newRepo(mt).Update(ctx, tx)
		assert.ErrorIs(mt, err, transfer.ErrConcurrentModification{TransactionID: tx.TransactionID})
	})

	mt.Run("update missing transfer", func(mt *mtest.T) {
		tx := transfertest.NewTransaction("100.00")
		tx.MarkUpdated(tx.CreatedAt)
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}),
			mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch),
		)

		err := newRepo(mt).Update(ctx, tx)
		assert.ErrorIs(mt, err, transfer.NotFoundError{})
	})

	mt.Run("list by status", func(mt *mtest.T) {
		a := transfertest.NewTransaction("10.00")
		b := transfertest.NewTransaction("20.00")
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch, toDoc(t, a), toDoc(t, b)))

		got, err := newRepo(mt).ListByStatus(ctx, transfer.StatusPending, 10, 0)
		require.NoError(mt, err)
		require.Len(mt, got, 2)
		assert.Equal(mt, a.TransactionID, got[0].TransactionID)
		assert.True(mt, b.Amounts.USD.Equal(got[1].Amounts.USD))
	})

	mt.Run("server error", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{Code: 2, Message: "bad query"}))

		_, err := newRepo(mt).GetByID(ctx, "tx_1")
		require.Error(mt, err)
		assert.NotErrorIs(mt, err, transfer.NotFoundError{})
	})
}
