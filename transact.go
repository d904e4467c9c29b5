package bidbank

import (
	"context"

	"github.com/xraph/bidbank/id"
	"github.com/xraph/bidbank/transaction"
)

// BatchIDField is the extra field WithBatchTagging adds to batch records.
const BatchIDField = "batch_id"

// MakeTransaction adjusts the user's stored balance by change and appends
// an audit record. extra is normalized (see transaction.Fields.Normalize)
// and copied into the record; keys that collide with fixed record keys, or
// values that cannot be encoded, are rejected before the account is touched.
//
// On success the returned record is exactly what was stored. A
// *PartialTransactionError means the adjustment is durable but the record
// was not written; it is not rolled back.
func (b *Bank) MakeTransaction(ctx context.Context, userID, change int64, extra transaction.Fields) (*transaction.Record, error) {
	if err := extra.Validate(); err != nil {
		b.plugins.EmitTransactionFailed(ctx, userID, change, false, err)
		return nil, err
	}
	extra, err := extra.Normalize()
	if err != nil {
		b.plugins.EmitTransactionFailed(ctx, userID, change, false, err)
		return nil, err
	}

	var rec *transaction.Record
	err = b.locker.WithLock(ctx, accountKey(userID), func(ctx context.Context) error {
		var txErr error
		rec, txErr = b.transact(ctx, userID, change, extra)
		return txErr
	})

	if rec != nil {
		b.plugins.EmitBalanceAdjusted(ctx, userID, change, rec.OldBalance, rec.NewBalance)
	}
	if err != nil {
		b.plugins.EmitTransactionFailed(ctx, userID, change, IsPartial(err), err)
		return nil, err
	}

	b.plugins.EmitTransactionRecorded(ctx, rec)
	return rec, nil
}

// transact runs under the account lock. It returns a non-nil record
// whenever the balance was adjusted, including the partial case.
func (b *Bank) transact(ctx context.Context, userID, change int64, extra transaction.Fields) (*transaction.Record, error) {
	oldBalance, err := b.store.GetStoredBalance(ctx, userID)
	if err != nil {
		return nil, &BackendReadError{Op: "get stored balance", UserID: userID, Err: err}
	}

	b.logger.Debug("adjusting balance",
		"user_id", userID,
		"change", change,
		"old_balance", oldBalance,
	)

	newBalance, err := b.store.AdjustStoredBalance(ctx, userID, change)
	if err != nil {
		return nil, &BackendWriteError{Op: "adjust stored balance", UserID: userID, Err: err}
	}

	if newBalance != oldBalance+change {
		b.logger.Warn("stored balance changed outside the bank during adjustment",
			"user_id", userID,
			"change", change,
			"old_balance", oldBalance,
			"new_balance", newBalance,
		)
	}

	rec := &transaction.Record{
		ID:         id.NewTransactionID(),
		UserID:     userID,
		Change:     change,
		Timestamp:  b.clock().UTC(),
		OldBalance: oldBalance,
		NewBalance: newBalance,
		Extra:      extra.Clone(),
	}

	b.logger.Debug("recording transaction",
		"transaction_id", rec.ID.String(),
		"user_id", rec.UserID,
		"change", rec.Change,
		"timestamp", rec.Timestamp,
		"old_balance", rec.OldBalance,
		"new_balance", rec.NewBalance,
		"extra", rec.Extra,
	)

	if err := b.store.AppendTransaction(ctx, rec); err != nil {
		b.logger.Log(ctx, LevelCritical, "balance adjusted but transaction not recorded",
			"transaction_id", rec.ID.String(),
			"user_id", rec.UserID,
			"change", rec.Change,
			"old_balance", rec.OldBalance,
			"new_balance", rec.NewBalance,
			"error", err,
		)
		return rec, &PartialTransactionError{Record: rec, Err: err}
	}

	return rec, nil
}

// MakeTransactions applies reqs in order, each as its own MakeTransaction.
// There is no atomicity across requests: the first failure stops the batch
// and the records committed before it are returned with a *BatchError.
// With batch tagging on, a request that already carries BatchIDField fails
// the whole batch with ErrBatchIDField before any request runs.
func (b *Bank) MakeTransactions(ctx context.Context, reqs []transaction.Request) ([]*transaction.Record, error) {
	batchID := id.NewBatchID()
	out := make([]*transaction.Record, 0, len(reqs))

	if b.batchTagging {
		for i, req := range reqs {
			if _, ok := req.Extra[BatchIDField]; ok {
				return nil, &BatchError{BatchID: batchID, Index: i, Request: req, Err: ErrBatchIDField}
			}
		}
	}

	for i, req := range reqs {
		if err := ctx.Err(); err != nil {
			return out, &BatchError{BatchID: batchID, Index: i, Request: req, Completed: len(out), Err: err}
		}

		extra := req.Extra
		if b.batchTagging {
			extra = extra.With(BatchIDField, batchID.String())
		}

		rec, err := b.MakeTransaction(ctx, req.UserID, req.Change, extra)
		if err != nil {
			b.logger.Debug("transaction batch stopped",
				"batch_id", batchID.String(),
				"index", i,
				"completed", len(out),
				"error", err,
			)
			return out, &BatchError{BatchID: batchID, Index: i, Request: req, Completed: len(out), Err: err}
		}
		out = append(out, rec)
	}

	b.logger.Debug("transaction batch completed",
		"batch_id", batchID.String(),
		"count", len(out),
	)
	return out, nil
}

// Transactions returns the user's recorded transactions, newest first.
func (b *Bank) Transactions(ctx context.Context, userID int64, opts transaction.ListOpts) ([]*transaction.Record, error) {
	recs, err := b.store.ListTransactions(ctx, userID, opts)
	if err != nil {
		return nil, &BackendReadError{Op: "list transactions", UserID: userID, Err: err}
	}
	return recs, nil
}
