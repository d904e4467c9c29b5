package transaction

import "context"

// Store is the append-only transaction log.
type Store interface {
	AppendTransaction(ctx context.Context, r *Record) error
	ListTransactions(ctx context.Context, userID int64, opts ListOpts) ([]*Record, error)
}
