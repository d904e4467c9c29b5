package store

import (
	"context"

	"github.com/xraph/bidbank/account"
	"github.com/xraph/bidbank/transaction"
)

// Store is the storage backend contract the bank depends on: stored
// balances plus the append-only transaction log.
//
// Methods are declared explicitly rather than by embedding so that every
// backend's compile-time check lists the full surface.
type Store interface {
	// Account methods
	CreateAccount(ctx context.Context, a *account.Account) error
	GetStoredBalance(ctx context.Context, userID int64) (int64, error)
	AdjustStoredBalance(ctx context.Context, userID int64, delta int64) (int64, error)

	// Transaction log methods
	AppendTransaction(ctx context.Context, r *transaction.Record) error
	ListTransactions(ctx context.Context, userID int64, opts transaction.ListOpts) ([]*transaction.Record, error)

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Compile-time check that Store satisfies both sub-contracts.
var (
	_ account.Store     = Store(nil)
	_ transaction.Store = Store(nil)
)
