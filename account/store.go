package account

import "context"

// Store owns the authoritative stored balance of every account.
//
// AdjustStoredBalance applies delta and returns the resulting balance in one
// atomic step; implementations must not read and write separately.
type Store interface {
	CreateAccount(ctx context.Context, a *Account) error
	GetStoredBalance(ctx context.Context, userID int64) (int64, error)
	AdjustStoredBalance(ctx context.Context, userID int64, delta int64) (int64, error)
}
