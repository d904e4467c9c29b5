package bidbank

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Balance is a point-in-time view of one account.
type Balance struct {
	UserID    int64 `json:"user_id"`
	Total     int64 `json:"total"`
	Reserved  int64 `json:"reserved"`
	Available int64 `json:"available"`
}

// GetTotalMoney returns the user's stored balance.
func (b *Bank) GetTotalMoney(ctx context.Context, userID int64) (int64, error) {
	total, err := b.store.GetStoredBalance(ctx, userID)
	if err != nil {
		return 0, &BackendReadError{Op: "get stored balance", UserID: userID, Err: err}
	}
	return total, nil
}

// GetReservedMoney returns the sum reported by every registered
// reservation source for the user.
func (b *Bank) GetReservedMoney(ctx context.Context, userID int64) (int64, error) {
	return b.reservations.SumReserved(ctx, userID)
}

// GetAvailableMoney returns total minus reserved money. The result is not
// clamped and is negative when reservations exceed the stored balance.
func (b *Bank) GetAvailableMoney(ctx context.Context, userID int64) (int64, error) {
	total, err := b.GetTotalMoney(ctx, userID)
	if err != nil {
		return 0, err
	}
	reserved, err := b.GetReservedMoney(ctx, userID)
	if err != nil {
		return 0, err
	}
	return total - reserved, nil
}

// GetBalance reads stored and reserved money concurrently and returns all
// three figures from the same pair of reads.
func (b *Bank) GetBalance(ctx context.Context, userID int64) (Balance, error) {
	var total, reserved int64

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		total, err = b.GetTotalMoney(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		reserved, err = b.GetReservedMoney(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return Balance{}, err
	}

	return Balance{
		UserID:    userID,
		Total:     total,
		Reserved:  reserved,
		Available: total - reserved,
	}, nil
}
