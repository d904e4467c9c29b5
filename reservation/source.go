// Package reservation aggregates money that in-flight bids withhold from a
// user's balance. Reservations are never persisted by the bank; each
// registered Source reports its current amount on demand.
package reservation

import (
	"context"
	"errors"
	"fmt"
)

// Source reports how much of a user's money it currently reserves.
// Reserved must return a non-negative amount.
type Source interface {
	Name() string
	Reserved(ctx context.Context, userID int64) (int64, error)
}

// SourceFunc adapts a plain function into a Source.
func SourceFunc(name string, fn func(ctx context.Context, userID int64) (int64, error)) Source {
	return &funcSource{name: name, fn: fn}
}

type funcSource struct {
	name string
	fn   func(ctx context.Context, userID int64) (int64, error)
}

func (s *funcSource) Name() string { return s.name }

func (s *funcSource) Reserved(ctx context.Context, userID int64) (int64, error) {
	return s.fn(ctx, userID)
}

// Fixed returns a Source that reserves amount for every user. Useful for
// tests and for holding a flat platform fee.
func Fixed(name string, amount int64) Source {
	return SourceFunc(name, func(context.Context, int64) (int64, error) {
		return amount, nil
	})
}

// ErrNegativeReservation is wrapped by SourceError when a source reports a
// negative amount.
var ErrNegativeReservation = errors.New("reservation: negative reserved amount")

// SourceError reports a failed or invalid reservation source during
// aggregation.
type SourceError struct {
	Source string
	UserID int64
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("reservation: source %q for user %d: %v", e.Source, e.UserID, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }
