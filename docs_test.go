package bidbank_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/xraph/bidbank"
	"github.com/xraph/bidbank/reservation"
	"github.com/xraph/bidbank/store/memory"
	"github.com/xraph/bidbank/transaction"
)

// TestDocumentationExamples verifies that the package documentation examples work.
func TestDocumentationExamples(t *testing.T) {
	t.Run("QuickStartExample", func(t *testing.T) {
		// Memory store for demo, use a factory-selected backend in production.
		store := memory.New()

		b := bidbank.New(store, bidbank.WithLogger(slog.Default()))

		ctx := context.Background()
		if err := b.Start(ctx); err != nil {
			t.Fatal(err)
		}
		defer b.Stop()

		if _, err := b.OpenAccount(ctx, 42); err != nil {
			t.Fatal(err)
		}

		if _, err := b.MakeTransaction(ctx, 42, 1000, nil); err != nil {
			t.Fatal(err)
		}

		rec, err := b.MakeTransaction(ctx, 42, -250, transaction.Fields{
			"auction_id": "a-981",
		})
		if err != nil {
			t.Fatal(err)
		}
		if rec.OldBalance != 1000 || rec.NewBalance != 750 {
			t.Fatalf("unexpected balances %d -> %d", rec.OldBalance, rec.NewBalance)
		}
	})

	t.Run("ReservationExample", func(t *testing.T) {
		store := memory.New()
		store.Seed(map[int64]int64{42: 750})
		b := bidbank.New(store)

		openBidTotal := func(_ context.Context, userID int64) (int64, error) {
			return 300, nil
		}

		ctx := context.Background()
		reg := b.RegisterReservationSource(reservation.SourceFunc("bids", openBidTotal))

		available, err := b.GetAvailableMoney(ctx, 42)
		if err != nil {
			t.Fatal(err)
		}
		if available != 450 {
			t.Fatalf("available = %d, want 450", available)
		}

		b.DeregisterReservationSource(reg)

		available, err = b.GetAvailableMoney(ctx, 42)
		if err != nil {
			t.Fatal(err)
		}
		if available != 750 {
			t.Fatalf("available = %d, want 750", available)
		}
	})

	t.Run("BatchExample", func(t *testing.T) {
		store := memory.New()
		store.Seed(map[int64]int64{1: 0, 3: 0})
		b := bidbank.New(store)

		recs, err := b.MakeTransactions(context.Background(), []transaction.Request{
			{UserID: 1, Change: 10},
			{UserID: 2, Change: 10}, // no account
			{UserID: 3, Change: 10},
		})
		if len(recs) != 1 {
			t.Fatalf("completed = %d, want 1", len(recs))
		}
		if !bidbank.IsNotFound(err) {
			t.Fatalf("unexpected error %v", err)
		}
	})
}
