// Package storetest holds the behavioral tests every store.Store backend
// must pass. Backend packages call Run from their own tests.
package storetest

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/bidbank"
	"github.com/xraph/bidbank/account"
	"github.com/xraph/bidbank/id"
	"github.com/xraph/bidbank/store"
	"github.com/xraph/bidbank/transaction"
)

// Factory returns a fresh, migrated, empty store. Run closes it.
type Factory func(t *testing.T) store.Store

// Run executes the conformance tests against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"CreateAndGet", testCreateAndGet},
		{"CreateDuplicate", testCreateDuplicate},
		{"MissingAccount", testMissingAccount},
		{"Adjust", testAdjust},
		{"ConcurrentAdjust", testConcurrentAdjust},
		{"AppendAndList", testAppendAndList},
		{"ListPaging", testListPaging},
		{"ListNegativePaging", testListNegativePaging},
		{"ListedMatchesRecorded", testListedMatchesRecorded},
		{"Ping", testPing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			t.Cleanup(func() { _ = s.Close() })
			tt.fn(t, s)
		})
	}
}

// uniqueUser keeps shared databases (postgres, mongo) from colliding
// between runs.
func uniqueUser() int64 {
	return time.Now().UnixNano()
}

func openAccount(t *testing.T, s store.Store, userID, balance int64) {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, s.CreateAccount(context.Background(), &account.Account{
		UserID:    userID,
		Balance:   balance,
		CreatedAt: now,
		UpdatedAt: now,
	}))
}

func testCreateAndGet(t *testing.T, s store.Store) {
	user := uniqueUser()
	openAccount(t, s, user, 100)

	balance, err := s.GetStoredBalance(context.Background(), user)
	require.NoError(t, err)
	assert.Equal(t, int64(100), balance)
}

func testCreateDuplicate(t *testing.T, s store.Store) {
	user := uniqueUser()
	openAccount(t, s, user, 0)

	err := s.CreateAccount(context.Background(), &account.Account{UserID: user})
	assert.ErrorIs(t, err, bidbank.ErrAccountExists)
}

func testMissingAccount(t *testing.T, s store.Store) {
	ctx := context.Background()
	user := uniqueUser()

	_, err := s.GetStoredBalance(ctx, user)
	assert.ErrorIs(t, err, bidbank.ErrAccountNotFound)

	_, err = s.AdjustStoredBalance(ctx, user, 10)
	assert.ErrorIs(t, err, bidbank.ErrAccountNotFound)
}

func testAdjust(t *testing.T, s store.Store) {
	ctx := context.Background()
	user := uniqueUser()
	openAccount(t, s, user, 50)

	balance, err := s.AdjustStoredBalance(ctx, user, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(70), balance)

	balance, err = s.AdjustStoredBalance(ctx, user, -100)
	require.NoError(t, err)
	assert.Equal(t, int64(-30), balance)

	stored, err := s.GetStoredBalance(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, int64(-30), stored)
}

func testConcurrentAdjust(t *testing.T, s store.Store) {
	ctx := context.Background()
	user := uniqueUser()
	openAccount(t, s, user, 0)

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.AdjustStoredBalance(ctx, user, 5)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	balance, err := s.GetStoredBalance(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, int64(n*5), balance)
}

func record(user, change, oldBalance int64, ts time.Time, extra transaction.Fields) *transaction.Record {
	return &transaction.Record{
		ID:         id.NewTransactionID(),
		UserID:     user,
		Change:     change,
		Timestamp:  ts,
		OldBalance: oldBalance,
		NewBalance: oldBalance + change,
		Extra:      extra,
	}
}

func testAppendAndList(t *testing.T, s store.Store) {
	ctx := context.Background()
	user := uniqueUser()
	other := user + 1
	base := time.Now().UTC().Truncate(time.Millisecond)

	first := record(user, 20, 50, base, transaction.Fields{"auction_id": "a-1"})
	second := record(user, -5, 70, base.Add(time.Second), nil)
	require.NoError(t, s.AppendTransaction(ctx, first))
	require.NoError(t, s.AppendTransaction(ctx, second))
	require.NoError(t, s.AppendTransaction(ctx, record(other, 1, 0, base, nil)))

	got, err := s.ListTransactions(ctx, user, transaction.ListOpts{})
	require.NoError(t, err)
	require.Len(t, got, 2)

	// Newest first.
	assert.Equal(t, second.ID, got[0].ID)
	assert.Equal(t, first.ID, got[1].ID)

	assert.Equal(t, int64(20), got[1].Change)
	assert.Equal(t, int64(50), got[1].OldBalance)
	assert.Equal(t, int64(70), got[1].NewBalance)
	assert.Equal(t, "a-1", got[1].Extra["auction_id"])
	assert.WithinDuration(t, base, got[1].Timestamp, time.Millisecond)
	assert.Empty(t, got[0].Extra)
}

func testListPaging(t *testing.T, s store.Store) {
	ctx := context.Background()
	user := uniqueUser()
	base := time.Now().UTC().Truncate(time.Millisecond)

	for i := int64(0); i < 5; i++ {
		require.NoError(t, s.AppendTransaction(ctx, record(user, i+1, 0, base.Add(time.Duration(i)*time.Second), nil)))
	}

	page, err := s.ListTransactions(ctx, user, transaction.ListOpts{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, int64(4), page[0].Change)
	assert.Equal(t, int64(3), page[1].Change)
}

func testPing(t *testing.T, s store.Store) {
	assert.NoError(t, s.Ping(context.Background()))
}

func testListNegativePaging(t *testing.T, s store.Store) {
	ctx := context.Background()
	user := uniqueUser()
	base := time.Now().UTC().Truncate(time.Millisecond)

	for i := int64(0); i < 3; i++ {
		require.NoError(t, s.AppendTransaction(ctx, record(user, i+1, 0, base.Add(time.Duration(i)*time.Second), nil)))
	}

	for _, opts := range []transaction.ListOpts{
		{Limit: -1},
		{Offset: -1},
		{Limit: -5, Offset: -5},
	} {
		got, err := s.ListTransactions(ctx, user, opts)
		require.NoError(t, err, "opts %+v", opts)
		require.Len(t, got, 3, "opts %+v", opts)
		assert.Equal(t, int64(3), got[0].Change)
	}
}

func testListedMatchesRecorded(t *testing.T, s store.Store) {
	ctx := context.Background()
	user := uniqueUser()
	openAccount(t, s, user, 50)

	at := time.Now().UTC().Truncate(time.Millisecond)
	b := bidbank.New(s,
		bidbank.WithoutMigrate(),
		bidbank.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		bidbank.WithClock(func() time.Time { return at }),
	)

	rec, err := b.MakeTransaction(ctx, user, 20, transaction.Fields{
		"auction_id": int64(9007199254740993),
		"lot":        "a-7",
		"price":      12.5,
		"bid":        map[string]any{"round": 2, "tags": []any{"x", 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(9007199254740993), rec.Extra["auction_id"])

	got, err := b.Transactions(ctx, user, transaction.ListOpts{})
	require.NoError(t, err)
	require.Len(t, got, 1)

	assert.Equal(t, rec.ID, got[0].ID)
	assert.Equal(t, rec.UserID, got[0].UserID)
	assert.Equal(t, rec.Change, got[0].Change)
	assert.Equal(t, rec.OldBalance, got[0].OldBalance)
	assert.Equal(t, rec.NewBalance, got[0].NewBalance)
	assert.WithinDuration(t, rec.Timestamp, got[0].Timestamp, time.Millisecond)
	assert.Equal(t, rec.Extra, got[0].Extra)
}
