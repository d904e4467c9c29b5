package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/bidbank"
	"github.com/xraph/bidbank/store"
	"github.com/xraph/bidbank/store/memory"
	"github.com/xraph/bidbank/store/storetest"
	"github.com/xraph/bidbank/transaction"
)

func TestConformance(t *testing.T) {
	storetest.Run(t, func(*testing.T) store.Store { return memory.New() })
}

func TestSeedAndCount(t *testing.T) {
	s := memory.New()
	s.Seed(map[int64]int64{1: 10, 2: -3})

	b, err := s.GetStoredBalance(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, int64(-3), b)
	assert.Zero(t, s.TransactionCount())
}

func TestClosedStore(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	s.Seed(map[int64]int64{1: 10})
	require.NoError(t, s.Close())

	_, err := s.GetStoredBalance(ctx, 1)
	assert.ErrorIs(t, err, bidbank.ErrStoreClosed)
	_, err = s.AdjustStoredBalance(ctx, 1, 1)
	assert.ErrorIs(t, err, bidbank.ErrStoreClosed)
	assert.ErrorIs(t, s.AppendTransaction(ctx, &transaction.Record{}), bidbank.ErrStoreClosed)
	assert.ErrorIs(t, s.Ping(ctx), bidbank.ErrStoreClosed)
}

func TestAppendCopiesExtra(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	extra := transaction.Fields{"auction_id": "a-1"}
	require.NoError(t, s.AppendTransaction(ctx, &transaction.Record{UserID: 1, Extra: extra}))

	extra["auction_id"] = "mutated"

	got, err := s.ListTransactions(ctx, 1, transaction.ListOpts{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a-1", got[0].Extra["auction_id"])
}

func TestListCopiesExtra(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	require.NoError(t, s.AppendTransaction(ctx, &transaction.Record{UserID: 1, Extra: transaction.Fields{"auction_id": "a-1"}}))

	first, err := s.ListTransactions(ctx, 1, transaction.ListOpts{})
	require.NoError(t, err)
	first[0].Extra["auction_id"] = "mutated"
	first[0].Extra["added"] = true

	again, err := s.ListTransactions(ctx, 1, transaction.ListOpts{})
	require.NoError(t, err)
	assert.Equal(t, transaction.Fields{"auction_id": "a-1"}, again[0].Extra)
}
