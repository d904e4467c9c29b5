package bidbank_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/bidbank"
	"github.com/xraph/bidbank/lock"
	"github.com/xraph/bidbank/reservation"
	"github.com/xraph/bidbank/store/memory"
	"github.com/xraph/bidbank/transaction"
)

var errBackend = errors.New("backend unavailable")

// faultyStore injects failures per user on top of the memory store.
type faultyStore struct {
	*memory.Store

	failRead   map[int64]bool
	failAdjust map[int64]bool
	failAppend map[int64]bool
	drift      int64
}

func newFaultyStore() *faultyStore {
	return &faultyStore{
		Store:      memory.New(),
		failRead:   map[int64]bool{},
		failAdjust: map[int64]bool{},
		failAppend: map[int64]bool{},
	}
}

func (s *faultyStore) GetStoredBalance(ctx context.Context, userID int64) (int64, error) {
	if s.failRead[userID] {
		return 0, errBackend
	}
	return s.Store.GetStoredBalance(ctx, userID)
}

func (s *faultyStore) AdjustStoredBalance(ctx context.Context, userID, delta int64) (int64, error) {
	if s.failAdjust[userID] {
		return 0, errBackend
	}
	if s.drift != 0 {
		if _, err := s.Store.AdjustStoredBalance(ctx, userID, s.drift); err != nil {
			return 0, err
		}
	}
	return s.Store.AdjustStoredBalance(ctx, userID, delta)
}

func (s *faultyStore) AppendTransaction(ctx context.Context, r *transaction.Record) error {
	if s.failAppend[r.UserID] {
		return errBackend
	}
	return s.Store.AppendTransaction(ctx, r)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newBank(t *testing.T, balances map[int64]int64, opts ...bidbank.Option) (*bidbank.Bank, *faultyStore) {
	t.Helper()
	s := newFaultyStore()
	s.Seed(balances)
	opts = append([]bidbank.Option{bidbank.WithLogger(quietLogger())}, opts...)
	b := bidbank.New(s, opts...)
	require.NoError(t, b.Start(context.Background()))
	return b, s
}

// ──────────────────────────────────────────────────
// Balance queries
// ──────────────────────────────────────────────────

func TestAvailableIsTotalMinusReserved(t *testing.T) {
	ctx := context.Background()
	b, _ := newBank(t, map[int64]int64{42: 100})

	b.RegisterReservationSource(reservation.Fixed("auction-1", 10))
	b.RegisterReservationSource(reservation.Fixed("auction-2", 5))

	total, err := b.GetTotalMoney(ctx, 42)
	require.NoError(t, err)
	reserved, err := b.GetReservedMoney(ctx, 42)
	require.NoError(t, err)
	available, err := b.GetAvailableMoney(ctx, 42)
	require.NoError(t, err)

	assert.Equal(t, int64(100), total)
	assert.Equal(t, int64(15), reserved)
	assert.Equal(t, int64(85), available)
	assert.Equal(t, total-reserved, available)

	bal, err := b.GetBalance(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, bidbank.Balance{UserID: 42, Total: 100, Reserved: 15, Available: 85}, bal)
}

func TestAvailableMayBeNegative(t *testing.T) {
	ctx := context.Background()
	b, _ := newBank(t, map[int64]int64{1: 10})
	b.RegisterReservationSource(reservation.Fixed("overlapping-bid", 25))

	available, err := b.GetAvailableMoney(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(-15), available)
}

func TestDeregisterRestoresReserved(t *testing.T) {
	ctx := context.Background()
	b, _ := newBank(t, map[int64]int64{1: 100})
	b.RegisterReservationSource(reservation.Fixed("base", 3))

	before, err := b.GetReservedMoney(ctx, 1)
	require.NoError(t, err)

	reg := b.RegisterReservationSource(reservation.Fixed("bid", 40))
	b.DeregisterReservationSource(reg)
	b.DeregisterReservationSource(reg) // no-op

	after, err := b.GetReservedMoney(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, []string{"base"}, b.ReservationSources())
}

func TestReservedSurfacesSourceFailure(t *testing.T) {
	ctx := context.Background()
	b, _ := newBank(t, map[int64]int64{1: 100})
	b.RegisterReservationSource(reservation.SourceFunc("broken", func(context.Context, int64) (int64, error) {
		return 0, errBackend
	}))

	_, err := b.GetAvailableMoney(ctx, 1)
	var se *bidbank.ReservationSourceError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "broken", se.Source)
}

func TestTotalMoneyErrors(t *testing.T) {
	ctx := context.Background()
	b, s := newBank(t, map[int64]int64{1: 100})
	s.failRead[1] = true

	_, err := b.GetTotalMoney(ctx, 1)
	var re *bidbank.BackendReadError
	require.True(t, errors.As(err, &re))
	assert.ErrorIs(t, err, errBackend)

	_, err = b.GetTotalMoney(ctx, 999)
	assert.True(t, bidbank.IsNotFound(err))
}

// ──────────────────────────────────────────────────
// Transactions
// ──────────────────────────────────────────────────

func TestMakeTransaction(t *testing.T) {
	ctx := context.Background()
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))
	b, s := newBank(t, map[int64]int64{7: 50}, bidbank.WithClock(func() time.Time { return fixed }))

	rec, err := b.MakeTransaction(ctx, 7, 20, transaction.Fields{"auction_id": "a-9"})
	require.NoError(t, err)

	assert.Equal(t, int64(7), rec.UserID)
	assert.Equal(t, int64(20), rec.Change)
	assert.Equal(t, int64(50), rec.OldBalance)
	assert.Equal(t, int64(70), rec.NewBalance)
	assert.Equal(t, time.UTC, rec.Timestamp.Location())
	assert.True(t, rec.Timestamp.Equal(fixed))
	assert.Equal(t, "a-9", rec.Extra["auction_id"])
	assert.False(t, rec.ID.IsNil())

	total, err := b.GetTotalMoney(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(70), total)

	stored, err := b.Transactions(ctx, 7, transaction.ListOpts{})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, *rec, *stored[0])
	assert.Equal(t, 1, s.TransactionCount())
}

func TestMakeTransactionRejectsKeyCollision(t *testing.T) {
	ctx := context.Background()
	b, s := newBank(t, map[int64]int64{7: 50})

	for _, key := range []string{"change", "user", "timestamp", "old_balance", "new_balance", "new _balance"} {
		t.Run(key, func(t *testing.T) {
			_, err := b.MakeTransaction(ctx, 7, 5, transaction.Fields{key: 99})
			var kce *bidbank.RecordKeyCollisionError
			require.True(t, errors.As(err, &kce), "got %v", err)
			assert.Equal(t, key, kce.Key)
		})
	}

	total, err := b.GetTotalMoney(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(50), total, "rejected transactions must not touch the balance")
	assert.Zero(t, s.TransactionCount())
}

func TestMakeTransactionReadFailure(t *testing.T) {
	ctx := context.Background()
	b, s := newBank(t, map[int64]int64{1: 10})
	s.failRead[1] = true

	_, err := b.MakeTransaction(ctx, 1, 5, nil)
	var re *bidbank.BackendReadError
	require.True(t, errors.As(err, &re))
	assert.Zero(t, s.TransactionCount())
}

func TestMakeTransactionWriteFailureLeavesAccountUnchanged(t *testing.T) {
	ctx := context.Background()
	b, s := newBank(t, map[int64]int64{1: 10})
	s.failAdjust[1] = true

	_, err := b.MakeTransaction(ctx, 1, 5, nil)
	var we *bidbank.BackendWriteError
	require.True(t, errors.As(err, &we))
	assert.False(t, bidbank.IsPartial(err))

	s.failAdjust[1] = false
	total, err := b.GetTotalMoney(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(10), total)
	assert.Zero(t, s.TransactionCount())
}

func TestMakeTransactionPartial(t *testing.T) {
	ctx := context.Background()
	b, s := newBank(t, map[int64]int64{1: 10})
	s.failAppend[1] = true

	rec, err := b.MakeTransaction(ctx, 1, 5, nil)
	assert.Nil(t, rec)
	require.True(t, bidbank.IsPartial(err))
	assert.False(t, bidbank.IsRetryable(err))

	var pe *bidbank.PartialTransactionError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, int64(10), pe.Record.OldBalance)
	assert.Equal(t, int64(15), pe.Record.NewBalance)
	assert.ErrorIs(t, err, errBackend)

	total, err := b.GetTotalMoney(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(15), total, "adjustment stays durable")
	assert.Zero(t, s.TransactionCount())
}

func TestMakeTransactionRecordsBackendValues(t *testing.T) {
	ctx := context.Background()
	b, s := newBank(t, map[int64]int64{1: 100})
	s.drift = 3

	rec, err := b.MakeTransaction(ctx, 1, 10, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(100), rec.OldBalance)
	assert.Equal(t, int64(113), rec.NewBalance)
}

func TestMakeTransactionsStopsAtFirstFailure(t *testing.T) {
	ctx := context.Background()
	b, s := newBank(t, map[int64]int64{1: 10, 2: 20, 3: 30})
	s.failAdjust[2] = true

	recs, err := b.MakeTransactions(ctx, []transaction.Request{
		{UserID: 1, Change: 1},
		{UserID: 2, Change: 2},
		{UserID: 3, Change: 3},
	})

	require.Len(t, recs, 1)
	assert.Equal(t, int64(1), recs[0].UserID)

	var be *bidbank.BatchError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, 1, be.Index)
	assert.Equal(t, 1, be.Completed)
	assert.Equal(t, int64(2), be.Request.UserID)

	var we *bidbank.BackendWriteError
	assert.True(t, errors.As(err, &we))

	s.failAdjust[2] = false
	for userID, want := range map[int64]int64{1: 11, 2: 20, 3: 30} {
		got, err := b.GetTotalMoney(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, want, got, "user %d", userID)
	}
}

func TestMakeTransactionsBatchTagging(t *testing.T) {
	ctx := context.Background()
	b, _ := newBank(t, map[int64]int64{1: 10, 2: 20}, bidbank.WithBatchTagging())

	recs, err := b.MakeTransactions(ctx, []transaction.Request{
		{UserID: 1, Change: -1, Extra: transaction.Fields{"reason": "fee"}},
		{UserID: 2, Change: 4},
	})
	require.NoError(t, err)
	require.Len(t, recs, 2)

	batch := recs[0].Extra[bidbank.BatchIDField]
	assert.NotEmpty(t, batch)
	assert.Equal(t, batch, recs[1].Extra[bidbank.BatchIDField])
	assert.Equal(t, "fee", recs[0].Extra["reason"])
}

func TestMakeTransactionsBatchTaggingRejectsCallerBatchID(t *testing.T) {
	ctx := context.Background()
	b, s := newBank(t, map[int64]int64{1: 10, 2: 20}, bidbank.WithBatchTagging())

	recs, err := b.MakeTransactions(ctx, []transaction.Request{
		{UserID: 1, Change: -1},
		{UserID: 2, Change: 4, Extra: transaction.Fields{bidbank.BatchIDField: "mine"}},
	})
	assert.Empty(t, recs)
	require.ErrorIs(t, err, bidbank.ErrBatchIDField)

	var be *bidbank.BatchError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, 1, be.Index)
	assert.Zero(t, be.Completed)

	// Nothing ran, not even the valid first request.
	assert.Zero(t, s.TransactionCount())
	got, err := b.GetTotalMoney(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(10), got)
}

func TestMakeTransactionsWithoutTaggingKeepsCallerBatchID(t *testing.T) {
	b, _ := newBank(t, map[int64]int64{1: 10})

	recs, err := b.MakeTransactions(context.Background(), []transaction.Request{
		{UserID: 1, Change: 1, Extra: transaction.Fields{bidbank.BatchIDField: "mine"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "mine", recs[0].Extra[bidbank.BatchIDField])
}

func TestMakeTransactionNormalizesExtra(t *testing.T) {
	ctx := context.Background()
	b, _ := newBank(t, map[int64]int64{7: 50})

	rec, err := b.MakeTransaction(ctx, 7, 20, transaction.Fields{
		"auction_id": int64(9007199254740993),
		"round":      3,
		"price":      12.5,
	})
	require.NoError(t, err)
	assert.Equal(t, transaction.Fields{
		"auction_id": int64(9007199254740993),
		"round":      int64(3),
		"price":      12.5,
	}, rec.Extra)

	listed, err := b.Transactions(ctx, 7, transaction.ListOpts{})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, rec.Extra, listed[0].Extra)
}

func TestMakeTransactionRejectsUnencodableExtra(t *testing.T) {
	ctx := context.Background()
	b, s := newBank(t, map[int64]int64{7: 50})

	_, err := b.MakeTransaction(ctx, 7, 20, transaction.Fields{"callback": func() {}})
	require.Error(t, err)
	assert.False(t, bidbank.IsPartial(err))

	got, err := b.GetTotalMoney(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(50), got)
	assert.Zero(t, s.TransactionCount())
}

func TestMakeTransactionsCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b, _ := newBank(t, map[int64]int64{1: 10})

	recs, err := b.MakeTransactions(ctx, []transaction.Request{{UserID: 1, Change: 1}})
	assert.Empty(t, recs)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConcurrentTransactionsFormChain(t *testing.T) {
	ctx := context.Background()
	b, _ := newBank(t, map[int64]int64{1: 0})

	const n = 50
	recs := make([]int64, 0, n)
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	pairs := map[int64]int64{}
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec, err := b.MakeTransaction(ctx, 1, 1, nil)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			recs = append(recs, rec.OldBalance)
			pairs[rec.OldBalance] = rec.NewBalance
			mu.Unlock()
		}()
	}
	wg.Wait()

	sort.Slice(recs, func(i, j int) bool { return recs[i] < recs[j] })
	require.Len(t, recs, n)
	for i, old := range recs {
		assert.Equal(t, int64(i), old)
		assert.Equal(t, old+1, pairs[old])
	}

	total, err := b.GetTotalMoney(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(n), total)
}

func TestLockWaitHonoursContext(t *testing.T) {
	k := lock.NewKeyed()
	b, _ := newBank(t, map[int64]int64{1: 0}, bidbank.WithAccountLocker(k))

	release := make(chan struct{})
	held := make(chan struct{})
	go func() {
		_ = k.WithLock(context.Background(), "account:1", func(context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := b.MakeTransaction(ctx, 1, 1, nil)
	assert.ErrorIs(t, err, bidbank.ErrLockTimeout)
	assert.True(t, bidbank.IsRetryable(err))
}

func TestOpenAccount(t *testing.T) {
	ctx := context.Background()
	b, _ := newBank(t, nil)

	a, err := b.OpenAccount(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(5), a.UserID)

	_, err = b.OpenAccount(ctx, 5)
	assert.ErrorIs(t, err, bidbank.ErrAccountExists)

	total, err := b.GetTotalMoney(ctx, 5)
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestStopClosesStore(t *testing.T) {
	b, _ := newBank(t, map[int64]int64{1: 1})
	require.NoError(t, b.Stop())

	_, err := b.GetTotalMoney(context.Background(), 1)
	assert.ErrorIs(t, err, bidbank.ErrStoreClosed)
	assert.True(t, bidbank.IsRetryable(err))
	assert.ErrorIs(t, b.Ping(context.Background()), bidbank.ErrStoreClosed)
}
