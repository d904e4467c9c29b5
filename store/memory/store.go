package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xraph/bidbank"
	"github.com/xraph/bidbank/account"
	bidbankstore "github.com/xraph/bidbank/store"
	"github.com/xraph/bidbank/transaction"
)

// compile-time interface check
var _ bidbankstore.Store = (*Store)(nil)

// Store is an in-memory store for tests and single-process development.
type Store struct {
	mu sync.RWMutex

	// Account storage
	accounts map[int64]*account.Account

	// Transaction log, append order
	transactions []*transaction.Record

	closed bool
}

func New() *Store {
	return &Store{
		accounts: make(map[int64]*account.Account),
	}
}

// Seed creates or overwrites accounts with the given balances.
func (s *Store) Seed(balances map[int64]int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	for userID, balance := range balances {
		s.accounts[userID] = &account.Account{
			UserID:    userID,
			Balance:   balance,
			CreatedAt: now,
			UpdatedAt: now,
		}
	}
}

// ==================== Account Store ====================

func (s *Store) CreateAccount(_ context.Context, a *account.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return bidbank.ErrStoreClosed
	}
	if _, exists := s.accounts[a.UserID]; exists {
		return bidbank.ErrAccountExists
	}
	cp := *a
	s.accounts[a.UserID] = &cp
	return nil
}

func (s *Store) GetStoredBalance(_ context.Context, userID int64) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, bidbank.ErrStoreClosed
	}
	a, ok := s.accounts[userID]
	if !ok {
		return 0, bidbank.ErrAccountNotFound
	}
	return a.Balance, nil
}

func (s *Store) AdjustStoredBalance(_ context.Context, userID int64, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, bidbank.ErrStoreClosed
	}
	a, ok := s.accounts[userID]
	if !ok {
		return 0, bidbank.ErrAccountNotFound
	}
	a.Balance += delta
	a.UpdatedAt = time.Now().UTC()
	return a.Balance, nil
}

// ==================== Transaction Store ====================

func (s *Store) AppendTransaction(_ context.Context, r *transaction.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return bidbank.ErrStoreClosed
	}
	cp := *r
	cp.Extra = r.Extra.Clone()
	s.transactions = append(s.transactions, &cp)
	return nil
}

func (s *Store) ListTransactions(_ context.Context, userID int64, opts transaction.ListOpts) ([]*transaction.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, bidbank.ErrStoreClosed
	}

	// Walk backwards so later appends win timestamp ties.
	result := make([]*transaction.Record, 0)
	for i := len(s.transactions) - 1; i >= 0; i-- {
		if r := s.transactions[i]; r.UserID == userID {
			cp := *r
			cp.Extra = r.Extra.Clone()
			result = append(result, &cp)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Timestamp.After(result[j].Timestamp)
	})

	// Non-positive limit and offset mean unset, as in the SQL stores.
	start := max(opts.Offset, 0)
	if start > len(result) {
		start = len(result)
	}
	end := len(result)
	if opts.Limit > 0 && start+opts.Limit < end {
		end = start + opts.Limit
	}

	return result[start:end], nil
}

// TransactionCount returns the total number of stored records.
func (s *Store) TransactionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.transactions)
}

// ==================== Core ====================

func (s *Store) Migrate(_ context.Context) error {
	return nil // No migration needed for memory store
}

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return bidbank.ErrStoreClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}
