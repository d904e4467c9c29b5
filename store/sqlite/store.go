package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	_ "github.com/xraph/grove/drivers/sqlitedriver/sqlitemigrate"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/bidbank"
	"github.com/xraph/bidbank/account"
	bidbankstore "github.com/xraph/bidbank/store"
	"github.com/xraph/bidbank/transaction"
)

// compile-time interface check
var _ bidbankstore.Store = (*Store)(nil)

// Store implements store.Store using SQLite via Grove ORM.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("bidbank/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("bidbank/sqlite: migration failed: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Account Store ====================

func (s *Store) CreateAccount(ctx context.Context, a *account.Account) error {
	_, err := s.sdb.NewInsert(toAccountModel(a)).Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return bidbank.ErrAccountExists
		}
		return fmt.Errorf("bidbank/sqlite: create account %d: %w", a.UserID, err)
	}
	return nil
}

func (s *Store) GetStoredBalance(ctx context.Context, userID int64) (int64, error) {
	var balance int64
	err := s.sdb.NewRaw(`SELECT balance FROM bidbank_accounts WHERE user_id = ?`, userID).
		Scan(ctx, &balance)
	if err != nil {
		if isNoRows(err) {
			return 0, bidbank.ErrAccountNotFound
		}
		return 0, fmt.Errorf("bidbank/sqlite: get balance %d: %w", userID, err)
	}
	return balance, nil
}

// AdjustStoredBalance applies delta in one statement; SQLite serializes
// writers, so the returned balance always reflects this delta.
func (s *Store) AdjustStoredBalance(ctx context.Context, userID, delta int64) (int64, error) {
	var balance int64
	err := s.sdb.NewRaw(`
		UPDATE bidbank_accounts
		SET balance = balance + ?, updated_at = ?
		WHERE user_id = ?
		RETURNING balance
	`, delta, now(), userID).Scan(ctx, &balance)
	if err != nil {
		if isNoRows(err) {
			return 0, bidbank.ErrAccountNotFound
		}
		return 0, fmt.Errorf("bidbank/sqlite: adjust balance %d: %w", userID, err)
	}
	return balance, nil
}

// ==================== Transaction Store ====================

func (s *Store) AppendTransaction(ctx context.Context, r *transaction.Record) error {
	m, err := toTransactionModel(r)
	if err != nil {
		return fmt.Errorf("bidbank/sqlite: append %s: %w", r.ID, err)
	}
	if _, err := s.sdb.NewInsert(m).Exec(ctx); err != nil {
		return fmt.Errorf("bidbank/sqlite: append %s: %w", r.ID, err)
	}
	return nil
}

func (s *Store) ListTransactions(ctx context.Context, userID int64, opts transaction.ListOpts) ([]*transaction.Record, error) {
	var models []transactionModel
	q := s.sdb.NewSelect(&models).
		Where("user_id = ?", userID).
		OrderExpr("recorded_at DESC, id DESC")
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("bidbank/sqlite: list transactions %d: %w", userID, err)
	}

	result := make([]*transaction.Record, len(models))
	for i := range models {
		r, err := fromTransactionModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = r
	}
	return result, nil
}

// ==================== Helpers ====================

func now() time.Time {
	return time.Now().UTC()
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
