package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	_ "github.com/xraph/grove/drivers/pgdriver/pgmigrate"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/bidbank"
	"github.com/xraph/bidbank/account"
	bidbankstore "github.com/xraph/bidbank/store"
	"github.com/xraph/bidbank/transaction"
)

// compile-time interface check
var _ bidbankstore.Store = (*Store)(nil)

// Store implements store.Store using PostgreSQL via Grove ORM.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("bidbank/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("bidbank/postgres: migration failed: %w", err)
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
	_, err := s.pg.NewInsert(toAccountModel(a)).Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return bidbank.ErrAccountExists
		}
		return fmt.Errorf("bidbank/postgres: create account %d: %w", a.UserID, err)
	}
	return nil
}

func (s *Store) GetStoredBalance(ctx context.Context, userID int64) (int64, error) {
	var balance int64
	err := s.pg.NewRaw(`SELECT balance FROM bidbank_accounts WHERE user_id = $1`, userID).
		Scan(ctx, &balance)
	if err != nil {
		if isNoRows(err) {
			return 0, bidbank.ErrAccountNotFound
		}
		return 0, fmt.Errorf("bidbank/postgres: get balance %d: %w", userID, err)
	}
	return balance, nil
}

// AdjustStoredBalance applies delta in a single UPDATE so concurrent
// adjustments from other processes never lose an update.
func (s *Store) AdjustStoredBalance(ctx context.Context, userID, delta int64) (int64, error) {
	var balance int64
	err := s.pg.NewRaw(`
		UPDATE bidbank_accounts
		SET balance = balance + $1, updated_at = $2
		WHERE user_id = $3
		RETURNING balance
	`, delta, now(), userID).Scan(ctx, &balance)
	if err != nil {
		if isNoRows(err) {
			return 0, bidbank.ErrAccountNotFound
		}
		return 0, fmt.Errorf("bidbank/postgres: adjust balance %d: %w", userID, err)
	}
	return balance, nil
}

// ==================== Transaction Store ====================

func (s *Store) AppendTransaction(ctx context.Context, r *transaction.Record) error {
	m, err := toTransactionModel(r)
	if err != nil {
		return fmt.Errorf("bidbank/postgres: append %s: %w", r.ID, err)
	}
	if _, err := s.pg.NewInsert(m).Exec(ctx); err != nil {
		return fmt.Errorf("bidbank/postgres: append %s: %w", r.ID, err)
	}
	return nil
}

func (s *Store) ListTransactions(ctx context.Context, userID int64, opts transaction.ListOpts) ([]*transaction.Record, error) {
	var models []transactionModel
	q := s.pg.NewSelect(&models).
		Where("user_id = $1", userID).
		OrderExpr("recorded_at DESC, id DESC")
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("bidbank/postgres: list transactions %d: %w", userID, err)
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

// isNoRows checks for both the pgx and database/sql no-rows sentinels.
func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
