package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/bidbank"
	"github.com/xraph/bidbank/account"
	bidbankstore "github.com/xraph/bidbank/store"
	"github.com/xraph/bidbank/transaction"
)

// Collection name constants.
const (
	colAccounts     = "bidbank_accounts"
	colTransactions = "bidbank_transactions"
)

// compile-time interface check
var _ bidbankstore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all bidbank collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("bidbank/mongo: migrate %s indexes: %w", col, err)
		}
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
	_, err := s.mdb.NewInsert(toAccountModel(a)).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return bidbank.ErrAccountExists
		}
		return fmt.Errorf("bidbank/mongo: create account %d: %w", a.UserID, err)
	}
	return nil
}

func (s *Store) GetStoredBalance(ctx context.Context, userID int64) (int64, error) {
	var m accountModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": userID}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return 0, bidbank.ErrAccountNotFound
		}
		return 0, fmt.Errorf("bidbank/mongo: get balance %d: %w", userID, err)
	}
	return m.Balance, nil
}

// AdjustStoredBalance uses $inc with FindOneAndUpdate so the returned
// document is the one this delta produced.
func (s *Store) AdjustStoredBalance(ctx context.Context, userID, delta int64) (int64, error) {
	var m accountModel
	err := s.mdb.Collection(colAccounts).FindOneAndUpdate(ctx,
		bson.M{"_id": userID},
		bson.M{
			"$inc": bson.M{"balance": delta},
			"$set": bson.M{"updated_at": now()},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return 0, bidbank.ErrAccountNotFound
		}
		return 0, fmt.Errorf("bidbank/mongo: adjust balance %d: %w", userID, err)
	}
	return m.Balance, nil
}

// ==================== Transaction Store ====================

func (s *Store) AppendTransaction(ctx context.Context, r *transaction.Record) error {
	if _, err := s.mdb.NewInsert(toTransactionModel(r)).Exec(ctx); err != nil {
		return fmt.Errorf("bidbank/mongo: append %s: %w", r.ID, err)
	}
	return nil
}

func (s *Store) ListTransactions(ctx context.Context, userID int64, opts transaction.ListOpts) ([]*transaction.Record, error) {
	var models []transactionModel

	q := s.mdb.NewFind(&models).
		Filter(bson.M{"user_id": userID}).
		Sort(bson.D{{Key: "recorded_at", Value: -1}, {Key: "_id", Value: -1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("bidbank/mongo: list transactions %d: %w", userID, err)
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

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all bidbank collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colTransactions: {
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "recorded_at", Value: -1}}},
		},
	}
}
