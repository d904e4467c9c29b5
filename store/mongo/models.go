package mongo

import (
	"time"

	"github.com/xraph/grove"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/xraph/bidbank/account"
	"github.com/xraph/bidbank/id"
	"github.com/xraph/bidbank/transaction"
)

// ==================== Account models ====================

type accountModel struct {
	grove.BaseModel `grove:"table:bidbank_accounts"`

	UserID    int64     `grove:"user_id,pk"  bson:"_id"`
	Balance   int64     `grove:"balance"     bson:"balance"`
	CreatedAt time.Time `grove:"created_at"  bson:"created_at"`
	UpdatedAt time.Time `grove:"updated_at"  bson:"updated_at"`
}

func toAccountModel(a *account.Account) *accountModel {
	return &accountModel{
		UserID:    a.UserID,
		Balance:   a.Balance,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

// ==================== Transaction models ====================

type transactionModel struct {
	grove.BaseModel `grove:"table:bidbank_transactions"`

	ID         string         `grove:"id,pk"         bson:"_id"`
	UserID     int64          `grove:"user_id"       bson:"user_id"`
	Change     int64          `grove:"change_amount" bson:"change_amount"`
	RecordedAt time.Time      `grove:"recorded_at"   bson:"recorded_at"`
	OldBalance int64          `grove:"old_balance"   bson:"old_balance"`
	NewBalance int64          `grove:"new_balance"   bson:"new_balance"`
	Extra      map[string]any `grove:"extra"         bson:"extra,omitempty"`
}

func toTransactionModel(r *transaction.Record) *transactionModel {
	return &transactionModel{
		ID:         r.ID.String(),
		UserID:     r.UserID,
		Change:     r.Change,
		RecordedAt: r.Timestamp,
		OldBalance: r.OldBalance,
		NewBalance: r.NewBalance,
		Extra:      r.Extra.Clone(),
	}
}

func fromTransactionModel(m *transactionModel) (*transaction.Record, error) {
	txnID, err := id.ParseTransactionID(m.ID)
	if err != nil {
		return nil, err
	}
	var extra transaction.Fields
	if len(m.Extra) > 0 {
		extra = make(transaction.Fields, len(m.Extra))
		for k, v := range m.Extra {
			extra[k] = plainValue(v)
		}
	}
	return &transaction.Record{
		ID:         txnID,
		UserID:     m.UserID,
		Change:     m.Change,
		Timestamp:  m.RecordedAt.UTC(),
		OldBalance: m.OldBalance,
		NewBalance: m.NewBalance,
		Extra:      extra,
	}, nil
}

// plainValue maps decoded BSON onto the types transaction.Fields.Normalize
// produces, so listed records match the ones the bank returned.
func plainValue(v any) any {
	switch t := v.(type) {
	case int32:
		return int64(t)
	case bson.D:
		out := make(map[string]any, len(t))
		for _, e := range t {
			out[e.Key] = plainValue(e.Value)
		}
		return out
	case bson.M:
		out := make(map[string]any, len(t))
		for k, inner := range t {
			out[k] = plainValue(inner)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, inner := range t {
			out[k] = plainValue(inner)
		}
		return out
	case bson.A:
		out := make([]any, len(t))
		for i, inner := range t {
			out[i] = plainValue(inner)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, inner := range t {
			out[i] = plainValue(inner)
		}
		return out
	default:
		return v
	}
}
