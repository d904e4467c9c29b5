package postgres

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/bidbank/account"
	"github.com/xraph/bidbank/id"
	"github.com/xraph/bidbank/transaction"
)

// ==================== Account models ====================

type accountModel struct {
	grove.BaseModel `grove:"table:bidbank_accounts"`

	UserID    int64     `grove:"user_id,pk"`
	Balance   int64     `grove:"balance"`
	CreatedAt time.Time `grove:"created_at"`
	UpdatedAt time.Time `grove:"updated_at"`
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

	ID         string          `grove:"id,pk"`
	UserID     int64           `grove:"user_id"`
	Change     int64           `grove:"change_amount"`
	RecordedAt time.Time       `grove:"recorded_at"`
	OldBalance int64           `grove:"old_balance"`
	NewBalance int64           `grove:"new_balance"`
	Extra      json.RawMessage `grove:"extra,type:jsonb"`
}

func toTransactionModel(r *transaction.Record) (*transactionModel, error) {
	extra := json.RawMessage("{}")
	if len(r.Extra) > 0 {
		b, err := json.Marshal(r.Extra)
		if err != nil {
			return nil, fmt.Errorf("encode extra: %w", err)
		}
		extra = b
	}
	return &transactionModel{
		ID:         r.ID.String(),
		UserID:     r.UserID,
		Change:     r.Change,
		RecordedAt: r.Timestamp,
		OldBalance: r.OldBalance,
		NewBalance: r.NewBalance,
		Extra:      extra,
	}, nil
}

func fromTransactionModel(m *transactionModel) (*transaction.Record, error) {
	txnID, err := id.ParseTransactionID(m.ID)
	if err != nil {
		return nil, err
	}
	extra, err := transaction.DecodeFields(m.Extra)
	if err != nil {
		return nil, fmt.Errorf("decode extra of %s: %w", m.ID, err)
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
