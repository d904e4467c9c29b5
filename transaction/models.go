package transaction

import (
	"time"

	"github.com/xraph/bidbank/id"
)

// Record is the immutable audit entry for one balance change.
type Record struct {
	ID         id.TransactionID `json:"id"`
	UserID     int64            `json:"user"`
	Change     int64            `json:"change"`
	Timestamp  time.Time        `json:"timestamp"`
	OldBalance int64            `json:"old_balance"`
	NewBalance int64            `json:"new_balance"`
	Extra      Fields           `json:"extra,omitempty"`
}

// Fields flattens the record into a single key/value map: the fixed keys
// plus every extra field. Extra fields never shadow fixed keys because
// Fields.Validate rejects them before a record is built.
func (r *Record) Fields() map[string]any {
	out := make(map[string]any, len(r.Extra)+6)
	for k, v := range r.Extra {
		out[k] = v
	}
	out[KeyID] = r.ID.String()
	out[KeyUser] = r.UserID
	out[KeyChange] = r.Change
	out[KeyTimestamp] = r.Timestamp
	out[KeyOldBalance] = r.OldBalance
	out[KeyNewBalance] = r.NewBalance
	return out
}

// Request is one entry of a MakeTransactions batch.
type Request struct {
	UserID int64  `json:"user"`
	Change int64  `json:"change"`
	Extra  Fields `json:"extra,omitempty"`
}

// ListOpts pages through a user's transaction history, newest first.
type ListOpts struct {
	Limit  int
	Offset int
}
