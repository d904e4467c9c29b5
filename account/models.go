package account

import "time"

// Account is a user's stored balance. Balances are integer minor units.
type Account struct {
	UserID    int64     `json:"user_id"`
	Balance   int64     `json:"balance"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
