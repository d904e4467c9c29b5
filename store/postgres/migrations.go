package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the bidbank store.
var Migrations = migrate.NewGroup("bidbank")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_bidbank_accounts",
			Version: "20250101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS bidbank_accounts (
    user_id    BIGINT PRIMARY KEY,
    balance    BIGINT NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS bidbank_accounts`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_bidbank_transactions",
			Version: "20250101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS bidbank_transactions (
    id            TEXT PRIMARY KEY,
    user_id       BIGINT NOT NULL,
    change_amount BIGINT NOT NULL,
    recorded_at   TIMESTAMPTZ NOT NULL,
    old_balance   BIGINT NOT NULL,
    new_balance   BIGINT NOT NULL,
    extra         JSONB NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_bidbank_txn_user_time ON bidbank_transactions (user_id, recorded_at DESC);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS bidbank_transactions`)
				return err
			},
		},
	)
}
