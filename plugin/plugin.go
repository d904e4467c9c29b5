// Package plugin provides an extensible plugin system for bidbank.
// Plugins can hook into lifecycle and money-movement events.
package plugin

import (
	"context"

	"github.com/xraph/bidbank/transaction"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the bank starts. b is the *bidbank.Bank.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, b any) error
}

// OnShutdown is called when the bank stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Transaction hooks
// ──────────────────────────────────────────────────

// OnBalanceAdjusted is called after a stored balance changed.
type OnBalanceAdjusted interface {
	Plugin
	OnBalanceAdjusted(ctx context.Context, userID, change, oldBalance, newBalance int64) error
}

// OnTransactionRecorded is called after a record was appended to the log.
type OnTransactionRecorded interface {
	Plugin
	OnTransactionRecorded(ctx context.Context, r *transaction.Record) error
}

// OnTransactionFailed is called when MakeTransaction fails. partial is true
// when the balance was adjusted but the record could not be written.
type OnTransactionFailed interface {
	Plugin
	OnTransactionFailed(ctx context.Context, userID, change int64, partial bool, err error) error
}

// ──────────────────────────────────────────────────
// Reservation hooks
// ──────────────────────────────────────────────────

// OnReservationSourceRegistered is called after a source was registered.
type OnReservationSourceRegistered interface {
	Plugin
	OnReservationSourceRegistered(ctx context.Context, source, registrationID string) error
}

// OnReservationSourceDeregistered is called after a source was removed.
type OnReservationSourceDeregistered interface {
	Plugin
	OnReservationSourceDeregistered(ctx context.Context, source, registrationID string) error
}
