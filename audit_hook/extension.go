// Package audithook bridges bank events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not import any
// particular audit system. Callers inject a RecorderFunc adapter at wiring
// time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/xraph/bidbank/plugin"
	"github.com/xraph/bidbank/transaction"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                          = (*Extension)(nil)
	_ plugin.OnBalanceAdjusted               = (*Extension)(nil)
	_ plugin.OnTransactionRecorded           = (*Extension)(nil)
	_ plugin.OnTransactionFailed             = (*Extension)(nil)
	_ plugin.OnReservationSourceRegistered   = (*Extension)(nil)
	_ plugin.OnReservationSourceDeregistered = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is one entry in the audit trail.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension records bank events through a Recorder.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through r.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Transaction hooks
// ──────────────────────────────────────────────────

// OnBalanceAdjusted implements plugin.OnBalanceAdjusted.
func (e *Extension) OnBalanceAdjusted(ctx context.Context, userID, change, oldBalance, newBalance int64) error {
	return e.record(ctx, ActionBalanceAdjusted, SeverityInfo, OutcomeSuccess,
		ResourceAccount, strconv.FormatInt(userID, 10), CategoryLedger, nil,
		"change", change,
		"old_balance", oldBalance,
		"new_balance", newBalance,
	)
}

// OnTransactionRecorded implements plugin.OnTransactionRecorded.
func (e *Extension) OnTransactionRecorded(ctx context.Context, r *transaction.Record) error {
	kv := []any{
		"user_id", r.UserID,
		"change", r.Change,
		"old_balance", r.OldBalance,
		"new_balance", r.NewBalance,
		"timestamp", r.Timestamp,
	}
	for k, v := range r.Extra {
		kv = append(kv, "extra."+k, v)
	}
	return e.record(ctx, ActionTransactionRecorded, SeverityInfo, OutcomeSuccess,
		ResourceTransaction, r.ID.String(), CategoryLedger, nil, kv...)
}

// OnTransactionFailed implements plugin.OnTransactionFailed. Partial
// transactions are audited as critical: money moved without a record.
func (e *Extension) OnTransactionFailed(ctx context.Context, userID, change int64, partial bool, err error) error {
	if partial {
		return e.record(ctx, ActionTransactionPartial, SeverityCritical, OutcomePartial,
			ResourceAccount, strconv.FormatInt(userID, 10), CategoryLedger, err,
			"change", change,
		)
	}
	return e.record(ctx, ActionTransactionFailed, SeverityError, OutcomeFailure,
		ResourceAccount, strconv.FormatInt(userID, 10), CategoryLedger, err,
		"change", change,
	)
}

// ──────────────────────────────────────────────────
// Reservation hooks
// ──────────────────────────────────────────────────

// OnReservationSourceRegistered implements plugin.OnReservationSourceRegistered.
func (e *Extension) OnReservationSourceRegistered(ctx context.Context, source, registrationID string) error {
	return e.record(ctx, ActionReservationSourceRegistered, SeverityInfo, OutcomeSuccess,
		ResourceReservationSource, registrationID, CategoryReservation, nil,
		"source", source,
	)
}

// OnReservationSourceDeregistered implements plugin.OnReservationSourceDeregistered.
func (e *Extension) OnReservationSourceDeregistered(ctx context.Context, source, registrationID string) error {
	return e.record(ctx, ActionReservationSourceDeregistered, SeverityInfo, OutcomeSuccess,
		ResourceReservationSource, registrationID, CategoryReservation, nil,
		"source", source,
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
// Recorder failures are logged, never returned to the bank.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = reason
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
