package audithook

// Action constants for audit events.
const (
	// Transaction actions
	ActionTransactionRecorded = "transaction.recorded"
	ActionTransactionFailed   = "transaction.failed"
	ActionTransactionPartial  = "transaction.partial"

	// Balance actions
	ActionBalanceAdjusted = "balance.adjusted"

	// Reservation actions
	ActionReservationSourceRegistered   = "reservation_source.registered"
	ActionReservationSourceDeregistered = "reservation_source.deregistered"
)

// Resource constants for audit events.
const (
	ResourceTransaction       = "transaction"
	ResourceAccount           = "account"
	ResourceReservationSource = "reservation_source"
)

// Category constants for audit events.
const (
	CategoryLedger      = "ledger"
	CategoryReservation = "reservation"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePartial = "partial"
)
