// Package observability provides a metrics plugin for bidbank that counts
// money movement and reservation churn through a MetricFactory.
package observability

import (
	"context"
	"math"

	"github.com/xraph/bidbank/plugin"
	"github.com/xraph/bidbank/transaction"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                          = (*MetricsExtension)(nil)
	_ plugin.OnInit                          = (*MetricsExtension)(nil)
	_ plugin.OnBalanceAdjusted               = (*MetricsExtension)(nil)
	_ plugin.OnTransactionRecorded           = (*MetricsExtension)(nil)
	_ plugin.OnTransactionFailed             = (*MetricsExtension)(nil)
	_ plugin.OnReservationSourceRegistered   = (*MetricsExtension)(nil)
	_ plugin.OnReservationSourceDeregistered = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records bank metrics.
// Register it as a plugin with bidbank.WithPlugin.
type MetricsExtension struct {
	factory MetricFactory

	// Transaction metrics
	TransactionsRecorded Counter
	TransactionsFailed   Counter
	TransactionsPartial  Counter
	Credits              Counter
	Debits               Counter
	ChangeAmount         Histogram

	// Balance metrics
	BalanceAdjusted Counter
	NegativeBalance Counter

	// Reservation metrics
	SourcesRegistered   Counter
	SourcesDeregistered Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		TransactionsRecorded: factory.Counter("bidbank.transaction.recorded"),
		TransactionsFailed:   factory.Counter("bidbank.transaction.failed"),
		TransactionsPartial:  factory.Counter("bidbank.transaction.partial"),
		Credits:              factory.Counter("bidbank.transaction.credit_amount"),
		Debits:               factory.Counter("bidbank.transaction.debit_amount"),
		ChangeAmount:         factory.Histogram("bidbank.transaction.change_abs"),

		BalanceAdjusted: factory.Counter("bidbank.balance.adjusted"),
		NegativeBalance: factory.Counter("bidbank.balance.negative"),

		SourcesRegistered:   factory.Counter("bidbank.reservation.source.registered"),
		SourcesDeregistered: factory.Counter("bidbank.reservation.source.deregistered"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ any) error {
	return nil
}

// OnBalanceAdjusted implements plugin.OnBalanceAdjusted.
func (m *MetricsExtension) OnBalanceAdjusted(_ context.Context, _, _, _, newBalance int64) error {
	m.BalanceAdjusted.Inc()
	if newBalance < 0 {
		m.NegativeBalance.Inc()
	}
	return nil
}

// OnTransactionRecorded implements plugin.OnTransactionRecorded.
func (m *MetricsExtension) OnTransactionRecorded(_ context.Context, r *transaction.Record) error {
	m.TransactionsRecorded.Inc()
	amount := float64(r.Change)
	if r.Change >= 0 {
		m.Credits.Add(amount)
	} else {
		m.Debits.Add(-amount)
	}
	m.ChangeAmount.Observe(math.Abs(amount))
	return nil
}

// OnTransactionFailed implements plugin.OnTransactionFailed.
func (m *MetricsExtension) OnTransactionFailed(_ context.Context, _, _ int64, partial bool, _ error) error {
	if partial {
		m.TransactionsPartial.Inc()
		return nil
	}
	m.TransactionsFailed.Inc()
	return nil
}

// OnReservationSourceRegistered implements plugin.OnReservationSourceRegistered.
func (m *MetricsExtension) OnReservationSourceRegistered(_ context.Context, _, _ string) error {
	m.SourcesRegistered.Inc()
	return nil
}

// OnReservationSourceDeregistered implements plugin.OnReservationSourceDeregistered.
func (m *MetricsExtension) OnReservationSourceDeregistered(_ context.Context, _, _ string) error {
	m.SourcesDeregistered.Inc()
	return nil
}
