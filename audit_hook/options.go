package audithook

import "log/slog"

// Option configures an Extension.
type Option func(*Extension)

// WithLogger sets the logger used to report recorder failures.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extension) { e.logger = logger }
}

// WithEnabledActions audits only the listed actions.
// Without it every action is audited.
func WithEnabledActions(actions ...string) Option {
	return func(e *Extension) {
		e.enabled = make(map[string]bool, len(actions))
		for _, action := range actions {
			e.enabled[action] = true
		}
	}
}

// WithDisabledActions audits every known action except the listed ones.
func WithDisabledActions(actions ...string) Option {
	return func(e *Extension) {
		if e.enabled == nil {
			e.enabled = make(map[string]bool)
			for _, action := range allActions() {
				e.enabled[action] = true
			}
		}
		for _, action := range actions {
			delete(e.enabled, action)
		}
	}
}

// WithoutBalanceEvents skips balance.adjusted; transaction.recorded
// already carries the same balances for successful transactions.
func WithoutBalanceEvents() Option {
	return WithDisabledActions(ActionBalanceAdjusted)
}

func allActions() []string {
	return []string{
		ActionTransactionRecorded,
		ActionTransactionFailed,
		ActionTransactionPartial,
		ActionBalanceAdjusted,
		ActionReservationSourceRegistered,
		ActionReservationSourceDeregistered,
	}
}
