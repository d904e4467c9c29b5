package extension

import (
	"github.com/xraph/bidbank"
	"github.com/xraph/bidbank/plugin"
	"github.com/xraph/bidbank/reservation"
	"github.com/xraph/bidbank/store"
	"github.com/xraph/bidbank/store/factory"
)

// Option configures the bidbank Forge extension.
type Option func(*Extension)

// WithStore sets the store for the bank, bypassing Storage config.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithBankOption passes a bidbank.Option through to the underlying bank.
func WithBankOption(opt bidbank.Option) Option {
	return func(e *Extension) {
		e.bankOpts = append(e.bankOpts, opt)
	}
}

// WithPlugin registers a bank plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.bankOpts = append(e.bankOpts, bidbank.WithPlugin(p))
	}
}

// WithReservationSource registers src once the bank is built.
func WithReservationSource(src reservation.Source) Option {
	return func(e *Extension) {
		e.sources = append(e.sources, src)
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithStorage sets the storage backend configuration.
func WithStorage(cfg factory.Config) Option {
	return func(e *Extension) { e.config.Storage = cfg }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}
