// Package extension provides the Forge extension adapter for bidbank.
//
// It implements the forge.Extension interface to integrate the bank
// into a Forge application with DI registration, configuration-driven
// storage selection and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.bidbank" or "bidbank" keys.
package extension

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	"github.com/xraph/bidbank"
	kafkahook "github.com/xraph/bidbank/kafka_hook"
	"github.com/xraph/bidbank/lock"
	"github.com/xraph/bidbank/reservation"
	"github.com/xraph/bidbank/reservation/redishold"
	"github.com/xraph/bidbank/store"
	"github.com/xraph/bidbank/store/factory"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "bidbank"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Auction money ledger with reservation-aware balances"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts bidbank as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config   Config
	bank     *bidbank.Bank
	store    store.Store
	bankOpts []bidbank.Option
	sources  []reservation.Source

	redis *redis.Client
	holds *redishold.Source
}

// New creates a new bidbank Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Bank returns the underlying bank. This is nil until Register is called.
func (e *Extension) Bank() *bidbank.Bank { return e.bank }

// Holds returns the Redis hold source, or nil when Redis is not configured.
func (e *Extension) Holds() *redishold.Source { return e.holds }

// Register implements [forge.Extension]. It loads configuration, opens the
// store, builds the bank and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}
	if err := e.config.Validate(); err != nil {
		return err
	}

	if e.store == nil {
		s, err := factory.Open(context.Background(), e.config.Storage)
		if err != nil {
			return err
		}
		e.store = s
	}

	opts, err := e.buildBankOpts()
	if err != nil {
		return err
	}

	b := bidbank.New(e.store, opts...)
	for _, src := range e.reservationSources() {
		b.RegisterReservationSource(src)
	}
	e.bank = b

	return vessel.Provide(fapp.Container(), func() (*bidbank.Bank, error) {
		return e.bank, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.bank == nil {
		return errors.New("bidbank: extension not initialized")
	}

	if err := e.bank.Start(ctx); err != nil {
		return err
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	var errs []error
	if e.bank != nil {
		errs = append(errs, e.bank.Stop())
	}
	if e.redis != nil {
		errs = append(errs, e.redis.Close())
	}
	e.MarkStopped()
	return errors.Join(errs...)
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("bidbank: store not initialized")
	}
	if err := e.store.Ping(ctx); err != nil {
		return err
	}
	if e.redis != nil {
		return e.redis.Ping(ctx).Err()
	}
	return nil
}

// buildBankOpts constructs bidbank.Option values from the resolved config.
func (e *Extension) buildBankOpts() ([]bidbank.Option, error) {
	opts := make([]bidbank.Option, 0, len(e.bankOpts)+5)

	if e.config.DisableMigrate {
		opts = append(opts, bidbank.WithoutMigrate())
	}
	if e.config.DisableAccountLock {
		opts = append(opts, bidbank.WithAccountLocker(lock.Noop{}))
	}
	if e.config.ReservationConcurrency > 0 {
		opts = append(opts, bidbank.WithReservationConcurrency(e.config.ReservationConcurrency))
	}
	if e.config.BatchTagging {
		opts = append(opts, bidbank.WithBatchTagging())
	}

	if len(e.config.Kafka.Brokers) > 0 {
		producer, err := kafkahook.NewProducer(e.config.Kafka.Brokers)
		if err != nil {
			return nil, fmt.Errorf("bidbank: kafka: %w", err)
		}
		opts = append(opts, bidbank.WithPlugin(kafkahook.New(producer,
			kafkahook.WithTopic(e.config.Kafka.Topic),
			kafkahook.WithCloseOnShutdown(),
		)))
	}

	// Append any pass-through bank options.
	opts = append(opts, e.bankOpts...)

	return opts, nil
}

// reservationSources returns the programmatic sources plus the Redis hold
// source when configured.
func (e *Extension) reservationSources() []reservation.Source {
	sources := append([]reservation.Source(nil), e.sources...)
	if e.config.Redis.Addr != "" {
		e.redis = redis.NewClient(&redis.Options{
			Addr:     e.config.Redis.Addr,
			Password: e.config.Redis.Password,
			DB:       e.config.Redis.DB,
		})
		e.holds = redishold.New(e.redis, redishold.WithKeyPrefix(e.config.Redis.KeyPrefix))
		sources = append(sources, e.holds)
	}
	return sources
}

// --- Config Loading (mirrors grove/shield extension pattern) ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	// Try loading from config file.
	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("bidbank: configuration is required but not found in config files; " +
				"ensure 'extensions.bidbank' or 'bidbank' key exists in your config")
		}

		// Use programmatic config merged with defaults.
		e.config = mergeWithDefaults(programmaticConfig)
	} else {
		// Config loaded from YAML -- merge with programmatic options.
		e.config = mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("bidbank: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("disable_account_lock", e.config.DisableAccountLock),
		forge.F("reservation_concurrency", e.config.ReservationConcurrency),
		forge.F("batch_tagging", e.config.BatchTagging),
		forge.F("storage", e.config.Storage.Type),
		forge.F("kafka_brokers", len(e.config.Kafka.Brokers)),
		forge.F("redis", e.config.Redis.Addr != ""),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	for _, key := range []string{"extensions.bidbank", "bidbank"} {
		if !cm.IsSet(key) {
			continue
		}
		if err := cm.Bind(key, &cfg); err != nil {
			e.Logger().Warn("bidbank: failed to bind config",
				forge.F("key", key),
				forge.F("error", err.Error()),
			)
			continue
		}
		e.Logger().Debug("bidbank: loaded config from file",
			forge.F("key", key),
		)
		return cfg, true
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.ReservationConcurrency == 0 {
		cfg.ReservationConcurrency = defaults.ReservationConcurrency
	}
	if cfg.Storage.Type == "" {
		cfg.Storage.Type = defaults.Storage.Type
	}
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = defaults.Kafka.Topic
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = defaults.Redis.KeyPrefix
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic values fill gaps.
func mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	// Programmatic bool flags override when true.
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}
	if programmaticConfig.DisableAccountLock {
		yamlConfig.DisableAccountLock = true
	}
	if programmaticConfig.BatchTagging {
		yamlConfig.BatchTagging = true
	}

	if yamlConfig.ReservationConcurrency == 0 {
		yamlConfig.ReservationConcurrency = programmaticConfig.ReservationConcurrency
	}
	if yamlConfig.Storage.Type == "" {
		yamlConfig.Storage = programmaticConfig.Storage
	}
	if len(yamlConfig.Kafka.Brokers) == 0 {
		yamlConfig.Kafka.Brokers = programmaticConfig.Kafka.Brokers
	}
	if yamlConfig.Kafka.Topic == "" {
		yamlConfig.Kafka.Topic = programmaticConfig.Kafka.Topic
	}
	if yamlConfig.Redis.Addr == "" {
		yamlConfig.Redis = programmaticConfig.Redis
	}

	// Fill remaining zeros with defaults.
	return mergeWithDefaults(yamlConfig)
}
