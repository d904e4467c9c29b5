package extension

import (
	"fmt"

	"github.com/xraph/bidbank/store/factory"
)

// Config holds the bidbank extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.bidbank" or "bidbank" keys).
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// DisableAccountLock turns off per-account serialization of
	// transactions. Only safe when a single writer touches each account.
	DisableAccountLock bool `json:"disable_account_lock" mapstructure:"disable_account_lock" yaml:"disable_account_lock"`

	// ReservationConcurrency caps how many reservation sources are queried
	// at once (default: 8).
	ReservationConcurrency int `json:"reservation_concurrency" mapstructure:"reservation_concurrency" yaml:"reservation_concurrency"`

	// BatchTagging stamps every record of a batch with a shared batch ID.
	BatchTagging bool `json:"batch_tagging" mapstructure:"batch_tagging" yaml:"batch_tagging"`

	// Storage selects the backend. Ignored when a store is passed with WithStore.
	Storage factory.Config `json:"storage" mapstructure:"storage" yaml:"storage"`

	// Kafka enables the transaction event publisher when Brokers is non-empty.
	Kafka KafkaConfig `json:"kafka" mapstructure:"kafka" yaml:"kafka"`

	// Redis enables the Redis hold reservation source when Addr is set.
	Redis RedisConfig `json:"redis" mapstructure:"redis" yaml:"redis"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// KafkaConfig configures the transaction event publisher.
type KafkaConfig struct {
	Brokers []string `json:"brokers" mapstructure:"brokers" yaml:"brokers"`
	Topic   string   `json:"topic" mapstructure:"topic" yaml:"topic"`
}

// RedisConfig configures the Redis hold reservation source.
type RedisConfig struct {
	Addr      string `json:"addr" mapstructure:"addr" yaml:"addr"`
	Password  string `json:"password" mapstructure:"password" yaml:"password"`
	DB        int    `json:"db" mapstructure:"db" yaml:"db"`
	KeyPrefix string `json:"key_prefix" mapstructure:"key_prefix" yaml:"key_prefix"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ReservationConcurrency: 8,
		Storage:                factory.Config{Type: factory.TypeMemory},
		Kafka:                  KafkaConfig{Topic: "bidbank.transactions"},
		Redis:                  RedisConfig{KeyPrefix: "bidbank:holds:"},
	}
}

// Validate checks the storage settings and numeric bounds.
func (c Config) Validate() error {
	if c.ReservationConcurrency < 0 {
		return fmt.Errorf("bidbank: reservation_concurrency must not be negative, got %d", c.ReservationConcurrency)
	}
	return c.Storage.Validate()
}
