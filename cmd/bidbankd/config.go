package main

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/spf13/viper"

	"github.com/xraph/bidbank/store/factory"
)

// Config is the daemon configuration.
type Config struct {
	Log     LogConfig      `mapstructure:"log"`
	Metrics MetricsConfig  `mapstructure:"metrics"`
	Storage factory.Config `mapstructure:"storage"`
	Bank    BankConfig     `mapstructure:"bank"`
	Kafka   KafkaConfig    `mapstructure:"kafka"`
	Redis   RedisConfig    `mapstructure:"redis"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Dir    string `mapstructure:"dir"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

type BankConfig struct {
	DisableMigrate         bool `mapstructure:"disable_migrate"`
	DisableAccountLock     bool `mapstructure:"disable_account_lock"`
	ReservationConcurrency int  `mapstructure:"reservation_concurrency"`
	BatchTagging           bool `mapstructure:"batch_tagging"`
	Audit                  bool `mapstructure:"audit"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// errConfigMissing signals that the config file does not exist; the
// daemon then runs on defaults and environment overrides.
var errConfigMissing = errors.New("config file not found")

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.dir", "")
	v.SetDefault("metrics.addr", ":9464")
	v.SetDefault("storage.type", factory.TypeMemory)
	v.SetDefault("storage.dsn", "")
	v.SetDefault("storage.pool_size", 0)
	v.SetDefault("storage.mongo.host", "")
	v.SetDefault("storage.mongo.port", factory.DefaultMongoPort)
	v.SetDefault("storage.mongo.database", "")
	v.SetDefault("storage.mongo.username", "")
	v.SetDefault("storage.mongo.password", "")
	v.SetDefault("bank.disable_migrate", false)
	v.SetDefault("bank.disable_account_lock", false)
	v.SetDefault("bank.reservation_concurrency", 8)
	v.SetDefault("bank.batch_tagging", false)
	v.SetDefault("bank.audit", false)
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "bidbank.transactions")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "bidbank:holds:")
}

// loadConfig reads path (YAML or JSON by extension) and BIDBANK_*
// environment variables, e.g. BIDBANK_STORAGE_TYPE. A missing file is
// reported as errConfigMissing together with a usable default config.
func loadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("BIDBANK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var missing bool
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
			missing = true
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Storage.Validate(); err != nil {
		return nil, err
	}
	if missing {
		return cfg, errConfigMissing
	}
	return cfg, nil
}
