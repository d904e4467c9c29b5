package extension

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/bidbank/store/factory"
)

func TestMergeWithDefaults(t *testing.T) {
	cfg := mergeWithDefaults(Config{})
	assert.Equal(t, 8, cfg.ReservationConcurrency)
	assert.Equal(t, factory.TypeMemory, cfg.Storage.Type)
	assert.Equal(t, "bidbank.transactions", cfg.Kafka.Topic)
	assert.Equal(t, "bidbank:holds:", cfg.Redis.KeyPrefix)
}

func TestMergeConfigurations(t *testing.T) {
	yamlCfg := Config{
		Storage: factory.Config{Type: factory.TypeSQLite, DSN: "bids.db"},
		Kafka:   KafkaConfig{Topic: "auction.money"},
	}
	programmatic := Config{
		DisableMigrate:         true,
		ReservationConcurrency: 2,
		Storage:                factory.Config{Type: factory.TypePostgres, DSN: "postgres://x"},
		Kafka:                  KafkaConfig{Brokers: []string{"kafka:9092"}},
		Redis:                  RedisConfig{Addr: "redis:6379", KeyPrefix: "h:"},
	}

	got := mergeConfigurations(yamlCfg, programmatic)
	assert.True(t, got.DisableMigrate)
	assert.Equal(t, 2, got.ReservationConcurrency)
	assert.Equal(t, factory.TypeSQLite, got.Storage.Type, "file storage wins")
	assert.Equal(t, []string{"kafka:9092"}, got.Kafka.Brokers)
	assert.Equal(t, "auction.money", got.Kafka.Topic)
	assert.Equal(t, "h:", got.Redis.KeyPrefix)
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	bad := DefaultConfig()
	bad.ReservationConcurrency = -1
	assert.Error(t, bad.Validate())

	mongoMissing := DefaultConfig()
	mongoMissing.Storage = factory.Config{Type: factory.TypeMongo}
	assert.Error(t, mongoMissing.Validate())
}

func TestBuildBankOpts(t *testing.T) {
	e := New(WithDisableMigrate())
	e.config = mergeWithDefaults(e.config)
	e.config.DisableAccountLock = true
	e.config.BatchTagging = true

	opts, err := e.buildBankOpts()
	require.NoError(t, err)
	assert.Len(t, opts, 4)
}

func TestReservationSourcesWithoutRedis(t *testing.T) {
	e := New()
	assert.Empty(t, e.reservationSources())
	assert.Nil(t, e.Holds())
}

func TestReservationSourcesWithRedis(t *testing.T) {
	e := New()
	e.config.Redis = RedisConfig{Addr: "127.0.0.1:6399", KeyPrefix: "h:"}

	srcs := e.reservationSources()
	require.Len(t, srcs, 1)
	require.NotNil(t, e.Holds())
	assert.Equal(t, "redis-holds", srcs[0].Name())
	require.NoError(t, e.redis.Close())
}
