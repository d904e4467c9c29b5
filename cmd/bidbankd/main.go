// Command bidbankd runs the bidbank ledger as a standalone process. It
// opens the configured store, migrates it, wires the optional Kafka
// publisher and Redis hold source, and serves Prometheus metrics and a
// health probe until interrupted.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/xraph/bidbank"
	audithook "github.com/xraph/bidbank/audit_hook"
	kafkahook "github.com/xraph/bidbank/kafka_hook"
	"github.com/xraph/bidbank/lock"
	"github.com/xraph/bidbank/observability"
	"github.com/xraph/bidbank/reservation/redishold"
	"github.com/xraph/bidbank/store/factory"
)

func main() {
	configPath := flag.String("config", "bidbank.yaml", "path to the YAML or JSON config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "bidbankd:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, cfgErr := loadConfig(configPath)
	if cfgErr != nil && !errors.Is(cfgErr, errConfigMissing) {
		return cfgErr
	}

	logger, logCloser, err := newLogger(cfg.Log, os.Stderr)
	if err != nil {
		return err
	}
	defer logCloser.Close()
	slog.SetDefault(logger)

	if cfgErr != nil {
		logger.Warn("config file not found, using defaults", "path", configPath)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := factory.Open(ctx, cfg.Storage)
	if err != nil {
		logger.Log(ctx, bidbank.LevelCritical, "cannot open storage", "type", cfg.Storage.Type, "error", err)
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	opts := []bidbank.Option{
		bidbank.WithLogger(logger),
		bidbank.WithPlugin(observability.NewMetricsExtension(observability.NewPrometheusFactory(reg))),
	}
	if cfg.Bank.DisableMigrate {
		opts = append(opts, bidbank.WithoutMigrate())
	}
	if cfg.Bank.DisableAccountLock {
		opts = append(opts, bidbank.WithAccountLocker(lock.Noop{}))
	}
	if cfg.Bank.ReservationConcurrency > 0 {
		opts = append(opts, bidbank.WithReservationConcurrency(cfg.Bank.ReservationConcurrency))
	}
	if cfg.Bank.BatchTagging {
		opts = append(opts, bidbank.WithBatchTagging())
	}
	if cfg.Bank.Audit {
		auditLog := logger.With("component", "audit")
		opts = append(opts, bidbank.WithPlugin(audithook.New(
			audithook.RecorderFunc(func(ctx context.Context, evt *audithook.AuditEvent) error {
				auditLog.InfoContext(ctx, evt.Action,
					"resource", evt.Resource,
					"resource_id", evt.ResourceID,
					"outcome", evt.Outcome,
					"metadata", evt.Metadata,
				)
				return nil
			}),
			audithook.WithLogger(logger),
		)))
	}
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafkahook.NewProducer(cfg.Kafka.Brokers)
		if err != nil {
			_ = s.Close()
			return err
		}
		opts = append(opts, bidbank.WithPlugin(kafkahook.New(producer,
			kafkahook.WithTopic(cfg.Kafka.Topic),
			kafkahook.WithLogger(logger),
			kafkahook.WithCloseOnShutdown(),
		)))
	}

	bank := bidbank.New(s, opts...)

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		bank.RegisterReservationSource(redishold.New(rdb, redishold.WithKeyPrefix(cfg.Redis.KeyPrefix)))
	}

	if err := bank.Start(ctx); err != nil {
		logger.Log(ctx, bidbank.LevelCritical, "bank start failed", "error", err)
		_ = bank.Stop()
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Metrics.Addr,
		Handler:           newMux(reg, bank, rdb),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("serving metrics", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("metrics server shutdown", "error", err)
	}
	return bank.Stop()
}

// newMux serves /metrics and a /healthz probe that pings the store and,
// when configured, Redis.
func newMux(reg *prometheus.Registry, bank *bidbank.Bank, rdb *redis.Client) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		err := bank.Ping(ctx)
		if err == nil && rdb != nil {
			err = rdb.Ping(ctx).Err()
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}
