// Package kafkahook publishes recorded transactions to Kafka so downstream
// services (settlement, notifications, analytics) can follow money movement
// without polling the transaction log.
package kafkahook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/IBM/sarama"

	"github.com/xraph/bidbank"
	"github.com/xraph/bidbank/plugin"
	"github.com/xraph/bidbank/transaction"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                = (*Publisher)(nil)
	_ plugin.OnTransactionRecorded = (*Publisher)(nil)
	_ plugin.OnTransactionFailed   = (*Publisher)(nil)
	_ plugin.OnShutdown            = (*Publisher)(nil)
)

// DefaultTopic is used when no topic is configured.
const DefaultTopic = "bidbank.transactions"

// Event types carried in Event.Type.
const (
	EventTransactionRecorded = "transaction.recorded"
	EventTransactionPartial  = "transaction.partial"
)

// Event is the JSON message body.
type Event struct {
	Type       string              `json:"type"`
	Record     *transaction.Record `json:"record,omitempty"`
	UserID     int64               `json:"user"`
	Change     int64               `json:"change"`
	Error      string              `json:"error,omitempty"`
	OccurredAt time.Time           `json:"occurred_at"`
}

// Publisher is a bank plugin that sends one Kafka message per recorded
// transaction, keyed by user ID so a user's events stay ordered within a
// partition. Partial transactions are published too so that reconciliation
// can pick them up.
type Publisher struct {
	producer    sarama.SyncProducer
	topic       string
	closeOnStop bool
	logger      *slog.Logger
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithTopic sets the destination topic.
func WithTopic(topic string) Option {
	return func(p *Publisher) { p.topic = topic }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) { p.logger = logger }
}

// WithCloseOnShutdown closes the producer when the bank stops.
func WithCloseOnShutdown() Option {
	return func(p *Publisher) { p.closeOnStop = true }
}

// New creates a Publisher sending through producer.
func New(producer sarama.SyncProducer, opts ...Option) *Publisher {
	p := &Publisher{
		producer: producer,
		topic:    DefaultTopic,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewProducer creates a SyncProducer that waits for all in-sync replicas and
// retries three times.
func NewProducer(brokers []string) (sarama.SyncProducer, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 3
	cfg.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("kafkahook: create producer: %w", err)
	}
	return producer, nil
}

// Name implements plugin.Plugin.
func (p *Publisher) Name() string { return "kafka-hook" }

// OnTransactionRecorded implements plugin.OnTransactionRecorded.
func (p *Publisher) OnTransactionRecorded(_ context.Context, r *transaction.Record) error {
	return p.publish(&Event{
		Type:       EventTransactionRecorded,
		Record:     r,
		UserID:     r.UserID,
		Change:     r.Change,
		OccurredAt: r.Timestamp,
	})
}

// OnTransactionFailed implements plugin.OnTransactionFailed. Only partial
// failures are published; ordinary failures moved no money. A partial event
// carries the unrecorded record (ID and balances) for reconciliation.
func (p *Publisher) OnTransactionFailed(_ context.Context, userID, change int64, partial bool, err error) error {
	if !partial {
		return nil
	}
	evt := &Event{
		Type:       EventTransactionPartial,
		UserID:     userID,
		Change:     change,
		OccurredAt: time.Now().UTC(),
	}
	if err != nil {
		evt.Error = err.Error()
	}
	var pe *bidbank.PartialTransactionError
	if errors.As(err, &pe) && pe.Record != nil {
		evt.Record = pe.Record
		evt.OccurredAt = pe.Record.Timestamp
	}
	return p.publish(evt)
}

// OnShutdown implements plugin.OnShutdown.
func (p *Publisher) OnShutdown(_ context.Context) error {
	if !p.closeOnStop {
		return nil
	}
	return p.producer.Close()
}

func (p *Publisher) publish(evt *Event) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("kafkahook: encode %s: %w", evt.Type, err)
	}

	msg := &sarama.ProducerMessage{
		Topic:     p.topic,
		Key:       sarama.StringEncoder(strconv.FormatInt(evt.UserID, 10)),
		Value:     sarama.ByteEncoder(body),
		Timestamp: evt.OccurredAt,
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("kafkahook: publish %s for user %d: %w", evt.Type, evt.UserID, err)
	}

	p.logger.Debug("transaction event published",
		"type", evt.Type,
		"user_id", evt.UserID,
		"topic", p.topic,
		"partition", partition,
		"offset", offset,
	)
	return nil
}
