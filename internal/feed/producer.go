// Package feed mirrors fired alerts onto a Kafka topic for downstream
// consumers that need a durable alert stream. Like the broadcast leg it is
// best-effort: produce failures are logged by the dispatcher and never affect
// evaluation results.
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
)

// ErrProducerClosed indicates the producer has been closed.
var ErrProducerClosed = fmt.Errorf("feed: producer is closed")

// Config holds Kafka alert feed settings.
type Config struct {
	Enabled      bool          `yaml:"enabled"`
	Brokers      []string      `yaml:"brokers"`
	Topic        string        `yaml:"topic"`
	BatchSize    int           `yaml:"batch_size"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	MaxRetries   int           `yaml:"max_retries"`
	RequiredAcks int           `yaml:"required_acks"`
}

// DefaultConfig returns the default feed configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:      false,
		Brokers:      []string{"localhost:9092"},
		Topic:        "sentinel.alerts",
		BatchSize:    100,
		BatchTimeout: 50 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		MaxRetries:   3,
		RequiredAcks: 1,
	}
}

// Validate validates the feed configuration.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if len(c.Brokers) == 0 {
		return fmt.Errorf("feed: at least one broker is required")
	}
	if c.Topic == "" {
		return fmt.Errorf("feed: topic is required")
	}
	return nil
}

// Producer writes serialized alerts to the feed topic, keyed by rule id so
// one rule's alerts stay in partition order.
type Producer struct {
	writer *kafka.Writer
	logger *slog.Logger
	closed atomic.Bool

	produced atomic.Int64
	errors   atomic.Int64
}

// NewProducer creates a new alert feed producer.
func NewProducer(cfg Config, logger *slog.Logger) (*Producer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
		WriteTimeout: cfg.WriteTimeout,
		MaxAttempts:  cfg.MaxRetries + 1,
		RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Error(fmt.Sprintf(msg, args...), "component", "feed-writer")
		}),
	}

	logger.Info("alert feed producer initialized",
		"brokers", cfg.Brokers,
		"topic", cfg.Topic,
	)

	return &Producer{writer: writer, logger: logger}, nil
}

// Produce sends one serialized alert keyed by rule id.
func (p *Producer) Produce(ctx context.Context, key string, payload []byte) error {
	if p.closed.Load() {
		return ErrProducerClosed
	}

	err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Time:  time.Now(),
	})
	if err != nil {
		p.errors.Add(1)
		return fmt.Errorf("feed: produce: %w", err)
	}

	p.produced.Add(1)
	return nil
}

// Produced returns the number of successfully produced alerts.
func (p *Producer) Produced() int64 {
	return p.produced.Load()
}

// Close closes the producer and flushes buffered messages.
func (p *Producer) Close() error {
	if p.closed.Swap(true) {
		return nil
	}

	p.logger.Info("closing alert feed producer",
		"produced", p.produced.Load(),
		"errors", p.errors.Load(),
	)

	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("feed: close producer: %w", err)
	}
	return nil
}
