package qlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// producer is the slice of kgo.Client the sink uses. Tests substitute a
// fake so no broker is needed.
type producer interface {
	Produce(ctx context.Context, r *kgo.Record, promise func(*kgo.Record, error))
	Flush(ctx context.Context) error
	Close()
}

// KafkaSink streams query events to one Kafka topic. Records are keyed by
// object kind so per-kind ordering survives partitioning. Delivery is
// asynchronous; produce failures are logged, not returned, because the
// query log is telemetry rather than a ledger.
type KafkaSink struct {
	client producer
	topic  string
	logger *slog.Logger
}

// KafkaOption configures the KafkaSink.
type KafkaOption func(*KafkaSink)

// WithKafkaLogger sets the logger for produce failures.
func WithKafkaLogger(logger *slog.Logger) KafkaOption {
	return func(k *KafkaSink) {
		if logger != nil {
			k.logger = logger
		}
	}
}

// NewKafkaSink dials the brokers and creates a sink producing to topic.
func NewKafkaSink(brokers []string, topic string, opts ...KafkaOption) (*KafkaSink, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka sink: at least one broker is required")
	}
	if topic == "" {
		return nil, errors.New("kafka sink: topic is required")
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.AllowAutoTopicCreation(),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}

	k := &KafkaSink{
		client: client,
		topic:  topic,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(k)
	}
	return k, nil
}

// Write hands the event to the async producer and returns once it is
// buffered client-side.
func (k *KafkaSink) Write(ctx context.Context, e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	k.client.Produce(ctx, &kgo.Record{Key: []byte(e.Kind), Value: body}, func(_ *kgo.Record, err error) {
		if err != nil {
			k.logger.Warn("kafka produce failed", "error", err, "id", e.ID)
		}
	})
	return nil
}

// Close flushes buffered records and releases the client.
func (k *KafkaSink) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := k.client.Flush(ctx)
	k.client.Close()
	if err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	return nil
}
