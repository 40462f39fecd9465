// Package publisher provides event stream sinks. The Kafka publisher is the
// production sink; the memory publisher backs unit tests and single-binary
// deployments without a broker.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"rentvault/pkg/platform/events"
)

// Kafka publishes escrow events to a single topic, keyed by instance id so an
// instance's history stays in one partition, in order.
type Kafka struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

// KafkaOption configures the Kafka publisher.
type KafkaOption func(*Kafka)

// WithLogger sets a logger for emission failures.
func WithLogger(logger *slog.Logger) KafkaOption {
	return func(p *Kafka) {
		p.logger = logger
	}
}

// NewKafka connects a producer to the given seed brokers.
func NewKafka(brokers []string, topic string, opts ...KafkaOption) (*Kafka, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ProducerLinger(0),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}
	p := &Kafka{client: client, topic: topic}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Emit produces the event synchronously. Callers treat failures as
// best-effort: the escrow transition that produced the event has already
// committed.
func (p *Kafka) Emit(ctx context.Context, event events.Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(event.InstanceID.String()),
		Value: value,
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		if p.logger != nil {
			p.logger.ErrorContext(ctx, "event publish failed",
				"kind", event.Kind,
				"instance_id", event.InstanceID,
				"error", err,
			)
		}
		return fmt.Errorf("produce event: %w", err)
	}
	return nil
}

// Close flushes and releases the producer.
func (p *Kafka) Close() error {
	p.client.Close()
	return nil
}
