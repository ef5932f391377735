// Package kafka wraps the franz-go client behind the small producer surface
// the core needs: fire-and-forget domain events and the audit outbox relay.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"impfportal/internal/platform/config"
)

// Producer publishes records to Kafka. A nil *Producer is valid and drops
// records after logging them, so the core works without a broker in
// development.
type Producer struct {
	client *kgo.Client
	logger *slog.Logger
}

// NewProducer connects to the brokers and ensures the configured topics exist.
// Returns nil if no brokers are configured.
func NewProducer(cfg config.KafkaConfig, logger *slog.Logger) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, nil
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
		kgo.ProduceRequestTimeout(10*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	if err := ensureTopics(client, cfg.EventsTopic, cfg.AuditTopic); err != nil {
		client.Close()
		return nil, err
	}

	return &Producer{client: client, logger: logger}, nil
}

// ensureTopics creates the topics if the broker does not auto-create them.
// Already-exists responses are not errors.
func ensureTopics(client *kgo.Client, topics ...string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	adm := kadm.NewClient(client)
	resp, err := adm.CreateTopics(ctx, 1, 1, nil, topics...)
	if err != nil {
		return fmt.Errorf("create topics: %w", err)
	}
	for _, res := range resp.Sorted() {
		if res.Err != nil && !errors.Is(res.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", res.Topic, res.Err)
		}
	}
	return nil
}

// Produce sends one record synchronously. Callers treat the produced record as
// fire-and-forget at the domain level; synchronous produce keeps ordering per
// key without an outbox for non-critical events.
func (p *Producer) Produce(ctx context.Context, topic string, key string, value []byte) error {
	if p == nil {
		return nil
	}
	record := &kgo.Record{Topic: topic, Key: []byte(key), Value: value}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce to %s: %w", topic, err)
	}
	return nil
}

// ProduceAsync sends one record without waiting for the broker. Failures are
// logged, never surfaced to the triggering request.
func (p *Producer) ProduceAsync(ctx context.Context, topic string, key string, value []byte) {
	if p == nil {
		return
	}
	record := &kgo.Record{Topic: topic, Key: []byte(key), Value: value}
	p.client.Produce(ctx, record, func(r *kgo.Record, err error) {
		if err != nil && p.logger != nil {
			p.logger.Error("async produce failed", "topic", topic, "error", err)
		}
	})
}

// Close flushes and closes the underlying client.
func (p *Producer) Close() {
	if p == nil {
		return
	}
	p.client.Close()
}
