package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// Producer is the broker surface the relay needs; the kafka platform package
// satisfies it.
type Producer interface {
	Produce(ctx context.Context, topic string, key string, value []byte) error
}

// RelayWorker drains unrelayed audit events to Kafka. It runs as one
// background goroutine; a crashed relay resumes from the unrelayed rows, so
// events are delivered at least once.
type RelayWorker struct {
	store    Store
	producer Producer
	topic    string
	interval time.Duration
	batch    int
	logger   *slog.Logger
}

func NewRelayWorker(store Store, producer Producer, topic string, interval time.Duration, logger *slog.Logger) *RelayWorker {
	return &RelayWorker{
		store:    store,
		producer: producer,
		topic:    topic,
		interval: interval,
		batch:    100,
		logger:   logger,
	}
}

// Run relays until ctx is cancelled.
func (w *RelayWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.RelayOnce(ctx); err != nil {
				w.logger.Error("audit relay pass failed", "error", err)
			}
		}
	}
}

// RelayOnce publishes one batch of unrelayed events. Exported for tests and
// for a final drain on shutdown.
func (w *RelayWorker) RelayOnce(ctx context.Context) error {
	events, err := w.store.ListUnrelayed(ctx, w.batch)
	if err != nil {
		return fmt.Errorf("list unrelayed audit events: %w", err)
	}
	if len(events) == 0 {
		return nil
	}

	relayed := make([]int64, 0, len(events))
	for _, event := range events {
		payload, err := json.Marshal(event)
		if err != nil {
			w.logger.Error("skipping unmarshalable audit event", "id", event.ID, "error", err)
			relayed = append(relayed, event.ID)
			continue
		}
		if err := w.producer.Produce(ctx, w.topic, event.DossierID.String(), payload); err != nil {
			// Stop the batch; unrelayed rows are retried next tick.
			break
		}
		relayed = append(relayed, event.ID)
	}
	if len(relayed) == 0 {
		return nil
	}
	return w.store.MarkRelayed(ctx, relayed)
}
