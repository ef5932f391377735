package dossier

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"impfportal/internal/platform/kafka"
	"impfportal/pkg/domain"
)

// EventKind names a domain event on the notification topic.
type EventKind string

const (
	// EventStatusChanged tells the mail/SMS collaborator a dossier moved.
	EventStatusChanged EventKind = "status_changed"
	// EventCertificateTriggered asks the certificate collaborator to issue a
	// certificate for a qualifying dose.
	EventCertificateTriggered EventKind = "certificate_triggered"
	// EventCertificateRevoked follows a corrected or deleted dose.
	EventCertificateRevoked EventKind = "certificate_revoked"
)

// DomainEvent is the notification payload. Fire-and-forget: the core never
// blocks a citizen's request on the broker.
type DomainEvent struct {
	Kind           EventKind        `json:"kind"`
	DossierID      domain.DossierID `json:"dossier_id"`
	PersonID       domain.PersonID  `json:"person_id"`
	DiseaseID      domain.DiseaseID `json:"disease_id"`
	Status         Status           `json:"status,omitempty"`
	PreviousStatus Status           `json:"previous_status,omitempty"`
	DoseSequence   int              `json:"dose_sequence,omitempty"`
	OccurredAt     time.Time        `json:"occurred_at"`
}

// Publisher hands domain events to the outside world.
type Publisher interface {
	Publish(ctx context.Context, event DomainEvent)
}

// KafkaPublisher publishes to the dossier-events topic keyed by dossier, so
// per-dossier ordering survives partitioning.
type KafkaPublisher struct {
	producer *kafka.Producer
	topic    string
	logger   *slog.Logger
}

func NewKafkaPublisher(producer *kafka.Producer, topic string, logger *slog.Logger) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic, logger: logger}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event DomainEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("marshal domain event", "kind", string(event.Kind), "error", err)
		return
	}
	p.producer.ProduceAsync(ctx, p.topic, event.DossierID.String(), payload)
}

// MemoryPublisher collects events for tests and for running without a broker.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []DomainEvent
}

func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

func (p *MemoryPublisher) Publish(ctx context.Context, event DomainEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

// Events returns a copy of everything published so far.
func (p *MemoryPublisher) Events() []DomainEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]DomainEvent, len(p.events))
	copy(out, p.events)
	return out
}
