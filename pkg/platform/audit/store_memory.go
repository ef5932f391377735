package audit

import (
	"context"
	"sync"
	"time"

	"impfportal/pkg/domain"
)

// MemoryStore keeps the audit trail in process memory for development and
// tests.
type MemoryStore struct {
	mu     sync.Mutex
	events []*Event
	nextID int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{nextID: 1}
}

func (s *MemoryStore) Append(ctx context.Context, event *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cloned := *event
	cloned.ID = s.nextID
	s.nextID++
	if cloned.Timestamp.IsZero() {
		cloned.Timestamp = time.Now()
	}
	s.events = append(s.events, &cloned)
	event.ID = cloned.ID
	return nil
}

func (s *MemoryStore) ListByDossier(ctx context.Context, dossierID domain.DossierID) ([]*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Event
	for _, event := range s.events {
		if event.DossierID == dossierID {
			cloned := *event
			out = append(out, &cloned)
		}
	}
	return out, nil
}

func (s *MemoryStore) ListUnrelayed(ctx context.Context, limit int) ([]*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Event
	for _, event := range s.events {
		if event.RelayedAt == nil {
			cloned := *event
			out = append(out, &cloned)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (s *MemoryStore) MarkRelayed(ctx context.Context, eventIDs []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make(map[int64]struct{}, len(eventIDs))
	for _, id := range eventIDs {
		ids[id] = struct{}{}
	}
	now := time.Now()
	for _, event := range s.events {
		if _, ok := ids[event.ID]; ok && event.RelayedAt == nil {
			relayed := now
			event.RelayedAt = &relayed
		}
	}
	return nil
}
