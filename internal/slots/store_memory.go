package slots

import (
	"context"
	"sort"
	"sync"
	"time"

	"impfportal/internal/disease"
	"impfportal/pkg/domain"
	"impfportal/pkg/platform/sentinel"
)

// InMemoryStore keeps sites and slots in process memory. Used in development
// and unit tests; the conditional increment is serialized by the mutex so it
// gives the same one-winner guarantee as the SQL store.
type InMemoryStore struct {
	mu    sync.RWMutex
	sites map[domain.SiteID]*Site
	slots map[domain.SlotID]*Slot
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sites: make(map[domain.SiteID]*Site),
		slots: make(map[domain.SlotID]*Slot),
	}
}

func (s *InMemoryStore) CreateSite(ctx context.Context, site *Site) error {
	if err := site.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sites[site.ID]; exists {
		return sentinel.ErrConflict
	}
	cloned := *site
	s.sites[site.ID] = &cloned
	return nil
}

func (s *InMemoryStore) GetSite(ctx context.Context, siteID domain.SiteID) (*Site, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	site, ok := s.sites[siteID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cloned := *site
	return &cloned, nil
}

func (s *InMemoryStore) ListSites(ctx context.Context) ([]*Site, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Site, 0, len(s.sites))
	for _, site := range s.sites {
		cloned := *site
		out = append(out, &cloned)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *InMemoryStore) CreateSlot(ctx context.Context, slot *Slot) error {
	if err := slot.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.slots[slot.ID]; exists {
		return sentinel.ErrConflict
	}
	if _, exists := s.sites[slot.SiteID]; !exists {
		return sentinel.ErrNotFound
	}
	cloned := *slot
	s.slots[slot.ID] = &cloned
	return nil
}

func (s *InMemoryStore) GetSlot(ctx context.Context, slotID domain.SlotID) (*Slot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	slot, ok := s.slots[slotID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cloned := *slot
	return &cloned, nil
}

func (s *InMemoryStore) ListFreeSlots(ctx context.Context, siteID domain.SiteID, position disease.DosePosition, notBefore time.Time) ([]*Slot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Slot
	for _, slot := range s.slots {
		if slot.SiteID != siteID || slot.Position != position {
			continue
		}
		if slot.Reserved >= slot.Capacity {
			continue
		}
		if slot.StartAt.Before(notBefore) {
			continue
		}
		cloned := *slot
		out = append(out, &cloned)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartAt.Before(out[j].StartAt) })
	return out, nil
}

func (s *InMemoryStore) ReserveCapacity(ctx context.Context, slotID domain.SlotID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, ok := s.slots[slotID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if slot.Reserved >= slot.Capacity {
		return sentinel.ErrSlotFull
	}
	slot.Reserved++
	return nil
}

func (s *InMemoryStore) ReleaseCapacity(ctx context.Context, slotID domain.SlotID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, ok := s.slots[slotID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if slot.Reserved > 0 {
		slot.Reserved--
	}
	return nil
}
