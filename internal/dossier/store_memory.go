package dossier

import (
	"context"
	"encoding/json"
	"sync"

	"impfportal/pkg/domain"
	"impfportal/pkg/platform/sentinel"
)

// InMemoryStore keeps dossiers in process memory. Dossiers are deep-copied on
// the way in and out so callers never share mutable state with the store.
type InMemoryStore struct {
	mu       sync.RWMutex
	dossiers map[domain.DossierID]*Dossier
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{dossiers: make(map[domain.DossierID]*Dossier)}
}

func (s *InMemoryStore) Create(ctx context.Context, dossier *Dossier) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.dossiers[dossier.ID]; exists {
		return sentinel.ErrConflict
	}
	for _, existing := range s.dossiers {
		if existing.PersonID == dossier.PersonID &&
			existing.DiseaseID == dossier.DiseaseID &&
			existing.Status.Live() {
			return sentinel.ErrConflict
		}
	}
	cloned, err := cloneDossier(dossier)
	if err != nil {
		return err
	}
	s.dossiers[dossier.ID] = cloned
	return nil
}

func (s *InMemoryStore) Get(ctx context.Context, dossierID domain.DossierID) (*Dossier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	dossier, ok := s.dossiers[dossierID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneDossier(dossier)
}

func (s *InMemoryStore) GetByPersonAndDisease(ctx context.Context, personID domain.PersonID, diseaseID domain.DiseaseID) (*Dossier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, dossier := range s.dossiers {
		if dossier.PersonID == personID && dossier.DiseaseID == diseaseID && dossier.Status.Live() {
			return cloneDossier(dossier)
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) Update(ctx context.Context, dossier *Dossier) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.dossiers[dossier.ID]; !exists {
		return sentinel.ErrNotFound
	}
	cloned, err := cloneDossier(dossier)
	if err != nil {
		return err
	}
	s.dossiers[dossier.ID] = cloned
	return nil
}

// cloneDossier deep-copies through JSON; the dossier graph is plain data, and
// this keeps the copy honest as fields are added. The ignored code-hash field
// is carried over explicitly.
func cloneDossier(dossier *Dossier) (*Dossier, error) {
	raw, err := json.Marshal(dossier)
	if err != nil {
		return nil, err
	}
	var cloned Dossier
	if err := json.Unmarshal(raw, &cloned); err != nil {
		return nil, err
	}
	cloned.RegistrationCodeHash = dossier.RegistrationCodeHash
	return &cloned, nil
}
