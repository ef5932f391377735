package booking

import (
	"context"
	"sort"
	"sync"

	"impfportal/internal/disease"
	"impfportal/pkg/domain"
	"impfportal/pkg/platform/sentinel"
)

// InMemoryAppointmentStore keeps appointments in process memory.
type InMemoryAppointmentStore struct {
	mu           sync.RWMutex
	appointments map[domain.AppointmentID]*Appointment
}

func NewInMemoryAppointmentStore() *InMemoryAppointmentStore {
	return &InMemoryAppointmentStore{
		appointments: make(map[domain.AppointmentID]*Appointment),
	}
}

func (s *InMemoryAppointmentStore) Create(ctx context.Context, appointment *Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.appointments[appointment.ID]; exists {
		return sentinel.ErrConflict
	}
	for _, existing := range s.appointments {
		if existing.DossierID == appointment.DossierID && existing.Position == appointment.Position {
			return sentinel.ErrConflict
		}
	}
	cloned := *appointment
	s.appointments[appointment.ID] = &cloned
	return nil
}

func (s *InMemoryAppointmentStore) Get(ctx context.Context, id domain.AppointmentID) (*Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	appointment, ok := s.appointments[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cloned := *appointment
	return &cloned, nil
}

func (s *InMemoryAppointmentStore) Delete(ctx context.Context, id domain.AppointmentID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.appointments[id]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.appointments, id)
	return nil
}

func (s *InMemoryAppointmentStore) ListByDossier(ctx context.Context, dossierID domain.DossierID) ([]*Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Appointment
	for _, appointment := range s.appointments {
		if appointment.DossierID == dossierID {
			cloned := *appointment
			out = append(out, &cloned)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartAt.Before(out[j].StartAt) })
	return out, nil
}

func (s *InMemoryAppointmentStore) FindByDossierAndPosition(ctx context.Context, dossierID domain.DossierID, position disease.DosePosition) (*Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, appointment := range s.appointments {
		if appointment.DossierID == dossierID && appointment.Position == position {
			cloned := *appointment
			return &cloned, nil
		}
	}
	return nil, sentinel.ErrNotFound
}
