package booking

import (
	"context"

	"impfportal/internal/disease"
	"impfportal/pkg/domain"
)

// AppointmentStore persists appointment records. Implementations return
// sentinel errors; the coordinator translates them.
type AppointmentStore interface {
	Create(ctx context.Context, appointment *Appointment) error
	Get(ctx context.Context, id domain.AppointmentID) (*Appointment, error)
	// Delete removes an appointment, reporting sentinel.ErrNotFound when it
	// does not exist so the coordinator can keep Release idempotent.
	Delete(ctx context.Context, id domain.AppointmentID) error
	ListByDossier(ctx context.Context, dossierID domain.DossierID) ([]*Appointment, error)
	// FindByDossierAndPosition returns the live appointment for a dossier's
	// dose position, or sentinel.ErrNotFound.
	FindByDossierAndPosition(ctx context.Context, dossierID domain.DossierID, position disease.DosePosition) (*Appointment, error)
}
