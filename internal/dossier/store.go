package dossier

import (
	"context"

	"impfportal/pkg/domain"
)

// Store persists dossiers. Implementations return sentinel errors; the
// service translates them into domain errors.
type Store interface {
	// Create inserts a new dossier. A live dossier for the same (person,
	// disease) pair returns sentinel.ErrConflict.
	Create(ctx context.Context, dossier *Dossier) error
	Get(ctx context.Context, dossierID domain.DossierID) (*Dossier, error)
	// GetByPersonAndDisease returns the live dossier for the pair, or
	// sentinel.ErrNotFound.
	GetByPersonAndDisease(ctx context.Context, personID domain.PersonID, diseaseID domain.DiseaseID) (*Dossier, error)
	// Update replaces the stored dossier wholesale.
	Update(ctx context.Context, dossier *Dossier) error
}
