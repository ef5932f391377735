// Package snapshot assembles the read model the API returns: the dossier, its
// live appointments, and the chosen site, loaded at one consistent point.
package snapshot

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"impfportal/internal/booking"
	"impfportal/internal/dossier"
	"impfportal/internal/slots"
	"impfportal/pkg/domain"
	dErrors "impfportal/pkg/domain-errors"
	"impfportal/pkg/platform/sentinel"
)

// Snapshot is the aggregated per-person, per-disease view.
type Snapshot struct {
	Dossier      *dossier.Dossier       `json:"dossier"`
	Appointments []*booking.Appointment `json:"appointments,omitempty"`
	Site         *slots.Site            `json:"site,omitempty"`
}

// Loader loads snapshots. The store-backed aggregator serves development and
// tests; the pgx reader serves production reads.
type Loader interface {
	Load(ctx context.Context, personID domain.PersonID, diseaseID domain.DiseaseID) (*Snapshot, error)
	LoadByDossier(ctx context.Context, dossierID domain.DossierID) (*Snapshot, error)
}

// Aggregator builds snapshots from the individual stores. The appointment and
// site loads are independent of each other, so they run concurrently once the
// dossier is in hand.
type Aggregator struct {
	dossiers     dossier.Store
	appointments booking.AppointmentStore
	sites        slots.Store
}

func NewAggregator(dossiers dossier.Store, appointments booking.AppointmentStore, sites slots.Store) *Aggregator {
	return &Aggregator{dossiers: dossiers, appointments: appointments, sites: sites}
}

func (a *Aggregator) Load(ctx context.Context, personID domain.PersonID, diseaseID domain.DiseaseID) (*Snapshot, error) {
	d, err := a.dossiers.GetByPersonAndDisease(ctx, personID, diseaseID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "dossier not found")
		}
		return nil, err
	}
	return a.assemble(ctx, d)
}

func (a *Aggregator) LoadByDossier(ctx context.Context, dossierID domain.DossierID) (*Snapshot, error) {
	d, err := a.dossiers.Get(ctx, dossierID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "dossier not found")
		}
		return nil, err
	}
	return a.assemble(ctx, d)
}

func (a *Aggregator) assemble(ctx context.Context, d *dossier.Dossier) (*Snapshot, error) {
	snap := &Snapshot{Dossier: d}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		appointments, err := a.appointments.ListByDossier(ctx, d.ID)
		if err != nil {
			return err
		}
		snap.Appointments = appointments
		return nil
	})
	if siteID := d.Booking.SiteID; siteID != nil {
		g.Go(func() error {
			site, err := a.sites.GetSite(ctx, *siteID)
			if err != nil {
				// The dossier outlives a withdrawn site; the view just
				// omits it.
				if errors.Is(err, sentinel.ErrNotFound) {
					return nil
				}
				return err
			}
			snap.Site = site
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return snap, nil
}
