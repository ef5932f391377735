package snapshot

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"impfportal/internal/booking"
	"impfportal/internal/disease"
	"impfportal/internal/dossier"
	"impfportal/internal/slots"
	"impfportal/pkg/domain"
	dErrors "impfportal/pkg/domain-errors"
)

func Test_Aggregator_Load(t *testing.T) {
	ctx := context.Background()
	dossiers := dossier.NewInMemoryStore()
	appointments := booking.NewInMemoryAppointmentStore()
	sites := slots.NewInMemoryStore()
	aggregator := NewAggregator(dossiers, appointments, sites)

	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	site := &slots.Site{ID: domain.NewSiteID(), Name: "Impfzentrum Mitte", Managed: true, CreatedAt: now}
	require.NoError(t, sites.CreateSite(ctx, site))

	personID := domain.NewPersonID()
	d := &dossier.Dossier{
		ID:        domain.NewDossierID(),
		PersonID:  personID,
		DiseaseID: "covid19",
		Status:    dossier.StatusBooked,
		CreatedAt: now,
		UpdatedAt: now,
	}
	d.Booking.SiteID = &site.ID
	require.NoError(t, dossiers.Create(ctx, d))

	appointment := &booking.Appointment{
		ID:        domain.NewAppointmentID(),
		DossierID: d.ID,
		SlotID:    domain.NewSlotID(),
		SiteID:    site.ID,
		Position:  disease.PositionDose1,
		StartAt:   now.AddDate(0, 0, 1),
		CreatedAt: now,
	}
	require.NoError(t, appointments.Create(ctx, appointment))

	snap, err := aggregator.Load(ctx, personID, "covid19")
	require.NoError(t, err)
	assert.Equal(t, d.ID, snap.Dossier.ID)
	require.Len(t, snap.Appointments, 1)
	assert.Equal(t, appointment.ID, snap.Appointments[0].ID)
	require.NotNil(t, snap.Site)
	assert.Equal(t, "Impfzentrum Mitte", snap.Site.Name)

	byDossier, err := aggregator.LoadByDossier(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, d.ID, byDossier.Dossier.ID)
}

func Test_Aggregator_Load_NotFound(t *testing.T) {
	aggregator := NewAggregator(dossier.NewInMemoryStore(), booking.NewInMemoryAppointmentStore(), slots.NewInMemoryStore())

	_, err := aggregator.Load(context.Background(), domain.NewPersonID(), "covid19")
	require.Error(t, err)
	assert.Equal(t, dErrors.CodeNotFound, dErrors.Code(err))
}

func Test_Aggregator_Load_MissingSiteOmitted(t *testing.T) {
	ctx := context.Background()
	dossiers := dossier.NewInMemoryStore()
	aggregator := NewAggregator(dossiers, booking.NewInMemoryAppointmentStore(), slots.NewInMemoryStore())

	withdrawn := domain.NewSiteID()
	d := &dossier.Dossier{
		ID:        domain.NewDossierID(),
		PersonID:  domain.NewPersonID(),
		DiseaseID: "covid19",
		Status:    dossier.StatusSiteChosen,
	}
	d.Booking.SiteID = &withdrawn
	require.NoError(t, dossiers.Create(ctx, d))

	snap, err := aggregator.Load(ctx, d.PersonID, "covid19")
	require.NoError(t, err)
	assert.Nil(t, snap.Site)
}
