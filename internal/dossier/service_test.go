package dossier

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"impfportal/internal/booking"
	"impfportal/internal/disease"
	"impfportal/internal/slots"
	"impfportal/pkg/domain"
	dErrors "impfportal/pkg/domain-errors"
	"impfportal/pkg/platform/audit"
	"impfportal/pkg/platform/secrets"
	"impfportal/pkg/requestcontext"
)

var day0 = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

type serviceFixture struct {
	svc          *Service
	store        *InMemoryStore
	slots        *slots.InMemoryStore
	appointments *booking.InMemoryAppointmentStore
	auditStore   *audit.MemoryStore
	publisher    *MemoryPublisher

	siteID domain.SiteID
	now    time.Time
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	f := &serviceFixture{
		store:        NewInMemoryStore(),
		slots:        slots.NewInMemoryStore(),
		appointments: booking.NewInMemoryAppointmentStore(),
		auditStore:   audit.NewMemoryStore(),
		publisher:    NewMemoryPublisher(),
		now:          day0,
	}
	clock := func() time.Time { return f.now }
	logger := slog.Default()

	coordinator := booking.NewCoordinator(f.slots, f.appointments, logger,
		booking.WithClock(clock))
	recorder := audit.NewRecorder(f.auditStore, logger)

	f.svc = NewService(
		NewMemoryTxRunner(),
		f.store,
		f.slots,
		coordinator,
		disease.NewRegistry(),
		logger,
		WithAudit(recorder),
		WithEvents(f.publisher),
		WithClock(clock),
	)

	site := &slots.Site{ID: domain.NewSiteID(), Name: "Impfzentrum Mitte", Managed: true, CreatedAt: day0}
	require.NoError(t, f.slots.CreateSite(context.Background(), site))
	f.siteID = site.ID
	return f
}

func (f *serviceFixture) addSlot(t *testing.T, position disease.DosePosition, startAt time.Time, capacity int) domain.SlotID {
	t.Helper()
	slot := &slots.Slot{
		ID:       domain.NewSlotID(),
		SiteID:   f.siteID,
		Position: position,
		StartAt:  startAt,
		EndAt:    startAt.Add(15 * time.Minute),
		Capacity: capacity,
	}
	require.NoError(t, f.slots.CreateSlot(context.Background(), slot))
	return slot.ID
}

func (f *serviceFixture) reserved(t *testing.T, slotID domain.SlotID) int {
	t.Helper()
	slot, err := f.slots.GetSlot(context.Background(), slotID)
	require.NoError(t, err)
	return slot.Reserved
}

// siteChosenDossier walks a fresh covid19 dossier to site_chosen.
func (f *serviceFixture) siteChosenDossier(t *testing.T) *Dossier {
	t.Helper()
	ctx := context.Background()
	d, _, err := f.svc.CreateOrGet(ctx, domain.NewPersonID(), "covid19")
	require.NoError(t, err)
	_, err = f.svc.Release(ctx, d.ID)
	require.NoError(t, err)
	d, err = f.svc.ChooseSite(ctx, d.ID, &f.siteID, false)
	require.NoError(t, err)
	return d
}

// bookedDossier books the standard two-dose series: dose 1 on day 1, dose 2
// on day 31 (a 30-day gap, inside the 28..42 day window).
func (f *serviceFixture) bookedDossier(t *testing.T) (*Dossier, domain.SlotID, domain.SlotID) {
	t.Helper()
	d := f.siteChosenDossier(t)
	slot1 := f.addSlot(t, disease.PositionDose1, day0.AddDate(0, 0, 1), 10)
	slot2 := f.addSlot(t, disease.PositionDose2, day0.AddDate(0, 0, 31), 10)
	d, err := f.svc.BookPrimarySeries(context.Background(), d.ID, BookPrimarySeriesRequest{
		Slot1: slot1,
		Slot2: &slot2,
	})
	require.NoError(t, err)
	return d, slot1, slot2
}

// completeDossier documents both doses, leaving the dossier complete with the
// second dose administered at the given time.
func (f *serviceFixture) completeDossier(t *testing.T, dose2At time.Time) *Dossier {
	t.Helper()
	ctx := context.Background()
	d, _, _ := f.bookedDossier(t)
	auth := Authorization{Documenter: true}

	_, err := f.svc.ControlDose(ctx, d.ID, "")
	require.NoError(t, err)
	_, err = f.svc.DocumentDose(ctx, d.ID, DoseFacts{
		Product:        "Comirnaty",
		AdministeredBy: "Dr. Huber",
		AdministeredAt: day0.AddDate(0, 0, 1),
	}, auth)
	require.NoError(t, err)

	_, err = f.svc.ControlDose(ctx, d.ID, "")
	require.NoError(t, err)
	d, err = f.svc.DocumentDose(ctx, d.ID, DoseFacts{
		Product:        "Comirnaty",
		AdministeredBy: "Dr. Huber",
		AdministeredAt: dose2At,
	}, auth)
	require.NoError(t, err)
	require.Equal(t, StatusComplete, d.Status)
	return d
}

func Test_CreateOrGet_NewDossier(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	personID := domain.NewPersonID()

	d, code, err := f.svc.CreateOrGet(ctx, personID, "covid19")
	require.NoError(t, err)
	assert.Equal(t, StatusRegistered, d.Status)
	assert.NotEmpty(t, code)
	assert.NoError(t, secrets.Verify(code, d.RegistrationCodeHash))
	require.NotNil(t, d.Protection)
	assert.False(t, d.Protection.CompletedPrimarySeries)

	trail, err := f.auditStore.ListByDossier(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, trail, 1)
	assert.Equal(t, audit.ActionDossierCreated, trail[0].Action)

	// Registering again yields the same dossier and no new code.
	again, againCode, err := f.svc.CreateOrGet(ctx, personID, "covid19")
	require.NoError(t, err)
	assert.Equal(t, d.ID, again.ID)
	assert.Empty(t, againCode)
}

func Test_CreateOrGet_UnknownDisease(t *testing.T) {
	f := newServiceFixture(t)

	_, _, err := f.svc.CreateOrGet(context.Background(), domain.NewPersonID(), "measles")
	require.Error(t, err)
	assert.Equal(t, dErrors.CodeNotFound, dErrors.Code(err))
}

func Test_VerifyRegistrationCode(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	personID := domain.NewPersonID()

	_, code, err := f.svc.CreateOrGet(ctx, personID, "covid19")
	require.NoError(t, err)

	assert.NoError(t, f.svc.VerifyRegistrationCode(ctx, personID, "covid19", code))
	assert.Error(t, f.svc.VerifyRegistrationCode(ctx, personID, "covid19", "AAAA-AAAA"))
}

func Test_Release_IdempotentRetry(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	d, _, err := f.svc.CreateOrGet(ctx, domain.NewPersonID(), "covid19")
	require.NoError(t, err)

	released, err := f.svc.Release(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusReleased, released.Status)

	retried, err := f.svc.Release(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusReleased, retried.Status)
}

func Test_ChooseSite(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	d, _, err := f.svc.CreateOrGet(ctx, domain.NewPersonID(), "covid19")
	require.NoError(t, err)
	_, err = f.svc.Release(ctx, d.ID)
	require.NoError(t, err)

	unknown := domain.NewSiteID()
	_, err = f.svc.ChooseSite(ctx, d.ID, &unknown, false)
	require.Error(t, err)
	assert.Equal(t, dErrors.CodeNotFound, dErrors.Code(err))

	chosen, err := f.svc.ChooseSite(ctx, d.ID, &f.siteID, false)
	require.NoError(t, err)
	assert.Equal(t, StatusSiteChosen, chosen.Status)
	require.NotNil(t, chosen.Booking.SiteID)
	assert.Equal(t, f.siteID, *chosen.Booking.SiteID)

	// Re-choosing is allowed while nothing is booked.
	rechosen, err := f.svc.ChooseSite(ctx, d.ID, &f.siteID, false)
	require.NoError(t, err)
	assert.Equal(t, StatusSiteChosen, rechosen.Status)
}

func Test_ChooseSite_UnmanagedSkipsBooking(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	d, _, err := f.svc.CreateOrGet(ctx, domain.NewPersonID(), "covid19")
	require.NoError(t, err)
	_, err = f.svc.Release(ctx, d.ID)
	require.NoError(t, err)

	unmanaged, err := f.svc.ChooseSite(ctx, d.ID, nil, true)
	require.NoError(t, err)
	assert.Equal(t, StatusBooked, unmanaged.Status)
	assert.True(t, unmanaged.Booking.UnmanagedSite)
	assert.Nil(t, unmanaged.Booking.Dose1AppointmentID)

	// Documentation proceeds without any appointment to consume.
	_, err = f.svc.ControlDose(ctx, d.ID, "")
	require.NoError(t, err)
	documented, err := f.svc.DocumentDose(ctx, d.ID, DoseFacts{
		Product:        "Comirnaty",
		AdministeredBy: "Dr. Huber",
		AdministeredAt: f.now,
	}, Authorization{Documenter: true})
	require.NoError(t, err)
	assert.Equal(t, StatusDose1Given, documented.Status)
}

func Test_BookPrimarySeries(t *testing.T) {
	f := newServiceFixture(t)
	d, slot1, slot2 := f.bookedDossier(t)

	assert.Equal(t, StatusBooked, d.Status)
	require.NotNil(t, d.Booking.Dose1AppointmentID)
	require.NotNil(t, d.Booking.Dose2AppointmentID)
	assert.False(t, d.Accelerated)
	assert.Equal(t, 1, f.reserved(t, slot1))
	assert.Equal(t, 1, f.reserved(t, slot2))
}

func Test_BookPrimarySeries_IntervalTooShort(t *testing.T) {
	f := newServiceFixture(t)
	d := f.siteChosenDossier(t)
	slot1 := f.addSlot(t, disease.PositionDose1, day0.AddDate(0, 0, 1), 10)
	slot2 := f.addSlot(t, disease.PositionDose2, day0.AddDate(0, 0, 20), 10)

	_, err := f.svc.BookPrimarySeries(context.Background(), d.ID, BookPrimarySeriesRequest{
		Slot1: slot1,
		Slot2: &slot2,
	})
	require.Error(t, err)
	assert.Equal(t, dErrors.CodeValidation, dErrors.Code(err))

	// Nothing was reserved and the dossier did not move.
	assert.Equal(t, 0, f.reserved(t, slot1))
	assert.Equal(t, 0, f.reserved(t, slot2))
	current, err := f.svc.Get(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSiteChosen, current.Status)
}

func Test_BookPrimarySeries_AcceleratedSchema(t *testing.T) {
	f := newServiceFixture(t)
	d := f.siteChosenDossier(t)
	slot1 := f.addSlot(t, disease.PositionDose1, day0.AddDate(0, 0, 1), 10)
	slot2 := f.addSlot(t, disease.PositionDose2, day0.AddDate(0, 0, 23), 10)

	// A 22-day gap fails the regular 28-day minimum...
	_, err := f.svc.BookPrimarySeries(context.Background(), d.ID, BookPrimarySeriesRequest{
		Slot1: slot1,
		Slot2: &slot2,
	})
	require.Error(t, err)
	assert.Equal(t, dErrors.CodeValidation, dErrors.Code(err))

	// ...but passes the 21-day accelerated one.
	booked, err := f.svc.BookPrimarySeries(context.Background(), d.ID, BookPrimarySeriesRequest{
		Slot1:       slot1,
		Slot2:       &slot2,
		Accelerated: true,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusBooked, booked.Status)
	assert.True(t, booked.Accelerated)
}

func Test_BookPrimarySeries_SecondSlotFullReleasesFirst(t *testing.T) {
	f := newServiceFixture(t)
	slot1 := f.addSlot(t, disease.PositionDose1, day0.AddDate(0, 0, 1), 10)
	slot2 := f.addSlot(t, disease.PositionDose2, day0.AddDate(0, 0, 31), 1)

	other := f.siteChosenDossier(t)
	_, err := f.svc.BookPrimarySeries(context.Background(), other.ID, BookPrimarySeriesRequest{
		Slot1: slot1,
		Slot2: &slot2,
	})
	require.NoError(t, err)

	d := f.siteChosenDossier(t)
	_, err = f.svc.BookPrimarySeries(context.Background(), d.ID, BookPrimarySeriesRequest{
		Slot1: slot1,
		Slot2: &slot2,
	})
	require.Error(t, err)
	assert.Equal(t, dErrors.CodeConflict, dErrors.Code(err))

	// The first reservation was rolled back; only the winner holds capacity.
	assert.Equal(t, 1, f.reserved(t, slot1))
	assert.Equal(t, 1, f.reserved(t, slot2))
	current, err := f.svc.Get(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSiteChosen, current.Status)
	assert.Nil(t, current.Booking.Dose1AppointmentID)
}

func Test_BookPrimarySeries_SingleDoseDisease(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	d, _, err := f.svc.CreateOrGet(ctx, domain.NewPersonID(), "herpeszoster")
	require.NoError(t, err)
	_, err = f.svc.Release(ctx, d.ID)
	require.NoError(t, err)
	_, err = f.svc.ChooseSite(ctx, d.ID, &f.siteID, false)
	require.NoError(t, err)

	slot1 := f.addSlot(t, disease.PositionDose1, day0.AddDate(0, 0, 1), 10)
	slot2 := f.addSlot(t, disease.PositionDose2, day0.AddDate(0, 0, 31), 10)

	_, err = f.svc.BookPrimarySeries(ctx, d.ID, BookPrimarySeriesRequest{Slot1: slot1, Slot2: &slot2})
	require.Error(t, err)
	assert.Equal(t, dErrors.CodeValidation, dErrors.Code(err))

	booked, err := f.svc.BookPrimarySeries(ctx, d.ID, BookPrimarySeriesRequest{Slot1: slot1})
	require.NoError(t, err)
	assert.Equal(t, StatusBooked, booked.Status)

	// A single-dose series completes with the first documentation.
	_, err = f.svc.ControlDose(ctx, d.ID, "")
	require.NoError(t, err)
	documented, err := f.svc.DocumentDose(ctx, d.ID, DoseFacts{
		Product:        "Shingrix",
		AdministeredBy: "Dr. Huber",
		AdministeredAt: day0.AddDate(0, 0, 1),
	}, Authorization{Documenter: true})
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, documented.Status)
}

func Test_DocumentDose_FullSeries(t *testing.T) {
	f := newServiceFixture(t)
	dose2At := day0.AddDate(0, 0, 31)
	d := f.completeDossier(t, dose2At)

	require.Len(t, d.Doses, 2)
	assert.Equal(t, 1, d.Doses[0].Sequence)
	assert.Equal(t, 2, d.Doses[1].Sequence)
	assert.False(t, d.Doses[0].CertificateEligible)
	assert.True(t, d.Doses[1].CertificateEligible)
	assert.Equal(t, StatusDose2Controlled, d.Doses[1].StatusBefore)

	// Both appointments were consumed.
	assert.Nil(t, d.Booking.Dose1AppointmentID)
	assert.Nil(t, d.Booking.Dose2AppointmentID)

	require.NotNil(t, d.Protection)
	assert.True(t, d.Protection.CompletedPrimarySeries)
	require.NotNil(t, d.Protection.NextDoseEligibleFrom)
	assert.Equal(t, dose2At.AddDate(0, 0, 180), *d.Protection.NextDoseEligibleFrom)

	var triggered int
	for _, event := range f.publisher.Events() {
		if event.Kind == EventCertificateTriggered {
			triggered++
			assert.Equal(t, 2, event.DoseSequence)
		}
	}
	assert.Equal(t, 1, triggered)
}

func Test_DocumentDose_RequiresDocumenter(t *testing.T) {
	f := newServiceFixture(t)
	d, _, _ := f.bookedDossier(t)
	_, err := f.svc.ControlDose(context.Background(), d.ID, "")
	require.NoError(t, err)

	_, err = f.svc.DocumentDose(context.Background(), d.ID, DoseFacts{
		Product:        "Comirnaty",
		AdministeredBy: "Dr. Huber",
		AdministeredAt: f.now,
	}, Authorization{})
	require.Error(t, err)
	assert.Equal(t, dErrors.CodeForbidden, dErrors.Code(err))
}

func Test_DeleteDose_RevertsToStatusBefore(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	d := f.completeDossier(t, day0.AddDate(0, 0, 31))
	auth := Authorization{Documenter: true}

	reverted, err := f.svc.DeleteDose(ctx, d.ID, 2, auth)
	require.NoError(t, err)
	assert.Equal(t, StatusDose2Controlled, reverted.Status)
	require.Len(t, reverted.Doses, 1)
	require.NotNil(t, reverted.Protection)
	assert.False(t, reverted.Protection.CompletedPrimarySeries)

	var revoked int
	for _, event := range f.publisher.Events() {
		if event.Kind == EventCertificateRevoked {
			revoked++
			assert.Equal(t, 2, event.DoseSequence)
		}
	}
	assert.Equal(t, 1, revoked)

	// Re-documenting reuses the freed sequence number.
	redone, err := f.svc.DocumentDose(ctx, d.ID, DoseFacts{
		Product:        "Spikevax",
		AdministeredBy: "Dr. Maier",
		AdministeredAt: day0.AddDate(0, 0, 31),
	}, auth)
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, redone.Status)
	require.Len(t, redone.Doses, 2)
	assert.Equal(t, 2, redone.Doses[1].Sequence)
	assert.Equal(t, "Spikevax", redone.Doses[1].Product)
}

func Test_DeleteDose_OnlyLatestSequence(t *testing.T) {
	f := newServiceFixture(t)
	d := f.completeDossier(t, day0.AddDate(0, 0, 31))

	_, err := f.svc.DeleteDose(context.Background(), d.ID, 1, Authorization{Documenter: true})
	require.Error(t, err)
	assert.Equal(t, dErrors.CodeValidation, dErrors.Code(err))
}

func Test_CorrectDose_ReissuesCertificate(t *testing.T) {
	f := newServiceFixture(t)
	d := f.completeDossier(t, day0.AddDate(0, 0, 31))

	corrected, err := f.svc.CorrectDose(context.Background(), d.ID, 2, DoseFacts{
		Product:        "Spikevax",
		AdministeredBy: "Dr. Huber",
		AdministeredAt: day0.AddDate(0, 0, 32),
	}, Authorization{Documenter: true})
	require.NoError(t, err)
	assert.Equal(t, "Spikevax", corrected.Doses[1].Product)
	require.NotNil(t, corrected.Protection.NextDoseEligibleFrom)
	assert.Equal(t, day0.AddDate(0, 0, 32+180), *corrected.Protection.NextDoseEligibleFrom)

	var revoked, triggered bool
	for _, event := range f.publisher.Events() {
		if event.DoseSequence != 2 {
			continue
		}
		switch event.Kind {
		case EventCertificateRevoked:
			revoked = true
		case EventCertificateTriggered:
			triggered = true
		}
	}
	assert.True(t, revoked)
	assert.True(t, triggered)
}

func Test_WaiveSecondDose_ReleasesAppointment(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	d, _, slot2 := f.bookedDossier(t)
	auth := Authorization{Documenter: true}

	_, err := f.svc.ControlDose(ctx, d.ID, "")
	require.NoError(t, err)
	_, err = f.svc.DocumentDose(ctx, d.ID, DoseFacts{
		Product:        "Comirnaty",
		AdministeredBy: "Dr. Huber",
		AdministeredAt: day0.AddDate(0, 0, 1),
	}, auth)
	require.NoError(t, err)

	_, err = f.svc.WaiveSecondDose(ctx, d.ID, "", nil)
	require.Error(t, err)
	assert.Equal(t, dErrors.CodeInvalidInput, dErrors.Code(err))

	waived, err := f.svc.WaiveSecondDose(ctx, d.ID, "patient refused", nil)
	require.NoError(t, err)
	assert.Equal(t, StatusRefusedDose2, waived.Status)
	assert.Equal(t, "patient refused", waived.WaiveReason)
	assert.Nil(t, waived.Booking.Dose2AppointmentID)
	assert.Equal(t, 0, f.reserved(t, slot2))
	require.Len(t, waived.Booking.Cancelled, 1)

	resumed, err := f.svc.ResumeSecondDose(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDose1Given, resumed.Status)
	assert.Empty(t, resumed.WaiveReason)
}

func Test_WaiveSecondDose_WithRecoveryCompletes(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	d, _, _ := f.bookedDossier(t)
	auth := Authorization{Documenter: true}

	// A recovery alone does not complete the series...
	positiveAt := day0.AddDate(0, 0, -60)
	_, err := f.svc.AcceptExternalProof(ctx, d.ID, ExternalProof{
		Recovered:      true,
		PositiveTestAt: &positiveAt,
	}, auth)
	require.NoError(t, err)

	_, err = f.svc.ControlDose(ctx, d.ID, "")
	require.NoError(t, err)
	_, err = f.svc.DocumentDose(ctx, d.ID, DoseFacts{
		Product:        "Comirnaty",
		AdministeredBy: "Dr. Huber",
		AdministeredAt: day0.AddDate(0, 0, 1),
	}, auth)
	require.NoError(t, err)

	// ...but one dose plus the recovery does, so waiving closes it.
	waived, err := f.svc.WaiveSecondDose(ctx, d.ID, "recovered, one dose suffices", nil)
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, waived.Status)
	assert.True(t, waived.Protection.CompletedPrimarySeries)
}

func Test_AcceptExternalProof_CompletesSeries(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	d, _, err := f.svc.CreateOrGet(ctx, domain.NewPersonID(), "covid19")
	require.NoError(t, err)
	_, err = f.svc.Release(ctx, d.ID)
	require.NoError(t, err)

	lastDoseAt := day0.AddDate(0, 0, -30)
	proven, err := f.svc.AcceptExternalProof(ctx, d.ID, ExternalProof{
		Doses:      2,
		LastDoseAt: &lastDoseAt,
	}, Authorization{Documenter: true})
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, proven.Status)
	assert.True(t, proven.Protection.CompletedPrimarySeries)
	require.NotNil(t, proven.Protection.NextDoseEligibleFrom)
	assert.Equal(t, lastDoseAt.AddDate(0, 0, 180), *proven.Protection.NextDoseEligibleFrom)
}

func Test_AcceptExternalProof_RequiresDocumenter(t *testing.T) {
	f := newServiceFixture(t)
	d, _, err := f.svc.CreateOrGet(context.Background(), domain.NewPersonID(), "covid19")
	require.NoError(t, err)

	lastDoseAt := day0.AddDate(0, 0, -30)
	_, err = f.svc.AcceptExternalProof(context.Background(), d.ID, ExternalProof{
		Doses:      2,
		LastDoseAt: &lastDoseAt,
	}, Authorization{})
	require.Error(t, err)
	assert.Equal(t, dErrors.CodeForbidden, dErrors.Code(err))
}

func Test_BookBooster_EligibilityGate(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	dose2At := day0.AddDate(0, 0, 31)
	d := f.completeDossier(t, dose2At)

	_, err := f.svc.ReleaseBooster(ctx, d.ID)
	require.NoError(t, err)
	_, err = f.svc.ChooseSite(ctx, d.ID, &f.siteID, false)
	require.NoError(t, err)

	early := f.addSlot(t, disease.PositionBooster, dose2At.AddDate(0, 0, 100), 10)
	_, err = f.svc.BookBooster(ctx, d.ID, early, false, Authorization{})
	require.Error(t, err)
	assert.Equal(t, dErrors.CodeValidation, dErrors.Code(err))

	due := f.addSlot(t, disease.PositionBooster, dose2At.AddDate(0, 0, 200), 10)
	booked, err := f.svc.BookBooster(ctx, d.ID, due, false, Authorization{})
	require.NoError(t, err)
	assert.Equal(t, StatusBoosterBooked, booked.Status)
	require.Len(t, booked.Entries, 1)
	assert.Equal(t, 3, booked.Entries[0].Sequence)
	require.NotNil(t, booked.Entries[0].AppointmentID)
}

func Test_BookBooster_SelfPayerWindow(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	dose2At := day0.AddDate(0, 0, 31)
	d := f.completeDossier(t, dose2At)

	_, err := f.svc.ReleaseBooster(ctx, d.ID)
	require.NoError(t, err)
	_, err = f.svc.ChooseSite(ctx, d.ID, &f.siteID, false)
	require.NoError(t, err)

	// 130 days after dose 2: before the 180-day eligibility, inside the
	// 60-day self-payer lead.
	slot := f.addSlot(t, disease.PositionBooster, dose2At.AddDate(0, 0, 130), 10)
	_, err = f.svc.BookBooster(ctx, d.ID, slot, false, Authorization{})
	require.Error(t, err)

	booked, err := f.svc.BookBooster(ctx, d.ID, slot, true, Authorization{})
	require.NoError(t, err)
	assert.Equal(t, StatusBoosterBooked, booked.Status)
	assert.True(t, booked.SelfPayer)
}

func Test_BookBooster_OverrideBypassesEligibility(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	dose2At := day0.AddDate(0, 0, 31)
	d := f.completeDossier(t, dose2At)

	_, err := f.svc.ReleaseBooster(ctx, d.ID)
	require.NoError(t, err)
	_, err = f.svc.ChooseSite(ctx, d.ID, &f.siteID, false)
	require.NoError(t, err)

	early := f.addSlot(t, disease.PositionBooster, dose2At.AddDate(0, 0, 10), 10)
	booked, err := f.svc.BookBooster(ctx, d.ID, early, false, Authorization{OverrideEligibility: true})
	require.NoError(t, err)
	assert.Equal(t, StatusBoosterBooked, booked.Status)
}

func Test_BoosterCycle_DocumentAndRerelease(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	dose2At := day0.AddDate(0, 0, 31)
	d := f.completeDossier(t, dose2At)
	auth := Authorization{Documenter: true}

	_, err := f.svc.ReleaseBooster(ctx, d.ID)
	require.NoError(t, err)
	_, err = f.svc.ChooseSite(ctx, d.ID, &f.siteID, false)
	require.NoError(t, err)
	boosterAt := dose2At.AddDate(0, 0, 200)
	slot := f.addSlot(t, disease.PositionBooster, boosterAt, 10)
	_, err = f.svc.BookBooster(ctx, d.ID, slot, false, Authorization{})
	require.NoError(t, err)

	_, err = f.svc.ControlDose(ctx, d.ID, "no contraindications")
	require.NoError(t, err)
	given, err := f.svc.DocumentDose(ctx, d.ID, DoseFacts{
		Product:        "Comirnaty",
		AdministeredBy: "Dr. Huber",
		AdministeredAt: boosterAt,
	}, auth)
	require.NoError(t, err)
	assert.Equal(t, StatusBoosterGiven, given.Status)
	require.Len(t, given.Entries, 1)
	require.NotNil(t, given.Entries[0].Dose)
	assert.Equal(t, 3, given.Entries[0].Dose.Sequence)
	assert.True(t, given.Entries[0].Dose.CertificateEligible)
	assert.NotNil(t, given.Entries[0].ControlledAt)
	assert.Equal(t, 0, f.reserved(t, slot))

	// The next cycle opens from the given booster.
	next, err := f.svc.ReleaseBooster(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusBoosterReleased, next.Status)
	require.NotNil(t, next.Protection.NextDoseEligibleFrom)
	assert.Equal(t, boosterAt.AddDate(0, 0, 180), *next.Protection.NextDoseEligibleFrom)
}

func Test_Rebook_RevalidatesInterval(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	d, _, slot2 := f.bookedDossier(t)

	// Day 51 puts the gap at 50 days, past the 42-day maximum.
	tooLate := f.addSlot(t, disease.PositionDose2, day0.AddDate(0, 0, 51), 10)
	_, err := f.svc.Rebook(ctx, d.ID, disease.PositionDose2, tooLate)
	require.Error(t, err)
	assert.Equal(t, dErrors.CodeValidation, dErrors.Code(err))
	assert.Equal(t, 1, f.reserved(t, slot2))

	ok := f.addSlot(t, disease.PositionDose2, day0.AddDate(0, 0, 36), 10)
	moved, err := f.svc.Rebook(ctx, d.ID, disease.PositionDose2, ok)
	require.NoError(t, err)
	assert.Equal(t, StatusBooked, moved.Status)
	assert.Equal(t, 0, f.reserved(t, slot2))
	assert.Equal(t, 1, f.reserved(t, ok))
}

func Test_Rebook_TargetFullKeepsOldReservation(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	d, _, slot2 := f.bookedDossier(t)

	full := f.addSlot(t, disease.PositionDose2, day0.AddDate(0, 0, 36), 1)
	other := f.siteChosenDossier(t)
	otherSlot1 := f.addSlot(t, disease.PositionDose1, day0.AddDate(0, 0, 2), 10)
	_, err := f.svc.BookPrimarySeries(ctx, other.ID, BookPrimarySeriesRequest{
		Slot1: otherSlot1,
		Slot2: &full,
	})
	require.NoError(t, err)

	_, err = f.svc.Rebook(ctx, d.ID, disease.PositionDose2, full)
	require.Error(t, err)
	assert.Equal(t, dErrors.CodeConflict, dErrors.Code(err))

	current, err := f.svc.Get(ctx, d.ID)
	require.NoError(t, err)
	require.NotNil(t, current.Booking.Dose2AppointmentID)
	assert.Equal(t, 1, f.reserved(t, slot2))
}

func Test_CancelBooking(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	d, slot1, slot2 := f.bookedDossier(t)

	cancelled, err := f.svc.CancelBooking(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSiteChosen, cancelled.Status)
	assert.Nil(t, cancelled.Booking.Dose1AppointmentID)
	assert.Nil(t, cancelled.Booking.Dose2AppointmentID)
	assert.Len(t, cancelled.Booking.Cancelled, 2)
	assert.Equal(t, 0, f.reserved(t, slot1))
	assert.Equal(t, 0, f.reserved(t, slot2))
}

func Test_Delete_ReleasesAppointments(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	d, slot1, slot2 := f.bookedDossier(t)

	deleted, err := f.svc.Delete(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDeleted, deleted.Status)
	assert.Equal(t, 0, f.reserved(t, slot1))
	assert.Equal(t, 0, f.reserved(t, slot2))

	_, err = f.svc.Release(ctx, d.ID)
	require.Error(t, err)
	assert.Equal(t, dErrors.CodeValidation, dErrors.Code(err))

	// A deleted dossier no longer blocks a fresh registration.
	fresh, code, err := f.svc.CreateOrGet(ctx, d.PersonID, "covid19")
	require.NoError(t, err)
	assert.NotEqual(t, d.ID, fresh.ID)
	assert.NotEmpty(t, code)
}

func Test_ReleaseBooster_UnsupportedDisease(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	registry := disease.NewRegistry()
	require.NoError(t, registry.Register(disease.Rules{
		DiseaseID:        "oneshot",
		Name:             "One Shot",
		PrimaryDoses:     1,
		ValidityDuration: 365 * 24 * time.Hour,
	}))
	f.svc.diseases = registry

	d, _, err := f.svc.CreateOrGet(ctx, domain.NewPersonID(), "oneshot")
	require.NoError(t, err)

	_, err = f.svc.ReleaseBooster(ctx, d.ID)
	require.Error(t, err)
	assert.Equal(t, dErrors.CodeValidation, dErrors.Code(err))
}

func Test_CreateOrGet_AuditCarriesActor(t *testing.T) {
	f := newServiceFixture(t)
	actor := domain.NewPersonID()
	ctx := requestcontext.WithPersonID(context.Background(), actor)

	d, _, err := f.svc.CreateOrGet(ctx, actor, "covid19")
	require.NoError(t, err)

	trail, err := f.auditStore.ListByDossier(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, trail, 1)
	assert.Equal(t, actor.String(), trail[0].ActorID)

	// Without an authenticated person the actor stays empty.
	other, _, err := f.svc.CreateOrGet(context.Background(), domain.NewPersonID(), "covid19")
	require.NoError(t, err)
	trail, err = f.auditStore.ListByDossier(context.Background(), other.ID)
	require.NoError(t, err)
	require.Len(t, trail, 1)
	assert.Empty(t, trail[0].ActorID)
}

func Test_WaiveSecondDose_RecoveryClaimedAtWaive(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	d, _, slot2 := f.bookedDossier(t)
	auth := Authorization{Documenter: true}

	_, err := f.svc.ControlDose(ctx, d.ID, "")
	require.NoError(t, err)
	_, err = f.svc.DocumentDose(ctx, d.ID, DoseFacts{
		Product:        "Comirnaty",
		AdministeredBy: "Dr. Huber",
		AdministeredAt: day0.AddDate(0, 0, 1),
	}, auth)
	require.NoError(t, err)

	// A claim without a positive-test date is rejected before anything moves.
	_, err = f.svc.WaiveSecondDose(ctx, d.ID, "recovered after dose 1", &RecoveryClaim{})
	require.Error(t, err)
	assert.Equal(t, dErrors.CodeInvalidInput, dErrors.Code(err))

	positiveAt := day0.AddDate(0, 0, -60)
	waived, err := f.svc.WaiveSecondDose(ctx, d.ID, "recovered after dose 1", &RecoveryClaim{
		PositiveTestAt: positiveAt,
		AcceptedBy:     "Dr. Huber",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, waived.Status)
	assert.True(t, waived.Protection.CompletedPrimarySeries)
	require.NotNil(t, waived.ExternalProof)
	assert.True(t, waived.ExternalProof.Recovered)
	require.NotNil(t, waived.ExternalProof.PositiveTestAt)
	assert.Equal(t, positiveAt, *waived.ExternalProof.PositiveTestAt)
	assert.Equal(t, "Dr. Huber", waived.ExternalProof.AcceptedBy)
	assert.Nil(t, waived.Booking.Dose2AppointmentID)
	assert.Equal(t, 0, f.reserved(t, slot2))
}

func Test_DocumentDose_UnmanagedBoosterEligibilityGate(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	dose2At := day0.AddDate(0, 0, 31)
	d := f.completeDossier(t, dose2At)

	_, err := f.svc.ReleaseBooster(ctx, d.ID)
	require.NoError(t, err)
	booked, err := f.svc.ChooseSite(ctx, d.ID, nil, true)
	require.NoError(t, err)
	require.Equal(t, StatusBoosterBooked, booked.Status)
	_, err = f.svc.ControlDose(ctx, d.ID, "")
	require.NoError(t, err)

	// 100 days after dose 2 is well before the 180-day eligibility date.
	early := DoseFacts{
		Product:        "Comirnaty",
		AdministeredBy: "Dr. Huber",
		AdministeredAt: dose2At.AddDate(0, 0, 100),
	}
	_, err = f.svc.DocumentDose(ctx, d.ID, early, Authorization{Documenter: true})
	require.Error(t, err)
	assert.Equal(t, dErrors.CodeValidation, dErrors.Code(err))

	given, err := f.svc.DocumentDose(ctx, d.ID, early, Authorization{Documenter: true, OverrideEligibility: true})
	require.NoError(t, err)
	assert.Equal(t, StatusBoosterGiven, given.Status)
}

func Test_BookPrimarySeries_RetryConflicts(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	d, slot1, slot2 := f.bookedDossier(t)

	_, err := f.svc.BookPrimarySeries(ctx, d.ID, BookPrimarySeriesRequest{
		Slot1: slot1,
		Slot2: &slot2,
	})
	require.Error(t, err)
	assert.Equal(t, dErrors.CodeConflict, dErrors.Code(err))
	assert.Equal(t, 1, f.reserved(t, slot1))
	assert.Equal(t, 1, f.reserved(t, slot2))
}

func Test_BookBooster_RetryConflicts(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	dose2At := day0.AddDate(0, 0, 31)
	d := f.completeDossier(t, dose2At)

	_, err := f.svc.ReleaseBooster(ctx, d.ID)
	require.NoError(t, err)
	_, err = f.svc.ChooseSite(ctx, d.ID, &f.siteID, false)
	require.NoError(t, err)

	slot := f.addSlot(t, disease.PositionBooster, dose2At.AddDate(0, 0, 200), 10)
	_, err = f.svc.BookBooster(ctx, d.ID, slot, false, Authorization{})
	require.NoError(t, err)

	_, err = f.svc.BookBooster(ctx, d.ID, slot, false, Authorization{})
	require.Error(t, err)
	assert.Equal(t, dErrors.CodeConflict, dErrors.Code(err))
	assert.Equal(t, 1, f.reserved(t, slot))
}

func Test_BookBooster_SelfPayerUnsupportedDisease(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	d, _, err := f.svc.CreateOrGet(ctx, domain.NewPersonID(), "herpeszoster")
	require.NoError(t, err)
	_, err = f.svc.Release(ctx, d.ID)
	require.NoError(t, err)
	_, err = f.svc.ChooseSite(ctx, d.ID, &f.siteID, false)
	require.NoError(t, err)

	doseAt := day0.AddDate(0, 0, 1)
	slot1 := f.addSlot(t, disease.PositionDose1, doseAt, 10)
	_, err = f.svc.BookPrimarySeries(ctx, d.ID, BookPrimarySeriesRequest{Slot1: slot1})
	require.NoError(t, err)
	_, err = f.svc.ControlDose(ctx, d.ID, "")
	require.NoError(t, err)
	done, err := f.svc.DocumentDose(ctx, d.ID, DoseFacts{
		Product:        "Shingrix",
		AdministeredBy: "Dr. Huber",
		AdministeredAt: doseAt,
	}, Authorization{Documenter: true})
	require.NoError(t, err)
	require.Equal(t, StatusComplete, done.Status)

	_, err = f.svc.ReleaseBooster(ctx, d.ID)
	require.NoError(t, err)
	_, err = f.svc.ChooseSite(ctx, d.ID, &f.siteID, false)
	require.NoError(t, err)

	// herpeszoster carries no self-payer track, so the flag is rejected even
	// for an otherwise eligible slot.
	slot := f.addSlot(t, disease.PositionBooster, doseAt.AddDate(0, 0, 70), 10)
	_, err = f.svc.BookBooster(ctx, d.ID, slot, true, Authorization{})
	require.Error(t, err)
	assert.Equal(t, dErrors.CodeValidation, dErrors.Code(err))

	booked, err := f.svc.BookBooster(ctx, d.ID, slot, false, Authorization{})
	require.NoError(t, err)
	assert.Equal(t, StatusBoosterBooked, booked.Status)
}
