package booking

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"impfportal/internal/booking/metrics"
	"impfportal/internal/disease"
	"impfportal/internal/slots"
	"impfportal/pkg/domain"
	dErrors "impfportal/pkg/domain-errors"
	"impfportal/pkg/platform/sentinel"
)

var bookingTracer = otel.Tracer("impfportal/booking")

// Coordinator is the only component that reserves or releases slot capacity.
// Its operations are designed to run inside the caller's transactional unit:
// when the dossier service wraps a booking transition in RunInTx, the slot
// increment and the appointment row commit or roll back together.
type Coordinator struct {
	slots        slots.Store
	appointments AppointmentStore
	cache        SearchCache
	holds        HoldStore
	holdTTL      time.Duration
	metrics      *metrics.Metrics
	logger       *slog.Logger
	now          func() time.Time
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithSearchCache attaches a next-free-slot cache.
func WithSearchCache(cache SearchCache) CoordinatorOption {
	return func(c *Coordinator) { c.cache = cache }
}

// WithHolds attaches a soft-hold store with the given hold expiry.
func WithHolds(holds HoldStore, ttl time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		c.holds = holds
		c.holdTTL = ttl
	}
}

// WithMetrics attaches booking metrics.
func WithMetrics(m *metrics.Metrics) CoordinatorOption {
	return func(c *Coordinator) { c.metrics = m }
}

// WithClock overrides the clock for tests.
func WithClock(now func() time.Time) CoordinatorOption {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

func NewCoordinator(slotStore slots.Store, appointments AppointmentStore, logger *slog.Logger, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		slots:        slotStore,
		appointments: appointments,
		logger:       logger,
		now:          time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Reserve books one capacity unit of the slot for the dossier's dose
// position. The capacity check and increment happen in one atomic statement
// at the store, so concurrent reservations for the last unit produce exactly
// one winner; the loser gets CodeConflict.
func (c *Coordinator) Reserve(ctx context.Context, dossierID domain.DossierID, slotID domain.SlotID, position disease.DosePosition) (*Appointment, error) {
	ctx, span := bookingTracer.Start(ctx, "booking.reserve")
	defer span.End()
	span.SetAttributes(
		attribute.String("dossier_id", dossierID.String()),
		attribute.String("slot_id", slotID.String()),
		attribute.String("position", string(position)),
	)

	slot, err := c.slots.GetSlot(ctx, slotID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			c.metrics.IncrementReservation("rejected")
			return nil, dErrors.New(dErrors.CodeNotFound, "slot not found")
		}
		return nil, err
	}
	if slot.Position != position {
		c.metrics.IncrementReservation("rejected")
		return nil, dErrors.Newf(dErrors.CodeValidation, "slot serves position %s, not %s", slot.Position, position)
	}

	if _, err := c.appointments.FindByDossierAndPosition(ctx, dossierID, position); err == nil {
		c.metrics.IncrementReservation("conflict")
		return nil, dErrors.Newf(dErrors.CodeConflict, "dossier already holds an appointment for position %s", position)
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, err
	}

	if err := c.slots.ReserveCapacity(ctx, slotID); err != nil {
		switch {
		case errors.Is(err, sentinel.ErrSlotFull):
			c.metrics.IncrementReservation("slot_full")
			return nil, dErrors.New(dErrors.CodeConflict, "slot is fully booked")
		case errors.Is(err, sentinel.ErrNotFound):
			c.metrics.IncrementReservation("rejected")
			return nil, dErrors.New(dErrors.CodeNotFound, "slot not found")
		default:
			return nil, err
		}
	}

	appointment := &Appointment{
		ID:        domain.NewAppointmentID(),
		DossierID: dossierID,
		SlotID:    slot.ID,
		SiteID:    slot.SiteID,
		Position:  slot.Position,
		StartAt:   slot.StartAt,
		CreatedAt: c.now(),
	}
	if err := c.appointments.Create(ctx, appointment); err != nil {
		// Undo the increment so a lost create race cannot leak capacity.
		if releaseErr := c.slots.ReleaseCapacity(ctx, slotID); releaseErr != nil {
			c.logger.Error("failed to release capacity after create failure",
				"slot_id", slotID.String(), "error", releaseErr)
		}
		if errors.Is(err, sentinel.ErrConflict) {
			c.metrics.IncrementReservation("conflict")
			return nil, dErrors.New(dErrors.CodeConflict, "concurrent booking won this slot")
		}
		return nil, err
	}

	c.metrics.IncrementReservation("reserved")
	c.invalidateSearch(ctx, slot.SiteID, slot.Position)
	c.releaseHold(ctx, slotID, dossierID)
	return appointment, nil
}

// Appointment returns a live appointment by ID.
func (c *Coordinator) Appointment(ctx context.Context, appointmentID domain.AppointmentID) (*Appointment, error) {
	appointment, err := c.appointments.Get(ctx, appointmentID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "appointment not found")
		}
		return nil, err
	}
	return appointment, nil
}

// Release frees the appointment's capacity unit. Releasing an appointment
// that no longer exists is a no-op, so retries and cancel-all sweeps are
// always safe.
func (c *Coordinator) Release(ctx context.Context, appointmentID domain.AppointmentID) error {
	ctx, span := bookingTracer.Start(ctx, "booking.release")
	defer span.End()
	span.SetAttributes(attribute.String("appointment_id", appointmentID.String()))

	appointment, err := c.appointments.Get(ctx, appointmentID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil
		}
		return err
	}

	if err := c.appointments.Delete(ctx, appointmentID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil
		}
		return err
	}
	if err := c.slots.ReleaseCapacity(ctx, appointment.SlotID); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeInvariantViolation, "appointment released but slot capacity not freed")
	}

	c.invalidateSearch(ctx, appointment.SiteID, appointment.Position)
	return nil
}

// ReleaseAllForDossier frees every live appointment of the dossier.
func (c *Coordinator) ReleaseAllForDossier(ctx context.Context, dossierID domain.DossierID) error {
	appointments, err := c.appointments.ListByDossier(ctx, dossierID)
	if err != nil {
		return err
	}
	for _, appointment := range appointments {
		if err := c.Release(ctx, appointment.ID); err != nil {
			return err
		}
	}
	return nil
}

// Rebook moves a reservation to a new slot, all-or-nothing. The new slot is
// reserved before the old one is touched: if the new slot is full the old
// appointment survives untouched, so the caller never loses a reservation to
// a failed move.
func (c *Coordinator) Rebook(ctx context.Context, dossierID domain.DossierID, oldAppointmentID domain.AppointmentID, newSlotID domain.SlotID) (*Appointment, error) {
	ctx, span := bookingTracer.Start(ctx, "booking.rebook")
	defer span.End()
	span.SetAttributes(
		attribute.String("dossier_id", dossierID.String()),
		attribute.String("old_appointment_id", oldAppointmentID.String()),
		attribute.String("new_slot_id", newSlotID.String()),
	)

	old, err := c.appointments.Get(ctx, oldAppointmentID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "appointment not found")
		}
		return nil, err
	}
	if old.DossierID != dossierID {
		return nil, dErrors.New(dErrors.CodeValidation, "appointment belongs to a different dossier")
	}

	newSlot, err := c.slots.GetSlot(ctx, newSlotID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "slot not found")
		}
		return nil, err
	}
	if newSlot.Position != old.Position {
		return nil, dErrors.Newf(dErrors.CodeValidation, "slot serves position %s, not %s", newSlot.Position, old.Position)
	}

	if err := c.slots.ReserveCapacity(ctx, newSlotID); err != nil {
		switch {
		case errors.Is(err, sentinel.ErrSlotFull):
			c.metrics.IncrementReservation("slot_full")
			return nil, dErrors.New(dErrors.CodeConflict, "slot is fully booked")
		case errors.Is(err, sentinel.ErrNotFound):
			return nil, dErrors.New(dErrors.CodeNotFound, "slot not found")
		default:
			return nil, err
		}
	}

	// The new unit is held; now swap the appointment records.
	if err := c.appointments.Delete(ctx, oldAppointmentID); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		if releaseErr := c.slots.ReleaseCapacity(ctx, newSlotID); releaseErr != nil {
			c.logger.Error("failed to release capacity after rebook failure",
				"slot_id", newSlotID.String(), "error", releaseErr)
		}
		return nil, err
	}
	if err := c.slots.ReleaseCapacity(ctx, old.SlotID); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInvariantViolation, "old slot capacity not freed during rebook")
	}

	replacement := &Appointment{
		ID:        domain.NewAppointmentID(),
		DossierID: dossierID,
		SlotID:    newSlot.ID,
		SiteID:    newSlot.SiteID,
		Position:  newSlot.Position,
		StartAt:   newSlot.StartAt,
		CreatedAt: c.now(),
	}
	if err := c.appointments.Create(ctx, replacement); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvariantViolation, "replacement appointment not recorded during rebook")
	}

	c.metrics.IncrementReservation("reserved")
	c.invalidateSearch(ctx, newSlot.SiteID, newSlot.Position)
	c.invalidateSearch(ctx, old.SiteID, old.Position)
	return replacement, nil
}

// FindNextFreeSlot returns the earliest free slot at the site for the dose
// position, starting at or after notBefore. With a paired slot (picking dose 2
// relative to a chosen dose 1) the result must additionally fall inside the
// disease's inter-dose interval window. Results may come from the search
// cache; they are for display and a subsequent Reserve re-checks capacity.
func (c *Coordinator) FindNextFreeSlot(ctx context.Context, siteID domain.SiteID, position disease.DosePosition, notBefore time.Time, paired *slots.Slot, rules disease.Rules, accelerated bool) (*slots.Slot, error) {
	ctx, span := bookingTracer.Start(ctx, "booking.find_next_free_slot")
	defer span.End()
	span.SetAttributes(
		attribute.String("site_id", siteID.String()),
		attribute.String("position", string(position)),
	)

	// Paired searches depend on the paired slot's time, so only the simple
	// lookup is cacheable.
	if paired == nil && c.cache != nil {
		if slot, ok := c.cache.Get(ctx, siteID, position); ok && !slot.StartAt.Before(notBefore) {
			c.metrics.IncrementCacheLookup("hit")
			return slot, nil
		}
		c.metrics.IncrementCacheLookup("miss")
	}

	earliest := notBefore
	var latest time.Time
	if paired != nil {
		minStart := paired.StartAt.Add(rules.EffectiveMinInterval(accelerated))
		if minStart.After(earliest) {
			earliest = minStart
		}
		if rules.MaxInterval > 0 {
			latest = paired.StartAt.Add(rules.MaxInterval)
		}
	}

	free, err := c.slots.ListFreeSlots(ctx, siteID, position, earliest)
	if err != nil {
		return nil, err
	}
	for _, slot := range free {
		if !latest.IsZero() && slot.StartAt.After(latest) {
			break
		}
		if held, err := c.isHeld(ctx, slot.ID); err == nil && held {
			continue
		}
		if paired == nil && c.cache != nil {
			c.cache.Set(ctx, siteID, position, slot)
		}
		return slot, nil
	}
	return nil, dErrors.New(dErrors.CodeNotFound, "no free slot matches the requested window")
}

// Hold takes a short-lived soft reservation on a slot while the citizen
// completes the flow.
func (c *Coordinator) Hold(ctx context.Context, slotID domain.SlotID, dossierID domain.DossierID) (bool, error) {
	if c.holds == nil {
		return true, nil
	}
	acquired, err := c.holds.Acquire(ctx, slotID, dossierID, c.holdTTL)
	if err != nil {
		return false, err
	}
	if acquired {
		c.metrics.IncrementHold("acquired")
	} else {
		c.metrics.IncrementHold("contended")
	}
	return acquired, nil
}

func (c *Coordinator) isHeld(ctx context.Context, slotID domain.SlotID) (bool, error) {
	if c.holds == nil {
		return false, nil
	}
	_, held, err := c.holds.HeldBy(ctx, slotID)
	return held, err
}

func (c *Coordinator) invalidateSearch(ctx context.Context, siteID domain.SiteID, position disease.DosePosition) {
	if c.cache != nil {
		c.cache.Invalidate(ctx, siteID, position)
	}
}

func (c *Coordinator) releaseHold(ctx context.Context, slotID domain.SlotID, dossierID domain.DossierID) {
	if c.holds == nil {
		return
	}
	if err := c.holds.Release(ctx, slotID, dossierID); err != nil {
		c.logger.Warn("failed to release soft hold", "slot_id", slotID.String(), "error", err)
	}
}
