package dossier

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"impfportal/internal/disease"
	"impfportal/internal/eligibility"
	"impfportal/internal/slots"
	"impfportal/pkg/domain"
	dErrors "impfportal/pkg/domain-errors"
	"impfportal/pkg/platform/audit"
	"impfportal/pkg/platform/sentinel"
)

// BookPrimarySeriesRequest books the primary-series appointments in one unit
// of work. Slot2 is required for two-dose diseases and forbidden for
// single-dose ones. Accelerated opts into the shortened inter-dose schema.
type BookPrimarySeriesRequest struct {
	Slot1       domain.SlotID
	Slot2       *domain.SlotID
	Accelerated bool
}

// BookPrimarySeries reserves the dossier's primary-series slots. Both
// reservations succeed or neither does: if the second slot cannot be
// reserved, the first is released again and the dossier stays in site_chosen.
func (s *Service) BookPrimarySeries(ctx context.Context, dossierID domain.DossierID, req BookPrimarySeriesRequest) (*Dossier, error) {
	ctx, span := dossierTracer.Start(ctx, "dossier.book_primary_series")
	defer span.End()
	span.SetAttributes(attribute.String("dossier_id", dossierID.String()))

	var result *Dossier
	err := s.tx.RunInTx(ctx, dossierID.String(), func(ctx context.Context) error {
		dossier, err := s.load(ctx, dossierID)
		if err != nil {
			return err
		}
		rules, err := s.diseases.Resolve(dossier.DiseaseID)
		if err != nil {
			return err
		}
		if dossier.Status.InBoosterTrack() {
			s.metrics.IncrementTransition(string(EventBook), "rejected")
			return dErrors.New(dErrors.CodeValidation, "booster appointments are booked through the booster operation")
		}
		next, err := Next(dossier.Status, EventBook)
		if err != nil {
			if dossier.Status.HasLiveBooking() {
				s.metrics.IncrementTransition(string(EventBook), "conflict")
				return dErrors.New(dErrors.CodeConflict, "dossier already holds booked appointments")
			}
			s.metrics.IncrementTransition(string(EventBook), "rejected")
			return err
		}
		if dossier.Booking.UnmanagedSite {
			return dErrors.New(dErrors.CodeValidation, "unmanaged-site dossiers have no appointments to book")
		}

		if rules.HasSecondDose() && req.Slot2 == nil {
			return dErrors.Newf(dErrors.CodeValidation, "disease %s requires two primary-series appointments", dossier.DiseaseID)
		}
		if !rules.HasSecondDose() && req.Slot2 != nil {
			return dErrors.Newf(dErrors.CodeValidation, "disease %s has a single-dose primary series", dossier.DiseaseID)
		}

		slot1, err := s.loadSiteSlot(ctx, dossier, req.Slot1, disease.PositionDose1)
		if err != nil {
			return err
		}
		var slot2 *slots.Slot
		if req.Slot2 != nil {
			slot2, err = s.loadSiteSlot(ctx, dossier, *req.Slot2, disease.PositionDose2)
			if err != nil {
				return err
			}
			if err := checkDoseInterval(slot1.StartAt, slot2.StartAt, rules, req.Accelerated); err != nil {
				return err
			}
		}

		appointment1, err := s.booking.Reserve(ctx, dossierID, slot1.ID, disease.PositionDose1)
		if err != nil {
			s.metrics.IncrementTransition(string(EventBook), "conflict")
			return err
		}
		dossier.Booking.Dose1AppointmentID = &appointment1.ID
		if slot2 != nil {
			appointment2, err := s.booking.Reserve(ctx, dossierID, slot2.ID, disease.PositionDose2)
			if err != nil {
				// Give the first unit back; a half-booked series never
				// reaches the store.
				if releaseErr := s.booking.Release(ctx, appointment1.ID); releaseErr != nil {
					return releaseErr
				}
				dossier.Booking.Dose1AppointmentID = nil
				s.metrics.IncrementTransition(string(EventBook), "conflict")
				return err
			}
			dossier.Booking.Dose2AppointmentID = &appointment2.ID
		}

		previous := dossier.Status
		dossier.Status = next
		dossier.Accelerated = req.Accelerated
		dossier.UpdatedAt = s.now()
		if err := s.store.Update(ctx, dossier); err != nil {
			return err
		}
		detail := map[string]string{"slot1": req.Slot1.String()}
		if req.Slot2 != nil {
			detail["slot2"] = req.Slot2.String()
		}
		if req.Accelerated {
			detail["accelerated"] = "true"
		}
		if err := s.recordAudit(ctx, dossier, audit.ActionBookingCreated, detail); err != nil {
			return err
		}
		s.metrics.IncrementTransition(string(EventBook), "applied")
		result = dossier
		s.publishStatusChanged(ctx, dossier, previous)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// BookBooster reserves a booster appointment. The slot must start no earlier
// than the computed eligibility date (or the self-payer date when the person
// pays themselves), unless the caller carries the eligibility override.
func (s *Service) BookBooster(ctx context.Context, dossierID domain.DossierID, slotID domain.SlotID, selfPayer bool, auth Authorization) (*Dossier, error) {
	ctx, span := dossierTracer.Start(ctx, "dossier.book_booster")
	defer span.End()
	span.SetAttributes(attribute.String("dossier_id", dossierID.String()))

	var result *Dossier
	err := s.tx.RunInTx(ctx, dossierID.String(), func(ctx context.Context) error {
		dossier, err := s.load(ctx, dossierID)
		if err != nil {
			return err
		}
		rules, err := s.diseases.Resolve(dossier.DiseaseID)
		if err != nil {
			return err
		}
		if !dossier.Status.InBoosterTrack() {
			s.metrics.IncrementTransition(string(EventBook), "rejected")
			return dErrors.Newf(dErrors.CodeValidation,
				"illegal transition: %s does not accept %s", dossier.Status, EventBook)
		}
		if !rules.BoosterSupported {
			s.metrics.IncrementTransition(string(EventBook), "rejected")
			return dErrors.Newf(dErrors.CodeValidation, "disease %s does not support booster doses", dossier.DiseaseID)
		}
		if selfPayer && !rules.SelfPayerSupported {
			s.metrics.IncrementTransition(string(EventBook), "rejected")
			return dErrors.Newf(dErrors.CodeValidation, "disease %s has no self-payer booster track", dossier.DiseaseID)
		}
		next, err := Next(dossier.Status, EventBook)
		if err != nil {
			if dossier.Status.HasLiveBooking() {
				s.metrics.IncrementTransition(string(EventBook), "conflict")
				return dErrors.New(dErrors.CodeConflict, "dossier already holds booked appointments")
			}
			s.metrics.IncrementTransition(string(EventBook), "rejected")
			return err
		}

		slot, err := s.loadSiteSlot(ctx, dossier, slotID, disease.PositionBooster)
		if err != nil {
			return err
		}
		if !auth.OverrideEligibility {
			if err := checkBoosterEligibility(dossier.Protection, slot.StartAt, selfPayer); err != nil {
				s.metrics.IncrementTransition(string(EventBook), "rejected")
				return err
			}
		}

		appointment, err := s.booking.Reserve(ctx, dossierID, slot.ID, disease.PositionBooster)
		if err != nil {
			s.metrics.IncrementTransition(string(EventBook), "conflict")
			return err
		}
		dossier.Entries = append(dossier.Entries, DoseEntry{
			Sequence:      dossier.nextSequence(),
			AppointmentID: &appointment.ID,
		})

		previous := dossier.Status
		dossier.Status = next
		dossier.SelfPayer = selfPayer
		dossier.UpdatedAt = s.now()
		if err := s.store.Update(ctx, dossier); err != nil {
			return err
		}
		if err := s.recordAudit(ctx, dossier, audit.ActionBookingCreated, map[string]string{
			"slot":       slotID.String(),
			"self_payer": boolString(selfPayer),
			"override":   boolString(auth.OverrideEligibility),
		}); err != nil {
			return err
		}
		s.metrics.IncrementTransition(string(EventBook), "applied")
		result = dossier
		s.publishStatusChanged(ctx, dossier, previous)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Rebook moves one of the dossier's appointments to a new slot. Rebooking a
// primary-series dose re-validates the inter-dose interval against the other
// dose's appointment; the old reservation survives any failure.
func (s *Service) Rebook(ctx context.Context, dossierID domain.DossierID, position disease.DosePosition, newSlotID domain.SlotID) (*Dossier, error) {
	ctx, span := dossierTracer.Start(ctx, "dossier.rebook")
	defer span.End()
	span.SetAttributes(
		attribute.String("dossier_id", dossierID.String()),
		attribute.String("position", string(position)),
	)

	var result *Dossier
	err := s.tx.RunInTx(ctx, dossierID.String(), func(ctx context.Context) error {
		dossier, err := s.load(ctx, dossierID)
		if err != nil {
			return err
		}
		if !dossier.Status.HasLiveBooking() {
			return dErrors.Newf(dErrors.CodeValidation, "dossier in status %s has no booking to move", dossier.Status)
		}
		rules, err := s.diseases.Resolve(dossier.DiseaseID)
		if err != nil {
			return err
		}

		oldRef, entry := s.appointmentRef(dossier, position)
		if oldRef == nil {
			return dErrors.Newf(dErrors.CodeNotFound, "no appointment booked for position %s", position)
		}

		newSlot, err := s.loadSiteSlot(ctx, dossier, newSlotID, position)
		if err != nil {
			return err
		}
		if pairedPos, ok := pairedPosition(position); ok {
			if pairedRef := dossier.Booking.AppointmentRef(pairedPos); pairedRef != nil {
				paired, err := s.booking.Appointment(ctx, *pairedRef)
				if err != nil {
					return err
				}
				start1, start2 := newSlot.StartAt, paired.StartAt
				if position == disease.PositionDose2 {
					start1, start2 = paired.StartAt, newSlot.StartAt
				}
				if err := checkDoseInterval(start1, start2, rules, dossier.Accelerated); err != nil {
					return err
				}
			}
		}

		replacement, err := s.booking.Rebook(ctx, dossierID, *oldRef, newSlotID)
		if err != nil {
			return err
		}
		if entry != nil {
			entry.AppointmentID = &replacement.ID
		} else {
			dossier.Booking.setAppointmentRef(position, &replacement.ID)
		}
		dossier.UpdatedAt = s.now()
		if err := s.store.Update(ctx, dossier); err != nil {
			return err
		}
		if err := s.recordAudit(ctx, dossier, audit.ActionBookingRebooked, map[string]string{
			"position": string(position),
			"new_slot": newSlotID.String(),
		}); err != nil {
			return err
		}
		result = dossier
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CancelBooking releases every live appointment and returns the dossier to
// site selection. Released appointments are kept on the cancelled list.
func (s *Service) CancelBooking(ctx context.Context, dossierID domain.DossierID) (*Dossier, error) {
	ctx, span := dossierTracer.Start(ctx, "dossier.cancel_booking")
	defer span.End()
	span.SetAttributes(attribute.String("dossier_id", dossierID.String()))

	var result *Dossier
	err := s.tx.RunInTx(ctx, dossierID.String(), func(ctx context.Context) error {
		dossier, err := s.load(ctx, dossierID)
		if err != nil {
			return err
		}
		next, err := Next(dossier.Status, EventCancelBooking)
		if err != nil {
			s.metrics.IncrementTransition(string(EventCancelBooking), "rejected")
			return err
		}

		if err := s.cancelAppointments(ctx, dossier); err != nil {
			return err
		}

		previous := dossier.Status
		dossier.Status = next
		dossier.UpdatedAt = s.now()
		if err := s.store.Update(ctx, dossier); err != nil {
			return err
		}
		if err := s.recordAudit(ctx, dossier, audit.ActionBookingCancelled, nil); err != nil {
			return err
		}
		s.metrics.IncrementTransition(string(EventCancelBooking), "applied")
		result = dossier
		s.publishStatusChanged(ctx, dossier, previous)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ControlDose records the pre-vaccination control interview for the dose the
// dossier is currently waiting on.
func (s *Service) ControlDose(ctx context.Context, dossierID domain.DossierID, note string) (*Dossier, error) {
	ctx, span := dossierTracer.Start(ctx, "dossier.control_dose")
	defer span.End()
	span.SetAttributes(attribute.String("dossier_id", dossierID.String()))

	var result *Dossier
	err := s.tx.RunInTx(ctx, dossierID.String(), func(ctx context.Context) error {
		dossier, err := s.load(ctx, dossierID)
		if err != nil {
			return err
		}
		next, err := Next(dossier.Status, EventControl)
		if err != nil {
			s.metrics.IncrementTransition(string(EventControl), "rejected")
			return err
		}
		if dossier.Status.InBoosterTrack() {
			entry := currentEntry(dossier)
			if entry == nil {
				return dErrors.New(dErrors.CodeInvariantViolation, "booster booking without a dose entry")
			}
			controlledAt := s.now()
			entry.ControlledAt = &controlledAt
			entry.ControlNote = note
		}

		previous := dossier.Status
		dossier.Status = next
		dossier.UpdatedAt = s.now()
		if err := s.store.Update(ctx, dossier); err != nil {
			return err
		}
		if err := s.recordAudit(ctx, dossier, audit.ActionDoseControlled, nil); err != nil {
			return err
		}
		s.metrics.IncrementTransition(string(EventControl), "applied")
		result = dossier
		s.publishStatusChanged(ctx, dossier, previous)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// loadSiteSlot fetches the slot and checks it belongs to the dossier's chosen
// site and serves the expected dose position.
func (s *Service) loadSiteSlot(ctx context.Context, dossier *Dossier, slotID domain.SlotID, position disease.DosePosition) (*slots.Slot, error) {
	slot, err := s.sites.GetSlot(ctx, slotID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "slot not found")
		}
		return nil, err
	}
	if slot.Position != position {
		return nil, dErrors.Newf(dErrors.CodeValidation, "slot serves position %s, not %s", slot.Position, position)
	}
	if dossier.Booking.SiteID != nil && slot.SiteID != *dossier.Booking.SiteID {
		return nil, dErrors.New(dErrors.CodeValidation, "slot belongs to a different site than the dossier chose")
	}
	return slot, nil
}

// appointmentRef resolves the live appointment reference for the position,
// returning the booster entry it lives on when applicable.
func (s *Service) appointmentRef(dossier *Dossier, position disease.DosePosition) (*domain.AppointmentID, *DoseEntry) {
	if position == disease.PositionBooster {
		if entry := currentEntry(dossier); entry != nil {
			return entry.AppointmentID, entry
		}
		return nil, nil
	}
	return dossier.Booking.AppointmentRef(position), nil
}

// cancelAppointments releases every live appointment and moves its reference
// onto the cancelled list.
func (s *Service) cancelAppointments(ctx context.Context, dossier *Dossier) error {
	cancelledAt := s.now()
	record := func(id domain.AppointmentID, position disease.DosePosition) error {
		appointment, err := s.booking.Appointment(ctx, id)
		if err != nil {
			if dErrors.HasCode(err, dErrors.CodeNotFound) {
				return nil
			}
			return err
		}
		if err := s.booking.Release(ctx, id); err != nil {
			return err
		}
		dossier.Booking.Cancelled = append(dossier.Booking.Cancelled, CancelledAppointment{
			AppointmentID: id,
			SlotID:        appointment.SlotID,
			Position:      position,
			StartAt:       appointment.StartAt,
			CancelledAt:   cancelledAt,
		})
		return nil
	}

	if ref := dossier.Booking.Dose1AppointmentID; ref != nil {
		if err := record(*ref, disease.PositionDose1); err != nil {
			return err
		}
		dossier.Booking.Dose1AppointmentID = nil
	}
	if ref := dossier.Booking.Dose2AppointmentID; ref != nil {
		if err := record(*ref, disease.PositionDose2); err != nil {
			return err
		}
		dossier.Booking.Dose2AppointmentID = nil
	}
	if entry := currentEntry(dossier); entry != nil && entry.AppointmentID != nil {
		if err := record(*entry.AppointmentID, disease.PositionBooster); err != nil {
			return err
		}
		entry.AppointmentID = nil
	}
	return nil
}

// currentEntry returns the latest booster entry still waiting for its dose.
func currentEntry(dossier *Dossier) *DoseEntry {
	for i := len(dossier.Entries) - 1; i >= 0; i-- {
		if dossier.Entries[i].Dose == nil {
			return &dossier.Entries[i]
		}
	}
	return nil
}

// pairedPosition returns the other primary-series position, if any.
func pairedPosition(position disease.DosePosition) (disease.DosePosition, bool) {
	switch position {
	case disease.PositionDose1:
		return disease.PositionDose2, true
	case disease.PositionDose2:
		return disease.PositionDose1, true
	}
	return "", false
}

// checkDoseInterval enforces the inter-dose window between the two
// primary-series appointments.
func checkDoseInterval(start1, start2 time.Time, rules disease.Rules, accelerated bool) error {
	gap := start2.Sub(start1)
	minGap := rules.EffectiveMinInterval(accelerated)
	if gap < minGap {
		return dErrors.Newf(dErrors.CodeValidation,
			"second appointment is %s after the first; at least %s required", gap, minGap)
	}
	if rules.MaxInterval > 0 && gap > rules.MaxInterval {
		return dErrors.Newf(dErrors.CodeValidation,
			"second appointment is %s after the first; at most %s allowed", gap, rules.MaxInterval)
	}
	return nil
}

// checkBoosterEligibility gates a booster slot on the protection record.
func checkBoosterEligibility(protection *eligibility.ProtectionRecord, startAt time.Time, selfPayer bool) error {
	if protection == nil {
		return dErrors.New(dErrors.CodeValidation, "no protection record; booster eligibility unknown")
	}
	from := protection.NextDoseEligibleFrom
	if selfPayer && protection.SelfPayerEligibleFrom != nil {
		from = protection.SelfPayerEligibleFrom
	}
	if from == nil {
		return dErrors.New(dErrors.CodeValidation, "no further dose is foreseen for this dossier")
	}
	if startAt.Before(*from) {
		return dErrors.Newf(dErrors.CodeValidation,
			"slot starts %s, before the eligibility date %s",
			startAt.Format(time.RFC3339), from.Format(time.RFC3339))
	}
	return nil
}
