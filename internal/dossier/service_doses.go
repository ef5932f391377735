package dossier

import (
	"context"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"impfportal/internal/disease"
	"impfportal/pkg/domain"
	dErrors "impfportal/pkg/domain-errors"
	"impfportal/pkg/platform/audit"
)

// DocumentDose records the dose the dossier is currently controlled for. The
// appointment backing the dose is consumed, the protection record is
// recomputed, and a qualifying dose triggers certificate issuance.
func (s *Service) DocumentDose(ctx context.Context, dossierID domain.DossierID, facts DoseFacts, auth Authorization) (*Dossier, error) {
	ctx, span := dossierTracer.Start(ctx, "dossier.document_dose")
	defer span.End()
	span.SetAttributes(attribute.String("dossier_id", dossierID.String()))

	if !auth.Documenter {
		return nil, dErrors.New(dErrors.CodeForbidden, "documenting doses requires the documenter role")
	}
	if err := facts.Validate(); err != nil {
		return nil, err
	}

	var result *Dossier
	var certificateSequence int
	err := s.tx.RunInTx(ctx, dossierID.String(), func(ctx context.Context) error {
		dossier, err := s.load(ctx, dossierID)
		if err != nil {
			return err
		}
		rules, err := s.diseases.Resolve(dossier.DiseaseID)
		if err != nil {
			return err
		}
		if err := checkProduct(rules, facts.Product); err != nil {
			return err
		}

		position, event, err := documentationStep(dossier.Status, rules)
		if err != nil {
			s.metrics.IncrementTransition(string(EventDoseGiven), "rejected")
			return err
		}
		next, err := Next(dossier.Status, event)
		if err != nil {
			s.metrics.IncrementTransition(string(event), "rejected")
			return err
		}
		// Unmanaged-site boosters skip the booking-time gate, so the
		// eligibility date is enforced here against the administration time.
		if position == disease.PositionBooster && !auth.OverrideEligibility {
			selfPayer := facts.SelfPayer || dossier.SelfPayer
			if err := checkBoosterEligibility(dossier.Protection, facts.AdministeredAt, selfPayer); err != nil {
				s.metrics.IncrementTransition(string(event), "rejected")
				return err
			}
		}

		if err := s.consumeAppointment(ctx, dossier, position); err != nil {
			return err
		}

		dose := AdministeredDose{
			Sequence:       dossier.nextSequence(),
			Position:       position,
			Product:        facts.Product,
			AdministeredBy: facts.AdministeredBy,
			Responsible:    facts.Responsible,
			AdministeredAt: facts.AdministeredAt,
			PrimarySeries:  position != disease.PositionBooster,
			SelfPayer:      facts.SelfPayer,
			Pregnancy:      facts.Pregnancy,
			StatusBefore:   dossier.Status,
		}

		previous := dossier.Status
		dossier.Status = next

		var recorded *AdministeredDose
		if position == disease.PositionBooster {
			entry := currentEntry(dossier)
			if entry == nil {
				return dErrors.New(dErrors.CodeInvariantViolation, "booster dose without a dose entry")
			}
			dose.Sequence = entry.Sequence
			entry.Dose = &dose
			recorded = entry.Dose
		} else {
			dossier.Doses = append(dossier.Doses, dose)
			recorded = &dossier.Doses[len(dossier.Doses)-1]
		}
		s.recompute(dossier, rules, "dose_documented")
		recorded.CertificateEligible = position == disease.PositionBooster ||
			(dossier.Protection != nil && dossier.Protection.CompletedPrimarySeries)
		dossier.UpdatedAt = s.now()

		if err := s.store.Update(ctx, dossier); err != nil {
			return err
		}
		if err := s.recordAudit(ctx, dossier, audit.ActionDoseDocumented, map[string]string{
			"sequence": strconv.Itoa(recorded.Sequence),
			"position": string(position),
			"product":  facts.Product,
		}); err != nil {
			return err
		}
		if recorded.CertificateEligible {
			if err := s.recordAudit(ctx, dossier, audit.ActionCertificateTriggered, map[string]string{
				"sequence": strconv.Itoa(recorded.Sequence),
			}); err != nil {
				return err
			}
			certificateSequence = recorded.Sequence
		}
		s.metrics.IncrementTransition(string(event), "applied")
		result = dossier
		s.publishStatusChanged(ctx, dossier, previous)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if certificateSequence > 0 {
		s.publishCertificate(ctx, result, EventCertificateTriggered, certificateSequence)
	}
	return result, nil
}

// CorrectDose replaces the recorded facts of an administered dose. The
// certificate for the dose is revoked and reissued from the corrected facts.
func (s *Service) CorrectDose(ctx context.Context, dossierID domain.DossierID, sequence int, facts DoseFacts, auth Authorization) (*Dossier, error) {
	ctx, span := dossierTracer.Start(ctx, "dossier.correct_dose")
	defer span.End()
	span.SetAttributes(attribute.String("dossier_id", dossierID.String()))

	if !auth.Documenter {
		return nil, dErrors.New(dErrors.CodeForbidden, "correcting doses requires the documenter role")
	}
	if err := facts.Validate(); err != nil {
		return nil, err
	}

	var result *Dossier
	var reissue bool
	err := s.tx.RunInTx(ctx, dossierID.String(), func(ctx context.Context) error {
		dossier, err := s.load(ctx, dossierID)
		if err != nil {
			return err
		}
		rules, err := s.diseases.Resolve(dossier.DiseaseID)
		if err != nil {
			return err
		}
		if err := checkProduct(rules, facts.Product); err != nil {
			return err
		}
		dose, ok := dossier.findDose(sequence)
		if !ok {
			return dErrors.Newf(dErrors.CodeNotFound, "no administered dose with sequence %d", sequence)
		}

		dose.Product = facts.Product
		dose.AdministeredBy = facts.AdministeredBy
		dose.Responsible = facts.Responsible
		dose.AdministeredAt = facts.AdministeredAt
		dose.SelfPayer = facts.SelfPayer
		dose.Pregnancy = facts.Pregnancy
		s.recompute(dossier, rules, "dose_corrected")
		dossier.UpdatedAt = s.now()

		if err := s.store.Update(ctx, dossier); err != nil {
			return err
		}
		if err := s.recordAudit(ctx, dossier, audit.ActionDoseCorrected, map[string]string{
			"sequence": strconv.Itoa(sequence),
			"product":  facts.Product,
		}); err != nil {
			return err
		}
		reissue = dose.CertificateEligible
		result = dossier
		return nil
	})
	if err != nil {
		return nil, err
	}
	if reissue {
		s.publishCertificate(ctx, result, EventCertificateRevoked, sequence)
		s.publishCertificate(ctx, result, EventCertificateTriggered, sequence)
	}
	return result, nil
}

// DeleteDose removes a mistakenly documented dose. Only the most recent dose
// can go, which keeps sequence numbers gapless; the dossier reverts to the
// status it held before the dose was documented.
func (s *Service) DeleteDose(ctx context.Context, dossierID domain.DossierID, sequence int, auth Authorization) (*Dossier, error) {
	ctx, span := dossierTracer.Start(ctx, "dossier.delete_dose")
	defer span.End()
	span.SetAttributes(attribute.String("dossier_id", dossierID.String()))

	if !auth.Documenter {
		return nil, dErrors.New(dErrors.CodeForbidden, "deleting doses requires the documenter role")
	}

	var result *Dossier
	var revoke bool
	err := s.tx.RunInTx(ctx, dossierID.String(), func(ctx context.Context) error {
		dossier, err := s.load(ctx, dossierID)
		if err != nil {
			return err
		}
		rules, err := s.diseases.Resolve(dossier.DiseaseID)
		if err != nil {
			return err
		}
		dose, ok := dossier.findDose(sequence)
		if !ok {
			return dErrors.Newf(dErrors.CodeNotFound, "no administered dose with sequence %d", sequence)
		}
		if sequence != dossier.nextSequence()-1 {
			return dErrors.New(dErrors.CodeValidation, "only the most recently documented dose can be deleted")
		}
		if !CanTransition(dossier.Status, EventDoseReverted) {
			s.metrics.IncrementTransition(string(EventDoseReverted), "rejected")
			return dErrors.Newf(dErrors.CodeValidation,
				"dose cannot be deleted once the dossier moved to %s", dossier.Status)
		}

		revoke = dose.CertificateEligible
		previous := dossier.Status
		dossier.Status = dose.StatusBefore
		removeDose(dossier, sequence)
		s.recompute(dossier, rules, "dose_deleted")
		dossier.UpdatedAt = s.now()

		if err := s.store.Update(ctx, dossier); err != nil {
			return err
		}
		if err := s.recordAudit(ctx, dossier, audit.ActionDoseDeleted, map[string]string{
			"sequence": strconv.Itoa(sequence),
		}); err != nil {
			return err
		}
		s.metrics.IncrementTransition(string(EventDoseReverted), "applied")
		result = dossier
		s.publishStatusChanged(ctx, dossier, previous)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if revoke {
		s.publishCertificate(ctx, result, EventCertificateRevoked, sequence)
	}
	return result, nil
}

// WaiveSecondDose records the person's refusal of the second dose. A recovery
// claimed alongside the waive is stored as an external proof first; when the
// recovery (or a previously accepted proof) completes the series, waiving
// closes it instead of parking it. Either way the second appointment is
// released.
func (s *Service) WaiveSecondDose(ctx context.Context, dossierID domain.DossierID, reason string, recovery *RecoveryClaim) (*Dossier, error) {
	ctx, span := dossierTracer.Start(ctx, "dossier.waive_second_dose")
	defer span.End()
	span.SetAttributes(attribute.String("dossier_id", dossierID.String()))

	if reason == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "a waive reason is required")
	}
	if recovery != nil {
		if err := recovery.Validate(); err != nil {
			return nil, err
		}
	}

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

		if recovery != nil {
			positiveAt := recovery.PositiveTestAt
			proof := dossier.ExternalProof
			if proof == nil {
				proof = &ExternalProof{}
				dossier.ExternalProof = proof
			}
			proof.Recovered = true
			proof.PositiveTestAt = &positiveAt
			proof.AcceptedAt = s.now()
			proof.AcceptedBy = recovery.AcceptedBy
		}

		event := EventWaive
		s.recompute(dossier, rules, "waive_second_dose")
		if dossier.Protection != nil && dossier.Protection.CompletedPrimarySeries {
			event = EventWaiveComplete
		}
		next, err := Next(dossier.Status, event)
		if err != nil {
			s.metrics.IncrementTransition(string(event), "rejected")
			return err
		}

		if ref := dossier.Booking.Dose2AppointmentID; ref != nil {
			if err := s.cancelAppointmentRef(ctx, dossier, *ref, disease.PositionDose2); err != nil {
				return err
			}
			dossier.Booking.Dose2AppointmentID = nil
		}

		previous := dossier.Status
		dossier.Status = next
		dossier.WaiveReason = reason
		dossier.UpdatedAt = s.now()
		if err := s.store.Update(ctx, dossier); err != nil {
			return err
		}
		if err := s.recordAudit(ctx, dossier, audit.ActionSecondDoseWaived, map[string]string{
			"reason":    reason,
			"recovered": boolString(recovery != nil),
			"completes": boolString(event == EventWaiveComplete),
		}); err != nil {
			return err
		}
		s.metrics.IncrementTransition(string(event), "applied")
		result = dossier
		s.publishStatusChanged(ctx, dossier, previous)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ResumeSecondDose reverses a waive, putting the dossier back on the
// two-dose track so a new second appointment can be booked.
func (s *Service) ResumeSecondDose(ctx context.Context, dossierID domain.DossierID) (*Dossier, error) {
	ctx, span := dossierTracer.Start(ctx, "dossier.resume_second_dose")
	defer span.End()
	span.SetAttributes(attribute.String("dossier_id", dossierID.String()))

	var result *Dossier
	err := s.tx.RunInTx(ctx, dossierID.String(), func(ctx context.Context) error {
		dossier, err := s.load(ctx, dossierID)
		if err != nil {
			return err
		}
		next, err := Next(dossier.Status, EventResume)
		if err != nil {
			s.metrics.IncrementTransition(string(EventResume), "rejected")
			return err
		}
		previous := dossier.Status
		dossier.Status = next
		dossier.WaiveReason = ""
		dossier.UpdatedAt = s.now()
		if err := s.store.Update(ctx, dossier); err != nil {
			return err
		}
		if err := s.recordAudit(ctx, dossier, audit.ActionSecondDoseResumed, nil); err != nil {
			return err
		}
		s.metrics.IncrementTransition(string(EventResume), "applied")
		result = dossier
		s.publishStatusChanged(ctx, dossier, previous)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// AcceptExternalProof stores externally asserted doses or a recovery. The
// proof feeds eligibility immediately; when it completes the primary series
// the dossier jumps to complete and any pending second appointment is
// released.
func (s *Service) AcceptExternalProof(ctx context.Context, dossierID domain.DossierID, proof ExternalProof, auth Authorization) (*Dossier, error) {
	ctx, span := dossierTracer.Start(ctx, "dossier.accept_external_proof")
	defer span.End()
	span.SetAttributes(attribute.String("dossier_id", dossierID.String()))

	if !auth.Documenter {
		return nil, dErrors.New(dErrors.CodeForbidden, "accepting external proofs requires the documenter role")
	}
	if err := proof.Validate(); err != nil {
		return nil, err
	}

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

		proof.AcceptedAt = s.now()
		dossier.ExternalProof = &proof
		s.recompute(dossier, rules, "external_proof")

		previous := dossier.Status
		completes := dossier.Protection != nil && dossier.Protection.CompletedPrimarySeries
		if completes && CanTransition(dossier.Status, EventExternalProof) {
			if ref := dossier.Booking.Dose2AppointmentID; ref != nil {
				if err := s.cancelAppointmentRef(ctx, dossier, *ref, disease.PositionDose2); err != nil {
					return err
				}
				dossier.Booking.Dose2AppointmentID = nil
			}
			next, err := Next(dossier.Status, EventExternalProof)
			if err != nil {
				return err
			}
			dossier.Status = next
			s.metrics.IncrementTransition(string(EventExternalProof), "applied")
		}
		dossier.UpdatedAt = s.now()

		if err := s.store.Update(ctx, dossier); err != nil {
			return err
		}
		if err := s.recordAudit(ctx, dossier, audit.ActionExternalProofAccepted, map[string]string{
			"doses":     strconv.Itoa(proof.Doses),
			"recovered": boolString(proof.Recovered),
		}); err != nil {
			return err
		}
		result = dossier
		if dossier.Status != previous {
			s.publishStatusChanged(ctx, dossier, previous)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// documentationStep maps the dossier's controlled status to the dose position
// being documented and the transition it fires.
func documentationStep(status Status, rules disease.Rules) (disease.DosePosition, Event, error) {
	switch status {
	case StatusDose1Controlled:
		if rules.HasSecondDose() {
			return disease.PositionDose1, EventDoseGiven, nil
		}
		return disease.PositionDose1, EventFinalDoseGiven, nil
	case StatusDose2Controlled:
		return disease.PositionDose2, EventFinalDoseGiven, nil
	case StatusBoosterControlled:
		return disease.PositionBooster, EventDoseGiven, nil
	}
	return "", "", dErrors.Newf(dErrors.CodeValidation,
		"dossier in status %s has no controlled dose to document", status)
}

// consumeAppointment releases the appointment backing the documented dose.
// Unmanaged-site dossiers carry no appointments, so there is nothing to do.
func (s *Service) consumeAppointment(ctx context.Context, dossier *Dossier, position disease.DosePosition) error {
	if dossier.Booking.UnmanagedSite {
		return nil
	}
	ref, entry := s.appointmentRef(dossier, position)
	if ref == nil {
		// Already consumed, e.g. re-documenting after a deleted dose.
		return nil
	}
	if err := s.booking.Release(ctx, *ref); err != nil {
		return err
	}
	if entry != nil {
		entry.AppointmentID = nil
	} else {
		dossier.Booking.setAppointmentRef(position, nil)
	}
	return nil
}

// cancelAppointmentRef releases one appointment and records it on the
// cancelled list.
func (s *Service) cancelAppointmentRef(ctx context.Context, dossier *Dossier, id domain.AppointmentID, position disease.DosePosition) error {
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
		CancelledAt:   s.now(),
	})
	return nil
}

// removeDose drops the dose with the sequence from the dossier, keeping the
// booster entry alive so the cycle can be re-documented.
func removeDose(dossier *Dossier, sequence int) {
	for i := range dossier.Doses {
		if dossier.Doses[i].Sequence == sequence {
			dossier.Doses = append(dossier.Doses[:i], dossier.Doses[i+1:]...)
			return
		}
	}
	for i := range dossier.Entries {
		if dossier.Entries[i].Dose != nil && dossier.Entries[i].Dose.Sequence == sequence {
			dossier.Entries[i].Dose = nil
			return
		}
	}
}

// checkProduct enforces the disease's allowed-product list.
func checkProduct(rules disease.Rules, product string) error {
	if len(rules.AllowedProducts) == 0 {
		return nil
	}
	for _, allowed := range rules.AllowedProducts {
		if strings.EqualFold(allowed, product) {
			return nil
		}
	}
	return dErrors.Newf(dErrors.CodeValidation, "product %s is not approved for %s", product, rules.DiseaseID)
}
