package dossier

import (
	"strconv"
	"time"

	"impfportal/internal/disease"
	"impfportal/internal/eligibility"
	"impfportal/pkg/domain"
	dErrors "impfportal/pkg/domain-errors"
)

// Dossier is the per-person, per-disease vaccination record. Exactly one
// live (non-deleted) dossier exists per (person, disease); the stores enforce
// that.
type Dossier struct {
	ID        domain.DossierID `json:"id"`
	PersonID  domain.PersonID  `json:"person_id"`
	DiseaseID domain.DiseaseID `json:"disease_id"`
	Status    Status           `json:"status"`

	Booking BookingRecord `json:"booking"`

	// Doses holds the administered primary-series doses, ordered by sequence.
	Doses []AdministeredDose `json:"doses,omitempty"`

	// Entries holds one record per booster cycle, sequence numbers continuing
	// past the primary series without gaps.
	Entries []DoseEntry `json:"entries,omitempty"`

	Protection    *eligibility.ProtectionRecord `json:"protection,omitempty"`
	ExternalProof *ExternalProof                `json:"external_proof,omitempty"`

	// Accelerated marks the shortened primary-series schema; SelfPayer marks
	// a person paying for early boosters themselves.
	Accelerated bool `json:"accelerated,omitempty"`
	SelfPayer   bool `json:"self_payer,omitempty"`

	// WaiveReason is set while the second dose is waived.
	WaiveReason string `json:"waive_reason,omitempty"`

	// RegistrationCodeHash is the bcrypt hash of the code handed out at
	// registration; the plaintext is never stored.
	RegistrationCodeHash string `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BookingRecord is the dossier's embedded booking state: up to two
// primary-series appointment references, the chosen site, and the audit list
// of cancelled appointments.
type BookingRecord struct {
	SiteID *domain.SiteID `json:"site_id,omitempty"`
	// UnmanagedSite marks a person vaccinated at a site outside this
	// platform's booking; no appointments are managed for them.
	UnmanagedSite bool `json:"unmanaged_site,omitempty"`

	Dose1AppointmentID *domain.AppointmentID `json:"dose1_appointment_id,omitempty"`
	Dose2AppointmentID *domain.AppointmentID `json:"dose2_appointment_id,omitempty"`

	Cancelled []CancelledAppointment `json:"cancelled,omitempty"`
}

// CancelledAppointment is a display/audit record of a released reservation.
type CancelledAppointment struct {
	AppointmentID domain.AppointmentID `json:"appointment_id"`
	SlotID        domain.SlotID        `json:"slot_id"`
	Position      disease.DosePosition `json:"position"`
	StartAt       time.Time            `json:"start_at"`
	CancelledAt   time.Time            `json:"cancelled_at"`
}

// AppointmentRef returns the primary-series appointment reference for the
// position, or nil.
func (b *BookingRecord) AppointmentRef(position disease.DosePosition) *domain.AppointmentID {
	switch position {
	case disease.PositionDose1:
		return b.Dose1AppointmentID
	case disease.PositionDose2:
		return b.Dose2AppointmentID
	}
	return nil
}

func (b *BookingRecord) setAppointmentRef(position disease.DosePosition, id *domain.AppointmentID) {
	switch position {
	case disease.PositionDose1:
		b.Dose1AppointmentID = id
	case disease.PositionDose2:
		b.Dose2AppointmentID = id
	}
}

// AdministeredDose is the immutable record of one given dose. Corrections go
// through the explicit correction operation, which re-validates eligibility
// and records an audit event.
type AdministeredDose struct {
	Sequence       int                  `json:"sequence"`
	Position       disease.DosePosition `json:"position"`
	Product        string               `json:"product"`
	AdministeredBy string               `json:"administered_by"`
	Responsible    string               `json:"responsible,omitempty"`
	AdministeredAt time.Time            `json:"administered_at"`

	PrimarySeries       bool `json:"primary_series"`
	SelfPayer           bool `json:"self_payer,omitempty"`
	Pregnancy           bool `json:"pregnancy,omitempty"`
	CertificateEligible bool `json:"certificate_eligible"`

	// StatusBefore is the status the dossier held before this dose was
	// documented; deleting the dose reverts to it.
	StatusBefore Status `json:"status_before"`
}

// DoseFacts is the caller-supplied payload for documenting a dose.
type DoseFacts struct {
	Product        string    `json:"product"`
	AdministeredBy string    `json:"administered_by"`
	Responsible    string    `json:"responsible,omitempty"`
	AdministeredAt time.Time `json:"administered_at"`
	SelfPayer      bool      `json:"self_payer,omitempty"`
	Pregnancy      bool      `json:"pregnancy,omitempty"`
}

// Validate rejects unusable dose facts.
func (f DoseFacts) Validate() error {
	if f.Product == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "vaccine product is required")
	}
	if f.AdministeredBy == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "administering staff is required")
	}
	if f.AdministeredAt.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "administration time is required")
	}
	return nil
}

// DoseEntry is one booster cycle: an optional appointment, control-interview
// metadata, and the administered dose once given.
type DoseEntry struct {
	Sequence      int                   `json:"sequence"`
	AppointmentID *domain.AppointmentID `json:"appointment_id,omitempty"`
	ControlledAt  *time.Time            `json:"controlled_at,omitempty"`
	ControlNote   string                `json:"control_note,omitempty"`
	Dose          *AdministeredDose     `json:"dose,omitempty"`
}

// ExternalProof carries externally asserted vaccination and recovery facts.
// They feed eligibility exactly like internal doses but are flagged apart.
type ExternalProof struct {
	Doses          int        `json:"doses"`
	LastDoseAt     *time.Time `json:"last_dose_at,omitempty"`
	Recovered      bool       `json:"recovered,omitempty"`
	PositiveTestAt *time.Time `json:"positive_test_at,omitempty"`
	AcceptedAt     time.Time  `json:"accepted_at"`
	AcceptedBy     string     `json:"accepted_by,omitempty"`
}

// Validate rejects inconsistent proofs.
func (p *ExternalProof) Validate() error {
	if p == nil {
		return dErrors.New(dErrors.CodeInvalidInput, "external proof is required")
	}
	if p.Doses < 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "external dose count cannot be negative")
	}
	if p.Doses > 0 && p.LastDoseAt == nil {
		return dErrors.New(dErrors.CodeInvalidInput, "external doses require a last-dose date")
	}
	if p.Recovered && p.PositiveTestAt == nil {
		return dErrors.New(dErrors.CodeInvalidInput, "recovery claims require a positive-test date")
	}
	if p.Doses == 0 && !p.Recovered {
		return dErrors.New(dErrors.CodeInvalidInput, "external proof asserts neither doses nor recovery")
	}
	return nil
}

// RecoveryClaim is a recovery asserted at waive time. It is stored on the
// dossier as an external proof and feeds eligibility immediately.
type RecoveryClaim struct {
	PositiveTestAt time.Time `json:"positive_test_at"`
	AcceptedBy     string    `json:"accepted_by,omitempty"`
}

// Validate rejects claims without a positive-test date.
func (c *RecoveryClaim) Validate() error {
	if c.PositiveTestAt.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "recovery claims require a positive-test date")
	}
	return nil
}

// Authorization carries pre-checked capability booleans. The state machine
// never computes authorization itself; the outer layer resolves the caller's
// roles and passes the outcome in.
type Authorization struct {
	// Documenter allows documenting, correcting, and deleting doses.
	Documenter bool
	// OverrideEligibility allows booster doses before the computed
	// eligibility date.
	OverrideEligibility bool
}

// allFacts flattens the dossier's history into eligibility facts.
func (d *Dossier) allFacts() []eligibility.Fact {
	var facts []eligibility.Fact
	for _, dose := range d.Doses {
		facts = append(facts, eligibility.DoseFact(doseFactID(dose.Sequence), dose.AdministeredAt))
	}
	for _, entry := range d.Entries {
		if entry.Dose != nil {
			facts = append(facts, eligibility.DoseFact(doseFactID(entry.Dose.Sequence), entry.Dose.AdministeredAt))
		}
	}
	if p := d.ExternalProof; p != nil {
		if p.Doses > 0 && p.LastDoseAt != nil {
			facts = append(facts, eligibility.ExternalDosesFact(p.Doses, *p.LastDoseAt))
		}
		if p.Recovered && p.PositiveTestAt != nil {
			facts = append(facts, eligibility.RecoveryFact(*p.PositiveTestAt))
		}
	}
	return facts
}

func doseFactID(sequence int) string {
	return "dose-" + strconv.Itoa(sequence)
}

// nextSequence returns one past the highest administered sequence.
func (d *Dossier) nextSequence() int {
	highest := 0
	for _, dose := range d.Doses {
		if dose.Sequence > highest {
			highest = dose.Sequence
		}
	}
	for _, entry := range d.Entries {
		if entry.Sequence > highest {
			highest = entry.Sequence
		}
	}
	return highest + 1
}

// administeredCount returns the number of internally documented doses.
func (d *Dossier) administeredCount() int {
	count := len(d.Doses)
	for _, entry := range d.Entries {
		if entry.Dose != nil {
			count++
		}
	}
	return count
}

// findDose locates an administered dose by sequence, searching the primary
// series and the booster entries.
func (d *Dossier) findDose(sequence int) (*AdministeredDose, bool) {
	for i := range d.Doses {
		if d.Doses[i].Sequence == sequence {
			return &d.Doses[i], true
		}
	}
	for i := range d.Entries {
		if d.Entries[i].Dose != nil && d.Entries[i].Dose.Sequence == sequence {
			return d.Entries[i].Dose, true
		}
	}
	return nil, false
}
