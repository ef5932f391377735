// Package audit records the compliance trail of dossier mutations. Events are
// appended to an outbox store inside the same transaction as the mutation and
// relayed to Kafka by a background worker.
package audit

import (
	"time"

	"impfportal/pkg/domain"
)

// EventCategory classifies audit events by their retention requirements.
type EventCategory string

const (
	// CategoryCompliance covers events with regulatory significance: anything
	// touching administered doses or externally asserted facts. Appending
	// these is fail-closed: the triggering operation aborts if the event
	// cannot be stored.
	CategoryCompliance EventCategory = "compliance"

	// CategoryOperations covers routine activity (bookings, site selection)
	// kept for support and debugging. Failures are logged, never surfaced.
	CategoryOperations EventCategory = "operations"
)

// Action names a recorded dossier mutation.
type Action string

const (
	ActionDossierCreated        Action = "dossier_created"
	ActionSiteChosen            Action = "site_chosen"
	ActionBookingCreated        Action = "booking_created"
	ActionBookingRebooked       Action = "booking_rebooked"
	ActionBookingCancelled      Action = "booking_cancelled"
	ActionDoseControlled        Action = "dose_controlled"
	ActionDoseDocumented        Action = "dose_documented"
	ActionDoseCorrected         Action = "dose_corrected"
	ActionDoseDeleted           Action = "dose_deleted"
	ActionSecondDoseWaived      Action = "second_dose_waived"
	ActionSecondDoseResumed     Action = "second_dose_resumed"
	ActionExternalProofAccepted Action = "external_proof_accepted"
	ActionCertificateTriggered  Action = "certificate_triggered"
	ActionBoosterReleased       Action = "booster_released"
)

var actionCategories = map[Action]EventCategory{
	ActionDoseDocumented:        CategoryCompliance,
	ActionDoseCorrected:         CategoryCompliance,
	ActionDoseDeleted:           CategoryCompliance,
	ActionSecondDoseWaived:      CategoryCompliance,
	ActionExternalProofAccepted: CategoryCompliance,
	ActionCertificateTriggered:  CategoryCompliance,
}

// Category returns the category for this action. Unlisted actions are
// operational.
func (a Action) Category() EventCategory {
	if cat, ok := actionCategories[a]; ok {
		return cat
	}
	return CategoryOperations
}

// Event is one audit-trail entry. Detail carries action-specific context
// (dose sequence, slot identifiers, waive reason) as flat key/value pairs.
type Event struct {
	ID        int64             `json:"id,omitempty"`
	Action    Action            `json:"action"`
	Category  EventCategory     `json:"category"`
	PersonID  domain.PersonID   `json:"person_id"`
	DossierID domain.DossierID  `json:"dossier_id"`
	DiseaseID domain.DiseaseID  `json:"disease_id"`
	ActorID   string            `json:"actor_id,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
	Device    string            `json:"device,omitempty"`
	IP        string            `json:"ip,omitempty"`
	Detail    map[string]string `json:"detail,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	RelayedAt *time.Time        `json:"relayed_at,omitempty"`
}
