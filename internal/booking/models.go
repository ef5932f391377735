// Package booking coordinates appointment reservations against the slot
// inventory. It owns the appointment records and the only code paths that
// change a slot's reserved count.
package booking

import (
	"time"

	"impfportal/internal/disease"
	"impfportal/pkg/domain"
)

// Appointment is a reservation of exactly one slot for exactly one dossier
// and dose position. It exists only while the underlying capacity unit is
// held; releasing the appointment frees the unit.
type Appointment struct {
	ID        domain.AppointmentID `json:"id"`
	DossierID domain.DossierID     `json:"dossier_id"`
	SlotID    domain.SlotID        `json:"slot_id"`
	SiteID    domain.SiteID        `json:"site_id"`
	Position  disease.DosePosition `json:"position"`
	StartAt   time.Time            `json:"start_at"`
	CreatedAt time.Time            `json:"created_at"`
}
