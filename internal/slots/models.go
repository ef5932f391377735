// Package slots owns appointment capacity: vaccination sites and their
// time-boxed slot windows. Stores here are pure I/O; the booking coordinator
// enforces the rules around them.
package slots

import (
	"time"

	"impfportal/internal/disease"
	"impfportal/pkg/domain"
	dErrors "impfportal/pkg/domain-errors"
)

// Site is a vaccination location ("ODI"): a clinic, a pharmacy, a campaign
// center.
type Site struct {
	ID      domain.SiteID `json:"id"`
	Name    string        `json:"name"`
	Address string        `json:"address,omitempty"`
	// Managed sites run their own booking through this platform; unmanaged
	// sites only appear as a chosen location on a dossier.
	Managed   bool      `json:"managed"`
	CreatedAt time.Time `json:"created_at"`
}

// Validate rejects sites that cannot be stored.
func (s *Site) Validate() error {
	if s == nil {
		return dErrors.New(dErrors.CodeInvalidInput, "site is required")
	}
	if s.ID.IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "site id is required")
	}
	if s.Name == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "site name is required")
	}
	return nil
}

// Slot is a capacity-limited time window at a site for one dose position.
// Reserved never exceeds Capacity; the stores enforce that under the same
// atomic unit as the increment.
type Slot struct {
	ID       domain.SlotID        `json:"id"`
	SiteID   domain.SiteID        `json:"site_id"`
	Position disease.DosePosition `json:"position"`
	StartAt  time.Time            `json:"start_at"`
	EndAt    time.Time            `json:"end_at"`
	Capacity int                  `json:"capacity"`
	Reserved int                  `json:"reserved"`
}

// Free reports the remaining capacity.
func (s *Slot) Free() int {
	return s.Capacity - s.Reserved
}

// Validate rejects slots that cannot be stored.
func (s *Slot) Validate() error {
	if s == nil {
		return dErrors.New(dErrors.CodeInvalidInput, "slot is required")
	}
	if s.ID.IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "slot id is required")
	}
	if s.SiteID.IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "slot site id is required")
	}
	if _, err := disease.ParseDosePosition(string(s.Position)); err != nil {
		return err
	}
	if s.Capacity < 1 {
		return dErrors.New(dErrors.CodeInvalidInput, "slot capacity must be positive")
	}
	if !s.EndAt.After(s.StartAt) {
		return dErrors.New(dErrors.CodeInvalidInput, "slot must end after it starts")
	}
	return nil
}
