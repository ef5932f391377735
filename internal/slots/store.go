package slots

import (
	"context"
	"time"

	"impfportal/internal/disease"
	"impfportal/pkg/domain"
)

// Store is the persistence boundary for sites and slots. Implementations
// return sentinel errors (sentinel.ErrNotFound, sentinel.ErrSlotFull,
// sentinel.ErrConflict); callers translate them into domain errors.
type Store interface {
	CreateSite(ctx context.Context, site *Site) error
	GetSite(ctx context.Context, siteID domain.SiteID) (*Site, error)
	ListSites(ctx context.Context) ([]*Site, error)

	CreateSlot(ctx context.Context, slot *Slot) error
	GetSlot(ctx context.Context, slotID domain.SlotID) (*Slot, error)

	// ListFreeSlots returns slots with remaining capacity at a site for a
	// dose position, starting at or after notBefore, ordered by start time.
	ListFreeSlots(ctx context.Context, siteID domain.SiteID, position disease.DosePosition, notBefore time.Time) ([]*Slot, error)

	// ReserveCapacity atomically increments the reserved count if and only if
	// reserved < capacity. Returns sentinel.ErrSlotFull when the slot is at
	// capacity and sentinel.ErrNotFound when it does not exist.
	ReserveCapacity(ctx context.Context, slotID domain.SlotID) error

	// ReleaseCapacity decrements the reserved count, flooring at zero.
	ReleaseCapacity(ctx context.Context, slotID domain.SlotID) error
}
