package audit

import (
	"context"

	"impfportal/pkg/domain"
)

// Store is the audit outbox. Append runs inside the caller's transaction so
// the trail and the mutation it describes commit together; the relay worker
// drains unrelayed rows afterwards.
type Store interface {
	Append(ctx context.Context, event *Event) error
	ListByDossier(ctx context.Context, dossierID domain.DossierID) ([]*Event, error)
	// ListUnrelayed returns up to limit events not yet handed to the broker,
	// oldest first.
	ListUnrelayed(ctx context.Context, limit int) ([]*Event, error)
	MarkRelayed(ctx context.Context, eventIDs []int64) error
}
