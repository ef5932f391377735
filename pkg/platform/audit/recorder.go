package audit

import (
	"context"
	"log/slog"

	"impfportal/pkg/domain"
	"impfportal/pkg/requestcontext"
)

// Recorder is the audit entry point used by domain services. Compliance
// events are fail-closed: a storage failure aborts the caller's transaction.
// Operational events only log their failures.
type Recorder struct {
	store  Store
	logger *slog.Logger
}

func NewRecorder(store Store, logger *slog.Logger) *Recorder {
	return &Recorder{store: store, logger: logger}
}

// Record enriches the event from the request context and appends it. A nil
// *Recorder drops everything, which keeps tests that don't care about the
// trail quiet.
func (r *Recorder) Record(ctx context.Context, event Event) error {
	if r == nil {
		return nil
	}
	if event.Category == "" {
		event.Category = event.Action.Category()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}
	if event.Device == "" {
		event.Device = requestcontext.DeviceSummary(ctx)
	}
	if event.IP == "" {
		event.IP = requestcontext.ClientIP(ctx)
	}

	err := r.store.Append(ctx, &event)
	if err == nil {
		return nil
	}
	if event.Category == CategoryCompliance {
		return err
	}
	r.logger.Error("dropping operational audit event",
		"action", string(event.Action),
		"dossier_id", event.DossierID.String(),
		"error", err,
	)
	return nil
}

// ListByDossier returns the trail of one dossier, oldest first.
func (r *Recorder) ListByDossier(ctx context.Context, dossierID domain.DossierID) ([]*Event, error) {
	return r.store.ListByDossier(ctx, dossierID)
}
