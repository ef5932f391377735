package dossier

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"impfportal/internal/booking"
	"impfportal/internal/disease"
	"impfportal/internal/dossier/metrics"
	"impfportal/internal/eligibility"
	"impfportal/internal/slots"
	"impfportal/pkg/domain"
	dErrors "impfportal/pkg/domain-errors"
	"impfportal/pkg/platform/audit"
	"impfportal/pkg/platform/secrets"
	"impfportal/pkg/platform/sentinel"
	"impfportal/pkg/requestcontext"
)

var dossierTracer = otel.Tracer("impfportal/dossier")

// Service implements every dossier lifecycle operation. Each operation runs
// inside one unit of work: status, booking state, slot capacity, and the
// audit trail commit together or not at all.
type Service struct {
	tx       TxRunner
	store    Store
	sites    slots.Store
	booking  *booking.Coordinator
	diseases *disease.Registry
	audit    *audit.Recorder
	events   Publisher
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithMetrics attaches dossier metrics.
func WithMetrics(m *metrics.Metrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// WithAudit attaches the audit recorder.
func WithAudit(recorder *audit.Recorder) ServiceOption {
	return func(s *Service) { s.audit = recorder }
}

// WithEvents attaches the domain-event publisher.
func WithEvents(publisher Publisher) ServiceOption {
	return func(s *Service) { s.events = publisher }
}

// WithClock overrides the clock for tests.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func NewService(
	txRunner TxRunner,
	store Store,
	siteStore slots.Store,
	coordinator *booking.Coordinator,
	diseases *disease.Registry,
	logger *slog.Logger,
	opts ...ServiceOption,
) *Service {
	s := &Service{
		tx:       txRunner,
		store:    store,
		sites:    siteStore,
		booking:  coordinator,
		diseases: diseases,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// CreateOrGet returns the live dossier for (person, disease), creating it on
// first registration. The second return value is the plaintext registration
// code, present only when a dossier was just created; it is never
// recoverable afterwards.
func (s *Service) CreateOrGet(ctx context.Context, personID domain.PersonID, diseaseID domain.DiseaseID) (*Dossier, string, error) {
	ctx, span := dossierTracer.Start(ctx, "dossier.create_or_get")
	defer span.End()
	span.SetAttributes(
		attribute.String("person_id", personID.String()),
		attribute.String("disease_id", string(diseaseID)),
	)

	rules, err := s.diseases.Resolve(diseaseID)
	if err != nil {
		return nil, "", err
	}

	var result *Dossier
	var code string
	key := personID.String() + "/" + string(diseaseID)
	err = s.tx.RunInTx(ctx, key, func(ctx context.Context) error {
		existing, err := s.store.GetByPersonAndDisease(ctx, personID, diseaseID)
		if err == nil {
			result = existing
			return nil
		}
		if !errors.Is(err, sentinel.ErrNotFound) {
			return err
		}

		plaintext, err := secrets.GenerateCode()
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "could not generate registration code")
		}
		hash, err := secrets.Hash(plaintext)
		if err != nil {
			return err
		}

		now := s.now()
		created := &Dossier{
			ID:                   domain.NewDossierID(),
			PersonID:             personID,
			DiseaseID:            diseaseID,
			Status:               StatusRegistered,
			RegistrationCodeHash: hash,
			CreatedAt:            now,
			UpdatedAt:            now,
		}
		s.recompute(created, rules, "dossier_created")

		if err := s.store.Create(ctx, created); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				// Lost a concurrent registration race; surface the winner.
				winner, getErr := s.store.GetByPersonAndDisease(ctx, personID, diseaseID)
				if getErr == nil {
					result = winner
					return nil
				}
				return dErrors.New(dErrors.CodeConflict, "dossier already exists")
			}
			return err
		}

		if err := s.recordAudit(ctx, created, audit.ActionDossierCreated, nil); err != nil {
			return err
		}
		result = created
		code = plaintext
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	if code != "" {
		s.metrics.IncrementCreated(string(result.DiseaseID))
		s.publishStatusChanged(ctx, result, "")
	}
	return result, code, nil
}

// Get loads a dossier by ID.
func (s *Service) Get(ctx context.Context, dossierID domain.DossierID) (*Dossier, error) {
	dossier, err := s.store.Get(ctx, dossierID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "dossier not found")
		}
		return nil, err
	}
	return dossier, nil
}

// GetByPersonAndDisease loads the live dossier for the pair.
func (s *Service) GetByPersonAndDisease(ctx context.Context, personID domain.PersonID, diseaseID domain.DiseaseID) (*Dossier, error) {
	dossier, err := s.store.GetByPersonAndDisease(ctx, personID, diseaseID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "dossier not found")
		}
		return nil, err
	}
	return dossier, nil
}

// VerifyRegistrationCode checks a citizen-supplied registration code, used by
// phone agents before acting on a dossier.
func (s *Service) VerifyRegistrationCode(ctx context.Context, personID domain.PersonID, diseaseID domain.DiseaseID, code string) error {
	dossier, err := s.GetByPersonAndDisease(ctx, personID, diseaseID)
	if err != nil {
		return err
	}
	return secrets.Verify(code, dossier.RegistrationCodeHash)
}

// Release opens the dossier for site selection, typically when the campaign
// reaches the person's priority group. Retrying a released dossier returns
// the current state.
func (s *Service) Release(ctx context.Context, dossierID domain.DossierID) (*Dossier, error) {
	return s.simpleTransition(ctx, dossierID, EventRelease, StatusReleased, nil)
}

// ReleaseBooster opens the next booster cycle. Only diseases with booster
// support accept it; retrying is idempotent.
func (s *Service) ReleaseBooster(ctx context.Context, dossierID domain.DossierID) (*Dossier, error) {
	rulesCheck := func(d *Dossier, rules disease.Rules) error {
		if !rules.BoosterSupported {
			return dErrors.Newf(dErrors.CodeValidation, "disease %s does not support booster doses", d.DiseaseID)
		}
		return nil
	}
	return s.simpleTransition(ctx, dossierID, EventBoosterRelease, StatusBoosterReleased, rulesCheck)
}

// ChooseSite records the vaccination site. With unmanaged set the person is
// vaccinated outside platform booking, and the dossier moves straight to the
// booked state with no appointments to manage.
func (s *Service) ChooseSite(ctx context.Context, dossierID domain.DossierID, siteID *domain.SiteID, unmanaged bool) (*Dossier, error) {
	ctx, span := dossierTracer.Start(ctx, "dossier.choose_site")
	defer span.End()
	span.SetAttributes(attribute.String("dossier_id", dossierID.String()))

	if siteID == nil && !unmanaged {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "either a site or the unmanaged flag is required")
	}
	if siteID != nil && unmanaged {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "a site and the unmanaged flag are mutually exclusive")
	}

	var result *Dossier
	err := s.tx.RunInTx(ctx, dossierID.String(), func(ctx context.Context) error {
		dossier, err := s.load(ctx, dossierID)
		if err != nil {
			return err
		}

		if siteID != nil {
			if _, err := s.sites.GetSite(ctx, *siteID); err != nil {
				if errors.Is(err, sentinel.ErrNotFound) {
					return dErrors.New(dErrors.CodeNotFound, "site not found")
				}
				return err
			}
		}

		next, err := Next(dossier.Status, EventChooseSite)
		if err != nil {
			s.metrics.IncrementTransition(string(EventChooseSite), "rejected")
			return err
		}
		dossier.Booking.SiteID = siteID
		dossier.Booking.UnmanagedSite = unmanaged
		if unmanaged {
			// No slots to book; the dossier proceeds directly.
			booked, err := Next(next, EventBook)
			if err != nil {
				return err
			}
			next = booked
			if dossier.Status.InBoosterTrack() && currentEntry(dossier) == nil {
				dossier.Entries = append(dossier.Entries, DoseEntry{Sequence: dossier.nextSequence()})
			}
		}
		previous := dossier.Status
		dossier.Status = next
		dossier.UpdatedAt = s.now()

		if err := s.store.Update(ctx, dossier); err != nil {
			return err
		}
		if err := s.recordAudit(ctx, dossier, audit.ActionSiteChosen, map[string]string{
			"unmanaged": boolString(unmanaged),
		}); err != nil {
			return err
		}
		s.metrics.IncrementTransition(string(EventChooseSite), "applied")
		result = dossier
		s.publishStatusChanged(ctx, dossier, previous)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Delete removes the dossier from the campaign, releasing any live
// appointments in the same unit of work.
func (s *Service) Delete(ctx context.Context, dossierID domain.DossierID) (*Dossier, error) {
	ctx, span := dossierTracer.Start(ctx, "dossier.delete")
	defer span.End()
	span.SetAttributes(attribute.String("dossier_id", dossierID.String()))

	var result *Dossier
	err := s.tx.RunInTx(ctx, dossierID.String(), func(ctx context.Context) error {
		dossier, err := s.load(ctx, dossierID)
		if err != nil {
			return err
		}
		next, err := Next(dossier.Status, EventDelete)
		if err != nil {
			s.metrics.IncrementTransition(string(EventDelete), "rejected")
			return err
		}

		if err := s.booking.ReleaseAllForDossier(ctx, dossierID); err != nil {
			return err
		}
		dossier.Booking.Dose1AppointmentID = nil
		dossier.Booking.Dose2AppointmentID = nil
		for i := range dossier.Entries {
			dossier.Entries[i].AppointmentID = nil
		}

		previous := dossier.Status
		dossier.Status = next
		dossier.UpdatedAt = s.now()
		if err := s.store.Update(ctx, dossier); err != nil {
			return err
		}
		s.metrics.IncrementTransition(string(EventDelete), "applied")
		result = dossier
		s.publishStatusChanged(ctx, dossier, previous)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// simpleTransition applies an event that touches no booking state. Retrying
// after the transition already happened returns the current state.
func (s *Service) simpleTransition(
	ctx context.Context,
	dossierID domain.DossierID,
	event Event,
	idempotentAt Status,
	rulesCheck func(*Dossier, disease.Rules) error,
) (*Dossier, error) {
	ctx, span := dossierTracer.Start(ctx, "dossier."+string(event))
	defer span.End()
	span.SetAttributes(attribute.String("dossier_id", dossierID.String()))

	var result *Dossier
	err := s.tx.RunInTx(ctx, dossierID.String(), func(ctx context.Context) error {
		dossier, err := s.load(ctx, dossierID)
		if err != nil {
			return err
		}
		if dossier.Status == idempotentAt {
			result = dossier
			return nil
		}
		if rulesCheck != nil {
			rules, err := s.diseases.Resolve(dossier.DiseaseID)
			if err != nil {
				return err
			}
			if err := rulesCheck(dossier, rules); err != nil {
				s.metrics.IncrementTransition(string(event), "rejected")
				return err
			}
		}
		next, err := Next(dossier.Status, event)
		if err != nil {
			s.metrics.IncrementTransition(string(event), "rejected")
			return err
		}
		previous := dossier.Status
		dossier.Status = next
		dossier.UpdatedAt = s.now()
		if err := s.store.Update(ctx, dossier); err != nil {
			return err
		}
		if event == EventBoosterRelease {
			if err := s.recordAudit(ctx, dossier, audit.ActionBoosterReleased, nil); err != nil {
				return err
			}
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

// load fetches a live dossier inside a unit of work.
func (s *Service) load(ctx context.Context, dossierID domain.DossierID) (*Dossier, error) {
	dossier, err := s.store.Get(ctx, dossierID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "dossier not found")
		}
		return nil, err
	}
	if !dossier.Status.Live() {
		return nil, dErrors.New(dErrors.CodeValidation, "dossier is deleted")
	}
	return dossier, nil
}

// recompute replaces the protection record wholesale from the current facts.
func (s *Service) recompute(dossier *Dossier, rules disease.Rules, trigger string) {
	if dossier.Accelerated {
		rules.MinInterval = rules.EffectiveMinInterval(true)
	}
	record := eligibility.ComputeProtection(dossier.allFacts(), rules, s.now())
	dossier.Protection = &record
	s.metrics.IncrementRecomputation(trigger)
}

func (s *Service) recordAudit(ctx context.Context, dossier *Dossier, action audit.Action, detail map[string]string) error {
	event := audit.Event{
		Action:    action,
		PersonID:  dossier.PersonID,
		DossierID: dossier.ID,
		DiseaseID: dossier.DiseaseID,
		Detail:    detail,
	}
	// Background work (relay, expiry sweeps) carries no authenticated person.
	if actor := requestcontext.PersonID(ctx); !actor.IsNil() {
		event.ActorID = actor.String()
	}
	return s.audit.Record(ctx, event)
}

func (s *Service) publishStatusChanged(ctx context.Context, dossier *Dossier, previous Status) {
	if s.events == nil {
		return
	}
	s.events.Publish(ctx, DomainEvent{
		Kind:           EventStatusChanged,
		DossierID:      dossier.ID,
		PersonID:       dossier.PersonID,
		DiseaseID:      dossier.DiseaseID,
		Status:         dossier.Status,
		PreviousStatus: previous,
		OccurredAt:     s.now(),
	})
}

func (s *Service) publishCertificate(ctx context.Context, dossier *Dossier, kind EventKind, sequence int) {
	if s.events == nil {
		return
	}
	s.events.Publish(ctx, DomainEvent{
		Kind:         kind,
		DossierID:    dossier.ID,
		PersonID:     dossier.PersonID,
		DiseaseID:    dossier.DiseaseID,
		Status:       dossier.Status,
		DoseSequence: sequence,
		OccurredAt:   s.now(),
	})
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
