// Package handler exposes the dossier lifecycle over JSON/HTTP. It stays
// thin: parse, delegate to the service, return the refreshed snapshot.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"impfportal/internal/disease"
	"impfportal/internal/dossier"
	"impfportal/internal/platform/metrics"
	"impfportal/internal/platform/middleware"
	"impfportal/internal/snapshot"
	"impfportal/pkg/domain"
	dErrors "impfportal/pkg/domain-errors"
	"impfportal/pkg/platform/httputil"
	"impfportal/pkg/requestcontext"
)

// Service is the dossier lifecycle surface the handler delegates to.
type Service interface {
	CreateOrGet(ctx context.Context, personID domain.PersonID, diseaseID domain.DiseaseID) (*dossier.Dossier, string, error)
	VerifyRegistrationCode(ctx context.Context, personID domain.PersonID, diseaseID domain.DiseaseID, code string) error
	Release(ctx context.Context, dossierID domain.DossierID) (*dossier.Dossier, error)
	ReleaseBooster(ctx context.Context, dossierID domain.DossierID) (*dossier.Dossier, error)
	ChooseSite(ctx context.Context, dossierID domain.DossierID, siteID *domain.SiteID, unmanaged bool) (*dossier.Dossier, error)
	BookPrimarySeries(ctx context.Context, dossierID domain.DossierID, req dossier.BookPrimarySeriesRequest) (*dossier.Dossier, error)
	BookBooster(ctx context.Context, dossierID domain.DossierID, slotID domain.SlotID, selfPayer bool, auth dossier.Authorization) (*dossier.Dossier, error)
	Rebook(ctx context.Context, dossierID domain.DossierID, position disease.DosePosition, newSlotID domain.SlotID) (*dossier.Dossier, error)
	CancelBooking(ctx context.Context, dossierID domain.DossierID) (*dossier.Dossier, error)
	ControlDose(ctx context.Context, dossierID domain.DossierID, note string) (*dossier.Dossier, error)
	DocumentDose(ctx context.Context, dossierID domain.DossierID, facts dossier.DoseFacts, auth dossier.Authorization) (*dossier.Dossier, error)
	CorrectDose(ctx context.Context, dossierID domain.DossierID, sequence int, facts dossier.DoseFacts, auth dossier.Authorization) (*dossier.Dossier, error)
	DeleteDose(ctx context.Context, dossierID domain.DossierID, sequence int, auth dossier.Authorization) (*dossier.Dossier, error)
	WaiveSecondDose(ctx context.Context, dossierID domain.DossierID, reason string, recovery *dossier.RecoveryClaim) (*dossier.Dossier, error)
	ResumeSecondDose(ctx context.Context, dossierID domain.DossierID) (*dossier.Dossier, error)
	AcceptExternalProof(ctx context.Context, dossierID domain.DossierID, proof dossier.ExternalProof, auth dossier.Authorization) (*dossier.Dossier, error)
	Delete(ctx context.Context, dossierID domain.DossierID) (*dossier.Dossier, error)
}

// Snapshots loads the read model returned by every successful call.
type Snapshots interface {
	Load(ctx context.Context, personID domain.PersonID, diseaseID domain.DiseaseID) (*snapshot.Snapshot, error)
	LoadByDossier(ctx context.Context, dossierID domain.DossierID) (*snapshot.Snapshot, error)
}

// Handler handles dossier endpoints.
type Handler struct {
	logger       *slog.Logger
	service      Service
	snapshots    Snapshots
	metrics      *metrics.Metrics
	jwtValidator middleware.JWTValidator
}

func New(service Service, snapshots Snapshots, logger *slog.Logger, m *metrics.Metrics, jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{
		logger:       logger,
		service:      service,
		snapshots:    snapshots,
		metrics:      m,
		jwtValidator: jwtValidator,
	}
}

// Register mounts the dossier routes with their middleware chain.
func (h *Handler) Register(r chi.Router) {
	router := chi.NewRouter()
	router.Use(middleware.Recovery(h.logger))
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger(h.logger))
	router.Use(middleware.Timeout(30 * time.Second))
	router.Use(middleware.ContentTypeJSON)
	router.Use(middleware.ClientMetadata)
	router.Use(middleware.Device)
	router.Use(middleware.LatencyMiddleware(h.metrics))
	router.Use(middleware.RequireAuth(h.jwtValidator, h.logger))

	router.Post("/", h.handleCreateOrGet)
	router.Post("/verify-code", h.handleVerifyCode)
	// Snapshot lookup lives under a static prefix so the disease name never
	// competes with the {dossierID} subtree below.
	router.Get("/by-disease/{disease}", h.handleGetSnapshot)

	router.Route("/{dossierID}", func(r chi.Router) {
		r.Delete("/", h.handleDeleteDossier)
		r.Post("/release", h.handleRelease)
		r.Post("/booster-release", h.handleReleaseBooster)
		r.Post("/site-selection", h.handleChooseSite)
		r.Post("/appointments", h.handleBookPrimary)
		r.Delete("/appointments", h.handleCancelBooking)
		r.Post("/booster", h.handleBookBooster)
		r.Post("/rebook", h.handleRebook)
		r.Post("/control", h.handleControlDose)
		r.Post("/doses", h.handleDocumentDose)
		r.Put("/doses/{sequence}", h.handleCorrectDose)
		r.Delete("/doses/{sequence}", h.handleDeleteDose)
		r.Post("/second-dose/waive", h.handleWaive)
		r.Post("/second-dose/resume", h.handleResume)
		r.Post("/external-proof", h.handleExternalProof)
	})

	r.Mount("/api/v1/dossiers", router)
}

func (h *Handler) handleCreateOrGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req createDossierRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	diseaseID, err := parseDisease(req.Disease)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	personID := requestcontext.PersonID(ctx)

	d, code, err := h.service.CreateOrGet(ctx, personID, diseaseID)
	if err != nil {
		h.writeServiceError(w, r, "create dossier", err)
		return
	}
	snap, err := h.snapshots.LoadByDossier(ctx, d.ID)
	if err != nil {
		h.writeServiceError(w, r, "load snapshot", err)
		return
	}

	status := http.StatusOK
	if code != "" {
		status = http.StatusCreated
	}
	httputil.WriteJSON(w, status, dossierResponse{Snapshot: snap, RegistrationCode: code})
}

func (h *Handler) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	diseaseID, err := parseDisease(chi.URLParam(r, "disease"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	snap, err := h.snapshots.Load(ctx, requestcontext.PersonID(ctx), diseaseID)
	if err != nil {
		h.writeServiceError(w, r, "load snapshot", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, dossierResponse{Snapshot: snap})
}

// handleVerifyCode lets phone agents check a citizen-supplied registration
// code before acting on their behalf. Wrong codes return valid=false rather
// than an error, so agents see one uniform shape.
func (h *Handler) handleVerifyCode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req verifyCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	personID, err := domain.ParsePersonID(req.PersonID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	diseaseID, err := parseDisease(req.Disease)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	err = h.service.VerifyRegistrationCode(ctx, personID, diseaseID, req.Code)
	switch {
	case err == nil:
		httputil.WriteJSON(w, http.StatusOK, verifyCodeResponse{Valid: true})
	case dErrors.Is(err, dErrors.CodeInvalidInput), dErrors.Is(err, dErrors.CodeUnauthorized):
		httputil.WriteJSON(w, http.StatusOK, verifyCodeResponse{Valid: false})
	default:
		h.writeServiceError(w, r, "verify registration code", err)
	}
}

func (h *Handler) handleRelease(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(ctx context.Context, dossierID domain.DossierID) (*dossier.Dossier, error) {
		return h.service.Release(ctx, dossierID)
	})
}

func (h *Handler) handleReleaseBooster(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(ctx context.Context, dossierID domain.DossierID) (*dossier.Dossier, error) {
		return h.service.ReleaseBooster(ctx, dossierID)
	})
}

func (h *Handler) handleChooseSite(w http.ResponseWriter, r *http.Request) {
	var req chooseSiteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	var siteID *domain.SiteID
	if req.SiteID != "" {
		parsed, err := domain.ParseSiteID(req.SiteID)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		siteID = &parsed
	}
	h.mutate(w, r, func(ctx context.Context, dossierID domain.DossierID) (*dossier.Dossier, error) {
		return h.service.ChooseSite(ctx, dossierID, siteID, req.Unmanaged)
	})
}

func (h *Handler) handleBookPrimary(w http.ResponseWriter, r *http.Request) {
	var req bookPrimaryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	bookReq, err := req.toDomain()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.mutate(w, r, func(ctx context.Context, dossierID domain.DossierID) (*dossier.Dossier, error) {
		return h.service.BookPrimarySeries(ctx, dossierID, bookReq)
	})
}

func (h *Handler) handleBookBooster(w http.ResponseWriter, r *http.Request) {
	var req bookBoosterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	slotID, err := domain.ParseSlotID(req.SlotID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.mutate(w, r, func(ctx context.Context, dossierID domain.DossierID) (*dossier.Dossier, error) {
		return h.service.BookBooster(ctx, dossierID, slotID, req.SelfPayer, authorization(ctx))
	})
}

func (h *Handler) handleRebook(w http.ResponseWriter, r *http.Request) {
	var req rebookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	position, slotID, err := req.toDomain()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.mutate(w, r, func(ctx context.Context, dossierID domain.DossierID) (*dossier.Dossier, error) {
		return h.service.Rebook(ctx, dossierID, position, slotID)
	})
}

func (h *Handler) handleCancelBooking(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(ctx context.Context, dossierID domain.DossierID) (*dossier.Dossier, error) {
		return h.service.CancelBooking(ctx, dossierID)
	})
}

func (h *Handler) handleControlDose(w http.ResponseWriter, r *http.Request) {
	var req controlDoseRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
			return
		}
	}
	h.mutate(w, r, func(ctx context.Context, dossierID domain.DossierID) (*dossier.Dossier, error) {
		return h.service.ControlDose(ctx, dossierID, req.Note)
	})
}

func (h *Handler) handleDocumentDose(w http.ResponseWriter, r *http.Request) {
	var req doseFactsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	h.mutate(w, r, func(ctx context.Context, dossierID domain.DossierID) (*dossier.Dossier, error) {
		return h.service.DocumentDose(ctx, dossierID, req.toDomain(), authorization(ctx))
	})
}

func (h *Handler) handleCorrectDose(w http.ResponseWriter, r *http.Request) {
	sequence, err := parseSequence(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req doseFactsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	h.mutate(w, r, func(ctx context.Context, dossierID domain.DossierID) (*dossier.Dossier, error) {
		return h.service.CorrectDose(ctx, dossierID, sequence, req.toDomain(), authorization(ctx))
	})
}

func (h *Handler) handleDeleteDose(w http.ResponseWriter, r *http.Request) {
	sequence, err := parseSequence(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.mutate(w, r, func(ctx context.Context, dossierID domain.DossierID) (*dossier.Dossier, error) {
		return h.service.DeleteDose(ctx, dossierID, sequence, authorization(ctx))
	})
}

func (h *Handler) handleWaive(w http.ResponseWriter, r *http.Request) {
	var req waiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	h.mutate(w, r, func(ctx context.Context, dossierID domain.DossierID) (*dossier.Dossier, error) {
		return h.service.WaiveSecondDose(ctx, dossierID, req.Reason, req.toDomain())
	})
}

func (h *Handler) handleResume(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(ctx context.Context, dossierID domain.DossierID) (*dossier.Dossier, error) {
		return h.service.ResumeSecondDose(ctx, dossierID)
	})
}

func (h *Handler) handleExternalProof(w http.ResponseWriter, r *http.Request) {
	var req externalProofRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	h.mutate(w, r, func(ctx context.Context, dossierID domain.DossierID) (*dossier.Dossier, error) {
		return h.service.AcceptExternalProof(ctx, dossierID, req.toDomain(), authorization(ctx))
	})
}

func (h *Handler) handleDeleteDossier(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	dossierID, err := domain.ParseDossierID(chi.URLParam(r, "dossierID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if _, err := h.service.Delete(ctx, dossierID); err != nil {
		h.writeServiceError(w, r, "delete dossier", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// mutate runs one dossier mutation and responds with the refreshed snapshot.
func (h *Handler) mutate(w http.ResponseWriter, r *http.Request, op func(context.Context, domain.DossierID) (*dossier.Dossier, error)) {
	ctx := r.Context()
	dossierID, err := domain.ParseDossierID(chi.URLParam(r, "dossierID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	d, err := op(ctx, dossierID)
	if err != nil {
		h.writeServiceError(w, r, "dossier mutation", err)
		return
	}
	snap, err := h.snapshots.LoadByDossier(ctx, d.ID)
	if err != nil {
		h.writeServiceError(w, r, "load snapshot", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, dossierResponse{Snapshot: snap})
}

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	ctx := r.Context()
	code := dErrors.Code(err)
	if code == dErrors.CodeInternal || code == dErrors.CodeInvariantViolation {
		h.logger.ErrorContext(ctx, op+" failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	} else {
		h.logger.WarnContext(ctx, op+" rejected",
			"request_id", requestcontext.RequestID(ctx),
			"code", string(code),
			"error", err.Error(),
		)
	}
	httputil.WriteError(w, err)
}

// authorization converts middleware capabilities into the service's
// pre-checked booleans.
func authorization(ctx context.Context) dossier.Authorization {
	caps := middleware.GetCapabilities(ctx)
	return dossier.Authorization{
		Documenter:          caps.Documenter,
		OverrideEligibility: caps.OverrideEligibility,
	}
}

func parseSequence(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "sequence")
	sequence, err := strconv.Atoi(raw)
	if err != nil || sequence < 1 {
		return 0, dErrors.Newf(dErrors.CodeInvalidInput, "invalid dose sequence: %q", raw)
	}
	return sequence, nil
}
