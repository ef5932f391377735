// Package admin exposes the operator surface: site onboarding, slot capacity
// planning, and the next-free-slot probe. Everything here sits behind the
// shared admin token, not citizen auth.
package admin

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"impfportal/internal/booking"
	"impfportal/internal/disease"
	"impfportal/internal/platform/middleware"
	"impfportal/internal/slots"
	"impfportal/pkg/domain"
	dErrors "impfportal/pkg/domain-errors"
	"impfportal/pkg/platform/httputil"
	"impfportal/pkg/platform/sentinel"
)

// Handler handles site and slot administration endpoints.
type Handler struct {
	logger     *slog.Logger
	sites      slots.Store
	booking    *booking.Coordinator
	diseases   *disease.Registry
	adminToken string
}

func New(sites slots.Store, coordinator *booking.Coordinator, diseases *disease.Registry, adminToken string, logger *slog.Logger) *Handler {
	return &Handler{
		logger:     logger,
		sites:      sites,
		booking:    coordinator,
		diseases:   diseases,
		adminToken: adminToken,
	}
}

// Register mounts the admin routes behind the admin token guard.
func (h *Handler) Register(r chi.Router) {
	router := chi.NewRouter()
	router.Use(middleware.Recovery(h.logger))
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger(h.logger))
	router.Use(middleware.Timeout(15 * time.Second))
	router.Use(middleware.ContentTypeJSON)
	router.Use(middleware.RequireAdminToken(h.adminToken, h.logger))

	router.Post("/sites", h.handleCreateSite)
	router.Get("/sites", h.handleListSites)
	router.Post("/sites/{siteID}/slots", h.handleCreateSlots)
	router.Get("/sites/{siteID}/next-free", h.handleNextFreeSlot)

	r.Mount("/admin", router)
}

func (h *Handler) handleCreateSite(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req createSiteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	site := &slots.Site{
		ID:        domain.NewSiteID(),
		Name:      req.Name,
		Address:   req.Address,
		Managed:   req.Managed,
		CreatedAt: time.Now().UTC(),
	}
	if err := site.Validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.sites.CreateSite(ctx, site); err != nil {
		h.logger.ErrorContext(ctx, "site creation failed", "error", err)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "could not create site"))
		return
	}

	h.logger.InfoContext(ctx, "site created",
		"site_id", site.ID.String(),
		"managed", site.Managed,
	)
	httputil.WriteJSON(w, http.StatusCreated, site)
}

func (h *Handler) handleListSites(w http.ResponseWriter, r *http.Request) {
	sites, err := h.sites.ListSites(r.Context())
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "could not list sites"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sitesResponse{Sites: sites})
}

// handleCreateSlots creates a batch of slots in one request. The batch is not
// atomic: a failing slot stops processing and the response reports how many
// were created, so operators can fix the plan file and resubmit the rest.
func (h *Handler) handleCreateSlots(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	siteID, err := domain.ParseSiteID(chi.URLParam(r, "siteID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if _, err := h.sites.GetSite(ctx, siteID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "site not found"))
			return
		}
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "could not load site"))
		return
	}

	var req createSlotsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if len(req.Slots) == 0 {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "at least one slot is required"))
		return
	}

	created := make([]*slots.Slot, 0, len(req.Slots))
	for i, spec := range req.Slots {
		slot, err := spec.toDomain(siteID)
		if err == nil {
			err = h.sites.CreateSlot(ctx, slot)
		}
		if err != nil {
			h.logger.WarnContext(ctx, "slot batch stopped",
				"site_id", siteID.String(),
				"index", i,
				"created", len(created),
				"error", err,
			)
			httputil.WriteJSON(w, http.StatusMultiStatus, createSlotsResponse{
				Created: created,
				Failed:  &slotFailure{Index: i, Error: err.Error()},
			})
			return
		}
		created = append(created, slot)
	}

	h.logger.InfoContext(ctx, "slots created", "site_id", siteID.String(), "count", len(created))
	httputil.WriteJSON(w, http.StatusCreated, createSlotsResponse{Created: created})
}

// handleNextFreeSlot probes the earliest bookable slot, optionally relative
// to a paired first-dose slot so the interval window applies.
func (h *Handler) handleNextFreeSlot(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	siteID, err := domain.ParseSiteID(chi.URLParam(r, "siteID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	query, err := parseNextFreeQuery(r.URL.Query())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	rules, err := h.diseases.Resolve(query.disease)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var paired *slots.Slot
	if query.pairedSlotID != nil {
		paired, err = h.sites.GetSlot(ctx, *query.pairedSlotID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "paired slot not found"))
				return
			}
			httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "could not load paired slot"))
			return
		}
	}

	slot, err := h.booking.FindNextFreeSlot(ctx, siteID, query.position, query.notBefore, paired, rules, query.accelerated)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, nextFreeResponse{Slot: slot})
}
