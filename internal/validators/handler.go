package validators

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tillpoint/tillpoint/internal/platform/httpx"
	"github.com/tillpoint/tillpoint/internal/staff"
)

// Handler serves the validator directory endpoint.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers validator routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/validators", h.handleList)
}

// handleList scopes the lookup to the actor's own store. Admins carry no
// store assignment and must name one via the store_id query parameter.
func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	actor := staff.ActorFromContext(r.Context())
	if actor == nil {
		httpx.RespondError(w, httpx.ErrUnauthenticated)
		return
	}

	var storeID int64
	if actor.StoreID != nil {
		storeID = *actor.StoreID
	}
	if raw := r.URL.Query().Get("store_id"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed <= 0 {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "store_id must be a positive integer")
			return
		}
		if actor.Role == staff.RoleAdmin {
			storeID = parsed
		}
	}

	candidates, err := h.service.ListCandidates(r.Context(), actor, storeID)
	if err != nil {
		if err == ErrStoreRequired {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
			return
		}
		h.logger.Error("list validators", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, candidates)
}
