package pin

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/tillpoint/tillpoint/internal/platform/httpx"
	"github.com/tillpoint/tillpoint/internal/staff"
)

// Handler wires HTTP endpoints for the PIN settings capability.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		validator: validator.New(),
	}
}

// MountRoutes registers PIN settings routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Put("/pin", h.handleSetPin)
	r.Get("/pin", h.handleStatus)
	r.Delete("/pin", h.handleDeletePin)
}

type setPinRequest struct {
	Pin string `json:"pin" validate:"required"`
}

func (h *Handler) handleSetPin(w http.ResponseWriter, r *http.Request) {
	actor := staff.ActorFromContext(r.Context())
	if actor == nil {
		httpx.RespondError(w, httpx.ErrUnauthenticated)
		return
	}
	var req setPinRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "pin is required")
		return
	}
	if err := h.service.SetPin(r.Context(), actor, req.Pin); err != nil {
		h.respondError(w, err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	actor := staff.ActorFromContext(r.Context())
	if actor == nil {
		httpx.RespondError(w, httpx.ErrUnauthenticated)
		return
	}
	status, err := h.service.Status(r.Context(), actor)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, status)
}

func (h *Handler) handleDeletePin(w http.ResponseWriter, r *http.Request) {
	actor := staff.ActorFromContext(r.Context())
	if actor == nil {
		httpx.RespondError(w, httpx.ErrUnauthenticated)
		return
	}
	if err := h.service.DeletePin(r.Context(), actor.ID); err != nil {
		h.respondError(w, err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch err {
	case ErrInvalidFormat:
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case ErrRoleNotAllowed:
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "")
	default:
		h.logger.Error("pin settings", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
