package till

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/tillpoint/tillpoint/internal/pin"
	"github.com/tillpoint/tillpoint/internal/platform/httpx"
	"github.com/tillpoint/tillpoint/internal/staff"
)

// LifecycleService defines the session operations used by the handler.
type LifecycleService interface {
	Open(ctx context.Context, actor *staff.Actor, in OpenInput) (Session, error)
	Active(ctx context.Context, actor *staff.Actor) (*Session, error)
	Lock(ctx context.Context, actor *staff.Actor, sessionID uuid.UUID) (Session, error)
	Unlock(ctx context.Context, actor *staff.Actor, in UnlockInput) (Session, error)
	Close(ctx context.Context, actor *staff.Actor, in CloseInput) (CloseResult, error)
}

// TransitionObserver records successful lifecycle transitions for metrics.
type TransitionObserver interface {
	ObserveTransition(action string)
}

// Handler coordinates HTTP requests for the till session lifecycle.
type Handler struct {
	logger    *slog.Logger
	service   LifecycleService
	metrics   TransitionObserver
	validator *validator.Validate
}

// NewHandler constructs the till HTTP handler. metrics may be nil.
func NewHandler(logger *slog.Logger, service LifecycleService, metrics TransitionObserver) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		metrics:   metrics,
		validator: validator.New(),
	}
}

// MountRoutes registers till routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/sessions", h.handleOpen)
	r.Get("/sessions/active", h.handleActive)
	r.Post("/sessions/{sessionID}/lock", h.handleLock)
	r.Post("/sessions/{sessionID}/unlock", h.handleUnlock)
	r.Post("/sessions/{sessionID}/close", h.handleClose)
}

type openRequest struct {
	StoreID       int64   `json:"store_id" validate:"required,gt=0"`
	OpeningAmount float64 `json:"opening_amount" validate:"gte=0"`
	Notes         string  `json:"notes"`
}

func (h *Handler) handleOpen(w http.ResponseWriter, r *http.Request) {
	actor := staff.ActorFromContext(r.Context())
	if actor == nil {
		httpx.RespondError(w, httpx.ErrUnauthenticated)
		return
	}
	var req openRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", validationDetail(err))
		return
	}
	sess, err := h.service.Open(r.Context(), actor, OpenInput{
		StoreID:       req.StoreID,
		OpeningAmount: req.OpeningAmount,
		Notes:         req.Notes,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.observe("open")
	httpx.JSON(w, http.StatusCreated, sess)
}

func (h *Handler) handleActive(w http.ResponseWriter, r *http.Request) {
	actor := staff.ActorFromContext(r.Context())
	if actor == nil {
		httpx.RespondError(w, httpx.ErrUnauthenticated)
		return
	}
	sess, err := h.service.Active(r.Context(), actor)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"session": sess})
}

func (h *Handler) handleLock(w http.ResponseWriter, r *http.Request) {
	actor := staff.ActorFromContext(r.Context())
	if actor == nil {
		httpx.RespondError(w, httpx.ErrUnauthenticated)
		return
	}
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	sess, err := h.service.Lock(r.Context(), actor, sessionID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.observe("lock")
	httpx.JSON(w, http.StatusOK, sess)
}

type unlockRequest struct {
	Pin         string `json:"pin" validate:"required"`
	ValidatorID *int64 `json:"validator_id"`
}

func (h *Handler) handleUnlock(w http.ResponseWriter, r *http.Request) {
	actor := staff.ActorFromContext(r.Context())
	if actor == nil {
		httpx.RespondError(w, httpx.ErrUnauthenticated)
		return
	}
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	var req unlockRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", validationDetail(err))
		return
	}
	sess, err := h.service.Unlock(r.Context(), actor, UnlockInput{
		SessionID:   sessionID,
		Pin:         req.Pin,
		ValidatorID: req.ValidatorID,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.observe("unlock")
	httpx.JSON(w, http.StatusOK, sess)
}

type closeRequest struct {
	ClosingAmount float64 `json:"closing_amount" validate:"gte=0"`
	Notes         string  `json:"notes"`
	ApproverID    *int64  `json:"approver_id"`
	ApproverPin   string  `json:"approver_pin"`
}

type approvalRequiredResponse struct {
	ApprovalRequired bool    `json:"approval_required"`
	Discrepancy      float64 `json:"discrepancy"`
}

type closedResponse struct {
	Session *Session      `json:"session"`
	Summary *CloseSummary `json:"summary"`
}

func (h *Handler) handleClose(w http.ResponseWriter, r *http.Request) {
	actor := staff.ActorFromContext(r.Context())
	if actor == nil {
		httpx.RespondError(w, httpx.ErrUnauthenticated)
		return
	}
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	var req closeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", validationDetail(err))
		return
	}
	result, err := h.service.Close(r.Context(), actor, CloseInput{
		SessionID:     sessionID,
		ClosingAmount: req.ClosingAmount,
		Notes:         req.Notes,
		ApproverID:    req.ApproverID,
		ApproverPin:   req.ApproverPin,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	if result.ApprovalRequired {
		httpx.JSON(w, http.StatusOK, approvalRequiredResponse{
			ApprovalRequired: true,
			Discrepancy:      result.Discrepancy,
		})
		return
	}
	h.observe("close")
	httpx.JSON(w, http.StatusOK, closedResponse{Session: result.Session, Summary: result.Summary})
}

func (h *Handler) sessionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		httpx.Problem(w, http.StatusNotFound, "Not Found", ErrSessionNotFound.Error())
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) observe(action string) {
	if h.metrics != nil {
		h.metrics.ObserveTransition(action)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch err {
	case ErrStoreRequired, ErrAmountNegative:
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case ErrNotAuthorized:
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "")
	case ErrSessionNotFound, ErrValidatorNotFound:
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case ErrSessionAlreadyOpen, ErrSessionAlreadyLocked, ErrSessionLocked, ErrSessionNotLocked, ErrSessionClosed:
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case pin.ErrNotConfigured:
		// Same status as a wrong PIN; only the message differs.
		httpx.Problem(w, http.StatusUnauthorized, "Credential Error", "PIN not configured")
	case pin.ErrMismatch:
		httpx.Problem(w, http.StatusUnauthorized, "Credential Error", "invalid PIN")
	default:
		h.logger.Error("till session", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func validationDetail(err error) string {
	if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
		return errs[0].Error()
	}
	return "invalid request"
}
