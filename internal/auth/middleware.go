package auth

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/tillpoint/tillpoint/internal/platform/httpx"
	"github.com/tillpoint/tillpoint/internal/shared"
	"github.com/tillpoint/tillpoint/internal/staff"
)

// Middleware resolves the authenticated actor for protected routes.
type Middleware struct {
	Staff  staff.RepositoryPort
	Logger *slog.Logger
}

// RequireActor loads the actor named by the session and stores it in the
// request context. The staff row is read on every request — role and store
// changes take effect without re-authentication.
func (m Middleware) RequireActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		if sess == nil {
			httpx.RespondError(w, httpx.ErrUnauthenticated)
			return
		}
		raw := strings.TrimSpace(sess.Staff())
		if raw == "" {
			httpx.RespondError(w, httpx.ErrUnauthenticated)
			return
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			if m.Logger != nil {
				m.Logger.Error("parse staff id from session", slog.String("value", raw))
			}
			httpx.RespondError(w, httpx.ErrUnauthenticated)
			return
		}
		actor, err := m.Staff.FindByID(r.Context(), id)
		if err != nil {
			if err == staff.ErrNotFound {
				httpx.RespondError(w, httpx.ErrUnauthenticated)
				return
			}
			if m.Logger != nil {
				m.Logger.Error("load actor", slog.Any("error", err))
			}
			httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
			return
		}
		if !actor.IsActive {
			httpx.RespondError(w, httpx.ErrUnauthenticated)
			return
		}
		next.ServeHTTP(w, r.WithContext(staff.ContextWithActor(r.Context(), actor)))
	})
}
