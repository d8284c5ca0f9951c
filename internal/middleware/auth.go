// Package middleware provides HTTP middleware for the web application
package middleware

import (
	"errors"
	"net/http"

	"github.com/alfredchat/alfred/internal/app/auth"
	internalhttputil "github.com/alfredchat/alfred/internal/httputil"
	"github.com/alfredchat/alfred/pkg/logger"
)

// SessionMiddleware resolves the session cookie into an auth.Identity.
type SessionMiddleware struct {
	sessions *auth.Manager
	logger   *logger.Logger
}

// NewSessionMiddleware creates a new session middleware
func NewSessionMiddleware(sessions *auth.Manager, log *logger.Logger) *SessionMiddleware {
	return &SessionMiddleware{sessions: sessions, logger: log}
}

// Handler attaches the caller's identity to the request context when the
// session is valid. Requests without one pass through anonymously.
func (m *SessionMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := m.sessions.Load(r)
		switch {
		case err == nil:
			ctx := auth.WithIdentity(r.Context(), id)
			ctx = logger.WithUserID(ctx, id.Username)
			r = r.WithContext(ctx)
		case errors.Is(err, auth.ErrRevoked):
			m.logger.LogSecurityEvent(r.Context(), "revoked_session_used", map[string]interface{}{
				"path": r.URL.Path,
			})
		case !errors.Is(err, auth.ErrNoSession):
			m.logger.WithContext(r.Context()).WithError(err).Warn("Session lookup failed")
		}
		next.ServeHTTP(w, r)
	})
}

// RequirePage redirects anonymous callers to the login page.
func (m *SessionMiddleware) RequirePage(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth.FromContext(r.Context()); !ok {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAPI answers anonymous callers with a JSON 401.
func (m *SessionMiddleware) RequireAPI(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth.FromContext(r.Context()); !ok {
			internalhttputil.Unauthorized(w, "")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin sends non-admins back to the chat page with a flash message.
// Anonymous callers go to the login page.
func (m *SessionMiddleware) RequireAdmin(next http.Handler) http.Handler {
	return m.RequirePage(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := auth.FromContext(r.Context())
		if !id.IsAdmin {
			m.logger.LogSecurityEvent(r.Context(), "admin_access_denied", map[string]interface{}{
				"path": r.URL.Path,
			})
			m.sessions.AddFlash(w, r, auth.Flash{Category: auth.FlashDanger, Message: "You do not have permission to access this page."})
			http.Redirect(w, r, "/chat", http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	}))
}
