package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alfredchat/alfred/internal/app/auth"
	"github.com/alfredchat/alfred/internal/config"
	"github.com/alfredchat/alfred/pkg/logger"
)

func testLogger() *logger.Logger {
	log := logger.NewDefault("test")
	log.SetOutput(io.Discard)
	return log
}

func newSessions() *auth.Manager {
	return auth.NewManager(config.SessionConfig{Secret: "test", CookieName: "sid", TTL: time.Hour}, false, nil, testLogger())
}

// sessionRequest returns a request carrying a fresh session for username.
func sessionRequest(t *testing.T, m *auth.Manager, method, path, username string, admin bool) *http.Request {
	t.Helper()
	rec := httptest.NewRecorder()
	if _, err := m.Issue(rec, username, admin); err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	req := httptest.NewRequest(method, path, nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	return req
}

func okHandler(t *testing.T, wantUser string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := auth.FromContext(r.Context())
		if id.Username != wantUser {
			t.Errorf("identity = %q, want %q", id.Username, wantUser)
		}
		if got := logger.GetUserID(r.Context()); got != wantUser {
			t.Errorf("log user = %q, want %q", got, wantUser)
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestSessionMiddleware_Anonymous(t *testing.T) {
	m := NewSessionMiddleware(newSessions(), testLogger())
	rec := httptest.NewRecorder()

	m.Handler(okHandler(t, "")).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestSessionMiddleware_ValidSession(t *testing.T) {
	sessions := newSessions()
	m := NewSessionMiddleware(sessions, testLogger())
	rec := httptest.NewRecorder()

	m.Handler(okHandler(t, "alice")).ServeHTTP(rec, sessionRequest(t, sessions, http.MethodGet, "/chat", "alice", false))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestSessionMiddleware_RevokedSession(t *testing.T) {
	sessions := newSessions()
	m := NewSessionMiddleware(sessions, testLogger())
	req := sessionRequest(t, sessions, http.MethodGet, "/chat", "alice", false)
	if err := sessions.Clear(httptest.NewRecorder(), req); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}

	rec := httptest.NewRecorder()
	m.Handler(okHandler(t, "")).ServeHTTP(rec, req)
}

func TestRequirePage_RedirectsToLogin(t *testing.T) {
	m := NewSessionMiddleware(newSessions(), testLogger())
	rec := httptest.NewRecorder()

	h := m.Handler(m.RequirePage(okHandler(t, "")))
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/chat", nil))

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/login" {
		t.Errorf("Location = %q, want /login", loc)
	}
}

func TestRequireAPI_Unauthorized(t *testing.T) {
	m := NewSessionMiddleware(newSessions(), testLogger())
	rec := httptest.NewRecorder()

	h := m.Handler(m.RequireAPI(okHandler(t, "")))
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/chat", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if body := strings.TrimSpace(rec.Body.String()); body != `{"error":"Unauthorized"}` {
		t.Errorf("body = %s", body)
	}
}

func TestRequireAdmin(t *testing.T) {
	sessions := newSessions()
	m := NewSessionMiddleware(sessions, testLogger())

	tests := []struct {
		name     string
		req      *http.Request
		wantCode int
		wantLoc  string
	}{
		{"anonymous", httptest.NewRequest(http.MethodGet, "/admin/create-user", nil), http.StatusFound, "/login"},
		{"non-admin", sessionRequest(t, sessions, http.MethodGet, "/admin/create-user", "bob", false), http.StatusFound, "/chat"},
		{"admin", sessionRequest(t, sessions, http.MethodGet, "/admin/create-user", "admin", true), http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h := m.Handler(m.RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			})))
			h.ServeHTTP(rec, tt.req)

			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if loc := rec.Header().Get("Location"); loc != tt.wantLoc {
				t.Errorf("Location = %q, want %q", loc, tt.wantLoc)
			}
		})
	}
}
