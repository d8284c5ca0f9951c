// Package auth manages signed browser sessions, flash messages and password hashing.
package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/alfredchat/alfred/internal/config"
	"github.com/alfredchat/alfred/pkg/logger"
)

var (
	// ErrNoSession is returned when the request carries no usable session.
	ErrNoSession = errors.New("no session")
	// ErrRevoked is returned for a session that was logged out.
	ErrRevoked = errors.New("session revoked")
)

const issuer = "alfred"

// Identity is what a valid session proves about the caller.
type Identity struct {
	Username  string
	IsAdmin   bool
	SessionID string
}

// Claims is the JWT payload of the session cookie.
type Claims struct {
	Username string `json:"username"`
	IsAdmin  bool   `json:"admin,omitempty"`
	jwt.RegisteredClaims
}

// Manager issues and verifies session cookies.
type Manager struct {
	key        []byte
	cookieName string
	ttl        time.Duration
	secure     bool
	revoker    Revoker
	log        *logger.Logger
	now        func() time.Time
}

// NewManager builds a Manager. An empty secret is replaced by a random
// per-process key, which invalidates sessions on every restart.
func NewManager(cfg config.SessionConfig, secure bool, revoker Revoker, log *logger.Logger) *Manager {
	if log == nil {
		log = logger.NewDefault("session")
	}
	if revoker == nil {
		revoker = NewMemoryRevoker()
	}
	key := []byte(cfg.Secret)
	if len(key) == 0 {
		log.Error("SESSION_SECRET is not set; using a random key, sessions will not survive a restart")
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			panic(fmt.Sprintf("generate session key: %v", err))
		}
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	name := cfg.CookieName
	if name == "" {
		name = "alfred_session"
	}
	return &Manager{
		key:        key,
		cookieName: name,
		ttl:        ttl,
		secure:     secure,
		revoker:    revoker,
		log:        log,
		now:        time.Now,
	}
}

// WithClock overrides the time source.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// CookieName returns the name of the session cookie.
func (m *Manager) CookieName() string {
	return m.cookieName
}

// Issue starts a new session for username and sets the cookie.
func (m *Manager) Issue(w http.ResponseWriter, username string, isAdmin bool) (Identity, error) {
	now := m.now()
	id := Identity{Username: username, IsAdmin: isAdmin, SessionID: uuid.NewString()}
	claims := Claims{
		Username: username,
		IsAdmin:  isAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id.SessionID,
			Issuer:    issuer,
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	token, err := m.sign(claims)
	if err != nil {
		return Identity{}, err
	}
	m.setCookie(w, m.cookieName, token, now.Add(m.ttl))
	return id, nil
}

// Load validates the session cookie on r.
func (m *Manager) Load(r *http.Request) (Identity, error) {
	c, err := r.Cookie(m.cookieName)
	if err != nil || c.Value == "" {
		return Identity{}, ErrNoSession
	}

	claims := &Claims{}
	if err := m.parse(c.Value, claims); err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrNoSession, err)
	}
	if claims.Username == "" || claims.ID == "" {
		return Identity{}, ErrNoSession
	}

	revoked, err := m.revoker.IsRevoked(r.Context(), claims.ID)
	if err != nil {
		return Identity{}, fmt.Errorf("check revocation: %w", err)
	}
	if revoked {
		return Identity{}, ErrRevoked
	}
	return Identity{Username: claims.Username, IsAdmin: claims.IsAdmin, SessionID: claims.ID}, nil
}

// Clear revokes the current session, if any, and expires the cookie.
func (m *Manager) Clear(w http.ResponseWriter, r *http.Request) error {
	defer m.expireCookie(w, m.cookieName)

	c, err := r.Cookie(m.cookieName)
	if err != nil {
		return nil
	}
	claims := &Claims{}
	if err := m.parse(c.Value, claims); err != nil || claims.ID == "" {
		return nil
	}
	until := m.now().Add(m.ttl)
	if claims.ExpiresAt != nil {
		until = claims.ExpiresAt.Time
	}
	if err := m.revoker.Revoke(r.Context(), claims.ID, until); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

func (m *Manager) sign(claims jwt.Claims) (string, error) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.key)
	if err != nil {
		return "", fmt.Errorf("sign session: %w", err)
	}
	return token, nil
}

func (m *Manager) parse(raw string, claims jwt.Claims) error {
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return m.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(m.now),
	)
	return err
}

func (m *Manager) setCookie(w http.ResponseWriter, name, value string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		MaxAge:   int(expires.Sub(m.now()).Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (m *Manager) expireCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

type contextKey struct{}

// WithIdentity stores id on ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext returns the identity set by the session middleware.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(Identity)
	return id, ok && id.Username != ""
}
