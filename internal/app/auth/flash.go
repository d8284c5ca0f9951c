package auth

import (
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Flash categories used by the templates.
const (
	FlashInfo    = "info"
	FlashSuccess = "success"
	FlashWarning = "warning"
	FlashDanger  = "danger"
)

const flashTTL = 10 * time.Minute

// Flash is a one-shot message shown on the next rendered page.
type Flash struct {
	Category string `json:"category"`
	Message  string `json:"message"`
}

type flashClaims struct {
	Flashes []Flash `json:"flashes"`
	jwt.RegisteredClaims
}

func (m *Manager) flashCookieName() string {
	return m.cookieName + "_flash"
}

func (m *Manager) readFlashes(r *http.Request) []Flash {
	c, err := r.Cookie(m.flashCookieName())
	if err != nil || c.Value == "" {
		return nil
	}
	claims := &flashClaims{}
	if err := m.parse(c.Value, claims); err != nil {
		return nil
	}
	return claims.Flashes
}

// AddFlash queues messages on top of any still pending from r.
func (m *Manager) AddFlash(w http.ResponseWriter, r *http.Request, flashes ...Flash) {
	if len(flashes) == 0 {
		return
	}
	all := append(m.readFlashes(r), flashes...)
	now := m.now()
	token, err := m.sign(flashClaims{
		Flashes: all,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(flashTTL)),
		},
	})
	if err != nil {
		m.log.WithError(err).Warn("drop flash messages")
		return
	}
	m.setCookie(w, m.flashCookieName(), token, now.Add(flashTTL))
}

// PopFlashes returns pending messages and clears them.
func (m *Manager) PopFlashes(w http.ResponseWriter, r *http.Request) []Flash {
	flashes := m.readFlashes(r)
	if _, err := r.Cookie(m.flashCookieName()); err == nil {
		m.expireCookie(w, m.flashCookieName())
	}
	return flashes
}
