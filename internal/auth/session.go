package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	SessionCookieName = "moldock_session"

	defaultSessionTTL = 24 * time.Hour
)

type session struct {
	userID    string
	expiresAt time.Time
}

// SessionManager issues and validates HMAC-signed session tokens carried in
// a cookie. Sessions live in memory; a restart logs everyone out.
type SessionManager struct {
	secret []byte
	ttl    time.Duration

	mu       sync.RWMutex
	sessions map[string]session
}

func NewSessionManager(secret string) *SessionManager {
	return &SessionManager{
		secret:   []byte(secret),
		ttl:      defaultSessionTTL,
		sessions: make(map[string]session),
	}
}

// Issue creates a session for a user and sets the cookie on the response.
func (m *SessionManager) Issue(w http.ResponseWriter, userID string) string {
	raw := make([]byte, 16)
	_, _ = rand.Read(raw)
	id := hex.EncodeToString(raw)
	token := id + "." + m.sign(id)

	m.mu.Lock()
	m.sessions[id] = session{userID: userID, expiresAt: time.Now().Add(m.ttl)}
	m.mu.Unlock()

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(m.ttl.Seconds()),
	})
	return token
}

// UserID resolves the session cookie on a request to a user ID.
func (m *SessionManager) UserID(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return "", false
	}
	id, sig, ok := strings.Cut(cookie.Value, ".")
	if !ok || !hmac.Equal([]byte(sig), []byte(m.sign(id))) {
		return "", false
	}

	m.mu.RLock()
	sess, exists := m.sessions[id]
	m.mu.RUnlock()
	if !exists {
		return "", false
	}
	if time.Now().After(sess.expiresAt) {
		m.mu.Lock()
		delete(m.sessions, id)
		m.mu.Unlock()
		return "", false
	}
	return sess.userID, true
}

// Revoke drops the session named by the request cookie and clears the cookie.
func (m *SessionManager) Revoke(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		if id, _, ok := strings.Cut(cookie.Value, "."); ok {
			m.mu.Lock()
			delete(m.sessions, id)
			m.mu.Unlock()
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}

func (m *SessionManager) sign(id string) string {
	mac := hmac.New(sha256.New, m.secret)
	mac.Write([]byte(id))
	return hex.EncodeToString(mac.Sum(nil))
}
