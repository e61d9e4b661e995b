// Package session issues the signed visitor cookie whose identifier scopes all visitor
// state in the kv substrate.
package session

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/dmu-smartstyle/storefront/internal/platform/config"
	"github.com/dmu-smartstyle/storefront/internal/platform/requestctx"
)

// Session is the payload carried in the signed cookie.
type Session struct {
	ID        string    `json:"id"`
	CSRFToken string    `json:"csrf"`
	CreatedAt time.Time `json:"createdAt"`
}

// Manager encodes, verifies and issues session cookies.
type Manager struct {
	cookieName string
	key        []byte
	ttl        time.Duration
	secure     bool
	now        func() time.Time
	newID      func() string
}

// Option customises a Manager.
type Option func(*Manager)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithIDGenerator overrides session id generation.
func WithIDGenerator(gen func() string) Option {
	return func(m *Manager) {
		if gen != nil {
			m.newID = gen
		}
	}
}

// NewManager constructs a Manager from configuration.
func NewManager(cfg config.SessionConfig, opts ...Option) (*Manager, error) {
	key := strings.TrimSpace(cfg.SigningKey)
	if key == "" {
		return nil, errors.New("session: signing key is required")
	}
	name := strings.TrimSpace(cfg.CookieName)
	if name == "" {
		return nil, errors.New("session: cookie name is required")
	}
	m := &Manager{
		cookieName: name,
		key:        []byte(key),
		ttl:        cfg.TTL,
		secure:     cfg.Secure,
		now:        func() time.Time { return time.Now().UTC() },
		newID:      func() string { return ulid.Make().String() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m, nil
}

// CookieName returns the name of the session cookie.
func (m *Manager) CookieName() string {
	return m.cookieName
}

// New starts a fresh session.
func (m *Manager) New() Session {
	return Session{
		ID:        m.newID(),
		CSRFToken: newCSRFToken(),
		CreatedAt: m.now(),
	}
}

// Encode serialises and signs s.
func (m *Manager) Encode(s Session) (string, error) {
	payload, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(payload) + "." + base64.RawURLEncoding.EncodeToString(m.sign(payload)), nil
}

// Decode verifies value and returns the session it carries. Tampered, malformed or expired
// values report false.
func (m *Manager) Decode(value string) (Session, bool) {
	parts := strings.Split(value, ".")
	if len(parts) != 2 {
		return Session{}, false
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return Session{}, false
	}
	sig, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return Session{}, false
	}
	if !hmac.Equal(sig, m.sign(payload)) {
		return Session{}, false
	}
	var s Session
	if err := json.Unmarshal(payload, &s); err != nil {
		return Session{}, false
	}
	if _, err := ulid.ParseStrict(s.ID); err != nil {
		return Session{}, false
	}
	if m.ttl > 0 && !s.CreatedAt.IsZero() && m.now().After(s.CreatedAt.Add(m.ttl)) {
		return Session{}, false
	}
	return s, true
}

// Cookie builds the cookie carrying s.
func (m *Manager) Cookie(s Session) (*http.Cookie, error) {
	value, err := m.Encode(s)
	if err != nil {
		return nil, err
	}
	cookie := &http.Cookie{
		Name:     m.cookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	}
	if m.ttl > 0 {
		cookie.Expires = s.CreatedAt.Add(m.ttl)
	}
	return cookie, nil
}

// Middleware loads the session from the request cookie, issuing a new one when the cookie
// is missing or invalid, and stores it on the request context.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var (
			s  Session
			ok bool
		)
		if c, err := r.Cookie(m.cookieName); err == nil && c.Value != "" {
			s, ok = m.Decode(c.Value)
		}
		if !ok {
			s = m.New()
			cookie, err := m.Cookie(s)
			if err != nil {
				requestctx.Logger(r.Context()).Sugar().Errorw("session cookie encode failed", "error", err)
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			http.SetCookie(w, cookie)
		}

		ctx := WithSession(r.Context(), s)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *Manager) sign(payload []byte) []byte {
	mac := hmac.New(sha256.New, m.key)
	mac.Write(payload)
	return mac.Sum(nil)
}

type sessionKey struct{}

// WithSession stores s on ctx along with its id for logging and kv scoping.
func WithSession(ctx context.Context, s Session) context.Context {
	ctx = context.WithValue(ctx, sessionKey{}, s)
	return requestctx.WithSessionID(ctx, s.ID)
}

// FromContext returns the session stored on ctx.
func FromContext(ctx context.Context) (Session, bool) {
	if ctx == nil {
		return Session{}, false
	}
	s, ok := ctx.Value(sessionKey{}).(Session)
	return s, ok
}

// ID returns the session id stored on ctx. It is the namespace resolver handed to
// kv.NewScopedStore.
func ID(ctx context.Context) string {
	return requestctx.SessionID(ctx)
}

func newCSRFToken() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
