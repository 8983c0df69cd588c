package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"helper_chat/internal/backend"
	"helper_chat/internal/localstate"
)

// Authenticator is the slice of the backend gateway the session manager
// needs. *backend.Client satisfies it.
type Authenticator interface {
	SignIn(ctx context.Context, email, password string) (*backend.Session, error)
	SignUp(ctx context.Context, email, password string, meta map[string]any) (*backend.Session, error)
	SignOut(ctx context.Context) error
	RefreshSession(ctx context.Context, refreshToken string) (*backend.Session, error)
	OnAuthChange(func(*backend.Session))
}

// TokenStore persists the refresh token between runs.
type TokenStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, now time.Time) error
	Delete(ctx context.Context, key string) error
}

// Manager owns the authentication session lifecycle: bootstrap from the
// persisted token, sign-in/up/out, and change notification. It exposes the
// current user or nil; consumers react to transitions via OnChange.
type Manager struct {
	auth   Authenticator
	tokens TokenStore
	logger *slog.Logger
	now    func() time.Time

	mu           sync.RWMutex
	current      *backend.User
	listeners    map[int]func(*backend.User)
	nextListener int
}

func NewManager(auth Authenticator, tokens TokenStore, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	manager := &Manager{
		auth:   auth,
		tokens: tokens,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
	auth.OnAuthChange(manager.handleAuthChange)
	return manager
}

func (m *Manager) handleAuthChange(session *backend.Session) {
	ctx := context.Background()

	var user *backend.User
	if session != nil {
		copied := session.User
		user = &copied
		if err := m.tokens.Set(ctx, localstate.KeySessionToken, session.RefreshToken, m.now()); err != nil {
			m.logger.Warn("failed to persist session token", "error", err)
		}
	} else {
		if err := m.tokens.Delete(ctx, localstate.KeySessionToken); err != nil {
			m.logger.Warn("failed to clear session token", "error", err)
		}
	}

	m.mu.Lock()
	m.current = user
	listeners := make([]func(*backend.User), 0, len(m.listeners))
	for _, listener := range m.listeners {
		listeners = append(listeners, listener)
	}
	m.mu.Unlock()

	for _, listener := range listeners {
		listener(user)
	}
}

// Bootstrap restores the session from a persisted refresh token, if any. A
// stale or rejected token is cleared and the app starts signed out.
func (m *Manager) Bootstrap(ctx context.Context) {
	token, err := m.tokens.Get(ctx, localstate.KeySessionToken)
	if errors.Is(err, localstate.ErrNotFound) {
		return
	}
	if err != nil {
		m.logger.Warn("failed to read persisted session", "error", err)
		return
	}
	if _, err := m.auth.RefreshSession(ctx, token); err != nil {
		m.logger.Warn("persisted session rejected", "error", err)
		if err := m.tokens.Delete(ctx, localstate.KeySessionToken); err != nil {
			m.logger.Warn("failed to clear session token", "error", err)
		}
	}
}

// Current returns the signed-in user, nil when signed out.
func (m *Manager) Current() *backend.User {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// OnChange registers a listener fired on login, logout and token refresh.
// The returned func removes it.
func (m *Manager) OnChange(listener func(*backend.User)) func() {
	m.mu.Lock()
	if m.listeners == nil {
		m.listeners = make(map[int]func(*backend.User))
	}
	id := m.nextListener
	m.nextListener++
	m.listeners[id] = listener
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

func (m *Manager) SignIn(ctx context.Context, email, password string) error {
	_, err := m.auth.SignIn(ctx, email, password)
	return err
}

func (m *Manager) SignUp(ctx context.Context, email, password, universityID string) error {
	_, err := m.auth.SignUp(ctx, email, password, map[string]any{"university_id": universityID})
	return err
}

func (m *Manager) SignOut(ctx context.Context) error {
	return m.auth.SignOut(ctx)
}
