// Package session owns the authentication state of the client and its
// persistence in the key/value store.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/newthinker/tradedesk/internal/core"
	"github.com/newthinker/tradedesk/internal/metrics"
	"github.com/newthinker/tradedesk/internal/storage/kv"
	"go.uber.org/zap"
)

// Store keys. Both are written, removed and read together.
const (
	KeyToken    = "token"
	KeyUsername = "username"
)

// State is the authentication state.
type State string

const (
	StateAnonymous      State = "anonymous"
	StateAuthenticating State = "authenticating"
	StateLoggedIn       State = "logged_in"
)

// Authenticator is the part of the backend the manager talks to.
type Authenticator interface {
	Signup(ctx context.Context, creds core.Credentials) error
	Login(ctx context.Context, creds core.Credentials) (string, error)
}

// Listener is told when a session starts, by login or restore.
type Listener interface {
	SessionStarted(ctx context.Context, token string)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(ctx context.Context, token string)

func (f ListenerFunc) SessionStarted(ctx context.Context, token string) { f(ctx, token) }

// Manager holds the single session of the process.
type Manager struct {
	auth    Authenticator
	store   kv.Store
	logger  *zap.Logger
	metrics *metrics.Registry

	mu        sync.RWMutex
	state     State
	session   core.Session
	creds     core.Credentials
	listeners []Listener
}

// NewManager creates a manager in the Anonymous state.
func NewManager(auth Authenticator, store kv.Store, logger *zap.Logger, reg *metrics.Registry) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		auth:    auth,
		store:   store,
		logger:  logger,
		metrics: reg,
		state:   StateAnonymous,
		session: core.AnonymousSession(),
	}
}

// OnSessionStarted registers l to run after every successful login or restore.
func (m *Manager) OnSessionStarted(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Session returns a copy of the current session.
func (m *Manager) Session() core.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session
}

// Token returns the current bearer token, empty when logged out.
func (m *Manager) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session.Token
}

// Credentials returns the credentials of the pending or last failed form.
func (m *Manager) Credentials() core.Credentials {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.creds
}

// Restore loads a persisted session. No backend call is made, so a stale
// token is only noticed by the next authenticated request.
func (m *Manager) Restore(ctx context.Context) (bool, error) {
	m.mu.RLock()
	state := m.state
	m.mu.RUnlock()
	if state != StateAnonymous {
		return false, core.WrapError(core.ErrInvalidState, fmt.Errorf("restore while %s", state))
	}

	token, _, err := m.store.Get(ctx, KeyToken)
	if err != nil {
		return false, core.WrapError(core.ErrStore, err)
	}
	if token == "" {
		return false, nil
	}
	username, _, err := m.store.Get(ctx, KeyUsername)
	if err != nil {
		return false, core.WrapError(core.ErrStore, err)
	}

	next := core.LoggedInSession(username, token)
	m.mu.Lock()
	m.state = StateLoggedIn
	m.session = next
	m.mu.Unlock()

	m.logger.Info("session restored", zap.String("username", username))
	if m.metrics != nil {
		m.metrics.RecordLogin("restore", true)
	}

	m.notify(ctx, token)
	return true, nil
}

// Signup registers an account. It never logs in; on success the form is
// cleared and the manager stays Anonymous.
func (m *Manager) Signup(ctx context.Context, creds core.Credentials) error {
	if err := validate(creds, true); err != nil {
		return err
	}
	prev, err := m.begin(creds)
	if err != nil {
		return err
	}

	if err := m.auth.Signup(ctx, creds); err != nil {
		m.rollback(prev)
		m.logger.Warn("signup failed",
			zap.String("username", creds.Username),
			zap.Error(err),
		)
		return err
	}

	m.mu.Lock()
	m.state = prev
	m.creds = core.Credentials{}
	m.mu.Unlock()

	m.logger.Info("signup succeeded", zap.String("username", creds.Username))
	return nil
}

// Login authenticates, persists token and username, and starts the session.
// On any failure state and store are left as they were.
func (m *Manager) Login(ctx context.Context, creds core.Credentials) error {
	if err := validate(creds, false); err != nil {
		return err
	}
	prev, err := m.begin(creds)
	if err != nil {
		return err
	}

	token, err := m.auth.Login(ctx, core.Credentials{Username: creds.Username, Password: creds.Password})
	if err != nil {
		m.rollback(prev)
		m.recordLogin(false)
		m.logger.Warn("login failed",
			zap.String("username", creds.Username),
			zap.Error(err),
		)
		return err
	}

	next := core.LoggedInSession(creds.Username, token)
	if !next.IsValid() {
		m.rollback(prev)
		m.recordLogin(false)
		return core.WrapError(core.ErrAuthRejected, fmt.Errorf("login answered without a token"))
	}
	if err := m.persist(ctx, next); err != nil {
		m.rollback(prev)
		m.recordLogin(false)
		m.logger.Error("persisting session failed", zap.Error(err))
		return err
	}

	m.mu.Lock()
	m.state = StateLoggedIn
	m.session = next
	m.creds = core.Credentials{}
	m.mu.Unlock()

	m.recordLogin(true)
	m.logger.Info("logged in", zap.String("username", creds.Username))

	m.notify(ctx, token)
	return nil
}

// Logout drops the session in memory and in the store. It cannot fail;
// store errors are logged.
func (m *Manager) Logout(ctx context.Context) {
	m.mu.Lock()
	username := m.session.Username
	m.state = StateAnonymous
	m.session = core.AnonymousSession()
	m.creds = core.Credentials{}
	m.mu.Unlock()

	for _, key := range []string{KeyToken, KeyUsername} {
		if err := m.store.Remove(ctx, key); err != nil {
			m.logger.Warn("removing persisted session entry failed",
				zap.String("key", key),
				zap.Error(err),
			)
		}
	}

	if m.metrics != nil {
		m.metrics.RecordLogout()
	}
	m.logger.Info("logged out", zap.String("username", username))
}

// begin moves Anonymous to Authenticating and returns the state to roll
// back to.
func (m *Manager) begin(creds core.Credentials) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateAnonymous {
		return "", core.WrapError(core.ErrInvalidState, fmt.Errorf("cannot authenticate while %s", m.state))
	}
	prev := m.state
	m.state = StateAuthenticating
	m.creds = creds
	return prev, nil
}

func (m *Manager) rollback(prev State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = prev
}

// persist writes both entries; if the second write fails the first is
// undone so the store never holds half a session.
func (m *Manager) persist(ctx context.Context, s core.Session) error {
	if err := m.store.Set(ctx, KeyToken, s.Token); err != nil {
		return core.WrapError(core.ErrStore, err)
	}
	if err := m.store.Set(ctx, KeyUsername, s.Username); err != nil {
		if rmErr := m.store.Remove(ctx, KeyToken); rmErr != nil {
			m.logger.Warn("undoing token write failed", zap.Error(rmErr))
		}
		return core.WrapError(core.ErrStore, err)
	}
	return nil
}

func (m *Manager) notify(ctx context.Context, token string) {
	m.mu.RLock()
	listeners := make([]Listener, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.RUnlock()

	for _, l := range listeners {
		l.SessionStarted(ctx, token)
	}
}

func (m *Manager) recordLogin(ok bool) {
	if m.metrics != nil {
		m.metrics.RecordLogin("login", ok)
	}
}

func validate(creds core.Credentials, signup bool) error {
	if creds.IsZero() {
		return core.WrapError(core.ErrInvalidCredentials, fmt.Errorf("empty form"))
	}
	var missing []string
	if strings.TrimSpace(creds.Username) == "" {
		missing = append(missing, "username")
	}
	if signup && strings.TrimSpace(creds.Email) == "" {
		missing = append(missing, "email")
	}
	if creds.Password == "" {
		missing = append(missing, "password")
	}
	if len(missing) > 0 {
		return core.WrapError(core.ErrInvalidCredentials, fmt.Errorf("missing %s", strings.Join(missing, ", ")))
	}
	return nil
}
