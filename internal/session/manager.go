// Package session implements server-side cookie sessions for the web app.
package session

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"schooladmin.org/internal/account"
	"schooladmin.org/internal/auth"
	"schooladmin.org/internal/ids"
	"schooladmin.org/internal/obs"
)

// Store persists sessions. Lookups by hash return auth.ErrNotFound on a miss.
type Store interface {
	CreateSession(ctx context.Context, s auth.Session) error
	SessionByHash(ctx context.Context, hash string) (auth.Session, error)
	TouchSession(ctx context.Context, id string, at time.Time) error
	DeleteSession(ctx context.Context, id string) error
	// DeleteUserSession reports whether a session of userID was removed.
	DeleteUserSession(ctx context.Context, userID, id string) (bool, error)
	// ListUserSessions orders by last activity, newest first.
	ListUserSessions(ctx context.Context, userID string) ([]auth.Session, error)
	// DeleteUserSessions removes every session of userID except exceptID.
	// An empty exceptID removes all of them.
	DeleteUserSessions(ctx context.Context, userID, exceptID string) (int64, error)
}

const DefaultLifetime = 120 * time.Minute

var (
	errNoSession      = auth.Fail(auth.ErrUnauthenticated, "auth.unauthenticated")
	errSessionExpired = auth.Fail(auth.ErrUnauthenticated, "auth.session_expired")
)

// Manager issues and validates cookie sessions.
type Manager struct {
	store    Store
	users    auth.UserStore
	csrf     *auth.CSRF
	lifetime time.Duration
	now      func() time.Time
}

type Option func(*Manager)

// WithLifetime sets the inactivity window after which a session expires.
func WithLifetime(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.lifetime = d
		}
	}
}

func WithClock(fn func() time.Time) Option {
	return func(m *Manager) {
		if fn != nil {
			m.now = fn
		}
	}
}

func NewManager(store Store, users auth.UserStore, csrf *auth.CSRF, opts ...Option) *Manager {
	m := &Manager{store: store, users: users, csrf: csrf, lifetime: DefaultLifetime, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

var _ account.Issuer = (*Manager)(nil)

func (m *Manager) Kind() auth.CredentialKind { return auth.CredentialSession }

func (m *Manager) Flavor() account.Flavor { return account.FlavorWeb }

// RequiresTenant is false: super-admins may use the web app in global mode.
func (m *Manager) RequiresTenant() bool { return false }

func (m *Manager) Lifetime() time.Duration { return m.lifetime }

// Issue starts a new session for user. Any session the client presented is
// destroyed first so a planted identifier never becomes authenticated.
func (m *Manager) Issue(ctx context.Context, user auth.User, req account.LoginRequest) (account.Issued, error) {
	if req.Presented != "" {
		old, err := m.store.SessionByHash(ctx, auth.HashSecret(req.Presented))
		switch {
		case err == nil:
			if err := m.store.DeleteSession(ctx, old.ID); err != nil {
				return account.Issued{}, err
			}
		case !errors.Is(err, auth.ErrNotFound):
			return account.Issued{}, err
		}
	}

	secret, err := ids.NewSecret()
	if err != nil {
		return account.Issued{}, err
	}
	now := m.now().UTC()
	meta := auth.RequestMetaFromContext(ctx)
	sess := auth.Session{
		ID:           ids.At(now),
		TokenHash:    auth.HashSecret(secret),
		UserID:       user.ID,
		IPAddress:    meta.IP,
		UserAgent:    meta.UserAgent,
		LastActivity: now,
		CreatedAt:    now,
	}
	if err := m.store.CreateSession(ctx, sess); err != nil {
		return account.Issued{}, err
	}
	csrf, err := m.csrf.Issue(sess.ID)
	if err != nil {
		return account.Issued{}, err
	}
	return account.Issued{
		Kind:      auth.CredentialSession,
		ID:        sess.ID,
		Secret:    secret,
		CSRFToken: csrf,
		ExpiresAt: now.Add(m.lifetime),
	}, nil
}

// Authenticate resolves a cookie value to its live session and user, and
// slides the inactivity window forward.
func (m *Manager) Authenticate(ctx context.Context, cookie string) (auth.Session, auth.User, error) {
	if cookie == "" {
		return auth.Session{}, auth.User{}, errNoSession
	}
	sess, err := m.store.SessionByHash(ctx, auth.HashSecret(cookie))
	if errors.Is(err, auth.ErrNotFound) {
		return auth.Session{}, auth.User{}, errNoSession
	}
	if err != nil {
		return auth.Session{}, auth.User{}, err
	}

	now := m.now().UTC()
	if m.expired(sess, now) {
		m.discard(ctx, sess.ID)
		return auth.Session{}, auth.User{}, errSessionExpired
	}

	user, err := m.users.GetUser(ctx, sess.UserID)
	if errors.Is(err, auth.ErrNotFound) {
		m.discard(ctx, sess.ID)
		return auth.Session{}, auth.User{}, errNoSession
	}
	if err != nil {
		return auth.Session{}, auth.User{}, err
	}
	if !user.Active() {
		m.discard(ctx, sess.ID)
		return auth.Session{}, auth.User{}, auth.Fail(auth.ErrAccountInactive, "auth.account_inactive")
	}

	if err := m.store.TouchSession(ctx, sess.ID, now); err != nil {
		return auth.Session{}, auth.User{}, err
	}
	sess.LastActivity = now
	return sess, user, nil
}

// CSRFToken mints a token bound to sessionID. An empty id yields an
// anonymous token usable only before login.
func (m *Manager) CSRFToken(sessionID string) (string, error) {
	return m.csrf.Issue(sessionID)
}

func (m *Manager) VerifyCSRF(token, sessionID string) error {
	return m.csrf.Verify(token, sessionID)
}

// RefreshCSRF returns a new token for sessionID when current is missing,
// foreign or past half its lifetime, and "" when current is still good.
func (m *Manager) RefreshCSRF(current, sessionID string) (string, error) {
	if m.csrf.Fresh(current, sessionID) {
		return "", nil
	}
	return m.csrf.Issue(sessionID)
}

func (m *Manager) List(ctx context.Context, userID string) ([]auth.CredentialInfo, error) {
	sessions, err := m.store.ListUserSessions(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := m.now().UTC()
	out := make([]auth.CredentialInfo, 0, len(sessions))
	for _, s := range sessions {
		if m.expired(s, now) {
			continue
		}
		exp := s.LastActivity.Add(m.lifetime)
		out = append(out, auth.CredentialInfo{
			ID:           s.ID,
			Kind:         auth.CredentialSession,
			IPAddress:    s.IPAddress,
			UserAgent:    s.UserAgent,
			LastActiveAt: s.LastActivity,
			ExpiresAt:    &exp,
			CreatedAt:    s.CreatedAt,
		})
	}
	return out, nil
}

func (m *Manager) Revoke(ctx context.Context, userID, id string) (bool, error) {
	return m.store.DeleteUserSession(ctx, userID, id)
}

func (m *Manager) RevokeOthers(ctx context.Context, userID, keepID string) (int64, error) {
	if keepID == "" {
		return 0, errors.New("session: keep id required")
	}
	return m.store.DeleteUserSessions(ctx, userID, keepID)
}

func (m *Manager) RevokeAll(ctx context.Context, userID string) (int64, error) {
	return m.store.DeleteUserSessions(ctx, userID, "")
}

func (m *Manager) expired(s auth.Session, now time.Time) bool {
	return now.Sub(s.LastActivity) > m.lifetime
}

func (m *Manager) discard(ctx context.Context, id string) {
	if err := m.store.DeleteSession(ctx, id); err != nil {
		obs.LoggerFrom(ctx).Warn("discard session failed", zap.String("session_id", id), zap.Error(err))
	}
}
