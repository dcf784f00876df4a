// Package token issues personal access tokens for the mobile app.
package token

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"schooladmin.org/internal/account"
	"schooladmin.org/internal/activity"
	"schooladmin.org/internal/auth"
	"schooladmin.org/internal/ids"
	"schooladmin.org/internal/obs"
)

// Store persists access tokens. Lookups return auth.ErrNotFound on a miss.
type Store interface {
	// ReplaceUserTokens deletes every token of tok.UserID and inserts tok
	// in one transaction.
	ReplaceUserTokens(ctx context.Context, tok auth.AccessToken) error
	TokenByID(ctx context.Context, id string) (auth.AccessToken, error)
	TouchToken(ctx context.Context, id string, at time.Time) error
	DeleteToken(ctx context.Context, id string) error
	DeleteUserToken(ctx context.Context, userID, id string) (bool, error)
	ListUserTokens(ctx context.Context, userID string) ([]auth.AccessToken, error)
	// DeleteUserTokens removes every token of userID except exceptID.
	// An empty exceptID removes all of them.
	DeleteUserTokens(ctx context.Context, userID, exceptID string) (int64, error)
	// RotateToken deletes oldID and inserts next atomically. It returns
	// auth.ErrNotFound when oldID is already gone.
	RotateToken(ctx context.Context, oldID string, next auth.AccessToken) error
}

const (
	DefaultTTL         = 30 * 24 * time.Hour
	DefaultRememberTTL = 90 * 24 * time.Hour
	DefaultDeviceName  = "mobile-app"
	maxDeviceName      = 255
)

var errInvalidToken = auth.Fail(auth.ErrInvalidToken, "auth.invalid_token")

// Manager issues, validates and rotates bearer tokens.
type Manager struct {
	store       Store
	users       auth.UserStore
	recorder    *activity.Recorder
	ttl         time.Duration
	rememberTTL time.Duration
	now         func() time.Time
}

type Option func(*Manager)

// WithTTL sets the lifetime of regular and "remember me" tokens.
func WithTTL(ttl, remember time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
		if remember > 0 {
			m.rememberTTL = remember
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

func NewManager(store Store, users auth.UserStore, recorder *activity.Recorder, opts ...Option) *Manager {
	m := &Manager{
		store:       store,
		users:       users,
		recorder:    recorder,
		ttl:         DefaultTTL,
		rememberTTL: DefaultRememberTTL,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

var _ account.Issuer = (*Manager)(nil)

func (m *Manager) Kind() auth.CredentialKind { return auth.CredentialToken }

func (m *Manager) Flavor() account.Flavor { return account.FlavorMobile }

// RequiresTenant is true: the app has no global mode.
func (m *Manager) RequiresTenant() bool { return true }

// Issue replaces every token the user holds with a single fresh one.
func (m *Manager) Issue(ctx context.Context, user auth.User, req account.LoginRequest) (account.Issued, error) {
	ttl := m.ttl
	if req.Remember {
		ttl = m.rememberTTL
	}
	tok, secret, err := m.mint(user.ID, deviceName(req.DeviceName), auth.RequestMetaFromContext(ctx).IP, ttl)
	if err != nil {
		return account.Issued{}, err
	}
	if err := m.store.ReplaceUserTokens(ctx, tok); err != nil {
		return account.Issued{}, err
	}
	return issued(tok, secret), nil
}

// Authenticate validates a bearer value of the form "<id>.<secret>".
func (m *Manager) Authenticate(ctx context.Context, bearer string) (auth.AccessToken, auth.User, error) {
	id, secret, err := auth.SplitToken(bearer)
	if err != nil {
		return auth.AccessToken{}, auth.User{}, errInvalidToken
	}
	tok, err := m.store.TokenByID(ctx, id)
	if errors.Is(err, auth.ErrNotFound) {
		return auth.AccessToken{}, auth.User{}, errInvalidToken
	}
	if err != nil {
		return auth.AccessToken{}, auth.User{}, err
	}
	if !auth.SecretMatches(tok.TokenHash, secret) || len(tok.Abilities) == 0 {
		return auth.AccessToken{}, auth.User{}, errInvalidToken
	}

	now := m.now().UTC()
	if tok.Expired(now) {
		if err := m.store.DeleteToken(ctx, tok.ID); err != nil {
			obs.LoggerFrom(ctx).Warn("delete expired token failed", zap.String("token_id", tok.ID), zap.Error(err))
		}
		return auth.AccessToken{}, auth.User{}, errInvalidToken
	}

	user, err := m.users.GetUser(ctx, tok.UserID)
	if errors.Is(err, auth.ErrNotFound) {
		return auth.AccessToken{}, auth.User{}, errInvalidToken
	}
	if err != nil {
		return auth.AccessToken{}, auth.User{}, err
	}
	if !user.Active() {
		return auth.AccessToken{}, auth.User{}, auth.Fail(auth.ErrAccountInactive, "auth.account_inactive")
	}

	if err := m.store.TouchToken(ctx, tok.ID, now); err != nil {
		return auth.AccessToken{}, auth.User{}, err
	}
	tok.LastUsedAt = &now
	return tok, user, nil
}

// Refresh swaps the caller's current token for a new one with the default
// lifetime, keeping its device name and IP. The old token stops working.
func (m *Manager) Refresh(ctx context.Context) (account.Issued, error) {
	p, ok := auth.PrincipalFromContext(ctx)
	if !ok || p.CredentialKind != auth.CredentialToken {
		return account.Issued{}, errInvalidToken
	}
	old, err := m.store.TokenByID(ctx, p.CredentialID)
	if errors.Is(err, auth.ErrNotFound) {
		return account.Issued{}, errInvalidToken
	}
	if err != nil {
		return account.Issued{}, err
	}

	next, secret, err := m.mint(old.UserID, old.Name, old.IPAddress, m.ttl)
	if err != nil {
		return account.Issued{}, err
	}
	if err := m.store.RotateToken(ctx, old.ID, next); err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			return account.Issued{}, errInvalidToken
		}
		return account.Issued{}, err
	}
	m.recorder.Record(ctx, activity.Activity{
		Action:     activity.ActionTokenRefreshed,
		Subject:    activity.On(activity.SubjectToken, next.ID),
		Properties: map[string]any{"previous_token": old.ID, "device": old.Name},
	})
	return issued(next, secret), nil
}

func (m *Manager) List(ctx context.Context, userID string) ([]auth.CredentialInfo, error) {
	tokens, err := m.store.ListUserTokens(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := m.now().UTC()
	out := make([]auth.CredentialInfo, 0, len(tokens))
	for _, t := range tokens {
		if t.Expired(now) {
			continue
		}
		last := t.CreatedAt
		if t.LastUsedAt != nil {
			last = *t.LastUsedAt
		}
		exp := t.ExpiresAt
		out = append(out, auth.CredentialInfo{
			ID:           t.ID,
			Kind:         auth.CredentialToken,
			Name:         t.Name,
			IPAddress:    t.IPAddress,
			LastActiveAt: last,
			ExpiresAt:    &exp,
			CreatedAt:    t.CreatedAt,
		})
	}
	return out, nil
}

func (m *Manager) Revoke(ctx context.Context, userID, id string) (bool, error) {
	return m.store.DeleteUserToken(ctx, userID, id)
}

func (m *Manager) RevokeOthers(ctx context.Context, userID, keepID string) (int64, error) {
	if keepID == "" {
		return 0, errors.New("token: keep id required")
	}
	return m.store.DeleteUserTokens(ctx, userID, keepID)
}

func (m *Manager) RevokeAll(ctx context.Context, userID string) (int64, error) {
	return m.store.DeleteUserTokens(ctx, userID, "")
}

func (m *Manager) mint(userID, name, ip string, ttl time.Duration) (auth.AccessToken, string, error) {
	secret, err := ids.NewSecret()
	if err != nil {
		return auth.AccessToken{}, "", err
	}
	now := m.now().UTC()
	return auth.AccessToken{
		ID:        ids.At(now),
		UserID:    userID,
		Name:      name,
		Abilities: []string{auth.AbilityAll},
		TokenHash: auth.HashSecret(secret),
		IPAddress: ip,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}, secret, nil
}

func issued(tok auth.AccessToken, secret string) account.Issued {
	return account.Issued{
		Kind:      auth.CredentialToken,
		ID:        tok.ID,
		Secret:    auth.JoinToken(tok.ID, secret),
		ExpiresAt: tok.ExpiresAt,
	}
}

func deviceName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return DefaultDeviceName
	}
	if len(name) <= maxDeviceName {
		return name
	}
	// cut on a rune boundary so the column stays valid UTF-8
	end := maxDeviceName
	for end > 0 && !utf8.RuneStart(name[end]) {
		end--
	}
	return name[:end]
}
