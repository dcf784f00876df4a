// Package memstore keeps identities, sessions and tokens in process memory.
// It backs the "memory" session driver and the handler tests.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"schooladmin.org/internal/activity"
	"schooladmin.org/internal/auth"
)

// Store implements auth.Directory, session.Store, token.Store and
// activity.Store with in-process concurrency safety.
type Store struct {
	mu       sync.RWMutex
	users    map[string]auth.User
	tenants  map[string]auth.Tenant
	sessions map[string]auth.Session
	byHash   map[string]string // token hash -> session id
	tokens   map[string]auth.AccessToken
	entries  []activity.Entry
}

func New() *Store {
	return &Store{
		users:    make(map[string]auth.User),
		tenants:  make(map[string]auth.Tenant),
		sessions: make(map[string]auth.Session),
		byHash:   make(map[string]string),
		tokens:   make(map[string]auth.AccessToken),
	}
}

// PutUser inserts or replaces a user.
func (s *Store) PutUser(u auth.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

// PutTenant inserts or replaces a tenant.
func (s *Store) PutTenant(t auth.Tenant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tenants[t.ID] = t
}

// Users

func (s *Store) GetUser(_ context.Context, id string) (auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return auth.User{}, auth.ErrNotFound
	}
	return u, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return auth.User{}, auth.ErrNotFound
}

func (s *Store) RecordLogin(_ context.Context, userID string, at time.Time, ip string) error {
	return s.updateUser(userID, func(u *auth.User) {
		at := at
		u.LastLoginAt = &at
		u.LastLoginIP = ip
	})
}

func (s *Store) SetViewingTenant(_ context.Context, userID, tenantID string) error {
	return s.updateUser(userID, func(u *auth.User) { u.TenantID = tenantID })
}

func (s *Store) UpdatePassword(_ context.Context, userID, hash string) error {
	return s.updateUser(userID, func(u *auth.User) { u.PasswordHash = hash })
}

func (s *Store) updateUser(id string, fn func(*auth.User)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return auth.ErrNotFound
	}
	fn(&u)
	u.UpdatedAt = time.Now().UTC()
	s.users[id] = u
	return nil
}

// Tenants

func (s *Store) GetTenant(_ context.Context, id string) (auth.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tenants[id]
	if !ok {
		return auth.Tenant{}, auth.ErrNotFound
	}
	return t, nil
}

func (s *Store) GetTenantBySlug(_ context.Context, slug string) (auth.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.tenants {
		if t.Slug == slug {
			return t, nil
		}
	}
	return auth.Tenant{}, auth.ErrNotFound
}

func (s *Store) ListTenants(context.Context) ([]auth.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]auth.Tenant, 0, len(s.tenants))
	for _, t := range s.tenants {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out, nil
}

// Sessions

func (s *Store) CreateSession(_ context.Context, sess auth.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.sessions[sess.ID]; dup {
		return auth.ErrConflict
	}
	if _, dup := s.byHash[sess.TokenHash]; dup {
		return auth.ErrConflict
	}
	s.sessions[sess.ID] = sess
	s.byHash[sess.TokenHash] = sess.ID
	return nil
}

func (s *Store) SessionByHash(_ context.Context, hash string) (auth.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byHash[hash]
	if !ok {
		return auth.Session{}, auth.ErrNotFound
	}
	return s.sessions[id], nil
}

func (s *Store) TouchSession(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return auth.ErrNotFound
	}
	sess.LastActivity = at
	s.sessions[id] = sess
	return nil
}

func (s *Store) DeleteSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteSessionLocked(id)
	return nil
}

func (s *Store) DeleteUserSession(_ context.Context, userID, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok || sess.UserID != userID {
		return false, nil
	}
	s.deleteSessionLocked(id)
	return true, nil
}

func (s *Store) ListUserSessions(_ context.Context, userID string) ([]auth.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []auth.Session
	for _, sess := range s.sessions {
		if sess.UserID == userID {
			out = append(out, sess)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastActivity.Equal(out[j].LastActivity) {
			return out[i].LastActivity.After(out[j].LastActivity)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *Store) DeleteUserSessions(_ context.Context, userID, exceptID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, sess := range s.sessions {
		if sess.UserID == userID && id != exceptID {
			s.deleteSessionLocked(id)
			n++
		}
	}
	return n, nil
}

func (s *Store) deleteSessionLocked(id string) {
	sess, ok := s.sessions[id]
	if !ok {
		return
	}
	delete(s.byHash, sess.TokenHash)
	delete(s.sessions, id)
}

// Tokens

func (s *Store) ReplaceUserTokens(_ context.Context, tok auth.AccessToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.tokens {
		if t.UserID == tok.UserID {
			delete(s.tokens, id)
		}
	}
	s.tokens[tok.ID] = tok
	return nil
}

func (s *Store) TokenByID(_ context.Context, id string) (auth.AccessToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tokens[id]
	if !ok {
		return auth.AccessToken{}, auth.ErrNotFound
	}
	return t, nil
}

func (s *Store) TouchToken(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[id]
	if !ok {
		return auth.ErrNotFound
	}
	t.LastUsedAt = &at
	s.tokens[id] = t
	return nil
}

func (s *Store) DeleteToken(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, id)
	return nil
}

func (s *Store) DeleteUserToken(_ context.Context, userID, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[id]
	if !ok || t.UserID != userID {
		return false, nil
	}
	delete(s.tokens, id)
	return true, nil
}

func (s *Store) ListUserTokens(_ context.Context, userID string) ([]auth.AccessToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []auth.AccessToken
	for _, t := range s.tokens {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *Store) DeleteUserTokens(_ context.Context, userID, exceptID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, t := range s.tokens {
		if t.UserID == userID && id != exceptID {
			delete(s.tokens, id)
			n++
		}
	}
	return n, nil
}

func (s *Store) RotateToken(_ context.Context, oldID string, next auth.AccessToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tokens[oldID]; !ok {
		return auth.ErrNotFound
	}
	delete(s.tokens, oldID)
	s.tokens[next.ID] = next
	return nil
}

// Activity

func (s *Store) Append(_ context.Context, e *activity.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, *e)
	return nil
}

// Entries returns recorded activity, oldest first.
func (s *Store) Entries() []activity.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]activity.Entry(nil), s.entries...)
}
