// Package redisstore keeps cookie sessions in Redis. Keys expire on their
// own after the inactivity window, so no purge job is needed.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"schooladmin.org/internal/auth"
)

type SessionStore struct {
	client redis.UniversalClient
	ttl    time.Duration
	prefix string
}

// NewSessionStore stores sessions that expire ttl after their last touch.
func NewSessionStore(client redis.UniversalClient, ttl time.Duration) (*SessionStore, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if ttl <= 0 {
		return nil, errors.New("session ttl must be positive")
	}
	return &SessionStore{client: client, ttl: ttl, prefix: "schooladmin:"}, nil
}

func (s *SessionStore) sessionKey(id string) string  { return s.prefix + "session:" + id }
func (s *SessionStore) hashKey(hash string) string   { return s.prefix + "session_token:" + hash }
func (s *SessionStore) userKey(userID string) string { return s.prefix + "user_sessions:" + userID }

func (s *SessionStore) CreateSession(ctx context.Context, sess auth.Session) error {
	ok, err := s.client.SetNX(ctx, s.hashKey(sess.TokenHash), sess.ID, s.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return auth.ErrConflict
	}
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, s.sessionKey(sess.ID), map[string]any{
			"token_hash":    sess.TokenHash,
			"user_id":       sess.UserID,
			"ip_address":    sess.IPAddress,
			"user_agent":    sess.UserAgent,
			"last_activity": sess.LastActivity.UTC().Format(time.RFC3339Nano),
			"created_at":    sess.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
		p.Expire(ctx, s.sessionKey(sess.ID), s.ttl)
		p.SAdd(ctx, s.userKey(sess.UserID), sess.ID)
		p.Expire(ctx, s.userKey(sess.UserID), s.ttl)
		return nil
	})
	return err
}

func (s *SessionStore) SessionByHash(ctx context.Context, hash string) (auth.Session, error) {
	id, err := s.client.Get(ctx, s.hashKey(hash)).Result()
	if errors.Is(err, redis.Nil) {
		return auth.Session{}, auth.ErrNotFound
	}
	if err != nil {
		return auth.Session{}, err
	}
	return s.load(ctx, id)
}

func (s *SessionStore) load(ctx context.Context, id string) (auth.Session, error) {
	fields, err := s.client.HGetAll(ctx, s.sessionKey(id)).Result()
	if err != nil {
		return auth.Session{}, err
	}
	if len(fields) == 0 {
		return auth.Session{}, auth.ErrNotFound
	}
	sess := auth.Session{
		ID:        id,
		TokenHash: fields["token_hash"],
		UserID:    fields["user_id"],
		IPAddress: fields["ip_address"],
		UserAgent: fields["user_agent"],
	}
	if sess.LastActivity, err = time.Parse(time.RFC3339Nano, fields["last_activity"]); err != nil {
		return auth.Session{}, fmt.Errorf("decode session %s: %w", id, err)
	}
	if sess.CreatedAt, err = time.Parse(time.RFC3339Nano, fields["created_at"]); err != nil {
		return auth.Session{}, fmt.Errorf("decode session %s: %w", id, err)
	}
	return sess, nil
}

func (s *SessionStore) TouchSession(ctx context.Context, id string, at time.Time) error {
	vals, err := s.client.HMGet(ctx, s.sessionKey(id), "token_hash", "user_id").Result()
	if err != nil {
		return err
	}
	hash, _ := vals[0].(string)
	userID, _ := vals[1].(string)
	if hash == "" {
		return auth.ErrNotFound
	}
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, s.sessionKey(id), "last_activity", at.UTC().Format(time.RFC3339Nano))
		p.Expire(ctx, s.sessionKey(id), s.ttl)
		p.Expire(ctx, s.hashKey(hash), s.ttl)
		// the index lives as long as the user's most recently used session
		p.Expire(ctx, s.userKey(userID), s.ttl)
		return nil
	})
	return err
}

func (s *SessionStore) DeleteSession(ctx context.Context, id string) error {
	_, err := s.delete(ctx, id, "")
	return err
}

func (s *SessionStore) DeleteUserSession(ctx context.Context, userID, id string) (bool, error) {
	return s.delete(ctx, id, userID)
}

// delete removes session id. A non-empty owner must match its user.
func (s *SessionStore) delete(ctx context.Context, id, owner string) (bool, error) {
	vals, err := s.client.HMGet(ctx, s.sessionKey(id), "token_hash", "user_id").Result()
	if err != nil {
		return false, err
	}
	hash, _ := vals[0].(string)
	userID, _ := vals[1].(string)
	if userID == "" {
		return false, nil
	}
	if owner != "" && owner != userID {
		return false, nil
	}
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, s.sessionKey(id), s.hashKey(hash))
		p.SRem(ctx, s.userKey(userID), id)
		return nil
	})
	return err == nil, err
}

func (s *SessionStore) ListUserSessions(ctx context.Context, userID string) ([]auth.Session, error) {
	ids, err := s.client.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		return nil, err
	}
	var out []auth.Session
	for _, id := range ids {
		sess, err := s.load(ctx, id)
		if errors.Is(err, auth.ErrNotFound) {
			// expired on its own; drop the dangling index entry
			s.client.SRem(ctx, s.userKey(userID), id)
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastActivity.Equal(out[j].LastActivity) {
			return out[i].LastActivity.After(out[j].LastActivity)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *SessionStore) DeleteUserSessions(ctx context.Context, userID, exceptID string) (int64, error) {
	ids, err := s.client.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		return 0, err
	}
	var n int64
	for _, id := range ids {
		if id == exceptID {
			continue
		}
		ok, err := s.delete(ctx, id, userID)
		if err != nil {
			return n, err
		}
		if ok {
			n++
		} else {
			s.client.SRem(ctx, s.userKey(userID), id)
		}
	}
	return n, nil
}
