package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"schooladmin.org/internal/auth"
)

const sessionColumns = `id, token_hash, user_id, coalesce(ip_address, ''), coalesce(user_agent, ''), last_activity, created_at`

func scanSession(row scanner) (auth.Session, error) {
	var sess auth.Session
	err := row.Scan(&sess.ID, &sess.TokenHash, &sess.UserID, &sess.IPAddress, &sess.UserAgent, &sess.LastActivity, &sess.CreatedAt)
	return sess, err
}

func (s *Store) CreateSession(ctx context.Context, sess auth.Session) error {
	if s.db == nil {
		return errNoDB
	}
	_, err := s.db.ExecContext(ctx, `
		insert into sessions (id, token_hash, user_id, ip_address, user_agent, last_activity, created_at)
		values ($1, $2, $3, $4, $5, $6, $7)
	`, sess.ID, sess.TokenHash, sess.UserID, nullIfEmpty(sess.IPAddress), nullIfEmpty(sess.UserAgent), sess.LastActivity, sess.CreatedAt)
	if pgErr, ok := maybePgError(err); ok {
		switch pgErr.Code {
		case pgErrUniqueViolation:
			return auth.ErrConflict
		case pgErrForeignKeyViolation:
			return auth.ErrNotFound
		}
	}
	return err
}

func (s *Store) SessionByHash(ctx context.Context, hash string) (auth.Session, error) {
	if s.db == nil {
		return auth.Session{}, errNoDB
	}
	sess, err := scanSession(s.db.QueryRowContext(ctx, `select `+sessionColumns+` from sessions where token_hash = $1`, hash))
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Session{}, auth.ErrNotFound
	}
	return sess, err
}

func (s *Store) TouchSession(ctx context.Context, id string, at time.Time) error {
	if s.db == nil {
		return errNoDB
	}
	_, err := s.db.ExecContext(ctx, `update sessions set last_activity = $2 where id = $1`, id, at)
	return err
}

func (s *Store) DeleteSession(ctx context.Context, id string) error {
	if s.db == nil {
		return errNoDB
	}
	_, err := s.db.ExecContext(ctx, `delete from sessions where id = $1`, id)
	return err
}

func (s *Store) DeleteUserSession(ctx context.Context, userID, id string) (bool, error) {
	if s.db == nil {
		return false, errNoDB
	}
	res, err := s.db.ExecContext(ctx, `delete from sessions where id = $1 and user_id = $2`, id, userID)
	if err != nil {
		return false, err
	}
	n, err := affected(res)
	return n > 0, err
}

func (s *Store) ListUserSessions(ctx context.Context, userID string) ([]auth.Session, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, `
		select `+sessionColumns+`
		from sessions
		where user_id = $1
		order by last_activity desc, id desc
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []auth.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}

func (s *Store) DeleteUserSessions(ctx context.Context, userID, exceptID string) (int64, error) {
	if s.db == nil {
		return 0, errNoDB
	}
	res, err := s.db.ExecContext(ctx, `
		delete from sessions
		where user_id = $1 and ($2 = '' or id <> $2)
	`, userID, exceptID)
	if err != nil {
		return 0, err
	}
	return affected(res)
}

// PurgeSessions removes sessions idle since before cutoff.
func (s *Store) PurgeSessions(ctx context.Context, cutoff time.Time) (int64, error) {
	if s.db == nil {
		return 0, errNoDB
	}
	res, err := s.db.ExecContext(ctx, `delete from sessions where last_activity < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return affected(res)
}
