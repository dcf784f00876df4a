package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"schooladmin.org/internal/auth"
)

const tokenColumns = `id, user_id, name, abilities, token_hash, coalesce(ip_address, ''), last_used_at, expires_at, created_at`

func scanToken(row scanner) (auth.AccessToken, error) {
	var (
		tok      auth.AccessToken
		rawAbil  []byte
		lastUsed sql.NullTime
	)
	if err := row.Scan(&tok.ID, &tok.UserID, &tok.Name, &rawAbil, &tok.TokenHash, &tok.IPAddress, &lastUsed, &tok.ExpiresAt, &tok.CreatedAt); err != nil {
		return auth.AccessToken{}, err
	}
	if len(rawAbil) > 0 {
		if err := json.Unmarshal(rawAbil, &tok.Abilities); err != nil {
			return auth.AccessToken{}, fmt.Errorf("decode abilities: %w", err)
		}
	}
	tok.LastUsedAt = timePtr(lastUsed)
	return tok, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertToken(ctx context.Context, db execer, tok auth.AccessToken) error {
	abil, err := json.Marshal(tok.Abilities)
	if err != nil {
		return fmt.Errorf("marshal abilities: %w", err)
	}
	_, err = db.ExecContext(ctx, `
		insert into personal_access_tokens (id, user_id, name, abilities, token_hash, ip_address, last_used_at, expires_at, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, tok.ID, tok.UserID, tok.Name, abil, tok.TokenHash, nullIfEmpty(tok.IPAddress), nullTime(tok.LastUsedAt), tok.ExpiresAt, tok.CreatedAt)
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

// ReplaceUserTokens drops every token of tok.UserID and stores tok.
func (s *Store) ReplaceUserTokens(ctx context.Context, tok auth.AccessToken) error {
	if s.db == nil {
		return errNoDB
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `delete from personal_access_tokens where user_id = $1`, tok.UserID); err != nil {
		return err
	}
	if err := insertToken(ctx, tx, tok); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) TokenByID(ctx context.Context, id string) (auth.AccessToken, error) {
	if s.db == nil {
		return auth.AccessToken{}, errNoDB
	}
	tok, err := scanToken(s.db.QueryRowContext(ctx, `select `+tokenColumns+` from personal_access_tokens where id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return auth.AccessToken{}, auth.ErrNotFound
	}
	return tok, err
}

func (s *Store) TouchToken(ctx context.Context, id string, at time.Time) error {
	if s.db == nil {
		return errNoDB
	}
	_, err := s.db.ExecContext(ctx, `update personal_access_tokens set last_used_at = $2 where id = $1`, id, at)
	return err
}

func (s *Store) DeleteToken(ctx context.Context, id string) error {
	if s.db == nil {
		return errNoDB
	}
	_, err := s.db.ExecContext(ctx, `delete from personal_access_tokens where id = $1`, id)
	return err
}

func (s *Store) DeleteUserToken(ctx context.Context, userID, id string) (bool, error) {
	if s.db == nil {
		return false, errNoDB
	}
	res, err := s.db.ExecContext(ctx, `delete from personal_access_tokens where id = $1 and user_id = $2`, id, userID)
	if err != nil {
		return false, err
	}
	n, err := affected(res)
	return n > 0, err
}

func (s *Store) ListUserTokens(ctx context.Context, userID string) ([]auth.AccessToken, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, `
		select `+tokenColumns+`
		from personal_access_tokens
		where user_id = $1
		order by coalesce(last_used_at, created_at) desc, id desc
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens []auth.AccessToken
	for rows.Next() {
		tok, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tokens, nil
}

func (s *Store) DeleteUserTokens(ctx context.Context, userID, exceptID string) (int64, error) {
	if s.db == nil {
		return 0, errNoDB
	}
	res, err := s.db.ExecContext(ctx, `
		delete from personal_access_tokens
		where user_id = $1 and ($2 = '' or id <> $2)
	`, userID, exceptID)
	if err != nil {
		return 0, err
	}
	return affected(res)
}

// RotateToken deletes oldID and stores next in one transaction. Of two
// concurrent refreshes only the one whose delete hits a row succeeds.
func (s *Store) RotateToken(ctx context.Context, oldID string, next auth.AccessToken) error {
	if s.db == nil {
		return errNoDB
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `delete from personal_access_tokens where id = $1 and user_id = $2`, oldID, next.UserID)
	if err != nil {
		return err
	}
	n, err := affected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return auth.ErrNotFound
	}
	if err := insertToken(ctx, tx, next); err != nil {
		return err
	}
	return tx.Commit()
}
