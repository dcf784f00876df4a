package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"schooladmin.org/internal/auth"
)

var _ auth.Directory = (*Store)(nil)

const userColumns = `id, coalesce(tenant_id, ''), name, email, password_hash, role, status,
	coalesce(photo_path, ''), last_login_at, coalesce(last_login_ip, ''), created_at, updated_at`

const tenantColumns = `id, slug, name, is_active, coalesce(logo_path, ''), coalesce(banner_path, ''),
	coalesce(background_path, ''), timezone, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (auth.User, error) {
	var (
		u         auth.User
		lastLogin sql.NullTime
	)
	err := row.Scan(&u.ID, &u.TenantID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.Status,
		&u.PhotoPath, &lastLogin, &u.LastLoginIP, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return auth.User{}, err
	}
	u.LastLoginAt = timePtr(lastLogin)
	return u, nil
}

func scanTenant(row scanner) (auth.Tenant, error) {
	var t auth.Tenant
	err := row.Scan(&t.ID, &t.Slug, &t.Name, &t.Active, &t.LogoPath, &t.BannerPath,
		&t.BackgroundPath, &t.Timezone, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

func (s *Store) GetUser(ctx context.Context, id string) (auth.User, error) {
	if s.db == nil {
		return auth.User{}, errNoDB
	}
	u, err := scanUser(s.db.QueryRowContext(ctx, `select `+userColumns+` from users where id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return auth.User{}, auth.ErrNotFound
	}
	return u, err
}

// GetUserByEmail matches the address exactly.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (auth.User, error) {
	if s.db == nil {
		return auth.User{}, errNoDB
	}
	u, err := scanUser(s.db.QueryRowContext(ctx, `select `+userColumns+` from users where email = $1`, email))
	if errors.Is(err, sql.ErrNoRows) {
		return auth.User{}, auth.ErrNotFound
	}
	return u, err
}

func (s *Store) RecordLogin(ctx context.Context, userID string, at time.Time, ip string) error {
	return s.execUser(ctx, `
		update users set last_login_at = $2, last_login_ip = $3, updated_at = now()
		where id = $1
	`, userID, at, nullIfEmpty(ip))
}

// SetViewingTenant moves a super-admin's viewing pointer. An empty tenantID
// clears it.
func (s *Store) SetViewingTenant(ctx context.Context, userID, tenantID string) error {
	err := s.execUser(ctx, `update users set tenant_id = $2, updated_at = now() where id = $1`,
		userID, nullIfEmpty(tenantID))
	if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
		return auth.ErrNotFound
	}
	return err
}

func (s *Store) UpdatePassword(ctx context.Context, userID, hash string) error {
	return s.execUser(ctx, `update users set password_hash = $2, updated_at = now() where id = $1`, userID, hash)
}

func (s *Store) execUser(ctx context.Context, query string, args ...any) error {
	if s.db == nil {
		return errNoDB
	}
	res, err := s.db.ExecContext(ctx, query, args...)
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
	return nil
}

func (s *Store) GetTenant(ctx context.Context, id string) (auth.Tenant, error) {
	if s.db == nil {
		return auth.Tenant{}, errNoDB
	}
	t, err := scanTenant(s.db.QueryRowContext(ctx, `select `+tenantColumns+` from tenants where id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Tenant{}, auth.ErrNotFound
	}
	return t, err
}

func (s *Store) GetTenantBySlug(ctx context.Context, slug string) (auth.Tenant, error) {
	if s.db == nil {
		return auth.Tenant{}, errNoDB
	}
	t, err := scanTenant(s.db.QueryRowContext(ctx, `select `+tenantColumns+` from tenants where slug = $1`, slug))
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Tenant{}, auth.ErrNotFound
	}
	return t, err
}

func (s *Store) ListTenants(ctx context.Context) ([]auth.Tenant, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, `select `+tenantColumns+` from tenants order by slug`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tenants []auth.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		tenants = append(tenants, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tenants, nil
}
