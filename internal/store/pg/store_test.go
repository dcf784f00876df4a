package pg

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"schooladmin.org/internal/auth"
)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return New(db), mock
}

func expectDone(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

var userCols = []string{"id", "tenant_id", "name", "email", "password_hash", "role", "status",
	"photo_path", "last_login_at", "last_login_ip", "created_at", "updated_at"}

func TestGetUserByEmail(t *testing.T) {
	store, mock := newMock(t)
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(`from users where email = $1`)).
		WithArgs("ana@x.edu").
		WillReturnRows(sqlmock.NewRows(userCols).
			AddRow("u1", "t1", "Ana", "ana@x.edu", "hash", "teacher", "active", "", nil, "", now, now))
	mock.ExpectQuery(regexp.QuoteMeta(`from users where email = $1`)).
		WithArgs("ANA@x.edu").
		WillReturnRows(sqlmock.NewRows(userCols))

	u, err := store.GetUserByEmail(context.Background(), "ana@x.edu")
	if err != nil {
		t.Fatalf("GetUserByEmail: %v", err)
	}
	if u.Role != auth.RoleTeacher || u.TenantID != "t1" || u.LastLoginAt != nil {
		t.Fatalf("unexpected user %+v", u)
	}
	if _, err := store.GetUserByEmail(context.Background(), "ANA@x.edu"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	expectDone(t, mock)
}

func TestSetViewingTenant(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectExec(regexp.QuoteMeta(`update users set tenant_id = $2`)).
		WithArgs("root", "t1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`update users set tenant_id = $2`)).
		WithArgs("root", nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`update users set tenant_id = $2`)).
		WithArgs("root", "nope").
		WillReturnError(&pgconn.PgError{Code: pgErrForeignKeyViolation})

	ctx := context.Background()
	if err := store.SetViewingTenant(ctx, "root", "t1"); err != nil {
		t.Fatalf("SetViewingTenant: %v", err)
	}
	if err := store.SetViewingTenant(ctx, "root", ""); err != nil {
		t.Fatalf("clearing: %v", err)
	}
	if err := store.SetViewingTenant(ctx, "root", "nope"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	expectDone(t, mock)
}

func TestRecordLoginMissingUser(t *testing.T) {
	store, mock := newMock(t)
	at := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta(`update users set last_login_at = $2, last_login_ip = $3`)).
		WithArgs("ghost", at, "10.0.0.1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.RecordLogin(context.Background(), "ghost", at, "10.0.0.1"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	expectDone(t, mock)
}

func TestListTenants(t *testing.T) {
	store, mock := newMock(t)
	now := time.Now()
	cols := []string{"id", "slug", "name", "is_active", "logo_path", "banner_path", "background_path", "timezone", "created_at", "updated_at"}
	mock.ExpectQuery(regexp.QuoteMeta(`from tenants order by slug`)).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("t1", "colegio-x", "Colegio X", true, "logos/x.png", "", "", "America/Lima", now, now).
			AddRow("t2", "colegio-y", "Colegio Y", false, "", "", "", "UTC", now, now))

	tenants, err := store.ListTenants(context.Background())
	if err != nil {
		t.Fatalf("ListTenants: %v", err)
	}
	if len(tenants) != 2 || !tenants[0].Active || tenants[1].Active || tenants[0].LogoPath != "logos/x.png" {
		t.Fatalf("unexpected tenants %+v", tenants)
	}
	expectDone(t, mock)
}

func TestSessionQueries(t *testing.T) {
	store, mock := newMock(t)
	ctx := context.Background()
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	cols := []string{"id", "token_hash", "user_id", "ip_address", "user_agent", "last_activity", "created_at"}

	mock.ExpectQuery(regexp.QuoteMeta(`from sessions where token_hash = $1`)).
		WithArgs("h1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("s1", "h1", "u1", "10.0.0.1", "Firefox", now, now))
	mock.ExpectQuery(regexp.QuoteMeta(`from sessions where token_hash = $1`)).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(cols))
	mock.ExpectQuery(`order by last_activity desc`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("s2", "h2", "u1", "", "", now.Add(time.Minute), now).
			AddRow("s1", "h1", "u1", "", "", now, now))
	mock.ExpectExec(regexp.QuoteMeta(`delete from sessions where id = $1 and user_id = $2`)).
		WithArgs("s9", "u1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`where user_id = $1 and ($2 = '' or id <> $2)`)).
		WithArgs("u1", "s1").
		WillReturnResult(sqlmock.NewResult(0, 3))

	sess, err := store.SessionByHash(ctx, "h1")
	if err != nil || sess.ID != "s1" || sess.UserAgent != "Firefox" {
		t.Fatalf("unexpected session %+v %v", sess, err)
	}
	if _, err := store.SessionByHash(ctx, "missing"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	list, err := store.ListUserSessions(ctx, "u1")
	if err != nil || len(list) != 2 || list[0].ID != "s2" {
		t.Fatalf("unexpected list %+v %v", list, err)
	}
	if ok, err := store.DeleteUserSession(ctx, "u1", "s9"); ok || err != nil {
		t.Fatalf("expected no deletion, got %v %v", ok, err)
	}
	if n, err := store.DeleteUserSessions(ctx, "u1", "s1"); n != 3 || err != nil {
		t.Fatalf("expected 3 deleted, got %d %v", n, err)
	}
	expectDone(t, mock)
}

func TestReplaceUserTokensIsAtomic(t *testing.T) {
	store, mock := newMock(t)
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	tok := auth.AccessToken{
		ID: "k1", UserID: "u1", Name: "Pixel", Abilities: []string{auth.AbilityAll},
		TokenHash: "h", IPAddress: "10.0.0.1", ExpiresAt: now.Add(time.Hour), CreatedAt: now,
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`delete from personal_access_tokens where user_id = $1`)).
		WithArgs("u1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta(`insert into personal_access_tokens`)).
		WithArgs("k1", "u1", "Pixel", []byte(`["*"]`), "h", "10.0.0.1", nil, tok.ExpiresAt, now).
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})
	mock.ExpectRollback()

	if err := store.ReplaceUserTokens(context.Background(), tok); !errors.Is(err, auth.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	expectDone(t, mock)
}

func TestRotateTokenRequiresOldRow(t *testing.T) {
	store, mock := newMock(t)
	next := auth.AccessToken{ID: "k2", UserID: "u1", Abilities: []string{auth.AbilityAll}}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`delete from personal_access_tokens where id = $1 and user_id = $2`)).
		WithArgs("k1", "u1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	if err := store.RotateToken(context.Background(), "k1", next); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	expectDone(t, mock)
}

func TestTokenByIDDecodesAbilities(t *testing.T) {
	store, mock := newMock(t)
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	cols := []string{"id", "user_id", "name", "abilities", "token_hash", "ip_address", "last_used_at", "expires_at", "created_at"}
	mock.ExpectQuery(regexp.QuoteMeta(`from personal_access_tokens where id = $1`)).
		WithArgs("k1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("k1", "u1", "Pixel", []byte(`["*"]`), "h", "", now, now.Add(time.Hour), now))

	tok, err := store.TokenByID(context.Background(), "k1")
	if err != nil {
		t.Fatalf("TokenByID: %v", err)
	}
	if !tok.Can("anything") || tok.LastUsedAt == nil || !tok.LastUsedAt.Equal(now) {
		t.Fatalf("unexpected token %+v", tok)
	}
	expectDone(t, mock)
}
