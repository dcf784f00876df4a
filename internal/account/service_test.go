package account_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"schooladmin.org/internal/account"
	"schooladmin.org/internal/activity"
	"schooladmin.org/internal/auth"
	"schooladmin.org/internal/session"
	"schooladmin.org/internal/store/memstore"
	"schooladmin.org/internal/token"
)

type fixture struct {
	store    *memstore.Store
	svc      *account.Service
	sessions *session.Manager
	tokens   *token.Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	hash, err := auth.HashPassword("secret-pass")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	store := memstore.New()
	store.PutTenant(auth.Tenant{ID: "t1", Slug: "colegio-x", Name: "Colegio X", Active: true})
	store.PutTenant(auth.Tenant{ID: "t2", Slug: "colegio-y", Name: "Colegio Y", Active: false})
	store.PutUser(auth.User{ID: "u1", TenantID: "t1", Email: "ana@x.edu", PasswordHash: hash, Role: auth.RoleTeacher, Status: auth.StatusActive})
	store.PutUser(auth.User{ID: "u2", TenantID: "t2", Email: "leo@y.edu", PasswordHash: hash, Role: auth.RoleDirector, Status: auth.StatusActive})
	store.PutUser(auth.User{ID: "root", Email: "root@platform.edu", PasswordHash: hash, Role: auth.RoleSuperAdmin, Status: auth.StatusActive})

	csrf, err := auth.NewCSRF([]byte("0123456789abcdef0123456789abcdef"), time.Hour)
	if err != nil {
		t.Fatalf("NewCSRF: %v", err)
	}
	rec := activity.NewRecorder(store)
	return &fixture{
		store:    store,
		svc:      account.NewService(store, rec),
		sessions: session.NewManager(store, store, csrf),
		tokens:   token.NewManager(store, store, rec),
	}
}

// as authenticates with the issued credential the way the HTTP layer does.
func as(ctx context.Context, res account.LoginResult) context.Context {
	return auth.ContextWithPrincipal(ctx, auth.Principal{
		User:           res.User,
		Tenant:         res.Tenant,
		Viewing:        res.Viewing,
		CredentialKind: res.Credential.Kind,
		CredentialID:   res.Credential.ID,
	})
}

func actions(entries []activity.Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Action)
	}
	return out
}

func TestWebLogin(t *testing.T) {
	f := newFixture(t)
	ctx := auth.ContextWithRequestMeta(context.Background(), auth.RequestMeta{IP: "10.0.0.5"})

	res, err := f.svc.Login(ctx, account.LoginRequest{Email: "ana@x.edu", Password: "secret-pass"}, f.sessions)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.Tenant == nil || res.Tenant.ID != "t1" || res.Viewing {
		t.Fatalf("unexpected tenant resolution %+v", res)
	}
	if res.Credential.Kind != auth.CredentialSession || res.Credential.Secret == "" || res.Credential.CSRFToken == "" {
		t.Fatalf("unexpected credential %+v", res.Credential)
	}
	u, _ := f.store.GetUser(ctx, "u1")
	if u.LastLoginAt == nil || u.LastLoginIP != "10.0.0.5" {
		t.Fatalf("last login not recorded: %+v", u)
	}
	entries := f.store.Entries()
	if len(entries) != 1 || entries[0].Action != string(activity.ActionLogin) || entries[0].OwnerTenant() != "t1" {
		t.Fatalf("unexpected activity %+v", entries)
	}
}

func TestLoginInactiveTenantLeavesNoTrace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, issuer := range []account.Issuer{f.sessions, f.tokens} {
		_, err := f.svc.Login(ctx, account.LoginRequest{Email: "leo@y.edu", Password: "secret-pass"}, issuer)
		var ae *auth.Error
		if !errors.As(err, &ae) || ae.Code != auth.CodeTenantInactive {
			t.Fatalf("%s: expected TENANT_INACTIVE, got %v", issuer.Flavor(), err)
		}
	}
	u, _ := f.store.GetUser(ctx, "u2")
	if u.LastLoginAt != nil {
		t.Fatalf("last login must not be touched")
	}
	if list, _ := f.store.ListUserSessions(ctx, "u2"); len(list) != 0 {
		t.Fatalf("no session may be created")
	}
	if list, _ := f.store.ListUserTokens(ctx, "u2"); len(list) != 0 {
		t.Fatalf("no token may be created")
	}
	if len(f.store.Entries()) != 0 {
		t.Fatalf("failed logins are not activity")
	}
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, unknown := f.svc.Login(ctx, account.LoginRequest{Email: "ghost@x.edu", Password: "secret-pass"}, f.sessions)
	_, wrong := f.svc.Login(ctx, account.LoginRequest{Email: "ana@x.edu", Password: "nope"}, f.sessions)
	if unknown == nil || unknown != wrong {
		t.Fatalf("expected identical errors, got %v / %v", unknown, wrong)
	}
}

func TestSuperAdminLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.Login(ctx, account.LoginRequest{Email: "root@platform.edu", Password: "secret-pass"}, f.sessions)
	if err != nil || res.Tenant != nil || res.Viewing {
		t.Fatalf("web login without slug must be global, got %+v %v", res, err)
	}

	res, err = f.svc.Login(ctx, account.LoginRequest{Email: "root@platform.edu", Password: "secret-pass", TenantSlug: "colegio-x"}, f.sessions)
	if err != nil || !res.Viewing || res.Tenant.ID != "t1" || res.User.TenantID != "t1" {
		t.Fatalf("expected viewing colegio-x, got %+v %v", res, err)
	}

	_, err = f.svc.Login(ctx, account.LoginRequest{Email: "root@platform.edu", Password: "secret-pass"}, f.tokens)
	var ae *auth.Error
	if !errors.As(err, &ae) || !errors.Is(err, auth.ErrBadRequest) || ae.Key != "auth.select_tenant" {
		t.Fatalf("mobile super-admin login needs a tenant, got %v", err)
	}

	res, err = f.svc.Login(ctx, account.LoginRequest{Email: "root@platform.edu", Password: "secret-pass", TenantSlug: "colegio-x", DeviceName: "iPhone"}, f.tokens)
	if err != nil || !res.Viewing || res.Credential.Kind != auth.CredentialToken {
		t.Fatalf("unexpected mobile login %+v %v", res, err)
	}
}

type brokenIssuer struct{ *session.Manager }

func (brokenIssuer) Issue(context.Context, auth.User, account.LoginRequest) (account.Issued, error) {
	return account.Issued{}, errors.New("session store down")
}

func TestFailedIssueKeepsViewingPointer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	broken := brokenIssuer{f.sessions}

	_, err := f.svc.Login(ctx, account.LoginRequest{Email: "root@platform.edu", Password: "secret-pass", TenantSlug: "colegio-x"}, broken)
	if err == nil {
		t.Fatalf("expected issue failure")
	}
	if root, _ := f.store.GetUser(ctx, "root"); root.TenantID != "" {
		t.Fatalf("pointer moved without a credential: %q", root.TenantID)
	}

	if _, err := f.svc.Login(ctx, account.LoginRequest{Email: "root@platform.edu", Password: "secret-pass", TenantSlug: "colegio-x"}, f.sessions); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, err := f.svc.Login(ctx, account.LoginRequest{Email: "root@platform.edu", Password: "secret-pass"}, broken); err == nil {
		t.Fatalf("expected issue failure")
	}
	if root, _ := f.store.GetUser(ctx, "root"); root.TenantID != "t1" {
		t.Fatalf("failed global login must not clear the pointer, got %q", root.TenantID)
	}
}

func TestListAndRevokeSessions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := account.LoginRequest{Email: "ana@x.edu", Password: "secret-pass"}

	other, _ := f.svc.Login(ctx, req, f.sessions)
	current, _ := f.svc.Login(ctx, req, f.sessions)
	cctx := as(ctx, current)

	list, err := f.svc.List(cctx, f.sessions)
	if err != nil || len(list) != 2 {
		t.Fatalf("List: %+v %v", list, err)
	}
	for _, item := range list {
		if item.Current != (item.ID == current.Credential.ID) {
			t.Fatalf("current flag wrong on %+v", item)
		}
	}

	err = f.svc.Revoke(cctx, f.sessions, current.Credential.ID)
	var ae *auth.Error
	if !errors.As(err, &ae) || !errors.Is(err, auth.ErrBadRequest) || ae.Key != "session.self_revoke" {
		t.Fatalf("self revoke must be a bad request, got %v", err)
	}
	if err := f.svc.Revoke(cctx, f.sessions, "01HZZZZZZZZZZZZZZZZZZZZZZZ"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := f.svc.Revoke(cctx, f.sessions, other.Credential.ID); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if _, _, err := f.sessions.Authenticate(ctx, other.Credential.Secret); err == nil {
		t.Fatalf("revoked session still authenticates")
	}
	if _, _, err := f.sessions.Authenticate(ctx, current.Credential.Secret); err != nil {
		t.Fatalf("current session must survive: %v", err)
	}
}

func TestLogoutOthersAndLogout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := account.LoginRequest{Email: "ana@x.edu", Password: "secret-pass"}
	f.svc.Login(ctx, req, f.sessions)
	f.svc.Login(ctx, req, f.sessions)
	current, _ := f.svc.Login(ctx, req, f.sessions)
	cctx := as(ctx, current)

	n, err := f.svc.LogoutOthers(cctx, f.sessions)
	if err != nil || n != 2 {
		t.Fatalf("expected 2 closed, got %d %v", n, err)
	}
	if err := f.svc.Logout(cctx, f.sessions); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if list, _ := f.store.ListUserSessions(ctx, "u1"); len(list) != 0 {
		t.Fatalf("expected no sessions, got %d", len(list))
	}
	if err := f.svc.Logout(ctx, f.sessions); !errors.Is(err, auth.ErrUnauthenticated) {
		t.Fatalf("logout without principal must fail, got %v", err)
	}
}

func TestChangePasswordCascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := account.LoginRequest{Email: "ana@x.edu", Password: "secret-pass"}
	a, _ := f.svc.Login(ctx, req, f.sessions)
	b, _ := f.svc.Login(ctx, req, f.sessions)
	current, _ := f.svc.Login(ctx, req, f.sessions)
	cctx := as(ctx, current)

	n, err := f.svc.ChangePassword(cctx, f.sessions, account.PasswordChange{
		Current: "secret-pass", New: "brand-new-pass", Confirmation: "brand-new-pass",
	})
	if err != nil || n != 2 {
		t.Fatalf("ChangePassword: %d %v", n, err)
	}
	for _, old := range []account.LoginResult{a, b} {
		if _, _, err := f.sessions.Authenticate(ctx, old.Credential.Secret); err == nil {
			t.Fatalf("other sessions must be terminated")
		}
	}
	if _, _, err := f.sessions.Authenticate(ctx, current.Credential.Secret); err != nil {
		t.Fatalf("current session must survive: %v", err)
	}
	if _, err := f.svc.Login(ctx, req, f.sessions); !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Fatalf("old password must stop working, got %v", err)
	}
	got := actions(f.store.Entries())
	if got[len(got)-1] != string(activity.ActionPasswordChanged) {
		t.Fatalf("expected password_changed last, got %v", got)
	}
}

func TestChangePasswordValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	current, _ := f.svc.Login(ctx, account.LoginRequest{Email: "ana@x.edu", Password: "secret-pass"}, f.tokens)
	cctx := as(ctx, current)

	cases := []struct {
		name  string
		req   account.PasswordChange
		field string
		key   string
	}{
		{"wrong current", account.PasswordChange{Current: "bad", New: "brand-new-pass", Confirmation: "brand-new-pass"}, "current_password", "password.current_invalid"},
		{"unchanged", account.PasswordChange{Current: "secret-pass", New: "secret-pass", Confirmation: "secret-pass"}, "password", "password.same"},
		{"too short", account.PasswordChange{Current: "secret-pass", New: "short", Confirmation: "short"}, "password", "password.min"},
		{"mismatch", account.PasswordChange{Current: "secret-pass", New: "brand-new-pass", Confirmation: "other-pass"}, "password", "password.confirmation"},
		{"missing current", account.PasswordChange{New: "brand-new-pass", Confirmation: "brand-new-pass"}, "current_password", "validation.required"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.ChangePassword(cctx, f.tokens, tc.req)
			var verr *auth.ValidationError
			if !errors.As(err, &verr) || verr.Fields[tc.field] != tc.key {
				t.Fatalf("expected %s=%s, got %v", tc.field, tc.key, err)
			}
		})
	}
}

func TestMobileRevokeAndLogoutAll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	current, _ := f.svc.Login(ctx, account.LoginRequest{Email: "ana@x.edu", Password: "secret-pass"}, f.tokens)
	cctx := as(ctx, current)

	err := f.svc.Revoke(cctx, f.tokens, current.Credential.ID)
	var ae *auth.Error
	if !errors.As(err, &ae) || ae.Key != "token.self_revoke" {
		t.Fatalf("expected token.self_revoke, got %v", err)
	}
	n, err := f.svc.LogoutAll(cctx, f.tokens)
	if err != nil || n != 1 {
		t.Fatalf("LogoutAll: %d %v", n, err)
	}
	if _, _, err := f.tokens.Authenticate(ctx, current.Credential.Secret); !errors.Is(err, auth.ErrInvalidToken) {
		t.Fatalf("token must be gone, got %v", err)
	}
}
