// Package account runs the login and credential-management flows shared by
// the cookie and bearer surfaces.
package account

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"schooladmin.org/internal/activity"
	"schooladmin.org/internal/auth"
	"schooladmin.org/internal/obs"
	"schooladmin.org/internal/tenancy"
)

var loginActions = map[Flavor]activity.Action{
	FlavorWeb:    activity.ActionLogin,
	FlavorMobile: activity.ActionMobileLogin,
}

var logoutActions = map[auth.CredentialKind]activity.Action{
	auth.CredentialSession: activity.ActionLogout,
	auth.CredentialToken:   activity.ActionMobileLogout,
}

var revokeActions = map[auth.CredentialKind]activity.Action{
	auth.CredentialSession: activity.ActionSessionRevoked,
	auth.CredentialToken:   activity.ActionTokenRevoked,
}

var subjectKinds = map[auth.CredentialKind]activity.SubjectKind{
	auth.CredentialSession: activity.SubjectSession,
	auth.CredentialToken:   activity.SubjectToken,
}

// Service orchestrates authentication, tenant resolution and credential issuance.
type Service struct {
	authn    *auth.Authenticator
	resolver *auth.TenantResolver
	users    auth.UserStore
	recorder *activity.Recorder
	now      func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithClock overrides the time source.
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

func NewService(dir auth.Directory, recorder *activity.Recorder, opts ...ServiceOption) *Service {
	s := &Service{
		authn:    auth.NewAuthenticator(dir),
		resolver: auth.NewTenantResolver(dir, dir),
		users:    dir,
		recorder: recorder,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Resolver exposes the tenant resolver for per-request resolution.
func (s *Service) Resolver() *auth.TenantResolver { return s.resolver }

// Login authenticates req and mints a credential through issuer. Tenant and
// credential failures happen before anything is written.
func (s *Service) Login(ctx context.Context, req LoginRequest, issuer Issuer) (LoginResult, error) {
	flavor := issuer.Flavor()
	result, err := s.login(ctx, req, issuer)
	obs.ObserveLogin(string(flavor), loginOutcome(err))
	return result, err
}

func (s *Service) login(ctx context.Context, req LoginRequest, issuer Issuer) (LoginResult, error) {
	user, err := s.authn.Authenticate(ctx, req.Email, req.Password)
	if err != nil {
		return LoginResult{}, err
	}
	if user.IsSuperAdmin() && issuer.RequiresTenant() && strings.TrimSpace(req.TenantSlug) == "" {
		return LoginResult{}, auth.ErrSelectTenant
	}

	res, err := s.resolver.Resolve(ctx, &user, auth.ResolveOptions{Slug: req.TenantSlug, Login: true})
	if err != nil {
		return LoginResult{}, err
	}

	issued, err := issuer.Issue(ctx, user, req)
	if err != nil {
		return LoginResult{}, err
	}
	if err := s.resolver.Persist(ctx, &user, res); err != nil {
		// later requests resolve from the pointer, so the credential must not outlive a failed write
		if _, rerr := issuer.Revoke(ctx, user.ID, issued.ID); rerr != nil {
			obs.LoggerFrom(ctx).Warn("revoke after failed login", zap.String("user_id", user.ID), zap.Error(rerr))
		}
		return LoginResult{}, err
	}

	now := s.now().UTC()
	meta := auth.RequestMetaFromContext(ctx)
	if err := s.users.RecordLogin(ctx, user.ID, now, meta.IP); err != nil {
		obs.LoggerFrom(ctx).Warn("record last login failed", zap.String("user_id", user.ID), zap.Error(err))
	} else {
		user.LastLoginAt = &now
		user.LastLoginIP = meta.IP
	}

	if !res.Global() {
		ctx = tenancy.WithTenant(ctx, res.Tenant.ID)
	}
	props := map[string]any{"flavor": string(issuer.Flavor()), "viewing_tenant": res.Viewing}
	if res.Tenant != nil {
		props["tenant"] = res.Tenant.Slug
	}
	if req.DeviceName != "" {
		props["device"] = req.DeviceName
	}
	s.recorder.Record(ctx, activity.Activity{
		Action:     loginActions[issuer.Flavor()],
		Actor:      &user,
		Properties: props,
	})

	return LoginResult{User: user, Tenant: res.Tenant, Viewing: res.Viewing, Credential: issued}, nil
}

// Logout revokes the credential the request authenticated with.
func (s *Service) Logout(ctx context.Context, set CredentialSet) error {
	p, err := current(ctx, set)
	if err != nil {
		return err
	}
	if _, err := set.Revoke(ctx, p.User.ID, p.CredentialID); err != nil {
		return err
	}
	s.recorder.Record(ctx, activity.Activity{Action: logoutActions[set.Kind()]})
	return nil
}

// LogoutOthers revokes every credential of the caller except the current one.
func (s *Service) LogoutOthers(ctx context.Context, set CredentialSet) (int64, error) {
	p, err := current(ctx, set)
	if err != nil {
		return 0, err
	}
	n, err := set.RevokeOthers(ctx, p.User.ID, p.CredentialID)
	if err != nil {
		return 0, err
	}
	s.recorder.Record(ctx, activity.Activity{
		Action:     activity.ActionSessionsClosed,
		Properties: map[string]any{"revoked": n, "kind": string(set.Kind())},
	})
	return n, nil
}

// LogoutAll revokes every credential of the caller, the current one included.
func (s *Service) LogoutAll(ctx context.Context, set CredentialSet) (int64, error) {
	p, err := current(ctx, set)
	if err != nil {
		return 0, err
	}
	n, err := set.RevokeAll(ctx, p.User.ID)
	if err != nil {
		return 0, err
	}
	s.recorder.Record(ctx, activity.Activity{
		Action:     activity.ActionMobileLogoutAll,
		Properties: map[string]any{"revoked": n, "kind": string(set.Kind())},
	})
	return n, nil
}

// List returns the caller's credentials with the current one flagged.
func (s *Service) List(ctx context.Context, set CredentialSet) ([]auth.CredentialInfo, error) {
	p, err := current(ctx, set)
	if err != nil {
		return nil, err
	}
	items, err := set.List(ctx, p.User.ID)
	if err != nil {
		return nil, err
	}
	for i := range items {
		items[i].Current = items[i].ID == p.CredentialID
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].LastActiveAt.After(items[j].LastActiveAt)
	})
	return items, nil
}

// Revoke removes one of the caller's credentials. The current credential
// cannot be revoked this way; logout exists for that.
func (s *Service) Revoke(ctx context.Context, set CredentialSet, id string) error {
	p, err := current(ctx, set)
	if err != nil {
		return err
	}
	prefix := string(set.Kind())
	if id == p.CredentialID {
		return auth.Fail(auth.ErrBadRequest, prefix+".self_revoke")
	}
	ok, err := set.Revoke(ctx, p.User.ID, id)
	if err != nil {
		return err
	}
	if !ok {
		return auth.Fail(auth.ErrNotFound, prefix+".not_found")
	}
	s.recorder.Record(ctx, activity.Activity{
		Action:  revokeActions[set.Kind()],
		Subject: activity.On(subjectKinds[set.Kind()], id),
	})
	return nil
}

// ChangePassword verifies the current password, stores the new hash and
// revokes every other credential of the same kind.
func (s *Service) ChangePassword(ctx context.Context, set CredentialSet, req PasswordChange) (int64, error) {
	p, err := current(ctx, set)
	if err != nil {
		return 0, err
	}

	verr := &auth.ValidationError{}
	if req.Current == "" {
		verr.Add("current_password", "validation.required")
	}
	switch {
	case req.New == "":
		verr.Add("password", "validation.required")
	case len(req.New) < auth.MinPasswordLength:
		verr.Add("password", "password.min")
	case req.New != req.Confirmation:
		verr.Add("password", "password.confirmation")
	}
	if err := verr.Err(); err != nil {
		return 0, err
	}

	user, err := s.users.GetUser(ctx, p.User.ID)
	if err != nil {
		return 0, err
	}
	if auth.VerifyPassword(user.PasswordHash, req.Current) != nil {
		return 0, auth.Invalid("current_password", "password.current_invalid")
	}
	if req.New == req.Current {
		return 0, auth.Invalid("password", "password.same")
	}

	hash, err := auth.HashPassword(req.New)
	if err != nil {
		return 0, err
	}
	if err := s.users.UpdatePassword(ctx, user.ID, hash); err != nil {
		return 0, err
	}
	n, err := set.RevokeOthers(ctx, user.ID, p.CredentialID)
	if err != nil {
		return 0, err
	}
	s.recorder.Record(ctx, activity.Activity{
		Action:     activity.ActionPasswordChanged,
		Properties: map[string]any{"revoked": n, "kind": string(set.Kind())},
	})
	return n, nil
}

func current(ctx context.Context, set CredentialSet) (auth.Principal, error) {
	p, ok := auth.PrincipalFromContext(ctx)
	if !ok || p.CredentialKind != set.Kind() || p.CredentialID == "" {
		return auth.Principal{}, auth.Fail(auth.ErrUnauthenticated, "auth.unauthenticated")
	}
	return p, nil
}

func loginOutcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, auth.ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, auth.ErrAccountInactive):
		return "account_inactive"
	case errors.Is(err, auth.ErrTenantInactive):
		return "tenant_inactive"
	case errors.Is(err, auth.ErrForbidden):
		return "forbidden"
	case errors.Is(err, auth.ErrNotFound):
		return "tenant_not_found"
	case errors.Is(err, auth.ErrBadRequest):
		return "bad_request"
	default:
		return "error"
	}
}
