package auth

import (
	"context"
	"errors"
	"strings"
)

// ResolveOptions tune tenant resolution.
type ResolveOptions struct {
	// Slug is the tenant requested by the client, if any.
	Slug string
	// Login resolves a super-admin from Slug alone: no slug means global
	// mode and the stored viewing pointer is ignored. Resolve never writes;
	// logins call Persist once their credential exists.
	Login bool
}

// Resolution is the tenant a request runs under. A nil Tenant means global mode.
type Resolution struct {
	Tenant  *Tenant
	Viewing bool
}

func (r Resolution) Global() bool { return r.Tenant == nil }

// TenantResolver decides which tenant an authenticated user acts within.
// Cookie logins, token logins and every authenticated request share it.
type TenantResolver struct {
	users   UserStore
	tenants TenantStore
}

func NewTenantResolver(users UserStore, tenants TenantStore) *TenantResolver {
	return &TenantResolver{users: users, tenants: tenants}
}

// Resolve binds user to a tenant without side effects.
func (r *TenantResolver) Resolve(ctx context.Context, user *User, opts ResolveOptions) (Resolution, error) {
	slug := strings.TrimSpace(opts.Slug)
	if user.IsSuperAdmin() {
		return r.resolveSuperAdmin(ctx, user, slug, opts.Login)
	}

	if user.TenantID == "" {
		return Resolution{}, errNoTenant
	}
	tenant, err := r.tenants.GetTenant(ctx, user.TenantID)
	if errors.Is(err, ErrNotFound) {
		return Resolution{}, errNoTenant
	}
	if err != nil {
		return Resolution{}, err
	}
	if !tenant.Active {
		return Resolution{}, errTenantInactive
	}
	if slug != "" && slug != tenant.Slug {
		return Resolution{}, errCrossTenant
	}
	return Resolution{Tenant: &tenant}, nil
}

// Persist stores a super-admin login's resolution as the viewing pointer and
// mirrors it on user. Other roles are left alone.
func (r *TenantResolver) Persist(ctx context.Context, user *User, res Resolution) error {
	if !user.IsSuperAdmin() {
		return nil
	}
	target := ""
	if res.Tenant != nil {
		target = res.Tenant.ID
	}
	if user.TenantID == target {
		return nil
	}
	if err := r.users.SetViewingTenant(ctx, user.ID, target); err != nil {
		return err
	}
	user.TenantID = target
	return nil
}

func (r *TenantResolver) resolveSuperAdmin(ctx context.Context, user *User, slug string, login bool) (Resolution, error) {
	if slug != "" {
		tenant, err := r.tenants.GetTenantBySlug(ctx, slug)
		if errors.Is(err, ErrNotFound) {
			return Resolution{}, errTenantNotFound
		}
		if err != nil {
			return Resolution{}, err
		}
		return Resolution{Tenant: &tenant, Viewing: true}, nil
	}
	if login {
		// a fresh login without a slug starts in global mode
		return Resolution{}, nil
	}

	if user.TenantID == "" {
		return Resolution{}, nil
	}
	tenant, err := r.tenants.GetTenant(ctx, user.TenantID)
	if errors.Is(err, ErrNotFound) {
		return Resolution{}, nil
	}
	if err != nil {
		return Resolution{}, err
	}
	return Resolution{Tenant: &tenant, Viewing: true}, nil
}
