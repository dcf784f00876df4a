package auth

import (
	"context"
	"time"
)

// UserStore persists accounts. Lookups return ErrNotFound when absent.
type UserStore interface {
	GetUser(ctx context.Context, id string) (User, error)
	// GetUserByEmail matches the email exactly, without normalization.
	GetUserByEmail(ctx context.Context, email string) (User, error)
	RecordLogin(ctx context.Context, userID string, at time.Time, ip string) error
	// SetViewingTenant points a super-admin at tenantID; empty clears it.
	SetViewingTenant(ctx context.Context, userID, tenantID string) error
	UpdatePassword(ctx context.Context, userID, hash string) error
}

// TenantStore reads tenants. Lookups return ErrNotFound when absent.
type TenantStore interface {
	GetTenant(ctx context.Context, id string) (Tenant, error)
	GetTenantBySlug(ctx context.Context, slug string) (Tenant, error)
	ListTenants(ctx context.Context) ([]Tenant, error)
}

// Directory is the identity storage the login flows need.
type Directory interface {
	UserStore
	TenantStore
}
