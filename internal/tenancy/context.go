// Package tenancy enforces row-level isolation between tenants.
//
// The tenant a request runs under lives only in its context.Context; there is
// no process-wide state. Repositories read it when they are built.
package tenancy

import (
	"context"
	"errors"
)

var (
	ErrNotFound           = errors.New("tenancy: not found")
	ErrTenantReassignment = errors.New("tenancy: tenant reassignment")
	ErrCrossTenant        = errors.New("tenancy: record belongs to another tenant")
	ErrNoTenant           = errors.New("tenancy: tenant id required")
)

type tenantContextKey struct{}

// WithTenant binds tenantID to ctx. An empty id unbinds.
func WithTenant(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantContextKey{}, tenantID)
}

// TenantFrom returns the bound tenant id.
func TenantFrom(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(tenantContextKey{}).(string)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

// Owned is implemented by pointers to tenant-owned models.
type Owned interface {
	RecordID() string
	OwnerTenant() string
	AssignTenant(tenantID string)
}

// Platform is implemented by models whose rows may belong to no tenant, such
// as audit entries written by a super-admin in global mode.
type Platform interface {
	AllowsNoTenant() bool
}

// stamp applies the creation rule: an unset tenant takes the scope's tenant,
// an explicit one must match it. Unscoped repositories keep the row's tenant
// but refuse an empty one unless the model is a Platform model.
func stamp(scope string, rec Owned) error {
	if scope == "" {
		if rec.OwnerTenant() != "" {
			return nil
		}
		if p, ok := rec.(Platform); ok && p.AllowsNoTenant() {
			return nil
		}
		return ErrNoTenant
	}
	switch current := rec.OwnerTenant(); {
	case current == "":
		rec.AssignTenant(scope)
	case current != scope:
		return ErrCrossTenant
	}
	return nil
}

// keepTenant applies the update rule: the tenant column never changes. An
// empty value on the update means "unchanged".
func keepTenant(original, updated Owned) error {
	switch updated.OwnerTenant() {
	case "":
		updated.AssignTenant(original.OwnerTenant())
	case original.OwnerTenant():
	default:
		return ErrTenantReassignment
	}
	return nil
}
