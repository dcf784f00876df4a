package auth

import (
	"errors"
	"sort"
	"strings"
)

var (
	ErrNotFound           = errors.New("auth: not found")
	ErrConflict           = errors.New("auth: conflict")
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrAccountInactive    = errors.New("auth: account inactive")
	ErrTenantInactive     = errors.New("auth: tenant inactive")
	ErrForbidden          = errors.New("auth: forbidden")
	ErrBadRequest         = errors.New("auth: bad request")
	ErrUnauthenticated    = errors.New("auth: unauthenticated")
	ErrInvalidToken       = errors.New("auth: invalid token")
)

// CodeTenantInactive is exposed to clients so they can show a dedicated screen.
const CodeTenantInactive = "TENANT_INACTIVE"

// Error is a classified failure. Kind is one of the sentinels above and Key
// is the message catalog key shown to the caller.
type Error struct {
	Kind error
	Key  string
	Code string
}

func (e *Error) Error() string {
	return e.Kind.Error() + " (" + e.Key + ")"
}

func (e *Error) Unwrap() error { return e.Kind }

func newError(kind error, key string) *Error {
	return &Error{Kind: kind, Key: key}
}

// Fail builds a classified error for callers outside this package.
func Fail(kind error, key string) error {
	return newError(kind, key)
}

var (
	errInvalidCredentials = newError(ErrInvalidCredentials, "auth.invalid_credentials")
	errAccountInactive    = newError(ErrAccountInactive, "auth.account_inactive")
	errTenantInactive     = &Error{Kind: ErrTenantInactive, Key: "auth.tenant_inactive", Code: CodeTenantInactive}
	errNoTenant           = newError(ErrForbidden, "auth.no_tenant")
	errCrossTenant        = newError(ErrForbidden, "auth.cross_tenant")
	errTenantNotFound     = newError(ErrNotFound, "auth.tenant_not_found")
	errSelectTenant       = newError(ErrBadRequest, "auth.select_tenant")
	errCSRFMismatch       = newError(ErrForbidden, "auth.csrf_mismatch")
)

// ErrSelectTenant is returned when a super-admin logs in on a flavor that
// cannot run in global mode.
var ErrSelectTenant error = errSelectTenant

// ValidationError maps request fields to message keys.
type ValidationError struct {
	Fields map[string]string
}

// Invalid starts a ValidationError with a single field.
func Invalid(field, key string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: key}}
}

// Add records a problem for field. The first problem per field wins.
func (e *ValidationError) Add(field, key string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, ok := e.Fields[field]; !ok {
		e.Fields[field] = key
	}
}

// Err returns nil when no field failed.
func (e *ValidationError) Err() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.Fields))
	for f := range e.Fields {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return "auth: validation failed: " + strings.Join(fields, ", ")
}
