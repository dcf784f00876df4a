package account

import (
	"context"
	"time"

	"schooladmin.org/internal/auth"
)

// Flavor names a login surface.
type Flavor string

const (
	FlavorWeb    Flavor = "web"
	FlavorMobile Flavor = "mobile"
)

// LoginRequest carries what a client submits to log in.
type LoginRequest struct {
	Email      string
	Password   string
	TenantSlug string
	Remember   bool
	DeviceName string
	// Presented is a credential the client already holds, e.g. a pre-login
	// session cookie. Issuers destroy it before minting a new one.
	Presented string
}

// Issued is a freshly minted credential. Secret is only ever returned here.
type Issued struct {
	Kind      auth.CredentialKind
	ID        string
	Secret    string
	CSRFToken string
	ExpiresAt time.Time
}

// LoginResult is what a successful login hands back to the transport.
type LoginResult struct {
	User       auth.User
	Tenant     *auth.Tenant
	Viewing    bool
	Credential Issued
}

// CredentialSet manages one user's credentials of a single kind.
type CredentialSet interface {
	Kind() auth.CredentialKind
	// List returns live credentials, newest activity first.
	List(ctx context.Context, userID string) ([]auth.CredentialInfo, error)
	Revoke(ctx context.Context, userID, id string) (bool, error)
	RevokeOthers(ctx context.Context, userID, keepID string) (int64, error)
	RevokeAll(ctx context.Context, userID string) (int64, error)
}

// Issuer is the credential strategy plugged into the shared login flow.
type Issuer interface {
	CredentialSet
	Flavor() Flavor
	// RequiresTenant is true when super-admins cannot log in in global mode.
	RequiresTenant() bool
	Issue(ctx context.Context, user auth.User, req LoginRequest) (Issued, error)
}

// PasswordChange is a change-password submission.
type PasswordChange struct {
	Current      string
	New          string
	Confirmation string
}
