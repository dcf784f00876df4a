package auth

import (
	"slices"
	"time"
)

type Role string

const (
	RoleSuperAdmin Role = "super_admin"
	RoleAdmin      Role = "admin"
	RoleDirector   Role = "director"
	RoleTeacher    Role = "teacher"
	RoleStaff      Role = "staff"
	RoleParent     Role = "parent"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleSuperAdmin, RoleAdmin, RoleDirector, RoleTeacher, RoleStaff, RoleParent:
		return true
	}
	return false
}

type UserStatus string

const (
	StatusActive   UserStatus = "active"
	StatusInactive UserStatus = "inactive"
)

// User is an account. TenantID is empty only for super-admins; for them it
// records the tenant currently being viewed and never gates authorization.
type User struct {
	ID           string     `json:"id"`
	TenantID     string     `json:"tenant_id,omitempty"`
	Name         string     `json:"name"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	Role         Role       `json:"role"`
	Status       UserStatus `json:"status"`
	PhotoPath    string     `json:"-"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
	LastLoginIP  string     `json:"-"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (u User) IsSuperAdmin() bool { return u.Role == RoleSuperAdmin }

func (u User) Active() bool { return u.Status == StatusActive }

// Tenant is a school. The slug is unique and never changes.
type Tenant struct {
	ID             string    `json:"id"`
	Slug           string    `json:"slug"`
	Name           string    `json:"name"`
	Active         bool      `json:"is_active"`
	LogoPath       string    `json:"-"`
	BannerPath     string    `json:"-"`
	BackgroundPath string    `json:"-"`
	Timezone       string    `json:"timezone"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Session is a server-side cookie session. The cookie carries a secret whose
// sha256 is TokenHash; ID is the public handle used for listing and revocation.
type Session struct {
	ID           string
	TokenHash    string
	UserID       string
	IPAddress    string
	UserAgent    string
	LastActivity time.Time
	CreatedAt    time.Time
}

// AbilityAll grants every ability.
const AbilityAll = "*"

// AccessToken is a personal access token used by the mobile app.
type AccessToken struct {
	ID         string
	UserID     string
	Name       string
	Abilities  []string
	TokenHash  string
	IPAddress  string
	LastUsedAt *time.Time
	ExpiresAt  time.Time
	CreatedAt  time.Time
}

// Expired reports whether the token is past its expiry at now.
func (t AccessToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// Can reports whether the token carries ability, directly or through AbilityAll.
func (t AccessToken) Can(ability string) bool {
	return slices.Contains(t.Abilities, AbilityAll) || slices.Contains(t.Abilities, ability)
}

type CredentialKind string

const (
	CredentialSession CredentialKind = "session"
	CredentialToken   CredentialKind = "token"
)

// CredentialInfo is the listing view shared by sessions and tokens.
type CredentialInfo struct {
	ID           string         `json:"id"`
	Kind         CredentialKind `json:"kind"`
	Name         string         `json:"name,omitempty"`
	IPAddress    string         `json:"ip_address,omitempty"`
	UserAgent    string         `json:"user_agent,omitempty"`
	LastActiveAt time.Time      `json:"last_active_at"`
	ExpiresAt    *time.Time     `json:"expires_at,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	Current      bool           `json:"current"`
}

// Principal is the authenticated caller of a request.
type Principal struct {
	User           User
	Tenant         *Tenant
	Viewing        bool
	CredentialKind CredentialKind
	CredentialID   string
	Abilities      []string
}

// TenantID is the tenant the request is scoped to, empty in global mode.
func (p Principal) TenantID() string {
	if p.Tenant == nil {
		return ""
	}
	return p.Tenant.ID
}

// Can checks token abilities. Cookie sessions carry every ability.
func (p Principal) Can(ability string) bool {
	if p.CredentialKind != CredentialToken {
		return true
	}
	return slices.Contains(p.Abilities, AbilityAll) || slices.Contains(p.Abilities, ability)
}

// HasRole reports whether the user holds one of roles. Super-admins hold all.
func (p Principal) HasRole(roles ...Role) bool {
	if p.User.IsSuperAdmin() {
		return true
	}
	return slices.Contains(roles, p.User.Role)
}
