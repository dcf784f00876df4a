package httpapi

import (
	"time"

	"schooladmin.org/internal/account"
	"schooladmin.org/internal/auth"
)

type tenantView struct {
	ID            string  `json:"id"`
	Slug          string  `json:"slug"`
	Name          string  `json:"name"`
	Active        bool    `json:"is_active"`
	Timezone      string  `json:"timezone,omitempty"`
	LogoURL       *string `json:"logo_url"`
	BannerURL     *string `json:"banner_url"`
	BackgroundURL *string `json:"background_url"`
}

type userView struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Email       string      `json:"email"`
	Role        auth.Role   `json:"role"`
	TenantID    *string     `json:"tenant_id"`
	PhotoURL    *string     `json:"photo_url"`
	LastLoginAt *time.Time  `json:"last_login_at,omitempty"`
	Tenant      *tenantView `json:"tenant"`
}

func (a *API) viewTenant(t *auth.Tenant) *tenantView {
	if t == nil {
		return nil
	}
	return &tenantView{
		ID:            t.ID,
		Slug:          t.Slug,
		Name:          t.Name,
		Active:        t.Active,
		Timezone:      t.Timezone,
		LogoURL:       a.media.URLOf(t.LogoPath),
		BannerURL:     a.media.URLOf(t.BannerPath),
		BackgroundURL: a.media.URLOf(t.BackgroundPath),
	}
}

func (a *API) viewUser(u auth.User, t *auth.Tenant) userView {
	v := userView{
		ID:          u.ID,
		Name:        u.Name,
		Email:       u.Email,
		Role:        u.Role,
		PhotoURL:    a.media.URLOf(u.PhotoPath),
		LastLoginAt: u.LastLoginAt,
		Tenant:      a.viewTenant(t),
	}
	if u.TenantID != "" {
		id := u.TenantID
		v.TenantID = &id
	}
	return v
}

type loginView struct {
	User          userView `json:"user"`
	ViewingTenant bool     `json:"viewing_tenant"`
}

func (a *API) viewLogin(res account.LoginResult) loginView {
	return loginView{User: a.viewUser(res.User, res.Tenant), ViewingTenant: res.Viewing}
}
