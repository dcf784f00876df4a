package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"schooladmin.org/internal/auth"
	"schooladmin.org/internal/obs"
	"schooladmin.org/internal/tenancy"
)

const (
	authHeader   = "Authorization"
	bearer       = "Bearer "
	csrfHeader   = "X-XSRF-TOKEN"
	csrfCookie   = "XSRF-TOKEN"
	tenantHeader = "X-Tenant-Slug"
)

// webAuth authenticates the session cookie, checks the CSRF token on unsafe
// methods and binds the principal and tenant scope to the request.
func (a *API) webAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, user, err := a.sessions.Authenticate(r.Context(), a.sessionCookie(r))
		if err != nil {
			if errors.Is(err, auth.ErrUnauthenticated) || errors.Is(err, auth.ErrAccountInactive) {
				a.clearSessionCookie(w)
			}
			fail(w, r, err)
			return
		}
		if !safeMethod(r.Method) {
			if err := a.sessions.VerifyCSRF(r.Header.Get(csrfHeader), sess.ID); err != nil {
				fail(w, r, err)
				return
			}
		}
		a.refreshCSRFCookie(w, r, sess.ID)
		a.bind(w, r, next, user, auth.Principal{
			CredentialKind: auth.CredentialSession,
			CredentialID:   sess.ID,
		})
	})
}

// bearerAuth authenticates a mobile access token.
func (a *API) bearerAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			fail(w, r, auth.Fail(auth.ErrUnauthenticated, "auth.unauthenticated"))
			return
		}
		tok, user, err := a.tokens.Authenticate(r.Context(), raw)
		if err != nil {
			fail(w, r, err)
			return
		}
		a.bind(w, r, next, user, auth.Principal{
			CredentialKind: auth.CredentialToken,
			CredentialID:   tok.ID,
			Abilities:      tok.Abilities,
		})
	})
}

// anyAuth accepts either credential. A present Authorization header selects
// the bearer path.
func (a *API) anyAuth(next http.Handler) http.Handler {
	web, mobile := a.webAuth(next), a.bearerAuth(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(authHeader) != "" {
			mobile.ServeHTTP(w, r)
			return
		}
		web.ServeHTTP(w, r)
	})
}

// bind resolves the tenant for this request and stores the principal. The
// tenant is re-resolved on every request; a super-admin may override it per
// request with the X-Tenant-Slug header without moving the stored pointer.
func (a *API) bind(w http.ResponseWriter, r *http.Request, next http.Handler, user auth.User, p auth.Principal) {
	ctx := r.Context()
	res, err := a.accounts.Resolver().Resolve(ctx, &user, auth.ResolveOptions{Slug: r.Header.Get(tenantHeader)})
	if err != nil {
		fail(w, r, err)
		return
	}
	p.User = user
	p.Tenant = res.Tenant
	p.Viewing = res.Viewing

	ctx = auth.ContextWithPrincipal(ctx, p)
	fields := []zap.Field{zap.String("user_id", user.ID)}
	if !res.Global() {
		ctx = tenancy.WithTenant(ctx, res.Tenant.ID)
		fields = append(fields, zap.String("tenant_id", res.Tenant.ID))
	}
	ctx = obs.WithLogger(ctx, obs.LoggerFrom(ctx).With(fields...))
	next.ServeHTTP(w, r.WithContext(ctx))
}

// requireRole admits principals holding one of roles. Super-admins always
// pass, so an empty list means super-admin only.
func (a *API) requireRole(next http.Handler, roles ...auth.Role) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := auth.PrincipalFromContext(r.Context())
		if !ok {
			fail(w, r, auth.Fail(auth.ErrUnauthenticated, "auth.unauthenticated"))
			return
		}
		if !p.HasRole(roles...) {
			fail(w, r, auth.Fail(auth.ErrForbidden, "auth.forbidden"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func principal(ctx context.Context) auth.Principal {
	p, _ := auth.PrincipalFromContext(ctx)
	return p
}

func (a *API) sessionCookie(r *http.Request) string {
	c, err := r.Cookie(a.deps.Cookie.Name)
	if err != nil {
		return ""
	}
	return c.Value
}

func (a *API) setSessionCookie(w http.ResponseWriter, secret string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     a.deps.Cookie.Name,
		Value:    secret,
		Path:     "/",
		Domain:   a.deps.Cookie.Domain,
		Expires:  expires,
		Secure:   a.deps.Cookie.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (a *API) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     a.deps.Cookie.Name,
		Value:    "",
		Path:     "/",
		Domain:   a.deps.Cookie.Domain,
		MaxAge:   -1,
		Secure:   a.deps.Cookie.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// setCSRFCookie exposes the token to scripts so the SPA can echo it back in
// the X-XSRF-TOKEN header.
func (a *API) setCSRFCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookie,
		Value:    token,
		Path:     "/",
		Domain:   a.deps.Cookie.Domain,
		Secure:   a.deps.Cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// refreshCSRFCookie keeps the XSRF-TOKEN cookie ahead of the sliding session
// window. A failed reissue leaves the current cookie in place.
func (a *API) refreshCSRFCookie(w http.ResponseWriter, r *http.Request, sessionID string) {
	var current string
	if c, err := r.Cookie(csrfCookie); err == nil {
		current = c.Value
	}
	token, err := a.sessions.RefreshCSRF(current, sessionID)
	if err != nil {
		obs.LoggerFrom(r.Context()).Warn("csrf reissue failed", zap.Error(err))
		return
	}
	if token != "" {
		a.setCSRFCookie(w, token)
	}
}

func safeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}
