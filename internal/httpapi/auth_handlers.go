package httpapi

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"schooladmin.org/internal/account"
	"schooladmin.org/internal/auth"
	"schooladmin.org/internal/i18n"
	"schooladmin.org/internal/obs"
	"schooladmin.org/internal/throttle"
)

type loginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	TenantSlug string `json:"tenant_slug"`
	Remember   bool   `json:"remember"`
	DeviceName string `json:"device_name"`
}

type passwordRequest struct {
	Current      string `json:"current_password"`
	Password     string `json:"password"`
	Confirmation string `json:"password_confirmation"`
}

func (req loginRequest) validate() error {
	verr := &auth.ValidationError{}
	if strings.TrimSpace(req.Email) == "" {
		verr.Add("email", "validation.required")
	} else if !strings.Contains(req.Email, "@") {
		verr.Add("email", "validation.email")
	}
	if req.Password == "" {
		verr.Add("password", "validation.required")
	}
	return verr.Err()
}

// login runs the shared login flow for issuer with attempt throttling around
// it. It writes the error response itself and reports whether to continue.
func (a *API) login(w http.ResponseWriter, r *http.Request, req loginRequest, presented string, issuer account.Issuer) (account.LoginResult, bool) {
	if err := req.validate(); err != nil {
		fail(w, r, err)
		return account.LoginResult{}, false
	}
	key := throttle.LoginKey(req.Email, auth.RequestMetaFromContext(r.Context()).IP)
	if !a.allowLogin(w, r, key) {
		return account.LoginResult{}, false
	}

	res, err := a.accounts.Login(r.Context(), account.LoginRequest{
		Email:      req.Email,
		Password:   req.Password,
		TenantSlug: req.TenantSlug,
		Remember:   req.Remember,
		DeviceName: req.DeviceName,
		Presented:  presented,
	}, issuer)
	if err != nil {
		fail(w, r, err)
		return account.LoginResult{}, false
	}
	if l := a.deps.Throttle.Limiter; l != nil {
		if err := l.Reset(r.Context(), key); err != nil {
			obs.LoggerFrom(r.Context()).Warn("login throttle reset failed", zap.Error(err))
		}
	}
	return res, true
}

// allowLogin fails open when the limiter itself is unavailable.
func (a *API) allowLogin(w http.ResponseWriter, r *http.Request, key string) bool {
	t := a.deps.Throttle
	if t.Limiter == nil || t.MaxAttempts <= 0 {
		return true
	}
	d, err := t.Limiter.Allow(r.Context(), key, t.MaxAttempts, t.Decay)
	if err != nil {
		obs.LoggerFrom(r.Context()).Warn("login throttle unavailable", zap.Error(err))
		return true
	}
	if d.Allowed {
		return true
	}
	wait := int(math.Ceil(d.RetryAfter(time.Now()).Seconds()))
	if wait < 1 {
		wait = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(wait))
	msg := i18n.T(lang(r), "throttle.login")
	writeProblem(w, r, http.StatusTooManyRequests, msg, "", map[string]string{"email": msg})
	return false
}

// --- Cookie flavor ---

// csrfCookie primes the XSRF-TOKEN cookie. With a live session the token is
// bound to it, otherwise it is only good for logging in.
func (a *API) csrfCookie(w http.ResponseWriter, r *http.Request) {
	sessionID := ""
	if raw := a.sessionCookie(r); raw != "" {
		if sess, _, err := a.sessions.Authenticate(r.Context(), raw); err == nil {
			sessionID = sess.ID
		}
	}
	token, err := a.sessions.CSRFToken(sessionID)
	if err != nil {
		fail(w, r, err)
		return
	}
	a.setCSRFCookie(w, token)
	w.WriteHeader(http.StatusNoContent)
}

// verifyLoginCSRF accepts an anonymous token, or one bound to the session
// the client currently holds.
func (a *API) verifyLoginCSRF(r *http.Request, presented string) error {
	token := r.Header.Get(csrfHeader)
	err := a.sessions.VerifyCSRF(token, "")
	if err == nil || presented == "" {
		return err
	}
	if sess, _, aerr := a.sessions.Authenticate(r.Context(), presented); aerr == nil {
		return a.sessions.VerifyCSRF(token, sess.ID)
	}
	return err
}

func (a *API) webLogin(w http.ResponseWriter, r *http.Request) {
	presented := a.sessionCookie(r)
	if err := a.verifyLoginCSRF(r, presented); err != nil {
		fail(w, r, err)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, r, err)
		return
	}
	res, ok := a.login(w, r, req, presented, a.sessions)
	if !ok {
		return
	}
	var expires time.Time
	if req.Remember {
		expires = res.Credential.ExpiresAt
	}
	a.setSessionCookie(w, res.Credential.Secret, expires)
	a.setCSRFCookie(w, res.Credential.CSRFToken)
	writeJSON(w, http.StatusOK, a.viewLogin(res))
}

func (a *API) webLogout(w http.ResponseWriter, r *http.Request) {
	if err := a.accounts.Logout(r.Context(), a.sessions); err != nil {
		fail(w, r, err)
		return
	}
	a.clearSessionCookie(w)
	if token, err := a.sessions.CSRFToken(""); err == nil {
		a.setCSRFCookie(w, token)
	}
	writeJSON(w, http.StatusOK, message(r, "session.logged_out"))
}

// --- Shared by both flavors ---

func (a *API) me(w http.ResponseWriter, r *http.Request) {
	p := principal(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"user":           a.viewUser(p.User, p.Tenant),
		"viewing_tenant": p.Viewing,
	})
}

func (a *API) listCredentials(set account.CredentialSet) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		items, err := a.accounts.List(r.Context(), set)
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": items})
	})
}

func (a *API) logoutOthers(set account.CredentialSet) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n, err := a.accounts.LogoutOthers(r.Context(), set)
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"message": i18n.T(lang(r), "session.revoked"),
			"count":   n,
		})
	})
}

func (a *API) revokeCredential(set account.CredentialSet) http.Handler {
	key := string(set.Kind()) + ".revoked"
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := a.accounts.Revoke(r.Context(), set, r.PathValue("id")); err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, message(r, key))
	})
}

func (a *API) changePassword(set account.CredentialSet) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req passwordRequest
		if err := decodeJSON(w, r, &req); err != nil {
			badRequest(w, r, err)
			return
		}
		n, err := a.accounts.ChangePassword(r.Context(), set, account.PasswordChange{
			Current:      req.Current,
			New:          req.Password,
			Confirmation: req.Confirmation,
		})
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"message": i18n.T(lang(r), "password.changed"),
			"revoked": n,
		})
	})
}
