package httpapi

import (
	"net/http"
	"time"

	"schooladmin.org/internal/account"
	"schooladmin.org/internal/i18n"
)

type tokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type mobileLoginResponse struct {
	tokenResponse
	loginView
}

func newTokenResponse(c account.Issued) tokenResponse {
	return tokenResponse{AccessToken: c.Secret, TokenType: "Bearer", ExpiresAt: c.ExpiresAt}
}

func (a *API) mobileLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, r, err)
		return
	}
	res, ok := a.login(w, r, req, "", a.tokens)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, mobileLoginResponse{
		tokenResponse: newTokenResponse(res.Credential),
		loginView:     a.viewLogin(res),
	})
}

func (a *API) mobileLogout(w http.ResponseWriter, r *http.Request) {
	if err := a.accounts.Logout(r.Context(), a.tokens); err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, message(r, "session.logged_out"))
}

func (a *API) mobileLogoutAll(w http.ResponseWriter, r *http.Request) {
	n, err := a.accounts.LogoutAll(r.Context(), a.tokens)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": i18n.T(lang(r), "session.logged_out"),
		"count":   n,
	})
}

func (a *API) mobileRefresh(w http.ResponseWriter, r *http.Request) {
	c, err := a.tokens.Refresh(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newTokenResponse(c))
}
