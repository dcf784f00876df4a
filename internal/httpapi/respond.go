package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/text/language"

	"schooladmin.org/internal/auth"
	"schooladmin.org/internal/i18n"
	"schooladmin.org/internal/obs"
	"schooladmin.org/internal/tenancy"
)

var errBodyRequired = errors.New("request body is required")

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func lang(r *http.Request) language.Tag {
	return i18n.Match(r.Header.Get("Accept-Language"))
}

func message(r *http.Request, key string) map[string]string {
	return map[string]string{"message": i18n.T(lang(r), key)}
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	writeProblem(w, r, code, msg, "", nil)
}

func writeProblem(w http.ResponseWriter, r *http.Request, code int, msg, errCode string, fields map[string]string) {
	payload := map[string]any{
		"error": msg,
	}
	if errCode != "" {
		payload["code"] = errCode
	}
	if len(fields) > 0 {
		payload["errors"] = fields
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

// fail maps domain errors to localized HTTP responses.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	tag := lang(r)
	var verr *auth.ValidationError
	if errors.As(err, &verr) {
		fields := make(map[string]string, len(verr.Fields))
		for f, key := range verr.Fields {
			fields[f] = i18n.T(tag, key)
		}
		writeProblem(w, r, http.StatusUnprocessableEntity, i18n.T(tag, "validation.failed"), "", fields)
		return
	}

	code, key := classify(err)
	var ae *auth.Error
	errCode := ""
	if errors.As(err, &ae) {
		key = ae.Key
		errCode = ae.Code
	}
	if code == http.StatusInternalServerError {
		obs.LoggerFrom(r.Context()).Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}
	var fields map[string]string
	if errors.Is(err, auth.ErrInvalidCredentials) {
		fields = map[string]string{"email": i18n.T(tag, key)}
	}
	writeProblem(w, r, code, i18n.T(tag, key), errCode, fields)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnprocessableEntity, "auth.invalid_credentials"
	case errors.Is(err, auth.ErrAccountInactive):
		return http.StatusForbidden, "auth.account_inactive"
	case errors.Is(err, auth.ErrTenantInactive):
		return http.StatusForbidden, "auth.tenant_inactive"
	case errors.Is(err, auth.ErrForbidden):
		return http.StatusForbidden, "auth.forbidden"
	case errors.Is(err, auth.ErrNotFound):
		return http.StatusNotFound, "resource.not_found"
	case errors.Is(err, auth.ErrBadRequest):
		return http.StatusBadRequest, "request.invalid"
	case errors.Is(err, auth.ErrConflict):
		return http.StatusConflict, "request.invalid"
	case errors.Is(err, auth.ErrUnauthenticated):
		return http.StatusUnauthorized, "auth.unauthenticated"
	case errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized, "auth.invalid_token"
	case errors.Is(err, tenancy.ErrTenantReassignment):
		return http.StatusForbidden, "tenancy.reassignment"
	case errors.Is(err, tenancy.ErrCrossTenant):
		return http.StatusForbidden, "tenancy.cross_tenant"
	case errors.Is(err, tenancy.ErrNoTenant):
		return http.StatusForbidden, "auth.no_tenant"
	case errors.Is(err, tenancy.ErrNotFound):
		return http.StatusNotFound, "resource.not_found"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errBodyRequired
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// badRequest answers a body that could not be decoded.
func badRequest(w http.ResponseWriter, r *http.Request, err error) {
	writeProblem(w, r, http.StatusBadRequest, i18n.T(lang(r), "request.invalid"), "", map[string]string{"body": err.Error()})
}
