package httpapi

import "net/http"

// listTenants is the super-admin's school picker.
func (a *API) listTenants(w http.ResponseWriter, r *http.Request) {
	tenants, err := a.deps.Tenants.ListTenants(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	out := make([]*tenantView, 0, len(tenants))
	for i := range tenants {
		out = append(out, a.viewTenant(&tenants[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": out})
}
