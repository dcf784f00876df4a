package httpapi

import (
	"net/http"
	"strconv"

	"schooladmin.org/internal/auth"
	"schooladmin.org/internal/school"
)

func (a *API) listStudents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	items, err := a.deps.Students.List(r.Context(), school.ListFilter{
		Grade:  q.Get("grade"),
		Status: q.Get("status"),
		Limit:  limit,
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": items})
}

func (a *API) getStudent(w http.ResponseWriter, r *http.Request) {
	st, err := a.deps.Students.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (a *API) createStudent(w http.ResponseWriter, r *http.Request) {
	if !a.canWrite(w, r) {
		return
	}
	var in school.StudentInput
	if err := decodeJSON(w, r, &in); err != nil {
		badRequest(w, r, err)
		return
	}
	st, err := a.deps.Students.Create(r.Context(), in)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, st)
}

func (a *API) updateStudent(w http.ResponseWriter, r *http.Request) {
	if !a.canWrite(w, r) {
		return
	}
	var in school.StudentInput
	if err := decodeJSON(w, r, &in); err != nil {
		badRequest(w, r, err)
		return
	}
	st, err := a.deps.Students.Update(r.Context(), r.PathValue("id"), in)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// canWrite limits student edits to school staff; parents only read.
func (a *API) canWrite(w http.ResponseWriter, r *http.Request) bool {
	p := principal(r.Context())
	if p.HasRole(auth.RoleAdmin, auth.RoleDirector, auth.RoleTeacher, auth.RoleStaff) && p.Can("students:write") {
		return true
	}
	fail(w, r, auth.Fail(auth.ErrForbidden, "auth.forbidden"))
	return false
}

func (a *API) listActivity(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := a.deps.Activity.Recent(r.Context(), limit)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": entries})
}
