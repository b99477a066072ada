package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	authmw "github.com/mind-engage/coursework/internal/auth/middleware"
	"github.com/mind-engage/coursework/internal/enrollment"
)

// POST /courses/{courseID}/enrollments
func (h *Handlers) Enroll(w http.ResponseWriter, r *http.Request) {
	e, err := h.Enrollments.Enroll(r.Context(), authmw.SubjectFromContext(r.Context()), chi.URLParam(r, "courseID"))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

// POST /invitations/{token}/accept
func (h *Handlers) AcceptInvitation(w http.ResponseWriter, r *http.Request) {
	e, err := h.Enrollments.AcceptInvitation(r.Context(), chi.URLParam(r, "token"), authmw.SubjectFromContext(r.Context()))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

// loadOwned fetches the enrollment in the URL and checks the caller may
// act on it.
func (h *Handlers) loadOwned(w http.ResponseWriter, r *http.Request) (enrollment.Enrollment, bool) {
	e, err := h.Enrollments.GetEnrollment(r.Context(), chi.URLParam(r, "enrollmentID"))
	if err != nil {
		writeError(w, r, h.Log, err)
		return enrollment.Enrollment{}, false
	}
	if !h.ownsOrMay(r, e.UserID) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return enrollment.Enrollment{}, false
	}
	return e, true
}

// POST /enrollments/{enrollmentID}/drop
func (h *Handlers) Drop(w http.ResponseWriter, r *http.Request) {
	cur, ok := h.loadOwned(w, r)
	if !ok {
		return
	}
	e, err := h.Enrollments.Drop(r.Context(), cur.ID)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// POST /enrollments/{enrollmentID}/reenroll  {"preserve_progress": true}
func (h *Handlers) Reenroll(w http.ResponseWriter, r *http.Request) {
	cur, ok := h.loadOwned(w, r)
	if !ok {
		return
	}
	var req struct {
		PreserveProgress bool `json:"preserve_progress"`
	}
	if r.ContentLength != 0 {
		if err := decode(r, &req); err != nil {
			writeError(w, r, h.Log, err)
			return
		}
	}
	e, err := h.Enrollments.Reenroll(r.Context(), cur.ID, req.PreserveProgress)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// POST /enrollments/{enrollmentID}/lessons/{lessonID}/progress
func (h *Handlers) LessonProgress(w http.ResponseWriter, r *http.Request) {
	cur, ok := h.loadOwned(w, r)
	if !ok {
		return
	}
	var u enrollment.LessonUpdate
	if err := decode(r, &u); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	lp, e, err := h.Enrollments.RecordLessonProgress(r.Context(), cur.ID, chi.URLParam(r, "lessonID"), u)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"lesson_progress": lp, "enrollment": e})
}

// POST /enrollments/{enrollmentID}/recalculate
func (h *Handlers) RecalculateEnrollment(w http.ResponseWriter, r *http.Request) {
	e, err := h.Enrollments.RecalculateCourseProgress(r.Context(), chi.URLParam(r, "enrollmentID"))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}
