package http

import (
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/coursework/internal/apperr"
	"github.com/mind-engage/coursework/internal/assessment"
	authmw "github.com/mind-engage/coursework/internal/auth/middleware"
)

const maxUploadBytes = 32 << 20

// POST /assessments/{assessmentID}/attempts
func (h *Handlers) StartAttempt(w http.ResponseWriter, r *http.Request) {
	userID := authmw.SubjectFromContext(r.Context())
	at, err := h.Assessments.StartAttempt(r.Context(), chi.URLParam(r, "assessmentID"), userID)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, at)
}

// GET /assessments/{assessmentID}/eligibility
func (h *Handlers) Eligibility(w http.ResponseWriter, r *http.Request) {
	userID := authmw.SubjectFromContext(r.Context())
	err := h.Assessments.CheckEligibility(r.Context(), chi.URLParam(r, "assessmentID"), userID)
	resp := map[string]any{"eligible": err == nil}
	if err != nil {
		var ae *apperr.Error
		if !errors.As(err, &ae) || ae.Kind != apperr.KindIneligible {
			writeError(w, r, h.Log, err)
			return
		}
		resp["rule"] = ae.Rule
		resp["reason"] = ae.Msg
	}
	writeJSON(w, http.StatusOK, resp)
}

// GET /attempts/{attemptID}
func (h *Handlers) GetAttempt(w http.ResponseWriter, r *http.Request) {
	at, answers, err := h.Assessments.GetAttempt(r.Context(), chi.URLParam(r, "attemptID"))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	if !h.ownsOrMay(r, at.UserID) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"attempt": at, "answers": answers})
}

// POST /attempts/{attemptID}/submit
//
// JSON body {"answers":[...]} or multipart/form-data with an "answers"
// field holding the same JSON and one file part per file_upload question,
// named "file:<questionID>".
func (h *Handlers) SubmitAttempt(w http.ResponseWriter, r *http.Request) {
	attemptID := chi.URLParam(r, "attemptID")
	at, _, err := h.Assessments.GetAttempt(r.Context(), attemptID)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	if at.UserID != authmw.SubjectFromContext(r.Context()) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	var req assessment.SubmitRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			writeError(w, r, h.Log, apperr.Validation("attempt", attemptID, "bad_multipart", err.Error()))
			return
		}
		defer r.MultipartForm.RemoveAll()
		if err := json.Unmarshal([]byte(r.FormValue("answers")), &req.Answers); err != nil {
			writeError(w, r, h.Log, apperr.Validation("attempt", attemptID, "bad_json", "answers: "+err.Error()))
			return
		}
		closers, err := attachFiles(r.MultipartForm, req.Answers)
		defer func() {
			for _, c := range closers {
				_ = c.Close()
			}
		}()
		if err != nil {
			writeError(w, r, h.Log, err)
			return
		}
	} else if err := decode(r, &req); err != nil {
		writeError(w, r, h.Log, err)
		return
	}

	out, err := h.Assessments.SubmitAnswers(r.Context(), attemptID, req)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func attachFiles(form *multipart.Form, answers []assessment.AnswerInput) ([]multipart.File, error) {
	var opened []multipart.File
	for i := range answers {
		hdrs := form.File["file:"+answers[i].QuestionID]
		if len(hdrs) == 0 {
			continue
		}
		f, err := hdrs[0].Open()
		if err != nil {
			return opened, err
		}
		opened = append(opened, f)
		answers[i].File = f
		answers[i].FileName = hdrs[0].Filename
	}
	return opened, nil
}

// POST /answers/{answerID}/grade  {"score": 8}
func (h *Handlers) GradeAnswer(w http.ResponseWriter, r *http.Request) {
	var req assessment.GradeRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	req.GraderID = authmw.SubjectFromContext(r.Context())
	at, err := h.Assessments.GradeAnswer(r.Context(), chi.URLParam(r, "answerID"), req)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, at)
}

// POST /attempts/{attemptID}/complete
func (h *Handlers) CompleteAttempt(w http.ResponseWriter, r *http.Request) {
	at, err := h.Assessments.CompleteAttempt(r.Context(), chi.URLParam(r, "attemptID"))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, at)
}

// POST /attempts/{attemptID}/recalculate
func (h *Handlers) RecalculateAttempt(w http.ResponseWriter, r *http.Request) {
	at, err := h.Assessments.RecalculateAttempt(r.Context(), chi.URLParam(r, "attemptID"))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, at)
}
