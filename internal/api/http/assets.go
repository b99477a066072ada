package http

import (
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/coursework/internal/storage"
)

// GET /attempts/{attemptID}/files/{questionID} streams the file submitted
// for a file_upload question.
func (h *Handlers) AnswerFile(w http.ResponseWriter, r *http.Request) {
	if h.Blobs == nil {
		http.Error(w, "uploads disabled", http.StatusNotFound)
		return
	}
	at, answers, err := h.Assessments.GetAttempt(r.Context(), chi.URLParam(r, "attemptID"))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	if !h.ownsOrMay(r, at.UserID) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	questionID := chi.URLParam(r, "questionID")
	key := ""
	for _, a := range answers {
		if a.QuestionID == questionID {
			key = a.FileRef
		}
	}
	// Only files stored for this very answer are served.
	if !strings.HasPrefix(key, storage.AnswerPrefix(at.ID, questionID)) {
		key = ""
	}
	if key == "" {
		http.Error(w, "no file for question", http.StatusNotFound)
		return
	}
	rc, err := h.Blobs.Get(key)
	if err != nil {
		http.Error(w, "not found: "+err.Error(), http.StatusNotFound)
		return
	}
	defer rc.Close()
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", `attachment; filename="`+path.Base(key)+`"`)
	_, _ = io.Copy(w, rc)
}
