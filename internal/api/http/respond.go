package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/mind-engage/coursework/internal/apperr"
)

type errorBody struct {
	Error  string              `json:"error"`
	Kind   apperr.Kind         `json:"kind,omitempty"`
	Entity string              `json:"entity,omitempty"`
	ID     string              `json:"id,omitempty"`
	Rule   string              `json:"rule,omitempty"`
	Fields []apperr.FieldError `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps a domain error kind to its HTTP status.
func statusFor(k apperr.Kind) int {
	switch k {
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindValidation:
		return http.StatusUnprocessableEntity
	case apperr.KindInvalidTransition:
		return http.StatusConflict
	case apperr.KindIneligible:
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

// writeError reports domain rejections with their rule; anything else is
// logged and hidden behind a 500.
func writeError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		log.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
		return
	}
	msg := ae.Msg
	if msg == "" {
		msg = ae.Error()
	}
	writeJSON(w, statusFor(ae.Kind), errorBody{
		Error:  msg,
		Kind:   ae.Kind,
		Entity: ae.Entity,
		ID:     ae.ID,
		Rule:   ae.Rule,
		Fields: ae.Fields,
	})
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.Validation("request", "", "bad_json", "bad json: "+err.Error())
	}
	return nil
}
