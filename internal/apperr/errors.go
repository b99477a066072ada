// Package apperr holds the domain error kinds reported by the course core.
// Every rejection carries the entity, its id and the rule that was violated
// so the caller can render a message without parsing strings.
package apperr

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

type Kind string

const (
	KindIneligible        Kind = "ineligible_attempt"
	KindInvalidTransition Kind = "invalid_transition"
	KindValidation        Kind = "validation_failure"
	KindNotFound          Kind = "not_found"
)

// Sentinels for errors.Is; an *Error matches the sentinel of its kind.
var (
	ErrIneligible        = &Error{Kind: KindIneligible}
	ErrInvalidTransition = &Error{Kind: KindInvalidTransition}
	ErrValidation        = &Error{Kind: KindValidation}
	ErrNotFound          = &Error{Kind: KindNotFound}
)

// FieldError is a validation problem on a single input field.
type FieldError struct {
	Field string `json:"field"`
	Error string `json:"error"`
}

type Error struct {
	Kind   Kind
	Entity string // attempt, enrollment, answer, ...
	ID     string
	Rule   string // short machine name of the violated rule
	Msg    string
	Fields []FieldError
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Entity != "" {
		b.WriteString(": ")
		b.WriteString(e.Entity)
		if e.ID != "" {
			b.WriteString(" ")
			b.WriteString(e.ID)
		}
	}
	if e.Rule != "" {
		b.WriteString(" [")
		b.WriteString(e.Rule)
		b.WriteString("]")
	}
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports kind equality so errors.Is(err, ErrInvalidTransition) works
// for any invalid-transition error regardless of entity.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Entity == "" && t.Rule == ""
}

func Ineligible(entity, id, rule, msg string) error {
	return &Error{Kind: KindIneligible, Entity: entity, ID: id, Rule: rule, Msg: msg}
}

func InvalidTransition(entity, id, rule string, format string, args ...any) error {
	return &Error{Kind: KindInvalidTransition, Entity: entity, ID: id, Rule: rule, Msg: fmt.Sprintf(format, args...)}
}

func Validation(entity, id, rule, msg string, fields ...FieldError) error {
	return &Error{Kind: KindValidation, Entity: entity, ID: id, Rule: rule, Msg: msg, Fields: fields}
}

func NotFound(entity, id string) error {
	return &Error{Kind: KindNotFound, Entity: entity, ID: id, Msg: entity + " not found"}
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// FromValidation converts a validator.ValidationErrors into a validation
// failure. Other errors are wrapped unchanged.
func FromValidation(entity, id string, err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &Error{Kind: KindValidation, Entity: entity, ID: id, Rule: "malformed_input", Err: err}
	}
	fields := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, FieldError{
			Field: fe.Namespace(),
			Error: fieldMessage(fe),
		})
	}
	return &Error{Kind: KindValidation, Entity: entity, ID: id, Rule: "malformed_input", Msg: "invalid input", Fields: fields}
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gte", "min":
		return "must be at least " + fe.Param()
	case "lte", "max":
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of " + fe.Param()
	default:
		return "failed " + fe.Tag()
	}
}
