package assessment

import (
	"fmt"

	"github.com/mind-engage/coursework/internal/apperr"
)

type AttemptStatus string

const (
	AttemptInProgress AttemptStatus = "in_progress"
	AttemptSubmitted  AttemptStatus = "submitted"
	AttemptGraded     AttemptStatus = "graded"
	AttemptCompleted  AttemptStatus = "completed"
)

func ParseAttemptStatus(s string) (AttemptStatus, error) {
	switch st := AttemptStatus(s); st {
	case AttemptInProgress, AttemptSubmitted, AttemptGraded, AttemptCompleted:
		return st, nil
	}
	return "", fmt.Errorf("unknown attempt status %q", s)
}

// rank orders statuses; transitions only ever move forward.
func (s AttemptStatus) rank() int {
	switch s {
	case AttemptInProgress:
		return 0
	case AttemptSubmitted:
		return 1
	case AttemptGraded:
		return 2
	case AttemptCompleted:
		return 3
	}
	return -1
}

// CountsTowardLimit reports whether an attempt in this status uses up one
// of the assessment's allowed attempts.
func (s AttemptStatus) CountsTowardLimit() bool {
	return s == AttemptSubmitted || s == AttemptGraded || s == AttemptCompleted
}

// CanTransition reports whether from -> to is one of the allowed moves:
// in_progress -> submitted|graded, submitted -> graded, graded -> completed.
func (s AttemptStatus) CanTransition(to AttemptStatus) bool {
	switch s {
	case AttemptInProgress:
		return to == AttemptSubmitted || to == AttemptGraded
	case AttemptSubmitted:
		return to == AttemptGraded
	case AttemptGraded:
		return to == AttemptCompleted
	}
	return false
}

func (a *Attempt) transition(to AttemptStatus) error {
	if !a.Status.CanTransition(to) {
		rule := "forward_only"
		if a.Status.rank() < 0 || to.rank() < 0 {
			rule = "unknown_status"
		}
		return apperr.InvalidTransition("attempt", a.ID, rule, "cannot move attempt from %s to %s", a.Status, to)
	}
	a.Status = to
	return nil
}

// Complete closes a graded attempt.
func (a *Attempt) Complete() error {
	return a.transition(AttemptCompleted)
}
