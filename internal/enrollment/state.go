package enrollment

import (
	"fmt"
	"time"

	"github.com/mind-engage/coursework/internal/apperr"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusDropped   Status = "dropped"
)

func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusActive, StatusCompleted, StatusDropped:
		return st, nil
	}
	return "", fmt.Errorf("unknown enrollment status %q", s)
}

// CanTransition lists the allowed moves: active -> completed,
// active -> dropped, dropped -> active.
func (s Status) CanTransition(to Status) bool {
	switch s {
	case StatusActive:
		return to == StatusCompleted || to == StatusDropped
	case StatusDropped:
		return to == StatusActive
	}
	return false
}

func (e *Enrollment) invalid(to Status, rule string) error {
	return apperr.InvalidTransition("enrollment", e.ID, rule, "cannot move enrollment from %s to %s", e.Status, to)
}

// Complete marks the enrollment completed. completed_at is only ever set
// once.
func (e *Enrollment) Complete(now time.Time) error {
	if !e.Status.CanTransition(StatusCompleted) {
		return e.invalid(StatusCompleted, "complete_requires_active")
	}
	e.Status = StatusCompleted
	if e.CompletedAt == nil {
		t := now
		e.CompletedAt = &t
	}
	return nil
}

// Drop unenrolls an active learner. Completed enrollments cannot be dropped.
func (e *Enrollment) Drop() error {
	if !e.Status.CanTransition(StatusDropped) {
		rule := "drop_requires_active"
		if e.Status == StatusCompleted {
			rule = "completed_cannot_drop"
		}
		return e.invalid(StatusDropped, rule)
	}
	e.Status = StatusDropped
	return nil
}

// Reenroll reactivates a dropped enrollment. Unless preserveProgress is
// set, progress, started_at and the last lesson pointer return to their
// initial values.
func (e *Enrollment) Reenroll(preserveProgress bool) error {
	if !e.Status.CanTransition(StatusActive) {
		return e.invalid(StatusActive, "reenroll_requires_dropped")
	}
	e.Status = StatusActive
	if !preserveProgress {
		e.ProgressPercentage = 0
		e.StartedAt = nil
		e.LastLessonID = nil
	}
	return nil
}
