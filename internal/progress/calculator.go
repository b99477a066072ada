package progress

import (
	"context"
	"fmt"
)

// Source answers the queries progress is derived from. Implementations run
// inside the caller's transaction.
type Source interface {
	CountLessons(ctx context.Context, courseID string) (int, error)
	CountCompletedLessons(ctx context.Context, enrollmentID string) (int, error)
	// RequiredAssessmentIDs lists required assessments of the course that
	// are not drafts.
	RequiredAssessmentIDs(ctx context.Context, courseID string) ([]string, error)
	HasPassedAttempt(ctx context.Context, userID, assessmentID string) (bool, error)
}

// Subject identifies the enrollment being scored.
type Subject struct {
	EnrollmentID string
	UserID       string
	CourseID     string
}

type Result struct {
	Snapshot   Snapshot
	Percentage float64
	Complete   bool
}

type Calculator struct {
	strategy Strategy
}

// NewCalculator wraps a strategy; nil selects LessonsOnly.
func NewCalculator(s Strategy) *Calculator {
	if s == nil {
		s = LessonsOnly{}
	}
	return &Calculator{strategy: s}
}

// Evaluate derives progress from history; it keeps no state, so calling it
// again without new completions returns the same result.
func (c *Calculator) Evaluate(ctx context.Context, src Source, sub Subject) (Result, error) {
	snap, err := c.snapshot(ctx, src, sub)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Snapshot:   snap,
		Percentage: c.strategy.Percentage(snap),
		Complete:   c.strategy.IsComplete(snap),
	}, nil
}

func (c *Calculator) snapshot(ctx context.Context, src Source, sub Subject) (Snapshot, error) {
	var snap Snapshot
	var err error
	if snap.TotalLessons, err = src.CountLessons(ctx, sub.CourseID); err != nil {
		return Snapshot{}, fmt.Errorf("count lessons: %w", err)
	}
	if snap.CompletedLessons, err = src.CountCompletedLessons(ctx, sub.EnrollmentID); err != nil {
		return Snapshot{}, fmt.Errorf("count completed lessons: %w", err)
	}
	if !c.strategy.NeedsAssessments() {
		return snap, nil
	}
	ids, err := src.RequiredAssessmentIDs(ctx, sub.CourseID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("required assessments: %w", err)
	}
	snap.RequiredAssessments = len(ids)
	for _, id := range ids {
		ok, err := src.HasPassedAttempt(ctx, sub.UserID, id)
		if err != nil {
			return Snapshot{}, fmt.Errorf("passed attempt for %s: %w", id, err)
		}
		if ok {
			snap.PassedRequired++
		}
	}
	return snap, nil
}
