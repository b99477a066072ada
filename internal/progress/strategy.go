package progress

import (
	"fmt"
	"math"
)

// Snapshot is everything a strategy needs to score one enrollment.
type Snapshot struct {
	TotalLessons     int
	CompletedLessons int
	// RequiredAssessments counts required, non-draft assessments of the course.
	RequiredAssessments int
	// PassedRequired counts those with at least one passed attempt.
	PassedRequired int
}

// Strategy turns a snapshot into a completion percentage and verdict.
type Strategy interface {
	Name() string
	// NeedsAssessments reports whether the snapshot must include the
	// required-assessment counts.
	NeedsAssessments() bool
	Percentage(s Snapshot) float64
	IsComplete(s Snapshot) bool
}

// LessonsOnly scores by completed lessons alone.
type LessonsOnly struct{}

func (LessonsOnly) Name() string           { return "lessons" }
func (LessonsOnly) NeedsAssessments() bool { return false }

func (LessonsOnly) Percentage(s Snapshot) float64 {
	if s.TotalLessons <= 0 {
		return 0
	}
	return clamp(round1(float64(s.CompletedLessons) / float64(s.TotalLessons) * 100))
}

func (l LessonsOnly) IsComplete(s Snapshot) bool {
	return s.TotalLessons > 0 && l.Percentage(s) == 100
}

// Weighted splits the percentage between lessons and required
// assessments. A course without required assessments gets the full
// assessment weight.
type Weighted struct {
	LessonWeight     float64
	AssessmentWeight float64
}

// DefaultWeighted is the 70/30 split.
func DefaultWeighted() Weighted { return Weighted{LessonWeight: 70, AssessmentWeight: 30} }

// NewWeighted validates the weights: non-negative and summing to 100.
func NewWeighted(lessonWeight, assessmentWeight float64) (Weighted, error) {
	if lessonWeight < 0 || assessmentWeight < 0 {
		return Weighted{}, fmt.Errorf("progress weights must be non-negative (got %v/%v)", lessonWeight, assessmentWeight)
	}
	if math.Abs(lessonWeight+assessmentWeight-100) > 1e-9 {
		return Weighted{}, fmt.Errorf("progress weights must sum to 100 (got %v)", lessonWeight+assessmentWeight)
	}
	return Weighted{LessonWeight: lessonWeight, AssessmentWeight: assessmentWeight}, nil
}

func (Weighted) Name() string           { return "weighted" }
func (Weighted) NeedsAssessments() bool { return true }

func (w Weighted) Percentage(s Snapshot) float64 {
	lessons := 0.0
	if s.TotalLessons > 0 {
		lessons = w.LessonWeight * float64(s.CompletedLessons) / float64(s.TotalLessons)
	}
	assessments := w.AssessmentWeight
	if s.RequiredAssessments > 0 {
		assessments = w.AssessmentWeight * float64(s.PassedRequired) / float64(s.RequiredAssessments)
	}
	return clamp(round1(lessons + assessments))
}

// IsComplete needs every lesson done and every required assessment passed.
func (Weighted) IsComplete(s Snapshot) bool {
	return s.TotalLessons > 0 &&
		s.CompletedLessons >= s.TotalLessons &&
		s.PassedRequired >= s.RequiredAssessments
}

// ByName resolves a configured strategy name.
func ByName(name string, lessonWeight, assessmentWeight float64) (Strategy, error) {
	switch name {
	case "", "lessons", "lessons_only":
		return LessonsOnly{}, nil
	case "weighted", "lessons_assessments":
		return NewWeighted(lessonWeight, assessmentWeight)
	}
	return nil, fmt.Errorf("unknown progress strategy %q", name)
}

// round1 rounds half-up to one decimal.
func round1(v float64) float64 {
	return math.Floor(v*10+0.5+1e-9) / 10
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}
