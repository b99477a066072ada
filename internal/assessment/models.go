package assessment

import (
	"time"

	"github.com/mind-engage/coursework/internal/grading"
)

type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
	StatusArchived  Status = "archived"
)

type Assessment struct {
	ID           string  `json:"id"`
	CourseID     string  `json:"course_id"`
	Title        string  `json:"title"`
	PassingScore float64 `json:"passing_score"` // percentage threshold, 0..100
	MaxAttempts  int     `json:"max_attempts"`  // 0 = unlimited
	IsRequired   bool    `json:"is_required"`
	Status       Status  `json:"status"`
}

type Option struct {
	ID         string `json:"id"`
	QuestionID string `json:"question_id"`
	Text       string `json:"text"`
	IsCorrect  bool   `json:"is_correct"`
	MatchText  string `json:"match_text,omitempty"`
}

type Question struct {
	ID              string               `json:"id"`
	AssessmentID    string               `json:"assessment_id"`
	Type            grading.QuestionType `json:"type"`
	Prompt          string               `json:"prompt,omitempty"`
	Points          int                  `json:"points"`
	Position        int                  `json:"position"`
	AcceptedAnswers []string             `json:"accepted_answers,omitempty"` // short_answer
	Options         []Option             `json:"options,omitempty"`
}

// gradingView maps a question onto the engine's minimal view.
func (q Question) gradingView() grading.Q {
	opts := make([]grading.Option, 0, len(q.Options))
	for _, o := range q.Options {
		opts = append(opts, grading.Option{ID: o.ID, Text: o.Text, MatchText: o.MatchText, Correct: o.IsCorrect})
	}
	return grading.Q{Type: q.Type, Points: float64(q.Points), Options: opts, Accepted: q.AcceptedAnswers}
}

type Attempt struct {
	ID            string        `json:"id"`
	AssessmentID  string        `json:"assessment_id"`
	UserID        string        `json:"user_id"`
	AttemptNumber int           `json:"attempt_number"`
	Status        AttemptStatus `json:"status"`
	Score         float64       `json:"score"`
	MaxScore      float64       `json:"max_score"`
	Percentage    *float64      `json:"percentage"`
	Passed        *bool         `json:"passed"`
	StartedAt     time.Time     `json:"started_at"`
	SubmittedAt   *time.Time    `json:"submitted_at,omitempty"`
	GradedAt      *time.Time    `json:"graded_at,omitempty"`
	GradedBy      string        `json:"graded_by,omitempty"`
}

type Answer struct {
	ID                string            `json:"id"`
	AttemptID         string            `json:"attempt_id"`
	QuestionID        string            `json:"question_id"`
	AnswerText        string            `json:"answer_text,omitempty"`
	SelectedOptionIDs []string          `json:"selected_option_ids,omitempty"`
	Matches           map[string]string `json:"matches,omitempty"`
	FileRef           string            `json:"file_ref,omitempty"`
	IsCorrect         *bool             `json:"is_correct"`
	Score             *float64          `json:"score"`
	GradedBy          string            `json:"graded_by,omitempty"`
	GradedAt          *time.Time        `json:"graded_at,omitempty"`
}

func (a Answer) response() grading.Response {
	return grading.Response{Text: a.AnswerText, OptionIDs: a.SelectedOptionIDs, Matches: a.Matches, FileRef: a.FileRef}
}

// EnrollmentRef is the slice of an enrollment the eligibility rules look at.
type EnrollmentRef struct {
	ID     string
	Status string // active|completed|dropped
}
