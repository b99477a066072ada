package assessment

import (
	"context"
	"io"
)

// Repo is the persistence view available inside one transaction.
// GetAttempt locks the attempt row until the transaction ends.
type Repo interface {
	GetAssessment(ctx context.Context, id string) (Assessment, error)
	ListQuestions(ctx context.Context, assessmentID string) ([]Question, error)

	GetAttempt(ctx context.Context, id string) (Attempt, error)
	ListAttempts(ctx context.Context, userID, assessmentID string) ([]Attempt, error)
	CreateAttempt(ctx context.Context, at Attempt) error
	UpdateAttempt(ctx context.Context, at Attempt) error

	GetAnswer(ctx context.Context, id string) (Answer, error)
	ListAnswers(ctx context.Context, attemptID string) ([]Answer, error)
	SaveAnswer(ctx context.Context, ans Answer) error

	// FindEnrollment returns nil when the user has no enrollment in the
	// course. It locks the enrollment row until the transaction ends; every
	// path that counts a learner's attempts calls it first.
	FindEnrollment(ctx context.Context, userID, courseID string) (*EnrollmentRef, error)
}

// Store runs fn atomically; an error from fn rolls everything back.
type Store interface {
	InTx(ctx context.Context, fn func(Repo) error) error
}

// ProgressHook receives the "attempt passed" signal so course progress can
// be re-derived.
type ProgressHook interface {
	RecalculateFor(ctx context.Context, userID, courseID string) error
}

type AnswerInput struct {
	QuestionID string            `json:"question_id" validate:"required"`
	Text       string            `json:"answer_text,omitempty"`
	OptionIDs  []string          `json:"selected_option_ids,omitempty"`
	Matches    map[string]string `json:"matches,omitempty"`

	// File is stored through the blob store; the answer keeps only the key
	// the store returns. Callers cannot name a key themselves.
	File     io.Reader `json:"-"`
	FileName string    `json:"file_name,omitempty"`
}

type SubmitRequest struct {
	Answers []AnswerInput `json:"answers" validate:"required,dive"`
}

type GradeRequest struct {
	Score    *float64 `json:"score" validate:"required,gte=0"`
	GraderID string   `json:"grader_id" validate:"required"`
}
