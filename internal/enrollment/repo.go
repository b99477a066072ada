package enrollment

import (
	"context"

	"github.com/mind-engage/coursework/internal/progress"
)

// Repo is the persistence view available inside one transaction.
// GetEnrollment and FindEnrollment lock the enrollment row until the
// transaction ends. The embedded progress.Source reads through the same
// transaction.
type Repo interface {
	progress.Source

	GetEnrollment(ctx context.Context, id string) (Enrollment, error)
	// FindEnrollment returns nil when the user has no enrollment in the course.
	FindEnrollment(ctx context.Context, userID, courseID string) (*Enrollment, error)
	CreateEnrollment(ctx context.Context, e Enrollment) error
	UpdateEnrollment(ctx context.Context, e Enrollment) error

	GetLesson(ctx context.Context, id string) (Lesson, error)
	// GetLessonProgress returns nil when the lesson has not been opened yet.
	GetLessonProgress(ctx context.Context, enrollmentID, lessonID string) (*LessonProgress, error)
	SaveLessonProgress(ctx context.Context, p LessonProgress) error

	GetInvitationByToken(ctx context.Context, token string) (Invitation, error)
	UpdateInvitation(ctx context.Context, inv Invitation) error
}

// Store runs fn atomically; an error from fn rolls everything back.
type Store interface {
	InTx(ctx context.Context, fn func(Repo) error) error
}
