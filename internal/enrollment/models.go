package enrollment

import "time"

type Enrollment struct {
	ID                 string     `json:"id"`
	UserID             string     `json:"user_id"`
	CourseID           string     `json:"course_id"`
	Status             Status     `json:"status"`
	ProgressPercentage float64    `json:"progress_percentage"`
	EnrolledAt         time.Time  `json:"enrolled_at"`
	StartedAt          *time.Time `json:"started_at"`
	CompletedAt        *time.Time `json:"completed_at"`
	LastLessonID       *string    `json:"last_lesson_id"`
	InvitationID       string     `json:"invitation_id,omitempty"`
}

type ContentType string

const (
	ContentDocument ContentType = "document"
	ContentVideo    ContentType = "video"
	ContentAudio    ContentType = "audio"
)

func (c ContentType) IsMedia() bool { return c == ContentVideo || c == ContentAudio }

type Lesson struct {
	ID              string      `json:"id"`
	CourseID        string      `json:"course_id"`
	Title           string      `json:"title"`
	Position        int         `json:"position"`
	ContentType     ContentType `json:"content_type"`
	TotalPages      int         `json:"total_pages"`
	DurationSeconds int         `json:"duration_seconds"`
}

type Invitation struct {
	ID         string     `json:"id"`
	CourseID   string     `json:"course_id"`
	Email      string     `json:"email"`
	Token      string     `json:"token"`
	ExpiresAt  *time.Time `json:"expires_at"`
	AcceptedAt *time.Time `json:"accepted_at"`
	AcceptedBy string     `json:"accepted_by,omitempty"`
}

func (i Invitation) Expired(now time.Time) bool {
	return i.ExpiresAt != nil && now.After(*i.ExpiresAt)
}
