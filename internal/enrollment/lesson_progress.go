package enrollment

import (
	"time"

	"github.com/mind-engage/coursework/internal/apperr"
)

// mediaCompleteRatio is the share of a video/audio that counts as watched.
const mediaCompleteRatio = 0.9

type LessonProgress struct {
	EnrollmentID       string     `json:"enrollment_id"`
	LessonID           string     `json:"lesson_id"`
	CurrentPage        int        `json:"current_page"`
	TotalPages         int        `json:"total_pages"`
	HighestPageReached int        `json:"highest_page_reached"`
	IsCompleted        bool       `json:"is_completed"`
	MediaPosition      float64    `json:"media_position"`
	MediaDuration      float64    `json:"media_duration"`
	TimeSpentSeconds   int        `json:"time_spent_seconds"`
	CompletedAt        *time.Time `json:"completed_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// LessonUpdate is one progress report from the player or reader.
type LessonUpdate struct {
	Page             *int     `json:"current_page" validate:"omitempty,gte=1"`
	TotalPages       *int     `json:"total_pages" validate:"omitempty,gte=1"`
	MediaPosition    *float64 `json:"media_position" validate:"omitempty,gte=0"`
	MediaDuration    *float64 `json:"media_duration" validate:"omitempty,gt=0"`
	TimeSpentSeconds int      `json:"time_spent_seconds" validate:"gte=0"`
	MarkCompleted    bool     `json:"mark_completed"`
}

// ApplyPage moves to page; the highest page reached never goes down.
func (p *LessonProgress) ApplyPage(page, total int) {
	if total > 0 {
		p.TotalPages = total
	}
	if page < 1 {
		page = 1
	}
	if p.TotalPages > 0 && page > p.TotalPages {
		page = p.TotalPages
	}
	p.CurrentPage = page
	if page > p.HighestPageReached {
		p.HighestPageReached = page
	}
}

// ApplyMedia records a playback position.
func (p *LessonProgress) ApplyMedia(position, duration float64) {
	if duration > 0 {
		p.MediaDuration = duration
	}
	if position < 0 {
		position = 0
	}
	p.MediaPosition = position
}

// AddTime accumulates time spent; updates add, they never replace.
func (p *LessonProgress) AddTime(seconds int) error {
	if seconds < 0 {
		return apperr.Validation("lesson_progress", p.LessonID, "negative_time", "time spent cannot be negative")
	}
	p.TimeSpentSeconds += seconds
	return nil
}

// reachedEnd reports the completion condition: last page reached, or at
// least 90% of the media played.
func (p *LessonProgress) reachedEnd() bool {
	if p.TotalPages > 0 && p.CurrentPage >= p.TotalPages {
		return true
	}
	if p.MediaDuration > 0 && p.MediaPosition >= mediaCompleteRatio*p.MediaDuration {
		return true
	}
	return false
}

// settle marks the lesson completed when the end has been reached and
// reports whether this call completed it. Completion is kept once reached.
func (p *LessonProgress) settle(now time.Time, force bool) bool {
	p.UpdatedAt = now
	if p.IsCompleted {
		return false
	}
	if !force && !p.reachedEnd() {
		return false
	}
	p.IsCompleted = true
	t := now
	p.CompletedAt = &t
	return true
}
