package enrollment

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/mind-engage/coursework/internal/apperr"
	"github.com/mind-engage/coursework/internal/events"
	"github.com/mind-engage/coursework/internal/progress"
)

var validate = validator.New()

type Service struct {
	store         Store
	calc          *progress.Calculator
	events        events.Publisher
	log           *slog.Logger
	now           func() time.Time
	enforceExpiry bool
}

type ServiceOption func(*Service)

func WithPublisher(p events.Publisher) ServiceOption { return func(s *Service) { s.events = p } }

func WithLogger(l *slog.Logger) ServiceOption { return func(s *Service) { s.log = l } }

func WithClock(now func() time.Time) ServiceOption { return func(s *Service) { s.now = now } }

// WithInvitationExpiry rejects invitations past their expires_at.
func WithInvitationExpiry(enforce bool) ServiceOption {
	return func(s *Service) { s.enforceExpiry = enforce }
}

func NewService(store Store, calc *progress.Calculator, opts ...ServiceOption) *Service {
	s := &Service{
		store: store,
		calc:  calc,
		log:   slog.Default(),
		now:   time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	if s.calc == nil {
		s.calc = progress.NewCalculator(nil)
	}
	return s
}

// Enroll creates an active enrollment. A user has at most one enrollment
// per course; a dropped one must be reactivated with Reenroll.
func (s *Service) Enroll(ctx context.Context, userID, courseID string) (Enrollment, error) {
	if userID == "" || courseID == "" {
		return Enrollment{}, apperr.Validation("enrollment", "", "ids_required", "user id and course id are required")
	}
	var out Enrollment
	err := s.store.InTx(ctx, func(r Repo) error {
		var err error
		out, err = s.enroll(ctx, r, userID, courseID, "")
		return err
	})
	if err != nil {
		return Enrollment{}, err
	}
	s.log.InfoContext(ctx, "enrolled", "enrollment_id", out.ID, "user_id", userID, "course_id", courseID)
	return out, nil
}

func (s *Service) enroll(ctx context.Context, r Repo, userID, courseID, invitationID string) (Enrollment, error) {
	existing, err := r.FindEnrollment(ctx, userID, courseID)
	if err != nil {
		return Enrollment{}, err
	}
	if existing != nil {
		rule := "already_enrolled"
		switch existing.Status {
		case StatusDropped:
			rule = "reenroll_required"
		case StatusCompleted:
			rule = "already_completed"
		}
		return Enrollment{}, apperr.InvalidTransition("enrollment", existing.ID, rule,
			"user %s already has a %s enrollment in course %s", userID, existing.Status, courseID)
	}
	e := Enrollment{
		ID:           uuid.NewString(),
		UserID:       userID,
		CourseID:     courseID,
		Status:       StatusActive,
		EnrolledAt:   s.now(),
		InvitationID: invitationID,
	}
	if err := r.CreateEnrollment(ctx, e); err != nil {
		return Enrollment{}, err
	}
	return e, nil
}

// AcceptInvitation enrolls userID through an invitation token and marks
// the invitation accepted.
func (s *Service) AcceptInvitation(ctx context.Context, token, userID string) (Enrollment, error) {
	if token == "" || userID == "" {
		return Enrollment{}, apperr.Validation("invitation", "", "ids_required", "token and user id are required")
	}
	var out Enrollment
	err := s.store.InTx(ctx, func(r Repo) error {
		inv, err := r.GetInvitationByToken(ctx, token)
		if err != nil {
			return err
		}
		if inv.AcceptedAt != nil {
			return apperr.InvalidTransition("invitation", inv.ID, "already_accepted", "invitation was accepted by %s", inv.AcceptedBy)
		}
		now := s.now()
		if s.enforceExpiry && inv.Expired(now) {
			return apperr.Ineligible("invitation", inv.ID, "invitation_expired", "invitation expired at "+inv.ExpiresAt.Format(time.RFC3339))
		}
		if out, err = s.enroll(ctx, r, userID, inv.CourseID, inv.ID); err != nil {
			return err
		}
		inv.AcceptedAt = &now
		inv.AcceptedBy = userID
		return r.UpdateInvitation(ctx, inv)
	})
	if err != nil {
		return Enrollment{}, err
	}
	s.log.InfoContext(ctx, "invitation accepted", "enrollment_id", out.ID, "user_id", userID, "course_id", out.CourseID)
	return out, nil
}

// Drop unenrolls an active learner.
func (s *Service) Drop(ctx context.Context, enrollmentID string) (Enrollment, error) {
	out, err := s.mutate(ctx, enrollmentID, func(e *Enrollment) error { return e.Drop() })
	if err != nil {
		return Enrollment{}, err
	}
	s.log.InfoContext(ctx, "enrollment dropped", "enrollment_id", out.ID, "user_id", out.UserID)
	return out, nil
}

// Reenroll reactivates a dropped enrollment and announces it with the
// preserve flag recorded.
func (s *Service) Reenroll(ctx context.Context, enrollmentID string, preserveProgress bool) (Enrollment, error) {
	out, err := s.mutate(ctx, enrollmentID, func(e *Enrollment) error { return e.Reenroll(preserveProgress) })
	if err != nil {
		return Enrollment{}, err
	}
	s.log.InfoContext(ctx, "reenrolled", "enrollment_id", out.ID, "user_id", out.UserID, "preserve_progress", preserveProgress)
	s.publish(ctx, events.TypeUserReenrolled, out.ID, map[string]any{
		"enrollment_id":     out.ID,
		"user_id":           out.UserID,
		"course_id":         out.CourseID,
		"preserve_progress": preserveProgress,
	})
	return out, nil
}

func (s *Service) mutate(ctx context.Context, enrollmentID string, fn func(*Enrollment) error) (Enrollment, error) {
	var out Enrollment
	err := s.store.InTx(ctx, func(r Repo) error {
		e, err := r.GetEnrollment(ctx, enrollmentID)
		if err != nil {
			return err
		}
		if err := fn(&e); err != nil {
			return err
		}
		out = e
		return r.UpdateEnrollment(ctx, e)
	})
	return out, err
}

// RecordLessonProgress applies one progress report to a lesson of the
// enrollment's course. When the lesson becomes complete the course
// progress is recalculated in the same transaction.
func (s *Service) RecordLessonProgress(ctx context.Context, enrollmentID, lessonID string, u LessonUpdate) (LessonProgress, Enrollment, error) {
	if err := validate.Struct(u); err != nil {
		return LessonProgress{}, Enrollment{}, apperr.FromValidation("lesson_progress", lessonID, err)
	}
	var (
		lp        LessonProgress
		out       Enrollment
		completed bool
	)
	err := s.store.InTx(ctx, func(r Repo) error {
		e, err := r.GetEnrollment(ctx, enrollmentID)
		if err != nil {
			return err
		}
		if e.Status != StatusActive {
			return apperr.InvalidTransition("enrollment", e.ID, "not_active", "progress cannot be recorded on a %s enrollment", e.Status)
		}
		lesson, err := r.GetLesson(ctx, lessonID)
		if err != nil {
			return err
		}
		if lesson.CourseID != e.CourseID {
			return apperr.Validation("lesson_progress", lessonID, "lesson_not_in_course",
				fmt.Sprintf("lesson %s is not part of course %s", lessonID, e.CourseID),
				apperr.FieldError{Field: "lesson_id", Error: "not in course"})
		}

		cur, err := r.GetLessonProgress(ctx, e.ID, lesson.ID)
		if err != nil {
			return err
		}
		if cur == nil {
			cur = &LessonProgress{EnrollmentID: e.ID, LessonID: lesson.ID, TotalPages: lesson.TotalPages}
			if lesson.ContentType.IsMedia() {
				cur.MediaDuration = float64(lesson.DurationSeconds)
			}
		}
		if u.Page != nil {
			total := 0
			if u.TotalPages != nil {
				total = *u.TotalPages
			}
			cur.ApplyPage(*u.Page, total)
		}
		if u.MediaPosition != nil {
			dur := 0.0
			if u.MediaDuration != nil {
				dur = *u.MediaDuration
			}
			cur.ApplyMedia(*u.MediaPosition, dur)
		}
		if err := cur.AddTime(u.TimeSpentSeconds); err != nil {
			return err
		}
		now := s.now()
		lessonDone := cur.settle(now, u.MarkCompleted)
		if err := r.SaveLessonProgress(ctx, *cur); err != nil {
			return err
		}

		if e.StartedAt == nil {
			t := now
			e.StartedAt = &t
		}
		id := lesson.ID
		e.LastLessonID = &id
		if lessonDone {
			if completed, err = s.recalculate(ctx, r, &e, now); err != nil {
				return err
			}
		}
		lp, out = *cur, e
		return r.UpdateEnrollment(ctx, e)
	})
	if err != nil {
		return LessonProgress{}, Enrollment{}, err
	}
	if completed {
		s.announceCompleted(ctx, out)
	}
	return lp, out, nil
}

// RecalculateCourseProgress re-derives the enrollment's percentage from
// lesson and attempt history and completes it when the strategy says so.
func (s *Service) RecalculateCourseProgress(ctx context.Context, enrollmentID string) (Enrollment, error) {
	var (
		out       Enrollment
		completed bool
	)
	err := s.store.InTx(ctx, func(r Repo) error {
		e, err := r.GetEnrollment(ctx, enrollmentID)
		if err != nil {
			return err
		}
		if completed, err = s.recalculate(ctx, r, &e, s.now()); err != nil {
			return err
		}
		out = e
		return r.UpdateEnrollment(ctx, e)
	})
	if err != nil {
		return Enrollment{}, err
	}
	if completed {
		s.announceCompleted(ctx, out)
	}
	return out, nil
}

// RecalculateFor recalculates the user's enrollment in courseID. A user
// without an enrollment has no progress to update.
func (s *Service) RecalculateFor(ctx context.Context, userID, courseID string) error {
	var (
		out       Enrollment
		completed bool
	)
	err := s.store.InTx(ctx, func(r Repo) error {
		e, err := r.FindEnrollment(ctx, userID, courseID)
		if err != nil || e == nil {
			return err
		}
		if completed, err = s.recalculate(ctx, r, e, s.now()); err != nil {
			return err
		}
		out = *e
		return r.UpdateEnrollment(ctx, *e)
	})
	if err != nil {
		return err
	}
	if completed {
		s.announceCompleted(ctx, out)
	}
	return nil
}

// GetEnrollment returns one enrollment by id.
func (s *Service) GetEnrollment(ctx context.Context, enrollmentID string) (Enrollment, error) {
	var out Enrollment
	err := s.store.InTx(ctx, func(r Repo) error {
		var err error
		out, err = r.GetEnrollment(ctx, enrollmentID)
		return err
	})
	return out, err
}

// recalculate stores the derived percentage and reports whether the
// enrollment just became completed. Only active enrollments complete;
// completed ones stay completed whatever the percentage does.
func (s *Service) recalculate(ctx context.Context, r Repo, e *Enrollment, now time.Time) (bool, error) {
	res, err := s.calc.Evaluate(ctx, r, progress.Subject{EnrollmentID: e.ID, UserID: e.UserID, CourseID: e.CourseID})
	if err != nil {
		return false, fmt.Errorf("evaluate progress of %s: %w", e.ID, err)
	}
	e.ProgressPercentage = res.Percentage
	if !res.Complete || e.Status != StatusActive {
		return false, nil
	}
	if err := e.Complete(now); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) announceCompleted(ctx context.Context, e Enrollment) {
	s.log.InfoContext(ctx, "enrollment completed", "enrollment_id", e.ID, "user_id", e.UserID, "course_id", e.CourseID)
	s.publish(ctx, events.TypeEnrollmentCompleted, e.ID, map[string]any{
		"enrollment_id":       e.ID,
		"user_id":             e.UserID,
		"course_id":           e.CourseID,
		"progress_percentage": e.ProgressPercentage,
		"completed_at":        e.CompletedAt,
	})
}

func (s *Service) publish(ctx context.Context, typ, key string, data any) {
	if s.events == nil {
		return
	}
	ev, err := events.New(typ, key, data)
	if err == nil {
		err = s.events.Publish(ctx, ev)
	}
	if err != nil {
		s.log.ErrorContext(ctx, "publish event", "type", typ, "key", key, "err", err)
	}
}
