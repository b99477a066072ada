package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mind-engage/coursework/internal/apperr"
	"github.com/mind-engage/coursework/internal/db"
	"github.com/mind-engage/coursework/internal/enrollment"
)

type enrollmentRepo struct{ conn }

const enrollmentCols = `id,user_id,course_id,status,progress_percentage,enrolled_at,started_at,completed_at,last_lesson_id,invitation_id`

func scanEnrollment(sc interface{ Scan(...any) error }) (enrollment.Enrollment, error) {
	var (
		e                  enrollment.Enrollment
		status             string
		enrolled           int64
		started, completed sql.NullInt64
		last               sql.NullString
	)
	if err := sc.Scan(&e.ID, &e.UserID, &e.CourseID, &status, &e.ProgressPercentage, &enrolled,
		&started, &completed, &last, &e.InvitationID); err != nil {
		return enrollment.Enrollment{}, err
	}
	st, err := enrollment.ParseStatus(status)
	if err != nil {
		return enrollment.Enrollment{}, fmt.Errorf("enrollment %s: %w", e.ID, err)
	}
	e.Status = st
	e.EnrolledAt = time.Unix(enrolled, 0).UTC()
	e.StartedAt = timeOrNil(started)
	e.CompletedAt = timeOrNil(completed)
	if last.Valid {
		id := last.String
		e.LastLessonID = &id
	}
	return e, nil
}

func stringOrNil(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

// GetEnrollment locks the enrollment row on Postgres.
func (r enrollmentRepo) GetEnrollment(ctx context.Context, id string) (enrollment.Enrollment, error) {
	e, err := scanEnrollment(r.tx.QueryRowContext(ctx, `SELECT `+enrollmentCols+` FROM enrollments WHERE id=$1`+r.forUpdate, id))
	if err != nil {
		return enrollment.Enrollment{}, notFound(err, "enrollment", id)
	}
	return e, nil
}

func (r enrollmentRepo) FindEnrollment(ctx context.Context, userID, courseID string) (*enrollment.Enrollment, error) {
	e, err := scanEnrollment(r.tx.QueryRowContext(ctx, `SELECT `+enrollmentCols+` FROM enrollments
		WHERE user_id=$1 AND course_id=$2`+r.forUpdate, userID, courseID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r enrollmentRepo) CreateEnrollment(ctx context.Context, e enrollment.Enrollment) error {
	_, err := r.tx.ExecContext(ctx, `INSERT INTO enrollments (`+enrollmentCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		e.ID, e.UserID, e.CourseID, string(e.Status), e.ProgressPercentage, e.EnrolledAt.Unix(),
		unixOrNil(e.StartedAt), unixOrNil(e.CompletedAt), stringOrNil(e.LastLessonID), e.InvitationID)
	if db.IsUniqueViolation(err) {
		return apperr.InvalidTransition("enrollment", e.ID, "already_enrolled",
			"user %s is already enrolled in course %s", e.UserID, e.CourseID)
	}
	if err != nil {
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

func (r enrollmentRepo) UpdateEnrollment(ctx context.Context, e enrollment.Enrollment) error {
	res, err := r.tx.ExecContext(ctx, `UPDATE enrollments SET status=$1, progress_percentage=$2, started_at=$3,
		completed_at=$4, last_lesson_id=$5 WHERE id=$6`,
		string(e.Status), e.ProgressPercentage, unixOrNil(e.StartedAt), unixOrNil(e.CompletedAt),
		stringOrNil(e.LastLessonID), e.ID)
	if err != nil {
		return fmt.Errorf("update enrollment %s: %w", e.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("enrollment", e.ID)
	}
	return nil
}

func (r enrollmentRepo) GetLesson(ctx context.Context, id string) (enrollment.Lesson, error) {
	var l enrollment.Lesson
	var ct string
	err := r.tx.QueryRowContext(ctx, `SELECT id,course_id,title,position,content_type,total_pages,duration_seconds
		FROM lessons WHERE id=$1`, id).
		Scan(&l.ID, &l.CourseID, &l.Title, &l.Position, &ct, &l.TotalPages, &l.DurationSeconds)
	if err != nil {
		return enrollment.Lesson{}, notFound(err, "lesson", id)
	}
	l.ContentType = enrollment.ContentType(ct)
	return l, nil
}

func (r enrollmentRepo) GetLessonProgress(ctx context.Context, enrollmentID, lessonID string) (*enrollment.LessonProgress, error) {
	var (
		p         enrollment.LessonProgress
		completed sql.NullInt64
		updated   int64
	)
	err := r.tx.QueryRowContext(ctx, `SELECT enrollment_id,lesson_id,current_page,total_pages,highest_page_reached,
		is_completed,media_position,media_duration,time_spent_seconds,completed_at,updated_at
		FROM lesson_progress WHERE enrollment_id=$1 AND lesson_id=$2`, enrollmentID, lessonID).
		Scan(&p.EnrollmentID, &p.LessonID, &p.CurrentPage, &p.TotalPages, &p.HighestPageReached,
			&p.IsCompleted, &p.MediaPosition, &p.MediaDuration, &p.TimeSpentSeconds, &completed, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.CompletedAt = timeOrNil(completed)
	p.UpdatedAt = time.Unix(updated, 0).UTC()
	return &p, nil
}

func (r enrollmentRepo) SaveLessonProgress(ctx context.Context, p enrollment.LessonProgress) error {
	_, err := r.tx.ExecContext(ctx, `INSERT INTO lesson_progress (enrollment_id,lesson_id,current_page,total_pages,
		highest_page_reached,is_completed,media_position,media_duration,time_spent_seconds,completed_at,updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (enrollment_id, lesson_id) DO UPDATE SET current_page=EXCLUDED.current_page,
		  total_pages=EXCLUDED.total_pages, highest_page_reached=EXCLUDED.highest_page_reached,
		  is_completed=EXCLUDED.is_completed, media_position=EXCLUDED.media_position,
		  media_duration=EXCLUDED.media_duration, time_spent_seconds=EXCLUDED.time_spent_seconds,
		  completed_at=EXCLUDED.completed_at, updated_at=EXCLUDED.updated_at`,
		p.EnrollmentID, p.LessonID, p.CurrentPage, p.TotalPages, p.HighestPageReached, p.IsCompleted,
		p.MediaPosition, p.MediaDuration, p.TimeSpentSeconds, unixOrNil(p.CompletedAt), p.UpdatedAt.Unix())
	if err != nil {
		return fmt.Errorf("save lesson progress %s/%s: %w", p.EnrollmentID, p.LessonID, err)
	}
	return nil
}

func (r enrollmentRepo) GetInvitationByToken(ctx context.Context, token string) (enrollment.Invitation, error) {
	var (
		inv               enrollment.Invitation
		expires, accepted sql.NullInt64
	)
	err := r.tx.QueryRowContext(ctx, `SELECT id,course_id,email,token,expires_at,accepted_at,accepted_by
		FROM invitations WHERE token=$1`+r.forUpdate, token).
		Scan(&inv.ID, &inv.CourseID, &inv.Email, &inv.Token, &expires, &accepted, &inv.AcceptedBy)
	if err != nil {
		return enrollment.Invitation{}, notFound(err, "invitation", token)
	}
	inv.ExpiresAt = timeOrNil(expires)
	inv.AcceptedAt = timeOrNil(accepted)
	return inv, nil
}

func (r enrollmentRepo) UpdateInvitation(ctx context.Context, inv enrollment.Invitation) error {
	_, err := r.tx.ExecContext(ctx, `UPDATE invitations SET accepted_at=$1, accepted_by=$2 WHERE id=$3`,
		unixOrNil(inv.AcceptedAt), inv.AcceptedBy, inv.ID)
	return err
}
