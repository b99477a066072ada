// Package sqlstore persists the course data through database/sql on
// SQLite (offline) or Postgres (online).
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mind-engage/coursework/internal/apperr"
	"github.com/mind-engage/coursework/internal/assessment"
	"github.com/mind-engage/coursework/internal/db"
	"github.com/mind-engage/coursework/internal/enrollment"
)

type Store struct {
	db     *sql.DB
	driver db.Driver
}

func New(sqlDB *sql.DB, driver db.Driver) *Store {
	return &Store{db: sqlDB, driver: driver}
}

// Assessments is the transactional view used by assessment.Service.
func (s *Store) Assessments() assessment.Store { return assessmentStore{s} }

// Enrollments is the transactional view used by enrollment.Service.
func (s *Store) Enrollments() enrollment.Store { return enrollmentStore{s} }

type assessmentStore struct{ s *Store }

func (a assessmentStore) InTx(ctx context.Context, fn func(assessment.Repo) error) error {
	return db.WithTx(ctx, a.s.db, nil, func(tx *sql.Tx) error {
		return fn(assessmentRepo{a.s.conn(tx)})
	})
}

type enrollmentStore struct{ s *Store }

func (e enrollmentStore) InTx(ctx context.Context, fn func(enrollment.Repo) error) error {
	return db.WithTx(ctx, e.s.db, nil, func(tx *sql.Tx) error {
		return fn(enrollmentRepo{e.s.conn(tx)})
	})
}

// conn is the transaction-scoped query helper shared by both repos.
type conn struct {
	tx *sql.Tx
	// forUpdate is appended to row reads that must hold the row until
	// commit. SQLite serializes writers on its single connection instead.
	forUpdate string
}

func (s *Store) conn(tx *sql.Tx) conn {
	c := conn{tx: tx}
	if s.driver == db.DriverPostgres {
		c.forUpdate = " FOR UPDATE"
	}
	return c
}

// ---- seeding ----

func (s *Store) PutAssessment(ctx context.Context, a assessment.Assessment) error {
	if err := a.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO assessments (id,course_id,title,passing_score,max_attempts,is_required,status)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (id) DO UPDATE SET course_id=EXCLUDED.course_id, title=EXCLUDED.title,
		  passing_score=EXCLUDED.passing_score, max_attempts=EXCLUDED.max_attempts,
		  is_required=EXCLUDED.is_required, status=EXCLUDED.status`,
		a.ID, a.CourseID, a.Title, a.PassingScore, a.MaxAttempts, a.IsRequired, string(a.Status))
	return err
}

// PutQuestion replaces a question and its options.
func (s *Store) PutQuestion(ctx context.Context, q assessment.Question) error {
	if err := q.Validate(); err != nil {
		return err
	}
	accepted, err := json.Marshal(nonNilStrings(q.AcceptedAnswers))
	if err != nil {
		return err
	}
	return db.WithTx(ctx, s.db, nil, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO questions (id,assessment_id,type,prompt,points,position,accepted_json)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
			ON CONFLICT (id) DO UPDATE SET assessment_id=EXCLUDED.assessment_id, type=EXCLUDED.type,
			  prompt=EXCLUDED.prompt, points=EXCLUDED.points, position=EXCLUDED.position,
			  accepted_json=EXCLUDED.accepted_json`,
			q.ID, q.AssessmentID, string(q.Type), q.Prompt, q.Points, q.Position, string(accepted)); err != nil {
			return fmt.Errorf("put question %s: %w", q.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM question_options WHERE question_id=$1`, q.ID); err != nil {
			return err
		}
		for i, o := range q.Options {
			if _, err := tx.ExecContext(ctx, `INSERT INTO question_options (id,question_id,text,is_correct,match_text,position)
				VALUES ($1,$2,$3,$4,$5,$6)`,
				o.ID, q.ID, o.Text, o.IsCorrect, o.MatchText, i); err != nil {
				return fmt.Errorf("put option %s: %w", o.ID, err)
			}
		}
		return nil
	})
}

func (s *Store) PutLesson(ctx context.Context, l enrollment.Lesson) error {
	ct := l.ContentType
	if ct == "" {
		ct = enrollment.ContentDocument
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO lessons (id,course_id,title,position,content_type,total_pages,duration_seconds)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (id) DO UPDATE SET course_id=EXCLUDED.course_id, title=EXCLUDED.title, position=EXCLUDED.position,
		  content_type=EXCLUDED.content_type, total_pages=EXCLUDED.total_pages, duration_seconds=EXCLUDED.duration_seconds`,
		l.ID, l.CourseID, l.Title, l.Position, string(ct), l.TotalPages, l.DurationSeconds)
	return err
}

func (s *Store) PutInvitation(ctx context.Context, inv enrollment.Invitation) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO invitations (id,course_id,email,token,expires_at,accepted_at,accepted_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		inv.ID, inv.CourseID, inv.Email, inv.Token, unixOrNil(inv.ExpiresAt), unixOrNil(inv.AcceptedAt), inv.AcceptedBy)
	return err
}

func (s *Store) PutEnrollment(ctx context.Context, e enrollment.Enrollment) error {
	return s.Enrollments().InTx(ctx, func(r enrollment.Repo) error {
		return r.CreateEnrollment(ctx, e)
	})
}

// ---- shared reads (progress.Source) ----

func (c conn) CountLessons(ctx context.Context, courseID string) (int, error) {
	var n int
	err := c.tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM lessons WHERE course_id=$1`, courseID).Scan(&n)
	return n, err
}

func (c conn) CountCompletedLessons(ctx context.Context, enrollmentID string) (int, error) {
	var n int
	err := c.tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM lesson_progress p
		JOIN lessons l ON l.id = p.lesson_id
		JOIN enrollments e ON e.id = p.enrollment_id
		WHERE p.enrollment_id=$1 AND p.is_completed=$2 AND l.course_id = e.course_id`,
		enrollmentID, true).Scan(&n)
	return n, err
}

func (c conn) RequiredAssessmentIDs(ctx context.Context, courseID string) ([]string, error) {
	rows, err := c.tx.QueryContext(ctx, `SELECT id FROM assessments
		WHERE course_id=$1 AND is_required=$2 AND status <> $3 ORDER BY id`,
		courseID, true, string(assessment.StatusDraft))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (c conn) HasPassedAttempt(ctx context.Context, userID, assessmentID string) (bool, error) {
	var ok bool
	err := c.tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM attempts
		WHERE user_id=$1 AND assessment_id=$2 AND passed=$3 AND status IN ($4,$5))`,
		userID, assessmentID, true, string(assessment.AttemptGraded), string(assessment.AttemptCompleted)).Scan(&ok)
	return ok, err
}

// ---- column helpers ----

func notFound(err error, entity, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NotFound(entity, id)
	}
	return err
}

func unixOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Unix()
}

func timeOrNil(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := time.Unix(n.Int64, 0).UTC()
	return &t
}

func floatOrNil(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

func boolOrNil(p *bool) any {
	if p == nil {
		return nil
	}
	return *p
}

func boolPtr(n sql.NullBool) *bool {
	if !n.Valid {
		return nil
	}
	v := n.Bool
	return &v
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
