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
	"github.com/mind-engage/coursework/internal/grading"
)

type assessmentRepo struct{ conn }

func (r assessmentRepo) GetAssessment(ctx context.Context, id string) (assessment.Assessment, error) {
	var a assessment.Assessment
	var status string
	err := r.tx.QueryRowContext(ctx, `SELECT id,course_id,title,passing_score,max_attempts,is_required,status
		FROM assessments WHERE id=$1`, id).
		Scan(&a.ID, &a.CourseID, &a.Title, &a.PassingScore, &a.MaxAttempts, &a.IsRequired, &status)
	if err != nil {
		return assessment.Assessment{}, notFound(err, "assessment", id)
	}
	a.Status = assessment.Status(status)
	return a, nil
}

func (r assessmentRepo) ListQuestions(ctx context.Context, assessmentID string) ([]assessment.Question, error) {
	rows, err := r.tx.QueryContext(ctx, `SELECT id,assessment_id,type,prompt,points,position,accepted_json
		FROM questions WHERE assessment_id=$1 ORDER BY position, id`, assessmentID)
	if err != nil {
		return nil, err
	}
	var out []assessment.Question
	index := map[string]int{}
	for rows.Next() {
		var q assessment.Question
		var typ, accepted string
		if err := rows.Scan(&q.ID, &q.AssessmentID, &typ, &q.Prompt, &q.Points, &q.Position, &accepted); err != nil {
			rows.Close()
			return nil, err
		}
		q.Type = grading.QuestionType(typ)
		if err := json.Unmarshal([]byte(accepted), &q.AcceptedAnswers); err != nil {
			rows.Close()
			return nil, fmt.Errorf("question %s accepted answers: %w", q.ID, err)
		}
		index[q.ID] = len(out)
		out = append(out, q)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	opts, err := r.tx.QueryContext(ctx, `SELECT o.id,o.question_id,o.text,o.is_correct,o.match_text
		FROM question_options o JOIN questions q ON q.id = o.question_id
		WHERE q.assessment_id=$1 ORDER BY o.position, o.id`, assessmentID)
	if err != nil {
		return nil, err
	}
	defer opts.Close()
	for opts.Next() {
		var o assessment.Option
		if err := opts.Scan(&o.ID, &o.QuestionID, &o.Text, &o.IsCorrect, &o.MatchText); err != nil {
			return nil, err
		}
		if i, ok := index[o.QuestionID]; ok {
			out[i].Options = append(out[i].Options, o)
		}
	}
	return out, opts.Err()
}

const attemptCols = `id,assessment_id,user_id,attempt_number,status,score,max_score,percentage,passed,started_at,submitted_at,graded_at,graded_by`

func scanAttempt(sc interface{ Scan(...any) error }) (assessment.Attempt, error) {
	var (
		at                  assessment.Attempt
		status              string
		pct                 sql.NullFloat64
		passed              sql.NullBool
		started             int64
		submitted, gradedAt sql.NullInt64
	)
	if err := sc.Scan(&at.ID, &at.AssessmentID, &at.UserID, &at.AttemptNumber, &status, &at.Score, &at.MaxScore,
		&pct, &passed, &started, &submitted, &gradedAt, &at.GradedBy); err != nil {
		return assessment.Attempt{}, err
	}
	st, err := assessment.ParseAttemptStatus(status)
	if err != nil {
		return assessment.Attempt{}, fmt.Errorf("attempt %s: %w", at.ID, err)
	}
	at.Status = st
	at.Percentage = floatPtr(pct)
	at.Passed = boolPtr(passed)
	at.StartedAt = time.Unix(started, 0).UTC()
	at.SubmittedAt = timeOrNil(submitted)
	at.GradedAt = timeOrNil(gradedAt)
	return at, nil
}

// GetAttempt locks the attempt row on Postgres.
func (r assessmentRepo) GetAttempt(ctx context.Context, id string) (assessment.Attempt, error) {
	at, err := scanAttempt(r.tx.QueryRowContext(ctx, `SELECT `+attemptCols+` FROM attempts WHERE id=$1`+r.forUpdate, id))
	if err != nil {
		return assessment.Attempt{}, notFound(err, "attempt", id)
	}
	return at, nil
}

func (r assessmentRepo) ListAttempts(ctx context.Context, userID, assessmentID string) ([]assessment.Attempt, error) {
	rows, err := r.tx.QueryContext(ctx, `SELECT `+attemptCols+` FROM attempts
		WHERE user_id=$1 AND assessment_id=$2 ORDER BY attempt_number`, userID, assessmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []assessment.Attempt
	for rows.Next() {
		at, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, at)
	}
	return out, rows.Err()
}

func (r assessmentRepo) CreateAttempt(ctx context.Context, at assessment.Attempt) error {
	_, err := r.tx.ExecContext(ctx, `INSERT INTO attempts (`+attemptCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		at.ID, at.AssessmentID, at.UserID, at.AttemptNumber, string(at.Status), at.Score, at.MaxScore,
		floatOrNil(at.Percentage), boolOrNil(at.Passed), at.StartedAt.Unix(),
		unixOrNil(at.SubmittedAt), unixOrNil(at.GradedAt), at.GradedBy)
	if db.IsUniqueViolation(err) {
		return apperr.InvalidTransition("attempt", at.ID, "attempt_number_taken",
			"attempt %d of %s already exists for user %s", at.AttemptNumber, at.AssessmentID, at.UserID)
	}
	if err != nil {
		return fmt.Errorf("create attempt: %w", err)
	}
	return nil
}

func (r assessmentRepo) UpdateAttempt(ctx context.Context, at assessment.Attempt) error {
	res, err := r.tx.ExecContext(ctx, `UPDATE attempts SET status=$1, score=$2, max_score=$3, percentage=$4, passed=$5,
		submitted_at=$6, graded_at=$7, graded_by=$8 WHERE id=$9`,
		string(at.Status), at.Score, at.MaxScore, floatOrNil(at.Percentage), boolOrNil(at.Passed),
		unixOrNil(at.SubmittedAt), unixOrNil(at.GradedAt), at.GradedBy, at.ID)
	if err != nil {
		return fmt.Errorf("update attempt %s: %w", at.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("attempt", at.ID)
	}
	return nil
}

const answerCols = `id,attempt_id,question_id,answer_text,selected_json,matches_json,file_ref,is_correct,score,graded_by,graded_at`

func scanAnswer(sc interface{ Scan(...any) error }) (assessment.Answer, error) {
	var (
		ans               assessment.Answer
		selected, matches string
		correct           sql.NullBool
		score             sql.NullFloat64
		gradedAt          sql.NullInt64
	)
	if err := sc.Scan(&ans.ID, &ans.AttemptID, &ans.QuestionID, &ans.AnswerText, &selected, &matches, &ans.FileRef,
		&correct, &score, &ans.GradedBy, &gradedAt); err != nil {
		return assessment.Answer{}, err
	}
	if err := json.Unmarshal([]byte(selected), &ans.SelectedOptionIDs); err != nil {
		return assessment.Answer{}, fmt.Errorf("answer %s options: %w", ans.ID, err)
	}
	if len(ans.SelectedOptionIDs) == 0 {
		ans.SelectedOptionIDs = nil
	}
	if err := json.Unmarshal([]byte(matches), &ans.Matches); err != nil {
		return assessment.Answer{}, fmt.Errorf("answer %s matches: %w", ans.ID, err)
	}
	if len(ans.Matches) == 0 {
		ans.Matches = nil
	}
	ans.IsCorrect = boolPtr(correct)
	ans.Score = floatPtr(score)
	ans.GradedAt = timeOrNil(gradedAt)
	return ans, nil
}

func (r assessmentRepo) GetAnswer(ctx context.Context, id string) (assessment.Answer, error) {
	ans, err := scanAnswer(r.tx.QueryRowContext(ctx, `SELECT `+answerCols+` FROM attempt_answers WHERE id=$1`, id))
	if err != nil {
		return assessment.Answer{}, notFound(err, "answer", id)
	}
	return ans, nil
}

func (r assessmentRepo) ListAnswers(ctx context.Context, attemptID string) ([]assessment.Answer, error) {
	rows, err := r.tx.QueryContext(ctx, `SELECT `+answerCols+` FROM attempt_answers
		WHERE attempt_id=$1 ORDER BY question_id`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []assessment.Answer
	for rows.Next() {
		ans, err := scanAnswer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ans)
	}
	return out, rows.Err()
}

// SaveAnswer upserts on (attempt, question); an existing row keeps its id.
func (r assessmentRepo) SaveAnswer(ctx context.Context, ans assessment.Answer) error {
	selected, err := json.Marshal(nonNilStrings(ans.SelectedOptionIDs))
	if err != nil {
		return err
	}
	matches := ans.Matches
	if matches == nil {
		matches = map[string]string{}
	}
	mj, err := json.Marshal(matches)
	if err != nil {
		return err
	}
	_, err = r.tx.ExecContext(ctx, `INSERT INTO attempt_answers (`+answerCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (attempt_id, question_id) DO UPDATE SET answer_text=EXCLUDED.answer_text,
		  selected_json=EXCLUDED.selected_json, matches_json=EXCLUDED.matches_json, file_ref=EXCLUDED.file_ref,
		  is_correct=EXCLUDED.is_correct, score=EXCLUDED.score, graded_by=EXCLUDED.graded_by, graded_at=EXCLUDED.graded_at`,
		ans.ID, ans.AttemptID, ans.QuestionID, ans.AnswerText, string(selected), string(mj), ans.FileRef,
		boolOrNil(ans.IsCorrect), floatOrNil(ans.Score), ans.GradedBy, unixOrNil(ans.GradedAt))
	if err != nil {
		return fmt.Errorf("save answer for question %s: %w", ans.QuestionID, err)
	}
	return nil
}

// FindEnrollment locks the enrollment row on Postgres, which serializes a
// learner's attempt starts and submits within the course.
func (r assessmentRepo) FindEnrollment(ctx context.Context, userID, courseID string) (*assessment.EnrollmentRef, error) {
	var ref assessment.EnrollmentRef
	err := r.tx.QueryRowContext(ctx, `SELECT id,status FROM enrollments WHERE user_id=$1 AND course_id=$2`+r.forUpdate,
		userID, courseID).Scan(&ref.ID, &ref.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ref, nil
}
