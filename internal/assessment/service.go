package assessment

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/mind-engage/coursework/internal/apperr"
	"github.com/mind-engage/coursework/internal/events"
	"github.com/mind-engage/coursework/internal/grading"
	"github.com/mind-engage/coursework/internal/storage"
)

var validate = validator.New()

type Service struct {
	store       Store
	engine      *grading.Engine
	eligibility Eligibility
	blobs       storage.BlobStore
	events      events.Publisher
	hook        ProgressHook
	log         *slog.Logger
	now         func() time.Time
}

type ServiceOption func(*Service)

func WithPolicy(p Policy) ServiceOption { return func(s *Service) { s.eligibility.Policy = p } }

func WithBlobStore(b storage.BlobStore) ServiceOption { return func(s *Service) { s.blobs = b } }

func WithPublisher(p events.Publisher) ServiceOption { return func(s *Service) { s.events = p } }

func WithProgressHook(h ProgressHook) ServiceOption { return func(s *Service) { s.hook = h } }

func WithLogger(l *slog.Logger) ServiceOption { return func(s *Service) { s.log = l } }

func WithClock(now func() time.Time) ServiceOption { return func(s *Service) { s.now = now } }

func NewService(store Store, engine *grading.Engine, opts ...ServiceOption) *Service {
	s := &Service{
		store:  store,
		engine: engine,
		log:    slog.Default(),
		now:    time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	if s.engine == nil {
		s.engine = grading.NewEngine()
	}
	return s
}

// SetProgressHook wires the progress recalculation after construction; the
// enrollment service is usually built after this one.
func (s *Service) SetProgressHook(h ProgressHook) { s.hook = h }

// CheckEligibility returns nil when userID may start a new attempt, or the
// IneligibleAttempt error describing the violated rule.
func (s *Service) CheckEligibility(ctx context.Context, assessmentID, userID string) error {
	return s.store.InTx(ctx, func(r Repo) error {
		a, err := r.GetAssessment(ctx, assessmentID)
		if err != nil {
			return err
		}
		enr, err := r.FindEnrollment(ctx, userID, a.CourseID)
		if err != nil {
			return err
		}
		prior, err := r.ListAttempts(ctx, userID, a.ID)
		if err != nil {
			return err
		}
		return s.eligibility.Check(a, userID, enr, prior)
	})
}

// CanBeAttemptedBy reports eligibility as a bool; the error is non-nil only
// for lookup failures.
func (s *Service) CanBeAttemptedBy(ctx context.Context, assessmentID, userID string) (bool, error) {
	err := s.CheckEligibility(ctx, assessmentID, userID)
	if err == nil {
		return true, nil
	}
	if apperr.KindOf(err) == apperr.KindIneligible {
		return false, nil
	}
	return false, err
}

// StartAttempt creates a new in-progress attempt numbered after the user's
// previous ones.
func (s *Service) StartAttempt(ctx context.Context, assessmentID, userID string) (Attempt, error) {
	if userID == "" {
		return Attempt{}, apperr.Validation("attempt", "", "user_required", "user id is required")
	}
	var out Attempt
	err := s.store.InTx(ctx, func(r Repo) error {
		a, err := r.GetAssessment(ctx, assessmentID)
		if err != nil {
			return err
		}
		enr, err := r.FindEnrollment(ctx, userID, a.CourseID)
		if err != nil {
			return err
		}
		prior, err := r.ListAttempts(ctx, userID, a.ID)
		if err != nil {
			return err
		}
		if err := s.eligibility.Check(a, userID, enr, prior); err != nil {
			return err
		}
		out = Attempt{
			ID:            uuid.NewString(),
			AssessmentID:  a.ID,
			UserID:        userID,
			AttemptNumber: NextAttemptNumber(prior),
			Status:        AttemptInProgress,
			StartedAt:     s.now(),
		}
		return r.CreateAttempt(ctx, out)
	})
	if err != nil {
		return Attempt{}, err
	}
	s.log.InfoContext(ctx, "attempt started", "attempt_id", out.ID, "assessment_id", assessmentID, "user_id", userID, "attempt_number", out.AttemptNumber)
	return out, nil
}

// SubmitAnswers grades every submitted answer and moves the attempt to
// graded, or to submitted when a manual grade is still needed. Answering
// only some questions is allowed; an unknown or repeated question id
// rejects the whole submission before anything is graded.
func (s *Service) SubmitAnswers(ctx context.Context, attemptID string, req SubmitRequest) (Attempt, error) {
	if err := validate.Struct(req); err != nil {
		return Attempt{}, apperr.FromValidation("attempt", attemptID, err)
	}
	var (
		out      Attempt
		courseID string
		graded   bool
		uploaded []string
	)
	err := s.store.InTx(ctx, func(r Repo) error {
		at, err := r.GetAttempt(ctx, attemptID)
		if err != nil {
			return err
		}
		if at.Status != AttemptInProgress {
			return apperr.InvalidTransition("attempt", at.ID, "already_submitted", "attempt is %s", at.Status)
		}
		a, err := r.GetAssessment(ctx, at.AssessmentID)
		if err != nil {
			return err
		}
		questions, err := r.ListQuestions(ctx, a.ID)
		if err != nil {
			return err
		}
		byID := make(map[string]Question, len(questions))
		for _, q := range questions {
			byID[q.ID] = q
		}
		seen := make(map[string]struct{}, len(req.Answers))
		for i, in := range req.Answers {
			if _, ok := byID[in.QuestionID]; !ok {
				return apperr.Validation("attempt", at.ID, "unknown_question",
					fmt.Sprintf("question %s does not belong to assessment %s", in.QuestionID, a.ID),
					apperr.FieldError{Field: fmt.Sprintf("answers[%d].question_id", i), Error: "unknown question"})
			}
			if _, dup := seen[in.QuestionID]; dup {
				return apperr.Validation("attempt", at.ID, "duplicate_answer",
					fmt.Sprintf("question %s answered twice", in.QuestionID),
					apperr.FieldError{Field: fmt.Sprintf("answers[%d].question_id", i), Error: "duplicate"})
			}
			seen[in.QuestionID] = struct{}{}
		}
		// In-progress attempts are free, so the limit is checked again at
		// the moment this one starts to count. Reading the enrollment first
		// holds the learner's lock, so two submits cannot both see room.
		if a.MaxAttempts > 0 {
			if _, err := r.FindEnrollment(ctx, at.UserID, a.CourseID); err != nil {
				return err
			}
			prior, err := r.ListAttempts(ctx, at.UserID, a.ID)
			if err != nil {
				return err
			}
			if used := CountedAttempts(prior); used >= a.MaxAttempts {
				return apperr.Ineligible("attempt", at.ID, "max_attempts_reached", fmt.Sprintf("%d of %d attempts used", used, a.MaxAttempts))
			}
		}

		now := s.now()
		answers := make([]Answer, 0, len(req.Answers))
		for _, in := range req.Answers {
			q := byID[in.QuestionID]
			ans := Answer{
				ID:         uuid.NewString(),
				AttemptID:  at.ID,
				QuestionID: q.ID,
				AnswerText: in.Text,
				Matches:    in.Matches,
			}
			if len(in.OptionIDs) > 0 {
				ans.SelectedOptionIDs = grading.SortedKeys(in.OptionIDs)
			}
			if in.File != nil {
				ref, err := s.storeFile(at.ID, q.ID, in)
				if err != nil {
					return err
				}
				ans.FileRef = ref
				uploaded = append(uploaded, ref)
			}
			if err := s.gradeInto(ctx, q, &ans, now); err != nil {
				return err
			}
			if err := r.SaveAnswer(ctx, ans); err != nil {
				return err
			}
			answers = append(answers, ans)
		}

		at.SubmittedAt = &now
		graded = CalculateScore(&at, a, questions, answers, now)
		if !graded {
			if err := at.transition(AttemptSubmitted); err != nil {
				return err
			}
		}
		if err := r.UpdateAttempt(ctx, at); err != nil {
			return err
		}
		out, courseID = at, a.CourseID
		return nil
	})
	if err != nil {
		s.discardUploads(ctx, uploaded)
		return Attempt{}, err
	}
	s.log.InfoContext(ctx, "attempt submitted", "attempt_id", out.ID, "status", out.Status, "score", out.Score, "max_score", out.MaxScore)
	s.afterScoring(ctx, out, courseID, graded)
	return out, nil
}

// GradeAnswer records a human score for one answer and re-runs the
// aggregation; the attempt becomes graded once no manual answer is left.
func (s *Service) GradeAnswer(ctx context.Context, answerID string, req GradeRequest) (Attempt, error) {
	if err := validate.Struct(req); err != nil {
		return Attempt{}, apperr.FromValidation("answer", answerID, err)
	}
	var (
		out      Attempt
		courseID string
		graded   bool
	)
	err := s.store.InTx(ctx, func(r Repo) error {
		ans, err := r.GetAnswer(ctx, answerID)
		if err != nil {
			return err
		}
		at, err := r.GetAttempt(ctx, ans.AttemptID)
		if err != nil {
			return err
		}
		if at.Status != AttemptSubmitted && at.Status != AttemptGraded {
			return apperr.InvalidTransition("attempt", at.ID, "not_gradable", "answers of a %s attempt cannot be graded", at.Status)
		}
		a, err := r.GetAssessment(ctx, at.AssessmentID)
		if err != nil {
			return err
		}
		questions, err := r.ListQuestions(ctx, a.ID)
		if err != nil {
			return err
		}
		var q *Question
		for i := range questions {
			if questions[i].ID == ans.QuestionID {
				q = &questions[i]
				break
			}
		}
		if q == nil {
			return apperr.NotFound("question", ans.QuestionID)
		}
		score := *req.Score
		if score > float64(q.Points) {
			return apperr.Validation("answer", ans.ID, "score_exceeds_points",
				fmt.Sprintf("score %.2f exceeds the question's %d points", score, q.Points),
				apperr.FieldError{Field: "score", Error: fmt.Sprintf("must be at most %d", q.Points)})
		}

		res, err := s.engine.Grade(ctx, q.gradingView(), ans.response())
		if err != nil {
			return fmt.Errorf("grade question %s: %w", q.ID, err)
		}
		now := s.now()
		ans.Score = &score
		if res.NeedsManual {
			ans.IsCorrect = nil
		} else {
			full := score == float64(q.Points)
			ans.IsCorrect = &full
		}
		ans.GradedBy = req.GraderID
		ans.GradedAt = &now
		if err := r.SaveAnswer(ctx, ans); err != nil {
			return err
		}

		answers, err := r.ListAnswers(ctx, at.ID)
		if err != nil {
			return err
		}
		graded = CalculateScore(&at, a, questions, answers, now)
		at.GradedBy = req.GraderID
		if err := r.UpdateAttempt(ctx, at); err != nil {
			return err
		}
		out, courseID = at, a.CourseID
		return nil
	})
	if err != nil {
		return Attempt{}, err
	}
	s.log.InfoContext(ctx, "answer graded", "answer_id", answerID, "attempt_id", out.ID, "grader", req.GraderID, "status", out.Status)
	s.afterScoring(ctx, out, courseID, graded)
	return out, nil
}

// RecalculateAttempt re-runs the aggregation over stored answers. It is
// the retry path after a failed aggregation and is idempotent.
func (s *Service) RecalculateAttempt(ctx context.Context, attemptID string) (Attempt, error) {
	var (
		out      Attempt
		courseID string
		graded   bool
	)
	err := s.store.InTx(ctx, func(r Repo) error {
		at, err := r.GetAttempt(ctx, attemptID)
		if err != nil {
			return err
		}
		if at.Status == AttemptInProgress {
			return apperr.InvalidTransition("attempt", at.ID, "not_submitted", "attempt has not been submitted")
		}
		a, err := r.GetAssessment(ctx, at.AssessmentID)
		if err != nil {
			return err
		}
		questions, err := r.ListQuestions(ctx, a.ID)
		if err != nil {
			return err
		}
		answers, err := r.ListAnswers(ctx, at.ID)
		if err != nil {
			return err
		}
		graded = CalculateScore(&at, a, questions, answers, s.now())
		if err := r.UpdateAttempt(ctx, at); err != nil {
			return err
		}
		out, courseID = at, a.CourseID
		return nil
	})
	if err != nil {
		return Attempt{}, err
	}
	s.afterScoring(ctx, out, courseID, graded)
	return out, nil
}

// CompleteAttempt moves a graded attempt to completed.
func (s *Service) CompleteAttempt(ctx context.Context, attemptID string) (Attempt, error) {
	var out Attempt
	err := s.store.InTx(ctx, func(r Repo) error {
		at, err := r.GetAttempt(ctx, attemptID)
		if err != nil {
			return err
		}
		if err := at.Complete(); err != nil {
			return err
		}
		out = at
		return r.UpdateAttempt(ctx, at)
	})
	if err != nil {
		return Attempt{}, err
	}
	return out, nil
}

// GetAttempt returns an attempt with its answers.
func (s *Service) GetAttempt(ctx context.Context, attemptID string) (Attempt, []Answer, error) {
	var (
		at      Attempt
		answers []Answer
	)
	err := s.store.InTx(ctx, func(r Repo) error {
		var err error
		if at, err = r.GetAttempt(ctx, attemptID); err != nil {
			return err
		}
		answers, err = r.ListAnswers(ctx, attemptID)
		return err
	})
	return at, answers, err
}

func (s *Service) gradeInto(ctx context.Context, q Question, ans *Answer, now time.Time) error {
	res, err := s.engine.Grade(ctx, q.gradingView(), ans.response())
	if err != nil {
		return fmt.Errorf("grade question %s: %w", q.ID, err)
	}
	ans.IsCorrect = res.IsCorrect
	ans.Score = res.Score
	if res.Score != nil {
		t := now
		ans.GradedAt = &t
	}
	return nil
}

func (s *Service) storeFile(attemptID, questionID string, in AnswerInput) (string, error) {
	if s.blobs == nil {
		return "", apperr.Validation("answer", questionID, "uploads_disabled", "file uploads are not configured")
	}
	ref, err := s.blobs.Put(storage.AnswerKey(attemptID, questionID, in.FileName), in.File)
	if err != nil {
		return "", fmt.Errorf("store upload for question %s: %w", questionID, err)
	}
	return ref, nil
}

func (s *Service) discardUploads(ctx context.Context, keys []string) {
	for _, k := range keys {
		if err := s.blobs.Delete(k); err != nil {
			s.log.WarnContext(ctx, "discard upload", "key", k, "err", err)
		}
	}
}

// afterScoring runs once the transaction committed: it announces a newly
// graded attempt and lets a passed attempt feed course progress.
func (s *Service) afterScoring(ctx context.Context, at Attempt, courseID string, becameGraded bool) {
	if becameGraded && s.events != nil {
		ev, err := events.New(events.TypeAttemptGraded, at.ID, map[string]any{
			"attempt_id":    at.ID,
			"assessment_id": at.AssessmentID,
			"user_id":       at.UserID,
			"score":         at.Score,
			"max_score":     at.MaxScore,
			"percentage":    at.Percentage,
			"passed":        at.Passed,
		})
		if err == nil {
			err = s.events.Publish(ctx, ev)
		}
		if err != nil {
			s.log.ErrorContext(ctx, "publish attempt graded", "attempt_id", at.ID, "err", err)
		}
	}
	if s.hook != nil && at.Passed != nil && *at.Passed && (at.Status == AttemptGraded || at.Status == AttemptCompleted) {
		if err := s.hook.RecalculateFor(ctx, at.UserID, courseID); err != nil {
			s.log.ErrorContext(ctx, "recalculate course progress", "user_id", at.UserID, "course_id", courseID, "err", err)
		}
	}
}
