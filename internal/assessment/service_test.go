package assessment_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mind-engage/coursework/internal/apperr"
	"github.com/mind-engage/coursework/internal/assessment"
	"github.com/mind-engage/coursework/internal/enrollment"
	"github.com/mind-engage/coursework/internal/events"
	"github.com/mind-engage/coursework/internal/grading"
	"github.com/mind-engage/coursework/internal/storage"
	"github.com/mind-engage/coursework/internal/store/memstore"
)

type fakeHook struct {
	mu    sync.Mutex
	calls []string
}

func (h *fakeHook) RecalculateFor(_ context.Context, userID, courseID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, userID+"/"+courseID)
	return nil
}

type fixture struct {
	store *memstore.Store
	svc   *assessment.Service
	rec   *events.Recorder
	hook  *fakeHook
}

var clock = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func newFixture(t *testing.T, a assessment.Assessment, qs []assessment.Question, opts ...assessment.ServiceOption) *fixture {
	t.Helper()
	st := memstore.New()
	if err := st.PutAssessment(a); err != nil {
		t.Fatalf("put assessment: %v", err)
	}
	for _, q := range qs {
		if err := st.PutQuestion(q); err != nil {
			t.Fatalf("put question %s: %v", q.ID, err)
		}
	}
	if err := st.PutEnrollment(enrollment.Enrollment{ID: "enr-u1", UserID: "u1", CourseID: a.CourseID, Status: enrollment.StatusActive, EnrolledAt: clock}); err != nil {
		t.Fatal(err)
	}
	f := &fixture{store: st, rec: &events.Recorder{}, hook: &fakeHook{}}
	base := []assessment.ServiceOption{
		assessment.WithPublisher(f.rec),
		assessment.WithProgressHook(f.hook),
		assessment.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		assessment.WithClock(func() time.Time { return clock }),
	}
	f.svc = assessment.NewService(st.Assessments(), grading.NewEngine(), append(base, opts...)...)
	return f
}

func tf(id string, correct bool) assessment.Question {
	return assessment.Question{
		ID: id, AssessmentID: "quiz", Type: grading.TrueFalse, Points: 10,
		Options: []assessment.Option{
			{ID: id + "-t", Text: "true", IsCorrect: correct},
			{ID: id + "-f", Text: "false", IsCorrect: !correct},
		},
	}
}

func quiz(max int) assessment.Assessment {
	return assessment.Assessment{ID: "quiz", CourseID: "go101", Title: "Quiz", PassingScore: 60, MaxAttempts: max, IsRequired: true, Status: assessment.StatusPublished}
}

func kindOf(t *testing.T, err error, want apperr.Kind) {
	t.Helper()
	if got := apperr.KindOf(err); got != want {
		t.Fatalf("want %s error, got %v", want, err)
	}
}

func TestSubmit_TrueFalseScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, quiz(0), []assessment.Question{tf("q1", true), tf("q2", true), tf("q3", true)})

	at, err := f.svc.StartAttempt(ctx, "quiz", "u1")
	if err != nil {
		t.Fatal(err)
	}
	if at.AttemptNumber != 1 || at.Status != assessment.AttemptInProgress {
		t.Fatalf("started %+v", at)
	}

	at, err = f.svc.SubmitAnswers(ctx, at.ID, assessment.SubmitRequest{Answers: []assessment.AnswerInput{
		{QuestionID: "q1", Text: "true"},
		{QuestionID: "q2", Text: "Benar"},
		{QuestionID: "q3", Text: "false"},
	}})
	if err != nil {
		t.Fatal(err)
	}
	if at.Status != assessment.AttemptGraded {
		t.Fatalf("status %s", at.Status)
	}
	if at.Score != 20 || at.MaxScore != 30 || *at.Percentage != 66.67 || !*at.Passed {
		t.Fatalf("score %v/%v pct %v passed %v", at.Score, at.MaxScore, *at.Percentage, *at.Passed)
	}
	if at.GradedAt == nil || !at.GradedAt.Equal(clock) {
		t.Fatalf("graded_at %v", at.GradedAt)
	}

	if got := f.rec.OfType(events.TypeAttemptGraded); len(got) != 1 || got[0].Key != at.ID {
		t.Fatalf("graded events %+v", got)
	}
	if len(f.hook.calls) != 1 || f.hook.calls[0] != "u1/go101" {
		t.Fatalf("hook calls %v", f.hook.calls)
	}

	_, answers, err := f.svc.GetAttempt(ctx, at.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(answers) != 3 {
		t.Fatalf("answers %d", len(answers))
	}
	for _, ans := range answers {
		if ans.Score == nil || ans.IsCorrect == nil {
			t.Fatalf("answer %s not graded", ans.QuestionID)
		}
	}
}

func TestSubmit_FailedAttemptSkipsProgressHook(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, quiz(0), []assessment.Question{tf("q1", true), tf("q2", true)})
	at, _ := f.svc.StartAttempt(ctx, "quiz", "u1")
	at, err := f.svc.SubmitAnswers(ctx, at.ID, assessment.SubmitRequest{Answers: []assessment.AnswerInput{
		{QuestionID: "q1", Text: "true"},
	}})
	if err != nil {
		t.Fatal(err)
	}
	if *at.Percentage != 50 || *at.Passed {
		t.Fatalf("pct %v passed %v", *at.Percentage, *at.Passed)
	}
	if len(f.hook.calls) != 0 {
		t.Fatalf("hook called for a failed attempt: %v", f.hook.calls)
	}
}

func TestSubmit_EssayWaitsForManualGrade(t *testing.T) {
	ctx := context.Background()
	essay := assessment.Question{ID: "e1", AssessmentID: "quiz", Type: grading.Essay, Points: 20}
	f := newFixture(t, quiz(0), []assessment.Question{essay})

	at, _ := f.svc.StartAttempt(ctx, "quiz", "u1")
	at, err := f.svc.SubmitAnswers(ctx, at.ID, assessment.SubmitRequest{Answers: []assessment.AnswerInput{
		{QuestionID: "e1", Text: "Goroutines are cheap."},
	}})
	if err != nil {
		t.Fatal(err)
	}
	if at.Status != assessment.AttemptSubmitted || at.GradedAt != nil {
		t.Fatalf("status %s graded_at %v", at.Status, at.GradedAt)
	}
	if at.Percentage != nil || at.Passed != nil {
		t.Fatalf("pct %v passed %v before the essay is graded", at.Percentage, at.Passed)
	}
	if len(f.rec.OfType(events.TypeAttemptGraded)) != 0 {
		t.Fatal("graded event before manual grading")
	}

	// Recalculating without a grade changes nothing.
	again, err := f.svc.RecalculateAttempt(ctx, at.ID)
	if err != nil || again.Status != assessment.AttemptSubmitted {
		t.Fatalf("recalculate: %v %s", err, again.Status)
	}

	_, answers, _ := f.svc.GetAttempt(ctx, at.ID)
	if len(answers) != 1 || answers[0].Score != nil || answers[0].IsCorrect != nil {
		t.Fatalf("essay answer %+v", answers)
	}

	score := 15.0
	at, err = f.svc.GradeAnswer(ctx, answers[0].ID, assessment.GradeRequest{Score: &score, GraderID: "teacher1"})
	if err != nil {
		t.Fatal(err)
	}
	if at.Status != assessment.AttemptGraded || at.GradedBy != "teacher1" {
		t.Fatalf("after grade: %s by %q", at.Status, at.GradedBy)
	}
	if *at.Percentage != 75 || !*at.Passed {
		t.Fatalf("pct %v passed %v", *at.Percentage, *at.Passed)
	}
	_, answers, _ = f.svc.GetAttempt(ctx, at.ID)
	if answers[0].IsCorrect != nil || *answers[0].Score != 15 || answers[0].GradedBy != "teacher1" {
		t.Fatalf("graded essay %+v", answers[0])
	}
	if len(f.rec.OfType(events.TypeAttemptGraded)) != 1 {
		t.Fatal("expected one graded event")
	}

	at, err = f.svc.CompleteAttempt(ctx, at.ID)
	if err != nil || at.Status != assessment.AttemptCompleted {
		t.Fatalf("complete: %v %s", err, at.Status)
	}
}

func TestGradeAnswer_Rejections(t *testing.T) {
	ctx := context.Background()
	essay := assessment.Question{ID: "e1", AssessmentID: "quiz", Type: grading.Essay, Points: 20}
	f := newFixture(t, quiz(0), []assessment.Question{essay, tf("q1", true)})
	at, _ := f.svc.StartAttempt(ctx, "quiz", "u1")
	if _, err := f.svc.SubmitAnswers(ctx, at.ID, assessment.SubmitRequest{Answers: []assessment.AnswerInput{
		{QuestionID: "e1", Text: "..."},
		{QuestionID: "q1", Text: "salah"},
	}}); err != nil {
		t.Fatal(err)
	}
	_, answers, _ := f.svc.GetAttempt(ctx, at.ID)
	var essayID, tfID string
	for _, a := range answers {
		if a.QuestionID == "e1" {
			essayID = a.ID
		} else {
			tfID = a.ID
		}
	}

	tooMuch := 21.0
	_, err := f.svc.GradeAnswer(ctx, essayID, assessment.GradeRequest{Score: &tooMuch, GraderID: "t"})
	kindOf(t, err, apperr.KindValidation)

	_, err = f.svc.GradeAnswer(ctx, essayID, assessment.GradeRequest{GraderID: "t"})
	kindOf(t, err, apperr.KindValidation)

	_, err = f.svc.GradeAnswer(ctx, "missing", assessment.GradeRequest{Score: &tooMuch, GraderID: "t"})
	kindOf(t, err, apperr.KindNotFound)

	// A manual override of an objective answer sets correctness from the score.
	full := 10.0
	if _, err := f.svc.GradeAnswer(ctx, tfID, assessment.GradeRequest{Score: &full, GraderID: "t"}); err != nil {
		t.Fatal(err)
	}
	_, answers, _ = f.svc.GetAttempt(ctx, at.ID)
	for _, a := range answers {
		if a.ID == tfID && (a.IsCorrect == nil || !*a.IsCorrect) {
			t.Fatalf("override %+v", a)
		}
	}
}

func TestStartAttempt_NumberingAndLimit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, quiz(2), []assessment.Question{tf("q1", true)})
	submit := func(id string) {
		t.Helper()
		if _, err := f.svc.SubmitAnswers(ctx, id, assessment.SubmitRequest{Answers: []assessment.AnswerInput{{QuestionID: "q1", Text: "true"}}}); err != nil {
			t.Fatal(err)
		}
	}

	a1, _ := f.svc.StartAttempt(ctx, "quiz", "u1")
	submit(a1.ID)
	a2, err := f.svc.StartAttempt(ctx, "quiz", "u1")
	if err != nil {
		t.Fatal(err)
	}
	if a2.AttemptNumber != 2 {
		t.Fatalf("attempt number %d", a2.AttemptNumber)
	}
	// In-progress attempts do not count yet.
	a3, err := f.svc.StartAttempt(ctx, "quiz", "u1")
	if err != nil || a3.AttemptNumber != 3 {
		t.Fatalf("third start: %v %d", err, a3.AttemptNumber)
	}
	submit(a2.ID)

	_, err = f.svc.SubmitAnswers(ctx, a3.ID, assessment.SubmitRequest{Answers: []assessment.AnswerInput{{QuestionID: "q1", Text: "true"}}})
	kindOf(t, err, apperr.KindIneligible)

	_, err = f.svc.StartAttempt(ctx, "quiz", "u1")
	kindOf(t, err, apperr.KindIneligible)
	ok, err := f.svc.CanBeAttemptedBy(ctx, "quiz", "u1")
	if err != nil || ok {
		t.Fatalf("CanBeAttemptedBy = %v, %v", ok, err)
	}
}

func TestStartAttempt_Eligibility(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, quiz(0), []assessment.Question{tf("q1", true)})

	ok, err := f.svc.CanBeAttemptedBy(ctx, "quiz", "stranger")
	if err != nil || ok {
		t.Fatalf("stranger: %v %v", ok, err)
	}
	_, err = f.svc.StartAttempt(ctx, "quiz", "stranger")
	kindOf(t, err, apperr.KindIneligible)

	_, err = f.svc.CanBeAttemptedBy(ctx, "nope", "u1")
	kindOf(t, err, apperr.KindNotFound)

	draft := quiz(0)
	draft.ID, draft.Status = "draft", assessment.StatusDraft
	if err := f.store.PutAssessment(draft); err != nil {
		t.Fatal(err)
	}
	_, err = f.svc.StartAttempt(ctx, "draft", "u1")
	kindOf(t, err, apperr.KindIneligible)
}

func TestStartAttempt_DroppedEnrollmentPolicy(t *testing.T) {
	ctx := context.Background()
	for _, strict := range []bool{false, true} {
		f := newFixture(t, quiz(0), []assessment.Question{tf("q1", true)},
			assessment.WithPolicy(assessment.Policy{RequireActiveEnrollment: strict}))
		if err := f.store.PutEnrollment(enrollment.Enrollment{ID: "enr-u1", UserID: "u1", CourseID: "go101", Status: enrollment.StatusDropped, EnrolledAt: clock}); err != nil {
			t.Fatal(err)
		}
		ok, err := f.svc.CanBeAttemptedBy(ctx, "quiz", "u1")
		if err != nil || ok == strict {
			t.Fatalf("strict=%v: ok=%v err=%v", strict, ok, err)
		}
	}
}

func TestSubmit_Validation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, quiz(0), []assessment.Question{tf("q1", true), tf("q2", false)})
	at, _ := f.svc.StartAttempt(ctx, "quiz", "u1")

	_, err := f.svc.SubmitAnswers(ctx, at.ID, assessment.SubmitRequest{})
	kindOf(t, err, apperr.KindValidation)

	_, err = f.svc.SubmitAnswers(ctx, at.ID, assessment.SubmitRequest{Answers: []assessment.AnswerInput{
		{QuestionID: "q1", Text: "true"},
		{QuestionID: "other", Text: "true"},
	}})
	kindOf(t, err, apperr.KindValidation)

	_, err = f.svc.SubmitAnswers(ctx, at.ID, assessment.SubmitRequest{Answers: []assessment.AnswerInput{
		{QuestionID: "q1", Text: "true"},
		{QuestionID: "q1", Text: "false"},
	}})
	kindOf(t, err, apperr.KindValidation)

	// Nothing from the rejected submissions was kept.
	got, answers, _ := f.svc.GetAttempt(ctx, at.ID)
	if got.Status != assessment.AttemptInProgress || len(answers) != 0 {
		t.Fatalf("after rejection: %s with %d answers", got.Status, len(answers))
	}

	// A partial submission is fine.
	got, err = f.svc.SubmitAnswers(ctx, at.ID, assessment.SubmitRequest{Answers: []assessment.AnswerInput{{QuestionID: "q2", Text: "false"}}})
	if err != nil || got.Score != 10 || got.MaxScore != 20 {
		t.Fatalf("partial: %v %v/%v", err, got.Score, got.MaxScore)
	}

	_, err = f.svc.SubmitAnswers(ctx, at.ID, assessment.SubmitRequest{Answers: []assessment.AnswerInput{{QuestionID: "q1", Text: "true"}}})
	if !errors.Is(err, apperr.ErrInvalidTransition) {
		t.Fatalf("second submit: %v", err)
	}
}

func TestSubmit_FileUpload(t *testing.T) {
	ctx := context.Background()
	upload := assessment.Question{ID: "f1", AssessmentID: "quiz", Type: grading.FileUpload, Points: 5}
	blobs, err := storage.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	f := newFixture(t, quiz(0), []assessment.Question{upload}, assessment.WithBlobStore(blobs))

	at, _ := f.svc.StartAttempt(ctx, "quiz", "u1")
	at, err = f.svc.SubmitAnswers(ctx, at.ID, assessment.SubmitRequest{Answers: []assessment.AnswerInput{
		{QuestionID: "f1", File: strings.NewReader("%PDF-1.7"), FileName: "../../report.pdf"},
	}})
	if err != nil {
		t.Fatal(err)
	}
	if at.Status != assessment.AttemptSubmitted {
		t.Fatalf("status %s", at.Status)
	}
	_, answers, _ := f.svc.GetAttempt(ctx, at.ID)
	want := storage.AnswerKey(at.ID, "f1", "report.pdf")
	if answers[0].FileRef != want {
		t.Fatalf("file ref %q, want %q", answers[0].FileRef, want)
	}
	rc, err := blobs.Get(want)
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()
	body, _ := io.ReadAll(rc)
	if string(body) != "%PDF-1.7" {
		t.Fatalf("stored %q", body)
	}
}

func TestSubmit_UploadWithoutBlobStore(t *testing.T) {
	ctx := context.Background()
	upload := assessment.Question{ID: "f1", AssessmentID: "quiz", Type: grading.FileUpload, Points: 5}
	f := newFixture(t, quiz(0), []assessment.Question{upload})
	at, _ := f.svc.StartAttempt(ctx, "quiz", "u1")
	_, err := f.svc.SubmitAnswers(ctx, at.ID, assessment.SubmitRequest{Answers: []assessment.AnswerInput{
		{QuestionID: "f1", File: strings.NewReader("x"), FileName: "a.txt"},
	}})
	kindOf(t, err, apperr.KindValidation)
}

func TestRecalculateAttempt(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, quiz(0), []assessment.Question{tf("q1", true)})
	at, _ := f.svc.StartAttempt(ctx, "quiz", "u1")

	_, err := f.svc.RecalculateAttempt(ctx, at.ID)
	kindOf(t, err, apperr.KindInvalidTransition)

	graded, err := f.svc.SubmitAnswers(ctx, at.ID, assessment.SubmitRequest{Answers: []assessment.AnswerInput{{QuestionID: "q1", Text: "true"}}})
	if err != nil {
		t.Fatal(err)
	}
	again, err := f.svc.RecalculateAttempt(ctx, at.ID)
	if err != nil {
		t.Fatal(err)
	}
	if again.Status != graded.Status || again.Score != graded.Score || !again.GradedAt.Equal(*graded.GradedAt) {
		t.Fatalf("recalculate changed the attempt: %+v vs %+v", again, graded)
	}
	if len(f.rec.OfType(events.TypeAttemptGraded)) != 1 {
		t.Fatal("recalculation must not publish a second graded event")
	}
}

// tracingStore records which repo reads each transaction makes, in order.
type tracingStore struct {
	inner assessment.Store
	calls []string
}

func (s *tracingStore) InTx(ctx context.Context, fn func(assessment.Repo) error) error {
	return s.inner.InTx(ctx, func(r assessment.Repo) error { return fn(tracingRepo{Repo: r, s: s}) })
}

type tracingRepo struct {
	assessment.Repo
	s *tracingStore
}

func (r tracingRepo) FindEnrollment(ctx context.Context, userID, courseID string) (*assessment.EnrollmentRef, error) {
	r.s.calls = append(r.s.calls, "FindEnrollment")
	return r.Repo.FindEnrollment(ctx, userID, courseID)
}

func (r tracingRepo) ListAttempts(ctx context.Context, userID, assessmentID string) ([]assessment.Attempt, error) {
	r.s.calls = append(r.s.calls, "ListAttempts")
	return r.Repo.ListAttempts(ctx, userID, assessmentID)
}

func TestAttemptCounting_LocksEnrollmentFirst(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, quiz(2), []assessment.Question{tf("q1", true)})
	tr := &tracingStore{inner: f.store.Assessments()}
	svc := assessment.NewService(tr, grading.NewEngine(),
		assessment.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		assessment.WithClock(func() time.Time { return clock }))

	lockedFirst := func(op string) {
		t.Helper()
		if len(tr.calls) < 2 || tr.calls[0] != "FindEnrollment" {
			t.Fatalf("%s: reads %v, want the enrollment read before attempts are counted", op, tr.calls)
		}
		tr.calls = nil
	}

	at, err := svc.StartAttempt(ctx, "quiz", "u1")
	if err != nil {
		t.Fatal(err)
	}
	lockedFirst("start")
	if _, err := svc.SubmitAnswers(ctx, at.ID, assessment.SubmitRequest{Answers: []assessment.AnswerInput{{QuestionID: "q1", Text: "true"}}}); err != nil {
		t.Fatal(err)
	}
	lockedFirst("submit")
}
