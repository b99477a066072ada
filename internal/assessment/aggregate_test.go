package assessment

import (
	"testing"
	"time"

	"github.com/mind-engage/coursework/internal/grading"
)

func fp(v float64) *float64 { return &v }
func bp(v bool) *bool       { return &v }

var t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func submitted() *Attempt {
	s := t0
	return &Attempt{ID: "at1", Status: AttemptInProgress, StartedAt: t0, SubmittedAt: &s}
}

func tfQuestions(n, points int) []Question {
	qs := make([]Question, n)
	for i := range qs {
		qs[i] = Question{ID: string(rune('a' + i)), Type: grading.TrueFalse, Points: points}
	}
	return qs
}

func TestCalculateScore_TrueFalseScenario(t *testing.T) {
	qs := tfQuestions(3, 10)
	answers := []Answer{
		{QuestionID: "a", IsCorrect: bp(true), Score: fp(10)},
		{QuestionID: "b", IsCorrect: bp(true), Score: fp(10)},
		{QuestionID: "c", IsCorrect: bp(false), Score: fp(0)},
	}
	for _, tc := range []struct {
		passing float64
		passed  bool
	}{{60, true}, {66.67, true}, {66.68, false}, {70, false}} {
		at := submitted()
		became := CalculateScore(at, Assessment{PassingScore: tc.passing}, qs, answers, t0)
		if !became || at.Status != AttemptGraded {
			t.Fatalf("passing %v: expected graded, got %s (became=%v)", tc.passing, at.Status, became)
		}
		if at.Score != 20 || at.MaxScore != 30 {
			t.Fatalf("score %v/%v, want 20/30", at.Score, at.MaxScore)
		}
		if *at.Percentage != 66.67 {
			t.Fatalf("percentage %v, want 66.67", *at.Percentage)
		}
		if *at.Passed != tc.passed {
			t.Fatalf("passing %v: passed=%v want %v", tc.passing, *at.Passed, tc.passed)
		}
	}
}

func TestCalculateScore_PassBoundary(t *testing.T) {
	qs := []Question{{ID: "q", Type: grading.ShortAnswer, Points: 100}}
	for _, tc := range []struct {
		score  float64
		passed bool
	}{{60, true}, {59, false}, {100, true}, {0, false}} {
		at := submitted()
		CalculateScore(at, Assessment{PassingScore: 60}, qs, []Answer{{QuestionID: "q", Score: fp(tc.score)}}, t0)
		if *at.Passed != tc.passed {
			t.Fatalf("score %v: passed=%v want %v", tc.score, *at.Passed, tc.passed)
		}
	}
}

func TestCalculateScore_UnansweredCountsTowardMax(t *testing.T) {
	at := submitted()
	CalculateScore(at, Assessment{PassingScore: 50}, tfQuestions(4, 5), []Answer{{QuestionID: "a", Score: fp(5)}}, t0)
	if at.Score != 5 || at.MaxScore != 20 || *at.Percentage != 25 {
		t.Fatalf("got %v/%v %v%%", at.Score, at.MaxScore, *at.Percentage)
	}
	if at.Status != AttemptGraded {
		t.Fatalf("status %s", at.Status)
	}
}

func TestCalculateScore_NoQuestions(t *testing.T) {
	at := submitted()
	CalculateScore(at, Assessment{PassingScore: 0}, nil, nil, t0)
	if at.MaxScore != 0 || *at.Percentage != 0 {
		t.Fatalf("got max %v pct %v", at.MaxScore, *at.Percentage)
	}
	if !*at.Passed {
		t.Fatal("0 >= 0 should pass")
	}

	at = submitted()
	CalculateScore(at, Assessment{PassingScore: 50}, nil, nil, t0)
	if *at.Passed {
		t.Fatal("0% must not pass a 50% threshold")
	}
}

func TestCalculateScore_EssayPending(t *testing.T) {
	qs := []Question{
		{ID: "e", Type: grading.Essay, Points: 10},
		{ID: "t", Type: grading.TrueFalse, Points: 10},
	}
	answers := []Answer{{QuestionID: "e", AnswerText: "essay"}, {QuestionID: "t", Score: fp(10)}}
	at := submitted()
	if CalculateScore(at, Assessment{PassingScore: 50}, qs, answers, t0) {
		t.Fatal("must not become graded while the essay has no score")
	}
	if at.Status != AttemptInProgress || at.GradedAt != nil {
		t.Fatalf("status %s graded_at %v", at.Status, at.GradedAt)
	}
	if at.Score != 10 || at.MaxScore != 20 || at.Percentage != nil || at.Passed != nil {
		t.Fatalf("partial score %v/%v pct %v passed %v", at.Score, at.MaxScore, at.Percentage, at.Passed)
	}

	// An unanswered essay does not hold the attempt back.
	at = submitted()
	if !CalculateScore(at, Assessment{PassingScore: 50}, qs, answers[1:], t0) {
		t.Fatal("expected graded when the essay was not answered")
	}
}

func TestCalculateScore_Idempotent(t *testing.T) {
	qs := tfQuestions(2, 10)
	answers := []Answer{{QuestionID: "a", Score: fp(10)}, {QuestionID: "b", Score: fp(0)}}
	at := submitted()
	if !CalculateScore(at, Assessment{PassingScore: 50}, qs, answers, t0) {
		t.Fatal("first call should grade")
	}
	first := *at
	firstPct, firstGraded := *at.Percentage, *at.GradedAt

	if CalculateScore(at, Assessment{PassingScore: 50}, qs, answers, t0.Add(time.Hour)) {
		t.Fatal("second call must not report a new transition")
	}
	if at.Status != first.Status || at.Score != first.Score || *at.Percentage != firstPct {
		t.Fatalf("second call changed result: %+v", at)
	}
	if !at.GradedAt.Equal(firstGraded) {
		t.Fatalf("graded_at moved from %v to %v", firstGraded, *at.GradedAt)
	}
}

func TestCalculateScore_NotSubmittedKeepsStatus(t *testing.T) {
	at := &Attempt{ID: "x", Status: AttemptInProgress}
	if CalculateScore(at, Assessment{}, tfQuestions(1, 1), nil, t0) {
		t.Fatal("unsubmitted attempt must not be graded")
	}
	if at.Status != AttemptInProgress {
		t.Fatalf("status %s", at.Status)
	}
}

func TestRoundHalfUp(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{66.665, 66.67},
		{200.0 / 3, 66.67},
		{100.0 / 3, 33.33},
		{12.345, 12.35},
		{0, 0},
		{100, 100},
	}
	for _, tc := range tests {
		if got := roundHalfUp(tc.in, 2); got != tc.want {
			t.Fatalf("roundHalfUp(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
