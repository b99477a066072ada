package assessment

import (
	"math"
	"time"
)

// CalculateScore recomputes score, max score, percentage and pass/fail for
// an attempt from its answers, and moves it to graded once no manual answer
// is waiting for a score. Attempts that were never submitted keep their
// status. It returns true when this call made the attempt
// graded. Calling it again with unchanged answers changes nothing.
//
// Unanswered questions have no Answer and contribute 0 to the score while
// still counting toward the max score.
func CalculateScore(at *Attempt, a Assessment, questions []Question, answers []Answer, now time.Time) bool {
	byID := make(map[string]Question, len(questions))
	maxScore := 0.0
	for _, q := range questions {
		byID[q.ID] = q
		maxScore += float64(q.Points)
	}

	score := 0.0
	pendingManual := false
	for _, ans := range answers {
		if ans.Score != nil {
			score += *ans.Score
			continue
		}
		if q, ok := byID[ans.QuestionID]; ok && !q.Type.AutoGradable() {
			pendingManual = true
		}
	}

	at.Score = score
	at.MaxScore = maxScore
	// Percentage and pass/fail stay unset until no answer awaits a grader.
	at.Percentage, at.Passed = nil, nil
	if pendingManual {
		return false
	}
	pct := 0.0
	if maxScore > 0 {
		pct = roundHalfUp(score/maxScore*100, 2)
	}
	passed := pct >= a.PassingScore
	at.Percentage = &pct
	at.Passed = &passed

	if at.SubmittedAt == nil || at.Status == AttemptGraded || at.Status == AttemptCompleted {
		return false
	}
	if err := at.transition(AttemptGraded); err != nil {
		return false
	}
	if at.GradedAt == nil {
		t := now
		at.GradedAt = &t
	}
	return true
}

// roundHalfUp rounds non-negative v to the given number of decimals with
// halves going up. The small bias absorbs binary representation error
// (e.g. 66.665 stored as 66.66499...).
func roundHalfUp(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Floor(v*p+0.5+1e-9) / p
}
