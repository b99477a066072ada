package assessment

import (
	"fmt"

	"github.com/mind-engage/coursework/internal/apperr"
	"github.com/mind-engage/coursework/internal/grading"
)

// Validate checks the authoring invariants of a question.
func (q Question) Validate() error {
	if _, err := grading.ParseQuestionType(string(q.Type)); err != nil {
		return apperr.Validation("question", q.ID, "question_type", err.Error())
	}
	if q.Points <= 0 {
		return apperr.Validation("question", q.ID, "positive_points", "points must be greater than zero")
	}
	if q.Type.RequiresOptions() {
		if len(q.Options) == 0 {
			return apperr.Validation("question", q.ID, "options_required", fmt.Sprintf("%s question needs options", q.Type))
		}
		if q.Type == grading.Matching {
			for _, o := range q.Options {
				if o.Text == "" || o.MatchText == "" {
					return apperr.Validation("question", q.ID, "match_pair_required", "every matching option needs a term and a match")
				}
			}
		} else {
			hasCorrect := false
			for _, o := range q.Options {
				hasCorrect = hasCorrect || o.IsCorrect
			}
			if !hasCorrect {
				return apperr.Validation("question", q.ID, "correct_option_required", "at least one option must be correct")
			}
		}
	}
	if q.Type == grading.ShortAnswer && len(q.AcceptedAnswers) == 0 {
		return apperr.Validation("question", q.ID, "accepted_answer_required", "short answer needs an accepted answer")
	}
	return nil
}

func (a Assessment) Validate() error {
	switch a.Status {
	case StatusDraft, StatusPublished, StatusArchived:
	default:
		return apperr.Validation("assessment", a.ID, "status", fmt.Sprintf("unknown status %q", a.Status))
	}
	if a.PassingScore < 0 || a.PassingScore > 100 {
		return apperr.Validation("assessment", a.ID, "passing_score_range", "passing score must be within 0..100")
	}
	if a.MaxAttempts < 0 {
		return apperr.Validation("assessment", a.ID, "max_attempts", "max attempts cannot be negative")
	}
	return nil
}
