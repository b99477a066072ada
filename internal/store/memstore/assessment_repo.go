package memstore

import (
	"context"
	"sort"

	"github.com/mind-engage/coursework/internal/apperr"
	"github.com/mind-engage/coursework/internal/assessment"
)

type assessmentRepo struct{ tx }

func (r assessmentRepo) GetAssessment(_ context.Context, id string) (assessment.Assessment, error) {
	a, ok := r.d.assessments[id]
	if !ok {
		return assessment.Assessment{}, apperr.NotFound("assessment", id)
	}
	return a, nil
}

func (r assessmentRepo) ListQuestions(_ context.Context, assessmentID string) ([]assessment.Question, error) {
	var out []assessment.Question
	for _, q := range r.d.questions {
		if q.AssessmentID == assessmentID {
			out = append(out, q)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r assessmentRepo) GetAttempt(_ context.Context, id string) (assessment.Attempt, error) {
	at, ok := r.d.attempts[id]
	if !ok {
		return assessment.Attempt{}, apperr.NotFound("attempt", id)
	}
	return at, nil
}

func (r assessmentRepo) ListAttempts(_ context.Context, userID, assessmentID string) ([]assessment.Attempt, error) {
	var out []assessment.Attempt
	for _, at := range r.d.attempts {
		if at.UserID == userID && at.AssessmentID == assessmentID {
			out = append(out, at)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AttemptNumber < out[j].AttemptNumber })
	return out, nil
}

func (r assessmentRepo) CreateAttempt(_ context.Context, at assessment.Attempt) error {
	for _, other := range r.d.attempts {
		if other.UserID == at.UserID && other.AssessmentID == at.AssessmentID && other.AttemptNumber == at.AttemptNumber {
			return apperr.InvalidTransition("attempt", at.ID, "attempt_number_taken",
				"attempt %d of %s already exists for user %s", at.AttemptNumber, at.AssessmentID, at.UserID)
		}
	}
	r.d.attempts[at.ID] = at
	return nil
}

func (r assessmentRepo) UpdateAttempt(_ context.Context, at assessment.Attempt) error {
	if _, ok := r.d.attempts[at.ID]; !ok {
		return apperr.NotFound("attempt", at.ID)
	}
	r.d.attempts[at.ID] = at
	return nil
}

func (r assessmentRepo) GetAnswer(_ context.Context, id string) (assessment.Answer, error) {
	ans, ok := r.d.answers[id]
	if !ok {
		return assessment.Answer{}, apperr.NotFound("answer", id)
	}
	return ans, nil
}

func (r assessmentRepo) ListAnswers(_ context.Context, attemptID string) ([]assessment.Answer, error) {
	var out []assessment.Answer
	for _, ans := range r.d.answers {
		if ans.AttemptID == attemptID {
			out = append(out, ans)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuestionID < out[j].QuestionID })
	return out, nil
}

// SaveAnswer upserts on (attempt, question); an existing row keeps its id.
func (r assessmentRepo) SaveAnswer(_ context.Context, ans assessment.Answer) error {
	for id, other := range r.d.answers {
		if other.AttemptID == ans.AttemptID && other.QuestionID == ans.QuestionID && id != ans.ID {
			delete(r.d.answers, id)
			ans.ID = id
			break
		}
	}
	r.d.answers[ans.ID] = ans
	return nil
}

func (r assessmentRepo) FindEnrollment(_ context.Context, userID, courseID string) (*assessment.EnrollmentRef, error) {
	e := findEnrollment(r.d, userID, courseID)
	if e == nil {
		return nil, nil
	}
	return &assessment.EnrollmentRef{ID: e.ID, Status: string(e.Status)}, nil
}
