package assessment

import (
	"fmt"

	"github.com/mind-engage/coursework/internal/apperr"
)

// Policy holds the configurable eligibility rules.
type Policy struct {
	// RequireActiveEnrollment rejects learners whose enrollment is not
	// active. Off by default: a dropped learner may still start attempts.
	RequireActiveEnrollment bool
}

type Eligibility struct {
	Policy Policy
}

// Check returns nil when the user may start a new attempt, otherwise an
// IneligibleAttempt error naming the rule. enr is nil when the user has no
// enrollment in the assessment's course.
func (e Eligibility) Check(a Assessment, userID string, enr *EnrollmentRef, prior []Attempt) error {
	if a.Status != StatusPublished {
		return apperr.Ineligible("assessment", a.ID, "not_published", fmt.Sprintf("assessment is %s", a.Status))
	}
	if enr == nil {
		return apperr.Ineligible("assessment", a.ID, "not_enrolled", fmt.Sprintf("user %s is not enrolled in course %s", userID, a.CourseID))
	}
	if e.Policy.RequireActiveEnrollment && enr.Status != "active" {
		return apperr.Ineligible("assessment", a.ID, "enrollment_not_active", fmt.Sprintf("enrollment %s is %s", enr.ID, enr.Status))
	}
	if a.MaxAttempts > 0 {
		if used := CountedAttempts(prior); used >= a.MaxAttempts {
			return apperr.Ineligible("assessment", a.ID, "max_attempts_reached", fmt.Sprintf("%d of %d attempts used", used, a.MaxAttempts))
		}
	}
	return nil
}

func (e Eligibility) CanBeAttemptedBy(a Assessment, userID string, enr *EnrollmentRef, prior []Attempt) bool {
	return e.Check(a, userID, enr, prior) == nil
}

// CountedAttempts counts attempts that use up the limit; in-progress
// attempts are free.
func CountedAttempts(prior []Attempt) int {
	n := 0
	for _, at := range prior {
		if at.Status.CountsTowardLimit() {
			n++
		}
	}
	return n
}

// NextAttemptNumber is 1 + the highest existing attempt number, or 1.
func NextAttemptNumber(prior []Attempt) int {
	max := 0
	for _, at := range prior {
		if at.AttemptNumber > max {
			max = at.AttemptNumber
		}
	}
	return max + 1
}
