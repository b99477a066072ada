package memstore

import (
	"context"

	"github.com/mind-engage/coursework/internal/apperr"
	"github.com/mind-engage/coursework/internal/enrollment"
)

type enrollmentRepo struct{ tx }

func (r enrollmentRepo) GetEnrollment(_ context.Context, id string) (enrollment.Enrollment, error) {
	e, ok := r.d.enrollments[id]
	if !ok {
		return enrollment.Enrollment{}, apperr.NotFound("enrollment", id)
	}
	return e, nil
}

func (r enrollmentRepo) FindEnrollment(_ context.Context, userID, courseID string) (*enrollment.Enrollment, error) {
	return findEnrollment(r.d, userID, courseID), nil
}

func (r enrollmentRepo) CreateEnrollment(_ context.Context, e enrollment.Enrollment) error {
	if findEnrollment(r.d, e.UserID, e.CourseID) != nil {
		return apperr.InvalidTransition("enrollment", e.ID, "already_enrolled",
			"user %s is already enrolled in course %s", e.UserID, e.CourseID)
	}
	r.d.enrollments[e.ID] = e
	return nil
}

func (r enrollmentRepo) UpdateEnrollment(_ context.Context, e enrollment.Enrollment) error {
	if _, ok := r.d.enrollments[e.ID]; !ok {
		return apperr.NotFound("enrollment", e.ID)
	}
	r.d.enrollments[e.ID] = e
	return nil
}

func (r enrollmentRepo) GetLesson(_ context.Context, id string) (enrollment.Lesson, error) {
	l, ok := r.d.lessons[id]
	if !ok {
		return enrollment.Lesson{}, apperr.NotFound("lesson", id)
	}
	return l, nil
}

func (r enrollmentRepo) GetLessonProgress(_ context.Context, enrollmentID, lessonID string) (*enrollment.LessonProgress, error) {
	p, ok := r.d.progress[progressKey{enrollmentID, lessonID}]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r enrollmentRepo) SaveLessonProgress(_ context.Context, p enrollment.LessonProgress) error {
	r.d.progress[progressKey{p.EnrollmentID, p.LessonID}] = p
	return nil
}

func (r enrollmentRepo) GetInvitationByToken(_ context.Context, token string) (enrollment.Invitation, error) {
	for _, inv := range r.d.invitations {
		if inv.Token == token {
			return inv, nil
		}
	}
	return enrollment.Invitation{}, apperr.NotFound("invitation", token)
}

func (r enrollmentRepo) UpdateInvitation(_ context.Context, inv enrollment.Invitation) error {
	if _, ok := r.d.invitations[inv.ID]; !ok {
		return apperr.NotFound("invitation", inv.ID)
	}
	r.d.invitations[inv.ID] = inv
	return nil
}
