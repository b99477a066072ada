package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/coursework/internal/assessment"
	authmw "github.com/mind-engage/coursework/internal/auth/middleware"
	"github.com/mind-engage/coursework/internal/enrollment"
	"github.com/mind-engage/coursework/internal/rbac"
	"github.com/mind-engage/coursework/internal/storage"
)

type Handlers struct {
	Assessments *assessment.Service
	Enrollments *enrollment.Service
	Blobs       storage.BlobStore
	Checker     *rbac.Checker
	Log         *slog.Logger
}

// ownsOrMay lets learners act on their own records; roles that may grade
// act on anyone's.
func (h *Handlers) ownsOrMay(r *http.Request, ownerID string) bool {
	if authmw.SubjectFromContext(r.Context()) == ownerID {
		return true
	}
	return h.Checker.Has(rbac.RoleFromContext(r.Context()), rbac.PermAttemptGrade)
}

// Mount registers the protected course routes on r. Callers install the
// JWT middleware first.
func (h *Handlers) Mount(r chi.Router) {
	if h.Checker == nil {
		h.Checker = rbac.NewChecker(nil)
	}
	if h.Log == nil {
		h.Log = slog.Default()
	}

	r.With(h.Checker.Require(rbac.PermAttemptStart)).Post("/assessments/{assessmentID}/attempts", h.StartAttempt)
	r.With(h.Checker.Require(rbac.PermAttemptStart)).Get("/assessments/{assessmentID}/eligibility", h.Eligibility)

	r.With(h.Checker.Require(rbac.PermAttemptView)).Get("/attempts/{attemptID}", h.GetAttempt)
	r.With(h.Checker.Require(rbac.PermAttemptView)).Get("/attempts/{attemptID}/files/{questionID}", h.AnswerFile)
	r.With(h.Checker.Require(rbac.PermAttemptSubmit)).Post("/attempts/{attemptID}/submit", h.SubmitAttempt)
	r.With(h.Checker.Require(rbac.PermAttemptComplete)).Post("/attempts/{attemptID}/complete", h.CompleteAttempt)
	r.With(h.Checker.Require(rbac.PermAttemptRecalculate)).Post("/attempts/{attemptID}/recalculate", h.RecalculateAttempt)
	r.With(h.Checker.Require(rbac.PermAttemptGrade)).Post("/answers/{answerID}/grade", h.GradeAnswer)

	r.With(h.Checker.Require(rbac.PermEnrollSelf)).Post("/courses/{courseID}/enrollments", h.Enroll)
	r.With(h.Checker.Require(rbac.PermInvitationAccept)).Post("/invitations/{token}/accept", h.AcceptInvitation)
	r.With(h.Checker.Require(rbac.PermEnrollmentDrop)).Post("/enrollments/{enrollmentID}/drop", h.Drop)
	r.With(h.Checker.Require(rbac.PermEnrollmentReenroll)).Post("/enrollments/{enrollmentID}/reenroll", h.Reenroll)
	r.With(h.Checker.RequireAny(rbac.PermLessonProgress, rbac.PermEnrollmentRecalculate)).Post("/enrollments/{enrollmentID}/lessons/{lessonID}/progress", h.LessonProgress)
	r.With(h.Checker.Require(rbac.PermEnrollmentRecalculate)).Post("/enrollments/{enrollmentID}/recalculate", h.RecalculateEnrollment)
}
