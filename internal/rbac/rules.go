package rbac

const (
	PermAttemptStart       = "attempt:start"
	PermAttemptSubmit      = "attempt:submit"
	PermAttemptView        = "attempt:view"
	PermAttemptGrade       = "attempt:grade"
	PermAttemptComplete    = "attempt:complete"
	PermAttemptRecalculate = "attempt:recalculate"

	PermEnrollSelf            = "enrollment:enroll"
	PermEnrollmentDrop        = "enrollment:drop"
	PermEnrollmentReenroll    = "enrollment:reenroll"
	PermEnrollmentRecalculate = "enrollment:recalculate"
	PermLessonProgress        = "lesson:progress"
	PermInvitationAccept      = "invitation:accept"
)

// RolePermissions is the default policy.
var RolePermissions = map[string][]string{
	"student": {
		PermAttemptStart,
		PermAttemptSubmit,
		PermAttemptView,
		PermEnrollSelf,
		PermEnrollmentDrop,
		PermEnrollmentReenroll,
		PermLessonProgress,
		PermInvitationAccept,
	},
	"teacher": {
		PermAttemptView,
		PermAttemptGrade,
		PermAttemptComplete,
		PermAttemptRecalculate,
		"enrollment:*",
	},
	"admin": {
		"*", // everything
	},
}
