package rbac

const (
	PermQuizView       = "quiz:view"
	PermQuizCreate     = "quiz:create"
	PermQuizAnalytics  = "quiz:analytics"
	PermAttemptStart   = "attempt:start"
	PermAttemptAnswer  = "attempt:answer"
	PermAttemptSubmit  = "attempt:submit"
	PermAttemptViewOwn = "attempt:view-own"
	PermAttemptViewAll = "attempt:view-all"
	PermAttemptRegrade = "attempt:regrade"
)

// Default policy. Ownership of a particular quiz is checked by the service.
var DefaultPolicy = Policy{
	"student": {
		PermQuizView,
		PermAttemptStart,
		PermAttemptAnswer,
		PermAttemptSubmit,
		PermAttemptViewOwn,
	},
	"teacher": {
		PermQuizView,
		PermQuizCreate,
		PermQuizAnalytics,
		"attempt:view-*",
		PermAttemptRegrade,
	},
	"admin": {
		"*", // everything
	},
}
