package model

// Permission represents a string code for a specific system action.
type Permission string

const (
	// PermissionAttemptsResume allows answering resume requests.
	PermissionAttemptsResume Permission = "attempts:resume"

	// PermissionAttemptsGrade allows manual grading and finalizing attempts.
	PermissionAttemptsGrade Permission = "attempts:grade"

	// PermissionAttemptsMonitor allows watching the live exam monitor.
	PermissionAttemptsMonitor Permission = "attempts:monitor"

	// PermissionExamsPublish allows re-warming published exam definitions.
	PermissionExamsPublish Permission = "exams:publish"
)

// AllPermissions is a slice of all available permissions.
var AllPermissions = []Permission{
	PermissionAttemptsResume,
	PermissionAttemptsGrade,
	PermissionAttemptsMonitor,
	PermissionExamsPublish,
}
