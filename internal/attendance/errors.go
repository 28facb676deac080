package attendance

import "errors"

var (
	// ErrInvalidToken means the token does not identify a session (or not one the caller owns).
	ErrInvalidToken = errors.New("invalid session token")
	// ErrSessionInactive means the session was superseded or already closed.
	ErrSessionInactive = errors.New("session expired (inactive)")
	// ErrSessionTimedOut means the session's window passed; it is closed by this call.
	ErrSessionTimedOut = errors.New("session expired (timeout)")

	ErrNoActiveSession = errors.New("no active session")
	ErrIssueConflict   = errors.New("another session is being issued for this teacher")
	ErrTeacherRequired = errors.New("teacher id required")
	ErrStudentRequired = errors.New("student id required")
	ErrInvalidEntry    = errors.New("invalid attendance entry")
)
