package attendance

import "time"

// Daily and per-session attendance statuses.
const (
	StatusPresent = "Present"
	StatusAbsent  = "Absent"
)

// EventAttendanceMarked is published with the student id as body after attendance changes.
const EventAttendanceMarked = "attendance.marked"

// Session is one QR collection window opened by a teacher.
type Session struct {
	ID            string
	Token         string
	TeacherID     string
	CreatedAt     time.Time
	ExpiresAt     time.Time
	Active        bool
	DeactivatedAt *time.Time
}

// Expired reports whether the window has closed at now.
func (s Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// Record is a student's redemption of one session.
type Record struct {
	ID         string    `json:"id"`
	StudentID  string    `json:"student_id"`
	SessionID  string    `json:"session_id"`
	Status     string    `json:"status"`
	RedeemedAt time.Time `json:"redeemed_at"`
}

// DailyAttendance is the per-student, per-day status shared with manual marking.
type DailyAttendance struct {
	StudentID string    `json:"student_id"`
	Day       time.Time `json:"day"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DailyEntry is one line of a teacher's manual daily marking.
type DailyEntry struct {
	StudentID string
	Status    string
}

// Outcome of a redemption that was accepted.
type Outcome string

const (
	OutcomeSuccess       Outcome = "success"
	OutcomeAlreadyMarked Outcome = "already_marked"
)

// Redemption is the result of a successful or idempotent redemption.
type Redemption struct {
	Outcome Outcome
	Session Session
	Record  Record
}

// CurrentSession is a teacher's open window with its live tally.
type CurrentSession struct {
	Session
	Remaining    time.Duration
	PresentCount int
}

// Summary aggregates a student's daily attendance.
type Summary struct {
	StudentID   string            `json:"student_id"`
	TotalDays   int               `json:"total_days"`
	PresentDays int               `json:"present_days"`
	Percentage  float64           `json:"percentage"`
	History     []DailyAttendance `json:"history"`
}
