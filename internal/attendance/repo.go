package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"schoolattendance/internal/store"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Repository persists attendance data in Postgres or SQLite.
type Repository struct {
	db         *sql.DB
	lockClause string
}

// NewRepository creates a repo.
func NewRepository(db *store.DB) *Repository {
	r := &Repository{db: db.Client}
	// SQLite has no row locks; its transactions are opened IMMEDIATE instead.
	if db.Driver == store.DriverPostgres {
		r.lockClause = " FOR UPDATE"
	}
	return r
}

// Tx exposes the statements that must run inside one transaction.
type Tx struct {
	tx         *sql.Tx
	lockClause string
}

// WithTx runs fn in a transaction, committing when fn returns nil and rolling back otherwise.
func (r *Repository) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(&Tx{tx: sqlTx, lockClause: r.lockClause}); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

const sessionColumns = `id, token, teacher_id, created_at, expires_at, active, deactivated_at`

func scanSession(row interface{ Scan(...any) error }) (*Session, error) {
	var s Session
	var deactivated sql.NullTime
	if err := row.Scan(&s.ID, &s.Token, &s.TeacherID, &s.CreatedAt, &s.ExpiresAt, &s.Active, &deactivated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if deactivated.Valid {
		t := deactivated.Time
		s.DeactivatedAt = &t
	}
	return &s, nil
}

// DeactivateTeacherSessions closes every open window of a teacher and returns how many it closed.
func (t *Tx) DeactivateTeacherSessions(ctx context.Context, teacherID string, at time.Time) (int64, error) {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE attendance_sessions
		SET active = FALSE, deactivated_at = $1
		WHERE teacher_id = $2 AND active
	`, at, teacherID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// InsertSession writes a new session.
func (t *Tx) InsertSession(ctx context.Context, s Session) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO attendance_sessions (id, token, teacher_id, created_at, expires_at, active)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, s.ID, s.Token, s.TeacherID, s.CreatedAt, s.ExpiresAt, s.Active)
	return err
}

// SessionByToken loads and locks a session; nil when the token is unknown.
func (t *Tx) SessionByToken(ctx context.Context, token string) (*Session, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM attendance_sessions WHERE token = $1`+t.lockClause, token)
	return scanSession(row)
}

// ActiveSession loads and locks the teacher's open session; nil when there is none.
func (t *Tx) ActiveSession(ctx context.Context, teacherID string) (*Session, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM attendance_sessions WHERE teacher_id = $1 AND active`+t.lockClause, teacherID)
	return scanSession(row)
}

// DeactivateSession closes a single session.
func (t *Tx) DeactivateSession(ctx context.Context, id string, at time.Time) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE attendance_sessions
		SET active = FALSE, deactivated_at = $1
		WHERE id = $2 AND active
	`, at, id)
	return err
}

// HasRecord reports whether the student already redeemed the session.
func (t *Tx) HasRecord(ctx context.Context, studentID, sessionID string) (bool, error) {
	var one int
	err := t.tx.QueryRowContext(ctx, `
		SELECT 1 FROM attendance_records WHERE student_id = $1 AND session_id = $2
	`, studentID, sessionID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// InsertRecord writes a record unless one exists for the pair; it reports whether a row was written.
func (t *Tx) InsertRecord(ctx context.Context, rec Record) (bool, error) {
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO attendance_records (id, student_id, session_id, status, redeemed_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (student_id, session_id) DO NOTHING
	`, rec.ID, rec.StudentID, rec.SessionID, rec.Status, rec.RedeemedAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// UpsertDaily sets a student's status for a day. An existing row with the same status is left untouched.
func (t *Tx) UpsertDaily(ctx context.Context, studentID string, day time.Time, status string, at time.Time) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO daily_attendance (student_id, day, status, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (student_id, day) DO UPDATE SET
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at
		WHERE daily_attendance.status <> EXCLUDED.status
	`, studentID, day, status, at)
	return err
}

// CountRecords returns how many students redeemed a session.
func (t *Tx) CountRecords(ctx context.Context, sessionID string) (int, error) {
	return countRecords(ctx, t.tx, sessionID)
}

func countRecords(ctx context.Context, q querier, sessionID string) (int, error) {
	var n int
	err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM attendance_records WHERE session_id = $1`, sessionID).Scan(&n)
	return n, err
}

// SessionByToken returns a session without locking it; nil when unknown.
func (r *Repository) SessionByToken(ctx context.Context, token string) (*Session, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM attendance_sessions WHERE token = $1`, token)
	return scanSession(row)
}

// ListRecords returns a session's records in redemption order.
func (r *Repository) ListRecords(ctx context.Context, sessionID string) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, student_id, session_id, status, redeemed_at
		FROM attendance_records
		WHERE session_id = $1
		ORDER BY redeemed_at, student_id
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.StudentID, &rec.SessionID, &rec.Status, &rec.RedeemedAt); err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

// DailyHistory returns a student's daily statuses, newest first.
func (r *Repository) DailyHistory(ctx context.Context, studentID string) ([]DailyAttendance, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT student_id, day, status, updated_at
		FROM daily_attendance
		WHERE student_id = $1
		ORDER BY day DESC
	`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []DailyAttendance
	for rows.Next() {
		var d DailyAttendance
		if err := rows.Scan(&d.StudentID, &d.Day, &d.Status, &d.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

// CountActiveSessions returns how many open windows a teacher has.
func (r *Repository) CountActiveSessions(ctx context.Context, teacherID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM attendance_sessions WHERE teacher_id = $1 AND active
	`, teacherID).Scan(&n)
	return n, err
}
