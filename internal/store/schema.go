package store

import (
	"context"
	"fmt"
)

// Statements are portable between Postgres and SQLite. Timestamps are always written in UTC.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS attendance_sessions (
		id             TEXT PRIMARY KEY,
		token          TEXT NOT NULL UNIQUE,
		teacher_id     TEXT NOT NULL,
		created_at     TIMESTAMP NOT NULL,
		expires_at     TIMESTAMP NOT NULL,
		active         BOOLEAN NOT NULL DEFAULT TRUE,
		deactivated_at TIMESTAMP NULL
	)`,
	// one open window per teacher
	`CREATE UNIQUE INDEX IF NOT EXISTS attendance_sessions_one_active
		ON attendance_sessions (teacher_id) WHERE active`,
	`CREATE INDEX IF NOT EXISTS attendance_sessions_teacher
		ON attendance_sessions (teacher_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS attendance_records (
		id          TEXT PRIMARY KEY,
		student_id  TEXT NOT NULL,
		session_id  TEXT NOT NULL REFERENCES attendance_sessions (id),
		status      TEXT NOT NULL,
		redeemed_at TIMESTAMP NOT NULL,
		UNIQUE (student_id, session_id)
	)`,
	`CREATE INDEX IF NOT EXISTS attendance_records_session
		ON attendance_records (session_id)`,
	`CREATE TABLE IF NOT EXISTS daily_attendance (
		student_id TEXT NOT NULL,
		day        DATE NOT NULL,
		status     TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		PRIMARY KEY (student_id, day)
	)`,
}

// Migrate applies the schema. Every statement is idempotent.
func (d *DB) Migrate(ctx context.Context) error {
	for i, stmt := range schema {
		if _, err := d.Client.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i, err)
		}
	}
	return nil
}
