package models

import "time"

// RunStatus is the lifecycle status of an attendance-taking window.
type RunStatus string

const (
	RunStatusActive RunStatus = "active"
	RunStatusEnded  RunStatus = "ended"
)

// SessionRun is a numbered attendance window inside a session. Pausing ends
// the active run; resuming creates the next one. At most one run per session
// is active at any time, enforced by a partial unique index.
type SessionRun struct {
	ID        string     `db:"id" json:"id"`
	SessionID string     `db:"session_id" json:"session_id"`
	RunNumber int        `db:"run_number" json:"run_number"`
	Status    RunStatus  `db:"status" json:"status"`
	StartedAt time.Time  `db:"started_at" json:"started_at"`
	EndedAt   *time.Time `db:"ended_at" json:"ended_at,omitempty"`
	CreatedBy *string    `db:"created_by" json:"created_by,omitempty"`
}
