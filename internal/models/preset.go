package models

import "time"

// SessionPreset is a reusable template for prefilling a new session's fields.
// Presets carry no lifecycle state of their own.
type SessionPreset struct {
	ID          string    `db:"id" json:"id"`
	UserID      string    `db:"user_id" json:"user_id"`
	SessionName string    `db:"session_name" json:"session_name"`
	Instructor  string    `db:"instructor" json:"instructor"`
	Class       string    `db:"class" json:"class"`
	StartTime   string    `db:"start_time" json:"start_time"`
	EndTime     string    `db:"end_time" json:"end_time"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
