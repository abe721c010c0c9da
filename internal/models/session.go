package models

import "time"

// SessionStatus is the lifecycle status of a session's QR code.
type SessionStatus string

const (
	SessionStatusActive   SessionStatus = "active"
	SessionStatusInactive SessionStatus = "inactive"
)

// Valid returns true when the status is a supported value.
func (s SessionStatus) Valid() bool {
	return s == SessionStatusActive || s == SessionStatusInactive
}

// Session represents one teaching event owned by an instructor. The QR token
// is the legacy public scan key; newer clients scan by session id directly.
type Session struct {
	ID            string        `db:"id" json:"id"`
	UserID        string        `db:"user_id" json:"user_id"`
	SessionName   string        `db:"session_name" json:"session_name"`
	Instructor    string        `db:"instructor" json:"instructor"`
	Class         string        `db:"class" json:"class"`
	Date          string        `db:"date" json:"date"`
	StartTime     string        `db:"start_time" json:"start_time"`
	EndTime       string        `db:"end_time" json:"end_time"`
	Status        SessionStatus `db:"status" json:"status"`
	IsPaused      bool          `db:"is_paused" json:"is_paused"`
	QRToken       string        `db:"qr_token" json:"qr_token"`
	CoverImageURL *string       `db:"cover_image_url" json:"cover_image_url,omitempty"`
	CreatedAt     time.Time     `db:"created_at" json:"created_at"`
}

// SessionState is the polled reconciliation snapshot scanning clients use to
// keep their view of an open session current. It is deliberately decoupled
// from the insert-event feed, which only carries new records.
type SessionState struct {
	IsActive        bool `json:"is_active"`
	IsPaused        bool `json:"is_paused"`
	ActiveRunNumber *int `json:"active_run_number"`
}

// SessionFilter scopes history listings.
type SessionFilter struct {
	UserID   string
	Page     int
	PageSize int
}
