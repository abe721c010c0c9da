package models

import "time"

// AttendanceLogStatus is the moderation state of a submitted record.
type AttendanceLogStatus string

const (
	AttendanceStatusPending  AttendanceLogStatus = "pending"
	AttendanceStatusApproved AttendanceLogStatus = "approved"
	AttendanceStatusRejected AttendanceLogStatus = "rejected"
)

// Valid returns true when the status is a supported value.
func (s AttendanceLogStatus) Valid() bool {
	switch s {
	case AttendanceStatusPending, AttendanceStatusApproved, AttendanceStatusRejected:
		return true
	default:
		return false
	}
}

// AttendanceLog is one student's submitted proof of presence. RunID is nil on
// legacy records that predate the run concept.
type AttendanceLog struct {
	ID          string              `db:"id" json:"id"`
	SessionID   string              `db:"session_id" json:"session_id"`
	RunID       *string             `db:"run_id" json:"run_id,omitempty"`
	StudentName string              `db:"student_name" json:"student_name"`
	StudentID   *string             `db:"student_id" json:"student_id,omitempty"`
	ProofURL    *string             `db:"proof_url" json:"proof_url,omitempty"`
	SubmittedAt time.Time           `db:"submitted_at" json:"submitted_at"`
	Status      AttendanceLogStatus `db:"status" json:"status"`
}

// AttendanceLogRecord joins a log with its parent session and run metadata
// for instructor review views.
type AttendanceLogRecord struct {
	AttendanceLog
	RunNumber   *int   `db:"run_number" json:"run_number,omitempty"`
	SessionName string `db:"session_name" json:"session_name"`
	Instructor  string `db:"instructor" json:"instructor"`
	Class       string `db:"class" json:"class"`
	Date        string `db:"date" json:"date"`
	StartTime   string `db:"start_time" json:"start_time"`
	EndTime     string `db:"end_time" json:"end_time"`
}

// AttendanceLogFilter scopes review listings.
type AttendanceLogFilter struct {
	OwnerID   string
	SessionID string
	RunID     string
	Status    *AttendanceLogStatus
	Page      int
	PageSize  int
}

// LegacyAttendanceRecord mirrors the pre-runs attendance table kept for
// consumers that have not migrated yet. Only the compatibility adapter
// writes it.
type LegacyAttendanceRecord struct {
	ID          string    `db:"id" json:"id"`
	SessionID   string    `db:"session_id" json:"session_id"`
	StudentName string    `db:"student_name" json:"student_name"`
	TimeIn      time.Time `db:"time_in" json:"time_in"`
	ProofImage  *string   `db:"proof_image" json:"proof_image,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
