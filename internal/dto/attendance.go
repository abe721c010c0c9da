package dto

// UpdateAttendanceStatusRequest moderates a submitted record.
type UpdateAttendanceStatusRequest struct {
	Status string `json:"status" validate:"required,attendance_status"`
}

// AttendanceEvent is the payload published on the insert feed when a record
// lands. Consumers de-duplicate on RecordID; ordering is not guaranteed.
type AttendanceEvent struct {
	RecordID    string `json:"record_id"`
	SessionID   string `json:"session_id"`
	RunID       string `json:"run_id,omitempty"`
	RunNumber   int    `json:"run_number,omitempty"`
	StudentName string `json:"student_name"`
	SubmittedAt string `json:"submitted_at"`
}
