package dto

import "github.com/still-there/attendance-api/internal/models"

// ScanSessionResponse is the public view of a session returned to a scanning
// student, including the state snapshot the client re-polls on an interval.
type ScanSessionResponse struct {
	ID          string              `json:"id"`
	SessionName string              `json:"session_name"`
	Instructor  string              `json:"instructor"`
	Class       string              `json:"class"`
	Date        string              `json:"date"`
	StartTime   string              `json:"start_time"`
	EndTime     string              `json:"end_time"`
	State       models.SessionState `json:"state"`
}

// SubmitAttendanceRequest carries the student's form fields; the proof image
// is a multipart file part handled by the handler.
type SubmitAttendanceRequest struct {
	StudentName string `form:"student_name" validate:"required"`
	StudentID   string `form:"student_id"`
}

// SubmitAttendanceResult reports the outcome of a submission. On rejection
// the handler sends State in the response meta instead.
type SubmitAttendanceResult struct {
	Record    models.AttendanceLog `json:"record"`
	RunNumber int                  `json:"run_number"`
}
