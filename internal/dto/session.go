package dto

import "github.com/still-there/attendance-api/internal/models"

// CreateSessionRequest carries the instructor-supplied session fields. The
// cover image arrives as a separate multipart part, not in this payload.
type CreateSessionRequest struct {
	SessionName string `json:"session_name" form:"session_name" validate:"required"`
	Instructor  string `json:"instructor" form:"instructor" validate:"required"`
	Class       string `json:"class" form:"class" validate:"required"`
	Date        string `json:"date" form:"date" validate:"required"`
	StartTime   string `json:"start_time" form:"start_time" validate:"required"`
	EndTime     string `json:"end_time" form:"end_time" validate:"required"`
}

// SessionResponse echoes a created or fetched session plus the scannable
// link presentation layers turn into a QR image.
type SessionResponse struct {
	Session models.Session `json:"session"`
	ScanURL string         `json:"scan_url"`
}

// PauseSessionRequest toggles attendance logging on an active session.
type PauseSessionRequest struct {
	Paused bool `json:"paused"`
}

// PauseSessionResponse reports the run affected by a pause or resume. Run is
// the ended run when pausing and the freshly created run when resuming.
type PauseSessionResponse struct {
	Paused bool               `json:"paused"`
	Run    *models.SessionRun `json:"run,omitempty"`
}

// EndSessionResponse acknowledges an end call. AlreadyInactive distinguishes
// the idempotent no-op from the call that actually closed the session.
type EndSessionResponse struct {
	Ended           bool `json:"ended"`
	AlreadyInactive bool `json:"already_inactive"`
}

// DashboardResponse is the instructor's active-session pull: the live
// session, its current run and the attendance submitted so far.
type DashboardResponse struct {
	Session    *models.Session        `json:"session"`
	CurrentRun *models.SessionRun     `json:"current_run,omitempty"`
	Attendance []models.AttendanceLog `json:"attendance"`
	ScanURL    string                 `json:"scan_url,omitempty"`
}

// SessionAttendanceResponse groups one session's records by run.
type SessionAttendanceResponse struct {
	Session models.Session         `json:"session"`
	Runs    []RunAttendance        `json:"runs"`
	Legacy  []models.AttendanceLog `json:"legacy,omitempty"`
}

// RunAttendance pairs a run with its submitted records.
type RunAttendance struct {
	Run     models.SessionRun      `json:"run"`
	Records []models.AttendanceLog `json:"records"`
}
