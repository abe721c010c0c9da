package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/still-there/attendance-api/internal/dto"
	"github.com/still-there/attendance-api/internal/models"
	appErrors "github.com/still-there/attendance-api/pkg/errors"
	"github.com/still-there/attendance-api/pkg/export"
)

var clockPattern = regexp.MustCompile(`^\d{2}:\d{2}$`)

const dashboardCacheTTL = 10 * time.Second

type sessionRepository interface {
	CreateActive(ctx context.Context, session *models.Session) (*models.Session, *models.SessionRun, error)
	FindByID(ctx context.Context, id string) (*models.Session, error)
	FindByRef(ctx context.Context, ref string) (*models.Session, error)
	ActiveByOwner(ctx context.Context, userID string) (*models.Session, error)
	ListByOwner(ctx context.Context, filter models.SessionFilter) ([]models.Session, int, error)
	End(ctx context.Context, ownerID, sessionID string) (bool, error)
	Pause(ctx context.Context, ownerID, sessionID string) (bool, *models.SessionRun, error)
	Resume(ctx context.Context, ownerID, sessionID string) (bool, *models.SessionRun, error)
	ActiveRun(ctx context.Context, sessionID string) (*models.SessionRun, error)
	RunsBySession(ctx context.Context, sessionID string) ([]models.SessionRun, error)
}

type sessionAttendanceReader interface {
	ListBySession(ctx context.Context, sessionID string) ([]models.AttendanceLog, error)
}

// DashboardCache is the slice of the cache layer the dashboard view uses.
type DashboardCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// SessionService implements the session lifecycle: creating the single live
// session per instructor, ending it, pausing and resuming numbered runs, and
// the read views built on top.
type SessionService struct {
	repo       sessionRepository
	attendance sessionAttendanceReader
	cache      DashboardCache
	validator  *validator.Validate
	logger     *zap.Logger
	baseURL    string
}

// NewSessionService constructs the session service.
func NewSessionService(repo sessionRepository, attendance sessionAttendanceReader, cache DashboardCache, validate *validator.Validate, logger *zap.Logger, baseURL string) *SessionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{
		repo:       repo,
		attendance: attendance,
		cache:      cache,
		validator:  validate,
		logger:     logger,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// ScanURL builds the public scannable link for a session.
func (s *SessionService) ScanURL(sessionID string) string {
	return s.baseURL + "/scan/" + sessionID
}

// Create validates the fields and opens a new active session with run #1,
// superseding any previous active session the owner has.
func (s *SessionService) Create(ctx context.Context, ownerID string, req dto.CreateSessionRequest, coverImageURL *string) (*dto.SessionResponse, error) {
	req.SessionName = strings.TrimSpace(req.SessionName)
	req.Instructor = strings.TrimSpace(req.Instructor)
	req.Class = strings.TrimSpace(req.Class)
	req.Date = strings.TrimSpace(req.Date)
	req.StartTime = strings.TrimSpace(req.StartTime)
	req.EndTime = strings.TrimSpace(req.EndTime)

	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "please complete all required fields")
	}
	if _, err := time.Parse("2006-01-02", req.Date); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid date, expected YYYY-MM-DD")
	}
	if req.Date < time.Now().Format("2006-01-02") {
		return nil, appErrors.Clone(appErrors.ErrValidation, "session date cannot be earlier than today")
	}
	start, err := parseClock(req.StartTime)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid start_time, expected HH:MM")
	}
	end, err := parseClock(req.EndTime)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid end_time, expected HH:MM")
	}
	if !end.After(start) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end_time must be after start_time")
	}

	session := &models.Session{
		UserID:        ownerID,
		SessionName:   req.SessionName,
		Instructor:    req.Instructor,
		Class:         req.Class,
		Date:          req.Date,
		StartTime:     req.StartTime,
		EndTime:       req.EndTime,
		CoverImageURL: coverImageURL,
	}
	stored, run, err := s.repo.CreateActive(ctx, session)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create session")
	}
	s.invalidateDashboard(ctx, ownerID)
	s.logger.Info("session created",
		zap.String("session_id", stored.ID),
		zap.String("owner_id", ownerID),
		zap.Int("run_number", run.RunNumber),
	)
	return &dto.SessionResponse{Session: *stored, ScanURL: s.ScanURL(stored.ID)}, nil
}

// End closes an owned session. Ending an already inactive session is a
// success no-op; the response says which of the two happened.
func (s *SessionService) End(ctx context.Context, ownerID, sessionID string) (*dto.EndSessionResponse, error) {
	ended, err := s.repo.End(ctx, ownerID, sessionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to end session")
	}
	if !ended {
		if _, err := s.ownedSession(ctx, ownerID, sessionID); err != nil {
			return nil, err
		}
		return &dto.EndSessionResponse{Ended: false, AlreadyInactive: true}, nil
	}
	s.invalidateDashboard(ctx, ownerID)
	return &dto.EndSessionResponse{Ended: true}, nil
}

// SetPause toggles attendance logging on an active session. Pausing ends the
// open run; resuming opens the next numbered run.
func (s *SessionService) SetPause(ctx context.Context, ownerID, sessionID string, paused bool) (*dto.PauseSessionResponse, error) {
	var (
		changed bool
		run     *models.SessionRun
		err     error
	)
	if paused {
		changed, run, err = s.repo.Pause(ctx, ownerID, sessionID)
	} else {
		changed, run, err = s.repo.Resume(ctx, ownerID, sessionID)
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update session pause state")
	}
	if !changed {
		session, err := s.ownedSession(ctx, ownerID, sessionID)
		if err != nil {
			return nil, err
		}
		if session.Status != models.SessionStatusActive {
			return nil, appErrors.Clone(appErrors.ErrSessionClosed, "session is closed")
		}
		// Active but unchanged: the flag already had the requested value.
		return &dto.PauseSessionResponse{Paused: session.IsPaused}, nil
	}
	s.invalidateDashboard(ctx, ownerID)
	return &dto.PauseSessionResponse{Paused: paused, Run: run}, nil
}

// Dashboard returns the owner's live view: active session, its current run
// and all attendance submitted so far.
func (s *SessionService) Dashboard(ctx context.Context, ownerID string) (*dto.DashboardResponse, bool, error) {
	key := dashboardCacheKey(ownerID)
	if s.cache != nil {
		var cached dto.DashboardResponse
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return &cached, true, nil
		}
	}

	session, err := s.repo.ActiveByOwner(ctx, ownerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &dto.DashboardResponse{Attendance: []models.AttendanceLog{}}, false, nil
		}
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load active session")
	}

	resp := &dto.DashboardResponse{Session: session, ScanURL: s.ScanURL(session.ID)}
	run, err := s.repo.ActiveRun(ctx, session.ID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load current run")
	}
	resp.CurrentRun = run

	attendance, err := s.attendance.ListBySession(ctx, session.ID)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance")
	}
	if attendance == nil {
		attendance = []models.AttendanceLog{}
	}
	resp.Attendance = attendance

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, resp, dashboardCacheTTL); err != nil {
			s.logger.Warn("failed to cache dashboard", zap.Error(err))
		}
	}
	return resp, false, nil
}

// History lists the owner's sessions newest first.
func (s *SessionService) History(ctx context.Context, ownerID string, page, pageSize int) ([]models.Session, *models.Pagination, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	rows, total, err := s.repo.ListByOwner(ctx, models.SessionFilter{UserID: ownerID, Page: page, PageSize: pageSize})
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sessions")
	}
	return rows, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// State resolves a public scan reference into the reconciliation snapshot
// scanning clients poll. Session not found maps to the not-found rejection.
func (s *SessionService) State(ctx context.Context, ref string) (*models.Session, *models.SessionState, error) {
	session, err := s.repo.FindByRef(ctx, ref)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.ErrSessionNotFound
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	state := &models.SessionState{
		IsActive: session.Status == models.SessionStatusActive,
		IsPaused: session.IsPaused,
	}
	if state.IsActive {
		run, err := s.repo.ActiveRun(ctx, session.ID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load run state")
		}
		if run != nil {
			state.ActiveRunNumber = &run.RunNumber
		}
	}
	return session, state, nil
}

// Attendance returns one owned session's records grouped by run.
func (s *SessionService) Attendance(ctx context.Context, ownerID, sessionID string) (*dto.SessionAttendanceResponse, error) {
	session, err := s.ownedSession(ctx, ownerID, sessionID)
	if err != nil {
		return nil, err
	}
	runs, err := s.repo.RunsBySession(ctx, sessionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list runs")
	}
	records, err := s.attendance.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attendance")
	}

	byRun := make(map[string][]models.AttendanceLog)
	var legacy []models.AttendanceLog
	for _, record := range records {
		if record.RunID == nil {
			legacy = append(legacy, record)
			continue
		}
		byRun[*record.RunID] = append(byRun[*record.RunID], record)
	}

	resp := &dto.SessionAttendanceResponse{Session: *session, Legacy: legacy}
	for _, run := range runs {
		entries := byRun[run.ID]
		if entries == nil {
			entries = []models.AttendanceLog{}
		}
		resp.Runs = append(resp.Runs, dto.RunAttendance{Run: run, Records: entries})
	}
	return resp, nil
}

// ExportSheet flattens a session's attendance into tabular form for the CSV
// and PDF exporters.
func (s *SessionService) ExportSheet(ctx context.Context, ownerID, sessionID string) (*export.Sheet, error) {
	view, err := s.Attendance(ctx, ownerID, sessionID)
	if err != nil {
		return nil, err
	}
	sheet := &export.Sheet{
		Title:   fmt.Sprintf("%s - %s", view.Session.SessionName, view.Session.Date),
		Columns: []string{"Run", "Student Name", "Student ID", "Submitted At", "Status"},
	}
	appendRow := func(runLabel string, record models.AttendanceLog) {
		studentID := ""
		if record.StudentID != nil {
			studentID = *record.StudentID
		}
		sheet.Rows = append(sheet.Rows, []string{
			runLabel,
			record.StudentName,
			studentID,
			record.SubmittedAt.Format(time.RFC3339),
			string(record.Status),
		})
	}
	for _, runView := range view.Runs {
		label := fmt.Sprintf("%d", runView.Run.RunNumber)
		for _, record := range runView.Records {
			appendRow(label, record)
		}
	}
	for _, record := range view.Legacy {
		appendRow("-", record)
	}
	return sheet, nil
}

// InvalidateDashboard drops the cached dashboard for an owner. The attendance
// service calls it after accepting a submission.
func (s *SessionService) InvalidateDashboard(ctx context.Context, ownerID string) {
	s.invalidateDashboard(ctx, ownerID)
}

func (s *SessionService) invalidateDashboard(ctx context.Context, ownerID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, dashboardCacheKey(ownerID)); err != nil {
		s.logger.Warn("failed to invalidate dashboard cache", zap.Error(err))
	}
}

// ownedSession loads a session and enforces ownership without revealing
// whether the id exists to non-owners.
func (s *SessionService) ownedSession(ctx context.Context, ownerID, sessionID string) (*models.Session, error) {
	session, err := s.repo.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	if session.UserID != ownerID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
	}
	return session, nil
}

func dashboardCacheKey(ownerID string) string {
	return "dashboard:" + ownerID
}

func parseClock(raw string) (time.Time, error) {
	if !clockPattern.MatchString(raw) {
		return time.Time{}, fmt.Errorf("invalid clock value %q", raw)
	}
	return time.Parse("15:04", raw)
}
