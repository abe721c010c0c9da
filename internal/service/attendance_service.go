package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/still-there/attendance-api/internal/dto"
	"github.com/still-there/attendance-api/internal/models"
	appErrors "github.com/still-there/attendance-api/pkg/errors"
)

type attendanceSessionReader interface {
	FindByRef(ctx context.Context, ref string) (*models.Session, error)
	ActiveRun(ctx context.Context, sessionID string) (*models.SessionRun, error)
}

type attendanceRepository interface {
	ExistsForRun(ctx context.Context, runID string, studentID *string, studentName string) (bool, error)
	Insert(ctx context.Context, record *models.AttendanceLog) (*models.AttendanceLog, error)
	ListForOwner(ctx context.Context, filter models.AttendanceLogFilter) ([]models.AttendanceLogRecord, int, error)
	UpdateStatus(ctx context.Context, ownerID, logID string, status models.AttendanceLogStatus) (bool, error)
}

// AttendancePublisher fans accepted submissions out to live listeners.
type AttendancePublisher interface {
	Publish(ctx context.Context, event dto.AttendanceEvent) error
}

// LegacyMirror copies accepted submissions into the compatibility table.
type LegacyMirror interface {
	Mirror(record models.AttendanceLog)
}

type dashboardInvalidator interface {
	InvalidateDashboard(ctx context.Context, ownerID string)
}

type submissionObserver interface {
	ObserveSubmission(outcome string)
}

// AttendanceService accepts scan submissions and serves the instructor's
// review operations. Submission is the hot path: every check that can reject
// runs before the insert, and the insert itself is the concurrency-safe
// duplicate guard of last resort.
type AttendanceService struct {
	sessions  attendanceSessionReader
	repo      attendanceRepository
	publisher AttendancePublisher
	mirror    LegacyMirror
	dashboard dashboardInvalidator
	observer  submissionObserver
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAttendanceService constructs the attendance service. Publisher, mirror,
// dashboard and observer are optional side channels; nil disables each.
func NewAttendanceService(
	sessions attendanceSessionReader,
	repo attendanceRepository,
	publisher AttendancePublisher,
	mirror LegacyMirror,
	dashboard dashboardInvalidator,
	observer submissionObserver,
	validate *validator.Validate,
	logger *zap.Logger,
) *AttendanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttendanceService{
		sessions:  sessions,
		repo:      repo,
		publisher: publisher,
		mirror:    mirror,
		dashboard: dashboard,
		observer:  observer,
		validator: validate,
		logger:    logger,
	}
}

// RegisterValidators installs the custom validation tags this service uses.
func RegisterValidators(validate *validator.Validate) error {
	return validate.RegisterValidation("attendance_status", func(fl validator.FieldLevel) bool {
		return models.AttendanceLogStatus(fl.Field().String()).Valid()
	})
}

// Submit records a student's attendance against the session's current run.
// Rejections are checked in a fixed order: unknown session, closed session,
// paused or run-less session, then duplicate identity within the run. On any
// rejection the caller receives the live session state to relay back to the
// scanning client.
func (s *AttendanceService) Submit(ctx context.Context, ref string, req dto.SubmitAttendanceRequest, proofURL *string) (*dto.SubmitAttendanceResult, *models.SessionState, error) {
	req.StudentName = strings.TrimSpace(req.StudentName)
	req.StudentID = strings.TrimSpace(req.StudentID)
	if err := s.validator.Struct(req); err != nil {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "student name is required")
	}

	session, err := s.sessions.FindByRef(ctx, ref)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.observe("not_found")
			return nil, nil, appErrors.ErrSessionNotFound
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}

	state := &models.SessionState{
		IsActive: session.Status == models.SessionStatusActive,
		IsPaused: session.IsPaused,
	}
	if !state.IsActive {
		s.observe("closed")
		return nil, state, appErrors.ErrSessionClosed
	}
	if state.IsPaused {
		s.observe("paused")
		return nil, state, appErrors.ErrAttendancePaused
	}

	run, err := s.sessions.ActiveRun(ctx, session.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Active and unpaused but no open run: treat as paused so the
			// client backs off rather than erroring.
			s.observe("paused")
			return nil, state, appErrors.ErrAttendancePaused
		}
		return nil, state, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load current run")
	}
	state.ActiveRunNumber = &run.RunNumber

	var studentID *string
	if req.StudentID != "" {
		studentID = &req.StudentID
	}
	exists, err := s.repo.ExistsForRun(ctx, run.ID, studentID, req.StudentName)
	if err != nil {
		return nil, state, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check for duplicates")
	}
	if exists {
		s.observe("duplicate")
		return nil, state, appErrors.ErrDuplicateAttendance
	}

	record := &models.AttendanceLog{
		SessionID:   session.ID,
		RunID:       &run.ID,
		StudentName: req.StudentName,
		StudentID:   studentID,
		ProofURL:    proofURL,
	}
	stored, err := s.repo.Insert(ctx, record)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Lost the race against a concurrent identical submission.
			s.observe("duplicate")
			return nil, state, appErrors.ErrDuplicateAttendance
		}
		return nil, state, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record attendance")
	}
	s.observe("accepted")
	s.afterInsert(ctx, session, run, stored)

	return &dto.SubmitAttendanceResult{Record: *stored, RunNumber: run.RunNumber}, state, nil
}

// afterInsert runs the side channels for an accepted record. None of them can
// fail the submission.
func (s *AttendanceService) afterInsert(ctx context.Context, session *models.Session, run *models.SessionRun, record *models.AttendanceLog) {
	if s.dashboard != nil {
		s.dashboard.InvalidateDashboard(ctx, session.UserID)
	}
	if s.publisher != nil {
		event := dto.AttendanceEvent{
			RecordID:    record.ID,
			SessionID:   record.SessionID,
			RunID:       run.ID,
			RunNumber:   run.RunNumber,
			StudentName: record.StudentName,
			SubmittedAt: record.SubmittedAt.Format(time.RFC3339),
		}
		if err := s.publisher.Publish(ctx, event); err != nil {
			s.logger.Warn("failed to publish attendance event",
				zap.String("record_id", record.ID),
				zap.Error(err),
			)
		}
	}
	if s.mirror != nil {
		s.mirror.Mirror(*record)
	}
}

// List returns records across the instructor's sessions for review.
func (s *AttendanceService) List(ctx context.Context, filter models.AttendanceLogFilter) ([]models.AttendanceLogRecord, *models.Pagination, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 50
	}
	rows, total, err := s.repo.ListForOwner(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attendance")
	}
	if rows == nil {
		rows = []models.AttendanceLogRecord{}
	}
	return rows, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// UpdateStatus moderates one owned record.
func (s *AttendanceService) UpdateStatus(ctx context.Context, ownerID, logID string, req dto.UpdateAttendanceStatusRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Clone(appErrors.ErrValidation, "status must be pending, approved or rejected")
	}
	updated, err := s.repo.UpdateStatus(ctx, ownerID, logID, models.AttendanceLogStatus(req.Status))
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update attendance status")
	}
	if !updated {
		return appErrors.Clone(appErrors.ErrNotFound, "attendance record not found")
	}
	return nil
}

func (s *AttendanceService) observe(outcome string) {
	if s.observer != nil {
		s.observer.ObserveSubmission(outcome)
	}
}
