package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/still-there/attendance-api/internal/dto"
	"github.com/still-there/attendance-api/internal/models"
	appErrors "github.com/still-there/attendance-api/pkg/errors"
)

type fakeScanSessions struct {
	session *models.Session
	run     *models.SessionRun
	findErr error
	runErr  error
}

func (f *fakeScanSessions) FindByRef(context.Context, string) (*models.Session, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	return f.session, nil
}

func (f *fakeScanSessions) ActiveRun(context.Context, string) (*models.SessionRun, error) {
	if f.runErr != nil {
		return nil, f.runErr
	}
	return f.run, nil
}

type fakeAttendanceRepo struct {
	exists      bool
	insertErr   error
	inserted    *models.AttendanceLog
	listed      []models.AttendanceLogRecord
	updatedOK   bool
	lastRunID   string
	lastStudent *string
	lastName    string
}

func (f *fakeAttendanceRepo) ExistsForRun(_ context.Context, runID string, studentID *string, studentName string) (bool, error) {
	f.lastRunID = runID
	f.lastStudent = studentID
	f.lastName = studentName
	return f.exists, nil
}

func (f *fakeAttendanceRepo) Insert(_ context.Context, record *models.AttendanceLog) (*models.AttendanceLog, error) {
	if f.insertErr != nil {
		return nil, f.insertErr
	}
	record.ID = "log-1"
	record.Status = models.AttendanceStatusPending
	f.inserted = record
	return record, nil
}

func (f *fakeAttendanceRepo) ListForOwner(context.Context, models.AttendanceLogFilter) ([]models.AttendanceLogRecord, int, error) {
	return f.listed, len(f.listed), nil
}

func (f *fakeAttendanceRepo) UpdateStatus(context.Context, string, string, models.AttendanceLogStatus) (bool, error) {
	return f.updatedOK, nil
}

type fakePublisher struct {
	events []dto.AttendanceEvent
}

func (f *fakePublisher) Publish(_ context.Context, event dto.AttendanceEvent) error {
	f.events = append(f.events, event)
	return nil
}

type fakeMirror struct {
	records []models.AttendanceLog
}

func (f *fakeMirror) Mirror(record models.AttendanceLog) {
	f.records = append(f.records, record)
}

func activeScanSessions() *fakeScanSessions {
	return &fakeScanSessions{
		session: &models.Session{ID: "sess-1", UserID: "owner-1", Status: models.SessionStatusActive},
		run:     &models.SessionRun{ID: "run-2", SessionID: "sess-1", RunNumber: 2, Status: models.RunStatusActive},
	}
}

func submitRequest() dto.SubmitAttendanceRequest {
	return dto.SubmitAttendanceRequest{StudentName: "Alice", StudentID: "S-42"}
}

func TestAttendanceSubmitUnknownSession(t *testing.T) {
	sessions := &fakeScanSessions{findErr: sql.ErrNoRows}
	svc := NewAttendanceService(sessions, &fakeAttendanceRepo{}, nil, nil, nil, nil, nil, nil)

	_, state, err := svc.Submit(context.Background(), "nope", submitRequest(), nil)
	assert.True(t, appErrors.Is(err, appErrors.ErrSessionNotFound))
	assert.Nil(t, state)
}

func TestAttendanceSubmitClosedSession(t *testing.T) {
	sessions := activeScanSessions()
	sessions.session.Status = models.SessionStatusInactive
	svc := NewAttendanceService(sessions, &fakeAttendanceRepo{}, nil, nil, nil, nil, nil, nil)

	_, state, err := svc.Submit(context.Background(), "sess-1", submitRequest(), nil)
	assert.True(t, appErrors.Is(err, appErrors.ErrSessionClosed))
	require.NotNil(t, state)
	assert.False(t, state.IsActive)
}

func TestAttendanceSubmitPausedSession(t *testing.T) {
	sessions := activeScanSessions()
	sessions.session.IsPaused = true
	svc := NewAttendanceService(sessions, &fakeAttendanceRepo{}, nil, nil, nil, nil, nil, nil)

	_, state, err := svc.Submit(context.Background(), "sess-1", submitRequest(), nil)
	assert.True(t, appErrors.Is(err, appErrors.ErrAttendancePaused))
	require.NotNil(t, state)
	assert.True(t, state.IsPaused)
}

func TestAttendanceSubmitNoOpenRunBehavesAsPaused(t *testing.T) {
	sessions := activeScanSessions()
	sessions.runErr = sql.ErrNoRows
	svc := NewAttendanceService(sessions, &fakeAttendanceRepo{}, nil, nil, nil, nil, nil, nil)

	_, _, err := svc.Submit(context.Background(), "sess-1", submitRequest(), nil)
	assert.True(t, appErrors.Is(err, appErrors.ErrAttendancePaused))
}

func TestAttendanceSubmitDuplicateInRun(t *testing.T) {
	repo := &fakeAttendanceRepo{exists: true}
	svc := NewAttendanceService(activeScanSessions(), repo, nil, nil, nil, nil, nil, nil)

	_, state, err := svc.Submit(context.Background(), "sess-1", submitRequest(), nil)
	assert.True(t, appErrors.Is(err, appErrors.ErrDuplicateAttendance))
	require.NotNil(t, state)
	require.NotNil(t, state.ActiveRunNumber)
	assert.Equal(t, 2, *state.ActiveRunNumber)
}

func TestAttendanceSubmitDuplicateRace(t *testing.T) {
	repo := &fakeAttendanceRepo{insertErr: sql.ErrNoRows}
	svc := NewAttendanceService(activeScanSessions(), repo, nil, nil, nil, nil, nil, nil)

	_, _, err := svc.Submit(context.Background(), "sess-1", submitRequest(), nil)
	assert.True(t, appErrors.Is(err, appErrors.ErrDuplicateAttendance))
}

func TestAttendanceSubmitAccepted(t *testing.T) {
	repo := &fakeAttendanceRepo{}
	publisher := &fakePublisher{}
	mirror := &fakeMirror{}
	svc := NewAttendanceService(activeScanSessions(), repo, publisher, mirror, nil, nil, nil, nil)

	res, state, err := svc.Submit(context.Background(), "sess-1", submitRequest(), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.RunNumber)
	assert.Equal(t, models.AttendanceStatusPending, res.Record.Status)
	require.NotNil(t, state.ActiveRunNumber)

	require.NotNil(t, repo.inserted.RunID)
	assert.Equal(t, "run-2", *repo.inserted.RunID)
	require.Len(t, publisher.events, 1)
	assert.Equal(t, "Alice", publisher.events[0].StudentName)
	assert.Len(t, mirror.records, 1)
}

func TestAttendanceSubmitNameOnlyIdentity(t *testing.T) {
	repo := &fakeAttendanceRepo{}
	svc := NewAttendanceService(activeScanSessions(), repo, nil, nil, nil, nil, nil, nil)

	req := dto.SubmitAttendanceRequest{StudentName: "  Alice  "}
	_, _, err := svc.Submit(context.Background(), "sess-1", req, nil)
	require.NoError(t, err)
	assert.Nil(t, repo.lastStudent)
	assert.Equal(t, "Alice", repo.lastName)
	assert.Nil(t, repo.inserted.StudentID)
}

func TestAttendanceSubmitMissingName(t *testing.T) {
	svc := NewAttendanceService(activeScanSessions(), &fakeAttendanceRepo{}, nil, nil, nil, nil, nil, nil)

	_, _, err := svc.Submit(context.Background(), "sess-1", dto.SubmitAttendanceRequest{StudentName: "   "}, nil)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestAttendanceSubmitNewRunAllowsResubmission(t *testing.T) {
	// Same student, later run: the duplicate check is scoped to the run.
	repo := &fakeAttendanceRepo{exists: false}
	sessions := activeScanSessions()
	sessions.run = &models.SessionRun{ID: "run-3", SessionID: "sess-1", RunNumber: 3, Status: models.RunStatusActive}
	svc := NewAttendanceService(sessions, repo, nil, nil, nil, nil, nil, nil)

	res, _, err := svc.Submit(context.Background(), "sess-1", submitRequest(), nil)
	require.NoError(t, err)
	assert.Equal(t, 3, res.RunNumber)
	assert.Equal(t, "run-3", repo.lastRunID)
}

func TestAttendanceUpdateStatusValidation(t *testing.T) {
	svc := NewAttendanceService(activeScanSessions(), &fakeAttendanceRepo{}, nil, nil, nil, nil, newTestValidator(t), nil)

	err := svc.UpdateStatus(context.Background(), "owner-1", "log-1", dto.UpdateAttendanceStatusRequest{Status: "maybe"})
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestAttendanceUpdateStatusNotFound(t *testing.T) {
	repo := &fakeAttendanceRepo{updatedOK: false}
	svc := NewAttendanceService(activeScanSessions(), repo, nil, nil, nil, nil, newTestValidator(t), nil)

	err := svc.UpdateStatus(context.Background(), "owner-1", "log-1", dto.UpdateAttendanceStatusRequest{Status: "approved"})
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}
