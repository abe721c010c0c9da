package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/still-there/attendance-api/internal/dto"
	"github.com/still-there/attendance-api/internal/models"
	appErrors "github.com/still-there/attendance-api/pkg/errors"
)

type fakeScanSessionSrv struct {
	session *models.Session
	state   *models.SessionState
	err     error
}

func (f *fakeScanSessionSrv) State(context.Context, string) (*models.Session, *models.SessionState, error) {
	return f.session, f.state, f.err
}

type fakeScanAttendanceSrv struct {
	result  *dto.SubmitAttendanceResult
	state   *models.SessionState
	err     error
	lastReq dto.SubmitAttendanceRequest
}

func (f *fakeScanAttendanceSrv) Submit(_ context.Context, _ string, req dto.SubmitAttendanceRequest, _ *string) (*dto.SubmitAttendanceResult, *models.SessionState, error) {
	f.lastReq = req
	return f.result, f.state, f.err
}

func submitForm(t *testing.T, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for key, value := range fields {
		require.NoError(t, writer.WriteField(key, value))
	}
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func TestScanHandlerGetSessionIncludesPollInterval(t *testing.T) {
	gin.SetMode(gin.TestMode)
	runNumber := 2
	sessions := &fakeScanSessionSrv{
		session: &models.Session{ID: "sess-1", SessionName: "Algebra", Status: models.SessionStatusActive},
		state:   &models.SessionState{IsActive: true, ActiveRunNumber: &runNumber},
	}
	handler := NewScanHandler(sessions, &fakeScanAttendanceSrv{}, nil, 5, nil, 0)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/scan/sess-1", nil)
	c.Params = gin.Params{{Key: "ref", Value: "sess-1"}}

	handler.GetSession(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	var envelope struct {
		Data dto.ScanSessionResponse `json:"data"`
		Meta map[string]interface{}  `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "Algebra", envelope.Data.SessionName)
	assert.True(t, envelope.Data.State.IsActive)
	assert.EqualValues(t, 5, envelope.Meta["poll_interval_seconds"])
}

func TestScanHandlerGetSessionNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewScanHandler(&fakeScanSessionSrv{err: appErrors.ErrSessionNotFound}, &fakeScanAttendanceSrv{}, nil, 5, nil, 0)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/scan/nope", nil)
	c.Params = gin.Params{{Key: "ref", Value: "nope"}}

	handler.GetSession(c)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestScanHandlerSubmitAccepted(t *testing.T) {
	gin.SetMode(gin.TestMode)
	attendance := &fakeScanAttendanceSrv{
		result: &dto.SubmitAttendanceResult{
			Record:    models.AttendanceLog{ID: "log-1", StudentName: "Alice", Status: models.AttendanceStatusPending},
			RunNumber: 2,
		},
		state: &models.SessionState{IsActive: true},
	}
	handler := NewScanHandler(&fakeScanSessionSrv{}, attendance, nil, 5, nil, 0)

	body, contentType := submitForm(t, map[string]string{"student_name": "Alice", "student_id": "S-42"})
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/scan/sess-1/attendance", body)
	c.Request.Header.Set("Content-Type", contentType)
	c.Params = gin.Params{{Key: "ref", Value: "sess-1"}}

	handler.Submit(c)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "Alice", attendance.lastReq.StudentName)
	assert.Equal(t, "S-42", attendance.lastReq.StudentID)
}

func TestScanHandlerSubmitRejectionCarriesState(t *testing.T) {
	gin.SetMode(gin.TestMode)
	attendance := &fakeScanAttendanceSrv{
		err:   appErrors.ErrAttendancePaused,
		state: &models.SessionState{IsActive: true, IsPaused: true},
	}
	handler := NewScanHandler(&fakeScanSessionSrv{}, attendance, nil, 5, nil, 0)

	body, contentType := submitForm(t, map[string]string{"student_name": "Alice"})
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/scan/sess-1/attendance", body)
	c.Request.Header.Set("Content-Type", contentType)
	c.Params = gin.Params{{Key: "ref", Value: "sess-1"}}

	handler.Submit(c)

	assert.Equal(t, http.StatusConflict, rec.Code)
	var envelope struct {
		Error *appErrors.Error       `json:"error"`
		Meta  map[string]interface{} `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "ATTENDANCE_PAUSED", envelope.Error.Code)
	state, ok := envelope.Meta["session_state"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, true, state["is_paused"])
}
