package handler

import (
	"context"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/still-there/attendance-api/internal/dto"
	"github.com/still-there/attendance-api/internal/models"
	appErrors "github.com/still-there/attendance-api/pkg/errors"
	"github.com/still-there/attendance-api/pkg/response"
	"github.com/still-there/attendance-api/pkg/storage"
)

type scanSessionService interface {
	State(ctx context.Context, ref string) (*models.Session, *models.SessionState, error)
}

type scanAttendanceService interface {
	Submit(ctx context.Context, ref string, req dto.SubmitAttendanceRequest, proofURL *string) (*dto.SubmitAttendanceResult, *models.SessionState, error)
}

// ScanHandler serves the public scan surface: the session snapshot a scanning
// student polls, and the attendance submission itself. No authentication; the
// scan reference is the capability.
type ScanHandler struct {
	sessions       scanSessionService
	attendance     scanAttendanceService
	media          *storage.MediaStore
	pollInterval   int
	logger         *zap.Logger
	maxUploadBytes int64
}

// NewScanHandler creates a new handler. pollIntervalSeconds is echoed to
// clients so the server controls the reconciliation cadence.
func NewScanHandler(sessions scanSessionService, attendance scanAttendanceService, media *storage.MediaStore, pollIntervalSeconds int, logger *zap.Logger, maxUploadBytes int64) *ScanHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pollIntervalSeconds <= 0 {
		pollIntervalSeconds = 5
	}
	return &ScanHandler{
		sessions:       sessions,
		attendance:     attendance,
		media:          media,
		pollInterval:   pollIntervalSeconds,
		logger:         logger,
		maxUploadBytes: maxUploadBytes,
	}
}

// GetSession godoc
// @Summary Public session snapshot
// @Description Resolve a scan reference (session id or legacy QR token) into the public view and live state
// @Tags Scan
// @Produce json
// @Param ref path string true "Session id or QR token"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /scan/{ref} [get]
func (h *ScanHandler) GetSession(c *gin.Context) {
	session, state, err := h.sessions.State(c.Request.Context(), c.Param("ref"))
	if err != nil {
		response.Error(c, err)
		return
	}

	res := dto.ScanSessionResponse{
		ID:          session.ID,
		SessionName: session.SessionName,
		Instructor:  session.Instructor,
		Class:       session.Class,
		Date:        session.Date,
		StartTime:   session.StartTime,
		EndTime:     session.EndTime,
		State:       *state,
	}
	response.JSON(c, http.StatusOK, res, nil, map[string]interface{}{
		"poll_interval_seconds": h.pollInterval,
	})
}

// Submit godoc
// @Summary Submit attendance
// @Description Record the student's presence against the session's current run
// @Tags Scan
// @Accept mpfd
// @Produce json
// @Param ref path string true "Session id or QR token"
// @Param student_name formData string true "Student name"
// @Param student_id formData string false "Student id"
// @Param proof_image formData file false "Proof image"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /scan/{ref}/attendance [post]
func (h *ScanHandler) Submit(c *gin.Context) {
	var req dto.SubmitAttendanceRequest
	if err := c.ShouldBind(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid submission payload"))
		return
	}

	var proofURL *string
	if file, header, err := c.Request.FormFile("proof_image"); err == nil {
		url, uploadErr := h.storeProof(header, file)
		if uploadErr != nil {
			response.Error(c, uploadErr)
			return
		}
		proofURL = &url
	}

	res, state, err := h.attendance.Submit(c.Request.Context(), c.Param("ref"), req, proofURL)
	if err != nil {
		// Rejections carry the live state so the client can reconcile
		// without a second poll.
		response.ErrorWithMeta(c, err, stateMeta(state))
		return
	}

	response.JSON(c, http.StatusCreated, res, nil, stateMeta(state))
}

func (h *ScanHandler) storeProof(header *multipart.FileHeader, file multipart.File) (string, *appErrors.Error) {
	defer file.Close()
	if h.media == nil {
		return "", appErrors.Clone(appErrors.ErrValidation, "file uploads are disabled")
	}
	if h.maxUploadBytes > 0 && header.Size > h.maxUploadBytes {
		return "", appErrors.Clone(appErrors.ErrValidation, "file exceeds the upload size limit")
	}
	url, err := h.media.Save("proofs", header.Filename, file)
	if err != nil {
		h.logger.Warn("failed to store proof image", zap.Error(err))
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, http.StatusInternalServerError, "failed to store file")
	}
	return url, nil
}

func stateMeta(state *models.SessionState) map[string]interface{} {
	if state == nil {
		return nil
	}
	return map[string]interface{}{"session_state": state}
}
