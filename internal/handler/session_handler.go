package handler

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/still-there/attendance-api/internal/dto"
	"github.com/still-there/attendance-api/internal/service"
	appErrors "github.com/still-there/attendance-api/pkg/errors"
	"github.com/still-there/attendance-api/pkg/export"
	"github.com/still-there/attendance-api/pkg/qr"
	"github.com/still-there/attendance-api/pkg/response"
	"github.com/still-there/attendance-api/pkg/storage"
)

// SessionHandler wires HTTP endpoints to the session lifecycle service.
type SessionHandler struct {
	service        *service.SessionService
	realtime       *service.RealtimeService
	metrics        *service.MetricsService
	media          *storage.MediaStore
	csv            *export.CSVExporter
	pdf            *export.PDFExporter
	logger         *zap.Logger
	maxUploadBytes int64
}

// NewSessionHandler creates a new handler. Realtime, metrics and media are
// optional.
func NewSessionHandler(svc *service.SessionService, realtime *service.RealtimeService, metrics *service.MetricsService, media *storage.MediaStore, logger *zap.Logger, maxUploadBytes int64) *SessionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionHandler{
		service:        svc,
		realtime:       realtime,
		metrics:        metrics,
		media:          media,
		csv:            export.NewCSVExporter(),
		pdf:            export.NewPDFExporter(),
		logger:         logger,
		maxUploadBytes: maxUploadBytes,
	}
}

// Create godoc
// @Summary Start a new session
// @Description Create an active session with run #1, superseding any previous active session
// @Tags Sessions
// @Accept mpfd
// @Produce json
// @Param session_name formData string true "Session name"
// @Param instructor formData string true "Instructor"
// @Param class formData string true "Class"
// @Param date formData string true "Date YYYY-MM-DD"
// @Param start_time formData string true "Start HH:MM"
// @Param end_time formData string true "End HH:MM"
// @Param cover_image formData file false "Cover image"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /sessions [post]
func (h *SessionHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req dto.CreateSessionRequest
	if err := c.ShouldBind(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid session payload"))
		return
	}

	var coverURL *string
	if file, header, err := c.Request.FormFile("cover_image"); err == nil {
		url, uploadErr := h.storeUpload("covers", header, file)
		if uploadErr != nil {
			response.Error(c, uploadErr)
			return
		}
		coverURL = &url
	}

	res, err := h.service.Create(c.Request.Context(), claims.UserID, req, coverURL)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, res)
}

// Active godoc
// @Summary Current active session
// @Description Dashboard view: the live session, its run and attendance so far
// @Tags Sessions
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /sessions/active [get]
func (h *SessionHandler) Active(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	res, cached, err := h.service.Dashboard(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil, map[string]interface{}{"cached": cached})
}

// History godoc
// @Summary List past sessions
// @Tags Sessions
// @Produce json
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /sessions [get]
func (h *SessionHandler) History(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	sessions, pagination, err := h.service.History(c.Request.Context(), claims.UserID, page, pageSize)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sessions, pagination)
}

// End godoc
// @Summary End a session
// @Description Close the session; ending an inactive session is a no-op
// @Tags Sessions
// @Produce json
// @Param id path string true "Session id"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /sessions/{id}/end [post]
func (h *SessionHandler) End(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	res, err := h.service.End(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// Pause godoc
// @Summary Pause or resume attendance logging
// @Description Pausing ends the current run; resuming opens the next numbered run
// @Tags Sessions
// @Accept json
// @Produce json
// @Param id path string true "Session id"
// @Param payload body dto.PauseSessionRequest true "Pause payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /sessions/{id}/pause [post]
func (h *SessionHandler) Pause(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req dto.PauseSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid pause payload"))
		return
	}

	res, err := h.service.SetPause(c.Request.Context(), claims.UserID, c.Param("id"), req.Paused)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// Attendance godoc
// @Summary Session attendance grouped by run
// @Tags Sessions
// @Produce json
// @Param id path string true "Session id"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /sessions/{id}/attendance [get]
func (h *SessionHandler) Attendance(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	res, err := h.service.Attendance(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// QRImage godoc
// @Summary Session QR code
// @Description PNG encoding of the session's scan link
// @Tags Sessions
// @Produce png
// @Param id path string true "Session id"
// @Param size query int false "Image size in pixels"
// @Success 200 {file} binary
// @Failure 404 {object} response.Envelope
// @Router /sessions/{id}/qr.png [get]
func (h *SessionHandler) QRImage(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	sessionID := c.Param("id")
	// Ownership check doubles as existence check.
	if _, err := h.service.Attendance(c.Request.Context(), claims.UserID, sessionID); err != nil {
		response.Error(c, err)
		return
	}

	size, _ := strconv.Atoi(c.DefaultQuery("size", "512"))
	png, err := qr.EncodePNG(h.service.ScanURL(sessionID), size)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, http.StatusInternalServerError, "failed to render QR code"))
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

// Export godoc
// @Summary Export session attendance
// @Description Download the session's attendance as CSV or PDF
// @Tags Sessions
// @Produce octet-stream
// @Param id path string true "Session id"
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} binary
// @Failure 404 {object} response.Envelope
// @Router /sessions/{id}/export [get]
func (h *SessionHandler) Export(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	sheet, err := h.service.ExportSheet(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	format := strings.ToLower(c.DefaultQuery("format", "csv"))
	var (
		body        []byte
		contentType string
	)
	switch format {
	case "csv":
		body, err = h.csv.Render(*sheet)
		contentType = "text/csv"
	case "pdf":
		body, err = h.pdf.Render(*sheet)
		contentType = "application/pdf"
	default:
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf"))
		return
	}
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, http.StatusInternalServerError, "failed to render export"))
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="attendance-%s.%s"`, c.Param("id"), format))
	c.Data(http.StatusOK, contentType, body)
}

// Feed godoc
// @Summary Realtime attendance feed
// @Description Server-sent events stream of accepted submissions for one owned session
// @Tags Sessions
// @Produce text/event-stream
// @Param id path string true "Session id"
// @Success 200 {string} string "event stream"
// @Failure 404 {object} response.Envelope
// @Router /sessions/{id}/feed [get]
func (h *SessionHandler) Feed(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if h.realtime == nil || !h.realtime.Enabled() {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "realtime feed is disabled"))
		return
	}

	sessionID := c.Param("id")
	if _, err := h.service.Attendance(c.Request.Context(), claims.UserID, sessionID); err != nil {
		response.Error(c, err)
		return
	}

	events, cancel, err := h.realtime.Subscribe(c.Request.Context(), sessionID)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, http.StatusInternalServerError, "failed to open feed"))
		return
	}
	defer cancel()

	if h.metrics != nil {
		h.metrics.FeedListenerConnected()
		defer h.metrics.FeedListenerDisconnected()
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Stream(func(w io.Writer) bool {
		select {
		case event, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent("attendance", event)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

func (h *SessionHandler) storeUpload(scope string, header *multipart.FileHeader, file multipart.File) (string, *appErrors.Error) {
	defer file.Close()
	if h.media == nil {
		return "", appErrors.Clone(appErrors.ErrValidation, "file uploads are disabled")
	}
	if h.maxUploadBytes > 0 && header.Size > h.maxUploadBytes {
		return "", appErrors.Clone(appErrors.ErrValidation, "file exceeds the upload size limit")
	}
	url, err := h.media.Save(scope, header.Filename, file)
	if err != nil {
		h.logger.Warn("failed to store upload", zap.String("scope", scope), zap.Error(err))
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, http.StatusInternalServerError, "failed to store file")
	}
	return url, nil
}
