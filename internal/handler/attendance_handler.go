package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/still-there/attendance-api/internal/dto"
	"github.com/still-there/attendance-api/internal/models"
	"github.com/still-there/attendance-api/internal/service"
	appErrors "github.com/still-there/attendance-api/pkg/errors"
	"github.com/still-there/attendance-api/pkg/response"
)

// AttendanceHandler serves the instructor's review endpoints.
type AttendanceHandler struct {
	service *service.AttendanceService
}

// NewAttendanceHandler creates a new handler.
func NewAttendanceHandler(svc *service.AttendanceService) *AttendanceHandler {
	return &AttendanceHandler{service: svc}
}

// List godoc
// @Summary List attendance records
// @Description Records across the instructor's sessions, filterable by session, run and status
// @Tags Attendance
// @Produce json
// @Param session_id query string false "Session id"
// @Param run_id query string false "Run id"
// @Param status query string false "pending, approved or rejected"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /attendance [get]
func (h *AttendanceHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "50"))

	filter := models.AttendanceLogFilter{
		OwnerID:   claims.UserID,
		SessionID: c.Query("session_id"),
		RunID:     c.Query("run_id"),
		Page:      page,
		PageSize:  pageSize,
	}
	if raw := c.Query("status"); raw != "" {
		status := models.AttendanceLogStatus(raw)
		if !status.Valid() {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "status must be pending, approved or rejected"))
			return
		}
		filter.Status = &status
	}

	rows, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, pagination)
}

// UpdateStatus godoc
// @Summary Moderate an attendance record
// @Tags Attendance
// @Accept json
// @Produce json
// @Param id path string true "Record id"
// @Param payload body dto.UpdateAttendanceStatusRequest true "Status payload"
// @Success 204 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /attendance/{id}/status [patch]
func (h *AttendanceHandler) UpdateStatus(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req dto.UpdateAttendanceStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid status payload"))
		return
	}

	if err := h.service.UpdateStatus(c.Request.Context(), claims.UserID, c.Param("id"), req); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
