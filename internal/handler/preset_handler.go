package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/still-there/attendance-api/internal/dto"
	"github.com/still-there/attendance-api/internal/service"
	appErrors "github.com/still-there/attendance-api/pkg/errors"
	"github.com/still-there/attendance-api/pkg/response"
)

// PresetHandler serves the session template endpoints.
type PresetHandler struct {
	service *service.PresetService
}

// NewPresetHandler creates a new handler.
func NewPresetHandler(svc *service.PresetService) *PresetHandler {
	return &PresetHandler{service: svc}
}

// List godoc
// @Summary List session presets
// @Tags Presets
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /presets [get]
func (h *PresetHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	presets, err := h.service.List(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, presets, nil)
}

// Create godoc
// @Summary Save a session preset
// @Tags Presets
// @Accept json
// @Produce json
// @Param payload body dto.CreatePresetRequest true "Preset payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /presets [post]
func (h *PresetHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req dto.CreatePresetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid preset payload"))
		return
	}

	preset, err := h.service.Create(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, preset)
}

// Delete godoc
// @Summary Delete a session preset
// @Tags Presets
// @Param id path string true "Preset id"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /presets/{id} [delete]
func (h *PresetHandler) Delete(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.service.Delete(c.Request.Context(), claims.UserID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Import godoc
// @Summary Import presets from CSV
// @Description Bulk-load presets from a timetable CSV (session_name, instructor, class, start_time, end_time)
// @Tags Presets
// @Accept mpfd
// @Produce json
// @Param file formData file true "CSV file"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /presets/import [post]
func (h *PresetHandler) Import(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	file, _, err := c.Request.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "a CSV file is required"))
		return
	}
	defer file.Close()

	result, err := h.service.ImportCSV(c.Request.Context(), claims.UserID, file)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
