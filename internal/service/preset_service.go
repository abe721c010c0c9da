package service

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/still-there/attendance-api/internal/dto"
	"github.com/still-there/attendance-api/internal/models"
	appErrors "github.com/still-there/attendance-api/pkg/errors"
)

type presetRepository interface {
	ListByOwner(ctx context.Context, userID string) ([]models.SessionPreset, error)
	Create(ctx context.Context, preset *models.SessionPreset) (*models.SessionPreset, error)
	BulkInsert(ctx context.Context, presets []models.SessionPreset) error
	Delete(ctx context.Context, userID, presetID string) (bool, error)
}

// PresetService manages reusable session templates, including CSV bulk
// import of a timetable.
type PresetService struct {
	repo          presetRepository
	validator     *validator.Validate
	logger        *zap.Logger
	maxImportRows int
}

// NewPresetService constructs the preset service.
func NewPresetService(repo presetRepository, validate *validator.Validate, logger *zap.Logger, maxImportRows int) *PresetService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxImportRows <= 0 {
		maxImportRows = 200
	}
	return &PresetService{repo: repo, validator: validate, logger: logger, maxImportRows: maxImportRows}
}

// List returns the owner's presets.
func (s *PresetService) List(ctx context.Context, ownerID string) ([]models.SessionPreset, error) {
	presets, err := s.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list presets")
	}
	if presets == nil {
		presets = []models.SessionPreset{}
	}
	return presets, nil
}

// Create stores a new preset.
func (s *PresetService) Create(ctx context.Context, ownerID string, req dto.CreatePresetRequest) (*models.SessionPreset, error) {
	preset, err := s.presetFromFields(ownerID, req.SessionName, req.Instructor, req.Class, req.StartTime, req.EndTime)
	if err != nil {
		return nil, err
	}
	stored, err := s.repo.Create(ctx, preset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create preset")
	}
	return stored, nil
}

// Delete removes an owned preset.
func (s *PresetService) Delete(ctx context.Context, ownerID, presetID string) error {
	deleted, err := s.repo.Delete(ctx, ownerID, presetID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete preset")
	}
	if !deleted {
		return appErrors.Clone(appErrors.ErrNotFound, "preset not found")
	}
	return nil
}

// ImportCSV bulk-loads presets from a timetable export. Expected columns:
// session_name, instructor, class, start_time, end_time. A header row is
// detected and skipped; invalid rows are reported, not fatal.
func (s *PresetService) ImportCSV(ctx context.Context, ownerID string, r io.Reader) (*dto.PresetImportResult, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	result := &dto.PresetImportResult{}
	var presets []models.SessionPreset
	line := 0
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("malformed CSV: %v", err))
		}
		line++
		if line > s.maxImportRows {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("import exceeds the %d row limit", s.maxImportRows))
		}
		if line == 1 && looksLikeHeader(row) {
			continue
		}
		if len(row) < 5 {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("row %d: expected 5 columns, got %d", line, len(row)))
			continue
		}
		preset, err := s.presetFromFields(ownerID, row[0], row[1], row[2], row[3], row[4])
		if err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("row %d: %v", line, err))
			continue
		}
		presets = append(presets, *preset)
	}

	if len(presets) > 0 {
		if err := s.repo.BulkInsert(ctx, presets); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to import presets")
		}
	}
	result.Imported = len(presets)
	s.logger.Info("presets imported",
		zap.String("owner_id", ownerID),
		zap.Int("imported", result.Imported),
		zap.Int("skipped", result.Skipped),
	)
	return result, nil
}

func (s *PresetService) presetFromFields(ownerID, name, instructor, class, startTime, endTime string) (*models.SessionPreset, error) {
	preset := &models.SessionPreset{
		UserID:      ownerID,
		SessionName: strings.TrimSpace(name),
		Instructor:  strings.TrimSpace(instructor),
		Class:       strings.TrimSpace(class),
		StartTime:   strings.TrimSpace(startTime),
		EndTime:     strings.TrimSpace(endTime),
	}
	if preset.SessionName == "" || preset.Instructor == "" || preset.Class == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "session name, instructor and class are required")
	}
	start, err := parseClock(preset.StartTime)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid start_time, expected HH:MM")
	}
	end, err := parseClock(preset.EndTime)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid end_time, expected HH:MM")
	}
	if !end.After(start) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end_time must be after start_time")
	}
	return preset, nil
}

func looksLikeHeader(row []string) bool {
	if len(row) == 0 {
		return false
	}
	first := strings.ToLower(strings.TrimSpace(row[0]))
	return first == "session_name" || first == "session name" || first == "name"
}
