package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/still-there/attendance-api/internal/dto"
	"github.com/still-there/attendance-api/internal/models"
	appErrors "github.com/still-there/attendance-api/pkg/errors"
)

type fakePresetRepo struct {
	presets  []models.SessionPreset
	bulk     []models.SessionPreset
	deleteOK bool
}

func (f *fakePresetRepo) ListByOwner(context.Context, string) ([]models.SessionPreset, error) {
	return f.presets, nil
}

func (f *fakePresetRepo) Create(_ context.Context, preset *models.SessionPreset) (*models.SessionPreset, error) {
	preset.ID = "preset-1"
	return preset, nil
}

func (f *fakePresetRepo) BulkInsert(_ context.Context, presets []models.SessionPreset) error {
	f.bulk = presets
	return nil
}

func (f *fakePresetRepo) Delete(context.Context, string, string) (bool, error) {
	return f.deleteOK, nil
}

func TestPresetServiceCreateValidatesTimes(t *testing.T) {
	svc := NewPresetService(&fakePresetRepo{}, nil, nil, 0)

	_, err := svc.Create(context.Background(), "owner-1", dto.CreatePresetRequest{
		SessionName: "Algebra",
		Instructor:  "Dr. Ada",
		Class:       "10-A",
		StartTime:   "10:00",
		EndTime:     "09:00",
	})
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestPresetServiceImportCSVSkipsBadRows(t *testing.T) {
	repo := &fakePresetRepo{}
	svc := NewPresetService(repo, nil, nil, 10)

	csvBody := strings.Join([]string{
		"session_name,instructor,class,start_time,end_time",
		"Algebra,Dr. Ada,10-A,08:00,09:30",
		"Broken,Dr. Ada,10-A,09:30", // missing column
		"Physics,Dr. Grace,11-B,10:00,11:30",
		"BadClock,Dr. Grace,11-B,25:99,26:00",
	}, "\n")

	result, err := svc.ImportCSV(context.Background(), "owner-1", strings.NewReader(csvBody))
	require.NoError(t, err)
	assert.Equal(t, 2, result.Imported)
	assert.Equal(t, 2, result.Skipped)
	assert.Len(t, result.Errors, 2)
	require.Len(t, repo.bulk, 2)
	assert.Equal(t, "Algebra", repo.bulk[0].SessionName)
	assert.Equal(t, "owner-1", repo.bulk[0].UserID)
}

func TestPresetServiceImportCSVRowLimit(t *testing.T) {
	svc := NewPresetService(&fakePresetRepo{}, nil, nil, 2)

	csvBody := strings.Join([]string{
		"Algebra,Dr. Ada,10-A,08:00,09:30",
		"Physics,Dr. Grace,11-B,10:00,11:30",
		"Chemistry,Dr. Marie,12-C,12:00,13:30",
	}, "\n")

	_, err := svc.ImportCSV(context.Background(), "owner-1", strings.NewReader(csvBody))
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestPresetServiceDeleteNotFound(t *testing.T) {
	svc := NewPresetService(&fakePresetRepo{deleteOK: false}, nil, nil, 0)

	err := svc.Delete(context.Background(), "owner-1", "preset-1")
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}
