package dto

// CreatePresetRequest saves a reusable session template.
type CreatePresetRequest struct {
	SessionName string `json:"session_name" validate:"required"`
	Instructor  string `json:"instructor" validate:"required"`
	Class       string `json:"class" validate:"required"`
	StartTime   string `json:"start_time" validate:"required"`
	EndTime     string `json:"end_time" validate:"required"`
}

// PresetImportResult summarises a CSV bulk import.
type PresetImportResult struct {
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors,omitempty"`
}
