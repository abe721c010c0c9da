package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/still-there/attendance-api/internal/models"
)

const presetColumns = `id, user_id, session_name, instructor, class, start_time, end_time, created_at`

// PresetRepository handles persistence for session templates.
type PresetRepository struct {
	db *sqlx.DB
}

// NewPresetRepository constructs the repository.
func NewPresetRepository(db *sqlx.DB) *PresetRepository {
	return &PresetRepository{db: db}
}

// ListByOwner returns the instructor's presets, newest first.
func (r *PresetRepository) ListByOwner(ctx context.Context, userID string) ([]models.SessionPreset, error) {
	query := fmt.Sprintf(`SELECT %s FROM session_presets WHERE user_id = $1 ORDER BY created_at DESC`, presetColumns)
	var rows []models.SessionPreset
	if err := r.db.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, fmt.Errorf("list presets: %w", err)
	}
	return rows, nil
}

// Create inserts a single preset.
func (r *PresetRepository) Create(ctx context.Context, preset *models.SessionPreset) (*models.SessionPreset, error) {
	if preset.ID == "" {
		preset.ID = uuid.NewString()
	}
	if preset.CreatedAt.IsZero() {
		preset.CreatedAt = time.Now().UTC()
	}
	query := fmt.Sprintf(`INSERT INTO session_presets (%s)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING %s`, presetColumns, presetColumns)
	var stored models.SessionPreset
	if err := r.db.GetContext(ctx, &stored, query,
		preset.ID, preset.UserID, preset.SessionName, preset.Instructor,
		preset.Class, preset.StartTime, preset.EndTime, preset.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("create preset: %w", err)
	}
	return &stored, nil
}

// BulkInsert stores many presets in one transaction.
func (r *PresetRepository) BulkInsert(ctx context.Context, presets []models.SessionPreset) error {
	if len(presets) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin bulk presets: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback() //nolint:errcheck
		}
	}()
	query := fmt.Sprintf(`INSERT INTO session_presets (%s) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`, presetColumns)
	now := time.Now().UTC()
	for i := range presets {
		p := &presets[i]
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		if p.CreatedAt.IsZero() {
			p.CreatedAt = now
		}
		if _, err := tx.ExecContext(ctx, query,
			p.ID, p.UserID, p.SessionName, p.Instructor, p.Class, p.StartTime, p.EndTime, p.CreatedAt,
		); err != nil {
			return fmt.Errorf("bulk insert preset: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit bulk presets: %w", err)
	}
	committed = true
	return nil
}

// Delete removes an owned preset; reports whether a row matched.
func (r *PresetRepository) Delete(ctx context.Context, userID, presetID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM session_presets WHERE id = $1 AND user_id = $2`, presetID, userID)
	if err != nil {
		return false, fmt.Errorf("delete preset: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete preset rows: %w", err)
	}
	return affected > 0, nil
}
