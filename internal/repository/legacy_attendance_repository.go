package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/still-there/attendance-api/internal/models"
)

// LegacyAttendanceRepository mirrors accepted submissions into the old
// attendance table for consumers that still read it. It is an adapter at the
// store boundary only; nothing in the core reads this table.
type LegacyAttendanceRepository struct {
	db *sqlx.DB
}

// NewLegacyAttendanceRepository constructs the adapter.
func NewLegacyAttendanceRepository(db *sqlx.DB) *LegacyAttendanceRepository {
	return &LegacyAttendanceRepository{db: db}
}

// Insert writes the compatibility row. The mirror is best-effort: a failure
// here never invalidates the authoritative attendance_logs record.
func (r *LegacyAttendanceRepository) Insert(ctx context.Context, record *models.LegacyAttendanceRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO attendance (id, session_id, student_name, time_in, proof_image, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query,
		record.ID, record.SessionID, record.StudentName, record.TimeIn, record.ProofImage, record.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert legacy attendance: %w", err)
	}
	return nil
}
