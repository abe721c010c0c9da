package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/still-there/attendance-api/internal/models"
)

const attendanceLogColumns = `id, session_id, run_id, student_name, student_id, proof_url, submitted_at, status`

// AttendanceRepository handles persistence for submitted attendance records.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// ExistsForRun reports whether a record with the same student identity is
// already logged in the given run. Identity is the student id when provided,
// otherwise the student name among records that also lack an id; comparison
// is case-insensitive either way.
func (r *AttendanceRepository) ExistsForRun(ctx context.Context, runID string, studentID *string, studentName string) (bool, error) {
	const query = `SELECT EXISTS (
SELECT 1 FROM attendance_logs
WHERE run_id = $1 AND (
    ($2::text IS NOT NULL AND lower(student_id) = lower($2))
    OR ($2::text IS NULL AND student_id IS NULL AND lower(student_name) = lower($3))
))`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, runID, studentID, studentName); err != nil {
		return false, fmt.Errorf("check duplicate attendance: %w", err)
	}
	return exists, nil
}

// Insert stores a new attendance log. The partial unique indexes over
// (run_id, student identity) are the authoritative duplicate guard for
// concurrent submissions; a conflicting insert returns sql.ErrNoRows, which
// the service maps to the duplicate rejection.
func (r *AttendanceRepository) Insert(ctx context.Context, record *models.AttendanceLog) (*models.AttendanceLog, error) {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.SubmittedAt.IsZero() {
		record.SubmittedAt = time.Now().UTC()
	}
	if record.Status == "" {
		record.Status = models.AttendanceStatusPending
	}
	query := fmt.Sprintf(`INSERT INTO attendance_logs (%s)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT DO NOTHING
RETURNING %s`, attendanceLogColumns, attendanceLogColumns)
	var stored models.AttendanceLog
	if err := r.db.GetContext(ctx, &stored, query,
		record.ID, record.SessionID, record.RunID, record.StudentName,
		record.StudentID, record.ProofURL, record.SubmittedAt, record.Status,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("insert attendance log: %w", err)
	}
	return &stored, nil
}

// ListBySession returns all records for one session, oldest first.
func (r *AttendanceRepository) ListBySession(ctx context.Context, sessionID string) ([]models.AttendanceLog, error) {
	query := fmt.Sprintf(`SELECT %s FROM attendance_logs WHERE session_id = $1 ORDER BY submitted_at ASC`, attendanceLogColumns)
	var rows []models.AttendanceLog
	if err := r.db.SelectContext(ctx, &rows, query, sessionID); err != nil {
		return nil, fmt.Errorf("list session attendance: %w", err)
	}
	return rows, nil
}

// ListForOwner returns records across all of an instructor's sessions with
// session metadata joined, newest first.
func (r *AttendanceRepository) ListForOwner(ctx context.Context, filter models.AttendanceLogFilter) ([]models.AttendanceLogRecord, int, error) {
	base := `FROM attendance_logs al
JOIN sessions s ON s.id = al.session_id
LEFT JOIN session_runs sr ON sr.id = al.run_id`
	where := []string{"s.user_id = $1"}
	args := []interface{}{filter.OwnerID}
	if filter.SessionID != "" {
		where = append(where, fmt.Sprintf("al.session_id = $%d", len(args)+1))
		args = append(args, filter.SessionID)
	}
	if filter.RunID != "" {
		where = append(where, fmt.Sprintf("al.run_id = $%d", len(args)+1))
		args = append(args, filter.RunID)
	}
	if filter.Status != nil && filter.Status.Valid() {
		where = append(where, fmt.Sprintf("al.status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	whereClause := strings.Join(where, " AND ")

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT al.id, al.session_id, al.run_id, al.student_name, al.student_id, al.proof_url, al.submitted_at, al.status,
sr.run_number, s.session_name, s.instructor, s.class, s.date, s.start_time, s.end_time
%s WHERE %s
ORDER BY al.submitted_at DESC
LIMIT %d OFFSET %d`, base, whereClause, size, offset)

	var rows []models.AttendanceLogRecord
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list attendance logs: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s WHERE %s", base, whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count attendance logs: %w", err)
	}
	return rows, total, nil
}

// UpdateStatus moderates a record. Ownership runs through the parent session;
// a non-owner update matches zero rows.
func (r *AttendanceRepository) UpdateStatus(ctx context.Context, ownerID, logID string, status models.AttendanceLogStatus) (bool, error) {
	const query = `UPDATE attendance_logs SET status = $3
WHERE id = $1 AND session_id IN (SELECT id FROM sessions WHERE user_id = $2)`
	res, err := r.db.ExecContext(ctx, query, logID, ownerID, status)
	if err != nil {
		return false, fmt.Errorf("update attendance status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update attendance status rows: %w", err)
	}
	return affected > 0, nil
}
