package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/still-there/attendance-api/internal/models"
)

const sessionColumns = `id, user_id, session_name, instructor, class, date, start_time, end_time, status, is_paused, qr_token, cover_image_url, created_at`

const runColumns = `id, session_id, run_number, status, started_at, ended_at, created_by`

// SessionRepository handles persistence for sessions and their runs.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository constructs the repository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// CreateActive inserts a new active session together with run #1 and, in the
// same transaction, deactivates the owner's previous active session and ends
// its open run. A concurrent create for the same owner cannot leave two
// active sessions: the partial unique index on (user_id) WHERE
// status='active' backs this up at the store level.
func (r *SessionRepository) CreateActive(ctx context.Context, session *models.Session) (*models.Session, *models.SessionRun, error) {
	now := time.Now().UTC()
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.QRToken == "" {
		session.QRToken = uuid.NewString()
	}
	session.Status = models.SessionStatusActive
	session.IsPaused = false
	session.CreatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("begin create session: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback() //nolint:errcheck
		}
	}()

	endRuns := `UPDATE session_runs SET status = 'ended', ended_at = $2
WHERE status = 'active' AND session_id IN (SELECT id FROM sessions WHERE user_id = $1 AND status = 'active')`
	if _, err := tx.ExecContext(ctx, endRuns, session.UserID, now); err != nil {
		return nil, nil, fmt.Errorf("end previous runs: %w", err)
	}

	deactivate := `UPDATE sessions SET status = 'inactive' WHERE user_id = $1 AND status = 'active'`
	if _, err := tx.ExecContext(ctx, deactivate, session.UserID); err != nil {
		return nil, nil, fmt.Errorf("deactivate previous session: %w", err)
	}

	insertSession := fmt.Sprintf(`INSERT INTO sessions (%s)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
RETURNING %s`, sessionColumns, sessionColumns)
	var stored models.Session
	if err := tx.GetContext(ctx, &stored, insertSession,
		session.ID, session.UserID, session.SessionName, session.Instructor, session.Class,
		session.Date, session.StartTime, session.EndTime, session.Status, session.IsPaused,
		session.QRToken, session.CoverImageURL, session.CreatedAt,
	); err != nil {
		return nil, nil, fmt.Errorf("insert session: %w", err)
	}

	insertRun := fmt.Sprintf(`INSERT INTO session_runs (%s)
VALUES ($1, $2, 1, 'active', $3, NULL, $4)
RETURNING %s`, runColumns, runColumns)
	var run models.SessionRun
	if err := tx.GetContext(ctx, &run, insertRun, uuid.NewString(), stored.ID, now, session.UserID); err != nil {
		return nil, nil, fmt.Errorf("insert first run: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit create session: %w", err)
	}
	committed = true
	return &stored, &run, nil
}

// FindByID returns a session by identifier.
func (r *SessionRepository) FindByID(ctx context.Context, id string) (*models.Session, error) {
	query := fmt.Sprintf(`SELECT %s FROM sessions WHERE id = $1 LIMIT 1`, sessionColumns)
	var session models.Session
	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find session by id: %w", err)
	}
	return &session, nil
}

// FindByRef resolves a public scan reference, which is either a session id or
// a legacy QR token.
func (r *SessionRepository) FindByRef(ctx context.Context, ref string) (*models.Session, error) {
	query := fmt.Sprintf(`SELECT %s FROM sessions WHERE id::text = $1 OR qr_token = $1 LIMIT 1`, sessionColumns)
	var session models.Session
	if err := r.db.GetContext(ctx, &session, query, ref); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find session by ref: %w", err)
	}
	return &session, nil
}

// ActiveByOwner returns the owner's single active session, if any.
func (r *SessionRepository) ActiveByOwner(ctx context.Context, userID string) (*models.Session, error) {
	query := fmt.Sprintf(`SELECT %s FROM sessions WHERE user_id = $1 AND status = 'active' ORDER BY created_at DESC LIMIT 1`, sessionColumns)
	var session models.Session
	if err := r.db.GetContext(ctx, &session, query, userID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find active session: %w", err)
	}
	return &session, nil
}

// ListByOwner returns the owner's session history, newest date first.
func (r *SessionRepository) ListByOwner(ctx context.Context, filter models.SessionFilter) ([]models.Session, int, error) {
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s FROM sessions WHERE user_id = $1 ORDER BY date DESC, created_at DESC LIMIT %d OFFSET %d`, sessionColumns, size, offset)
	var rows []models.Session
	if err := r.db.SelectContext(ctx, &rows, query, filter.UserID); err != nil {
		return nil, 0, fmt.Errorf("list sessions: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM sessions WHERE user_id = $1`, filter.UserID); err != nil {
		return nil, 0, fmt.Errorf("count sessions: %w", err)
	}
	return rows, total, nil
}

// End deactivates an owned active session and closes its open run. The update
// is conditional: ending an already inactive session reports ended=false
// without touching anything.
func (r *SessionRepository) End(ctx context.Context, ownerID, sessionID string) (bool, error) {
	now := time.Now().UTC()
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin end session: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback() //nolint:errcheck
		}
	}()

	res, err := tx.ExecContext(ctx, `UPDATE sessions SET status = 'inactive' WHERE id = $1 AND user_id = $2 AND status = 'active'`, sessionID, ownerID)
	if err != nil {
		return false, fmt.Errorf("end session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("end session rows: %w", err)
	}
	if affected > 0 {
		if _, err := tx.ExecContext(ctx, `UPDATE session_runs SET status = 'ended', ended_at = $2 WHERE session_id = $1 AND status = 'active'`, sessionID, now); err != nil {
			return false, fmt.Errorf("end session run: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit end session: %w", err)
	}
	committed = true
	return affected > 0, nil
}

// Pause marks an owned active session paused and ends its open run. Returns
// the ended run (nil when no run was open) and whether the session changed;
// a session that is inactive or already paused reports no change.
func (r *SessionRepository) Pause(ctx context.Context, ownerID, sessionID string) (bool, *models.SessionRun, error) {
	now := time.Now().UTC()
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, nil, fmt.Errorf("begin pause session: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback() //nolint:errcheck
		}
	}()

	res, err := tx.ExecContext(ctx, `UPDATE sessions SET is_paused = TRUE WHERE id = $1 AND user_id = $2 AND status = 'active' AND is_paused = FALSE`, sessionID, ownerID)
	if err != nil {
		return false, nil, fmt.Errorf("pause session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, nil, fmt.Errorf("pause session rows: %w", err)
	}
	if affected == 0 {
		if err := tx.Commit(); err != nil {
			return false, nil, fmt.Errorf("commit pause session: %w", err)
		}
		committed = true
		return false, nil, nil
	}

	endRun := fmt.Sprintf(`UPDATE session_runs SET status = 'ended', ended_at = $2 WHERE session_id = $1 AND status = 'active' RETURNING %s`, runColumns)
	var run models.SessionRun
	err = tx.GetContext(ctx, &run, endRun, sessionID, now)
	var ended *models.SessionRun
	switch err {
	case nil:
		ended = &run
	case sql.ErrNoRows:
		// Session had no open run; pausing is still recorded.
	default:
		return false, nil, fmt.Errorf("end active run: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, nil, fmt.Errorf("commit pause session: %w", err)
	}
	committed = true
	return true, ended, nil
}

// Resume clears the pause flag and opens the next numbered run. The pause
// guard on the UPDATE keeps a repeated resume from opening a second active
// run; such calls report no change.
func (r *SessionRepository) Resume(ctx context.Context, ownerID, sessionID string) (bool, *models.SessionRun, error) {
	now := time.Now().UTC()
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, nil, fmt.Errorf("begin resume session: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback() //nolint:errcheck
		}
	}()

	res, err := tx.ExecContext(ctx, `UPDATE sessions SET is_paused = FALSE WHERE id = $1 AND user_id = $2 AND status = 'active' AND is_paused = TRUE`, sessionID, ownerID)
	if err != nil {
		return false, nil, fmt.Errorf("resume session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, nil, fmt.Errorf("resume session rows: %w", err)
	}
	if affected == 0 {
		if err := tx.Commit(); err != nil {
			return false, nil, fmt.Errorf("commit resume session: %w", err)
		}
		committed = true
		return false, nil, nil
	}

	insertRun := fmt.Sprintf(`INSERT INTO session_runs (%s)
SELECT $1, $2, COALESCE(MAX(run_number), 0) + 1, 'active', $3, NULL, $4
FROM session_runs WHERE session_id = $2
RETURNING %s`, runColumns, runColumns)
	var run models.SessionRun
	if err := tx.GetContext(ctx, &run, insertRun, uuid.NewString(), sessionID, now, ownerID); err != nil {
		return false, nil, fmt.Errorf("insert resumed run: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, nil, fmt.Errorf("commit resume session: %w", err)
	}
	committed = true
	return true, &run, nil
}

// ActiveRun returns the session's single open run; sql.ErrNoRows when closed
// or paused.
func (r *SessionRepository) ActiveRun(ctx context.Context, sessionID string) (*models.SessionRun, error) {
	query := fmt.Sprintf(`SELECT %s FROM session_runs WHERE session_id = $1 AND status = 'active' ORDER BY run_number DESC LIMIT 1`, runColumns)
	var run models.SessionRun
	if err := r.db.GetContext(ctx, &run, query, sessionID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find active run: %w", err)
	}
	return &run, nil
}

// RunsBySession lists all runs for a session in order.
func (r *SessionRepository) RunsBySession(ctx context.Context, sessionID string) ([]models.SessionRun, error) {
	query := fmt.Sprintf(`SELECT %s FROM session_runs WHERE session_id = $1 ORDER BY run_number ASC`, runColumns)
	var runs []models.SessionRun
	if err := r.db.SelectContext(ctx, &runs, query, sessionID); err != nil {
		return nil, fmt.Errorf("list session runs: %w", err)
	}
	return runs, nil
}
