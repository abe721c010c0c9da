package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/still-there/attendance-api/internal/models"
)

func newSessionRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func sessionRows(id, userID, status string, paused bool) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "user_id", "session_name", "instructor", "class", "date", "start_time", "end_time", "status", "is_paused", "qr_token", "cover_image_url", "created_at"}).
		AddRow(id, userID, "Algebra", "Dr. Ada", "10-A", "2026-09-01", "08:00", "09:30", status, paused, "tok-"+id, nil, time.Now())
}

func runRows(id, sessionID string, number int, status string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "session_id", "run_number", "status", "started_at", "ended_at", "created_by"}).
		AddRow(id, sessionID, number, status, time.Now(), nil, nil)
}

func TestSessionRepositoryCreateActiveSupersedesPrevious(t *testing.T) {
	db, mock, cleanup := newSessionRepoMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE session_runs SET status = 'ended'").
		WithArgs("owner-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE sessions SET status = 'inactive' WHERE user_id = $1 AND status = 'active'")).
		WithArgs("owner-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("INSERT INTO sessions").
		WillReturnRows(sessionRows("sess-1", "owner-1", "active", false))
	mock.ExpectQuery("INSERT INTO session_runs").
		WillReturnRows(runRows("run-1", "sess-1", 1, "active"))
	mock.ExpectCommit()

	stored, run, err := repo.CreateActive(context.Background(), &models.Session{
		UserID:      "owner-1",
		SessionName: "Algebra",
		Instructor:  "Dr. Ada",
		Class:       "10-A",
		Date:        "2026-09-01",
		StartTime:   "08:00",
		EndTime:     "09:30",
	})
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusActive, stored.Status)
	assert.Equal(t, 1, run.RunNumber)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryFindByRefMatchesIDOrToken(t *testing.T) {
	db, mock, cleanup := newSessionRepoMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE id::text = $1 OR qr_token = $1")).
		WithArgs("tok-sess-1").
		WillReturnRows(sessionRows("sess-1", "owner-1", "active", false))

	session, err := repo.FindByRef(context.Background(), "tok-sess-1")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", session.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryEndClosesOpenRun(t *testing.T) {
	db, mock, cleanup := newSessionRepoMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE sessions SET status = 'inactive' WHERE id = $1 AND user_id = $2 AND status = 'active'")).
		WithArgs("sess-1", "owner-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE session_runs SET status = 'ended'").
		WithArgs("sess-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	ended, err := repo.End(context.Background(), "owner-1", "sess-1")
	require.NoError(t, err)
	assert.True(t, ended)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryEndInactiveIsNoOp(t *testing.T) {
	db, mock, cleanup := newSessionRepoMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE sessions SET status = 'inactive'").
		WithArgs("sess-1", "owner-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	ended, err := repo.End(context.Background(), "owner-1", "sess-1")
	require.NoError(t, err)
	assert.False(t, ended)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryPauseEndsRun(t *testing.T) {
	db, mock, cleanup := newSessionRepoMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE sessions SET is_paused = TRUE WHERE id = $1 AND user_id = $2 AND status = 'active' AND is_paused = FALSE")).
		WithArgs("sess-1", "owner-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("UPDATE session_runs SET status = 'ended'").
		WithArgs("sess-1", sqlmock.AnyArg()).
		WillReturnRows(runRows("run-2", "sess-1", 2, "ended"))
	mock.ExpectCommit()

	changed, run, err := repo.Pause(context.Background(), "owner-1", "sess-1")
	require.NoError(t, err)
	assert.True(t, changed)
	require.NotNil(t, run)
	assert.Equal(t, 2, run.RunNumber)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryPauseInactiveSessionUnchanged(t *testing.T) {
	db, mock, cleanup := newSessionRepoMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE sessions SET is_paused = TRUE").
		WithArgs("sess-1", "owner-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	changed, run, err := repo.Pause(context.Background(), "owner-1", "sess-1")
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Nil(t, run)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryResumeOpensNextRun(t *testing.T) {
	db, mock, cleanup := newSessionRepoMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE sessions SET is_paused = FALSE WHERE id = $1 AND user_id = $2 AND status = 'active' AND is_paused = TRUE")).
		WithArgs("sess-1", "owner-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("COALESCE(MAX(run_number), 0) + 1")).
		WithArgs(sqlmock.AnyArg(), "sess-1", sqlmock.AnyArg(), "owner-1").
		WillReturnRows(runRows("run-3", "sess-1", 3, "active"))
	mock.ExpectCommit()

	changed, run, err := repo.Resume(context.Background(), "owner-1", "sess-1")
	require.NoError(t, err)
	assert.True(t, changed)
	require.NotNil(t, run)
	assert.Equal(t, 3, run.RunNumber)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryResumeUnpausedSessionUnchanged(t *testing.T) {
	db, mock, cleanup := newSessionRepoMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	// The pause-flag guard makes the UPDATE match nothing, so no new run may
	// be opened alongside the one still active.
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("AND is_paused = TRUE")).
		WithArgs("sess-1", "owner-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	changed, run, err := repo.Resume(context.Background(), "owner-1", "sess-1")
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Nil(t, run)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryActiveRunNone(t *testing.T) {
	db, mock, cleanup := newSessionRepoMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectQuery("SELECT .* FROM session_runs WHERE session_id").
		WithArgs("sess-1").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.ActiveRun(context.Background(), "sess-1")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}
