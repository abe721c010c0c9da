package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/still-there/attendance-api/internal/models"
)

func newAttendanceRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func attendanceRows(id, sessionID, runID, name string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "session_id", "run_id", "student_name", "student_id", "proof_url", "submitted_at", "status"}).
		AddRow(id, sessionID, runID, name, nil, nil, time.Now(), "pending")
}

func TestAttendanceRepositoryExistsForRunByStudentID(t *testing.T) {
	db, mock, cleanup := newAttendanceRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	studentID := "S-42"
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("run-1", "S-42", "Alice").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.ExistsForRun(context.Background(), "run-1", &studentID, "Alice")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryExistsForRunByNameOnly(t *testing.T) {
	db, mock, cleanup := newAttendanceRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("run-1", nil, "Alice").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	exists, err := repo.ExistsForRun(context.Background(), "run-1", nil, "Alice")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryInsertDefaultsAndReturns(t *testing.T) {
	db, mock, cleanup := newAttendanceRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	runID := "run-1"
	mock.ExpectQuery("INSERT INTO attendance_logs").
		WillReturnRows(attendanceRows("log-1", "sess-1", runID, "Alice"))

	stored, err := repo.Insert(context.Background(), &models.AttendanceLog{
		SessionID:   "sess-1",
		RunID:       &runID,
		StudentName: "Alice",
	})
	require.NoError(t, err)
	assert.Equal(t, "log-1", stored.ID)
	assert.Equal(t, models.AttendanceStatusPending, stored.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryInsertConflictSurfacesNoRows(t *testing.T) {
	db, mock, cleanup := newAttendanceRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	runID := "run-1"
	mock.ExpectQuery("INSERT INTO attendance_logs").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Insert(context.Background(), &models.AttendanceLog{
		SessionID:   "sess-1",
		RunID:       &runID,
		StudentName: "Alice",
	})
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryUpdateStatusNonOwnerMatchesNothing(t *testing.T) {
	db, mock, cleanup := newAttendanceRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectExec("UPDATE attendance_logs SET status").
		WithArgs("log-1", "intruder", models.AttendanceStatusApproved).
		WillReturnResult(sqlmock.NewResult(0, 0))

	updated, err := repo.UpdateStatus(context.Background(), "intruder", "log-1", models.AttendanceStatusApproved)
	require.NoError(t, err)
	assert.False(t, updated)
	assert.NoError(t, mock.ExpectationsWereMet())
}
