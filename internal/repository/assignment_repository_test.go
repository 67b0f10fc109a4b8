package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/akademi/akademi-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestAssignmentRepositoryCreateGuard(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewAssignmentRepository(db)
	assignment := &models.TeacherAssignment{
		ClassID:   "class-1",
		SubjectID: "subject-1",
		TeacherID: "teacher-1",
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO teacher_assignments")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	created, err := repo.Create(context.Background(), assignment)
	require.NoError(t, err)
	require.True(t, created)
	require.NotEmpty(t, assignment.ID)
	require.Equal(t, models.RequestPending, assignment.Status)

	// The NOT EXISTS guard eats the second insert for the same tuple.
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO teacher_assignments")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	created, err = repo.Create(context.Background(), assignment)
	require.NoError(t, err)
	require.False(t, created)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignmentRepositoryResolvePendingGuard(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewAssignmentRepository(db)
	resolvedAt := time.Now().UTC()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE teacher_assignments")).
		WithArgs("req-1", models.RequestApproved, resolvedAt, "admin-1", models.RequestPending).
		WillReturnResult(sqlmock.NewResult(0, 1))
	updated, err := repo.ResolvePending(context.Background(), "req-1", models.RequestApproved, "admin-1", resolvedAt)
	require.NoError(t, err)
	require.True(t, updated)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE teacher_assignments")).
		WithArgs("req-1", models.RequestRejected, resolvedAt, "admin-2", models.RequestPending).
		WillReturnResult(sqlmock.NewResult(0, 0))
	updated, err = repo.ResolvePending(context.Background(), "req-1", models.RequestRejected, "admin-2", resolvedAt)
	require.NoError(t, err)
	require.False(t, updated)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignmentRepositoryExistsApproved(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewAssignmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM teacher_assignments")).
		WithArgs("class-1", "subject-1", "teacher-1", models.RequestApproved).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	ok, err := repo.ExistsApproved(context.Background(), "class-1", "subject-1", "teacher-1")
	require.NoError(t, err)
	require.True(t, ok)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM teacher_assignments")).
		WithArgs("class-1", "subject-2", "teacher-1", models.RequestApproved).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))
	ok, err = repo.ExistsApproved(context.Background(), "class-1", "subject-2", "teacher-1")
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignmentRepositoryList(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewAssignmentRepository(db)
	rows := sqlmock.NewRows([]string{
		"id", "class_id", "subject_id", "teacher_id", "status", "lead_teacher",
		"requested_at", "resolved_at", "resolved_by", "class_name", "subject_name", "teacher_name",
	}).AddRow("req-1", "class-1", "subject-1", "teacher-1", "PENDING", false,
		time.Now(), nil, nil, "X-A", "Mathematics", "Jane Poe")

	mock.ExpectQuery(regexp.QuoteMeta("SELECT a.id, a.class_id")).
		WithArgs("teacher-1", "PENDING").
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*)")).
		WithArgs("teacher-1", "PENDING").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	list, total, err := repo.List(context.Background(), models.TeacherAssignmentFilter{
		TeacherID: "teacher-1",
		Status:    models.RequestPending,
	})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Len(t, list, 1)
	require.Equal(t, "req-1", list[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}
