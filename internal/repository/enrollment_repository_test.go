package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/akademi/akademi-api/internal/models"
)

func TestEnrollmentRepositoryCreateWithSubjects(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewEnrollmentRepository(db)
	enrollment := &models.Enrollment{
		StudentID: "student-1",
		ClassID:   "class-1",
		TermID:    "term-1",
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO enrollments")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO enrollment_subjects")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO enrollment_subjects")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	created, err := repo.CreateWithSubjects(context.Background(), enrollment, []string{"subject-1", "subject-2"})
	require.NoError(t, err)
	require.True(t, created)
	require.NotEmpty(t, enrollment.ID)
	require.Equal(t, models.EnrollmentActive, enrollment.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCreateWithSubjectsGuarded(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewEnrollmentRepository(db)

	// An existing ACTIVE row for the (student, term) pair rejects the
	// insert; no subject rows are written and the tx rolls back.
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO enrollments")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	created, err := repo.CreateWithSubjects(context.Background(), &models.Enrollment{
		StudentID: "student-1", ClassID: "class-1", TermID: "term-1",
	}, []string{"subject-1"})
	require.NoError(t, err)
	require.False(t, created)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryTransfer(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewEnrollmentRepository(db)
	source := sqlmock.NewRows([]string{
		"id", "student_id", "class_id", "term_id", "status", "joined_at",
		"left_at", "transfer_from_class_id", "transfer_reason",
	}).AddRow("enr-1", "student-1", "class-1", "term-1", "ACTIVE", time.Now(), nil, nil, nil)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("enr-1").
		WillReturnRows(source)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO enrollments")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO enrollment_subjects")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	replacement, err := repo.Transfer(context.Background(), "enr-1", "class-2", "moved", []string{"subject-1"})
	require.NoError(t, err)
	require.Equal(t, "class-2", replacement.ClassID)
	require.Equal(t, models.EnrollmentActive, replacement.Status)
	require.NotNil(t, replacement.TransferFromClassID)
	require.Equal(t, "class-1", *replacement.TransferFromClassID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryTransferLosesRace(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewEnrollmentRepository(db)
	source := sqlmock.NewRows([]string{
		"id", "student_id", "class_id", "term_id", "status", "joined_at",
		"left_at", "transfer_from_class_id", "transfer_reason",
	}).AddRow("enr-1", "student-1", "class-1", "term-1", "COMPLETED", time.Now(), nil, nil, nil)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("enr-1").
		WillReturnRows(source)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := repo.Transfer(context.Background(), "enr-1", "class-2", "moved", nil)
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryComplete(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollment_subjects SET")).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	updated, err := repo.Complete(context.Background(), "enr-1")
	require.NoError(t, err)
	require.True(t, updated)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	updated, err = repo.Complete(context.Background(), "enr-1")
	require.NoError(t, err)
	require.False(t, updated)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryDropSubjectGuard(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewEnrollmentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollment_subjects SET")).
		WithArgs("enr-1", "subject-1", models.SubjectDropped, models.SubjectEnrolled).
		WillReturnResult(sqlmock.NewResult(0, 1))
	dropped, err := repo.DropSubject(context.Background(), "enr-1", "subject-1")
	require.NoError(t, err)
	require.True(t, dropped)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollment_subjects SET")).
		WithArgs("enr-1", "subject-1", models.SubjectDropped, models.SubjectEnrolled).
		WillReturnResult(sqlmock.NewResult(0, 0))
	dropped, err = repo.DropSubject(context.Background(), "enr-1", "subject-1")
	require.NoError(t, err)
	require.False(t, dropped)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryActivePairsByStudent(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewEnrollmentRepository(db)
	rows := sqlmock.NewRows([]string{"class_id", "subject_id"}).
		AddRow("class-1", "subject-1").
		AddRow("class-1", "subject-2")

	mock.ExpectQuery(regexp.QuoteMeta("SELECT e.class_id, es.subject_id")).
		WithArgs("student-1", models.EnrollmentActive, models.SubjectEnrolled).
		WillReturnRows(rows)

	pairs, err := repo.ActivePairsByStudent(context.Background(), "student-1")
	require.NoError(t, err)
	require.Len(t, pairs, 2)
	require.Equal(t, "class-1", pairs[0].ClassID)
	require.NoError(t, mock.ExpectationsWereMet())
}
