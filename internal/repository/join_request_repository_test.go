package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/akademi/akademi-api/internal/models"
)

func TestJoinRequestRepositoryCreateGuard(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewJoinRequestRepository(db)
	request := &models.ClassJoinRequest{ClassID: "class-1", StudentID: "student-1"}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO class_join_requests")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	created, err := repo.Create(context.Background(), request)
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, models.RequestPending, request.Status)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO class_join_requests")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	created, err = repo.Create(context.Background(), request)
	require.NoError(t, err)
	require.False(t, created)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJoinRequestRepositoryResolvePendingGuard(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewJoinRequestRepository(db)
	resolvedAt := time.Now().UTC()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE class_join_requests")).
		WithArgs("join-1", models.RequestApproved, resolvedAt, "admin-1", models.RequestPending).
		WillReturnResult(sqlmock.NewResult(0, 1))
	updated, err := repo.ResolvePending(context.Background(), "join-1", models.RequestApproved, "admin-1", resolvedAt)
	require.NoError(t, err)
	require.True(t, updated)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE class_join_requests")).
		WithArgs("join-1", models.RequestRejected, resolvedAt, "admin-2", models.RequestPending).
		WillReturnResult(sqlmock.NewResult(0, 0))
	updated, err = repo.ResolvePending(context.Background(), "join-1", models.RequestRejected, "admin-2", resolvedAt)
	require.NoError(t, err)
	require.False(t, updated)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJoinRequestRepositoryHasPendingByStudent(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewJoinRequestRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM class_join_requests")).
		WithArgs("student-1", models.RequestPending).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	pending, err := repo.HasPendingByStudent(context.Background(), "student-1")
	require.NoError(t, err)
	require.True(t, pending)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM class_join_requests")).
		WithArgs("student-2", models.RequestPending).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))
	pending, err = repo.HasPendingByStudent(context.Background(), "student-2")
	require.NoError(t, err)
	require.False(t, pending)
	require.NoError(t, mock.ExpectationsWereMet())
}
