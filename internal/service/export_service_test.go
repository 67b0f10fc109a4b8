package service

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akademi/akademi-api/internal/models"
	appErrors "github.com/akademi/akademi-api/pkg/errors"
)

type mockRosterEnrollmentRepo struct {
	roster []models.EnrollmentDetail
}

func (m *mockRosterEnrollmentRepo) ListActiveByClass(ctx context.Context, classID string) ([]models.EnrollmentDetail, error) {
	return m.roster, nil
}

type mockRosterClassRepo struct{}

func (mockRosterClassRepo) FindByID(ctx context.Context, id string) (*models.Class, error) {
	if id != "class-1" {
		return nil, sql.ErrNoRows
	}
	return &models.Class{ID: id, Name: "Grade 10 Alpha", Code: "X-A"}, nil
}

func rosterFixture() *mockRosterEnrollmentRepo {
	joined := time.Date(2026, 7, 15, 0, 0, 0, 0, time.UTC)
	return &mockRosterEnrollmentRepo{roster: []models.EnrollmentDetail{
		{
			Enrollment:  models.Enrollment{ID: "enr-1", JoinedAt: joined},
			StudentName: "Alice Tan",
			TermName:    "2026/2027 Odd",
		},
		{
			Enrollment:  models.Enrollment{ID: "enr-2", JoinedAt: joined},
			StudentName: "Budi Santoso",
			TermName:    "2026/2027 Odd",
		},
	}}
}

func TestExportRosterCSV(t *testing.T) {
	svc := NewExportService(rosterFixture(), mockRosterClassRepo{}, nil)

	result, err := svc.Roster(context.Background(), "class-1", FormatCSV)
	require.NoError(t, err)
	assert.Equal(t, "roster-X-A.csv", result.FileName)
	assert.Equal(t, "text/csv", result.ContentType)

	body := string(result.Data)
	assert.Contains(t, body, "Alice Tan")
	assert.Contains(t, body, "Budi Santoso")
	assert.Contains(t, body, "2026-07-15")
	assert.True(t, strings.Contains(body, "No") && strings.Contains(body, "Student"))
}

func TestExportRosterPDF(t *testing.T) {
	svc := NewExportService(rosterFixture(), mockRosterClassRepo{}, nil)

	result, err := svc.Roster(context.Background(), "class-1", FormatPDF)
	require.NoError(t, err)
	assert.Equal(t, "roster-X-A.pdf", result.FileName)
	assert.Equal(t, "application/pdf", result.ContentType)
	assert.True(t, strings.HasPrefix(string(result.Data), "%PDF"))
}

func TestExportRosterUnknownFormat(t *testing.T) {
	svc := NewExportService(rosterFixture(), mockRosterClassRepo{}, nil)

	_, err := svc.Roster(context.Background(), "class-1", ExportFormat("xlsx"))
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))
}

func TestExportRosterClassNotFound(t *testing.T) {
	svc := NewExportService(rosterFixture(), mockRosterClassRepo{}, nil)

	_, err := svc.Roster(context.Background(), "missing", FormatCSV)
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotFound.Code))
}
