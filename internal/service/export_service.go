package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/akademi/akademi-api/internal/models"
	appErrors "github.com/akademi/akademi-api/pkg/errors"
	"github.com/akademi/akademi-api/pkg/export"
)

type rosterEnrollmentRepository interface {
	ListActiveByClass(ctx context.Context, classID string) ([]models.EnrollmentDetail, error)
}

type rosterClassRepository interface {
	FindByID(ctx context.Context, id string) (*models.Class, error)
}

// ExportFormat selects the roster output encoding.
type ExportFormat string

const (
	FormatCSV ExportFormat = "csv"
	FormatPDF ExportFormat = "pdf"
)

// ExportResult wraps rendered bytes with response metadata.
type ExportResult struct {
	FileName    string
	ContentType string
	Data        []byte
}

// ExportService renders class rosters for download.
type ExportService struct {
	enrollments rosterEnrollmentRepository
	classes     rosterClassRepository
	logger      *zap.Logger
}

// NewExportService creates a new export service.
func NewExportService(enrollments rosterEnrollmentRepository, classes rosterClassRepository, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{enrollments: enrollments, classes: classes, logger: logger}
}

// Roster renders the list of actively enrolled students for a class.
func (s *ExportService) Roster(ctx context.Context, classID string, format ExportFormat) (*ExportResult, error) {
	class, err := s.classes.FindByID(ctx, classID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}

	enrollments, err := s.enrollments.ListActiveByClass(ctx, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class roster")
	}

	table := export.Table{
		Title:   fmt.Sprintf("Roster %s (%s)", class.Name, class.Code),
		Headers: []string{"No", "Student", "Term", "Joined"},
	}
	for i, enrollment := range enrollments {
		table.Rows = append(table.Rows, []string{
			fmt.Sprintf("%d", i+1),
			enrollment.StudentName,
			enrollment.TermName,
			enrollment.JoinedAt.Format("2006-01-02"),
		})
	}

	switch format {
	case FormatCSV:
		data, err := export.RenderCSV(table)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render roster csv")
		}
		return &ExportResult{
			FileName:    fmt.Sprintf("roster-%s.csv", class.Code),
			ContentType: "text/csv",
			Data:        data,
		}, nil
	case FormatPDF:
		data, err := export.RenderPDF(table)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render roster pdf")
		}
		return &ExportResult{
			FileName:    fmt.Sprintf("roster-%s.pdf", class.Code),
			ContentType: "application/pdf",
			Data:        data,
		}, nil
	}
	return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
}
