package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/akademi/akademi-api/internal/models"
	appErrors "github.com/akademi/akademi-api/pkg/errors"
)

type classRepository interface {
	FindByID(ctx context.Context, id string) (*models.Class, error)
	ExistsByCode(ctx context.Context, code, excludeID string) (bool, error)
	List(ctx context.Context, filter models.ClassFilter) ([]models.Class, int, error)
	Create(ctx context.Context, class *models.Class) error
	Update(ctx context.Context, class *models.Class) error
	Delete(ctx context.Context, id string) error
	AddSubject(ctx context.Context, cs *models.ClassSubject) (bool, error)
	RemoveSubject(ctx context.Context, classID, subjectID string) error
	ListSubjects(ctx context.Context, classID string) ([]models.ClassSubjectDetail, error)
}

type classSubjectLookup interface {
	FindByID(ctx context.Context, id string) (*models.Subject, error)
}

// CreateClassRequest captures fields for creating a class.
type CreateClassRequest struct {
	Name              string  `json:"name" validate:"required"`
	Code              string  `json:"code" validate:"required"`
	Grade             string  `json:"grade" validate:"required"`
	Track             string  `json:"track"`
	HomeroomTeacherID *string `json:"homeroom_teacher_id"`
}

// UpdateClassRequest modifies class fields.
type UpdateClassRequest struct {
	Name              string  `json:"name" validate:"required"`
	Code              string  `json:"code" validate:"required"`
	Grade             string  `json:"grade" validate:"required"`
	Track             string  `json:"track"`
	HomeroomTeacherID *string `json:"homeroom_teacher_id"`
}

// AddClassSubjectRequest attaches a subject to a class curriculum.
type AddClassSubjectRequest struct {
	SubjectID string `json:"subject_id" validate:"required"`
	Schedule  string `json:"schedule"`
}

// ClassService manages classes and their curricula.
type ClassService struct {
	repo      classRepository
	subjects  classSubjectLookup
	validator *validator.Validate
	logger    *zap.Logger
}

// NewClassService creates a new class service.
func NewClassService(repo classRepository, subjects classSubjectLookup, validate *validator.Validate, logger *zap.Logger) *ClassService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClassService{repo: repo, subjects: subjects, validator: validate, logger: logger}
}

// List returns paginated classes.
func (s *ClassService) List(ctx context.Context, filter models.ClassFilter) ([]models.Class, *models.Pagination, error) {
	classes, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list classes")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return classes, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns a class by identifier.
func (s *ClassService) Get(ctx context.Context, id string) (*models.Class, error) {
	class, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	return class, nil
}

// Create adds a new class ensuring code uniqueness.
func (s *ClassService) Create(ctx context.Context, req CreateClassRequest) (*models.Class, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class payload")
	}

	req.Code = strings.ToUpper(strings.TrimSpace(req.Code))
	exists, err := s.repo.ExistsByCode(ctx, req.Code, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check class code")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "class code already exists")
	}

	class := &models.Class{
		Name:              req.Name,
		Code:              req.Code,
		Grade:             req.Grade,
		Track:             req.Track,
		HomeroomTeacherID: req.HomeroomTeacherID,
	}
	if err := s.repo.Create(ctx, class); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create class")
	}
	return class, nil
}

// Update modifies an existing class.
func (s *ClassService) Update(ctx context.Context, id string, req UpdateClassRequest) (*models.Class, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class payload")
	}

	class, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	req.Code = strings.ToUpper(strings.TrimSpace(req.Code))
	exists, err := s.repo.ExistsByCode(ctx, req.Code, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check class code")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "class code already exists")
	}

	class.Name = req.Name
	class.Code = req.Code
	class.Grade = req.Grade
	class.Track = req.Track
	class.HomeroomTeacherID = req.HomeroomTeacherID
	if err := s.repo.Update(ctx, class); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update class")
	}
	return class, nil
}

// Delete removes a class. Classes with enrollments are protected by
// foreign keys; the conflict surfaces as an internal error from the driver
// and is mapped in the repository.
func (s *ClassService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete class")
	}
	return nil
}

// AddSubject attaches a subject to the class curriculum. Attaching an
// already-attached subject is a conflict.
func (s *ClassService) AddSubject(ctx context.Context, classID string, req AddClassSubjectRequest) (*models.ClassSubject, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class subject payload")
	}

	if _, err := s.Get(ctx, classID); err != nil {
		return nil, err
	}
	if _, err := s.subjects.FindByID(ctx, req.SubjectID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}

	cs := &models.ClassSubject{ClassID: classID, SubjectID: req.SubjectID, Schedule: req.Schedule}
	created, err := s.repo.AddSubject(ctx, cs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to add class subject")
	}
	if !created {
		return nil, appErrors.Clone(appErrors.ErrConflict, "subject is already part of the class curriculum")
	}
	return cs, nil
}

// RemoveSubject detaches a subject from the class curriculum.
func (s *ClassService) RemoveSubject(ctx context.Context, classID, subjectID string) error {
	if _, err := s.Get(ctx, classID); err != nil {
		return err
	}
	if err := s.repo.RemoveSubject(ctx, classID, subjectID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "subject is not part of the class curriculum")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to remove class subject")
	}
	return nil
}

// ListSubjects returns the class curriculum.
func (s *ClassService) ListSubjects(ctx context.Context, classID string) ([]models.ClassSubjectDetail, error) {
	if _, err := s.Get(ctx, classID); err != nil {
		return nil, err
	}
	subjects, err := s.repo.ListSubjects(ctx, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list class subjects")
	}
	return subjects, nil
}
