package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/akademi/akademi-api/internal/models"
	appErrors "github.com/akademi/akademi-api/pkg/errors"
)

type assignmentRepository interface {
	Create(ctx context.Context, assignment *models.TeacherAssignment) (bool, error)
	FindByID(ctx context.Context, id string) (*models.TeacherAssignment, error)
	FindByTuple(ctx context.Context, classID, subjectID, teacherID string) (*models.TeacherAssignment, error)
	ResolvePending(ctx context.Context, id string, status models.RequestStatus, adminID string, resolvedAt time.Time) (bool, error)
	List(ctx context.Context, filter models.TeacherAssignmentFilter) ([]models.TeacherAssignmentDetail, int, error)
}

type teachRequestUserRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	HasQualification(ctx context.Context, teacherID, subjectID, grade string) (bool, error)
}

type teachRequestClassRepository interface {
	FindByID(ctx context.Context, id string) (*models.Class, error)
	HasSubject(ctx context.Context, classID, subjectID string) (bool, error)
}

// CreateTeachRequest captures a teacher's request to teach a subject in a class.
type CreateTeachRequest struct {
	ClassID     string `json:"class_id" validate:"required"`
	SubjectID   string `json:"subject_id" validate:"required"`
	TeacherID   string `json:"teacher_id" validate:"required"`
	LeadTeacher bool   `json:"lead_teacher"`
}

// ResolveRequest carries an admin's decision for a pending request.
type ResolveRequest struct {
	Status string `json:"status" validate:"required"`
}

// TeachRequestService runs the teach-request workflow: teachers file a
// request for a (class, subject) pair, admins settle it. Approval is what
// the access resolver keys on.
type TeachRequestService struct {
	assignments assignmentRepository
	users       teachRequestUserRepository
	classes     teachRequestClassRepository
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewTeachRequestService creates a new teach-request service.
func NewTeachRequestService(assignments assignmentRepository, users teachRequestUserRepository, classes teachRequestClassRepository, validate *validator.Validate, logger *zap.Logger) *TeachRequestService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TeachRequestService{assignments: assignments, users: users, classes: classes, validator: validate, logger: logger}
}

// Create files a PENDING teach-request. The teacher must be an active
// teacher account, the subject must belong to the class curriculum, and the
// teacher must hold a qualification for the subject at the class grade. A
// request for a tuple that already exists in any status is a conflict.
func (s *TeachRequestService) Create(ctx context.Context, req CreateTeachRequest) (*models.TeacherAssignment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid teach request payload")
	}

	teacher, err := s.users.FindByID(ctx, req.TeacherID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}
	if teacher.Role != models.RoleTeacher {
		return nil, appErrors.Clone(appErrors.ErrValidation, "requesting user is not a teacher")
	}
	if !teacher.Active {
		return nil, appErrors.Clone(appErrors.ErrValidation, "teacher account is inactive")
	}

	class, err := s.classes.FindByID(ctx, req.ClassID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}

	inCurriculum, err := s.classes.HasSubject(ctx, req.ClassID, req.SubjectID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check class curriculum")
	}
	if !inCurriculum {
		return nil, appErrors.Clone(appErrors.ErrValidation, "subject is not part of the class curriculum")
	}

	qualified, err := s.users.HasQualification(ctx, req.TeacherID, req.SubjectID, class.Grade)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check teacher qualification")
	}
	if !qualified {
		return nil, appErrors.Clone(appErrors.ErrValidation, "teacher is not qualified for this subject and grade")
	}

	assignment := &models.TeacherAssignment{
		ClassID:     req.ClassID,
		SubjectID:   req.SubjectID,
		TeacherID:   req.TeacherID,
		LeadTeacher: req.LeadTeacher,
		Status:      models.RequestPending,
	}
	created, err := s.assignments.Create(ctx, assignment)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create teach request")
	}
	if !created {
		return nil, appErrors.Clone(appErrors.ErrConflict, "a request for this class and subject already exists")
	}

	s.logger.Info("teach request created",
		zap.String("assignment_id", assignment.ID),
		zap.String("class_id", assignment.ClassID),
		zap.String("subject_id", assignment.SubjectID),
		zap.String("teacher_id", assignment.TeacherID))
	return assignment, nil
}

// Resolve settles a pending teach-request. Re-submitting the decision the
// request already carries is a no-op; switching a settled request to the
// other terminal state is rejected.
func (s *TeachRequestService) Resolve(ctx context.Context, id, adminID string, req ResolveRequest) (*models.TeacherAssignment, error) {
	status, ok := models.ParseRequestStatus(req.Status)
	if !ok || !status.Terminal() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "status must be APPROVED or REJECTED")
	}

	assignment, err := s.assignments.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teach request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teach request")
	}

	if assignment.Status == status {
		return assignment, nil
	}
	if assignment.Status.Terminal() {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "teach request is already resolved")
	}

	resolvedAt := time.Now().UTC()
	updated, err := s.assignments.ResolvePending(ctx, id, status, adminID, resolvedAt)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve teach request")
	}
	if !updated {
		// Lost the race to another resolver.
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "teach request is already resolved")
	}

	assignment.Status = status
	assignment.ResolvedAt = &resolvedAt
	assignment.ResolvedBy = &adminID

	s.logger.Info("teach request resolved",
		zap.String("assignment_id", assignment.ID),
		zap.String("status", string(status)),
		zap.String("resolved_by", adminID))
	return assignment, nil
}

// Get returns a teach-request by ID.
func (s *TeachRequestService) Get(ctx context.Context, id string) (*models.TeacherAssignment, error) {
	assignment, err := s.assignments.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teach request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teach request")
	}
	return assignment, nil
}

// List returns teach-requests matching the filter with pagination.
func (s *TeachRequestService) List(ctx context.Context, filter models.TeacherAssignmentFilter) ([]models.TeacherAssignmentDetail, *models.Pagination, error) {
	items, total, err := s.assignments.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list teach requests")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return items, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}
