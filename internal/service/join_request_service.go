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

type joinRequestRepository interface {
	Create(ctx context.Context, request *models.ClassJoinRequest) (bool, error)
	FindByID(ctx context.Context, id string) (*models.ClassJoinRequest, error)
	ResolvePending(ctx context.Context, id string, status models.RequestStatus, adminID string, resolvedAt time.Time) (bool, error)
	HasPendingByStudent(ctx context.Context, studentID string) (bool, error)
	ListByClass(ctx context.Context, classID string, status models.RequestStatus) ([]models.ClassJoinRequestDetail, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.ClassJoinRequestDetail, error)
}

type joinRequestUserRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type joinRequestClassRepository interface {
	FindByID(ctx context.Context, id string) (*models.Class, error)
	CompulsorySubjectIDs(ctx context.Context, classID string) ([]string, error)
}

type joinRequestEnrollmentRepository interface {
	ExistsActive(ctx context.Context, studentID, termID string) (bool, error)
	CreateWithSubjects(ctx context.Context, enrollment *models.Enrollment, subjectIDs []string) (bool, error)
}

type activeTermRepository interface {
	FindActive(ctx context.Context) (*models.Term, error)
}

// CreateJoinRequest captures a student's request to join a class.
type CreateJoinRequest struct {
	ClassID   string `json:"class_id" validate:"required"`
	StudentID string `json:"student_id" validate:"required"`
}

// JoinRequestService runs the class join workflow. A student may hold at
// most one pending request; approval materializes an ACTIVE enrollment
// covering the class's compulsory subjects.
type JoinRequestService struct {
	requests    joinRequestRepository
	users       joinRequestUserRepository
	classes     joinRequestClassRepository
	enrollments joinRequestEnrollmentRepository
	terms       activeTermRepository
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewJoinRequestService creates a new join-request service.
func NewJoinRequestService(requests joinRequestRepository, users joinRequestUserRepository, classes joinRequestClassRepository, enrollments joinRequestEnrollmentRepository, terms activeTermRepository, validate *validator.Validate, logger *zap.Logger) *JoinRequestService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JoinRequestService{
		requests:    requests,
		users:       users,
		classes:     classes,
		enrollments: enrollments,
		terms:       terms,
		validator:   validate,
		logger:      logger,
	}
}

// Create files a PENDING join-request. The student must be an active
// student account without an ACTIVE enrollment in the current term and
// without another pending request. A request for a (class, student) pair
// that already exists in any status is a conflict.
func (s *JoinRequestService) Create(ctx context.Context, req CreateJoinRequest) (*models.ClassJoinRequest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid join request payload")
	}

	student, err := s.users.FindByID(ctx, req.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if student.Role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrValidation, "requesting user is not a student")
	}
	if !student.Active {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student account is inactive")
	}

	if _, err := s.classes.FindByID(ctx, req.ClassID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}

	term, err := s.terms.FindActive(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "no active term")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load active term")
	}

	enrolled, err := s.enrollments.ExistsActive(ctx, req.StudentID, term.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check active enrollment")
	}
	if enrolled {
		return nil, appErrors.Clone(appErrors.ErrConflict, "student already has an active enrollment this term")
	}

	pending, err := s.requests.HasPendingByStudent(ctx, req.StudentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check pending requests")
	}
	if pending {
		return nil, appErrors.Clone(appErrors.ErrConflict, "student already has a pending join request")
	}

	request := &models.ClassJoinRequest{
		ClassID:   req.ClassID,
		StudentID: req.StudentID,
		Status:    models.RequestPending,
	}
	created, err := s.requests.Create(ctx, request)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create join request")
	}
	if !created {
		return nil, appErrors.Clone(appErrors.ErrConflict, "a join request for this class already exists")
	}

	s.logger.Info("join request created",
		zap.String("request_id", request.ID),
		zap.String("class_id", request.ClassID),
		zap.String("student_id", request.StudentID))
	return request, nil
}

// Resolve settles a pending join-request. Approval creates the student's
// ACTIVE enrollment for the current term, pre-registered for the class's
// compulsory subjects. Re-submitting the decision the request already
// carries is a no-op.
func (s *JoinRequestService) Resolve(ctx context.Context, id, adminID string, req ResolveRequest) (*models.ClassJoinRequest, error) {
	status, ok := models.ParseRequestStatus(req.Status)
	if !ok || !status.Terminal() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "status must be APPROVED or REJECTED")
	}

	request, err := s.requests.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "join request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load join request")
	}

	if request.Status == status {
		return request, nil
	}
	if request.Status.Terminal() {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "join request is already resolved")
	}

	var term *models.Term
	if status == models.RequestApproved {
		term, err = s.terms.FindActive(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrInvalidState, "no active term")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load active term")
		}
	}

	resolvedAt := time.Now().UTC()
	updated, err := s.requests.ResolvePending(ctx, id, status, adminID, resolvedAt)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve join request")
	}
	if !updated {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "join request is already resolved")
	}

	request.Status = status
	request.ResolvedAt = &resolvedAt
	request.ResolvedBy = &adminID

	if status == models.RequestApproved {
		if err := s.materializeEnrollment(ctx, request, term); err != nil {
			return nil, err
		}
	}

	s.logger.Info("join request resolved",
		zap.String("request_id", request.ID),
		zap.String("status", string(status)),
		zap.String("resolved_by", adminID))
	return request, nil
}

func (s *JoinRequestService) materializeEnrollment(ctx context.Context, request *models.ClassJoinRequest, term *models.Term) error {
	subjectIDs, err := s.classes.CompulsorySubjectIDs(ctx, request.ClassID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load compulsory subjects")
	}

	enrollment := &models.Enrollment{
		StudentID: request.StudentID,
		ClassID:   request.ClassID,
		TermID:    term.ID,
		Status:    models.EnrollmentActive,
	}
	created, err := s.enrollments.CreateWithSubjects(ctx, enrollment, subjectIDs)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
	}
	if !created {
		return appErrors.Clone(appErrors.ErrConflict, "student already has an active enrollment this term")
	}

	s.logger.Info("enrollment materialized from join request",
		zap.String("request_id", request.ID),
		zap.String("enrollment_id", enrollment.ID),
		zap.Int("subjects", len(subjectIDs)))
	return nil
}

// Get returns a join-request by ID.
func (s *JoinRequestService) Get(ctx context.Context, id string) (*models.ClassJoinRequest, error) {
	request, err := s.requests.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "join request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load join request")
	}
	return request, nil
}

// ListByClass returns join-requests for a class, optionally filtered by status.
func (s *JoinRequestService) ListByClass(ctx context.Context, classID string, status models.RequestStatus) ([]models.ClassJoinRequestDetail, error) {
	items, err := s.requests.ListByClass(ctx, classID, status)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list join requests")
	}
	return items, nil
}

// ListByStudent returns a student's join-request history.
func (s *JoinRequestService) ListByStudent(ctx context.Context, studentID string) ([]models.ClassJoinRequestDetail, error) {
	items, err := s.requests.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list join requests")
	}
	return items, nil
}
