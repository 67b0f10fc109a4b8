package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/akademi/akademi-api/internal/models"
	appErrors "github.com/akademi/akademi-api/pkg/errors"
)

type enrollmentRepository interface {
	CreateWithSubjects(ctx context.Context, enrollment *models.Enrollment, subjectIDs []string) (bool, error)
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error)
	ListSubjects(ctx context.Context, enrollmentID string) ([]models.EnrollmentSubject, error)
	Transfer(ctx context.Context, id, targetClassID, reason string, carrySubjectIDs []string) (*models.Enrollment, error)
	Complete(ctx context.Context, id string) (bool, error)
	DropSubject(ctx context.Context, enrollmentID, subjectID string) (bool, error)
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
}

type enrollmentUserRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type enrollmentClassRepository interface {
	FindByID(ctx context.Context, id string) (*models.Class, error)
	HasSubject(ctx context.Context, classID, subjectID string) (bool, error)
	CompulsorySubjectIDs(ctx context.Context, classID string) ([]string, error)
}

// CreateEnrollmentRequest enrolls a student directly, bypassing the join
// workflow. Admin only.
type CreateEnrollmentRequest struct {
	StudentID  string   `json:"student_id" validate:"required"`
	ClassID    string   `json:"class_id" validate:"required"`
	SubjectIDs []string `json:"subject_ids"`
}

// TransferEnrollmentRequest moves an active enrollment to another class.
type TransferEnrollmentRequest struct {
	TargetClassID string `json:"target_class_id" validate:"required"`
	Reason        string `json:"reason" validate:"required"`
}

// EnrollmentService manages enrollment lifecycle: creation, transfer,
// completion, and per-subject registration. Status transitions are single
// guarded statements so a lifecycle edge applies at most once.
type EnrollmentService struct {
	enrollments enrollmentRepository
	users       enrollmentUserRepository
	classes     enrollmentClassRepository
	terms       activeTermRepository
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewEnrollmentService creates a new enrollment service.
func NewEnrollmentService(enrollments enrollmentRepository, users enrollmentUserRepository, classes enrollmentClassRepository, terms activeTermRepository, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{
		enrollments: enrollments,
		users:       users,
		classes:     classes,
		terms:       terms,
		validator:   validate,
		logger:      logger,
	}
}

// Enroll creates an ACTIVE enrollment for the current term. When no
// subjects are given, the class's compulsory subjects are used. A student
// with an ACTIVE enrollment in the term cannot be enrolled again.
func (s *EnrollmentService) Enroll(ctx context.Context, req CreateEnrollmentRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}

	student, err := s.users.FindByID(ctx, req.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if student.Role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrValidation, "user is not a student")
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

	subjectIDs := req.SubjectIDs
	if len(subjectIDs) == 0 {
		subjectIDs, err = s.classes.CompulsorySubjectIDs(ctx, req.ClassID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load compulsory subjects")
		}
	} else {
		for _, subjectID := range subjectIDs {
			inCurriculum, err := s.classes.HasSubject(ctx, req.ClassID, subjectID)
			if err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check class curriculum")
			}
			if !inCurriculum {
				return nil, appErrors.Clone(appErrors.ErrValidation, "subject is not part of the class curriculum")
			}
		}
	}

	enrollment := &models.Enrollment{
		StudentID: req.StudentID,
		ClassID:   req.ClassID,
		TermID:    term.ID,
		Status:    models.EnrollmentActive,
	}
	created, err := s.enrollments.CreateWithSubjects(ctx, enrollment, subjectIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
	}
	if !created {
		return nil, appErrors.Clone(appErrors.ErrConflict, "student already has an active enrollment this term")
	}

	s.logger.Info("enrollment created",
		zap.String("enrollment_id", enrollment.ID),
		zap.String("student_id", enrollment.StudentID),
		zap.String("class_id", enrollment.ClassID))
	return enrollment, nil
}

// Get returns an enrollment with class, student and subject details.
func (s *EnrollmentService) Get(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	detail, err := s.enrollments.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return detail, nil
}

// Transfer closes an ACTIVE enrollment and opens a replacement in the
// target class. Subjects the student was ENROLLED in carry over when the
// target class also teaches them; the rest are left behind.
func (s *EnrollmentService) Transfer(ctx context.Context, id string, req TransferEnrollmentRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid transfer payload")
	}

	enrollment, err := s.enrollments.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if enrollment.Status != models.EnrollmentActive {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "only active enrollments can be transferred")
	}
	if enrollment.ClassID == req.TargetClassID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "target class equals current class")
	}

	if _, err := s.classes.FindByID(ctx, req.TargetClassID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "target class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load target class")
	}

	subjects, err := s.enrollments.ListSubjects(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment subjects")
	}
	var carry []string
	for _, subject := range subjects {
		if subject.Status != models.SubjectEnrolled {
			continue
		}
		taught, err := s.classes.HasSubject(ctx, req.TargetClassID, subject.SubjectID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check target curriculum")
		}
		if taught {
			carry = append(carry, subject.SubjectID)
		}
	}

	replacement, err := s.enrollments.Transfer(ctx, id, req.TargetClassID, req.Reason, carry)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "enrollment is no longer active")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to transfer enrollment")
	}

	s.logger.Info("enrollment transferred",
		zap.String("enrollment_id", id),
		zap.String("replacement_id", replacement.ID),
		zap.String("target_class_id", req.TargetClassID),
		zap.Int("carried_subjects", len(carry)))
	return replacement, nil
}

// Complete marks an ACTIVE enrollment COMPLETED and settles its ENROLLED
// subjects. Completing a non-active enrollment is rejected.
func (s *EnrollmentService) Complete(ctx context.Context, id string) (*models.Enrollment, error) {
	enrollment, err := s.enrollments.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if enrollment.Status == models.EnrollmentCompleted {
		return enrollment, nil
	}
	if enrollment.Status != models.EnrollmentActive {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "only active enrollments can be completed")
	}

	updated, err := s.enrollments.Complete(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to complete enrollment")
	}
	if !updated {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "enrollment is no longer active")
	}

	enrollment.Status = models.EnrollmentCompleted
	s.logger.Info("enrollment completed", zap.String("enrollment_id", id))
	return enrollment, nil
}

// DropSubject drops an ENROLLED subject from an enrollment. Dropping a
// subject that is not currently ENROLLED is rejected.
func (s *EnrollmentService) DropSubject(ctx context.Context, enrollmentID, subjectID string) error {
	enrollment, err := s.enrollments.FindByID(ctx, enrollmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if enrollment.Status != models.EnrollmentActive {
		return appErrors.Clone(appErrors.ErrInvalidState, "enrollment is not active")
	}

	dropped, err := s.enrollments.DropSubject(ctx, enrollmentID, subjectID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to drop subject")
	}
	if !dropped {
		return appErrors.Clone(appErrors.ErrInvalidState, "subject is not enrolled")
	}

	s.logger.Info("subject dropped",
		zap.String("enrollment_id", enrollmentID),
		zap.String("subject_id", subjectID))
	return nil
}

// List returns enrollments matching the filter with pagination.
func (s *EnrollmentService) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	items, total, err := s.enrollments.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
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
