// Package authz resolves whether an actor may act on a resource, based on
// the approved teacher-assignment and active student-enrollment relations.
// Every resource surface consults the same resolver; none carries its own
// rule set.
package authz

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/akademi/akademi-api/internal/models"
)

// Actor identifies the acting user for an access check.
type Actor struct {
	ID   string
	Role models.UserRole
}

// Decision is the outcome of an access check.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
}

// Decision reasons exposed for logging and the decision probe endpoint.
const (
	ReasonAdmin             = "admin"
	ReasonOwner             = "owner"
	ReasonPublic            = "public_access"
	ReasonSchool            = "school_access"
	ReasonTeacherAssignment = "approved_assignment"
	ReasonStudentEnrollment = "active_enrollment"
	ReasonForbidden         = "forbidden"
)

type assignmentReader interface {
	ExistsApproved(ctx context.Context, classID, subjectID, teacherID string) (bool, error)
	ExistsApprovedInClass(ctx context.Context, classID, teacherID string) (bool, error)
}

type enrollmentReader interface {
	FindActiveByStudentAndClass(ctx context.Context, studentID, classID string) (*models.Enrollment, error)
	HasEnrolledSubject(ctx context.Context, enrollmentID, subjectID string) (bool, error)
}

// Resolver is the stateless access decision function. It only reads; a
// missing class or enrollment during lookup is a denial, never an error.
type Resolver struct {
	assignments assignmentReader
	enrollments enrollmentReader
	logger      *zap.Logger
}

// NewResolver constructs a Resolver.
func NewResolver(assignments assignmentReader, enrollments enrollmentReader, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{assignments: assignments, enrollments: enrollments, logger: logger}
}

// Authorize decides whether the actor may act on the described resource.
// Rules short-circuit in order: admin, owner, public, school, then the
// class/subject relation graph. Anything else is denied.
func (r *Resolver) Authorize(ctx context.Context, actor Actor, resource models.ResourceDescriptor) (Decision, error) {
	if actor.Role == models.RoleAdmin {
		return Decision{Allowed: true, Reason: ReasonAdmin}, nil
	}

	if resource.OwnerID != "" && resource.OwnerID == actor.ID {
		return Decision{Allowed: true, Reason: ReasonOwner}, nil
	}

	switch resource.AccessLevel {
	case models.AccessPublic:
		return Decision{Allowed: true, Reason: ReasonPublic}, nil
	case models.AccessSchool:
		return Decision{Allowed: true, Reason: ReasonSchool}, nil
	}

	if resource.AccessLevel == models.AccessClass || resource.Type.ClassBound() {
		return r.resolveClassScope(ctx, actor, resource)
	}

	return Decision{Reason: ReasonForbidden}, nil
}

func (r *Resolver) resolveClassScope(ctx context.Context, actor Actor, resource models.ResourceDescriptor) (Decision, error) {
	if resource.ClassID == "" {
		// Class-bound resource without a class reference: fail closed.
		return Decision{Reason: ReasonForbidden}, nil
	}

	switch actor.Role {
	case models.RoleTeacher:
		return r.resolveTeacher(ctx, actor.ID, resource)
	case models.RoleStudent:
		return r.resolveStudent(ctx, actor.ID, resource)
	}
	return Decision{Reason: ReasonForbidden}, nil
}

func (r *Resolver) resolveTeacher(ctx context.Context, teacherID string, resource models.ResourceDescriptor) (Decision, error) {
	var (
		approved bool
		err      error
	)
	if resource.SubjectID != "" {
		approved, err = r.assignments.ExistsApproved(ctx, resource.ClassID, resource.SubjectID, teacherID)
	} else {
		approved, err = r.assignments.ExistsApprovedInClass(ctx, resource.ClassID, teacherID)
	}
	if err != nil {
		return Decision{Reason: ReasonForbidden}, err
	}
	if !approved {
		return Decision{Reason: ReasonForbidden}, nil
	}
	return Decision{Allowed: true, Reason: ReasonTeacherAssignment}, nil
}

func (r *Resolver) resolveStudent(ctx context.Context, studentID string, resource models.ResourceDescriptor) (Decision, error) {
	enrollment, err := r.enrollments.FindActiveByStudentAndClass(ctx, studentID, resource.ClassID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Decision{Reason: ReasonForbidden}, nil
		}
		return Decision{Reason: ReasonForbidden}, err
	}

	if resource.SubjectID != "" {
		enrolled, err := r.enrollments.HasEnrolledSubject(ctx, enrollment.ID, resource.SubjectID)
		if err != nil {
			return Decision{Reason: ReasonForbidden}, err
		}
		if !enrolled {
			return Decision{Reason: ReasonForbidden}, nil
		}
	}
	return Decision{Allowed: true, Reason: ReasonStudentEnrollment}, nil
}
