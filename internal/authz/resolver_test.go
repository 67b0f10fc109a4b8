package authz

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/akademi/akademi-api/internal/models"
)

type assignmentReaderStub struct {
	approved        map[string]bool
	approvedInClass map[string]bool
}

func (s *assignmentReaderStub) ExistsApproved(ctx context.Context, classID, subjectID, teacherID string) (bool, error) {
	return s.approved[classID+"|"+subjectID+"|"+teacherID], nil
}

func (s *assignmentReaderStub) ExistsApprovedInClass(ctx context.Context, classID, teacherID string) (bool, error) {
	return s.approvedInClass[classID+"|"+teacherID], nil
}

type enrollmentReaderStub struct {
	enrollments map[string]*models.Enrollment
	enrolled    map[string]bool
}

func (s *enrollmentReaderStub) FindActiveByStudentAndClass(ctx context.Context, studentID, classID string) (*models.Enrollment, error) {
	if e, ok := s.enrollments[studentID+"|"+classID]; ok {
		cp := *e
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (s *enrollmentReaderStub) HasEnrolledSubject(ctx context.Context, enrollmentID, subjectID string) (bool, error) {
	return s.enrolled[enrollmentID+"|"+subjectID], nil
}

func newResolver(assignments *assignmentReaderStub, enrollments *enrollmentReaderStub) *Resolver {
	if assignments == nil {
		assignments = &assignmentReaderStub{}
	}
	if enrollments == nil {
		enrollments = &enrollmentReaderStub{}
	}
	return NewResolver(assignments, enrollments, zap.NewNop())
}

func TestAuthorizeAdminBypass(t *testing.T) {
	resolver := newResolver(nil, nil)
	admin := Actor{ID: "admin-1", Role: models.RoleAdmin}

	// Admin is allowed everywhere, including resources with no class at all.
	for _, resource := range []models.ResourceDescriptor{
		{Type: models.ResourceContent},
		{Type: models.ResourceAttendance, ClassID: "class-1", SubjectID: "subject-1"},
		{Type: models.ResourceContent, AccessLevel: models.AccessClass, ClassID: "class-9"},
	} {
		decision, err := resolver.Authorize(context.Background(), admin, resource)
		require.NoError(t, err)
		assert.True(t, decision.Allowed)
		assert.Equal(t, ReasonAdmin, decision.Reason)
	}
}

func TestAuthorizeOwner(t *testing.T) {
	resolver := newResolver(nil, nil)
	teacher := Actor{ID: "teacher-1", Role: models.RoleTeacher}

	decision, err := resolver.Authorize(context.Background(), teacher, models.ResourceDescriptor{
		Type:    models.ResourceContent,
		OwnerID: "teacher-1",
	})
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, ReasonOwner, decision.Reason)
}

func TestAuthorizeAccessLevels(t *testing.T) {
	resolver := newResolver(nil, nil)
	student := Actor{ID: "student-1", Role: models.RoleStudent}

	public, err := resolver.Authorize(context.Background(), student, models.ResourceDescriptor{
		Type: models.ResourceContent, OwnerID: "teacher-1", AccessLevel: models.AccessPublic,
	})
	require.NoError(t, err)
	assert.True(t, public.Allowed)
	assert.Equal(t, ReasonPublic, public.Reason)

	school, err := resolver.Authorize(context.Background(), student, models.ResourceDescriptor{
		Type: models.ResourceContent, OwnerID: "teacher-1", AccessLevel: models.AccessSchool,
	})
	require.NoError(t, err)
	assert.True(t, school.Allowed)
	assert.Equal(t, ReasonSchool, school.Reason)
}

func TestAuthorizeTeacherAssignmentStatus(t *testing.T) {
	// Only an APPROVED assignment for the exact (class, subject) grants
	// access; pending or rejected tuples never do.
	assignments := &assignmentReaderStub{
		approved: map[string]bool{"class-1|subject-1|teacher-1": true},
	}
	resolver := newResolver(assignments, nil)
	teacher := Actor{ID: "teacher-1", Role: models.RoleTeacher}

	allowed, err := resolver.Authorize(context.Background(), teacher, models.ResourceDescriptor{
		Type: models.ResourceContent, OwnerID: "other", AccessLevel: models.AccessClass,
		ClassID: "class-1", SubjectID: "subject-1",
	})
	require.NoError(t, err)
	assert.True(t, allowed.Allowed)
	assert.Equal(t, ReasonTeacherAssignment, allowed.Reason)

	denied, err := resolver.Authorize(context.Background(), teacher, models.ResourceDescriptor{
		Type: models.ResourceContent, OwnerID: "other", AccessLevel: models.AccessClass,
		ClassID: "class-1", SubjectID: "subject-2",
	})
	require.NoError(t, err)
	assert.False(t, denied.Allowed)
	assert.Equal(t, ReasonForbidden, denied.Reason)
}

func TestAuthorizeTeacherWholeClassResource(t *testing.T) {
	assignments := &assignmentReaderStub{
		approvedInClass: map[string]bool{"class-1|teacher-1": true},
	}
	resolver := newResolver(assignments, nil)
	teacher := Actor{ID: "teacher-1", Role: models.RoleTeacher}

	decision, err := resolver.Authorize(context.Background(), teacher, models.ResourceDescriptor{
		Type: models.ResourceAttendance, OwnerID: "other", ClassID: "class-1",
	})
	require.NoError(t, err)
	assert.True(t, decision.Allowed)

	other, err := resolver.Authorize(context.Background(), teacher, models.ResourceDescriptor{
		Type: models.ResourceAttendance, OwnerID: "other", ClassID: "class-2",
	})
	require.NoError(t, err)
	assert.False(t, other.Allowed)
}

func TestAuthorizeStudentEnrollment(t *testing.T) {
	enrollments := &enrollmentReaderStub{
		enrollments: map[string]*models.Enrollment{
			"student-1|class-1": {ID: "enr-1", StudentID: "student-1", ClassID: "class-1", Status: models.EnrollmentActive},
		},
		enrolled: map[string]bool{"enr-1|subject-1": true},
	}
	resolver := newResolver(nil, enrollments)
	student := Actor{ID: "student-1", Role: models.RoleStudent}

	allowed, err := resolver.Authorize(context.Background(), student, models.ResourceDescriptor{
		Type: models.ResourceAttendance, OwnerID: "teacher-1", ClassID: "class-1", SubjectID: "subject-1",
	})
	require.NoError(t, err)
	assert.True(t, allowed.Allowed)
	assert.Equal(t, ReasonStudentEnrollment, allowed.Reason)

	otherSubject, err := resolver.Authorize(context.Background(), student, models.ResourceDescriptor{
		Type: models.ResourceAttendance, OwnerID: "teacher-1", ClassID: "class-1", SubjectID: "subject-2",
	})
	require.NoError(t, err)
	assert.False(t, otherSubject.Allowed)

	wholeClass, err := resolver.Authorize(context.Background(), student, models.ResourceDescriptor{
		Type: models.ResourceAttendance, OwnerID: "teacher-1", ClassID: "class-1",
	})
	require.NoError(t, err)
	assert.True(t, wholeClass.Allowed)
}

func TestAuthorizeStudentInactiveEnrollmentDenied(t *testing.T) {
	// A completed or transferred enrollment never appears in the active
	// lookup, so access flips to deny with no other state change.
	enrollments := &enrollmentReaderStub{enrollments: map[string]*models.Enrollment{}}
	resolver := newResolver(nil, enrollments)
	student := Actor{ID: "student-1", Role: models.RoleStudent}

	decision, err := resolver.Authorize(context.Background(), student, models.ResourceDescriptor{
		Type: models.ResourceGradebook, OwnerID: "teacher-1", ClassID: "class-1", SubjectID: "subject-1",
	})
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, ReasonForbidden, decision.Reason)
}

func TestAuthorizeTransferFlipsClasses(t *testing.T) {
	enrollments := &enrollmentReaderStub{
		enrollments: map[string]*models.Enrollment{
			"student-1|class-2": {ID: "enr-2", StudentID: "student-1", ClassID: "class-2", Status: models.EnrollmentActive},
		},
		enrolled: map[string]bool{"enr-2|subject-1": true},
	}
	resolver := newResolver(nil, enrollments)
	student := Actor{ID: "student-1", Role: models.RoleStudent}

	old, err := resolver.Authorize(context.Background(), student, models.ResourceDescriptor{
		Type: models.ResourceAttendance, OwnerID: "teacher-1", ClassID: "class-1", SubjectID: "subject-1",
	})
	require.NoError(t, err)
	assert.False(t, old.Allowed)

	current, err := resolver.Authorize(context.Background(), student, models.ResourceDescriptor{
		Type: models.ResourceAttendance, OwnerID: "teacher-1", ClassID: "class-2", SubjectID: "subject-1",
	})
	require.NoError(t, err)
	assert.True(t, current.Allowed)
}

func TestAuthorizeClassBoundWithoutClassFailsClosed(t *testing.T) {
	resolver := newResolver(nil, nil)
	teacher := Actor{ID: "teacher-1", Role: models.RoleTeacher}

	decision, err := resolver.Authorize(context.Background(), teacher, models.ResourceDescriptor{
		Type: models.ResourceGradebook, OwnerID: "other",
	})
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
}

func TestAuthorizeDefaultDeny(t *testing.T) {
	resolver := newResolver(nil, nil)
	student := Actor{ID: "student-1", Role: models.RoleStudent}

	decision, err := resolver.Authorize(context.Background(), student, models.ResourceDescriptor{
		Type: models.ResourceContent, OwnerID: "teacher-1",
	})
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, ReasonForbidden, decision.Reason)
}
