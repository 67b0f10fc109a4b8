package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akademi/akademi-api/internal/models"
	appErrors "github.com/akademi/akademi-api/pkg/errors"
)

type mockJoinRequestRepo struct {
	requests map[string]models.ClassJoinRequest
	tuples   map[string]bool
	pending  map[string]bool
}

func (m *mockJoinRequestRepo) Create(ctx context.Context, request *models.ClassJoinRequest) (bool, error) {
	key := request.ClassID + "|" + request.StudentID
	if m.tuples[key] {
		return false, nil
	}
	m.tuples[key] = true
	request.ID = "join-1"
	m.requests[request.ID] = *request
	return true, nil
}

func (m *mockJoinRequestRepo) FindByID(ctx context.Context, id string) (*models.ClassJoinRequest, error) {
	if r, ok := m.requests[id]; ok {
		return &r, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockJoinRequestRepo) ResolvePending(ctx context.Context, id string, status models.RequestStatus, adminID string, resolvedAt time.Time) (bool, error) {
	r, ok := m.requests[id]
	if !ok || r.Status != models.RequestPending {
		return false, nil
	}
	r.Status = status
	r.ResolvedAt = &resolvedAt
	r.ResolvedBy = &adminID
	m.requests[id] = r
	return true, nil
}

func (m *mockJoinRequestRepo) HasPendingByStudent(ctx context.Context, studentID string) (bool, error) {
	return m.pending[studentID], nil
}

func (m *mockJoinRequestRepo) ListByClass(ctx context.Context, classID string, status models.RequestStatus) ([]models.ClassJoinRequestDetail, error) {
	return nil, nil
}

func (m *mockJoinRequestRepo) ListByStudent(ctx context.Context, studentID string) ([]models.ClassJoinRequestDetail, error) {
	return nil, nil
}

type mockJoinClassRepo struct {
	classes    map[string]models.Class
	compulsory map[string][]string
}

func (m *mockJoinClassRepo) FindByID(ctx context.Context, id string) (*models.Class, error) {
	if c, ok := m.classes[id]; ok {
		return &c, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockJoinClassRepo) CompulsorySubjectIDs(ctx context.Context, classID string) ([]string, error) {
	return m.compulsory[classID], nil
}

type mockJoinEnrollmentRepo struct {
	active   map[string]bool
	created  *models.Enrollment
	subjects []string
}

func (m *mockJoinEnrollmentRepo) ExistsActive(ctx context.Context, studentID, termID string) (bool, error) {
	return m.active[studentID+"|"+termID], nil
}

func (m *mockJoinEnrollmentRepo) CreateWithSubjects(ctx context.Context, enrollment *models.Enrollment, subjectIDs []string) (bool, error) {
	if m.active[enrollment.StudentID+"|"+enrollment.TermID] {
		return false, nil
	}
	enrollment.ID = "enrollment-1"
	m.created = enrollment
	m.subjects = subjectIDs
	return true, nil
}

type mockTermRepo struct {
	active *models.Term
}

func (m *mockTermRepo) FindActive(ctx context.Context) (*models.Term, error) {
	if m.active == nil {
		return nil, sql.ErrNoRows
	}
	return m.active, nil
}

func joinFixtures() (*mockJoinRequestRepo, *mockTeachUserRepo, *mockJoinClassRepo, *mockJoinEnrollmentRepo, *mockTermRepo) {
	requests := &mockJoinRequestRepo{
		requests: map[string]models.ClassJoinRequest{},
		tuples:   map[string]bool{},
		pending:  map[string]bool{},
	}
	users := &mockTeachUserRepo{
		users: map[string]models.User{
			"student-1": {ID: "student-1", Role: models.RoleStudent, Active: true},
			"teacher-1": {ID: "teacher-1", Role: models.RoleTeacher, Active: true},
		},
	}
	classes := &mockJoinClassRepo{
		classes: map[string]models.Class{
			"class-1": {ID: "class-1", Grade: "10"},
		},
		compulsory: map[string][]string{
			"class-1": {"subject-1", "subject-2"},
		},
	}
	enrollments := &mockJoinEnrollmentRepo{active: map[string]bool{}}
	terms := &mockTermRepo{active: &models.Term{ID: "term-1", IsActive: true}}
	return requests, users, classes, enrollments, terms
}

func TestJoinRequestCreate(t *testing.T) {
	requests, users, classes, enrollments, terms := joinFixtures()
	svc := NewJoinRequestService(requests, users, classes, enrollments, terms, nil, nil)

	request, err := svc.Create(context.Background(), CreateJoinRequest{ClassID: "class-1", StudentID: "student-1"})
	require.NoError(t, err)
	assert.Equal(t, models.RequestPending, request.Status)
}

func TestJoinRequestCreateRejectsNonStudent(t *testing.T) {
	requests, users, classes, enrollments, terms := joinFixtures()
	svc := NewJoinRequestService(requests, users, classes, enrollments, terms, nil, nil)

	_, err := svc.Create(context.Background(), CreateJoinRequest{ClassID: "class-1", StudentID: "teacher-1"})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))
}

func TestJoinRequestCreateRejectsActiveEnrollment(t *testing.T) {
	requests, users, classes, enrollments, terms := joinFixtures()
	enrollments.active["student-1|term-1"] = true
	svc := NewJoinRequestService(requests, users, classes, enrollments, terms, nil, nil)

	_, err := svc.Create(context.Background(), CreateJoinRequest{ClassID: "class-1", StudentID: "student-1"})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrConflict.Code))
}

func TestJoinRequestCreateRejectsSecondPending(t *testing.T) {
	requests, users, classes, enrollments, terms := joinFixtures()
	requests.pending["student-1"] = true
	svc := NewJoinRequestService(requests, users, classes, enrollments, terms, nil, nil)

	_, err := svc.Create(context.Background(), CreateJoinRequest{ClassID: "class-1", StudentID: "student-1"})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrConflict.Code))
}

func TestJoinRequestCreateWithoutActiveTerm(t *testing.T) {
	requests, users, classes, enrollments, terms := joinFixtures()
	terms.active = nil
	svc := NewJoinRequestService(requests, users, classes, enrollments, terms, nil, nil)

	_, err := svc.Create(context.Background(), CreateJoinRequest{ClassID: "class-1", StudentID: "student-1"})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrInvalidState.Code))
}

func TestJoinRequestApprovalMaterializesEnrollment(t *testing.T) {
	requests, users, classes, enrollments, terms := joinFixtures()
	requests.requests["join-1"] = models.ClassJoinRequest{
		ID: "join-1", ClassID: "class-1", StudentID: "student-1", Status: models.RequestPending,
	}
	svc := NewJoinRequestService(requests, users, classes, enrollments, terms, nil, nil)

	resolved, err := svc.Resolve(context.Background(), "join-1", "admin-1", ResolveRequest{Status: "APPROVED"})
	require.NoError(t, err)
	assert.Equal(t, models.RequestApproved, resolved.Status)

	require.NotNil(t, enrollments.created)
	assert.Equal(t, "student-1", enrollments.created.StudentID)
	assert.Equal(t, "class-1", enrollments.created.ClassID)
	assert.Equal(t, "term-1", enrollments.created.TermID)
	assert.Equal(t, models.EnrollmentActive, enrollments.created.Status)
	assert.Equal(t, []string{"subject-1", "subject-2"}, enrollments.subjects)
}

func TestJoinRequestRejectionSkipsEnrollment(t *testing.T) {
	requests, users, classes, enrollments, terms := joinFixtures()
	requests.requests["join-1"] = models.ClassJoinRequest{
		ID: "join-1", ClassID: "class-1", StudentID: "student-1", Status: models.RequestPending,
	}
	svc := NewJoinRequestService(requests, users, classes, enrollments, terms, nil, nil)

	resolved, err := svc.Resolve(context.Background(), "join-1", "admin-1", ResolveRequest{Status: "REJECTED"})
	require.NoError(t, err)
	assert.Equal(t, models.RequestRejected, resolved.Status)
	assert.Nil(t, enrollments.created)
}

func TestJoinRequestResolveIdempotent(t *testing.T) {
	requests, users, classes, enrollments, terms := joinFixtures()
	requests.requests["join-1"] = models.ClassJoinRequest{
		ID: "join-1", ClassID: "class-1", StudentID: "student-1", Status: models.RequestRejected,
	}
	svc := NewJoinRequestService(requests, users, classes, enrollments, terms, nil, nil)

	resolved, err := svc.Resolve(context.Background(), "join-1", "admin-1", ResolveRequest{Status: "REJECTED"})
	require.NoError(t, err)
	assert.Equal(t, models.RequestRejected, resolved.Status)

	_, err = svc.Resolve(context.Background(), "join-1", "admin-1", ResolveRequest{Status: "APPROVED"})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrInvalidState.Code))
}
