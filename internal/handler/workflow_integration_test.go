package handler

import (
	"bytes"
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/akademi/akademi-api/internal/authz"
	internalmiddleware "github.com/akademi/akademi-api/internal/middleware"
	"github.com/akademi/akademi-api/internal/models"
	"github.com/akademi/akademi-api/internal/service"
)

func TestWorkflowRoutesIntegration(t *testing.T) {
	router := buildWorkflowRouter()

	t.Run("teach request create as teacher", func(t *testing.T) {
		payload := `{"class_id":"class-1","subject_id":"subject-1"}`
		req, _ := http.NewRequest(http.MethodPost, "/teach-requests", bytes.NewBufferString(payload))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Test-Role", string(models.RoleTeacher))
		req.Header.Set("X-Test-User", "teacher-1")
		resp := performRequest(router, req)
		require.Equal(t, http.StatusCreated, resp.Code)
		require.Contains(t, resp.Body.String(), `"status":"PENDING"`)
	})

	t.Run("teach request create unauthorized", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPost, "/teach-requests", bytes.NewBufferString(`{}`))
		req.Header.Set("Content-Type", "application/json")
		resp := performRequest(router, req)
		require.Equal(t, http.StatusUnauthorized, resp.Code)
	})

	t.Run("teach request resolve forbidden for teacher", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPut, "/teach-requests/req-1/resolve", bytes.NewBufferString(`{"status":"APPROVED"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Test-Role", string(models.RoleTeacher))
		resp := performRequest(router, req)
		require.Equal(t, http.StatusForbidden, resp.Code)
	})

	t.Run("teach request resolve as admin", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPut, "/teach-requests/req-1/resolve", bytes.NewBufferString(`{"status":"APPROVED"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Test-Role", string(models.RoleAdmin))
		req.Header.Set("X-Test-User", "admin-1")
		resp := performRequest(router, req)
		require.Equal(t, http.StatusOK, resp.Code)
		require.Contains(t, resp.Body.String(), `"status":"APPROVED"`)
	})

	t.Run("authz check denies foreign gradebook", func(t *testing.T) {
		payload := `{"type":"GRADEBOOK","class_id":"class-9","subject_id":"subject-9"}`
		req, _ := http.NewRequest(http.MethodPost, "/authz/check", bytes.NewBufferString(payload))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Test-Role", string(models.RoleTeacher))
		req.Header.Set("X-Test-User", "teacher-1")
		resp := performRequest(router, req)
		require.Equal(t, http.StatusOK, resp.Code)
		require.Contains(t, resp.Body.String(), `"allowed":false`)
	})

	t.Run("authz check allows assigned pair", func(t *testing.T) {
		payload := `{"type":"GRADEBOOK","class_id":"class-1","subject_id":"subject-1"}`
		req, _ := http.NewRequest(http.MethodPost, "/authz/check", bytes.NewBufferString(payload))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Test-Role", string(models.RoleTeacher))
		req.Header.Set("X-Test-User", "teacher-1")
		resp := performRequest(router, req)
		require.Equal(t, http.StatusOK, resp.Code)
		require.Contains(t, resp.Body.String(), `"allowed":true`)
	})

	t.Run("authz check rejects unknown type", func(t *testing.T) {
		payload := `{"type":"SOMETHING"}`
		req, _ := http.NewRequest(http.MethodPost, "/authz/check", bytes.NewBufferString(payload))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Test-Role", string(models.RoleStudent))
		req.Header.Set("X-Test-User", "student-1")
		resp := performRequest(router, req)
		require.Equal(t, http.StatusBadRequest, resp.Code)
	})

	t.Run("scope returns empty array for unassigned teacher", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, "/me/scope", nil)
		req.Header.Set("X-Test-Role", string(models.RoleTeacher))
		req.Header.Set("X-Test-User", "teacher-9")
		resp := performRequest(router, req)
		require.Equal(t, http.StatusOK, resp.Code)
		require.Contains(t, resp.Body.String(), `"data":[]`)
	})
}

func buildWorkflowRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		if role := c.GetHeader("X-Test-Role"); role != "" {
			userID := c.GetHeader("X-Test-User")
			if userID == "" {
				userID = "test-user"
			}
			c.Set(internalmiddleware.ContextUserKey, &models.JWTClaims{
				UserID: userID,
				Role:   models.UserRole(role),
			})
		}
		c.Next()
	})

	assignments := &integrationAssignmentRepo{
		assignments: map[string]models.TeacherAssignment{
			"req-1": {ID: "req-1", ClassID: "class-1", SubjectID: "subject-1", TeacherID: "teacher-1", Status: models.RequestPending},
		},
		approved: map[string]bool{"class-1|subject-1|teacher-1": true},
	}
	users := &integrationUserRepo{}
	classes := &integrationClassRepo{}

	teachSvc := service.NewTeachRequestService(assignments, users, classes, nil, nil)
	teachHandler := NewTeachRequestHandler(teachSvc)

	resolver := authz.NewResolver(assignments, &integrationEnrollmentRepo{}, nil)
	index := authz.NewIndex(assignments, &integrationEnrollmentRepo{}, &integrationClassRepo{}, &integrationUserRepo{})
	authzHandler := NewAuthzHandler(resolver, index, nil)

	anyRole := internalmiddleware.RequireRoles(models.RoleAdmin, models.RoleTeacher, models.RoleStudent)
	adminOnly := internalmiddleware.RequireRoles(models.RoleAdmin)

	router.POST("/teach-requests", anyRole, teachHandler.Create)
	router.PUT("/teach-requests/:id/resolve", adminOnly, teachHandler.Resolve)
	router.POST("/authz/check", anyRole, authzHandler.Check)
	router.GET("/me/scope", anyRole, authzHandler.Scope)

	return router
}

func performRequest(router *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

type integrationAssignmentRepo struct {
	assignments map[string]models.TeacherAssignment
	approved    map[string]bool
}

func (r *integrationAssignmentRepo) Create(ctx context.Context, assignment *models.TeacherAssignment) (bool, error) {
	assignment.ID = "req-new"
	r.assignments[assignment.ID] = *assignment
	return true, nil
}

func (r *integrationAssignmentRepo) FindByID(ctx context.Context, id string) (*models.TeacherAssignment, error) {
	if a, ok := r.assignments[id]; ok {
		return &a, nil
	}
	return nil, sql.ErrNoRows
}

func (r *integrationAssignmentRepo) FindByTuple(ctx context.Context, classID, subjectID, teacherID string) (*models.TeacherAssignment, error) {
	return nil, sql.ErrNoRows
}

func (r *integrationAssignmentRepo) ResolvePending(ctx context.Context, id string, status models.RequestStatus, adminID string, resolvedAt time.Time) (bool, error) {
	a, ok := r.assignments[id]
	if !ok || a.Status != models.RequestPending {
		return false, nil
	}
	a.Status = status
	a.ResolvedAt = &resolvedAt
	a.ResolvedBy = &adminID
	r.assignments[id] = a
	return true, nil
}

func (r *integrationAssignmentRepo) List(ctx context.Context, filter models.TeacherAssignmentFilter) ([]models.TeacherAssignmentDetail, int, error) {
	return nil, 0, nil
}

func (r *integrationAssignmentRepo) ExistsApproved(ctx context.Context, classID, subjectID, teacherID string) (bool, error) {
	return r.approved[classID+"|"+subjectID+"|"+teacherID], nil
}

func (r *integrationAssignmentRepo) ExistsApprovedInClass(ctx context.Context, classID, teacherID string) (bool, error) {
	return false, nil
}

func (r *integrationAssignmentRepo) ApprovedPairsByTeacher(ctx context.Context, teacherID string) ([]models.ClassSubjectPair, error) {
	return nil, nil
}

type integrationUserRepo struct{}

func (integrationUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	switch id {
	case "teacher-1":
		return &models.User{ID: id, Role: models.RoleTeacher, Active: true}, nil
	case "student-1":
		return &models.User{ID: id, Role: models.RoleStudent, Active: true}, nil
	}
	return nil, sql.ErrNoRows
}

func (integrationUserRepo) HasQualification(ctx context.Context, teacherID, subjectID, grade string) (bool, error) {
	return teacherID == "teacher-1" && subjectID == "subject-1", nil
}

func (integrationUserRepo) StudentsOfTeacher(ctx context.Context, teacherID string) ([]models.Peer, error) {
	return nil, nil
}

func (integrationUserRepo) TeachersOfStudent(ctx context.Context, studentID string) ([]models.Peer, error) {
	return nil, nil
}

func (integrationUserRepo) AllActivePeers(ctx context.Context) ([]models.Peer, error) {
	return nil, nil
}

type integrationClassRepo struct{}

func (integrationClassRepo) FindByID(ctx context.Context, id string) (*models.Class, error) {
	if id == "class-1" {
		return &models.Class{ID: id, Grade: "10"}, nil
	}
	return nil, sql.ErrNoRows
}

func (integrationClassRepo) HasSubject(ctx context.Context, classID, subjectID string) (bool, error) {
	return classID == "class-1" && subjectID == "subject-1", nil
}

func (integrationClassRepo) AllPairs(ctx context.Context) ([]models.ClassSubjectPair, error) {
	return nil, nil
}

type integrationEnrollmentRepo struct{}

func (integrationEnrollmentRepo) FindActiveByStudentAndClass(ctx context.Context, studentID, classID string) (*models.Enrollment, error) {
	return nil, sql.ErrNoRows
}

func (integrationEnrollmentRepo) HasEnrolledSubject(ctx context.Context, enrollmentID, subjectID string) (bool, error) {
	return false, nil
}

func (integrationEnrollmentRepo) ActivePairsByStudent(ctx context.Context, studentID string) ([]models.ClassSubjectPair, error) {
	return nil, nil
}
