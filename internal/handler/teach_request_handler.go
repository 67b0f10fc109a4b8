package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/akademi/akademi-api/internal/models"
	"github.com/akademi/akademi-api/internal/service"
	appErrors "github.com/akademi/akademi-api/pkg/errors"
	"github.com/akademi/akademi-api/pkg/response"
)

// TeachRequestHandler exposes the teach-request workflow.
type TeachRequestHandler struct {
	requests *service.TeachRequestService
}

// NewTeachRequestHandler constructs TeachRequestHandler.
func NewTeachRequestHandler(requests *service.TeachRequestService) *TeachRequestHandler {
	return &TeachRequestHandler{requests: requests}
}

// List godoc
// @Summary List teach requests
// @Tags TeachRequests
// @Produce json
// @Param teacherId query string false "Filter by teacher"
// @Param classId query string false "Filter by class"
// @Param subjectId query string false "Filter by subject"
// @Param status query string false "Filter by status"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /teach-requests [get]
func (h *TeachRequestHandler) List(c *gin.Context) {
	var filter models.TeacherAssignmentFilter
	filter.TeacherID = c.Query("teacherId")
	filter.ClassID = c.Query("classId")
	filter.SubjectID = c.Query("subjectId")
	if raw := strings.ToUpper(c.Query("status")); raw != "" {
		status, ok := models.ParseRequestStatus(raw)
		if !ok {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unknown request status"))
			return
		}
		filter.Status = status
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	items, pagination, err := h.requests.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Create godoc
// @Summary File a teach request
// @Tags TeachRequests
// @Accept json
// @Produce json
// @Param payload body service.CreateTeachRequest true "Request payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /teach-requests [post]
func (h *TeachRequestHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.CreateTeachRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	// Teachers file for themselves; admins may file on a teacher's behalf.
	if claims.Role != models.RoleAdmin {
		req.TeacherID = claims.UserID
	}

	assignment, err := h.requests.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, assignment)
}

// Get godoc
// @Summary Get a teach request
// @Tags TeachRequests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /teach-requests/{id} [get]
func (h *TeachRequestHandler) Get(c *gin.Context) {
	assignment, err := h.requests.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assignment, nil)
}

// Resolve godoc
// @Summary Approve or reject a teach request
// @Tags TeachRequests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body service.ResolveRequest true "Decision"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /teach-requests/{id}/resolve [put]
func (h *TeachRequestHandler) Resolve(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	assignment, err := h.requests.Resolve(c.Request.Context(), c.Param("id"), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assignment, nil)
}
