package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/akademi/akademi-api/internal/models"
	"github.com/akademi/akademi-api/internal/service"
	appErrors "github.com/akademi/akademi-api/pkg/errors"
	"github.com/akademi/akademi-api/pkg/response"
)

// JoinRequestHandler exposes the class join workflow.
type JoinRequestHandler struct {
	requests *service.JoinRequestService
}

// NewJoinRequestHandler constructs JoinRequestHandler.
func NewJoinRequestHandler(requests *service.JoinRequestService) *JoinRequestHandler {
	return &JoinRequestHandler{requests: requests}
}

// Create godoc
// @Summary File a join request
// @Tags JoinRequests
// @Accept json
// @Produce json
// @Param payload body service.CreateJoinRequest true "Request payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /join-requests [post]
func (h *JoinRequestHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.CreateJoinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	// Students file for themselves; admins may file on a student's behalf.
	if claims.Role != models.RoleAdmin {
		req.StudentID = claims.UserID
	}

	request, err := h.requests.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, request)
}

// Get godoc
// @Summary Get a join request
// @Tags JoinRequests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /join-requests/{id} [get]
func (h *JoinRequestHandler) Get(c *gin.Context) {
	request, err := h.requests.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// Resolve godoc
// @Summary Approve or reject a join request
// @Tags JoinRequests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body service.ResolveRequest true "Decision"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /join-requests/{id}/resolve [put]
func (h *JoinRequestHandler) Resolve(c *gin.Context) {
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

	request, err := h.requests.Resolve(c.Request.Context(), c.Param("id"), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// ListByClass godoc
// @Summary List join requests for a class
// @Tags JoinRequests
// @Produce json
// @Param id path string true "Class ID"
// @Param status query string false "Filter by status"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /classes/{id}/join-requests [get]
func (h *JoinRequestHandler) ListByClass(c *gin.Context) {
	var status models.RequestStatus
	if raw := strings.ToUpper(c.Query("status")); raw != "" {
		parsed, ok := models.ParseRequestStatus(raw)
		if !ok {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unknown request status"))
			return
		}
		status = parsed
	}

	items, err := h.requests.ListByClass(c.Request.Context(), c.Param("id"), status)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// ListMine godoc
// @Summary List the current student's join requests
// @Tags JoinRequests
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /me/join-requests [get]
func (h *JoinRequestHandler) ListMine(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	items, err := h.requests.ListByStudent(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}
