package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/akademi/akademi-api/internal/authz"
	"github.com/akademi/akademi-api/internal/models"
	"github.com/akademi/akademi-api/internal/service"
	appErrors "github.com/akademi/akademi-api/pkg/errors"
	"github.com/akademi/akademi-api/pkg/response"
)

// CheckAccessRequest describes the resource for a decision probe. Unknown
// type or access level values are rejected before the resolver runs.
type CheckAccessRequest struct {
	Type        string `json:"type" binding:"required"`
	OwnerID     string `json:"owner_id"`
	ClassID     string `json:"class_id"`
	SubjectID   string `json:"subject_id"`
	AccessLevel string `json:"access_level"`
}

// AuthzHandler exposes the access resolver and scoping index.
type AuthzHandler struct {
	resolver *authz.Resolver
	index    *authz.Index
	metrics  *service.MetricsService
}

// NewAuthzHandler constructs AuthzHandler.
func NewAuthzHandler(resolver *authz.Resolver, index *authz.Index, metrics *service.MetricsService) *AuthzHandler {
	return &AuthzHandler{resolver: resolver, index: index, metrics: metrics}
}

// Check godoc
// @Summary Probe an access decision for the current user
// @Tags Authz
// @Accept json
// @Produce json
// @Param payload body CheckAccessRequest true "Resource descriptor"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /authz/check [post]
func (h *AuthzHandler) Check(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req CheckAccessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	resourceType, ok := models.ParseResourceType(req.Type)
	if !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unknown resource type"))
		return
	}
	var accessLevel models.AccessLevel
	if req.AccessLevel != "" {
		accessLevel, ok = models.ParseAccessLevel(req.AccessLevel)
		if !ok {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unknown access level"))
			return
		}
	}

	resource := models.ResourceDescriptor{
		Type:        resourceType,
		OwnerID:     req.OwnerID,
		ClassID:     req.ClassID,
		SubjectID:   req.SubjectID,
		AccessLevel: accessLevel,
	}

	start := time.Now()
	decision, err := h.resolver.Authorize(c.Request.Context(), actor, resource)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "access check failed"))
		return
	}
	if h.metrics != nil {
		h.metrics.ObserveAuthzDecision(decision.Allowed, decision.Reason, time.Since(start))
	}
	response.JSON(c, http.StatusOK, decision, nil)
}

// Scope godoc
// @Summary List the current user's permitted class-subject pairs
// @Tags Authz
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /me/scope [get]
func (h *AuthzHandler) Scope(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	pairs, err := h.index.ScopedPairs(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute scope"))
		return
	}
	if pairs == nil {
		pairs = []models.ClassSubjectPair{}
	}
	response.JSON(c, http.StatusOK, pairs, nil)
}

// Peers godoc
// @Summary List users the current user may message
// @Tags Authz
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /me/peers [get]
func (h *AuthzHandler) Peers(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	peers, err := h.index.MessageablePeers(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute peers"))
		return
	}
	if peers == nil {
		peers = []models.Peer{}
	}
	response.JSON(c, http.StatusOK, peers, nil)
}
