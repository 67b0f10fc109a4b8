package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/akademi/akademi-api/internal/authz"
	"github.com/akademi/akademi-api/internal/middleware"
	"github.com/akademi/akademi-api/internal/models"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

func actorFromContext(c *gin.Context) (authz.Actor, bool) {
	claims := claimsFromContext(c)
	if claims == nil {
		return authz.Actor{}, false
	}
	return authz.Actor{ID: claims.UserID, Role: claims.Role}, true
}
