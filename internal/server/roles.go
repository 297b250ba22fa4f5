package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

type assignRoleRequest struct {
	Role string `json:"role"`
}

// GetMyRole reports the caller's role in the active company.
func (s *Server) GetMyRole(c *gin.Context) {
	actor, ok := s.actorSubject(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	orgID, ok := s.orgIDFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	if s.authzSvc == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	role, err := s.authzSvc.RoleOf(c.Request.Context(), actor, orgID.String())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"actor": actor, "org_id": orgID.String(), "role": role}})
}

func (s *Server) AssignRole(c *gin.Context) {
	actorID := strings.TrimSpace(c.Param("actor_id"))
	if actorID == "" {
		AbortWithError(c, newValidationError("actor_id", "invalid_actor_id", "invalid actor_id"))
		return
	}
	var req assignRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	orgID, ok := s.orgIDFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	if s.authzSvc == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	actor := "user:" + actorID
	if err := s.authzSvc.AssignRole(c.Request.Context(), actor, orgID.String(), req.Role); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"actor": actor, "org_id": orgID.String(), "role": strings.ToLower(strings.TrimSpace(req.Role))}})
}
