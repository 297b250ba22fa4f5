package server

import (
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/boqledger/internal/auditcontext"
	obscontext "github.com/smallbiznis/boqledger/internal/observability/context"
	"github.com/smallbiznis/boqledger/internal/orgcontext"
)

const (
	HeaderOrg   = "X-Org-ID"
	HeaderActor = "X-Actor-ID"

	contextOrgIDKey  = "org_id"
	contextUserIDKey = "user_id"
)

// OrgContext resolves the active company from the X-Org-ID header, falling
// back to the configured default company.
func (s *Server) OrgContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID := snowflake.ID(s.cfg.DefaultOrgID)
		if raw := strings.TrimSpace(c.GetHeader(HeaderOrg)); raw != "" {
			parsed, err := snowflake.ParseString(raw)
			if err != nil || parsed == 0 {
				AbortWithError(c, newValidationError("org_id", "invalid_org_id", "invalid organization"))
				return
			}
			orgID = parsed
		}
		if orgID == 0 {
			AbortWithError(c, newValidationError("org_id", "invalid_org_id", "organization is required"))
			return
		}

		ctx := orgcontext.WithOrgID(c.Request.Context(), int64(orgID))
		ctx = obscontext.WithOrgID(ctx, orgID.String())
		c.Request = c.Request.WithContext(ctx)
		c.Set(contextOrgIDKey, orgID)
		c.Next()
	}
}

// ActorContext records the acting user for approvals and audit entries.
// Requests without X-Actor-ID run as the system actor.
func (s *Server) ActorContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if userID := strings.TrimSpace(c.GetHeader(HeaderActor)); userID != "" {
			ctx = auditcontext.WithActor(ctx, auditcontext.ActorTypeUser, userID)
			ctx = obscontext.WithActor(ctx, auditcontext.ActorTypeUser, userID)
			c.Set(contextUserIDKey, userID)
		} else {
			ctx = auditcontext.WithActor(ctx, auditcontext.ActorTypeSystem, "")
			ctx = obscontext.WithActor(ctx, auditcontext.ActorTypeSystem, "")
		}

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func (s *Server) authorize(object string, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.cfg.AuthzEnabled || s.authzSvc == nil {
			c.Next()
			return
		}

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

		if err := s.authzSvc.Authorize(c.Request.Context(), actor, orgID.String(), object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

func (s *Server) actorSubject(c *gin.Context) (string, bool) {
	userID := strings.TrimSpace(c.GetString(contextUserIDKey))
	if userID == "" {
		return "", false
	}
	return "user:" + userID, true
}

func (s *Server) orgIDFromContext(c *gin.Context) (snowflake.ID, bool) {
	return orgcontext.OrgIDFromContext(c.Request.Context())
}

// WriteRateLimit throttles mutating requests per company.
func (s *Server) WriteRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.writeLimiter.Enabled() {
			c.Next()
			return
		}
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
			return
		}
		orgID, ok := s.orgIDFromContext(c)
		if !ok {
			c.Next()
			return
		}

		res := s.writeLimiter.AllowOrg(c.Request.Context(), orgID.String())
		if res.Limit > 0 {
			c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		}
		if !res.Allowed {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(res.RetryAfter.Seconds()))))
			AbortWithError(c, ErrTooManyRequests)
			return
		}
		c.Next()
	}
}
