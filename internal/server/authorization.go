package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/payora/internal/actorcontext"
	"github.com/smallbiznis/payora/internal/orgcontext"
)

func (s *Server) authorizeOrgAction(object string, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.authorizeOrgActionWithContext(c, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

func (s *Server) authorizeOrgActionWithContext(c *gin.Context, object string, action string) error {
	ctx := c.Request.Context()

	actor, ok := actorcontext.ActorFromContext(ctx)
	if !ok {
		return ErrUnauthorized
	}

	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return newValidationError("org_id", "invalid_organization", "missing or invalid organization")
	}

	if s.authzSvc == nil {
		return ErrForbidden
	}
	return s.authzSvc.Authorize(ctx, actor.Subject(), orgID.String(), strings.TrimSpace(object), strings.TrimSpace(action))
}
