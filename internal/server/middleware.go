package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/payora/internal/actorcontext"
	obscontext "github.com/smallbiznis/payora/internal/observability/context"
	"github.com/smallbiznis/payora/internal/orgcontext"
)

// Identity arrives on trusted headers set by the gateway in front of this
// service. The gateway terminates authentication; we resolve the membership
// role ourselves rather than trusting a role header.
const (
	HeaderOrg       = "X-Org-ID"
	HeaderActorType = "X-Actor-Type"
	HeaderActorID   = "X-Actor-ID"
)

func (s *Server) IdentityContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		orgID, ok := s.orgIDFromRequest(c)
		if ok {
			ctx = orgcontext.WithOrgID(ctx, orgID)
			ctx = obscontext.WithOrgID(ctx, orgID.String())
		}

		actor, ok := s.actorFromHeaders(c, orgID)
		if ok {
			ctx = actorcontext.WithActor(ctx, actor)
			ctx = obscontext.WithActor(ctx, actor.Type, actor.ID)
		}

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := actorcontext.ActorFromContext(c.Request.Context()); !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		c.Next()
	}
}

func (s *Server) orgIDFromRequest(c *gin.Context) (snowflake.ID, bool) {
	raw := strings.TrimSpace(c.GetHeader(HeaderOrg))
	if raw != "" {
		orgID, err := snowflake.ParseString(raw)
		if err == nil && orgID != 0 {
			return orgID, true
		}
		return 0, false
	}
	if s.cfg.DefaultOrgID != 0 {
		return snowflake.ID(s.cfg.DefaultOrgID), true
	}
	return 0, false
}

func (s *Server) actorFromHeaders(c *gin.Context, orgID snowflake.ID) (actorcontext.Actor, bool) {
	actorType := strings.ToLower(strings.TrimSpace(c.GetHeader(HeaderActorType)))
	actorID := strings.TrimSpace(c.GetHeader(HeaderActorID))

	switch actorType {
	case "system":
		return actorcontext.Actor{Type: "system", Role: "system"}, true
	case "", "user":
		if actorID == "" {
			return actorcontext.Actor{}, false
		}
		userID, err := snowflake.ParseString(actorID)
		if err != nil || userID == 0 {
			return actorcontext.Actor{}, false
		}
		role := s.memberRole(c, orgID, userID)
		return actorcontext.Actor{Type: "user", ID: userID.String(), Role: role}, true
	case "api_key":
		if actorID == "" {
			return actorcontext.Actor{}, false
		}
		keyID, err := snowflake.ParseString(actorID)
		if err != nil || keyID == 0 {
			return actorcontext.Actor{}, false
		}
		return actorcontext.Actor{Type: "api_key", ID: keyID.String()}, true
	default:
		return actorcontext.Actor{}, false
	}
}

func (s *Server) memberRole(c *gin.Context, orgID snowflake.ID, userID snowflake.ID) string {
	if orgID == 0 {
		return ""
	}
	var role string
	err := s.db.WithContext(c.Request.Context()).
		Raw(`SELECT role FROM organization_members WHERE org_id = ? AND user_id = ? LIMIT 1`, orgID, userID).
		Scan(&role).Error
	if err != nil || strings.TrimSpace(role) == "" {
		return "member"
	}
	return role
}
