package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/kudos/internal/audit/domain"
	"github.com/smallbiznis/kudos/internal/authorization"
	obscontext "github.com/smallbiznis/kudos/internal/observability/context"
)

const contextActorKey = "actor"

// APIKeyRequired authenticates admin requests with a bearer API key.
func (s *Server) APIKeyRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		if header == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		parts := strings.Fields(header)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		key, err := s.apiKeySvc.Authenticate(c.Request.Context(), parts[1])
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.Set(contextActorKey, authorization.Actor{
			Type: auditdomain.ActorAPIKey,
			ID:   key.KeyID,
			Role: key.Role,
		})
		ctx := obscontext.WithActor(c.Request.Context(), auditdomain.ActorAPIKey, key.KeyID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
