package server

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/natidev-sh/natiweb/internal/auditcontext"
	"github.com/natidev-sh/natiweb/internal/authorization"
	"github.com/natidev-sh/natiweb/internal/identity"
	obsctx "github.com/natidev-sh/natiweb/internal/observability/context"
	profiledomain "github.com/natidev-sh/natiweb/internal/profile/domain"
	"go.uber.org/zap"
)

const (
	roleAdmin = profiledomain.RoleAdmin

	contextPrincipalKey = "principal"
	headerDesktopAPIKey = "x-nati-api-key"
)

// RequireUser resolves the bearer token to a verified principal.
func (s *Server) RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok || s.verifier == nil {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		principal, err := s.verifier.Verify(c.Request.Context(), token)
		if err != nil {
			if !errors.Is(err, identity.ErrInvalidToken) {
				s.log.Warn("token verification failed", zap.Error(err))
			}
			AbortWithError(c, ErrUnauthorized)
			return
		}

		c.Set(contextPrincipalKey, principal)
		ctx := obsctx.WithActor(c.Request.Context(), obsctx.ActorTypeUser, principal.UserID)
		ctx = auditcontext.WithIPAddress(ctx, c.ClientIP())
		ctx = auditcontext.WithUserAgent(ctx, c.Request.UserAgent())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequireRole admits callers whose stored profile role matches. It must run
// after RequireUser.
func (s *Server) RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := principalFrom(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if s.authzSvc == nil {
			AbortWithError(c, ErrForbidden)
			return
		}
		if err := s.authzSvc.Authorize(c.Request.Context(), principal.UserID, role); err != nil {
			if errors.Is(err, authorization.ErrForbidden) || errors.Is(err, authorization.ErrInvalidActor) {
				AbortWithError(c, ErrForbidden)
				return
			}
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

// DesktopRateLimit throttles the unauthenticated desktop endpoint per
// client address.
func (s *Server) DesktopRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.desktopLimiter != nil && !s.desktopLimiter.Allow(c.ClientIP()) {
			AbortWithError(c, ErrRateLimited)
			return
		}
		c.Next()
	}
}

func principalFrom(c *gin.Context) (*identity.Principal, bool) {
	value, ok := c.Get(contextPrincipalKey)
	if !ok {
		return nil, false
	}
	principal, ok := value.(*identity.Principal)
	return principal, ok && principal != nil && principal.UserID != ""
}

func bearerToken(header string) (string, bool) {
	parts := strings.Fields(strings.TrimSpace(header))
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
