package server

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/0xkuwabatake/normies-membership/internal/actorcontext"
	"github.com/0xkuwabatake/normies-membership/internal/ratelimit"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const actorHeader = "X-Actor"

// ActorMiddleware resolves the calling actor from the request header and
// stores it in the request context for authorization and audit. Requests
// without an actor are rejected before any handler runs.
func (s *Server) ActorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := strings.TrimSpace(c.GetHeader(actorHeader))
		if actor == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		ctx := actorcontext.WithActor(c.Request.Context(), actor)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// rateLimit throttles a mutation per actor through the shared limiter. The
// limiter failing open here would turn a redis outage into an unbounded mint
// path, so limiter errors reject the request.
func (s *Server) rateLimit(allow func(ctx context.Context, actor string) (ratelimit.Result, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.Enabled() {
			c.Next()
			return
		}

		actor, ok := actorcontext.ActorFromContext(c.Request.Context())
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		res, err := allow(c.Request.Context(), actor)
		if err != nil {
			s.log.Warn("rate limit check failed", zap.Error(err))
			AbortWithError(c, ErrRateLimited)
			return
		}
		if !res.Allowed {
			if res.RetryAfter > 0 {
				seconds := int64(res.RetryAfter / time.Second)
				if seconds < 1 {
					seconds = 1
				}
				c.Header("Retry-After", strconv.FormatInt(seconds, 10))
			}
			AbortWithError(c, ErrRateLimited)
			return
		}
		c.Next()
	}
}

func (s *Server) authorize(object, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorcontext.ActorFromContext(c.Request.Context())
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		if err := s.authzSvc.Authorize(c.Request.Context(), actor, object, action); err != nil {
			if s.obsMetrics != nil {
				s.obsMetrics.RecordAuthzDenied(c.Request.Context(), object, action)
			}
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}
