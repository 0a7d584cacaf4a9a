package server

import (
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
	obscontext "github.com/fenuasim/portal/internal/observability/context"
	"github.com/gin-gonic/gin"
)

const contextUserIDKey = "user_id"

// AuthRequired resolves the session cookie and injects the user id into
// both the gin context and the request context.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := s.sessions.ReadToken(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		sess, err := s.authsvc.Authenticate(c.Request.Context(), token)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.Set(contextUserIDKey, sess.UserID)
		ctx := obscontext.WithUserID(c.Request.Context(), sess.UserID.String())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// CheckoutRateLimit throttles checkout session creation per user. It
// must run after AuthRequired.
func (s *Server) CheckoutRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := s.userIDFromContext(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		allowed, retryAfter := s.checkoutLimiter.Allow(c.Request.Context(), userID.String())
		if !allowed {
			if retryAfter > 0 {
				c.Header("Retry-After", retryAfterSeconds(retryAfter))
			}
			AbortWithError(c, ErrTooManyRequests)
			return
		}
		c.Next()
	}
}

func (s *Server) userIDFromContext(c *gin.Context) (snowflake.ID, bool) {
	value, exists := c.Get(contextUserIDKey)
	if !exists {
		return 0, false
	}
	userID, ok := value.(snowflake.ID)
	return userID, ok
}

func retryAfterSeconds(d time.Duration) string {
	seconds := int(d.Seconds())
	if seconds < 1 {
		seconds = 1
	}
	return strconv.Itoa(seconds)
}
