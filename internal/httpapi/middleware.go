package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/opipolix/gateway/internal/domain"
)

const sessionContextKey = "gateway.session"

// corsMiddleware mirrors the original app's permissive CORS policy: any
// origin (echoed back), credentialed, methods GET/POST/PUT/DELETE/OPTIONS,
// and whatever request headers the preflight asks for.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
		}
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		if reqHeaders := c.GetHeader("Access-Control-Request-Headers"); reqHeaders != "" {
			c.Header("Access-Control-Allow-Headers", reqHeaders)
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// clientIP prefers the first hop of X-Forwarded-For, falling back to gin's
// own resolution.
func clientIP(c *gin.Context) string {
	if fwd := c.GetHeader("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	return c.ClientIP()
}

// rateLimitMiddleware enforces Store.AllowRateLimit for a fixed bucket,
// keyed by (bucket, client IP).
func (d *Deps) rateLimitMiddleware(bucket string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := bucket + ":" + clientIP(c)
		if !d.Store.AllowRateLimit(key, d.AuthRateLimitMax, d.AuthRateLimitWindow) {
			abortWithError(c, domain.RateLimited("Too many auth attempts"))
			return
		}
		c.Next()
	}
}

// sessionMiddleware resolves the session cookie and stores the session on
// the request context, or aborts with 401.
func (d *Deps) sessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(d.SessionCookieName)
		if err != nil || token == "" {
			abortWithError(c, domain.Unauthenticated("Not authenticated"))
			return
		}

		sess, ok := d.Store.GetSession(token)
		if !ok {
			abortWithError(c, domain.Unauthenticated("Invalid or expired session"))
			return
		}

		c.Set(sessionContextKey, sess)
		c.Next()
	}
}

func sessionFromContext(c *gin.Context) domain.Session {
	sess, _ := c.MustGet(sessionContextKey).(domain.Session)
	return sess
}

// abortWithError maps any error to the gateway's {"detail": ...} JSON shape
// and aborts the gin chain. Non-APIError values are treated as internal.
func abortWithError(c *gin.Context, err error) {
	var apiErr *domain.APIError
	if !errors.As(err, &apiErr) {
		apiErr = domain.InternalError(err)
	}
	c.AbortWithStatusJSON(apiErr.Status, gin.H{"detail": apiErr.Message})
}
