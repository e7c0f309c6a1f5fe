package httpapi

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/CIRISAI/CIRISAgent-sub001/internal/cerr"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/logging"
)

const (
	ctxSubjectIDKey = "ciris.subject_id"
	ctxRoleKey      = "ciris.role"
)

// requestLogger logs one line per request at INFO, matching the
// teacher's component-scoped logging convention rather than gin's own
// default logger middleware.
func requestLogger(logger logging.Logger) gin.HandlerFunc {
	logger = logger.WithComponent("httpapi")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request handled", logging.Fields{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		})
	}
}

// requireAuth extracts and validates a bearer token, rejecting the
// request with 400 (Validation) if it is absent and 403 (Prohibited) if it
// is invalid or expired. Validated identity is attached
// to the gin context for handlers to read via subjectAndRole.
func requireAuth(sessions *Sessions) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			writeError(c, cerr.New("httpapi.requireAuth", cerr.KindValidation, "missing bearer token"))
			c.Abort()
			return
		}
		token := strings.TrimPrefix(header, "Bearer ")

		subjectID, role, ok := sessions.Validate(token)
		if !ok {
			writeError(c, cerr.New("httpapi.requireAuth", cerr.KindProhibited, "invalid or expired token"))
			c.Abort()
			return
		}
		c.Set(ctxSubjectIDKey, subjectID)
		c.Set(ctxRoleKey, role)
		c.Next()
	}
}

// requireAdmin further restricts a requireAuth-protected route to the
// admin role (§6 system-control routes).
func requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if role, _ := c.Get(ctxRoleKey); role != "admin" {
			writeError(c, cerr.New("httpapi.requireAdmin", cerr.KindProhibited, "admin role required"))
			c.Abort()
			return
		}
		c.Next()
	}
}

// subjectAndRole reads the identity requireAuth attached to the request.
func subjectAndRole(c *gin.Context) (subjectID, role string) {
	if v, ok := c.Get(ctxSubjectIDKey); ok {
		subjectID, _ = v.(string)
	}
	if v, ok := c.Get(ctxRoleKey); ok {
		role, _ = v.(string)
	}
	return subjectID, role
}
