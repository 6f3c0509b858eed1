package security

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"

	"github.com/adrianwedd/ltm-service/internal/model"
)

// RoleHeader carries the caller's role. An omitted role is anonymous, which
// no endpoint permits.
const RoleHeader = "x-role"

// Known roles.
const (
	RoleViewer = "viewer"
	RoleEditor = "editor"
)

// ContextKeyRole is the gin context key for the resolved caller role.
const ContextKeyRole = "role"

// TimeoutHeader lets the caller shorten the request deadline below the
// server-wide maximum, in seconds.
const TimeoutHeader = "x-timeout-seconds"

// RequireRole gates an endpoint on the caller's role. A missing,
// unrecognized, or insufficient role yields 403 with the uniform error
// object, a structured log entry naming role, endpoint, and reason, and an
// auth-failure metric tick.
func RequireRole(roles ...string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(c *gin.Context) {
		endpoint := c.Request.Method + " " + c.FullPath()
		role := strings.TrimSpace(c.GetHeader(RoleHeader))

		var reason string
		switch {
		case role == "":
			reason = "missing role header"
		case role != RoleViewer && role != RoleEditor:
			reason = "unrecognized role"
		case !allowed[role]:
			reason = "role not permitted for endpoint"
		}
		if reason != "" {
			log.Warn("Authorization rejected",
				"role", role,
				"endpoint", endpoint,
				"reason", reason,
			)
			if AuthFailuresTotal != nil {
				AuthFailuresTotal.WithLabelValues(endpoint).Inc()
			}
			c.AbortWithStatusJSON(http.StatusForbidden,
				model.ErrorBody(model.CodeForbidden, "access denied", nil))
			return
		}
		c.Set(ContextKeyRole, role)
		c.Next()
	}
}

// DeadlineMiddleware derives each handler's deadline from the server-wide
// maximum and an optional per-call override. The resulting context is
// cancelled when the client disconnects or the deadline elapses.
func DeadlineMiddleware(serverMax time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		timeout := serverMax
		if raw := c.GetHeader(TimeoutHeader); raw != "" {
			if secs, err := strconv.ParseFloat(raw, 64); err == nil && secs > 0 {
				override := time.Duration(secs * float64(time.Second))
				if override < timeout {
					timeout = override
				}
			}
		}
		ctx, cancel := contextWithTimeout(c, timeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
