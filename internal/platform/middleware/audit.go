package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/myhealthchain/api/internal/platform/auth"
)

// AccessLog emits a structured log line for every request that touches
// protected health data (record and consent endpoints). This is an
// operational trail alongside the durable audit log the services write
// inside their transactions; it captures who, what, from where, and the
// outcome, never request or response bodies.
func AccessLog(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			path := req.URL.Path

			if !isProtectedPath(path) {
				return next(c)
			}

			// Run the handler first so the response status is known.
			err := next(c)

			actor := auth.ActorFromContext(req.Context())
			rid, _ := c.Get("request_id").(string)

			evt := logger.Info()
			if c.Response().Status >= http.StatusBadRequest {
				evt = logger.Warn()
			}
			evt.
				Str("type", "phi_access").
				Str("request_id", rid).
				Str("actor_id", actor.ID.String()).
				Str("actor_role", actor.Role).
				Str("action", methodAction(req.Method)).
				Str("resource", resourceFromPath(path)).
				Str("method", req.Method).
				Str("path", path).
				Str("remote_ip", c.RealIP()).
				Str("user_agent", req.UserAgent()).
				Int("status", c.Response().Status).
				Time("at", time.Now().UTC()).
				Msg("phi_access")

			return err
		}
	}
}

func isProtectedPath(path string) bool {
	return strings.HasPrefix(path, "/api/v1/records") ||
		strings.HasPrefix(path, "/api/v1/grants") ||
		strings.HasPrefix(path, "/api/v1/keys")
}

func methodAction(method string) string {
	switch method {
	case http.MethodGet, http.MethodHead:
		return "read"
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return "read"
	}
}

// resourceFromPath extracts the first path segment under /api/v1/.
func resourceFromPath(path string) string {
	rest := strings.TrimPrefix(path, "/api/v1/")
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		rest = rest[:i]
	}
	if rest == "" {
		return "unknown"
	}
	return rest
}
