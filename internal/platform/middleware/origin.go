package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/myhealthchain/api/internal/audit"
)

// Origin attaches the request's network origin to the context so services
// can stamp audit entries without touching the HTTP layer.
func Origin() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := audit.WithOrigin(c.Request().Context(), audit.Origin{
				IPAddress: c.RealIP(),
				UserAgent: c.Request().UserAgent(),
			})
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}
