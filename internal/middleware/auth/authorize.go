package auth

import (
	"slices"

	"github.com/labstack/echo/v4"

	"medtrack/internal/apperr"
)

// RequireRole allows only the listed roles through. It must run after
// Authenticate; a missing identity is a 401, not a 403.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			user, ok := CurrentUser(c)
			if !ok {
				return apperr.Unauthorized("User not authenticated")
			}
			if !slices.Contains(roles, user.Role) {
				return apperr.Forbidden("Access denied. Insufficient permissions")
			}
			return next(c)
		}
	}
}
