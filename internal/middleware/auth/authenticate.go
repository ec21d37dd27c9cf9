package auth

import (
	"errors"
	"strings"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"medtrack/internal/apperr"
	"medtrack/internal/models"
	"medtrack/internal/tokens"
)

const userContextKey = "user"

// Gate authenticates requests from the Authorization header. The user is
// reloaded from the store on every request: the is_active flag is only
// authoritative there, never in the token.
type Gate struct {
	DB     *gorm.DB
	Tokens *tokens.Service
}

func (g *Gate) Authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		header := c.Request().Header.Get(echo.HeaderAuthorization)
		if !strings.HasPrefix(header, "Bearer ") {
			return apperr.Unauthorized("Access denied. No token provided.")
		}
		raw := strings.TrimPrefix(header, "Bearer ")

		claims, err := g.Tokens.ParseAccess(raw)
		if err != nil {
			if errors.Is(err, tokens.ErrTokenExpired) {
				return apperr.Unauthorized("Token expired")
			}
			return apperr.Unauthorized("Invalid token")
		}

		userID, err := tokens.Subject(claims.RegisteredClaims)
		if err != nil {
			return apperr.Unauthorized("Invalid token")
		}

		var user models.User
		if err := g.DB.WithContext(c.Request().Context()).First(&user, userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.Unauthorized("Invalid token or user is deactivated")
			}
			return err
		}
		if !user.IsActive {
			return apperr.Unauthorized("Invalid token or user is deactivated")
		}

		c.Set(userContextKey, &user)
		return next(c)
	}
}

func CurrentUser(c echo.Context) (*models.User, bool) {
	user, ok := c.Get(userContextKey).(*models.User)
	return user, ok
}
