package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"medtrack/internal/apperr"
	"medtrack/internal/hash"
	"medtrack/internal/logging"
	authmw "medtrack/internal/middleware/auth"
	"medtrack/internal/models"
	"medtrack/internal/mykafka"
	"medtrack/internal/session"
	"medtrack/internal/tokens"
)

var emailRe = regexp.MustCompile(`^\S+@\S+\.\S+$`)

type AuthHandler struct {
	DB       *gorm.DB
	Sessions *session.Manager
	Producer *mykafka.Producer
}

func userInfo(user *models.User) echo.Map {
	return echo.Map{
		"id":    user.ID,
		"name":  user.Name,
		"email": user.Email,
		"role":  user.Role,
	}
}

func (h *AuthHandler) Register(c echo.Context) error {
	var req struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
		Role     string `json:"role"`
	}
	if err := c.Bind(&req); err != nil {
		return apperr.BadRequest("Invalid request body")
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	var errs []string
	if len(req.Name) < 3 || len(req.Name) > 50 {
		errs = append(errs, "Name must be between 3 and 50 characters")
	}
	if !emailRe.MatchString(req.Email) {
		errs = append(errs, "Please provide a valid email address")
	}
	if len(req.Password) < 6 {
		errs = append(errs, "Password must be at least 6 characters long")
	}
	if req.Role == "" {
		req.Role = models.RolePatient
	} else if !models.ValidRole(req.Role) {
		errs = append(errs, "Role must be one of: admin, doctor, nurse, patient")
	}
	if len(errs) > 0 {
		return apperr.BadRequest("Validation error", errs...)
	}

	var existing models.User
	err := h.DB.WithContext(c.Request().Context()).Where("email = ?", req.Email).First(&existing).Error
	if err == nil {
		return apperr.BadRequest("User with this email already exists")
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	pwHash, err := hash.HashPassword(req.Password)
	if err != nil {
		return err
	}

	user := models.User{
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: pwHash,
		Role:         req.Role,
		IsActive:     true,
	}
	if err := h.DB.WithContext(c.Request().Context()).Create(&user).Error; err != nil {
		// the email pre-check can lose a race; the unique index is the
		// authority, so a duplicate insert maps to the same response
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return apperr.BadRequest("User with this email already exists")
		}
		return err
	}

	pair, err := h.Sessions.Login(c.Request().Context(), &user)
	if err != nil {
		return err
	}

	h.publishUserEvent(c, "user_registered", &user)

	return c.JSON(http.StatusCreated, echo.Map{
		"success":      true,
		"user":         userInfo(&user),
		"accessToken":  pair.AccessToken,
		"refreshToken": pair.RefreshToken,
	})
}

func (h *AuthHandler) Login(c echo.Context) error {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		return apperr.BadRequest("Invalid request body")
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	var errs []string
	if !emailRe.MatchString(req.Email) {
		errs = append(errs, "Please provide a valid email address")
	}
	if req.Password == "" {
		errs = append(errs, "Password is required")
	}
	if len(errs) > 0 {
		return apperr.BadRequest("Validation error", errs...)
	}

	var user models.User
	if err := h.DB.WithContext(c.Request().Context()).Where("email = ?", req.Email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// same message as a wrong password, so the response does not
			// reveal whether the email is registered
			return apperr.Unauthorized("Invalid email or password")
		}
		return err
	}

	if !user.IsActive {
		return apperr.Unauthorized("Account is deactivated")
	}

	if !hash.CheckPassword(user.PasswordHash, req.Password) {
		return apperr.Unauthorized("Invalid email or password")
	}

	pair, err := h.Sessions.Login(c.Request().Context(), &user)
	if err != nil {
		return err
	}

	h.publishUserEvent(c, "user_logged_in", &user)

	return c.JSON(http.StatusOK, echo.Map{
		"success":      true,
		"user":         userInfo(&user),
		"accessToken":  pair.AccessToken,
		"refreshToken": pair.RefreshToken,
	})
}

func (h *AuthHandler) Refresh(c echo.Context) error {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := c.Bind(&req); err != nil {
		return apperr.BadRequest("Invalid request body")
	}
	if req.RefreshToken == "" {
		return apperr.BadRequest("Refresh token is required")
	}

	pair, _, err := h.Sessions.Rotate(c.Request().Context(), req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, tokens.ErrTokenExpired):
			return apperr.Unauthorized("Refresh token expired, please login again")
		case errors.Is(err, tokens.ErrTokenMalformed), errors.Is(err, session.ErrInvalidRefresh):
			return apperr.Unauthorized("Invalid refresh token")
		}
		return err
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success":      true,
		"accessToken":  pair.AccessToken,
		"refreshToken": pair.RefreshToken,
	})
}

func (h *AuthHandler) Logout(c echo.Context) error {
	user, ok := authmw.CurrentUser(c)
	if !ok {
		return apperr.Unauthorized("User not authenticated")
	}

	if err := h.Sessions.Logout(c.Request().Context(), user); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"message": "Logged out successfully",
	})
}

func (h *AuthHandler) Profile(c echo.Context) error {
	user, ok := authmw.CurrentUser(c)
	if !ok {
		return apperr.Unauthorized("User not authenticated")
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"user":    user,
	})
}

func (h *AuthHandler) publishUserEvent(c echo.Context, eventType string, user *models.User) {
	event := echo.Map{
		"type":   eventType,
		"userId": user.ID,
		"email":  user.Email,
		"role":   user.Role,
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Producer.PublishEvent(ctx, "user_events", fmt.Sprint(user.ID), event); err != nil {
		logging.FromContext(c.Request().Context()).Error("kafka publish error", "error", err)
	}
}
