package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"medtrack/internal/apperr"
	"medtrack/internal/logging"
	"medtrack/internal/models"
	"medtrack/internal/mykafka"
	"medtrack/internal/util"
)

type UserHandler struct {
	DB       *gorm.DB
	Producer *mykafka.Producer
}

func (h *UserHandler) GetUsers(c echo.Context) error {
	q := h.DB.WithContext(c.Request().Context()).Model(&models.User{})

	if role := c.QueryParam("role"); role != "" && models.ValidRole(role) {
		q = q.Where("role = ?", role)
	}
	if active := c.QueryParam("active"); active != "" {
		q = q.Where("is_active = ?", active == "true")
	}
	if search := c.QueryParam("search"); search != "" {
		pattern := "%" + strings.ToLower(search) + "%"
		q = q.Where("LOWER(name) LIKE ? OR LOWER(email) LIKE ?", pattern, pattern)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return err
	}

	page, _ := strconv.Atoi(c.QueryParam("page"))
	size, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, limit := util.Calculate(page, size)
	if page < 1 {
		page = 1
	}

	var users []models.User
	if err := q.Order("created_at DESC").Offset(offset).Limit(limit).Find(&users).Error; err != nil {
		return err
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success":     true,
		"count":       len(users),
		"total":       total,
		"totalPages":  totalPages(total, limit),
		"currentPage": page,
		"users":       users,
	})
}

func (h *UserHandler) GetUser(c echo.Context) error {
	user, err := h.findUser(c)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"user":    user,
	})
}

func (h *UserHandler) UpdateUserRole(c echo.Context) error {
	var req struct {
		Role string `json:"role"`
	}
	if err := c.Bind(&req); err != nil {
		return apperr.BadRequest("Invalid request body")
	}
	if !models.ValidRole(req.Role) {
		return apperr.BadRequest("Role must be one of: admin, doctor, nurse, patient")
	}

	user, err := h.findUser(c)
	if err != nil {
		return err
	}

	// an already issued access token keeps the old role claim until it
	// expires or is refreshed; the staleness window is bounded by the
	// access TTL
	user.Role = req.Role
	if err := h.DB.WithContext(c.Request().Context()).Model(user).Update("role", req.Role).Error; err != nil {
		return err
	}

	h.publishUserEvent(c, "user_role_changed", user)

	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"user":    user,
	})
}

func (h *UserHandler) UpdateUserStatus(c echo.Context) error {
	var req struct {
		IsActive *bool `json:"isActive"`
	}
	if err := c.Bind(&req); err != nil {
		return apperr.BadRequest("Invalid request body")
	}
	if req.IsActive == nil {
		return apperr.BadRequest("isActive field is required")
	}

	user, err := h.findUser(c)
	if err != nil {
		return err
	}

	user.IsActive = *req.IsActive
	if err := h.DB.WithContext(c.Request().Context()).Model(user).Update("is_active", *req.IsActive).Error; err != nil {
		return err
	}

	h.publishUserEvent(c, "user_status_changed", user)

	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"user":    user,
	})
}

func (h *UserHandler) findUser(c echo.Context) (*models.User, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return nil, apperr.NotFound("User not found")
	}

	var user models.User
	if err := h.DB.WithContext(c.Request().Context()).First(&user, uint(id)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("User not found")
		}
		return nil, err
	}
	return &user, nil
}

func (h *UserHandler) publishUserEvent(c echo.Context, eventType string, user *models.User) {
	event := echo.Map{
		"type":     eventType,
		"userId":   user.ID,
		"role":     user.Role,
		"isActive": user.IsActive,
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Producer.PublishEvent(ctx, "user_events", fmt.Sprint(user.ID), event); err != nil {
		logging.FromContext(c.Request().Context()).Error("kafka publish error", "error", err)
	}
}

func totalPages(total int64, limit int) int64 {
	if limit <= 0 {
		return 0
	}
	return (total + int64(limit) - 1) / int64(limit)
}
