package httpserver

import (
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"medtrack/internal/handlers"
	authmw "medtrack/internal/middleware/auth"
	"medtrack/internal/models"
)

type Deps struct {
	DB                *gorm.DB
	Gate              *authmw.Gate
	AuthHandler       *handlers.AuthHandler
	UserHandler       *handlers.UserHandler
	MedicationHandler *handlers.MedicationHandler
	SearchHandler     *handlers.SearchHandler
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(200) })
	e.GET("/health/ready", func(c echo.Context) error { return c.NoContent(200) })

	v1 := e.Group("/api/v1")

	auth := v1.Group("/auth")
	auth.POST("/register", d.AuthHandler.Register)
	auth.POST("/login", d.AuthHandler.Login)
	auth.POST("/refresh-token", d.AuthHandler.Refresh)
	auth.POST("/logout", d.AuthHandler.Logout, d.Gate.Authenticate)
	auth.GET("/profile", d.AuthHandler.Profile, d.Gate.Authenticate)

	meds := v1.Group("/medications", d.Gate.Authenticate)
	meds.GET("", d.MedicationHandler.GetMedications)
	meds.POST("", d.MedicationHandler.CreateMedication,
		authmw.RequireRole(models.RoleDoctor, models.RoleAdmin))
	meds.GET("/search", d.SearchHandler.Search,
		authmw.RequireRole(models.RoleAdmin, models.RoleDoctor, models.RoleNurse))
	meds.GET("/:id", d.MedicationHandler.GetMedication)
	meds.PUT("/:id", d.MedicationHandler.UpdateMedication,
		authmw.RequireRole(models.RoleDoctor, models.RoleAdmin))
	meds.DELETE("/:id", d.MedicationHandler.DeleteMedication,
		authmw.RequireRole(models.RoleDoctor, models.RoleAdmin))
	meds.POST("/:id/log", d.MedicationHandler.LogIntake)
	meds.GET("/:id/logs", d.MedicationHandler.GetLogs)

	users := v1.Group("/users", d.Gate.Authenticate, authmw.RequireRole(models.RoleAdmin))
	users.GET("", d.UserHandler.GetUsers)
	users.GET("/:id", d.UserHandler.GetUser)
	users.PATCH("/:id/role", d.UserHandler.UpdateUserRole)
	users.PATCH("/:id/status", d.UserHandler.UpdateUserStatus)
}
