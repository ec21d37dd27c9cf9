package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"medtrack/internal/apperr"
	"medtrack/internal/models"
	"medtrack/internal/tokens"
)

func newGate(t *testing.T) (*Gate, *gorm.DB) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}))

	svc := &tokens.Service{
		AccessSecret:  []byte("access-test-secret"),
		RefreshSecret: []byte("refresh-test-secret"),
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
	}
	return &Gate{DB: db, Tokens: svc}, db
}

func newRequest(token string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec)
}

func okHandler(c echo.Context) error { return c.NoContent(http.StatusOK) }

func requireStatus(t *testing.T, err error, status int, message string) {
	t.Helper()
	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, status, appErr.Status)
	require.Equal(t, message, appErr.Message)
}

func TestAuthenticateMissingHeader(t *testing.T) {
	gate, _ := newGate(t)

	err := gate.Authenticate(okHandler)(newRequest(""))
	requireStatus(t, err, http.StatusUnauthorized, "Access denied. No token provided.")
}

func TestAuthenticateMalformedToken(t *testing.T) {
	gate, _ := newGate(t)

	err := gate.Authenticate(okHandler)(newRequest("garbage"))
	requireStatus(t, err, http.StatusUnauthorized, "Invalid token")
}

func TestAuthenticateExpiredToken(t *testing.T) {
	gate, _ := newGate(t)

	gate.Tokens.AccessTTL = -time.Minute
	raw, err := gate.Tokens.SignAccess(1, models.RolePatient)
	require.NoError(t, err)
	gate.Tokens.AccessTTL = 15 * time.Minute

	err = gate.Authenticate(okHandler)(newRequest(raw))
	requireStatus(t, err, http.StatusUnauthorized, "Token expired")
}

func TestAuthenticateUnknownUser(t *testing.T) {
	gate, _ := newGate(t)

	raw, err := gate.Tokens.SignAccess(999, models.RolePatient)
	require.NoError(t, err)

	err = gate.Authenticate(okHandler)(newRequest(raw))
	requireStatus(t, err, http.StatusUnauthorized, "Invalid token or user is deactivated")
}

func TestAuthenticateDeactivatedUser(t *testing.T) {
	gate, db := newGate(t)

	user := models.User{Name: "Ann Lee", Email: "ann@x.com", PasswordHash: "x", Role: models.RolePatient, IsActive: true}
	require.NoError(t, db.Create(&user).Error)

	raw, err := gate.Tokens.SignAccess(user.ID, user.Role)
	require.NoError(t, err)

	// token is valid until deactivation, the per-request store reload
	// rejects it on the very next request
	require.NoError(t, gate.Authenticate(okHandler)(newRequest(raw)))

	require.NoError(t, db.Model(&user).Update("is_active", false).Error)

	err = gate.Authenticate(okHandler)(newRequest(raw))
	requireStatus(t, err, http.StatusUnauthorized, "Invalid token or user is deactivated")
}

func TestAuthenticateAttachesUser(t *testing.T) {
	gate, db := newGate(t)

	user := models.User{Name: "Ann Lee", Email: "ann@x.com", PasswordHash: "x", Role: models.RoleNurse, IsActive: true}
	require.NoError(t, db.Create(&user).Error)

	raw, err := gate.Tokens.SignAccess(user.ID, user.Role)
	require.NoError(t, err)

	c := newRequest(raw)
	handler := func(c echo.Context) error {
		got, ok := CurrentUser(c)
		require.True(t, ok)
		require.Equal(t, user.ID, got.ID)
		require.Equal(t, models.RoleNurse, got.Role)
		return c.NoContent(http.StatusOK)
	}
	require.NoError(t, gate.Authenticate(handler)(c))
}

func TestRequireRoleForbidden(t *testing.T) {
	c := newRequest("")
	c.Set("user", &models.User{ID: 1, Role: models.RoleNurse})

	err := RequireRole(models.RoleDoctor, models.RoleAdmin)(okHandler)(c)
	requireStatus(t, err, http.StatusForbidden, "Access denied. Insufficient permissions")
}

func TestRequireRoleAllowed(t *testing.T) {
	c := newRequest("")
	c.Set("user", &models.User{ID: 1, Role: models.RoleAdmin})

	require.NoError(t, RequireRole(models.RoleDoctor, models.RoleAdmin)(okHandler)(c))
}

func TestRequireRoleWithoutIdentity(t *testing.T) {
	err := RequireRole(models.RoleAdmin)(okHandler)(newRequest(""))
	requireStatus(t, err, http.StatusUnauthorized, "User not authenticated")
}
