package session

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"medtrack/internal/models"
	"medtrack/internal/tokens"
)

func newManager(t *testing.T) (*Manager, *gorm.DB) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}))

	svc := &tokens.Service{
		AccessSecret:  []byte("access-test-secret"),
		RefreshSecret: []byte("refresh-test-secret"),
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
	}
	return &Manager{DB: db, Tokens: svc}, db
}

func createUser(t *testing.T, db *gorm.DB) *models.User {
	user := models.User{
		Name:         "Ann Lee",
		Email:        "ann@x.com",
		PasswordHash: "irrelevant",
		Role:         models.RolePatient,
		IsActive:     true,
	}
	require.NoError(t, db.Create(&user).Error)
	return &user
}

func TestLoginPersistsRefreshToken(t *testing.T) {
	m, db := newManager(t)
	user := createUser(t, db)

	pair, err := m.Login(context.Background(), user)
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)

	var stored models.User
	require.NoError(t, db.First(&stored, user.ID).Error)
	require.Equal(t, pair.RefreshToken, stored.RefreshToken)
}

func TestRotateIssuesNewPairAndInvalidatesOld(t *testing.T) {
	m, db := newManager(t)
	user := createUser(t, db)

	pair, err := m.Login(context.Background(), user)
	require.NoError(t, err)

	rotated, rotatedUser, err := m.Rotate(context.Background(), pair.RefreshToken)
	require.NoError(t, err)
	require.Equal(t, user.ID, rotatedUser.ID)
	require.NotEqual(t, pair.RefreshToken, rotated.RefreshToken)

	// refresh tokens are single use
	_, _, err = m.Rotate(context.Background(), pair.RefreshToken)
	require.ErrorIs(t, err, ErrInvalidRefresh)

	_, _, err = m.Rotate(context.Background(), rotated.RefreshToken)
	require.NoError(t, err)
}

func TestLogoutRevokesOutstandingRefresh(t *testing.T) {
	m, db := newManager(t)
	user := createUser(t, db)

	pair, err := m.Login(context.Background(), user)
	require.NoError(t, err)

	require.NoError(t, m.Logout(context.Background(), user))

	var stored models.User
	require.NoError(t, db.First(&stored, user.ID).Error)
	require.Empty(t, stored.RefreshToken)

	// the signature is still valid, the stored-value check rejects it
	_, _, err = m.Rotate(context.Background(), pair.RefreshToken)
	require.ErrorIs(t, err, ErrInvalidRefresh)
}

func TestSecondLoginInvalidatesFirstSession(t *testing.T) {
	m, db := newManager(t)
	user := createUser(t, db)

	first, err := m.Login(context.Background(), user)
	require.NoError(t, err)
	second, err := m.Login(context.Background(), user)
	require.NoError(t, err)
	require.NotEqual(t, first.RefreshToken, second.RefreshToken)

	_, _, err = m.Rotate(context.Background(), first.RefreshToken)
	require.ErrorIs(t, err, ErrInvalidRefresh)

	_, _, err = m.Rotate(context.Background(), second.RefreshToken)
	require.NoError(t, err)
}

func TestRotateRejectsInactiveUser(t *testing.T) {
	m, db := newManager(t)
	user := createUser(t, db)

	pair, err := m.Login(context.Background(), user)
	require.NoError(t, err)

	require.NoError(t, db.Model(user).Update("is_active", false).Error)

	_, _, err = m.Rotate(context.Background(), pair.RefreshToken)
	require.ErrorIs(t, err, ErrInvalidRefresh)
}

func TestRotateRejectsExpiredAndMalformed(t *testing.T) {
	m, db := newManager(t)
	user := createUser(t, db)

	m.Tokens.RefreshTTL = -time.Minute
	pair, err := m.Login(context.Background(), user)
	require.NoError(t, err)
	m.Tokens.RefreshTTL = 7 * 24 * time.Hour

	_, _, err = m.Rotate(context.Background(), pair.RefreshToken)
	require.ErrorIs(t, err, tokens.ErrTokenExpired)

	_, _, err = m.Rotate(context.Background(), "garbage")
	require.ErrorIs(t, err, tokens.ErrTokenMalformed)
}
