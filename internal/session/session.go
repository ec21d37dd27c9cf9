package session

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"medtrack/internal/models"
	"medtrack/internal/tokens"
)

var ErrInvalidRefresh = errors.New("invalid refresh token")

type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// Manager owns the refresh-token lifecycle. A user holds at most one live
// refresh token (users.refresh_token); every login or rotation overwrites it,
// which invalidates whatever was issued before. Concurrent rotations from two
// devices race at the store with last-write-wins: the loser is logged out.
type Manager struct {
	DB     *gorm.DB
	Tokens *tokens.Service
}

func (m *Manager) Login(ctx context.Context, user *models.User) (*TokenPair, error) {
	pair, err := m.issue(user)
	if err != nil {
		return nil, err
	}
	if err := m.store(ctx, user, pair.RefreshToken); err != nil {
		return nil, err
	}
	return pair, nil
}

// Rotate exchanges a presented refresh token for a fresh pair. The token must
// carry a valid signature AND byte-for-byte equal the stored value, so a token
// that was already rotated or revoked by logout fails here even before its
// signed expiry.
func (m *Manager) Rotate(ctx context.Context, raw string) (*TokenPair, *models.User, error) {
	claims, err := m.Tokens.ParseRefresh(raw)
	if err != nil {
		return nil, nil, err
	}
	userID, err := tokens.Subject(claims.RegisteredClaims)
	if err != nil {
		return nil, nil, err
	}

	var user models.User
	if err := m.DB.WithContext(ctx).First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrInvalidRefresh
		}
		return nil, nil, err
	}
	if !user.IsActive || user.RefreshToken != raw {
		return nil, nil, ErrInvalidRefresh
	}

	pair, err := m.issue(&user)
	if err != nil {
		return nil, nil, err
	}
	if err := m.store(ctx, &user, pair.RefreshToken); err != nil {
		return nil, nil, err
	}
	return pair, &user, nil
}

func (m *Manager) Logout(ctx context.Context, user *models.User) error {
	return m.store(ctx, user, "")
}

func (m *Manager) issue(user *models.User) (*TokenPair, error) {
	access, err := m.Tokens.SignAccess(user.ID, user.Role)
	if err != nil {
		return nil, err
	}
	refresh, err := m.Tokens.SignRefresh(user.ID)
	if err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (m *Manager) store(ctx context.Context, user *models.User, refresh string) error {
	if err := m.DB.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", user.ID).
		Update("refresh_token", refresh).Error; err != nil {
		return err
	}
	user.RefreshToken = refresh
	return nil
}
