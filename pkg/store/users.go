package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/octopus-bim/octopus/pkg/models"
)

// ============================================
// USER OPERATIONS
// ============================================

func (s *GORMStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return getByField[models.User](s.db, ctx, "id", id, models.ErrUserNotFound)
}

func (s *GORMStore) GetOrCreateUserBySubject(ctx context.Context, subject, email, displayName string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("subject = ?", subject).First(&user).Error
	if err == nil {
		// Refresh profile fields when the identity provider changed them.
		if (email != "" && user.Email != email) || (displayName != "" && user.DisplayName != displayName) {
			updates := map[string]any{}
			if email != "" {
				updates["email"] = email
				user.Email = email
			}
			if displayName != "" {
				updates["display_name"] = displayName
				user.DisplayName = displayName
			}
			if err := s.db.WithContext(ctx).Model(&user).Updates(updates).Error; err != nil {
				return nil, err
			}
		}
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	user = models.User{
		ID:          uuid.New().String(),
		Subject:     subject,
		Email:       email,
		DisplayName: displayName,
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		if isUniqueConstraintError(err) {
			// Concurrent provisioning of the same subject: take the winner's row.
			return getByField[models.User](s.db, ctx, "subject", subject, models.ErrUserNotFound)
		}
		return nil, err
	}
	return &user, nil
}
