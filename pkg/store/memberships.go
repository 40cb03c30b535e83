package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/octopus-bim/octopus/pkg/models"
)

// ============================================
// MEMBERSHIP OPERATIONS
// ============================================

func (s *GORMStore) GetWorkspaceMembership(ctx context.Context, workspaceID, userID string) (*models.WorkspaceMembership, error) {
	var m models.WorkspaceMembership
	err := s.db.WithContext(ctx).
		Where("workspace_id = ? AND user_id = ?", workspaceID, userID).
		First(&m).Error
	if err != nil {
		return nil, convertNotFoundError(err, models.ErrMembershipNotFound)
	}
	return &m, nil
}

func (s *GORMStore) GetProjectMembership(ctx context.Context, projectID, userID string) (*models.ProjectMembership, error) {
	var m models.ProjectMembership
	err := s.db.WithContext(ctx).
		Where("project_id = ? AND user_id = ?", projectID, userID).
		First(&m).Error
	if err != nil {
		return nil, convertNotFoundError(err, models.ErrMembershipNotFound)
	}
	return &m, nil
}

func (s *GORMStore) UpsertWorkspaceMembership(ctx context.Context, m *models.WorkspaceMembership) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.WorkspaceMembership
		err := tx.Where("workspace_id = ? AND user_id = ?", m.WorkspaceID, m.UserID).First(&existing).Error
		switch {
		case err == nil:
			return tx.Model(&existing).Update("role", m.Role).Error
		case errors.Is(err, gorm.ErrRecordNotFound):
			if m.ID == "" {
				m.ID = uuid.New().String()
			}
			return tx.Create(m).Error
		default:
			return err
		}
	})
}

func (s *GORMStore) UpsertProjectMembership(ctx context.Context, m *models.ProjectMembership) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.ProjectMembership
		err := tx.Where("project_id = ? AND user_id = ?", m.ProjectID, m.UserID).First(&existing).Error
		switch {
		case err == nil:
			return tx.Model(&existing).Update("role", m.Role).Error
		case errors.Is(err, gorm.ErrRecordNotFound):
			if m.ID == "" {
				m.ID = uuid.New().String()
			}
			return tx.Create(m).Error
		default:
			return err
		}
	})
}
