package store

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/octopus-bim/octopus/pkg/models"
)

// ============================================
// WORKSPACE OPERATIONS
// ============================================

func (s *GORMStore) CreateWorkspace(ctx context.Context, ws *models.Workspace, ownerUserID string) (string, error) {
	if ws.ID == "" {
		ws.ID = uuid.New().String()
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(ws).Error; err != nil {
			if isUniqueConstraintError(err) {
				return models.ErrDuplicateWorkspace
			}
			return err
		}
		membership := &models.WorkspaceMembership{
			ID:          uuid.New().String(),
			WorkspaceID: ws.ID,
			UserID:      ownerUserID,
			Role:        models.WorkspaceRoleOwner,
		}
		return tx.Create(membership).Error
	})
	if err != nil {
		return "", err
	}
	return ws.ID, nil
}

func (s *GORMStore) GetWorkspace(ctx context.Context, id string) (*models.Workspace, error) {
	return getByField[models.Workspace](s.db, ctx, "id", id, models.ErrWorkspaceNotFound)
}

func (s *GORMStore) UpdateWorkspace(ctx context.Context, ws *models.Workspace) error {
	var existing models.Workspace
	if err := s.db.WithContext(ctx).Where("id = ?", ws.ID).First(&existing).Error; err != nil {
		return convertNotFoundError(err, models.ErrWorkspaceNotFound)
	}
	return s.db.WithContext(ctx).
		Model(&existing).
		Select("Name", "Description", "QuotaBytes").
		Updates(ws).Error
}

func (s *GORMStore) ListWorkspacesForUser(ctx context.Context, userID string, page Page) ([]*models.Workspace, int64, error) {
	q := s.db.WithContext(ctx).
		Joins("JOIN workspace_memberships ON workspace_memberships.workspace_id = workspaces.id").
		Where("workspace_memberships.user_id = ?", userID)
	return listPage[models.Workspace](q, page, "workspaces.created_at DESC")
}

// ============================================
// PROJECT OPERATIONS
// ============================================

func (s *GORMStore) CreateProject(ctx context.Context, p *models.Project) (string, error) {
	return createWithID(s.db, ctx, p, func(p *models.Project, id string) { p.ID = id }, p.ID, models.ErrDuplicateProject)
}

func (s *GORMStore) GetProject(ctx context.Context, id string) (*models.Project, error) {
	return getByField[models.Project](s.db, ctx, "id", id, models.ErrProjectNotFound)
}

func (s *GORMStore) ListProjectsByWorkspace(ctx context.Context, workspaceID string, page Page) ([]*models.Project, int64, error) {
	q := s.db.WithContext(ctx).Where("workspace_id = ?", workspaceID)
	return listPage[models.Project](q, page, "created_at DESC")
}
