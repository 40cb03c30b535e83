package store

import (
	"context"
	"time"

	"github.com/octopus-bim/octopus/pkg/models"
)

// ============================================
// FILE REGISTRY OPERATIONS
// ============================================

func (s *GORMStore) CreateFile(ctx context.Context, f *models.File) (string, error) {
	return createWithID(s.db, ctx, f, func(f *models.File, id string) { f.ID = id }, f.ID, models.ErrStorageInconsistency)
}

func (s *GORMStore) GetFile(ctx context.Context, id string) (*models.File, error) {
	return getByField[models.File](s.db, ctx, "id", id, models.ErrFileNotFound)
}

func (s *GORMStore) ListFiles(ctx context.Context, projectID string, filter FileFilter, page Page) ([]*models.File, int64, error) {
	q := s.db.WithContext(ctx).Where("project_id = ?", projectID)
	if filter.Kind != "" {
		q = q.Where("kind = ?", filter.Kind)
	}
	if filter.Category != "" {
		q = q.Where("category = ?", filter.Category)
	}
	if !filter.IncludeDeleted {
		q = q.Where("is_deleted = ?", false)
	}
	return listPage[models.File](q, page, "created_at DESC")
}

func (s *GORMStore) SoftDeleteFile(ctx context.Context, id string, at time.Time) error {
	result := s.db.WithContext(ctx).
		Model(&models.File{}).
		Where("id = ? AND is_deleted = ?", id, false).
		Updates(map[string]any{"is_deleted": true, "deleted_at": at})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrFileNotFound
	}
	return nil
}

func (s *GORMStore) CreateFileLink(ctx context.Context, l *models.FileLink) (string, error) {
	return createWithID(s.db, ctx, l, func(l *models.FileLink, id string) { l.ID = id }, l.ID, models.ErrDuplicateFileLink)
}

func (s *GORMStore) ListLinksFrom(ctx context.Context, sourceFileID string) ([]*models.FileLink, error) {
	var links []*models.FileLink
	if err := s.db.WithContext(ctx).Where("source_file_id = ?", sourceFileID).Find(&links).Error; err != nil {
		return nil, err
	}
	return links, nil
}

func (s *GORMStore) ListLinksTargeting(ctx context.Context, targetFileID string) ([]*models.FileLink, error) {
	var links []*models.FileLink
	if err := s.db.WithContext(ctx).Where("target_file_id = ?", targetFileID).Find(&links).Error; err != nil {
		return nil, err
	}
	return links, nil
}

func (s *GORMStore) WorkspaceUsage(ctx context.Context, workspaceID string) (int64, error) {
	var total int64
	err := s.db.WithContext(ctx).
		Model(&models.File{}).
		Joins("JOIN projects ON projects.id = files.project_id").
		Where("projects.workspace_id = ? AND files.is_deleted = ?", workspaceID, false).
		Select("COALESCE(SUM(files.size_bytes), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}
