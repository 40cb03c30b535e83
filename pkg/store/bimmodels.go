package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/octopus-bim/octopus/pkg/models"
)

// ============================================
// MODEL & VERSION OPERATIONS
// ============================================

func (s *GORMStore) CreateModel(ctx context.Context, m *models.Model) (string, error) {
	return createWithID(s.db, ctx, m, func(m *models.Model, id string) { m.ID = id }, m.ID, models.ErrDuplicateModel)
}

func (s *GORMStore) GetModel(ctx context.Context, id string) (*models.Model, error) {
	return getByField[models.Model](s.db, ctx, "id", id, models.ErrModelNotFound)
}

func (s *GORMStore) ListModelsByProject(ctx context.Context, projectID string, page Page) ([]*models.Model, int64, error) {
	q := s.db.WithContext(ctx).Where("project_id = ?", projectID)
	return listPage[models.Model](q, page, "created_at DESC")
}

func (s *GORMStore) CreateModelVersion(ctx context.Context, v *models.ModelVersion, jobs []*models.Job) (*models.ModelVersion, error) {
	if v.ID == "" {
		v.ID = uuid.New().String()
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Next version number is max+1. The unique (model_id, version_number)
		// index turns a concurrent race into ErrVersionConflict.
		var maxVersion int
		err := tx.Model(&models.ModelVersion{}).
			Where("model_id = ?", v.ModelID).
			Select("COALESCE(MAX(version_number), 0)").
			Scan(&maxVersion).Error
		if err != nil {
			return err
		}
		v.VersionNumber = maxVersion + 1
		v.Status = models.VersionStatusPending

		if err := tx.Create(v).Error; err != nil {
			if isUniqueConstraintError(err) {
				return models.ErrVersionConflict
			}
			return err
		}

		// Outbox: the jobs land in the same transaction as the version.
		for _, job := range jobs {
			if job.ID == "" {
				job.ID = uuid.New().String()
			}
			job.Status = models.JobStatusPending
			if job.RunAfter.IsZero() {
				job.RunAfter = time.Now()
			}
			if err := tx.Create(job).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (s *GORMStore) GetModelVersion(ctx context.Context, id string) (*models.ModelVersion, error) {
	return getByField[models.ModelVersion](s.db, ctx, "id", id, models.ErrModelVersionNotFound)
}

func (s *GORMStore) ListModelVersions(ctx context.Context, modelID string, page Page) ([]*models.ModelVersion, int64, error) {
	q := s.db.WithContext(ctx).Where("model_id = ?", modelID)
	return listPage[models.ModelVersion](q, page, "version_number DESC")
}

func (s *GORMStore) MarkVersionProcessing(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).
		Model(&models.ModelVersion{}).
		Where("id = ? AND status IN ?", id, []models.VersionStatus{
			models.VersionStatusPending,
			models.VersionStatusProcessing,
		}).
		Update("status", models.VersionStatusProcessing)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := s.db.WithContext(ctx).Model(&models.ModelVersion{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return models.ErrModelVersionNotFound
		}
		return models.ErrVersionConflict
	}
	return nil
}

func (s *GORMStore) AttachVersionArtifact(ctx context.Context, id string, category models.FileCategory, fileID string) (*models.ModelVersion, error) {
	var column string
	switch category {
	case models.FileCategoryWexBim:
		column = "wex_bim_file_id"
	case models.FileCategoryProperties:
		column = "properties_file_id"
	default:
		return nil, models.ErrStorageInconsistency
	}

	var version models.ModelVersion

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.ModelVersion{}).
			Where("id = ?", id).
			Update(column, fileID)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return models.ErrModelVersionNotFound
		}

		// Promote guarded against the committed row, not an earlier read:
		// two workers attaching the two artifacts concurrently would each
		// miss the other's column in a snapshot taken before both writes.
		// The write lock taken above makes this recheck see both.
		err := tx.Model(&models.ModelVersion{}).
			Where("id = ? AND wex_bim_file_id IS NOT NULL AND properties_file_id IS NOT NULL AND status NOT IN ?",
				id, []models.VersionStatus{models.VersionStatusFailed, models.VersionStatusReady}).
			Updates(map[string]any{
				"status":       models.VersionStatusReady,
				"processed_at": time.Now(),
			}).Error
		if err != nil {
			return err
		}

		return tx.Where("id = ?", id).First(&version).Error
	})
	if err != nil {
		return nil, err
	}
	return &version, nil
}

func (s *GORMStore) FailVersion(ctx context.Context, id string, message string) error {
	result := s.db.WithContext(ctx).
		Model(&models.ModelVersion{}).
		Where("id = ? AND status <> ?", id, models.VersionStatusReady).
		Updates(map[string]any{
			"status":        models.VersionStatusFailed,
			"error_message": message,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrVersionConflict
	}
	return nil
}
