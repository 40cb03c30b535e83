package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/octopus-bim/octopus/pkg/models"
)

// ============================================
// UPLOAD SESSION OPERATIONS
// ============================================

func (s *GORMStore) CreateUploadSession(ctx context.Context, sess *models.UploadSession) (string, error) {
	return createWithID(s.db, ctx, sess, func(u *models.UploadSession, id string) { u.ID = id }, sess.ID, models.ErrSessionConflict)
}

func (s *GORMStore) GetUploadSession(ctx context.Context, id string) (*models.UploadSession, error) {
	return getByField[models.UploadSession](s.db, ctx, "id", id, models.ErrSessionNotFound)
}

func (s *GORMStore) TransitionUploadSession(ctx context.Context, id string, from []models.UploadStatus, to models.UploadStatus) error {
	result := s.db.WithContext(ctx).
		Model(&models.UploadSession{}).
		Where("id = ? AND status IN ?", id, from).
		Update("status", to)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		// Distinguish an unknown session from a guard mismatch.
		var count int64
		if err := s.db.WithContext(ctx).Model(&models.UploadSession{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return models.ErrSessionNotFound
		}
		return models.ErrSessionConflict
	}
	return nil
}

func (s *GORMStore) CommitUploadSession(ctx context.Context, sessionID string, file *models.File, quotaBytes *int64) (*models.File, error) {
	if file.ID == "" {
		file.ID = uuid.New().String()
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var sess models.UploadSession
		if err := tx.Where("id = ?", sessionID).First(&sess).Error; err != nil {
			return convertNotFoundError(err, models.ErrSessionNotFound)
		}

		// Quota gate inside the transaction. On violation the session is
		// left in Uploading so the bytes stay recoverable.
		if quotaBytes != nil {
			var project models.Project
			if err := tx.Where("id = ?", sess.ProjectID).First(&project).Error; err != nil {
				return convertNotFoundError(err, models.ErrProjectNotFound)
			}
			var used int64
			err := tx.Model(&models.File{}).
				Joins("JOIN projects ON projects.id = files.project_id").
				Where("projects.workspace_id = ? AND files.is_deleted = ?", project.WorkspaceID, false).
				Select("COALESCE(SUM(files.size_bytes), 0)").
				Scan(&used).Error
			if err != nil {
				return err
			}
			if used+file.SizeBytes > *quotaBytes {
				return models.ErrQuotaExceeded
			}
		}

		// Single-writer commit: the guarded update decides the race.
		result := tx.Model(&models.UploadSession{}).
			Where("id = ? AND status = ?", sessionID, models.UploadStatusUploading).
			Updates(map[string]any{
				"status":            models.UploadStatusCommitted,
				"committed_file_id": file.ID,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return models.ErrSessionConflict
		}

		return tx.Create(file).Error
	})
	if err != nil {
		return nil, err
	}
	return file, nil
}

func (s *GORMStore) ExpireUploadSessions(ctx context.Context, now time.Time) ([]*models.UploadSession, error) {
	var expired []*models.UploadSession

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		nonTerminal := []models.UploadStatus{models.UploadStatusReserved, models.UploadStatusUploading}
		if err := tx.Where("status IN ? AND expires_at < ?", nonTerminal, now).Find(&expired).Error; err != nil {
			return err
		}
		if len(expired) == 0 {
			return nil
		}
		ids := make([]string, len(expired))
		for i, sess := range expired {
			ids[i] = sess.ID
			sess.Status = models.UploadStatusExpired
		}
		return tx.Model(&models.UploadSession{}).
			Where("id IN ? AND status IN ?", ids, nonTerminal).
			Update("status", models.UploadStatusExpired).Error
	})
	if err != nil {
		return nil, err
	}
	return expired, nil
}
