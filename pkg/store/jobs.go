package store

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/octopus-bim/octopus/pkg/models"
)

// ============================================
// JOB OUTBOX OPERATIONS
// ============================================

func (s *GORMStore) ClaimDueJobs(ctx context.Context, now time.Time, limit int) ([]*models.Job, error) {
	var claimed []*models.Job

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Where("status = ? AND run_after <= ?", models.JobStatusPending, now).
			Order("created_at ASC").
			Limit(limit).
			Find(&claimed).Error; err != nil {
			return err
		}
		if len(claimed) == 0 {
			return nil
		}
		ids := make([]string, len(claimed))
		for i, job := range claimed {
			ids[i] = job.ID
			job.Status = models.JobStatusInflight
		}
		return tx.Model(&models.Job{}).
			Where("id IN ? AND status = ?", ids, models.JobStatusPending).
			Update("status", models.JobStatusInflight).Error
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (s *GORMStore) RequeueJob(ctx context.Context, id string, attempt int, runAfter time.Time, lastError string) error {
	result := s.db.WithContext(ctx).
		Model(&models.Job{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     models.JobStatusPending,
			"attempt":    attempt,
			"run_after":  runAfter,
			"last_error": lastError,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrJobNotFound
	}
	return nil
}

func (s *GORMStore) CompleteJob(ctx context.Context, id string, at time.Time) error {
	result := s.db.WithContext(ctx).
		Model(&models.Job{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":  models.JobStatusSucceeded,
			"done_at": at,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrJobNotFound
	}
	return nil
}

func (s *GORMStore) FailJob(ctx context.Context, id string, lastError string, at time.Time) error {
	result := s.db.WithContext(ctx).
		Model(&models.Job{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     models.JobStatusFailed,
			"last_error": lastError,
			"done_at":    at,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrJobNotFound
	}
	return nil
}

func (s *GORMStore) ResetInflightJobs(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).
		Model(&models.Job{}).
		Where("status = ?", models.JobStatusInflight).
		Update("status", models.JobStatusPending)
	return result.RowsAffected, result.Error
}
