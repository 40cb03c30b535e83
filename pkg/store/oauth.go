package store

import (
	"context"
	"time"

	"github.com/octopus-bim/octopus/pkg/models"
)

// ============================================
// OAUTH OPERATIONS
// ============================================

func (s *GORMStore) CreateOAuthApp(ctx context.Context, app *models.OAuthApp) (string, error) {
	return createWithID(s.db, ctx, app, func(a *models.OAuthApp, id string) { a.ID = id }, app.ID, models.ErrDuplicateOAuthApp)
}

func (s *GORMStore) GetOAuthAppByClientID(ctx context.Context, clientID string) (*models.OAuthApp, error) {
	return getByField[models.OAuthApp](s.db, ctx, "client_id", clientID, models.ErrOAuthAppNotFound)
}

func (s *GORMStore) ListOAuthApps(ctx context.Context, workspaceID string) ([]*models.OAuthApp, error) {
	var apps []*models.OAuthApp
	err := s.db.WithContext(ctx).
		Where("workspace_id = ?", workspaceID).
		Order("created_at DESC").
		Find(&apps).Error
	if err != nil {
		return nil, err
	}
	return apps, nil
}

func (s *GORMStore) CreateAuthorizationCode(ctx context.Context, code *models.AuthorizationCode) (string, error) {
	return createWithID(s.db, ctx, code, func(c *models.AuthorizationCode, id string) { c.ID = id }, code.ID, models.ErrAuthCodeConsumed)
}

func (s *GORMStore) GetAuthorizationCodeByHash(ctx context.Context, codeHash, oauthAppID string) (*models.AuthorizationCode, error) {
	var code models.AuthorizationCode
	err := s.db.WithContext(ctx).
		Where("code_hash = ? AND oauth_app_id = ?", codeHash, oauthAppID).
		First(&code).Error
	if err != nil {
		return nil, convertNotFoundError(err, models.ErrAuthCodeNotFound)
	}
	return &code, nil
}

func (s *GORMStore) ConsumeAuthorizationCode(ctx context.Context, id string, at time.Time) error {
	// Single-use guarantee: the guarded update decides replay races.
	result := s.db.WithContext(ctx).
		Model(&models.AuthorizationCode{}).
		Where("id = ? AND is_used = ?", id, false).
		Updates(map[string]any{"is_used": true, "used_at": at})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrAuthCodeConsumed
	}
	return nil
}
