package store

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ============================================================================
// Generic GORM Helpers
// ============================================================================
//
// These helpers reduce repetitive CRUD boilerplate across the store files.
// They are unexported and operate on the raw *gorm.DB to avoid coupling to
// GORMStore. Each helper handles context propagation, not-found error
// conversion and unique constraint detection.

// Page holds validated pagination parameters.
type Page struct {
	Page     int
	PageSize int
}

// ClampPage normalizes pagination input: page >= 1, pageSize in [1,100].
// Zero values select the defaults (page 1, pageSize 50).
func ClampPage(page, pageSize int) Page {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 50
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return Page{Page: page, PageSize: pageSize}
}

// Offset returns the row offset for the page.
func (p Page) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// getByField retrieves a single record of type T by matching field=value.
// gorm.ErrRecordNotFound is converted to notFoundErr for consistent domain
// error mapping.
func getByField[T any](db *gorm.DB, ctx context.Context, field string, value any, notFoundErr error) (*T, error) {
	var result T
	if err := db.WithContext(ctx).Where(field+" = ?", value).First(&result).Error; err != nil {
		return nil, convertNotFoundError(err, notFoundErr)
	}
	return &result, nil
}

// createWithID generates a UUID for the entity if it has no ID, then creates
// it. Unique constraint violations are converted to dupErr.
func createWithID[T any](db *gorm.DB, ctx context.Context, entity *T, idSetter func(*T, string), currentID string, dupErr error) (string, error) {
	id := currentID
	if id == "" {
		id = uuid.New().String()
		idSetter(entity, id)
	}
	if err := db.WithContext(ctx).Create(entity).Error; err != nil {
		if isUniqueConstraintError(err) {
			return "", dupErr
		}
		return "", err
	}
	return id, nil
}

// listPage runs the given query with pagination and returns the matching
// rows along with the unpaged total.
func listPage[T any](q *gorm.DB, page Page, order string) ([]*T, int64, error) {
	var total int64
	var zero T
	if err := q.Model(&zero).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var results []*T
	if err := q.Order(order).Limit(page.PageSize).Offset(page.Offset()).Find(&results).Error; err != nil {
		return nil, 0, err
	}
	return results, total, nil
}
