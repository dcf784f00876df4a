package activity

import (
	"context"

	"gorm.io/gorm"

	"schooladmin.org/internal/tenancy"
)

// GormStore keeps entries in the activity_log table.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Append(ctx context.Context, e *Entry) error {
	return tenancy.FromContext[Entry](ctx, s.db).Create(ctx, e)
}

// Recent lists the newest entries visible in the request's tenant scope.
func (s *GormStore) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return tenancy.FromContext[Entry](ctx, s.db).List(ctx, func(q *gorm.DB) *gorm.DB {
		return q.Order("created_at desc").Limit(limit)
	})
}
