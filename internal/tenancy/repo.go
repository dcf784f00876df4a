package tenancy

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const column = "tenant_id"

// Option narrows a read, e.g. ordering or an extra filter.
type Option func(*gorm.DB) *gorm.DB

// Repo reads and writes model T within one tenant, or across all tenants when
// built with AllTenants. There is no way to obtain a Repo without choosing.
type Repo[T any, P interface {
	*T
	Owned
}] struct {
	db       *gorm.DB
	tenantID string
}

// ForTenant scopes every operation to tenantID.
func ForTenant[T any, P interface {
	*T
	Owned
}](db *gorm.DB, tenantID string) (*Repo[T, P], error) {
	if tenantID == "" {
		return nil, ErrNoTenant
	}
	return &Repo[T, P]{db: db, tenantID: tenantID}, nil
}

// AllTenants is the administrative escape hatch: no tenant filter at all.
func AllTenants[T any, P interface {
	*T
	Owned
}](db *gorm.DB) *Repo[T, P] {
	return &Repo[T, P]{db: db}
}

// FromContext scopes to the tenant bound to ctx. Without one (background jobs,
// a super-admin in global mode) no filter is applied.
func FromContext[T any, P interface {
	*T
	Owned
}](ctx context.Context, db *gorm.DB) *Repo[T, P] {
	if id, ok := TenantFrom(ctx); ok {
		return &Repo[T, P]{db: db, tenantID: id}
	}
	return AllTenants[T, P](db)
}

// TenantID returns the scope, empty for an all-tenants repository.
func (r *Repo[T, P]) TenantID() string { return r.tenantID }

func (r *Repo[T, P]) tenantFilter() clause.Expression {
	return clause.Eq{Column: clause.Column{Table: clause.CurrentTable, Name: column}, Value: r.tenantID}
}

// Query returns a scoped query for reads the helpers below do not cover.
func (r *Repo[T, P]) Query(ctx context.Context) *gorm.DB {
	q := r.db.WithContext(ctx).Model(new(T))
	if r.tenantID != "" {
		q = q.Where(r.tenantFilter())
	}
	return q
}

func (r *Repo[T, P]) List(ctx context.Context, opts ...Option) ([]T, error) {
	var out []T
	q := r.Query(ctx)
	for _, opt := range opts {
		q = opt(q)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repo[T, P]) Count(ctx context.Context, opts ...Option) (int64, error) {
	var n int64
	q := r.Query(ctx)
	for _, opt := range opts {
		q = opt(q)
	}
	if err := q.Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

// Get returns ErrNotFound for rows outside the scope.
func (r *Repo[T, P]) Get(ctx context.Context, id string) (T, error) {
	var rows []T
	err := r.Query(ctx).Where(clause.Eq{Column: clause.PrimaryColumn, Value: id}).Find(&rows).Error
	if err != nil {
		var zero T
		return zero, err
	}
	if len(rows) == 0 {
		var zero T
		return zero, ErrNotFound
	}
	return rows[0], nil
}

// Create stamps the scope's tenant on rec when unset.
func (r *Repo[T, P]) Create(ctx context.Context, rec P) error {
	if err := stamp(r.tenantID, rec); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(rec).Error
}

// Update writes every column of rec except created_at. The row must be visible
// in the scope and its tenant may not change.
func (r *Repo[T, P]) Update(ctx context.Context, rec P) error {
	original, err := r.Get(ctx, rec.RecordID())
	if err != nil {
		return err
	}
	if err := keepTenant(P(&original), rec); err != nil {
		return err
	}
	q := r.db.WithContext(ctx).Model(rec)
	if r.tenantID != "" {
		q = q.Where(r.tenantFilter())
	}
	res := q.Select("*").Omit("created_at").Updates(rec)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes the row if it is visible in the scope.
func (r *Repo[T, P]) Delete(ctx context.Context, id string) error {
	res := r.Query(ctx).Where(clause.Eq{Column: clause.PrimaryColumn, Value: id}).Delete(new(T))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
