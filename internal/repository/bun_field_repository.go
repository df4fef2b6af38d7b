package repository

import (
	"context"
	"fmt"

	"github.com/bunbase/bunbase/internal/apperrors"
	"github.com/bunbase/bunbase/internal/db/models"
	"github.com/uptrace/bun"
)

// BunFieldRepository implements FieldRepository using Bun.
type BunFieldRepository struct {
	db *bun.DB
}

// NewBunFieldRepository creates a new Bun-based field repository.
func NewBunFieldRepository(db *bun.DB) *BunFieldRepository {
	return &BunFieldRepository{db: db}
}

// Create inserts a new field row.
func (r *BunFieldRepository) Create(ctx context.Context, tx bun.IDB, f *models.Field) error {
	if tx == nil {
		tx = r.db
	}
	_, err := tx.NewInsert().Model(f).Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.Conflict("field %q already exists", f.Name)
		}
		return fmt.Errorf("create field: %w", err)
	}
	return nil
}

// Update persists changes to an existing field row.
func (r *BunFieldRepository) Update(ctx context.Context, tx bun.IDB, f *models.Field) error {
	if tx == nil {
		tx = r.db
	}
	f.UpdatedAt = models.NowUTC()
	res, err := tx.NewUpdate().Model(f).WherePK().Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.Conflict("field %q already exists", f.Name)
		}
		return fmt.Errorf("update field: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update field rows affected: %w", err)
	}
	if affected == 0 {
		return apperrors.NotFound("field %q not found", f.Name)
	}
	return nil
}

// Delete removes a field row.
func (r *BunFieldRepository) Delete(ctx context.Context, tx bun.IDB, id string) error {
	if tx == nil {
		tx = r.db
	}
	_, err := tx.NewDelete().Model((*models.Field)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete field: %w", err)
	}
	return nil
}

// ListByCollection returns the fields of a collection in creation order.
func (r *BunFieldRepository) ListByCollection(ctx context.Context, collectionID string) ([]*models.Field, error) {
	var fields []*models.Field
	err := r.db.NewSelect().
		Model(&fields).
		Where("collection_id = ?", collectionID).
		Order("created_at ASC", "id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list fields: %w", err)
	}
	return fields, nil
}
