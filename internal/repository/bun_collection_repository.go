package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/bunbase/bunbase/internal/apperrors"
	"github.com/bunbase/bunbase/internal/db/models"
	"github.com/uptrace/bun"
)

// BunCollectionRepository implements CollectionRepository using Bun.
type BunCollectionRepository struct {
	db *bun.DB
}

// NewBunCollectionRepository creates a new Bun-based collection repository.
func NewBunCollectionRepository(db *bun.DB) *BunCollectionRepository {
	return &BunCollectionRepository{db: db}
}

// Create inserts a new collection row.
func (r *BunCollectionRepository) Create(ctx context.Context, tx bun.IDB, c *models.Collection) error {
	if tx == nil {
		tx = r.db
	}
	_, err := tx.NewInsert().Model(c).Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.Conflict("collection %q already exists", c.Name)
		}
		return fmt.Errorf("create collection: %w", err)
	}
	return nil
}

// Update persists rule or metadata changes for an existing collection.
func (r *BunCollectionRepository) Update(ctx context.Context, tx bun.IDB, c *models.Collection) error {
	if tx == nil {
		tx = r.db
	}
	c.UpdatedAt = models.NowUTC()
	res, err := tx.NewUpdate().Model(c).WherePK().Exec(ctx)
	if err != nil {
		return fmt.Errorf("update collection: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update collection rows affected: %w", err)
	}
	if affected == 0 {
		return apperrors.NotFound("collection %q not found", c.Name)
	}
	return nil
}

// Delete removes a collection row. _fields rows cascade via foreign key.
func (r *BunCollectionRepository) Delete(ctx context.Context, tx bun.IDB, id string) error {
	if tx == nil {
		tx = r.db
	}
	_, err := tx.NewDelete().Model((*models.Collection)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete collection: %w", err)
	}
	return nil
}

// GetByName retrieves a collection by its unique name.
func (r *BunCollectionRepository) GetByName(ctx context.Context, name string) (*models.Collection, error) {
	c := new(models.Collection)
	err := r.db.NewSelect().Model(c).Where("name = ?", name).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("collection %q not found", name)
		}
		return nil, fmt.Errorf("get collection by name: %w", err)
	}
	return c, nil
}

// List returns all collections ordered by name.
func (r *BunCollectionRepository) List(ctx context.Context) ([]*models.Collection, error) {
	var cols []*models.Collection
	err := r.db.NewSelect().Model(&cols).Order("name ASC").Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	return cols, nil
}

// isUniqueViolation detects SQLite unique constraint errors.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
