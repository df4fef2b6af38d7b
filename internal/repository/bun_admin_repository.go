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

// BunAdminRepository implements AdminRepository using Bun.
type BunAdminRepository struct {
	db *bun.DB
}

// NewBunAdminRepository creates a new Bun-based admin repository.
func NewBunAdminRepository(db *bun.DB) *BunAdminRepository {
	return &BunAdminRepository{db: db}
}

// Create inserts a new admin. Emails are stored lowercased.
func (r *BunAdminRepository) Create(ctx context.Context, admin *models.Admin) error {
	admin.Email = strings.ToLower(admin.Email)
	_, err := r.db.NewInsert().Model(admin).Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.Conflict("admin %q already exists", admin.Email)
		}
		return fmt.Errorf("create admin: %w", err)
	}
	return nil
}

// GetByID retrieves an admin by id.
func (r *BunAdminRepository) GetByID(ctx context.Context, id string) (*models.Admin, error) {
	admin := new(models.Admin)
	err := r.db.NewSelect().Model(admin).Where("id = ?", id).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("admin not found")
		}
		return nil, fmt.Errorf("get admin by id: %w", err)
	}
	return admin, nil
}

// GetByEmail retrieves an admin by email (case-insensitive).
func (r *BunAdminRepository) GetByEmail(ctx context.Context, email string) (*models.Admin, error) {
	admin := new(models.Admin)
	err := r.db.NewSelect().Model(admin).Where("email = ?", strings.ToLower(email)).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("admin not found")
		}
		return nil, fmt.Errorf("get admin by email: %w", err)
	}
	return admin, nil
}

// SetPasswordHash updates the stored password hash for an admin.
func (r *BunAdminRepository) SetPasswordHash(ctx context.Context, id, hash string) error {
	res, err := r.db.NewUpdate().
		Model((*models.Admin)(nil)).
		Set("password_hash = ?", hash).
		Set("updated_at = ?", models.NowUTC()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("set admin password: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set admin password rows affected: %w", err)
	}
	if affected == 0 {
		return apperrors.NotFound("admin not found")
	}
	return nil
}

// Count returns the number of admin rows.
func (r *BunAdminRepository) Count(ctx context.Context) (int, error) {
	count, err := r.db.NewSelect().Model((*models.Admin)(nil)).Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count admins: %w", err)
	}
	return count, nil
}
