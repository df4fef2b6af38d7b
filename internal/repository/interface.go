// Package repository provides Bun-backed access to the system tables.
// Dynamic user tables are not covered here; the record service queries
// them directly through the gateway.
package repository

import (
	"context"

	"github.com/bunbase/bunbase/internal/db/models"
	"github.com/uptrace/bun"
)

// CollectionRepository manages _collections rows.
type CollectionRepository interface {
	Create(ctx context.Context, tx bun.IDB, c *models.Collection) error
	Update(ctx context.Context, tx bun.IDB, c *models.Collection) error
	Delete(ctx context.Context, tx bun.IDB, id string) error
	GetByName(ctx context.Context, name string) (*models.Collection, error)
	List(ctx context.Context) ([]*models.Collection, error)
}

// FieldRepository manages _fields rows.
type FieldRepository interface {
	Create(ctx context.Context, tx bun.IDB, f *models.Field) error
	Update(ctx context.Context, tx bun.IDB, f *models.Field) error
	Delete(ctx context.Context, tx bun.IDB, id string) error
	ListByCollection(ctx context.Context, collectionID string) ([]*models.Field, error)
}

// AdminRepository manages _admins rows.
type AdminRepository interface {
	Create(ctx context.Context, admin *models.Admin) error
	GetByID(ctx context.Context, id string) (*models.Admin, error)
	GetByEmail(ctx context.Context, email string) (*models.Admin, error)
	SetPasswordHash(ctx context.Context, id, hash string) error
	Count(ctx context.Context) (int, error)
}
