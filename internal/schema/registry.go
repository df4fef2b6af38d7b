// Package schema persists collection definitions in the system tables,
// translates schema mutations into DDL on the user tables, and caches
// per-collection field lists for the hot read path.
package schema

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/bunbase/bunbase/internal/apperrors"
	"github.com/bunbase/bunbase/internal/db/bunx"
	"github.com/bunbase/bunbase/internal/db/models"
	"github.com/bunbase/bunbase/internal/repository"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// FieldSpec is the client-facing shape of a field definition.
type FieldSpec struct {
	Name     string            `json:"name"`
	Type     models.FieldType  `json:"type"`
	Required bool              `json:"required"`
	Options  models.OptionsMap `json:"options"`
}

// RuleSet carries the optional per-operation rule strings of a
// collection. Nil entries leave the current value untouched on update.
type RuleSet struct {
	ListRule   *string `json:"listRule"`
	ViewRule   *string `json:"viewRule"`
	CreateRule *string `json:"createRule"`
	UpdateRule *string `json:"updateRule"`
	DeleteRule *string `json:"deleteRule"`
}

// Snapshot is an immutable view of a collection and its fields. Readers
// must not mutate it; the registry hands the same snapshot to concurrent
// callers.
type Snapshot struct {
	Collection *models.Collection
	Fields     []*models.Field
}

// Field returns the field with the given name, or nil.
func (s *Snapshot) Field(name string) *models.Field {
	for _, f := range s.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// HasColumn reports whether name is a managed column or a defined field.
func (s *Snapshot) HasColumn(name string) bool {
	return models.IsManagedColumn(name) || s.Field(name) != nil
}

// ColumnNames returns the managed columns followed by the field columns.
func (s *Snapshot) ColumnNames() []string {
	names := []string{models.ColumnID, models.ColumnCreatedAt, models.ColumnUpdatedAt}
	for _, f := range s.Fields {
		names = append(names, f.Name)
	}
	return names
}

// Registry is the schema registry. All mutations run in a single
// transaction covering both the metadata rows and the physical DDL, and
// invalidate the snapshot cache.
type Registry struct {
	db          *bun.DB
	collections repository.CollectionRepository
	fields      repository.FieldRepository

	mu    sync.RWMutex
	cache map[string]*Snapshot
}

// NewRegistry creates a schema registry over the given database.
func NewRegistry(db *bun.DB, collections repository.CollectionRepository, fields repository.FieldRepository) *Registry {
	return &Registry{
		db:          db,
		collections: collections,
		fields:      fields,
		cache:       make(map[string]*Snapshot),
	}
}

// GetCollection returns the cached snapshot for name, loading it from
// the system tables on a miss.
func (r *Registry) GetCollection(ctx context.Context, name string) (*Snapshot, error) {
	r.mu.RLock()
	snap, ok := r.cache[name]
	r.mu.RUnlock()
	if ok {
		return snap, nil
	}

	col, err := r.collections.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}
	fields, err := r.fields.ListByCollection(ctx, col.ID)
	if err != nil {
		return nil, err
	}
	snap = &Snapshot{Collection: col, Fields: fields}

	r.mu.Lock()
	r.cache[name] = snap
	r.mu.Unlock()
	return snap, nil
}

// GetFields returns the field list of a collection.
func (r *Registry) GetFields(ctx context.Context, name string) ([]*models.Field, error) {
	snap, err := r.GetCollection(ctx, name)
	if err != nil {
		return nil, err
	}
	return snap.Fields, nil
}

// ListCollections returns all collections without their fields.
func (r *Registry) ListCollections(ctx context.Context) ([]*models.Collection, error) {
	return r.collections.List(ctx)
}

// invalidate drops the cached snapshot for name.
func (r *Registry) invalidate(name string) {
	r.mu.Lock()
	delete(r.cache, name)
	r.mu.Unlock()
}

// ClearCache drops every cached snapshot.
func (r *Registry) ClearCache() {
	r.mu.Lock()
	r.cache = make(map[string]*Snapshot)
	r.mu.Unlock()
}

// CreateCollection validates the definition, creates the physical table
// with the managed columns plus one column per field, and inserts the
// metadata rows, all in one transaction. Auth collections receive the
// implicit email, password_hash and verified fields and a unique index
// on email.
func (r *Registry) CreateCollection(ctx context.Context, name string, typ models.CollectionType, specs []FieldSpec, rules RuleSet) (*Snapshot, error) {
	if err := ValidateCollectionName(name); err != nil {
		return nil, err
	}
	if typ == "" {
		typ = models.CollectionTypeBase
	}
	if typ != models.CollectionTypeBase && typ != models.CollectionTypeAuth {
		return nil, apperrors.Validation("unknown collection type %q", typ)
	}

	if typ == models.CollectionTypeAuth {
		specs = append(specs,
			FieldSpec{Name: AuthFieldEmail, Type: models.FieldTypeText, Required: true},
			FieldSpec{Name: AuthFieldPasswordHash, Type: models.FieldTypeText},
			FieldSpec{Name: AuthFieldVerified, Type: models.FieldTypeBool},
		)
	}

	now := models.NowUTC()
	col := &models.Collection{
		ID:         uuid.NewString(),
		Name:       name,
		Type:       typ,
		ListRule:   rules.ListRule,
		ViewRule:   rules.ViewRule,
		CreateRule: rules.CreateRule,
		UpdateRule: rules.UpdateRule,
		DeleteRule: rules.DeleteRule,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	fieldRows := make([]*models.Field, 0, len(specs))
	seen := map[string]bool{}
	for _, spec := range specs {
		row, err := r.buildFieldRow(ctx, col, spec)
		if err != nil {
			return nil, err
		}
		if seen[row.Name] {
			return nil, apperrors.Validation("duplicate field %q", row.Name)
		}
		seen[row.Name] = true
		fieldRows = append(fieldRows, row)
	}

	err := bunx.RunInTx(ctx, r.db, func(ctx context.Context, tx bun.Tx) error {
		if err := r.collections.Create(ctx, tx, col); err != nil {
			return err
		}
		for _, row := range fieldRows {
			if err := r.fields.Create(ctx, tx, row); err != nil {
				return err
			}
		}
		if _, err := tx.ExecContext(ctx, createTableSQL(name, fieldRows)); err != nil {
			return fmt.Errorf("create table %q: %w", name, err)
		}
		if typ == models.CollectionTypeAuth {
			idx := fmt.Sprintf("CREATE UNIQUE INDEX %s ON %s (%s)",
				bunx.QuoteIdent("idx_"+name+"_email"),
				bunx.QuoteIdent(name),
				bunx.QuoteIdent(AuthFieldEmail))
			if err := execDDL(ctx, tx, idx); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{Collection: col, Fields: fieldRows}
	r.mu.Lock()
	r.cache[name] = snap
	r.mu.Unlock()
	return snap, nil
}

// buildFieldRow validates one field spec and produces its metadata row.
func (r *Registry) buildFieldRow(ctx context.Context, col *models.Collection, spec FieldSpec) (*models.Field, error) {
	if err := ValidateFieldName(spec.Name); err != nil {
		return nil, err
	}
	if !validFieldType(spec.Type) {
		return nil, apperrors.Validation("unknown field type %q", spec.Type)
	}
	opts := spec.Options
	if opts == nil {
		opts = models.OptionsMap{}
	}

	switch spec.Type {
	case models.FieldTypeRelation:
		rel, err := DecodeRelationOptions(opts)
		if err != nil {
			return nil, apperrors.Validation("field %q: invalid relation options", spec.Name)
		}
		if rel.Target == "" {
			return nil, apperrors.Validation("field %q: relation target is required", spec.Name)
		}
		if rel.Target == col.Name {
			return nil, apperrors.Validation("field %q: relation may not target its own collection", spec.Name)
		}
		if _, err := r.collections.GetByName(ctx, rel.Target); err != nil {
			if apperrors.IsKind(err, apperrors.KindNotFound) {
				return nil, apperrors.Validation("field %q: unknown relation target %q", spec.Name, rel.Target)
			}
			return nil, err
		}
	case models.FieldTypeFile:
		if _, err := DecodeFileOptions(opts); err != nil {
			return nil, apperrors.Validation("field %q: invalid file options", spec.Name)
		}
	}

	now := models.NowUTC()
	return &models.Field{
		ID:           uuid.NewString(),
		CollectionID: col.ID,
		Name:         spec.Name,
		Type:         spec.Type,
		Required:     spec.Required,
		Options:      opts,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// UpdateRules applies the non-nil rules of rs to the collection.
// Renames are intentionally not supported: realtime subscriptions are
// keyed by collection name.
func (r *Registry) UpdateRules(ctx context.Context, name string, rs RuleSet) (*Snapshot, error) {
	snap, err := r.GetCollection(ctx, name)
	if err != nil {
		return nil, err
	}

	col := *snap.Collection
	if rs.ListRule != nil {
		col.ListRule = rs.ListRule
	}
	if rs.ViewRule != nil {
		col.ViewRule = rs.ViewRule
	}
	if rs.CreateRule != nil {
		col.CreateRule = rs.CreateRule
	}
	if rs.UpdateRule != nil {
		col.UpdateRule = rs.UpdateRule
	}
	if rs.DeleteRule != nil {
		col.DeleteRule = rs.DeleteRule
	}

	if err := r.collections.Update(ctx, nil, &col); err != nil {
		return nil, err
	}
	r.invalidate(name)
	return r.GetCollection(ctx, name)
}

// DeleteCollection drops the user table and removes the metadata rows.
// File-store cleanup for the collection tree is the caller's concern.
func (r *Registry) DeleteCollection(ctx context.Context, name string) error {
	snap, err := r.GetCollection(ctx, name)
	if err != nil {
		return err
	}

	err = bunx.RunInTx(ctx, r.db, func(ctx context.Context, tx bun.Tx) error {
		if err := r.collections.Delete(ctx, tx, snap.Collection.ID); err != nil {
			return err
		}
		return execDDL(ctx, tx, "DROP TABLE IF EXISTS "+bunx.QuoteIdent(name))
	})
	if err != nil {
		return err
	}
	r.invalidate(name)
	return nil
}

// AddField appends a column to the user table and records its metadata
// atomically.
func (r *Registry) AddField(ctx context.Context, collection string, spec FieldSpec) (*Snapshot, error) {
	snap, err := r.GetCollection(ctx, collection)
	if err != nil {
		return nil, err
	}
	if snap.HasColumn(spec.Name) {
		return nil, apperrors.Conflict("field %q already exists", spec.Name)
	}

	row, err := r.buildFieldRow(ctx, snap.Collection, spec)
	if err != nil {
		return nil, err
	}

	err = bunx.RunInTx(ctx, r.db, func(ctx context.Context, tx bun.Tx) error {
		if err := r.fields.Create(ctx, tx, row); err != nil {
			return err
		}
		ddl := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s",
			bunx.QuoteIdent(collection), bunx.QuoteIdent(row.Name), row.ColumnType())
		return execDDL(ctx, tx, ddl)
	})
	if err != nil {
		return nil, err
	}
	r.invalidate(collection)
	return r.GetCollection(ctx, collection)
}

// UpdateField renames a column and/or changes its declared type. Type
// changes rebuild the column with a CAST copy; values that do not cast
// cleanly degrade, so the operation is lossy by policy.
func (r *Registry) UpdateField(ctx context.Context, collection, fieldName string, spec FieldSpec) (*Snapshot, error) {
	snap, err := r.GetCollection(ctx, collection)
	if err != nil {
		return nil, err
	}
	existing := snap.Field(fieldName)
	if existing == nil {
		return nil, apperrors.NotFound("field %q not found", fieldName)
	}

	if spec.Name == "" {
		spec.Name = existing.Name
	}
	if spec.Type == "" {
		spec.Type = existing.Type
	}
	if spec.Options == nil {
		spec.Options = existing.Options
	}
	if spec.Name != existing.Name && snap.HasColumn(spec.Name) {
		return nil, apperrors.Conflict("field %q already exists", spec.Name)
	}

	updated, err := r.buildFieldRow(ctx, snap.Collection, spec)
	if err != nil {
		return nil, err
	}
	updated.ID = existing.ID
	updated.CreatedAt = existing.CreatedAt

	err = bunx.RunInTx(ctx, r.db, func(ctx context.Context, tx bun.Tx) error {
		if err := r.fields.Update(ctx, tx, updated); err != nil {
			return err
		}
		if spec.Name != existing.Name {
			ddl := fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s",
				bunx.QuoteIdent(collection), bunx.QuoteIdent(existing.Name), bunx.QuoteIdent(spec.Name))
			if err := execDDL(ctx, tx, ddl); err != nil {
				return err
			}
		}
		if spec.Type != existing.Type {
			if err := rebuildColumn(ctx, tx, collection, updated); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	r.invalidate(collection)
	return r.GetCollection(ctx, collection)
}

// RemoveField drops the column and removes its metadata. Data in the
// column is lost.
func (r *Registry) RemoveField(ctx context.Context, collection, fieldName string) (*Snapshot, error) {
	snap, err := r.GetCollection(ctx, collection)
	if err != nil {
		return nil, err
	}
	existing := snap.Field(fieldName)
	if existing == nil {
		return nil, apperrors.NotFound("field %q not found", fieldName)
	}

	err = bunx.RunInTx(ctx, r.db, func(ctx context.Context, tx bun.Tx) error {
		if err := r.fields.Delete(ctx, tx, existing.ID); err != nil {
			return err
		}
		ddl := fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s",
			bunx.QuoteIdent(collection), bunx.QuoteIdent(fieldName))
		return execDDL(ctx, tx, ddl)
	})
	if err != nil {
		return nil, err
	}
	r.invalidate(collection)
	return r.GetCollection(ctx, collection)
}

// createTableSQL builds the CREATE TABLE statement for a collection.
func createTableSQL(name string, fields []*models.Field) string {
	var b strings.Builder
	b.WriteString("CREATE TABLE ")
	b.WriteString(bunx.QuoteIdent(name))
	b.WriteString(" (")
	b.WriteString(bunx.QuoteIdent(models.ColumnID) + " TEXT PRIMARY KEY NOT NULL, ")
	b.WriteString(bunx.QuoteIdent(models.ColumnCreatedAt) + " TEXT NOT NULL, ")
	b.WriteString(bunx.QuoteIdent(models.ColumnUpdatedAt) + " TEXT NOT NULL")
	for _, f := range fields {
		b.WriteString(", ")
		b.WriteString(bunx.QuoteIdent(f.Name))
		b.WriteString(" ")
		b.WriteString(f.ColumnType())
	}
	b.WriteString(")")
	return b.String()
}

// rebuildColumn changes a column's declared type by copying through a
// temporary column with a CAST. Requires SQLite >= 3.35 for DROP COLUMN,
// which the bundled driver provides.
func rebuildColumn(ctx context.Context, tx bun.Tx, table string, f *models.Field) error {
	tmp := f.Name + "__old"
	stmts := []string{
		fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s",
			bunx.QuoteIdent(table), bunx.QuoteIdent(f.Name), bunx.QuoteIdent(tmp)),
		fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s",
			bunx.QuoteIdent(table), bunx.QuoteIdent(f.Name), f.ColumnType()),
		fmt.Sprintf("UPDATE %s SET %s = CAST(%s AS %s)",
			bunx.QuoteIdent(table), bunx.QuoteIdent(f.Name), bunx.QuoteIdent(tmp), f.ColumnType()),
		fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s",
			bunx.QuoteIdent(table), bunx.QuoteIdent(tmp)),
	}
	for _, stmt := range stmts {
		if err := execDDL(ctx, tx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func execDDL(ctx context.Context, tx bun.Tx, stmt string) error {
	if _, err := tx.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("ddl %q: %w", stmt, err)
	}
	return nil
}
