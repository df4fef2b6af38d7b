// Package records performs CRUD against the user tables: it validates
// input against the schema, encodes and decodes field values at the
// storage boundary, and exposes hook-aware variants that bracket the
// database work with the lifecycle chains.
package records

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"net/http"
	"strings"

	"github.com/bunbase/bunbase/internal/apperrors"
	"github.com/bunbase/bunbase/internal/db/bunx"
	"github.com/bunbase/bunbase/internal/db/models"
	"github.com/bunbase/bunbase/internal/hooks"
	"github.com/bunbase/bunbase/internal/query"
	"github.com/bunbase/bunbase/internal/schema"
	"github.com/uptrace/bun"
	"golang.org/x/crypto/bcrypt"
)

// Record is the dynamic row shape exchanged with the HTTP layer. Values
// are already decoded: numbers as numbers, booleans as booleans, JSON
// fields as their decoded values.
type Record = map[string]any

// ListResult is the paged outcome of a list operation.
type ListResult struct {
	Items      []Record `json:"items"`
	TotalItems int      `json:"totalItems"`
	Page       int      `json:"page"`
	PerPage    int      `json:"perPage"`
	TotalPages int      `json:"totalPages"`
}

// passwordKey is the virtual input key accepted on auth collections; it
// is bcrypt-hashed into password_hash and never stored as-is.
const passwordKey = "password"

// Service is the record service.
type Service struct {
	db       *bun.DB
	registry *schema.Registry
	hooks    *hooks.Registry
}

// NewService creates a record service.
func NewService(db *bun.DB, registry *schema.Registry, hookRegistry *hooks.Registry) *Service {
	return &Service{db: db, registry: registry, hooks: hookRegistry}
}

// Registry exposes the schema registry backing the service.
func (s *Service) Registry() *schema.Registry {
	return s.registry
}

// Create inserts a new record. The id is generated, timestamps are set,
// and every provided field is validated and coerced. Unknown keys are
// rejected.
func (s *Service) Create(ctx context.Context, collection string, data Record) (Record, error) {
	snap, err := s.registry.GetCollection(ctx, collection)
	if err != nil {
		return nil, err
	}

	data, err = s.normalizeAuthInput(snap, data)
	if err != nil {
		return nil, err
	}

	encoded, err := s.encodeInput(ctx, snap, data)
	if err != nil {
		return nil, err
	}
	if err := s.checkRequired(snap, encoded, nil); err != nil {
		return nil, err
	}

	id, err := NewRecordID()
	if err != nil {
		return nil, err
	}
	now := models.NowUTC()
	encoded[models.ColumnID] = id
	encoded[models.ColumnCreatedAt] = now
	encoded[models.ColumnUpdatedAt] = now

	columns := make([]string, 0, len(encoded))
	placeholders := make([]string, 0, len(encoded))
	args := make([]any, 0, len(encoded))
	for _, col := range snap.ColumnNames() {
		value, ok := encoded[col]
		if !ok {
			continue
		}
		columns = append(columns, bunx.QuoteIdent(col))
		placeholders = append(placeholders, "?")
		args = append(args, value)
	}

	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		bunx.QuoteIdent(collection),
		strings.Join(columns, ", "),
		strings.Join(placeholders, ", "))

	err = bunx.RunInTx(ctx, s.db, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.ExecContext(ctx, stmt, args...)
		return err
	})
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, apperrors.Conflict("record violates a unique constraint")
		}
		return nil, fmt.Errorf("insert record: %w", err)
	}

	return s.Get(ctx, collection, id)
}

// Get returns the decoded record or a NotFound error.
func (s *Service) Get(ctx context.Context, collection, id string) (Record, error) {
	snap, err := s.registry.GetCollection(ctx, collection)
	if err != nil {
		return nil, err
	}
	stmt := "SELECT * FROM " + bunx.QuoteIdent(collection) + " WHERE " + bunx.QuoteIdent(models.ColumnID) + " = ?"
	items, err := s.queryRecords(ctx, snap, stmt, id)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, apperrors.NotFound("record %q not found", id)
	}
	return items[0], nil
}

// List runs the query builder output: COUNT first, then the paged
// SELECT. The optional access clause is the lowered list rule of the
// requesting principal. Relation expansion covers one level.
func (s *Service) List(ctx context.Context, collection string, opts query.Options, access *query.Clause) (*ListResult, error) {
	snap, err := s.registry.GetCollection(ctx, collection)
	if err != nil {
		return nil, err
	}

	q, err := query.Build(snap, opts, access)
	if err != nil {
		return nil, err
	}

	var total int
	if err := s.db.QueryRowContext(ctx, q.CountSQL, q.CountArgs...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count records: %w", err)
	}

	items, err := s.queryRecords(ctx, snap, q.SQL, q.Args...)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []Record{}
	}

	if len(opts.Expand) > 0 {
		if err := s.expandRelations(ctx, snap, items, opts.Expand); err != nil {
			return nil, err
		}
	}

	return &ListResult{
		Items:      items,
		TotalItems: total,
		Page:       q.Page,
		PerPage:    q.PerPage,
		TotalPages: int(math.Ceil(float64(total) / float64(q.PerPage))),
	}, nil
}

// Update merges the patch onto the existing record and persists it with
// a refreshed updated_at. Keys missing from the patch stay untouched.
func (s *Service) Update(ctx context.Context, collection, id string, patch Record) (Record, error) {
	snap, err := s.registry.GetCollection(ctx, collection)
	if err != nil {
		return nil, err
	}
	existing, err := s.Get(ctx, collection, id)
	if err != nil {
		return nil, err
	}

	patch, err = s.normalizeAuthInput(snap, patch)
	if err != nil {
		return nil, err
	}

	encoded, err := s.encodeInput(ctx, snap, patch)
	if err != nil {
		return nil, err
	}
	if err := s.checkRequired(snap, encoded, existing); err != nil {
		return nil, err
	}
	if len(encoded) == 0 {
		return existing, nil
	}
	encoded[models.ColumnUpdatedAt] = models.NowUTC()

	sets := make([]string, 0, len(encoded))
	args := make([]any, 0, len(encoded)+1)
	for _, col := range snap.ColumnNames() {
		value, ok := encoded[col]
		if !ok {
			continue
		}
		sets = append(sets, bunx.QuoteIdent(col)+" = ?")
		args = append(args, value)
	}
	args = append(args, id)

	stmt := fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?",
		bunx.QuoteIdent(collection),
		strings.Join(sets, ", "),
		bunx.QuoteIdent(models.ColumnID))

	err = bunx.RunInTx(ctx, s.db, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.ExecContext(ctx, stmt, args...)
		return err
	})
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, apperrors.Conflict("record violates a unique constraint")
		}
		return nil, fmt.Errorf("update record: %w", err)
	}

	return s.Get(ctx, collection, id)
}

// Delete removes the record row. File cleanup belongs to the afterDelete
// hook, not here.
func (s *Service) Delete(ctx context.Context, collection, id string) error {
	if _, err := s.registry.GetCollection(ctx, collection); err != nil {
		return err
	}
	stmt := "DELETE FROM " + bunx.QuoteIdent(collection) + " WHERE " + bunx.QuoteIdent(models.ColumnID) + " = ?"

	var affected int64
	err := bunx.RunInTx(ctx, s.db, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.ExecContext(ctx, stmt, id)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	if affected == 0 {
		return apperrors.NotFound("record %q not found", id)
	}
	return nil
}

// CreateWithHooks brackets Create with the beforeCreate/afterCreate
// chains. A before-hook error cancels the insert; after-hook errors are
// logged and swallowed.
func (s *Service) CreateWithHooks(ctx context.Context, collection string, data Record, req *http.Request) (Record, error) {
	hookCtx := &hooks.Context{Collection: collection, Data: data, Request: req}
	if err := s.hooks.Trigger(hooks.EventBeforeCreate, hookCtx); err != nil {
		return nil, asHookError(err)
	}

	record, err := s.Create(ctx, collection, hookCtx.Data)
	if err != nil {
		return nil, err
	}

	after := &hooks.Context{Collection: collection, ID: record[models.ColumnID].(string), Record: record, Request: req}
	if err := s.hooks.Trigger(hooks.EventAfterCreate, after); err != nil {
		log.Printf("WARNING: afterCreate hook failed for %s: %v", collection, err)
	}
	return record, nil
}

// UpdateWithHooks brackets Update with the beforeUpdate/afterUpdate
// chains.
func (s *Service) UpdateWithHooks(ctx context.Context, collection, id string, patch Record, req *http.Request) (Record, error) {
	existing, err := s.Get(ctx, collection, id)
	if err != nil {
		return nil, err
	}

	hookCtx := &hooks.Context{Collection: collection, ID: id, Data: patch, Existing: existing, Request: req}
	if err := s.hooks.Trigger(hooks.EventBeforeUpdate, hookCtx); err != nil {
		return nil, asHookError(err)
	}

	record, err := s.Update(ctx, collection, id, hookCtx.Data)
	if err != nil {
		return nil, err
	}

	after := &hooks.Context{Collection: collection, ID: id, Record: record, Existing: existing, Request: req}
	if err := s.hooks.Trigger(hooks.EventAfterUpdate, after); err != nil {
		log.Printf("WARNING: afterUpdate hook failed for %s: %v", collection, err)
	}
	return record, nil
}

// DeleteWithHooks brackets Delete with the beforeDelete/afterDelete
// chains. The afterDelete chain receives the deleted record so the file
// store can clean up its directory.
func (s *Service) DeleteWithHooks(ctx context.Context, collection, id string, req *http.Request) error {
	existing, err := s.Get(ctx, collection, id)
	if err != nil {
		return err
	}

	hookCtx := &hooks.Context{Collection: collection, ID: id, Existing: existing, Request: req}
	if err := s.hooks.Trigger(hooks.EventBeforeDelete, hookCtx); err != nil {
		return asHookError(err)
	}

	if err := s.Delete(ctx, collection, id); err != nil {
		return err
	}

	after := &hooks.Context{Collection: collection, ID: id, Record: existing, Existing: existing, Request: req}
	if err := s.hooks.Trigger(hooks.EventAfterDelete, after); err != nil {
		log.Printf("WARNING: afterDelete hook failed for %s: %v", collection, err)
	}
	return nil
}

// encodeInput validates and encodes every provided field value. Unknown
// keys and managed columns are rejected.
func (s *Service) encodeInput(ctx context.Context, snap *schema.Snapshot, data Record) (map[string]any, error) {
	encoded := make(map[string]any, len(data))
	for key, value := range data {
		if models.IsManagedColumn(key) {
			return nil, apperrors.Validation("field %q is managed and cannot be set", key)
		}
		f := snap.Field(key)
		if f == nil {
			return nil, apperrors.Validation("unknown field %q", key)
		}
		enc, err := s.encodeValue(ctx, f, value)
		if err != nil {
			return nil, err
		}
		encoded[key] = enc
	}
	return encoded, nil
}

// checkRequired enforces required fields. On create (existing == nil)
// each required field must carry a non-empty value; on update only
// explicitly patched fields are checked.
func (s *Service) checkRequired(snap *schema.Snapshot, encoded map[string]any, existing Record) error {
	for _, f := range snap.Fields {
		if !f.Required {
			continue
		}
		value, patched := encoded[f.Name]
		if !patched {
			if existing != nil {
				continue
			}
			return apperrors.Validation("field %q is required", f.Name)
		}
		if value == nil {
			return apperrors.Validation("field %q is required", f.Name)
		}
		if str, ok := value.(string); ok && str == "" {
			return apperrors.Validation("field %q is required", f.Name)
		}
	}
	return nil
}

// normalizeAuthInput hashes the virtual password key of auth collections
// into password_hash and lowercases the email.
func (s *Service) normalizeAuthInput(snap *schema.Snapshot, data Record) (Record, error) {
	if !snap.Collection.IsAuth() || data == nil {
		return data, nil
	}
	out := make(Record, len(data))
	for k, v := range data {
		out[k] = v
	}
	if raw, ok := out[passwordKey]; ok {
		password, isString := raw.(string)
		if !isString || password == "" {
			return nil, apperrors.Validation("password must be a non-empty string")
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(password), 12)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		out[schema.AuthFieldPasswordHash] = string(hash)
		delete(out, passwordKey)
	}
	if raw, ok := out[schema.AuthFieldEmail]; ok {
		if email, isString := raw.(string); isString {
			out[schema.AuthFieldEmail] = strings.ToLower(email)
		}
	}
	return out, nil
}

// asHookError keeps typed errors and folds everything else into a
// ValidationError, per the before-hook contract.
func asHookError(err error) error {
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		return err
	}
	return apperrors.Validation("%s", err.Error())
}
