package records

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bunbase/bunbase/internal/apperrors"
	"github.com/bunbase/bunbase/internal/db/bunx"
	"github.com/bunbase/bunbase/internal/db/models"
	"github.com/bunbase/bunbase/internal/schema"
)

// encodeValue validates and coerces one field value into its storage
// representation. nil passes through as NULL.
func (s *Service) encodeValue(ctx context.Context, f *models.Field, value any) (any, error) {
	if value == nil {
		return nil, nil
	}

	switch f.Type {
	case models.FieldTypeText:
		str, ok := value.(string)
		if !ok {
			return nil, apperrors.Validation("field %q must be a string", f.Name)
		}
		return str, nil

	case models.FieldTypeNumber:
		switch n := value.(type) {
		case float64:
			return n, nil
		case float32:
			return float64(n), nil
		case int:
			return float64(n), nil
		case int64:
			return float64(n), nil
		case json.Number:
			fl, err := n.Float64()
			if err != nil {
				return nil, apperrors.Validation("field %q must be a number", f.Name)
			}
			return fl, nil
		}
		return nil, apperrors.Validation("field %q must be a number", f.Name)

	case models.FieldTypeBool:
		b, ok := value.(bool)
		if !ok {
			return nil, apperrors.Validation("field %q must be a boolean", f.Name)
		}
		return b, nil

	case models.FieldTypeDatetime:
		switch t := value.(type) {
		case time.Time:
			return t.UTC().Format(models.DateFormat), nil
		case string:
			parsed, err := time.Parse(models.DateFormat, t)
			if err != nil {
				return nil, apperrors.Validation("field %q must be an RFC3339 datetime", f.Name)
			}
			return parsed.UTC().Format(models.DateFormat), nil
		}
		return nil, apperrors.Validation("field %q must be an RFC3339 datetime", f.Name)

	case models.FieldTypeJSON:
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, apperrors.Validation("field %q is not JSON-encodable", f.Name)
		}
		return string(raw), nil

	case models.FieldTypeRelation:
		id, ok := value.(string)
		if !ok {
			return nil, apperrors.Validation("field %q must be a record id", f.Name)
		}
		if id == "" {
			return nil, nil
		}
		opts, err := schema.DecodeRelationOptions(f.Options)
		if err != nil {
			return nil, fmt.Errorf("field %q options: %w", f.Name, err)
		}
		exists, err := s.recordExists(ctx, opts.Target, id)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, apperrors.Validation("field %q references missing %s record %q", f.Name, opts.Target, id)
		}
		return id, nil

	case models.FieldTypeFile:
		opts, err := schema.DecodeFileOptions(f.Options)
		if err != nil {
			return nil, fmt.Errorf("field %q options: %w", f.Name, err)
		}
		return encodeFileValue(f, opts, value)
	}

	return nil, apperrors.Validation("field %q has unknown type %q", f.Name, f.Type)
}

// encodeFileValue stores a single filename as plain text and a
// multi-file value as a JSON array of filenames.
func encodeFileValue(f *models.Field, opts schema.FileOptions, value any) (any, error) {
	toNames := func(v any) ([]string, bool) {
		switch names := v.(type) {
		case string:
			return []string{names}, true
		case []string:
			return names, true
		case []any:
			out := make([]string, 0, len(names))
			for _, item := range names {
				str, ok := item.(string)
				if !ok {
					return nil, false
				}
				out = append(out, str)
			}
			return out, true
		}
		return nil, false
	}

	names, ok := toNames(value)
	if !ok {
		return nil, apperrors.Validation("field %q must be a filename or filename list", f.Name)
	}
	if len(names) > opts.MaxFiles {
		return nil, apperrors.Validation("field %q accepts at most %d file(s)", f.Name, opts.MaxFiles)
	}

	if !opts.Multiple() {
		if len(names) == 0 {
			return nil, nil
		}
		return names[0], nil
	}
	raw, err := json.Marshal(names)
	if err != nil {
		return nil, fmt.Errorf("encode file list: %w", err)
	}
	return string(raw), nil
}

// decodeValue converts a scanned column value back into its API shape.
func decodeValue(f *models.Field, raw any) any {
	if raw == nil {
		return nil
	}
	if b, ok := raw.([]byte); ok {
		raw = string(b)
	}

	switch f.Type {
	case models.FieldTypeBool:
		switch v := raw.(type) {
		case bool:
			return v
		case int64:
			return v != 0
		case float64:
			return v != 0
		}
		return raw

	case models.FieldTypeNumber:
		return raw

	case models.FieldTypeJSON:
		str, ok := raw.(string)
		if !ok {
			return raw
		}
		var decoded any
		if err := json.Unmarshal([]byte(str), &decoded); err != nil {
			return str
		}
		return decoded

	case models.FieldTypeFile:
		str, ok := raw.(string)
		if !ok {
			return raw
		}
		opts, err := schema.DecodeFileOptions(f.Options)
		if err != nil || !opts.Multiple() {
			return str
		}
		var names []string
		if err := json.Unmarshal([]byte(str), &names); err != nil {
			return str
		}
		return names
	}

	return raw
}

// decodeRow maps one scanned row onto a Record using the snapshot's
// field metadata.
func decodeRow(snap *schema.Snapshot, columns []string, values []any) Record {
	record := Record{}
	for i, col := range columns {
		raw := values[i]
		if b, ok := raw.([]byte); ok {
			raw = string(b)
		}
		if models.IsManagedColumn(col) {
			record[col] = raw
			continue
		}
		if f := snap.Field(col); f != nil {
			record[col] = decodeValue(f, raw)
		}
	}
	return record
}

// queryRecords runs a dynamic SELECT and decodes every row.
func (s *Service) queryRecords(ctx context.Context, snap *schema.Snapshot, sqlText string, args ...any) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}

	var out []Record
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, decodeRow(snap, columns, values))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

// recordExists checks whether a record id exists in a collection's table.
func (s *Service) recordExists(ctx context.Context, collection, id string) (bool, error) {
	// Resolve through the registry so unknown targets fail loudly.
	snap, err := s.registry.GetCollection(ctx, collection)
	if err != nil {
		return false, err
	}
	var one int
	stmt := "SELECT 1 FROM " + bunx.QuoteIdent(snap.Collection.Name) + " WHERE " + bunx.QuoteIdent(models.ColumnID) + " = ?"
	err = s.db.QueryRowContext(ctx, stmt, id).Scan(&one)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check record existence: %w", err)
	}
	return true, nil
}
