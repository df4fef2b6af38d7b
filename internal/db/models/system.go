// Package models defines the Bun models for the system tables
// (_collections, _fields, _admins) and the shared field-type vocabulary.
// User-defined tables have no static models; the record service reads
// them dynamically.
package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

// CollectionType discriminates plain data collections from auth
// collections that carry login credentials.
type CollectionType string

const (
	CollectionTypeBase CollectionType = "base"
	CollectionTypeAuth CollectionType = "auth"
)

// FieldType enumerates the supported user field kinds.
type FieldType string

const (
	FieldTypeText     FieldType = "text"
	FieldTypeNumber   FieldType = "number"
	FieldTypeBool     FieldType = "boolean"
	FieldTypeDatetime FieldType = "datetime"
	FieldTypeJSON     FieldType = "json"
	FieldTypeRelation FieldType = "relation"
	FieldTypeFile     FieldType = "file"
)

// KnownFieldTypes lists every valid FieldType for validation.
var KnownFieldTypes = []FieldType{
	FieldTypeText,
	FieldTypeNumber,
	FieldTypeBool,
	FieldTypeDatetime,
	FieldTypeJSON,
	FieldTypeRelation,
	FieldTypeFile,
}

// Managed column names present on every user table.
const (
	ColumnID        = "id"
	ColumnCreatedAt = "created_at"
	ColumnUpdatedAt = "updated_at"
)

// IsManagedColumn reports whether name is one of the columns the system
// maintains on every user table.
func IsManagedColumn(name string) bool {
	return name == ColumnID || name == ColumnCreatedAt || name == ColumnUpdatedAt
}

// DateFormat is the canonical timestamp encoding (RFC3339 in UTC).
const DateFormat = time.RFC3339

// NowUTC returns the current time encoded with DateFormat.
func NowUTC() string {
	return time.Now().UTC().Format(DateFormat)
}

// Collection is a row of the _collections system table.
type Collection struct {
	bun.BaseModel `bun:"table:_collections,alias:c"`

	ID         string         `bun:"id,pk" json:"id"`
	Name       string         `bun:"name,notnull,unique" json:"name"`
	Type       CollectionType `bun:"type,notnull" json:"type"`
	ListRule   *string        `bun:"list_rule" json:"listRule"`
	ViewRule   *string        `bun:"view_rule" json:"viewRule"`
	CreateRule *string        `bun:"create_rule" json:"createRule"`
	UpdateRule *string        `bun:"update_rule" json:"updateRule"`
	DeleteRule *string        `bun:"delete_rule" json:"deleteRule"`
	CreatedAt  string         `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt  string         `bun:"updated_at,notnull" json:"updated_at"`
}

// IsAuth reports whether the collection stores auth records.
func (c *Collection) IsAuth() bool {
	return c != nil && c.Type == CollectionTypeAuth
}

// Rule returns the rule string for the given operation name, or nil.
func (c *Collection) Rule(op string) *string {
	switch op {
	case "list":
		return c.ListRule
	case "view":
		return c.ViewRule
	case "create":
		return c.CreateRule
	case "update":
		return c.UpdateRule
	case "delete":
		return c.DeleteRule
	}
	return nil
}

// OptionsMap is a JSON object column holding per-type field options.
type OptionsMap map[string]any

// Scan implements sql.Scanner for reading from the database.
func (m *OptionsMap) Scan(value any) error {
	if value == nil {
		*m = OptionsMap{}
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("scan OptionsMap: expected []byte or string, got %T", value)
	}
	if len(raw) == 0 {
		*m = OptionsMap{}
		return nil
	}
	return json.Unmarshal(raw, m)
}

// Value implements driver.Valuer for writing to the database.
func (m OptionsMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

// Field is a row of the _fields system table describing one column of a
// user table.
type Field struct {
	bun.BaseModel `bun:"table:_fields,alias:f"`

	ID           string     `bun:"id,pk" json:"id"`
	CollectionID string     `bun:"collection_id,notnull" json:"collectionId"`
	Name         string     `bun:"name,notnull" json:"name"`
	Type         FieldType  `bun:"type,notnull" json:"type"`
	Required     bool       `bun:"required,notnull" json:"required"`
	Options      OptionsMap `bun:"options,type:jsonb,notnull" json:"options"`
	CreatedAt    string     `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt    string     `bun:"updated_at,notnull" json:"updated_at"`
}

// ColumnType returns the SQLite column type used to store the field.
func (f *Field) ColumnType() string {
	switch f.Type {
	case FieldTypeNumber:
		return "NUMERIC"
	case FieldTypeBool:
		return "BOOLEAN"
	default:
		// text, datetime, json, relation and file are all stored as text;
		// json and multi-file values are JSON-encoded by the record service.
		return "TEXT"
	}
}

// Admin is a row of the _admins system table.
type Admin struct {
	bun.BaseModel `bun:"table:_admins,alias:a"`

	ID           string `bun:"id,pk" json:"id"`
	Email        string `bun:"email,notnull,unique" json:"email"`
	PasswordHash string `bun:"password_hash,notnull" json:"-"`
	CreatedAt    string `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt    string `bun:"updated_at,notnull" json:"updated_at"`
}
