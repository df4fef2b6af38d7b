package query

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bunbase/bunbase/internal/apperrors"
	"github.com/bunbase/bunbase/internal/db/bunx"
	"github.com/bunbase/bunbase/internal/db/models"
	"github.com/bunbase/bunbase/internal/schema"
)

// likeEscaper escapes the LIKE wildcards in user text. The escape
// character itself goes first.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// EscapeLike returns the LIKE pattern matching s as a literal substring.
func EscapeLike(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}

// Build produces the paged SELECT and the matching COUNT for opts over
// the given collection snapshot. The optional access clause (a lowered
// list rule) is ANDed with the filter conditions. Every referenced field
// must be a managed column or a schema field.
func Build(snap *schema.Snapshot, opts Options, access *Clause) (*Query, error) {
	table := bunx.QuoteIdent(snap.Collection.Name)

	var where []string
	var args []any

	for _, cond := range opts.Filter {
		if !validOp(cond.Op) {
			return nil, apperrors.Validation("unknown operator %q", cond.Op)
		}
		if !snap.HasColumn(cond.Field) {
			return nil, apperrors.Validation("unknown filter field %q", cond.Field)
		}
		col := bunx.QuoteIdent(cond.Field)
		switch cond.Op {
		case OpLike:
			where = append(where, col+` LIKE ? ESCAPE '\'`)
			args = append(args, EscapeLike(toLikeString(cond.Value)))
		case OpNotLike:
			where = append(where, col+` NOT LIKE ? ESCAPE '\'`)
			args = append(args, EscapeLike(toLikeString(cond.Value)))
		default:
			where = append(where, col+" "+cond.Op+" ?")
			args = append(args, bindValue(snap, cond.Field, cond.Value))
		}
	}

	if access != nil && access.SQL != "" {
		where = append(where, "("+access.SQL+")")
		args = append(args, access.Args...)
	}

	whereSQL := ""
	if len(where) > 0 {
		whereSQL = " WHERE " + strings.Join(where, " AND ")
	}

	orderSQL, err := buildOrder(snap, opts.Sort)
	if err != nil {
		return nil, err
	}

	page := opts.Page
	if page < 1 {
		page = 1
	}
	perPage := opts.PerPage
	if perPage < 1 {
		perPage = DefaultPerPage
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	offset := (page - 1) * perPage

	q := &Query{
		Page:      page,
		PerPage:   perPage,
		CountSQL:  "SELECT COUNT(*) FROM " + table + whereSQL,
		CountArgs: args,
	}

	var b strings.Builder
	b.WriteString("SELECT * FROM ")
	b.WriteString(table)
	b.WriteString(whereSQL)
	b.WriteString(orderSQL)
	b.WriteString(" LIMIT ? OFFSET ?")
	q.SQL = b.String()
	q.Args = append(append([]any{}, args...), perPage, offset)

	return q, nil
}

// buildOrder renders the ORDER BY clause. The id column is appended as a
// tie-break unless explicitly sorted, so pagination is deterministic.
func buildOrder(snap *schema.Snapshot, sort []SortKey) (string, error) {
	parts := make([]string, 0, len(sort)+1)
	sortsID := false
	for _, key := range sort {
		if !snap.HasColumn(key.Field) {
			return "", apperrors.Validation("unknown sort field %q", key.Field)
		}
		if key.Field == models.ColumnID {
			sortsID = true
		}
		dir := "ASC"
		if key.Desc {
			dir = "DESC"
		}
		parts = append(parts, bunx.QuoteIdent(key.Field)+" "+dir)
	}
	if !sortsID {
		parts = append(parts, bunx.QuoteIdent(models.ColumnID)+" ASC")
	}
	return " ORDER BY " + strings.Join(parts, ", "), nil
}

// toLikeString renders a filter value for substring matching.
func toLikeString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// bindValue coerces a filter value to the target field's storage type.
// URL values arrive as text; without this, "true" against a text column
// would bind as an integer and never match the stored string. Values
// already typed by the caller pass through, as do text values for text,
// datetime, relation, file and managed columns.
func bindValue(snap *schema.Snapshot, field string, value any) any {
	f := snap.Field(field)
	if f == nil {
		return value
	}
	s, ok := value.(string)
	if !ok {
		return value
	}
	switch f.Type {
	case models.FieldTypeNumber:
		if n, err := strconv.ParseFloat(s, 64); err == nil {
			return n
		}
	case models.FieldTypeBool:
		switch s {
		case "true", "1":
			return true
		case "false", "0":
			return false
		}
	}
	return value
}
