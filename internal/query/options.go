// Package query converts parsed list options into a safe SELECT/COUNT
// pair. Identifiers are whitelisted against the collection schema and
// quoted; every user-supplied value is bound as a parameter.
package query

// Operators accepted in filter conditions. LIKE operators receive
// wildcard escaping at build time.
const (
	OpEqual        = "="
	OpNotEqual     = "!="
	OpGreater      = ">"
	OpLess         = "<"
	OpGreaterEqual = ">="
	OpLessEqual    = "<="
	OpLike         = "~"
	OpNotLike      = "!~"
)

// Pagination bounds.
const (
	DefaultPerPage = 30
	MaxPerPage     = 500
)

// Condition is a single field comparison.
type Condition struct {
	Field string
	Op    string
	Value any
}

// SortKey orders results by one field.
type SortKey struct {
	Field string
	Desc  bool
}

// Options is the parsed form of a list request.
type Options struct {
	Filter  []Condition
	Sort    []SortKey
	Page    int
	PerPage int
	Expand  []string
}

// Clause is a WHERE fragment with its bound arguments. The rule
// evaluator produces clauses in this shape so they compose with the
// builder's own conditions.
type Clause struct {
	SQL  string
	Args []any
}

// Query is the built SELECT/COUNT pair.
type Query struct {
	SQL       string
	CountSQL  string
	Args      []any
	CountArgs []any
	Page      int
	PerPage   int
}

// validOp reports whether op is one of the supported operators.
func validOp(op string) bool {
	switch op {
	case OpEqual, OpNotEqual, OpGreater, OpLess, OpGreaterEqual, OpLessEqual, OpLike, OpNotLike:
		return true
	}
	return false
}
