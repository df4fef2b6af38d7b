// Package rules compiles and evaluates the collection access rule
// grammar: atomic comparisons over fields, record references and auth
// references, composed with && and || and parentheses.
//
// The grammar is deliberately hand-rolled rather than delegated to a
// generic expression library so the admitted surface stays auditable.
// Two interpreters share the AST: an in-memory predicate for
// single-record decisions and a SQL lowerer that turns a list rule into
// a parameterized WHERE clause.
package rules

// Expr is a node of a compiled rule.
type Expr interface {
	isExpr()
}

// LogicExpr combines two subexpressions with && or ||.
type LogicExpr struct {
	Op    string // "&&" or "||"
	Left  Expr
	Right Expr
}

func (*LogicExpr) isExpr() {}

// CompareExpr is an atomic comparison between two operands.
type CompareExpr struct {
	Op    string // "=", "!=", ">", "<", ">=", "<=", "~", "!~"
	Left  Operand
	Right Operand
}

func (*CompareExpr) isExpr() {}

// OperandKind discriminates the four operand forms.
type OperandKind int

const (
	// OperandLiteral is a quoted string, number or boolean.
	OperandLiteral OperandKind = iota
	// OperandField is a bare field reference resolved against the record.
	OperandField
	// OperandRecord is an explicit @record.field reference.
	OperandRecord
	// OperandAuth is an @request.auth.id or @request.auth.role reference.
	OperandAuth
)

// Operand is one side of a comparison.
type Operand struct {
	Kind  OperandKind
	Name  string // field name or auth attribute
	Value any    // literal value
}
