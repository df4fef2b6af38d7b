package rules

import (
	"github.com/bunbase/bunbase/internal/apperrors"
	"github.com/bunbase/bunbase/internal/db/bunx"
	"github.com/bunbase/bunbase/internal/query"
)

// ToClause runs the SQL projection path: it lowers a list rule to a
// parameterized WHERE fragment. Field and @record references become
// quoted column references validated by hasColumn; literals and auth
// references are bound as arguments from the principal.
func (e *Evaluator) ToClause(rule string, auth *AuthInfo, hasColumn func(string) bool) (*query.Clause, error) {
	expr, err := e.Compile(rule)
	if err != nil {
		return nil, err
	}
	sql, args, err := lowerExpr(expr, auth, hasColumn)
	if err != nil {
		return nil, err
	}
	return &query.Clause{SQL: sql, Args: args}, nil
}

func lowerExpr(expr Expr, auth *AuthInfo, hasColumn func(string) bool) (string, []any, error) {
	switch node := expr.(type) {
	case *LogicExpr:
		left, leftArgs, err := lowerExpr(node.Left, auth, hasColumn)
		if err != nil {
			return "", nil, err
		}
		right, rightArgs, err := lowerExpr(node.Right, auth, hasColumn)
		if err != nil {
			return "", nil, err
		}
		op := "AND"
		if node.Op == "||" {
			op = "OR"
		}
		return "(" + left + " " + op + " " + right + ")", append(leftArgs, rightArgs...), nil
	case *CompareExpr:
		return lowerCompare(node, auth, hasColumn)
	}
	return "", nil, apperrors.Validation("malformed rule")
}

func lowerCompare(cmp *CompareExpr, auth *AuthInfo, hasColumn func(string) bool) (string, []any, error) {
	if cmp.Op == "~" || cmp.Op == "!~" {
		return lowerLike(cmp, auth, hasColumn)
	}

	left, leftArgs, err := lowerOperand(cmp.Left, auth, hasColumn)
	if err != nil {
		return "", nil, err
	}
	right, rightArgs, err := lowerOperand(cmp.Right, auth, hasColumn)
	if err != nil {
		return "", nil, err
	}

	sql := left + " " + cmp.Op + " " + right
	return sql, append(leftArgs, rightArgs...), nil
}

// lowerLike lowers ~ and !~. The matched side must be a value operand;
// column-to-column substring matching is intentionally unsupported.
func lowerLike(cmp *CompareExpr, auth *AuthInfo, hasColumn func(string) bool) (string, []any, error) {
	left, leftArgs, err := lowerOperand(cmp.Left, auth, hasColumn)
	if err != nil {
		return "", nil, err
	}
	if isColumnOperand(cmp.Right) {
		return "", nil, apperrors.Validation("rule operator %q requires a literal or auth value on the right side", cmp.Op)
	}

	value := resolveOperand(cmp.Right, EvalContext{Auth: auth})
	pattern := query.EscapeLike(toString(value))

	kw := "LIKE"
	if cmp.Op == "!~" {
		kw = "NOT LIKE"
	}
	return left + " " + kw + ` ? ESCAPE '\'`, append(leftArgs, pattern), nil
}

func isColumnOperand(op Operand) bool {
	return op.Kind == OperandField || op.Kind == OperandRecord
}

// lowerOperand renders one operand. Columns use COALESCE so NULL
// compares like the empty values the predicate path produces.
func lowerOperand(op Operand, auth *AuthInfo, hasColumn func(string) bool) (string, []any, error) {
	switch op.Kind {
	case OperandField, OperandRecord:
		if hasColumn == nil || !hasColumn(op.Name) {
			return "", nil, apperrors.Validation("unknown field %q in rule", op.Name)
		}
		return "COALESCE(" + bunx.QuoteIdent(op.Name) + ", '')", nil, nil
	case OperandLiteral:
		return "?", []any{op.Value}, nil
	case OperandAuth:
		value := resolveOperand(op, EvalContext{Auth: auth})
		return "?", []any{value}, nil
	}
	return "", nil, apperrors.Validation("malformed rule operand")
}
