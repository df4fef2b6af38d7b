package rules

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bunbase/bunbase/internal/apperrors"
	lru "github.com/hashicorp/golang-lru/v2"
)

// compiledRuleCacheSize bounds the LRU of parsed rule ASTs. Rules are
// few and short; the cache mainly spares re-parsing on every broadcast.
const compiledRuleCacheSize = 256

// AuthInfo is the slice of the request principal visible to rules.
// Role is "admin" for admins and "user" for auth-collection records;
// both fields are empty for anonymous requests.
type AuthInfo struct {
	ID   string
	Role string
}

// EvalContext is the input of the in-memory predicate path.
type EvalContext struct {
	Record map[string]any
	Auth   *AuthInfo
}

// Evaluator caches compiled rules and runs the two interpreters.
type Evaluator struct {
	cache *lru.Cache[string, Expr]
}

// NewEvaluator creates an evaluator with a bounded compile cache.
func NewEvaluator() (*Evaluator, error) {
	cache, err := lru.New[string, Expr](compiledRuleCacheSize)
	if err != nil {
		return nil, fmt.Errorf("build rule cache: %w", err)
	}
	return &Evaluator{cache: cache}, nil
}

// Compile parses rule, reusing a cached AST when available.
func (e *Evaluator) Compile(rule string) (Expr, error) {
	if expr, ok := e.cache.Get(rule); ok {
		return expr, nil
	}
	expr, err := Parse(rule)
	if err != nil {
		return nil, err
	}
	e.cache.Add(rule, expr)
	return expr, nil
}

// Evaluate runs the predicate path: it admits or denies ctx under rule.
func (e *Evaluator) Evaluate(rule string, ctx EvalContext) (bool, error) {
	expr, err := e.Compile(rule)
	if err != nil {
		return false, err
	}
	return evalExpr(expr, ctx)
}

func evalExpr(expr Expr, ctx EvalContext) (bool, error) {
	switch node := expr.(type) {
	case *LogicExpr:
		left, err := evalExpr(node.Left, ctx)
		if err != nil {
			return false, err
		}
		if node.Op == "&&" && !left {
			return false, nil
		}
		if node.Op == "||" && left {
			return true, nil
		}
		return evalExpr(node.Right, ctx)
	case *CompareExpr:
		return evalCompare(node, ctx)
	}
	return false, apperrors.Validation("malformed rule")
}

func evalCompare(cmp *CompareExpr, ctx EvalContext) (bool, error) {
	left := resolveOperand(cmp.Left, ctx)
	right := resolveOperand(cmp.Right, ctx)

	switch cmp.Op {
	case "=":
		return looseEqual(left, right), nil
	case "!=":
		return !looseEqual(left, right), nil
	case "~":
		return containsFold(left, right), nil
	case "!~":
		return !containsFold(left, right), nil
	}

	lf, lok := toNumber(left)
	rf, rok := toNumber(right)
	if lok && rok {
		switch cmp.Op {
		case ">":
			return lf > rf, nil
		case "<":
			return lf < rf, nil
		case ">=":
			return lf >= rf, nil
		case "<=":
			return lf <= rf, nil
		}
	}

	ls, rs := toString(left), toString(right)
	switch cmp.Op {
	case ">":
		return ls > rs, nil
	case "<":
		return ls < rs, nil
	case ">=":
		return ls >= rs, nil
	case "<=":
		return ls <= rs, nil
	}
	return false, apperrors.Validation("unknown operator %q in rule", cmp.Op)
}

// resolveOperand produces the concrete value of an operand under ctx.
// Missing record fields and anonymous auth resolve to nil / "".
func resolveOperand(op Operand, ctx EvalContext) any {
	switch op.Kind {
	case OperandLiteral:
		return op.Value
	case OperandField, OperandRecord:
		if ctx.Record == nil {
			return nil
		}
		return ctx.Record[op.Name]
	case OperandAuth:
		if ctx.Auth == nil {
			return ""
		}
		switch op.Name {
		case "id":
			return ctx.Auth.ID
		case "role":
			return ctx.Auth.Role
		}
	}
	return nil
}

// looseEqual compares values after normalizing numbers and booleans, so
// a stored 1 equals the literal true and 5 equals "5" never (strings
// stay strings unless both sides are numeric).
func looseEqual(a, b any) bool {
	if a == nil && b == nil {
		return true
	}
	if af, ok := toNumber(a); ok {
		if bf, ok := toNumber(b); ok {
			return af == bf
		}
	}
	if ab, ok := toBool(a); ok {
		if bb, ok := toBool(b); ok {
			return ab == bb
		}
	}
	return toString(a) == toString(b)
}

func containsFold(haystack, needle any) bool {
	return strings.Contains(strings.ToLower(toString(haystack)), strings.ToLower(toString(needle)))
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func toBool(v any) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case int64:
		return b != 0, true
	case float64:
		return b != 0, true
	}
	return false, false
}

func toString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case float64:
		// Render integral floats without the trailing .0 noise.
		if s == float64(int64(s)) {
			return fmt.Sprintf("%d", int64(s))
		}
		return fmt.Sprintf("%v", s)
	default:
		return fmt.Sprintf("%v", v)
	}
}
