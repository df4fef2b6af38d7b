package rules

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/bunbase/bunbase/internal/apperrors"
)

type tokenKind int

const (
	tokenEOF tokenKind = iota
	tokenIdent
	tokenNumber
	tokenString
	tokenRecordRef
	tokenAuthRef
	tokenOp     // comparison operator
	tokenAnd    // &&
	tokenOr     // ||
	tokenLParen // (
	tokenRParen // )
)

type token struct {
	kind tokenKind
	text string
	num  float64
}

// lexer walks a rule string, producing one token per call.
type lexer struct {
	input string
	pos   int
}

func (l *lexer) next() (token, error) {
	for l.pos < len(l.input) && unicode.IsSpace(rune(l.input[l.pos])) {
		l.pos++
	}
	if l.pos >= len(l.input) {
		return token{kind: tokenEOF}, nil
	}

	rest := l.input[l.pos:]
	switch {
	case strings.HasPrefix(rest, "&&"):
		l.pos += 2
		return token{kind: tokenAnd, text: "&&"}, nil
	case strings.HasPrefix(rest, "||"):
		l.pos += 2
		return token{kind: tokenOr, text: "||"}, nil
	case rest[0] == '(':
		l.pos++
		return token{kind: tokenLParen}, nil
	case rest[0] == ')':
		l.pos++
		return token{kind: tokenRParen}, nil
	}

	// Comparison operators, longest first.
	for _, op := range []string{"!=", ">=", "<=", "!~", "=", ">", "<", "~"} {
		if strings.HasPrefix(rest, op) {
			l.pos += len(op)
			return token{kind: tokenOp, text: op}, nil
		}
	}

	if rest[0] == '\'' || rest[0] == '"' {
		return l.lexString(rest[0])
	}
	if rest[0] == '@' {
		return l.lexRef()
	}
	if rest[0] == '-' || unicode.IsDigit(rune(rest[0])) {
		return l.lexNumber()
	}
	if isIdentStart(rune(rest[0])) {
		return l.lexIdent()
	}

	return token{}, apperrors.Validation("unexpected character %q in rule", string(rest[0]))
}

func (l *lexer) lexString(quote byte) (token, error) {
	var b strings.Builder
	i := l.pos + 1
	for i < len(l.input) {
		c := l.input[i]
		if c == '\\' && i+1 < len(l.input) {
			b.WriteByte(l.input[i+1])
			i += 2
			continue
		}
		if c == quote {
			l.pos = i + 1
			return token{kind: tokenString, text: b.String()}, nil
		}
		b.WriteByte(c)
		i++
	}
	return token{}, apperrors.Validation("unterminated string in rule")
}

func (l *lexer) lexRef() (token, error) {
	rest := l.input[l.pos:]
	if strings.HasPrefix(rest, "@record.") {
		l.pos += len("@record.")
		tok, err := l.lexIdent()
		if err != nil {
			return token{}, err
		}
		tok.kind = tokenRecordRef
		return tok, nil
	}
	if strings.HasPrefix(rest, "@request.auth.") {
		l.pos += len("@request.auth.")
		tok, err := l.lexIdent()
		if err != nil {
			return token{}, err
		}
		if tok.text != "id" && tok.text != "role" {
			return token{}, apperrors.Validation("unknown auth attribute %q in rule", tok.text)
		}
		tok.kind = tokenAuthRef
		return tok, nil
	}
	return token{}, apperrors.Validation("unknown reference in rule")
}

func (l *lexer) lexNumber() (token, error) {
	start := l.pos
	if l.input[l.pos] == '-' {
		l.pos++
	}
	for l.pos < len(l.input) && (unicode.IsDigit(rune(l.input[l.pos])) || l.input[l.pos] == '.') {
		l.pos++
	}
	text := l.input[start:l.pos]
	n, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return token{}, apperrors.Validation("invalid number %q in rule", text)
	}
	return token{kind: tokenNumber, text: text, num: n}, nil
}

func (l *lexer) lexIdent() (token, error) {
	start := l.pos
	for l.pos < len(l.input) && isIdentPart(rune(l.input[l.pos])) {
		l.pos++
	}
	if l.pos == start {
		return token{}, apperrors.Validation("expected identifier in rule")
	}
	return token{kind: tokenIdent, text: l.input[start:l.pos]}, nil
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// parser is a recursive-descent parser with single-token lookahead.
type parser struct {
	lex  lexer
	tok  token
	err  error
	done bool
}

// Parse compiles a rule string into an AST. The empty string is not
// accepted here; empty rules short-circuit to admin-only before parsing.
func Parse(rule string) (Expr, error) {
	p := &parser{lex: lexer{input: rule}}
	p.advance()
	if p.err != nil {
		return nil, p.err
	}
	expr, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.tok.kind != tokenEOF {
		return nil, apperrors.Validation("unexpected trailing input in rule")
	}
	return expr, nil
}

func (p *parser) advance() {
	tok, err := p.lex.next()
	if err != nil {
		p.err = err
		p.tok = token{kind: tokenEOF}
		return
	}
	p.tok = tok
}

func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.tok.kind == tokenOr {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &LogicExpr{Op: "||", Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for p.tok.kind == tokenAnd {
		p.advance()
		right, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		left = &LogicExpr{Op: "&&", Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parsePrimary() (Expr, error) {
	if p.err != nil {
		return nil, p.err
	}
	if p.tok.kind == tokenLParen {
		p.advance()
		expr, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.tok.kind != tokenRParen {
			return nil, apperrors.Validation("missing closing parenthesis in rule")
		}
		p.advance()
		return expr, nil
	}
	return p.parseComparison()
}

func (p *parser) parseComparison() (Expr, error) {
	left, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	if p.tok.kind != tokenOp {
		return nil, apperrors.Validation("expected comparison operator in rule")
	}
	op := p.tok.text
	p.advance()
	right, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	return &CompareExpr{Op: op, Left: left, Right: right}, nil
}

func (p *parser) parseOperand() (Operand, error) {
	if p.err != nil {
		return Operand{}, p.err
	}
	switch p.tok.kind {
	case tokenString:
		op := Operand{Kind: OperandLiteral, Value: p.tok.text}
		p.advance()
		return op, nil
	case tokenNumber:
		op := Operand{Kind: OperandLiteral, Value: p.tok.num}
		p.advance()
		return op, nil
	case tokenIdent:
		text := p.tok.text
		p.advance()
		// Bare true/false are boolean literals, anything else is a field.
		switch text {
		case "true":
			return Operand{Kind: OperandLiteral, Value: true}, nil
		case "false":
			return Operand{Kind: OperandLiteral, Value: false}, nil
		}
		return Operand{Kind: OperandField, Name: text}, nil
	case tokenRecordRef:
		op := Operand{Kind: OperandRecord, Name: p.tok.text}
		p.advance()
		return op, nil
	case tokenAuthRef:
		op := Operand{Kind: OperandAuth, Name: p.tok.text}
		p.advance()
		return op, nil
	}
	return Operand{}, apperrors.Validation("expected value, field or reference in rule")
}
