// Package expr implements the small boolean expression language used by
// condition nodes.
//
// Supported operators: ==, !=, >, <, >=, <=, &&, ||, !
// Supported literals: numbers, quoted strings, true, false
// Identifiers are looked up through a caller supplied function; a dotted
// path such as player.name descends into map values.
package expr

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// ErrEmpty is returned when compiling a blank expression.
var ErrEmpty = errors.New("empty expression")

// Lookup resolves the first segment of an identifier.
type Lookup func(name string) (any, bool)

// Expr is a compiled expression.
type Expr struct {
	src  string
	root node
	vars []string
}

// Compile parses src once so that syntax errors surface at load time.
func Compile(src string) (*Expr, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return nil, ErrEmpty
	}
	tokens, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	root, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.pos < len(p.tokens) {
		return nil, fmt.Errorf("unexpected token %q at position %d", p.tokens[p.pos].value, p.pos)
	}
	return &Expr{src: src, root: root, vars: p.vars}, nil
}

// String returns the source text.
func (e *Expr) String() string { return e.src }

// Variables lists the identifiers referenced by the expression.
func (e *Expr) Variables() []string { return append([]string(nil), e.vars...) }

// Eval evaluates the expression and converts the result to a boolean.
func (e *Expr) Eval(lookup Lookup) bool {
	return truthy(e.root.eval(lookup))
}

// Evaluate compiles and evaluates src in one step.
func Evaluate(src string, vars map[string]any) (bool, error) {
	e, err := Compile(src)
	if err != nil {
		return false, err
	}
	return e.Eval(MapLookup(vars)), nil
}

// MapLookup adapts a map to Lookup.
func MapLookup(vars map[string]any) Lookup {
	return func(name string) (any, bool) {
		v, ok := vars[name]
		return v, ok
	}
}

// =============================================================================
// AST
// =============================================================================

type node interface {
	eval(lookup Lookup) any
}

type literal struct{ v any }

func (n literal) eval(Lookup) any { return n.v }

type ident struct{ path []string }

func (n ident) eval(lookup Lookup) any {
	cur, ok := lookup(n.path[0])
	if !ok {
		return nil
	}
	for _, part := range n.path[1:] {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		if cur, ok = m[part]; !ok {
			return nil
		}
	}
	return cur
}

type not struct{ x node }

func (n not) eval(lookup Lookup) any { return !truthy(n.x.eval(lookup)) }

type logical struct {
	and         bool
	left, right node
}

// 短路求值
func (n logical) eval(lookup Lookup) any {
	l := truthy(n.left.eval(lookup))
	if n.and {
		return l && truthy(n.right.eval(lookup))
	}
	return l || truthy(n.right.eval(lookup))
}

type compare struct {
	op          string
	left, right node
}

func (n compare) eval(lookup Lookup) any {
	return compareValues(n.left.eval(lookup), n.op, n.right.eval(lookup))
}

// =============================================================================
// Tokenizer
// =============================================================================

type tokenKind int

const (
	tkNumber tokenKind = iota
	tkString
	tkIdent
	tkOp
	tkLParen
	tkRParen
)

type token struct {
	kind  tokenKind
	value string
}

func tokenize(src string) ([]token, error) {
	var tokens []token
	runes := []rune(src)

	for i := 0; i < len(runes); {
		ch := runes[i]
		switch {
		case unicode.IsSpace(ch):
			i++
		case ch == '(':
			tokens = append(tokens, token{tkLParen, "("})
			i++
		case ch == ')':
			tokens = append(tokens, token{tkRParen, ")"})
			i++
		case ch == '"' || ch == '\'':
			s, n, err := readString(runes, i)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, token{tkString, s})
			i = n
		case i+1 < len(runes) && isTwoCharOp(string(runes[i:i+2])):
			tokens = append(tokens, token{tkOp, string(runes[i : i+2])})
			i += 2
		case ch == '>' || ch == '<' || ch == '!':
			tokens = append(tokens, token{tkOp, string(ch)})
			i++
		case isDigit(ch) || (ch == '-' && i+1 < len(runes) && isDigit(runes[i+1]) && negativeAllowed(tokens)):
			num, n := readNumber(runes, i)
			tokens = append(tokens, token{tkNumber, num})
			i = n
		case unicode.IsLetter(ch) || ch == '_':
			id, n := readIdent(runes, i)
			tokens = append(tokens, token{tkIdent, id})
			i = n
		default:
			return nil, fmt.Errorf("unexpected character %q at position %d", string(ch), i)
		}
	}
	return tokens, nil
}

func isTwoCharOp(s string) bool {
	switch s {
	case "==", "!=", ">=", "<=", "&&", "||":
		return true
	}
	return false
}

func readString(runes []rune, start int) (string, int, error) {
	quote := runes[start]
	var sb strings.Builder
	for i := start + 1; i < len(runes); i++ {
		if runes[i] == '\\' && i+1 < len(runes) {
			i++
			sb.WriteRune(runes[i])
			continue
		}
		if runes[i] == quote {
			return sb.String(), i + 1, nil
		}
		sb.WriteRune(runes[i])
	}
	return "", 0, fmt.Errorf("unterminated string starting at position %d", start)
}

func readNumber(runes []rune, start int) (string, int) {
	i := start
	if runes[i] == '-' {
		i++
	}
	for i < len(runes) && isDigit(runes[i]) {
		i++
	}
	if i < len(runes) && runes[i] == '.' {
		i++
		for i < len(runes) && isDigit(runes[i]) {
			i++
		}
	}
	return string(runes[start:i]), i
}

func readIdent(runes []rune, start int) (string, int) {
	i := start
	for i < len(runes) && (unicode.IsLetter(runes[i]) || unicode.IsDigit(runes[i]) || runes[i] == '_' || runes[i] == '.') {
		i++
	}
	return string(runes[start:i]), i
}

func isDigit(ch rune) bool { return ch >= '0' && ch <= '9' }

// '-' 只有出现在表达式开头、运算符或左括号之后才视为负号
func negativeAllowed(preceding []token) bool {
	if len(preceding) == 0 {
		return true
	}
	last := preceding[len(preceding)-1]
	return last.kind == tkOp || last.kind == tkLParen
}

// =============================================================================
// Parser
// =============================================================================

type parser struct {
	tokens []token
	pos    int
	vars   []string
}

func (p *parser) peekOp(ops ...string) (string, bool) {
	if p.pos >= len(p.tokens) || p.tokens[p.pos].kind != tkOp {
		return "", false
	}
	for _, op := range ops {
		if p.tokens[p.pos].value == op {
			return op, true
		}
	}
	return "", false
}

func (p *parser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for {
		if _, ok := p.peekOp("||"); !ok {
			return left, nil
		}
		p.pos++
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = logical{and: false, left: left, right: right}
	}
}

func (p *parser) parseAnd() (node, error) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for {
		if _, ok := p.peekOp("&&"); !ok {
			return left, nil
		}
		p.pos++
		right, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		left = logical{and: true, left: left, right: right}
	}
}

func (p *parser) parseComparison() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	op, ok := p.peekOp("==", "!=", ">", "<", ">=", "<=")
	if !ok {
		return left, nil
	}
	p.pos++
	right, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	return compare{op: op, left: left, right: right}, nil
}

func (p *parser) parseUnary() (node, error) {
	if _, ok := p.peekOp("!"); ok {
		p.pos++
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return not{x: x}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (node, error) {
	if p.pos >= len(p.tokens) {
		return nil, errors.New("unexpected end of expression")
	}
	t := p.tokens[p.pos]
	p.pos++

	switch t.kind {
	case tkNumber:
		f, err := strconv.ParseFloat(t.value, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", t.value)
		}
		return literal{v: f}, nil
	case tkString:
		return literal{v: t.value}, nil
	case tkIdent:
		switch t.value {
		case "true":
			return literal{v: true}, nil
		case "false":
			return literal{v: false}, nil
		}
		path := strings.Split(t.value, ".")
		for _, part := range path {
			if part == "" {
				return nil, fmt.Errorf("invalid identifier %q", t.value)
			}
		}
		p.vars = append(p.vars, path[0])
		return ident{path: path}, nil
	case tkLParen:
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.pos >= len(p.tokens) || p.tokens[p.pos].kind != tkRParen {
			return nil, errors.New("expected closing parenthesis")
		}
		p.pos++
		return inner, nil
	}
	return nil, fmt.Errorf("unexpected token %q", t.value)
}

// =============================================================================
// Evaluation helpers
// =============================================================================

// compareValues treats nil as less than any value; two nils are equal.
func compareValues(left any, op string, right any) bool {
	if left == nil || right == nil {
		switch {
		case left == nil && right == nil:
			return op == "==" || op == ">=" || op == "<="
		case op == "!=":
			return true
		case op == "==":
			return false
		case left == nil:
			return op == "<" || op == "<="
		default:
			return op == ">" || op == ">="
		}
	}

	if lf, ok := toFloat(left); ok {
		if rf, ok := toFloat(right); ok {
			return ordered(lf, op, rf)
		}
	}
	if lb, ok := left.(bool); ok {
		if rb, ok := right.(bool); ok {
			switch op {
			case "==":
				return lb == rb
			case "!=":
				return lb != rb
			}
			return false
		}
	}
	return ordered(fmt.Sprint(left), op, fmt.Sprint(right))
}

func ordered[T float64 | string](l T, op string, r T) bool {
	switch op {
	case "==":
		return l == r
	case "!=":
		return l != r
	case ">":
		return l > r
	case "<":
		return l < r
	case ">=":
		return l >= r
	case "<=":
		return l <= r
	}
	return false
}

func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != "" && val != "false" && val != "0"
	}
	if f, ok := toFloat(v); ok {
		return f != 0
	}
	return true
}

func toFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case int32:
		return float64(val), true
	case string:
		f, err := strconv.ParseFloat(val, 64)
		return f, err == nil
	}
	return 0, false
}
