package expr

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	ErrDivisionByZero = errors.New("division by zero")
	ErrNotNumeric     = errors.New("operand is not numeric")
	ErrNotFinite      = errors.New("result is not a finite number")
)

// Program is a compiled formula bound to an ordered parameter list.
type Program struct {
	source string
	params []string
	root   node
}

// Compile parses formula. Identifiers in the formula must appear in params;
// any other name is rejected with an *UnknownNameError.
func Compile(formula string, params []string) (*Program, error) {
	tokens, err := Tokenize(formula)
	if err != nil {
		return nil, err
	}
	index := make(map[string]int, len(params))
	for i, name := range params {
		if _, dup := index[name]; !dup {
			index[name] = i
		}
	}
	p := &parser{tokens: tokens, params: index}
	root, err := p.parse()
	if err != nil {
		return nil, err
	}
	return &Program{source: formula, params: append([]string(nil), params...), root: root}, nil
}

// Params returns the parameter names in declaration order.
func (p *Program) Params() []string { return p.params }

func (p *Program) String() string { return p.source }

// Eval runs the program. Missing args count as zero.
// The result is a float64, bool or string.
func (p *Program) Eval(args map[string]float64) (any, error) {
	env := make([]float64, len(p.params))
	for i, name := range p.params {
		env[i] = args[name]
	}
	return p.root.eval(env)
}

// EvalValues coerces raw field values with ToNumber and runs the program.
func (p *Program) EvalValues(lookup func(name string) any) (any, error) {
	env := make([]float64, len(p.params))
	for i, name := range p.params {
		env[i] = ToNumber(lookup(name))
	}
	return p.root.eval(env)
}

// Evaluate compiles and runs formula over deps, resolving each dependency
// with lookup. Any failure yields nil.
func Evaluate(formula string, deps []string, lookup func(name string) any) any {
	prog, err := Compile(formula, deps)
	if err != nil {
		return nil
	}
	v, err := prog.EvalValues(lookup)
	if err != nil {
		return nil
	}
	return v
}

// Identifiers returns the distinct names a formula refers to, in order of
// first appearance. Malformed formulas yield nil.
func Identifiers(formula string) []string {
	tokens, err := Tokenize(formula)
	if err != nil {
		return nil
	}
	seen := make(map[string]bool)
	var names []string
	for _, tok := range tokens {
		if tok.Type == TokenIdent && !seen[tok.Literal] {
			seen[tok.Literal] = true
			names = append(names, tok.Literal)
		}
	}
	return names
}

// ToNumber coerces a field value to a number. Empty, missing and
// non-numeric values become 0.
func ToNumber(v any) float64 {
	if f, ok := AsNumber(v); ok {
		return f
	}
	return 0
}

// AsNumber reports whether v is a number or a string holding one.
func AsNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n)
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) {
			return 0, false
		}
		return f, true
	case fmt.Stringer:
		return AsNumber(n.String())
	}
	return 0, false
}

func (n *numberLit) eval([]float64) (any, error) { return n.v, nil }

func (n *stringLit) eval([]float64) (any, error) { return n.v, nil }

func (n *param) eval(env []float64) (any, error) { return env[n.index], nil }

func (n *unary) eval(env []float64) (any, error) {
	x, err := n.x.eval(env)
	if err != nil {
		return nil, err
	}
	if n.op == TokenNot {
		return !truthy(x), nil
	}
	f, ok := AsNumber(x)
	if !ok {
		return nil, ErrNotNumeric
	}
	if n.op == TokenMinus {
		return -f, nil
	}
	return f, nil
}

func (n *binary) eval(env []float64) (any, error) {
	l, err := n.l.eval(env)
	if err != nil {
		return nil, err
	}
	switch n.op {
	case TokenAnd:
		if !truthy(l) {
			return false, nil
		}
		r, err := n.r.eval(env)
		if err != nil {
			return nil, err
		}
		return truthy(r), nil
	case TokenOr:
		if truthy(l) {
			return true, nil
		}
		r, err := n.r.eval(env)
		if err != nil {
			return nil, err
		}
		return truthy(r), nil
	}

	r, err := n.r.eval(env)
	if err != nil {
		return nil, err
	}
	switch n.op {
	case TokenEQ:
		return compareValues(l, OpEQ, r), nil
	case TokenNEQ:
		return compareValues(l, OpNEQ, r), nil
	case TokenGT:
		return compareValues(l, OpGT, r), nil
	case TokenLT:
		return compareValues(l, OpLT, r), nil
	case TokenGTE:
		return compareValues(l, OpGTE, r), nil
	case TokenLTE:
		return compareValues(l, OpLTE, r), nil
	case TokenPlus:
		ls, lStr := l.(string)
		rs, rStr := r.(string)
		if lStr || rStr {
			if !lStr {
				ls = formatValue(l)
			}
			if !rStr {
				rs = formatValue(r)
			}
			return ls + rs, nil
		}
	}

	a, aOk := AsNumber(l)
	b, bOk := AsNumber(r)
	if !aOk || !bOk {
		return nil, ErrNotNumeric
	}
	var out float64
	switch n.op {
	case TokenPlus:
		out = a + b
	case TokenMinus:
		out = a - b
	case TokenStar:
		out = a * b
	case TokenSlash:
		if b == 0 {
			return nil, ErrDivisionByZero
		}
		out = a / b
	case TokenPercent:
		if b == 0 {
			return nil, ErrDivisionByZero
		}
		out = math.Mod(a, b)
	default:
		return nil, fmt.Errorf("unsupported operator %s", n.op)
	}
	if math.IsInf(out, 0) || math.IsNaN(out) {
		return nil, ErrNotFinite
	}
	return out, nil
}

// truthy follows the usual rules: false, 0, "" and nil are false.
func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case float64:
		return x != 0 && !math.IsNaN(x)
	case string:
		return x != ""
	}
	return true
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	}
	return fmt.Sprint(v)
}
