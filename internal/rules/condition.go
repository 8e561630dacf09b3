// Package rules evaluates jurisdiction permit rules against a project
// classification and loads rule tables from YAML, spreadsheets and the store.
package rules

import (
	"go/ast"
	"go/parser"
	"go/token"
	"strconv"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
)

// Condition is a compiled rule condition. It is immutable and safe for
// concurrent use.
//
// The language is a subset of Go expressions: identifiers name
// classification attributes; literals are strings, numbers, true and false;
// operators are == != < <= > >= && || ! and parentheses. Two builtins are
// available: has(list, "x") tests list membership and in(attr, "a", "b")
// tests equality against any listed value.
type Condition struct {
	src  string
	expr ast.Expr
}

// String returns the source text.
func (c *Condition) String() string { return c.src }

type compiled struct {
	cond *Condition
	err  error
}

var cache sync.Map // string → compiled

// Compile parses src. Results, including failures, are cached per source.
func Compile(src string) (*Condition, error) {
	if v, ok := cache.Load(src); ok {
		c := v.(compiled)
		return c.cond, c.err
	}
	cond, err := compile(src)
	cache.Store(src, compiled{cond: cond, err: err})
	return cond, err
}

func compile(src string) (*Condition, error) {
	if strings.TrimSpace(src) == "" {
		return nil, eris.New("rules: empty condition")
	}
	expr, err := parser.ParseExpr(src)
	if err != nil {
		return nil, eris.Wrapf(err, "rules: parse %q", src)
	}
	if err := check(expr); err != nil {
		return nil, eris.Wrapf(err, "rules: compile %q", src)
	}
	return &Condition{src: src, expr: expr}, nil
}

// check rejects every construct outside the condition language.
func check(e ast.Expr) error {
	switch n := e.(type) {
	case *ast.Ident:
		return nil
	case *ast.BasicLit:
		switch n.Kind {
		case token.STRING, token.INT, token.FLOAT:
			return nil
		}
		return eris.Errorf("unsupported literal %s", n.Value)
	case *ast.ParenExpr:
		return check(n.X)
	case *ast.UnaryExpr:
		switch n.Op {
		case token.NOT:
			return check(n.X)
		case token.SUB:
			if _, ok := n.X.(*ast.BasicLit); ok {
				return check(n.X)
			}
		}
		return eris.Errorf("unsupported unary operator %s", n.Op)
	case *ast.BinaryExpr:
		switch n.Op {
		case token.EQL, token.NEQ, token.LSS, token.LEQ, token.GTR, token.GEQ, token.LAND, token.LOR:
		default:
			return eris.Errorf("unsupported operator %s", n.Op)
		}
		if err := check(n.X); err != nil {
			return err
		}
		return check(n.Y)
	case *ast.CallExpr:
		return checkCall(n)
	}
	return eris.Errorf("unsupported expression %T", e)
}

func checkCall(n *ast.CallExpr) error {
	fn, ok := n.Fun.(*ast.Ident)
	if !ok {
		return eris.New("only has() and in() may be called")
	}
	if n.Ellipsis.IsValid() {
		return eris.Errorf("%s: variadic call not supported", fn.Name)
	}
	switch fn.Name {
	case "has":
		if len(n.Args) != 2 {
			return eris.Errorf("has: want 2 arguments, got %d", len(n.Args))
		}
	case "in":
		if len(n.Args) < 2 {
			return eris.Errorf("in: want at least 2 arguments, got %d", len(n.Args))
		}
	default:
		return eris.Errorf("unknown function %s", fn.Name)
	}
	if _, ok := n.Args[0].(*ast.Ident); !ok {
		return eris.Errorf("%s: first argument must be an attribute name", fn.Name)
	}
	for _, a := range n.Args[1:] {
		if err := checkLiteral(a); err != nil {
			return eris.Wrapf(err, "%s", fn.Name)
		}
	}
	return nil
}

func checkLiteral(e ast.Expr) error {
	switch n := e.(type) {
	case *ast.BasicLit:
		return check(n)
	case *ast.Ident:
		if n.Name == "true" || n.Name == "false" {
			return nil
		}
	case *ast.UnaryExpr:
		return check(n)
	}
	return eris.New("arguments after the first must be literals")
}

// Eval evaluates the condition. It fails when an attribute is missing, an
// operand has the wrong type, or the result is not a boolean.
func (c *Condition) Eval(attrs map[string]any) (bool, error) {
	v, err := eval(c.expr, attrs)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, eris.Errorf("rules: condition %q yields %T, not bool", c.src, v)
	}
	return b, nil
}

func eval(e ast.Expr, attrs map[string]any) (any, error) {
	switch n := e.(type) {
	case *ast.ParenExpr:
		return eval(n.X, attrs)
	case *ast.Ident:
		return lookup(n.Name, attrs)
	case *ast.BasicLit:
		return literal(n)
	case *ast.UnaryExpr:
		x, err := eval(n.X, attrs)
		if err != nil {
			return nil, err
		}
		if n.Op == token.NOT {
			b, ok := x.(bool)
			if !ok {
				return nil, eris.Errorf("rules: ! applied to %T", x)
			}
			return !b, nil
		}
		f, ok := x.(float64)
		if !ok {
			return nil, eris.Errorf("rules: - applied to %T", x)
		}
		return -f, nil
	case *ast.BinaryExpr:
		return evalBinary(n, attrs)
	case *ast.CallExpr:
		return evalCall(n, attrs)
	}
	return nil, eris.Errorf("rules: unsupported expression %T", e)
}

func lookup(name string, attrs map[string]any) (any, error) {
	switch name {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	v, ok := attrs[name]
	if !ok || v == nil {
		return nil, eris.Errorf("rules: unknown attribute %q", name)
	}
	return normalize(v), nil
}

// normalize folds numeric kinds to float64 and string lists to []string.
func normalize(v any) any {
	switch x := v.(type) {
	case int:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case float32:
		return float64(x)
	case []any:
		out := make([]string, 0, len(x))
		for _, e := range x {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return v
}

func literal(n *ast.BasicLit) (any, error) {
	switch n.Kind {
	case token.STRING:
		s, err := strconv.Unquote(n.Value)
		if err != nil {
			return nil, eris.Wrap(err, "rules: string literal")
		}
		return s, nil
	case token.INT, token.FLOAT:
		f, err := strconv.ParseFloat(n.Value, 64)
		if err != nil {
			return nil, eris.Wrap(err, "rules: number literal")
		}
		return f, nil
	}
	return nil, eris.Errorf("rules: unsupported literal %s", n.Value)
}

func evalBinary(n *ast.BinaryExpr, attrs map[string]any) (any, error) {
	if n.Op == token.LAND || n.Op == token.LOR {
		l, err := evalBool(n.X, attrs)
		if err != nil {
			return nil, err
		}
		if n.Op == token.LAND && !l {
			return false, nil
		}
		if n.Op == token.LOR && l {
			return true, nil
		}
		return evalBool(n.Y, attrs)
	}

	x, err := eval(n.X, attrs)
	if err != nil {
		return nil, err
	}
	y, err := eval(n.Y, attrs)
	if err != nil {
		return nil, err
	}

	switch l := x.(type) {
	case float64:
		r, ok := y.(float64)
		if !ok {
			return nil, mismatch(n.Op, x, y)
		}
		switch n.Op {
		case token.EQL:
			return l == r, nil
		case token.NEQ:
			return l != r, nil
		case token.LSS:
			return l < r, nil
		case token.LEQ:
			return l <= r, nil
		case token.GTR:
			return l > r, nil
		case token.GEQ:
			return l >= r, nil
		}
	case string:
		r, ok := y.(string)
		if !ok {
			return nil, mismatch(n.Op, x, y)
		}
		switch n.Op {
		case token.EQL:
			return l == r, nil
		case token.NEQ:
			return l != r, nil
		}
	case bool:
		r, ok := y.(bool)
		if !ok {
			return nil, mismatch(n.Op, x, y)
		}
		switch n.Op {
		case token.EQL:
			return l == r, nil
		case token.NEQ:
			return l != r, nil
		}
	}
	return nil, mismatch(n.Op, x, y)
}

func evalBool(e ast.Expr, attrs map[string]any) (bool, error) {
	v, err := eval(e, attrs)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, eris.Errorf("rules: logical operand is %T, not bool", v)
	}
	return b, nil
}

func mismatch(op token.Token, x, y any) error {
	return eris.Errorf("rules: cannot apply %s to %T and %T", op, x, y)
}

func evalCall(n *ast.CallExpr, attrs map[string]any) (any, error) {
	name := n.Fun.(*ast.Ident).Name
	subject, err := eval(n.Args[0], attrs)
	if err != nil {
		return nil, err
	}

	args := make([]any, 0, len(n.Args)-1)
	for _, a := range n.Args[1:] {
		v, err := eval(a, attrs)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}

	if name == "has" {
		list, ok := subject.([]string)
		if !ok {
			return nil, eris.Errorf("rules: has() needs a list, got %T", subject)
		}
		want, ok := args[0].(string)
		if !ok {
			return nil, eris.Errorf("rules: has() needs a string, got %T", args[0])
		}
		for _, s := range list {
			if strings.EqualFold(s, want) {
				return true, nil
			}
		}
		return false, nil
	}

	if _, ok := subject.([]string); ok {
		return nil, eris.New("rules: in() needs a scalar attribute; use has() for lists")
	}
	for _, a := range args {
		if a == subject {
			return true, nil
		}
	}
	return false, nil
}
