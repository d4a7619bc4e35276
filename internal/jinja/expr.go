// Package jinja analyses the body of a Jinja directive without executing it.
//
// Jinja expressions are close enough to Starlark that the Starlark parser accepts
// the subset dbt models use: calls with keyword arguments, literals, lists, dicts,
// attribute access and boolean logic. Anything the parser rejects (filters written
// with '|', tests written with 'is', string concatenation with '~') is reported as an
// error so callers can keep the directive verbatim.
package jinja

import (
	"errors"
	"fmt"
	"strings"

	"go.starlark.net/syntax"
)

// ErrUnsupported is wrapped by errors for expressions with no static meaning.
var ErrUnsupported = errors.New("unsupported expression")

// ErrUndeclared is returned by var() lookups for variables missing from the project.
var ErrUndeclared = errors.New("undeclared variable")

// ParseExpr parses a directive body as a single expression.
// The body is wrapped in parentheses so it may span lines.
func ParseExpr(src string) (syntax.Expr, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return nil, fmt.Errorf("%w: empty expression", ErrUnsupported)
	}
	f, err := syntax.Parse("directive", "("+src+")\n", 0)
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", src, err)
	}
	if len(f.Stmts) != 1 {
		return nil, fmt.Errorf("%w: %q is not a single expression", ErrUnsupported, src)
	}
	stmt, ok := f.Stmts[0].(*syntax.ExprStmt)
	if !ok {
		return nil, fmt.Errorf("%w: %q is not an expression", ErrUnsupported, src)
	}
	expr := stmt.X
	if paren, ok := expr.(*syntax.ParenExpr); ok {
		expr = paren.X
	}
	return expr, nil
}

// Kwarg is a keyword argument of a call.
type Kwarg struct {
	Name  string
	Value syntax.Expr
}

// Call is a function call whose callee is a plain or dotted name.
type Call struct {
	Name   string
	Args   []syntax.Expr
	Kwargs []Kwarg
	// Star is set when the call forwards *args or **kwargs.
	Star bool
}

// AsCall returns the call if expr is a call to a named function.
func AsCall(expr syntax.Expr) (*Call, bool) {
	ce, ok := expr.(*syntax.CallExpr)
	if !ok {
		return nil, false
	}
	name, ok := DottedName(ce.Fn)
	if !ok {
		return nil, false
	}
	call := &Call{Name: name}
	for _, arg := range ce.Args {
		switch a := arg.(type) {
		case *syntax.BinaryExpr:
			if a.Op == syntax.EQ {
				if id, ok := a.X.(*syntax.Ident); ok {
					call.Kwargs = append(call.Kwargs, Kwarg{Name: id.Name, Value: a.Y})
					continue
				}
			}
			call.Args = append(call.Args, a)
		case *syntax.UnaryExpr:
			if a.Op == syntax.STAR || a.Op == syntax.STARSTAR {
				call.Star = true
				continue
			}
			call.Args = append(call.Args, a)
		default:
			call.Args = append(call.Args, a)
		}
	}
	return call, true
}

// DottedName returns "a.b.c" for an identifier or attribute chain.
func DottedName(expr syntax.Expr) (string, bool) {
	switch e := expr.(type) {
	case *syntax.Ident:
		return e.Name, true
	case *syntax.DotExpr:
		prefix, ok := DottedName(e.X)
		if !ok {
			return "", false
		}
		return prefix + "." + e.Name.Name, true
	default:
		return "", false
	}
}

// LiteralArgs evaluates all positional arguments as literals.
// It fails if any argument is dynamic or the call forwards *args.
func (c *Call) LiteralArgs() ([]Value, bool) {
	if c.Star {
		return nil, false
	}
	values := make([]Value, 0, len(c.Args))
	for _, a := range c.Args {
		v, ok := Eval(a)
		if !ok {
			return nil, false
		}
		values = append(values, v)
	}
	return values, true
}

// StringArgs returns the positional arguments when all of them are string literals.
func (c *Call) StringArgs() ([]string, bool) {
	values, ok := c.LiteralArgs()
	if !ok {
		return nil, false
	}
	out := make([]string, len(values))
	for i, v := range values {
		if v.Kind != KindString {
			return nil, false
		}
		out[i] = v.Str
	}
	return out, true
}

// LiteralKwargs evaluates keyword arguments into plain Go values.
// The second result lists keywords whose value is not a literal.
func (c *Call) LiteralKwargs() (map[string]any, []string) {
	out := make(map[string]any, len(c.Kwargs))
	var dynamic []string
	for _, kw := range c.Kwargs {
		v, ok := Eval(kw.Value)
		if !ok {
			dynamic = append(dynamic, kw.Name)
			continue
		}
		out[kw.Name] = v.Go()
	}
	return out, dynamic
}

// FindCalls returns every call to one of names nested anywhere in expr, in source order.
func FindCalls(expr syntax.Expr, names ...string) []*Call {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	var calls []*Call
	syntax.Walk(expr, func(n syntax.Node) bool {
		if e, ok := n.(syntax.Expr); ok {
			if call, ok := AsCall(e); ok && want[call.Name] {
				calls = append(calls, call)
			}
		}
		return true
	})
	return calls
}
