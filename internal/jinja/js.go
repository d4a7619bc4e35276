package jinja

import (
	"fmt"
	"strconv"
	"strings"

	"go.starlark.net/syntax"
)

// VarLookup returns the declared value of a project variable.
type VarLookup func(name string) (Value, bool)

// Loop names the JavaScript index and array bindings of the innermost loop.
type Loop struct {
	Index string
	Array string
}

// Scope lowers Jinja expressions to JavaScript. It knows which Jinja names are
// bound to JavaScript identifiers (loop targets, hoisted set variables) and how
// to fold project variables. Scopes are immutable; With returns a copy.
type Scope struct {
	names map[string]string
	kinds map[string]Kind
	loop  *Loop
	vars  VarLookup
}

// NewScope creates an empty scope.
func NewScope(vars VarLookup) *Scope {
	if vars == nil {
		vars = func(string) (Value, bool) { return Value{}, false }
	}
	return &Scope{names: map[string]string{}, kinds: map[string]Kind{}, vars: vars}
}

// With returns a scope where the Jinja name is bound to a JavaScript identifier.
func (s *Scope) With(name, js string) *Scope {
	return s.WithKind(name, js, KindUnknown)
}

// WithKind is With for a name whose value type is known.
func (s *Scope) WithKind(name, js string, k Kind) *Scope {
	c := s.clone()
	c.names[name] = js
	if k == KindUnknown {
		delete(c.kinds, name)
	} else {
		c.kinds[name] = k
	}
	return c
}

// WithLoop returns a scope where loop.* refers to the given bindings.
func (s *Scope) WithLoop(l Loop) *Scope {
	c := s.clone()
	c.loop = &l
	return c
}

// Lookup returns the JavaScript identifier bound to a Jinja name.
func (s *Scope) Lookup(name string) (string, bool) {
	js, ok := s.names[name]
	return js, ok
}

// Var returns the declared value of a project variable.
func (s *Scope) Var(name string) (Value, bool) {
	return s.vars(name)
}

func (s *Scope) clone() *Scope {
	c := &Scope{
		names: make(map[string]string, len(s.names)+1),
		kinds: make(map[string]Kind, len(s.kinds)+1),
		loop:  s.loop,
		vars:  s.vars,
	}
	for k, v := range s.names {
		c.names[k] = v
	}
	for k, v := range s.kinds {
		c.kinds[k] = v
	}
	return c
}

func unsupported(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUnsupported, fmt.Sprintf(format, args...))
}

var binaryOps = map[syntax.Token]string{
	syntax.AND:     "&&",
	syntax.OR:      "||",
	syntax.EQL:     "===",
	syntax.NEQ:     "!==",
	syntax.LT:      "<",
	syntax.GT:      ">",
	syntax.LE:      "<=",
	syntax.GE:      ">=",
	syntax.PLUS:    "+",
	syntax.MINUS:   "-",
	syntax.STAR:    "*",
	syntax.SLASH:   "/",
	syntax.PERCENT: "%",
}

// Runtime checks for values whose type is only known when Dataform compiles.
// JavaScript treats every array and object as true and has no membership test
// shared by arrays, strings and objects.
const (
	truthyJS  = `((v) => Array.isArray(v) ? v.length > 0 : v !== null && typeof v === "object" ? Object.keys(v).length > 0 : Boolean(v))`
	membersJS = `((c) => c !== null && typeof c === "object" && !Array.isArray(c) ? Object.keys(c) : c)`
	iterJS    = `((c) => Array.isArray(c) ? c : typeof c === "string" ? Array.from(c) : Object.keys(c))`
)

// JS lowers expr to a JavaScript expression.
func (s *Scope) JS(expr syntax.Expr) (string, error) {
	if v, ok := s.Static(expr); ok {
		return v.JS(), nil
	}

	switch e := expr.(type) {
	case *syntax.Ident:
		if js, ok := s.names[e.Name]; ok {
			return js, nil
		}
		return "", unsupported("unknown name %q", e.Name)

	case *syntax.ParenExpr:
		x, err := s.JS(e.X)
		if err != nil {
			return "", err
		}
		return "(" + x + ")", nil

	case *syntax.UnaryExpr:
		if e.Op == syntax.NOT {
			x, err := s.Cond(e.X)
			if err != nil {
				return "", err
			}
			return "!(" + x + ")", nil
		}
		x, err := s.JS(e.X)
		if err != nil {
			return "", err
		}
		switch e.Op {
		case syntax.MINUS:
			return "-" + x, nil
		case syntax.PLUS:
			return "+" + x, nil
		}
		return "", unsupported("operator %s", e.Op)

	case *syntax.BinaryExpr:
		x, err := s.JS(e.X)
		if err != nil {
			return "", err
		}
		switch e.Op {
		case syntax.IN:
			return s.membership(e.Y, x)
		case syntax.NOT_IN:
			in, err := s.membership(e.Y, x)
			if err != nil {
				return "", err
			}
			return "!" + in, nil
		}
		y, err := s.JS(e.Y)
		if err != nil {
			return "", err
		}
		op, ok := binaryOps[e.Op]
		if !ok {
			return "", unsupported("operator %s", e.Op)
		}
		return fmt.Sprintf("(%s %s %s)", x, op, y), nil

	case *syntax.CondExpr:
		cond, err := s.Cond(e.Cond)
		if err != nil {
			return "", err
		}
		t, err := s.JS(e.True)
		if err != nil {
			return "", err
		}
		f := `""`
		if e.False != nil {
			if f, err = s.JS(e.False); err != nil {
				return "", err
			}
		}
		return fmt.Sprintf("(%s ? %s : %s)", cond, t, f), nil

	case *syntax.ListExpr:
		return s.list(e.List)

	case *syntax.TupleExpr:
		return s.list(e.List)

	case *syntax.IndexExpr:
		x, err := s.JS(e.X)
		if err != nil {
			return "", err
		}
		y, err := s.JS(e.Y)
		if err != nil {
			return "", err
		}
		return x + "[" + y + "]", nil

	case *syntax.DotExpr:
		if id, ok := e.X.(*syntax.Ident); ok && id.Name == "loop" {
			if _, shadowed := s.names["loop"]; !shadowed {
				return s.loopAttr(e.Name.Name)
			}
		}
		x, err := s.JS(e.X)
		if err != nil {
			return "", err
		}
		return x + "." + e.Name.Name, nil

	case *syntax.CallExpr:
		call, ok := AsCall(e)
		if !ok {
			return "", unsupported("dynamic call")
		}
		return s.call(call)
	}

	return "", unsupported("%T", expr)
}

// Cond lowers expr as a condition with Jinja truthiness: empty lists and dicts
// are false. Conditions known at translate time fold to true or false.
func (s *Scope) Cond(expr syntax.Expr) (string, error) {
	if v, ok := s.Static(expr); ok {
		return strconv.FormatBool(v.Truthy()), nil
	}
	switch e := expr.(type) {
	case *syntax.ParenExpr:
		x, err := s.Cond(e.X)
		if err != nil {
			return "", err
		}
		return "(" + x + ")", nil
	case *syntax.UnaryExpr:
		if e.Op == syntax.NOT {
			x, err := s.Cond(e.X)
			if err != nil {
				return "", err
			}
			return "!(" + x + ")", nil
		}
	case *syntax.BinaryExpr:
		if e.Op == syntax.AND || e.Op == syntax.OR {
			x, err := s.Cond(e.X)
			if err != nil {
				return "", err
			}
			y, err := s.Cond(e.Y)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("(%s %s %s)", x, binaryOps[e.Op], y), nil
		}
	}

	js, err := s.JS(expr)
	if err != nil {
		return "", err
	}
	switch s.KindOf(expr) {
	case KindList:
		return "(" + js + ".length > 0)", nil
	case KindDict:
		return "(Object.keys(" + js + ").length > 0)", nil
	case KindUnknown:
		return truthyJS + "(" + js + ")", nil
	}
	return js, nil
}

// Iterable lowers the iterable of a for loop to a JavaScript array. A dict
// yields its keys and .items() yields [key, value] pairs.
func (s *Scope) Iterable(expr syntax.Expr) (string, error) {
	if call, ok := expr.(*syntax.CallExpr); ok && len(call.Args) == 0 {
		if dot, ok := call.Fn.(*syntax.DotExpr); ok && dot.Name.Name == "items" {
			target, err := s.JS(dot.X)
			if err != nil {
				return "", err
			}
			switch k := s.KindOf(dot.X); k {
			case KindDict, KindUnknown:
				return "Object.entries(" + target + ")", nil
			default:
				return "", unsupported("items() on a %s", k)
			}
		}
	}

	js, err := s.JS(expr)
	if err != nil {
		return "", err
	}
	switch k := s.KindOf(expr); k {
	case KindList:
		return js, nil
	case KindDict:
		return "Object.keys(" + js + ")", nil
	case KindString:
		return "Array.from(" + js + ")", nil
	case KindUnknown:
		return iterJS + "(" + js + ")", nil
	default:
		return "", unsupported("a %s is not iterable", k)
	}
}

// ElemKind returns the type shared by every item a loop over expr yields.
func (s *Scope) ElemKind(expr syntax.Expr) Kind {
	v, ok := s.Static(expr)
	if !ok {
		return KindUnknown
	}
	switch v.Kind {
	case KindDict, KindString:
		return KindString
	case KindList:
		if len(v.List) == 0 {
			return KindUnknown
		}
		k := v.List[0].Kind
		for _, item := range v.List[1:] {
			if item.Kind != k {
				return KindUnknown
			}
		}
		return k
	}
	return KindUnknown
}

func (s *Scope) membership(container syntax.Expr, x string) (string, error) {
	y, err := s.JS(container)
	if err != nil {
		return "", err
	}
	switch k := s.KindOf(container); k {
	case KindList, KindString:
		return y + ".includes(" + x + ")", nil
	case KindDict:
		return "Object.keys(" + y + ").includes(" + x + ")", nil
	case KindUnknown:
		return membersJS + "(" + y + ").includes(" + x + ")", nil
	default:
		return "", unsupported("'in' over a %s", k)
	}
}

// Static evaluates expr when its value is known at translate time: literals,
// declared project variables, and boolean logic, membership and lookups over them.
func (s *Scope) Static(expr syntax.Expr) (Value, bool) {
	if v, ok := Eval(expr); ok {
		return v, true
	}
	switch e := expr.(type) {
	case *syntax.ParenExpr:
		return s.Static(e.X)

	case *syntax.CallExpr:
		call, ok := AsCall(e)
		if !ok || call.Name != "var" {
			break
		}
		v, err := s.ResolveVar(call)
		return v, err == nil

	case *syntax.UnaryExpr:
		if e.Op != syntax.NOT {
			break
		}
		if v, ok := s.Static(e.X); ok {
			return Bool(!v.Truthy()), true
		}

	case *syntax.BinaryExpr:
		x, ok := s.Static(e.X)
		if !ok {
			break
		}
		switch e.Op {
		case syntax.AND:
			if !x.Truthy() {
				return x, true
			}
			return s.Static(e.Y)
		case syntax.OR:
			if x.Truthy() {
				return x, true
			}
			return s.Static(e.Y)
		case syntax.IN, syntax.NOT_IN:
			y, ok := s.Static(e.Y)
			if !ok {
				break
			}
			if in, ok := y.Contains(x); ok {
				return Bool(in != (e.Op == syntax.NOT_IN)), true
			}
		}

	case *syntax.DotExpr:
		if x, ok := s.Static(e.X); ok {
			return x.item(String(e.Name.Name))
		}

	case *syntax.IndexExpr:
		x, ok := s.Static(e.X)
		if !ok {
			break
		}
		if y, ok := s.Static(e.Y); ok {
			return x.item(y)
		}
	}
	return Value{}, false
}

// KindOf infers the type of expr without evaluating it.
func (s *Scope) KindOf(expr syntax.Expr) Kind {
	if v, ok := s.Static(expr); ok {
		return v.Kind
	}
	switch e := expr.(type) {
	case *syntax.ParenExpr:
		return s.KindOf(e.X)
	case *syntax.Ident:
		if k, ok := s.kinds[e.Name]; ok {
			return k
		}
	case *syntax.UnaryExpr:
		if e.Op == syntax.NOT {
			return KindBool
		}
		return KindFloat
	case *syntax.BinaryExpr:
		switch e.Op {
		case syntax.AND, syntax.OR:
			if x := s.KindOf(e.X); x == s.KindOf(e.Y) {
				return x
			}
		case syntax.IN, syntax.NOT_IN, syntax.EQL, syntax.NEQ,
			syntax.LT, syntax.GT, syntax.LE, syntax.GE:
			return KindBool
		}
	case *syntax.ListExpr, *syntax.TupleExpr:
		return KindList
	case *syntax.DictExpr:
		return KindDict
	case *syntax.DotExpr:
		if id, ok := e.X.(*syntax.Ident); ok && id.Name == "loop" && s.loop != nil {
			if _, shadowed := s.names["loop"]; !shadowed {
				switch e.Name.Name {
				case "first", "last":
					return KindBool
				default:
					return KindInt
				}
			}
		}
	case *syntax.CallExpr:
		if call, ok := AsCall(e); ok {
			switch {
			case call.Name == "is_incremental":
				return KindBool
			case call.Name == "range", strings.HasSuffix(call.Name, ".items"):
				return KindList
			}
		}
	}
	return KindUnknown
}

func (s *Scope) list(items []syntax.Expr) (string, error) {
	parts := make([]string, len(items))
	for i, item := range items {
		js, err := s.JS(item)
		if err != nil {
			return "", err
		}
		parts[i] = js
	}
	return "[" + strings.Join(parts, ", ") + "]", nil
}

func (s *Scope) loopAttr(attr string) (string, error) {
	if s.loop == nil {
		return "", unsupported("loop.%s outside a for block", attr)
	}
	i, arr := s.loop.Index, s.loop.Array
	switch attr {
	case "index0":
		return i, nil
	case "index":
		return "(" + i + " + 1)", nil
	case "first":
		return "(" + i + " === 0)", nil
	case "last":
		return "(" + i + " === " + arr + ".length - 1)", nil
	case "length":
		return arr + ".length", nil
	case "revindex":
		return "(" + arr + ".length - " + i + ")", nil
	case "revindex0":
		return "(" + arr + ".length - " + i + " - 1)", nil
	}
	return "", unsupported("loop.%s", attr)
}

func (s *Scope) call(call *Call) (string, error) {
	switch call.Name {
	case "is_incremental":
		if len(call.Args) != 0 || len(call.Kwargs) != 0 {
			return "", unsupported("is_incremental with arguments")
		}
		return "incremental()", nil

	case "var":
		v, err := s.ResolveVar(call)
		if err != nil {
			return "", err
		}
		return v.JS(), nil

	case "range":
		values, ok := call.LiteralArgs()
		if !ok || len(call.Kwargs) != 0 {
			return "", unsupported("range over dynamic bounds")
		}
		list, err := Range(values)
		if err != nil {
			return "", err
		}
		return list.JS(), nil
	}

	if strings.HasSuffix(call.Name, ".items") && len(call.Args) == 0 {
		target := strings.TrimSuffix(call.Name, ".items")
		if js, ok := s.names[target]; ok {
			return "Object.entries(" + js + ")", nil
		}
	}
	return "", unsupported("call to %s", call.Name)
}

// ResolveVar folds var('name') or var('name', default) to its value.
func (s *Scope) ResolveVar(call *Call) (Value, error) {
	v, _, err := s.ResolveVarDefault(call)
	return v, err
}

// ResolveVarDefault is ResolveVar that also reports whether the literal default was used.
func (s *Scope) ResolveVarDefault(call *Call) (Value, bool, error) {
	if call.Star || len(call.Kwargs) != 0 || len(call.Args) == 0 || len(call.Args) > 2 {
		return Value{}, false, unsupported("var() takes a name and an optional default")
	}
	name, ok := Eval(call.Args[0])
	if !ok || name.Kind != KindString {
		return Value{}, false, unsupported("var() with a non-literal name")
	}
	if v, ok := s.vars(name.Str); ok {
		return v, false, nil
	}
	if len(call.Args) == 2 {
		def, ok := Eval(call.Args[1])
		if !ok {
			return Value{}, false, unsupported("var(%q) with a non-literal default", name.Str)
		}
		return def, true, nil
	}
	return Value{}, false, fmt.Errorf("%w: variable %q is not declared", ErrUndeclared, name.Str)
}

// maxRange bounds the size of a range() expanded into a literal list.
const maxRange = 10000

// Range expands range(stop), range(start, stop) or range(start, stop, step).
func Range(args []Value) (Value, error) {
	if len(args) == 0 || len(args) > 3 {
		return Value{}, unsupported("range takes 1 to 3 arguments")
	}
	nums := make([]int, len(args))
	for i, a := range args {
		if a.Kind != KindInt {
			return Value{}, unsupported("range over non-integer bounds")
		}
		n, err := strconv.Atoi(a.Str)
		if err != nil {
			return Value{}, unsupported("range bound %q", a.Str)
		}
		nums[i] = n
	}
	start, stop, step := 0, nums[0], 1
	if len(nums) >= 2 {
		start, stop = nums[0], nums[1]
	}
	if len(nums) == 3 {
		step = nums[2]
	}
	if step == 0 {
		return Value{}, unsupported("range step of zero")
	}
	out := Value{Kind: KindList}
	for i := start; (step > 0 && i < stop) || (step < 0 && i > stop); i += step {
		if len(out.List) >= maxRange {
			return Value{}, unsupported("range larger than %d items", maxRange)
		}
		out.List = append(out.List, Value{Kind: KindInt, Str: strconv.Itoa(i)})
	}
	return out, nil
}
