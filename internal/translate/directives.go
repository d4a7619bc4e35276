package translate

import (
	"fmt"
	"strings"

	"go.starlark.net/syntax"

	"github.com/leapstack-labs/dbt2sqlx/internal/functions"
	"github.com/leapstack-labs/dbt2sqlx/internal/jinja"
	"github.com/leapstack-labs/dbt2sqlx/internal/template"
	"github.com/leapstack-labs/dbt2sqlx/pkg/core"
)

// expr rewrites a {{ }} expression.
func (f *fileState) expr(n *template.ExprNode, ctx *emitCtx) string {
	expr, err := jinja.ParseExpr(n.Expr)
	if err != nil {
		return f.passthrough(n, ctx, core.SeverityWarning, core.KindUnsupported,
			"expression %q could not be analysed", strings.TrimSpace(n.Expr))
	}

	if id, ok := expr.(*syntax.Ident); ok && id.Name == "this" {
		if _, shadowed := ctx.scope.Lookup("this"); !shadowed {
			f.rule(n.Pos(), "this")
			return "${self()}"
		}
	}

	if call, ok := jinja.AsCall(expr); ok {
		switch call.Name {
		case "ref":
			return f.ref(n, call, ctx)
		case "source":
			return f.source(n, call, ctx)
		case "var":
			return f.variable(n, call, ctx)
		case "config":
			return f.modelConfig(n, call, ctx)
		case "is_incremental":
			f.rule(n.Pos(), "is_incremental")
			return "${incremental()}"
		}
		if f.t.rules.Has(call.Name) {
			return f.helper(n, call, ctx)
		}
	}

	if v, ok := ctx.scope.Static(expr); ok {
		f.rule(n.Pos(), "literal")
		return f.literal(v.SQL(), ctx)
	}
	if js, err := ctx.scope.JS(expr); err == nil {
		f.rule(n.Pos(), "expression")
		return "${" + js + "}"
	}

	if call, ok := jinja.AsCall(expr); ok {
		return f.passthrough(n, ctx, core.SeverityWarning, core.KindUnresolvedFunction,
			"no rewrite rule for macro %s", call.Name)
	}
	return f.passthrough(n, ctx, core.SeverityWarning, core.KindUnsupported,
		"expression %q has no SQLX equivalent", strings.TrimSpace(n.Expr))
}

func (f *fileState) ref(n *template.ExprNode, call *jinja.Call, ctx *emitCtx) string {
	args, ok := call.StringArgs()
	if !ok || len(call.Kwargs) > 0 || len(args) == 0 || len(args) > 2 {
		return f.passthrough(n, ctx, core.SeverityWarning, core.KindUnresolvedRef,
			"ref() needs one or two string literal arguments")
	}
	name := args[len(args)-1]
	m, ok := f.t.symbols.Model(name)
	if !ok {
		return f.passthrough(n, ctx, core.SeverityWarning, core.KindUnresolvedRef,
			"reference to unknown model %q", name)
	}
	if f.t.symbols.CycleAffected(m.Name) {
		return f.passthrough(n, ctx, core.SeverityFatal, core.KindCycle,
			"model %q is part of a dependency cycle", m.Name)
	}
	f.rule(n.Pos(), "ref")
	return "${ref(" + jinja.String(m.Name).JS() + ")}"
}

func (f *fileState) source(n *template.ExprNode, call *jinja.Call, ctx *emitCtx) string {
	args, ok := call.StringArgs()
	if !ok || len(call.Kwargs) > 0 || len(args) != 2 {
		return f.passthrough(n, ctx, core.SeverityWarning, core.KindUnresolvedSource,
			"source() needs two string literal arguments")
	}
	s, ok := f.t.symbols.Source(args[0], args[1])
	if !ok {
		return f.passthrough(n, ctx, core.SeverityWarning, core.KindUnresolvedSource,
			"reference to undeclared source %s.%s", args[0], args[1])
	}
	f.rule(n.Pos(), "source")
	return "${ref(" + jinja.String(s.DeclaredSchema()).JS() + ", " + jinja.String(s.Identifier()).JS() + ")}"
}

func (f *fileState) variable(n *template.ExprNode, call *jinja.Call, ctx *emitCtx) string {
	v, usedDefault, err := ctx.scope.ResolveVarDefault(call)
	if err != nil {
		return f.passthrough(n, ctx, core.SeverityWarning, core.KindUnresolvedVar, "%s", errMessage(err))
	}
	if usedDefault {
		name, _ := jinja.Eval(call.Args[0])
		f.diag(n.Pos(), core.SeverityInfo, core.KindUnresolvedVar,
			fmt.Sprintf("variable %q is not declared; inlined its default", name.Str))
	}
	f.rule(n.Pos(), "var")
	return f.literal(v.SQL(), ctx)
}

// errMessage strips the sentinel prefix from jinja errors.
func errMessage(err error) string {
	msg := err.Error()
	for _, sentinel := range []error{jinja.ErrUnsupported, jinja.ErrUndeclared} {
		msg = strings.TrimPrefix(msg, sentinel.Error()+": ")
	}
	return msg
}

func (f *fileState) helper(n *template.ExprNode, call *jinja.Call, ctx *emitCtx) string {
	values, ok := call.LiteralArgs()
	if !ok || len(call.Kwargs) > 0 {
		return f.passthrough(n, ctx, core.SeverityWarning, core.KindUnresolvedFunction,
			"%s() with non-literal arguments", call.Name)
	}
	args := make([]functions.Arg, 0, len(values))
	for _, v := range values {
		arg, ok := helperArg(v)
		if !ok {
			return f.passthrough(n, ctx, core.SeverityWarning, core.KindUnresolvedFunction,
				"%s() with unsupported argument %s", call.Name, v.SQL())
		}
		args = append(args, arg)
	}
	sql, ok := f.t.rules.Lookup(call.Name, args)
	if !ok {
		return f.passthrough(n, ctx, core.SeverityWarning, core.KindUnresolvedFunction,
			"no rewrite rule matches %s() with %d arguments", call.Name, len(args))
	}
	f.rule(n.Pos(), "function:"+call.Name)
	return f.literal(sql, ctx)
}

// helperArg converts a literal into a rule argument. Strings are SQL fragments.
func helperArg(v jinja.Value) (functions.Arg, bool) {
	if s, ok := v.Scalar(); ok {
		return functions.S(s), true
	}
	if v.Kind != jinja.KindList {
		return functions.Arg{}, false
	}
	items := make([]string, 0, len(v.List))
	for _, item := range v.List {
		s, ok := item.Scalar()
		if !ok {
			return functions.Arg{}, false
		}
		items = append(items, s)
	}
	return functions.L(items...), true
}

func (f *fileState) modelConfig(n *template.ExprNode, call *jinja.Call, ctx *emitCtx) string {
	if ctx.nested {
		return f.passthrough(n, ctx, core.SeverityFatal, core.KindConfig,
			"config() inside a control block cannot be hoisted into the config header")
	}
	kwargs, dynamic := call.LiteralKwargs()
	if len(call.Args) > 0 || call.Star || len(dynamic) > 0 {
		return f.passthrough(n, ctx, core.SeverityFatal, core.KindConfig,
			"config() with non-literal arguments needs manual conversion")
	}
	unused, err := f.config.merge(kwargs)
	if err != nil {
		return f.passthrough(n, ctx, core.SeverityFatal, core.KindConfig, "config(): %v", err)
	}
	for _, key := range unused {
		f.diag(n.Pos(), core.SeverityWarning, core.KindConfig,
			fmt.Sprintf("config option %q has no Dataform equivalent and was dropped", key))
	}
	if f.configAt == nil {
		pos := n.Pos()
		f.configAt = &pos
	}
	f.rule(n.Pos(), "config")
	return ""
}
