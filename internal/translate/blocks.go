package translate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/leapstack-labs/dbt2sqlx/internal/jinja"
	"github.com/leapstack-labs/dbt2sqlx/internal/template"
	"github.com/leapstack-labs/dbt2sqlx/pkg/core"
)

// ifBlock lowers if/elif/else into a chain of ternaries over template literals.
func (f *fileState) ifBlock(n *template.IfBlock, ctx *emitCtx) string {
	conds := make([]string, 0, 1+len(n.ElseIfs))
	sources := append([]string{n.Condition}, branchConditions(n.ElseIfs)...)
	for _, src := range sources {
		js, err := f.condition(src, ctx)
		if err != nil {
			return f.passthrough(n, ctx, core.SeverityFatal, core.KindUnsupported,
				"if condition %q has no JavaScript equivalent: %s", strings.TrimSpace(src), errMessage(err))
		}
		conds = append(conds, js)
	}

	inner := ctx.inner(ctx.scope, ctx.depth)
	var b strings.Builder
	b.WriteString("${")
	for i, cond := range conds {
		body := n.Body
		if i > 0 {
			body = n.ElseIfs[i-1].Body
		}
		fmt.Fprintf(&b, "%s ? `%s` : ", cond, f.nodes(body, inner))
	}
	b.WriteString("`")
	b.WriteString(f.nodes(n.Else, inner))
	b.WriteString("`}")
	f.rule(n.Pos(), "if")
	return b.String()
}

func branchConditions(branches []template.Branch) []string {
	out := make([]string, len(branches))
	for i, br := range branches {
		out[i] = br.Condition
	}
	return out
}

func (f *fileState) condition(src string, ctx *emitCtx) (string, error) {
	expr, err := jinja.ParseExpr(src)
	if err != nil {
		return "", err
	}
	return ctx.scope.Cond(expr)
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// loopBindingRe matches the names generated for loop index and array parameters.
var loopBindingRe = regexp.MustCompile(`^(i|arr)[0-9]*$`)

var jsReserved = map[string]bool{
	"arguments": true, "await": true, "break": true, "case": true, "catch": true,
	"class": true, "const": true, "continue": true, "debugger": true, "default": true,
	"delete": true, "do": true, "else": true, "enum": true, "eval": true,
	"export": true, "extends": true, "false": true, "finally": true, "for": true,
	"function": true, "if": true, "implements": true, "import": true, "in": true,
	"instanceof": true, "interface": true, "let": true, "new": true, "null": true,
	"package": true, "private": true, "protected": true, "public": true, "return": true,
	"static": true, "super": true, "switch": true, "this": true, "throw": true,
	"true": true, "try": true, "typeof": true, "var": true, "void": true,
	"while": true, "with": true, "yield": true,
	// Dataform context functions used by generated code.
	"ref": true, "self": true, "incremental": true, "resolve": true, "when": true,
}

// jsIdent maps a Jinja name to a JavaScript identifier that cannot collide with
// keywords or generated bindings.
func jsIdent(name string) string {
	if jsReserved[name] || loopBindingRe.MatchString(name) {
		return name + "_"
	}
	return name
}

// forBlock lowers a for loop into Array.map over a template literal.
func (f *fileState) forBlock(n *template.ForBlock, ctx *emitCtx) string {
	if len(n.Else) > 0 {
		return f.passthrough(n, ctx, core.SeverityFatal, core.KindUnsupported,
			"for ... else has no SQLX equivalent and needs manual conversion")
	}

	names := strings.Split(n.VarName, ",")
	for i := range names {
		names[i] = strings.TrimSpace(names[i])
		if !identRe.MatchString(names[i]) {
			return f.passthrough(n, ctx, core.SeverityFatal, core.KindUnsupported,
				"loop target %q is not a plain name", strings.TrimSpace(n.VarName))
		}
	}
	if len(names) > 2 {
		return f.passthrough(n, ctx, core.SeverityFatal, core.KindUnsupported,
			"loops over more than two names need manual conversion")
	}

	expr, err := jinja.ParseExpr(n.IterExpr)
	var iter string
	if err == nil {
		iter, err = ctx.scope.Iterable(expr)
	}
	if err != nil {
		return f.passthrough(n, ctx, core.SeverityFatal, core.KindUnsupported,
			"loop over %q has no JavaScript equivalent: %s", strings.TrimSpace(n.IterExpr), errMessage(err))
	}

	idx, arr := "i", "arr"
	if ctx.depth > 0 {
		idx, arr = fmt.Sprintf("i%d", ctx.depth), fmt.Sprintf("arr%d", ctx.depth)
	}
	scope := ctx.scope.WithLoop(jinja.Loop{Index: idx, Array: arr})
	params := make([]string, len(names))
	for i, name := range names {
		params[i] = jsIdent(name)
		kind := jinja.KindUnknown
		if len(names) == 1 {
			kind = ctx.scope.ElemKind(expr)
		}
		scope = scope.WithKind(name, params[i], kind)
	}
	param := params[0]
	if len(params) == 2 {
		param = "[" + params[0] + ", " + params[1] + "]"
	}

	body := f.nodes(n.Body, ctx.inner(scope, ctx.depth+1))
	f.rule(n.Pos(), "for")
	return fmt.Sprintf("${%s.map((%s, %s, %s) => `%s`).join(\"\")}", iter, param, idx, arr, body)
}

// setNode hoists {% set x = expr %} into the js block.
func (f *fileState) setNode(n *template.SetNode, ctx *emitCtx) string {
	if ctx.nested {
		return f.passthrough(n, ctx, core.SeverityFatal, core.KindUnsupported,
			"set inside a control block needs manual conversion")
	}
	name := strings.TrimSpace(n.Name)
	if !identRe.MatchString(name) {
		return f.passthrough(n, ctx, core.SeverityFatal, core.KindUnsupported,
			"set target %q is not a plain name", name)
	}
	expr, err := jinja.ParseExpr(n.Value)
	var js string
	if err == nil {
		js, err = ctx.scope.JS(expr)
	}
	if err != nil {
		return f.passthrough(n, ctx, core.SeverityFatal, core.KindUnsupported,
			"value of %s has no JavaScript equivalent: %s", name, errMessage(err))
	}
	f.hoist(name, js, ctx.scope.KindOf(expr), ctx)
	f.rule(n.Pos(), "set")
	return ""
}

// setBlock hoists {% set x %}...{% endset %} as a template string constant.
func (f *fileState) setBlock(n *template.SetBlock, ctx *emitCtx) string {
	if ctx.nested {
		return f.passthrough(n, ctx, core.SeverityFatal, core.KindUnsupported,
			"set inside a control block needs manual conversion")
	}
	name := strings.TrimSpace(n.Name)
	if !identRe.MatchString(name) {
		return f.passthrough(n, ctx, core.SeverityFatal, core.KindUnsupported,
			"set target %q is not a plain name", name)
	}
	body := f.nodes(n.Body, ctx.inner(ctx.scope, ctx.depth))
	f.hoist(name, "`"+body+"`", jinja.KindString, ctx)
	f.rule(n.Pos(), "set")
	return ""
}

// hoist declares a constant and binds the name for the rest of the file.
// A repeated set of the same name gets a fresh constant.
func (f *fileState) hoist(name, js string, kind jinja.Kind, ctx *emitCtx) {
	ident := jsIdent(name)
	if f.declared == nil {
		f.declared = map[string]int{}
	}
	if n := f.declared[ident]; n > 0 {
		f.declared[ident] = n + 1
		ident = fmt.Sprintf("%s_%d", ident, n+1)
	} else {
		f.declared[ident] = 1
	}
	f.hoisted = append(f.hoisted, "const "+ident+" = "+js+";")
	ctx.scope = ctx.scope.WithKind(name, ident, kind)
}
