// Package translate rewrites parsed dbt templates into Dataform SQLX.
//
// Every directive ends up in exactly one of two states: rewritten into SQLX
// syntax, or copied through verbatim with a diagnostic explaining why. Control
// blocks become JavaScript expressions inside ${...}, since SQLX has no statement
// syntax of its own.
package translate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/leapstack-labs/dbt2sqlx/internal/functions"
	"github.com/leapstack-labs/dbt2sqlx/internal/jinja"
	"github.com/leapstack-labs/dbt2sqlx/internal/template"
	"github.com/leapstack-labs/dbt2sqlx/pkg/core"
)

// Symbols resolves references against the project symbol table.
type Symbols interface {
	Model(name string) (*core.Model, bool)
	Source(sourceName, tableName string) (*core.Source, bool)
	Variable(name string) (*core.Variable, bool)
	CycleAffected(name string) bool
}

// Rules rewrites helper macro calls.
type Rules interface {
	Lookup(name string, args []functions.Arg) (string, bool)
	Has(name string) bool
}

// Options tune a Translator.
type Options struct {
	// RecordRules adds an info diagnostic for every successful rewrite.
	RecordRules bool
}

// Output is the result of translating one file.
type Output struct {
	Text        string
	Body        string
	Config      ModelConfig
	Diagnostics []core.Diagnostic
	Status      core.FileStatus
}

// Translator rewrites files. It holds only read-only state and is safe for
// concurrent use.
type Translator struct {
	symbols Symbols
	rules   Rules
	opts    Options
}

// New creates a Translator.
func New(symbols Symbols, rules Rules, opts Options) *Translator {
	return &Translator{symbols: symbols, rules: rules, opts: opts}
}

// TranslateSource parses and translates one file. A parse failure yields a
// skipped output with a single fatal diagnostic.
func (t *Translator) TranslateSource(model *core.Model, path, text string) *Output {
	tmpl, err := template.ParseString(text, path)
	if err != nil {
		return &Output{
			Diagnostics: []core.Diagnostic{parseDiagnostic(path, err)},
			Status:      core.StatusSkipped,
		}
	}
	return t.translate(model, path, tmpl, isSQLX(text))
}

// Translate translates an already parsed template.
func (t *Translator) Translate(model *core.Model, tmpl *template.Template) *Output {
	return t.translate(model, tmpl.File, tmpl, false)
}

func (t *Translator) translate(model *core.Model, path string, tmpl *template.Template, sqlx bool) *Output {
	f := &fileState{t: t, path: path, model: model, sqlx: sqlx}
	root := &emitCtx{scope: jinja.NewScope(f.lookupVar)}
	body := f.nodes(tmpl.Nodes, root)

	out := &Output{Body: body, Config: f.config, Diagnostics: f.diags}
	if sqlx {
		out.Text = body
	} else {
		out.Text = f.assemble(body)
	}
	out.Status = f.status()
	return out
}

func parseDiagnostic(path string, err error) core.Diagnostic {
	d := core.Diagnostic{
		FilePath: path,
		Kind:     core.KindParse,
		Severity: core.SeverityFatal,
		Message:  err.Error(),
	}
	var tmplErr template.Error
	if errors.As(err, &tmplErr) {
		pos := tmplErr.Position()
		d.Line, d.Column = pos.Line, pos.Column
		if m, ok := err.(interface{ Message() string }); ok {
			d.Message = m.Message()
		}
	}
	d.Message = "file skipped: " + d.Message
	return d
}

// isSQLX reports whether text is already a SQLX file.
func isSQLX(text string) bool {
	trimmed := strings.TrimLeft(text, " \t\r\n")
	return strings.HasPrefix(trimmed, "config {") || strings.HasPrefix(trimmed, "config{")
}

// fileState is the mutable state of one translation.
type fileState struct {
	t            *Translator
	path         string
	model        *core.Model
	sqlx         bool
	configAt     *template.Position
	diags        []core.Diagnostic
	config       ModelConfig
	hoisted      []string
	declared     map[string]int
	passthroughs int
	warnings     int
	fatal        bool
}

// emitCtx describes where output is being written.
type emitCtx struct {
	// nested is set inside a JavaScript template literal.
	nested bool
	depth  int
	scope  *jinja.Scope
}

func (c *emitCtx) inner(scope *jinja.Scope, depth int) *emitCtx {
	return &emitCtx{nested: true, depth: depth, scope: scope}
}

func (f *fileState) lookupVar(name string) (jinja.Value, bool) {
	v, ok := f.t.symbols.Variable(name)
	if !ok {
		return jinja.Value{}, false
	}
	return jinja.FromGo(v.DefaultValue)
}

func (f *fileState) status() core.FileStatus {
	switch {
	case f.fatal:
		return core.StatusFatal
	case f.passthroughs > 0 || f.warnings > 0:
		return core.StatusPartial
	default:
		return core.StatusSuccess
	}
}

func (f *fileState) diag(pos template.Position, sev core.Severity, kind, msg string) {
	switch sev {
	case core.SeverityWarning, core.SeverityError:
		f.warnings++
	case core.SeverityFatal:
		f.fatal = true
	}
	f.diags = append(f.diags, core.Diagnostic{
		FilePath: f.path,
		Line:     pos.Line,
		Column:   pos.Column,
		Kind:     kind,
		Message:  msg,
		Severity: sev,
	})
}

// rule records a successful rewrite.
func (f *fileState) rule(pos template.Position, name string) {
	if !f.t.opts.RecordRules {
		return
	}
	f.diags = append(f.diags, core.Diagnostic{
		FilePath: f.path,
		Line:     pos.Line,
		Column:   pos.Column,
		Kind:     core.KindRule,
		Message:  "rewrote " + name,
		Severity: core.SeverityInfo,
		Rule:     name,
	})
}

// passthrough copies a node's source unchanged and records exactly one diagnostic.
func (f *fileState) passthrough(n template.Node, ctx *emitCtx, sev core.Severity, kind, format string, args ...any) string {
	f.passthroughs++
	f.diag(n.Pos(), sev, kind, fmt.Sprintf(format, args...))
	return f.literal(n.Source(), ctx)
}

// literal emits SQL text. Inside template literals it is fully escaped. At the
// top level of a converted file only ${ is escaped.
func (f *fileState) literal(s string, ctx *emitCtx) string {
	if ctx.nested {
		return escapeTemplate(s)
	}
	if f.sqlx {
		return s
	}
	return strings.ReplaceAll(s, "${", "\\${")
}

var templateEscaper = strings.NewReplacer(`\`, `\\`, "`", "\\`", "${", "\\${")

// escapeTemplate escapes text for a JavaScript template literal.
func escapeTemplate(s string) string {
	return templateEscaper.Replace(s)
}

func (f *fileState) nodes(nodes []template.Node, ctx *emitCtx) string {
	var b strings.Builder
	for _, n := range nodes {
		b.WriteString(f.node(n, ctx))
	}
	return b.String()
}

func (f *fileState) node(n template.Node, ctx *emitCtx) string {
	switch n := n.(type) {
	case *template.TextNode:
		return f.text(n, ctx)
	case *template.ExprNode:
		return f.expr(n, ctx)
	case *template.CommentNode:
		f.rule(n.Pos(), "comment")
		return f.literal("/* "+strings.ReplaceAll(n.Text, "*/", "* /")+" */", ctx)
	case *template.RawBlock:
		f.rule(n.Pos(), "raw")
		return f.literal(n.Text, ctx)
	case *template.IfBlock:
		return f.ifBlock(n, ctx)
	case *template.ForBlock:
		return f.forBlock(n, ctx)
	case *template.SetNode:
		return f.setNode(n, ctx)
	case *template.SetBlock:
		return f.setBlock(n, ctx)
	case *template.GenericBlock:
		return f.passthrough(n, ctx, core.SeverityFatal, core.KindUnsupported,
			"'%s' blocks have no SQLX equivalent and need manual conversion", n.Keyword)
	case *template.StmtNode:
		return f.passthrough(n, ctx, core.SeverityFatal, core.KindUnsupported,
			"'%s' statements have no SQLX equivalent and need manual conversion", n.Keyword)
	default:
		return f.passthrough(n, ctx, core.SeverityFatal, core.KindUnsupported, "unknown template node %T", n)
	}
}

func (f *fileState) text(n *template.TextNode, ctx *emitCtx) string {
	text := n.Text
	if n.TrimLeading {
		text = strings.TrimLeft(text, " \t\r\n")
	}
	if n.TrimTrailing {
		text = strings.TrimRight(text, " \t\r\n")
	}

	for _, pos := range n.QuotedDelimiters {
		f.diag(pos, core.SeverityWarning, core.KindQuotedDirective,
			"directive inside a SQL string literal was left untranslated")
	}
	if len(n.QuotedDelimiters) == 0 {
		if i := strings.Index(n.Text, "dbt_utils."); i >= 0 {
			pos := n.Pos()
			pos.Line += strings.Count(n.Text[:i], "\n")
			f.diag(pos, core.SeverityWarning, core.KindLeftover, "unconverted dbt_utils reference in SQL text")
		}
	}
	return f.literal(text, ctx)
}

// assemble prepends the config block and hoisted declarations to the body.
func (f *fileState) assemble(body string) string {
	var b strings.Builder
	b.WriteString(f.header())
	b.WriteString("\n\n")
	if len(f.hoisted) > 0 {
		b.WriteString("js {\n")
		for _, line := range f.hoisted {
			b.WriteString("  ")
			b.WriteString(line)
			b.WriteString("\n")
		}
		b.WriteString("}\n\n")
	}
	b.WriteString(strings.TrimLeft(body, "\r\n"))
	return b.String()
}
