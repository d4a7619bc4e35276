package loader

import (
	"github.com/leapstack-labs/dbt2sqlx/internal/jinja"
	"github.com/leapstack-labs/dbt2sqlx/internal/template"
	"github.com/leapstack-labs/dbt2sqlx/pkg/core"
)

// ExtractDependencies returns the literal ref() and source() calls in a model,
// in source order and without duplicates. A file that does not parse has none;
// the translator reports the parse error.
func ExtractDependencies(text, file string) []core.Ref {
	tmpl, err := template.ParseString(text, file)
	if err != nil {
		return nil
	}

	var refs []core.Ref
	seen := make(map[string]bool)
	scan := func(src string) {
		expr, err := jinja.ParseExpr(src)
		if err != nil {
			return
		}
		for _, call := range jinja.FindCalls(expr, "ref", "source") {
			ref, ok := callRef(call)
			if !ok || seen[ref.Key()] {
				continue
			}
			seen[ref.Key()] = true
			refs = append(refs, ref)
		}
	}

	template.Walk(tmpl.Nodes, func(n template.Node) bool {
		switch n := n.(type) {
		case *template.ExprNode:
			scan(n.Expr)
		case *template.IfBlock:
			scan(n.Condition)
			for _, br := range n.ElseIfs {
				scan(br.Condition)
			}
		case *template.ForBlock:
			scan(n.IterExpr)
		case *template.SetNode:
			scan(n.Value)
		case *template.RawBlock:
			return false
		}
		return true
	})
	return refs
}

func callRef(call *jinja.Call) (core.Ref, bool) {
	args, ok := call.StringArgs()
	if !ok || len(call.Kwargs) > 0 {
		return core.Ref{}, false
	}
	switch {
	case call.Name == "ref" && (len(args) == 1 || len(args) == 2):
		return core.Ref{Kind: core.RefModel, Name: args[len(args)-1]}, true
	case call.Name == "source" && len(args) == 2:
		return core.Ref{Kind: core.RefSource, SourceName: args[0], Name: args[1]}, true
	}
	return core.Ref{}, false
}
