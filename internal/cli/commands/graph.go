package commands

import (
	"fmt"
	"slices"
	"strings"

	"github.com/leapstack-labs/dbt2sqlx/internal/cli/output"
	"github.com/leapstack-labs/dbt2sqlx/internal/dag"
	"github.com/leapstack-labs/dbt2sqlx/internal/registry"
	"github.com/spf13/cobra"
)

// GraphQuerier provides read-only access to DAG structure.
type GraphQuerier interface {
	GetParents(string) []string
	GetChildren(string) []string
	NodeCount() int
	EdgeCount() int
}

// GraphNode is one model in graph JSON output.
type GraphNode struct {
	Name       string   `json:"name"`
	Level      int      `json:"level"`
	DependsOn  []string `json:"depends_on,omitempty"`
	Dependents []string `json:"dependents,omitempty"`
}

// GraphOutput is the JSON document printed by graph.
type GraphOutput struct {
	Models   []GraphNode `json:"models"`
	Sources  []string    `json:"sources"`
	Cycles   [][]string  `json:"cycles"`
	Affected []string    `json:"cycle_affected"`
}

// NewGraphCommand creates the graph command.
func NewGraphCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph <dbt-project>",
		Short: "Show the model dependency graph",
		Long: `Display the ref() dependency graph of a dbt project.

Models are grouped by level: level 0 models depend on no other model. Reference
cycles and every model downstream of one are listed separately, because the
converter skips them.`,
		Example: `  # Show the graph
  dbt2sqlx graph ./jaffle_shop

  # Output as JSON
  dbt2sqlx graph ./jaffle_shop --output json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGraph(cmd, args[0])
		},
	}

	return cmd
}

func runGraph(cmd *cobra.Command, dir string) error {
	cc := NewCommandContext(cmd)
	r := cc.Renderer

	proj, err := cc.Scan(dir)
	if err != nil {
		return err
	}
	table, err := registry.Build(proj.Declarations())
	if err != nil {
		return err
	}

	graph := table.Graph()
	affected := table.AffectedModels()
	var acyclic []string
	for _, m := range table.Models() {
		if !slices.Contains(affected, m.Name) {
			acyclic = append(acyclic, m.Name)
		}
	}
	// Cycle-affected models are removed first, so the remaining graph has levels.
	levels, err := graph.Subgraph(acyclic).GetExecutionLevels()
	if err != nil {
		return fmt.Errorf("failed to get execution levels: %w", err)
	}

	var sources []string
	for _, s := range table.Sources() {
		sources = append(sources, s.Key().String())
	}

	switch r.EffectiveMode() {
	case output.ModeJSON:
		return graphJSON(r, graph, levels, sources, table)
	case output.ModeMarkdown:
		return graphMarkdown(r, graph, levels, sources, table)
	default:
		return graphText(r, graph, levels, sources, table)
	}
}

// graphText outputs the graph in styled text format.
func graphText(r *output.Renderer, graph GraphQuerier, levels [][]string, sources []string, table *registry.Table) error {
	styles := r.Styles()

	r.Header(1, "Dependency Graph")

	for i, level := range levels {
		r.Println(styles.Header2.Render(fmt.Sprintf("Level %d:", i)))
		for _, model := range level {
			r.Printf("  %s\n", styles.ID.Render(model))
			if deps := graph.GetParents(model); len(deps) > 0 {
				r.Printf("    %s %s\n", styles.Muted.Render("depends on:"), strings.Join(deps, ", "))
			}
			if children := graph.GetChildren(model); len(children) > 0 {
				r.Printf("    %s %s\n", styles.Muted.Render("used by:"), strings.Join(children, ", "))
			}
		}
		r.Println("")
	}

	if cycles := table.Cycles(); len(cycles) > 0 {
		r.Println(styles.Error.Render("Reference cycles:"))
		for _, c := range cycles {
			r.Printf("  %s\n", strings.Join(c, " -> "))
		}
		r.Printf("  %s %s\n\n", styles.Muted.Render("skipped:"), strings.Join(table.AffectedModels(), ", "))
	}

	if len(sources) > 0 {
		r.Println(styles.Header2.Render("Sources:"))
		for _, s := range sources {
			r.Printf("  %s\n", s)
		}
		r.Println("")
	}

	r.Println(styles.Muted.Render(fmt.Sprintf("Total: %d models, %d dependencies, %d sources",
		graph.NodeCount(), graph.EdgeCount(), len(sources))))

	return nil
}

// graphMarkdown outputs the graph in markdown format.
func graphMarkdown(r *output.Renderer, graph GraphQuerier, levels [][]string, sources []string, table *registry.Table) error {
	r.Println(output.FormatHeader(1, "Dependency Graph"))
	r.Println("")

	for i, level := range levels {
		r.Println(output.FormatHeader(2, fmt.Sprintf("Level %d", i)))
		for _, model := range level {
			r.Printf("- %s\n", model)
			if deps := graph.GetParents(model); len(deps) > 0 {
				r.Printf("  - depends on: %s\n", strings.Join(deps, ", "))
			}
			if children := graph.GetChildren(model); len(children) > 0 {
				r.Printf("  - used by: %s\n", strings.Join(children, ", "))
			}
		}
		r.Println("")
	}

	if cycles := table.Cycles(); len(cycles) > 0 {
		r.Println(output.FormatHeader(2, "Reference Cycles"))
		for _, c := range cycles {
			r.Printf("- %s\n", strings.Join(c, " -> "))
		}
		r.Println(output.FormatKeyValue("Skipped", strings.Join(table.AffectedModels(), ", ")))
		r.Println("")
	}

	if len(sources) > 0 {
		r.Println(output.FormatHeader(2, "Sources"))
		for _, s := range sources {
			r.Printf("- %s\n", s)
		}
		r.Println("")
	}

	r.Println(output.FormatKeyValue("Total", fmt.Sprintf("%d models, %d dependencies, %d sources",
		graph.NodeCount(), graph.EdgeCount(), len(sources))))

	return nil
}

// graphJSON outputs the graph in JSON format.
func graphJSON(r *output.Renderer, graph *dag.Graph, levels [][]string, sources []string, table *registry.Table) error {
	out := GraphOutput{
		Models:   []GraphNode{},
		Sources:  sources,
		Cycles:   table.Cycles(),
		Affected: table.AffectedModels(),
	}
	if out.Sources == nil {
		out.Sources = []string{}
	}
	if out.Cycles == nil {
		out.Cycles = [][]string{}
	}
	if out.Affected == nil {
		out.Affected = []string{}
	}

	for i, level := range levels {
		for _, model := range level {
			out.Models = append(out.Models, GraphNode{
				Name:       model,
				Level:      i,
				DependsOn:  graph.GetParents(model),
				Dependents: graph.GetChildren(model),
			})
		}
	}
	for _, model := range out.Affected {
		out.Models = append(out.Models, GraphNode{
			Name:       model,
			Level:      -1,
			DependsOn:  graph.GetParents(model),
			Dependents: graph.GetChildren(model),
		})
	}

	return r.JSON(out)
}
