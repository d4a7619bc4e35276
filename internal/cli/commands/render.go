package commands

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/dbt2sqlx/internal/cli/output"
	"github.com/leapstack-labs/dbt2sqlx/internal/functions"
	"github.com/leapstack-labs/dbt2sqlx/internal/registry"
	"github.com/leapstack-labs/dbt2sqlx/internal/translate"
	"github.com/leapstack-labs/dbt2sqlx/pkg/core"
	"github.com/spf13/cobra"
)

// RenderOutput is the JSON document printed by render.
type RenderOutput struct {
	Model       string            `json:"model"`
	File        string            `json:"file"`
	Status      core.FileStatus   `json:"status"`
	SQLX        string            `json:"sqlx,omitempty"`
	Diagnostics []core.Diagnostic `json:"diagnostics"`
}

// NewRenderCommand creates the render command.
func NewRenderCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "render <dbt-project> <model>",
		Short: "Print the SQLX for one model",
		Long: `Convert a single model and print the resulting SQLX with its diagnostics.

Nothing is written. The whole project is still scanned so that ref(),
source() and var() resolve exactly as they would in a full conversion.

Output adapts to environment:
  - Terminal: Plain SQLX followed by diagnostics
  - Piped/Scripted: Markdown with a code block`,
		Example: `  # Render a model
  dbt2sqlx render ./jaffle_shop orders

  # Render as JSON
  dbt2sqlx render ./jaffle_shop orders --output json`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(cmd, args[0], args[1])
		},
	}

	cmd.Flags().Bool("record-rules", false, "Emit an info diagnostic for every rewrite rule that fired")

	return cmd
}

func runRender(cmd *cobra.Command, dir, name string) error {
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
	model, ok := table.Model(name)
	if !ok {
		return fmt.Errorf("model not found: %s", name)
	}

	out := RenderOutput{Model: name, File: model.FilePath}
	if cycle := table.CycleFor(name); cycle != nil {
		out.Status = core.StatusSkipped
		out.Diagnostics = []core.Diagnostic{{
			FilePath: model.FilePath,
			Line:     1,
			Column:   1,
			Kind:     core.KindCycle,
			Severity: core.SeverityFatal,
			Message:  fmt.Sprintf("model %q depends on the reference cycle %s", name, strings.Join(cycle, " -> ")),
		}}
	} else {
		var text string
		for _, f := range proj.Files {
			if f.Model == name {
				text = f.Text
				break
			}
		}
		tr := translate.New(table, functions.Default(), translate.Options{RecordRules: cc.Cfg.RecordRules})
		res := tr.TranslateSource(model, model.FilePath, text)
		out.Status = res.Status
		out.Diagnostics = res.Diagnostics
		if res.Status.Emitted() {
			out.SQLX = res.Text
		}
	}

	switch r.EffectiveMode() {
	case output.ModeJSON:
		if out.Diagnostics == nil {
			out.Diagnostics = []core.Diagnostic{}
		}
		return r.JSON(out)
	case output.ModeMarkdown:
		r.Println(output.FormatHeader(1, "SQLX: "+name))
		r.Println("")
		r.Println(output.FormatKeyValue("Status", string(out.Status)))
		if out.SQLX != "" {
			r.Println("")
			r.Println("```sql")
			r.Println(strings.TrimRight(out.SQLX, "\n"))
			r.Println("```")
		}
		if len(out.Diagnostics) > 0 {
			r.Println("")
			r.Println(output.FormatHeader(2, "Diagnostics"))
			for _, d := range out.Diagnostics {
				r.Printf("- %s\n", d.String())
			}
		}
		return nil
	}

	// Text mode: the SQLX goes to stdout, diagnostics to stderr, so the
	// output can be redirected into a file.
	if out.SQLX != "" {
		r.Println(strings.TrimRight(out.SQLX, "\n"))
	}
	for _, d := range out.Diagnostics {
		_, _ = fmt.Fprintln(r.ErrWriter(), r.Styles().Status(d.Severity.String()).Render(d.String()))
	}
	return nil
}
