package commands

import (
	"fmt"
	"slices"
	"strings"

	"github.com/leapstack-labs/dbt2sqlx/internal/cli/output"
	"github.com/leapstack-labs/dbt2sqlx/internal/functions"
	"github.com/spf13/cobra"
)

// FunctionInfo is one rewrite rule in functions JSON output.
type FunctionInfo struct {
	Name        string   `json:"name"`
	Signature   string   `json:"signature"`
	Description string   `json:"description"`
	Namespaces  []string `json:"namespaces"`
}

// NewFunctionsCommand creates the functions command.
func NewFunctionsCommand() *cobra.Command {
	var namespace string

	cmd := &cobra.Command{
		Use:     "functions",
		Aliases: []string{"rules"},
		Short:   "List the helper macros that are rewritten",
		Long: `List the dbt helper macros with a deterministic BigQuery rewrite.

Any other helper call is kept verbatim and reported as an unresolved function.`,
		Example: `  # List all rewrite rules
  dbt2sqlx functions

  # Only helpers callable through dbt_utils
  dbt2sqlx functions --namespace dbt_utils

  # Output as JSON
  dbt2sqlx functions --output json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runFunctions(cmd, namespace)
		},
	}

	cmd.Flags().StringVar(&namespace, "namespace", "", "Only list helpers callable through this namespace (dbt|dbt_utils)")

	return cmd
}

func runFunctions(cmd *cobra.Command, namespace string) error {
	r := NewCommandContext(cmd).Renderer

	var infos []FunctionInfo
	for _, rule := range functions.Default().Rules() {
		if namespace != "" && !slices.Contains(rule.Namespaces, namespace) {
			continue
		}
		infos = append(infos, FunctionInfo{
			Name:        rule.Name,
			Signature:   rule.Signature,
			Description: rule.Description,
			Namespaces:  rule.Namespaces,
		})
	}

	switch r.EffectiveMode() {
	case output.ModeJSON:
		if infos == nil {
			infos = []FunctionInfo{}
		}
		return r.JSON(infos)
	case output.ModeMarkdown:
		r.Println(output.FormatHeader(1, fmt.Sprintf("Rewrite Rules (%d)", len(infos))))
		r.Println("")
		for _, f := range infos {
			r.Printf("- `%s` (%s): %s\n", f.Signature, strings.Join(f.Namespaces, ", "), f.Description)
		}
		return nil
	}

	styles := r.Styles()
	r.Header(1, fmt.Sprintf("Rewrite Rules (%d)", len(infos)))
	for _, f := range infos {
		r.Printf("  %-36s %s  %s\n",
			styles.ID.Render(f.Signature),
			f.Description,
			styles.Muted.Render(strings.Join(f.Namespaces, ", ")),
		)
	}
	return nil
}
