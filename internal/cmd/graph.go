package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/comalice/commando/internal/core"
	"github.com/comalice/commando/internal/primitives"
	"github.com/comalice/commando/internal/production"
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Print the pilot transition table",
	Long: `Print the pilot transition table as Graphviz DOT, or as JSON with --json.

Examples:
  commando graph | dot -Tsvg > pilot.svg
  commando graph --highlight Running`,
	RunE: runGraph,
}

var (
	graphJSON      bool
	graphHighlight string
)

func init() {
	rootCmd.AddCommand(graphCmd)

	graphCmd.Flags().BoolVar(&graphJSON, "json", false, "Print the table entries as JSON")
	graphCmd.Flags().StringVar(&graphHighlight, "highlight", primitives.StateIdle.String(), "State to highlight")
}

func runGraph(cmd *cobra.Command, args []string) error {
	v := &production.DefaultVisualizer{}
	table := core.DefaultTable()

	if graphJSON {
		data, err := v.ExportJSON(table)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}

	var current primitives.State
	if err := current.UnmarshalText([]byte(graphHighlight)); err != nil {
		return fmt.Errorf("invalid --highlight: %w", err)
	}
	fmt.Fprint(cmd.OutOrStdout(), v.ExportDOT(table, current))
	return nil
}
