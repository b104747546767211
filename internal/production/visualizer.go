package production

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/comalice/commando/internal/core"
	"github.com/comalice/commando/internal/primitives"
)

// DefaultVisualizer renders transition tables as Graphviz DOT.
type DefaultVisualizer struct{}

// ExportDOT generates DOT source for table, highlighting current.
func (v *DefaultVisualizer) ExportDOT(table *core.Table, current primitives.State) string {
	var buf bytes.Buffer
	buf.WriteString("digraph Pilot {\n")
	buf.WriteString("  rankdir=LR;\n")
	buf.WriteString("  node [shape=box, fontsize=10, style=rounded];\n")
	buf.WriteString("  edge [fontsize=9];\n")
	fmt.Fprintf(&buf, "  label=\"table %s\";\n", table.Version())
	buf.WriteString("  __start [shape=point];\n")
	fmt.Fprintf(&buf, "  __start -> %q;\n", primitives.StateIdle.String())

	for _, s := range primitives.AllStates() {
		var attrs string
		switch {
		case s == current:
			attrs = " style=\"rounded,filled\" fillcolor=lightgreen"
		case s.Terminal():
			attrs = " shape=doublecircle"
		}
		fmt.Fprintf(&buf, "  %q [label=%q%s];\n", s.String(), s.String(), attrs)
	}

	for _, e := range table.Entries() {
		label := e.Event.String()
		if e.Action != primitives.ActionNoOp {
			label += " / " + e.Action.String()
		}
		fmt.Fprintf(&buf, "  %q -> %q [label=%q];\n", e.From.String(), e.Next.String(), label)
	}

	buf.WriteString("}\n")
	return buf.String()
}

// ExportJSON serializes the table entries to JSON.
func (v *DefaultVisualizer) ExportJSON(table *core.Table) ([]byte, error) {
	return json.MarshalIndent(table.Entries(), "", "  ")
}
