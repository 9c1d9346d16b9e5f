package rel

import (
	"io"

	"github.com/olekukonko/tablewriter"
)

// Render writes r as a table of its current rows to w, one column per
// attribute (sorted by name) and one line per row. It is the trace/debug
// presentation spec.md §4.2's trace stream uses to render a relation's
// contents alongside a logged statement, grounded on the teacher's own
// internal/presentation package, which uses tablewriter the same way to
// print rego.ResultSet bindings to a terminal.
func (r Relation) Render(w io.Writer) {
	names := r.header.Names()
	table := tablewriter.NewWriter(w)
	table.SetHeader(names)
	table.SetAutoFormatHeaders(false)
	for _, row := range r.Rows() {
		line := make([]string, len(names))
		for i, n := range names {
			line[i] = row[n].String()
		}
		table.Append(line)
	}
	table.Render()
}
