package cmd

import (
	"io"
	"sort"

	"github.com/fvbommel/sortorder"
	"github.com/olekukonko/tablewriter"
)

// RenderTable writes rows as a plain left-aligned table. Rows are sorted
// naturally on their first column so dated version ids order sensibly.
func RenderTable(writer io.Writer, header []string, rows [][]string) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i][0] == rows[j][0] && len(rows[i]) > 1 {
			return sortorder.NaturalLess(rows[i][1], rows[j][1])
		}

		return sortorder.NaturalLess(rows[i][0], rows[j][0])
	})

	table := tablewriter.NewWriter(writer)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeader(header)
	table.AppendBulk(rows)
	table.Render()
}
