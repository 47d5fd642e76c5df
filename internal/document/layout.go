package document

import (
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/seqbench/lab-intake/internal/extract"
)

// Horizontal whitespace wider than this many text-space units splits a
// row into separate cells. Narrower gaps are word spacing within one
// cell.
const cellGapThreshold = 12.0

// A row needs at least this many cells before it can belong to a
// table, and a table needs a header row plus at least one data row.
const (
	minTableColumns = 2
	minTableRows    = 2
)

// readPageRows returns the page text as rows of cells, top to bottom.
// Words on the same baseline are clustered into cells by the
// horizontal gaps between them.
func readPageRows(page pdf.Page) ([][]string, error) {
	rows, err := page.GetTextByRow()
	if err != nil {
		return nil, err
	}

	// Higher position means closer to the top of the page.
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].Position > rows[j].Position
	})

	var cellRows [][]string
	for _, row := range rows {
		cells := clusterCells(row.Content)
		if len(cells) == 0 {
			continue
		}
		cellRows = append(cellRows, cells)
	}
	return cellRows, nil
}

// clusterCells groups the positioned text fragments of one baseline
// into cells, splitting where the horizontal gap exceeds the
// threshold.
func clusterCells(texts []pdf.Text) []string {
	sorted := make([]pdf.Text, len(texts))
	copy(sorted, texts)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].X < sorted[j].X
	})

	var cells []string
	var cell strings.Builder
	var lastEnd float64

	flush := func() {
		if s := strings.TrimSpace(cell.String()); s != "" {
			cells = append(cells, s)
		}
		cell.Reset()
	}

	for i, t := range sorted {
		if t.S == "" {
			continue
		}
		if i > 0 && t.X-lastEnd > cellGapThreshold {
			flush()
		}
		cell.WriteString(t.S)
		lastEnd = t.X + t.W
	}
	flush()
	return cells
}

// detectTables finds runs of consecutive multi-cell rows and packages
// each run as a raw table with the first row as header. tableOffset
// keeps table indices unique across pages.
func detectTables(cellRows [][]string, page, tableOffset int) []extract.RawTable {
	var tables []extract.RawTable
	var block [][]string

	flush := func() {
		if len(block) >= minTableRows {
			tables = append(tables, extract.RawTable{
				Page:   page,
				Index:  tableOffset + len(tables),
				Header: block[0],
				Rows:   block[1:],
			})
		}
		block = nil
	}

	for _, cells := range cellRows {
		if len(cells) >= minTableColumns {
			block = append(block, cells)
			continue
		}
		flush()
	}
	flush()
	return tables
}
