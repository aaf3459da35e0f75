// Package rows reconstructs logical transaction rows from the table cell
// grids a statement PDF exposes. Bank tables wrap long narration cells
// across several visual rows without repeating the date key; merging each
// continuation into the pending data row restores the logical record.
package rows

import (
	"regexp"
	"strings"

	"github.com/FACorreiaa/statement-parser/pkg/pdfio"
)

// headerScanDepth is how many leading rows of a table are inspected for a
// "date" header cell before the table is discarded.
const headerScanDepth = 3

var (
	// Numeric statement dates: 01-11-25, 16/05/2025.
	numericDate = regexp.MustCompile(`^\d{1,2}[-/]\d{1,2}[-/]\d{2,4}$`)
	// Textual day-first dates some banks print: "20 Nov, 2025", "14 Dec 2025".
	textualDate = regexp.MustCompile(`^\d{1,2}\s+[A-Za-z]{3},?\s+\d{4}$`)
)

// IsDateLike reports whether a cell holds a transaction date value.
func IsDateLike(cell string) bool {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return false
	}
	return numericDate.MatchString(cell) || textualDate.MatchString(cell)
}

// DateHeaderColumn returns the index of the first cell whose text contains
// the word "date", or -1 when the row has no such header.
func DateHeaderColumn(row []string) int {
	for i, cell := range row {
		if strings.Contains(strings.ToLower(strings.TrimSpace(cell)), "date") {
			return i
		}
	}
	return -1
}

// Result is the reconstruction outcome. Tables counts the header-bearing
// tables that contributed rows; the orchestrator uses it to tell an empty
// statement apart from an extractor regression.
type Result struct {
	Rows   [][]string
	Tables int
}

// Reconstruct walks every page table and merges wrapped rows into logical
// records. Tables whose first rows carry no "date" header are skipped.
func Reconstruct(doc pdfio.Document) (*Result, error) {
	result := &Result{}
	for page := 1; page <= doc.PageCount(); page++ {
		tables, err := doc.PageTables(page)
		if err != nil {
			return nil, err
		}
		for _, table := range tables {
			if merged, ok := mergeTable(table); ok {
				result.Tables++
				result.Rows = append(result.Rows, merged...)
			}
		}
	}
	return result, nil
}

// mergeTable reduces one cell grid to logical rows. ok is false when the
// grid has no date header and was discarded.
func mergeTable(table pdfio.Table) ([][]string, bool) {
	if len(table) < 2 {
		return nil, false
	}

	dateCol := -1
	headerIdx := 0
	depth := headerScanDepth
	if len(table) < depth {
		depth = len(table)
	}
	for i := 0; i < depth; i++ {
		if col := DateHeaderColumn(table[i]); col >= 0 {
			dateCol = col
			headerIdx = i
			break
		}
	}
	if dateCol < 0 {
		return nil, false
	}

	var merged [][]string
	var pending []string

	for _, row := range table[headerIdx+1:] {
		cleaned := cleanRow(row)
		if cleaned == nil {
			continue
		}

		hasDate := dateCol < len(cleaned) && IsDateLike(cleaned[dateCol])
		switch {
		case hasDate:
			if pending != nil {
				merged = append(merged, pending)
			}
			pending = cleaned
		case pending != nil:
			// Continuation of the pending row's wrapped cells.
			for i, cell := range cleaned {
				if cell == "" || i >= len(pending) {
					continue
				}
				if pending[i] != "" {
					pending[i] += " " + cell
				} else {
					pending[i] = cell
				}
			}
		}
	}
	if pending != nil {
		merged = append(merged, pending)
	}
	return merged, true
}

// cleanRow trims cells and collapses embedded newlines; entirely blank
// rows come back nil.
func cleanRow(row []string) []string {
	cleaned := make([]string, len(row))
	blank := true
	for i, cell := range row {
		cell = strings.TrimSpace(strings.ReplaceAll(cell, "\n", " "))
		cleaned[i] = cell
		if cell != "" {
			blank = false
		}
	}
	if blank {
		return nil
	}
	return cleaned
}
