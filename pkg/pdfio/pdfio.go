// Package pdfio gives the pipeline page-level access to statement PDFs:
// plain text per page and best-effort table cell grids reconstructed from
// text positions. Encrypted documents are opened with the statement
// password.
package pdfio

import (
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Table is one detected table: rows of trimmed cell strings. Rows are not
// guaranteed to be rectangular; consumers must tolerate ragged widths.
type Table [][]string

// Document is an open statement PDF.
type Document interface {
	PageCount() int
	PageText(page int) (string, error)
	PageTables(page int) ([]Table, error)
	Close() error
}

// Opener opens statement documents. Tests substitute fakes.
type Opener interface {
	Open(path, password string) (Document, error)
	IsEncrypted(path string) (bool, error)
}

// FileOpener opens documents from the filesystem.
type FileOpener struct{}

// IsEncrypted reports whether the file needs a password. Documents sealed
// with an empty user password open transparently and count as unencrypted.
func (FileOpener) IsEncrypted(path string) (encrypted bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf library panicked: %v", r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		if isPasswordError(err) {
			return true, nil
		}
		return false, fmt.Errorf("failed to open pdf: %w", err)
	}
	_ = r
	if closeErr := f.Close(); closeErr != nil {
		return false, closeErr
	}
	return false, nil
}

// Open opens the document, decrypting with password when one is given.
func (FileOpener) Open(path, password string) (doc Document, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf library panicked: %v", r)
		}
	}()

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	var reader *pdf.Reader
	if password == "" {
		reader, err = pdf.NewReader(f, st.Size())
	} else {
		delivered := false
		reader, err = pdf.NewReaderEncrypted(f, st.Size(), func() string {
			if delivered {
				return ""
			}
			delivered = true
			return password
		})
	}
	if err != nil {
		f.Close()
		if isPasswordError(err) {
			return nil, fmt.Errorf("wrong or missing password: %w", err)
		}
		return nil, fmt.Errorf("failed to read pdf: %w", err)
	}

	return &fileDocument{f: f, r: reader}, nil
}

func isPasswordError(err error) bool {
	if errors.Is(err, pdf.ErrInvalidPassword) {
		return true
	}
	return err != nil && strings.Contains(err.Error(), "password")
}

type fileDocument struct {
	f *os.File
	r *pdf.Reader
}

func (d *fileDocument) PageCount() int { return d.r.NumPage() }

func (d *fileDocument) Close() error { return d.f.Close() }

// PageText reassembles the page content in reading order: one line per
// visual row, cells separated by single spaces.
func (d *fileDocument) PageText(page int) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf library panicked: %v", r)
		}
	}()

	p := d.r.Page(page)
	if p.V.IsNull() {
		return "", nil
	}

	var lines []string
	for _, row := range visualRows(p.Content().Text) {
		cells := splitCells(row)
		line := strings.TrimSpace(strings.Join(cells, " "))
		if line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n"), nil
}

// PageTables reconstructs the page's table as a cell grid. The grid starts
// at the first row with three or more cells; preamble text above it (bank
// letterhead, account holder address) is dropped.
func (d *fileDocument) PageTables(page int) (tables []Table, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf library panicked: %v", r)
		}
	}()

	p := d.r.Page(page)
	if p.V.IsNull() {
		return nil, nil
	}

	var grid Table
	for _, row := range visualRows(p.Content().Text) {
		grid = append(grid, splitCells(row))
	}
	if table := trimToTable(grid); table != nil {
		tables = append(tables, table)
	}
	return tables, nil
}

type textItem struct {
	x, w, size float64
	s          string
}

// visualRows groups text fragments into rows by rounded Y coordinate,
// sorted top-to-bottom (PDF Y grows upward), each row sorted by X.
func visualRows(texts []pdf.Text) [][]textItem {
	rowMap := make(map[int][]textItem)
	for _, t := range texts {
		if strings.TrimSpace(t.S) == "" {
			continue
		}
		yKey := int(math.Round(t.Y))
		rowMap[yKey] = append(rowMap[yKey], textItem{x: t.X, w: t.W, size: t.FontSize, s: t.S})
	}

	yKeys := make([]int, 0, len(rowMap))
	for y := range rowMap {
		yKeys = append(yKeys, y)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(yKeys)))

	rows := make([][]textItem, 0, len(yKeys))
	for _, y := range yKeys {
		items := rowMap[y]
		sort.Slice(items, func(a, b int) bool { return items[a].x < items[b].x })
		rows = append(rows, items)
	}
	return rows
}

// Horizontal gaps larger than cellGap points split cells; smaller gaps
// above wordGap become spaces inside a cell.
const (
	cellGap = 12.0
	wordGap = 1.5
)

func splitCells(items []textItem) []string {
	var cells []string
	var cur strings.Builder
	var prevEnd float64

	for i, item := range items {
		if i > 0 {
			gap := item.x - prevEnd
			switch {
			case gap > cellGap:
				cells = append(cells, strings.TrimSpace(cur.String()))
				cur.Reset()
			case gap > wordGap:
				cur.WriteByte(' ')
			}
		}
		cur.WriteString(item.s)
		prevEnd = item.x + item.w
	}
	if cur.Len() > 0 {
		cells = append(cells, strings.TrimSpace(cur.String()))
	}
	return cells
}

// trimToTable drops leading rows until one looks tabular (three or more
// cells). Returns nil when the page never becomes tabular.
func trimToTable(grid Table) Table {
	for i, row := range grid {
		if len(row) >= 3 {
			return grid[i:]
		}
	}
	return nil
}
