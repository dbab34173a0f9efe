// Package pdftable turns the positioned text of a PDF into rows of cells.
//
// PDF reports carry no table structure, only strings drawn at
// coordinates. Strings sharing a baseline form a row, and within a row a
// horizontal gap wider than a threshold starts a new cell.
package pdftable

import (
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

// DefaultGap is the horizontal distance, in points, that separates cells.
const DefaultGap = 8.0

// approximate advance of one glyph; the row reader does not report widths
const glyphWidth = 4.5

// Fragment is one string drawn on a page.
type Fragment struct {
	X, Y float64
	S    string
}

// Row is the cells of one line, left to right.
type Row []string

// Cell returns the trimmed cell i, or "" when the row is shorter.
func (r Row) Cell(i int) string {
	if i < 0 || i >= len(r) {
		return ""
	}
	return strings.TrimSpace(r[i])
}

// Text joins the row's cells with single spaces.
func (r Row) Text() string {
	return strings.Join(r, " ")
}

// Page is the rows of one page, top to bottom. Starts, when set, holds the
// left edge of every cell of the row at the same index.
type Page struct {
	Number int
	Rows   []Row
	Starts [][]float64
}

// StartsOf returns the cell edges of row i, or nil when unknown.
func (p Page) StartsOf(i int) []float64 {
	if i < 0 || i >= len(p.Starts) || len(p.Starts[i]) != len(p.Rows[i]) {
		return nil
	}
	return p.Starts[i]
}

// Table is a run of consecutive rows with the same number of cells.
type Table struct {
	Columns int
	Rows    []Row
}

// Open extracts the rows of every page of the PDF at path.
func Open(path string, gap float64) ([]Page, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf %s: %w", path, err)
	}
	defer f.Close()
	return read(r, gap)
}

// Read extracts the rows of every page of a PDF held in ra.
func Read(ra io.ReaderAt, size int64, gap float64) ([]Page, error) {
	r, err := pdf.NewReader(ra, size)
	if err != nil {
		return nil, fmt.Errorf("failed to read pdf: %w", err)
	}
	return read(r, gap)
}

func read(r *pdf.Reader, gap float64) ([]Page, error) {
	var pages []Page
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		rows, err := p.GetTextByRow()
		if err != nil {
			return nil, fmt.Errorf("failed to extract text of page %d: %w", i, err)
		}
		var frags []Fragment
		for _, row := range rows {
			for _, t := range row.Content {
				frags = append(frags, Fragment{X: t.X, Y: float64(row.Position), S: t.S})
			}
		}
		rows, starts := Layout(frags, gap)
		pages = append(pages, Page{Number: i, Rows: rows, Starts: starts})
	}
	return pages, nil
}

// Group arranges fragments into rows, top of the page first.
func Group(frags []Fragment, gap float64) []Row {
	rows, _ := Layout(frags, gap)
	return rows
}

// Layout is Group that also reports the left edge of every cell.
func Layout(frags []Fragment, gap float64) ([]Row, [][]float64) {
	if gap <= 0 {
		gap = DefaultGap
	}
	byLine := make(map[int64][]Fragment)
	var lines []int64
	for _, f := range frags {
		if strings.TrimSpace(f.S) == "" {
			continue
		}
		y := int64(f.Y)
		if _, ok := byLine[y]; !ok {
			lines = append(lines, y)
		}
		byLine[y] = append(byLine[y], f)
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i] > lines[j] })

	rows := make([]Row, 0, len(lines))
	starts := make([][]float64, 0, len(lines))
	for _, y := range lines {
		line := byLine[y]
		sort.SliceStable(line, func(i, j int) bool { return line[i].X < line[j].X })
		row, xs := cells(line, gap)
		rows = append(rows, row)
		starts = append(starts, xs)
	}
	return rows, starts
}

func cells(line []Fragment, gap float64) (Row, []float64) {
	var row Row
	var xs []float64
	var cur strings.Builder
	end := 0.0
	for i, f := range line {
		if i > 0 && f.X-end > gap {
			row = append(row, strings.TrimSpace(cur.String()))
			cur.Reset()
		}
		if cur.Len() == 0 {
			xs = append(xs, f.X)
		}
		cur.WriteString(f.S)
		end = f.X + glyphWidth*float64(utf8.RuneCountInString(f.S))
	}
	if cur.Len() > 0 {
		row = append(row, strings.TrimSpace(cur.String()))
	}
	return row, xs
}

// Align places the cells of a short row under the nearest of anchors, the
// cell edges of a complete row, leaving blank columns empty. It fails when
// two cells land in the same column.
func Align(row Row, starts, anchors []float64) (Row, bool) {
	if len(starts) != len(row) || len(anchors) < len(row) {
		return nil, false
	}
	out := make(Row, len(anchors))
	last := -1
	for i, x := range starts {
		col := nearest(x, anchors)
		if col <= last {
			return nil, false
		}
		out[col] = row[i]
		last = col
	}
	return out, true
}

func nearest(x float64, anchors []float64) int {
	best := 0
	for i, a := range anchors {
		if math.Abs(a-x) < math.Abs(anchors[best]-x) {
			best = i
		}
	}
	return best
}

// Tables splits the rows of all pages into maximal runs of rows that
// share a cell count of at least minColumns.
func Tables(pages []Page, minColumns int) []Table {
	var out []Table
	for _, p := range pages {
		cur := -1
		for _, r := range p.Rows {
			if len(r) < minColumns {
				cur = -1
				continue
			}
			if cur < 0 || out[cur].Columns != len(r) {
				out = append(out, Table{Columns: len(r)})
				cur = len(out) - 1
			}
			out[cur].Rows = append(out[cur].Rows, r)
		}
	}
	return out
}

// Lines returns the text of every row of every page in order.
func Lines(pages []Page) []string {
	var out []string
	for _, p := range pages {
		for _, r := range p.Rows {
			out = append(out, r.Text())
		}
	}
	return out
}

// Exists reports whether path names an existing regular file.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
