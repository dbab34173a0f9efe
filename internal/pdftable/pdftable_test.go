package pdftable

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroup_RowsAndCells(t *testing.T) {
	frags := []Fragment{
		{X: 200, Y: 700.4, S: "1,234"},
		{X: 10, Y: 700.2, S: "Trinidad"},
		{X: 10 + 8*glyphWidth + 2, Y: 700, S: " and Tobago"},
		{X: 10, Y: 720, S: "Situation as of 5 May 2020"},
		{X: 300, Y: 700, S: "   "},
		{X: 260, Y: 700, S: "10"},
	}

	rows := Group(frags, 0)
	require.Len(t, rows, 2)
	assert.Equal(t, Row{"Situation as of 5 May 2020"}, rows[0])
	assert.Equal(t, Row{"Trinidad and Tobago", "1,234", "10"}, rows[1])
}

func TestRow_Cell(t *testing.T) {
	r := Row{" a ", "b"}
	assert.Equal(t, "a", r.Cell(0))
	assert.Equal(t, "", r.Cell(5))
	assert.Equal(t, "", r.Cell(-1))
	assert.Equal(t, " a  b", r.Text())
}

func TestTables_SplitsOnColumnCount(t *testing.T) {
	pages := []Page{
		{Number: 1, Rows: []Row{
			{"title"},
			{"a", "b", "c"},
			{"d", "e", "f"},
			{"g", "h", "i", "j"},
			{"footer"},
			{"k", "l", "m"},
		}},
		{Number: 2, Rows: []Row{{"n", "o", "p"}}},
	}

	tables := Tables(pages, 3)
	require.Len(t, tables, 4)
	assert.Equal(t, 3, tables[0].Columns)
	assert.Len(t, tables[0].Rows, 2)
	assert.Equal(t, 4, tables[1].Columns)
	assert.Len(t, tables[2].Rows, 1)
	assert.Equal(t, "n", tables[3].Rows[0].Cell(0))
}

func TestExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.pdf")
	assert.False(t, Exists(path))
	require.NoError(t, os.WriteFile(path, []byte("%PDF"), 0o644))
	assert.True(t, Exists(path))
	assert.False(t, Exists(dir))
}

func TestLayout_AlignsShortRows(t *testing.T) {
	frags := []Fragment{
		{X: 10, Y: 700, S: "a"}, {X: 50, Y: 700, S: "b"}, {X: 90, Y: 700, S: "c"}, {X: 130, Y: 700, S: "d"},
		{X: 10, Y: 680, S: "e"}, {X: 92, Y: 680, S: "f"},
	}
	rows, starts := Layout(frags, 0)
	require.Len(t, rows, 2)
	assert.Equal(t, []float64{10, 50, 90, 130}, starts[0])

	page := Page{Rows: rows, Starts: starts}
	row, ok := Align(rows[1], page.StartsOf(1), page.StartsOf(0))
	require.True(t, ok)
	assert.Equal(t, Row{"e", "", "f", ""}, row)

	_, ok = Align(Row{"x", "y"}, []float64{88, 95}, starts[0])
	assert.False(t, ok, "two cells under one column")
	assert.Nil(t, Page{Rows: rows}.StartsOf(0))
}
