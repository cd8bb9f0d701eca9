package output

import (
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/fatih/color"
)

var ansi = regexp.MustCompile("\x1b\\[[0-9;]*m")

// visibleWidth ignores color escapes, so colored cells line up with plain ones.
func visibleWidth(s string) int {
	return utf8.RuneCountInString(ansi.ReplaceAllString(s, ""))
}

// Table renders aligned columns of video rows. Cells may be colored.
type Table struct {
	out     io.Writer
	columns []string
	rows    [][]string
}

func NewTable(out io.Writer, columns ...string) *Table {
	return &Table{out: out, columns: columns}
}

// AddRow pads or cuts cells to the column count.
func (t *Table) AddRow(cells ...string) {
	row := make([]string, len(t.columns))
	copy(row, cells)
	t.rows = append(t.rows, row)
}

func (t *Table) Len() int {
	return len(t.rows)
}

func (t *Table) Render() error {
	widths := make([]int, len(t.columns))
	for i, c := range t.columns {
		widths[i] = visibleWidth(c)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			if w := visibleWidth(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}

	header := make([]string, len(t.columns))
	for i, c := range t.columns {
		header[i] = color.New(color.Bold).Sprint(strings.ToUpper(c))
	}
	if err := t.line(header, widths); err != nil {
		return err
	}
	for _, row := range t.rows {
		if err := t.line(row, widths); err != nil {
			return err
		}
	}
	return nil
}

func (t *Table) line(cells []string, widths []int) error {
	var b strings.Builder
	for i, cell := range cells {
		b.WriteString(cell)
		if i == len(cells)-1 {
			break
		}
		b.WriteString(strings.Repeat(" ", widths[i]-visibleWidth(cell)+2))
	}
	_, err := fmt.Fprintln(t.out, strings.TrimRight(b.String(), " "))
	return err
}
