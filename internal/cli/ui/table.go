// Package ui holds the small terminal-output helpers the sforce CLI shares
// across commands.
package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

// Table renders aligned columns with a styled header row
type Table struct {
	writer  io.Writer
	headers []string
	rows    [][]string
}

// NewTable creates a table with the given column headers
func NewTable(w io.Writer, headers ...string) *Table {
	return &Table{writer: w, headers: headers}
}

// AddRow appends a row. Rows shorter than the header are padded with empty
// cells.
func (t *Table) AddRow(cells ...string) {
	for len(cells) < len(t.headers) {
		cells = append(cells, "")
	}
	t.rows = append(t.rows, cells[:len(t.headers)])
}

// Render writes the table
func (t *Table) Render() {
	if len(t.headers) == 0 {
		return
	}

	widths := make([]int, len(t.headers))
	for i, header := range t.headers {
		widths[i] = len(header)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	bold := color.New(color.Bold, color.FgCyan)
	for i, header := range t.headers {
		bold.Fprint(t.writer, pad(header, widths[i]))
		if i < len(t.headers)-1 {
			fmt.Fprint(t.writer, "  ")
		}
	}
	fmt.Fprintln(t.writer)

	dim := color.New(color.FgHiBlack)
	for i, width := range widths {
		dim.Fprint(t.writer, strings.Repeat("─", width))
		if i < len(widths)-1 {
			dim.Fprint(t.writer, "  ")
		}
	}
	fmt.Fprintln(t.writer)

	for _, row := range t.rows {
		for i, cell := range row {
			fmt.Fprint(t.writer, pad(cell, widths[i]))
			if i < len(row)-1 {
				fmt.Fprint(t.writer, "  ")
			}
		}
		fmt.Fprintln(t.writer)
	}
}

// Header writes a styled title with an underline
func Header(w io.Writer, title string) {
	bold := color.New(color.Bold, color.FgCyan)
	bold.Fprintln(w, title)
	dim := color.New(color.FgHiBlack)
	dim.Fprintln(w, strings.Repeat("─", len(title)))
}

func pad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}
