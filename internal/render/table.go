// Package render prints reports, batch results and history as aligned terminal
// tables.
package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/gookit/color"
	"github.com/mattn/go-runewidth"
)

// maxCellWidth caps a column so one long bio does not push the table off screen.
const maxCellWidth = 48

// Printer writes human readable output. Colors are applied only when enabled.
type Printer struct {
	w     io.Writer
	color bool
}

// NewPrinter creates a printer over w.
func NewPrinter(w io.Writer, useColor bool) *Printer {
	return &Printer{w: w, color: useColor}
}

func (p *Printer) paint(style color.Color, s string) string {
	if !p.color {
		return s
	}
	return style.Sprint(s)
}

// Header prints a boxed title.
func (p *Printer) Header(format string, args ...interface{}) {
	title := fmt.Sprintf(format, args...)
	width := runewidth.StringWidth(title) + 4
	fmt.Fprintln(p.w, strings.Repeat("=", width))
	fmt.Fprintf(p.w, "  %s\n", p.paint(color.Bold, title))
	fmt.Fprintln(p.w, strings.Repeat("=", width))
}

// Section prints a section title.
func (p *Printer) Section(title string) {
	fmt.Fprintf(p.w, "[%s]\n", p.paint(color.Cyan, title))
	fmt.Fprintln(p.w, strings.Repeat("-", runewidth.StringWidth(title)+2))
}

// Table prints rows under headers with columns padded to display width.
func (p *Printer) Table(headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = runewidth.StringWidth(h)
	}
	for _, row := range rows {
		for i := range headers {
			if i < len(row) {
				if w := runewidth.StringWidth(cell(row[i])); w > widths[i] {
					widths[i] = w
				}
			}
		}
	}

	p.row(headers, widths, true)
	sep := make([]string, len(widths))
	for i, w := range widths {
		sep[i] = strings.Repeat("-", w)
	}
	fmt.Fprintln(p.w, "  "+strings.Join(sep, "  "))
	for _, row := range rows {
		p.row(row, widths, false)
	}
}

func (p *Printer) row(values []string, widths []int, header bool) {
	parts := make([]string, len(widths))
	for i, w := range widths {
		v := ""
		if i < len(values) {
			v = cell(values[i])
		}
		padded := runewidth.FillRight(v, w)
		if i == len(widths)-1 {
			padded = v
		}
		if header {
			padded = p.paint(color.Bold, padded)
		}
		parts[i] = padded
	}
	fmt.Fprintln(p.w, strings.TrimRight("  "+strings.Join(parts, "  "), " "))
}

// SideBySide prints two blocks of text as columns, padding at least padding
// spaces between them.
func (p *Printer) SideBySide(left, right []string, padding int) {
	leftWidth := 0
	for _, line := range left {
		if w := runewidth.StringWidth(line); w > leftWidth {
			leftWidth = w
		}
	}

	height := len(left)
	if len(right) > height {
		height = len(right)
	}
	for i := 0; i < height; i++ {
		l, r := "", ""
		if i < len(left) {
			l = left[i]
		}
		if i < len(right) {
			r = right[i]
		}
		if r == "" {
			fmt.Fprintln(p.w, l)
			continue
		}
		fmt.Fprintln(p.w, runewidth.FillRight(l, leftWidth+padding)+r)
	}
}

func cell(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return runewidth.Truncate(s, maxCellWidth, "...")
}

// FormatValue renders a canonical field value for display.
func FormatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return "<none>"
	case string:
		if t == "" {
			return `""`
		}
		return t
	case []string:
		return "[" + strings.Join(t, ", ") + "]"
	default:
		return fmt.Sprintf("%v", t)
	}
}
