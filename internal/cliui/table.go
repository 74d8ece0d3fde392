package cliui

import (
	"io"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Column describes one table column. MaxWidth of 0 means unbounded;
// AlignRight pads on the left, for id columns.
type Column struct {
	Name       string
	MaxWidth   int
	AlignRight bool
}

var ansiSeq = regexp.MustCompile(`\x1b\[[0-9;]*[A-Za-z]`)

func stripANSI(s string) string { return ansiSeq.ReplaceAllString(s, "") }

// visibleRuneLen is the printed width of a cell, ignoring color codes.
func visibleRuneLen(s string) int { return utf8.RuneCountInString(stripANSI(s)) }

// RenderTable writes a plain two-space-separated table with a dashed
// header rule. Cells wider than the column are truncated with an ellipsis;
// color codes do not count toward widths.
func RenderTable(w io.Writer, cols []Column, rows [][]string) {
	if len(cols) == 0 {
		return
	}

	widths := make([]int, len(cols))
	for i, c := range cols {
		widths[i] = utf8.RuneCountInString(c.Name)
	}
	for _, row := range rows {
		for i := range cols {
			if i >= len(row) {
				continue
			}
			if n := visibleRuneLen(row[i]); n > widths[i] {
				widths[i] = n
			}
		}
	}
	for i, c := range cols {
		if c.MaxWidth > 0 && widths[i] > c.MaxWidth {
			widths[i] = c.MaxWidth
		}
	}

	var b strings.Builder
	for i, c := range cols {
		writeCell(&b, c.Name, widths[i], false, i == len(cols)-1)
	}
	b.WriteByte('\n')
	for i := range cols {
		writeCell(&b, strings.Repeat("-", widths[i]), widths[i], false, i == len(cols)-1)
	}
	b.WriteByte('\n')
	for _, row := range rows {
		for i, c := range cols {
			cell := ""
			if i < len(row) {
				cell = row[i]
			}
			if visibleRuneLen(cell) > widths[i] {
				cell = Truncate(stripANSI(cell), widths[i])
			}
			writeCell(&b, cell, widths[i], c.AlignRight, i == len(cols)-1)
		}
		b.WriteByte('\n')
	}
	_, _ = io.WriteString(w, b.String())
}

// writeCell pads s to width. The last left-aligned cell of a line carries
// no trailing padding.
func writeCell(b *strings.Builder, s string, width int, right, last bool) {
	pad := width - visibleRuneLen(s)
	if pad < 0 {
		pad = 0
	}
	if right {
		b.WriteString(strings.Repeat(" ", pad))
		b.WriteString(s)
	} else {
		b.WriteString(s)
		if !last {
			b.WriteString(strings.Repeat(" ", pad))
		}
	}
	if !last {
		b.WriteString("  ")
	}
}

func SprintTable(cols []Column, rows [][]string) string {
	var b strings.Builder
	RenderTable(&b, cols, rows)
	return b.String()
}
