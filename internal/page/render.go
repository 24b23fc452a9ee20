package page

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/example/teledec/internal/t42"
)

var (
	addrColor = color.New(color.FgCyan, color.Bold)
	dimColor  = color.New(color.Faint)
)

// printable maps a 7-bit teletext byte to something a terminal can
// show: control and attribute codes become spaces.
func printable(b byte) byte {
	if b < 0x20 || b > 0x7E {
		return ' '
	}
	return b
}

// RenderHeader writes a one-line summary of a header packet: the full
// page address followed by the status row text. Used by the -H option
// while deconvolving.
func RenderHeader(w io.Writer, p *t42.Packet) {
	if p.Kind != t42.KindHeader {
		return
	}
	text := make([]byte, len(p.Header.Caption))
	for i, b := range p.Header.Caption {
		text[i] = printable(b)
	}
	fmt.Fprintf(w, "%s %s %s\n",
		addrColor.Sprintf("P%d%02X", p.Magazine, p.Header.Page),
		dimColor.Sprintf("%04X", p.Header.Subpage),
		text,
	)
}

// Render writes the full page: header line then the 24 display rows.
// Absent rows render as blank lines, marked distinctly from
// transmitted blanks when marks is set.
func (p *Page) Render(w io.Writer, marks bool) {
	caption := make([]byte, len(p.Caption))
	for i, b := range p.Caption {
		caption[i] = printable(b)
	}
	fmt.Fprintf(w, "%s %s\n", addrColor.Sprintf("P%d%02X", p.Magazine, p.Number), caption)

	for r := 1; r <= 24; r++ {
		row := p.Rows[r]
		if row == nil {
			if marks {
				dimColor.Fprintln(w, "~")
			} else {
				fmt.Fprintln(w)
			}
			continue
		}
		line := make([]byte, len(row.Cells))
		for i, b := range row.Cells {
			line[i] = printable(b)
		}
		fmt.Fprintf(w, "%s\n", line)
	}
}
