// Package page assembles decoded packets into displayable teletext
// pages and renders them as text. A page is built row by row under the
// magazine serial rule and completed when the next header arrives on
// its magazine or the stream ends.
package page

import (
	"sort"

	"github.com/example/teledec/internal/t42"
)

// Row is one display row of a page: 40 seven-bit cells with the
// confidence each cell survived decoding with.
type Row struct {
	Cells      [40]byte
	Confidence [40]float64
}

// Page is a reconstructed teletext page. Rows is sparse: a nil entry
// means the row was never transmitted, which is distinct from a row of
// blanks.
type Page struct {
	Magazine  int
	Number    byte
	Subpage   uint16
	Control   t42.Control
	Caption   [32]byte
	Rows      [25]*Row // index 1-24 used; 0 is the header row slot
	LastFrame int64

	packets []*t42.Packet
}

// PageNumber returns the full three-nibble page address.
func (p *Page) PageNumber() int {
	return p.Magazine<<8 | int(p.Number)
}

// Packets returns the packets that built this page, header first, rows
// in row order; packets of the same row keep their arrival order.
func (p *Page) Packets() []*t42.Packet {
	out := append([]*t42.Packet(nil), p.packets...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Row < out[j].Row })
	return out
}

// Builder groups a packet stream into pages, one open page per
// magazine. Feed returns a completed page whenever a new header closes
// the previous one.
type Builder struct {
	open [9]*Page
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Feed adds one packet. The returned page, when non-nil, is complete
// and owned by the caller.
func (b *Builder) Feed(p *t42.Packet) *Page {
	if p.Magazine < 1 || p.Magazine > 8 {
		return nil
	}

	if p.Kind == t42.KindHeader {
		done := b.open[p.Magazine]
		pg := &Page{
			Magazine:  p.Magazine,
			Number:    p.Header.Page,
			Subpage:   p.Header.Subpage,
			Control:   p.Header.Control,
			Caption:   p.Header.Caption,
			LastFrame: p.Frame,
			packets:   []*t42.Packet{p},
		}
		b.open[p.Magazine] = pg
		return done
	}

	pg := b.open[p.Magazine]
	if pg == nil {
		return nil
	}
	pg.LastFrame = p.Frame
	pg.packets = append(pg.packets, p)

	if p.Kind == t42.KindDisplay && p.Row >= 1 && p.Row <= 24 {
		row := &Row{Cells: p.Display.Text}
		copy(row.Confidence[:], p.Confidence[2:])
		pg.Rows[p.Row] = row
	}
	return nil
}

// Close returns every still-open page, in magazine order.
func (b *Builder) Close() []*Page {
	var out []*Page
	for m := 1; m <= 8; m++ {
		if b.open[m] != nil {
			out = append(out, b.open[m])
			b.open[m] = nil
		}
	}
	return out
}
