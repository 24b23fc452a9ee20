// Package filter consumes a decoded packet stream and either passes it
// through a page predicate or reassembles deduplicated pages by
// confidence-weighted voting (squash). Both modes track the magazine
// serial rule: within one magazine exactly one page is open at a time,
// and a new header closes the previous page.
package filter

import (
	"fmt"

	"github.com/example/teledec/internal/t42"
)

// Sink receives filtered packets. Implementations must not retain the
// packet past the call.
type Sink func(*t42.Packet) error

// Predicate restricts which packets a pass-through filter emits. The
// zero value matches everything.
type Predicate struct {
	// Page is the full page number (e.g. 0x100); negative or zero
	// means no page restriction.
	Page int
	// Magazines and Rows, when non-nil, whitelist specific values.
	Magazines map[int]bool
	Rows      map[int]bool
}

func (pr *Predicate) wantMagazine(m int) bool {
	return pr.Magazines == nil || pr.Magazines[m]
}

func (pr *Predicate) wantRow(r int) bool {
	return pr.Rows == nil || pr.Rows[r]
}

// PassThrough emits every packet whose magazine's currently-open page
// matches the predicate. Header packets update the open page before the
// predicate is evaluated.
type PassThrough struct {
	pred Predicate
	sink Sink
	open [9]int // per-magazine open page number, 0 = none seen yet
}

// NewPassThrough builds a pass-through filter writing to sink.
func NewPassThrough(pred Predicate, sink Sink) *PassThrough {
	return &PassThrough{pred: pred, sink: sink}
}

// Feed routes one packet. Packets with an unrecoverable address are
// forwarded only when no predicate is active, since they cannot be
// attributed to a page.
func (f *PassThrough) Feed(p *t42.Packet) error {
	if p.Row < 0 || p.Row > 31 {
		return fmt.Errorf("filter: frame %d: row %d out of range", p.Frame, p.Row)
	}

	if p.Kind == t42.KindUnknown && p.Magazine == 0 {
		if f.pred.Page <= 0 && f.pred.Magazines == nil && f.pred.Rows == nil {
			return f.sink(p)
		}
		return nil
	}

	if p.Kind == t42.KindHeader {
		f.open[p.Magazine] = p.Header.PageNumber(p.Magazine)
	}

	if !f.pred.wantMagazine(p.Magazine) || !f.pred.wantRow(p.Row) {
		return nil
	}
	if f.pred.Page > 0 && f.open[p.Magazine] != f.pred.Page {
		return nil
	}
	return f.sink(p)
}

// Close implements the stream-end signal. Pass-through holds no state
// worth flushing.
func (f *PassThrough) Close() error { return nil }
