package filter

import (
	"fmt"
	"sort"

	"github.com/example/teledec/internal/t42"
)

// SquashConfig tunes the deduplicating page reassembler.
type SquashConfig struct {
	// MaxObservations flushes a subpage once this many copies of its
	// header have been merged.
	MaxObservations int
	// QuietFrames flushes a subpage that has received nothing for this
	// many source frames.
	QuietFrames int64
}

// DefaultSquashConfig matches broadcast carousel timing: a page repeats
// every few hundred frames, so 500 quiet frames means it left rotation.
var DefaultSquashConfig = SquashConfig{
	MaxObservations: 32,
	QuietFrames:     500,
}

type subpageKey struct {
	Magazine int
	Page     byte
	Subpage  uint16
}

func (k subpageKey) String() string {
	return fmt.Sprintf("%d%02X:%04X", k.Magazine, k.Page, k.Subpage)
}

// cell accumulates confidence-weighted votes for one byte position.
type cell struct {
	weights [256]float32
	last    byte // most recently voted value, for tie-breaking
}

func (c *cell) vote(value byte, weight float64) {
	c.weights[value] += float32(weight)
	c.last = value
}

// report returns the winning byte and its margin over the runner-up.
// Among tied leaders on a parity-protected byte, a parity-valid
// candidate beats a parity-failed one. The remaining tie goes to the
// most recently voted value when it is one of the leaders; otherwise
// the lowest byte value among them wins, since only the last vote is
// remembered.
func (c *cell) report(parityByte bool) (byte, float64) {
	var top float32
	for _, w := range c.weights {
		if w > top {
			top = w
		}
	}
	if top == 0 {
		return c.last, 0
	}

	// Collect the tied leaders. If any of them pass parity (on a
	// parity-protected byte), only those stay in the running; the most
	// recent vote wins if it survived, else the lowest surviving value.
	var leaders, valid []byte
	for v := 0; v < 256; v++ {
		if c.weights[v] != top {
			continue
		}
		leaders = append(leaders, byte(v))
		if !parityByte {
			continue
		}
		if _, ok := t42.CheckParity(byte(v)); ok {
			valid = append(valid, byte(v))
		}
	}
	pool := leaders
	if parityByte && len(valid) > 0 {
		pool = valid
	}
	best := pool[0]
	for _, v := range pool {
		if v == c.last {
			best = v
		}
	}

	var runner float32
	for v := 0; v < 256; v++ {
		if byte(v) != best && c.weights[v] > runner {
			runner = c.weights[v]
		}
	}

	margin := float64(top - runner)
	if margin > 1 {
		margin = 1
	}
	return best, margin
}

type rowVote struct {
	cells [t42.PacketSize]cell
}

type pageAcc struct {
	key          subpageKey
	observations int
	lastSeen     int64
	rows         map[int]*rowVote
}

// Squash reassembles pages by voting across repeated transmissions.
// One instance consumes a whole stream; Close flushes everything still
// live.
type Squash struct {
	cfg   SquashConfig
	sink  Sink
	pages map[subpageKey]*pageAcc
	open  [9]*subpageKey
}

// NewSquash builds a squash filter writing synthesized packets to sink.
func NewSquash(cfg SquashConfig, sink Sink) *Squash {
	if cfg.MaxObservations <= 0 {
		cfg.MaxObservations = DefaultSquashConfig.MaxObservations
	}
	if cfg.QuietFrames <= 0 {
		cfg.QuietFrames = DefaultSquashConfig.QuietFrames
	}
	return &Squash{
		cfg:   cfg,
		sink:  sink,
		pages: make(map[subpageKey]*pageAcc),
	}
}

// Feed merges one packet into its subpage's accumulated votes.
func (s *Squash) Feed(p *t42.Packet) error {
	if p.Row < 0 || p.Row > 31 {
		return fmt.Errorf("filter: frame %d: row %d out of range", p.Frame, p.Row)
	}

	if p.Kind == t42.KindHeader {
		key := subpageKey{Magazine: p.Magazine, Page: p.Header.Page, Subpage: p.Header.Subpage}
		// The magazine serial rule: this header ends whatever page was
		// previously open on the magazine. Its votes stay live until a
		// flush trigger fires.
		k := key
		s.open[p.Magazine] = &k

		acc := s.acc(key)
		acc.observations++
		acc.lastSeen = p.Frame
		s.voteRow(acc, p)

		if acc.observations >= s.cfg.MaxObservations {
			if err := s.flush(acc); err != nil {
				return err
			}
		}
		return s.reapQuiet(p.Frame)
	}

	if p.Magazine >= 1 && p.Magazine <= 8 {
		if key := s.open[p.Magazine]; key != nil {
			acc := s.acc(*key)
			acc.lastSeen = p.Frame
			s.voteRow(acc, p)
		}
	}
	return s.reapQuiet(p.Frame)
}

// Close flushes every live subpage, in address order.
func (s *Squash) Close() error {
	keys := make([]subpageKey, 0, len(s.pages))
	for k := range s.pages {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.Magazine != b.Magazine {
			return a.Magazine < b.Magazine
		}
		if a.Page != b.Page {
			return a.Page < b.Page
		}
		return a.Subpage < b.Subpage
	})
	for _, k := range keys {
		if err := s.flush(s.pages[k]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Squash) acc(key subpageKey) *pageAcc {
	acc, ok := s.pages[key]
	if !ok {
		acc = &pageAcc{key: key, rows: make(map[int]*rowVote)}
		s.pages[key] = acc
	}
	return acc
}

func (s *Squash) voteRow(acc *pageAcc, p *t42.Packet) {
	rv, ok := acc.rows[p.Row]
	if !ok {
		rv = &rowVote{}
		acc.rows[p.Row] = rv
	}
	for i := 0; i < t42.PacketSize; i++ {
		w := p.Confidence[i]
		if w == 0 && p.Signal[i] > 0 {
			// Parity-failed bytes stay in the vote at a discount.
			w = p.Signal[i] * 0.25
		}
		if w > 0 {
			rv.cells[i].vote(p.Raw[i], w)
		}
	}
}

func (s *Squash) reapQuiet(frame int64) error {
	for _, acc := range s.pages {
		if frame-acc.lastSeen >= s.cfg.QuietFrames {
			if err := s.flush(acc); err != nil {
				return err
			}
		}
	}
	return nil
}

// flush synthesizes one packet per voted row and forgets the subpage.
func (s *Squash) flush(acc *pageAcc) error {
	rows := make([]int, 0, len(acc.rows))
	for r := range acc.rows {
		rows = append(rows, r)
	}
	sort.Ints(rows)

	for _, r := range rows {
		if err := s.emitRow(acc, r); err != nil {
			return err
		}
	}

	delete(s.pages, acc.key)
	if open := s.open[acc.key.Magazine]; open != nil && *open == acc.key {
		s.open[acc.key.Magazine] = nil
	}
	return nil
}

func (s *Squash) emitRow(acc *pageAcc, row int) error {
	rv := acc.rows[row]
	var raw [t42.PacketSize]byte
	var margins [t42.PacketSize]float64
	for i := range rv.cells {
		raw[i], margins[i] = rv.cells[i].report(isParityByte(row, i))
	}

	// The address bytes are implied by the key, not by the noisiest
	// copy that happened to win a vote.
	raw[0], raw[1] = t42.EncodeAddress(acc.key.Magazine, row)
	margins[0], margins[1] = 1, 1

	p := t42.DecodeBytes(raw[:], acc.lastSeen)
	p.Signal = margins
	for i := range margins {
		if p.Confidence[i] > 0 {
			p.Confidence[i] = margins[i]
		}
	}
	return s.sink(p)
}

// isParityByte reports whether byte position i of the given row is
// 7-bit odd parity text on the wire.
func isParityByte(row, i int) bool {
	switch {
	case row == 0:
		return i >= 10
	case row >= 1 && row <= 24:
		return i >= 2
	case row == 30:
		return i >= 22
	default:
		return false
	}
}
