// Package t42 implements the teletext packet layer: Hamming 8/4 and odd
// parity codecs, classification of 42-byte lines into typed packets, and
// reading/writing of raw .t42 streams.
package t42

// PacketSize is the length of one teletext packet on the wire: two
// Hamming-coded address bytes plus 40 payload bytes. The clock run-in
// and framing code are stripped before this layer.
const PacketSize = 42

// Line is a framed teletext line as recovered by the deconvolver: 42
// data bytes with a per-byte confidence in [0,1] and the index of the
// source frame it came from.
type Line struct {
	Data       [PacketSize]byte
	Confidence [PacketSize]float64
	Frame      int64
}

// Kind discriminates the decoded payload carried by a Packet.
type Kind int

const (
	// KindUnknown marks packets whose payload could not be classified;
	// the raw bytes are passed through untouched.
	KindUnknown Kind = iota
	// KindHeader is row 0: page address, subcode, and control bits.
	KindHeader
	// KindDisplay is rows 1-24: 40 parity-protected display cells.
	KindDisplay
	// KindEnhancement is rows 25-29: designation-coded page enhancement
	// data, carried raw beyond the designation byte.
	KindEnhancement
	// KindFastext is row 27 designation 0: six colored navigation links.
	KindFastext
	// KindBroadcast is row 30: broadcast service data for the whole
	// multiplex, including the initial teletext page.
	KindBroadcast
)

func (k Kind) String() string {
	switch k {
	case KindHeader:
		return "header"
	case KindDisplay:
		return "display"
	case KindEnhancement:
		return "enhancement"
	case KindFastext:
		return "fastext"
	case KindBroadcast:
		return "broadcast"
	default:
		return "unknown"
	}
}

// Control holds the decoded C4-C14 control bits of a page header.
type Control struct {
	Erase       bool
	Newsflash   bool
	Subtitle    bool
	Suppress    bool
	Update      bool
	Interrupted bool
	Inhibit     bool
	Serial      bool
	CharSet     byte
}

// Header is the payload of a row 0 packet. Page is the two-nibble page
// number within the magazine (0x00-0xFF); Subpage is the 13-bit subcode.
// Caption is the parity-protected status row text (bytes 10-41).
type Header struct {
	Page    byte
	Subpage uint16
	Control Control
	Caption [32]byte
}

// PageNumber returns the full three-nibble page address, e.g. 0x100 for
// magazine 1 page 0x00.
func (h *Header) PageNumber(magazine int) int {
	return magazine<<8 | int(h.Page)
}

// Display is the payload of rows 1-24: 40 seven-bit display cells with
// the parity bit stripped.
type Display struct {
	Text [40]byte
}

// Enhancement is the payload of rows 25-29 (and row 27 designations past
// 0): the Hamming-decoded designation code and the raw remaining bytes.
type Enhancement struct {
	Designation byte
	Raw         [39]byte
}

// FastextLink is one colored navigation link from a row 27 packet.
type FastextLink struct {
	Magazine int
	Page     byte
	Subpage  uint16
}

// Fastext is the payload of row 27 designation 0.
type Fastext struct {
	Links [6]FastextLink
}

// Broadcast is the payload of row 30: the designation code, the initial
// teletext page, and the parity-protected status display text.
type Broadcast struct {
	Designation byte
	InitialPage int
	Status      [20]byte
}

// Packet is a classified teletext packet. Exactly one of the payload
// pointers matching Kind is non-nil. Raw and Confidence carry the
// undecoded line for pass-through and for squash voting downstream.
type Packet struct {
	Magazine int // 1-8
	Row      int // 0-31
	Kind     Kind

	Header      *Header
	Display     *Display
	Enhancement *Enhancement
	Fastext     *Fastext
	Broadcast   *Broadcast

	// Raw is the undecoded line, preserved for pass-through and for
	// squash voting. Signal carries the deconvolver's per-byte
	// confidence untouched; Confidence starts as a copy of Signal and
	// is zeroed where parity checking fails, so it only ever decreases
	// through the decode.
	Raw        [PacketSize]byte
	Signal     [PacketSize]float64
	Confidence [PacketSize]float64
	Errors     int
	Frame      int64
}
