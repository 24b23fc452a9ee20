package t42

// Decode classifies a framed line into a typed Packet. Signal-quality
// problems never fail the decode: corrected and uncorrectable Hamming
// errors are tallied in Errors, parity failures zero the affected byte's
// confidence, and payloads that cannot be trusted fall back to
// KindUnknown with the raw bytes intact.
func Decode(line *Line) *Packet {
	p := &Packet{
		Raw:        line.Data,
		Signal:     line.Confidence,
		Confidence: line.Confidence,
		Frame:      line.Frame,
	}

	n0, e0 := HamDecode(line.Data[0])
	n1, e1 := HamDecode(line.Data[1])
	p.Errors += e0 + e1
	if n0 == HamErased || n1 == HamErased {
		// Without a trustworthy address the packet cannot be routed.
		p.Kind = KindUnknown
		return p
	}

	p.Magazine = int(n0 & 0x07)
	if p.Magazine == 0 {
		p.Magazine = 8
	}
	p.Row = int(n0>>3) | int(n1)<<1

	switch {
	case p.Row == 0:
		p.decodeHeader()
	case p.Row <= 24:
		p.decodeDisplay()
	case p.Row == 27:
		p.decodeFastext()
	case p.Row == 30:
		p.decodeBroadcast()
	case p.Row <= 29:
		p.decodeEnhancement()
	default:
		p.Kind = KindUnknown
	}
	return p
}

// DecodeBytes classifies a raw 42-byte record read from a .t42 stream,
// where no per-byte confidence survives; every byte starts at full
// confidence and parity checking lowers it from there.
func DecodeBytes(raw []byte, frame int64) *Packet {
	var line Line
	copy(line.Data[:], raw)
	for i := range line.Confidence {
		line.Confidence[i] = 1
	}
	line.Frame = frame
	return Decode(&line)
}

func (p *Packet) hamAt(i int) byte {
	v, e := HamDecode(p.Raw[i])
	p.Errors += e
	return v
}

func (p *Packet) decodeHeader() {
	units := p.hamAt(2)
	tens := p.hamAt(3)
	if units == HamErased || tens == HamErased {
		// The page number is the whole point of a header; an erased
		// nibble means we cannot say which page this opens.
		p.Kind = KindUnknown
		return
	}

	s1 := p.hamAt(4)
	s2 := p.hamAt(5)
	s3 := p.hamAt(6)
	s4 := p.hamAt(7)
	c7 := p.hamAt(8)
	c11 := p.hamAt(9)

	h := &Header{Page: tens<<4 | units}
	h.Subpage = subcode(s1, s2, s3, s4)
	h.Control = Control{
		Erase:       s2 != HamErased && s2&0x08 != 0,
		Newsflash:   s4 != HamErased && s4&0x04 != 0,
		Subtitle:    s4 != HamErased && s4&0x08 != 0,
		Suppress:    c7 != HamErased && c7&0x01 != 0,
		Update:      c7 != HamErased && c7&0x02 != 0,
		Interrupted: c7 != HamErased && c7&0x04 != 0,
		Inhibit:     c7 != HamErased && c7&0x08 != 0,
		Serial:      c11 != HamErased && c11&0x01 != 0,
	}
	if c11 != HamErased {
		h.Control.CharSet = c11 >> 1
	}

	for i := 0; i < 32; i++ {
		v, ok := CheckParity(p.Raw[10+i])
		h.Caption[i] = v
		if !ok {
			p.Confidence[10+i] = 0
		}
	}

	p.Kind = KindHeader
	p.Header = h
}

// subcode assembles the 13-bit subpage number from its four nibbles,
// masking off the interleaved control bits. Erased nibbles contribute
// all-ones so partially erased subcodes stay distinguishable from 0.
func subcode(s1, s2, s3, s4 byte) uint16 {
	n := func(v, mask byte) uint16 {
		if v == HamErased {
			return uint16(mask)
		}
		return uint16(v & mask)
	}
	return n(s1, 0x0F) | n(s2, 0x07)<<4 | n(s3, 0x0F)<<8 | n(s4, 0x03)<<12
}

func (p *Packet) decodeDisplay() {
	d := &Display{}
	for i := 0; i < 40; i++ {
		v, ok := CheckParity(p.Raw[2+i])
		d.Text[i] = v
		if !ok {
			p.Confidence[2+i] = 0
		}
	}
	p.Kind = KindDisplay
	p.Display = d
}

func (p *Packet) decodeEnhancement() {
	dc := p.hamAt(2)
	if dc == HamErased {
		p.Kind = KindUnknown
		return
	}
	e := &Enhancement{Designation: dc}
	copy(e.Raw[:], p.Raw[3:])
	p.Kind = KindEnhancement
	p.Enhancement = e
}

func (p *Packet) decodeFastext() {
	dc := p.hamAt(2)
	if dc == HamErased {
		p.Kind = KindUnknown
		return
	}
	if dc != 0 {
		// Designations past 0 carry editorial linking we do not model.
		p.decodeEnhancementAt(dc)
		return
	}

	f := &Fastext{}
	for i := 0; i < 6; i++ {
		off := 3 + i*6
		units := p.hamAt(off)
		tens := p.hamAt(off + 1)
		s1 := p.hamAt(off + 2)
		s2 := p.hamAt(off + 3)
		s3 := p.hamAt(off + 4)
		s4 := p.hamAt(off + 5)

		link := FastextLink{Subpage: subcode(s1, s2, s3, s4) & 0x3F7F}
		if units != HamErased && tens != HamErased {
			link.Page = tens<<4 | units
		} else {
			link.Page = 0xFF
		}

		// Link magazine bits are relative to the packet's own magazine.
		rel := 0
		if s2 != HamErased && s2&0x08 != 0 {
			rel |= 1
		}
		if s4 != HamErased && s4&0x04 != 0 {
			rel |= 2
		}
		if s4 != HamErased && s4&0x08 != 0 {
			rel |= 4
		}
		link.Magazine = (p.Magazine & 0x07) ^ rel
		if link.Magazine == 0 {
			link.Magazine = 8
		}
		f.Links[i] = link
	}
	p.Kind = KindFastext
	p.Fastext = f
}

func (p *Packet) decodeEnhancementAt(dc byte) {
	e := &Enhancement{Designation: dc}
	copy(e.Raw[:], p.Raw[3:])
	p.Kind = KindEnhancement
	p.Enhancement = e
}

func (p *Packet) decodeBroadcast() {
	dc := p.hamAt(2)
	if dc == HamErased {
		p.Kind = KindUnknown
		return
	}

	b := &Broadcast{Designation: dc}

	units := p.hamAt(3)
	tens := p.hamAt(4)
	s2 := p.hamAt(6)
	s4 := p.hamAt(8)
	if units != HamErased && tens != HamErased {
		mag := 0
		if s2 != HamErased && s2&0x08 != 0 {
			mag |= 1
		}
		if s4 != HamErased && s4&0x04 != 0 {
			mag |= 2
		}
		if s4 != HamErased && s4&0x08 != 0 {
			mag |= 4
		}
		if mag == 0 {
			mag = 8
		}
		b.InitialPage = mag<<8 | int(tens)<<4 | int(units)
	}

	for i := 0; i < 20; i++ {
		v, ok := CheckParity(p.Raw[22+i])
		b.Status[i] = v
		if !ok {
			p.Confidence[22+i] = 0
		}
	}

	p.Kind = KindBroadcast
	p.Broadcast = b
}
