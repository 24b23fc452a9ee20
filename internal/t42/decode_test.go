package t42

import (
	"bytes"
	"testing"
)

func fullConfLine(raw [PacketSize]byte, frame int64) *Line {
	line := &Line{Data: raw, Frame: frame}
	for i := range line.Confidence {
		line.Confidence[i] = 1
	}
	return line
}

func TestDecodeHeader(t *testing.T) {
	t.Parallel()
	raw := EncodeHeader(1, 0x00, 0x0000, Control{}, []byte("HELLO"))
	p := Decode(fullConfLine(raw, 7))

	if p.Kind != KindHeader {
		t.Fatalf("Kind = %v, want header", p.Kind)
	}
	if p.Magazine != 1 || p.Row != 0 {
		t.Errorf("address = mag %d row %d, want mag 1 row 0", p.Magazine, p.Row)
	}
	if p.Errors != 0 {
		t.Errorf("Errors = %d, want 0", p.Errors)
	}
	if p.Header.Page != 0x00 || p.Header.Subpage != 0 {
		t.Errorf("page %#x subpage %#x, want 0x00/0x0000", p.Header.Page, p.Header.Subpage)
	}
	if p.Header.PageNumber(p.Magazine) != 0x100 {
		t.Errorf("PageNumber = %#x, want 0x100", p.Header.PageNumber(p.Magazine))
	}
	want := append([]byte("HELLO"), bytes.Repeat([]byte{' '}, 27)...)
	if !bytes.Equal(p.Header.Caption[:], want) {
		t.Errorf("Caption = %q", p.Header.Caption)
	}
	if p.Frame != 7 {
		t.Errorf("Frame = %d, want 7", p.Frame)
	}
}

func TestDecodeHeaderControlBits(t *testing.T) {
	t.Parallel()
	ctrl := Control{
		Erase:       true,
		Newsflash:   true,
		Subtitle:    true,
		Suppress:    true,
		Update:      true,
		Interrupted: true,
		Inhibit:     true,
		Serial:      true,
		CharSet:     5,
	}
	raw := EncodeHeader(3, 0x2A, 0x3F7F, ctrl, nil)
	p := Decode(fullConfLine(raw, 0))

	if p.Kind != KindHeader {
		t.Fatalf("Kind = %v, want header", p.Kind)
	}
	if p.Header.Subpage != 0x3F7F {
		t.Errorf("Subpage = %#x, want 0x3F7F", p.Header.Subpage)
	}
	if p.Header.Control != ctrl {
		t.Errorf("Control = %+v, want %+v", p.Header.Control, ctrl)
	}
}

func TestDecodeHeaderMagazineEight(t *testing.T) {
	t.Parallel()
	// Magazine 8 transmits as address bits 000.
	raw := EncodeHeader(8, 0x10, 0, Control{}, nil)
	p := Decode(fullConfLine(raw, 0))
	if p.Magazine != 8 {
		t.Errorf("Magazine = %d, want 8", p.Magazine)
	}
	if p.Header.PageNumber(p.Magazine) != 0x810 {
		t.Errorf("PageNumber = %#x, want 0x810", p.Header.PageNumber(p.Magazine))
	}
}

func TestDecodeDisplayRow(t *testing.T) {
	t.Parallel()
	raw := EncodeDisplay(2, 11, []byte("TELETEXT"))
	p := Decode(fullConfLine(raw, 3))

	if p.Kind != KindDisplay {
		t.Fatalf("Kind = %v, want display", p.Kind)
	}
	if p.Magazine != 2 || p.Row != 11 {
		t.Errorf("address = mag %d row %d, want mag 2 row 11", p.Magazine, p.Row)
	}
	if string(p.Display.Text[:8]) != "TELETEXT" {
		t.Errorf("Text = %q", p.Display.Text[:8])
	}
	for i, c := range p.Confidence {
		if c != 1 {
			t.Fatalf("confidence[%d] = %f, want 1 (no parity failures)", i, c)
		}
	}
}

func TestDecodeParityFailureKeepsByte(t *testing.T) {
	t.Parallel()
	raw := EncodeDisplay(1, 1, []byte("ABC"))
	raw[2+1] ^= 0x80 // invert parity bit of 'B'
	p := Decode(fullConfLine(raw, 0))

	if p.Display.Text[1] != 'B' {
		t.Errorf("Text[1] = %q, want 'B'", p.Display.Text[1])
	}
	if p.Confidence[3] != 0 {
		t.Errorf("confidence = %f, want 0 after parity failure", p.Confidence[3])
	}
	if p.Confidence[2] != 1 {
		t.Errorf("neighbour confidence = %f, want 1", p.Confidence[2])
	}
}

func TestDecodeAddressSingleBitError(t *testing.T) {
	t.Parallel()
	raw := EncodeDisplay(4, 9, nil)
	raw[0] ^= 0x10
	p := Decode(fullConfLine(raw, 0))

	if p.Magazine != 4 || p.Row != 9 {
		t.Errorf("address = mag %d row %d, want mag 4 row 9", p.Magazine, p.Row)
	}
	if p.Errors != 1 {
		t.Errorf("Errors = %d, want 1", p.Errors)
	}
}

func TestDecodeErasedAddressIsUnknown(t *testing.T) {
	t.Parallel()
	raw := EncodeDisplay(4, 9, nil)
	raw[0] ^= 0x11 // two bit errors: uncorrectable
	p := Decode(fullConfLine(raw, 0))

	if p.Kind != KindUnknown {
		t.Errorf("Kind = %v, want unknown", p.Kind)
	}
	if p.Raw != raw {
		t.Error("raw bytes not preserved")
	}
}

func TestDecodeErasedPageNumberIsUnknown(t *testing.T) {
	t.Parallel()
	raw := EncodeHeader(1, 0x23, 0, Control{}, nil)
	raw[2] ^= 0x21 // erase the page units nibble
	p := Decode(fullConfLine(raw, 0))

	if p.Kind != KindUnknown {
		t.Errorf("Kind = %v, want unknown", p.Kind)
	}
}

func TestDecodeFastext(t *testing.T) {
	t.Parallel()
	var raw [PacketSize]byte
	raw[0], raw[1] = EncodeAddress(1, 27)
	raw[2] = HamEncode(0) // designation 0
	for i := 0; i < 6; i++ {
		off := 3 + i*6
		raw[off] = HamEncode(0x01)   // page units
		raw[off+1] = HamEncode(0x02) // page tens
		raw[off+2] = HamEncode(0)
		raw[off+3] = HamEncode(0x08) // M1: relative magazine bit
		raw[off+4] = HamEncode(0)
		raw[off+5] = HamEncode(0)
	}
	// Two trailing link-control bytes plus CRC are left zero.

	p := Decode(fullConfLine(raw, 0))
	if p.Kind != KindFastext {
		t.Fatalf("Kind = %v, want fastext", p.Kind)
	}
	for i, link := range p.Fastext.Links {
		if link.Page != 0x21 {
			t.Errorf("link %d page = %#x, want 0x21", i, link.Page)
		}
		// Magazine 1 with M1 flipped is magazine 0, displayed as 8.
		if link.Magazine != 8 {
			t.Errorf("link %d magazine = %d, want 8", i, link.Magazine)
		}
	}
}

func TestDecodeEnhancementPassthrough(t *testing.T) {
	t.Parallel()
	var raw [PacketSize]byte
	raw[0], raw[1] = EncodeAddress(5, 26)
	raw[2] = HamEncode(0x03)
	for i := 3; i < PacketSize; i++ {
		raw[i] = byte(i)
	}
	p := Decode(fullConfLine(raw, 0))

	if p.Kind != KindEnhancement {
		t.Fatalf("Kind = %v, want enhancement", p.Kind)
	}
	if p.Enhancement.Designation != 3 {
		t.Errorf("Designation = %d, want 3", p.Enhancement.Designation)
	}
	if p.Enhancement.Raw[0] != 3 || p.Enhancement.Raw[38] != 41 {
		t.Error("raw enhancement payload not preserved")
	}
}

func TestDecodeBroadcast(t *testing.T) {
	t.Parallel()
	var raw [PacketSize]byte
	raw[0], raw[1] = EncodeAddress(8, 30)
	raw[2] = HamEncode(0) // designation 0
	raw[3] = HamEncode(0x00)
	raw[4] = HamEncode(0x10 >> 4)
	raw[5] = HamEncode(0)
	raw[6] = HamEncode(0x08) // M1 set: initial page on magazine 1
	raw[7] = HamEncode(0)
	raw[8] = HamEncode(0)
	for i := 0; i < 20; i++ {
		raw[22+i] = Parity(' ')
	}
	p := Decode(fullConfLine(raw, 0))

	if p.Kind != KindBroadcast {
		t.Fatalf("Kind = %v, want broadcast", p.Kind)
	}
	if p.Broadcast.InitialPage != 0x110 {
		t.Errorf("InitialPage = %#x, want 0x110", p.Broadcast.InitialPage)
	}
}

func TestDecodeRow31IsUnknown(t *testing.T) {
	t.Parallel()
	var raw [PacketSize]byte
	raw[0], raw[1] = EncodeAddress(1, 31)
	p := Decode(fullConfLine(raw, 0))
	if p.Kind != KindUnknown {
		t.Errorf("Kind = %v, want unknown for independent data lines", p.Kind)
	}
	if p.Row != 31 {
		t.Errorf("Row = %d, want 31", p.Row)
	}
}
