package t42

import "testing"

func FuzzDecodeBytes(f *testing.F) {
	// Seed: clean page header for magazine 1 page 0x00.
	hdr := EncodeHeader(1, 0x00, 0, Control{}, []byte("SEED"))
	f.Add(hdr[:])

	// Seed: display row with text.
	row := EncodeDisplay(2, 5, []byte("FUZZING"))
	f.Add(row[:])

	// Seed: fastext packet.
	var ft [PacketSize]byte
	ft[0], ft[1] = EncodeAddress(3, 27)
	ft[2] = HamEncode(0)
	f.Add(ft[:])

	f.Fuzz(func(t *testing.T, data []byte) {
		if len(data) != PacketSize {
			return
		}
		p := DecodeBytes(data, 0) // must not panic
		if p.Kind != KindUnknown {
			if p.Magazine < 1 || p.Magazine > 8 {
				t.Fatalf("magazine %d out of range", p.Magazine)
			}
			if p.Row < 0 || p.Row > 31 {
				t.Fatalf("row %d out of range", p.Row)
			}
		}
	})
}
