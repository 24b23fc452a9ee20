package vbi

import (
	"math"

	"github.com/example/teledec/internal/config"
)

// Synthesizer renders 42-byte packets back into raw VBI sample frames:
// the inverse of deconvolution, minus the tape. It builds test captures
// with known content.
type Synthesizer struct {
	cfg    *config.LineConfig
	smear  []float64
	offset int
	black  float64
	white  float64
}

// NewSynthesizer builds a renderer for the given line geometry. The
// line starts in the middle of the profile's CRI search window and is
// smeared with the same Gaussian the deconvolver assumes, so synthesized
// captures exercise the full recovery path.
func NewSynthesizer(cfg *config.LineConfig) *Synthesizer {
	return &Synthesizer{
		cfg:    cfg,
		smear:  gaussianKernel(cfg.BitWidth() / 4),
		offset: (cfg.CRIWindowStart + cfg.CRIWindowEnd) / 2,
		black:  40,
		white:  200,
	}
}

// Frame renders one packet as a full line of samples.
func (s *Synthesizer) Frame(packet []byte) []byte {
	bw := s.cfg.BitWidth()

	bits := make([]float64, 0, len(runIn)+len(packet)*8)
	bits = append(bits, runIn[:]...)
	for _, b := range packet {
		for bit := 0; bit < 8; bit++ {
			bits = append(bits, float64(b>>bit&1))
		}
	}

	ideal := make([]float64, s.cfg.SamplesPerLine)
	for i := range ideal {
		pos := float64(i-s.offset) / bw
		if pos >= 0 && int(pos) < len(bits) {
			ideal[i] = bits[int(pos)]
		}
	}

	smeared := make([]float64, len(ideal))
	smooth(smeared, ideal, s.smear)

	out := make([]byte, len(smeared))
	for i, v := range smeared {
		out[i] = byte(math.Round(s.black + v*(s.white-s.black)))
	}
	return out
}

// Blank renders a line with no teletext on it: flat black.
func (s *Synthesizer) Blank() []byte {
	out := make([]byte, s.cfg.SamplesPerLine)
	for i := range out {
		out[i] = byte(s.black)
	}
	return out
}
