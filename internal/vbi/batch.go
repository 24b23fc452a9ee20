package vbi

import (
	"github.com/example/teledec/internal/config"
	"github.com/example/teledec/internal/t42"
)

// MaxBatch is the largest tile the batch backend will assemble.
const MaxBatch = 512

// Batch is the tile backend: it lays frames out as a 2-D tile and runs
// each processing stage across the whole tile before the next, the
// shape a GPU kernel launch requires. Results are bit-identical to the
// CPU backend; only the scheduling differs.
type Batch struct {
	dsp   *dsp
	size  int
	norm  [][]float64
	soft  [][]float64
	offs  []int
	found []bool
	tmp   []float64
}

// NewBatch builds a tile backend processing up to size frames per pass.
// size is clamped to a power of two no larger than MaxBatch.
func NewBatch(cfg *config.LineConfig, size int) *Batch {
	if size < 1 {
		size = 1
	}
	if size > MaxBatch {
		size = MaxBatch
	}
	// Round down to a power of two.
	for size&(size-1) != 0 {
		size &= size - 1
	}

	b := &Batch{
		dsp:   newDSP(cfg),
		size:  size,
		norm:  make([][]float64, size),
		soft:  make([][]float64, size),
		offs:  make([]int, size),
		found: make([]bool, size),
		tmp:   make([]float64, dataBits),
	}
	for i := 0; i < size; i++ {
		b.norm[i] = make([]float64, cfg.SamplesPerLine)
		b.soft[i] = make([]float64, dataBits)
	}
	return b
}

// BatchSize implements BatchDeconvolver.
func (b *Batch) BatchSize() int { return b.size }

// Deconvolve implements Deconvolver by running a one-frame tile.
func (b *Batch) Deconvolve(frame *Frame) (*t42.Line, bool) {
	out := b.DeconvolveBatch([]*Frame{frame})
	if out[0] == nil {
		return nil, false
	}
	return out[0], true
}

// DeconvolveBatch implements BatchDeconvolver. Each stage sweeps the
// whole tile before the next stage starts.
func (b *Batch) DeconvolveBatch(frames []*Frame) []*t42.Line {
	n := len(frames)
	if n > b.size {
		n = b.size
		frames = frames[:n]
	}

	for i, f := range frames {
		b.dsp.normalize(f.Samples, b.norm[i])
	}
	for i := range frames {
		b.offs[i], b.found[i] = b.dsp.locate(b.norm[i])
	}
	for i := range frames {
		if b.found[i] {
			b.dsp.integrate(b.norm[i], b.offs[i], b.soft[i])
		}
	}
	for i := range frames {
		if b.found[i] {
			b.dsp.sharpen(b.soft[i], b.tmp)
		}
	}

	out := make([]*t42.Line, n)
	for i, f := range frames {
		if b.found[i] {
			out[i] = slice(b.dsp, b.soft[i], f.Index)
		}
	}
	return out
}
