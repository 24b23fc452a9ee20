package vbi

import (
	"fmt"

	"github.com/example/teledec/internal/config"
	"github.com/example/teledec/internal/t42"
)

// Deconvolver recovers one framed teletext line from one sample frame.
// The second return is false when no line is present: the clock run-in
// was not found or its correlation peak was too weak.
type Deconvolver interface {
	Deconvolve(frame *Frame) (*t42.Line, bool)
}

// BatchDeconvolver is the optional tile interface. Implementations
// process up to BatchSize frames in one pass; the result slice is
// index-aligned with the input, with nil entries for rejected frames.
type BatchDeconvolver interface {
	Deconvolver
	BatchSize() int
	DeconvolveBatch(frames []*Frame) []*t42.Line
}

// CPU is the scalar backend: one line at a time, no batching.
type CPU struct {
	dsp *dsp

	// scratch buffers, reused across calls. A CPU value is therefore
	// not safe for concurrent use; the pipeline gives each worker its
	// own instance.
	norm    []float64
	soft    []float64
	scratch []float64
}

// NewCPU builds the scalar backend for a line configuration.
func NewCPU(cfg *config.LineConfig) *CPU {
	return &CPU{
		dsp:     newDSP(cfg),
		norm:    make([]float64, cfg.SamplesPerLine),
		soft:    make([]float64, dataBits),
		scratch: make([]float64, dataBits),
	}
}

// Deconvolve implements Deconvolver.
func (c *CPU) Deconvolve(frame *Frame) (*t42.Line, bool) {
	if len(frame.Samples) != len(c.norm) {
		panic(fmt.Sprintf("vbi: frame %d has %d samples, configured for %d",
			frame.Index, len(frame.Samples), len(c.norm)))
	}

	c.dsp.normalize(frame.Samples, c.norm)
	offset, ok := c.dsp.locate(c.norm)
	if !ok {
		return nil, false
	}

	c.dsp.integrate(c.norm, offset, c.soft)
	c.dsp.sharpen(c.soft, c.scratch)

	return slice(c.dsp, c.soft, frame.Index), true
}

// slice converts soft bits to a framed line: hard bits at the slicing
// threshold, per-bit confidence from the distance to it, bytes packed
// LSB first with the minimum bit confidence.
func slice(d *dsp, soft []float64, frame int64) *t42.Line {
	thr := d.threshold(soft)
	line := &t42.Line{Frame: frame}
	for i := 0; i < t42.PacketSize; i++ {
		var b byte
		minConf := 1.0
		for bit := 0; bit < 8; bit++ {
			v := soft[i*8+bit]
			if v >= thr {
				b |= 1 << bit
			}
			conf := (v - thr) * 2
			if conf < 0 {
				conf = -conf
			}
			if conf > 1 {
				conf = 1
			}
			if conf < minConf {
				minConf = conf
			}
		}
		line.Data[i] = b
		line.Confidence[i] = minConf
	}
	return line
}
