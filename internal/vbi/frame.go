// Package vbi recovers teletext lines from raw VBI sample captures. It
// reads fixed-length sample frames from .vbi streams and deconvolves
// each one into a framed 42-byte line, or rejects it when no clock
// run-in is present. Two backends implement the same contract: a scalar
// CPU path and a batch path that processes tiles of frames at once.
package vbi

import (
	"errors"
	"fmt"
	"io"

	"github.com/example/teledec/internal/config"
)

// Frame is one scanline's VBI region: unsigned 8-bit samples and a
// monotonically increasing index within the capture.
type Frame struct {
	Samples []byte
	Index   int64
}

// ReadOptions restricts which frames a FrameReader yields.
type ReadOptions struct {
	Start int64 // first frame index to yield
	Stop  int64 // stop before this index; 0 means no stop
	Step  int64 // yield every Step-th frame; 0 means 1
	Limit int64 // stop after yielding this many frames; 0 means no limit
}

// FrameReader chunks a raw .vbi byte stream into frames of the
// configured line length, applying start/stop/step/limit windowing.
type FrameReader struct {
	r       io.Reader
	size    int
	opts    ReadOptions
	index   int64
	yielded int64
	eof     bool

	// Truncated reports whether the stream ended inside a frame. The
	// partial tail is dropped; .vbi captures routinely end mid-field.
	Truncated bool
}

// NewFrameReader wraps r as a frame source for the given line geometry.
func NewFrameReader(r io.Reader, cfg *config.LineConfig, opts ReadOptions) *FrameReader {
	if opts.Step <= 0 {
		opts.Step = 1
	}
	return &FrameReader{r: r, size: cfg.SamplesPerLine, opts: opts}
}

// Next returns the next selected frame, or io.EOF when the stream or
// the configured window is exhausted. Each call allocates a fresh
// sample buffer; the frame moves downstream and is never reused.
func (fr *FrameReader) Next() (*Frame, error) {
	for {
		if fr.eof {
			return nil, io.EOF
		}
		if fr.opts.Stop > 0 && fr.index >= fr.opts.Stop {
			return nil, io.EOF
		}
		if fr.opts.Limit > 0 && fr.yielded >= fr.opts.Limit {
			return nil, io.EOF
		}

		buf := make([]byte, fr.size)
		_, err := io.ReadFull(fr.r, buf)
		if errors.Is(err, io.EOF) {
			fr.eof = true
			return nil, io.EOF
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			fr.eof = true
			fr.Truncated = true
			return nil, io.EOF
		}
		if err != nil {
			return nil, fmt.Errorf("vbi: read frame %d: %w", fr.index, err)
		}

		idx := fr.index
		fr.index++

		if idx < fr.opts.Start {
			continue
		}
		if (idx-fr.opts.Start)%fr.opts.Step != 0 {
			continue
		}

		fr.yielded++
		return &Frame{Samples: buf, Index: idx}, nil
	}
}
