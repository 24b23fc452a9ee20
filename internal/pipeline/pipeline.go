// Package pipeline wires the deconvolution stages together: a frame
// source feeding a worker pool through bounded queues, a reorder buffer
// restoring frame order behind the pool, and a serial sink. The tile
// backend replaces the pool with batch assembly; everything downstream
// is unaffected.
package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/example/teledec/internal/t42"
	"github.com/example/teledec/internal/vbi"
)

// Default queue bounds. The frame queue backpressures the source; the
// line queue decouples the pool from the serial sink.
const (
	DefaultFrameQueue = 1024
	DefaultLineQueue  = 4096
)

// LineSink receives framed lines in source order. It runs serially.
type LineSink func(*t42.Line) error

// Stats counts pipeline traffic. Counters are atomic so the CLI can
// snapshot them while the pipeline runs.
type Stats struct {
	Frames  atomic.Int64
	Lines   atomic.Int64
	Rejects atomic.Int64
}

// Options configures a pipeline run.
type Options struct {
	// Workers is the CPU pool size. Ignored when the factory returns a
	// BatchDeconvolver.
	Workers int
	// FrameQueue and LineQueue override the default queue bounds.
	FrameQueue int
	LineQueue  int
	// OnFrame, when non-nil, is called once per source frame read.
	// Used for progress reporting.
	OnFrame func()
}

// Pipeline runs frames from a source through a deconvolver backend to
// an ordered line sink.
type Pipeline struct {
	log     *slog.Logger
	src     *vbi.FrameReader
	factory func() vbi.Deconvolver
	sink    LineSink
	opts    Options
	stats   Stats
}

// New builds a pipeline. factory is called once per worker so each
// worker owns its scratch buffers; a factory returning a
// BatchDeconvolver switches the pipeline to tile mode.
func New(src *vbi.FrameReader, factory func() vbi.Deconvolver, sink LineSink, opts Options) *Pipeline {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.FrameQueue <= 0 {
		opts.FrameQueue = DefaultFrameQueue
	}
	if opts.LineQueue <= 0 {
		opts.LineQueue = DefaultLineQueue
	}
	return &Pipeline{
		log:     slog.With("component", "pipeline"),
		src:     src,
		factory: factory,
		sink:    sink,
		opts:    opts,
	}
}

// Stats exposes the traffic counters.
func (p *Pipeline) Stats() *Stats {
	return &p.stats
}

type job struct {
	seq   int64
	frame *vbi.Frame
}

type result struct {
	seq  int64
	line *t42.Line // nil for a rejected frame
}

// Run processes the whole source. It returns when the source is
// exhausted, the sink fails, or the context is cancelled. Cancellation
// never tears a record: the sink only ever sees whole lines, in order.
func (p *Pipeline) Run(ctx context.Context) error {
	if batch, ok := p.factory().(vbi.BatchDeconvolver); ok {
		return p.runBatch(ctx, batch)
	}
	return p.runPool(ctx)
}

func (p *Pipeline) runPool(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	jobs := make(chan job, p.opts.FrameQueue)
	results := make(chan result, p.opts.LineQueue)

	g.Go(func() error {
		defer close(jobs)
		return p.readFrames(ctx, jobs)
	})

	var wg sync.WaitGroup
	for w := 0; w < p.opts.Workers; w++ {
		wg.Add(1)
		dec := p.factory()
		g.Go(func() error {
			defer wg.Done()
			for j := range jobs {
				line, ok := dec.Deconvolve(j.frame)
				if ok {
					p.stats.Lines.Add(1)
				} else {
					p.stats.Rejects.Add(1)
				}
				select {
				case results <- result{seq: j.seq, line: line}:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			return nil
		})
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	g.Go(func() error {
		return p.reorder(results)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// readFrames feeds the job queue, tagging each frame with a dense
// sequence number for the reorder buffer.
func (p *Pipeline) readFrames(ctx context.Context, jobs chan<- job) error {
	seq := int64(0)
	for {
		frame, err := p.src.Next()
		if errors.Is(err, io.EOF) {
			if p.src.Truncated {
				p.log.Warn("input ended mid-frame, partial tail dropped")
			}
			return nil
		}
		if err != nil {
			return err
		}
		p.stats.Frames.Add(1)
		if p.opts.OnFrame != nil {
			p.opts.OnFrame()
		}
		select {
		case jobs <- job{seq: seq, frame: frame}:
		case <-ctx.Done():
			return ctx.Err()
		}
		seq++
	}
}

// reorder re-establishes sequence order behind the pool and drives the
// serial sink. Rejected frames occupy a sequence slot but emit nothing.
func (p *Pipeline) reorder(results <-chan result) error {
	pending := make(map[int64]*t42.Line)
	rejected := make(map[int64]bool)
	next := int64(0)

	for r := range results {
		if r.line == nil {
			rejected[r.seq] = true
		} else {
			pending[r.seq] = r.line
		}

		for {
			if rejected[next] {
				delete(rejected, next)
				next++
				continue
			}
			line, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			next++
			if err := p.sink(line); err != nil {
				return err
			}
		}
	}
	return nil
}

// runBatch is the tile path: frames are collected into tiles of the
// backend's batch size, processed in one pass, and emitted in order.
// Batch assembly is the only suspension point the rest of the pipeline
// observes.
func (p *Pipeline) runBatch(ctx context.Context, dec vbi.BatchDeconvolver) error {
	if p.opts.FrameQueue < 2*dec.BatchSize() {
		// A queue shorter than two tiles can deadlock against a source
		// that stalls mid-batch.
		p.opts.FrameQueue = 2 * dec.BatchSize()
	}

	g, ctx := errgroup.WithContext(ctx)
	jobs := make(chan job, p.opts.FrameQueue)

	g.Go(func() error {
		defer close(jobs)
		return p.readFrames(ctx, jobs)
	})

	g.Go(func() error {
		tile := make([]*vbi.Frame, 0, dec.BatchSize())
		flush := func() error {
			if len(tile) == 0 {
				return nil
			}
			for _, line := range dec.DeconvolveBatch(tile) {
				if line == nil {
					p.stats.Rejects.Add(1)
					continue
				}
				p.stats.Lines.Add(1)
				if err := p.sink(line); err != nil {
					return err
				}
			}
			tile = tile[:0]
			return nil
		}

		for j := range jobs {
			tile = append(tile, j.frame)
			if len(tile) == dec.BatchSize() {
				if err := flush(); err != nil {
					return err
				}
			}
			if ctx.Err() != nil {
				break
			}
		}
		return flush()
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
