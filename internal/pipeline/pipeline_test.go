package pipeline

import (
	"bytes"
	"context"
	"testing"

	"github.com/example/teledec/internal/config"
	"github.com/example/teledec/internal/t42"
	"github.com/example/teledec/internal/vbi"
)

func testConfig(t *testing.T) *config.LineConfig {
	t.Helper()
	cfg, err := config.Lookup("bt8x8_pal", config.Override{})
	if err != nil {
		t.Fatal(err)
	}
	return cfg
}

// buildCapture synthesizes a .vbi stream of n frames. Every frame whose
// index satisfies blank carries no teletext; the rest carry a display
// row whose text encodes the frame index.
func buildCapture(t *testing.T, cfg *config.LineConfig, n int, blank func(int) bool) *bytes.Buffer {
	t.Helper()
	synth := vbi.NewSynthesizer(cfg)
	var buf bytes.Buffer
	for i := 0; i < n; i++ {
		if blank != nil && blank(i) {
			buf.Write(synth.Blank())
			continue
		}
		raw := t42.EncodeDisplay(1, 1+i%24, []byte{byte('A' + i%26)})
		buf.Write(synth.Frame(raw[:]))
	}
	return &buf
}

func runPipeline(t *testing.T, cfg *config.LineConfig, input *bytes.Buffer, factory func() vbi.Deconvolver, workers int) []*t42.Line {
	t.Helper()
	src := vbi.NewFrameReader(input, cfg, vbi.ReadOptions{})
	var got []*t42.Line
	sink := func(line *t42.Line) error {
		got = append(got, line)
		return nil
	}
	p := New(src, factory, sink, Options{Workers: workers})
	if err := p.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	return got
}

func TestRunEmptyInput(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	got := runPipeline(t, cfg, &bytes.Buffer{}, func() vbi.Deconvolver { return vbi.NewCPU(cfg) }, 4)
	if len(got) != 0 {
		t.Fatalf("empty input produced %d lines", len(got))
	}
}

func TestRunPreservesOrder(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	const n = 48
	input := buildCapture(t, cfg, n, nil)

	got := runPipeline(t, cfg, input, func() vbi.Deconvolver { return vbi.NewCPU(cfg) }, 8)
	if len(got) != n {
		t.Fatalf("got %d lines, want %d", len(got), n)
	}
	for i, line := range got {
		if line.Frame != int64(i) {
			t.Fatalf("line %d has frame %d: order not preserved", i, line.Frame)
		}
	}
}

func TestRunSkipsFramesWithoutCRI(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	const n = 12
	// No teletext on every 3rd frame.
	input := buildCapture(t, cfg, n, func(i int) bool { return i%3 == 2 })

	src := vbi.NewFrameReader(input, cfg, vbi.ReadOptions{})
	var frames []int64
	p := New(src, func() vbi.Deconvolver { return vbi.NewCPU(cfg) }, func(line *t42.Line) error {
		frames = append(frames, line.Frame)
		return nil
	}, Options{Workers: 4})
	if err := p.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	want := []int64{0, 1, 3, 4, 6, 7, 9, 10}
	if len(frames) != len(want) {
		t.Fatalf("frames = %v, want %v", frames, want)
	}
	for i := range want {
		if frames[i] != want[i] {
			t.Fatalf("frames = %v, want %v", frames, want)
		}
	}
	if p.Stats().Rejects.Load() != 4 {
		t.Errorf("Rejects = %d, want 4", p.Stats().Rejects.Load())
	}
}

func TestRunBatchMatchesPool(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	const n = 20
	blank := func(i int) bool { return i%5 == 4 }

	poolLines := runPipeline(t, cfg, buildCapture(t, cfg, n, blank),
		func() vbi.Deconvolver { return vbi.NewCPU(cfg) }, 4)

	// Batch size 8 does not divide the 20 input frames evenly (16 of
	// them carry lines), exercising the final partial tile.
	batch := vbi.NewBatch(cfg, 8)
	batchLines := runPipeline(t, cfg, buildCapture(t, cfg, n, blank),
		func() vbi.Deconvolver { return batch }, 1)

	if len(poolLines) != len(batchLines) {
		t.Fatalf("pool found %d lines, batch %d", len(poolLines), len(batchLines))
	}
	for i := range poolLines {
		if poolLines[i].Data != batchLines[i].Data {
			t.Errorf("line %d differs between backends", i)
		}
		if poolLines[i].Frame != batchLines[i].Frame {
			t.Errorf("line %d frame differs between backends", i)
		}
	}
}

func TestRunCancelledContext(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	input := buildCapture(t, cfg, 8, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := vbi.NewFrameReader(input, cfg, vbi.ReadOptions{})
	var got []*t42.Line
	p := New(src, func() vbi.Deconvolver { return vbi.NewCPU(cfg) }, func(line *t42.Line) error {
		got = append(got, line)
		return nil
	}, Options{Workers: 2})

	// A pre-cancelled context must stop the run cleanly, without error
	// and without torn output.
	if err := p.Run(ctx); err != nil {
		t.Fatal(err)
	}
	for i := 1; i < len(got); i++ {
		if got[i].Frame <= got[i-1].Frame {
			t.Fatal("cancelled run emitted lines out of order")
		}
	}
}

func TestRunSinkErrorStopsPipeline(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	input := buildCapture(t, cfg, 16, nil)

	src := vbi.NewFrameReader(input, cfg, vbi.ReadOptions{})
	sinkErr := context.DeadlineExceeded // any sentinel
	p := New(src, func() vbi.Deconvolver { return vbi.NewCPU(cfg) }, func(line *t42.Line) error {
		return sinkErr
	}, Options{Workers: 2})

	if err := p.Run(context.Background()); err == nil {
		t.Fatal("sink error did not surface")
	}
}
