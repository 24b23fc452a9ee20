package main

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/example/teledec/internal/config"
	"github.com/example/teledec/internal/page"
	"github.com/example/teledec/internal/pipeline"
	"github.com/example/teledec/internal/t42"
	"github.com/example/teledec/internal/vbi"
)

func deconvolveCmd() *cobra.Command {
	var (
		device     string
		start      int64
		stop       int64
		step       int64
		limit      int64
		headers    bool
		headerSkip int64
		backend    string
		batchSize  int
		workers    int
		output     string
		progress   bool
		lineLength int
		sampleRate float64
		criWindow  []int
	)

	cmd := &cobra.Command{
		Use:   "deconvolve [INPUT]",
		Short: "Recover .t42 packets from a raw .vbi sample capture",
		Long: `Deconvolve reads raw unsigned 8-bit VBI samples, locates the teletext
clock run-in on each scanline, and writes the recovered 42-byte packets
as a .t42 stream. Lines with no detectable run-in are dropped, not
zero-filled. Diagnostics go to stderr; only packet data is written to
the output.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ov := config.Override{
				SamplesPerLine: lineLength,
				SampleRate:     sampleRate,
			}
			switch len(criWindow) {
			case 0:
			case 2:
				ov.CRIWindowStart, ov.CRIWindowEnd = criWindow[0], criWindow[1]
			default:
				return fmt.Errorf("--cri-window wants two values: start,end")
			}
			cfg, err := config.Lookup(device, ov)
			if err != nil {
				return err
			}

			in, err := openInput(args)
			if err != nil {
				return err
			}
			defer closeIfFile(in)

			out, err := openOutput(output)
			if err != nil {
				return err
			}
			defer closeIfFile(out)

			factory, err := backendFactory(backend, cfg, batchSize)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			bw := bufio.NewWriter(out)
			writer := t42.NewWriter(bw)
			var lastPrint int64 = -1
			sink := func(line *t42.Line) error {
				if err := writer.WriteLine(line); err != nil {
					return err
				}
				if headers {
					if lastPrint < 0 || line.Frame-lastPrint > headerSkip {
						p := t42.Decode(line)
						if p.Kind == t42.KindHeader {
							page.RenderHeader(os.Stderr, p)
							lastPrint = line.Frame
						}
					}
				}
				return nil
			}

			src := vbi.NewFrameReader(in, cfg, vbi.ReadOptions{
				Start: start, Stop: stop, Step: step, Limit: limit,
			})

			opts := pipeline.Options{Workers: workers}
			if opts.Workers <= 0 {
				opts.Workers = runtime.NumCPU()
			}
			if progress {
				bar := progressbar.NewOptions64(-1,
					progressbar.OptionSetDescription("deconvolve"),
					progressbar.OptionSetWriter(os.Stderr),
					progressbar.OptionShowCount(),
					progressbar.OptionSetItsString("F"),
				)
				opts.OnFrame = func() { bar.Add(1) }
			}

			pipe := pipeline.New(src, factory, sink, opts)
			if err := pipe.Run(ctx); err != nil {
				return err
			}
			if err := bw.Flush(); err != nil {
				return fmt.Errorf("flush output: %w", err)
			}

			stats := pipe.Stats()
			slog.Info("deconvolve finished",
				"device", cfg.Name,
				"backend", backend,
				"frames", stats.Frames.Load(),
				"lines", stats.Lines.Load(),
				"rejects", stats.Rejects.Load(),
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&device, "device", "bt8x8_pal", "capture device profile")
	cmd.Flags().Int64Var(&start, "start", 0, "start at the Nth frame of the input")
	cmd.Flags().Int64Var(&stop, "stop", 0, "stop before the Nth frame of the input")
	cmd.Flags().Int64Var(&step, "step", 1, "process every Nth frame")
	cmd.Flags().Int64Var(&limit, "limit", 0, "stop after processing N frames")
	cmd.Flags().BoolVarP(&headers, "headers", "H", false, "print decoded header lines to stderr")
	cmd.Flags().Int64VarP(&headerSkip, "header-skip", "S", 0, "skip N frames between header prints")
	cmd.Flags().StringVar(&backend, "backend", "cpu", "deconvolver backend: cpu or batch")
	cmd.Flags().IntVar(&batchSize, "batch-size", 256, "tile size for the batch backend")
	cmd.Flags().IntVarP(&workers, "workers", "j", 0, "CPU worker count (default: all cores)")
	cmd.Flags().StringVarP(&output, "output", "o", "-", "output file (default stdout)")
	cmd.Flags().BoolVar(&progress, "progress", false, "display progress on stderr")
	cmd.Flags().IntVar(&lineLength, "line-length", 0, "override profile samples per line")
	cmd.Flags().Float64Var(&sampleRate, "sample-rate", 0, "override profile sample rate (Hz)")
	cmd.Flags().IntSliceVar(&criWindow, "cri-window", nil, "override CRI search window: start,end samples")
	return cmd
}

func backendFactory(name string, cfg *config.LineConfig, batchSize int) (func() vbi.Deconvolver, error) {
	switch name {
	case "cpu":
		return func() vbi.Deconvolver { return vbi.NewCPU(cfg) }, nil
	case "batch":
		// One shared tile; the pipeline runs batch mode serially.
		b := vbi.NewBatch(cfg, batchSize)
		return func() vbi.Deconvolver { return b }, nil
	default:
		return nil, fmt.Errorf("unknown backend %q (want cpu or batch)", name)
	}
}
