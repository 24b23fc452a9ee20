package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/example/teledec/internal/filter"
	"github.com/example/teledec/internal/page"
	"github.com/example/teledec/internal/t42"
)

// packetFilter is what both filter modes look like from the read loop.
type packetFilter interface {
	Feed(*t42.Packet) error
	Close() error
}

func filterCmd() *cobra.Command {
	var (
		pageArg  string
		mags     []int
		rows     []int
		squash   bool
		wst      bool
		maxObs   int
		quiet    int64
		paginate bool
		output   string
		progress bool
	)

	cmd := &cobra.Command{
		Use:   "filter [INPUT]",
		Short: "Filter a .t42 packet stream, optionally squashing duplicates",
		Long: `Filter reads 42-byte teletext packets and re-emits those matching the
page, magazine, and row predicates. With --squash, repeated
transmissions of each subpage are merged by confidence-weighted voting
into a single clean copy, flushed when enough copies have been seen,
when the subpage goes quiet, or at end of stream.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pred := filter.Predicate{Page: -1}
			if pageArg != "" {
				n, err := strconv.ParseInt(pageArg, 16, 32)
				if err != nil || n < 0x100 || n > 0x8FF {
					return fmt.Errorf("bad page number %q (want hex 100-8FF)", pageArg)
				}
				pred.Page = int(n)
			}
			if len(mags) > 0 {
				pred.Magazines = make(map[int]bool, len(mags))
				for _, m := range mags {
					pred.Magazines[m] = true
				}
			}
			if len(rows) > 0 {
				pred.Rows = make(map[int]bool, len(rows))
				for _, r := range rows {
					pred.Rows[r] = true
				}
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

			bw := bufio.NewWriter(out)
			writer := t42.NewWriter(bw)

			var sink filter.Sink = writer.WritePacket
			var builder *page.Builder
			if paginate {
				// Buffer packets per magazine and emit whole pages:
				// header first, rows in row order.
				builder = page.NewBuilder()
				sink = func(p *t42.Packet) error {
					if done := builder.Feed(p); done != nil {
						return writePage(writer, done)
					}
					return nil
				}
			}

			var f packetFilter
			if squash {
				f = filter.NewSquash(filter.SquashConfig{
					MaxObservations: maxObs,
					QuietFrames:     quiet,
				}, sink)
			} else {
				f = filter.NewPassThrough(pred, sink)
			}

			var bar *progressbar.ProgressBar
			if progress {
				bar = progressbar.NewOptions64(-1,
					progressbar.OptionSetDescription("filter"),
					progressbar.OptionSetWriter(os.Stderr),
					progressbar.OptionShowCount(),
					progressbar.OptionSetItsString("P"),
				)
			}

			var packets int64
			reader := t42.NewReader(bufio.NewReader(in), wst)
			for {
				rec, n, err := reader.Next()
				if errors.Is(err, io.EOF) {
					break
				}
				if err != nil {
					return err
				}
				packets++
				if bar != nil {
					bar.Add(1)
				}
				if err := f.Feed(t42.DecodeBytes(rec, n)); err != nil {
					return err
				}
			}

			if err := f.Close(); err != nil {
				return err
			}
			if builder != nil {
				for _, pg := range builder.Close() {
					if err := writePage(writer, pg); err != nil {
						return err
					}
				}
			}
			if err := bw.Flush(); err != nil {
				return fmt.Errorf("flush output: %w", err)
			}

			slog.Info("filter finished", "packets", packets, "squash", squash)
			return nil
		},
	}

	cmd.Flags().StringVarP(&pageArg, "page", "p", "", "emit only packets for this page (hex, e.g. 100)")
	cmd.Flags().IntSliceVarP(&mags, "mag", "m", nil, "limit output to specific magazines")
	cmd.Flags().IntSliceVarP(&rows, "row", "r", nil, "limit output to specific rows")
	cmd.Flags().BoolVar(&squash, "squash", false, "merge repeated subpage transmissions by voting")
	cmd.Flags().BoolVar(&wst, "wst", false, "input is 43 bytes per packet (WST capture format)")
	cmd.Flags().IntVar(&maxObs, "max-observations", 0, "squash: flush after N merged copies (default 32)")
	cmd.Flags().Int64Var(&quiet, "quiet-frames", 0, "squash: flush after N silent frames (default 500)")
	cmd.Flags().BoolVarP(&paginate, "paginate", "P", false, "sort rows into contiguous pages")
	cmd.Flags().StringVarP(&output, "output", "o", "-", "output file (default stdout)")
	cmd.Flags().BoolVar(&progress, "progress", false, "display progress on stderr")
	return cmd
}

func writePage(w *t42.Writer, pg *page.Page) error {
	for _, p := range pg.Packets() {
		if err := w.WritePacket(p); err != nil {
			return err
		}
	}
	return nil
}
