package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/example/teledec/internal/config"
)

func recordCmd() *cobra.Command {
	var (
		devPath string
		device  string
		output  string
	)

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record raw VBI samples from a capture device to a .vbi file",
		Long: `Record copies raw unsigned 8-bit samples from a VBI capture device
until interrupted. Output is written in whole frames of the profile's
line length, so a .vbi file is always cleanly frame-aligned.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Lookup(device, config.Override{})
			if err != nil {
				return err
			}

			dev, err := os.Open(devPath)
			if err != nil {
				return fmt.Errorf("open device: %w", err)
			}
			defer dev.Close()

			out, err := openOutput(output)
			if err != nil {
				return err
			}
			defer closeIfFile(out)

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			bw := bufio.NewWriter(out)
			buf := make([]byte, cfg.SamplesPerLine)
			var frames int64

			slog.Info("recording", "device", devPath, "profile", cfg.Name)
			for ctx.Err() == nil {
				if _, err := io.ReadFull(dev, buf); err != nil {
					if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
						break
					}
					return fmt.Errorf("read device: %w", err)
				}
				if _, err := bw.Write(buf); err != nil {
					return fmt.Errorf("write output: %w", err)
				}
				frames++
			}

			if err := bw.Flush(); err != nil {
				return fmt.Errorf("flush output: %w", err)
			}
			slog.Info("recording finished", "frames", frames)
			return nil
		},
	}

	cmd.Flags().StringVarP(&devPath, "dev", "d", "/dev/vbi0", "VBI capture device path")
	cmd.Flags().StringVar(&device, "device", "bt8x8_pal", "capture device profile")
	cmd.Flags().StringVarP(&output, "output", "o", "-", "output file (default stdout)")
	return cmd
}
