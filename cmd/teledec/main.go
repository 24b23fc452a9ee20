// Command teledec recovers teletext from VBI sample captures: it
// deconvolves .vbi files into .t42 packet streams, filters and
// deduplicates packet streams, and records raw captures from a device.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/teledec/internal/config"
	"github.com/example/teledec/internal/t42"
)

var version = "dev"

// Exit codes, stable for scripting.
const (
	exitOK        = 0
	exitOther     = 1
	exitBadInput  = 2
	exitNoProfile = 3
)

func main() {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	root := &cobra.Command{
		Use:           "teledec",
		Short:         "Teletext recovery from VBI captures",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(deconvolveCmd())
	root.AddCommand(filterCmd())
	root.AddCommand(recordCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "teledec: %v\n", err)
		switch {
		case errors.Is(err, config.ErrUnknownProfile):
			os.Exit(exitNoProfile)
		case errors.Is(err, t42.ErrTruncated):
			os.Exit(exitBadInput)
		default:
			os.Exit(exitOther)
		}
	}
}

// openInput returns the input stream for a command: the named file, or
// stdin for "-" or no argument.
func openInput(args []string) (*os.File, error) {
	if len(args) == 0 || args[0] == "-" {
		return os.Stdin, nil
	}
	f, err := os.Open(args[0])
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	return f, nil
}

// openOutput returns the output stream: the named file, or stdout for
// "" or "-".
func openOutput(path string) (*os.File, error) {
	if path == "" || path == "-" {
		return os.Stdout, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create output: %w", err)
	}
	return f, nil
}

func closeIfFile(f *os.File) {
	if f != os.Stdin && f != os.Stdout {
		f.Close()
	}
}
