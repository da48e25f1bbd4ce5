// Command mp4dump reads MP4 files and prints their tracks or box structure.
//
// Only metadata boxes are read; media data is skipped by size, so large
// files are inspected with a handful of reads.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/tetsuo/mp4probe/track"
)

// Format specifies the output format.
type Format int

const (
	FormatText Format = iota
	FormatJSON
)

func parseFormat(s string) (Format, error) {
	switch s {
	case "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	}
	return 0, fmt.Errorf("%w: %s", errUnknownFormat, s)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("mp4dump", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(stderr, "usage: mp4dump [flags] <file.mp4>...\n")
		fs.PrintDefaults()
	}

	cfg, files, err := parseArgs(fs, args)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(stderr, "mp4dump: %v\n", err)
		return 2
	}
	if len(files) == 0 {
		fs.Usage()
		return 2
	}

	log, err := newLogger(stderr, cfg.Log)
	if err != nil {
		fmt.Fprintf(stderr, "mp4dump: log: %v\n", err)
		return 1
	}
	format, _ := parseFormat(cfg.Format)

	code := 0
	for _, path := range files {
		if err := dump(ctx, path, &cfg, format, stdout, log); err != nil {
			fmt.Fprintf(stderr, "mp4dump: %v\n", err)
			code = 1
		}
	}
	return code
}

// dump prints one file in the configured mode.
func dump(ctx context.Context, path string, cfg *Config, format Format, w io.Writer, log *slog.Logger) error {
	log = log.With("file", path)
	opts := append(cfg.trackOptions(), track.WithLogger(log))
	f, err := track.Open(ctx, path, opts...)
	if err != nil {
		return err
	}
	defer f.Close()

	if cfg.Tree {
		nodes, err := buildTree(f)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		return printTree(w, nodes, format)
	}
	return printSummary(w, summarize(path, f, log), format)
}
