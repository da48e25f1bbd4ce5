package main

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/alchemy/rotoslog"
	"github.com/phsym/console-slog"
)

const logTimeFormat = "2006-01-02 15:04:05.000"

// parseLevel parses a level name. Unknown names fall back to Info.
func parseLevel(level string) slog.Level {
	var lv slog.LevelVar
	if err := lv.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return lv.Level()
}

// newLogger returns a console logger on w and, when c.Dir is set, a rotated
// file logger alongside it.
func newLogger(w io.Writer, c LogConfig) (*slog.Logger, error) {
	level := parseLevel(c.Level)
	h := slog.Handler(console.NewHandler(w, &console.HandlerOptions{
		Level:      level,
		TimeFormat: logTimeFormat,
	}))
	if c.Dir == "" {
		return slog.New(h), nil
	}

	builder := func(w io.Writer, _ *slog.HandlerOptions) slog.Handler {
		return console.NewHandler(w, &console.HandlerOptions{NoColor: true, Level: level, TimeFormat: logTimeFormat})
	}
	fh, err := rotoslog.NewHandler(
		rotoslog.LogHandlerBuilder(builder),
		rotoslog.LogDir(c.Dir),
		rotoslog.MaxFileSize(c.MaxSize),
		rotoslog.DateTimeLayout(c.Layout),
		rotoslog.MaxRotatedFiles(c.MaxFiles),
	)
	if err != nil {
		return nil, err
	}
	return slog.New(multiHandler{h, fh}), nil
}

// multiHandler fans records out to several handlers.
type multiHandler []slog.Handler

func (m multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m multiHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range m {
		if h.Enabled(ctx, r.Level) {
			errs = append(errs, h.Handle(ctx, r.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (m multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(multiHandler, len(m))
	for i, h := range m {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (m multiHandler) WithGroup(name string) slog.Handler {
	out := make(multiHandler, len(m))
	for i, h := range m {
		out[i] = h.WithGroup(name)
	}
	return out
}
