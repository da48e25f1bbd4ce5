// Package track opens MP4 files and exposes their tracks with decoded codec
// metadata. A File owns the header buffer its tracks read from; release it
// with Close.
package track

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/tetsuo/mp4probe"
)

var (
	// ErrClosed is returned by accessors of a closed File.
	ErrClosed = errors.New("track: file closed")
	// ErrNotVideo is returned by Video for tracks without a vide handler.
	ErrNotVideo = errors.New("track: not a video track")
	// ErrNotAudio is returned by Audio for tracks without a soun handler.
	ErrNotAudio = errors.New("track: not an audio track")
)

// DefaultReadSize caps a single read while materializing headers.
const DefaultReadSize = 1 << 20

type options struct {
	chunkSize      int
	readSize       int
	maxInflight    int
	maxHeaderBytes int64
	logger         *slog.Logger
}

// Option configures Open and Parse.
type Option func(*options)

// WithChunkSize sets the scanner read size. The default is 8 KiB.
func WithChunkSize(n int) Option {
	return func(o *options) { o.chunkSize = n }
}

// WithReadSize caps the length of a single header read. The default is
// 1 MiB.
func WithReadSize(n int) Option {
	return func(o *options) { o.readSize = n }
}

// WithMaxInflight bounds concurrent header reads. The default is 16.
func WithMaxInflight(n int) Option {
	return func(o *options) { o.maxInflight = n }
}

// WithMaxHeaderBytes rejects files whose metadata boxes total more than n
// bytes. There is no limit by default.
func WithMaxHeaderBytes(n int64) Option {
	return func(o *options) { o.maxHeaderBytes = n }
}

// WithLogger sets the logger for pipeline diagnostics. The default is
// slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func newOptions(opts []Option) options {
	o := options{
		chunkSize:   mp4.DefaultChunkSize,
		readSize:    DefaultReadSize,
		maxInflight: mp4.DefaultMaxInflight,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

// File is a parsed MP4 file. Tracks and the views they hand out read from
// a header buffer owned by the File; after Close they return ErrClosed.
// A File is not safe for use by multiple goroutines while it is being
// closed.
type File struct {
	closer  io.Closer
	hb      *mp4.HeaderBuffer
	table   *mp4.Table
	regions []mp4.Region
	tracks  []*Track
	brand   mp4.Ftyp
	movie   mp4.Mvhd
	log     *slog.Logger
}

// Open opens and parses the file at path. The file stays open until Close.
func Open(ctx context.Context, path string, opts ...Option) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	file, err := Parse(ctx, f, info.Size(), opts...)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	file.closer = f
	return file, nil
}

// Parse scans the first size bytes of r, reads its metadata boxes and
// indexes its tracks. Only metadata is read; media data is skipped.
func Parse(ctx context.Context, r io.ReaderAt, size int64, opts ...Option) (*File, error) {
	o := newOptions(opts)
	log := o.logger

	sc := mp4.NewScanner(r, size, mp4.ScanOptions{ChunkSize: o.chunkSize})
	regions, err := sc.ScanAll(ctx)
	if err != nil {
		return nil, err
	}
	log.Debug("scanned top-level boxes",
		"regions", len(regions), "reads", sc.Reads(), "bytes", sc.BytesRead(), "size", size)

	hb, err := mp4.Materialize(ctx, r, regions, mp4.MaterializeOptions{
		ReadSize:    o.readSize,
		MaxInflight: o.maxInflight,
		MaxBytes:    o.maxHeaderBytes,
	})
	if err != nil {
		return nil, err
	}
	log.Debug("materialized header boxes",
		"bytes", hb.Len(), "spans", len(hb.Spans), "reads", hb.Reads)

	table, err := mp4.BuildTable(hb)
	if err != nil {
		hb.Release()
		return nil, err
	}

	f := &File{
		hb:      hb,
		table:   table,
		regions: regions,
		log:     log,
	}
	f.brand, _ = table.FileType()
	f.movie, _ = table.MovieHeader()
	for i, refs := range table.Tracks {
		f.tracks = append(f.tracks, newTrack(f, i, refs))
	}
	log.Debug("indexed tracks", "boxes", table.Boxes, "tracks", len(f.tracks))
	return f, nil
}

// Close releases the header buffer and closes the underlying file if the
// File was created by Open. Closing twice is a no-op.
func (f *File) Close() error {
	if f.hb.Released() {
		return nil
	}
	f.hb.Release()
	if f.closer != nil {
		return f.closer.Close()
	}
	return nil
}

// Closed reports whether Close has been called.
func (f *File) Closed() bool {
	return f.hb.Released()
}

// Tracks returns the tracks in file order.
func (f *File) Tracks() []*Track {
	return f.tracks
}

// Brand returns the decoded ftyp box.
func (f *File) Brand() mp4.Ftyp {
	return f.brand
}

// Movie returns the decoded mvhd box.
func (f *File) Movie() mp4.Mvhd {
	return f.movie
}

// Duration returns the movie duration.
func (f *File) Duration() time.Duration {
	return scaledDuration(f.movie.Duration, f.movie.TimeScale)
}

// Regions returns the top-level boxes in file order.
func (f *File) Regions() []mp4.Region {
	return f.regions
}

// Walk visits every metadata box. See mp4.Walk.
func (f *File) Walk(fn mp4.WalkFunc) error {
	if f.Closed() {
		return ErrClosed
	}
	return mp4.Walk(f.hb, fn)
}

// FindTrack returns the track with the given ID, or nil.
func FindTrack(tracks []*Track, id uint32) *Track {
	for _, t := range tracks {
		if t.ID() == id {
			return t
		}
	}
	return nil
}

func scaledDuration(d uint64, timescale uint32) time.Duration {
	if timescale == 0 {
		return 0
	}
	sec := d / uint64(timescale)
	rem := d % uint64(timescale)
	return time.Duration(sec)*time.Second + time.Duration(rem*uint64(time.Second)/uint64(timescale))
}
