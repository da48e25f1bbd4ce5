package mp4

import (
	"context"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"
)

// DefaultMaxInflight is the number of concurrent reads Materialize issues
// when none is configured.
const DefaultMaxInflight = 16

// MaterializeOptions configures Materialize.
type MaterializeOptions struct {
	// ReadSize caps the length of a single read. Zero means one read per
	// coalesced span.
	ReadSize int
	// MaxInflight bounds concurrent reads. Zero means DefaultMaxInflight.
	MaxInflight int
	// MaxBytes rejects inputs whose header-bearing boxes total more than
	// this many bytes. Zero means no limit.
	MaxBytes int64
}

// Span maps a contiguous run of the header buffer back to the file.
type Span struct {
	FileOffset int64
	BufOffset  int
	Len        int
}

// HeaderBuffer holds the header-bearing top-level boxes of a file,
// concatenated in file order. Every span holds whole boxes.
type HeaderBuffer struct {
	buf     []byte
	Spans   []Span
	Regions []Region // the header-bearing regions the buffer holds
	Reads   int      // reads issued to fill the buffer
}

// Bytes returns the buffer, or nil after Release.
func (h *HeaderBuffer) Bytes() []byte {
	if h == nil {
		return nil
	}
	return h.buf
}

// Len returns the buffer length.
func (h *HeaderBuffer) Len() int {
	return len(h.Bytes())
}

// Released reports whether Release has been called.
func (h *HeaderBuffer) Released() bool {
	return h == nil || h.buf == nil
}

// Release drops the buffer. Views into it must not be used afterwards;
// accessors of this package return nil for them.
func (h *HeaderBuffer) Release() {
	if h == nil {
		return
	}
	h.buf = nil
}

// FileOffset translates a buffer offset to its file offset, or -1 if off
// lies outside every span.
func (h *HeaderBuffer) FileOffset(off int) int64 {
	for _, s := range h.Spans {
		if off >= s.BufOffset && off < s.BufOffset+s.Len {
			return s.FileOffset + int64(off-s.BufOffset)
		}
	}
	return -1
}

// spanEnd returns the end of the span holding buffer offset off.
func (h *HeaderBuffer) spanEnd(off int) int {
	for _, s := range h.Spans {
		if off >= s.BufOffset && off < s.BufOffset+s.Len {
			return s.BufOffset + s.Len
		}
	}
	return len(h.buf)
}

// coalesce merges adjacent or overlapping header-bearing regions into file
// spans. regions must be in file order.
func coalesce(regions []Region) ([]Span, []Region) {
	var spans []Span
	var kept []Region
	bufOff := 0
	for _, r := range regions {
		if !r.HeaderBearing() {
			continue
		}
		kept = append(kept, r)
		if n := len(spans); n > 0 {
			last := &spans[n-1]
			lastEnd := last.FileOffset + int64(last.Len)
			if r.Offset <= lastEnd {
				if end := r.End(); end > lastEnd {
					grow := int(end - lastEnd)
					last.Len += grow
					bufOff += grow
				}
				continue
			}
		}
		spans = append(spans, Span{FileOffset: r.Offset, BufOffset: bufOff, Len: int(r.Size)})
		bufOff += int(r.Size)
	}
	return spans, kept
}

// Materialize reads every header-bearing region into one buffer. Adjacent
// regions are coalesced into a single span, spans are split into reads of
// at most ReadSize bytes, and reads run concurrently, each landing at its
// span's buffer offset.
func Materialize(ctx context.Context, r io.ReaderAt, regions []Region, opts MaterializeOptions) (*HeaderBuffer, error) {
	spans, kept := coalesce(regions)

	var total int64
	for _, s := range spans {
		total += int64(s.Len)
	}
	if opts.MaxBytes > 0 && total > opts.MaxBytes {
		var sum int64
		for _, r := range kept {
			if sum += int64(r.Size); sum > opts.MaxBytes {
				return nil, newBoxError(r.Type, r.Offset, ErrInvalidSize,
					fmt.Sprintf("header-bearing boxes total %d bytes, over the %d byte limit", total, opts.MaxBytes))
			}
		}
	}

	hb := &HeaderBuffer{
		buf:     make([]byte, total),
		Spans:   spans,
		Regions: kept,
	}

	inflight := opts.MaxInflight
	if inflight <= 0 {
		inflight = DefaultMaxInflight
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(inflight)

	for _, s := range spans {
		step := s.Len
		if opts.ReadSize > 0 {
			step = opts.ReadSize
		}
		for done := 0; done < s.Len; done += step {
			n := min(step, s.Len-done)
			dst := hb.buf[s.BufOffset+done : s.BufOffset+done+n]
			off := s.FileOffset + int64(done)
			hb.Reads++
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				return readFull(r, dst, off)
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return hb, nil
}

// readFull fills dst from offset off. A full read that also reports io.EOF
// is a success.
func readFull(r io.ReaderAt, dst []byte, off int64) error {
	n, err := r.ReadAt(dst, off)
	if n == len(dst) {
		return nil
	}
	if err == nil || err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return fmt.Errorf("read %d bytes at offset %d: %w", len(dst), off, err)
}
