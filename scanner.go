package mp4

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// DefaultChunkSize is the scanner read size when none is configured.
const DefaultChunkSize = 8192

// Region is a top-level box located by the Scanner.
type Region struct {
	Type       BoxType
	Offset     int64  // file offset of the box header
	Size       uint64 // total box size including header
	HeaderSize int
}

// End returns the file offset just past the box.
func (r Region) End() int64 {
	return r.Offset + int64(r.Size)
}

// PayloadSize returns the size of the box data (excluding the header).
func (r Region) PayloadSize() uint64 {
	return r.Size - uint64(r.HeaderSize)
}

// HeaderBearing reports whether the region holds structural metadata that
// must be materialized. Media data and padding do not.
func (r Region) HeaderBearing() bool {
	switch r.Type {
	case TypeFtyp, TypeStyp, TypeMoov, TypeMoof, TypeMeta, TypeMfra, TypeSidx:
		return true
	}
	return false
}

// ScanOptions configures a Scanner.
type ScanOptions struct {
	// ChunkSize is the number of bytes requested per read. Values below
	// MinHeaderSize are raised to it; zero means DefaultChunkSize.
	ChunkSize int
}

// Scanner locates top-level boxes by reading the file in fixed-size chunks
// and parsing as many headers as each chunk holds. Box payloads are skipped
// by their declared size and never read, so scanning a file with a large
// mdat costs a handful of reads.
//
// Typical usage:
//
//	sc := mp4.NewScanner(f, size, mp4.ScanOptions{})
//	for sc.Next() {
//	    r := sc.Region()
//	    ...
//	}
//	if err := sc.Err(); err != nil { ... }
type Scanner struct {
	r    io.ReaderAt
	size int64

	buf    []byte
	bufOff int64 // file offset of buf[0]
	bufLen int

	pos    int64 // file offset of the next box
	region Region
	err    error
	done   bool

	seenFtyp bool
	seenMoov bool

	reads     int
	bytesRead int64
}

// NewScanner returns a Scanner over the first size bytes of r.
func NewScanner(r io.ReaderAt, size int64, opts ScanOptions) *Scanner {
	chunk := opts.ChunkSize
	if chunk == 0 {
		chunk = DefaultChunkSize
	}
	chunk = max(chunk, MinHeaderSize)
	return &Scanner{
		r:      r,
		size:   size,
		buf:    make([]byte, chunk),
		bufOff: -1,
	}
}

// Next advances to the next top-level box. It returns false at the end of
// the file or on error; check Err after the loop.
func (s *Scanner) Next() bool {
	if s.done || s.err != nil {
		return false
	}
	if s.pos >= s.size {
		s.finish()
		return false
	}

	remain := uint64(s.size - s.pos)
	need := int(min(uint64(MinHeaderSize), remain))
	if s.bufOff < 0 || s.pos < s.bufOff || s.pos+int64(need) > s.bufOff+int64(s.bufLen) {
		if err := s.fill(); err != nil {
			s.err = err
			return false
		}
	}

	b := s.buf[s.pos-s.bufOff : s.bufLen]
	h, err := ReadHeader(b, remain)
	if err != nil {
		if errors.Is(err, errShortHeader) {
			// Fewer bytes than a header remain in the file.
			s.finish()
			return false
		}
		s.err = withOffset(err, s.pos)
		return false
	}

	switch h.Type {
	case TypeFtyp:
		if s.seenFtyp {
			s.err = newBoxError(h.Type, s.pos, ErrDuplicateBox, "second top-level ftyp")
			return false
		}
		s.seenFtyp = true
	case TypeMoov:
		if s.seenMoov {
			s.err = newBoxError(h.Type, s.pos, ErrDuplicateBox, "second top-level moov")
			return false
		}
		s.seenMoov = true
	}

	s.region = Region{
		Type:       h.Type,
		Offset:     s.pos,
		Size:       h.Size,
		HeaderSize: h.HeaderSize,
	}
	s.pos += int64(h.Size)
	return true
}

// fill reads the next chunk starting at the current box offset.
func (s *Scanner) fill() error {
	n := int(min(int64(len(s.buf)), s.size-s.pos))
	got, err := s.r.ReadAt(s.buf[:n], s.pos)
	s.reads++
	s.bytesRead += int64(got)
	if got < n {
		if err == nil || err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return fmt.Errorf("read %d bytes at offset %d: %w", n, s.pos, err)
	}
	s.bufOff = s.pos
	s.bufLen = n
	return nil
}

// finish ends the scan and reports required boxes that never appeared.
func (s *Scanner) finish() {
	s.done = true
	switch {
	case !s.seenFtyp:
		s.err = newBoxError(TypeFtyp, -1, ErrMissingBox, "no top-level ftyp before end of file")
	case !s.seenMoov:
		s.err = newBoxError(TypeMoov, -1, ErrMissingBox, "no top-level moov before end of file")
	}
}

// Region returns the current box. Only valid after Next returns true.
func (s *Scanner) Region() Region {
	return s.region
}

// Err returns the first error encountered by the Scanner.
func (s *Scanner) Err() error {
	return s.err
}

// Reads returns the number of reads issued so far.
func (s *Scanner) Reads() int {
	return s.reads
}

// BytesRead returns the number of bytes read so far.
func (s *Scanner) BytesRead() int64 {
	return s.bytesRead
}

// ScanAll runs the scanner to completion and returns the regions in file
// order. ctx is checked before every box; on cancellation the regions found
// so far are returned with the context error.
func (s *Scanner) ScanAll(ctx context.Context) ([]Region, error) {
	var regions []Region
	for {
		if err := ctx.Err(); err != nil {
			return regions, fmt.Errorf("scan stopped at offset %d: %w", s.pos, err)
		}
		if !s.Next() {
			break
		}
		regions = append(regions, s.region)
	}
	return regions, s.err
}
