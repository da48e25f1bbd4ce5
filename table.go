package mp4

import (
	"errors"
	"fmt"
)

// Ref is a view of one box inside a HeaderBuffer. Offset is the buffer
// offset of the box header. A Ref is only meaningful together with the
// buffer it was built from and is invalid once that buffer is released.
type Ref struct {
	Offset     int
	Size       int
	HeaderSize int
	Version    uint8
	Flags      uint32
}

// Valid reports whether the ref points at a box.
func (r Ref) Valid() bool { return r.Size > 0 }

// TrackRefs holds the boxes recorded for one trak.
type TrackRefs struct {
	Trak Ref
	Tkhd Ref
	Mdhd Ref
	Hdlr Ref
	Stsd Ref
	Stts Ref
	Stss Ref
}

// Table indexes the boxes of a HeaderBuffer that the decoders consume.
type Table struct {
	hb     *HeaderBuffer
	Ftyp   Ref
	Moov   Ref
	Mvhd   Ref
	Tracks []TrackRefs
	Boxes  int // boxes visited while building
}

// Payload returns the payload of the box r refers to, or nil if the ref is
// unset or the buffer has been released.
func (t *Table) Payload(r Ref) []byte {
	buf := t.hb.Bytes()
	if !r.Valid() || buf == nil {
		return nil
	}
	return buf[r.Offset+r.HeaderSize : r.Offset+r.Size]
}

// FileOffset returns the file offset of the box r refers to.
func (t *Table) FileOffset(r Ref) int64 {
	return t.hb.FileOffset(r.Offset)
}

// Buffer returns the header buffer the table indexes.
func (t *Table) Buffer() *HeaderBuffer {
	return t.hb
}

// FileType decodes the ftyp box. ok is false if the file had none or the
// buffer has been released.
func (t *Table) FileType() (f Ftyp, ok bool) {
	p := t.Payload(t.Ftyp)
	if p == nil {
		return Ftyp{}, false
	}
	return DecodeFtyp(p), true
}

// MovieHeader decodes the mvhd box. ok is false if the buffer has been
// released.
func (t *Table) MovieHeader() (m Mvhd, ok bool) {
	p := t.Payload(t.Mvhd)
	if p == nil {
		return Mvhd{}, false
	}
	return DecodeMvhd(t.Mvhd.Version, p), true
}

// tableBuilder records refs in one pass, tracking the trak being filled.
type tableBuilder struct {
	hb  *HeaderBuffer
	t   *Table
	cur int // index into t.Tracks, -1 outside a trak
}

type frame struct {
	typ BoxType
	off int // buffer offset of the container header
	end int
}

// BuildTable indexes hb in a single linear pass. It steps into the
// moov/trak/mdia/minf/stbl chain and skips every other box by its declared
// size. Payload lengths of recorded boxes are validated here so that
// decoders can read fixed offsets without further checks.
func BuildTable(hb *HeaderBuffer) (*Table, error) {
	if hb.Released() {
		return nil, ErrReleased
	}
	b := &tableBuilder{hb: hb, t: &Table{hb: hb}, cur: -1}
	for _, s := range hb.Spans {
		if err := b.walk(s.BufOffset, s.BufOffset+s.Len); err != nil {
			return nil, err
		}
	}
	if !b.t.Moov.Valid() {
		return nil, newBoxError(TypeMoov, -1, ErrMissingBox, "no moov in header buffer")
	}
	if !b.t.Mvhd.Valid() {
		return nil, newBoxError(TypeMvhd, hb.FileOffset(b.t.Moov.Offset), ErrMissingBox, "moov has no mvhd")
	}
	return b.t, nil
}

func (b *tableBuilder) walk(start, end int) error {
	buf := b.hb.buf
	stack := []frame{{end: end}}
	off := start

	for len(stack) > 0 {
		top := stack[len(stack)-1]
		if off >= top.end {
			stack = stack[:len(stack)-1]
			if top.typ == TypeTrak {
				if err := b.endTrak(); err != nil {
					return err
				}
			}
			continue
		}

		h, err := ReadHeader(buf[off:top.end], uint64(top.end-off))
		if err != nil {
			if errors.Is(err, errShortHeader) {
				return newBoxError(top.typ, b.hb.FileOffset(top.off), ErrInvalidSize,
					fmt.Sprintf("%d trailing bytes cannot hold a child box header", top.end-off))
			}
			return withOffset(err, b.hb.FileOffset(off))
		}
		if h.ToEnd && top.typ != (BoxType{}) {
			return newBoxError(h.Type, b.hb.FileOffset(off), ErrInvalidSize,
				"zero size inside "+top.typ.String())
		}
		b.t.Boxes++

		ref := Ref{
			Offset:     off,
			Size:       int(h.Size),
			HeaderSize: h.HeaderSize,
			Version:    h.Version,
			Flags:      h.Flags,
		}
		if err := b.record(top.typ, h, ref); err != nil {
			return withOffset(err, b.hb.FileOffset(off))
		}

		if descends(top.typ, h.Type) {
			stack = append(stack, frame{typ: h.Type, off: off, end: off + int(h.Size)})
			off += h.HeaderSize
		} else {
			off += int(h.Size)
		}
	}
	return nil
}

// descends reports whether the builder steps into a box of type t found in
// parent. The zero BoxType is the top level.
func descends(parent, t BoxType) bool {
	switch t {
	case TypeMoov:
		return parent == BoxType{}
	case TypeTrak:
		return parent == TypeMoov
	case TypeMdia:
		return parent == TypeTrak
	case TypeMinf:
		return parent == TypeMdia
	case TypeStbl:
		return parent == TypeMinf
	}
	return false
}

// record attaches the box to the table according to its type and parent.
func (b *tableBuilder) record(parent BoxType, h Header, ref Ref) error {
	t := b.t
	switch h.Type {
	case TypeFtyp:
		if parent != (BoxType{}) {
			return nil
		}
		if t.Ftyp.Valid() {
			return newBoxError(h.Type, -1, ErrDuplicateBox, "second ftyp")
		}
		if err := CheckPayload(h, b.payload(ref)); err != nil {
			return err
		}
		t.Ftyp = ref
	case TypeMoov:
		if parent != (BoxType{}) {
			return nil
		}
		if t.Moov.Valid() {
			return newBoxError(h.Type, -1, ErrDuplicateBox, "second moov")
		}
		t.Moov = ref
	case TypeMvhd:
		if parent != TypeMoov {
			return nil
		}
		if t.Mvhd.Valid() {
			return newBoxError(h.Type, -1, ErrDuplicateBox, "second mvhd in moov")
		}
		if err := CheckPayload(h, b.payload(ref)); err != nil {
			return err
		}
		t.Mvhd = ref
	case TypeTrak:
		if parent != TypeMoov {
			return nil
		}
		t.Tracks = append(t.Tracks, TrackRefs{Trak: ref})
		b.cur = len(t.Tracks) - 1
	case TypeTkhd:
		return b.attach(h, ref, parent, TypeTrak, func(tr *TrackRefs) *Ref { return &tr.Tkhd })
	case TypeMdhd:
		return b.attach(h, ref, parent, TypeMdia, func(tr *TrackRefs) *Ref { return &tr.Mdhd })
	case TypeHdlr:
		return b.attach(h, ref, parent, TypeMdia, func(tr *TrackRefs) *Ref { return &tr.Hdlr })
	case TypeStsd:
		return b.attach(h, ref, parent, TypeStbl, func(tr *TrackRefs) *Ref { return &tr.Stsd })
	case TypeStts:
		return b.attach(h, ref, parent, TypeStbl, func(tr *TrackRefs) *Ref { return &tr.Stts })
	case TypeStss:
		return b.attach(h, ref, parent, TypeStbl, func(tr *TrackRefs) *Ref { return &tr.Stss })
	}
	return nil
}

// attach records a track-scoped box on the current track. Boxes of the same
// type in other containers (a QuickTime data handler in minf, say) are
// ignored.
func (b *tableBuilder) attach(h Header, ref Ref, parent, want BoxType, slot func(*TrackRefs) *Ref) error {
	if b.cur < 0 {
		return newBoxError(TypeTrak, -1, ErrMissingBox, fmt.Sprintf("%s outside any trak", h.Type))
	}
	if parent != want {
		return nil
	}
	dst := slot(&b.t.Tracks[b.cur])
	if dst.Valid() {
		return newBoxError(h.Type, -1, ErrDuplicateBox, fmt.Sprintf("second %s in track %d", h.Type, b.cur+1))
	}
	if err := CheckPayload(h, b.payload(ref)); err != nil {
		return err
	}
	*dst = ref
	return nil
}

// endTrak checks the boxes every track must carry and leaves track scope.
func (b *tableBuilder) endTrak() error {
	tr := b.t.Tracks[b.cur]
	b.cur = -1
	off := b.hb.FileOffset(tr.Trak.Offset)
	for _, req := range []struct {
		typ BoxType
		ref Ref
	}{
		{TypeTkhd, tr.Tkhd},
		{TypeMdhd, tr.Mdhd},
		{TypeHdlr, tr.Hdlr},
	} {
		if !req.ref.Valid() {
			return newBoxError(req.typ, off, ErrMissingBox, fmt.Sprintf("trak at offset %d has no %s", off, req.typ))
		}
	}
	return nil
}

func (b *tableBuilder) payload(r Ref) []byte {
	return b.hb.buf[r.Offset+r.HeaderSize : r.Offset+r.Size]
}
