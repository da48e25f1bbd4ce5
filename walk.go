package mp4

import "errors"

// SkipChildren is returned by a WalkFunc to skip the children of the box it
// was called with.
var SkipChildren = errors.New("skip children")

// WalkBox is a box visited by Walk.
type WalkBox struct {
	Header
	Depth      int
	FileOffset int64
	Payload    []byte
}

// WalkFunc is called for every box in depth-first file order.
type WalkFunc func(b *WalkBox) error

// visualFormats and audioFormats are the sample entries Walk descends into.
var (
	visualFormats = map[BoxType]bool{
		TypeAvc1: true, TypeAvc3: true, TypeHvc1: true, TypeHev1: true,
		TypeMp4v: true, TypeEncv: true,
	}
	audioFormats = map[BoxType]bool{
		TypeMp4a: true, TypeEnca: true,
	}
)

// Walk visits every box of hb, descending into containers, the entries of
// stsd and the child boxes of known sample entries. Unknown boxes are
// reported but never descended into.
func Walk(hb *HeaderBuffer, fn WalkFunc) error {
	if hb.Released() {
		return ErrReleased
	}
	buf := hb.Bytes()
	for _, s := range hb.Spans {
		if err := walkRange(hb, buf, s.BufOffset, s.BufOffset+s.Len, 0, fn); err != nil {
			return err
		}
	}
	return nil
}

func walkRange(hb *HeaderBuffer, buf []byte, off, end, depth int, fn WalkFunc) error {
	for end-off >= BasicBoxLen {
		h, err := ReadHeader(buf[off:end], uint64(end-off))
		if err != nil {
			if errors.Is(err, errShortHeader) {
				return nil
			}
			return withOffset(err, hb.FileOffset(off))
		}
		if h.ToEnd && depth > 0 {
			return newBoxError(h.Type, hb.FileOffset(off), ErrInvalidSize, "zero size inside a box")
		}
		box := &WalkBox{
			Header:     h,
			Depth:      depth,
			FileOffset: hb.FileOffset(off),
			Payload:    buf[off+h.HeaderSize : off+int(h.Size)],
		}
		err = fn(box)
		switch {
		case errors.Is(err, SkipChildren):
		case err != nil:
			return err
		default:
			if child := childOffset(h.Type, box.Payload); child >= 0 {
				start := off + h.HeaderSize + child
				if err := walkRange(hb, buf, start, off+int(h.Size), depth+1, fn); err != nil {
					return err
				}
			}
		}
		off += int(h.Size)
	}
	return nil
}

// childOffset returns where the children of a box of type t start within
// its payload, or -1 if it has none to walk.
func childOffset(t BoxType, p []byte) int {
	switch {
	case IsContainerBox(t):
		return 0
	case t == TypeStsd:
		return 4
	case visualFormats[t]:
		if len(p) >= visualEntryLen {
			return visualEntryLen
		}
	case audioFormats[t]:
		if len(p) >= audioEntryLen {
			return audioChildOffset(be.Uint16(p[8:10]), p)
		}
	}
	return -1
}
