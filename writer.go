package mp4

// Writer serializes boxes into a byte slice. Boxes that hold children are
// opened with StartBox and closed with EndBox, which patches the size field.
// Leaf boxes are written whole by the Write* methods.
//
//	w := mp4.NewWriter(buf)
//	w.WriteFtyp(major, 0x200, brands)
//	w.StartBox(mp4.TypeMoov)
//	w.WriteMvhd(mvhd)
//	w.EndBox()
//	out := w.Bytes()
type Writer struct {
	buf  []byte
	open []int // start offsets of boxes awaiting EndBox
}

// NewWriter returns a Writer that appends to buf[:0], growing it as needed.
func NewWriter(buf []byte) *Writer {
	return &Writer{buf: buf[:0]}
}

// Bytes returns the serialized boxes. Boxes still open have a zero size
// field.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// Len returns the number of bytes written so far.
func (w *Writer) Len() int {
	return len(w.buf)
}

// grow extends the buffer by n bytes and returns them.
func (w *Writer) grow(n int) []byte {
	l := len(w.buf)
	if cap(w.buf)-l < n {
		nb := make([]byte, l, 2*cap(w.buf)+n)
		copy(nb, w.buf)
		w.buf = nb
	}
	w.buf = w.buf[:l+n]
	b := w.buf[l:]
	clear(b)
	return b
}

// StartBox opens a box of type t. For full box types the version and flags
// are written as zero; use StartFullBox to set them.
func (w *Writer) StartBox(t BoxType) {
	w.StartFullBox(t, 0, 0)
}

// StartFullBox opens a box with explicit version and flags. For types that
// are not full boxes version and flags are ignored.
func (w *Writer) StartFullBox(t BoxType, version uint8, flags uint32) {
	w.open = append(w.open, len(w.buf))
	w.putHeader(t, 0, version, flags)
}

// EndBox closes the innermost open box. A box that outgrew 32 bits is
// rewritten with an extended size.
func (w *Writer) EndBox() {
	n := len(w.open)
	if n == 0 {
		return
	}
	start := w.open[n-1]
	w.open = w.open[:n-1]

	size := uint64(len(w.buf) - start)
	if size <= uint32Max {
		be.PutUint32(w.buf[start:], uint32(size))
		return
	}

	// Shift everything after the type to make room for the 64-bit size.
	w.grow(largeLen)
	copy(w.buf[start+BasicBoxLen+largeLen:], w.buf[start+BasicBoxLen:len(w.buf)-largeLen])
	be.PutUint32(w.buf[start:], 1)
	be.PutUint64(w.buf[start+BasicBoxLen:], size+largeLen)
}

func (w *Writer) putHeader(t BoxType, size uint64, version uint8, flags uint32) {
	hl := headerLen(t, size)
	b := w.grow(hl)
	copy(b[4:8], t[:])
	ptr := BasicBoxLen
	if size > uint32Max {
		be.PutUint32(b[0:4], 1)
		be.PutUint64(b[8:16], size)
		ptr += largeLen
	} else {
		be.PutUint32(b[0:4], uint32(size))
	}
	if fullBoxes[t] {
		be.PutUint32(b[ptr:], uint32(version)<<24|flags&0x00ffffff)
	}
}

// WriteBox writes a complete box whose payload is p. Full box types get
// version and flags of zero.
func (w *Writer) WriteBox(t BoxType, p []byte) {
	w.WriteFullBox(t, 0, 0, p)
}

// WriteFullBox writes a complete box with explicit version and flags.
func (w *Writer) WriteFullBox(t BoxType, version uint8, flags uint32, p []byte) {
	size := uint64(len(p)) + uint64(BasicBoxLen)
	if fullBoxes[t] {
		size += 4
	}
	if size > uint32Max {
		size += largeLen
	}
	w.putHeader(t, size, version, flags)
	copy(w.grow(len(p)), p)
}

// leaf writes the header of a box with a payload of n bytes and returns the
// payload for the caller to fill.
func (w *Writer) leaf(t BoxType, version uint8, flags uint32, n int) []byte {
	size := uint64(headerLen(t, uint64(n)+FullBoxLen) + n)
	w.putHeader(t, size, version, flags)
	return w.grow(n)
}

// WriteFtyp writes an ftyp box. All compatible brands are written, including
// those beyond MaxCompatibleBrands.
func (w *Writer) WriteFtyp(major BoxType, minor uint32, compatible []BoxType) {
	b := w.leaf(TypeFtyp, 0, 0, 8+4*len(compatible))
	copy(b[0:4], major[:])
	be.PutUint32(b[4:8], minor)
	for i, c := range compatible {
		copy(b[8+4*i:], c[:])
	}
}

// WriteMvhd writes an mvhd box using m.Version (0 or 1) for its layout.
func (w *Writer) WriteMvhd(m Mvhd) {
	wide := m.Version == 1
	tl := versioned(m.Version, mvhdTimesV0, mvhdTimesV1)
	b := w.leaf(TypeMvhd, m.Version, 0, tl+mvhdTail)
	putMovieTimes(b, wide, m.CreationTime, m.ModificationTime, m.TimeScale, m.Duration)
	tail := b[tl:]
	be.PutUint32(tail[0:4], uint32(m.Rate))
	be.PutUint16(tail[4:6], uint16(m.Volume))
	putMatrix(tail[16:52], m.Matrix)
	be.PutUint32(tail[76:80], m.NextTrackID)
}

// WriteTkhd writes a tkhd box using t.Version (0 or 1) for its layout.
func (w *Writer) WriteTkhd(t Tkhd) {
	wide := t.Version == 1
	tl := versioned(t.Version, tkhdTimesV0, tkhdTimesV1)
	b := w.leaf(TypeTkhd, t.Version, t.Flags, tl+tkhdTail)
	n := 4
	if wide {
		n = 8
	}
	putTime(b[0:], t.CreationTime, wide)
	putTime(b[n:], t.ModificationTime, wide)
	be.PutUint32(b[2*n:], t.TrackID)
	putTime(b[2*n+8:], t.Duration, wide)
	tail := b[tl:]
	be.PutUint16(tail[8:10], uint16(t.Layer))
	be.PutUint16(tail[10:12], uint16(t.AlternateGroup))
	be.PutUint16(tail[12:14], uint16(t.Volume))
	putMatrix(tail[16:52], t.Matrix)
	be.PutUint32(tail[52:56], uint32(t.Width))
	be.PutUint32(tail[56:60], uint32(t.Height))
}

// WriteMdhd writes an mdhd box using m.Version (0 or 1) for its layout.
func (w *Writer) WriteMdhd(m Mdhd) {
	wide := m.Version == 1
	tl := versioned(m.Version, mdhdTimesV0, mdhdTimesV1)
	b := w.leaf(TypeMdhd, m.Version, 0, tl+mdhdTail)
	putMovieTimes(b, wide, m.CreationTime, m.ModificationTime, m.TimeScale, m.Duration)
	be.PutUint16(b[tl:], m.Language&0x7fff)
}

// putMovieTimes writes the ctime, mtime, timescale, duration run shared by
// mvhd and mdhd.
func putMovieTimes(b []byte, wide bool, ctime, mtime uint64, timescale uint32, duration uint64) {
	n := 4
	if wide {
		n = 8
	}
	putTime(b[0:], ctime, wide)
	putTime(b[n:], mtime, wide)
	be.PutUint32(b[2*n:], timescale)
	putTime(b[2*n+4:], duration, wide)
}

// WriteHdlr writes an hdlr box with a NUL-terminated name.
func (w *Writer) WriteHdlr(handler BoxType, name string) {
	b := w.leaf(TypeHdlr, 0, 0, hdlrFixed+len(name)+1)
	copy(b[4:8], handler[:])
	copy(b[hdlrFixed:], name)
}

// WriteStts writes a time-to-sample table.
func (w *Writer) WriteStts(entries []SttsEntry) {
	b := w.leaf(TypeStts, 0, 0, 4+8*len(entries))
	be.PutUint32(b[0:4], uint32(len(entries)))
	for i, e := range entries {
		be.PutUint32(b[4+8*i:], e.Count)
		be.PutUint32(b[8+8*i:], e.Delta)
	}
}

// WriteStss writes a sync sample table.
func (w *Writer) WriteStss(samples []uint32) {
	b := w.leaf(TypeStss, 0, 0, 4+4*len(samples))
	be.PutUint32(b[0:4], uint32(len(samples)))
	for i, s := range samples {
		be.PutUint32(b[4+4*i:], s)
	}
}

// StartStsd opens an stsd box announcing count entries. Entries follow as
// sample entry boxes; close with EndBox.
func (w *Writer) StartStsd(count uint32) {
	w.StartBox(TypeStsd)
	be.PutUint32(w.grow(4), count)
}

// StartVisualSampleEntry opens a visual sample entry of the given format and
// writes its fixed fields. Child boxes (avcC, pasp, ...) follow; close with
// EndBox.
func (w *Writer) StartVisualSampleEntry(format BoxType, v VisualSampleEntry) {
	w.StartBox(format)
	b := w.grow(visualEntryLen)
	be.PutUint16(b[6:8], v.DataReferenceIndex)
	be.PutUint16(b[24:26], v.Width)
	be.PutUint16(b[26:28], v.Height)
	be.PutUint32(b[28:32], uint32(v.HResolution))
	be.PutUint32(b[32:36], uint32(v.VResolution))
	be.PutUint16(b[40:42], v.FrameCount)
	name := v.CompressorName
	if len(name) > 31 {
		name = name[:31]
	}
	b[42] = byte(len(name))
	copy(b[43:74], name)
	be.PutUint16(b[74:76], v.Depth)
	be.PutUint16(b[76:78], 0xffff)
}

// StartAudioSampleEntry opens an audio sample entry of the given format and
// writes its fixed fields in the 28-byte layout. Rates that do not fit the
// 16-bit integer part are written as 0 and should be carried in an srat
// child. Close with EndBox.
func (w *Writer) StartAudioSampleEntry(format BoxType, a AudioSampleEntry) {
	w.StartBox(format)
	b := w.grow(audioEntryLen)
	be.PutUint16(b[6:8], a.DataReferenceIndex)
	be.PutUint16(b[8:10], a.Version)
	be.PutUint16(b[16:18], a.ChannelCount)
	be.PutUint16(b[18:20], a.SampleSize)
	if a.SampleRate <= 0xffff {
		be.PutUint32(b[24:28], a.SampleRate<<16)
	}
}

// WriteBtrt writes a btrt box.
func (w *Writer) WriteBtrt(v Btrt) {
	b := w.leaf(TypeBtrt, 0, 0, 12)
	be.PutUint32(b[0:4], v.BufferSizeDB)
	be.PutUint32(b[4:8], v.MaxBitrate)
	be.PutUint32(b[8:12], v.AvgBitrate)
}

// WritePasp writes a pasp box.
func (w *Writer) WritePasp(p Pasp) {
	b := w.leaf(TypePasp, 0, 0, 8)
	be.PutUint32(b[0:4], p.HSpacing)
	be.PutUint32(b[4:8], p.VSpacing)
}

// WriteSrat writes an srat box carrying a sampling rate in Hz.
func (w *Writer) WriteSrat(rate uint32) {
	b := w.leaf(TypeSrat, 0, 0, 4)
	be.PutUint32(b, rate)
}
