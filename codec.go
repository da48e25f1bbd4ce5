package mp4

import "fmt"

// Box layout decoders. Each takes the payload of one box (the bytes after its
// header, so after version and flags for full boxes) and reads fixed or
// version-derived offsets. Payload lengths are validated once by BuildTable
// (see CheckPayload); the decoders themselves do not re-check them.

// MaxCompatibleBrands is the number of compatible brands Ftyp retains.
// Further brands are counted in TotalCompatible but not stored.
const MaxCompatibleBrands = 5

// Ftyp is the file type box.
type Ftyp struct {
	MajorBrand      BoxType
	MinorVersion    uint32
	Compatible      [MaxCompatibleBrands]BoxType
	NumCompatible   int // brands stored in Compatible
	TotalCompatible int // brands present in the box
}

// Brands returns the retained compatible brands.
func (f *Ftyp) Brands() []BoxType {
	return f.Compatible[:f.NumCompatible]
}

// DecodeFtyp decodes an ftyp (or styp) payload of at least 8 bytes.
func DecodeFtyp(b []byte) Ftyp {
	var f Ftyp
	copy(f.MajorBrand[:], b[0:4])
	f.MinorVersion = be.Uint32(b[4:8])
	for i := 8; i+4 <= len(b); i += 4 {
		if f.NumCompatible < MaxCompatibleBrands {
			copy(f.Compatible[f.NumCompatible][:], b[i:i+4])
			f.NumCompatible++
		}
		f.TotalCompatible++
	}
	return f
}

// --- mvhd ---

// Mvhd is the movie header box.
type Mvhd struct {
	Version          uint8
	CreationTime     uint64
	ModificationTime uint64
	TimeScale        uint32
	Duration         uint64
	Rate             Fixed32
	Volume           Fixed16
	Matrix           Matrix
	NextTrackID      uint32
}

// mvhd layouts:
//
//	v0: ctime(4)+mtime(4)+timescale(4)+duration(4) = 16
//	v1: ctime(8)+mtime(8)+timescale(4)+duration(8) = 28
//	then rate(4)+volume(2)+reserved(10)+matrix(36)+predefined(24)+nextTrackId(4) = 80
const (
	mvhdTimesV0 = 16
	mvhdTimesV1 = 28
	mvhdTail    = 80
)

// DecodeMvhd decodes an mvhd payload. version must be 0 or 1.
func DecodeMvhd(version uint8, b []byte) Mvhd {
	var m Mvhd
	var tail []byte
	if version == 1 {
		tail = m.decodeTimesV1(b)
	} else {
		tail = m.decodeTimesV0(b)
	}
	m.Version = version
	m.Rate = Fixed32(be.Uint32(tail[0:4]))
	m.Volume = Fixed16(be.Uint16(tail[4:6]))
	m.Matrix = readMatrix(tail[16:52])
	m.NextTrackID = be.Uint32(tail[76:80])
	return m
}

func (m *Mvhd) decodeTimesV0(b []byte) []byte {
	m.CreationTime = uint64(be.Uint32(b[0:4]))
	m.ModificationTime = uint64(be.Uint32(b[4:8]))
	m.TimeScale = be.Uint32(b[8:12])
	m.Duration = uint64(be.Uint32(b[12:16]))
	return b[mvhdTimesV0:]
}

func (m *Mvhd) decodeTimesV1(b []byte) []byte {
	m.CreationTime = be.Uint64(b[0:8])
	m.ModificationTime = be.Uint64(b[8:16])
	m.TimeScale = be.Uint32(b[16:20])
	m.Duration = be.Uint64(b[20:28])
	return b[mvhdTimesV1:]
}

// --- tkhd ---

// Track header flags.
const (
	TrackEnabled   = 0x000001
	TrackInMovie   = 0x000002
	TrackInPreview = 0x000004
)

// TrackKind is the media kind inferred from a track header.
type TrackKind uint8

const (
	KindMetadata TrackKind = iota
	KindVideo
	KindAudio
)

func (k TrackKind) String() string {
	switch k {
	case KindVideo:
		return "video"
	case KindAudio:
		return "audio"
	}
	return "metadata"
}

// Tkhd is the track header box.
type Tkhd struct {
	Version          uint8
	Flags            uint32
	CreationTime     uint64
	ModificationTime uint64
	TrackID          uint32
	Duration         uint64
	Layer            int16
	AlternateGroup   int16
	Volume           Fixed16
	Matrix           Matrix
	Width            UFixed32
	Height           UFixed32
}

// Enabled reports whether the track-enabled flag is set.
func (t *Tkhd) Enabled() bool { return t.Flags&TrackEnabled != 0 }

// Kind infers the track kind: a non-zero volume means audio, otherwise a
// non-zero width means video, otherwise metadata. The track header has no
// explicit type field.
func (t *Tkhd) Kind() TrackKind {
	switch {
	case t.Volume != 0:
		return KindAudio
	case t.Width != 0:
		return KindVideo
	}
	return KindMetadata
}

// tkhd layouts:
//
//	v0: ctime(4)+mtime(4)+trackId(4)+reserved(4)+duration(4) = 20
//	v1: ctime(8)+mtime(8)+trackId(4)+reserved(4)+duration(8) = 32
//	then reserved(8)+layer(2)+altGroup(2)+volume(2)+reserved(2)+matrix(36)+width(4)+height(4) = 60
const (
	tkhdTimesV0 = 20
	tkhdTimesV1 = 32
	tkhdTail    = 60
)

// DecodeTkhd decodes a tkhd payload. version must be 0 or 1.
func DecodeTkhd(version uint8, flags uint32, b []byte) Tkhd {
	var t Tkhd
	var tail []byte
	if version == 1 {
		tail = t.decodeTimesV1(b)
	} else {
		tail = t.decodeTimesV0(b)
	}
	t.Version = version
	t.Flags = flags
	t.Layer = int16(be.Uint16(tail[8:10]))
	t.AlternateGroup = int16(be.Uint16(tail[10:12]))
	t.Volume = Fixed16(be.Uint16(tail[12:14]))
	t.Matrix = readMatrix(tail[16:52])
	t.Width = UFixed32(be.Uint32(tail[52:56]))
	t.Height = UFixed32(be.Uint32(tail[56:60]))
	return t
}

func (t *Tkhd) decodeTimesV0(b []byte) []byte {
	t.CreationTime = uint64(be.Uint32(b[0:4]))
	t.ModificationTime = uint64(be.Uint32(b[4:8]))
	t.TrackID = be.Uint32(b[8:12])
	t.Duration = uint64(be.Uint32(b[16:20]))
	return b[tkhdTimesV0:]
}

func (t *Tkhd) decodeTimesV1(b []byte) []byte {
	t.CreationTime = be.Uint64(b[0:8])
	t.ModificationTime = be.Uint64(b[8:16])
	t.TrackID = be.Uint32(b[16:20])
	t.Duration = be.Uint64(b[24:32])
	return b[tkhdTimesV1:]
}

// --- mdhd ---

// Mdhd is the media header box.
type Mdhd struct {
	Version          uint8
	CreationTime     uint64
	ModificationTime uint64
	TimeScale        uint32
	Duration         uint64
	Language         uint16 // packed ISO-639-2/T, see PackLanguage
}

// LanguageCode returns the 3-letter language code.
func (m *Mdhd) LanguageCode() string {
	return unpackLanguage(m.Language)
}

// mdhd layouts:
//
//	v0: ctime(4)+mtime(4)+timescale(4)+duration(4) = 16
//	v1: ctime(8)+mtime(8)+timescale(4)+duration(8) = 28
//	then pad(1 bit)+language(15 bits)+predefined(2) = 4
const (
	mdhdTimesV0 = 16
	mdhdTimesV1 = 28
	mdhdTail    = 4
)

// DecodeMdhd decodes an mdhd payload. version must be 0 or 1.
func DecodeMdhd(version uint8, b []byte) Mdhd {
	var m Mdhd
	var tail []byte
	if version == 1 {
		tail = m.decodeTimesV1(b)
	} else {
		tail = m.decodeTimesV0(b)
	}
	m.Version = version
	m.Language = be.Uint16(tail[0:2]) & 0x7fff
	return m
}

func (m *Mdhd) decodeTimesV0(b []byte) []byte {
	m.CreationTime = uint64(be.Uint32(b[0:4]))
	m.ModificationTime = uint64(be.Uint32(b[4:8]))
	m.TimeScale = be.Uint32(b[8:12])
	m.Duration = uint64(be.Uint32(b[12:16]))
	return b[mdhdTimesV0:]
}

func (m *Mdhd) decodeTimesV1(b []byte) []byte {
	m.CreationTime = be.Uint64(b[0:8])
	m.ModificationTime = be.Uint64(b[8:16])
	m.TimeScale = be.Uint32(b[16:20])
	m.Duration = be.Uint64(b[20:28])
	return b[mdhdTimesV1:]
}

// --- hdlr ---

// Hdlr is the handler reference box.
type Hdlr struct {
	HandlerType BoxType
	Name        string
}

// hdlr: predefined(4)+handlerType(4)+reserved(12) then a NUL-terminated name
// running to the end of the box.
const hdlrFixed = 20

// DecodeHdlr decodes an hdlr payload of at least 20 bytes.
func DecodeHdlr(b []byte) Hdlr {
	var h Hdlr
	copy(h.HandlerType[:], b[4:8])
	h.Name = readCString(b[hdlrFixed:])
	return h
}

// --- stts ---

// SttsEntry is a run of Count samples sharing the same Delta.
type SttsEntry struct {
	Count uint32
	Delta uint32
}

// Stts is a time-to-sample table read in place from its payload.
type Stts struct {
	data []byte
}

// NewStts wraps an stts payload whose entries have been bounds-checked.
func NewStts(b []byte) Stts {
	return Stts{data: b}
}

// Count returns the number of run-length entries.
func (s Stts) Count() int {
	if len(s.data) < 4 {
		return 0
	}
	return int(be.Uint32(s.data[0:4]))
}

// Entry returns entry i.
func (s Stts) Entry(i int) SttsEntry {
	off := 4 + i*8
	return SttsEntry{
		Count: be.Uint32(s.data[off:]),
		Delta: be.Uint32(s.data[off+4:]),
	}
}

// TotalSamples sums the sample counts of all entries.
func (s Stts) TotalSamples() uint64 {
	var n uint64
	for i := range s.Count() {
		n += uint64(s.Entry(i).Count)
	}
	return n
}

// TotalDuration sums count*delta over all entries, in media timescale units.
func (s Stts) TotalDuration() uint64 {
	var d uint64
	for i := range s.Count() {
		e := s.Entry(i)
		d += uint64(e.Count) * uint64(e.Delta)
	}
	return d
}

// --- stss ---

// Stss is a sync sample table read in place from its payload. Sample
// numbers are 1-based and sorted ascending.
type Stss struct {
	data []byte
}

// NewStss wraps an stss payload whose entries have been bounds-checked.
func NewStss(b []byte) Stss {
	return Stss{data: b}
}

// Count returns the number of sync samples.
func (s Stss) Count() int {
	if len(s.data) < 4 {
		return 0
	}
	return int(be.Uint32(s.data[0:4]))
}

// Sample returns the i-th sync sample number.
func (s Stss) Sample(i int) uint32 {
	return be.Uint32(s.data[4+i*4:])
}

// IsSync reports whether sample n (1-based) is a sync sample.
func (s Stss) IsSync(n uint32) bool {
	lo, hi := 0, s.Count()
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		v := s.Sample(mid)
		switch {
		case v == n:
			return true
		case v < n:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return false
}

// CheckPayload validates the payload length and version of a box before it
// is handed to a decoder. Types without a fixed layout always pass.
func CheckPayload(h Header, b []byte) error {
	switch h.Type {
	case TypeMvhd, TypeTkhd, TypeMdhd:
		if h.Version > 1 {
			return newBoxError(h.Type, -1, ErrUnsupportedVersion,
				fmt.Sprintf("version %d", h.Version))
		}
	}

	need := 0
	switch h.Type {
	case TypeFtyp:
		need = 8
	case TypeMvhd:
		need = versioned(h.Version, mvhdTimesV0, mvhdTimesV1) + mvhdTail
	case TypeTkhd:
		need = versioned(h.Version, tkhdTimesV0, tkhdTimesV1) + tkhdTail
	case TypeMdhd:
		need = versioned(h.Version, mdhdTimesV0, mdhdTimesV1) + mdhdTail
	case TypeHdlr:
		need = hdlrFixed
	case TypeStsd:
		need = 4
	case TypeStts:
		need = 4 + 8*tableCount(b)
	case TypeStss:
		need = 4 + 4*tableCount(b)
	default:
		return nil
	}

	if len(b) < need {
		return newBoxError(h.Type, -1, ErrInvalidSize,
			fmt.Sprintf("payload of %d bytes is shorter than the %d bytes its layout requires", len(b), need))
	}
	return nil
}

func versioned(version uint8, v0, v1 int) int {
	if version == 1 {
		return v1
	}
	return v0
}

// tableCount reads the leading entry count of a table payload.
func tableCount(b []byte) int {
	if len(b) < 4 {
		return 0
	}
	return int(be.Uint32(b[0:4]))
}
