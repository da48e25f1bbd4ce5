// Package mp4 locates, indexes and decodes ISO Base Media File Format (MP4)
// boxes without reading media payload into memory.
//
// The pipeline is Scanner (top-level regions, streamed in chunks) ->
// Materialize (one buffer holding only header-bearing regions) -> BuildTable
// (per-track index of box views) -> Decode* (zero-copy payload decoders).
package mp4

import (
	"encoding/binary"
	"fmt"
	"math"
)

var be = binary.BigEndian

const uint32Max = math.MaxUint32

// Header sizes in bytes.
const (
	BasicBoxLen = 8  // size + type
	FullBoxLen  = 12 // size + type + version + flags
	largeLen    = 8  // 64-bit size following a size field of 1
)

// BoxType is a 4-byte box type identifier (FourCC).
type BoxType [4]byte

func (t BoxType) String() string {
	return string(t[:])
}

// Uint32 returns the FourCC interpreted as a big-endian integer
// ("ftyp" = 0x66747970).
func (t BoxType) Uint32() uint32 {
	return be.Uint32(t[:])
}

// newBoxType creates a BoxType from a 4-character string.
func newBoxType(s string) BoxType {
	var t BoxType
	copy(t[:], s)
	return t
}

// Known box types.
var (
	TypeFtyp = newBoxType("ftyp")
	TypeStyp = newBoxType("styp")
	TypePdin = newBoxType("pdin")
	TypeMoov = newBoxType("moov")
	TypeMvhd = newBoxType("mvhd")
	TypeIods = newBoxType("iods")
	TypeTrak = newBoxType("trak")
	TypeTkhd = newBoxType("tkhd")
	TypeTref = newBoxType("tref")
	TypeTrgr = newBoxType("trgr")
	TypeEdts = newBoxType("edts")
	TypeElst = newBoxType("elst")
	TypeMdia = newBoxType("mdia")
	TypeMdhd = newBoxType("mdhd")
	TypeHdlr = newBoxType("hdlr")
	TypeElng = newBoxType("elng")
	TypeMinf = newBoxType("minf")
	TypeVmhd = newBoxType("vmhd")
	TypeSmhd = newBoxType("smhd")
	TypeHmhd = newBoxType("hmhd")
	TypeSthd = newBoxType("sthd")
	TypeNmhd = newBoxType("nmhd")
	TypeDinf = newBoxType("dinf")
	TypeDref = newBoxType("dref")
	TypeStbl = newBoxType("stbl")
	TypeStsd = newBoxType("stsd")
	TypeStts = newBoxType("stts")
	TypeCtts = newBoxType("ctts")
	TypeCslg = newBoxType("cslg")
	TypeStsc = newBoxType("stsc")
	TypeStsz = newBoxType("stsz")
	TypeStz2 = newBoxType("stz2")
	TypeStco = newBoxType("stco")
	TypeCo64 = newBoxType("co64")
	TypeStss = newBoxType("stss")
	TypeStsh = newBoxType("stsh")
	TypePadb = newBoxType("padb")
	TypeStdp = newBoxType("stdp")
	TypeSdtp = newBoxType("sdtp")
	TypeSbgp = newBoxType("sbgp")
	TypeSgpd = newBoxType("sgpd")
	TypeSubs = newBoxType("subs")
	TypeSaiz = newBoxType("saiz")
	TypeSaio = newBoxType("saio")
	TypeMvex = newBoxType("mvex")
	TypeMehd = newBoxType("mehd")
	TypeTrex = newBoxType("trex")
	TypeLeva = newBoxType("leva")
	TypeMoof = newBoxType("moof")
	TypeMfhd = newBoxType("mfhd")
	TypeTraf = newBoxType("traf")
	TypeTfhd = newBoxType("tfhd")
	TypeTfdt = newBoxType("tfdt")
	TypeTrun = newBoxType("trun")
	TypeMfra = newBoxType("mfra")
	TypeTfra = newBoxType("tfra")
	TypeMfro = newBoxType("mfro")
	TypeSidx = newBoxType("sidx")
	TypeMeta = newBoxType("meta")
	TypeUdta = newBoxType("udta")
	TypeMdat = newBoxType("mdat")
	TypeFree = newBoxType("free")
	TypeSkip = newBoxType("skip")
	TypeWide = newBoxType("wide")
	TypeUUID = newBoxType("uuid")

	// Sample entries and their children.
	TypeAvc1 = newBoxType("avc1")
	TypeAvc3 = newBoxType("avc3")
	TypeHvc1 = newBoxType("hvc1")
	TypeHev1 = newBoxType("hev1")
	TypeMp4v = newBoxType("mp4v")
	TypeEncv = newBoxType("encv")
	TypeMp4a = newBoxType("mp4a")
	TypeEnca = newBoxType("enca")
	TypeAvcC = newBoxType("avcC")
	TypeHvcC = newBoxType("hvcC")
	TypeBtrt = newBoxType("btrt")
	TypeClap = newBoxType("clap")
	TypePasp = newBoxType("pasp")
	TypeColr = newBoxType("colr")
	TypeEsds = newBoxType("esds")
	TypeSrat = newBoxType("srat")
	TypeChnl = newBoxType("chnl")
	TypeSinf = newBoxType("sinf")

	// Handler types.
	HandlerVideo = newBoxType("vide")
	HandlerSound = newBoxType("soun")
)

// Class is the structural classification of a box type.
type Class uint8

const (
	ClassUnknown Class = iota
	ClassLeaf
	ClassContainer
)

func (c Class) String() string {
	switch c {
	case ClassLeaf:
		return "leaf"
	case ClassContainer:
		return "container"
	}
	return "unknown"
}

// containerTypes hold only child boxes in their payload.
var containerTypes = map[BoxType]bool{
	TypeMoov: true, TypeTrak: true, TypeTref: true, TypeTrgr: true,
	TypeEdts: true, TypeMdia: true, TypeMinf: true, TypeDinf: true,
	TypeStbl: true, TypeMvex: true, TypeMoof: true, TypeTraf: true,
	TypeMfra: true, TypeUdta: true, TypeSinf: true,
}

// leafTypes are recognized boxes whose payload is a fixed layout, a table,
// or a list of entries that is not plain child boxes.
var leafTypes = map[BoxType]bool{
	TypeFtyp: true, TypeStyp: true, TypePdin: true, TypeMvhd: true,
	TypeIods: true, TypeTkhd: true, TypeElst: true, TypeMdhd: true,
	TypeHdlr: true, TypeElng: true, TypeVmhd: true, TypeSmhd: true,
	TypeHmhd: true, TypeSthd: true, TypeNmhd: true, TypeDref: true,
	TypeStsd: true, TypeStts: true, TypeCtts: true, TypeCslg: true,
	TypeStsc: true, TypeStsz: true, TypeStz2: true, TypeStco: true,
	TypeCo64: true, TypeStss: true, TypeStsh: true, TypePadb: true,
	TypeStdp: true, TypeSdtp: true, TypeSbgp: true, TypeSgpd: true,
	TypeSubs: true, TypeSaiz: true, TypeSaio: true, TypeMehd: true,
	TypeTrex: true, TypeLeva: true, TypeMfhd: true, TypeTfhd: true,
	TypeTfdt: true, TypeTrun: true, TypeTfra: true, TypeMfro: true,
	TypeSidx: true, TypeMeta: true, TypeMdat: true, TypeFree: true,
	TypeSkip: true, TypeWide: true, TypeUUID: true,
	TypeAvc1: true, TypeAvc3: true, TypeHvc1: true, TypeHev1: true,
	TypeMp4v: true, TypeEncv: true, TypeMp4a: true, TypeEnca: true,
	TypeAvcC: true, TypeHvcC: true, TypeBtrt: true, TypeClap: true,
	TypePasp: true, TypeColr: true, TypeEsds: true, TypeSrat: true,
	TypeChnl: true,
}

// fullBoxes is the set of box types that have version+flags in their header.
var fullBoxes = map[BoxType]bool{
	TypeMvhd: true, TypeTkhd: true, TypeMdhd: true, TypeVmhd: true, TypeSmhd: true,
	TypeHmhd: true, TypeNmhd: true, TypeSthd: true, TypeElng: true,
	TypeStsd: true, TypeEsds: true, TypeStsz: true, TypeStz2: true, TypeStco: true,
	TypeCo64: true, TypeStss: true, TypeStts: true, TypeCtts: true, TypeStsc: true,
	TypeCslg: true, TypeStsh: true, TypePadb: true, TypeStdp: true, TypeSdtp: true,
	TypeSbgp: true, TypeSgpd: true, TypeSubs: true, TypeSaiz: true, TypeSaio: true,
	TypeDref: true, TypeElst: true, TypeHdlr: true, TypeMehd: true, TypeTrex: true,
	TypeLeva: true, TypeMfhd: true, TypeTfhd: true, TypeTfdt: true, TypeTrun: true,
	TypeTfra: true, TypeMfro: true, TypeSidx: true, TypeMeta: true, TypeIods: true,
	TypeSrat: true, TypeChnl: true,
}

// Classify reports whether t is a container, a recognized leaf, or unknown.
// Unknown types must not be descended into.
func Classify(t BoxType) Class {
	switch {
	case containerTypes[t]:
		return ClassContainer
	case leafTypes[t]:
		return ClassLeaf
	}
	return ClassUnknown
}

// IsContainerBox reports whether t holds only child boxes.
func IsContainerBox(t BoxType) bool {
	return containerTypes[t]
}

// IsFullBox reports whether t carries a version and flags after its type.
func IsFullBox(t BoxType) bool {
	return fullBoxes[t]
}

// Header is a parsed box header.
type Header struct {
	Type BoxType
	// Size is the total box size including the header. A size field of 0 is
	// resolved to the remaining bytes of the enclosing range.
	Size       uint64
	HeaderSize int
	Version    uint8
	Flags      uint32
	Full       bool
	Extended   bool // size field was 1, 64-bit size follows
	ToEnd      bool // size field was 0
}

// PayloadSize returns the number of bytes after the header.
func (h Header) PayloadSize() uint64 {
	return h.Size - uint64(h.HeaderSize)
}

// MinHeaderSize is the number of bytes ReadHeader needs to see for any box:
// an extended size plus version and flags.
const MinHeaderSize = BasicBoxLen + largeLen + 4

// ReadHeader parses the box header at the start of b. remain is the number of
// bytes from the start of the box to the end of its enclosing range (file or
// parent box); it resolves size 0 and bounds every other size.
//
// If b is too short to hold the complete header, errShortHeader is returned
// and the caller should retry with more bytes. A declared size smaller than
// the header or larger than remain yields ErrInvalidSize.
func ReadHeader(b []byte, remain uint64) (Header, error) {
	if len(b) < BasicBoxLen {
		return Header{}, errShortHeader
	}

	var h Header
	size := uint64(be.Uint32(b[0:4]))
	copy(h.Type[:], b[4:8])
	ptr := BasicBoxLen

	switch size {
	case 1:
		if len(b) < BasicBoxLen+largeLen {
			return Header{}, errShortHeader
		}
		size = be.Uint64(b[8:16])
		h.Extended = true
		ptr += largeLen
	case 0:
		size = remain
		h.ToEnd = true
	}

	if fullBoxes[h.Type] {
		if len(b) < ptr+4 {
			return Header{}, errShortHeader
		}
		vf := be.Uint32(b[ptr:])
		h.Version = uint8(vf >> 24)
		h.Flags = vf & 0x00ffffff
		h.Full = true
		ptr += 4
	}

	h.Size = size
	h.HeaderSize = ptr

	if size < uint64(ptr) {
		return h, newBoxError(h.Type, -1, ErrInvalidSize,
			fmt.Sprintf("declared size %d is smaller than its %d-byte header", size, ptr))
	}
	if size > remain {
		return h, newBoxError(h.Type, -1, ErrInvalidSize,
			fmt.Sprintf("declared size %d exceeds the %d bytes remaining", size, remain))
	}
	return h, nil
}

// headerLen returns the header size an encoder must emit for a box of the
// given total size.
func headerLen(t BoxType, size uint64) int {
	n := BasicBoxLen
	if size > uint32Max {
		n += largeLen
	}
	if fullBoxes[t] {
		n += 4
	}
	return n
}
