package mp4

import (
	"errors"
	"fmt"
)

// Sample entry layouts:
//
//	common: reserved(6)+dataReferenceIndex(2) = 8
//	visual: predefined(2)+reserved(2)+predefined(12)+width(2)+height(2)+
//	        hres(4)+vres(4)+reserved(4)+frameCount(2)+compressorName(32)+
//	        depth(2)+predefined(2) = 78 with the common part
//	audio:  version(2)+revision(2)+vendor(4)+channelCount(2)+sampleSize(2)+
//	        predefined(2)+reserved(2)+sampleRate(4) = 28 with the common part
const (
	visualEntryLen = 78
	audioEntryLen  = 28

	// QuickTime sound description versions 1 and 2 append fields before
	// the child boxes.
	audioEntryQTV1 = audioEntryLen + 16
	audioEntryQTV2 = audioEntryLen + 36
)

var errNoSampleEntry = errors.New("sample description has no entries")

// VisualSampleEntry is a visual sample entry (avc1, hvc1, mp4v, ...).
// Optional sub-boxes are kept as payload views into the header buffer and
// decoded on demand.
type VisualSampleEntry struct {
	DataReferenceIndex uint16
	Width              uint16
	Height             uint16
	HResolution        UFixed32
	VResolution        UFixed32
	FrameCount         uint16
	CompressorName     string
	Depth              uint16

	Btrt []byte
	AvcC []byte
	Clap []byte
	Pasp []byte
	Colr []byte
}

// AudioSampleEntry is an audio sample entry (mp4a, ...).
type AudioSampleEntry struct {
	DataReferenceIndex uint16
	Version            uint16
	ChannelCount       uint16
	SampleSize         uint16
	// SampleRate is in Hz. For version 1 entries a srat sub-box overrides
	// the 16.16 field of the entry.
	SampleRate uint32

	Srat []byte
	Chnl []byte
	Esds []byte
}

// SampleEntry is the first entry of a sample description box.
type SampleEntry struct {
	Format BoxType
	Visual *VisualSampleEntry
	Audio  *AudioSampleEntry
	// Raw is the entry payload, for formats that are neither visual nor audio.
	Raw []byte
}

// DecodeStsd decodes the first sample entry of an stsd payload. The handler
// type selects the visual or audio layout.
func DecodeStsd(handler BoxType, b []byte) (SampleEntry, error) {
	if len(b) < 4 || be.Uint32(b[0:4]) == 0 {
		return SampleEntry{}, newBoxError(TypeStsd, -1, ErrMissingBox, errNoSampleEntry.Error())
	}
	entries := b[4:]
	h, err := ReadHeader(entries, uint64(len(entries)))
	if err != nil {
		if errors.Is(err, errShortHeader) {
			return SampleEntry{}, newBoxError(TypeStsd, -1, ErrInvalidSize, "sample entry header is truncated")
		}
		return SampleEntry{}, err
	}
	payload := entries[h.HeaderSize:h.Size]
	return DecodeSampleEntry(handler, h.Type, payload)
}

// DecodeSampleEntry decodes one sample entry payload of the given format.
func DecodeSampleEntry(handler, format BoxType, b []byte) (SampleEntry, error) {
	e := SampleEntry{Format: format, Raw: b}
	switch handler {
	case HandlerVideo:
		if len(b) < visualEntryLen {
			return e, newBoxError(format, -1, ErrInvalidSize,
				fmt.Sprintf("visual sample entry of %d bytes is shorter than %d", len(b), visualEntryLen))
		}
		v, err := decodeVisual(b)
		if err != nil {
			return e, err
		}
		e.Visual = v
	case HandlerSound:
		if len(b) < audioEntryLen {
			return e, newBoxError(format, -1, ErrInvalidSize,
				fmt.Sprintf("audio sample entry of %d bytes is shorter than %d", len(b), audioEntryLen))
		}
		a, err := decodeAudio(b)
		if err != nil {
			return e, err
		}
		e.Audio = a
	}
	return e, nil
}

func decodeVisual(b []byte) (*VisualSampleEntry, error) {
	nameLen := int(b[42])
	if nameLen > 31 {
		nameLen = 31
	}
	v := &VisualSampleEntry{
		DataReferenceIndex: be.Uint16(b[6:8]),
		Width:              be.Uint16(b[24:26]),
		Height:             be.Uint16(b[26:28]),
		HResolution:        UFixed32(be.Uint32(b[28:32])),
		VResolution:        UFixed32(be.Uint32(b[32:36])),
		FrameCount:         be.Uint16(b[40:42]),
		CompressorName:     string(b[43 : 43+nameLen]),
		Depth:              be.Uint16(b[74:76]),
	}

	err := eachChild(b[visualEntryLen:], func(t BoxType, payload []byte) {
		switch t {
		case TypeBtrt:
			v.Btrt = payload
		case TypeAvcC:
			v.AvcC = payload
		case TypeClap:
			v.Clap = payload
		case TypePasp:
			v.Pasp = payload
		case TypeColr:
			v.Colr = payload
		}
	})
	return v, err
}

func decodeAudio(b []byte) (*AudioSampleEntry, error) {
	a := &AudioSampleEntry{
		DataReferenceIndex: be.Uint16(b[6:8]),
		Version:            be.Uint16(b[8:10]),
		ChannelCount:       be.Uint16(b[16:18]),
		SampleSize:         be.Uint16(b[18:20]),
		SampleRate:         be.Uint32(b[24:28]) >> 16,
	}

	err := eachChild(b[audioChildOffset(a.Version, b):], func(t BoxType, payload []byte) {
		switch t {
		case TypeSrat:
			a.Srat = payload
		case TypeChnl:
			a.Chnl = payload
		case TypeEsds:
			a.Esds = payload
		}
	})
	if a.Version == 1 && len(a.Srat) >= 4 {
		a.SampleRate = DecodeSrat(a.Srat)
	}
	return a, err
}

// audioChildOffset locates the first child box of an audio entry. ISO
// version 1 entries keep the 28-byte layout; QuickTime version 1 and 2 sound
// descriptions extend it, which is detected by the absence of a plausible
// box header at offset 28.
func audioChildOffset(version uint16, b []byte) int {
	switch version {
	case 1:
		if looksLikeBox(b[audioEntryLen:]) || len(b) < audioEntryQTV1 {
			return audioEntryLen
		}
		return audioEntryQTV1
	case 2:
		if len(b) >= audioEntryQTV2 {
			return audioEntryQTV2
		}
	}
	return audioEntryLen
}

func looksLikeBox(b []byte) bool {
	if len(b) < BasicBoxLen {
		return false
	}
	size := be.Uint32(b[0:4])
	if size < BasicBoxLen || uint64(size) > uint64(len(b)) {
		return false
	}
	for _, c := range b[4:8] {
		if c < 0x20 || c > 0x7e {
			return false
		}
	}
	return true
}

// eachChild walks the child boxes laid out back to back in b and calls fn
// with each child's type and payload. Trailing bytes too short for a header
// are ignored, as some encoders pad sample entries with zeros.
func eachChild(b []byte, fn func(t BoxType, payload []byte)) error {
	for len(b) >= BasicBoxLen {
		if be.Uint32(b[0:4]) == 0 && len(b) < 2*BasicBoxLen {
			return nil
		}
		h, err := ReadHeader(b, uint64(len(b)))
		if err != nil {
			if errors.Is(err, errShortHeader) {
				return nil
			}
			return err
		}
		fn(h.Type, b[h.HeaderSize:h.Size])
		b = b[h.Size:]
	}
	return nil
}

// Btrt is the MPEG-4 bit rate box.
type Btrt struct {
	BufferSizeDB uint32
	MaxBitrate   uint32
	AvgBitrate   uint32
}

// DecodeBtrt decodes a btrt payload. It returns false if b is too short.
func DecodeBtrt(b []byte) (Btrt, bool) {
	if len(b) < 12 {
		return Btrt{}, false
	}
	return Btrt{
		BufferSizeDB: be.Uint32(b[0:4]),
		MaxBitrate:   be.Uint32(b[4:8]),
		AvgBitrate:   be.Uint32(b[8:12]),
	}, true
}

// Pasp is the pixel aspect ratio box.
type Pasp struct {
	HSpacing uint32
	VSpacing uint32
}

// DecodePasp decodes a pasp payload. It returns false if b is too short.
func DecodePasp(b []byte) (Pasp, bool) {
	if len(b) < 8 {
		return Pasp{}, false
	}
	return Pasp{HSpacing: be.Uint32(b[0:4]), VSpacing: be.Uint32(b[4:8])}, true
}

// Clap is the clean aperture box; each value is a numerator/denominator pair.
type Clap struct {
	WidthN, WidthD       uint32
	HeightN, HeightD     uint32
	HorizOffN, HorizOffD uint32
	VertOffN, VertOffD   uint32
}

// DecodeClap decodes a clap payload. It returns false if b is too short.
func DecodeClap(b []byte) (Clap, bool) {
	if len(b) < 32 {
		return Clap{}, false
	}
	return Clap{
		WidthN: be.Uint32(b[0:4]), WidthD: be.Uint32(b[4:8]),
		HeightN: be.Uint32(b[8:12]), HeightD: be.Uint32(b[12:16]),
		HorizOffN: be.Uint32(b[16:20]), HorizOffD: be.Uint32(b[20:24]),
		VertOffN: be.Uint32(b[24:28]), VertOffD: be.Uint32(b[28:32]),
	}, true
}

// Colour types of a colr box.
var (
	ColourNclx = newBoxType("nclx")
	ColourNclc = newBoxType("nclc")
	ColourRICC = newBoxType("rICC")
	ColourProf = newBoxType("prof")
)

// Colr is the colour information box.
type Colr struct {
	ColourType              BoxType
	ColourPrimaries         uint16
	TransferCharacteristics uint16
	MatrixCoefficients      uint16
	FullRange               bool
	ICCProfile              []byte // rICC and prof only
}

// DecodeColr decodes a colr payload. It returns false if b is too short for
// its colour type.
func DecodeColr(b []byte) (Colr, bool) {
	if len(b) < 4 {
		return Colr{}, false
	}
	var c Colr
	copy(c.ColourType[:], b[0:4])
	switch c.ColourType {
	case ColourNclx, ColourNclc:
		if len(b) < 10 {
			return c, false
		}
		c.ColourPrimaries = be.Uint16(b[4:6])
		c.TransferCharacteristics = be.Uint16(b[6:8])
		c.MatrixCoefficients = be.Uint16(b[8:10])
		if c.ColourType == ColourNclx && len(b) >= 11 {
			c.FullRange = b[10]&0x80 != 0
		}
	default:
		c.ICCProfile = b[4:]
	}
	return c, true
}

// DecodeSrat returns the sampling rate in Hz from an srat payload of at
// least 4 bytes.
func DecodeSrat(b []byte) uint32 {
	return be.Uint32(b[0:4])
}

// Chnl is the channel layout box (version 0 layout).
type Chnl struct {
	StreamStructure uint8
	DefinedLayout   uint8
	OmittedChannels uint64
	ObjectCount     uint8
}

// Stream structure bits of a chnl box.
const (
	ChannelStructured = 1
	ObjectStructured  = 2
)

// DecodeChnl decodes a chnl payload. Explicit speaker positions of a layout
// with DefinedLayout 0 are not decoded.
func DecodeChnl(b []byte) (Chnl, bool) {
	if len(b) < 1 {
		return Chnl{}, false
	}
	c := Chnl{StreamStructure: b[0]}
	ptr := 1
	if c.StreamStructure&ChannelStructured != 0 {
		if len(b) < ptr+1 {
			return c, false
		}
		c.DefinedLayout = b[ptr]
		ptr++
		if c.DefinedLayout != 0 {
			if len(b) < ptr+8 {
				return c, false
			}
			c.OmittedChannels = be.Uint64(b[ptr:])
			ptr += 8
		} else {
			return c, true
		}
	}
	if c.StreamStructure&ObjectStructured != 0 {
		if len(b) < ptr+1 {
			return c, false
		}
		c.ObjectCount = b[ptr]
	}
	return c, true
}
