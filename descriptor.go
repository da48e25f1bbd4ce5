package mp4

import "strconv"

// MPEG-4 descriptor tags found in an esds box.
const (
	TagESDescriptor        = 0x03
	TagDecoderConfigDescr  = 0x04
	TagDecoderSpecificInfo = 0x05
	TagSLConfigDescriptor  = 0x06
)

const (
	esDescriptorFixedLen       = 3  // ES_ID(2) + flags(1)
	decoderConfigDescrFixedLen = 13 // OTI(1) + streamType(1) + bufferSizeDB(3) + maxBitrate(4) + avgBitrate(4)
	maxDescriptorLenBytes      = 4
)

// Object type indications.
const (
	OTIMPEG4Audio   = 0x40
	OTIMPEG2AACMain = 0x66
	OTIMPEG2AACLC   = 0x67
	OTIMPEG1Audio   = 0x6b
)

// Esds holds the fields of an elementary stream descriptor.
type Esds struct {
	ESID                uint16
	ObjectType          byte // object type indication
	StreamType          byte
	BufferSizeDB        uint32
	MaxBitrate          uint32
	AvgBitrate          uint32
	DecoderSpecificInfo []byte
}

// AudioObjectType returns the MPEG-4 audio object type from the
// AudioSpecificConfig, or 0 if there is none.
func (e *Esds) AudioObjectType() byte {
	dsi := e.DecoderSpecificInfo
	if len(dsi) == 0 {
		return 0
	}
	aot := dsi[0] >> 3
	if aot == 31 && len(dsi) >= 2 {
		aot = 32 + ((dsi[0]&0x07)<<3 | dsi[1]>>5)
	}
	return aot
}

// Codec returns the RFC 6381 codec string for format (e.g. "mp4a.40.2").
func (e *Esds) Codec(format BoxType) string {
	s := format.String()
	if e.ObjectType == 0 {
		return s
	}
	s += "." + strconv.FormatUint(uint64(e.ObjectType), 16)
	if e.ObjectType == OTIMPEG4Audio {
		if aot := e.AudioObjectType(); aot > 0 {
			s += "." + strconv.Itoa(int(aot))
		}
	}
	return s
}

type descriptor struct {
	tag      byte
	length   int // header plus body
	body     []byte
	children map[byte]*descriptor
}

// decodeDescriptor reads the descriptor starting at buf[start]. The body is
// clipped to end.
func decodeDescriptor(buf []byte, start, end int) *descriptor {
	if start >= end {
		return nil
	}
	tag := buf[start]
	ptr := start + 1
	length := 0
	for n := 0; ; n++ {
		if ptr >= end || n == maxDescriptorLenBytes {
			return nil
		}
		lenByte := buf[ptr]
		ptr++
		length = (length << 7) | int(lenByte&0x7f)
		if lenByte&0x80 == 0 {
			break
		}
	}
	length = min(length, end-ptr)

	d := &descriptor{
		tag:    tag,
		length: (ptr - start) + length,
		body:   buf[ptr : ptr+length],
	}

	switch tag {
	case TagESDescriptor:
		decodeESDescriptor(d)
	case TagDecoderConfigDescr:
		if len(d.body) >= decoderConfigDescrFixedLen {
			d.children = decodeDescriptorArray(d.body, decoderConfigDescrFixedLen, len(d.body))
		}
	}
	return d
}

func decodeDescriptorArray(buf []byte, start, end int) map[byte]*descriptor {
	m := make(map[byte]*descriptor)
	ptr := start
	for ptr+2 <= end {
		desc := decodeDescriptor(buf, ptr, end)
		if desc == nil {
			break
		}
		ptr += desc.length
		if _, ok := m[desc.tag]; !ok {
			m[desc.tag] = desc
		}
	}
	return m
}

func decodeESDescriptor(d *descriptor) {
	b := d.body
	if len(b) < esDescriptorFixedLen {
		return
	}
	flags := b[2]
	ptr := esDescriptorFixedLen
	if flags&0x80 != 0 { // streamDependenceFlag
		ptr += 2
	}
	if flags&0x40 != 0 { // URL_Flag
		if ptr >= len(b) {
			return
		}
		ptr += int(b[ptr]) + 1
	}
	if flags&0x20 != 0 { // OCRstreamFlag
		ptr += 2
	}
	if ptr > len(b) {
		return
	}
	d.children = decodeDescriptorArray(b, ptr, len(b))
}

// DecodeEsds decodes an esds payload (after version and flags). It returns
// false if the payload does not start with an ES descriptor holding a
// decoder config descriptor.
func DecodeEsds(b []byte) (Esds, bool) {
	es := decodeDescriptor(b, 0, len(b))
	if es == nil || es.tag != TagESDescriptor || len(es.body) < esDescriptorFixedLen {
		return Esds{}, false
	}
	e := Esds{ESID: be.Uint16(es.body[0:2])}

	dc := es.children[TagDecoderConfigDescr]
	if dc == nil || len(dc.body) < decoderConfigDescrFixedLen {
		return e, false
	}
	e.ObjectType = dc.body[0]
	e.StreamType = dc.body[1] >> 2
	e.BufferSizeDB = readUint24(dc.body[2:5])
	e.MaxBitrate = be.Uint32(dc.body[5:9])
	e.AvgBitrate = be.Uint32(dc.body[9:13])
	if dsi := dc.children[TagDecoderSpecificInfo]; dsi != nil {
		e.DecoderSpecificInfo = dsi.body
	}
	return e, true
}
