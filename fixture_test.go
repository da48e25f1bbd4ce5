package mp4_test

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/tetsuo/mp4probe"
)

var (
	brandIsom = mp4.BoxType{'i', 's', 'o', 'm'}
	brandIso2 = mp4.BoxType{'i', 's', 'o', '2'}
	brandAvc1 = mp4.BoxType{'a', 'v', 'c', '1'}
	brandMp41 = mp4.BoxType{'m', 'p', '4', '1'}
)

// baselineSPS is a 560x320 Constrained Baseline SPS at 30 fps.
var baselineSPS = []byte{
	0x67, 0x42, 0xc0, 0x1e, 0x9e, 0x21, 0x81, 0x18, 0x53, 0x4d, 0x40, 0x40,
	0x40, 0x50, 0x00, 0x00, 0x03, 0x00, 0x10, 0x00, 0x00, 0x03, 0x03, 0xc8,
	0xf1, 0x62, 0xee,
}

var basicPPS = []byte{0x68, 0xce, 0x3c, 0x80}

// avcCPayload builds an AVCDecoderConfigurationRecord with one SPS and one PPS.
func avcCPayload(sps, pps []byte) []byte {
	b := []byte{1, sps[1], sps[2], sps[3], 0xff, 0xe1}
	b = binary.BigEndian.AppendUint16(b, uint16(len(sps)))
	b = append(b, sps...)
	b = append(b, 1)
	b = binary.BigEndian.AppendUint16(b, uint16(len(pps)))
	return append(b, pps...)
}

// esdsPayload builds an esds payload (after version and flags) for an
// MPEG-4 audio stream with the given AudioSpecificConfig.
func esdsPayload(oti byte, asc []byte) []byte {
	dsi := append([]byte{mp4.TagDecoderSpecificInfo, byte(len(asc))}, asc...)
	dc := []byte{
		mp4.TagDecoderConfigDescr, byte(13 + len(dsi)),
		oti, 0x15, // audio stream
		0x00, 0x18, 0x00, // bufferSizeDB
		0x00, 0x02, 0x00, 0x00, // maxBitrate
		0x00, 0x01, 0xf4, 0x00, // avgBitrate
	}
	dc = append(dc, dsi...)
	sl := []byte{mp4.TagSLConfigDescriptor, 1, 0x02}
	body := append([]byte{0x00, 0x01, 0x00}, dc...) // ES_ID 1, no flags
	body = append(body, sl...)
	return append([]byte{mp4.TagESDescriptor, byte(len(body))}, body...)
}

// aacLC48kStereo is the AudioSpecificConfig of AAC-LC, 48 kHz, 2 channels.
var aacLC48kStereo = []byte{0x11, 0x90}

var testMovie = mp4.Mvhd{
	TimeScale:   1000,
	Duration:    10000,
	Rate:        0x00010000,
	Volume:      0x0100,
	Matrix:      mp4.IdentityMatrix,
	NextTrackID: 3,
}

type trackFixture struct {
	id       uint32
	handler  mp4.BoxType
	version  uint8 // tkhd and mdhd layout
	width    uint16
	height   uint16
	channels uint16
	rate     uint32
	stts     []mp4.SttsEntry
	stss     []uint32
}

func videoTrack(id uint32) trackFixture {
	return trackFixture{
		id:      id,
		handler: mp4.HandlerVideo,
		width:   560,
		height:  320,
		stts:    []mp4.SttsEntry{{Count: 300, Delta: 3000}},
		stss:    []uint32{1, 31, 61, 91},
	}
}

func audioTrack(id uint32) trackFixture {
	return trackFixture{
		id:       id,
		handler:  mp4.HandlerSound,
		channels: 2,
		rate:     48000,
		stts:     []mp4.SttsEntry{{Count: 468, Delta: 1024}, {Count: 1, Delta: 512}},
	}
}

func (tf trackFixture) tkhd() mp4.Tkhd {
	t := mp4.Tkhd{
		Version:  tf.version,
		Flags:    mp4.TrackEnabled | mp4.TrackInMovie,
		TrackID:  tf.id,
		Duration: 10000,
		Matrix:   mp4.IdentityMatrix,
	}
	if tf.handler == mp4.HandlerSound {
		t.Volume = 0x0100
		t.AlternateGroup = 1
	} else {
		t.Width = mp4.UFixed32(tf.width) << 16
		t.Height = mp4.UFixed32(tf.height) << 16
	}
	return t
}

func (tf trackFixture) mdhd() mp4.Mdhd {
	m := mp4.Mdhd{
		Version:   tf.version,
		TimeScale: 90000,
		Duration:  900000,
		Language:  mp4.PackLanguage("und"),
	}
	if tf.handler == mp4.HandlerSound {
		m.TimeScale = tf.rate
		m.Duration = 480000
		m.Language = mp4.PackLanguage("eng")
	}
	return m
}

func writeTrack(w *mp4.Writer, tf trackFixture) {
	w.StartBox(mp4.TypeTrak)
	w.WriteTkhd(tf.tkhd())
	w.StartBox(mp4.TypeMdia)
	w.WriteMdhd(tf.mdhd())
	switch tf.handler {
	case mp4.HandlerVideo:
		w.WriteHdlr(tf.handler, "VideoHandler")
	case mp4.HandlerSound:
		w.WriteHdlr(tf.handler, "SoundHandler")
	default:
		w.WriteHdlr(tf.handler, "")
	}
	w.StartBox(mp4.TypeMinf)
	w.StartBox(mp4.TypeStbl)
	w.StartStsd(1)
	switch tf.handler {
	case mp4.HandlerVideo:
		w.StartVisualSampleEntry(mp4.TypeAvc1, mp4.VisualSampleEntry{
			DataReferenceIndex: 1,
			Width:              tf.width,
			Height:             tf.height,
			HResolution:        72 << 16,
			VResolution:        72 << 16,
			FrameCount:         1,
			CompressorName:     "test encoder",
			Depth:              0x18,
		})
		w.WriteBox(mp4.TypeAvcC, avcCPayload(baselineSPS, basicPPS))
		w.WritePasp(mp4.Pasp{HSpacing: 1, VSpacing: 1})
		w.WriteBtrt(mp4.Btrt{BufferSizeDB: 0x1800, MaxBitrate: 2000000, AvgBitrate: 1500000})
		w.EndBox()
	case mp4.HandlerSound:
		w.StartAudioSampleEntry(mp4.TypeMp4a, mp4.AudioSampleEntry{
			DataReferenceIndex: 1,
			ChannelCount:       tf.channels,
			SampleSize:         16,
			SampleRate:         tf.rate,
		})
		w.WriteFullBox(mp4.TypeEsds, 0, 0, esdsPayload(mp4.OTIMPEG4Audio, aacLC48kStereo))
		w.EndBox()
	default:
		w.WriteBox(mp4.BoxType{'m', 'e', 't', 't'}, make([]byte, 8))
	}
	w.EndBox() // stsd
	w.WriteStts(tf.stts)
	if tf.stss != nil {
		w.WriteStss(tf.stss)
	}
	w.EndBox() // stbl
	w.EndBox() // minf
	w.EndBox() // mdia
	w.EndBox() // trak
}

// writeMoov writes a moov holding testMovie and the given tracks.
func writeMoov(w *mp4.Writer, tracks ...trackFixture) {
	w.StartBox(mp4.TypeMoov)
	w.WriteMvhd(testMovie)
	for _, tf := range tracks {
		writeTrack(w, tf)
	}
	w.EndBox()
}

func writeFtyp(w *mp4.Writer) {
	w.WriteFtyp(brandIsom, 0x200, []mp4.BoxType{brandIsom, brandIso2, brandAvc1, brandMp41})
}

// buildFile returns ftyp, moov and an mdat of mdatSize payload bytes, with
// moov after mdat when moovLast is set.
func buildFile(moovLast bool, mdatSize int, tracks ...trackFixture) []byte {
	w := mp4.NewWriter(nil)
	writeFtyp(w)
	if !moovLast {
		writeMoov(w, tracks...)
	}
	w.WriteBox(mp4.TypeMdat, make([]byte, mdatSize))
	if moovLast {
		writeMoov(w, tracks...)
	}
	return w.Bytes()
}

// boxOffset returns the offset of the n-th (0-based) box of type t in b,
// found by searching for its FourCC.
func boxOffset(t *testing.T, b []byte, typ mp4.BoxType, n int) int64 {
	t.Helper()
	off := 0
	for i := 0; ; i++ {
		j := bytes.Index(b[off:], typ[:])
		if j < 0 {
			t.Fatalf("box %s #%d not found", typ, n)
		}
		if i == n {
			return int64(off + j - 4)
		}
		off += j + 4
	}
}

// sparseFile is a ReaderAt over a large virtual file that is zero except
// for two byte ranges.
type sparseFile struct {
	head    []byte
	tail    []byte
	tailOff int64
}

func (f *sparseFile) Size() int64 {
	return f.tailOff + int64(len(f.tail))
}

func (f *sparseFile) ReadAt(p []byte, off int64) (int, error) {
	clear(p)
	end := off + int64(len(p))
	copyRange := func(src []byte, srcOff int64) {
		lo := max(off, srcOff)
		hi := min(end, srcOff+int64(len(src)))
		if lo < hi {
			copy(p[lo-off:hi-off], src[lo-srcOff:hi-srcOff])
		}
	}
	copyRange(f.head, 0)
	copyRange(f.tail, f.tailOff)
	if end > f.Size() {
		return int(max(0, f.Size()-off)), io.EOF
	}
	return len(p), nil
}
