package track_test

import (
	"encoding/binary"

	"github.com/tetsuo/mp4probe"
)

// baselineSPS is a 560x320 Constrained Baseline SPS at 30 fps.
var baselineSPS = []byte{
	0x67, 0x42, 0xc0, 0x1e, 0x9e, 0x21, 0x81, 0x18, 0x53, 0x4d, 0x40, 0x40,
	0x40, 0x50, 0x00, 0x00, 0x03, 0x00, 0x10, 0x00, 0x00, 0x03, 0x03, 0xc8,
	0xf1, 0x62, 0xee,
}

var basicPPS = []byte{0x68, 0xce, 0x3c, 0x80}

func avcC(sps, pps []byte) []byte {
	b := []byte{1, sps[1], sps[2], sps[3], 0xff, 0xe1}
	b = binary.BigEndian.AppendUint16(b, uint16(len(sps)))
	b = append(b, sps...)
	b = append(b, 1)
	b = binary.BigEndian.AppendUint16(b, uint16(len(pps)))
	return append(b, pps...)
}

// esds holds an ES descriptor for AAC-LC, 48 kHz, 2 channels.
var esds = []byte{
	mp4.TagESDescriptor, 25,
	0x00, 0x01, 0x00,
	mp4.TagDecoderConfigDescr, 17,
	mp4.OTIMPEG4Audio, 0x15,
	0x00, 0x18, 0x00,
	0x00, 0x02, 0x00, 0x00,
	0x00, 0x01, 0xf4, 0x00,
	mp4.TagDecoderSpecificInfo, 2, 0x11, 0x90,
	mp4.TagSLConfigDescriptor, 1, 0x02,
}

// movie describes the file built by buildMovie.
type movie struct {
	videoAvcC []byte // nil omits avcC
	videoStss bool
	noStsd    bool
	extra     func(w *mp4.Writer) // extra tracks
}

func buildMovie(m movie) []byte {
	w := mp4.NewWriter(nil)
	w.WriteFtyp(mp4.BoxType{'i', 's', 'o', 'm'}, 0x200, []mp4.BoxType{{'i', 's', 'o', 'm'}, {'a', 'v', 'c', '1'}})
	w.StartBox(mp4.TypeMoov)
	w.WriteMvhd(mp4.Mvhd{TimeScale: 1000, Duration: 10000, Rate: 0x10000, Volume: 0x100, Matrix: mp4.IdentityMatrix, NextTrackID: 3})

	// Video, track 1.
	w.StartBox(mp4.TypeTrak)
	w.WriteTkhd(mp4.Tkhd{Flags: mp4.TrackEnabled | mp4.TrackInMovie, TrackID: 1, Duration: 10000,
		Matrix: mp4.IdentityMatrix, Width: 560 << 16, Height: 320 << 16})
	w.StartBox(mp4.TypeMdia)
	w.WriteMdhd(mp4.Mdhd{TimeScale: 90000, Duration: 900000, Language: mp4.PackLanguage("und")})
	w.WriteHdlr(mp4.HandlerVideo, "VideoHandler")
	w.StartBox(mp4.TypeMinf)
	w.StartBox(mp4.TypeStbl)
	if !m.noStsd {
		w.StartStsd(1)
		w.StartVisualSampleEntry(mp4.TypeAvc1, mp4.VisualSampleEntry{
			DataReferenceIndex: 1, Width: 560, Height: 320,
			HResolution: 72 << 16, VResolution: 72 << 16, FrameCount: 1, Depth: 0x18,
		})
		if m.videoAvcC != nil {
			w.WriteBox(mp4.TypeAvcC, m.videoAvcC)
		}
		w.WritePasp(mp4.Pasp{HSpacing: 1, VSpacing: 1})
		w.WriteBtrt(mp4.Btrt{BufferSizeDB: 0x1800, MaxBitrate: 2000000, AvgBitrate: 1500000})
		w.EndBox()
		w.EndBox()
	}
	w.WriteStts([]mp4.SttsEntry{{Count: 300, Delta: 3000}})
	if m.videoStss {
		w.WriteStss([]uint32{1, 31, 61, 91})
	}
	w.EndBox()
	w.EndBox()
	w.EndBox()
	w.EndBox()

	// Audio, track 2.
	w.StartBox(mp4.TypeTrak)
	w.WriteTkhd(mp4.Tkhd{Flags: mp4.TrackEnabled | mp4.TrackInMovie, TrackID: 2, Duration: 10000,
		AlternateGroup: 1, Volume: 0x100, Matrix: mp4.IdentityMatrix})
	w.StartBox(mp4.TypeMdia)
	w.WriteMdhd(mp4.Mdhd{TimeScale: 48000, Duration: 480000, Language: mp4.PackLanguage("eng")})
	w.WriteHdlr(mp4.HandlerSound, "SoundHandler")
	w.StartBox(mp4.TypeMinf)
	w.StartBox(mp4.TypeStbl)
	w.StartStsd(1)
	w.StartAudioSampleEntry(mp4.TypeMp4a, mp4.AudioSampleEntry{
		DataReferenceIndex: 1, ChannelCount: 2, SampleSize: 16, SampleRate: 48000,
	})
	w.WriteFullBox(mp4.TypeEsds, 0, 0, esds)
	w.EndBox()
	w.EndBox()
	w.WriteStts([]mp4.SttsEntry{{Count: 468, Delta: 1024}, {Count: 1, Delta: 768}})
	w.EndBox()
	w.EndBox()
	w.EndBox()
	w.EndBox()

	if m.extra != nil {
		m.extra(w)
	}
	w.EndBox() // moov
	w.WriteBox(mp4.TypeMdat, make([]byte, 4096))
	return w.Bytes()
}
