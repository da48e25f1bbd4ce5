package track

import (
	"errors"
	"time"

	"github.com/tetsuo/mp4probe"
	"github.com/tetsuo/mp4probe/avc"
)

// Track is one trak of a File. Its headers are decoded when the file is
// parsed; codec metadata is decoded by Video and Audio on each call.
type Track struct {
	file   *File
	index  int
	refs   mp4.TrackRefs
	header mp4.Tkhd
	media  mp4.Mdhd
	hdlr   mp4.Hdlr
}

func newTrack(f *File, index int, refs mp4.TrackRefs) *Track {
	tb := f.table
	return &Track{
		file:   f,
		index:  index,
		refs:   refs,
		header: mp4.DecodeTkhd(refs.Tkhd.Version, refs.Tkhd.Flags, tb.Payload(refs.Tkhd)),
		media:  mp4.DecodeMdhd(refs.Mdhd.Version, tb.Payload(refs.Mdhd)),
		hdlr:   mp4.DecodeHdlr(tb.Payload(refs.Hdlr)),
	}
}

// ID returns the track ID.
func (t *Track) ID() uint32 { return t.header.TrackID }

// Handler returns the media handler type ("vide", "soun", ...).
func (t *Track) Handler() mp4.BoxType { return t.hdlr.HandlerType }

// HandlerName returns the human-readable handler name.
func (t *Track) HandlerName() string { return t.hdlr.Name }

// Kind returns the kind inferred from the track header.
func (t *Track) Kind() mp4.TrackKind { return t.header.Kind() }

// Header returns the decoded tkhd box.
func (t *Track) Header() mp4.Tkhd { return t.header }

// Media returns the decoded mdhd box.
func (t *Track) Media() mp4.Mdhd { return t.media }

// Language returns the media language code.
func (t *Track) Language() string { return t.media.LanguageCode() }

// Duration returns the media duration.
func (t *Track) Duration() time.Duration {
	return scaledDuration(t.media.Duration, t.media.TimeScale)
}

// sampleEntry decodes the first entry of the track's stsd.
func (t *Track) sampleEntry() (mp4.SampleEntry, error) {
	if t.file.Closed() {
		return mp4.SampleEntry{}, ErrClosed
	}
	tb := t.file.table
	if !t.refs.Stsd.Valid() {
		return mp4.SampleEntry{}, &mp4.BoxError{
			Type:   mp4.TypeStsd,
			Offset: tb.FileOffset(t.refs.Trak),
			Err:    mp4.ErrMissingBox,
			Msg:    "track has no sample description",
		}
	}
	e, err := mp4.DecodeStsd(t.hdlr.HandlerType, tb.Payload(t.refs.Stsd))
	if err != nil {
		var be *mp4.BoxError
		if errors.As(err, &be) && be.Offset < 0 {
			be.Offset = tb.FileOffset(t.refs.Stsd)
		}
		return e, err
	}
	return e, nil
}

func (t *Track) timeToSample() mp4.Stts {
	return mp4.NewStts(t.file.table.Payload(t.refs.Stts))
}

func (t *Track) syncSamples() (mp4.Stss, bool) {
	if !t.refs.Stss.Valid() {
		return mp4.Stss{}, false
	}
	return mp4.NewStss(t.file.table.Payload(t.refs.Stss)), true
}

// VideoTrack is the codec metadata of a video track. Table views read from
// the File's header buffer and must not be used after Close.
type VideoTrack struct {
	ID          uint32
	TimeScale   uint32
	Duration    uint64
	Codec       mp4.BoxType // sample entry format
	CodecString string      // RFC 6381, e.g. "avc1.64001f"
	Width       uint16      // from the sample entry
	Height      uint16
	FrameCount  uint64

	TimeToSample mp4.Stts
	SyncSamples  mp4.Stss
	// AllSync is true when the track has no stss box, meaning every sample
	// is a sync sample.
	AllSync bool

	Entry *mp4.VisualSampleEntry
	Btrt  *mp4.Btrt
	Pasp  *mp4.Pasp
	Clap  *mp4.Clap
	Colr  *mp4.Colr

	// Config and SPS are set for AVC tracks. SPSError holds the reason the
	// SPS could not be decoded; the track is still usable.
	Config   *avc.Config
	SPS      *avc.SPS
	SPSError error
}

// Video decodes the track's visual sample entry and, for AVC, its SPS.
func (t *Track) Video() (*VideoTrack, error) {
	if t.hdlr.HandlerType != mp4.HandlerVideo {
		return nil, ErrNotVideo
	}
	e, err := t.sampleEntry()
	if err != nil {
		return nil, err
	}
	ve := e.Visual
	v := &VideoTrack{
		ID:          t.ID(),
		TimeScale:   t.media.TimeScale,
		Duration:    t.media.Duration,
		Codec:       e.Format,
		CodecString: e.Format.String(),
		Width:       ve.Width,
		Height:      ve.Height,
		Entry:       ve,
	}
	v.TimeToSample = t.timeToSample()
	v.FrameCount = v.TimeToSample.TotalSamples()
	v.SyncSamples, v.AllSync = t.syncSamples()
	v.AllSync = !v.AllSync

	if b, ok := mp4.DecodeBtrt(ve.Btrt); ok {
		v.Btrt = &b
	}
	if p, ok := mp4.DecodePasp(ve.Pasp); ok {
		v.Pasp = &p
	}
	if c, ok := mp4.DecodeClap(ve.Clap); ok {
		v.Clap = &c
	}
	if c, ok := mp4.DecodeColr(ve.Colr); ok {
		v.Colr = &c
	}

	if ve.AvcC != nil {
		t.decodeAVC(v, ve.AvcC)
	}
	return v, nil
}

// decodeAVC fills the AVC configuration and SPS. Failures are recorded on
// the track rather than returned.
func (t *Track) decodeAVC(v *VideoTrack, avcC []byte) {
	log := t.file.log.With("track", v.ID, "codec", v.Codec.String())
	cfg, err := avc.ParseConfig(avcC)
	if err != nil {
		v.SPSError = err
		log.Warn("avcC not decoded", "error", err)
		return
	}
	v.Config = cfg
	v.CodecString = cfg.Codec(v.Codec.String())

	sps, err := cfg.FirstSPS()
	if err != nil {
		v.SPSError = err
		log.Warn("SPS not decoded", "error", err)
		return
	}
	v.SPS = sps
	log.Debug("SPS decoded",
		"profile", sps.ProfileIdc, "level", sps.LevelIdc,
		"width", sps.Width(), "height", sps.Height(), "fps", sps.FrameRate())
}

// Resolution returns the displayed size: the cropped SPS size when an SPS
// was decoded, otherwise the sample entry size.
func (v *VideoTrack) Resolution() (width, height uint32) {
	if v.SPS != nil {
		return v.SPS.Width(), v.SPS.Height()
	}
	return uint32(v.Width), uint32(v.Height)
}

// FrameRate returns frames per second from the SPS timing info, falling
// back to the average over the time-to-sample table.
func (v *VideoTrack) FrameRate() float64 {
	if v.SPS != nil {
		if fps := v.SPS.FrameRate(); fps > 0 {
			return fps
		}
	}
	d := v.TimeToSample.TotalDuration()
	if d == 0 || v.TimeScale == 0 {
		return 0
	}
	return float64(v.FrameCount) * float64(v.TimeScale) / float64(d)
}

// SampleAspectRatio returns the pixel aspect ratio from the SPS, falling
// back to the pasp box. 0:0 means unspecified.
func (v *VideoTrack) SampleAspectRatio() (hSpacing, vSpacing uint32) {
	if v.SPS != nil {
		if sw, sh := v.SPS.SampleAspectRatio(); sw != 0 && sh != 0 {
			return uint32(sw), uint32(sh)
		}
	}
	if v.Pasp != nil {
		return v.Pasp.HSpacing, v.Pasp.VSpacing
	}
	return 0, 0
}

// AudioTrack is the codec metadata of an audio track.
type AudioTrack struct {
	ID          uint32
	TimeScale   uint32
	Duration    uint64
	Codec       mp4.BoxType
	CodecString string // RFC 6381, e.g. "mp4a.40.2"
	Channels    uint16
	SampleSize  uint16
	SampleRate  uint32
	SampleCount uint64

	TimeToSample mp4.Stts

	Entry *mp4.AudioSampleEntry
	Esds  *mp4.Esds
	Chnl  *mp4.Chnl
}

// Audio decodes the track's audio sample entry.
func (t *Track) Audio() (*AudioTrack, error) {
	if t.hdlr.HandlerType != mp4.HandlerSound {
		return nil, ErrNotAudio
	}
	e, err := t.sampleEntry()
	if err != nil {
		return nil, err
	}
	ae := e.Audio
	a := &AudioTrack{
		ID:          t.ID(),
		TimeScale:   t.media.TimeScale,
		Duration:    t.media.Duration,
		Codec:       e.Format,
		CodecString: e.Format.String(),
		Channels:    ae.ChannelCount,
		SampleSize:  ae.SampleSize,
		SampleRate:  ae.SampleRate,
		Entry:       ae,
	}
	a.TimeToSample = t.timeToSample()
	a.SampleCount = a.TimeToSample.TotalSamples()

	if ae.Esds != nil {
		if d, ok := mp4.DecodeEsds(ae.Esds); ok {
			a.Esds = &d
			a.CodecString = d.Codec(e.Format)
		} else {
			t.file.log.Warn("esds not decoded", "track", a.ID, "bytes", len(ae.Esds))
		}
	}
	if c, ok := mp4.DecodeChnl(ae.Chnl); ok {
		a.Chnl = &c
	}
	if a.SampleRate == 0 {
		a.SampleRate = a.TimeScale
	}
	return a, nil
}
