package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/tetsuo/mp4probe"
	"github.com/tetsuo/mp4probe/track"
)

// Summary describes a file and its tracks.
type Summary struct {
	File       string         `json:"file"`
	Brand      string         `json:"brand"`
	Compatible []string       `json:"compatible,omitempty"`
	Duration   float64        `json:"duration"` // seconds
	Tracks     []TrackSummary `json:"tracks"`
}

// TrackSummary holds the decoded metadata of one track. Fields that do not
// apply to the track's media type are omitted.
type TrackSummary struct {
	ID       uint32  `json:"id"`
	Kind     string  `json:"kind"`
	Handler  string  `json:"handler"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
	Codec    string  `json:"codec,omitempty"`

	Width       uint32  `json:"width,omitempty"`
	Height      uint32  `json:"height,omitempty"`
	FrameRate   float64 `json:"frameRate,omitempty"`
	Frames      uint64  `json:"frames,omitempty"`
	SyncFrames  int     `json:"syncFrames,omitempty"`
	AspectRatio string  `json:"sampleAspectRatio,omitempty"`
	Profile     uint8   `json:"profile,omitempty"`
	Level       uint8   `json:"level,omitempty"`

	Channels   uint16 `json:"channels,omitempty"`
	SampleRate uint32 `json:"sampleRate,omitempty"`
	SampleSize uint16 `json:"sampleSize,omitempty"`
	Samples    uint64 `json:"samples,omitempty"`

	Error string `json:"error,omitempty"`
}

func summarize(path string, f *track.File, log *slog.Logger) Summary {
	brand := f.Brand()
	s := Summary{
		File:     path,
		Brand:    brand.MajorBrand.String(),
		Duration: f.Duration().Seconds(),
	}
	for _, b := range brand.Brands() {
		s.Compatible = append(s.Compatible, b.String())
	}

	for _, t := range f.Tracks() {
		ts := TrackSummary{
			ID:       t.ID(),
			Kind:     t.Kind().String(),
			Handler:  t.Handler().String(),
			Language: t.Language(),
			Duration: t.Duration().Seconds(),
		}
		var err error
		switch t.Handler() {
		case mp4.HandlerVideo:
			err = summarizeVideo(t, &ts)
		case mp4.HandlerSound:
			err = summarizeAudio(t, &ts)
		}
		if err != nil {
			ts.Error = err.Error()
			log.Warn("track not decoded", "track", ts.ID, "error", err)
		}
		s.Tracks = append(s.Tracks, ts)
	}
	return s
}

func summarizeVideo(t *track.Track, ts *TrackSummary) error {
	v, err := t.Video()
	if err != nil {
		return err
	}
	ts.Codec = v.CodecString
	ts.Width, ts.Height = v.Resolution()
	ts.FrameRate = v.FrameRate()
	ts.Frames = v.FrameCount
	if !v.AllSync {
		ts.SyncFrames = v.SyncSamples.Count()
	}
	if hs, vs := v.SampleAspectRatio(); hs != 0 && vs != 0 {
		ts.AspectRatio = fmt.Sprintf("%d:%d", hs, vs)
	}
	if v.SPS != nil {
		ts.Profile = v.SPS.ProfileIdc
		ts.Level = v.SPS.LevelIdc
	}
	return v.SPSError
}

func summarizeAudio(t *track.Track, ts *TrackSummary) error {
	a, err := t.Audio()
	if err != nil {
		return err
	}
	ts.Codec = a.CodecString
	ts.Channels = a.Channels
	ts.SampleRate = a.SampleRate
	ts.SampleSize = a.SampleSize
	ts.Samples = a.SampleCount
	return nil
}

func printSummary(w io.Writer, s Summary, format Format) error {
	if format == FormatJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	}

	fmt.Fprintf(w, "%s: %s [%s] %.3fs\n", s.File, s.Brand, strings.Join(s.Compatible, ","), s.Duration)
	for _, t := range s.Tracks {
		var sb strings.Builder
		fmt.Fprintf(&sb, "  track %d %s", t.ID, t.Kind)
		if t.Codec != "" {
			fmt.Fprintf(&sb, " %s", t.Codec)
		}
		if t.Width != 0 {
			fmt.Fprintf(&sb, " %dx%d", t.Width, t.Height)
		}
		if t.FrameRate != 0 {
			fmt.Fprintf(&sb, " %.3f fps", t.FrameRate)
		}
		if t.Frames != 0 {
			fmt.Fprintf(&sb, " %d frames", t.Frames)
			if t.SyncFrames != 0 {
				fmt.Fprintf(&sb, " (%d sync)", t.SyncFrames)
			}
		}
		if t.AspectRatio != "" {
			fmt.Fprintf(&sb, " sar %s", t.AspectRatio)
		}
		if t.SampleRate != 0 {
			fmt.Fprintf(&sb, " %d Hz %d ch", t.SampleRate, t.Channels)
		}
		if t.Samples != 0 {
			fmt.Fprintf(&sb, " %d samples", t.Samples)
		}
		fmt.Fprintf(&sb, " %s %.3fs", t.Language, t.Duration)
		if t.Error != "" {
			fmt.Fprintf(&sb, " error=%q", t.Error)
		}
		fmt.Fprintln(w, sb.String())
	}
	return nil
}
