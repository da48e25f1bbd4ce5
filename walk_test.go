package mp4_test

import (
	"encoding/binary"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/tetsuo/mp4probe"
)

func walkTrace(t *testing.T, hb *mp4.HeaderBuffer, fn func(b *mp4.WalkBox) error) []string {
	t.Helper()
	var trace []string
	err := mp4.Walk(hb, func(b *mp4.WalkBox) error {
		trace = append(trace, fmt.Sprintf("%d %s", b.Depth, b.Type))
		if fn != nil {
			return fn(b)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return trace
}

func TestWalk(t *testing.T) {
	data := buildFile(true, 200, videoTrack(1), audioTrack(2))
	hb := materialize(t, data, mp4.MaterializeOptions{})

	want := []string{
		"0 ftyp",
		"0 moov",
		"1 mvhd",
		"1 trak",
		"2 tkhd",
		"2 mdia",
		"3 mdhd",
		"3 hdlr",
		"3 minf",
		"4 stbl",
		"5 stsd",
		"6 avc1",
		"7 avcC",
		"7 pasp",
		"7 btrt",
		"5 stts",
		"5 stss",
		"1 trak",
		"2 tkhd",
		"2 mdia",
		"3 mdhd",
		"3 hdlr",
		"3 minf",
		"4 stbl",
		"5 stsd",
		"6 mp4a",
		"7 esds",
		"5 stts",
	}
	if diff := cmp.Diff(want, walkTrace(t, hb, nil)); diff != "" {
		t.Errorf("walk mismatch (-want +got):\n%s", diff)
	}
}

func TestWalkOffsetsAndPayloads(t *testing.T) {
	data := buildFile(true, 200, videoTrack(1))
	hb := materialize(t, data, mp4.MaterializeOptions{})

	err := mp4.Walk(hb, func(b *mp4.WalkBox) error {
		if b.Type != mp4.TypeAvcC && b.Type != mp4.TypeMdat {
			return nil
		}
		if b.Type == mp4.TypeMdat {
			t.Error("mdat is not header-bearing and must not be walked")
		}
		if want := boxOffset(t, data, mp4.TypeAvcC, 0); b.FileOffset != want {
			t.Errorf("avcC at %d, want %d", b.FileOffset, want)
		}
		if diff := cmp.Diff(avcCPayload(baselineSPS, basicPPS), b.Payload); diff != "" {
			t.Errorf("avcC payload mismatch (-want +got):\n%s", diff)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestWalkSkipChildren(t *testing.T) {
	data := buildFile(false, 10, videoTrack(1), audioTrack(2))
	hb := materialize(t, data, mp4.MaterializeOptions{})

	trace := walkTrace(t, hb, func(b *mp4.WalkBox) error {
		if b.Type == mp4.TypeTrak {
			return mp4.SkipChildren
		}
		return nil
	})
	want := []string{"0 ftyp", "0 moov", "1 mvhd", "1 trak", "1 trak"}
	if diff := cmp.Diff(want, trace); diff != "" {
		t.Errorf("walk mismatch (-want +got):\n%s", diff)
	}
}

func TestWalkStops(t *testing.T) {
	hb := materialize(t, buildFile(false, 10, videoTrack(1)), mp4.MaterializeOptions{})
	errStop := errors.New("stop")
	n := 0
	err := mp4.Walk(hb, func(b *mp4.WalkBox) error {
		n++
		if b.Type == mp4.TypeTkhd {
			return errStop
		}
		return nil
	})
	if !errors.Is(err, errStop) {
		t.Fatalf("err = %v, want %v", err, errStop)
	}
	if n != 5 {
		t.Errorf("visited %d boxes before stopping, want 5", n)
	}

	hb.Release()
	if err := mp4.Walk(hb, func(*mp4.WalkBox) error { return nil }); !errors.Is(err, mp4.ErrReleased) {
		t.Errorf("Walk after Release: %v", err)
	}
}

func TestWalkZeroSizeChild(t *testing.T) {
	data := moovWith(func(w *mp4.Writer) {
		w.WriteMvhd(testMovie)
		w.WriteBox(mp4.TypeFree, make([]byte, 8))
		writeTrack(w, videoTrack(1))
	})
	free := boxOffset(t, data, mp4.TypeFree, 0)
	binary.BigEndian.PutUint32(data[free:], 0)
	hb := materialize(t, data, mp4.MaterializeOptions{})

	var trace []string
	err := mp4.Walk(hb, func(b *mp4.WalkBox) error {
		trace = append(trace, fmt.Sprintf("%d %s", b.Depth, b.Type))
		return nil
	})
	if !errors.Is(err, mp4.ErrInvalidSize) {
		t.Fatalf("err = %v, want %v", err, mp4.ErrInvalidSize)
	}
	var be *mp4.BoxError
	if !errors.As(err, &be) || be.Type != mp4.TypeFree || be.Offset != free {
		t.Errorf("err = %v, want free at %d", err, free)
	}
	if diff := cmp.Diff([]string{"0 ftyp", "0 moov", "1 mvhd"}, trace); diff != "" {
		t.Errorf("walk mismatch (-want +got):\n%s", diff)
	}
}
