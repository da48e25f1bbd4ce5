package mp4_test

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/tetsuo/mp4probe"
)

func materialize(t *testing.T, data []byte, opts mp4.MaterializeOptions) *mp4.HeaderBuffer {
	t.Helper()
	regions, _, err := scan(t, data, 0)
	if err != nil {
		t.Fatal(err)
	}
	hb, err := mp4.Materialize(context.Background(), bytes.NewReader(data), regions, opts)
	if err != nil {
		t.Fatal(err)
	}
	return hb
}

// checkSpans verifies that every span holds the file bytes it maps.
func checkSpans(t *testing.T, hb *mp4.HeaderBuffer, data []byte) {
	t.Helper()
	for i, s := range hb.Spans {
		got := hb.Bytes()[s.BufOffset : s.BufOffset+s.Len]
		want := data[s.FileOffset : s.FileOffset+int64(s.Len)]
		if !bytes.Equal(got, want) {
			t.Errorf("span %d (%+v) does not match the file", i, s)
		}
	}
}

func TestMaterializeCoalesces(t *testing.T) {
	data := buildFile(false, 5000, videoTrack(1), audioTrack(2))
	hb := materialize(t, data, mp4.MaterializeOptions{})

	moovEnd := boxOffset(t, data, mp4.TypeMdat, 0)
	want := []mp4.Span{{FileOffset: 0, BufOffset: 0, Len: int(moovEnd)}}
	if diff := cmp.Diff(want, hb.Spans); diff != "" {
		t.Errorf("spans mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"ftyp", "moov"}, regionTypes(hb.Regions)); diff != "" {
		t.Errorf("regions mismatch (-want +got):\n%s", diff)
	}
	if hb.Reads != 1 || hb.Len() != int(moovEnd) {
		t.Errorf("Reads = %d, Len = %d", hb.Reads, hb.Len())
	}
	checkSpans(t, hb, data)
}

func TestMaterializeSeparateSpans(t *testing.T) {
	w := mp4.NewWriter(nil)
	writeFtyp(w)
	w.WriteBox(mp4.TypeFree, make([]byte, 100))
	w.WriteBox(mp4.TypeMdat, make([]byte, 1000))
	writeMoov(w, videoTrack(1))
	data := w.Bytes()

	hb := materialize(t, data, mp4.MaterializeOptions{})
	if len(hb.Spans) != 2 {
		t.Fatalf("got %d spans, want 2", len(hb.Spans))
	}
	moovOff := boxOffset(t, data, mp4.TypeMoov, 0)
	if s := hb.Spans[1]; s.FileOffset != moovOff || s.BufOffset != hb.Spans[0].Len {
		t.Errorf("moov span %+v", s)
	}
	if hb.Len() != hb.Spans[0].Len+hb.Spans[1].Len {
		t.Errorf("Len = %d", hb.Len())
	}
	checkSpans(t, hb, data)

	// Offsets map back through the span that holds them.
	bufMoov := hb.Spans[1].BufOffset
	if got := hb.FileOffset(bufMoov + 8); got != moovOff+8 {
		t.Errorf("FileOffset(%d) = %d, want %d", bufMoov+8, got, moovOff+8)
	}
	if got := hb.FileOffset(3); got != 3 {
		t.Errorf("FileOffset(3) = %d", got)
	}
	if got := hb.FileOffset(hb.Len()); got != -1 {
		t.Errorf("FileOffset past the end = %d, want -1", got)
	}
}

func TestMaterializeReadSize(t *testing.T) {
	data := buildFile(true, 100, videoTrack(1), audioTrack(2))
	const readSize = 100

	hb := materialize(t, data, mp4.MaterializeOptions{ReadSize: readSize})
	want := 0
	for _, s := range hb.Spans {
		want += (s.Len + readSize - 1) / readSize
	}
	if hb.Reads != want {
		t.Errorf("Reads = %d, want %d", hb.Reads, want)
	}
	checkSpans(t, hb, data)
}

func TestMaterializeMaxBytes(t *testing.T) {
	data := buildFile(false, 10, videoTrack(1))
	regions, _, err := scan(t, data, 0)
	if err != nil {
		t.Fatal(err)
	}
	_, err = mp4.Materialize(context.Background(), bytes.NewReader(data), regions, mp4.MaterializeOptions{MaxBytes: 64})
	if !errors.Is(err, mp4.ErrInvalidSize) {
		t.Fatalf("err = %v, want ErrInvalidSize", err)
	}

	// The error names the box that crosses the limit.
	fragmented := []mp4.Region{
		{Type: mp4.TypeFtyp, Offset: 0, Size: 24, HeaderSize: 8},
		{Type: mp4.TypeMoov, Offset: 24, Size: 100, HeaderSize: 8},
		{Type: mp4.TypeMoof, Offset: 124, Size: 500, HeaderSize: 8},
		{Type: mp4.TypeMdat, Offset: 624, Size: 4000, HeaderSize: 8},
	}
	_, err = mp4.Materialize(context.Background(), bytes.NewReader(nil), fragmented, mp4.MaterializeOptions{MaxBytes: 200})
	var be *mp4.BoxError
	if !errors.As(err, &be) || !errors.Is(err, mp4.ErrInvalidSize) {
		t.Fatalf("err = %v, want a *BoxError with ErrInvalidSize", err)
	}
	if be.Type != mp4.TypeMoof || be.Offset != 124 {
		t.Errorf("error at %s/%d, want moof/124", be.Type, be.Offset)
	}
}

func TestHeaderBufferRelease(t *testing.T) {
	hb := materialize(t, buildFile(false, 10, audioTrack(1)), mp4.MaterializeOptions{})
	if hb.Released() {
		t.Fatal("fresh buffer reports released")
	}
	hb.Release()
	hb.Release()
	if !hb.Released() || hb.Bytes() != nil || hb.Len() != 0 {
		t.Errorf("after Release: released=%v len=%d", hb.Released(), hb.Len())
	}

	var nilBuf *mp4.HeaderBuffer
	if !nilBuf.Released() || nilBuf.Bytes() != nil {
		t.Error("nil buffer should behave as released")
	}
}

type failingReader struct {
	err error
}

func (r failingReader) ReadAt(p []byte, off int64) (int, error) {
	return 0, r.err
}

func TestMaterializeReadError(t *testing.T) {
	data := buildFile(false, 10, videoTrack(1))
	regions, _, err := scan(t, data, 0)
	if err != nil {
		t.Fatal(err)
	}
	errDisk := errors.New("disk on fire")
	_, err = mp4.Materialize(context.Background(), failingReader{errDisk}, regions, mp4.MaterializeOptions{ReadSize: 64})
	if !errors.Is(err, errDisk) {
		t.Fatalf("err = %v, want %v", err, errDisk)
	}
}

// countingReader records the peak number of concurrent ReadAt calls.
type countingReader struct {
	data     []byte
	inflight atomic.Int32
	peak     atomic.Int32
}

func (r *countingReader) ReadAt(p []byte, off int64) (int, error) {
	n := r.inflight.Add(1)
	defer r.inflight.Add(-1)
	for {
		peak := r.peak.Load()
		if n <= peak || r.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	time.Sleep(time.Millisecond)
	return bytes.NewReader(r.data).ReadAt(p, off)
}

func TestMaterializeMaxInflight(t *testing.T) {
	data := buildFile(false, 10, videoTrack(1), audioTrack(2), videoTrack(3))
	regions, _, err := scan(t, data, 0)
	if err != nil {
		t.Fatal(err)
	}
	r := &countingReader{data: data}
	hb, err := mp4.Materialize(context.Background(), r, regions, mp4.MaterializeOptions{ReadSize: 32, MaxInflight: 3})
	if err != nil {
		t.Fatal(err)
	}
	if hb.Reads < 10 {
		t.Fatalf("only %d reads issued", hb.Reads)
	}
	if peak := r.peak.Load(); peak > 3 {
		t.Errorf("peak concurrency %d, limit 3", peak)
	}
	checkSpans(t, hb, data)
}

func TestMaterializeCanceled(t *testing.T) {
	data := buildFile(false, 10, videoTrack(1))
	regions, _, err := scan(t, data, 0)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = mp4.Materialize(ctx, bytes.NewReader(data), regions, mp4.MaterializeOptions{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
