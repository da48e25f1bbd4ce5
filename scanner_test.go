package mp4_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	mp4ff "github.com/Eyevinn/mp4ff/mp4"
	"github.com/google/go-cmp/cmp"
	"github.com/tetsuo/mp4probe"
)

func scan(t *testing.T, data []byte, chunk int) ([]mp4.Region, *mp4.Scanner, error) {
	t.Helper()
	sc := mp4.NewScanner(bytes.NewReader(data), int64(len(data)), mp4.ScanOptions{ChunkSize: chunk})
	regions, err := sc.ScanAll(context.Background())
	return regions, sc, err
}

func regionTypes(regions []mp4.Region) []string {
	var s []string
	for _, r := range regions {
		s = append(s, r.Type.String())
	}
	return s
}

func TestScannerChunkSizes(t *testing.T) {
	data := buildFile(true, 3000, videoTrack(1), audioTrack(2))
	want, _, err := scan(t, data, 0)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"ftyp", "mdat", "moov"}, regionTypes(want)); diff != "" {
		t.Fatalf("regions mismatch (-want +got):\n%s", diff)
	}

	var off int64
	for _, r := range want {
		if r.Offset != off {
			t.Errorf("%s at %d, want %d", r.Type, r.Offset, off)
		}
		off = r.End()
	}
	if off != int64(len(data)) {
		t.Errorf("regions end at %d, file is %d bytes", off, len(data))
	}

	for _, chunk := range []int{1, mp4.MinHeaderSize, 21, 64, 1000, 1 << 20} {
		got, _, err := scan(t, data, chunk)
		if err != nil {
			t.Fatalf("chunk %d: %v", chunk, err)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("chunk %d: regions mismatch (-want +got):\n%s", chunk, diff)
		}
	}
}

func TestScannerMatchesMp4ff(t *testing.T) {
	data := buildFile(false, 100, videoTrack(1), audioTrack(2))
	regions, _, err := scan(t, data, 0)
	if err != nil {
		t.Fatal(err)
	}

	f, err := mp4ff.DecodeFile(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if len(f.Children) != len(regions) {
		t.Fatalf("%d regions, mp4ff found %d boxes", len(regions), len(f.Children))
	}
	for i, box := range f.Children {
		if box.Type() != regions[i].Type.String() || box.Size() != regions[i].Size {
			t.Errorf("region %d = %s/%d, mp4ff %s/%d", i, regions[i].Type, regions[i].Size, box.Type(), box.Size())
		}
	}
}

func TestScannerSkipsPayloads(t *testing.T) {
	data := buildFile(true, 1<<20, videoTrack(1))
	_, sc, err := scan(t, data, 0)
	if err != nil {
		t.Fatal(err)
	}
	// One read for ftyp and the mdat header, one for moov.
	if sc.Reads() != 2 {
		t.Errorf("Reads = %d, want 2", sc.Reads())
	}
	if sc.BytesRead() > 2*mp4.DefaultChunkSize {
		t.Errorf("BytesRead = %d for a %d byte file", sc.BytesRead(), len(data))
	}
}

func TestScannerExtendedMdat(t *testing.T) {
	w := mp4.NewWriter(nil)
	writeFtyp(w)
	const mdatSize = 5 << 30
	head := binary.BigEndian.AppendUint32(w.Bytes(), 1)
	head = append(head, "mdat"...)
	head = binary.BigEndian.AppendUint64(head, mdatSize)

	mw := mp4.NewWriter(nil)
	writeMoov(mw, videoTrack(1))
	f := &sparseFile{head: head, tail: mw.Bytes(), tailOff: int64(len(head)) - 16 + mdatSize}

	sc := mp4.NewScanner(f, f.Size(), mp4.ScanOptions{})
	regions, err := sc.ScanAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"ftyp", "mdat", "moov"}, regionTypes(regions)); diff != "" {
		t.Fatalf("regions mismatch (-want +got):\n%s", diff)
	}
	mdat := regions[1]
	if mdat.Size != mdatSize || mdat.HeaderSize != 16 || mdat.PayloadSize() != mdatSize-16 {
		t.Errorf("mdat region %+v", mdat)
	}
	if regions[2].Offset != f.tailOff {
		t.Errorf("moov at %d, want %d", regions[2].Offset, f.tailOff)
	}
	if sc.Reads() != 2 {
		t.Errorf("Reads = %d, want 2", sc.Reads())
	}
}

func TestScannerMdatToEnd(t *testing.T) {
	w := mp4.NewWriter(nil)
	writeFtyp(w)
	writeMoov(w, audioTrack(1))
	data := binary.BigEndian.AppendUint32(w.Bytes(), 0)
	data = append(data, "mdat"...)
	data = append(data, make([]byte, 500)...)

	regions, _, err := scan(t, data, 64)
	if err != nil {
		t.Fatal(err)
	}
	last := regions[len(regions)-1]
	if last.Type != mp4.TypeMdat || last.Size != 508 || last.End() != int64(len(data)) {
		t.Errorf("mdat region %+v", last)
	}
}

func TestScannerTrailingBytes(t *testing.T) {
	data := buildFile(false, 10, videoTrack(1))
	data = append(data, 0, 0, 0, 9, 'f')
	regions, _, err := scan(t, data, 0)
	if err != nil {
		t.Fatalf("trailing bytes: %v", err)
	}
	if len(regions) != 3 {
		t.Errorf("got %d regions", len(regions))
	}
}

func TestScannerErrors(t *testing.T) {
	ftyp := mp4.NewWriter(nil)
	writeFtyp(ftyp)
	moov := mp4.NewWriter(nil)
	writeMoov(moov, videoTrack(1))
	cat := func(parts ...[]byte) []byte { return bytes.Join(parts, nil) }
	free := header(16, "free", make([]byte, 8)...)

	tests := []struct {
		name   string
		data   []byte
		err    error
		typ    mp4.BoxType
		offset int64
	}{
		{"no ftyp", cat(moov.Bytes()), mp4.ErrMissingBox, mp4.TypeFtyp, -1},
		{"no moov", cat(ftyp.Bytes(), free), mp4.ErrMissingBox, mp4.TypeMoov, -1},
		{"empty file", nil, mp4.ErrMissingBox, mp4.TypeFtyp, -1},
		{"cut in moov header", cat(ftyp.Bytes(), moov.Bytes()[:7]), mp4.ErrMissingBox, mp4.TypeMoov, -1},
		{"cut after moov size", cat(ftyp.Bytes(), moov.Bytes()[:5]), mp4.ErrMissingBox, mp4.TypeMoov, -1},
		{"second ftyp", cat(ftyp.Bytes(), ftyp.Bytes(), moov.Bytes()), mp4.ErrDuplicateBox, mp4.TypeFtyp, int64(ftyp.Len())},
		{"second moov", cat(ftyp.Bytes(), moov.Bytes(), moov.Bytes()), mp4.ErrDuplicateBox, mp4.TypeMoov, int64(ftyp.Len() + moov.Len())},
		{"past end of file", cat(ftyp.Bytes(), header(1000, "mdat")), mp4.ErrInvalidSize, mp4.TypeMdat, int64(ftyp.Len())},
		{"size below header", cat(ftyp.Bytes(), header(3, "free"), moov.Bytes()), mp4.ErrInvalidSize, mp4.TypeFree, int64(ftyp.Len())},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := scan(t, tt.data, 0)
			if !errors.Is(err, tt.err) {
				t.Fatalf("err = %v, want %v", err, tt.err)
			}
			var be *mp4.BoxError
			if !errors.As(err, &be) {
				t.Fatalf("err %T is not a *BoxError", err)
			}
			if be.Type != tt.typ || be.Offset != tt.offset {
				t.Errorf("error at %s/%d, want %s/%d", be.Type, be.Offset, tt.typ, tt.offset)
			}
		})
	}
}

func TestScannerShortRead(t *testing.T) {
	data := buildFile(false, 10, videoTrack(1))
	sc := mp4.NewScanner(bytes.NewReader(data), int64(len(data))+100, mp4.ScanOptions{})
	_, err := sc.ScanAll(context.Background())
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("err = %v, want io.ErrUnexpectedEOF", err)
	}
}

func TestScannerCanceled(t *testing.T) {
	data := buildFile(false, 10, videoTrack(1))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sc := mp4.NewScanner(bytes.NewReader(data), int64(len(data)), mp4.ScanOptions{})
	regions, err := sc.ScanAll(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if len(regions) != 0 || sc.Reads() != 0 {
		t.Errorf("scanned %d regions with %d reads after cancel", len(regions), sc.Reads())
	}
}

func TestRegionHeaderBearing(t *testing.T) {
	for typ, want := range map[mp4.BoxType]bool{
		mp4.TypeFtyp: true, mp4.TypeMoov: true, mp4.TypeMoof: true, mp4.TypeSidx: true,
		mp4.TypeMdat: false, mp4.TypeFree: false, mp4.TypeSkip: false,
	} {
		if got := (mp4.Region{Type: typ}).HeaderBearing(); got != want {
			t.Errorf("%s HeaderBearing = %v, want %v", typ, got, want)
		}
	}
}
