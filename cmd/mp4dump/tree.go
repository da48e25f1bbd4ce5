package main

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/tetsuo/mp4probe"
	"github.com/tetsuo/mp4probe/avc"
	"github.com/tetsuo/mp4probe/track"
)

// BoxNode is a box in the tree structure.
type BoxNode struct {
	Type       string         `json:"type"`
	Offset     int64          `json:"offset"`
	Size       uint64         `json:"size"`
	Version    *uint8         `json:"version,omitempty"`
	Flags      *uint32        `json:"flags,omitempty"`
	Info       map[string]any `json:"info,omitempty"`
	DataLength *uint64        `json:"dataLength,omitempty"`
	Children   []*BoxNode     `json:"children,omitempty"`
}

type treeFrame struct {
	node *BoxNode
	typ  mp4.BoxType
}

// buildTree walks the metadata boxes of f and places the media and padding
// boxes of the top level between them in file order.
func buildTree(f *track.File) ([]*BoxNode, error) {
	top := make(map[int64]*BoxNode)
	var stack []treeFrame
	var handler mp4.BoxType

	err := f.Walk(func(b *mp4.WalkBox) error {
		node := &BoxNode{
			Type:   b.Type.String(),
			Offset: b.FileOffset,
			Size:   b.Size,
		}
		if b.Full {
			v, fl := b.Version, b.Flags
			node.Version = &v
			node.Flags = &fl
		}

		stack = stack[:b.Depth]
		var parent mp4.BoxType
		if b.Depth > 0 {
			parent = stack[b.Depth-1].typ
		}
		if b.Type == mp4.TypeHdlr && parent == mp4.TypeMdia && mp4.CheckPayload(b.Header, b.Payload) == nil {
			handler = mp4.DecodeHdlr(b.Payload).HandlerType
		}

		node.Info = collectBoxInfo(b, parent, handler)
		if len(node.Info) == 0 && !mp4.IsContainerBox(b.Type) && b.Type != mp4.TypeStsd {
			n := uint64(len(b.Payload))
			node.DataLength = &n
		}

		if b.Depth == 0 {
			top[b.FileOffset] = node
		} else {
			p := stack[b.Depth-1].node
			p.Children = append(p.Children, node)
		}
		stack = append(stack, treeFrame{node: node, typ: b.Type})
		return nil
	})
	if err != nil {
		return nil, err
	}

	var roots []*BoxNode
	for _, r := range f.Regions() {
		if n, ok := top[r.Offset]; ok {
			roots = append(roots, n)
			continue
		}
		n := r.PayloadSize()
		roots = append(roots, &BoxNode{
			Type:       r.Type.String(),
			Offset:     r.Offset,
			Size:       r.Size,
			DataLength: &n,
		})
	}
	return roots, nil
}

func u32(b []byte, off int) uint32 {
	if len(b) < off+4 {
		return 0
	}
	return binary.BigEndian.Uint32(b[off:])
}

// collectBoxInfo decodes the fields worth showing for b. parent is the type
// of the enclosing box and handler the media handler of the current track.
func collectBoxInfo(b *mp4.WalkBox, parent, handler mp4.BoxType) map[string]any {
	info := make(map[string]any)
	p := b.Payload
	if err := mp4.CheckPayload(b.Header, p); err != nil {
		info["error"] = err.Error()
		return info
	}

	switch b.Type {
	case mp4.TypeFtyp, mp4.TypeStyp:
		if len(p) < 8 {
			break
		}
		f := mp4.DecodeFtyp(p)
		info["brand"] = f.MajorBrand.String()
		info["version"] = f.MinorVersion
		if f.TotalCompatible > 0 {
			var compat []string
			for _, c := range f.Brands() {
				compat = append(compat, c.String())
			}
			info["compatible"] = compat
		}
		if f.TotalCompatible > f.NumCompatible {
			info["moreBrands"] = f.TotalCompatible - f.NumCompatible
		}

	case mp4.TypeMvhd:
		m := mp4.DecodeMvhd(b.Version, p)
		info["timescale"] = m.TimeScale
		info["duration"] = m.Duration
		info["nextTrackId"] = m.NextTrackID

	case mp4.TypeTkhd:
		t := mp4.DecodeTkhd(b.Version, b.Flags, p)
		info["trackId"] = t.TrackID
		info["duration"] = t.Duration
		info["width"] = t.Width.Int()
		info["height"] = t.Height.Int()

	case mp4.TypeMdhd:
		m := mp4.DecodeMdhd(b.Version, p)
		info["timescale"] = m.TimeScale
		info["duration"] = m.Duration
		info["language"] = m.LanguageCode()

	case mp4.TypeHdlr:
		h := mp4.DecodeHdlr(p)
		info["handlerType"] = h.HandlerType.String()
		info["name"] = h.Name

	case mp4.TypeStsd, mp4.TypeDref, mp4.TypeStts, mp4.TypeStss, mp4.TypeStsc,
		mp4.TypeStco, mp4.TypeCo64, mp4.TypeCtts, mp4.TypeElst:
		info["entries"] = u32(p, 0)

	case mp4.TypeStsz, mp4.TypeStz2:
		info["entries"] = u32(p, 4)

	case mp4.TypeAvc1, mp4.TypeAvc3, mp4.TypeHvc1, mp4.TypeHev1, mp4.TypeMp4v, mp4.TypeEncv,
		mp4.TypeMp4a, mp4.TypeEnca:
		e, err := mp4.DecodeSampleEntry(handler, b.Type, p)
		if err != nil {
			info["error"] = err.Error()
			break
		}
		switch {
		case e.Visual != nil:
			info["width"] = e.Visual.Width
			info["height"] = e.Visual.Height
			if e.Visual.CompressorName != "" {
				info["compressor"] = e.Visual.CompressorName
			}
		case e.Audio != nil:
			info["channelCount"] = e.Audio.ChannelCount
			info["sampleSize"] = e.Audio.SampleSize
			info["sampleRate"] = e.Audio.SampleRate
		}

	case mp4.TypeAvcC:
		cfg, err := avc.ParseConfig(p)
		if err != nil {
			info["error"] = err.Error()
			break
		}
		info["codec"] = cfg.Codec(parent.String())
		if sps, err := cfg.FirstSPS(); err == nil {
			info["resolution"] = fmt.Sprintf("%dx%d", sps.Width(), sps.Height())
		}

	case mp4.TypeEsds:
		if e, ok := mp4.DecodeEsds(p); ok {
			info["codec"] = e.Codec(parent)
		}

	case mp4.TypePasp:
		if v, ok := mp4.DecodePasp(p); ok {
			info["aspect"] = fmt.Sprintf("%d:%d", v.HSpacing, v.VSpacing)
		}

	case mp4.TypeBtrt:
		if v, ok := mp4.DecodeBtrt(p); ok {
			info["avgBitrate"] = v.AvgBitrate
			info["maxBitrate"] = v.MaxBitrate
		}

	case mp4.TypeMehd:
		info["fragmentDuration"] = uint64(u32(p, 0))
		if b.Version == 1 && len(p) >= 8 {
			info["fragmentDuration"] = binary.BigEndian.Uint64(p)
		}

	case mp4.TypeTrex, mp4.TypeTfhd:
		info["trackId"] = u32(p, 0)

	case mp4.TypeMfhd:
		info["sequence"] = u32(p, 0)

	case mp4.TypeTfdt:
		info["baseMediaDecodeTime"] = uint64(u32(p, 0))
		if b.Version == 1 && len(p) >= 8 {
			info["baseMediaDecodeTime"] = binary.BigEndian.Uint64(p)
		}

	case mp4.TypeTrun:
		info["entries"] = u32(p, 0)
	}
	return info
}

// printTree prints the tree in the specified format.
func printTree(w io.Writer, nodes []*BoxNode, format Format) error {
	if format == FormatJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(nodes)
	}
	for _, node := range nodes {
		printNodeText(w, node, 0)
	}
	return nil
}

// infoLabels shortens some info keys in text output.
var infoLabels = map[string]string{
	"version":      "ver",
	"compatible":   "compat",
	"language":     "lang",
	"handlerType":  "type",
	"channelCount": "ch",
	"sequence":     "seq",
}

// printNodeText prints a single node in text format.
func printNodeText(w io.Writer, node *BoxNode, depth int) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s[%s] size=%d", strings.Repeat("  ", depth), node.Type, node.Size)
	if node.Version != nil {
		fmt.Fprintf(&sb, " v=%d", *node.Version)
	}
	if node.Flags != nil {
		fmt.Fprintf(&sb, " flags=0x%06x", *node.Flags)
	}

	for _, key := range slices.Sorted(maps.Keys(node.Info)) {
		label := key
		if l, ok := infoLabels[key]; ok {
			label = l
		}
		switch v := node.Info[key].(type) {
		case []string:
			fmt.Fprintf(&sb, " %s=[%s]", label, strings.Join(v, ","))
		case string:
			if key == "name" || key == "compressor" || key == "error" {
				fmt.Fprintf(&sb, " %s=%q", label, v)
			} else {
				fmt.Fprintf(&sb, " %s=%s", label, v)
			}
		default:
			fmt.Fprintf(&sb, " %s=%v", label, v)
		}
	}
	if node.DataLength != nil {
		fmt.Fprintf(&sb, " dataLen=%d", *node.DataLength)
	}
	fmt.Fprintln(w, sb.String())

	for _, child := range node.Children {
		printNodeText(w, child, depth+1)
	}
}
