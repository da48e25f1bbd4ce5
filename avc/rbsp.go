package avc

import "bytes"

var emulationPrevention = []byte{0, 0, 3}

// Unescape returns the RBSP of a NAL unit payload: every 0x03 that follows
// two zero bytes is removed. If there is nothing to remove b itself is
// returned; otherwise a compacted copy.
func Unescape(b []byte) []byte {
	i := bytes.Index(b, emulationPrevention)
	if i < 0 {
		return b
	}

	out := make([]byte, i, len(b))
	copy(out, b[:i])
	zeros := 0
	for _, c := range b[i:] {
		if zeros >= 2 && c == 3 {
			zeros = 0
			continue
		}
		out = append(out, c)
		if c == 0 {
			zeros++
		} else {
			zeros = 0
		}
	}
	return out
}
