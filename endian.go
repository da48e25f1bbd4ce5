package mp4

import "strings"

// Fixed16 is a signed 8.8 fixed-point number (volume).
type Fixed16 int16

// Float returns f as a floating-point value.
func (f Fixed16) Float() float64 { return float64(f) / 256 }

// Fixed32 is a signed 16.16 fixed-point number (rate, matrix a-d, x, y).
type Fixed32 int32

// Float returns f as a floating-point value.
func (f Fixed32) Float() float64 { return float64(f) / 65536 }

// UFixed32 is an unsigned 16.16 fixed-point number (track width and height,
// sample entry resolution).
type UFixed32 uint32

// Int returns the integer part of f.
func (f UFixed32) Int() uint32 { return uint32(f) >> 16 }

// Float returns f as a floating-point value.
func (f UFixed32) Float() float64 { return float64(f) / 65536 }

// Matrix is the 3x3 transformation matrix {a, b, u, c, d, v, x, y, w}.
// u, v and w are 2.30 fixed-point, the rest 16.16.
type Matrix [9]int32

// IdentityMatrix is the unity transformation.
var IdentityMatrix = Matrix{0x00010000, 0, 0, 0, 0x00010000, 0, 0, 0, 0x40000000}

const matrixLen = 36

func readMatrix(b []byte) Matrix {
	var m Matrix
	for i := range m {
		m[i] = int32(be.Uint32(b[i*4:]))
	}
	return m
}

func putMatrix(b []byte, m Matrix) {
	for i, v := range m {
		be.PutUint32(b[i*4:], uint32(v))
	}
}

func readUint24(b []byte) uint32 {
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}

func putUint24(b []byte, v uint32) {
	b[0] = byte(v >> 16)
	b[1] = byte(v >> 8)
	b[2] = byte(v)
}

// readTime reads a 32-bit (version 0) or 64-bit (version 1) time field.
func readTime(b []byte, wide bool) uint64 {
	if wide {
		return be.Uint64(b)
	}
	return uint64(be.Uint32(b))
}

func putTime(b []byte, v uint64, wide bool) {
	if wide {
		be.PutUint64(b, v)
		return
	}
	be.PutUint32(b, uint32(v))
}

// unpackLanguage expands a packed ISO-639-2/T code (three 5-bit letters,
// each offset by 0x60).
func unpackLanguage(v uint16) string {
	var s [3]byte
	s[0] = byte(v>>10&0x1f) + 0x60
	s[1] = byte(v>>5&0x1f) + 0x60
	s[2] = byte(v&0x1f) + 0x60
	return string(s[:])
}

// PackLanguage packs a 3-letter ISO-639-2/T code. Codes that are not three
// lowercase letters pack as "und".
func PackLanguage(code string) uint16 {
	code = strings.ToLower(code)
	if len(code) != 3 {
		code = "und"
	}
	var v uint16
	for i := 0; i < 3; i++ {
		c := code[i]
		if c < 'a' || c > 'z' {
			return PackLanguage("und")
		}
		v = v<<5 | uint16(c-0x60)
	}
	return v
}

func readCString(b []byte) string {
	end := 0
	for end < len(b) && b[end] != 0 {
		end++
	}
	return string(b[:end])
}
