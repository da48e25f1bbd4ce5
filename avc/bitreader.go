package avc

import "math"

// BitReader reads bits MSB first from a byte slice. The first failed read
// sets a sticky error; every read after that returns 0 and consumes
// nothing, so callers can issue a group of reads and check Err once.
type BitReader struct {
	b   []byte
	pos int // bit position
	err error
}

// NewBitReader returns a BitReader over b.
func NewBitReader(b []byte) *BitReader {
	return &BitReader{b: b}
}

// Err returns the first error encountered.
func (r *BitReader) Err() error {
	return r.err
}

// BitsLeft returns the number of unread bits.
func (r *BitReader) BitsLeft() int {
	return len(r.b)*8 - r.pos
}

// Pos returns the number of bits consumed.
func (r *BitReader) Pos() int {
	return r.pos
}

func (r *BitReader) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

// ReadBit reads one bit.
func (r *BitReader) ReadBit() uint32 {
	if r.err != nil {
		return 0
	}
	if r.BitsLeft() < 1 {
		r.fail(ErrOutOfRange)
		return 0
	}
	bit := uint32(r.b[r.pos>>3]>>(7-uint(r.pos&7))) & 1
	r.pos++
	return bit
}

// ReadFlag reads one bit as a boolean.
func (r *BitReader) ReadFlag() bool {
	return r.ReadBit() == 1
}

// ReadBits reads n bits, 0 <= n <= 32, as an unsigned integer.
func (r *BitReader) ReadBits(n int) uint32 {
	if r.err != nil {
		return 0
	}
	if n < 0 || n > 32 {
		r.fail(ErrOverflow)
		return 0
	}
	if r.BitsLeft() < n {
		r.fail(ErrOutOfRange)
		return 0
	}
	var v uint64
	for n > 0 {
		byteOff := r.pos >> 3
		bitOff := r.pos & 7
		avail := 8 - bitOff
		take := min(avail, n)
		chunk := uint64(r.b[byteOff]>>(avail-take)) & (1<<take - 1)
		v = v<<take | chunk
		r.pos += take
		n -= take
	}
	return uint32(v)
}

// Skip advances n bits.
func (r *BitReader) Skip(n int) {
	if r.err != nil {
		return
	}
	if n < 0 || r.BitsLeft() < n {
		r.fail(ErrOutOfRange)
		return
	}
	r.pos += n
}

// ReadUE reads an unsigned Exp-Golomb code: k leading zero bits, a one,
// then k bits of suffix, giving 2^k - 1 + suffix.
func (r *BitReader) ReadUE() uint32 {
	k := 0
	for {
		bit := r.ReadBit()
		if r.err != nil {
			return 0
		}
		if bit == 1 {
			break
		}
		k++
		if k > 32 {
			r.fail(ErrOverflow)
			return 0
		}
	}
	suffix := r.ReadBits(k)
	if r.err != nil {
		return 0
	}
	v := uint64(1)<<k - 1 + uint64(suffix)
	if v > math.MaxUint32 {
		r.fail(ErrOverflow)
		return 0
	}
	return uint32(v)
}

// ReadSE reads a signed Exp-Golomb code. Odd code numbers map to positive
// values and even ones to negative: 1 -> 1, 2 -> -1, 3 -> 2.
func (r *BitReader) ReadSE() int32 {
	v := int64(r.ReadUE())
	if r.err != nil {
		return 0
	}
	var s int64
	if v&1 == 1 {
		s = (v + 1) / 2
	} else {
		s = -(v / 2)
	}
	if s > math.MaxInt32 {
		r.fail(ErrOverflow)
		return 0
	}
	return int32(s)
}
