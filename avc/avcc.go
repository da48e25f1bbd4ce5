package avc

import (
	"errors"
	"fmt"

	"github.com/deepch/vdk/codec/h264parser"
)

// ErrNoSPS reports a decoder configuration record without an SPS.
var ErrNoSPS = errors.New("decoder configuration has no SPS")

// Config is an AVCDecoderConfigurationRecord (the payload of an avcC box).
// The parameter set slices alias the input.
type Config struct {
	Profile        uint8
	Compatibility  uint8
	Level          uint8
	NALULengthSize int
	SPS            [][]byte
	PPS            [][]byte
}

// ParseConfig decodes an avcC payload.
func ParseConfig(b []byte) (*Config, error) {
	var rec h264parser.AVCDecoderConfRecord
	if _, err := rec.Unmarshal(b); err != nil {
		return nil, fmt.Errorf("avcC: %w", err)
	}
	return &Config{
		Profile:        rec.AVCProfileIndication,
		Compatibility:  rec.ProfileCompatibility,
		Level:          rec.AVCLevelIndication,
		NALULengthSize: int(rec.LengthSizeMinusOne) + 1,
		SPS:            rec.SPS,
		PPS:            rec.PPS,
	}, nil
}

// Codec returns the RFC 6381 codec string for format, e.g. "avc1.64001f".
func (c *Config) Codec(format string) string {
	return fmt.Sprintf("%s.%02x%02x%02x", format, c.Profile, c.Compatibility, c.Level)
}

// FirstSPS decodes the first SPS of the record.
func (c *Config) FirstSPS() (*SPS, error) {
	if len(c.SPS) == 0 {
		return nil, ErrNoSPS
	}
	return ParseSPS(c.SPS[0])
}
