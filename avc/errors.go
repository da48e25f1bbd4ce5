package avc

import (
	"errors"
	"fmt"
)

// Bit reader errors.
var (
	// ErrOutOfRange reports a read past the end of the bit stream.
	ErrOutOfRange = errors.New("read past end of data")
	// ErrOverflow reports an Exp-Golomb code that does not fit 32 bits.
	ErrOverflow = errors.New("exp-golomb value overflows 32 bits")
)

// SPS field errors. Each names the syntax element group that held an
// out-of-domain value.
var (
	ErrInvalidNALHeader            = errors.New("invalid NAL unit header")
	ErrNotSPS                      = errors.New("not an SPS NAL unit")
	ErrInvalidSPSID                = errors.New("invalid seq_parameter_set_id")
	ErrInvalidChromaFormat         = errors.New("invalid chroma_format_idc")
	ErrInvalidBitDepth             = errors.New("invalid bit depth")
	ErrInvalidScalingList          = errors.New("invalid scaling list")
	ErrInvalidMaxFrameNum          = errors.New("invalid log2_max_frame_num_minus4")
	ErrInvalidPicOrderCntType      = errors.New("invalid pic_order_cnt_type")
	ErrInvalidMaxPicOrderCntLsb    = errors.New("invalid log2_max_pic_order_cnt_lsb_minus4")
	ErrInvalidRefFramesInCycle     = errors.New("invalid num_ref_frames_in_pic_order_cnt_cycle")
	ErrInvalidMaxNumRefFrames      = errors.New("invalid max_num_ref_frames")
	ErrInvalidPicSize              = errors.New("invalid picture size")
	ErrInvalidCrop                 = errors.New("invalid frame cropping")
	ErrInvalidVideoFormat          = errors.New("invalid video_format")
	ErrInvalidChromaLocation       = errors.New("invalid chroma sample location")
	ErrInvalidTiming               = errors.New("invalid timing info")
	ErrInvalidHRD                  = errors.New("invalid hrd parameters")
	ErrInvalidBitstreamRestriction = errors.New("invalid bitstream restriction")
)

// FieldError attributes an SPS decoding failure to a syntax element.
type FieldError struct {
	Field string
	Err   error
	Msg   string
}

func (e *FieldError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("sps %s: %s", e.Field, e.Msg)
	}
	return fmt.Sprintf("sps %s: %v", e.Field, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

func fieldErr(field string, err error, format string, args ...any) *FieldError {
	return &FieldError{Field: field, Err: err, Msg: fmt.Sprintf(format, args...)}
}
