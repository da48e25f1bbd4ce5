// Package avc decodes the H.264 parameter sets carried in an MP4 avcC box.
package avc

// NAL unit types used by this package.
const (
	NALUnitTypeSPS = 7
	NALUnitTypePPS = 8
)

// Limits from the H.264 syntax element semantics.
const (
	MaxSPSID                 = 31
	MaxDpbFrames             = 16
	maxLog2MaxFrameNumMinus4 = 12
	maxLog2PocLsbMinus4      = 12
	maxBitDepthMinus8        = 6
	maxCpbCnt                = 32
	maxChromaLocType         = 5
	maxVideoFormat           = 5
	maxMvLength              = 16
	maxPicDimInMbs           = 4096
	extendedSAR              = 255
)

// profilesWithChroma carry chroma_format_idc, bit depths and scaling
// matrices in the SPS.
var profilesWithChroma = map[uint8]bool{
	44: true, 83: true, 86: true, 100: true, 110: true, 118: true,
	122: true, 128: true, 134: true, 135: true, 138: true, 139: true,
	244: true,
}

// Crop is the frame cropping rectangle in crop units.
type Crop struct {
	Left, Right, Top, Bottom uint32
}

// HRD holds the hypothetical reference decoder parameters.
type HRD struct {
	CpbCnt                             uint32
	BitRateScale                       uint8
	CpbSizeScale                       uint8
	BitRateValueMinus1                 []uint32
	CpbSizeValueMinus1                 []uint32
	CbrFlag                            []bool
	InitialCpbRemovalDelayLengthMinus1 uint8
	CpbRemovalDelayLengthMinus1        uint8
	DpbOutputDelayLengthMinus1         uint8
	TimeOffsetLength                   uint8
}

// VUI holds the video usability information. Groups whose presence flag
// is false carry their inferred default values.
type VUI struct {
	AspectRatioInfoPresent bool
	AspectRatioIdc         uint8
	SarWidth               uint16
	SarHeight              uint16

	OverscanInfoPresent bool
	OverscanAppropriate bool

	VideoSignalTypePresent   bool
	VideoFormat              uint8
	VideoFullRange           bool
	ColourDescriptionPresent bool
	ColourPrimaries          uint8
	TransferCharacteristics  uint8
	MatrixCoefficients       uint8

	ChromaLocInfoPresent           bool
	ChromaSampleLocTypeTopField    uint32
	ChromaSampleLocTypeBottomField uint32

	TimingInfoPresent bool
	NumUnitsInTick    uint32
	TimeScale         uint32
	FixedFrameRate    bool

	NalHRD           *HRD
	VclHRD           *HRD
	LowDelayHRD      bool
	PicStructPresent bool

	BitstreamRestriction           bool
	MotionVectorsOverPicBoundaries bool
	MaxBytesPerPicDenom            uint32
	MaxBitsPerMbDenom              uint32
	Log2MaxMvLengthHorizontal      uint32
	Log2MaxMvLengthVertical        uint32
	MaxNumReorderFrames            uint32
	MaxDecFrameBuffering           uint32
}

// SPS is a decoded sequence parameter set.
type SPS struct {
	ProfileIdc      uint8
	ConstraintFlags uint8 // constraint_set0..5 flags and reserved bits, MSB first
	LevelIdc        uint8
	ID              uint32

	ChromaFormatIdc             uint32
	SeparateColourPlane         bool
	BitDepthLuma                uint8
	BitDepthChroma              uint8
	QpprimeYZeroTransformBypass bool
	ScalingMatrixPresent        bool
	ScalingListPresent          [12]bool

	Log2MaxFrameNum uint8

	PicOrderCntType           uint8
	Log2MaxPicOrderCntLsb     uint8 // type 0
	DeltaPicOrderAlwaysZero   bool  // type 1
	OffsetForNonRefPic        int32 // type 1
	OffsetForTopToBottomField int32 // type 1
	OffsetForRefFrame         []int32

	MaxNumRefFrames       uint32
	GapsInFrameNumAllowed bool

	PicWidthInMbs        uint32
	PicHeightInMapUnits  uint32
	FrameMbsOnly         bool
	MbAdaptiveFrameField bool
	Direct8x8Inference   bool

	Crop *Crop // nil when frame_cropping_flag is 0

	VUIPresent bool
	VUI        VUI
}

// ConstraintSet reports constraint_set<i>_flag, 0 <= i <= 5.
func (s *SPS) ConstraintSet(i int) bool {
	return s.ConstraintFlags&(0x80>>uint(i)) != 0
}

// ChromaArrayType is 0 for monochrome and separately coded planes,
// otherwise chroma_format_idc.
func (s *SPS) ChromaArrayType() uint32 {
	if s.SeparateColourPlane {
		return 0
	}
	return s.ChromaFormatIdc
}

// cropUnits returns CropUnitX and CropUnitY.
func (s *SPS) cropUnits() (x, y uint32) {
	frameFactor := uint32(2)
	if s.FrameMbsOnly {
		frameFactor = 1
	}
	if s.ChromaArrayType() == 0 {
		return 1, frameFactor
	}
	subW, subH := uint32(2), uint32(2)
	switch s.ChromaFormatIdc {
	case 2:
		subH = 1
	case 3:
		subW, subH = 1, 1
	}
	return subW, subH * frameFactor
}

// CodedWidth is the decoded picture width in luma samples.
func (s *SPS) CodedWidth() uint32 {
	return s.PicWidthInMbs * 16
}

// CodedHeight is the decoded frame height in luma samples.
func (s *SPS) CodedHeight() uint32 {
	h := s.PicHeightInMapUnits * 16
	if !s.FrameMbsOnly {
		h *= 2
	}
	return h
}

// Width is the displayed width after cropping.
func (s *SPS) Width() uint32 {
	w := s.CodedWidth()
	if s.Crop != nil {
		ux, _ := s.cropUnits()
		w -= (s.Crop.Left + s.Crop.Right) * ux
	}
	return w
}

// Height is the displayed height after cropping.
func (s *SPS) Height() uint32 {
	h := s.CodedHeight()
	if s.Crop != nil {
		_, uy := s.cropUnits()
		h -= (s.Crop.Top + s.Crop.Bottom) * uy
	}
	return h
}

// FrameRate derives frames per second from the VUI timing info, or 0 when
// it is absent.
func (s *SPS) FrameRate() float64 {
	v := &s.VUI
	if !v.TimingInfoPresent || v.NumUnitsInTick == 0 {
		return 0
	}
	return float64(v.TimeScale) / (2 * float64(v.NumUnitsInTick))
}

// sarTable holds the sample aspect ratios of aspect_ratio_idc 1 to 16.
var sarTable = [...][2]uint16{
	{0, 0}, {1, 1}, {12, 11}, {10, 11}, {16, 11}, {40, 33}, {24, 11}, {20, 11},
	{32, 11}, {80, 33}, {18, 11}, {15, 11}, {64, 33}, {160, 99}, {4, 3}, {3, 2},
	{2, 1},
}

// SampleAspectRatio returns the sample aspect ratio, or 0:0 if unspecified.
func (s *SPS) SampleAspectRatio() (w, h uint16) {
	v := &s.VUI
	if !v.AspectRatioInfoPresent {
		return 0, 0
	}
	if v.AspectRatioIdc == extendedSAR {
		return v.SarWidth, v.SarHeight
	}
	if int(v.AspectRatioIdc) < len(sarTable) {
		p := sarTable[v.AspectRatioIdc]
		return p[0], p[1]
	}
	return 0, 0
}

// ParseSPS decodes an SPS NAL unit, header byte included. Emulation
// prevention bytes are removed before decoding. The first field outside
// its legal domain, or the first read past the end of the unit, aborts
// with a *FieldError.
func ParseSPS(nal []byte) (*SPS, error) {
	if len(nal) == 0 {
		return nil, fieldErr("nal_unit_header", ErrInvalidNALHeader, "empty NAL unit")
	}
	if nal[0]&0x80 != 0 {
		return nil, fieldErr("forbidden_zero_bit", ErrInvalidNALHeader, "forbidden_zero_bit is set")
	}
	if t := nal[0] & 0x1f; t != NALUnitTypeSPS {
		return nil, fieldErr("nal_unit_type", ErrNotSPS, "expected SPS NAL unit, got type %d", t)
	}

	p := &spsParser{r: NewBitReader(Unescape(nal[1:])), sps: &SPS{}}
	if err := p.parse(); err != nil {
		return nil, err
	}
	return p.sps, nil
}

type spsParser struct {
	r   *BitReader
	sps *SPS
}

// check converts a reader error into a field error for the group just read.
func (p *spsParser) check(field string) error {
	if err := p.r.Err(); err != nil {
		return &FieldError{Field: field, Err: err}
	}
	return nil
}

func (p *spsParser) parse() error {
	r, s := p.r, p.sps

	s.ProfileIdc = uint8(r.ReadBits(8))
	s.ConstraintFlags = uint8(r.ReadBits(8))
	s.LevelIdc = uint8(r.ReadBits(8))
	if err := p.check("profile_idc"); err != nil {
		return err
	}

	s.ID = r.ReadUE()
	if err := p.check("seq_parameter_set_id"); err != nil {
		return err
	}
	if s.ID > MaxSPSID {
		return fieldErr("seq_parameter_set_id", ErrInvalidSPSID, "%d exceeds %d", s.ID, MaxSPSID)
	}

	if err := p.parseChroma(); err != nil {
		return err
	}

	log2MaxFrameNumMinus4 := r.ReadUE()
	if err := p.check("log2_max_frame_num_minus4"); err != nil {
		return err
	}
	if log2MaxFrameNumMinus4 > maxLog2MaxFrameNumMinus4 {
		return fieldErr("log2_max_frame_num_minus4", ErrInvalidMaxFrameNum,
			"%d exceeds %d", log2MaxFrameNumMinus4, maxLog2MaxFrameNumMinus4)
	}
	s.Log2MaxFrameNum = uint8(log2MaxFrameNumMinus4 + 4)

	if err := p.parsePicOrderCnt(); err != nil {
		return err
	}

	s.MaxNumRefFrames = r.ReadUE()
	s.GapsInFrameNumAllowed = r.ReadFlag()
	if err := p.check("max_num_ref_frames"); err != nil {
		return err
	}
	if s.MaxNumRefFrames > MaxDpbFrames {
		return fieldErr("max_num_ref_frames", ErrInvalidMaxNumRefFrames,
			"%d exceeds %d", s.MaxNumRefFrames, MaxDpbFrames)
	}

	widthMinus1 := r.ReadUE()
	heightMinus1 := r.ReadUE()
	s.FrameMbsOnly = r.ReadFlag()
	if !s.FrameMbsOnly {
		s.MbAdaptiveFrameField = r.ReadFlag()
	}
	s.Direct8x8Inference = r.ReadFlag()
	if err := p.check("pic_width_in_mbs_minus1"); err != nil {
		return err
	}
	if widthMinus1 >= maxPicDimInMbs || heightMinus1 >= maxPicDimInMbs {
		return fieldErr("pic_width_in_mbs_minus1", ErrInvalidPicSize,
			"%dx%d macroblocks exceeds %d in either dimension", widthMinus1+1, heightMinus1+1, maxPicDimInMbs)
	}
	s.PicWidthInMbs = widthMinus1 + 1
	s.PicHeightInMapUnits = heightMinus1 + 1

	if err := p.parseCrop(); err != nil {
		return err
	}

	s.VUIPresent = r.ReadFlag()
	if err := p.check("vui_parameters_present_flag"); err != nil {
		return err
	}
	if s.VUIPresent {
		return p.parseVUI()
	}
	p.defaultVUI()
	return nil
}

func (p *spsParser) parseChroma() error {
	r, s := p.r, p.sps
	if !profilesWithChroma[s.ProfileIdc] {
		s.ChromaFormatIdc = 1
		s.BitDepthLuma = 8
		s.BitDepthChroma = 8
		return nil
	}

	s.ChromaFormatIdc = r.ReadUE()
	if err := p.check("chroma_format_idc"); err != nil {
		return err
	}
	if s.ChromaFormatIdc > 3 {
		return fieldErr("chroma_format_idc", ErrInvalidChromaFormat, "%d exceeds 3", s.ChromaFormatIdc)
	}
	if s.ChromaFormatIdc == 3 {
		s.SeparateColourPlane = r.ReadFlag()
	}

	lumaMinus8 := r.ReadUE()
	chromaMinus8 := r.ReadUE()
	if err := p.check("bit_depth_luma_minus8"); err != nil {
		return err
	}
	if lumaMinus8 > maxBitDepthMinus8 || chromaMinus8 > maxBitDepthMinus8 {
		return fieldErr("bit_depth_luma_minus8", ErrInvalidBitDepth,
			"luma %d, chroma %d bits; at most %d supported", lumaMinus8+8, chromaMinus8+8, maxBitDepthMinus8+8)
	}
	s.BitDepthLuma = uint8(lumaMinus8 + 8)
	s.BitDepthChroma = uint8(chromaMinus8 + 8)

	s.QpprimeYZeroTransformBypass = r.ReadFlag()
	s.ScalingMatrixPresent = r.ReadFlag()
	if err := p.check("seq_scaling_matrix_present_flag"); err != nil {
		return err
	}
	if !s.ScalingMatrixPresent {
		return nil
	}

	lists := 8
	if s.ChromaFormatIdc == 3 {
		lists = 12
	}
	for i := range lists {
		s.ScalingListPresent[i] = r.ReadFlag()
		if !s.ScalingListPresent[i] {
			continue
		}
		size := 16
		if i >= 6 {
			size = 64
		}
		if err := p.skipScalingList(i, size); err != nil {
			return err
		}
	}
	return p.check("seq_scaling_list_present_flag")
}

// skipScalingList consumes one scaling list, validating each delta.
func (p *spsParser) skipScalingList(i, size int) error {
	last, next := int32(8), int32(8)
	for j := 0; j < size; j++ {
		if next != 0 {
			delta := p.r.ReadSE()
			if err := p.check("delta_scale"); err != nil {
				return err
			}
			if delta < -128 || delta > 127 {
				return fieldErr("delta_scale", ErrInvalidScalingList,
					"list %d entry %d: delta %d outside [-128, 127]", i, j, delta)
			}
			next = (last + delta + 256) % 256
		}
		if next != 0 {
			last = next
		}
	}
	return nil
}

func (p *spsParser) parsePicOrderCnt() error {
	r, s := p.r, p.sps
	pocType := r.ReadUE()
	if err := p.check("pic_order_cnt_type"); err != nil {
		return err
	}
	if pocType > 2 {
		return fieldErr("pic_order_cnt_type", ErrInvalidPicOrderCntType, "%d exceeds 2", pocType)
	}
	s.PicOrderCntType = uint8(pocType)

	switch pocType {
	case 0:
		lsbMinus4 := r.ReadUE()
		if err := p.check("log2_max_pic_order_cnt_lsb_minus4"); err != nil {
			return err
		}
		if lsbMinus4 > maxLog2PocLsbMinus4 {
			return fieldErr("log2_max_pic_order_cnt_lsb_minus4", ErrInvalidMaxPicOrderCntLsb,
				"%d exceeds %d", lsbMinus4, maxLog2PocLsbMinus4)
		}
		s.Log2MaxPicOrderCntLsb = uint8(lsbMinus4 + 4)
	case 1:
		s.DeltaPicOrderAlwaysZero = r.ReadFlag()
		s.OffsetForNonRefPic = r.ReadSE()
		s.OffsetForTopToBottomField = r.ReadSE()
		cycle := r.ReadUE()
		if err := p.check("num_ref_frames_in_pic_order_cnt_cycle"); err != nil {
			return err
		}
		if cycle > 255 {
			return fieldErr("num_ref_frames_in_pic_order_cnt_cycle", ErrInvalidRefFramesInCycle,
				"%d exceeds 255", cycle)
		}
		s.OffsetForRefFrame = make([]int32, cycle)
		for i := range s.OffsetForRefFrame {
			s.OffsetForRefFrame[i] = r.ReadSE()
		}
		if err := p.check("offset_for_ref_frame"); err != nil {
			return err
		}
	}
	return nil
}

func (p *spsParser) parseCrop() error {
	r, s := p.r, p.sps
	if !r.ReadFlag() {
		return p.check("frame_cropping_flag")
	}
	c := &Crop{
		Left:   r.ReadUE(),
		Right:  r.ReadUE(),
		Top:    r.ReadUE(),
		Bottom: r.ReadUE(),
	}
	if err := p.check("frame_crop_offset"); err != nil {
		return err
	}
	ux, uy := s.cropUnits()
	w, h := uint64(s.CodedWidth()), uint64(s.CodedHeight())
	if cw := (uint64(c.Left) + uint64(c.Right)) * uint64(ux); cw > w {
		return fieldErr("frame_crop_offset", ErrInvalidCrop,
			"horizontal crop of %d samples exceeds width %d", cw, w)
	}
	if ch := (uint64(c.Top) + uint64(c.Bottom)) * uint64(uy); ch > h {
		return fieldErr("frame_crop_offset", ErrInvalidCrop,
			"vertical crop of %d samples exceeds height %d", ch, h)
	}
	s.Crop = c
	return nil
}

// defaultVUI fills the values inferred when vui_parameters_present_flag is
// 0 or a VUI group is absent.
func (p *spsParser) defaultVUI() {
	v := &p.sps.VUI
	v.VideoFormat = 5
	v.ColourPrimaries = 2
	v.TransferCharacteristics = 2
	v.MatrixCoefficients = 2
	v.LowDelayHRD = true
	p.defaultBitstreamRestriction()
}

func (p *spsParser) defaultBitstreamRestriction() {
	s := p.sps
	v := &s.VUI
	v.MotionVectorsOverPicBoundaries = true
	v.MaxBytesPerPicDenom = 2
	v.MaxBitsPerMbDenom = 1
	v.Log2MaxMvLengthHorizontal = 15
	v.Log2MaxMvLengthVertical = 15
	switch s.ProfileIdc {
	case 44, 86, 100, 110, 122, 244:
		if s.ConstraintSet(3) {
			v.MaxNumReorderFrames = 0
			v.MaxDecFrameBuffering = 0
			return
		}
	}
	v.MaxNumReorderFrames = MaxDpbFrames
	v.MaxDecFrameBuffering = MaxDpbFrames
}

func (p *spsParser) parseVUI() error {
	r := p.r
	v := &p.sps.VUI

	v.AspectRatioInfoPresent = r.ReadFlag()
	if v.AspectRatioInfoPresent {
		v.AspectRatioIdc = uint8(r.ReadBits(8))
		if v.AspectRatioIdc == extendedSAR {
			v.SarWidth = uint16(r.ReadBits(16))
			v.SarHeight = uint16(r.ReadBits(16))
		}
	}
	v.OverscanInfoPresent = r.ReadFlag()
	if v.OverscanInfoPresent {
		v.OverscanAppropriate = r.ReadFlag()
	}
	if err := p.check("aspect_ratio_info"); err != nil {
		return err
	}

	v.VideoSignalTypePresent = r.ReadFlag()
	if v.VideoSignalTypePresent {
		v.VideoFormat = uint8(r.ReadBits(3))
		v.VideoFullRange = r.ReadFlag()
		v.ColourDescriptionPresent = r.ReadFlag()
		if v.ColourDescriptionPresent {
			v.ColourPrimaries = uint8(r.ReadBits(8))
			v.TransferCharacteristics = uint8(r.ReadBits(8))
			v.MatrixCoefficients = uint8(r.ReadBits(8))
		} else {
			v.ColourPrimaries = 2
			v.TransferCharacteristics = 2
			v.MatrixCoefficients = 2
		}
		if err := p.check("video_signal_type"); err != nil {
			return err
		}
		if v.VideoFormat > maxVideoFormat {
			return fieldErr("video_format", ErrInvalidVideoFormat, "%d is reserved", v.VideoFormat)
		}
	} else {
		v.VideoFormat = 5
		v.ColourPrimaries = 2
		v.TransferCharacteristics = 2
		v.MatrixCoefficients = 2
	}

	v.ChromaLocInfoPresent = r.ReadFlag()
	if v.ChromaLocInfoPresent {
		v.ChromaSampleLocTypeTopField = r.ReadUE()
		v.ChromaSampleLocTypeBottomField = r.ReadUE()
		if err := p.check("chroma_loc_info"); err != nil {
			return err
		}
		if v.ChromaSampleLocTypeTopField > maxChromaLocType || v.ChromaSampleLocTypeBottomField > maxChromaLocType {
			return fieldErr("chroma_sample_loc_type", ErrInvalidChromaLocation,
				"top %d, bottom %d; at most %d", v.ChromaSampleLocTypeTopField, v.ChromaSampleLocTypeBottomField, maxChromaLocType)
		}
	}

	v.TimingInfoPresent = r.ReadFlag()
	if v.TimingInfoPresent {
		v.NumUnitsInTick = r.ReadBits(32)
		v.TimeScale = r.ReadBits(32)
		v.FixedFrameRate = r.ReadFlag()
		if err := p.check("timing_info"); err != nil {
			return err
		}
		if v.NumUnitsInTick == 0 || v.TimeScale == 0 {
			return fieldErr("timing_info", ErrInvalidTiming,
				"num_units_in_tick %d and time_scale %d must both be non-zero", v.NumUnitsInTick, v.TimeScale)
		}
	}

	var err error
	if r.ReadFlag() {
		if v.NalHRD, err = p.parseHRD("nal_hrd_parameters"); err != nil {
			return err
		}
	}
	if r.ReadFlag() {
		if v.VclHRD, err = p.parseHRD("vcl_hrd_parameters"); err != nil {
			return err
		}
	}
	if v.NalHRD != nil || v.VclHRD != nil {
		v.LowDelayHRD = r.ReadFlag()
	} else {
		v.LowDelayHRD = !v.FixedFrameRate
	}
	v.PicStructPresent = r.ReadFlag()
	if err := p.check("pic_struct_present_flag"); err != nil {
		return err
	}

	v.BitstreamRestriction = r.ReadFlag()
	if !v.BitstreamRestriction {
		p.defaultBitstreamRestriction()
		return p.check("bitstream_restriction_flag")
	}
	v.MotionVectorsOverPicBoundaries = r.ReadFlag()
	v.MaxBytesPerPicDenom = r.ReadUE()
	v.MaxBitsPerMbDenom = r.ReadUE()
	v.Log2MaxMvLengthHorizontal = r.ReadUE()
	v.Log2MaxMvLengthVertical = r.ReadUE()
	v.MaxNumReorderFrames = r.ReadUE()
	v.MaxDecFrameBuffering = r.ReadUE()
	if err := p.check("bitstream_restriction"); err != nil {
		return err
	}
	switch {
	case v.MaxBytesPerPicDenom > 16:
		return fieldErr("max_bytes_per_pic_denom", ErrInvalidBitstreamRestriction,
			"%d exceeds 16", v.MaxBytesPerPicDenom)
	case v.MaxBitsPerMbDenom > 16:
		return fieldErr("max_bits_per_mb_denom", ErrInvalidBitstreamRestriction,
			"%d exceeds 16", v.MaxBitsPerMbDenom)
	case v.Log2MaxMvLengthHorizontal > maxMvLength || v.Log2MaxMvLengthVertical > maxMvLength:
		return fieldErr("log2_max_mv_length", ErrInvalidBitstreamRestriction,
			"horizontal %d, vertical %d; at most %d", v.Log2MaxMvLengthHorizontal, v.Log2MaxMvLengthVertical, maxMvLength)
	case v.MaxDecFrameBuffering > MaxDpbFrames:
		return fieldErr("max_dec_frame_buffering", ErrInvalidBitstreamRestriction,
			"%d exceeds %d", v.MaxDecFrameBuffering, MaxDpbFrames)
	case v.MaxNumReorderFrames > v.MaxDecFrameBuffering:
		return fieldErr("max_num_reorder_frames", ErrInvalidBitstreamRestriction,
			"%d exceeds max_dec_frame_buffering %d", v.MaxNumReorderFrames, v.MaxDecFrameBuffering)
	}
	return nil
}

func (p *spsParser) parseHRD(field string) (*HRD, error) {
	r := p.r
	cpbCntMinus1 := r.ReadUE()
	if err := p.check(field); err != nil {
		return nil, err
	}
	if cpbCntMinus1 >= maxCpbCnt {
		return nil, fieldErr(field, ErrInvalidHRD, "cpb_cnt_minus1 %d exceeds %d", cpbCntMinus1, maxCpbCnt-1)
	}
	h := &HRD{
		CpbCnt:             cpbCntMinus1 + 1,
		BitRateScale:       uint8(r.ReadBits(4)),
		CpbSizeScale:       uint8(r.ReadBits(4)),
		BitRateValueMinus1: make([]uint32, cpbCntMinus1+1),
		CpbSizeValueMinus1: make([]uint32, cpbCntMinus1+1),
		CbrFlag:            make([]bool, cpbCntMinus1+1),
	}
	for i := range h.CbrFlag {
		h.BitRateValueMinus1[i] = r.ReadUE()
		h.CpbSizeValueMinus1[i] = r.ReadUE()
		h.CbrFlag[i] = r.ReadFlag()
	}
	h.InitialCpbRemovalDelayLengthMinus1 = uint8(r.ReadBits(5))
	h.CpbRemovalDelayLengthMinus1 = uint8(r.ReadBits(5))
	h.DpbOutputDelayLengthMinus1 = uint8(r.ReadBits(5))
	h.TimeOffsetLength = uint8(r.ReadBits(5))
	if err := p.check(field); err != nil {
		return nil, err
	}
	return h, nil
}
