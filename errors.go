package mp4

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingBox reports a structurally required box that never appeared.
	ErrMissingBox = errors.New("missing box")
	// ErrDuplicateBox reports a box expected once per scope that appeared again.
	ErrDuplicateBox = errors.New("duplicate box")
	// ErrInvalidSize reports a size that violates the header contract or
	// runs past the enclosing range.
	ErrInvalidSize = errors.New("invalid box size")
	// ErrUnsupportedVersion reports a full box version this package cannot lay out.
	ErrUnsupportedVersion = errors.New("unsupported box version")
	// ErrReleased reports use of a header buffer after Release.
	ErrReleased = errors.New("header buffer released")

	errShortHeader = errors.New("not enough bytes for box header")
)

// BoxError attributes a structural error to a box type and file position.
// It unwraps to one of the Err* sentinels of this package.
type BoxError struct {
	Type   BoxType
	Offset int64 // absolute file offset of the box, or -1 if unknown
	Err    error
	Msg    string
}

func newBoxError(t BoxType, offset int64, err error, msg string) *BoxError {
	return &BoxError{Type: t, Offset: offset, Err: err, Msg: msg}
}

func (e *BoxError) Error() string {
	s := fmt.Sprintf("%s: %v", e.Type, e.Err)
	if e.Offset >= 0 {
		s += fmt.Sprintf(" at offset %d", e.Offset)
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	return s
}

func (e *BoxError) Unwrap() error { return e.Err }

// at returns a copy of e positioned at offset, keeping an already known
// offset.
func (e *BoxError) at(offset int64) *BoxError {
	if e.Offset >= 0 {
		return e
	}
	c := *e
	c.Offset = offset
	return &c
}

// withOffset positions a BoxError that was built without one.
func withOffset(err error, offset int64) error {
	var boxErr *BoxError
	if errors.As(err, &boxErr) {
		return boxErr.at(offset)
	}
	return err
}
