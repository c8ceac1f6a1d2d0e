// Package encode turns raw interleaved RGB frames into JPEG bytes.
//
// Two backends exist: JPEG (image/jpeg, no cgo) in this package and
// cvjpeg (OpenCV via gocv). Both reuse caller-provided output buffers so the
// capture loop does not allocate per frame.
package encode

import (
	"errors"
	"fmt"
)

var (
	// ErrBadDimensions is returned when width or height is not positive.
	ErrBadDimensions = errors.New("encode: invalid dimensions")

	// ErrShortInput is returned when the pixel buffer is smaller than width*height*3.
	ErrShortInput = errors.New("encode: pixel buffer too small")

	// ErrBadQuality is returned when quality is outside 0..100.
	ErrBadQuality = errors.New("encode: quality out of range")

	// ErrEmptyOutput is returned when the codec produced no bytes.
	ErrEmptyOutput = errors.New("encode: codec produced no output")
)

// Encoder compresses one RGB frame.
//
// Encode appends the compressed image to dst[:0] and returns the result.
// Implementations are not required to be safe for concurrent use; the
// capture loop owns its encoder.
type Encoder interface {
	Encode(dst []byte, pix []byte, width, height, quality int) ([]byte, error)
	Name() string
}

// Error reports a frame the codec rejected. The capture loop drops the
// frame and counts it.
type Error struct {
	Backend string
	Width   int
	Height  int
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("encode: %s %dx%d: %v", e.Backend, e.Width, e.Height, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// CheckInput validates encoder arguments. Backends call it before touching
// the codec.
func CheckInput(backend string, pix []byte, width, height, quality int) error {
	var err error
	switch {
	case width <= 0 || height <= 0:
		err = ErrBadDimensions
	case quality < 0 || quality > 100:
		err = ErrBadQuality
	case len(pix) < width*height*3:
		err = fmt.Errorf("%w: have %d, need %d", ErrShortInput, len(pix), width*height*3)
	}
	if err != nil {
		return &Error{Backend: backend, Width: width, Height: height, Err: err}
	}
	return nil
}
