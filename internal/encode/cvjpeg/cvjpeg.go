// Package cvjpeg is the OpenCV JPEG backend.
package cvjpeg

import (
	"fmt"

	"gocv.io/x/gocv"

	"github.com/Shreyaanp/mdaitest/internal/encode"
)

// Encoder encodes through gocv.IMEncodeWithParams. OpenCV expects BGR, so
// input is converted into a reused Mat first.
type Encoder struct {
	bgr gocv.Mat
}

// New returns an OpenCV-backed encoder. Call Close to release native memory.
func New() *Encoder {
	return &Encoder{bgr: gocv.NewMat()}
}

// Name implements encode.Encoder.
func (e *Encoder) Name() string { return "opencv" }

// Encode implements encode.Encoder.
func (e *Encoder) Encode(dst []byte, pix []byte, width, height, quality int) ([]byte, error) {
	if err := encode.CheckInput(e.Name(), pix, width, height, quality); err != nil {
		return dst[:0], err
	}

	rgb, err := gocv.NewMatFromBytes(height, width, gocv.MatTypeCV8UC3, pix[:width*height*3])
	if err != nil {
		return dst[:0], e.fail(width, height, fmt.Errorf("wrap pixels: %w", err))
	}
	defer rgb.Close()

	gocv.CvtColor(rgb, &e.bgr, gocv.ColorRGBToBGR)

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, e.bgr, []int{gocv.IMWriteJpegQuality, quality})
	if err != nil {
		return dst[:0], e.fail(width, height, err)
	}
	defer buf.Close()

	out := buf.GetBytes()
	if len(out) == 0 {
		return dst[:0], e.fail(width, height, encode.ErrEmptyOutput)
	}
	return append(dst[:0], out...), nil
}

// Close releases the conversion Mat.
func (e *Encoder) Close() error {
	return e.bgr.Close()
}

func (e *Encoder) fail(width, height int, err error) error {
	return &encode.Error{Backend: e.Name(), Width: width, Height: height, Err: err}
}
