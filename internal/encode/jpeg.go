package encode

import (
	"bytes"
	"image"
	"image/jpeg"
)

// JPEG encodes with the standard library codec.
//
// RGB input is expanded into a reused RGBA image because image/jpeg has a
// fast path for *image.RGBA and falls back to per-pixel At() otherwise.
type JPEG struct {
	rgba *image.RGBA
}

// NewJPEG returns a stdlib-backed encoder.
func NewJPEG() *JPEG {
	return &JPEG{}
}

// Name implements Encoder.
func (e *JPEG) Name() string { return "stdlib" }

// Encode implements Encoder.
func (e *JPEG) Encode(dst []byte, pix []byte, width, height, quality int) ([]byte, error) {
	if err := CheckInput(e.Name(), pix, width, height, quality); err != nil {
		return dst[:0], err
	}

	img := e.image(width, height)
	rgbToRGBA(img.Pix, pix[:width*height*3])

	buf := bytes.NewBuffer(dst[:0])
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return dst[:0], &Error{Backend: e.Name(), Width: width, Height: height, Err: err}
	}
	if buf.Len() == 0 {
		return dst[:0], &Error{Backend: e.Name(), Width: width, Height: height, Err: ErrEmptyOutput}
	}
	return buf.Bytes(), nil
}

func (e *JPEG) image(width, height int) *image.RGBA {
	if e.rgba == nil || e.rgba.Rect.Dx() != width || e.rgba.Rect.Dy() != height {
		e.rgba = image.NewRGBA(image.Rect(0, 0, width, height))
	}
	return e.rgba
}

func rgbToRGBA(dst, src []byte) {
	for i, j := 0, 0; i+2 < len(src); i, j = i+3, j+4 {
		dst[j] = src[i]
		dst[j+1] = src[i+1]
		dst[j+2] = src[i+2]
		dst[j+3] = 0xff
	}
}
