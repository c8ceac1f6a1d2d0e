package encode_test

import (
	"bytes"
	"errors"
	"image/jpeg"
	"testing"

	"github.com/Shreyaanp/mdaitest/internal/encode"
)

func gradient(w, h int) []byte {
	pix := make([]byte, w*h*3)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := (y*w + x) * 3
			pix[i] = byte(x)
			pix[i+1] = byte(y)
			pix[i+2] = byte(x + y)
		}
	}
	return pix
}

// TestJPEG_Decodable validates that output is readable by a standard decoder
// with the input dimensions.
func TestJPEG_Decodable(t *testing.T) {
	enc := encode.NewJPEG()

	out, err := enc.Encode(nil, gradient(64, 48), 64, 48, 85)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(out) == 0 {
		t.Fatal("empty output")
	}

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cfg.Width != 64 || cfg.Height != 48 {
		t.Errorf("decoded %dx%d, want 64x48", cfg.Width, cfg.Height)
	}
}

func TestJPEG_QualityAffectsSize(t *testing.T) {
	enc := encode.NewJPEG()
	pix := gradient(128, 128)

	low, err := enc.Encode(nil, pix, 128, 128, 10)
	if err != nil {
		t.Fatalf("Encode(q=10): %v", err)
	}
	low = append([]byte(nil), low...)

	high, err := enc.Encode(nil, pix, 128, 128, 95)
	if err != nil {
		t.Fatalf("Encode(q=95): %v", err)
	}

	if len(high) <= len(low) {
		t.Errorf("q=95 size %d not larger than q=10 size %d", len(high), len(low))
	}
}

func TestJPEG_ReusesDst(t *testing.T) {
	enc := encode.NewJPEG()
	dst := make([]byte, 0, 1<<20)

	out, err := enc.Encode(dst, gradient(32, 32), 32, 32, 80)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if &out[0] != &dst[:1][0] {
		t.Error("Encode did not write into the provided buffer")
	}
}

func TestJPEG_Rejects(t *testing.T) {
	enc := encode.NewJPEG()

	tests := []struct {
		name    string
		pix     []byte
		w, h, q int
		want    error
	}{
		{"zero width", gradient(4, 4), 0, 4, 80, encode.ErrBadDimensions},
		{"negative height", gradient(4, 4), 4, -1, 80, encode.ErrBadDimensions},
		{"short buffer", make([]byte, 10), 4, 4, 80, encode.ErrShortInput},
		{"quality above 100", gradient(4, 4), 4, 4, 101, encode.ErrBadQuality},
		{"quality negative", gradient(4, 4), 4, 4, -5, encode.ErrBadQuality},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := enc.Encode(nil, tt.pix, tt.w, tt.h, tt.q)

			var encErr *encode.Error
			if !errors.As(err, &encErr) {
				t.Fatalf("error %v is not *encode.Error", err)
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
			if encErr.Backend != "stdlib" {
				t.Errorf("Backend = %q", encErr.Backend)
			}
		})
	}
}

func TestJPEG_DimensionChange(t *testing.T) {
	enc := encode.NewJPEG()

	if _, err := enc.Encode(nil, gradient(16, 16), 16, 16, 80); err != nil {
		t.Fatalf("first Encode: %v", err)
	}
	out, err := enc.Encode(nil, gradient(8, 24), 8, 24, 80)
	if err != nil {
		t.Fatalf("second Encode: %v", err)
	}

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cfg.Width != 8 || cfg.Height != 24 {
		t.Errorf("decoded %dx%d, want 8x24", cfg.Width, cfg.Height)
	}
}

// Quality bounds are inclusive: 0 and 100 both encode.
func TestJPEG_QualityBounds(t *testing.T) {
	enc := encode.NewJPEG()
	for _, q := range []int{0, 100} {
		out, err := enc.Encode(nil, gradient(8, 8), 8, 8, q)
		if err != nil {
			t.Fatalf("quality %d: %v", q, err)
		}
		if _, err := jpeg.Decode(bytes.NewReader(out)); err != nil {
			t.Errorf("quality %d: decode: %v", q, err)
		}
	}
}
