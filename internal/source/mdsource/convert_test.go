package mdsource

import (
	"errors"
	"image"
	"image/color"
	"testing"
)

func TestToRGB(t *testing.T) {
	t.Run("rgba", func(t *testing.T) {
		img := image.NewRGBA(image.Rect(0, 0, 2, 1))
		img.Set(0, 0, color.RGBA{R: 10, G: 20, B: 30, A: 255})
		img.Set(1, 0, color.RGBA{R: 40, G: 50, B: 60, A: 255})

		dst := make([]byte, 6)
		if err := toRGB(dst, img, 2, 1); err != nil {
			t.Fatalf("toRGB: %v", err)
		}
		want := []byte{10, 20, 30, 40, 50, 60}
		if string(dst) != string(want) {
			t.Errorf("got %v, want %v", dst, want)
		}
	})

	t.Run("ycbcr gray", func(t *testing.T) {
		img := image.NewYCbCr(image.Rect(0, 0, 2, 2), image.YCbCrSubsampleRatio420)
		for i := range img.Y {
			img.Y[i] = 128
		}
		for i := range img.Cb {
			img.Cb[i], img.Cr[i] = 128, 128
		}

		dst := make([]byte, 12)
		if err := toRGB(dst, img, 2, 2); err != nil {
			t.Fatalf("toRGB: %v", err)
		}
		for i, v := range dst {
			if v != 128 {
				t.Fatalf("dst[%d] = %d, want 128", i, v)
			}
		}
	})

	t.Run("size mismatch", func(t *testing.T) {
		img := image.NewRGBA(image.Rect(0, 0, 4, 4))
		if err := toRGB(make([]byte, 48), img, 2, 2); !errors.Is(err, errSizeMismatch) {
			t.Errorf("error = %v, want errSizeMismatch", err)
		}
	})

	t.Run("generic image", func(t *testing.T) {
		img := image.NewGray(image.Rect(0, 0, 1, 1))
		img.SetGray(0, 0, color.Gray{Y: 200})

		dst := make([]byte, 3)
		if err := toRGB(dst, img, 1, 1); err != nil {
			t.Fatalf("toRGB: %v", err)
		}
		if dst[0] != 200 || dst[1] != 200 || dst[2] != 200 {
			t.Errorf("got %v, want [200 200 200]", dst)
		}
	})
}
