package source

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

// fakeClock drives Synthetic without real sleeps.
type fakeClock struct {
	t     time.Time
	slept []time.Duration
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) sleep(d time.Duration) {
	c.slept = append(c.slept, d)
	c.t = c.t.Add(d)
}

func newTestSynthetic() (*Synthetic, *fakeClock) {
	clk := &fakeClock{t: time.Unix(1000, 0)}
	s := NewSynthetic()
	s.now = clk.now
	s.sleep = clk.sleep
	return s, clk
}

func TestSynthetic_OpenValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  StreamConfig
		want error
	}{
		{"too wide", StreamConfig{Width: 8000, Height: 480, FPS: 30}, ErrUnsupportedMode},
		{"too fast", StreamConfig{Width: 640, Height: 480, FPS: 500}, ErrUnsupportedMode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestSynthetic()
			if err := s.Open(context.Background(), tt.cfg); !errors.Is(err, tt.want) {
				t.Errorf("Open error = %v, want %v", err, tt.want)
			}
		})
	}

	t.Run("non-positive", func(t *testing.T) {
		s, _ := newTestSynthetic()
		if err := s.Open(context.Background(), StreamConfig{Width: 0, Height: 480, FPS: 30}); err == nil {
			t.Error("Open accepted zero width")
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		s, _ := newTestSynthetic()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if err := s.Open(ctx, StreamConfig{Width: 4, Height: 4, FPS: 30}); !errors.Is(err, context.Canceled) {
			t.Errorf("Open error = %v, want context.Canceled", err)
		}
	})
}

func TestSynthetic_PacesFrames(t *testing.T) {
	s, clk := newTestSynthetic()
	if err := s.Open(context.Background(), StreamConfig{Width: 8, Height: 4, FPS: 10}); err != nil {
		t.Fatalf("Open: %v", err)
	}

	// First frame is due immediately.
	r := s.Next(time.Second)
	if r.Status != StatusFrame {
		t.Fatalf("first Next status = %v, want frame", r.Status)
	}
	if len(r.Frame.Pix) != 8*4*3 || r.Frame.Width != 8 || r.Frame.Height != 4 {
		t.Errorf("frame %dx%d len=%d", r.Frame.Width, r.Frame.Height, len(r.Frame.Pix))
	}

	// Second frame waits one interval (100ms).
	r = s.Next(time.Second)
	if r.Status != StatusFrame {
		t.Fatalf("second Next status = %v, want frame", r.Status)
	}
	if got := clk.slept[len(clk.slept)-1]; got != 100*time.Millisecond {
		t.Errorf("slept %v, want 100ms", got)
	}
}

func TestSynthetic_Timeout(t *testing.T) {
	s, _ := newTestSynthetic()
	if err := s.Open(context.Background(), StreamConfig{Width: 2, Height: 2, FPS: 1}); err != nil {
		t.Fatalf("Open: %v", err)
	}

	s.Next(time.Second) // consume the immediate frame

	r := s.Next(10 * time.Millisecond)
	if r.Status != StatusTimeout || !errors.Is(r.Err, ErrTimeout) {
		t.Errorf("Next = %v/%v, want timeout", r.Status, r.Err)
	}
}

func TestSynthetic_PatternMoves(t *testing.T) {
	s, _ := newTestSynthetic()
	if err := s.Open(context.Background(), StreamConfig{Width: 4, Height: 4, FPS: 30}); err != nil {
		t.Fatalf("Open: %v", err)
	}

	first := append([]byte(nil), s.Next(time.Second).Frame.Pix...)
	second := s.Next(time.Second).Frame.Pix

	if string(first) == string(second) {
		t.Error("consecutive frames are identical")
	}
}

func TestSynthetic_NextAfterClose(t *testing.T) {
	s, _ := newTestSynthetic()
	if err := s.Open(context.Background(), StreamConfig{Width: 2, Height: 2, FPS: 30}); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	r := s.Next(time.Second)
	if r.Status != StatusError || !errors.Is(r.Err, ErrNotOpen) {
		t.Errorf("Next after Close = %v/%v, want error/ErrNotOpen", r.Status, r.Err)
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorCategory
	}{
		{nil, ErrCategoryUnknown},
		{fmt.Errorf("open: %w", ErrUnsupportedMode), ErrCategoryFormat},
		{ErrNoDevice, ErrCategoryDevice},
		{errors.New("Device or resource busy"), ErrCategoryBusy},
		{errors.New("internal data stream error: not-negotiated caps"), ErrCategoryFormat},
		{errors.New("VIDIOC_DQBUF: ioctl failed"), ErrCategoryDevice},
		{errors.New("something odd"), ErrCategoryUnknown},
	}

	for _, tt := range tests {
		if got := ClassifyError(tt.err); got != tt.want {
			t.Errorf("ClassifyError(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}
