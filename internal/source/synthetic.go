package source

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Synthetic limits. Requests above these fail Open with ErrUnsupportedMode,
// which mirrors a device rejecting a stream profile.
const (
	SyntheticMaxWidth  = 3840
	SyntheticMaxHeight = 2160
	SyntheticMaxFPS    = 120
)

// Synthetic produces a moving RGB test pattern paced at the configured fps.
type Synthetic struct {
	cfg     StreamConfig
	pix     []byte
	next    time.Time
	tick    int
	open    bool
	sleep   func(time.Duration)
	now     func() time.Time
	emitted uint64
}

// NewSynthetic returns a closed synthetic source.
func NewSynthetic() *Synthetic {
	return &Synthetic{sleep: time.Sleep, now: time.Now}
}

// Name implements Source.
func (s *Synthetic) Name() string { return "synthetic" }

// Open implements Source.
func (s *Synthetic) Open(ctx context.Context, cfg StreamConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if cfg.Width > SyntheticMaxWidth || cfg.Height > SyntheticMaxHeight || cfg.FPS > SyntheticMaxFPS {
		return fmt.Errorf("%w: %dx%d@%d", ErrUnsupportedMode, cfg.Width, cfg.Height, cfg.FPS)
	}

	s.cfg = cfg
	s.pix = make([]byte, cfg.Width*cfg.Height*3)
	s.next = s.now()
	s.tick = 0
	s.open = true

	slog.Info("source: synthetic pattern opened",
		"width", cfg.Width,
		"height", cfg.Height,
		"fps", cfg.FPS,
	)
	return nil
}

// Next implements Source. It waits for the next frame deadline, or returns
// a Timeout if the deadline is further away than timeout.
func (s *Synthetic) Next(timeout time.Duration) Result {
	if !s.open {
		return Failed(ErrNotOpen)
	}

	wait := s.next.Sub(s.now())
	if wait > timeout {
		s.sleep(timeout)
		return TimedOut()
	}
	if wait > 0 {
		s.sleep(wait)
	}

	s.next = s.next.Add(time.Second / time.Duration(s.cfg.FPS))
	if behind := s.now().Sub(s.next); behind > time.Second {
		// far behind schedule (e.g. stopped debugger); resync instead of bursting
		s.next = s.now()
	}

	s.fill()
	s.tick++
	s.emitted++

	return Got(RawFrame{Pix: s.pix, Width: s.cfg.Width, Height: s.cfg.Height})
}

// Close implements Source.
func (s *Synthetic) Close() error {
	if !s.open {
		return nil
	}
	s.open = false
	slog.Info("source: synthetic pattern closed", "frames_emitted", s.emitted)
	return nil
}

// fill draws diagonal color bands that shift one pixel per frame.
func (s *Synthetic) fill() {
	w, h := s.cfg.Width, s.cfg.Height
	for y := 0; y < h; y++ {
		row := s.pix[y*w*3 : (y+1)*w*3]
		for x := 0; x < w; x++ {
			v := x + y + s.tick
			row[x*3] = byte(v)
			row[x*3+1] = byte(v >> 1)
			row[x*3+2] = byte(255 - v)
		}
	}
}
