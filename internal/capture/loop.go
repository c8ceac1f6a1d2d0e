// Package capture runs the capture goroutine: pull a raw frame from the
// source, encode it, write it into the inactive framestore slot, flip the
// latest index. Per-frame failures are counted and never end the loop; only
// Start can fail, with a *startup.Error.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Shreyaanp/mdaitest/internal/encode"
	"github.com/Shreyaanp/mdaitest/internal/frame"
	"github.com/Shreyaanp/mdaitest/internal/framestore"
	"github.com/Shreyaanp/mdaitest/internal/source"
	"github.com/Shreyaanp/mdaitest/internal/startup"
)

const (
	DefaultCaptureTimeout = time.Second
	DefaultErrorBackoff   = 100 * time.Millisecond
	DefaultStopGrace      = 100 * time.Millisecond
)

// ErrAlreadyStarted is returned by Start when the loop is not Idle.
var ErrAlreadyStarted = errors.New("capture: already started")

// Config holds the capture parameters. Zero durations take the defaults.
type Config struct {
	Width   int
	Height  int
	FPS     int
	Quality int
	Device  string

	CaptureTimeout time.Duration // bounded wait per Next call
	ErrorBackoff   time.Duration // sleep after a hard source error
	StopGrace      time.Duration // delay before joining on Stop
}

// Validate checks that width, height, fps and quality are positive and
// quality is at most 100.
func (c Config) Validate() error {
	switch {
	case c.Width <= 0 || c.Height <= 0:
		return fmt.Errorf("capture: invalid resolution %dx%d", c.Width, c.Height)
	case c.FPS <= 0:
		return fmt.Errorf("capture: fps must be > 0, got %d", c.FPS)
	case c.Quality <= 0 || c.Quality > 100:
		return fmt.Errorf("capture: quality must be in 1..100, got %d", c.Quality)
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.CaptureTimeout <= 0 {
		c.CaptureTimeout = DefaultCaptureTimeout
	}
	if c.ErrorBackoff <= 0 {
		c.ErrorBackoff = DefaultErrorBackoff
	}
	if c.StopGrace <= 0 {
		c.StopGrace = DefaultStopGrace
	}
	return c
}

// Loop owns a source, an encoder and the writer side of a framestore.
//
// Goroutine topology: one capture goroutine, spawned by Start and joined by
// Stop. Stats and State are safe from any goroutine.
type Loop struct {
	cfg   Config
	src   source.Source
	enc   encode.Encoder
	store *framestore.Store
	stop  *atomic.Bool

	mu     sync.Mutex // serializes Start/Stop
	state  atomic.Int32
	cancel context.CancelFunc
	ctx    context.Context
	wg     sync.WaitGroup

	seq       uint32 // capture goroutine only
	startedAt atomic.Pointer[time.Time]
	stats     counters
}

// New builds an Idle loop. stop is the shared cancellation token; the loop
// checks it once per iteration and sets it on Stop.
func New(cfg Config, src source.Source, enc encode.Encoder, store *framestore.Store, stop *atomic.Bool) *Loop {
	if stop == nil {
		stop = new(atomic.Bool)
	}
	return &Loop{
		cfg:   cfg.withDefaults(),
		src:   src,
		enc:   enc,
		store: store,
		stop:  stop,
	}
}

// State returns the lifecycle state.
func (l *Loop) State() State {
	return State(l.state.Load())
}

// Start validates the configuration, opens the source and spawns the
// capture goroutine. On failure the loop returns to Idle and the error is a
// *startup.Error. A successful Start clears the stop flag and resets the
// sequence number and counters.
func (l *Loop) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.State() != Idle {
		return ErrAlreadyStarted
	}
	l.state.Store(int32(Starting))

	if err := l.cfg.Validate(); err != nil {
		l.state.Store(int32(Idle))
		return startup.Wrap("capture", "validate config", err)
	}

	stream := source.StreamConfig{
		Width:  l.cfg.Width,
		Height: l.cfg.Height,
		FPS:    l.cfg.FPS,
		Device: l.cfg.Device,
	}
	if err := l.src.Open(ctx, stream); err != nil {
		l.state.Store(int32(Idle))
		slog.Error("capture: failed to open source",
			"source", l.src.Name(),
			"error", err,
			"category", source.ClassifyError(err).String(),
		)
		return startup.Wrap("capture", "open "+l.src.Name()+" source", err)
	}

	l.ctx, l.cancel = context.WithCancel(ctx)
	l.stop.Store(false)
	l.seq = 0
	l.stats.reset()
	now := time.Now()
	l.startedAt.Store(&now)
	l.state.Store(int32(Running))

	l.wg.Add(1)
	go l.run()

	slog.Info("capture: started",
		"source", l.src.Name(),
		"encoder", l.enc.Name(),
		"width", l.cfg.Width,
		"height", l.cfg.Height,
		"fps", l.cfg.FPS,
		"quality", l.cfg.Quality,
	)
	return nil
}

// Stop sets the stop flag, gives an in-flight Next call a short grace
// period, joins the capture goroutine and closes the source.
//
// Idempotent: calling Stop on an Idle loop does nothing.
func (l *Loop) Stop() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.State() != Running {
		return nil
	}
	l.state.Store(int32(Stopping))

	l.stop.Store(true)
	time.Sleep(l.cfg.StopGrace)
	l.cancel()
	l.wg.Wait()

	err := l.src.Close()
	l.state.Store(int32(Idle))

	st := l.Stats()
	slog.Info("capture: stopped",
		"captured_frames", st.CapturedFrames,
		"encode_failures", st.EncodeFailures,
		"capture_timeouts", st.CaptureTimeouts,
		"capture_errors", st.CaptureErrors,
		"effective_fps", st.EffectiveFPS,
	)

	if err != nil {
		return fmt.Errorf("capture: close source: %w", err)
	}
	return nil
}

func (l *Loop) run() {
	defer l.wg.Done()

	encBuf := make([]byte, 0, l.cfg.Width*l.cfg.Height*3)

	for {
		if l.stop.Load() || l.ctx.Err() != nil {
			return
		}

		res := l.src.Next(l.cfg.CaptureTimeout)

		switch res.Status {
		case source.StatusTimeout:
			l.stats.timeouts.Add(1)
			slog.Debug("capture: no frame within timeout", "timeout", l.cfg.CaptureTimeout)
			continue

		case source.StatusError:
			l.stats.errors.Add(1)
			category := source.ClassifyError(res.Err)
			l.stats.lastCategory.Store(category.String())
			slog.Warn("capture: source error, backing off",
				"error", res.Err,
				"category", category.String(),
				"backoff", l.cfg.ErrorBackoff,
			)
			l.backoff()
			continue
		}

		out, err := l.encode(encBuf, res.Frame)
		if err != nil {
			l.stats.encodeFailures.Add(1)
			slog.Debug("capture: frame dropped, encode failed", "error", err)
			continue
		}
		encBuf = out

		f := frame.Frame{
			Data:        out,
			Width:       uint32(res.Frame.Width),
			Height:      uint32(res.Frame.Height),
			TimestampMS: monotonicMS(),
			Seq:         l.seq,
		}
		l.seq++

		slot := l.store.WriteSlot()
		l.store.Write(slot, f)
		l.store.PublishLatest(slot)

		l.stats.captured.Add(1)
	}
}

// encode shields the loop from codec panics; a panicking backend costs one
// frame, same as a rejected one.
func (l *Loop) encode(dst []byte, raw source.RawFrame) (out []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = dst[:0]
			err = &encode.Error{
				Backend: l.enc.Name(),
				Width:   raw.Width,
				Height:  raw.Height,
				Err:     fmt.Errorf("panic: %v", r),
			}
		}
	}()
	return l.enc.Encode(dst, raw.Pix, raw.Width, raw.Height, l.cfg.Quality)
}

func (l *Loop) backoff() {
	t := time.NewTimer(l.cfg.ErrorBackoff)
	defer t.Stop()
	select {
	case <-t.C:
	case <-l.ctx.Done():
	}
}

// processStart anchors the monotonic clock used for frame timestamps.
var processStart = time.Now()

// monotonicMS returns milliseconds since process start on the monotonic clock.
func monotonicMS() uint64 {
	return uint64(time.Since(processStart).Milliseconds())
}
