// Package source defines the capture source contract and a synthetic
// implementation. Hardware backends live in the gstsource and mdsource
// subpackages.
package source

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrTimeout is carried by a Timeout result: no frame in the wait window.
	ErrTimeout = errors.New("source: no frame within timeout")

	// ErrNotOpen is returned by Next after Close or before Open.
	ErrNotOpen = errors.New("source: not open")

	// ErrUnsupportedMode is returned by Open when the device cannot deliver
	// the requested width/height/fps.
	ErrUnsupportedMode = errors.New("source: stream mode not supported")

	// ErrNoDevice is returned by Open when no (matching) device exists.
	ErrNoDevice = errors.New("source: no capture device")
)

// StreamConfig is the requested color stream.
type StreamConfig struct {
	Width  int
	Height int
	FPS    int
	Device string // empty selects the first available device
}

// Validate rejects non-positive stream parameters.
func (c StreamConfig) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("source: invalid resolution %dx%d", c.Width, c.Height)
	}
	if c.FPS <= 0 {
		return fmt.Errorf("source: invalid fps %d", c.FPS)
	}
	return nil
}

// RawFrame is one uncompressed color frame, interleaved RGB with stride
// Width*3. Pix is only valid until the next call to Next.
type RawFrame struct {
	Pix    []byte
	Width  int
	Height int
}

// Status discriminates a Result.
type Status int

const (
	// StatusFrame means Result.Frame holds a new frame.
	StatusFrame Status = iota
	// StatusTimeout means nothing arrived within the wait window.
	StatusTimeout
	// StatusError means the source reported a hard error; Result.Err is set.
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusFrame:
		return "frame"
	case StatusTimeout:
		return "timeout"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Result is the outcome of one Next call.
type Result struct {
	Status Status
	Frame  RawFrame
	Err    error
}

// Got wraps a frame.
func Got(f RawFrame) Result { return Result{Status: StatusFrame, Frame: f} }

// TimedOut is the Timeout variant.
func TimedOut() Result { return Result{Status: StatusTimeout, Err: ErrTimeout} }

// Failed is the HardError variant.
func Failed(err error) Result { return Result{Status: StatusError, Err: err} }

// Source delivers raw color frames.
//
// Open starts streaming; it fails if the device is missing or the mode is
// unsupported. Next blocks for at most timeout. Close stops streaming and
// may be called once Next is no longer running.
//
// Next and Close are called from the capture goroutine only; Open is
// called before it starts.
type Source interface {
	Open(ctx context.Context, cfg StreamConfig) error
	Next(timeout time.Duration) Result
	Close() error
	Name() string
}
