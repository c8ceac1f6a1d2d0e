// Package mdsource captures color frames through pion/mediadevices.
//
// The mediadevices reader blocks without a deadline, so a reader goroutine
// feeds a single-slot latest-frame channel and Next waits on it with a timer.
package mdsource

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"sync"
	"time"

	"github.com/pion/mediadevices"
	_ "github.com/pion/mediadevices/pkg/driver/camera" // registers camera drivers
	"github.com/pion/mediadevices/pkg/prop"

	"github.com/Shreyaanp/mdaitest/internal/source"
)

// Source is a mediadevices-backed capture source.
type Source struct {
	cfg   source.StreamConfig
	track mediadevices.Track

	ready chan []byte // latest converted frame, capacity 1
	free  chan []byte // recycled buffers
	errs  chan error
	stop  chan struct{}
	wg    sync.WaitGroup

	pix  []byte
	open bool
}

// New returns a closed source.
func New() *Source {
	return &Source{}
}

// Name implements source.Source.
func (s *Source) Name() string { return "mediadevices" }

// Open implements source.Source.
func (s *Source) Open(ctx context.Context, cfg source.StreamConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if !hasCamera(cfg.Device) {
		return fmt.Errorf("%w: device %q", source.ErrNoDevice, cfg.Device)
	}

	stream, err := mediadevices.GetUserMedia(mediadevices.MediaStreamConstraints{
		Video: func(c *mediadevices.MediaTrackConstraints) {
			c.Width = prop.IntExact(cfg.Width)
			c.Height = prop.IntExact(cfg.Height)
			c.FrameRate = prop.Float(cfg.FPS)
			if cfg.Device != "" {
				c.DeviceID = prop.String(cfg.Device)
			}
		},
	})
	if err != nil {
		return fmt.Errorf("%w: %v", source.ErrUnsupportedMode, err)
	}

	tracks := stream.GetVideoTracks()
	if len(tracks) == 0 {
		return fmt.Errorf("%w: no video track", source.ErrNoDevice)
	}
	video, ok := tracks[0].(*mediadevices.VideoTrack)
	if !ok {
		tracks[0].Close()
		return fmt.Errorf("mdsource: unexpected track type %T", tracks[0])
	}

	size := cfg.Width * cfg.Height * 3
	s.cfg = cfg
	s.track = video
	s.pix = make([]byte, size)
	s.ready = make(chan []byte, 1)
	s.free = make(chan []byte, 2)
	s.errs = make(chan error, 1)
	s.stop = make(chan struct{})
	s.free <- make([]byte, size)
	s.free <- make([]byte, size)
	s.open = true

	s.wg.Add(1)
	go s.readLoop(video)

	slog.Info("mdsource: camera opened",
		"device", cfg.Device,
		"width", cfg.Width,
		"height", cfg.Height,
		"fps", cfg.FPS,
	)
	return nil
}

func (s *Source) readLoop(video *mediadevices.VideoTrack) {
	defer s.wg.Done()

	reader := video.NewReader(false)

	for {
		img, release, err := reader.Read()
		if err != nil {
			select {
			case <-s.stop:
				return
			default:
			}
			select {
			case s.errs <- err:
			default:
			}
			// Avoid spinning on a dead reader; the capture loop backs off too.
			select {
			case <-s.stop:
				return
			case <-time.After(100 * time.Millisecond):
			}
			continue
		}

		var buf []byte
		select {
		case buf = <-s.free:
		case <-s.stop:
			release()
			return
		}

		convErr := toRGB(buf, img, s.cfg.Width, s.cfg.Height)
		release()
		if convErr != nil {
			s.free <- buf
			select {
			case s.errs <- convErr:
			default:
			}
			continue
		}

		// Latest wins: recycle an unread frame before offering the new one.
		select {
		case old := <-s.ready:
			s.free <- old
		default:
		}
		s.ready <- buf
	}
}

// Next implements source.Source.
func (s *Source) Next(timeout time.Duration) source.Result {
	if !s.open {
		return source.Failed(source.ErrNotOpen)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case buf := <-s.ready:
		copy(s.pix, buf)
		s.free <- buf
		return source.Got(source.RawFrame{Pix: s.pix, Width: s.cfg.Width, Height: s.cfg.Height})
	case err := <-s.errs:
		return source.Failed(fmt.Errorf("mdsource: %w", err))
	case <-timer.C:
		return source.TimedOut()
	}
}

// Close implements source.Source.
func (s *Source) Close() error {
	if !s.open {
		return nil
	}
	s.open = false

	close(s.stop)
	err := s.track.Close()
	s.wg.Wait()

	slog.Info("mdsource: camera closed")
	return err
}

func hasCamera(deviceID string) bool {
	for _, d := range mediadevices.EnumerateDevices() {
		if d.Kind != mediadevices.VideoInput {
			continue
		}
		if deviceID == "" || d.DeviceID == deviceID {
			return true
		}
	}
	return false
}

var errSizeMismatch = errors.New("mdsource: frame size differs from requested mode")

// toRGB writes img as interleaved RGB into dst.
func toRGB(dst []byte, img image.Image, width, height int) error {
	b := img.Bounds()
	if b.Dx() != width || b.Dy() != height {
		return fmt.Errorf("%w: got %dx%d", errSizeMismatch, b.Dx(), b.Dy())
	}

	switch src := img.(type) {
	case *image.YCbCr:
		i := 0
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				yi := src.YOffset(x, y)
				ci := src.COffset(x, y)
				r, g, bl := color.YCbCrToRGB(src.Y[yi], src.Cb[ci], src.Cr[ci])
				dst[i], dst[i+1], dst[i+2] = r, g, bl
				i += 3
			}
		}
	case *image.RGBA:
		i := 0
		for y := b.Min.Y; y < b.Max.Y; y++ {
			row := src.Pix[src.PixOffset(b.Min.X, y):]
			for x := 0; x < width; x++ {
				dst[i], dst[i+1], dst[i+2] = row[x*4], row[x*4+1], row[x*4+2]
				i += 3
			}
		}
	default:
		i := 0
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				r, g, bl, _ := img.At(x, y).RGBA()
				dst[i], dst[i+1], dst[i+2] = byte(r>>8), byte(g>>8), byte(bl>>8)
				i += 3
			}
		}
	}
	return nil
}
