// Package gstsource captures color frames from a V4L2 camera through a
// GStreamer appsink.
//
// Pipeline:
//
//	v4l2src → videoconvert → capsfilter(RGB,w,h,fps) → appsink
//
// No videoscale or videorate: the device must deliver the requested mode,
// otherwise caps negotiation fails and Open reports ErrUnsupportedMode.
package gstsource

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/Shreyaanp/mdaitest/internal/source"
)

// openTimeout bounds how long Open waits for the pipeline to reach PLAYING.
const openTimeout = 3 * time.Second

// Source is a GStreamer-backed capture source.
type Source struct {
	cfg      source.StreamConfig
	pipeline *gst.Pipeline
	sink     *app.Sink
	bus      *gst.Bus
	pix      []byte

	launch func(source.StreamConfig) string
}

// New returns a closed source.
func New() *Source {
	return &Source{launch: Launch}
}

// Name implements source.Source.
func (s *Source) Name() string { return "gstreamer" }

// Launch returns the gst-launch description for cfg.
func Launch(cfg source.StreamConfig) string {
	device := ""
	if cfg.Device != "" {
		device = fmt.Sprintf(" device=%s", cfg.Device)
	}
	return fmt.Sprintf(
		"v4l2src%s ! videoconvert ! capsfilter caps=video/x-raw,format=RGB,width=%d,height=%d,framerate=%d/1 ! "+
			"appsink name=sink sync=false max-buffers=1 drop=true",
		device, cfg.Width, cfg.Height, cfg.FPS,
	)
}

// Open implements source.Source.
func (s *Source) Open(ctx context.Context, cfg source.StreamConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	// Initialize GStreamer (safe to call multiple times)
	gst.Init(nil)

	pipeline, err := gst.NewPipelineFromString(s.launch(cfg))
	if err != nil {
		return fmt.Errorf("gstsource: failed to create pipeline: %w", err)
	}
	s.pipeline = pipeline

	elem, err := pipeline.GetElementByName("sink")
	if err != nil {
		s.teardown()
		return fmt.Errorf("gstsource: appsink not found: %w", err)
	}

	s.cfg = cfg
	s.sink = app.SinkFromElement(elem)
	s.bus = pipeline.GetPipelineBus()
	s.pix = make([]byte, cfg.Width*cfg.Height*3)

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		s.teardown()
		return fmt.Errorf("gstsource: failed to start pipeline: %w", err)
	}

	if err := s.waitPlaying(ctx); err != nil {
		s.teardown()
		return err
	}

	slog.Info("gstsource: pipeline playing",
		"device", deviceLabel(cfg.Device),
		"width", cfg.Width,
		"height", cfg.Height,
		"fps", cfg.FPS,
	)
	return nil
}

// waitPlaying polls the bus until the pipeline reaches PLAYING or reports an
// error. Negotiation failures surface here.
func (s *Source) waitPlaying(ctx context.Context) error {
	deadline := time.Now().Add(openTimeout)

	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg := s.bus.TimedPop(50 * time.Millisecond)
		if msg == nil {
			continue
		}

		switch msg.Type() {
		case gst.MessageError:
			gerr := msg.ParseError()
			err := fmt.Errorf("gstsource: %s (%s)", gerr.Error(), gerr.DebugString())
			if source.ClassifyError(err) == source.ErrCategoryFormat {
				return fmt.Errorf("%w: %v", source.ErrUnsupportedMode, err)
			}
			return fmt.Errorf("%w: %v", source.ErrNoDevice, err)

		case gst.MessageStateChanged:
			if msg.Source() == s.pipeline.GetName() {
				_, newState := msg.ParseStateChanged()
				if newState == gst.StatePlaying {
					return nil
				}
			}
		}
	}

	return fmt.Errorf("gstsource: pipeline did not reach PLAYING within %s", openTimeout)
}

// Next implements source.Source.
func (s *Source) Next(timeout time.Duration) source.Result {
	if s.pipeline == nil {
		return source.Failed(source.ErrNotOpen)
	}

	if err := s.pollBus(); err != nil {
		return source.Failed(err)
	}

	sample := s.sink.TryPullSample(timeout)
	if sample == nil {
		if s.sink.IsEOS() {
			return source.Failed(fmt.Errorf("gstsource: end of stream"))
		}
		return source.TimedOut()
	}

	buffer := sample.GetBuffer()
	if buffer == nil {
		return source.Failed(fmt.Errorf("gstsource: sample without buffer"))
	}

	mapInfo := buffer.Map(gst.MapRead)
	data := mapInfo.Bytes()
	n := copy(s.pix, data)
	buffer.Unmap()

	if n < len(s.pix) {
		return source.Failed(fmt.Errorf("gstsource: short buffer %d bytes, want %d", n, len(s.pix)))
	}

	return source.Got(source.RawFrame{Pix: s.pix, Width: s.cfg.Width, Height: s.cfg.Height})
}

// pollBus drains pending bus messages and returns the first error.
func (s *Source) pollBus() error {
	for {
		msg := s.bus.TimedPop(0)
		if msg == nil {
			return nil
		}
		switch msg.Type() {
		case gst.MessageError:
			gerr := msg.ParseError()
			return fmt.Errorf("gstsource: %s", gerr.Error())
		case gst.MessageEOS:
			return fmt.Errorf("gstsource: end of stream")
		}
	}
}

// Close implements source.Source.
func (s *Source) Close() error {
	if s.pipeline == nil {
		return nil
	}
	s.teardown()
	slog.Info("gstsource: pipeline stopped")
	return nil
}

func (s *Source) teardown() {
	if s.pipeline != nil {
		if err := s.pipeline.SetState(gst.StateNull); err != nil {
			slog.Warn("gstsource: failed to set pipeline to NULL", "error", err)
		}
	}
	s.pipeline = nil
	s.sink = nil
	s.bus = nil
}

func deviceLabel(device string) string {
	if device == "" {
		return "first-available"
	}
	return device
}
