// Package pipeline wires the capture loop, the frame store, the publisher and
// the publish loop into one start/run/stop lifecycle.
//
// Goroutine topology while running:
//
//	capture goroutine   (owned by capture.Loop, joined on Stop)
//	publish loop        (the goroutine calling Run)
//
// The two communicate only through the frame store and share one stop
// token. Start is the only call that returns a *startup.Error.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Shreyaanp/mdaitest/internal/capture"
	"github.com/Shreyaanp/mdaitest/internal/encode"
	"github.com/Shreyaanp/mdaitest/internal/framestore"
	"github.com/Shreyaanp/mdaitest/internal/publish"
	"github.com/Shreyaanp/mdaitest/internal/source"
)

var (
	// ErrNotStarted is returned by Run before a successful Start.
	ErrNotStarted = errors.New("pipeline: not started")

	// ErrPublisherClosed is returned by Start when an earlier Start failed and
	// closed the publisher passed with WithPublisher.
	ErrPublisherClosed = errors.New("pipeline: publisher closed by failed start")
)

// Opener binds a publisher. publish.Open is the default.
type Opener func(endpoint string, depth int) (*publish.Publisher, error)

// Config is the pipeline configuration.
type Config struct {
	Capture    capture.Config
	Endpoint   string
	QueueDepth int
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithPublisher uses p instead of binding a ZeroMQ socket on Start. The
// pipeline closes p on Stop, or when Start fails; a pipeline whose injected
// publisher was closed cannot be started again.
func WithPublisher(p *publish.Publisher) Option {
	return func(pl *Pipeline) { pl.pub.Store(p) }
}

// WithOpener replaces publish.Open for publishers bound by Start.
func WithOpener(open Opener) Option {
	return func(pl *Pipeline) { pl.open = open }
}

// Snapshot is the observability contract of a running pipeline.
type Snapshot struct {
	State           capture.State
	CapturedFrames  uint64
	EffectiveFPS    float64
	Published       uint64
	Dropped         uint64
	SendErrors      uint64
	EncodeFailures  uint64
	CaptureTimeouts uint64
	CaptureErrors   uint64
	LastErrorClass  string
	StartedAt       time.Time
}

// Pipeline owns every core component.
type Pipeline struct {
	cfg   Config
	stop  *atomic.Bool
	store *framestore.Store
	loop  *capture.Loop
	pub   atomic.Pointer[publish.Publisher]
	pubs  *PublishLoop
	open  Opener

	mu        sync.Mutex // serializes Start, Stop and Run registration
	started   bool
	stopped   bool
	pubClosed bool // injected publisher closed by a failed Start
	runWG   sync.WaitGroup
}

// New builds a pipeline around src and enc. Nothing is opened until Start.
func New(cfg Config, src source.Source, enc encode.Encoder, opts ...Option) *Pipeline {
	if cfg.QueueDepth == 0 {
		cfg.QueueDepth = publish.DefaultQueueDepth
	}

	stop := new(atomic.Bool)
	store := framestore.New(cfg.Capture.Width, cfg.Capture.Height)

	p := &Pipeline{
		cfg:   cfg,
		stop:  stop,
		store: store,
		loop:  capture.New(cfg.Capture, src, enc, store, stop),
		open:  publish.Open,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start binds the publisher, then starts capture. If capture fails the
// publisher is closed again and the pipeline stays Idle; a publisher bound
// here is bound afresh by the next Start. The returned error is a
// *startup.Error.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started || p.stopped {
		return capture.ErrAlreadyStarted
	}
	if p.pubClosed {
		return ErrPublisherClosed
	}

	pub := p.pub.Load()
	owned := pub == nil
	if owned {
		var err error
		if pub, err = p.open(p.cfg.Endpoint, p.cfg.QueueDepth); err != nil {
			return err
		}
		p.pub.Store(pub)
	}

	if err := p.loop.Start(ctx); err != nil {
		pub.Close()
		if owned {
			p.pub.Store(nil)
		} else {
			p.pubClosed = true
		}
		return err
	}

	p.pubs = NewPublishLoop(p.store, pub, p.stop)
	p.started = true

	slog.Info("pipeline: started",
		"endpoint", pub.Endpoint(),
		"queue_depth", p.cfg.QueueDepth,
	)
	return nil
}

// Run drives the publish loop on the calling goroutine until ctx is done or
// the stop token is set.
func (p *Pipeline) Run(ctx context.Context) error {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return ErrNotStarted
	}
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.runWG.Add(1)
	pubs := p.pubs
	p.mu.Unlock()

	defer p.runWG.Done()
	pubs.Run(ctx)
	return nil
}

// Stop sets the stop token, joins capture, waits for Run to return and
// closes the publisher. Safe to call more than once.
func (p *Pipeline) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started || p.stopped {
		return nil
	}
	p.stopped = true
	p.stop.Store(true)

	var err error
	if stopErr := p.loop.Stop(); stopErr != nil {
		slog.Warn("pipeline: capture stop", "error", stopErr)
		err = stopErr
	}

	// The socket is not safe for concurrent use; close it only after the
	// publish loop has exited.
	p.runWG.Wait()
	if closeErr := p.pub.Load().Close(); closeErr != nil && err == nil {
		err = closeErr
	}

	slog.Info("pipeline: stopped")
	return err
}

// Snapshot reads every counter. Safe from any goroutine.
func (p *Pipeline) Snapshot() Snapshot {
	cs := p.loop.Stats()
	s := Snapshot{
		State:           cs.State,
		CapturedFrames:  cs.CapturedFrames,
		EffectiveFPS:    cs.EffectiveFPS,
		EncodeFailures:  cs.EncodeFailures,
		CaptureTimeouts: cs.CaptureTimeouts,
		CaptureErrors:   cs.CaptureErrors,
		LastErrorClass:  cs.LastErrorClass,
		StartedAt:       cs.StartedAt,
	}

	if pub := p.pub.Load(); pub != nil {
		ps := pub.Stats()
		s.Published = ps.Published
		s.Dropped = ps.Dropped
		s.SendErrors = ps.SendErrors
	}
	return s
}

// Loop exposes the capture loop for warm-up measurement.
func (p *Pipeline) Loop() *capture.Loop { return p.loop }
