package pipeline

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/Shreyaanp/mdaitest/internal/frame"
	"github.com/Shreyaanp/mdaitest/internal/framestore"
)

// DefaultIdleDelay is the pause between publish loop iterations. It must stay
// well below the camera frame interval.
const DefaultIdleDelay = time.Millisecond

// FramePublisher is the sending side the publish loop drives.
type FramePublisher interface {
	Publish(f frame.Frame) bool
}

// PublishLoop moves the latest frame from the store to the publisher.
//
// There is no deduplication: when the consumer side is faster than capture
// the same frame is sent again, and subscribers drop it by sequence number.
type PublishLoop struct {
	store     *framestore.Store
	pub       FramePublisher
	stop      *atomic.Bool
	idleDelay time.Duration
}

// NewPublishLoop builds a loop sharing the stop token with capture.
func NewPublishLoop(store *framestore.Store, pub FramePublisher, stop *atomic.Bool) *PublishLoop {
	return &PublishLoop{
		store:     store,
		pub:       pub,
		stop:      stop,
		idleDelay: DefaultIdleDelay,
	}
}

// Run blocks until the stop flag is set or ctx is done.
func (p *PublishLoop) Run(ctx context.Context) {
	var f frame.Frame

	timer := time.NewTimer(p.idleDelay)
	defer timer.Stop()

	for {
		if p.stop.Load() || ctx.Err() != nil {
			return
		}

		if p.store.ReadLatestInto(&f) {
			p.pub.Publish(f)
		}

		// Publish never blocks, so the loop yields on every iteration.
		sleep(ctx, timer, p.idleDelay)
	}
}

func sleep(ctx context.Context, t *time.Timer, d time.Duration) {
	t.Reset(d)
	select {
	case <-t.C:
	case <-ctx.Done():
		t.Stop()
	}
}
