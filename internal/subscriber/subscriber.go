// Package subscriber is the consumer side of the frame bus: it receives
// messages, parses the wire header, drops republished frames by sequence
// number and counts the ones it never saw.
package subscriber

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Shreyaanp/mdaitest/internal/frame"
	"github.com/Shreyaanp/mdaitest/internal/transport/zmq"
)

// DefaultRecvHWM bounds the inbound queue; older frames are dropped by the
// transport when the consumer falls behind.
const DefaultRecvHWM = 2

// Receiver is the inbound side of the bus. Recv returns zmq.ErrRecvTimeout
// when nothing arrived within timeout.
type Receiver interface {
	Recv(timeout time.Duration) ([]byte, error)
	Close() error
}

// Stats are the consumer counters.
type Stats struct {
	Received   uint64 // messages off the wire
	Malformed  uint64 // messages shorter than the header
	Delivered  uint64 // new frames handed to the callback
	Duplicates uint64 // republished frames skipped
	Missed     uint64 // sequence numbers never seen
	Restarts   uint64 // producer restarts observed
	RecvErrors uint64
}

// Subscriber reads frames from a Receiver. Not safe for concurrent use.
type Subscriber struct {
	recv   Receiver
	gaps   frame.GapTracker
	stats  Stats
	latest frame.Frame
	have   bool
}

// Connect opens a SUB socket on endpoint.
func Connect(endpoint string) (*Subscriber, error) {
	sub, err := zmq.Connect(endpoint, DefaultRecvHWM)
	if err != nil {
		return nil, err
	}
	return New(sub), nil
}

// New wraps an already connected receiver.
func New(r Receiver) *Subscriber {
	return &Subscriber{recv: r}
}

// Stream calls fn for every new frame until ctx is done. When maxFPS > 0 the
// loop waits 1/maxFPS between receives, so the transport's high-water mark
// sheds the frames in between.
//
// The frame passed to fn aliases the received message and must be cloned to
// be kept.
func (s *Subscriber) Stream(ctx context.Context, maxFPS float64, fn func(frame.Frame)) error {
	var interval time.Duration
	if maxFPS > 0 {
		interval = time.Duration(float64(time.Second) / maxFPS)
	}

	for ctx.Err() == nil {
		msg, err := s.recv.Recv(100 * time.Millisecond)
		if errors.Is(err, zmq.ErrRecvTimeout) {
			continue
		}
		if err != nil {
			s.stats.RecvErrors++
			slog.Warn("subscriber: receive failed", "error", err)
			if !sleepCtx(ctx, 100*time.Millisecond) {
				break
			}
			continue
		}

		if f, ok := s.accept(msg); ok {
			fn(f)
		}

		if interval > 0 && !sleepCtx(ctx, interval) {
			break
		}
	}
	return nil
}

// accept parses msg and reports whether it is a frame not seen before.
func (s *Subscriber) accept(msg []byte) (frame.Frame, bool) {
	s.stats.Received++

	f, err := frame.Parse(msg)
	if err != nil {
		s.stats.Malformed++
		slog.Debug("subscriber: malformed message", "size", len(msg), "error", err)
		return frame.Frame{}, false
	}

	if !s.gaps.Observe(f.Seq) {
		s.syncGaps()
		return frame.Frame{}, false
	}
	s.syncGaps()
	s.stats.Delivered++

	s.latest = f
	s.have = true
	return f, true
}

func (s *Subscriber) syncGaps() {
	s.stats.Duplicates = s.gaps.Duplicates
	s.stats.Missed = s.gaps.Missed
	s.stats.Restarts = s.gaps.Restarts
}

// Latest returns the most recent delivered frame.
func (s *Subscriber) Latest() (frame.Frame, bool) {
	return s.latest, s.have
}

// Stats returns the counters.
func (s *Subscriber) Stats() Stats { return s.stats }

// Close closes the receiver.
func (s *Subscriber) Close() error {
	slog.Info("subscriber: closed",
		"received", s.stats.Received,
		"delivered", s.stats.Delivered,
		"missed", s.stats.Missed,
	)
	return s.recv.Close()
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
