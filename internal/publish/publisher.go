// Package publish sends frames to the bus without ever blocking the caller.
//
// A frame that cannot be queued immediately is dropped and counted; the next
// frame supersedes it anyway. Counters are atomic so a stats reporter can read
// them from another goroutine.
package publish

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/Shreyaanp/mdaitest/internal/frame"
	"github.com/Shreyaanp/mdaitest/internal/startup"
	"github.com/Shreyaanp/mdaitest/internal/transport/zmq"
)

// DefaultQueueDepth is the outbound high-water mark.
const DefaultQueueDepth = 2

// Socket is the outbound side of the bus.
//
// TrySend must not block and must not retain msg after returning. It
// reports (false, nil) when the outbound queue is full.
type Socket interface {
	TrySend(msg []byte) (bool, error)
	Close() error
}

// Stats is a snapshot of publisher counters.
type Stats struct {
	Published  uint64 // frames handed to the transport
	Dropped    uint64 // frames not sent: backpressure, send error or closed
	SendErrors uint64 // subset of Dropped caused by transport errors
}

// Publisher owns one socket for its whole lifetime.
type Publisher struct {
	sock     Socket
	endpoint string
	buf      []byte

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error

	published  atomic.Uint64
	dropped    atomic.Uint64
	sendErrors atomic.Uint64
}

// Open binds a ZeroMQ PUB socket at endpoint with the given outbound queue
// depth. Any failure is a *startup.Error.
func Open(endpoint string, depth int) (*Publisher, error) {
	if endpoint == "" {
		return nil, startup.Wrap("publish", "bind", fmt.Errorf("publish: empty endpoint"))
	}
	if depth < 1 {
		return nil, startup.Wrap("publish", "bind", fmt.Errorf("publish: queue depth must be >= 1, got %d", depth))
	}

	sock, err := zmq.Bind(endpoint, depth)
	if err != nil {
		return nil, startup.Wrap("publish", "bind "+endpoint, err)
	}
	return New(sock, endpoint), nil
}

// New wraps an already bound socket.
func New(sock Socket, endpoint string) *Publisher {
	return &Publisher{sock: sock, endpoint: endpoint}
}

// Publish serializes f and attempts one non-blocking send. It returns true
// if the transport accepted the message.
//
// Publish is called from a single goroutine (the publish loop).
func (p *Publisher) Publish(f frame.Frame) bool {
	if p.closed.Load() {
		p.dropped.Add(1)
		return false
	}

	p.buf = frame.AppendMarshal(p.buf[:0], f)

	sent, err := p.sock.TrySend(p.buf)
	if err != nil {
		n := p.sendErrors.Add(1)
		p.dropped.Add(1)
		if n == 1 || n%1000 == 0 {
			slog.Warn("publish: send failed",
				"error", err,
				"endpoint", p.endpoint,
				"send_errors", n,
			)
		}
		return false
	}
	if !sent {
		p.dropped.Add(1)
		slog.Debug("publish: outbound queue full, frame dropped", "seq", f.Seq)
		return false
	}

	p.published.Add(1)
	return true
}

// Close releases the socket. Later calls return the first result; Publish
// after Close drops and counts.
func (p *Publisher) Close() error {
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		p.closeErr = p.sock.Close()

		st := p.Stats()
		slog.Info("publish: closed",
			"endpoint", p.endpoint,
			"published", st.Published,
			"dropped", st.Dropped,
		)
	})
	return p.closeErr
}

// Stats returns the counters. Safe for concurrent use.
func (p *Publisher) Stats() Stats {
	return Stats{
		Published:  p.published.Load(),
		Dropped:    p.dropped.Load(),
		SendErrors: p.sendErrors.Load(),
	}
}

// Endpoint returns the address the publisher is bound to.
func (p *Publisher) Endpoint() string { return p.endpoint }
