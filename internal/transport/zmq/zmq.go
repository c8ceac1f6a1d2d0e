// Package zmq wraps the ZeroMQ PUB and SUB sockets used for the frame bus.
//
// Both sides bound their queues with a high-water mark. ZeroMQ drops
// messages for a subscriber whose queue is full instead of blocking the
// publisher, and the publisher additionally sends with DONTWAIT so a send
// that cannot be queued returns immediately.
package zmq

import (
	"errors"
	"fmt"
	"log/slog"
	"syscall"
	"time"

	zmq4 "github.com/pebbe/zmq4"
)

// DefaultEndpoint is the local IPC channel consumers connect to.
const DefaultEndpoint = "ipc:///tmp/mdai_rgb_frames"

// ErrRecvTimeout is returned by Sub.Recv when nothing arrived in time.
var ErrRecvTimeout = errors.New("zmq: receive timeout")

// Pub is a bound publish socket.
type Pub struct {
	ctx      *zmq4.Context
	sock     *zmq4.Socket
	endpoint string
}

// Bind creates a PUB socket with SNDHWM=hwm and LINGER=0 and binds it.
func Bind(endpoint string, hwm int) (*Pub, error) {
	ctx, err := zmq4.NewContext()
	if err != nil {
		return nil, fmt.Errorf("zmq: failed to create context: %w", err)
	}

	sock, err := ctx.NewSocket(zmq4.PUB)
	if err != nil {
		ctx.Term()
		return nil, fmt.Errorf("zmq: failed to create PUB socket: %w", err)
	}

	if err := configure(
		func() error { return sock.SetSndhwm(hwm) },
		// pending frames are stale by the time anyone could read them
		func() error { return sock.SetLinger(0) },
	); err != nil {
		sock.Close()
		ctx.Term()
		return nil, err
	}

	if err := sock.Bind(endpoint); err != nil {
		sock.Close()
		ctx.Term()
		return nil, fmt.Errorf("zmq: failed to bind %s: %w", endpoint, err)
	}

	slog.Info("zmq: publisher bound", "endpoint", endpoint, "sndhwm", hwm)
	return &Pub{ctx: ctx, sock: sock, endpoint: endpoint}, nil
}

// TrySend queues msg without blocking. It reports false with a nil error
// when the queue is full (EAGAIN). The message is copied; msg may be reused.
func (p *Pub) TrySend(msg []byte) (bool, error) {
	if _, err := p.sock.SendBytes(msg, zmq4.DONTWAIT); err != nil {
		if wouldBlock(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Endpoint returns the bound address.
func (p *Pub) Endpoint() string { return p.endpoint }

// Close closes the socket and terminates the context.
func (p *Pub) Close() error {
	err := p.sock.Close()
	if termErr := p.ctx.Term(); err == nil {
		err = termErr
	}
	return err
}

// Sub is a connected subscribe socket that receives every message.
type Sub struct {
	ctx  *zmq4.Context
	sock *zmq4.Socket
}

// Connect creates a SUB socket with RCVHWM=hwm, subscribes to all topics and
// connects to endpoint.
func Connect(endpoint string, hwm int) (*Sub, error) {
	ctx, err := zmq4.NewContext()
	if err != nil {
		return nil, fmt.Errorf("zmq: failed to create context: %w", err)
	}

	sock, err := ctx.NewSocket(zmq4.SUB)
	if err != nil {
		ctx.Term()
		return nil, fmt.Errorf("zmq: failed to create SUB socket: %w", err)
	}

	if err := configure(
		func() error { return sock.SetRcvhwm(hwm) },
		func() error { return sock.SetLinger(0) },
		func() error { return sock.SetSubscribe("") },
	); err != nil {
		sock.Close()
		ctx.Term()
		return nil, err
	}

	if err := sock.Connect(endpoint); err != nil {
		sock.Close()
		ctx.Term()
		return nil, fmt.Errorf("zmq: failed to connect %s: %w", endpoint, err)
	}

	slog.Info("zmq: subscriber connected", "endpoint", endpoint, "rcvhwm", hwm)
	return &Sub{ctx: ctx, sock: sock}, nil
}

// Recv waits up to timeout for the next message.
func (s *Sub) Recv(timeout time.Duration) ([]byte, error) {
	if err := s.sock.SetRcvtimeo(timeout); err != nil {
		return nil, fmt.Errorf("zmq: set receive timeout: %w", err)
	}
	msg, err := s.sock.RecvBytes(0)
	if err != nil {
		if wouldBlock(err) {
			return nil, ErrRecvTimeout
		}
		return nil, err
	}
	return msg, nil
}

// TryRecv returns the next message if one is queued.
func (s *Sub) TryRecv() ([]byte, bool, error) {
	msg, err := s.sock.RecvBytes(zmq4.DONTWAIT)
	if err != nil {
		if wouldBlock(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return msg, true, nil
}

// Close closes the socket and terminates the context.
func (s *Sub) Close() error {
	err := s.sock.Close()
	if termErr := s.ctx.Term(); err == nil {
		err = termErr
	}
	return err
}

func wouldBlock(err error) bool {
	return zmq4.AsErrno(err) == zmq4.Errno(syscall.EAGAIN)
}

func configure(opts ...func() error) error {
	for _, opt := range opts {
		if err := opt(); err != nil {
			return fmt.Errorf("zmq: socket option: %w", err)
		}
	}
	return nil
}
