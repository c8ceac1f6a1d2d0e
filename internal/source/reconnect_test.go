package source

import (
	"context"
	"errors"
	"testing"
	"time"
)

// flakySource fails Next while broken and fails Open while openErrs remain.
type flakySource struct {
	broken   bool
	openErrs int
	opens    int
	closes   int
}

func (f *flakySource) Name() string { return "flaky" }

func (f *flakySource) Open(context.Context, StreamConfig) error {
	if f.openErrs > 0 {
		f.openErrs--
		return ErrNoDevice
	}
	f.opens++
	return nil
}

func (f *flakySource) Next(time.Duration) Result {
	if f.broken {
		return Failed(errors.New("device disconnected"))
	}
	return Got(RawFrame{Pix: make([]byte, 3), Width: 1, Height: 1})
}

func (f *flakySource) Close() error {
	f.closes++
	return nil
}

func newTestReconnecting(inner Source) (*Reconnecting, *fakeClock) {
	clk := &fakeClock{t: time.Unix(1000, 0)}
	r := NewReconnecting(inner, ReconnectConfig{
		ErrorThreshold: 3,
		RetryDelay:     100 * time.Millisecond,
		MaxRetryDelay:  300 * time.Millisecond,
	})
	r.now = clk.now
	r.sleep = clk.sleep
	return r, clk
}

var testStream = StreamConfig{Width: 1, Height: 1, FPS: 30}

// TestReconnecting_ReopensAfterThreshold validates the full down/up cycle:
// threshold errors close the device, failed reopens back off, a successful
// reopen resumes frames.
func TestReconnecting_ReopensAfterThreshold(t *testing.T) {
	inner := &flakySource{}
	r, clk := newTestReconnecting(inner)

	if err := r.Open(context.Background(), testStream); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if res := r.Next(time.Second); res.Status != StatusFrame {
		t.Fatalf("healthy Next = %v", res.Status)
	}

	inner.broken = true
	for i := 0; i < 3; i++ {
		if res := r.Next(time.Second); res.Status != StatusError {
			t.Fatalf("Next #%d = %v, want error", i, res.Status)
		}
	}
	if inner.closes != 1 {
		t.Fatalf("closes = %d after threshold, want 1", inner.closes)
	}

	// device still absent for two attempts
	inner.openErrs = 2
	inner.broken = false

	if res := r.Next(time.Second); res.Status != StatusError || !errors.Is(res.Err, ErrNoDevice) {
		t.Fatalf("first reopen = %v %v, want ErrNoDevice", res.Status, res.Err)
	}

	start := clk.t
	if res := r.Next(time.Second); res.Status != StatusError {
		t.Fatalf("second reopen = %v, want error", res.Status)
	}
	if waited := clk.t.Sub(start); waited != 100*time.Millisecond {
		t.Errorf("waited %v before second attempt, want 100ms", waited)
	}

	start = clk.t
	if res := r.Next(time.Second); res.Status != StatusTimeout {
		t.Fatalf("successful reopen = %v, want timeout", res.Status)
	}
	if waited := clk.t.Sub(start); waited != 200*time.Millisecond {
		t.Errorf("waited %v before third attempt, want 200ms", waited)
	}
	if r.Reconnects() != 1 {
		t.Errorf("Reconnects = %d, want 1", r.Reconnects())
	}

	if res := r.Next(time.Second); res.Status != StatusFrame {
		t.Fatalf("Next after reopen = %v, want frame", res.Status)
	}
}

func TestReconnecting_WaitBoundedByTimeout(t *testing.T) {
	inner := &flakySource{broken: true}
	r, clk := newTestReconnecting(inner)
	r.cfg.RetryDelay = 10 * time.Second
	r.cfg.MaxRetryDelay = 10 * time.Second

	r.Open(context.Background(), testStream)
	for i := 0; i < 3; i++ {
		r.Next(time.Second)
	}

	inner.openErrs = 1
	r.Next(time.Second) // failed attempt schedules the next one 10s out

	start := clk.t
	res := r.Next(50 * time.Millisecond)
	if res.Status != StatusTimeout {
		t.Fatalf("Next while waiting = %v, want timeout", res.Status)
	}
	if waited := clk.t.Sub(start); waited != 50*time.Millisecond {
		t.Errorf("Next blocked %v, want 50ms", waited)
	}
}

func TestReconnecting_IntermittentErrorsDoNotReopen(t *testing.T) {
	inner := &flakySource{}
	r, _ := newTestReconnecting(inner)
	r.Open(context.Background(), testStream)

	for i := 0; i < 10; i++ {
		inner.broken = i%2 == 0
		r.Next(time.Second)
	}
	if inner.closes != 0 {
		t.Errorf("source closed %d times on alternating errors", inner.closes)
	}
}

func TestReconnecting_InitialOpenNotRetried(t *testing.T) {
	inner := &flakySource{openErrs: 1}
	r, _ := newTestReconnecting(inner)

	if err := r.Open(context.Background(), testStream); !errors.Is(err, ErrNoDevice) {
		t.Fatalf("Open error = %v, want ErrNoDevice", err)
	}
}

func TestReconnecting_CancelledWhileDown(t *testing.T) {
	inner := &flakySource{broken: true}
	r, _ := newTestReconnecting(inner)

	ctx, cancel := context.WithCancel(context.Background())
	r.Open(ctx, testStream)
	for i := 0; i < 3; i++ {
		r.Next(time.Second)
	}
	cancel()

	res := r.Next(time.Second)
	if res.Status != StatusError || !errors.Is(res.Err, context.Canceled) {
		t.Fatalf("Next after cancel = %v %v", res.Status, res.Err)
	}
	if inner.opens != 1 {
		t.Errorf("reopened after cancellation: opens = %d", inner.opens)
	}
}

func TestBackoff(t *testing.T) {
	cfg := ReconnectConfig{RetryDelay: time.Second, MaxRetryDelay: 30 * time.Second}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second, 30 * time.Second}
	for i, w := range want {
		if got := backoff(i+1, cfg); got != w {
			t.Errorf("backoff(%d) = %v, want %v", i+1, got, w)
		}
	}
	if got := backoff(100, cfg); got != 30*time.Second {
		t.Errorf("backoff(100) = %v, want cap", got)
	}
}
