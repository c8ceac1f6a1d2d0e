package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// ReconnectConfig controls when and how often a failing source is reopened.
type ReconnectConfig struct {
	ErrorThreshold int           // consecutive hard errors before reopening (default: 3)
	RetryDelay     time.Duration // first retry delay (default: 1 second)
	MaxRetryDelay  time.Duration // retry delay cap (default: 30 seconds)
}

// DefaultReconnectConfig returns the default reopen policy.
func DefaultReconnectConfig() ReconnectConfig {
	return ReconnectConfig{
		ErrorThreshold: 3,
		RetryDelay:     time.Second,
		MaxRetryDelay:  30 * time.Second,
	}
}

// Reconnecting wraps a hardware source and reopens it after a run of hard
// errors, e.g. when a camera is unplugged and plugged back in.
//
// While the device is down Next never blocks longer than its timeout: it
// reports Timeout while waiting for the next attempt and Error when an
// attempt fails. Retries back off exponentially:
//
//	attempt 1: RetryDelay
//	attempt n: RetryDelay * 2^(n-1), capped at MaxRetryDelay
//
// There is no retry limit; the capture loop keeps running until stopped.
type Reconnecting struct {
	inner Source
	cfg   ReconnectConfig

	ctx    context.Context
	stream StreamConfig

	consecutive int
	down        bool
	attempts    int
	retryAt     time.Time

	reconnects atomic.Uint64

	now   func() time.Time
	sleep func(time.Duration)
}

// NewReconnecting wraps inner. Zero fields of cfg take the defaults.
func NewReconnecting(inner Source, cfg ReconnectConfig) *Reconnecting {
	def := DefaultReconnectConfig()
	if cfg.ErrorThreshold <= 0 {
		cfg.ErrorThreshold = def.ErrorThreshold
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = def.RetryDelay
	}
	if cfg.MaxRetryDelay <= 0 {
		cfg.MaxRetryDelay = def.MaxRetryDelay
	}
	return &Reconnecting{
		inner: inner,
		cfg:   cfg,
		now:   time.Now,
		sleep: time.Sleep,
	}
}

// Name implements Source.
func (r *Reconnecting) Name() string { return r.inner.Name() }

// Open implements Source. The first open is not retried: a device that is
// missing at startup is a startup failure.
func (r *Reconnecting) Open(ctx context.Context, cfg StreamConfig) error {
	if err := r.inner.Open(ctx, cfg); err != nil {
		return err
	}
	r.ctx = ctx
	r.stream = cfg
	r.consecutive = 0
	r.down = false
	r.attempts = 0
	return nil
}

// Next implements Source.
func (r *Reconnecting) Next(timeout time.Duration) Result {
	if r.down {
		return r.reopen(timeout)
	}

	res := r.inner.Next(timeout)
	switch res.Status {
	case StatusFrame:
		r.consecutive = 0
	case StatusError:
		if errors.Is(res.Err, ErrNotOpen) {
			return res
		}
		r.consecutive++
		if r.consecutive >= r.cfg.ErrorThreshold {
			slog.Warn("source: too many consecutive errors, reopening",
				"source", r.inner.Name(),
				"errors", r.consecutive,
				"last_error", res.Err,
			)
			if err := r.inner.Close(); err != nil {
				slog.Debug("source: close before reopen", "error", err)
			}
			r.down = true
			r.attempts = 0
			r.retryAt = r.now()
		}
	}
	return res
}

func (r *Reconnecting) reopen(timeout time.Duration) Result {
	wait := r.retryAt.Sub(r.now())
	if wait > timeout {
		r.sleep(timeout)
		return TimedOut()
	}
	if wait > 0 {
		r.sleep(wait)
	}

	if err := r.ctx.Err(); err != nil {
		return Failed(err)
	}

	err := r.inner.Open(r.ctx, r.stream)
	if err == nil {
		r.down = false
		r.consecutive = 0
		n := r.reconnects.Add(1)
		slog.Info("source: reopened",
			"source", r.inner.Name(),
			"attempts", r.attempts+1,
			"reconnects", n,
		)
		return TimedOut()
	}

	r.attempts++
	delay := backoff(r.attempts, r.cfg)
	r.retryAt = r.now().Add(delay)

	slog.Warn("source: reopen failed, retrying",
		"source", r.inner.Name(),
		"attempt", r.attempts,
		"delay", delay,
		"error", err,
	)
	return Failed(fmt.Errorf("source: reopen %s: %w", r.inner.Name(), err))
}

// Close implements Source.
func (r *Reconnecting) Close() error {
	r.down = false
	return r.inner.Close()
}

// Reconnects is the number of successful reopens. Safe for concurrent use.
func (r *Reconnecting) Reconnects() uint64 { return r.reconnects.Load() }

func backoff(attempt int, cfg ReconnectConfig) time.Duration {
	if attempt > 30 {
		return cfg.MaxRetryDelay
	}
	delay := cfg.RetryDelay * time.Duration(1<<uint(attempt-1))
	if delay > cfg.MaxRetryDelay {
		delay = cfg.MaxRetryDelay
	}
	return delay
}
