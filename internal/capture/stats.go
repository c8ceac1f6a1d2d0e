package capture

import (
	"sync/atomic"
	"time"
)

// State is the capture lifecycle: Idle → Starting → Running → Stopping → Idle.
type State int32

const (
	Idle State = iota
	Starting
	Running
	Stopping
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	default:
		return "unknown"
	}
}

type counters struct {
	captured       atomic.Uint64
	encodeFailures atomic.Uint64
	timeouts       atomic.Uint64
	errors         atomic.Uint64
	lastCategory   atomic.Value // string
}

func (c *counters) reset() {
	c.captured.Store(0)
	c.encodeFailures.Store(0)
	c.timeouts.Store(0)
	c.errors.Store(0)
	c.lastCategory.Store("")
}

// Stats is a snapshot of the capture counters.
type Stats struct {
	State           State
	CapturedFrames  uint64  // frames encoded and stored
	EncodeFailures  uint64  // frames dropped by the encoder
	CaptureTimeouts uint64  // Next calls that returned no frame
	CaptureErrors   uint64  // hard source errors
	EffectiveFPS    float64 // CapturedFrames * 1000 / elapsed ms
	LastErrorClass  string  // category of the most recent hard error
	StartedAt       time.Time
}

// Stats returns a snapshot. Safe for concurrent use.
func (l *Loop) Stats() Stats {
	st := Stats{
		State:           l.State(),
		CapturedFrames:  l.stats.captured.Load(),
		EncodeFailures:  l.stats.encodeFailures.Load(),
		CaptureTimeouts: l.stats.timeouts.Load(),
		CaptureErrors:   l.stats.errors.Load(),
	}
	if v, ok := l.stats.lastCategory.Load().(string); ok {
		st.LastErrorClass = v
	}

	if started := l.startedAt.Load(); started != nil {
		st.StartedAt = *started
		st.EffectiveFPS = EffectiveFPS(st.CapturedFrames, time.Since(*started))
	}
	return st
}

// EffectiveFPS computes count*1000/elapsed_ms, 0 when no time has elapsed.
func EffectiveFPS(count uint64, elapsed time.Duration) float64 {
	ms := elapsed.Milliseconds()
	if ms <= 0 {
		return 0
	}
	return float64(count) * 1000 / float64(ms)
}
