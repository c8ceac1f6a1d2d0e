package capture

import (
	"context"
	"log/slog"
	"math"
	"time"
)

const (
	// fpsStabilityThreshold: stable if stddev of instantaneous fps < 15% of mean.
	fpsStabilityThreshold = 0.15

	// jitterStabilityThreshold: stable if mean jitter < 20% of the expected interval.
	jitterStabilityThreshold = 0.20

	// warmupPoll is how often Warmup samples the captured counter.
	warmupPoll = time.Millisecond
)

// WarmupStats summarizes capture cadence over a warm-up window.
type WarmupStats struct {
	FramesReceived int
	Duration       time.Duration
	FPSMean        float64
	FPSStdDev      float64
	FPSMin         float64
	FPSMax         float64
	JitterMean     float64 // seconds
	JitterStdDev   float64 // seconds
	JitterMax      float64 // seconds
	IsStable       bool
}

// CalculateFPSStats derives cadence statistics from frame arrival times.
//
// Stability requires both:
//   - stddev of instantaneous fps < 15% of mean fps
//   - mean |interval - expected| < 20% of the expected interval
func CalculateFPSStats(frameTimes []time.Time, total time.Duration) WarmupStats {
	st := WarmupStats{FramesReceived: len(frameTimes), Duration: total}
	if len(frameTimes) == 0 || total <= 0 {
		return st
	}

	st.FPSMean = float64(len(frameTimes)) / total.Seconds()

	intervals := make([]float64, 0, len(frameTimes)-1)
	for i := 1; i < len(frameTimes); i++ {
		intervals = append(intervals, frameTimes[i].Sub(frameTimes[i-1]).Seconds())
	}

	var rates []float64
	for _, iv := range intervals {
		if iv > 0 {
			rates = append(rates, 1/iv)
		}
	}
	if len(rates) == 0 {
		return st
	}

	st.FPSMin, st.FPSMax = minMax(rates)
	st.FPSStdDev = stdDevAround(rates, st.FPSMean)

	expected := 1 / st.FPSMean
	jitters := make([]float64, len(intervals))
	for i, iv := range intervals {
		jitters[i] = math.Abs(iv - expected)
	}
	st.JitterMean = mean(jitters)
	st.JitterStdDev = stdDevAround(jitters, st.JitterMean)
	_, st.JitterMax = minMax(jitters)

	st.IsStable = st.FPSStdDev < st.FPSMean*fpsStabilityThreshold &&
		st.JitterMean < expected*jitterStabilityThreshold

	return st
}

// Warmup watches the running loop for d and reports its cadence. It reads
// only the captured counter, so it never interferes with capture.
func (l *Loop) Warmup(ctx context.Context, d time.Duration) WarmupStats {
	start := time.Now()
	deadline := start.Add(d)
	last := l.stats.captured.Load()

	var times []time.Time

	ticker := time.NewTicker(warmupPoll)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return CalculateFPSStats(times, time.Since(start))
		case now := <-ticker.C:
			cur := l.stats.captured.Load()
			for ; last < cur; last++ {
				times = append(times, now)
			}
		}
	}

	st := CalculateFPSStats(times, time.Since(start))
	slog.Info("capture: warm-up complete",
		"frames", st.FramesReceived,
		"fps_mean", st.FPSMean,
		"fps_stddev", st.FPSStdDev,
		"fps_target", l.cfg.FPS,
		"jitter_mean_ms", st.JitterMean*1000,
		"stable", st.IsStable,
	)
	return st
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func stdDevAround(xs []float64, center float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sq float64
	for _, x := range xs {
		d := x - center
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(xs)))
}

func minMax(xs []float64) (lo, hi float64) {
	lo, hi = xs[0], xs[0]
	for _, x := range xs[1:] {
		lo = math.Min(lo, x)
		hi = math.Max(hi, x)
	}
	return lo, hi
}
