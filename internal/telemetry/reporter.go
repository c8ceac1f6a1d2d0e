package telemetry

import (
	"context"
	"log/slog"
	"time"
)

// DefaultStatsInterval is the period of the stats log line.
const DefaultStatsInterval = 5 * time.Second

// RunReporter logs a stats line every interval until ctx is done.
func RunReporter(ctx context.Context, c *Collector, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultStatsInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			logSnapshot(c.Collect())
		}
	}
}

func logSnapshot(s Snapshot) {
	slog.Info("telemetry: stats",
		"state", s.State,
		"captured_frame_count", s.CapturedFrames,
		"effective_fps", s.EffectiveFPS,
		"published_count", s.Published,
		"dropped_count", s.Dropped,
		"encode_failures", s.EncodeFailures,
		"capture_timeouts", s.CaptureTimeouts,
		"capture_errors", s.CaptureErrors,
		"session_id", s.SessionID,
	)
}
