// Package telemetry exposes pipeline counters outside the process: a
// periodic log line, an HTTP health/stats endpoint and an optional MQTT
// stats stream. Everything here is read-only with respect to the pipeline.
package telemetry

import (
	"time"

	"github.com/google/uuid"

	"github.com/Shreyaanp/mdaitest/internal/pipeline"
)

// Provider is implemented by *pipeline.Pipeline.
type Provider interface {
	Snapshot() pipeline.Snapshot
}

// Snapshot is the serialized stats record. Field names are shared by the
// JSON (HTTP) and msgpack (MQTT) encodings.
type Snapshot struct {
	InstanceID      string    `json:"instance_id" msgpack:"instance_id"`
	SessionID       string    `json:"session_id" msgpack:"session_id"`
	State           string    `json:"state" msgpack:"state"`
	CapturedFrames  uint64    `json:"captured_frame_count" msgpack:"captured_frame_count"`
	EffectiveFPS    float64   `json:"effective_fps" msgpack:"effective_fps"`
	Published       uint64    `json:"published_count" msgpack:"published_count"`
	Dropped         uint64    `json:"dropped_count" msgpack:"dropped_count"`
	SendErrors      uint64    `json:"send_errors" msgpack:"send_errors"`
	EncodeFailures  uint64    `json:"encode_failures" msgpack:"encode_failures"`
	CaptureTimeouts uint64    `json:"capture_timeouts" msgpack:"capture_timeouts"`
	CaptureErrors   uint64    `json:"capture_errors" msgpack:"capture_errors"`
	LastErrorClass  string    `json:"last_error_class,omitempty" msgpack:"last_error_class,omitempty"`
	UptimeS         float64   `json:"uptime_s" msgpack:"uptime_s"`
	Timestamp       time.Time `json:"timestamp" msgpack:"timestamp"`
}

// Collector stamps pipeline snapshots with process identity.
type Collector struct {
	provider   Provider
	instanceID string
	sessionID  string
	started    time.Time
	now        func() time.Time
}

// NewCollector creates a collector with a fresh session ID.
func NewCollector(p Provider, instanceID string) *Collector {
	return &Collector{
		provider:   p,
		instanceID: instanceID,
		sessionID:  uuid.New().String(),
		started:    time.Now(),
		now:        time.Now,
	}
}

// SessionID identifies this process run.
func (c *Collector) SessionID() string { return c.sessionID }

// Uptime is the time since the collector was created.
func (c *Collector) Uptime() time.Duration { return c.now().Sub(c.started) }

// Collect reads the pipeline counters.
func (c *Collector) Collect() Snapshot {
	ps := c.provider.Snapshot()
	now := c.now()
	return Snapshot{
		InstanceID:      c.instanceID,
		SessionID:       c.sessionID,
		State:           ps.State.String(),
		CapturedFrames:  ps.CapturedFrames,
		EffectiveFPS:    ps.EffectiveFPS,
		Published:       ps.Published,
		Dropped:         ps.Dropped,
		SendErrors:      ps.SendErrors,
		EncodeFailures:  ps.EncodeFailures,
		CaptureTimeouts: ps.CaptureTimeouts,
		CaptureErrors:   ps.CaptureErrors,
		LastErrorClass:  ps.LastErrorClass,
		UptimeS:         now.Sub(c.started).Seconds(),
		Timestamp:       now,
	}
}
