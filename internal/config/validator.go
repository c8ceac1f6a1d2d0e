package config

import (
	"fmt"
	"regexp"
)

var instanceIDPattern = regexp.MustCompile(`^[a-z0-9\-]+$`)

// Validate fills zero-valued optional fields with defaults and rejects
// anything the pipeline cannot run with.
func Validate(cfg *Config) error {
	if cfg.InstanceID == "" {
		cfg.InstanceID = DefaultInstanceID
	}
	if !instanceIDPattern.MatchString(cfg.InstanceID) {
		return fmt.Errorf("config: instance_id must match pattern [a-z0-9-]+")
	}

	if cfg.Capture.Width == 0 {
		cfg.Capture.Width = DefaultWidth
	}
	if cfg.Capture.Height == 0 {
		cfg.Capture.Height = DefaultHeight
	}
	if cfg.Capture.FPS == 0 {
		cfg.Capture.FPS = DefaultFPS
	}
	if cfg.Capture.Width < 0 || cfg.Capture.Height < 0 {
		return fmt.Errorf("config: capture resolution must be positive, got %dx%d",
			cfg.Capture.Width, cfg.Capture.Height)
	}
	if cfg.Capture.FPS < 0 {
		return fmt.Errorf("config: capture.fps must be > 0, got %d", cfg.Capture.FPS)
	}
	if cfg.Capture.WarmupS < 0 {
		return fmt.Errorf("config: capture.warmup_s must be >= 0")
	}

	if cfg.Encoder.Quality == 0 {
		cfg.Encoder.Quality = DefaultQuality
	}
	if cfg.Encoder.Quality < 1 || cfg.Encoder.Quality > 100 {
		return fmt.Errorf("config: encoder.quality must be in 1..100, got %d", cfg.Encoder.Quality)
	}
	if cfg.Encoder.Backend == "" {
		cfg.Encoder.Backend = EncoderStdlib
	}
	switch cfg.Encoder.Backend {
	case EncoderStdlib, EncoderOpenCV:
	default:
		return fmt.Errorf("config: unknown encoder.backend %q (want %s or %s)",
			cfg.Encoder.Backend, EncoderStdlib, EncoderOpenCV)
	}

	if cfg.Source.Kind == "" {
		cfg.Source.Kind = SourceGStreamer
	}
	switch cfg.Source.Kind {
	case SourceGStreamer, SourceMediaDevices, SourceSynthetic:
	default:
		return fmt.Errorf("config: unknown source.kind %q", cfg.Source.Kind)
	}

	if cfg.Publish.Endpoint == "" {
		return fmt.Errorf("config: publish.endpoint is required")
	}
	if cfg.Publish.QueueDepth == 0 {
		cfg.Publish.QueueDepth = DefaultQueueDepth
	}
	if cfg.Publish.QueueDepth < 1 {
		return fmt.Errorf("config: publish.queue_depth must be >= 1, got %d", cfg.Publish.QueueDepth)
	}

	if cfg.Telemetry.StatsIntervalS <= 0 {
		cfg.Telemetry.StatsIntervalS = DefaultStatsIntervalS
	}
	if cfg.Telemetry.MQTT.Topic == "" {
		cfg.Telemetry.MQTT.Topic = DefaultMQTTTopic
	}
	if cfg.ShutdownTimeoutS <= 0 {
		cfg.ShutdownTimeoutS = DefaultShutdownTimeoutS
	}

	return nil
}
