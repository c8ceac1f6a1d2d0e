// Package config loads the grabber configuration.
//
// Precedence, lowest first: Default, YAML file (Load), environment
// (ApplyEnv), command-line flags (applied by main). Validate runs last and
// fills any value still left at zero.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Encoder backends.
const (
	EncoderStdlib = "stdlib"
	EncoderOpenCV = "opencv"
)

// Source kinds.
const (
	SourceGStreamer    = "gstreamer"
	SourceMediaDevices = "mediadevices"
	SourceSynthetic    = "synthetic"
)

const (
	DefaultWidth            = 640
	DefaultHeight           = 480
	DefaultFPS              = 30
	DefaultQuality          = 85
	DefaultEndpoint         = "ipc:///tmp/mdai_rgb_frames"
	DefaultQueueDepth       = 2
	DefaultStatsIntervalS   = 5
	DefaultMQTTTopic        = "mdai/rgb/stats/{instance_id}"
	DefaultInstanceID       = "rgb-grabber"
	DefaultShutdownTimeoutS = 5
)

// Config is the complete grabber configuration.
type Config struct {
	InstanceID       string          `yaml:"instance_id"`
	ShutdownTimeoutS int             `yaml:"shutdown_timeout_s"`
	Capture          CaptureConfig   `yaml:"capture"`
	Encoder          EncoderConfig   `yaml:"encoder"`
	Source           SourceConfig    `yaml:"source"`
	Publish          PublishConfig   `yaml:"publish"`
	Telemetry        TelemetryConfig `yaml:"telemetry"`
}

// CaptureConfig is the requested camera stream.
type CaptureConfig struct {
	Width   int    `yaml:"width"`
	Height  int    `yaml:"height"`
	FPS     int    `yaml:"fps"`
	Device  string `yaml:"device"`   // empty: first available device
	WarmupS int    `yaml:"warmup_s"` // 0 disables the warm-up measurement
}

// EncoderConfig selects the JPEG backend.
type EncoderConfig struct {
	Quality int    `yaml:"quality"` // 1..100
	Backend string `yaml:"backend"` // stdlib, opencv
}

// SourceConfig selects the capture backend.
type SourceConfig struct {
	Kind string `yaml:"kind"` // gstreamer, mediadevices, synthetic
}

// PublishConfig is the frame bus endpoint.
type PublishConfig struct {
	Endpoint   string `yaml:"endpoint"`
	QueueDepth int    `yaml:"queue_depth"`
}

// TelemetryConfig controls the optional observability outputs.
type TelemetryConfig struct {
	StatsIntervalS int        `yaml:"stats_interval_s"`
	HealthAddr     string     `yaml:"health_addr"` // empty disables HTTP
	MQTT           MQTTConfig `yaml:"mqtt"`
}

// MQTTConfig is the stats broker. An empty broker disables MQTT.
type MQTTConfig struct {
	Broker string `yaml:"broker"`
	Topic  string `yaml:"topic"`
}

// Default returns a configuration with every default set.
func Default() *Config {
	return &Config{
		InstanceID:       DefaultInstanceID,
		ShutdownTimeoutS: DefaultShutdownTimeoutS,
		Capture: CaptureConfig{
			Width:  DefaultWidth,
			Height: DefaultHeight,
			FPS:    DefaultFPS,
		},
		Encoder: EncoderConfig{
			Quality: DefaultQuality,
			Backend: EncoderStdlib,
		},
		Source: SourceConfig{Kind: SourceGStreamer},
		Publish: PublishConfig{
			Endpoint:   DefaultEndpoint,
			QueueDepth: DefaultQueueDepth,
		},
		Telemetry: TelemetryConfig{
			StatsIntervalS: DefaultStatsIntervalS,
			MQTT:           MQTTConfig{Topic: DefaultMQTTTopic},
		},
	}
}

// Load reads a YAML file over the defaults. It does not validate.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse config: %w", err)
	}
	return cfg, nil
}

// ShutdownTimeout returns the graceful shutdown budget.
func (c *Config) ShutdownTimeout() time.Duration {
	if c.ShutdownTimeoutS <= 0 {
		return DefaultShutdownTimeoutS * time.Second
	}
	return time.Duration(c.ShutdownTimeoutS) * time.Second
}

// StatsInterval returns the telemetry period.
func (c *Config) StatsInterval() time.Duration {
	return time.Duration(c.Telemetry.StatsIntervalS) * time.Second
}

// Warmup returns the warm-up measurement window, zero when disabled.
func (c *Config) Warmup() time.Duration {
	return time.Duration(c.Capture.WarmupS) * time.Second
}
