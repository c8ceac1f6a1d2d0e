package config

import (
	"fmt"
	"os"
	"strconv"
)

// ApplyEnv overrides cfg from RGB_* environment variables. An unset or
// empty variable leaves the field alone; a malformed number is an error.
func ApplyEnv(cfg *Config) error {
	return applyEnv(cfg, os.LookupEnv)
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	strs := []struct {
		key string
		dst *string
	}{
		{"RGB_DEVICE", &cfg.Capture.Device},
		{"RGB_ENCODER", &cfg.Encoder.Backend},
		{"RGB_SOURCE", &cfg.Source.Kind},
		{"RGB_ENDPOINT", &cfg.Publish.Endpoint},
		{"RGB_HEALTH_ADDR", &cfg.Telemetry.HealthAddr},
		{"RGB_MQTT_BROKER", &cfg.Telemetry.MQTT.Broker},
		{"RGB_MQTT_TOPIC", &cfg.Telemetry.MQTT.Topic},
		{"RGB_INSTANCE_ID", &cfg.InstanceID},
	}
	for _, s := range strs {
		if v, ok := lookup(s.key); ok && v != "" {
			*s.dst = v
		}
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"RGB_WIDTH", &cfg.Capture.Width},
		{"RGB_HEIGHT", &cfg.Capture.Height},
		{"RGB_FPS", &cfg.Capture.FPS},
		{"RGB_WARMUP_S", &cfg.Capture.WarmupS},
		{"RGB_QUALITY", &cfg.Encoder.Quality},
		{"RGB_QUEUE_DEPTH", &cfg.Publish.QueueDepth},
		{"RGB_STATS_INTERVAL_S", &cfg.Telemetry.StatsIntervalS},
	}
	for _, i := range ints {
		v, ok := lookup(i.key)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: %s=%q is not an integer", i.key, v)
		}
		*i.dst = n
	}
	return nil
}
