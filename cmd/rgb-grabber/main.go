// Command rgb-grabber captures color frames, encodes them as JPEG and
// publishes them on a ZeroMQ PUB socket.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Shreyaanp/mdaitest/internal/capture"
	"github.com/Shreyaanp/mdaitest/internal/config"
	"github.com/Shreyaanp/mdaitest/internal/encode"
	"github.com/Shreyaanp/mdaitest/internal/encode/cvjpeg"
	"github.com/Shreyaanp/mdaitest/internal/pipeline"
	"github.com/Shreyaanp/mdaitest/internal/source"
	"github.com/Shreyaanp/mdaitest/internal/source/gstsource"
	"github.com/Shreyaanp/mdaitest/internal/source/mdsource"
	"github.com/Shreyaanp/mdaitest/internal/startup"
	"github.com/Shreyaanp/mdaitest/internal/telemetry"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML configuration file (optional)")
	debug := flag.Bool("debug", false, "Enable debug logging")

	width := flag.Int("width", config.DefaultWidth, "Capture width")
	height := flag.Int("height", config.DefaultHeight, "Capture height")
	fps := flag.Int("fps", config.DefaultFPS, "Capture frame rate")
	quality := flag.Int("quality", config.DefaultQuality, "JPEG quality (1-100)")
	device := flag.String("device", "", "Capture device (empty: first available)")
	endpoint := flag.String("endpoint", config.DefaultEndpoint, "ZeroMQ publish endpoint")
	queueDepth := flag.Int("queue-depth", config.DefaultQueueDepth, "Outbound queue depth (SNDHWM)")
	encoderName := flag.String("encoder", config.EncoderStdlib, "JPEG encoder backend: stdlib, opencv")
	sourceKind := flag.String("source", config.SourceGStreamer, "Capture source: gstreamer, mediadevices, synthetic")
	healthAddr := flag.String("health-addr", "", "Health/stats HTTP listen address (empty: disabled)")
	flag.Parse()

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Only flags given on the command line override file and environment.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "width":
			cfg.Capture.Width = *width
		case "height":
			cfg.Capture.Height = *height
		case "fps":
			cfg.Capture.FPS = *fps
		case "quality":
			cfg.Encoder.Quality = *quality
		case "device":
			cfg.Capture.Device = *device
		case "endpoint":
			cfg.Publish.Endpoint = *endpoint
		case "queue-depth":
			cfg.Publish.QueueDepth = *queueDepth
		case "encoder":
			cfg.Encoder.Backend = *encoderName
		case "source":
			cfg.Source.Kind = *sourceKind
		case "health-addr":
			cfg.Telemetry.HealthAddr = *healthAddr
		}
	})

	if err := config.Validate(cfg); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		if startup.Is(err) {
			slog.Error("startup failed", "error", err)
		} else {
			slog.Error("rgb-grabber failed", "error", err)
		}
		os.Exit(1)
	}

	slog.Info("rgb-grabber stopped successfully")
}

func loadConfig(path string) (*config.Config, error) {
	cfg := config.Default()
	if path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
	}
	if err := config.ApplyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(cfg *config.Config) error {
	src, err := newSource(cfg.Source.Kind)
	if err != nil {
		return startup.Wrap("main", "select source", err)
	}
	enc, err := newEncoder(cfg.Encoder.Backend)
	if err != nil {
		return startup.Wrap("main", "select encoder", err)
	}
	// The encoder is closed only once capture has been joined.
	closeEncoder := func() {}
	if c, ok := enc.(io.Closer); ok {
		closeEncoder = func() { c.Close() }
	}

	p := pipeline.New(pipeline.Config{
		Capture: capture.Config{
			Width:   cfg.Capture.Width,
			Height:  cfg.Capture.Height,
			FPS:     cfg.Capture.FPS,
			Quality: cfg.Encoder.Quality,
			Device:  cfg.Capture.Device,
		},
		Endpoint:   cfg.Publish.Endpoint,
		QueueDepth: cfg.Publish.QueueDepth,
	}, src, enc)

	collector := telemetry.NewCollector(p, cfg.InstanceID)

	slog.Info("starting rgb-grabber",
		"instance_id", cfg.InstanceID,
		"session_id", collector.SessionID(),
		"source", src.Name(),
		"encoder", enc.Name(),
		"resolution", fmt.Sprintf("%dx%d", cfg.Capture.Width, cfg.Capture.Height),
		"fps", cfg.Capture.FPS,
		"quality", cfg.Encoder.Quality,
		"endpoint", cfg.Publish.Endpoint,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if err := p.Start(ctx); err != nil {
		closeEncoder()
		return err
	}

	go telemetry.RunReporter(ctx, collector, cfg.StatsInterval())

	var health *telemetry.HealthServer
	if cfg.Telemetry.HealthAddr != "" {
		health = telemetry.NewHealthServer(cfg.Telemetry.HealthAddr, collector)
		health.Start()
	}

	var emitter *telemetry.MQTTEmitter
	emitterDone := make(chan struct{})
	if cfg.Telemetry.MQTT.Broker != "" {
		emitter = telemetry.NewMQTTEmitter(telemetry.MQTTConfig{
			Broker:   cfg.Telemetry.MQTT.Broker,
			Topic:    telemetry.ResolveTopic(cfg.Telemetry.MQTT.Topic, cfg.InstanceID),
			ClientID: cfg.InstanceID + "-" + collector.SessionID()[:8],
		})
		go func() {
			defer close(emitterDone)
			if err := emitter.Connect(ctx); err != nil {
				slog.Warn("mqtt unavailable, stats will be retried on reconnect", "error", err)
			}
			emitter.Run(ctx, collector, cfg.StatsInterval())
		}()
	}

	if d := cfg.Warmup(); d > 0 {
		go func() {
			st := p.Loop().Warmup(ctx, d)
			slog.Info("capture warm-up complete",
				"frames", st.FramesReceived,
				"fps_mean", st.FPSMean,
				"fps_stddev", st.FPSStdDev,
				"fps_min", st.FPSMin,
				"fps_max", st.FPSMax,
				"jitter_mean_s", st.JitterMean,
				"stable", st.IsStable,
			)
			if !st.IsStable {
				slog.Warn("capture frame rate is unstable", "requested_fps", cfg.Capture.FPS)
			}
		}()
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- p.Run(ctx)
	}()

	var runErr error
	select {
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig)
	case runErr = <-errChan:
		if runErr != nil {
			slog.Error("publish loop failed", "error", runErr)
		}
	}
	cancel()

	timeout := cfg.ShutdownTimeout()
	slog.Info("shutting down gracefully", "timeout", timeout)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
	defer shutdownCancel()

	stopped := make(chan error, 1)
	go func() { stopped <- p.Stop() }()

	select {
	case err := <-stopped:
		if err != nil {
			slog.Warn("pipeline stop reported an error", "error", err)
		}
		closeEncoder()
	case <-shutdownCtx.Done():
		return fmt.Errorf("shutdown timed out after %v", timeout)
	}

	if health != nil {
		if err := health.Shutdown(shutdownCtx); err != nil {
			slog.Warn("health server shutdown", "error", err)
		}
	}
	if emitter != nil {
		select {
		case <-emitterDone:
			emitter.Disconnect()
		case <-shutdownCtx.Done():
			slog.Warn("mqtt emitter did not stop in time")
		}
	}

	final := collector.Collect()
	slog.Info("final stats",
		"captured_frame_count", final.CapturedFrames,
		"published_count", final.Published,
		"dropped_count", final.Dropped,
		"uptime", time.Duration(final.UptimeS*float64(time.Second)).Round(time.Second).String(),
	)
	return runErr
}

func newSource(kind string) (source.Source, error) {
	switch kind {
	case config.SourceGStreamer:
		return source.NewReconnecting(gstsource.New(), source.DefaultReconnectConfig()), nil
	case config.SourceMediaDevices:
		return source.NewReconnecting(mdsource.New(), source.DefaultReconnectConfig()), nil
	case config.SourceSynthetic:
		return source.NewSynthetic(), nil
	default:
		return nil, fmt.Errorf("unknown source %q", kind)
	}
}

func newEncoder(backend string) (encode.Encoder, error) {
	switch backend {
	case config.EncoderStdlib:
		return encode.NewJPEG(), nil
	case config.EncoderOpenCV:
		return cvjpeg.New(), nil
	default:
		return nil, fmt.Errorf("unknown encoder %q", backend)
	}
}
