// Command rgb-subscribe connects to the frame bus and logs what arrives. It
// is a diagnostic consumer for rgb-grabber.
package main

import (
	"bytes"
	"context"
	"flag"
	"image/jpeg"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Shreyaanp/mdaitest/internal/config"
	"github.com/Shreyaanp/mdaitest/internal/frame"
	"github.com/Shreyaanp/mdaitest/internal/subscriber"
)

func main() {
	endpoint := flag.String("endpoint", config.DefaultEndpoint, "ZeroMQ endpoint to subscribe to")
	maxFPS := flag.Float64("max-fps", 0, "Maximum frames per second to process (0: unlimited)")
	decode := flag.Bool("decode", false, "Decode every JPEG to verify it")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sub, err := subscriber.Connect(*endpoint)
	if err != nil {
		slog.Error("failed to connect", "endpoint", *endpoint, "error", err)
		os.Exit(1)
	}
	defer sub.Close()

	var decodeFailures uint64
	err = sub.Stream(ctx, *maxFPS, func(f frame.Frame) {
		attrs := []any{
			"seq", f.Seq,
			"width", f.Width,
			"height", f.Height,
			"timestamp_ms", f.TimestampMS,
			"bytes", len(f.Data),
		}

		if *decode {
			img, err := jpeg.Decode(bytes.NewReader(f.Data))
			if err != nil {
				decodeFailures++
				slog.Warn("frame is not a valid JPEG", "seq", f.Seq, "error", err)
				return
			}
			b := img.Bounds()
			if uint32(b.Dx()) != f.Width || uint32(b.Dy()) != f.Height {
				slog.Warn("decoded size differs from header",
					"seq", f.Seq,
					"decoded", []int{b.Dx(), b.Dy()},
				)
			}
		}

		slog.Info("frame", attrs...)
	})
	if err != nil {
		slog.Error("subscription failed", "error", err)
	}

	st := sub.Stats()
	slog.Info("subscription ended",
		"received", st.Received,
		"delivered", st.Delivered,
		"duplicates", st.Duplicates,
		"missed", st.Missed,
		"restarts", st.Restarts,
		"malformed", st.Malformed,
		"decode_failures", decodeFailures,
	)
}
