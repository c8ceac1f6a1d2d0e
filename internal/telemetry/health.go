package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/Shreyaanp/mdaitest/internal/capture"
)

// HealthServer serves /health, /readiness and /stats.
type HealthServer struct {
	collector *Collector
	server    *http.Server
}

// NewHealthServer builds a server listening on addr (e.g. ":8080").
func NewHealthServer(addr string, c *Collector) *HealthServer {
	h := &HealthServer{collector: c}
	h.server = &http.Server{
		Addr:         addr,
		Handler:      h.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return h
}

// Router returns the route table.
func (h *HealthServer) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", h.liveness).Methods(http.MethodGet)
	r.HandleFunc("/readiness", h.readiness).Methods(http.MethodGet)
	r.HandleFunc("/stats", h.stats).Methods(http.MethodGet)
	return r
}

// Start serves in a goroutine and returns immediately.
func (h *HealthServer) Start() {
	slog.Info("telemetry: starting health server",
		"addr", h.server.Addr,
		"endpoints", []string{"/health", "/readiness", "/stats"},
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("telemetry: health server failed", "error", err)
		}
	}()
}

// Shutdown stops the server gracefully.
func (h *HealthServer) Shutdown(ctx context.Context) error {
	return h.server.Shutdown(ctx)
}

// liveness answers 200 as long as the process can run this handler.
func (h *HealthServer) liveness(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "alive",
		"uptime": int64(h.collector.Uptime().Seconds()),
	})
}

// readiness answers 200 only while capture is running.
func (h *HealthServer) readiness(w http.ResponseWriter, _ *http.Request) {
	s := h.collector.Collect()

	code := http.StatusOK
	if s.State != capture.Running.String() {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, s)
}

func (h *HealthServer) stats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.collector.Collect())
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("telemetry: write response", "error", err)
	}
}
