package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/vmihailenco/msgpack/v5"
)

// ErrNotConnected is returned by Publish while the broker is unreachable.
var ErrNotConnected = errors.New("telemetry: mqtt not connected")

// MQTTConfig configures the stats emitter.
type MQTTConfig struct {
	Broker   string // host:port or a full URL (tcp://, ssl://, ws://)
	Topic    string // {instance_id} is replaced
	ClientID string
}

// ResolveTopic substitutes {instance_id} in topic.
func ResolveTopic(topic, instanceID string) string {
	return strings.ReplaceAll(topic, "{instance_id}", instanceID)
}

// brokerURL adds tcp:// when the broker has no scheme.
func brokerURL(broker string) string {
	if strings.Contains(broker, "://") {
		return broker
	}
	return "tcp://" + broker
}

// EncodeSnapshot is the MQTT payload encoding.
func EncodeSnapshot(s Snapshot) ([]byte, error) {
	return msgpack.Marshal(&s)
}

// MQTTEmitter publishes stats snapshots at QoS 0. The connection
// auto-reconnects; a publish while disconnected is counted and skipped.
type MQTTEmitter struct {
	cfg    MQTTConfig
	client mqtt.Client

	mu        sync.RWMutex
	connected bool
	published uint64
	errors    uint64
}

// NewMQTTEmitter creates an unconnected emitter.
func NewMQTTEmitter(cfg MQTTConfig) *MQTTEmitter {
	return &MQTTEmitter{cfg: cfg}
}

// Connect dials the broker, waiting at most 5s for the first connection.
// Reconnection continues in the background either way.
func (e *MQTTEmitter) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(brokerURL(e.cfg.Broker))
	opts.SetClientID(e.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(mqtt.Client) {
		e.setConnected(true)
		slog.Info("telemetry: mqtt connected",
			"broker", e.cfg.Broker,
			"client_id", e.cfg.ClientID,
		)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		e.setConnected(false)
		slog.Warn("telemetry: mqtt connection lost, will auto-reconnect",
			"error", err,
			"broker", e.cfg.Broker,
		)
	}

	e.client = mqtt.NewClient(opts)
	slog.Info("telemetry: connecting to mqtt broker", "broker", e.cfg.Broker)

	token := e.client.Connect()
	select {
	case <-token.Done():
	case <-time.After(5 * time.Second):
		return fmt.Errorf("telemetry: mqtt connection timeout")
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("telemetry: mqtt connection failed: %w", err)
	}

	e.setConnected(true)
	return nil
}

// Publish sends one snapshot.
func (e *MQTTEmitter) Publish(s Snapshot) error {
	if !e.isConnected() {
		e.countError()
		return ErrNotConnected
	}

	payload, err := EncodeSnapshot(s)
	if err != nil {
		e.countError()
		return fmt.Errorf("telemetry: marshal snapshot: %w", err)
	}

	token := e.client.Publish(e.cfg.Topic, 0, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		e.countError()
		return fmt.Errorf("telemetry: mqtt publish timeout")
	}
	if err := token.Error(); err != nil {
		e.countError()
		return fmt.Errorf("telemetry: mqtt publish failed: %w", err)
	}

	e.mu.Lock()
	e.published++
	e.mu.Unlock()

	slog.Debug("telemetry: stats published", "topic", e.cfg.Topic, "size", len(payload))
	return nil
}

// Run publishes a snapshot every interval until ctx is done.
func (e *MQTTEmitter) Run(ctx context.Context, c *Collector, interval time.Duration) {
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
			if err := e.Publish(c.Collect()); err != nil {
				slog.Debug("telemetry: stats not published", "error", err)
			}
		}
	}
}

// Disconnect closes the connection with a 250ms grace period.
func (e *MQTTEmitter) Disconnect() {
	if e.client != nil && e.client.IsConnected() {
		e.client.Disconnect(250)
		slog.Info("telemetry: mqtt disconnected")
	}
	e.setConnected(false)
}

// MQTTStats are the emitter counters.
type MQTTStats struct {
	Connected bool
	Published uint64
	Errors    uint64
}

// Stats returns the emitter counters.
func (e *MQTTEmitter) Stats() MQTTStats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return MQTTStats{Connected: e.connected, Published: e.published, Errors: e.errors}
}

func (e *MQTTEmitter) setConnected(v bool) {
	e.mu.Lock()
	e.connected = v
	e.mu.Unlock()
}

func (e *MQTTEmitter) isConnected() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.connected
}

func (e *MQTTEmitter) countError() {
	e.mu.Lock()
	e.errors++
	e.mu.Unlock()
}
