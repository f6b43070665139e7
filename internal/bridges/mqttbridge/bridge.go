package mqttbridge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"

	"github.com/nerrad567/solar-gateway/internal/control"
	"github.com/nerrad567/solar-gateway/internal/device"
	"github.com/nerrad567/solar-gateway/internal/infrastructure/metrics"
	"github.com/nerrad567/solar-gateway/internal/infrastructure/mqtt"
	"github.com/nerrad567/solar-gateway/internal/telemetry"
)

const (
	// commandTimeout bounds a command received over MQTT.
	commandTimeout = 10 * time.Second

	// eventQueueSize bounds events waiting to be published.
	eventQueueSize = 32

	// bridgeName labels this bridge in metrics.
	bridgeName = "mqtt"

	// resultSegment is the last topic segment of the result topic, which
	// also matches the command wildcard.
	resultSegment = "result"
)

var errHubClosed = errors.New("mqtt bridge: telemetry hub closed")

// Command topic segments.
const (
	KindMode           = "mode"
	KindClock          = "clock"
	KindManualSetpoint = "manual_setpoint"
	KindPID            = "pid"
	KindClearTracking  = "clear_tracking"
)

// Client is the subset of the MQTT client used by the bridge.
// *mqtt.Client satisfies it.
type Client interface {
	PublishJSON(topic string, v any, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	QoS() byte
}

// Commander executes tracker commands. *control.Gateway satisfies it.
type Commander interface {
	RequestMode(ctx context.Context, mode string) (control.Result, error)
	RequestClockAdjust(ctx context.Context, ts int64) (control.Result, error)
	RequestManualSetpoint(ctx context.Context, degrees float64) (control.Result, error)
	RequestPIDTuning(ctx context.Context, gains device.PIDGains) (control.Result, error)
	RequestClearDeviceTracking(ctx context.Context) (control.Result, error)
}

// Logger defines the logging interface used by the bridge.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// CommandMessage is the payload accepted on command topics. Only the
// fields relevant to the topic's kind are read.
type CommandMessage struct {
	Mode      string   `json:"mode,omitempty"`
	Timestamp int64    `json:"timestamp,omitempty"`
	Setpoint  *float64 `json:"setpoint,omitempty"`
	Kp        *float64 `json:"kp,omitempty"`
	Ki        *float64 `json:"ki,omitempty"`
	Kd        *float64 `json:"kd,omitempty"`
}

// ResultMessage is published on the result topic for every command
// received over MQTT.
type ResultMessage struct {
	ID        string    `json:"id,omitempty"`
	Kind      string    `json:"kind"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type onlineMessage struct {
	Online    bool      `json:"online"`
	Timestamp time.Time `json:"timestamp"`
}

// Bridge forwards telemetry to MQTT and accepts commands from it.
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	client Client
	topics mqtt.Topics
	hub    *telemetry.Hub
	cmd    Commander

	events chan telemetry.Event

	// Bridge-level context for command handlers, set while serving.
	ctxMu sync.RWMutex
	ctx   context.Context

	// lastOnline tracks the retained flag so it is only republished on change.
	lastOnline *bool

	logger Logger
	now    func() time.Time
}

// NewBridge creates an MQTT bridge. cmd may be nil, in which case command
// topics are not subscribed.
func NewBridge(client Client, topics mqtt.Topics, hub *telemetry.Hub, cmd Commander) *Bridge {
	return &Bridge{
		client: client,
		topics: topics,
		hub:    hub,
		cmd:    cmd,
		events: make(chan telemetry.Event, eventQueueSize),
		logger: noopLogger{},
		now:    time.Now,
	}
}

// SetLogger sets the logger for the bridge.
func (b *Bridge) SetLogger(logger Logger) {
	b.logger = logger
}

// String implements fmt.Stringer for supervisor logging.
func (b *Bridge) String() string {
	return "mqtt-bridge"
}

// HandleEvent queues an aggregator event for publishing. It never blocks;
// events beyond the queue are dropped.
func (b *Bridge) HandleEvent(_ context.Context, ev telemetry.Event) error {
	select {
	case b.events <- ev:
		return nil
	default:
		metrics.RecordBridgeMessage(bridgeName, errors.New("event queue full"))
		return fmt.Errorf("mqtt bridge: event queue full, dropping %s", ev.Type)
	}
}

// Serve forwards snapshots and events until ctx is cancelled. When the hub
// drops the bridge for falling behind, it resubscribes.
func (b *Bridge) Serve(ctx context.Context) error {
	b.ctxMu.Lock()
	b.ctx = ctx
	b.ctxMu.Unlock()

	if b.cmd != nil {
		if err := b.client.Subscribe(b.topics.AllCommands(), b.client.QoS(), b.handleCommand); err != nil {
			return fmt.Errorf("subscribing to commands: %w", err)
		}
		defer func() {
			if err := b.client.Unsubscribe(b.topics.AllCommands()); err != nil {
				b.logger.Warn("unsubscribing from commands failed", "error", err)
			}
		}()
	}

	for {
		sub := b.hub.Subscribe()
		err := b.forward(ctx, sub)
		b.hub.Unsubscribe(sub)
		if err != nil {
			return err
		}
		b.logger.Warn("mqtt bridge fell behind, resubscribing", "subscriber", sub.ID())
	}
}

// forward drains one subscription. It returns nil when the hub dropped the
// subscriber and an error on shutdown or when the hub closed.
func (b *Bridge) forward(ctx context.Context, sub *telemetry.Subscriber) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case snap, ok := <-sub.C():
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				if !sub.Dropped() {
					return errHubClosed
				}
				return nil
			}
			b.publishSnapshot(snap)
		case ev := <-b.events:
			b.publishEvent(ev)
		}
	}
}

func (b *Bridge) publishSnapshot(snap telemetry.Snapshot) {
	err := b.client.PublishJSON(b.topics.Snapshot(), snap, false)
	metrics.RecordBridgeMessage(bridgeName, err)
	if err != nil {
		b.logger.Debug("snapshot publish failed", "seq", snap.Seq, "error", err)
	}

	online := snap.SystemStatus.IsOnline
	if b.lastOnline != nil && *b.lastOnline == online {
		return
	}
	msg := onlineMessage{Online: online, Timestamp: snap.CapturedAt}
	if err := b.client.PublishJSON(b.topics.DeviceOnline(), msg, true); err != nil {
		metrics.RecordBridgeMessage(bridgeName, err)
		b.logger.Warn("device online publish failed", "error", err)
		return
	}
	metrics.RecordBridgeMessage(bridgeName, nil)
	b.lastOnline = &online
}

func (b *Bridge) publishEvent(ev telemetry.Event) {
	err := b.client.PublishJSON(b.topics.Event(string(ev.Type)), ev, false)
	metrics.RecordBridgeMessage(bridgeName, err)
	if err != nil {
		b.logger.Warn("event publish failed", "type", ev.Type, "error", err)
	}
}

// handleCommand runs in the MQTT client's goroutine.
func (b *Bridge) handleCommand(topic string, payload []byte) error {
	kind := topic[strings.LastIndex(topic, "/")+1:]
	if kind == resultSegment {
		return nil
	}

	ctx, cancel := context.WithTimeout(control.WithSource(b.baseContext(), "mqtt"), commandTimeout)
	defer cancel()

	res, err := b.dispatch(ctx, kind, payload)
	msg := ResultMessage{
		ID:        res.ID,
		Kind:      kind,
		Status:    control.Outcome(err),
		Timestamp: b.now(),
	}
	if err != nil {
		msg.Error = err.Error()
		b.logger.Warn("mqtt command failed", "kind", kind, "error", err)
	} else {
		b.logger.Info("mqtt command accepted", "kind", kind, "id", res.ID)
	}

	pubErr := b.client.PublishJSON(b.topics.CommandResult(), msg, false)
	metrics.RecordBridgeMessage(bridgeName, pubErr)
	if pubErr != nil {
		return fmt.Errorf("publishing command result: %w", pubErr)
	}
	return nil
}

func (b *Bridge) dispatch(ctx context.Context, kind string, payload []byte) (control.Result, error) {
	var msg CommandMessage
	if len(payload) > 0 && kind != KindClearTracking {
		if err := json.Unmarshal(payload, &msg); err != nil {
			return control.Result{}, fmt.Errorf("%w: malformed payload: %w", control.ErrInvalidArgument, err)
		}
	}

	switch kind {
	case KindMode:
		return b.cmd.RequestMode(ctx, msg.Mode)
	case KindClock:
		return b.cmd.RequestClockAdjust(ctx, msg.Timestamp)
	case KindManualSetpoint:
		if msg.Setpoint == nil {
			return control.Result{}, fmt.Errorf("%w: setpoint is required", control.ErrInvalidArgument)
		}
		return b.cmd.RequestManualSetpoint(ctx, *msg.Setpoint)
	case KindPID:
		if msg.Kp == nil || msg.Ki == nil || msg.Kd == nil {
			return control.Result{}, fmt.Errorf("%w: kp, ki and kd are required", control.ErrInvalidArgument)
		}
		return b.cmd.RequestPIDTuning(ctx, device.PIDGains{Kp: *msg.Kp, Ki: *msg.Ki, Kd: *msg.Kd})
	case KindClearTracking:
		return b.cmd.RequestClearDeviceTracking(ctx)
	default:
		return control.Result{}, fmt.Errorf("%w: unknown command %q", control.ErrInvalidArgument, kind)
	}
}

func (b *Bridge) baseContext() context.Context {
	b.ctxMu.RLock()
	defer b.ctxMu.RUnlock()
	if b.ctx == nil {
		return context.Background()
	}
	return b.ctx
}
