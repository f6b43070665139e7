package telemetry

import (
	"context"
	"time"

	"github.com/nerrad567/solar-gateway/internal/device"
)

// EventType identifies a state transition observed by the aggregator.
type EventType string

// Event types.
const (
	EventModeChanged   EventType = "mode_changed"
	EventDeviceOnline  EventType = "device_online"
	EventDeviceOffline EventType = "device_offline"
)

// Event is a transition observed by the aggregator. Events are
// informational; they never change aggregator behaviour.
type Event struct {
	Type EventType `json:"type"`
	At   time.Time `json:"at"`

	// FromMode and ToMode are set for EventModeChanged.
	FromMode device.Mode `json:"from_mode,omitempty"`
	ToMode   device.Mode `json:"to_mode,omitempty"`

	// Failures is the consecutive failure count for EventDeviceOffline.
	Failures int `json:"failures,omitempty"`
}

// EventSink receives aggregator events. HandleEvent is called from the
// aggregator loop and must return promptly.
type EventSink interface {
	HandleEvent(ctx context.Context, ev Event) error
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(ctx context.Context, ev Event) error

// HandleEvent calls f.
func (f EventSinkFunc) HandleEvent(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}
