package influxbridge

import (
	"context"
	"errors"
	"time"

	"github.com/nerrad567/solar-gateway/internal/control"
	"github.com/nerrad567/solar-gateway/internal/infrastructure/influxdb"
	"github.com/nerrad567/solar-gateway/internal/infrastructure/metrics"
	"github.com/nerrad567/solar-gateway/internal/telemetry"
)

const bridgeName = "influxdb"

var errHubClosed = errors.New("influx recorder: telemetry hub closed")

// Writer is the subset of the InfluxDB client used by the recorder.
// *influxdb.Client satisfies it. Writes are non-blocking.
type Writer interface {
	WriteTracking(p influxdb.TrackingPoint)
	WriteConnectivity(deviceID string, online bool, consecutiveFailures int, at time.Time)
	WritePoint(measurement string, tags map[string]string, fields map[string]interface{}, at time.Time)
}

// Logger defines the logging interface used by the recorder.
type Logger interface {
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

// Recorder writes telemetry points for one device.
type Recorder struct {
	w        Writer
	hub      *telemetry.Hub
	deviceID string
	logger   Logger
}

// NewRecorder creates a recorder that writes points tagged with deviceID.
func NewRecorder(w Writer, hub *telemetry.Hub, deviceID string) *Recorder {
	return &Recorder{w: w, hub: hub, deviceID: deviceID, logger: noopLogger{}}
}

// SetLogger sets the logger for the recorder.
func (r *Recorder) SetLogger(logger Logger) {
	r.logger = logger
}

// String implements fmt.Stringer for supervisor logging.
func (r *Recorder) String() string {
	return "influx-recorder"
}

// Serve writes a tracking point for every live snapshot until ctx is
// cancelled. Stale snapshots republished while the device is offline are
// skipped so the series only holds observed values.
func (r *Recorder) Serve(ctx context.Context) error {
	for {
		sub := r.hub.Subscribe()
		err := r.drain(ctx, sub)
		r.hub.Unsubscribe(sub)
		if err != nil {
			return err
		}
		r.logger.Warn("influx recorder fell behind, resubscribing")
	}
}

func (r *Recorder) drain(ctx context.Context, sub *telemetry.Subscriber) error {
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
			if snap.SystemStatus.Stale {
				continue
			}
			r.w.WriteTracking(TrackingPoint(r.deviceID, snap))
			metrics.RecordBridgeMessage(bridgeName, nil)
		}
	}
}

// TrackingPoint flattens a snapshot into a tracking point.
func TrackingPoint(deviceID string, s telemetry.Snapshot) influxdb.TrackingPoint {
	return influxdb.TrackingPoint{
		DeviceID:       deviceID,
		Mode:           string(s.SystemStatus.Mode),
		SunAngle:       s.Angles.SunPosition,
		LensAngle:      s.Angles.LensAngle,
		ManualSetpoint: s.Angles.ManualSetpoint,
		TrackingError:  s.ControlSignals.TrackingError,
		MotorPWM:       s.Motor.RawValue,
		MotorPercent:   s.Motor.Power,
		PIDOutput:      s.PID.Output,
		Time:           s.CapturedAt,
	}
}

// HandleEvent records connectivity transitions. Mode changes are already
// visible through the mode tag on tracking points.
func (r *Recorder) HandleEvent(_ context.Context, ev telemetry.Event) error {
	switch ev.Type {
	case telemetry.EventDeviceOnline:
		r.w.WriteConnectivity(r.deviceID, true, 0, ev.At)
	case telemetry.EventDeviceOffline:
		r.w.WriteConnectivity(r.deviceID, false, ev.Failures, ev.At)
	default:
		return nil
	}
	metrics.RecordBridgeMessage(bridgeName, nil)
	return nil
}

// RecordCommand writes a command point.
func (r *Recorder) RecordCommand(_ context.Context, rec control.CommandRecord) error {
	r.w.WritePoint(influxdb.MeasurementCommand,
		map[string]string{
			"device_id": r.deviceID,
			"kind":      string(rec.Command.Kind),
			"outcome":   rec.Outcome,
			"source":    rec.Source,
		},
		map[string]interface{}{
			"duration_ms": float64(rec.Duration.Microseconds()) / 1000,
			"accepted":    rec.Err == nil,
		},
		rec.IssuedAt,
	)
	metrics.RecordBridgeMessage(bridgeName, nil)
	return nil
}
