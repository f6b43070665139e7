package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by the gateway.
const (
	MeasurementTracking     = "tracker_tracking"
	MeasurementConnectivity = "tracker_connectivity"
	MeasurementCommand      = "tracker_command"
)

// TrackingPoint is one successful poll, flattened for the time-series store.
type TrackingPoint struct {
	DeviceID       string
	Mode           string
	SunAngle       float64
	LensAngle      float64
	ManualSetpoint float64
	TrackingError  float64
	MotorPWM       int
	MotorPercent   float64
	PIDOutput      float64
	Time           time.Time
}

// WriteTracking records a tracking sample.
//
// Mode is a tag so dashboards can split error and motor effort by
// operating mode. The write is non-blocking; data is batched and sent
// asynchronously.
func (c *Client) WriteTracking(p TrackingPoint) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		MeasurementTracking,
		map[string]string{
			"device_id": p.DeviceID,
			"mode":      p.Mode,
		},
		map[string]interface{}{
			"sun_angle":       p.SunAngle,
			"lens_angle":      p.LensAngle,
			"manual_setpoint": p.ManualSetpoint,
			"tracking_error":  p.TrackingError,
			"motor_pwm":       p.MotorPWM,
			"motor_percent":   p.MotorPercent,
			"pid_output":      p.PIDOutput,
		},
		timestampOrNow(p.Time),
	)

	c.enqueue(point)
}

// WriteConnectivity records a device online/offline transition.
func (c *Client) WriteConnectivity(deviceID string, online bool, consecutiveFailures int, at time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		MeasurementConnectivity,
		map[string]string{"device_id": deviceID},
		map[string]interface{}{
			"online":               online,
			"consecutive_failures": consecutiveFailures,
		},
		timestampOrNow(at),
	)

	c.enqueue(point)
}

// WritePoint writes a custom point with full control over tags and fields.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}, at time.Time) {
	if !c.IsConnected() {
		return
	}

	c.enqueue(write.NewPoint(measurement, tags, fields, timestampOrNow(at)))
}

func (c *Client) enqueue(p *write.Point) {
	c.queued.Add(1)
	c.writeAPI.WritePoint(p)
}

func timestampOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
