package telemetry

import (
	"math"
	"time"

	"github.com/nerrad567/solar-gateway/internal/device"
)

// Direction is the motor's derived direction of travel.
type Direction string

// Motor directions.
const (
	DirectionCW   Direction = "CW"
	DirectionCCW  Direction = "CCW"
	DirectionStop Direction = "STOP"
)

// Thresholds used when deriving control signals, in degrees.
const (
	movementThreshold   = 1.0
	safetyStopThreshold = 45.0
)

// ControlSignals are values derived from a reading rather than reported by
// the device.
type ControlSignals struct {
	TrackingError   float64   `json:"tracking_error"`
	MotorPercentage float64   `json:"motor_percentage"`
	MotorDirection  Direction `json:"motor_direction"`
	TrackingEnabled bool      `json:"tracking_enabled"`
	ManualOverride  bool      `json:"manual_override"`
	SafetyStop      bool      `json:"safety_stop"`
}

// DeriveSignals computes control signals from angles, motor output and mode.
func DeriveSignals(a device.Angles, m device.Motor, mode device.Mode) ControlSignals {
	trackingError := math.Abs(a.SunPosition - a.LensAngle)

	direction := DirectionStop
	if trackingError > movementThreshold {
		direction = DirectionCCW
		if a.SunPosition > a.LensAngle {
			direction = DirectionCW
		}
	}

	return ControlSignals{
		TrackingError:   device.Round(trackingError, 2),
		MotorPercentage: device.Round(float64(m.RawValue)/device.MaxPWM*100, 1),
		MotorDirection:  direction,
		TrackingEnabled: mode == device.ModeAuto || mode == device.ModePresentation,
		ManualOverride:  mode == device.ModeManual,
		SafetyStop:      mode == device.ModeHalt || trackingError > safetyStopThreshold,
	}
}

// SystemStatus describes the device's operating state as last observed.
type SystemStatus struct {
	Mode device.Mode `json:"mode"`

	// RTCTimestamp is the device clock in unix seconds; the rtc_* fields are
	// the same instant broken down in UTC.
	RTCTimestamp int64 `json:"esp_clock"`
	RTCDay       int   `json:"rtc_day"`
	RTCMonth     int   `json:"rtc_month"`
	RTCYear      int   `json:"rtc_year"`
	RTCHour      int   `json:"rtc_hour"`
	RTCMinute    int   `json:"rtc_minute"`
	RTCSecond    int   `json:"rtc_second"`

	IsOnline bool `json:"is_online"`
	// Stale marks device-derived fields as retained from an earlier poll.
	Stale bool `json:"stale"`
}

// SetRTC sets the device clock and its broken-down fields.
func (s *SystemStatus) SetRTC(unix int64) {
	t := time.Unix(unix, 0).UTC()
	s.RTCTimestamp = unix
	s.RTCDay = t.Day()
	s.RTCMonth = int(t.Month())
	s.RTCYear = t.Year()
	s.RTCHour = t.Hour()
	s.RTCMinute = t.Minute()
	s.RTCSecond = t.Second()
}

// SetOnline sets connectivity and keeps Stale consistent with it.
func (s *SystemStatus) SetOnline(online bool) {
	s.IsOnline = online
	s.Stale = !online
}

// Snapshot is one consistent view of the device. It contains only value
// fields, so assigning a Snapshot copies it completely.
type Snapshot struct {
	Angles         device.Angles  `json:"angles"`
	Motor          device.Motor   `json:"motor"`
	PID            device.PID     `json:"pid"`
	SystemStatus   SystemStatus   `json:"system_status"`
	ControlSignals ControlSignals `json:"control_signals"`
	CapturedAt     time.Time      `json:"captured_at"`

	// Seq is the aggregator tick that produced the device fields. Zero means
	// no poll has succeeded yet.
	Seq uint64 `json:"seq"`
}

// NewSnapshot builds an online snapshot from a successful poll.
func NewSnapshot(r device.Reading, seq uint64) Snapshot {
	s := Snapshot{
		Angles:         r.Angles,
		Motor:          r.Motor,
		PID:            r.PID,
		SystemStatus:   SystemStatus{Mode: r.Mode},
		ControlSignals: DeriveSignals(r.Angles, r.Motor, r.Mode),
		CapturedAt:     r.ReceivedAt,
		Seq:            seq,
	}
	s.SystemStatus.SetRTC(r.RTC)
	s.SystemStatus.SetOnline(true)
	return s
}

// InitialSnapshot is served before the first successful poll: zeroed
// device fields, unknown mode, offline and stale.
func InitialSnapshot(now time.Time) Snapshot {
	s := Snapshot{
		SystemStatus: SystemStatus{Mode: device.ModeUnknown},
		CapturedAt:   now,
	}
	s.ControlSignals = DeriveSignals(s.Angles, s.Motor, s.SystemStatus.Mode)
	s.SystemStatus.SetRTC(now.Unix())
	s.SystemStatus.SetOnline(false)
	return s
}

// TrackingSample is one history entry, recorded per successful poll.
type TrackingSample struct {
	Timestamp  time.Time   `json:"timestamp"`
	SolarAngle float64     `json:"solar_angle"`
	LensAngle  float64     `json:"lens_angle"`
	MotorPower float64     `json:"motor_power"`
	Error      float64     `json:"error"`
	Mode       device.Mode `json:"mode"`
}

// SampleFromSnapshot extracts the history sample for a snapshot.
func SampleFromSnapshot(s Snapshot) TrackingSample {
	return TrackingSample{
		Timestamp:  s.CapturedAt,
		SolarAngle: s.Angles.SunPosition,
		LensAngle:  s.Angles.LensAngle,
		MotorPower: s.Motor.Power,
		Error:      s.ControlSignals.TrackingError,
		Mode:       s.SystemStatus.Mode,
	}
}
