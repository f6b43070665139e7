package device

import (
	"time"
)

// Payloads exchanged with the tracker firmware. Field names follow the
// firmware's JSON, which mixes camelCase and snake_case.

type anglesPayload struct {
	SunAngle       float64  `json:"sunAngle"`
	LensAngle      *float64 `json:"lensAngle"`
	ManualSetpoint float64  `json:"manualSetpoint"`
	MPU            *struct {
		LensAngle float64 `json:"lensAngle"`
	} `json:"mpu"`
}

// lensAngle prefers the top-level value; older firmware only reports it
// under the IMU block.
func (p anglesPayload) lensAngle() float64 {
	if p.LensAngle != nil {
		return *p.LensAngle
	}
	if p.MPU != nil {
		return p.MPU.LensAngle
	}
	return 0
}

type motorPayload struct {
	PWM int `json:"pwm"`
}

type pidPayload struct {
	Kp     float64 `json:"kp"`
	Ki     float64 `json:"ki"`
	Kd     float64 `json:"kd"`
	P      float64 `json:"p"`
	I      float64 `json:"i"`
	D      float64 `json:"d"`
	Error  float64 `json:"error"`
	Output float64 `json:"output"`
}

// configPayload is the reply to GET /config. Mode and RTC are read by
// polling it once per tick. The firmware also pushes mode changes on its
// WebSocket (port 82); the gateway does not use that channel, so a mode set
// at the device is seen one poll interval late.
type configPayload struct {
	Mode     string `json:"mode"`
	RTC      *int64 `json:"rtc"`
	ESPClock *int64 `json:"esp_clock"`
}

func (p configPayload) rtc() int64 {
	switch {
	case p.RTC != nil:
		return *p.RTC
	case p.ESPClock != nil:
		return *p.ESPClock
	}
	return 0
}

type configPatch struct {
	Mode           Mode         `json:"mode,omitempty"`
	ManualSetpoint *float64     `json:"manual_setpoint,omitempty"`
	Adjust         *adjustBlock `json:"adjust,omitempty"`
}

type adjustBlock struct {
	RTC int64 `json:"rtc"`
}

type pidPatch struct {
	Adjust PIDGains `json:"adjust"`
}

// buildReading assembles one Reading from the four poll responses,
// clamping values the firmware may report out of range.
func buildReading(a anglesPayload, m motorPayload, p pidPayload, c configPayload, at time.Time) Reading {
	return Reading{
		Angles: Angles{
			SunPosition:    ClampAngle(a.SunAngle),
			LensAngle:      ClampAngle(a.lensAngle()),
			ManualSetpoint: ClampAngle(a.ManualSetpoint),
		},
		Motor: NewMotor(m.PWM),
		PID: PID{
			PIDGains: PIDGains{Kp: p.Kp, Ki: p.Ki, Kd: p.Kd},
			P:        p.P,
			I:        p.I,
			D:        p.D,
			Error:    p.Error,
			Output:   p.Output,
		},
		Mode:       normaliseMode(c.Mode),
		RTC:        c.rtc(),
		ReceivedAt: at,
	}
}
