package telemetry

import (
	"math"
	"time"

	"github.com/nerrad567/solar-gateway/internal/device"
)

// DemoSnapshot synthesises a plausible snapshot for dashboards running
// without a device. The sun sweeps ±30° around 45° with a 63 s period and
// the lens lags it by 10%.
func DemoSnapshot(now time.Time) Snapshot {
	variation := math.Sin(float64(now.Unix())/10) * 30
	pwm := int(math.Abs(variation) * 2 * 2.55)

	r := device.Reading{
		Angles: device.Angles{
			SunPosition: device.Round(45+variation, 2),
			LensAngle:   device.Round(43+variation*0.9, 2),
		},
		Motor: device.NewMotor(pwm),
		PID: device.PID{
			PIDGains: device.PIDGains{Kp: 2.0, Ki: 0.1, Kd: 0.05},
			P:        device.Round(variation*2, 3),
			I:        0.5,
			D:        -0.2,
			Error:    device.Round(variation*0.1, 3),
			Output:   float64(pwm),
		},
		Mode:       device.ModeAuto,
		RTC:        now.Unix(),
		ReceivedAt: now,
	}
	return NewSnapshot(r, 0)
}
