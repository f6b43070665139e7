// Package device is the gateway's link to the solar tracker firmware.
//
// The tracker is a microcontroller exposing a small JSON API over HTTP.
// A poll gathers four resources into one Reading:
//
//	GET /angles          sunAngle, lensAngle (or mpu.lensAngle), manualSetpoint
//	GET /motor           pwm (0..255)
//	GET /pidParameters   kp, ki, kd and the last p, i, d, error, output
//	GET /config          mode, rtc
//
// Commands are PATCH /config (mode, manual_setpoint, adjust.rtc),
// PATCH /config/pidParameters and DELETE /clear_tracking.
//
// The link performs a single attempt per call and classifies every failure
// as unreachable or rejected (see Error). It holds no state beyond the
// target address, so retry policy and offline detection belong to callers.
//
// # Usage
//
//	link, err := device.NewHTTPLink(device.LinkConfig{
//	    BaseURL:     "http://192.168.0.101:80",
//	    PollTimeout: 2 * time.Second,
//	})
//	reading, err := link.Poll(ctx)
//	if errors.Is(err, device.ErrUnreachable) {
//	    // count a failed poll
//	}
//	ack, err := link.Send(ctx, device.SetMode(device.ModeHalt))
package device
