package device

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Mode is the tracker's operating mode. The device enforces it; the
// gateway only reports and requests it.
type Mode string

// Operating modes accepted by the device.
const (
	ModeAuto         Mode = "auto"
	ModeManual       Mode = "manual"
	ModeHalt         Mode = "halt"
	ModePresentation Mode = "presentation"

	// ModeUnknown is reported before the first successful poll and when the
	// device sends a value outside the set above.
	ModeUnknown Mode = "unknown"
)

// Modes lists the modes a client may request, in display order.
func Modes() []Mode {
	return []Mode{ModeAuto, ModeManual, ModeHalt, ModePresentation}
}

// Valid reports whether m is one of the requestable modes.
func (m Mode) Valid() bool {
	switch m {
	case ModeAuto, ModeManual, ModeHalt, ModePresentation:
		return true
	}
	return false
}

// ParseMode validates a client-supplied mode. Matching is exact; "AUTO" is
// rejected like any other unknown value.
func ParseMode(s string) (Mode, error) {
	m := Mode(s)
	if !m.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
	return m, nil
}

// normaliseMode maps whatever the device reported onto the mode set.
func normaliseMode(s string) Mode {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	if m.Valid() {
		return m
	}
	return ModeUnknown
}

// Value ranges accepted from the device. Readings outside them are clamped.
const (
	MinAngle = -90.0
	MaxAngle = 180.0
	MaxPWM   = 255
)

// Angles are the tracker's positional readings in degrees.
type Angles struct {
	SunPosition    float64 `json:"sunPosition"`
	LensAngle      float64 `json:"lensAngle"`
	ManualSetpoint float64 `json:"manualSetpoint"`
}

// Motor is the drive output. RawValue is the PWM duty (0..255) and Power
// the same value as a percentage rounded to one decimal.
type Motor struct {
	Power    float64 `json:"power"`
	RawValue int     `json:"raw_value"`
}

// NewMotor builds a Motor from a PWM value, clamping it to 0..255.
func NewMotor(pwm int) Motor {
	pwm = clampInt(pwm, 0, MaxPWM)
	return Motor{
		Power:    Round(float64(pwm)/MaxPWM*100, 1),
		RawValue: pwm,
	}
}

// PIDGains are the controller's tunable coefficients.
type PIDGains struct {
	Kp float64 `json:"kp"`
	Ki float64 `json:"ki"`
	Kd float64 `json:"kd"`
}

// PID is the controller state: gains plus the last computed terms.
type PID struct {
	PIDGains
	P      float64 `json:"p"`
	I      float64 `json:"i"`
	D      float64 `json:"d"`
	Error  float64 `json:"error"`
	Output float64 `json:"output"`
}

// Reading is one complete poll of the device. All fields come from the
// same poll cycle.
type Reading struct {
	Angles Angles
	Motor  Motor
	PID    PID
	Mode   Mode
	// RTC is the device clock as unix seconds.
	RTC        int64
	ReceivedAt time.Time
}

// CommandKind identifies a device write.
type CommandKind string

// Command kinds.
const (
	CommandSetMode           CommandKind = "setMode"
	CommandAdjustClock       CommandKind = "adjustClock"
	CommandSetManualSetpoint CommandKind = "setManualSetpoint"
	CommandTunePID           CommandKind = "tunePID"
	CommandClearTracking     CommandKind = "clearTracking"
)

// Command is one device write. Only the field matching Kind is used.
type Command struct {
	Kind      CommandKind `json:"kind"`
	Mode      Mode        `json:"mode,omitempty"`
	Timestamp int64       `json:"timestamp,omitempty"`
	Setpoint  float64     `json:"setpoint,omitempty"`
	Gains     *PIDGains   `json:"gains,omitempty"`

	// ManualSetpoint optionally accompanies CommandSetMode so the mode and
	// setpoint reach the device in one write.
	ManualSetpoint *float64 `json:"manual_setpoint,omitempty"`
}

// SetMode builds a mode change command.
func SetMode(m Mode) Command { return Command{Kind: CommandSetMode, Mode: m} }

// SetModeWithSetpoint builds a mode change that also sets the manual
// setpoint in the same device write.
func SetModeWithSetpoint(m Mode, deg float64) Command {
	return Command{Kind: CommandSetMode, Mode: m, ManualSetpoint: &deg}
}

// AdjustClock builds an RTC adjustment command.
func AdjustClock(unix int64) Command { return Command{Kind: CommandAdjustClock, Timestamp: unix} }

// SetManualSetpoint builds a manual setpoint command.
func SetManualSetpoint(deg float64) Command {
	return Command{Kind: CommandSetManualSetpoint, Setpoint: deg}
}

// TunePID builds a PID gains command.
func TunePID(g PIDGains) Command { return Command{Kind: CommandTunePID, Gains: &g} }

// ClearTracking builds a command that wipes the device's own tracking log.
func ClearTracking() Command { return Command{Kind: CommandClearTracking} }

// Ack confirms the device accepted a command.
type Ack struct {
	Command    Command   `json:"command"`
	Status     int       `json:"status"`
	AcceptedAt time.Time `json:"accepted_at"`
}

// ClampAngle limits a reading to the device's angular range.
func ClampAngle(v float64) float64 {
	return math.Max(MinAngle, math.Min(MaxAngle, v))
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Round rounds v half away from zero to the given number of decimals.
func Round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}
