package control

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/solar-gateway/internal/device"
	"github.com/nerrad567/solar-gateway/internal/infrastructure/metrics"
	"github.com/nerrad567/solar-gateway/internal/telemetry"
)

// Logger defines the logging interface used by the Gateway.
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

// PendingCommand is the command currently in flight.
type PendingCommand struct {
	ID       string         `json:"id"`
	Command  device.Command `json:"command"`
	Source   string         `json:"source"`
	IssuedAt time.Time      `json:"issued_at"`
}

// Result is returned for an accepted command.
type Result struct {
	ID  string     `json:"id"`
	Ack device.Ack `json:"ack"`

	// Snapshot is the cached snapshot after the optimistic update.
	Snapshot telemetry.Snapshot `json:"snapshot"`
}

// CommandRecord describes one command request and its outcome.
type CommandRecord struct {
	ID       string
	Command  device.Command
	Source   string
	Outcome  string
	Err      error
	IssuedAt time.Time
	Duration time.Duration
}

// Recorder is notified of every command that reached the device, accepted
// or not. Requests refused locally (invalid, busy) are not recorded.
type Recorder interface {
	RecordCommand(ctx context.Context, rec CommandRecord) error
}

type sourceKey struct{}

// WithSource tags ctx with the origin of a command, e.g. "api" or "mqtt".
func WithSource(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, sourceKey{}, source)
}

func sourceFrom(ctx context.Context) string {
	if s, ok := ctx.Value(sourceKey{}).(string); ok && s != "" {
		return s
	}
	return "unknown"
}

// Gateway validates and forwards commands to the device.
//
// At most one command is in flight at a time; a concurrent request fails
// with ErrBusy instead of queueing. On acknowledgement the cached snapshot
// is updated immediately so readers see the change before the next poll,
// which remains authoritative.
type Gateway struct {
	link    device.Link
	cache   *telemetry.Cache
	pending atomic.Pointer[PendingCommand]

	recMu     sync.RWMutex
	recorders []Recorder

	logger Logger
	now    func() time.Time
}

// NewGateway creates a command gateway.
func NewGateway(link device.Link, cache *telemetry.Cache) *Gateway {
	return &Gateway{
		link:   link,
		cache:  cache,
		logger: noopLogger{},
		now:    time.Now,
	}
}

// SetLogger sets the logger for the gateway.
func (g *Gateway) SetLogger(logger Logger) {
	g.logger = logger
}

// AddRecorder registers a command recorder.
func (g *Gateway) AddRecorder(r Recorder) {
	g.recMu.Lock()
	g.recorders = append(g.recorders, r)
	g.recMu.Unlock()
}

// Pending returns the command in flight, if any.
func (g *Gateway) Pending() (PendingCommand, bool) {
	p := g.pending.Load()
	if p == nil {
		return PendingCommand{}, false
	}
	return *p, true
}

// RequestMode asks the device to switch operating mode.
//
// Returns ErrInvalidArgument for a mode outside auto, manual, halt and
// presentation, without contacting the device.
func (g *Gateway) RequestMode(ctx context.Context, mode string) (Result, error) {
	m, err := device.ParseMode(mode)
	if err != nil {
		metrics.RecordCommand(string(device.CommandSetMode), "invalid")
		return Result{}, invalid("mode %q", mode)
	}
	return g.execute(ctx, device.SetMode(m), func(s *telemetry.Snapshot) {
		s.SystemStatus.Mode = m
		s.ControlSignals = telemetry.DeriveSignals(s.Angles, s.Motor, m)
	})
}

// RequestModeWithSetpoint switches mode and sets the manual setpoint in a
// single device write, so the device never holds one without the other.
// Both fields are applied to the cache only when the device accepts.
func (g *Gateway) RequestModeWithSetpoint(ctx context.Context, mode string, degrees float64) (Result, error) {
	m, err := device.ParseMode(mode)
	if err != nil {
		metrics.RecordCommand(string(device.CommandSetMode), "invalid")
		return Result{}, invalid("mode %q", mode)
	}
	if !validSetpoint(degrees) {
		metrics.RecordCommand(string(device.CommandSetMode), "invalid")
		return Result{}, invalid("setpoint %v outside [%v, %v]", degrees, device.MinAngle, device.MaxAngle)
	}
	return g.execute(ctx, device.SetModeWithSetpoint(m, degrees), func(s *telemetry.Snapshot) {
		s.SystemStatus.Mode = m
		s.Angles.ManualSetpoint = degrees
		s.ControlSignals = telemetry.DeriveSignals(s.Angles, s.Motor, m)
	})
}

// RequestClockAdjust sets the device RTC to unix seconds ts.
func (g *Gateway) RequestClockAdjust(ctx context.Context, ts int64) (Result, error) {
	if ts <= 0 {
		metrics.RecordCommand(string(device.CommandAdjustClock), "invalid")
		return Result{}, invalid("timestamp %d", ts)
	}
	return g.execute(ctx, device.AdjustClock(ts), func(s *telemetry.Snapshot) {
		s.SystemStatus.SetRTC(ts)
	})
}

// RequestManualSetpoint sets the lens angle used in manual mode.
func (g *Gateway) RequestManualSetpoint(ctx context.Context, degrees float64) (Result, error) {
	if !validSetpoint(degrees) {
		metrics.RecordCommand(string(device.CommandSetManualSetpoint), "invalid")
		return Result{}, invalid("setpoint %v outside [%v, %v]", degrees, device.MinAngle, device.MaxAngle)
	}
	return g.execute(ctx, device.SetManualSetpoint(degrees), func(s *telemetry.Snapshot) {
		s.Angles.ManualSetpoint = degrees
	})
}

func validSetpoint(deg float64) bool {
	return !math.IsNaN(deg) && deg >= device.MinAngle && deg <= device.MaxAngle
}

// RequestPIDTuning replaces the controller gains. Gains must be finite and
// non-negative.
func (g *Gateway) RequestPIDTuning(ctx context.Context, gains device.PIDGains) (Result, error) {
	for name, v := range map[string]float64{"kp": gains.Kp, "ki": gains.Ki, "kd": gains.Kd} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			metrics.RecordCommand(string(device.CommandTunePID), "invalid")
			return Result{}, invalid("%s = %v", name, v)
		}
	}
	return g.execute(ctx, device.TunePID(gains), func(s *telemetry.Snapshot) {
		s.PID.PIDGains = gains
	})
}

// RequestClearDeviceTracking wipes the tracking log stored on the device.
func (g *Gateway) RequestClearDeviceTracking(ctx context.Context) (Result, error) {
	return g.execute(ctx, device.ClearTracking(), nil)
}

// execute claims the pending slot, sends cmd and applies the optimistic
// update on success. The slot is released before execute returns.
func (g *Gateway) execute(ctx context.Context, cmd device.Command, apply func(*telemetry.Snapshot)) (Result, error) {
	p := &PendingCommand{
		ID:       uuid.NewString(),
		Command:  cmd,
		Source:   sourceFrom(ctx),
		IssuedAt: g.now(),
	}
	if !g.pending.CompareAndSwap(nil, p) {
		metrics.RecordCommand(string(cmd.Kind), "busy")
		return Result{}, ErrBusy
	}
	defer g.pending.CompareAndSwap(p, nil)

	ack, err := g.link.Send(ctx, cmd)
	if err != nil {
		mapped := mapDeviceError(err)
		g.logger.Warn("device command failed",
			"command_id", p.ID,
			"kind", string(cmd.Kind),
			"source", p.Source,
			"error", err,
		)
		g.record(ctx, p, mapped)
		return Result{}, mapped
	}

	var snap telemetry.Snapshot
	if apply != nil {
		snap = g.cache.Update(apply)
	} else {
		snap = g.cache.Get()
	}

	g.logger.Info("device command acknowledged",
		"command_id", p.ID,
		"kind", string(cmd.Kind),
		"source", p.Source,
	)
	g.record(ctx, p, nil)
	return Result{ID: p.ID, Ack: ack, Snapshot: snap}, nil
}

func (g *Gateway) record(ctx context.Context, p *PendingCommand, err error) {
	result := Outcome(err)
	metrics.RecordCommand(string(p.Command.Kind), result)

	rec := CommandRecord{
		ID:       p.ID,
		Command:  p.Command,
		Source:   p.Source,
		Outcome:  result,
		Err:      err,
		IssuedAt: p.IssuedAt,
		Duration: g.now().Sub(p.IssuedAt),
	}

	g.recMu.RLock()
	recorders := make([]Recorder, len(g.recorders))
	copy(recorders, g.recorders)
	g.recMu.RUnlock()

	for _, r := range recorders {
		if rerr := r.RecordCommand(ctx, rec); rerr != nil {
			g.logger.Warn("command recorder failed", "command_id", p.ID, "error", rerr)
		}
	}
}
