package audit

import (
	"context"
	"errors"
	"time"

	"github.com/nerrad567/solar-gateway/internal/control"
	"github.com/nerrad567/solar-gateway/internal/device"
	"github.com/nerrad567/solar-gateway/internal/telemetry"
)

// ErrQueueFull is returned when an entry is dropped because the writer is
// backed up.
var ErrQueueFull = errors.New("audit: queue full")

// Logger defines the logging interface used by Writer.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// WriterConfig configures a Writer.
type WriterConfig struct {
	// DeviceID is the entity ID recorded for device entries.
	DeviceID string
	// QueueSize bounds pending entries. Default 256.
	QueueSize int
	// Retention prunes entries older than this once a day. Zero disables pruning.
	Retention time.Duration
}

// Writer persists audit entries asynchronously so callers on hot paths
// (the poll loop, command requests) never wait on SQLite. Entries beyond
// the queue size are dropped.
//
// Writer implements telemetry.EventSink and control.Recorder, and runs as a
// supervised service.
type Writer struct {
	repo      Repository
	deviceID  string
	retention time.Duration
	ch        chan *Entry
	logger    Logger
}

// NewWriter creates a writer over repo.
func NewWriter(repo Repository, cfg WriterConfig) *Writer {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	return &Writer{
		repo:      repo,
		deviceID:  cfg.DeviceID,
		retention: cfg.Retention,
		ch:        make(chan *Entry, cfg.QueueSize),
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for the writer.
func (w *Writer) SetLogger(logger Logger) {
	w.logger = logger
}

// Enqueue schedules e for writing. It never blocks.
func (w *Writer) Enqueue(e *Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	select {
	case w.ch <- e:
		return nil
	default:
		w.logger.Warn("audit queue full, dropping entry", "action", e.Action)
		return ErrQueueFull
	}
}

// HandleEvent records an aggregator transition.
func (w *Writer) HandleEvent(_ context.Context, ev telemetry.Event) error {
	e := &Entry{
		Action:     string(ev.Type),
		EntityType: EntityDevice,
		EntityID:   w.deviceID,
		Source:     "aggregator",
		CreatedAt:  ev.At,
	}
	switch ev.Type {
	case telemetry.EventModeChanged:
		e.Details = map[string]any{"from": string(ev.FromMode), "to": string(ev.ToMode)}
	case telemetry.EventDeviceOffline:
		e.Details = map[string]any{"consecutive_failures": ev.Failures}
	case telemetry.EventDeviceOnline:
		e.Details = map[string]any{"mode": string(ev.ToMode)}
	}
	return w.Enqueue(e)
}

// RecordCommand records a command that reached the device.
func (w *Writer) RecordCommand(_ context.Context, rec control.CommandRecord) error {
	details := map[string]any{
		"command_id":  rec.ID,
		"kind":        string(rec.Command.Kind),
		"outcome":     rec.Outcome,
		"duration_ms": rec.Duration.Milliseconds(),
	}
	switch rec.Command.Kind {
	case device.CommandSetMode:
		details["mode"] = string(rec.Command.Mode)
	case device.CommandAdjustClock:
		details["timestamp"] = rec.Command.Timestamp
	case device.CommandSetManualSetpoint:
		details["setpoint"] = rec.Command.Setpoint
	case device.CommandTunePID:
		if g := rec.Command.Gains; g != nil {
			details["kp"], details["ki"], details["kd"] = g.Kp, g.Ki, g.Kd
		}
	}
	if rec.Err != nil {
		details["error"] = rec.Err.Error()
	}

	return w.Enqueue(&Entry{
		Action:     ActionCommand,
		EntityType: EntityDevice,
		EntityID:   w.deviceID,
		Source:     rec.Source,
		Details:    details,
		CreatedAt:  rec.IssuedAt,
	})
}

// Serve writes queued entries until ctx is cancelled, then drains what is
// left. It implements suture.Service.
func (w *Writer) Serve(ctx context.Context) error {
	var prune <-chan time.Time
	if w.retention > 0 {
		w.prune()
		t := time.NewTicker(24 * time.Hour)
		defer t.Stop()
		prune = t.C
	}

	for {
		select {
		case e := <-w.ch:
			w.write(e)
		case <-prune:
			w.prune()
		case <-ctx.Done():
			for {
				select {
				case e := <-w.ch:
					w.write(e)
				default:
					return ctx.Err()
				}
			}
		}
	}
}

// String implements fmt.Stringer for supervisor logging.
func (w *Writer) String() string {
	return "audit-writer"
}

func (w *Writer) write(e *Entry) {
	// Writes outlive the service context so the final drain can complete.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.repo.Create(ctx, e); err != nil {
		w.logger.Error("audit log write failed", "action", e.Action, "error", err)
	}
}

func (w *Writer) prune() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	n, err := w.repo.Prune(ctx, time.Now().Add(-w.retention))
	if err != nil {
		w.logger.Error("audit log prune failed", "error", err)
		return
	}
	if n > 0 {
		w.logger.Info("audit log pruned", "removed", n)
	}
}
