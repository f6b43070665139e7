package telemetry

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/solar-gateway/internal/device"
	"github.com/nerrad567/solar-gateway/internal/infrastructure/metrics"
)

// Aggregator defaults.
const (
	DefaultPollInterval     = 500 * time.Millisecond
	DefaultOfflineThreshold = 3
)

// ErrAlreadyRunning is returned by Serve when the loop is already active.
var ErrAlreadyRunning = errors.New("telemetry: aggregator already running")

// AggregatorConfig configures an Aggregator.
type AggregatorConfig struct {
	// Interval is the tick period. Zero uses DefaultPollInterval.
	Interval time.Duration
	// OfflineThreshold is the run of failed polls after which the device is
	// reported offline. Zero uses DefaultOfflineThreshold.
	OfflineThreshold int
}

// Aggregator polls the device on a fixed period and turns each result into
// a Snapshot for the cache, the history and the hub.
//
// It is the only writer of the history and the only publisher of complete
// snapshots. Polls run synchronously inside the loop, so two polls are
// never in flight at once and a slow poll delays the next tick.
type Aggregator struct {
	link      device.Link
	cache     *Cache
	history   *History
	hub       *Hub
	interval  time.Duration
	threshold int

	// tickMu makes Tick safe to call from tests alongside Serve.
	tickMu   sync.Mutex
	seq      uint64
	failures int
	offline  bool
	lastMode device.Mode // mode from the last successful poll

	sinksMu sync.RWMutex
	sinks   []EventSink

	running     atomic.Bool
	lastSuccess atomic.Int64 // unix nanos
	logger      Logger
}

// NewAggregator wires an aggregator to its collaborators.
func NewAggregator(link device.Link, cache *Cache, history *History, hub *Hub, cfg AggregatorConfig) *Aggregator {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultPollInterval
	}
	if cfg.OfflineThreshold <= 0 {
		cfg.OfflineThreshold = DefaultOfflineThreshold
	}
	return &Aggregator{
		link:      link,
		cache:     cache,
		history:   history,
		hub:       hub,
		interval:  cfg.Interval,
		threshold: cfg.OfflineThreshold,
		offline:   !cache.Get().SystemStatus.IsOnline,
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for the aggregator.
func (a *Aggregator) SetLogger(logger Logger) {
	a.logger = logger
}

// AddSink registers an event sink.
func (a *Aggregator) AddSink(s EventSink) {
	a.sinksMu.Lock()
	a.sinks = append(a.sinks, s)
	a.sinksMu.Unlock()
}

// Serve runs the poll loop until ctx is cancelled. The first poll happens
// immediately. It implements suture.Service.
func (a *Aggregator) Serve(ctx context.Context) error {
	if !a.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer a.running.Store(false)

	a.logger.Info("aggregator started",
		"interval", a.interval.String(),
		"offline_threshold", a.threshold,
	)

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	a.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			a.logger.Info("aggregator stopped")
			return ctx.Err()
		case <-ticker.C:
			a.Tick(ctx)
		}
	}
}

// String implements fmt.Stringer for supervisor logging.
func (a *Aggregator) String() string {
	return "telemetry-aggregator"
}

// Running reports whether the poll loop is active.
func (a *Aggregator) Running() bool {
	return a.running.Load()
}

// LastSuccess returns the time of the last successful poll, zero if none.
func (a *Aggregator) LastSuccess() time.Time {
	ns := a.lastSuccess.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// ConsecutiveFailures returns the current run of failed polls.
func (a *Aggregator) ConsecutiveFailures() int {
	a.tickMu.Lock()
	defer a.tickMu.Unlock()
	return a.failures
}

// Tick performs one poll cycle and returns the poll error, if any. Poll
// failures are absorbed into the snapshot's online flag; the return value
// is informational.
func (a *Aggregator) Tick(ctx context.Context) error {
	a.tickMu.Lock()
	defer a.tickMu.Unlock()

	reading, err := a.link.Poll(ctx)
	if err != nil {
		a.handleFailure(ctx, err)
		return err
	}
	a.handleSuccess(ctx, reading)
	return nil
}

func (a *Aggregator) handleSuccess(ctx context.Context, r device.Reading) {
	a.seq++
	snap := NewSnapshot(r, a.seq)

	a.history.Append(SampleFromSnapshot(snap))
	a.failures = 0
	a.cache.Publish(snap)
	a.hub.Publish(snap)

	a.lastSuccess.Store(r.ReceivedAt.UnixNano())
	metrics.SetDeviceOnline(true, 0)
	metrics.HistorySamples.Set(float64(a.history.Len()))

	if a.offline {
		a.offline = false
		a.logger.Info("device online", "mode", string(r.Mode))
		a.emit(ctx, Event{Type: EventDeviceOnline, At: r.ReceivedAt, ToMode: r.Mode})
	}
	if a.lastMode != "" && a.lastMode != r.Mode {
		a.logger.Info("device mode changed", "from", string(a.lastMode), "to", string(r.Mode))
		a.emit(ctx, Event{Type: EventModeChanged, At: r.ReceivedAt, FromMode: a.lastMode, ToMode: r.Mode})
	}
	a.lastMode = r.Mode
}

func (a *Aggregator) handleFailure(ctx context.Context, err error) {
	a.failures++
	metrics.SetDeviceOnline(!a.offline && a.failures < a.threshold, a.failures)

	if a.failures < a.threshold {
		a.logger.Debug("device poll failed", "failures", a.failures, "error", err)
		return
	}

	snap := a.cache.Update(func(s *Snapshot) {
		s.SystemStatus.SetOnline(false)
	})
	a.hub.Publish(snap)

	if !a.offline {
		a.offline = true
		a.logger.Warn("device offline", "failures", a.failures, "error", err)
		a.emit(ctx, Event{Type: EventDeviceOffline, At: time.Now(), Failures: a.failures})
	}
}

func (a *Aggregator) emit(ctx context.Context, ev Event) {
	a.sinksMu.RLock()
	sinks := make([]EventSink, len(a.sinks))
	copy(sinks, a.sinks)
	a.sinksMu.RUnlock()

	for _, s := range sinks {
		if err := s.HandleEvent(ctx, ev); err != nil {
			a.logger.Warn("event sink failed", "event", string(ev.Type), "error", err)
		}
	}
}

// ClearHistory removes all tracking samples and returns how many were removed.
func (a *Aggregator) ClearHistory() int {
	n := a.history.Clear()
	metrics.HistorySamples.Set(0)
	a.logger.Info("tracking history cleared", "samples", n)
	return n
}

// Statistics summarises the most recent samples.
func (a *Aggregator) Statistics() Statistics {
	return ComputeStatistics(a.history.Recent(statisticsWindow), a.history.Len(), a.Running())
}
