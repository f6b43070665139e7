package telemetry

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/solar-gateway/internal/device"
)

// scriptedLink replays a queue of poll outcomes.
type scriptedLink struct {
	mu       sync.Mutex
	results  []pollResult
	polls    int
	inFlight int
	overlap  bool
	delay    time.Duration
}

type pollResult struct {
	reading device.Reading
	err     error
}

func (l *scriptedLink) push(r ...pollResult) {
	l.mu.Lock()
	l.results = append(l.results, r...)
	l.mu.Unlock()
}

func (l *scriptedLink) Poll(ctx context.Context) (device.Reading, error) {
	l.mu.Lock()
	l.inFlight++
	if l.inFlight > 1 {
		l.overlap = true
	}
	l.polls++
	var next pollResult
	if len(l.results) > 0 {
		next = l.results[0]
		l.results = l.results[1:]
	} else {
		next = pollResult{err: &device.Error{Kind: device.KindUnreachable, Op: "GET /angles"}}
	}
	delay := l.delay
	l.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	l.mu.Lock()
	l.inFlight--
	l.mu.Unlock()
	return next.reading, next.err
}

func (l *scriptedLink) Send(context.Context, device.Command) (device.Ack, error) {
	return device.Ack{}, errors.New("not implemented")
}

func ok(mode device.Mode, sun float64) pollResult {
	return pollResult{reading: device.Reading{
		Angles:     device.Angles{SunPosition: sun, LensAngle: sun - 1, ManualSetpoint: 5},
		Motor:      device.NewMotor(100),
		PID:        device.PID{PIDGains: device.PIDGains{Kp: 2}},
		Mode:       mode,
		RTC:        1760000000,
		ReceivedAt: time.Now(),
	}}
}

func timeout() pollResult {
	return pollResult{err: &device.Error{Kind: device.KindUnreachable, Op: "GET /angles", Err: context.DeadlineExceeded}}
}

type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *recordingSink) HandleEvent(_ context.Context, ev Event) error {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
	return nil
}

func (s *recordingSink) types() []EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]EventType, len(s.events))
	for i, ev := range s.events {
		out[i] = ev.Type
	}
	return out
}

type fixture struct {
	link    *scriptedLink
	cache   *Cache
	history *History
	hub     *Hub
	agg     *Aggregator
	sink    *recordingSink
}

func newFixture(threshold int) *fixture {
	f := &fixture{
		link:    &scriptedLink{},
		cache:   NewCache(InitialSnapshot(time.Now())),
		history: NewHistory(100),
		hub:     NewHub(64),
		sink:    &recordingSink{},
	}
	f.agg = NewAggregator(f.link, f.cache, f.history, f.hub, AggregatorConfig{
		Interval:         10 * time.Millisecond,
		OfflineThreshold: threshold,
	})
	f.agg.AddSink(f.sink)
	return f
}

func TestAggregator_OfflineAndRecovery(t *testing.T) {
	f := newFixture(3)
	ctx := context.Background()
	f.link.push(ok(device.ModeAuto, 45.5), timeout(), timeout(), timeout(), ok(device.ModeManual, 50))

	// Tick 1: success.
	if err := f.agg.Tick(ctx); err != nil {
		t.Fatalf("Tick(1) error = %v", err)
	}
	first := f.cache.Get()
	if first.SystemStatus.Mode != device.ModeAuto || first.Angles.SunPosition != 45.5 || !first.SystemStatus.IsOnline {
		t.Fatalf("after tick 1 snapshot = %+v", first)
	}

	// Ticks 2 and 3: below threshold, nothing visible changes.
	for i := 2; i <= 3; i++ {
		if err := f.agg.Tick(ctx); !errors.Is(err, device.ErrUnreachable) {
			t.Fatalf("Tick(%d) error = %v, want ErrUnreachable", i, err)
		}
		if got := f.cache.Get(); got != first {
			t.Fatalf("after tick %d snapshot changed: %+v", i, got)
		}
	}

	// Tick 4: threshold reached.
	_ = f.agg.Tick(ctx)
	stale := f.cache.Get()
	if stale.SystemStatus.IsOnline || !stale.SystemStatus.Stale {
		t.Fatalf("after tick 4 status = %+v, want offline", stale.SystemStatus)
	}
	if stale.Angles != first.Angles || stale.SystemStatus.Mode != first.SystemStatus.Mode || stale.Seq != first.Seq {
		t.Errorf("device fields changed while offline: %+v", stale)
	}

	// Tick 5: recovery.
	if err := f.agg.Tick(ctx); err != nil {
		t.Fatalf("Tick(5) error = %v", err)
	}
	got := f.cache.Get()
	if !got.SystemStatus.IsOnline || got.SystemStatus.Mode != device.ModeManual {
		t.Errorf("after tick 5 status = %+v, want online manual", got.SystemStatus)
	}

	if f.history.Len() != 2 {
		t.Errorf("history len = %d, want 2 (failed polls append nothing)", f.history.Len())
	}
	if f.agg.ConsecutiveFailures() != 0 {
		t.Errorf("ConsecutiveFailures() = %d, want 0", f.agg.ConsecutiveFailures())
	}

	want := []EventType{EventDeviceOnline, EventDeviceOffline, EventDeviceOnline, EventModeChanged}
	gotEvents := f.sink.types()
	if len(gotEvents) != len(want) {
		t.Fatalf("events = %v, want %v", gotEvents, want)
	}
	for i := range want {
		if gotEvents[i] != want[i] {
			t.Errorf("events[%d] = %s, want %s", i, gotEvents[i], want[i])
		}
	}
}

func TestAggregator_SingleFailureNeverOffline(t *testing.T) {
	f := newFixture(3)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		f.link.push(ok(device.ModeAuto, 30))
		if i%2 == 1 {
			f.link.push(timeout(), timeout())
		}
	}
	for i := 0; i < 40; i++ {
		_ = f.agg.Tick(ctx)
		if !f.cache.Get().SystemStatus.IsOnline {
			t.Fatalf("tick %d: device reported offline below threshold", i+1)
		}
	}
}

func TestAggregator_HubNotifiedEveryTick(t *testing.T) {
	f := newFixture(2)
	ctx := context.Background()
	sub := f.hub.Subscribe()

	f.link.push(ok(device.ModeAuto, 10), ok(device.ModeAuto, 10), timeout(), timeout(), timeout())
	for i := 0; i < 5; i++ {
		_ = f.agg.Tick(ctx)
	}

	// 2 successes + 2 failures at or past threshold; tick 3 is below it.
	var seen []bool
	for len(sub.C()) > 0 {
		snap := <-sub.C()
		seen = append(seen, snap.SystemStatus.IsOnline)
	}
	want := []bool{true, true, false, false}
	if len(seen) != len(want) {
		t.Fatalf("hub deliveries = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("delivery %d online = %v, want %v", i, seen[i], want[i])
		}
	}
}

func TestAggregator_ClearHistoryThenPoll(t *testing.T) {
	f := newFixture(3)
	ctx := context.Background()
	f.link.push(ok(device.ModeAuto, 10), ok(device.ModeAuto, 11), ok(device.ModeAuto, 12))

	for i := 0; i < 2; i++ {
		_ = f.agg.Tick(ctx)
	}
	if n := f.agg.ClearHistory(); n != 2 {
		t.Errorf("ClearHistory() = %d, want 2", n)
	}
	if got := f.history.Recent(DefaultHistoryLimit); len(got) != 0 {
		t.Fatalf("Recent() after clear = %v, want empty", got)
	}

	_ = f.agg.Tick(ctx)
	got := f.history.Recent(1)
	if len(got) != 1 || got[0].SolarAngle != 12 {
		t.Errorf("Recent(1) = %+v, want one sample at 12°", got)
	}
	if f.history.Len() != 1 {
		t.Errorf("history len = %d, want 1", f.history.Len())
	}
}

func TestAggregator_SnapshotReflectsPollN(t *testing.T) {
	f := newFixture(3)
	ctx := context.Background()

	for i := 1; i <= 10; i++ {
		f.link.push(ok(device.ModeAuto, float64(i)))
		_ = f.agg.Tick(ctx)
		got := f.cache.Get()
		if got.Angles.SunPosition != float64(i) || got.Angles.LensAngle != float64(i)-1 || got.Seq != uint64(i) {
			t.Fatalf("after poll %d snapshot = %+v", i, got)
		}
	}
}

func TestAggregator_ServeNoOverlap(t *testing.T) {
	f := newFixture(3)
	f.link.delay = 25 * time.Millisecond
	for i := 0; i < 20; i++ {
		f.link.push(ok(device.ModeAuto, 20))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	err := f.agg.Serve(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Serve() error = %v, want context.DeadlineExceeded", err)
	}

	f.link.mu.Lock()
	defer f.link.mu.Unlock()
	if f.link.overlap {
		t.Error("polls overlapped")
	}
	if f.link.polls < 2 || f.link.polls > 8 {
		t.Errorf("polls = %d, want a slow poll to delay ticks", f.link.polls)
	}
}

func TestAggregator_ServeTwice(t *testing.T) {
	f := newFixture(3)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- f.agg.Serve(ctx) }()

	deadline := time.Now().Add(time.Second)
	for !f.agg.Running() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if err := f.agg.Serve(ctx); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Serve() error = %v, want ErrAlreadyRunning", err)
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Serve() error = %v, want context.Canceled", err)
	}
	if f.agg.Running() {
		t.Error("Running() should be false after Serve returns")
	}
}

func TestAggregator_Statistics(t *testing.T) {
	f := newFixture(3)
	ctx := context.Background()
	f.link.push(ok(device.ModeAuto, 10), ok(device.ModeHalt, 12))
	_ = f.agg.Tick(ctx)
	_ = f.agg.Tick(ctx)

	stats := f.agg.Statistics()
	if stats.DataPointsCollected != 2 {
		t.Errorf("DataPointsCollected = %d, want 2", stats.DataPointsCollected)
	}
	if stats.AverageTrackingError != 1 {
		t.Errorf("AverageTrackingError = %v, want 1", stats.AverageTrackingError)
	}
	if stats.ModeDistribution["auto"] != 1 || stats.ModeDistribution["halt"] != 1 {
		t.Errorf("ModeDistribution = %v", stats.ModeDistribution)
	}
	if stats.CollectionRunning {
		t.Error("CollectionRunning should be false without Serve")
	}
}

// A device command that takes far longer than the poll timeout must not
// stop the loop from ticking or from honouring cancellation.
func TestAggregator_TicksWhileSlowCommandHoldsDevice(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPatch {
			select {
			case <-release:
			case <-time.After(2 * time.Second):
			}
			return
		}
		switch r.URL.Path {
		case "/angles":
			_, _ = io.WriteString(w, `{"sunAngle":45,"lensAngle":44,"manualSetpoint":0}`)
		case "/motor":
			_, _ = io.WriteString(w, `{"pwm":100}`)
		case "/pidParameters":
			_, _ = io.WriteString(w, `{"kp":1,"ki":0,"kd":0}`)
		case "/config":
			_, _ = io.WriteString(w, `{"mode":"auto","rtc":1760000000}`)
		}
	}))
	defer srv.Close()
	defer close(release)

	link, err := device.NewHTTPLink(device.LinkConfig{
		BaseURL:        srv.URL,
		PollTimeout:    100 * time.Millisecond,
		CommandTimeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewHTTPLink() error = %v", err)
	}

	cache := NewCache(InitialSnapshot(time.Now()))
	hub := NewHub(64)
	agg := NewAggregator(link, cache, NewHistory(10), hub, AggregatorConfig{
		Interval:         20 * time.Millisecond,
		OfflineThreshold: 1,
	})
	sub := hub.Subscribe()

	sendDone := make(chan struct{})
	go func() {
		defer close(sendDone)
		_, _ = link.Send(context.Background(), device.SetMode(device.ModeHalt))
	}()
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	serveDone := make(chan struct{})
	start := time.Now()
	go func() {
		defer close(serveDone)
		_ = agg.Serve(ctx)
	}()

	select {
	case <-serveDone:
	case <-time.After(time.Second):
		t.Fatal("Serve() did not return after its context ended")
	}
	if elapsed := time.Since(start); elapsed > 600*time.Millisecond {
		t.Errorf("Serve() returned after %v, want shortly after 300ms", elapsed)
	}
	if agg.Running() {
		t.Error("aggregator still running after cancel")
	}
	if len(sub.C()) == 0 {
		t.Error("no snapshots delivered while the command held the device")
	}
	if cache.Get().SystemStatus.IsOnline {
		t.Error("device should read offline while polls time out")
	}
}
