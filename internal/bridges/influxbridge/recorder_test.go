package influxbridge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/solar-gateway/internal/control"
	"github.com/nerrad567/solar-gateway/internal/device"
	"github.com/nerrad567/solar-gateway/internal/infrastructure/influxdb"
	"github.com/nerrad567/solar-gateway/internal/telemetry"
)

type connectivity struct {
	online   bool
	failures int
}

type mockWriter struct {
	mu       sync.Mutex
	tracking []influxdb.TrackingPoint
	conn     []connectivity
	points   []map[string]string
}

func (m *mockWriter) WriteTracking(p influxdb.TrackingPoint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tracking = append(m.tracking, p)
}

func (m *mockWriter) WriteConnectivity(_ string, online bool, failures int, _ time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conn = append(m.conn, connectivity{online, failures})
}

func (m *mockWriter) WritePoint(measurement string, tags map[string]string, _ map[string]interface{}, _ time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tags["measurement"] = measurement
	m.points = append(m.points, tags)
}

func (m *mockWriter) trackingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tracking)
}

func snapshot(seq uint64, sun, lens float64) telemetry.Snapshot {
	return telemetry.NewSnapshot(device.Reading{
		Angles:     device.Angles{SunPosition: sun, LensAngle: lens, ManualSetpoint: 10},
		Motor:      device.NewMotor(128),
		PID:        device.PID{Output: 12.5},
		Mode:       device.ModeAuto,
		RTC:        1700000000,
		ReceivedAt: time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC),
	}, seq)
}

func TestTrackingPoint(t *testing.T) {
	p := TrackingPoint("tracker-001", snapshot(1, 45.5, 43))

	if p.DeviceID != "tracker-001" || p.Mode != "auto" {
		t.Errorf("tags = %q/%q", p.DeviceID, p.Mode)
	}
	if p.SunAngle != 45.5 || p.LensAngle != 43 || p.ManualSetpoint != 10 {
		t.Errorf("angles = %v/%v/%v", p.SunAngle, p.LensAngle, p.ManualSetpoint)
	}
	if p.TrackingError != 2.5 {
		t.Errorf("TrackingError = %v, want 2.5", p.TrackingError)
	}
	if p.MotorPWM != 128 || p.MotorPercent != 50.2 {
		t.Errorf("motor = %d/%v, want 128/50.2", p.MotorPWM, p.MotorPercent)
	}
	if p.PIDOutput != 12.5 {
		t.Errorf("PIDOutput = %v", p.PIDOutput)
	}
	if !p.Time.Equal(time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("Time = %v", p.Time)
	}
}

func TestRecorder_SkipsStaleSnapshots(t *testing.T) {
	w := &mockWriter{}
	hub := telemetry.NewHub(8)
	r := NewRecorder(w, hub, "tracker-001")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Serve(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	live := snapshot(1, 30, 30)
	stale := live
	stale.SystemStatus.SetOnline(false)
	hub.Publish(live)
	hub.Publish(stale)
	hub.Publish(snapshot(2, 31, 30))

	for w.trackingCount() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Serve() error = %v, want context.Canceled", err)
	}

	if n := w.trackingCount(); n != 2 {
		t.Errorf("tracking points = %d, want 2", n)
	}
}

func TestRecorder_HandleEvent(t *testing.T) {
	w := &mockWriter{}
	r := NewRecorder(w, telemetry.NewHub(1), "tracker-001")
	ctx := context.Background()

	events := []telemetry.Event{
		{Type: telemetry.EventDeviceOffline, Failures: 3},
		{Type: telemetry.EventModeChanged, FromMode: device.ModeAuto, ToMode: device.ModeHalt},
		{Type: telemetry.EventDeviceOnline},
	}
	for _, ev := range events {
		if err := r.HandleEvent(ctx, ev); err != nil {
			t.Fatalf("HandleEvent() error = %v", err)
		}
	}

	want := []connectivity{{false, 3}, {true, 0}}
	if len(w.conn) != len(want) {
		t.Fatalf("connectivity points = %v, want %v", w.conn, want)
	}
	for i := range want {
		if w.conn[i] != want[i] {
			t.Errorf("point %d = %+v, want %+v", i, w.conn[i], want[i])
		}
	}
}

func TestRecorder_RecordCommand(t *testing.T) {
	w := &mockWriter{}
	r := NewRecorder(w, telemetry.NewHub(1), "tracker-001")

	err := r.RecordCommand(context.Background(), control.CommandRecord{
		ID: "cmd-1", Command: device.SetMode(device.ModeManual), Source: "api",
		Outcome: "ok", IssuedAt: time.Now(), Duration: 40 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("RecordCommand() error = %v", err)
	}

	if len(w.points) != 1 {
		t.Fatalf("points = %d, want 1", len(w.points))
	}
	tags := w.points[0]
	if tags["measurement"] != influxdb.MeasurementCommand || tags["kind"] != string(device.CommandSetMode) ||
		tags["outcome"] != "ok" || tags["source"] != "api" {
		t.Errorf("tags = %v", tags)
	}
}

func TestRecorder_HubClosed(t *testing.T) {
	hub := telemetry.NewHub(1)
	hub.Close()
	r := NewRecorder(&mockWriter{}, hub, "tracker-001")

	if err := r.Serve(context.Background()); !errors.Is(err, errHubClosed) {
		t.Errorf("Serve() error = %v, want errHubClosed", err)
	}
}
