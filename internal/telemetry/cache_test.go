package telemetry

import (
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/solar-gateway/internal/device"
)

func TestCache_GetReturnsInitial(t *testing.T) {
	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	c := NewCache(InitialSnapshot(now))

	got := c.Get()
	if got.SystemStatus.IsOnline || !got.SystemStatus.Stale {
		t.Errorf("initial status = %+v, want offline and stale", got.SystemStatus)
	}
	if got.SystemStatus.Mode != device.ModeUnknown {
		t.Errorf("initial mode = %q, want unknown", got.SystemStatus.Mode)
	}
}

func TestCache_ReadAfterPublish(t *testing.T) {
	c := NewCache(InitialSnapshot(time.Now()))

	for i := uint64(1); i <= 5; i++ {
		c.Publish(Snapshot{Seq: i, Angles: device.Angles{SunPosition: float64(i)}})
		got := c.Get()
		if got.Seq != i || got.Angles.SunPosition != float64(i) {
			t.Fatalf("Get() after Publish(%d) = seq %d sun %v", i, got.Seq, got.Angles.SunPosition)
		}
	}
}

func TestCache_GetReturnsCopy(t *testing.T) {
	c := NewCache(Snapshot{Seq: 1})

	s := c.Get()
	s.Seq = 99
	s.SystemStatus.Mode = device.ModeHalt

	if got := c.Get(); got.Seq != 1 || got.SystemStatus.Mode != "" {
		t.Errorf("mutating a returned snapshot changed the cache: %+v", got)
	}
}

func TestCache_Update(t *testing.T) {
	c := NewCache(Snapshot{Seq: 3, SystemStatus: SystemStatus{Mode: device.ModeAuto}})

	got := c.Update(func(s *Snapshot) {
		s.SystemStatus.Mode = device.ModeHalt
	})
	if got.SystemStatus.Mode != device.ModeHalt || got.Seq != 3 {
		t.Errorf("Update() = %+v", got)
	}
	if c.Get().SystemStatus.Mode != device.ModeHalt {
		t.Error("Update() not visible through Get()")
	}
}

func TestCache_ConcurrentReadersSeeWholeSnapshots(t *testing.T) {
	c := NewCache(Snapshot{})
	done := make(chan struct{})

	var wg sync.WaitGroup
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				s := c.Get()
				// Every published snapshot has sun == lens == seq.
				if s.Angles.SunPosition != float64(s.Seq) || s.Angles.LensAngle != float64(s.Seq) {
					t.Errorf("torn snapshot: %+v", s)
					return
				}
			}
		}()
	}

	for i := uint64(1); i <= 1000; i++ {
		c.Publish(Snapshot{Seq: i, Angles: device.Angles{SunPosition: float64(i), LensAngle: float64(i)}})
	}
	close(done)
	wg.Wait()
}
