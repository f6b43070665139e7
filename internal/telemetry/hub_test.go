package telemetry

import (
	"sync"
	"testing"
	"time"
)

func recv(t *testing.T, s *Subscriber) Snapshot {
	t.Helper()
	select {
	case snap, ok := <-s.C():
		if !ok {
			t.Fatal("subscriber channel closed")
		}
		return snap
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for snapshot")
	}
	return Snapshot{}
}

func TestHub_PublishDeliversToAll(t *testing.T) {
	h := NewHub(4)
	a, b := h.Subscribe(), h.Subscribe()

	res := h.Publish(Snapshot{Seq: 1})
	if res.Delivered != 2 || res.Dropped != 0 {
		t.Errorf("Publish() = %+v, want 2 delivered", res)
	}
	if recv(t, a).Seq != 1 || recv(t, b).Seq != 1 {
		t.Error("subscribers did not receive seq 1")
	}
}

func TestHub_NoDeduplication(t *testing.T) {
	h := NewHub(4)
	s := h.Subscribe()

	snap := Snapshot{Seq: 7}
	h.Publish(snap)
	h.Publish(snap)

	if recv(t, s).Seq != 7 || recv(t, s).Seq != 7 {
		t.Error("identical snapshots should both be delivered")
	}
}

func TestHub_PublishOrder(t *testing.T) {
	h := NewHub(8)
	s := h.Subscribe()
	for i := uint64(1); i <= 5; i++ {
		h.Publish(Snapshot{Seq: i})
	}
	for i := uint64(1); i <= 5; i++ {
		if got := recv(t, s).Seq; got != i {
			t.Fatalf("received seq %d, want %d", got, i)
		}
	}
}

func TestHub_SlowSubscriberDropped(t *testing.T) {
	h := NewHub(4)
	stalled := h.Subscribe()
	healthy := h.Subscribe()

	var received []uint64
	var mu sync.Mutex
	done := make(chan struct{})
	go func() {
		defer close(done)
		for snap := range healthy.C() {
			mu.Lock()
			received = append(received, snap.Seq)
			mu.Unlock()
		}
	}()

	start := time.Now()
	dropped := 0
	for i := uint64(1); i <= 10; i++ {
		dropped += h.Publish(Snapshot{Seq: i}).Dropped
		time.Sleep(time.Millisecond)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("publishing took %v with a stalled subscriber", elapsed)
	}

	if dropped != 1 {
		t.Errorf("dropped = %d, want 1", dropped)
	}
	if !stalled.Dropped() {
		t.Error("stalled subscriber should be marked dropped")
	}
	if h.Count() != 1 {
		t.Errorf("Count() = %d, want 1", h.Count())
	}

	// Buffered snapshots drain, then the channel is closed.
	n := 0
	for range stalled.C() {
		n++
	}
	if n != 4 {
		t.Errorf("stalled subscriber drained %d snapshots, want 4", n)
	}

	h.Unsubscribe(healthy)
	<-done
	mu.Lock()
	defer mu.Unlock()
	if len(received) != 10 {
		t.Errorf("healthy subscriber received %d snapshots, want 10", len(received))
	}
}

func TestHub_UnsubscribeIdempotent(t *testing.T) {
	h := NewHub(1)
	s := h.Subscribe()

	h.Unsubscribe(s)
	h.Unsubscribe(s)
	h.Unsubscribe(nil)

	if _, ok := <-s.C(); ok {
		t.Error("channel should be closed after Unsubscribe")
	}
	if s.Dropped() {
		t.Error("unsubscribed subscriber should not be marked dropped")
	}
	if res := h.Publish(Snapshot{}); res.Delivered != 0 {
		t.Errorf("Publish() after Unsubscribe = %+v", res)
	}
}

func TestHub_Close(t *testing.T) {
	h := NewHub(1)
	s := h.Subscribe()
	h.Close()

	if _, ok := <-s.C(); ok {
		t.Error("channel should be closed after hub Close")
	}
	late := h.Subscribe()
	if _, ok := <-late.C(); ok {
		t.Error("Subscribe after Close should return a closed subscriber")
	}
	if h.Count() != 0 {
		t.Errorf("Count() = %d, want 0", h.Count())
	}
}

func TestHub_ConcurrentSubscribeAndPublish(t *testing.T) {
	h := NewHub(4)
	stop := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := uint64(0); ; i++ {
			select {
			case <-stop:
				return
			default:
				h.Publish(Snapshot{Seq: i})
			}
		}
	}()

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				s := h.Subscribe()
				select {
				case <-s.C():
				case <-time.After(10 * time.Millisecond):
				}
				h.Unsubscribe(s)
			}
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(stop)
	wg.Wait()
}

func TestSubscriber_IDsUnique(t *testing.T) {
	h := NewHub(1)
	a, b := h.Subscribe(), h.Subscribe()
	if a.ID() == "" || a.ID() == b.ID() {
		t.Errorf("subscriber IDs = %q, %q", a.ID(), b.ID())
	}
}
