package telemetry

import (
	"sync"

	"github.com/google/uuid"

	"github.com/nerrad567/solar-gateway/internal/infrastructure/metrics"
)

// DefaultSubscriberBuffer is the per-subscriber queue length used when
// NewHub is given a non-positive size.
const DefaultSubscriberBuffer = 16

// Subscriber receives published snapshots on a bounded channel.
//
// The channel is closed when the subscriber is unsubscribed, dropped for
// falling behind, or the hub is closed.
type Subscriber struct {
	id string
	ch chan Snapshot

	mu      sync.Mutex // guards sends against close
	closed  bool
	dropped bool
}

// ID returns the subscriber's unique identifier.
func (s *Subscriber) ID() string { return s.id }

// C returns the delivery channel.
func (s *Subscriber) C() <-chan Snapshot { return s.ch }

// Dropped reports whether the hub disconnected this subscriber because its
// buffer was full.
func (s *Subscriber) Dropped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

type offerResult int

const (
	offerDelivered offerResult = iota
	offerFull
	offerClosed
)

// offer attempts a non-blocking delivery.
func (s *Subscriber) offer(snap Snapshot) offerResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return offerClosed
	}
	select {
	case s.ch <- snap:
		return offerDelivered
	default:
		return offerFull
	}
}

func (s *Subscriber) close(dropped bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	s.dropped = dropped
	close(s.ch)
}

// PublishResult reports the outcome of one Publish.
type PublishResult struct {
	Delivered int
	Dropped   int
}

// Hub fans snapshots out to subscribers.
//
// The subscriber set lock is held only to mutate the set or copy it for
// iteration; delivery happens outside it. A subscriber whose buffer is full
// is dropped rather than waited on, so one stalled consumer never delays
// the others. Consecutive identical snapshots are all delivered.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]*Subscriber
	closed bool

	buffer int
	logger Logger
}

// NewHub creates a hub whose subscribers buffer up to buffer snapshots.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	return &Hub{
		subs:   make(map[string]*Subscriber),
		buffer: buffer,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the hub.
func (h *Hub) SetLogger(logger Logger) {
	h.logger = logger
}

// Subscribe registers a new subscriber. After Close it returns a
// subscriber whose channel is already closed.
func (h *Hub) Subscribe() *Subscriber {
	s := &Subscriber{
		id: uuid.NewString(),
		ch: make(chan Snapshot, h.buffer),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		s.close(false)
		return s
	}
	h.subs[s.id] = s
	count := len(h.subs)
	h.mu.Unlock()

	metrics.HubSubscribers.Set(float64(count))
	h.logger.Debug("subscriber added", "subscriber_id", s.id, "subscribers", count)
	return s
}

// Unsubscribe removes s and closes its channel. It is safe to call more
// than once and after the subscriber was dropped.
func (h *Hub) Unsubscribe(s *Subscriber) {
	if s == nil {
		return
	}
	h.mu.Lock()
	_, existed := h.subs[s.id]
	delete(h.subs, s.id)
	count := len(h.subs)
	h.mu.Unlock()

	s.close(false)
	if existed {
		metrics.HubSubscribers.Set(float64(count))
		h.logger.Debug("subscriber removed", "subscriber_id", s.id, "subscribers", count)
	}
}

// Publish delivers snap to every current subscriber without blocking.
func (h *Hub) Publish(snap Snapshot) PublishResult {
	h.mu.RLock()
	targets := make([]*Subscriber, 0, len(h.subs))
	for _, s := range h.subs {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	var res PublishResult
	var slow []*Subscriber
	for _, s := range targets {
		switch s.offer(snap) {
		case offerDelivered:
			res.Delivered++
		case offerFull:
			slow = append(slow, s)
		}
	}

	if len(slow) > 0 {
		h.mu.Lock()
		for _, s := range slow {
			delete(h.subs, s.id)
		}
		count := len(h.subs)
		h.mu.Unlock()

		for _, s := range slow {
			s.close(true)
			h.logger.Warn("dropping slow subscriber", "subscriber_id", s.id)
		}
		res.Dropped = len(slow)
		metrics.HubDropped.Add(float64(len(slow)))
		metrics.HubSubscribers.Set(float64(count))
	}

	metrics.SnapshotsPublished.Inc()
	return res
}

// Count returns the number of live subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close disconnects every subscriber. Later Subscribe calls return
// already-closed subscribers and Publish delivers to nobody.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[string]*Subscriber)
	h.closed = true
	h.mu.Unlock()

	for _, s := range subs {
		s.close(false)
	}
	metrics.HubSubscribers.Set(0)
}
