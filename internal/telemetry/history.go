package telemetry

import "sync"

// DefaultHistoryLimit is the number of samples returned when no limit is given.
const DefaultHistoryLimit = 100

// History is a bounded FIFO of tracking samples. When full, appending
// evicts the oldest sample.
type History struct {
	mu    sync.RWMutex
	buf   []TrackingSample
	start int // index of the oldest sample
	size  int
}

// NewHistory creates a history holding at most capacity samples.
// A capacity below 1 is treated as 1.
func NewHistory(capacity int) *History {
	if capacity < 1 {
		capacity = 1
	}
	return &History{buf: make([]TrackingSample, capacity)}
}

// Append adds a sample, evicting the oldest when at capacity.
func (h *History) Append(s TrackingSample) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.size < len(h.buf) {
		h.buf[(h.start+h.size)%len(h.buf)] = s
		h.size++
		return
	}
	h.buf[h.start] = s
	h.start = (h.start + 1) % len(h.buf)
}

// Recent returns up to limit samples, most recent first. A limit of zero
// or less returns DefaultHistoryLimit samples.
func (h *History) Recent(limit int) []TrackingSample {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	n := min(limit, h.size)
	out := make([]TrackingSample, n)
	for i := 0; i < n; i++ {
		idx := (h.start + h.size - 1 - i) % len(h.buf)
		out[i] = h.buf[idx]
	}
	return out
}

// Clear removes all samples and returns how many were removed.
func (h *History) Clear() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := h.size
	clear(h.buf)
	h.start = 0
	h.size = 0
	return n
}

// Len returns the number of samples held.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.size
}

// Cap returns the configured capacity.
func (h *History) Cap() int {
	return len(h.buf)
}
