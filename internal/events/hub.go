// Package events fans outgoing channel method calls out to subscribers.
package events

import (
	"strconv"
	"sync"
	"sync/atomic"
)

// MethodUpdateProgress is the outgoing method carrying compression progress.
const MethodUpdateProgress = "updateProgress"

// Event is an outgoing method call. Data is the wire argument, e.g. the
// progress percentage as a decimal string.
type Event struct {
	Method   string  `json:"method"`
	JobID    string  `json:"jobId,omitempty"`
	Progress float64 `json:"progress"`
	Data     string  `json:"data"`
}

// Progress builds an updateProgress event for a job.
func Progress(jobID string, percent float64) Event {
	return Event{
		Method:   MethodUpdateProgress,
		JobID:    jobID,
		Progress: percent,
		Data:     strconv.FormatFloat(percent, 'f', -1, 64),
	}
}

// defaultBuffer is the per-subscriber queue length.
const defaultBuffer = 64

// Subscription receives events until it is closed.
type Subscription struct {
	hub     *Hub
	id      uint64
	ch      chan Event
	dropped atomic.Uint64
}

// Events returns the receive channel. It is closed by Unsubscribe.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Dropped returns how many events were discarded because the subscriber
// was not keeping up.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Close unsubscribes. It is safe to call more than once.
func (s *Subscription) Close() {
	s.hub.Unsubscribe(s)
}

// Hub is a non-blocking publish/subscribe fan-out.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID uint64
	buffer int
}

// NewHub creates a hub whose subscribers buffer up to buffer events.
// A non-positive buffer uses the default.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Hub{
		subs:   make(map[uint64]*Subscription),
		buffer: buffer,
	}
}

// Subscribe registers a new subscriber.
func (h *Hub) Subscribe() *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	s := &Subscription{hub: h, id: h.nextID, ch: make(chan Event, h.buffer)}
	h.subs[s.id] = s
	return s
}

// Unsubscribe removes s and closes its channel.
func (h *Hub) Unsubscribe(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[s.id]; !ok {
		return
	}
	delete(h.subs, s.id)
	close(s.ch)
}

// Publish delivers e to every subscriber without blocking. A subscriber
// whose buffer is full misses the event.
func (h *Hub) Publish(e Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.subs {
		select {
		case s.ch <- e:
		default:
			s.dropped.Add(1)
		}
	}
}

// Len returns the number of subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
