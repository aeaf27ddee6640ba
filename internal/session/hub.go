package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/baxasd/OST-Radar/internal/dsp"
	"github.com/baxasd/OST-Radar/internal/tlv"
)

// Delivery is one decoded frame as handed to subscribers. Frame and
// Processed are shared between all subscribers and must not be modified.
type Delivery struct {
	Frame *tlv.RadarFrame
	// Processed is nil when the frame carried no heatmap or the heatmap
	// did not match the configured shape.
	Processed *dsp.ProcessedFrame
	Received  time.Time
}

// DefaultSubscriberBuffer is the channel capacity given to each subscriber.
const DefaultSubscriberBuffer = 8

// Hub fans deliveries out to any number of subscribers. Publishing never
// blocks: a subscriber whose buffer is full misses that delivery.
type Hub struct {
	mu          sync.Mutex
	subscribers map[string]chan Delivery
	closed      bool
	skipped     atomic.Uint64
}

// NewHub returns an empty Hub.
func NewHub() *Hub {
	return &Hub{subscribers: make(map[string]chan Delivery)}
}

// Subscribe registers a subscriber with the given channel capacity (or
// DefaultSubscriberBuffer when buffer < 1). The ID is used to unsubscribe.
// After Close the returned channel is already closed.
func (h *Hub) Subscribe(buffer int) (string, <-chan Delivery) {
	if buffer < 1 {
		buffer = DefaultSubscriberBuffer
	}
	id := uuid.NewString()
	ch := make(chan Delivery, buffer)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return id, ch
	}
	h.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes and closes a subscriber. Unknown IDs are ignored.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subscribers[id]; ok {
		close(ch)
		delete(h.subscribers, id)
	}
}

// Publish offers d to every subscriber and returns how many accepted it.
func (h *Hub) Publish(d Delivery) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	delivered := 0
	for _, ch := range h.subscribers {
		select {
		case ch <- d:
			delivered++
		default:
			h.skipped.Add(1)
		}
	}
	return delivered
}

// Len is the current number of subscribers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// Skipped counts deliveries missed by slow subscribers.
func (h *Hub) Skipped() uint64 { return h.skipped.Load() }

// Close closes every subscriber channel. Later subscriptions receive a
// closed channel.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subscribers {
		close(ch)
		delete(h.subscribers, id)
	}
}
