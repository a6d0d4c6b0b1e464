// Package reachability carries the network-connectivity-restored
// signal into the queue layer. The signal has no payload: whoever owns
// the platform's connectivity monitoring calls NotifyReachable on the
// shared Hub, and every queue whose job type requires internet pokes
// its in-flight operations to retry without waiting out their backoff.
package reachability

import "sync"

// Hub fans the became-reachable event out to subscribers. Safe for
// concurrent use. Notifications coalesce: a subscriber that has not yet
// consumed one pending signal does not accumulate more.
type Hub struct {
	mu   sync.Mutex
	subs map[int]chan struct{}
	next int
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[int]chan struct{})}
}

// Subscribe registers a new subscriber. The returned channel receives
// one value per coalesced notification. Call the cancel func to
// unsubscribe; after cancel the channel is never signalled again.
func (h *Hub) Subscribe() (<-chan struct{}, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	key := h.next
	h.next++
	ch := make(chan struct{}, 1)
	h.subs[key] = ch

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subs, key)
	}
	return ch, cancel
}

// NotifyReachable broadcasts the became-reachable event. Never blocks.
func (h *Hub) NotifyReachable() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- struct{}{}:
		default: // a pending signal is already queued
		}
	}
}
