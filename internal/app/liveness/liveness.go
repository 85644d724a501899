// Package liveness tracks whether the app can usefully talk to the backend:
// network connectivity and whether the app is in the foreground. The hub
// fans state changes out to subscribers; the monitor derives connectivity
// from the realtime websocket and drives the query cache.
package liveness

import (
	"sync"
)

// Status is a snapshot of app liveness.
type Status struct {
	Online     bool
	Foreground bool
}

// Hub holds the current liveness status and notifies subscribers on change.
// A new hub starts online and foregrounded.
type Hub struct {
	mu     sync.Mutex
	status Status
	next   int
	subs   map[int]func(Status)
}

// NewHub creates a hub in the online, foreground state.
func NewHub() *Hub {
	return &Hub{
		status: Status{Online: true, Foreground: true},
		subs:   make(map[int]func(Status)),
	}
}

// Status returns the current snapshot.
func (h *Hub) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

// Subscribe registers fn to be called with every status change. The handler
// fires immediately with the current status. The returned function removes
// the subscription.
func (h *Hub) Subscribe(fn func(Status)) func() {
	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = fn
	current := h.status
	h.mu.Unlock()

	fn(current)

	return func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
	}
}

// SetOnline updates the connectivity flag.
func (h *Hub) SetOnline(online bool) {
	h.update(func(s *Status) { s.Online = online })
}

// SetForeground updates the foreground flag.
func (h *Hub) SetForeground(foreground bool) {
	h.update(func(s *Status) { s.Foreground = foreground })
}

func (h *Hub) update(apply func(*Status)) {
	h.mu.Lock()
	before := h.status
	apply(&h.status)
	after := h.status
	var fns []func(Status)
	if before != after {
		fns = make([]func(Status), 0, len(h.subs))
		for _, fn := range h.subs {
			fns = append(fns, fn)
		}
	}
	h.mu.Unlock()

	for _, fn := range fns {
		fn(after)
	}
}
