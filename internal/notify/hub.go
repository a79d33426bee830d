package notify

import (
	"context"
	"sync"
	"sync/atomic"
)

// Hub delivers events in-process to per-participant subscribers. Delivery
// never blocks the publisher: a subscriber with a full buffer misses the event.
type Hub struct {
	bufferSize int

	mu      sync.RWMutex
	subs    map[string]map[*Subscription]struct{}
	all     map[*Subscription]struct{}
	dropped atomic.Int64
}

type Subscription struct {
	key    string
	ch     chan Event
	hub    *Hub
	closed atomic.Bool
}

func NewHub(bufferSize int) *Hub {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Hub{
		bufferSize: bufferSize,
		subs:       make(map[string]map[*Subscription]struct{}),
		all:        make(map[*Subscription]struct{}),
	}
}

// Subscribe returns a subscription to events for participantID. An empty
// participantID receives every event.
func (h *Hub) Subscribe(participantID string) *Subscription {
	sub := &Subscription{key: participantID, ch: make(chan Event, h.bufferSize), hub: h}

	h.mu.Lock()
	defer h.mu.Unlock()
	if participantID == "" {
		h.all[sub] = struct{}{}
		return sub
	}
	if h.subs[participantID] == nil {
		h.subs[participantID] = make(map[*Subscription]struct{})
	}
	h.subs[participantID][sub] = struct{}{}
	return sub
}

func (h *Hub) Publish(_ context.Context, ev Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.all {
		h.deliver(sub, ev)
	}
	if ev.ParticipantID == "" {
		return nil
	}
	for sub := range h.subs[ev.ParticipantID] {
		h.deliver(sub, ev)
	}
	return nil
}

func (h *Hub) deliver(sub *Subscription, ev Event) {
	select {
	case sub.ch <- ev:
	default:
		h.dropped.Add(1)
	}
}

// Dropped returns how many deliveries were skipped because a buffer was full.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

func (s *Subscription) Events() <-chan Event {
	return s.ch
}

func (s *Subscription) Close() {
	if s.closed.Swap(true) {
		return
	}
	h := s.hub
	h.mu.Lock()
	defer h.mu.Unlock()

	if s.key == "" {
		delete(h.all, s)
	} else if set := h.subs[s.key]; set != nil {
		delete(set, s)
		if len(set) == 0 {
			delete(h.subs, s.key)
		}
	}
	close(s.ch)
}
