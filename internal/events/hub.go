// Package events is a small in-process pub/sub hub used to push worker
// progress out to SSE subscribers. Delivery is best-effort: a slow subscriber
// drops events rather than stalling the publisher.
package events

import "sync"

// Event is one progress notification about a thread or session.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

const subscriberBuffer = 16

// Hub fans events out per topic. Topics are created lazily and vanish when
// their last subscriber leaves.
type Hub struct {
	mu     sync.Mutex
	topics map[string]map[chan Event]struct{}
}

func NewHub() *Hub {
	return &Hub{topics: make(map[string]map[chan Event]struct{})}
}

// Subscribe registers for a topic. The returned cancel func must be called
// when the subscriber goes away; after it returns the channel is closed.
func (h *Hub) Subscribe(topic string) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	h.mu.Lock()
	subs, ok := h.topics[topic]
	if !ok {
		subs = make(map[chan Event]struct{})
		h.topics[topic] = subs
	}
	subs[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if subs, ok := h.topics[topic]; ok {
			if _, live := subs[ch]; live {
				delete(subs, ch)
				close(ch)
			}
			if len(subs) == 0 {
				delete(h.topics, topic)
			}
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers the event to every current subscriber of the topic,
// dropping it for subscribers whose buffer is full.
func (h *Hub) Publish(topic string, ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.topics[topic] {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribers reports how many listeners a topic currently has.
func (h *Hub) Subscribers(topic string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.topics[topic])
}
