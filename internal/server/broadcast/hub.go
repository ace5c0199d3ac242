// Package broadcast fans retro change events out to live viewers.
//
// Delivery is best effort: Publish never blocks, and a subscriber whose
// buffer is full misses the event.
package broadcast

import (
	"context"
	"fmt"
	"sync"
)

// Event types pushed to viewers.
const (
	EventRetroUpdated  = "retro.updated"
	EventRetroArchived = "retro.archived"
	EventRetroDeleted  = "retro.deleted"
	EventItemChanged   = "item.changed"
	EventItemDeleted   = "item.deleted"
	EventActionChanged = "action_item.changed"
	EventActionDeleted = "action_item.deleted"
	EventHighlight     = "highlight.changed"
	EventForceRelogin  = "force_relogin"
)

const defaultBufferPerSubs = 16

// Event is the JSON envelope published on a retro topic.
type Event struct {
	Type    string `json:"type"`
	RetroID int64  `json:"retro_id"`
	Payload any    `json:"payload,omitempty"`
}

// Publisher is the only capability the core needs from the transport.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte)
}

// Topic returns the topic name of a retro.
func Topic(retroID int64) string {
	return fmt.Sprintf("retro:%d", retroID)
}

// Hub is an in-process Publisher with per-topic subscribers.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*Subscription]struct{}
	buffer int
}

func NewHub() *Hub {
	return &Hub{subs: map[string]map[*Subscription]struct{}{}, buffer: defaultBufferPerSubs}
}

// Subscription receives the payloads published on one topic.
type Subscription struct {
	hub   *Hub
	topic string
	ch    chan []byte
	once  sync.Once
}

// C returns the channel of payloads. It is closed by Close.
func (s *Subscription) C() <-chan []byte {
	return s.ch
}

// Close detaches the subscription from the hub. It is safe to call twice.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		delete(s.hub.subs[s.topic], s)
		if len(s.hub.subs[s.topic]) == 0 {
			delete(s.hub.subs, s.topic)
		}
		close(s.ch)
		s.hub.mu.Unlock()
	})
}

func (h *Hub) Subscribe(topic string) *Subscription {
	s := &Subscription{hub: h, topic: topic, ch: make(chan []byte, h.buffer)}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[topic] == nil {
		h.subs[topic] = map[*Subscription]struct{}{}
	}
	h.subs[topic][s] = struct{}{}
	return s
}

func (h *Hub) Publish(_ context.Context, topic string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for s := range h.subs[topic] {
		select {
		case s.ch <- payload:
		default:
		}
	}
}

// Subscribers returns the number of live subscriptions on topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[topic])
}
