package events

import (
	"sync"

	"github.com/parleychat/parley/internal/model/chat"
)

// Type names the event kinds the manager publishes to observers.
type Type string

const (
	TypeMessage        Type = "message"
	TypeSpeak          Type = "speak"
	TypeStopSpeaking   Type = "stop-speaking"
	TypeSessionChanged Type = "session-changed"
)

// Event is one notification fanned out to every subscriber.
type Event struct {
	Type      Type        `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
	Sender    chat.Sender `json:"sender,omitempty"`
	Text      string      `json:"text,omitempty"`
}

const subscriberBuffer = 16

// Hub is an in-process fan-out of manager events to the SSE and websocket
// surfaces. Publish never blocks; a subscriber that stops draining loses
// events rather than stalling the manager.
type Hub struct {
	mu   sync.Mutex
	subs map[chan Event]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[chan Event]struct{})}
}

// Subscribe registers a new observer. The returned func unsubscribes and
// must be called when the observer goes away.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		delete(h.subs, ch)
		h.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers the event to all current subscribers.
func (h *Hub) Publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
