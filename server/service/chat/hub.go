package chat

import (
	"log/slog"
	"sync"
)

// Conn is one live client connection able to receive events.
type Conn interface {
	Send(event *Event) error
}

// DeliveryHub fans events out to the live connections of each conversation.
// Delivery is at-most-once per connection: a failed send drops the
// connection instead of retrying, and the client resynchronizes through the
// snapshot on its next attach.
type DeliveryHub struct {
	mu    sync.RWMutex
	conns map[string]map[Conn]struct{}
}

func NewDeliveryHub() *DeliveryHub {
	return &DeliveryHub{conns: make(map[string]map[Conn]struct{})}
}

// Register attaches a connection to a conversation's event stream.
func (h *DeliveryHub) Register(conversationUID string, c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.conns[conversationUID]
	if !ok {
		set = make(map[Conn]struct{})
		h.conns[conversationUID] = set
	}
	set[c] = struct{}{}
}

// Unregister detaches a connection. Safe to call for an unknown connection.
func (h *DeliveryHub) Unregister(conversationUID string, c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.conns[conversationUID]
	if !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.conns, conversationUID)
	}
}

// Broadcast sends the event to every connection attached to the
// conversation. Sends happen outside the registry lock; a connection whose
// send fails is dropped.
func (h *DeliveryHub) Broadcast(conversationUID string, event *Event) {
	h.mu.RLock()
	targets := make([]Conn, 0, len(h.conns[conversationUID]))
	for c := range h.conns[conversationUID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if err := c.Send(event); err != nil {
			slog.Debug("hub: dropping dead connection",
				"conversation", conversationUID,
				"event", event.Type,
				"error", err,
			)
			h.Unregister(conversationUID, c)
		}
	}
}

// ConnCount returns the number of live connections for a conversation.
func (h *DeliveryHub) ConnCount(conversationUID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[conversationUID])
}
