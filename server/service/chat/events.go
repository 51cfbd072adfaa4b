package chat

import (
	"github.com/jeremymatthewwerner/dining-philosophers-Dec25-sw-factory/store"
)

// EventType identifies one outbound live event.
type EventType string

const (
	// EventSnapshot is sent once per connection, immediately on attach.
	EventSnapshot EventType = "snapshot"
	// EventTypingStart signals a thinker began composing a reply.
	EventTypingStart EventType = "typing_start"
	// EventTypingPreview carries the shaped tail of in-progress thinking text.
	EventTypingPreview EventType = "typing_preview"
	// EventMessage carries one persisted message bubble.
	EventMessage EventType = "message"
	// EventTypingStop signals a thinker finished, failed, or was cancelled.
	EventTypingStop EventType = "typing_stop"
	// EventError reports a thinker-local failure; the conversation continues.
	EventError EventType = "error"
	// EventStatus reports a conversation status change (paused, active).
	EventStatus EventType = "status"
)

// Event is one outbound live-protocol frame. Exactly one of the payload
// pointers is set, matching Type.
type Event struct {
	Type            EventType        `json:"type"`
	ConversationUID string           `json:"conversation_uid"`
	Thinker         string           `json:"thinker,omitempty"`
	Preview         string           `json:"preview,omitempty"`
	Status          string           `json:"status,omitempty"`
	Message         *MessagePayload  `json:"message,omitempty"`
	Snapshot        *SnapshotPayload `json:"snapshot,omitempty"`
	Error           *ErrorPayload    `json:"error,omitempty"`
	CostTotal       float64          `json:"cost_total,omitempty"`
}

// MessagePayload is the wire form of a persisted message.
type MessagePayload struct {
	UID         string  `json:"uid"`
	SenderType  string  `json:"sender_type"`
	SenderName  string  `json:"sender_name"`
	Content     string  `json:"content"`
	BubbleGroup string  `json:"bubble_group,omitempty"`
	BubbleIndex int32   `json:"bubble_index"`
	Sequence    int64   `json:"sequence"`
	Cost        float64 `json:"cost"`
	CreatedTs   int64   `json:"created_ts"`
}

// SnapshotPayload is the catch-up state sent on connect: conversation
// metadata, participants, and the recent message window in sequence order.
type SnapshotPayload struct {
	Topic        string           `json:"topic"`
	Status       string           `json:"status"`
	Participants []string         `json:"participants"`
	Messages     []MessagePayload `json:"messages"`
	CostTotal    float64          `json:"cost_total"`
}

// ErrorPayload describes a thinker-local failure in user-presentable form.
type ErrorPayload struct {
	Kind    string `json:"kind"`
	Thinker string `json:"thinker"`
	Message string `json:"message"`
}

// ClientCommand is one inbound frame from a live connection.
type ClientCommand struct {
	Type    string `json:"type"` // send_message, pause, resume
	Content string `json:"content,omitempty"`
}

const (
	CommandSendMessage = "send_message"
	CommandPause       = "pause"
	CommandResume      = "resume"
)

func toMessagePayload(m *store.Message) MessagePayload {
	return MessagePayload{
		UID:         m.UID,
		SenderType:  string(m.SenderType),
		SenderName:  m.SenderName,
		Content:     m.Content,
		BubbleGroup: m.BubbleGroup,
		BubbleIndex: m.BubbleIndex,
		Sequence:    m.Sequence,
		Cost:        m.Cost,
		CreatedTs:   m.CreatedTs,
	}
}

func newMessageEvent(conversationUID string, m *store.Message, costTotal float64) *Event {
	payload := toMessagePayload(m)
	return &Event{
		Type:            EventMessage,
		ConversationUID: conversationUID,
		Message:         &payload,
		CostTotal:       costTotal,
	}
}

func newTypingStartEvent(conversationUID, thinker string) *Event {
	return &Event{Type: EventTypingStart, ConversationUID: conversationUID, Thinker: thinker}
}

func newTypingPreviewEvent(conversationUID, thinker, preview string) *Event {
	return &Event{Type: EventTypingPreview, ConversationUID: conversationUID, Thinker: thinker, Preview: preview}
}

func newTypingStopEvent(conversationUID, thinker string) *Event {
	return &Event{Type: EventTypingStop, ConversationUID: conversationUID, Thinker: thinker}
}

func newStatusEvent(conversationUID string, status store.ConversationStatus) *Event {
	return &Event{Type: EventStatus, ConversationUID: conversationUID, Status: string(status)}
}

func newErrorEvent(conversationUID, thinker, kind, message string) *Event {
	return &Event{
		Type:            EventError,
		ConversationUID: conversationUID,
		Error:           &ErrorPayload{Kind: kind, Thinker: thinker, Message: message},
	}
}

// NewSnapshotEvent wraps a snapshot for delivery on connect.
func NewSnapshotEvent(conversationUID string, snapshot *SnapshotPayload) *Event {
	return &Event{Type: EventSnapshot, ConversationUID: conversationUID, Snapshot: snapshot}
}
