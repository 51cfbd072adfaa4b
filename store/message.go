package store

// SenderType distinguishes user messages from thinker messages.
type SenderType string

const (
	SenderUser    SenderType = "user"
	SenderThinker SenderType = "thinker"
)

// Message is one delivered unit of conversation content. Immutable once
// created. A logical thinker reply split into several bubbles produces one
// Message per bubble sharing a BubbleGroup id.
type Message struct {
	UID            string
	SenderType     SenderType
	SenderName     string
	Content        string
	BubbleGroup    string // empty when the reply was not split
	CreatedTs      int64
	Sequence       int64
	ID             int32
	ConversationID int32
	BubbleIndex    int32
	Cost           float64
}

type FindMessage struct {
	ConversationID *int32
	SenderName     *string
	// Limit restricts the result to the most recent N messages
	// (still returned in ascending sequence order).
	Limit *int
}

type DeleteMessage struct {
	ConversationID int32
}
