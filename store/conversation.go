package store

// ConversationStatus is the lifecycle status of a conversation.
// - "active": accepts messages, thinkers may start new turns
// - "paused": no new thinker turns start until resumed
// - "inactive": soft-deleted, rejects all operations
type ConversationStatus string

const (
	ConversationActive   ConversationStatus = "active"
	ConversationPaused   ConversationStatus = "paused"
	ConversationInactive ConversationStatus = "inactive"
)

type Conversation struct {
	UID       string
	Topic     string
	OwnerID   string
	Status    ConversationStatus
	CreatedTs int64
	UpdatedTs int64
	ID        int32
	// CostTotal is the sum of all delivered message costs
	// (populated by ListConversations with a JOIN, never stored).
	CostTotal float64
}

type FindConversation struct {
	ID      *int32
	UID     *string
	OwnerID *string
	Status  *ConversationStatus
}

type UpdateConversation struct {
	Topic     *string
	Status    *ConversationStatus
	UpdatedTs *int64
	ID        int32
}

type DeleteConversation struct {
	ID int32
}
