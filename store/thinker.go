package store

// Thinker is a persona configuration record: one configured AI identity
// participating in a conversation. Consumed as opaque configuration by the
// persona adapter; there is no per-persona code.
type Thinker struct {
	Name           string // display name, unique within its conversation
	Bio            string
	Positions      string // intellectual positions, free-form
	Style          string // speaking style parameters, free-form
	CreatedTs      int64
	ID             int32
	ConversationID int32
}

type FindThinker struct {
	ID             *int32
	ConversationID *int32
	Name           *string
}

type DeleteThinker struct {
	ConversationID int32
}
