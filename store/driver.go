package store

import (
	"context"
	"database/sql"
)

// Driver is an interface for database drivers.
type Driver interface {
	GetDB() *sql.DB
	Close() error
	Migrate(ctx context.Context) error

	// Conversation model related methods.
	CreateConversation(ctx context.Context, create *Conversation) (*Conversation, error)
	ListConversations(ctx context.Context, find *FindConversation) ([]*Conversation, error)
	UpdateConversation(ctx context.Context, update *UpdateConversation) (*Conversation, error)
	DeleteConversation(ctx context.Context, delete *DeleteConversation) error

	// Thinker model related methods.
	CreateThinker(ctx context.Context, create *Thinker) (*Thinker, error)
	ListThinkers(ctx context.Context, find *FindThinker) ([]*Thinker, error)
	DeleteThinkers(ctx context.Context, delete *DeleteThinker) error

	// Message model related methods.
	CreateMessage(ctx context.Context, create *Message) (*Message, error)
	ListMessages(ctx context.Context, find *FindMessage) ([]*Message, error)
	DeleteMessages(ctx context.Context, delete *DeleteMessage) error
	GetMaxMessageSequence(ctx context.Context, conversationID int32) (int64, error)
	SumMessageCost(ctx context.Context, conversationID int32) (float64, error)

	// Research record related methods.
	CreateResearchRecord(ctx context.Context, create *ResearchRecord) (*ResearchRecord, error)
	GetResearchRecord(ctx context.Context, name string) (*ResearchRecord, error)
	ListResearchRecords(ctx context.Context, find *FindResearchRecord) ([]*ResearchRecord, error)
	// SetResearchInProgress atomically flips the named record to in_progress
	// if and only if it is not already in_progress. Returns false when the
	// record was already in_progress (another job owns it) or absent.
	SetResearchInProgress(ctx context.Context, name string) (bool, error)
	CompleteResearch(ctx context.Context, name string, payload string) error
	FailResearch(ctx context.Context, name string, errorMessage string) error
}
