package store

import (
	"context"

	"github.com/jeremymatthewwerner/dining-philosophers-Dec25-sw-factory/internal/profile"
)

// Store provides database access to all raw objects.
type Store struct {
	profile *profile.Profile
	driver  Driver
}

// New creates a new instance of Store.
func New(driver Driver, profile *profile.Profile) *Store {
	return &Store{
		driver:  driver,
		profile: profile,
	}
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

func (s *Store) Migrate(ctx context.Context) error {
	return s.driver.Migrate(ctx)
}

func (s *Store) Close() error {
	return s.driver.Close()
}

func (s *Store) CreateConversation(ctx context.Context, create *Conversation) (*Conversation, error) {
	return s.driver.CreateConversation(ctx, create)
}

func (s *Store) ListConversations(ctx context.Context, find *FindConversation) ([]*Conversation, error) {
	return s.driver.ListConversations(ctx, find)
}

// GetConversation returns the single conversation matching find, or nil.
func (s *Store) GetConversation(ctx context.Context, find *FindConversation) (*Conversation, error) {
	list, err := s.driver.ListConversations(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

func (s *Store) UpdateConversation(ctx context.Context, update *UpdateConversation) (*Conversation, error) {
	return s.driver.UpdateConversation(ctx, update)
}

func (s *Store) DeleteConversation(ctx context.Context, delete *DeleteConversation) error {
	return s.driver.DeleteConversation(ctx, delete)
}

func (s *Store) CreateThinker(ctx context.Context, create *Thinker) (*Thinker, error) {
	return s.driver.CreateThinker(ctx, create)
}

func (s *Store) ListThinkers(ctx context.Context, find *FindThinker) ([]*Thinker, error) {
	return s.driver.ListThinkers(ctx, find)
}

func (s *Store) DeleteThinkers(ctx context.Context, delete *DeleteThinker) error {
	return s.driver.DeleteThinkers(ctx, delete)
}

func (s *Store) CreateMessage(ctx context.Context, create *Message) (*Message, error) {
	return s.driver.CreateMessage(ctx, create)
}

func (s *Store) ListMessages(ctx context.Context, find *FindMessage) ([]*Message, error) {
	return s.driver.ListMessages(ctx, find)
}

func (s *Store) DeleteMessages(ctx context.Context, delete *DeleteMessage) error {
	return s.driver.DeleteMessages(ctx, delete)
}

func (s *Store) GetMaxMessageSequence(ctx context.Context, conversationID int32) (int64, error) {
	return s.driver.GetMaxMessageSequence(ctx, conversationID)
}

func (s *Store) SumMessageCost(ctx context.Context, conversationID int32) (float64, error) {
	return s.driver.SumMessageCost(ctx, conversationID)
}

func (s *Store) CreateResearchRecord(ctx context.Context, create *ResearchRecord) (*ResearchRecord, error) {
	return s.driver.CreateResearchRecord(ctx, create)
}

func (s *Store) GetResearchRecord(ctx context.Context, name string) (*ResearchRecord, error) {
	return s.driver.GetResearchRecord(ctx, name)
}

func (s *Store) ListResearchRecords(ctx context.Context, find *FindResearchRecord) ([]*ResearchRecord, error) {
	return s.driver.ListResearchRecords(ctx, find)
}

func (s *Store) SetResearchInProgress(ctx context.Context, name string) (bool, error) {
	return s.driver.SetResearchInProgress(ctx, name)
}

func (s *Store) CompleteResearch(ctx context.Context, name string, payload string) error {
	return s.driver.CompleteResearch(ctx, name, payload)
}

func (s *Store) FailResearch(ctx context.Context, name string, errorMessage string) error {
	return s.driver.FailResearch(ctx, name, errorMessage)
}
