package v1

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/jeremymatthewwerner/dining-philosophers-Dec25-sw-factory/internal/profile"
	"github.com/jeremymatthewwerner/dining-philosophers-Dec25-sw-factory/server/service/chat"
	"github.com/jeremymatthewwerner/dining-philosophers-Dec25-sw-factory/store"
)

// fakeDriver is a full in-memory store.Driver so handler tests exercise the
// real store facade and the real scheduler.
type fakeDriver struct {
	mu            sync.Mutex
	conversations map[int32]*store.Conversation
	thinkers      map[int32]*store.Thinker
	messages      map[int32]*store.Message
	research      map[string]*store.ResearchRecord
	nextID        int32
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		conversations: make(map[int32]*store.Conversation),
		thinkers:      make(map[int32]*store.Thinker),
		messages:      make(map[int32]*store.Message),
		research:      make(map[string]*store.ResearchRecord),
		nextID:        1,
	}
}

func (d *fakeDriver) GetDB() *sql.DB                   { return nil }
func (d *fakeDriver) Close() error                     { return nil }
func (d *fakeDriver) Migrate(context.Context) error    { return nil }
func (d *fakeDriver) allocIDLocked() int32             { id := d.nextID; d.nextID++; return id }

func (d *fakeDriver) CreateConversation(_ context.Context, create *store.Conversation) (*store.Conversation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := *create
	cp.ID = d.allocIDLocked()
	d.conversations[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (d *fakeDriver) ListConversations(_ context.Context, find *store.FindConversation) ([]*store.Conversation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []*store.Conversation
	for _, conv := range d.conversations {
		if find.ID != nil && conv.ID != *find.ID {
			continue
		}
		if find.UID != nil && conv.UID != *find.UID {
			continue
		}
		if find.Status != nil && conv.Status != *find.Status {
			continue
		}
		cp := *conv
		for _, m := range d.messages {
			if m.ConversationID == conv.ID {
				cp.CostTotal += m.Cost
			}
		}
		out = append(out, &cp)
	}
	return out, nil
}

func (d *fakeDriver) UpdateConversation(_ context.Context, update *store.UpdateConversation) (*store.Conversation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	conv, ok := d.conversations[update.ID]
	if !ok {
		return nil, errors.Errorf("conversation not found: %d", update.ID)
	}
	if update.Topic != nil {
		conv.Topic = *update.Topic
	}
	if update.Status != nil {
		conv.Status = *update.Status
	}
	if update.UpdatedTs != nil {
		conv.UpdatedTs = *update.UpdatedTs
	}
	cp := *conv
	return &cp, nil
}

func (d *fakeDriver) DeleteConversation(_ context.Context, del *store.DeleteConversation) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	conv, ok := d.conversations[del.ID]
	if !ok {
		return nil
	}
	conv.Status = store.ConversationInactive
	for id, m := range d.messages {
		if m.ConversationID == del.ID {
			delete(d.messages, id)
		}
	}
	return nil
}

func (d *fakeDriver) CreateThinker(_ context.Context, create *store.Thinker) (*store.Thinker, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, th := range d.thinkers {
		if th.ConversationID == create.ConversationID && th.Name == create.Name {
			return nil, errors.New("UNIQUE constraint failed: thinker.name")
		}
	}
	cp := *create
	cp.ID = d.allocIDLocked()
	d.thinkers[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (d *fakeDriver) ListThinkers(_ context.Context, find *store.FindThinker) ([]*store.Thinker, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []*store.Thinker
	for _, th := range d.thinkers {
		if find.ID != nil && th.ID != *find.ID {
			continue
		}
		if find.ConversationID != nil && th.ConversationID != *find.ConversationID {
			continue
		}
		if find.Name != nil && th.Name != *find.Name {
			continue
		}
		cp := *th
		out = append(out, &cp)
	}
	// stable roster order
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].ID < out[i].ID {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out, nil
}

func (d *fakeDriver) DeleteThinkers(_ context.Context, del *store.DeleteThinker) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, th := range d.thinkers {
		if th.ConversationID == del.ConversationID {
			delete(d.thinkers, id)
		}
	}
	return nil
}

func (d *fakeDriver) CreateMessage(_ context.Context, create *store.Message) (*store.Message, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, m := range d.messages {
		if m.ConversationID == create.ConversationID && m.Sequence == create.Sequence {
			return nil, errors.Errorf("UNIQUE constraint failed: message.sequence %d", create.Sequence)
		}
	}
	cp := *create
	cp.ID = d.allocIDLocked()
	d.messages[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (d *fakeDriver) ListMessages(_ context.Context, find *store.FindMessage) ([]*store.Message, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []*store.Message
	for _, m := range d.messages {
		if find.ConversationID != nil && m.ConversationID != *find.ConversationID {
			continue
		}
		if find.SenderName != nil && m.SenderName != *find.SenderName {
			continue
		}
		cp := *m
		out = append(out, &cp)
	}
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].Sequence < out[i].Sequence {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	if find.Limit != nil && len(out) > *find.Limit {
		out = out[len(out)-*find.Limit:]
	}
	return out, nil
}

func (d *fakeDriver) DeleteMessages(_ context.Context, del *store.DeleteMessage) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, m := range d.messages {
		if m.ConversationID == del.ConversationID {
			delete(d.messages, id)
		}
	}
	return nil
}

func (d *fakeDriver) GetMaxMessageSequence(_ context.Context, conversationID int32) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var max int64
	for _, m := range d.messages {
		if m.ConversationID == conversationID && m.Sequence > max {
			max = m.Sequence
		}
	}
	return max, nil
}

func (d *fakeDriver) SumMessageCost(_ context.Context, conversationID int32) (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var sum float64
	for _, m := range d.messages {
		if m.ConversationID == conversationID {
			sum += m.Cost
		}
	}
	return sum, nil
}

func (d *fakeDriver) CreateResearchRecord(_ context.Context, create *store.ResearchRecord) (*store.ResearchRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.research[create.Name]; ok {
		return nil, errors.New("UNIQUE constraint failed: research_record.name")
	}
	cp := *create
	cp.ID = d.allocIDLocked()
	d.research[cp.Name] = &cp
	out := cp
	return &out, nil
}

func (d *fakeDriver) GetResearchRecord(_ context.Context, name string) (*store.ResearchRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rec, ok := d.research[name]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (d *fakeDriver) ListResearchRecords(_ context.Context, find *store.FindResearchRecord) ([]*store.ResearchRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []*store.ResearchRecord
	for _, rec := range d.research {
		if find.Name != nil && rec.Name != *find.Name {
			continue
		}
		if find.Status != nil && rec.Status != *find.Status {
			continue
		}
		if find.UpdatedBefore != nil && rec.UpdatedTs >= *find.UpdatedBefore {
			continue
		}
		cp := *rec
		out = append(out, &cp)
	}
	return out, nil
}

func (d *fakeDriver) SetResearchInProgress(_ context.Context, name string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rec, ok := d.research[name]
	if !ok || rec.Status == store.ResearchInProgress {
		return false, nil
	}
	rec.Status = store.ResearchInProgress
	rec.ErrorMessage = ""
	rec.UpdatedTs = time.Now().Unix()
	return true, nil
}

func (d *fakeDriver) CompleteResearch(_ context.Context, name string, payload string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	rec, ok := d.research[name]
	if !ok {
		return errors.Errorf("record not found: %s", name)
	}
	rec.Status = store.ResearchComplete
	rec.Payload = payload
	rec.ErrorMessage = ""
	rec.UpdatedTs = time.Now().Unix()
	return nil
}

func (d *fakeDriver) FailResearch(_ context.Context, name string, errorMessage string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	rec, ok := d.research[name]
	if !ok {
		return errors.Errorf("record not found: %s", name)
	}
	rec.Status = store.ResearchFailed
	rec.ErrorMessage = errorMessage
	rec.UpdatedTs = time.Now().Unix()
	return nil
}

// stubResearcher satisfies the Knowledge interface with canned records.
type stubResearcher struct {
	mu      sync.Mutex
	records map[string]*store.ResearchRecord
	queued  []string
}

func newStubResearcher() *stubResearcher {
	return &stubResearcher{records: make(map[string]*store.ResearchRecord)}
}

func (r *stubResearcher) GetOrTrigger(_ context.Context, name string) (*store.ResearchRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[name]
	if !ok {
		rec = &store.ResearchRecord{Name: name, Status: store.ResearchPending, Payload: "{}"}
		r.records[name] = rec
		r.queued = append(r.queued, name)
	}
	cp := *rec
	return &cp, nil
}

func (r *stubResearcher) Status(_ context.Context, name string) (*store.ResearchRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[name]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (r *stubResearcher) Refresh(_ context.Context, name string) (*store.ResearchRecord, error) {
	r.mu.Lock()
	r.queued = append(r.queued, name)
	r.mu.Unlock()
	return r.GetOrTrigger(context.Background(), name)
}

func (r *stubResearcher) RefreshStale(context.Context) (int, error) {
	return 0, nil
}

// newTestService builds an APIV1Service over the fake driver with a scheduler
// that never calls a real LLM.
func newTestService() (*APIV1Service, *fakeDriver) {
	driver := newFakeDriver()
	prof := &profile.Profile{Mode: "demo", Locale: "en"}
	st := store.New(driver, prof)

	hub := chat.NewDeliveryHub()
	researcher := newStubResearcher()
	scheduler := chat.NewScheduler(st, unavailableGenerator{}, researcher, hub, chat.NewCostLedger(), prof.Locale)

	return &APIV1Service{
		Profile:   prof,
		Store:     st,
		Scheduler: scheduler,
		Hub:       hub,
		Knowledge: researcher,
	}, driver
}
