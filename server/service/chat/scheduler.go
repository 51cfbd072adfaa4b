package chat

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/lithammer/shortuuid/v4"

	"github.com/jeremymatthewwerner/dining-philosophers-Dec25-sw-factory/ai/persona"
	"github.com/jeremymatthewwerner/dining-philosophers-Dec25-sw-factory/server/metrics"
	"github.com/jeremymatthewwerner/dining-philosophers-Dec25-sw-factory/store"
)

// Store is the persistence surface the scheduler needs. *store.Store
// satisfies it; tests substitute in-memory implementations.
type Store interface {
	GetConversation(ctx context.Context, find *store.FindConversation) (*store.Conversation, error)
	UpdateConversation(ctx context.Context, update *store.UpdateConversation) (*store.Conversation, error)
	ListThinkers(ctx context.Context, find *store.FindThinker) ([]*store.Thinker, error)
	CreateMessage(ctx context.Context, create *store.Message) (*store.Message, error)
	ListMessages(ctx context.Context, find *store.FindMessage) ([]*store.Message, error)
	GetMaxMessageSequence(ctx context.Context, conversationID int32) (int64, error)
	SumMessageCost(ctx context.Context, conversationID int32) (float64, error)
}

// Generator produces persona replies. *persona.Adapter satisfies it.
type Generator interface {
	GenerateStreaming(ctx context.Context, req *persona.Request, onDelta func(text string)) (*persona.Result, error)
}

// KnowledgeProvider serves cached background research. *research.Researcher
// satisfies it; nil disables knowledge grounding.
type KnowledgeProvider interface {
	GetOrTrigger(ctx context.Context, name string) (*store.ResearchRecord, error)
}

const snapshotMessageLimit = 50

// Scheduler owns the per-conversation response pipeline: it persists user
// messages, selects which thinkers respond, runs their response tasks
// concurrently, and serializes sequence assignment so delivery order is
// total within a conversation.
//
// One Scheduler serves all conversations; state is per conversation and
// created lazily.
type Scheduler struct {
	store     Store
	generator Generator
	knowledge KnowledgeProvider
	hub       *DeliveryHub
	ledger    *CostLedger
	locale    string

	// pace and previewInterval are injectable so tests run without real
	// delays.
	pace            func(ctx context.Context, d time.Duration)
	previewInterval time.Duration

	rngMu sync.Mutex
	rng   *rand.Rand

	mu    sync.Mutex
	convs map[string]*conversationState
}

// conversationState is the live scheduling state of one conversation.
type conversationState struct {
	id  int32
	uid string

	// emitMu serializes sequence assignment, persistence, and broadcast of
	// one message as a unit, so connections observe sequence order even when
	// tasks finish concurrently. Held across store writes; never nested
	// inside mu.
	emitMu sync.Mutex

	mu        sync.Mutex
	seq       int64
	seqLoaded bool
	paused    bool
	active    map[string]*thinkerTask // keyed by thinker name
	deferred  []deferredResponder     // responders parked by pause, in order
}

// deferredResponder is a responder parked by pause, keeping the mention
// context of the turn that selected it.
type deferredResponder struct {
	name      string
	addressed bool
}

// NewScheduler wires the scheduler. knowledge may be nil.
func NewScheduler(st Store, gen Generator, knowledge KnowledgeProvider, hub *DeliveryHub, ledger *CostLedger, locale string) *Scheduler {
	return &Scheduler{
		store:     st,
		generator: gen,
		knowledge: knowledge,
		hub:       hub,
		ledger:    ledger,
		locale:    locale,
		pace: func(ctx context.Context, d time.Duration) {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-t.C:
			case <-ctx.Done():
			}
		},
		previewInterval: 300 * time.Millisecond,
		rng:             rand.New(rand.NewSource(time.Now().UnixNano())),
		convs:           make(map[string]*conversationState),
	}
}

// SubmitUserMessage persists the user's message, broadcasts it, and starts a
// response task for each selected thinker. @-mentions narrow the responder
// set; thinkers already mid-response sit this one out. On a paused
// conversation the responders are parked and started by Resume.
func (s *Scheduler) SubmitUserMessage(ctx context.Context, conversationUID, senderName, content string) (*store.Message, error) {
	conv, err := s.loadConversation(ctx, conversationUID)
	if err != nil {
		return nil, err
	}
	cs := s.stateFor(conv)

	msg, err := s.emitMessage(ctx, cs, conv, &store.Message{
		UID:            shortuuid.New(),
		ConversationID: conv.ID,
		SenderType:     store.SenderUser,
		SenderName:     senderName,
		Content:        content,
		CreatedTs:      time.Now().Unix(),
	})
	if err != nil {
		return nil, err
	}

	thinkers, err := s.store.ListThinkers(ctx, &store.FindThinker{ConversationID: &conv.ID})
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(thinkers))
	byName := make(map[string]*store.Thinker, len(thinkers))
	for _, th := range thinkers {
		names = append(names, th.Name)
		byName[th.Name] = th
	}

	responders := names
	addressed := false
	if mentioned := DetectMentions(content, names); len(mentioned) > 0 {
		responders = mentioned
		addressed = true
	}

	cs.mu.Lock()
	paused := cs.paused || conv.Status == store.ConversationPaused
	var toStart []*store.Thinker
	for _, name := range responders {
		if _, busy := cs.active[name]; busy {
			continue
		}
		if paused {
			cs.deferResponderLocked(name, addressed)
			continue
		}
		toStart = append(toStart, byName[name])
	}
	cs.paused = paused
	cs.mu.Unlock()

	for _, th := range toStart {
		s.startTask(cs, conv, th, names, addressed)
	}
	return msg, nil
}

// Pause stops new thinker turns from starting. In-flight replies drop their
// undelivered bubbles at the next delivery point. Idempotent.
func (s *Scheduler) Pause(ctx context.Context, conversationUID string) error {
	conv, err := s.loadConversation(ctx, conversationUID)
	if err != nil {
		return err
	}
	cs := s.stateFor(conv)

	cs.mu.Lock()
	already := cs.paused
	cs.paused = true
	cs.mu.Unlock()
	if already && conv.Status == store.ConversationPaused {
		return nil
	}

	if err := s.setStatus(ctx, conv, store.ConversationPaused); err != nil {
		return err
	}
	s.hub.Broadcast(conv.UID, newStatusEvent(conv.UID, store.ConversationPaused))
	return nil
}

// Resume reopens the conversation and starts any responders parked while
// paused. Idempotent.
func (s *Scheduler) Resume(ctx context.Context, conversationUID string) error {
	conv, err := s.loadConversation(ctx, conversationUID)
	if err != nil {
		return err
	}
	cs := s.stateFor(conv)

	cs.mu.Lock()
	wasPaused := cs.paused || conv.Status == store.ConversationPaused
	cs.paused = false
	deferred := cs.deferred
	cs.deferred = nil
	cs.mu.Unlock()
	if !wasPaused {
		return nil
	}

	if err := s.setStatus(ctx, conv, store.ConversationActive); err != nil {
		return err
	}
	s.hub.Broadcast(conv.UID, newStatusEvent(conv.UID, store.ConversationActive))

	if len(deferred) == 0 {
		return nil
	}
	thinkers, err := s.store.ListThinkers(ctx, &store.FindThinker{ConversationID: &conv.ID})
	if err != nil {
		return err
	}
	names := make([]string, 0, len(thinkers))
	byName := make(map[string]*store.Thinker, len(thinkers))
	for _, th := range thinkers {
		names = append(names, th.Name)
		byName[th.Name] = th
	}
	for _, d := range deferred {
		th, ok := byName[d.name]
		if !ok {
			continue
		}
		cs.mu.Lock()
		_, busy := cs.active[d.name]
		cs.mu.Unlock()
		if busy {
			continue
		}
		s.startTask(cs, conv, th, names, d.addressed)
	}
	return nil
}

// CancelAll cooperatively cancels every in-flight task, clears parked
// responders, and releases the conversation's scheduling state. Used when a
// conversation is deleted.
func (s *Scheduler) CancelAll(conversationUID string) {
	s.mu.Lock()
	cs, ok := s.convs[conversationUID]
	delete(s.convs, conversationUID)
	s.mu.Unlock()
	if !ok {
		return
	}
	cs.mu.Lock()
	tasks := make([]*thinkerTask, 0, len(cs.active))
	for _, t := range cs.active {
		tasks = append(tasks, t)
	}
	cs.deferred = nil
	cs.mu.Unlock()
	for _, t := range tasks {
		t.cancel()
	}
}

// Snapshot builds the catch-up state for a connecting client: participants,
// status, the recent message window, and the running cost total.
func (s *Scheduler) Snapshot(ctx context.Context, conversationUID string) (*SnapshotPayload, error) {
	conv, err := s.loadConversation(ctx, conversationUID)
	if err != nil {
		return nil, err
	}
	thinkers, err := s.store.ListThinkers(ctx, &store.FindThinker{ConversationID: &conv.ID})
	if err != nil {
		return nil, err
	}
	limit := snapshotMessageLimit
	messages, err := s.store.ListMessages(ctx, &store.FindMessage{ConversationID: &conv.ID, Limit: &limit})
	if err != nil {
		return nil, err
	}

	participants := make([]string, 0, len(thinkers))
	for _, th := range thinkers {
		participants = append(participants, th.Name)
	}
	payloads := make([]MessagePayload, 0, len(messages))
	for _, m := range messages {
		payloads = append(payloads, toMessagePayload(m))
	}
	status := conv.Status
	cs := s.stateFor(conv)
	cs.mu.Lock()
	if cs.paused && status == store.ConversationActive {
		status = store.ConversationPaused
	}
	cs.mu.Unlock()
	return &SnapshotPayload{
		Topic:        conv.Topic,
		Status:       string(status),
		Participants: participants,
		Messages:     payloads,
		CostTotal:    s.costTotal(ctx, conv),
	}, nil
}

// ActiveThinkers returns the names of thinkers currently mid-response.
func (s *Scheduler) ActiveThinkers(conversationUID string) []string {
	s.mu.Lock()
	cs, ok := s.convs[conversationUID]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()
	names := make([]string, 0, len(cs.active))
	for name := range cs.active {
		names = append(names, name)
	}
	return names
}

func (s *Scheduler) loadConversation(ctx context.Context, conversationUID string) (*store.Conversation, error) {
	conv, err := s.store.GetConversation(ctx, &store.FindConversation{UID: &conversationUID})
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, &NotFoundError{UID: conversationUID}
	}
	if conv.Status == store.ConversationInactive {
		return nil, &InactiveConversationError{UID: conversationUID}
	}
	return conv, nil
}

func (s *Scheduler) stateFor(conv *store.Conversation) *conversationState {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs, ok := s.convs[conv.UID]
	if !ok {
		cs = &conversationState{
			id:     conv.ID,
			uid:    conv.UID,
			paused: conv.Status == store.ConversationPaused,
			active: make(map[string]*thinkerTask),
		}
		s.convs[conv.UID] = cs
	}
	return cs
}

// nextSequence assigns the next sequence number for the conversation. The
// counter is guarded by the conversation mutex and lazily initialized from
// the store, so restarts keep the total order.
func (s *Scheduler) nextSequence(ctx context.Context, cs *conversationState) (int64, error) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if !cs.seqLoaded {
		max, err := s.store.GetMaxMessageSequence(ctx, cs.id)
		if err != nil {
			return 0, err
		}
		cs.seq = max
		cs.seqLoaded = true
	}
	cs.seq++
	return cs.seq, nil
}

func (s *Scheduler) isPaused(cs *conversationState) bool {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.paused
}

func (cs *conversationState) deferResponderLocked(name string, addressed bool) {
	for i := range cs.deferred {
		if cs.deferred[i].name == name {
			cs.deferred[i].addressed = cs.deferred[i].addressed || addressed
			return
		}
	}
	cs.deferred = append(cs.deferred, deferredResponder{name: name, addressed: addressed})
}

func (s *Scheduler) setStatus(ctx context.Context, conv *store.Conversation, status store.ConversationStatus) error {
	now := time.Now().Unix()
	_, err := s.store.UpdateConversation(ctx, &store.UpdateConversation{
		ID:        conv.ID,
		Status:    &status,
		UpdatedTs: &now,
	})
	return err
}

// emitMessage assigns the next sequence number, persists the message, and
// broadcasts it, all under the conversation's emission lock. Without that,
// two concurrently finishing tasks could persist and broadcast in the
// opposite of their sequence order.
func (s *Scheduler) emitMessage(ctx context.Context, cs *conversationState, conv *store.Conversation, msg *store.Message) (*store.Message, error) {
	cs.emitMu.Lock()
	defer cs.emitMu.Unlock()

	// Seed the ledger before persisting so the new cost is counted once.
	total := s.costTotal(ctx, conv)

	seq, err := s.nextSequence(ctx, cs)
	if err != nil {
		return nil, err
	}
	msg.Sequence = seq
	created, err := s.store.CreateMessage(ctx, msg)
	if err != nil {
		return nil, err
	}
	if created.Cost > 0 {
		total = s.ledger.Add(conv.UID, created.Cost)
		metrics.GenerationCost.Add(created.Cost)
	}
	metrics.MessagesDelivered.WithLabelValues(string(created.SenderType)).Inc()
	s.hub.Broadcast(conv.UID, newMessageEvent(conv.UID, created, total))
	return created, nil
}

// costTotal returns the running total, seeding the ledger from persisted
// message costs on first touch.
func (s *Scheduler) costTotal(ctx context.Context, conv *store.Conversation) float64 {
	if !s.ledger.Seeded(conv.UID) {
		total, err := s.store.SumMessageCost(ctx, conv.ID)
		if err != nil {
			slog.Warn("chat: failed to seed cost ledger", "conversation", conv.UID, "error", err)
			total = 0
		}
		s.ledger.Seed(conv.UID, total)
	}
	return s.ledger.Total(conv.UID)
}

func (s *Scheduler) startTask(cs *conversationState, conv *store.Conversation, thinker *store.Thinker, participants []string, addressed bool) {
	ctx, cancel := context.WithCancel(context.Background())
	task := &thinkerTask{
		sched:        s,
		cs:           cs,
		conv:         conv,
		thinker:      thinker,
		participants: participants,
		addressed:    addressed,
		cancel:       cancel,
	}
	cs.mu.Lock()
	cs.active[thinker.Name] = task
	cs.mu.Unlock()
	go task.run(ctx)
}

func (s *Scheduler) taskFinished(t *thinkerTask, outcome string) {
	t.cs.mu.Lock()
	if t.cs.active[t.thinker.Name] == t {
		delete(t.cs.active, t.thinker.Name)
	}
	t.cs.mu.Unlock()
	metrics.ThinkerTasks.WithLabelValues(outcome).Inc()
}

// chooseStyle wraps persona.ChooseStyle with the scheduler's rng, which is
// shared and so needs the lock.
func (s *Scheduler) chooseStyle(p *persona.Persona, history []persona.Turn, addressed bool) string {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return persona.ChooseStyle(p, history, addressed, s.rng)
}
