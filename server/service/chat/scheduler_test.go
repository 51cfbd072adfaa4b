package chat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremymatthewwerner/dining-philosophers-Dec25-sw-factory/ai/persona"
	"github.com/jeremymatthewwerner/dining-philosophers-Dec25-sw-factory/store"
)

// memChatStore is an in-memory Store for scheduler tests.
type memChatStore struct {
	mu       sync.Mutex
	conv     *store.Conversation
	thinkers []*store.Thinker
	messages []*store.Message
	nextID   int32
}

func newMemChatStore(topic string, thinkerNames ...string) *memChatStore {
	st := &memChatStore{
		conv: &store.Conversation{
			ID:     1,
			UID:    "conv-1",
			Topic:  topic,
			Status: store.ConversationActive,
		},
		nextID: 1,
	}
	for i, name := range thinkerNames {
		st.thinkers = append(st.thinkers, &store.Thinker{
			ID:             int32(i + 1),
			ConversationID: 1,
			Name:           name,
		})
	}
	return st
}

func (s *memChatStore) GetConversation(_ context.Context, find *store.FindConversation) (*store.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if find.UID != nil && *find.UID != s.conv.UID {
		return nil, nil
	}
	cp := *s.conv
	return &cp, nil
}

func (s *memChatStore) UpdateConversation(_ context.Context, update *store.UpdateConversation) (*store.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if update.Status != nil {
		s.conv.Status = *update.Status
	}
	if update.UpdatedTs != nil {
		s.conv.UpdatedTs = *update.UpdatedTs
	}
	cp := *s.conv
	return &cp, nil
}

func (s *memChatStore) ListThinkers(_ context.Context, _ *store.FindThinker) ([]*store.Thinker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*store.Thinker, len(s.thinkers))
	for i, th := range s.thinkers {
		cp := *th
		out[i] = &cp
	}
	return out, nil
}

func (s *memChatStore) CreateMessage(_ context.Context, create *store.Message) (*store.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages {
		if m.Sequence == create.Sequence {
			return nil, errors.Errorf("UNIQUE constraint failed: message.sequence %d", create.Sequence)
		}
	}
	cp := *create
	cp.ID = s.nextID
	s.nextID++
	s.messages = append(s.messages, &cp)
	out := cp
	return &out, nil
}

func (s *memChatStore) ListMessages(_ context.Context, find *store.FindMessage) ([]*store.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*store.Message, len(s.messages))
	for i, m := range s.messages {
		cp := *m
		out[i] = &cp
	}
	// messages are appended in sequence order already
	if find.Limit != nil && len(out) > *find.Limit {
		out = out[len(out)-*find.Limit:]
	}
	return out, nil
}

func (s *memChatStore) GetMaxMessageSequence(_ context.Context, _ int32) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var max int64
	for _, m := range s.messages {
		if m.Sequence > max {
			max = m.Sequence
		}
	}
	return max, nil
}

func (s *memChatStore) SumMessageCost(_ context.Context, _ int32) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sum float64
	for _, m := range s.messages {
		sum += m.Cost
	}
	return sum, nil
}

func (s *memChatStore) thinkerMessages(name string) []*store.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*store.Message
	for _, m := range s.messages {
		if m.SenderType == store.SenderThinker && m.SenderName == name {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out
}

// fakeGenerator serves canned replies keyed by persona name.
type fakeGenerator struct {
	mu      sync.Mutex
	replies map[string]string
	errs    map[string]error
	cost    float64
	calls   map[string]int
}

func newFakeGenerator() *fakeGenerator {
	return &fakeGenerator{
		replies: make(map[string]string),
		errs:    make(map[string]error),
		cost:    0.01,
		calls:   make(map[string]int),
	}
}

func (g *fakeGenerator) GenerateStreaming(ctx context.Context, req *persona.Request, onDelta func(string)) (*persona.Result, error) {
	g.mu.Lock()
	g.calls[req.Persona.Name]++
	reply := g.replies[req.Persona.Name]
	err := g.errs[req.Persona.Name]
	cost := g.cost
	g.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if onDelta != nil {
		// Stream the reply in two accumulated chunks, the adapter contract.
		half := len(reply) / 2
		onDelta(reply[:half])
		onDelta(reply)
	}
	return &persona.Result{Content: reply, Cost: cost}, nil
}

func (g *fakeGenerator) callCount(name string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[name]
}

// recordingConn captures broadcast events.
type recordingConn struct {
	mu     sync.Mutex
	events []*Event
}

func (c *recordingConn) Send(event *Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *recordingConn) snapshot() []*Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Event, len(c.events))
	copy(out, c.events)
	return out
}

func (c *recordingConn) countType(et EventType) int {
	n := 0
	for _, e := range c.snapshot() {
		if e.Type == et {
			n++
		}
	}
	return n
}

func (c *recordingConn) waitFor(t *testing.T, desc string, pred func([]*Event) bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if pred(c.snapshot()) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s; saw %d events", desc, len(c.snapshot()))
}

func typingStopped(n int) func([]*Event) bool {
	return func(events []*Event) bool {
		stops := 0
		for _, e := range events {
			if e.Type == EventTypingStop {
				stops++
			}
		}
		return stops >= n
	}
}

func newTestScheduler(st Store, gen Generator) (*Scheduler, *recordingConn) {
	hub := NewDeliveryHub()
	s := NewScheduler(st, gen, nil, hub, NewCostLedger(), "en")
	s.pace = func(context.Context, time.Duration) {}
	s.previewInterval = 0 // no throttle in tests
	conn := &recordingConn{}
	hub.Register("conv-1", conn)
	return s, conn
}

func TestSubmitUserMessageAllThinkersRespond(t *testing.T) {
	st := newMemChatStore("free will", "Simone de Beauvoir", "Friedrich Nietzsche")
	gen := newFakeGenerator()
	gen.replies["Simone de Beauvoir"] = "Freedom is something we are condemned to."
	gen.replies["Friedrich Nietzsche"] = "The will is everything."
	s, conn := newTestScheduler(st, gen)

	msg, err := s.SubmitUserMessage(context.Background(), "conv-1", "You", "What is free will?")
	require.NoError(t, err)
	assert.Equal(t, int64(1), msg.Sequence)
	assert.Equal(t, store.SenderUser, msg.SenderType)

	conn.waitFor(t, "both thinkers to finish", typingStopped(2))

	assert.Len(t, st.thinkerMessages("Simone de Beauvoir"), 1)
	assert.Len(t, st.thinkerMessages("Friedrich Nietzsche"), 1)

	// Sequences are unique and gapless across the conversation.
	st.mu.Lock()
	seen := make(map[int64]bool)
	for _, m := range st.messages {
		assert.False(t, seen[m.Sequence], "duplicate sequence %d", m.Sequence)
		seen[m.Sequence] = true
	}
	count := len(st.messages)
	st.mu.Unlock()
	require.Equal(t, 3, count)
	for i := int64(1); i <= 3; i++ {
		assert.True(t, seen[i], "missing sequence %d", i)
	}
}

func TestMentionNarrowsResponders(t *testing.T) {
	st := newMemChatStore("ethics", "Simone de Beauvoir", "Friedrich Nietzsche")
	gen := newFakeGenerator()
	gen.replies["Simone de Beauvoir"] = "I will answer that."
	gen.replies["Friedrich Nietzsche"] = "Unused."
	s, conn := newTestScheduler(st, gen)

	_, err := s.SubmitUserMessage(context.Background(), "conv-1", "You", "@Simone what is the ethics of ambiguity?")
	require.NoError(t, err)

	conn.waitFor(t, "the addressed thinker to finish", typingStopped(1))
	time.Sleep(30 * time.Millisecond)

	assert.Equal(t, 1, gen.callCount("Simone de Beauvoir"))
	assert.Equal(t, 0, gen.callCount("Friedrich Nietzsche"))
	assert.Empty(t, st.thinkerMessages("Friedrich Nietzsche"))
}

func TestBusyThinkerSkipsOverlappingMessage(t *testing.T) {
	st := newMemChatStore("time", "Martin Heidegger")
	release := make(chan struct{})
	gen := &blockingGenerator{inner: newFakeGenerator(), release: release}
	gen.inner.replies["Martin Heidegger"] = "Being is time."
	s, conn := newTestScheduler(st, gen)

	_, err := s.SubmitUserMessage(context.Background(), "conv-1", "You", "What is Being?")
	require.NoError(t, err)
	conn.waitFor(t, "typing to start", func(events []*Event) bool {
		for _, e := range events {
			if e.Type == EventTypingStart {
				return true
			}
		}
		return false
	})

	// A second message while the thinker is mid-response does not queue a
	// second task for it.
	_, err = s.SubmitUserMessage(context.Background(), "conv-1", "You", "And what of time?")
	require.NoError(t, err)

	close(release)
	conn.waitFor(t, "the single task to finish", typingStopped(1))
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 1, gen.inner.callCount("Martin Heidegger"))
}

// blockingGenerator holds every generation until release is closed.
type blockingGenerator struct {
	inner   *fakeGenerator
	release chan struct{}
}

func (g *blockingGenerator) GenerateStreaming(ctx context.Context, req *persona.Request, onDelta func(string)) (*persona.Result, error) {
	select {
	case <-g.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return g.inner.GenerateStreaming(ctx, req, onDelta)
}

func TestPauseDefersRespondersAndResumeStartsThem(t *testing.T) {
	st := newMemChatStore("virtue", "Aristotle")
	gen := newFakeGenerator()
	gen.replies["Aristotle"] = "Virtue is a habit."
	s, conn := newTestScheduler(st, gen)

	require.NoError(t, s.Pause(context.Background(), "conv-1"))
	require.NoError(t, s.Pause(context.Background(), "conv-1")) // idempotent

	_, err := s.SubmitUserMessage(context.Background(), "conv-1", "You", "What is virtue?")
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, gen.callCount("Aristotle"))
	assert.Equal(t, 0, conn.countType(EventTypingStart))

	require.NoError(t, s.Resume(context.Background(), "conv-1"))
	conn.waitFor(t, "the deferred responder to finish", typingStopped(1))
	assert.Len(t, st.thinkerMessages("Aristotle"), 1)

	// Redundant resume is a no-op: no second task, no second status event.
	require.NoError(t, s.Resume(context.Background(), "conv-1"))
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 1, gen.callCount("Aristotle"))
}

func TestPauseDropsUndeliveredBubbles(t *testing.T) {
	st := newMemChatStore("stoicism", "Epictetus")
	gen := newFakeGenerator()
	// Long enough to split, with a transition word forcing a boundary.
	gen.replies["Epictetus"] = "Some things are within our power, while others are not, and wisdom begins with telling them apart. However, most people never make that distinction and suffer for it endlessly."
	s, conn := newTestScheduler(st, gen)

	paceEntered := make(chan struct{})
	paceRelease := make(chan struct{})
	var paceOnce sync.Once
	s.pace = func(ctx context.Context, d time.Duration) {
		paceOnce.Do(func() { close(paceEntered) })
		<-paceRelease
	}

	_, err := s.SubmitUserMessage(context.Background(), "conv-1", "You", "What can we control?")
	require.NoError(t, err)

	<-paceEntered
	require.NoError(t, s.Pause(context.Background(), "conv-1"))
	close(paceRelease)

	conn.waitFor(t, "the task to stop", typingStopped(1))
	// First bubble delivered, remainder dropped.
	assert.Len(t, st.thinkerMessages("Epictetus"), 1)
}

// gateStore blocks one thinker's message insert until released, simulating a
// slow write racing a fast sibling.
type gateStore struct {
	*memChatStore
	gateName string
	entered  chan struct{}
	release  chan struct{}
	once     sync.Once
}

func (g *gateStore) CreateMessage(ctx context.Context, create *store.Message) (*store.Message, error) {
	if create.SenderType == store.SenderThinker && create.SenderName == g.gateName {
		g.once.Do(func() { close(g.entered) })
		<-g.release
	}
	return g.memChatStore.CreateMessage(ctx, create)
}

// gatedGenerator holds selected personas' generations until their channel
// closes.
type gatedGenerator struct {
	inner *fakeGenerator
	waits map[string]chan struct{}
}

func (g *gatedGenerator) GenerateStreaming(ctx context.Context, req *persona.Request, onDelta func(string)) (*persona.Result, error) {
	if ch := g.waits[req.Persona.Name]; ch != nil {
		select {
		case <-ch:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return g.inner.GenerateStreaming(ctx, req, onDelta)
}

func TestConcurrentCompletionsDeliverInSequenceOrder(t *testing.T) {
	inserting := make(chan struct{})
	release := make(chan struct{})
	st := &gateStore{
		memChatStore: newMemChatStore("virtue", "Socrates", "Plato"),
		gateName:     "Socrates",
		entered:      inserting,
		release:      release,
	}
	// Plato's generation only completes once Socrates is mid-insert with its
	// sequence number already taken.
	gen := &gatedGenerator{
		inner: newFakeGenerator(),
		waits: map[string]chan struct{}{"Plato": inserting},
	}
	gen.inner.replies["Socrates"] = "Virtue is knowledge."
	gen.inner.replies["Plato"] = "Virtue is harmony of the soul."
	s, conn := newTestScheduler(st, gen)

	_, err := s.SubmitUserMessage(context.Background(), "conv-1", "You", "What is virtue?")
	require.NoError(t, err)

	<-inserting
	// Give Plato's task time to try to overtake the stalled insert.
	time.Sleep(30 * time.Millisecond)
	close(release)

	conn.waitFor(t, "both thinkers to finish", typingStopped(2))

	var sequences []int64
	for _, e := range conn.snapshot() {
		if e.Type == EventMessage {
			sequences = append(sequences, e.Message.Sequence)
		}
	}
	require.Len(t, sequences, 3)
	for i := 1; i < len(sequences); i++ {
		assert.Greater(t, sequences[i], sequences[i-1],
			"messages observed out of sequence order: %v", sequences)
	}
}

// pausedPreviewGenerator waits for the pause, then streams a preview-sized
// draft.
type pausedPreviewGenerator struct {
	wait chan struct{}
}

func (g *pausedPreviewGenerator) GenerateStreaming(ctx context.Context, _ *persona.Request, onDelta func(string)) (*persona.Result, error) {
	select {
	case <-g.wait:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if onDelta != nil {
		onDelta("This draft is comfortably longer than the preview threshold of eighty characters, so it would normally be shown.")
	}
	return &persona.Result{Content: "Those who know do not speak."}, nil
}

func TestPauseSilencesTypingPreviews(t *testing.T) {
	st := newMemChatStore("silence", "Laozi")
	paused := make(chan struct{})
	gen := &pausedPreviewGenerator{wait: paused}
	s, conn := newTestScheduler(st, gen)

	_, err := s.SubmitUserMessage(context.Background(), "conv-1", "You", "What is the Tao?")
	require.NoError(t, err)
	conn.waitFor(t, "typing to start", func(events []*Event) bool {
		return countEvents(events, EventTypingStart) >= 1
	})

	require.NoError(t, s.Pause(context.Background(), "conv-1"))
	close(paused)

	conn.waitFor(t, "the task to stop", typingStopped(1))
	assert.Equal(t, 0, conn.countType(EventTypingPreview))
}

func countEvents(events []*Event, et EventType) int {
	n := 0
	for _, e := range events {
		if e.Type == et {
			n++
		}
	}
	return n
}

func TestResumedDeferredResponderKeepsMentionContext(t *testing.T) {
	st := newMemChatStore("forms", "Plato", "Aristotle")
	gen := &capturingGenerator{inner: newFakeGenerator()}
	gen.inner.replies["Plato"] = "The forms are eternal."
	s, conn := newTestScheduler(st, gen)

	require.NoError(t, s.Pause(context.Background(), "conv-1"))
	_, err := s.SubmitUserMessage(context.Background(), "conv-1", "You", "@Plato, are the forms real?")
	require.NoError(t, err)
	require.NoError(t, s.Resume(context.Background(), "conv-1"))

	conn.waitFor(t, "the deferred responder to finish", typingStopped(1))

	// Only the mentioned thinker ran, and it still knows it was addressed.
	req := gen.lastRequest()
	require.NotNil(t, req)
	assert.Contains(t, req.StyleHint, "addressed directly")
	assert.Equal(t, 0, gen.inner.callCount("Aristotle"))
}

func TestThinkerFailureIsLocal(t *testing.T) {
	st := newMemChatStore("money", "Diogenes", "Adam Smith")
	gen := newFakeGenerator()
	gen.replies["Adam Smith"] = "Markets coordinate self-interest."
	gen.errs["Diogenes"] = &persona.GenerationError{
		Kind:    persona.KindQuotaExceeded,
		Thinker: "Diogenes",
		Err:     errors.New("insufficient_quota"),
	}
	s, conn := newTestScheduler(st, gen)

	_, err := s.SubmitUserMessage(context.Background(), "conv-1", "You", "Does money matter?")
	require.NoError(t, err)

	conn.waitFor(t, "both tasks to finish", typingStopped(2))

	var errEvents []*Event
	for _, e := range conn.snapshot() {
		if e.Type == EventError {
			errEvents = append(errEvents, e)
		}
	}
	require.Len(t, errEvents, 1)
	assert.Equal(t, "Diogenes", errEvents[0].Error.Thinker)
	assert.Equal(t, string(persona.KindQuotaExceeded), errEvents[0].Error.Kind)
	assert.NotEmpty(t, errEvents[0].Error.Message)

	// The failure did not take down the other thinker.
	assert.Len(t, st.thinkerMessages("Adam Smith"), 1)
	assert.Empty(t, st.thinkerMessages("Diogenes"))
}

func TestCostTotalsAreMonotonic(t *testing.T) {
	st := newMemChatStore("economics", "Adam Smith")
	gen := newFakeGenerator()
	gen.cost = 0.02
	gen.replies["Adam Smith"] = "Division of labour."
	s, conn := newTestScheduler(st, gen)

	_, err := s.SubmitUserMessage(context.Background(), "conv-1", "You", "First question.")
	require.NoError(t, err)
	conn.waitFor(t, "first reply", typingStopped(1))

	_, err = s.SubmitUserMessage(context.Background(), "conv-1", "You", "Second question.")
	require.NoError(t, err)
	conn.waitFor(t, "second reply", typingStopped(2))

	var totals []float64
	for _, e := range conn.snapshot() {
		if e.Type == EventMessage && e.Message.SenderType == string(store.SenderThinker) {
			totals = append(totals, e.CostTotal)
		}
	}
	require.Len(t, totals, 2)
	assert.InDelta(t, 0.02, totals[0], 1e-9)
	assert.InDelta(t, 0.04, totals[1], 1e-9)
}

func TestSnapshotCarriesRecentWindow(t *testing.T) {
	st := newMemChatStore("history", "Herodotus")
	gen := newFakeGenerator()
	s, _ := newTestScheduler(st, gen)

	// Seed more messages than the snapshot window.
	for i := 1; i <= snapshotMessageLimit+10; i++ {
		_, err := st.CreateMessage(context.Background(), &store.Message{
			UID:            "m",
			ConversationID: 1,
			SenderType:     store.SenderUser,
			SenderName:     "You",
			Content:        "msg",
			Sequence:       int64(i),
			Cost:           0.001,
		})
		require.NoError(t, err)
	}

	snap, err := s.Snapshot(context.Background(), "conv-1")
	require.NoError(t, err)
	assert.Equal(t, "history", snap.Topic)
	assert.Equal(t, string(store.ConversationActive), snap.Status)
	assert.Equal(t, []string{"Herodotus"}, snap.Participants)
	require.Len(t, snap.Messages, snapshotMessageLimit)
	// The window is the most recent messages, still ascending.
	assert.Equal(t, int64(11), snap.Messages[0].Sequence)
	assert.Equal(t, int64(snapshotMessageLimit+10), snap.Messages[len(snap.Messages)-1].Sequence)
	assert.InDelta(t, float64(snapshotMessageLimit+10)*0.001, snap.CostTotal, 1e-9)
}

func TestSequenceResumesFromPersistedMax(t *testing.T) {
	st := newMemChatStore("memory", "Plato")
	gen := newFakeGenerator()
	gen.replies["Plato"] = "Recollection."
	_, err := st.CreateMessage(context.Background(), &store.Message{
		UID: "old", ConversationID: 1, SenderType: store.SenderUser,
		SenderName: "You", Content: "old", Sequence: 7,
	})
	require.NoError(t, err)

	s, conn := newTestScheduler(st, gen)
	msg, err := s.SubmitUserMessage(context.Background(), "conv-1", "You", "Do we remember?")
	require.NoError(t, err)
	assert.Equal(t, int64(8), msg.Sequence)
	conn.waitFor(t, "the reply", typingStopped(1))
}

func TestUnknownAndInactiveConversations(t *testing.T) {
	st := newMemChatStore("anything", "Plato")
	gen := newFakeGenerator()
	s, _ := newTestScheduler(st, gen)

	_, err := s.SubmitUserMessage(context.Background(), "missing", "You", "hello")
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "missing", notFound.UID)

	st.mu.Lock()
	st.conv.Status = store.ConversationInactive
	st.mu.Unlock()
	_, err = s.SubmitUserMessage(context.Background(), "conv-1", "You", "hello")
	var inactive *InactiveConversationError
	require.ErrorAs(t, err, &inactive)

	require.ErrorAs(t, s.Pause(context.Background(), "conv-1"), &inactive)
	require.ErrorAs(t, s.Resume(context.Background(), "conv-1"), &inactive)
}

func TestCancelAllStopsInFlightTasks(t *testing.T) {
	st := newMemChatStore("endings", "Seneca")
	release := make(chan struct{})
	gen := &blockingGenerator{inner: newFakeGenerator(), release: release}
	gen.inner.replies["Seneca"] = "Every ending is a beginning."
	s, conn := newTestScheduler(st, gen)

	_, err := s.SubmitUserMessage(context.Background(), "conv-1", "You", "How should it end?")
	require.NoError(t, err)
	conn.waitFor(t, "typing to start", func(events []*Event) bool {
		return len(events) >= 2 // user message + typing_start
	})

	s.CancelAll("conv-1")
	conn.waitFor(t, "the cancelled task to stop", typingStopped(1))
	assert.Empty(t, st.thinkerMessages("Seneca"))
	assert.Empty(t, s.ActiveThinkers("conv-1"))

	// The conversation's scheduling state is released, not leaked.
	s.mu.Lock()
	_, exists := s.convs["conv-1"]
	s.mu.Unlock()
	assert.False(t, exists)
}

func TestKnowledgeIncludedWhenComplete(t *testing.T) {
	st := newMemChatStore("existence", "Albert Camus")
	gen := &capturingGenerator{inner: newFakeGenerator()}
	gen.inner.replies["Albert Camus"] = "One must imagine Sisyphus happy."
	hub := NewDeliveryHub()
	s := NewScheduler(st, gen, &stubKnowledge{
		records: map[string]*store.ResearchRecord{
			"Albert Camus": {
				Name:    "Albert Camus",
				Status:  store.ResearchComplete,
				Payload: `{"wikipedia":{"title":"Albert Camus"}}`,
			},
		},
	}, hub, NewCostLedger(), "en")
	s.pace = func(context.Context, time.Duration) {}
	s.previewInterval = 0
	conn := &recordingConn{}
	hub.Register("conv-1", conn)

	_, err := s.SubmitUserMessage(context.Background(), "conv-1", "You", "Is life absurd?")
	require.NoError(t, err)
	conn.waitFor(t, "the reply", typingStopped(1))

	req := gen.lastRequest()
	require.NotNil(t, req)
	assert.Contains(t, req.Knowledge, "Albert Camus")
}

type stubKnowledge struct {
	records map[string]*store.ResearchRecord
}

func (s *stubKnowledge) GetOrTrigger(_ context.Context, name string) (*store.ResearchRecord, error) {
	return s.records[name], nil
}

type capturingGenerator struct {
	inner *fakeGenerator
	mu    sync.Mutex
	last  *persona.Request
}

func (g *capturingGenerator) GenerateStreaming(ctx context.Context, req *persona.Request, onDelta func(string)) (*persona.Result, error) {
	g.mu.Lock()
	g.last = req
	g.mu.Unlock()
	return g.inner.GenerateStreaming(ctx, req, onDelta)
}

func (g *capturingGenerator) lastRequest() *persona.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.last
}
