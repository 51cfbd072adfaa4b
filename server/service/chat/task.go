package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/lithammer/shortuuid/v4"
	"golang.org/x/time/rate"

	"github.com/jeremymatthewwerner/dining-philosophers-Dec25-sw-factory/ai/persona"
	"github.com/jeremymatthewwerner/dining-philosophers-Dec25-sw-factory/server/metrics"
	"github.com/jeremymatthewwerner/dining-philosophers-Dec25-sw-factory/store"
)

const (
	// Previews are withheld until the draft has some substance, then capped
	// to a trailing window.
	previewMinLen = 80
	previewMaxLen = 200

	historyWindow = 50

	// Bubble pacing: a floor plus per-rune typing time, capped so long
	// bubbles do not stall the conversation.
	paceFloor   = 400 * time.Millisecond
	pacePerRune = 15 * time.Millisecond
	paceCeiling = 2500 * time.Millisecond
)

// taskOutcome values reported to metrics.
const (
	outcomeDone      = "done"
	outcomeCancelled = "cancelled"
	outcomeFailed    = "failed"
)

// thinkerTask is one in-flight persona response: generate, split into
// bubbles, deliver with pacing. It runs on its own goroutine; cancellation
// and pause are checked at every delivery point, so at most one bubble is in
// flight when either lands.
type thinkerTask struct {
	sched        *Scheduler
	cs           *conversationState
	conv         *store.Conversation
	thinker      *store.Thinker
	participants []string
	addressed    bool
	cancel       context.CancelFunc
}

func (t *thinkerTask) run(ctx context.Context) {
	defer t.cancel()

	t.sched.hub.Broadcast(t.conv.UID, newTypingStartEvent(t.conv.UID, t.thinker.Name))

	req, err := t.buildRequest(ctx)
	if err != nil {
		t.fail(err)
		return
	}

	limiter := rate.NewLimiter(rate.Every(t.sched.previewInterval), 1)
	result, err := t.sched.generator.GenerateStreaming(ctx, req, func(full string) {
		preview := shapePreview(full)
		if preview == "" || t.sched.isPaused(t.cs) || !limiter.Allow() {
			return
		}
		t.sched.hub.Broadcast(t.conv.UID, newTypingPreviewEvent(t.conv.UID, t.thinker.Name, preview))
	})
	if err != nil {
		if ctx.Err() != nil {
			t.stop(outcomeCancelled)
			return
		}
		t.fail(err)
		return
	}

	bubbles := SplitBubbles(result.Content)
	if len(bubbles) == 0 {
		t.stop(outcomeDone)
		return
	}
	group := ""
	if len(bubbles) > 1 {
		group = uuid.NewString()
	}

	for i, bubble := range bubbles {
		if ctx.Err() != nil {
			t.stop(outcomeCancelled)
			return
		}
		if t.sched.isPaused(t.cs) {
			// Pause drops the undelivered remainder; what was already
			// delivered stays.
			slog.Info("chat: pause dropped remaining bubbles",
				"conversation", t.conv.UID,
				"thinker", t.thinker.Name,
				"delivered", i,
				"total", len(bubbles),
			)
			t.stop(outcomeCancelled)
			return
		}
		if i > 0 {
			t.sched.pace(ctx, paceFor(bubble))
			if ctx.Err() != nil {
				t.stop(outcomeCancelled)
				return
			}
			if t.sched.isPaused(t.cs) {
				t.stop(outcomeCancelled)
				return
			}
		}

		cost := 0.0
		if i == 0 {
			// The whole generation's cost rides on the first bubble.
			cost = result.Cost
		}
		if _, err := t.sched.emitMessage(ctx, t.cs, t.conv, &store.Message{
			UID:            shortuuid.New(),
			ConversationID: t.conv.ID,
			SenderType:     store.SenderThinker,
			SenderName:     t.thinker.Name,
			Content:        bubble,
			BubbleGroup:    group,
			BubbleIndex:    int32(i),
			Cost:           cost,
			CreatedTs:      time.Now().Unix(),
		}); err != nil {
			t.fail(err)
			return
		}
	}

	t.stop(outcomeDone)
}

// buildRequest assembles the persona request: recent history, cached
// knowledge when complete, and a per-turn style directive.
func (t *thinkerTask) buildRequest(ctx context.Context) (*persona.Request, error) {
	limit := historyWindow
	messages, err := t.sched.store.ListMessages(ctx, &store.FindMessage{
		ConversationID: &t.conv.ID,
		Limit:          &limit,
	})
	if err != nil {
		return nil, err
	}
	history := make([]persona.Turn, 0, len(messages))
	for _, m := range messages {
		history = append(history, persona.Turn{
			SenderName: m.SenderName,
			Content:    m.Content,
			FromUser:   m.SenderType == store.SenderUser,
		})
	}

	p := &persona.Persona{
		Name:      t.thinker.Name,
		Bio:       t.thinker.Bio,
		Positions: t.thinker.Positions,
		Style:     t.thinker.Style,
	}
	return &persona.Request{
		Persona:      p,
		Participants: t.participants,
		History:      history,
		Topic:        t.conv.Topic,
		Locale:       t.sched.locale,
		Knowledge:    t.lookupKnowledge(ctx),
		StyleHint:    t.sched.chooseStyle(p, history, t.addressed),
	}, nil
}

// lookupKnowledge returns cached research for the thinker, if complete.
// Missing or pending knowledge never delays a reply.
func (t *thinkerTask) lookupKnowledge(ctx context.Context) string {
	if t.sched.knowledge == nil {
		return ""
	}
	rec, err := t.sched.knowledge.GetOrTrigger(ctx, t.thinker.Name)
	if err != nil {
		slog.Warn("chat: knowledge lookup failed",
			"thinker", t.thinker.Name,
			"error", err,
		)
		return ""
	}
	if rec == nil || rec.Status != store.ResearchComplete || rec.Payload == "" || rec.Payload == "{}" {
		return ""
	}
	if !json.Valid([]byte(rec.Payload)) {
		return ""
	}
	return rec.Payload
}

// fail reports a thinker-local failure to the conversation and ends the task.
func (t *thinkerTask) fail(err error) {
	kind := string(persona.KindMalformedOutput)
	if genErr, ok := err.(*persona.GenerationError); ok {
		kind = string(genErr.Kind)
	}
	slog.Error("chat: thinker task failed",
		"conversation", t.conv.UID,
		"thinker", t.thinker.Name,
		"kind", kind,
		"error", err,
	)
	metrics.GenerationErrors.WithLabelValues(kind).Inc()
	t.sched.hub.Broadcast(t.conv.UID, newErrorEvent(t.conv.UID, t.thinker.Name, kind, friendlyErrorMessage(t.thinker.Name, kind)))
	t.stop(outcomeFailed)
}

func (t *thinkerTask) stop(outcome string) {
	t.sched.hub.Broadcast(t.conv.UID, newTypingStopEvent(t.conv.UID, t.thinker.Name))
	t.sched.taskFinished(t, outcome)
}

func friendlyErrorMessage(thinker, kind string) string {
	switch persona.GenerationErrorKind(kind) {
	case persona.KindQuotaExceeded:
		return fmt.Sprintf("%s can't respond right now: the API account is out of credits.", thinker)
	case persona.KindTimeout:
		return fmt.Sprintf("%s is taking too long to respond. Try again in a moment.", thinker)
	default:
		return fmt.Sprintf("%s had trouble composing a reply.", thinker)
	}
}

// shapePreview turns the accumulated draft into a preview: nothing until the
// draft has substance, then the trailing window at a word boundary.
func shapePreview(full string) string {
	full = strings.TrimSpace(full)
	runes := []rune(full)
	if len(runes) < previewMinLen {
		return ""
	}
	if len(runes) <= previewMaxLen {
		return full
	}
	tail := string(runes[len(runes)-previewMaxLen:])
	if i := strings.IndexByte(tail, ' '); i >= 0 && i < len(tail)-1 {
		tail = tail[i+1:]
	}
	return "…" + tail
}

func paceFor(bubble string) time.Duration {
	d := paceFloor + time.Duration(utf8.RuneCountInString(bubble))*pacePerRune
	if d > paceCeiling {
		return paceCeiling
	}
	return d
}
