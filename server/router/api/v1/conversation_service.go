package v1

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/lithammer/shortuuid/v4"

	"github.com/jeremymatthewwerner/dining-philosophers-Dec25-sw-factory/store"
)

const (
	maxParticipants = 8
	maxTopicLen     = 500
)

type participantPayload struct {
	Name      string `json:"name"`
	Bio       string `json:"bio"`
	Positions string `json:"positions"`
	Style     string `json:"style"`
}

type createConversationRequest struct {
	Topic string `json:"topic"`
	// Owner is an opaque caller-supplied identity; the server issues no
	// sessions of its own.
	Owner        string               `json:"owner"`
	Participants []participantPayload `json:"participants"`
}

type conversationResponse struct {
	UID          string   `json:"uid"`
	Topic        string   `json:"topic"`
	Owner        string   `json:"owner,omitempty"`
	Status       string   `json:"status"`
	Participants []string `json:"participants"`
	CostTotal    float64  `json:"cost_total"`
	CreatedTs    int64    `json:"created_ts"`
	UpdatedTs    int64    `json:"updated_ts"`
}

type createMessageRequest struct {
	Content    string `json:"content"`
	SenderName string `json:"sender_name"`
}

type messageResponse struct {
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

// CreateConversation creates a conversation with its thinker roster and
// prefetches background knowledge for every participant.
func (s *APIV1Service) CreateConversation(c echo.Context) error {
	ctx := c.Request().Context()
	req := &createConversationRequest{}
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	req.Topic = strings.TrimSpace(req.Topic)
	if req.Topic == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "topic is required")
	}
	if len(req.Topic) > maxTopicLen {
		return echo.NewHTTPError(http.StatusBadRequest, "topic is too long")
	}
	if len(req.Participants) == 0 || len(req.Participants) > maxParticipants {
		return echo.NewHTTPError(http.StatusBadRequest, "between 1 and 8 participants are required")
	}
	seen := make(map[string]bool, len(req.Participants))
	for i := range req.Participants {
		name := strings.TrimSpace(req.Participants[i].Name)
		if name == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "participant name is required")
		}
		key := strings.ToLower(name)
		if seen[key] {
			return echo.NewHTTPError(http.StatusBadRequest, "participant names must be unique")
		}
		seen[key] = true
		req.Participants[i].Name = name
	}

	now := time.Now().Unix()
	conv, err := s.Store.CreateConversation(ctx, &store.Conversation{
		UID:       shortuuid.New(),
		Topic:     req.Topic,
		OwnerID:   strings.TrimSpace(req.Owner),
		Status:    store.ConversationActive,
		CreatedTs: now,
		UpdatedTs: now,
	})
	if err != nil {
		return httpError(err)
	}

	names := make([]string, 0, len(req.Participants))
	for _, p := range req.Participants {
		if _, err := s.Store.CreateThinker(ctx, &store.Thinker{
			ConversationID: conv.ID,
			Name:           p.Name,
			Bio:            p.Bio,
			Positions:      p.Positions,
			Style:          p.Style,
			CreatedTs:      now,
		}); err != nil {
			return httpError(err)
		}
		names = append(names, p.Name)
		// Warm the knowledge cache; the response never waits on research.
		if _, err := s.Knowledge.GetOrTrigger(ctx, p.Name); err != nil {
			c.Logger().Warnf("knowledge prefetch failed for %s: %v", p.Name, err)
		}
	}

	return c.JSON(http.StatusCreated, convertConversation(conv, names))
}

// ListConversations returns all conversations that are not soft-deleted.
func (s *APIV1Service) ListConversations(c echo.Context) error {
	ctx := c.Request().Context()
	conversations, err := s.Store.ListConversations(ctx, &store.FindConversation{})
	if err != nil {
		return httpError(err)
	}
	out := make([]*conversationResponse, 0, len(conversations))
	for _, conv := range conversations {
		if conv.Status == store.ConversationInactive {
			continue
		}
		thinkers, err := s.Store.ListThinkers(ctx, &store.FindThinker{ConversationID: &conv.ID})
		if err != nil {
			return httpError(err)
		}
		out = append(out, convertConversation(conv, thinkerNames(thinkers)))
	}
	return c.JSON(http.StatusOK, out)
}

// GetConversation returns one conversation with its roster and cost total.
func (s *APIV1Service) GetConversation(c echo.Context) error {
	ctx := c.Request().Context()
	conv, err := s.findLiveConversation(c)
	if err != nil {
		return err
	}
	thinkers, err := s.Store.ListThinkers(ctx, &store.FindThinker{ConversationID: &conv.ID})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, convertConversation(conv, thinkerNames(thinkers)))
}

// DeleteConversation cancels all in-flight responses and soft-deletes the
// conversation. The driver removes its messages.
func (s *APIV1Service) DeleteConversation(c echo.Context) error {
	ctx := c.Request().Context()
	conv, err := s.findLiveConversation(c)
	if err != nil {
		return err
	}
	s.Scheduler.CancelAll(conv.UID)
	if err := s.Store.DeleteConversation(ctx, &store.DeleteConversation{ID: conv.ID}); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// CreateConversationMessage submits a user message over REST. The message is
// persisted and thinker responses start before this returns.
func (s *APIV1Service) CreateConversationMessage(c echo.Context) error {
	ctx := c.Request().Context()
	req := &createMessageRequest{}
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	req.Content = strings.TrimSpace(req.Content)
	if req.Content == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "content is required")
	}
	if req.SenderName == "" {
		req.SenderName = "You"
	}
	msg, err := s.Scheduler.SubmitUserMessage(ctx, c.Param("uid"), req.SenderName, req.Content)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, convertMessage(msg))
}

// ListConversationMessages returns the conversation transcript in sequence
// order. limit selects the most recent N.
func (s *APIV1Service) ListConversationMessages(c echo.Context) error {
	ctx := c.Request().Context()
	conv, err := s.findLiveConversation(c)
	if err != nil {
		return err
	}
	find := &store.FindMessage{ConversationID: &conv.ID}
	if raw := c.QueryParam("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		find.Limit = &limit
	}
	messages, err := s.Store.ListMessages(ctx, find)
	if err != nil {
		return httpError(err)
	}
	out := make([]*messageResponse, 0, len(messages))
	for _, m := range messages {
		out = append(out, convertMessage(m))
	}
	return c.JSON(http.StatusOK, out)
}

// PauseConversation stops new thinker turns. Idempotent.
func (s *APIV1Service) PauseConversation(c echo.Context) error {
	if err := s.Scheduler.Pause(c.Request().Context(), c.Param("uid")); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": string(store.ConversationPaused)})
}

// ResumeConversation reopens a paused conversation and starts any deferred
// responders. Idempotent.
func (s *APIV1Service) ResumeConversation(c echo.Context) error {
	if err := s.Scheduler.Resume(c.Request().Context(), c.Param("uid")); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": string(store.ConversationActive)})
}

// findLiveConversation resolves :uid to a conversation, rejecting unknown and
// soft-deleted ones.
func (s *APIV1Service) findLiveConversation(c echo.Context) (*store.Conversation, error) {
	uid := c.Param("uid")
	conv, err := s.Store.GetConversation(c.Request().Context(), &store.FindConversation{UID: &uid})
	if err != nil {
		return nil, httpError(err)
	}
	if conv == nil {
		return nil, echo.NewHTTPError(http.StatusNotFound, "conversation not found")
	}
	if conv.Status == store.ConversationInactive {
		return nil, echo.NewHTTPError(http.StatusGone, "conversation was deleted")
	}
	return conv, nil
}

func convertConversation(conv *store.Conversation, participants []string) *conversationResponse {
	return &conversationResponse{
		UID:          conv.UID,
		Topic:        conv.Topic,
		Owner:        conv.OwnerID,
		Status:       string(conv.Status),
		Participants: participants,
		CostTotal:    conv.CostTotal,
		CreatedTs:    conv.CreatedTs,
		UpdatedTs:    conv.UpdatedTs,
	}
}

func convertMessage(m *store.Message) *messageResponse {
	return &messageResponse{
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

func thinkerNames(thinkers []*store.Thinker) []string {
	names := make([]string, 0, len(thinkers))
	for _, th := range thinkers {
		names = append(names, th.Name)
	}
	return names
}
