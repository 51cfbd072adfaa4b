// Package v1 exposes the REST and live (WebSocket) API.
package v1

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/jeremymatthewwerner/dining-philosophers-Dec25-sw-factory/ai/llm"
	"github.com/jeremymatthewwerner/dining-philosophers-Dec25-sw-factory/ai/persona"
	"github.com/jeremymatthewwerner/dining-philosophers-Dec25-sw-factory/ai/research"
	"github.com/jeremymatthewwerner/dining-philosophers-Dec25-sw-factory/internal/profile"
	"github.com/jeremymatthewwerner/dining-philosophers-Dec25-sw-factory/server/service/chat"
	"github.com/jeremymatthewwerner/dining-philosophers-Dec25-sw-factory/store"
)

// Knowledge is the research surface the API needs. *research.Researcher
// satisfies it.
type Knowledge interface {
	GetOrTrigger(ctx context.Context, name string) (*store.ResearchRecord, error)
	Status(ctx context.Context, name string) (*store.ResearchRecord, error)
	Refresh(ctx context.Context, name string) (*store.ResearchRecord, error)
	RefreshStale(ctx context.Context) (int, error)
}

type APIV1Service struct {
	Profile   *profile.Profile
	Store     *store.Store
	Scheduler *chat.Scheduler
	Hub       *chat.DeliveryHub
	Knowledge Knowledge

	researcher *research.Researcher
}

// NewAPIV1Service wires the response pipeline: LLM service, persona adapter,
// knowledge researcher, delivery hub, and scheduler.
func NewAPIV1Service(prof *profile.Profile, st *store.Store) *APIV1Service {
	hub := chat.NewDeliveryHub()
	ledger := chat.NewCostLedger()

	var generator chat.Generator
	if prof.IsAIEnabled() {
		service, err := llm.NewService(&llm.Config{
			Provider: prof.LLMProvider,
			Model:    prof.LLMModel,
			APIKey:   prof.LLMAPIKey,
			BaseURL:  prof.LLMBaseURL,
			Timeout:  prof.LLMTimeout,
		})
		if err != nil {
			slog.Warn("failed to initialize LLM service, thinkers will not respond",
				"provider", prof.LLMProvider,
				"error", err,
			)
		} else {
			slog.Info("LLM service initialized",
				"provider", prof.LLMProvider,
				"model", prof.LLMModel,
			)
			generator = persona.NewAdapter(service, persona.DefaultPricing, time.Duration(prof.LLMTimeout)*time.Second)
		}
	} else {
		slog.Info("LLM disabled: no API key configured")
	}
	if generator == nil {
		generator = unavailableGenerator{}
	}

	researcher := research.New(
		st,
		research.NewWikipediaSource(prof.ResearchUserAgent),
		prof.ResearchWorkers,
		time.Duration(prof.ResearchStalenessDays)*24*time.Hour,
	)

	return &APIV1Service{
		Profile:    prof,
		Store:      st,
		Scheduler:  chat.NewScheduler(st, generator, researcher, hub, ledger, prof.Locale),
		Hub:        hub,
		Knowledge:  researcher,
		researcher: researcher,
	}
}

// RegisterRoutes attaches all v1 endpoints to the Echo instance.
func (s *APIV1Service) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/v1")

	g.POST("/conversations", s.CreateConversation)
	g.GET("/conversations", s.ListConversations)
	g.GET("/conversations/:uid", s.GetConversation)
	g.DELETE("/conversations/:uid", s.DeleteConversation)

	g.POST("/conversations/:uid/messages", s.CreateConversationMessage)
	g.GET("/conversations/:uid/messages", s.ListConversationMessages)
	g.POST("/conversations/:uid/pause", s.PauseConversation)
	g.POST("/conversations/:uid/resume", s.ResumeConversation)
	g.GET("/conversations/:uid/live", s.LiveConversation)

	g.GET("/thinkers/knowledge/:name", s.GetThinkerKnowledge)
	g.GET("/thinkers/knowledge/:name/status", s.GetThinkerKnowledgeStatus)
	g.POST("/thinkers/knowledge/:name/refresh", s.RefreshThinkerKnowledge)
	g.POST("/thinkers/knowledge/refresh-stale", s.RefreshStaleKnowledge)
}

// Shutdown drains background work, bounded by ctx.
func (s *APIV1Service) Shutdown(ctx context.Context) {
	if s.researcher != nil {
		s.researcher.Shutdown(ctx)
	}
}

// unavailableGenerator stands in when no LLM is configured: every task fails
// locally with a clear error instead of panicking the pipeline.
type unavailableGenerator struct{}

func (unavailableGenerator) GenerateStreaming(_ context.Context, req *persona.Request, _ func(string)) (*persona.Result, error) {
	return nil, &persona.GenerationError{
		Kind:    persona.KindMalformedOutput,
		Thinker: req.Persona.Name,
		Err:     errors.New("no LLM provider configured"),
	}
}

// httpError maps pipeline errors to HTTP status codes.
func httpError(err error) error {
	var notFound *chat.NotFoundError
	if errors.As(err, &notFound) {
		return echo.NewHTTPError(http.StatusNotFound, notFound.Error())
	}
	var inactive *chat.InactiveConversationError
	if errors.As(err, &inactive) {
		return echo.NewHTTPError(http.StatusGone, inactive.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
