package persona

import (
	"context"
	"log/slog"
	"time"

	"github.com/jeremymatthewwerner/dining-philosophers-Dec25-sw-factory/ai/llm"
)

// Pricing converts token usage into a monetary cost in USD.
type Pricing struct {
	InputPerMTok  float64
	OutputPerMTok float64
}

// DefaultPricing is a conservative default when the profile does not pin
// per-model rates.
var DefaultPricing = Pricing{InputPerMTok: 3.0, OutputPerMTok: 15.0}

func (p Pricing) Cost(stats *llm.CallStats) float64 {
	if stats == nil {
		return 0
	}
	return float64(stats.PromptTokens)*p.InputPerMTok/1e6 +
		float64(stats.CompletionTokens)*p.OutputPerMTok/1e6
}

// Adapter turns a persona configuration plus conversation history into LLM
// generation requests. One Adapter serves all personas.
type Adapter struct {
	llm     llm.Service
	pricing Pricing
	timeout time.Duration
}

// NewAdapter creates an Adapter on top of an LLM service. timeout bounds a
// single generation attempt; zero means 45s.
func NewAdapter(service llm.Service, pricing Pricing, timeout time.Duration) *Adapter {
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	return &Adapter{llm: service, pricing: pricing, timeout: timeout}
}

// Generate produces the persona's full reply in one call.
// A transient failure is retried once before the error is returned;
// quota/auth and malformed-output failures are returned immediately.
func (a *Adapter) Generate(ctx context.Context, req *Request) (*Result, error) {
	result, err := a.generateOnce(ctx, req)
	if err == nil {
		return result, nil
	}
	genErr, ok := err.(*GenerationError)
	if !ok || !genErr.Retryable() || ctx.Err() != nil {
		return nil, err
	}
	slog.Warn("persona: transient generation failure, retrying once",
		"thinker", req.Persona.Name,
		"error", err,
	)
	return a.generateOnce(ctx, req)
}

func (a *Adapter) generateOnce(ctx context.Context, req *Request) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	content, stats, err := a.llm.Chat(ctx, buildMessages(req))
	if err != nil {
		return nil, classify(req.Persona.Name, err)
	}
	if content == "" {
		return nil, &GenerationError{Kind: KindMalformedOutput, Thinker: req.Persona.Name, Err: errEmptyContent}
	}
	return &Result{Content: content, Cost: a.pricing.Cost(stats)}, nil
}

// GenerateStreaming produces the persona's reply while invoking onDelta for
// each content chunk as it arrives. onDelta is called from the adapter's
// goroutine; callers throttle/coalesce on their side. The accumulated content
// and cost are returned once the stream completes.
//
// Streaming attempts are not retried: by the time a transient failure shows
// up, partial preview text may already have been surfaced.
func (a *Adapter) GenerateStreaming(ctx context.Context, req *Request, onDelta func(text string)) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	contentChan, statsChan, errChan := a.llm.ChatStream(ctx, buildMessages(req))

	var full []byte
	var stats *llm.CallStats
	for contentChan != nil || statsChan != nil {
		select {
		case delta, ok := <-contentChan:
			if !ok {
				contentChan = nil
				continue
			}
			full = append(full, delta...)
			if onDelta != nil {
				onDelta(string(full))
			}
		case s, ok := <-statsChan:
			if !ok {
				statsChan = nil
				continue
			}
			stats = s
		case err, ok := <-errChan:
			if ok && err != nil {
				return nil, classify(req.Persona.Name, err)
			}
			errChan = nil
		case <-ctx.Done():
			return nil, classify(req.Persona.Name, ctx.Err())
		}
	}

	if len(full) == 0 {
		return nil, &GenerationError{Kind: KindMalformedOutput, Thinker: req.Persona.Name, Err: errEmptyContent}
	}
	return &Result{Content: string(full), Cost: a.pricing.Cost(stats)}, nil
}
