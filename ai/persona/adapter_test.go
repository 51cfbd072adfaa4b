package persona

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremymatthewwerner/dining-philosophers-Dec25-sw-factory/ai/llm"
)

// stubLLM scripts Chat responses per call and streams canned chunks.
type stubLLM struct {
	mu      sync.Mutex
	calls   int
	errs    []error // error for call i; nil or out of range means success
	content string
	stats   *llm.CallStats

	chunks    []string
	streamErr error
}

func (s *stubLLM) Chat(_ context.Context, _ []llm.Message) (string, *llm.CallStats, error) {
	s.mu.Lock()
	i := s.calls
	s.calls++
	s.mu.Unlock()
	if i < len(s.errs) && s.errs[i] != nil {
		return "", nil, s.errs[i]
	}
	return s.content, s.stats, nil
}

func (s *stubLLM) ChatStream(_ context.Context, _ []llm.Message) (<-chan string, <-chan *llm.CallStats, <-chan error) {
	contentCh := make(chan string)
	statsCh := make(chan *llm.CallStats, 1)
	errCh := make(chan error, 1)
	go func() {
		if s.streamErr != nil {
			// Leave content and stats open so the caller observes the error.
			errCh <- s.streamErr
			return
		}
		for _, c := range s.chunks {
			contentCh <- c
		}
		if s.stats != nil {
			statsCh <- s.stats
		}
		close(contentCh)
		close(statsCh)
		close(errCh)
	}()
	return contentCh, statsCh, errCh
}

func (s *stubLLM) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func testRequest() *Request {
	return &Request{
		Persona: &Persona{Name: "Hypatia"},
		Topic:   "mathematics",
	}
}

func TestGenerateSuccess(t *testing.T) {
	svc := &stubLLM{
		content: "Geometry is the purest of arts.",
		stats:   &llm.CallStats{PromptTokens: 100, CompletionTokens: 50},
	}
	a := NewAdapter(svc, Pricing{InputPerMTok: 3.0, OutputPerMTok: 15.0}, 0)

	result, err := a.Generate(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "Geometry is the purest of arts.", result.Content)
	assert.InDelta(t, 100*3.0/1e6+50*15.0/1e6, result.Cost, 1e-12)
}

func TestGenerateRetriesTransientOnce(t *testing.T) {
	svc := &stubLLM{
		errs:    []error{errors.New("read tcp: connection reset by peer")},
		content: "Second attempt.",
	}
	a := NewAdapter(svc, DefaultPricing, 0)

	result, err := a.Generate(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "Second attempt.", result.Content)
	assert.Equal(t, 2, svc.callCount())
}

func TestGenerateTransientFailsAfterRetry(t *testing.T) {
	transient := errors.New("request timeout")
	svc := &stubLLM{errs: []error{transient, transient}}
	a := NewAdapter(svc, DefaultPricing, 0)

	_, err := a.Generate(context.Background(), testRequest())
	require.Error(t, err)
	genErr := &GenerationError{}
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, KindTimeout, genErr.Kind)
	assert.Equal(t, 2, svc.callCount())
}

func TestGenerateQuotaNotRetried(t *testing.T) {
	svc := &stubLLM{errs: []error{errors.New("your credit balance is too low")}}
	a := NewAdapter(svc, DefaultPricing, 0)

	_, err := a.Generate(context.Background(), testRequest())
	require.Error(t, err)
	genErr := &GenerationError{}
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, KindQuotaExceeded, genErr.Kind)
	assert.Equal(t, "Hypatia", genErr.Thinker)
	assert.Equal(t, 1, svc.callCount())
}

func TestGenerateEmptyContentIsMalformed(t *testing.T) {
	svc := &stubLLM{content: ""}
	a := NewAdapter(svc, DefaultPricing, 0)

	_, err := a.Generate(context.Background(), testRequest())
	genErr := &GenerationError{}
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, KindMalformedOutput, genErr.Kind)
}

func TestGenerateStreamingAccumulates(t *testing.T) {
	svc := &stubLLM{
		chunks: []string{"Consider ", "the ", "conic sections."},
		stats:  &llm.CallStats{PromptTokens: 10, CompletionTokens: 5},
	}
	a := NewAdapter(svc, Pricing{InputPerMTok: 1.0, OutputPerMTok: 1.0}, 0)

	var deltas []string
	result, err := a.GenerateStreaming(context.Background(), testRequest(), func(text string) {
		deltas = append(deltas, text)
	})
	require.NoError(t, err)
	assert.Equal(t, "Consider the conic sections.", result.Content)
	assert.InDelta(t, 15.0/1e6, result.Cost, 1e-12)

	// onDelta always sees the accumulated draft so far.
	require.Len(t, deltas, 3)
	assert.Equal(t, "Consider ", deltas[0])
	assert.Equal(t, "Consider the conic sections.", deltas[2])
}

func TestGenerateStreamingErrorClassified(t *testing.T) {
	svc := &stubLLM{streamErr: errors.New("insufficient_quota")}
	a := NewAdapter(svc, DefaultPricing, 0)

	_, err := a.GenerateStreaming(context.Background(), testRequest(), nil)
	genErr := &GenerationError{}
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, KindQuotaExceeded, genErr.Kind)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		msg  string
		want GenerationErrorKind
	}{
		{"your credit balance is too low", KindQuotaExceeded},
		{"error 429: insufficient_quota", KindQuotaExceeded},
		{"Incorrect API key provided", KindQuotaExceeded},
		{"net/http: request timeout", KindTimeout},
		{"context deadline exceeded (client)", KindTimeout},
		{"read: connection reset by peer", KindTimeout},
		{"json: cannot unmarshal", KindMalformedOutput},
	}
	for _, tc := range tests {
		got := classify("X", errors.New(tc.msg))
		assert.Equal(t, tc.want, got.Kind, "message %q", tc.msg)
	}
	assert.Equal(t, KindTimeout, classify("X", context.DeadlineExceeded).Kind)
}

func TestRetryable(t *testing.T) {
	assert.True(t, (&GenerationError{Kind: KindTimeout}).Retryable())
	assert.False(t, (&GenerationError{Kind: KindQuotaExceeded}).Retryable())
	assert.False(t, (&GenerationError{Kind: KindMalformedOutput}).Retryable())
}
