package persona

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// GenerationErrorKind classifies persona generation failures.
type GenerationErrorKind string

const (
	// KindQuotaExceeded covers billing, credit, and auth failures. Fatal to
	// the task; retrying cannot help.
	KindQuotaExceeded GenerationErrorKind = "quota_exceeded"
	// KindTimeout covers deadline and transient transport failures.
	// Retried once internally before failing the task.
	KindTimeout GenerationErrorKind = "timeout"
	// KindMalformedOutput covers empty or unusable model output.
	KindMalformedOutput GenerationErrorKind = "malformed_output"
)

// GenerationError is a persona generation failure with a classification that
// decides retry behavior. It is always local to the thinker that hit it.
type GenerationError struct {
	Kind    GenerationErrorKind
	Thinker string
	Err     error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed for %s (%s): %v", e.Thinker, e.Kind, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// Retryable reports whether one internal retry is worth attempting.
func (e *GenerationError) Retryable() bool {
	return e.Kind == KindTimeout
}

var errEmptyContent = errors.New("model returned empty content")

var quotaKeywords = []string{
	"credit balance",
	"billing",
	"quota",
	"insufficient_quota",
	"payment",
	"invalid api key",
	"incorrect api key",
	"unauthorized",
}

// classify maps a raw provider error to a GenerationError for the named
// thinker. Billing/auth failures are distinguished from transient ones by
// message keywords, the same signals the provider SDKs surface.
func classify(thinker string, err error) *GenerationError {
	if errors.Is(err, context.DeadlineExceeded) {
		return &GenerationError{Kind: KindTimeout, Thinker: thinker, Err: err}
	}
	msg := strings.ToLower(err.Error())
	for _, kw := range quotaKeywords {
		if strings.Contains(msg, kw) {
			return &GenerationError{Kind: KindQuotaExceeded, Thinker: thinker, Err: err}
		}
	}
	if strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline") ||
		strings.Contains(msg, "connection reset") || strings.Contains(msg, "temporarily") {
		return &GenerationError{Kind: KindTimeout, Thinker: thinker, Err: err}
	}
	return &GenerationError{Kind: KindMalformedOutput, Thinker: thinker, Err: err}
}
