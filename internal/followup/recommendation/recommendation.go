// Package recommendation drafts reminder content. A generator backed by a
// language model is tried first; the rule's Liquid template is the
// deterministic fallback.
package recommendation

import (
	"context"
	"errors"
	"time"

	"leadflow_backend/internal/followup/domain"
)

// ErrDisabled is returned by generators that are not configured.
var ErrDisabled = errors.New("recommendation generator disabled")

// Request is the context handed to a generator.
type Request struct {
	Lead           domain.Lead
	RuleName       string
	Priority       domain.Priority
	Method         domain.Method
	Template       domain.MessageTemplate
	Classification domain.Classification
	Now            time.Time
}

// Recommendation is a generated message and insight.
type Recommendation struct {
	Subject            string
	Body               string
	SuccessProbability float64
	RecommendedAction  string
	// SendAt is an optional suggested dispatch time.
	SendAt *time.Time
}

// Generator produces a recommendation. It may be slow or fail.
type Generator interface {
	Generate(ctx context.Context, req Request) (Recommendation, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, req Request) (Recommendation, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, req Request) (Recommendation, error) {
	return f(ctx, req)
}
