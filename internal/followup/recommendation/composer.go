package recommendation

import (
	"context"
	"time"

	"leadflow_backend/internal/followup/domain"
	"leadflow_backend/platform/logger"
	"leadflow_backend/platform/telemetry"
)

// DefaultTimeout bounds a generator call when none is configured.
const DefaultTimeout = 8 * time.Second

// Composition is the content a new reminder is created with.
type Composition struct {
	Content  domain.Content
	Insight  domain.Insight
	Degraded bool
	SendAt   *time.Time
}

// Composer drafts reminder content with a bounded generator call and a
// template fallback. It never fails.
type Composer struct {
	generator Generator
	renderer  *TemplateRenderer
	timeout   time.Duration
	log       *logger.Logger
	metrics   *telemetry.Metrics
}

// NewComposer creates a composer. generator may be nil.
func NewComposer(generator Generator, timeout time.Duration, log *logger.Logger, metrics *telemetry.Metrics) *Composer {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Composer{
		generator: generator,
		renderer:  NewTemplateRenderer(),
		timeout:   timeout,
		log:       log,
		metrics:   metrics,
	}
}

// Renderer exposes the template renderer for validation.
func (c *Composer) Renderer() *TemplateRenderer {
	return c.renderer
}

// Compose returns generated content when aiEnabled and the generator
// answers in time, else the rendered template marked as degraded when a
// generator call was attempted.
func (c *Composer) Compose(ctx context.Context, req Request, aiEnabled bool) Composition {
	if aiEnabled && c.generator != nil {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		rec, err := c.generator.Generate(callCtx, req)
		cancel()
		if err == nil {
			return fromRecommendation(rec, req)
		}
		c.log.WithContext(ctx).Warn("recommendation failed, using template",
			"leadId", req.Lead.ID, "rule", req.RuleName, "error", err)
		c.metrics.ContentDegraded(ctx)
		comp := c.fallback(ctx, req)
		comp.Degraded = true
		return comp
	}
	return c.fallback(ctx, req)
}

func fromRecommendation(rec Recommendation, req Request) Composition {
	subject := rec.Subject
	if subject == "" {
		subject = req.Template.Subject
	}
	return Composition{
		Content: domain.Content{Subject: subject, Body: rec.Body, AIGenerated: true},
		Insight: domain.Insight{
			SuccessProbability: rec.SuccessProbability,
			RecommendedAction:  rec.RecommendedAction,
		},
		SendAt: rec.SendAt,
	}
}

func (c *Composer) fallback(ctx context.Context, req Request) Composition {
	content, err := c.renderer.Render(req)
	if err != nil {
		c.log.WithContext(ctx).Warn("template render failed, using raw template",
			"leadId", req.Lead.ID, "rule", req.RuleName, "error", err)
		content = domain.Content{Subject: req.Template.Subject, Body: req.Template.Body}
	}
	return Composition{Content: content, Insight: heuristicInsight(req)}
}

// heuristicInsight estimates an outcome from the lead score and aging urgency.
func heuristicInsight(req Request) domain.Insight {
	p := float64(req.Lead.Score) / 100
	switch req.Classification.Bucket.Urgency {
	case domain.UrgencyHigh:
		p *= 0.8
	case domain.UrgencyCritical:
		p *= 0.5
	}
	action := "email"
	switch req.Method {
	case domain.MethodSMS:
		action = "sms"
	case domain.MethodTask, domain.MethodAll:
		action = "call"
	}
	return domain.Insight{SuccessProbability: clamp01(p), RecommendedAction: action}
}
