package recommendation

import (
	"fmt"
	"strings"

	"github.com/osteele/liquid"

	"leadflow_backend/internal/followup/domain"
)

const (
	defaultSubject = "Follow up with {{ lead.name | default: \"your lead\" }}"
	defaultBody    = "It has been {{ aging.days_since_contact }} days since the last contact with {{ lead.name | default: \"this lead\" }} ({{ aging.bucket }})."
)

// TemplateRenderer renders rule templates with Liquid.
type TemplateRenderer struct {
	engine *liquid.Engine
}

// NewTemplateRenderer creates a renderer with the follow-up filters registered.
func NewTemplateRenderer() *TemplateRenderer {
	engine := liquid.NewEngine()
	engine.RegisterFilter("default", func(value any, fallback string) any {
		if value == nil {
			return fallback
		}
		if s, ok := value.(string); ok && strings.TrimSpace(s) == "" {
			return fallback
		}
		return value
	})
	return &TemplateRenderer{engine: engine}
}

// Validate parses tmpl and reports syntax errors.
func (r *TemplateRenderer) Validate(tmpl domain.MessageTemplate) error {
	if _, err := r.engine.ParseString(tmpl.Subject); err != nil {
		return fmt.Errorf("subject template: %w", err)
	}
	if _, err := r.engine.ParseString(tmpl.Body); err != nil {
		return fmt.Errorf("body template: %w", err)
	}
	return nil
}

// Render fills the request's template. Empty templates use a stock text.
func (r *TemplateRenderer) Render(req Request) (domain.Content, error) {
	subjectTpl := req.Template.Subject
	if strings.TrimSpace(subjectTpl) == "" {
		subjectTpl = defaultSubject
	}
	bodyTpl := req.Template.Body
	if strings.TrimSpace(bodyTpl) == "" {
		bodyTpl = defaultBody
	}

	bindings := Bindings(req)
	subject, err := r.engine.ParseAndRenderString(subjectTpl, bindings)
	if err != nil {
		return domain.Content{}, fmt.Errorf("render subject: %w", err)
	}
	body, err := r.engine.ParseAndRenderString(bodyTpl, bindings)
	if err != nil {
		return domain.Content{}, fmt.Errorf("render body: %w", err)
	}

	return domain.Content{
		Subject: strings.TrimSpace(subject),
		Body:    strings.TrimSpace(body),
	}, nil
}

// Bindings exposes the request to templates.
func Bindings(req Request) liquid.Bindings {
	lead := req.Lead
	return liquid.Bindings{
		"lead": map[string]any{
			"name":     lead.Name,
			"email":    lead.Email,
			"phone":    lead.Phone,
			"status":   string(lead.Status),
			"rating":   string(lead.Rating),
			"score":    lead.Score,
			"assignee": lead.AssigneeID,
		},
		"aging": map[string]any{
			"bucket":             req.Classification.Bucket.Name,
			"urgency":            string(req.Classification.Bucket.Urgency),
			"days_since_contact": req.Classification.DaysSinceContact,
			"lead_age_days":      req.Classification.LeadAgeDays,
			"overdue":            req.Classification.FollowUpOverdue,
		},
		"rule": map[string]any{
			"name":     req.RuleName,
			"priority": string(req.Priority),
			"method":   string(req.Method),
		},
	}
}
