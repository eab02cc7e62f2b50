// Package rules manages follow-up rule definitions. Deactivating or deleting
// a rule cancels its open reminders in the same unit of work.
package rules

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"leadflow_backend/internal/followup/domain"
	"leadflow_backend/internal/followup/lifecycle"
	"leadflow_backend/internal/followup/recommendation"
	"leadflow_backend/internal/followup/repository"
	"leadflow_backend/internal/followup/transport"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/logger"
)

const (
	reasonRuleDeactivated = "rule deactivated"
	reasonRuleDeleted     = "rule deleted"
	msgRuleNotFound       = "rule not found"
)

// Service provides business logic for follow-up rules.
type Service struct {
	store    repository.Store
	renderer *recommendation.TemplateRenderer
	log      *logger.Logger
	now      func() time.Time
}

// New creates a new rule service.
func New(store repository.Store, renderer *recommendation.TemplateRenderer, log *logger.Logger) *Service {
	if renderer == nil {
		renderer = recommendation.NewTemplateRenderer()
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Service{store: store, renderer: renderer, log: log, now: time.Now}
}

// WithClock overrides the service clock.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// List returns all rules of a company, active first, then by name.
func (s *Service) List(ctx context.Context, companyID uuid.UUID) (transport.RuleListResponse, error) {
	rules, err := s.store.Rules(ctx, companyID)
	if err != nil {
		return transport.RuleListResponse{}, fmt.Errorf("list rules: %w", err)
	}
	slices.SortStableFunc(rules, func(a, b domain.FollowUpRule) int {
		if a.Active != b.Active {
			if a.Active {
				return -1
			}
			return 1
		}
		return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
	})
	if rules == nil {
		rules = []domain.FollowUpRule{}
	}
	return transport.RuleListResponse{Items: rules, Total: len(rules)}, nil
}

// GetByID retrieves a rule.
func (s *Service) GetByID(ctx context.Context, companyID, id uuid.UUID) (domain.FollowUpRule, error) {
	rules, err := s.store.Rules(ctx, companyID)
	if err != nil {
		return domain.FollowUpRule{}, fmt.Errorf("get rule: %w", err)
	}
	for _, rule := range rules {
		if rule.ID == id {
			return rule, nil
		}
	}
	return domain.FollowUpRule{}, apperr.NotFound(msgRuleNotFound)
}

// Create stores a new rule. Rules are active unless the request says otherwise.
func (s *Service) Create(ctx context.Context, companyID uuid.UUID, req transport.RuleRequest) (domain.FollowUpRule, error) {
	rule, err := s.fromRequest(req)
	if err != nil {
		return domain.FollowUpRule{}, err
	}
	now := s.now().UTC()
	rule.ID = uuid.New()
	rule.CompanyID = companyID
	rule.Active = req.Active == nil || *req.Active
	rule.CreatedAt = now
	rule.UpdatedAt = now

	err = s.store.Update(ctx, companyID, func(c *repository.Collections) error {
		c.Rules = append(c.Rules, rule)
		return nil
	})
	if err != nil {
		return domain.FollowUpRule{}, fmt.Errorf("create rule: %w", err)
	}

	s.log.Info("follow-up rule created", "ruleId", rule.ID, "companyId", companyID, "name", rule.Name)
	return rule, nil
}

// Update replaces a rule definition. The triggered counter is kept.
func (s *Service) Update(ctx context.Context, companyID, id uuid.UUID, req transport.RuleRequest) (domain.FollowUpRule, error) {
	next, err := s.fromRequest(req)
	if err != nil {
		return domain.FollowUpRule{}, err
	}

	var (
		updated   domain.FollowUpRule
		cancelled int
	)
	err = s.store.Update(ctx, companyID, func(c *repository.Collections) error {
		idx := indexOf(c.Rules, id)
		if idx < 0 {
			return apperr.NotFound(msgRuleNotFound)
		}
		now := s.now().UTC()
		prev := c.Rules[idx]
		next.ID = prev.ID
		next.CompanyID = prev.CompanyID
		next.Triggered = prev.Triggered
		next.CreatedAt = prev.CreatedAt
		next.UpdatedAt = now
		next.Active = prev.Active
		if req.Active != nil {
			next.Active = *req.Active
		}
		c.Rules[idx] = next
		if prev.Active && !next.Active {
			cancelled = lifecycle.CancelForRule(c, id, reasonRuleDeactivated, now)
		}
		updated = next
		return nil
	})
	if err != nil {
		return domain.FollowUpRule{}, wrapStoreErr("update rule", err)
	}

	s.log.Info("follow-up rule updated", "ruleId", id, "companyId", companyID, "cancelledReminders", cancelled)
	return updated, nil
}

// ToggleActive flips the active flag. Deactivation cancels open reminders.
func (s *Service) ToggleActive(ctx context.Context, companyID, id uuid.UUID) (domain.FollowUpRule, error) {
	var (
		updated   domain.FollowUpRule
		cancelled int
	)
	err := s.store.Update(ctx, companyID, func(c *repository.Collections) error {
		idx := indexOf(c.Rules, id)
		if idx < 0 {
			return apperr.NotFound(msgRuleNotFound)
		}
		now := s.now().UTC()
		rule := &c.Rules[idx]
		rule.Active = !rule.Active
		rule.UpdatedAt = now
		if !rule.Active {
			cancelled = lifecycle.CancelForRule(c, id, reasonRuleDeactivated, now)
		}
		updated = *rule
		return nil
	})
	if err != nil {
		return domain.FollowUpRule{}, wrapStoreErr("toggle rule", err)
	}

	s.log.Info("follow-up rule toggled", "ruleId", id, "active", updated.Active, "cancelledReminders", cancelled)
	return updated, nil
}

// Delete removes a rule and cancels its open reminders.
func (s *Service) Delete(ctx context.Context, companyID, id uuid.UUID) (transport.DeleteRuleResponse, error) {
	cancelled := 0
	err := s.store.Update(ctx, companyID, func(c *repository.Collections) error {
		idx := indexOf(c.Rules, id)
		if idx < 0 {
			return apperr.NotFound(msgRuleNotFound)
		}
		c.Rules = append(c.Rules[:idx], c.Rules[idx+1:]...)
		cancelled = lifecycle.CancelForRule(c, id, reasonRuleDeleted, s.now().UTC())
		return nil
	})
	if err != nil {
		return transport.DeleteRuleResponse{}, wrapStoreErr("delete rule", err)
	}

	s.log.Info("follow-up rule deleted", "ruleId", id, "companyId", companyID, "cancelledReminders", cancelled)
	return transport.DeleteRuleResponse{ID: id, CancelledReminders: cancelled}, nil
}

func (s *Service) fromRequest(req transport.RuleRequest) (domain.FollowUpRule, error) {
	rc := req.Reminder
	if domain.Frequency(rc.Frequency) == domain.FrequencyCustom && (rc.CustomIntervalHours == nil || *rc.CustomIntervalHours < 1) {
		return domain.FollowUpRule{}, apperr.Validation("custom frequency requires customIntervalHours")
	}
	if rc.Escalation.Enabled && rc.Escalation.DelayDays < 1 {
		return domain.FollowUpRule{}, apperr.Validation("escalation requires delayDays of at least 1")
	}
	tmpl := domain.MessageTemplate{Subject: rc.Template.Subject, Body: rc.Template.Body}
	if err := s.renderer.Validate(tmpl); err != nil {
		return domain.FollowUpRule{}, apperr.Validation("invalid message template").WithDetails(err.Error())
	}

	var customHours *int
	if domain.Frequency(rc.Frequency) == domain.FrequencyCustom {
		h := *rc.CustomIntervalHours
		customHours = &h
	}

	return domain.FollowUpRule{
		Name:        strings.TrimSpace(req.Name),
		Description: strings.TrimSpace(req.Description),
		Priority:    domain.Priority(req.Priority),
		TriggerType: domain.TriggerType(req.TriggerType),
		Conditions:  toConditions(req.Conditions),
		Reminder: domain.ReminderConfig{
			Method:              domain.Method(rc.Method),
			Frequency:           domain.Frequency(rc.Frequency),
			CustomIntervalHours: customHours,
			Template:            tmpl,
			AIEnabled:           rc.AIEnabled,
			Escalation: domain.EscalationPolicy{
				Enabled:    rc.Escalation.Enabled,
				DelayDays:  rc.Escalation.DelayDays,
				Recipients: trimAll(rc.Escalation.Recipients),
			},
		},
	}, nil
}

func toConditions(req transport.ConditionsRequest) domain.Conditions {
	cond := domain.Conditions{
		MinLeadAgeDays:    req.MinLeadAgeDays,
		MinContactGapDays: req.MinContactGapDays,
		ScoreThreshold:    req.ScoreThreshold,
		ActivityTypes:     trimAll(req.ActivityTypes),
	}
	for _, st := range req.Statuses {
		cond.Statuses = append(cond.Statuses, domain.LeadStatus(st))
	}
	for _, r := range req.Ratings {
		cond.Ratings = append(cond.Ratings, domain.Rating(r))
	}
	return cond
}

func trimAll(in []string) []string {
	var out []string
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func indexOf(rules []domain.FollowUpRule, id uuid.UUID) int {
	for i := range rules {
		if rules[i].ID == id {
			return i
		}
	}
	return -1
}

// wrapStoreErr keeps typed errors raised inside a unit of work intact.
func wrapStoreErr(op string, err error) error {
	if apperr.GetKind(err) != apperr.KindUnknown {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}
