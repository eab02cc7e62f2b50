// Package service exposes reminder queries, reminder commands and the
// analytics views of one company to the transport layer.
package service

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"leadflow_backend/internal/followup/analytics"
	"leadflow_backend/internal/followup/domain"
	"leadflow_backend/internal/followup/engine"
	"leadflow_backend/internal/followup/escalation"
	"leadflow_backend/internal/followup/lifecycle"
	"leadflow_backend/internal/followup/repository"
	"leadflow_backend/internal/followup/transport"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/logger"
)

// Service provides the follow-up read models and reminder commands.
type Service struct {
	store     repository.Store
	manager   *lifecycle.Manager
	engine    *engine.Engine
	scheduler *escalation.Scheduler
	loc       *time.Location
	log       *logger.Logger
}

// New creates a new follow-up service. loc decides what "today" means in
// the summary.
func New(store repository.Store, manager *lifecycle.Manager, eng *engine.Engine, scheduler *escalation.Scheduler, loc *time.Location, log *logger.Logger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Service{store: store, manager: manager, engine: eng, scheduler: scheduler, loc: loc, log: log}
}

// ListReminders returns reminders matching the filter, newest first.
func (s *Service) ListReminders(ctx context.Context, companyID uuid.UUID, req transport.ListRemindersRequest) (transport.ReminderListResponse, error) {
	reminders, err := s.store.Reminders(ctx, companyID)
	if err != nil {
		return transport.ReminderListResponse{}, fmt.Errorf("list reminders: %w", err)
	}

	var ruleID, leadID uuid.UUID
	if req.RuleID != "" {
		if ruleID, err = uuid.Parse(req.RuleID); err != nil {
			return transport.ReminderListResponse{}, apperr.BadRequest("invalid ruleId")
		}
	}
	if req.LeadID != "" {
		if leadID, err = uuid.Parse(req.LeadID); err != nil {
			return transport.ReminderListResponse{}, apperr.BadRequest("invalid leadId")
		}
	}

	items := make([]domain.Reminder, 0, len(reminders))
	for _, r := range reminders {
		if req.Status != "" && r.Status != domain.Status(req.Status) {
			continue
		}
		if req.Method != "" && r.Method != domain.Method(req.Method) {
			continue
		}
		if ruleID != uuid.Nil && r.RuleID != ruleID {
			continue
		}
		if leadID != uuid.Nil && r.LeadID != leadID {
			continue
		}
		items = append(items, r)
	}
	slices.SortStableFunc(items, func(a, b domain.Reminder) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return transport.ReminderListResponse{Items: items, Total: len(items)}, nil
}

// GetReminder retrieves one reminder.
func (s *Service) GetReminder(ctx context.Context, companyID, id uuid.UUID) (domain.Reminder, error) {
	reminders, err := s.store.Reminders(ctx, companyID)
	if err != nil {
		return domain.Reminder{}, fmt.Errorf("get reminder: %w", err)
	}
	for _, r := range reminders {
		if r.ID == id {
			return r, nil
		}
	}
	return domain.Reminder{}, apperr.NotFound("reminder not found")
}

func (s *Service) Dispatch(ctx context.Context, companyID, id uuid.UUID) (domain.Reminder, error) {
	return s.manager.Dispatch(ctx, companyID, id)
}

func (s *Service) Complete(ctx context.Context, companyID, id uuid.UUID) (domain.Reminder, error) {
	return s.manager.Complete(ctx, companyID, id)
}

func (s *Service) Snooze(ctx context.Context, companyID, id uuid.UUID, req transport.SnoozeRequest) (domain.Reminder, error) {
	return s.manager.Snooze(ctx, companyID, id, req.Days)
}

func (s *Service) Cancel(ctx context.Context, companyID, id uuid.UUID, req transport.CancelRequest) (domain.Reminder, error) {
	return s.manager.Cancel(ctx, companyID, id, req.Reason)
}

func (s *Service) Escalate(ctx context.Context, companyID, id uuid.UUID) (domain.Reminder, error) {
	return s.manager.Escalate(ctx, companyID, id)
}

func (s *Service) RecordInteraction(ctx context.Context, companyID, id uuid.UUID, req transport.InteractionRequest) (domain.Reminder, error) {
	return s.manager.RecordInteraction(ctx, companyID, id, domain.InteractionKind(req.Kind))
}

// UpsertLead stores a lead pushed by the CRM and evaluates the rules for
// it. A missing createdAt keeps the stored value, or now for a new lead.
func (s *Service) UpsertLead(ctx context.Context, companyID, id uuid.UUID, req transport.LeadRequest) (transport.LeadSyncResponse, error) {
	lead := domain.Lead{
		ID:               id,
		CompanyID:        companyID,
		Name:             req.Name,
		Email:            req.Email,
		Phone:            req.Phone,
		LastContactAt:    req.LastContactAt,
		NextFollowUpAt:   req.NextFollowUpAt,
		Status:           domain.LeadStatus(req.Status),
		Rating:           domain.Rating(req.Rating),
		Score:            req.Score,
		AssigneeID:       req.AssigneeID,
		RecentActivities: req.RecentActivities,
	}
	if lead.Status == "" {
		lead.Status = domain.LeadStatusNew
	}
	if req.CreatedAt != nil {
		lead.CreatedAt = req.CreatedAt.UTC()
	} else {
		lead.CreatedAt = s.manager.Now()
		leads, err := s.store.Leads(ctx, companyID)
		if err != nil {
			return transport.LeadSyncResponse{}, fmt.Errorf("load leads: %w", err)
		}
		for _, existing := range leads {
			if existing.ID == id {
				lead.CreatedAt = existing.CreatedAt
				break
			}
		}
	}

	report, err := s.engine.SyncLead(ctx, companyID, lead)
	if err != nil {
		return transport.LeadSyncResponse{}, err
	}
	s.log.WithContext(ctx).WithCompany(companyID.String()).Info("lead synced", "leadId", id, "created", report.Created)
	return transport.LeadSyncResponse{Lead: lead, Matched: report.Matched, Created: report.Created}, nil
}

// DeleteLead removes a lead and cancels its open reminders.
func (s *Service) DeleteLead(ctx context.Context, companyID, id uuid.UUID) (transport.DeleteLeadResponse, error) {
	cancelled, err := s.engine.DropLead(ctx, companyID, id)
	if err != nil {
		return transport.DeleteLeadResponse{}, err
	}
	return transport.DeleteLeadResponse{ID: id, CancelledReminders: cancelled}, nil
}

// Summary computes the dashboard summary from current state.
func (s *Service) Summary(ctx context.Context, companyID uuid.UUID) (analytics.Summary, error) {
	snap, err := s.store.Snapshot(ctx, companyID)
	if err != nil {
		return analytics.Summary{}, fmt.Errorf("load analytics state: %w", err)
	}
	return analytics.Summarize(snap.Rules, snap.Reminders, s.manager.Now(), s.loc), nil
}

// RuleEffectiveness lists per-rule effectiveness.
func (s *Service) RuleEffectiveness(ctx context.Context, companyID uuid.UUID) (transport.RuleEffectivenessResponse, error) {
	snap, err := s.store.Snapshot(ctx, companyID)
	if err != nil {
		return transport.RuleEffectivenessResponse{}, fmt.Errorf("load analytics state: %w", err)
	}
	return transport.RuleEffectivenessResponse{Items: analytics.RuleEffectiveness(snap.Rules, snap.Reminders)}, nil
}

// Aging classifies every lead of the company.
func (s *Service) Aging(ctx context.Context, companyID uuid.UUID) (analytics.AgingReport, error) {
	leads, err := s.store.Leads(ctx, companyID)
	if err != nil {
		return analytics.AgingReport{}, fmt.Errorf("load leads: %w", err)
	}
	return analytics.Aging(leads, s.manager.Buckets(), s.manager.Now()), nil
}

// Sweep runs one full follow-up pass for a company: escalation and wake-up,
// rule evaluation, then dispatch of due reminders.
func (s *Service) Sweep(ctx context.Context, companyID uuid.UUID) (transport.SweepResponse, error) {
	now := s.manager.Now()
	swept, err := s.scheduler.Sweep(ctx, companyID, now)
	if err != nil {
		return transport.SweepResponse{}, err
	}
	evaluated, err := s.engine.EvaluateCompany(ctx, companyID)
	if err != nil {
		return transport.SweepResponse{}, err
	}
	dispatched, err := s.engine.DispatchDue(ctx, companyID, s.manager.Now())
	if err != nil {
		return transport.SweepResponse{}, err
	}

	s.log.Info("manual follow-up sweep finished", "companyId", companyID,
		"escalated", len(swept.Escalated), "created", evaluated.Created, "dispatched", dispatched.Sent)
	return transport.SweepResponse{
		Escalated:  len(swept.Escalated),
		Woken:      len(swept.Woken),
		Evaluated:  evaluated.Evaluated,
		Created:    evaluated.Created,
		Dispatched: dispatched.Sent,
		RanAt:      now,
	}, nil
}
