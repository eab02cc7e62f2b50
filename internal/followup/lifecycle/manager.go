// Package lifecycle owns reminder state: creation from matched triggers
// and every status transition.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"leadflow_backend/internal/events"
	"leadflow_backend/internal/followup/domain"
	"leadflow_backend/internal/followup/matcher"
	"leadflow_backend/internal/followup/recommendation"
	"leadflow_backend/internal/followup/repository"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/distlock"
	"leadflow_backend/platform/logger"
	"leadflow_backend/platform/telemetry"
)

// Sender delivers a reminder message over its channel.
type Sender interface {
	Send(ctx context.Context, msg domain.Message) error
}

// DefaultLockTTL bounds how long a pair lock may be held.
const DefaultLockTTL = 30 * time.Second

// errSkip aborts a unit of work without surfacing an error.
var errSkip = errors.New("skip")

// Options configures a Manager. Store and Composer are required.
type Options struct {
	Store    repository.Store
	Locker   distlock.Locker
	LockTTL  time.Duration
	Composer *recommendation.Composer
	Sender   Sender
	Bus      events.Bus
	Metrics  *telemetry.Metrics
	Buckets  []domain.AgingBucket
	Log      *logger.Logger
	Now      func() time.Time
}

// Manager applies reminder creation and transitions through the store.
type Manager struct {
	store    repository.Store
	locker   distlock.Locker
	lockTTL  time.Duration
	composer *recommendation.Composer
	sender   Sender
	bus      events.Bus
	metrics  *telemetry.Metrics
	buckets  []domain.AgingBucket
	log      *logger.Logger
	now      func() time.Time
}

// New creates a Manager.
func New(opts Options) *Manager {
	m := &Manager{
		store:    opts.Store,
		locker:   opts.Locker,
		lockTTL:  opts.LockTTL,
		composer: opts.Composer,
		sender:   opts.Sender,
		bus:      opts.Bus,
		metrics:  opts.Metrics,
		buckets:  opts.Buckets,
		log:      opts.Log,
		now:      opts.Now,
	}
	if m.locker == nil {
		m.locker = distlock.NewLocalLocker()
	}
	if m.lockTTL <= 0 {
		m.lockTTL = DefaultLockTTL
	}
	if m.composer == nil {
		m.composer = recommendation.NewComposer(nil, 0, opts.Log, opts.Metrics)
	}
	if len(m.buckets) == 0 {
		m.buckets = domain.DefaultBuckets()
	}
	if m.log == nil {
		m.log = logger.Discard()
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m
}

// Now returns the manager's clock reading in UTC.
func (m *Manager) Now() time.Time {
	return m.now().UTC()
}

// Buckets returns the aging table in use.
func (m *Manager) Buckets() []domain.AgingBucket {
	return m.buckets
}

// TriggerOutcome reports what ProcessTrigger did.
type TriggerOutcome struct {
	Created  bool
	Reason   matcher.Reason
	Reminder domain.Reminder
}

// ProcessTrigger turns a matched trigger into a pending reminder and bumps
// the rule's triggered counter in the same unit of work. The pair lock
// keeps concurrent workers apart; the match is re-checked against fresh
// state so a stale trigger never creates a second open reminder.
func (m *Manager) ProcessTrigger(ctx context.Context, companyID uuid.UUID, trig matcher.Trigger, lead domain.Lead) (TriggerOutcome, error) {
	log := m.log.WithContext(ctx).With("companyId", companyID, "ruleId", trig.RuleID, "leadId", trig.LeadID)
	pair := domain.Pair{RuleID: trig.RuleID, LeadID: trig.LeadID}

	lease, ok, err := m.locker.TryAcquire(ctx, "followup:"+companyID.String()+":"+pair.Key(), m.lockTTL)
	if err != nil {
		return TriggerOutcome{}, apperr.Unavailable("pair lock unavailable", err)
	}
	if !ok {
		log.Debug("pair busy, skipping trigger")
		return TriggerOutcome{Reason: matcher.ReasonDuplicateOpen}, nil
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			log.Warn("release pair lock failed", "error", err)
		}
	}()

	// Skip composing when an open reminder already exists for the pair.
	existing, err := m.store.Reminders(ctx, companyID)
	if err != nil {
		return TriggerOutcome{}, apperr.Unavailable("load reminders", err)
	}
	if matcher.HasOpenReminder(existing, pair) {
		return TriggerOutcome{Reason: matcher.ReasonDuplicateOpen}, nil
	}

	now := m.Now()
	comp := m.composer.Compose(ctx, recommendation.Request{
		Lead:           lead,
		RuleName:       trig.RuleName,
		Priority:       trig.Priority,
		Method:         trig.Method,
		Template:       trig.Template,
		Classification: trig.Classification,
		Now:            now,
	}, trig.AIEnabled)

	outcome := TriggerOutcome{}
	err = m.store.Update(ctx, companyID, func(c *repository.Collections) error {
		ruleIdx := findRule(c.Rules, trig.RuleID)
		if ruleIdx < 0 {
			outcome.Reason = matcher.ReasonRuleInactive
			return errSkip
		}
		freshLead := lead
		if i := findLead(c.Leads, trig.LeadID); i >= 0 {
			freshLead = c.Leads[i]
		}

		res := matcher.Evaluate(freshLead, c.Rules[ruleIdx], c.Reminders, m.buckets, now)
		if !res.Matched() {
			outcome.Reason = res.Reason
			return errSkip
		}

		scheduled := now
		if comp.SendAt != nil && comp.SendAt.After(now) {
			scheduled = *comp.SendAt
		}
		reminder := domain.Reminder{
			ID:          uuid.New(),
			CompanyID:   companyID,
			RuleID:      trig.RuleID,
			LeadID:      trig.LeadID,
			Method:      trig.Method,
			Priority:    trig.Priority,
			Status:      domain.StatusPending,
			ScheduledAt: scheduled,
			Content:     comp.Content,
			Insight:     comp.Insight,
			Degraded:    comp.Degraded,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		c.Reminders = append(c.Reminders, reminder)
		c.Rules[ruleIdx].Triggered++
		c.Rules[ruleIdx].UpdatedAt = now

		outcome = TriggerOutcome{Created: true, Reason: matcher.ReasonMatched, Reminder: reminder}
		return nil
	})
	if errors.Is(err, errSkip) {
		log.Debug("trigger skipped", "reason", outcome.Reason)
		return outcome, nil
	}
	if err != nil {
		return TriggerOutcome{}, fmt.Errorf("create reminder: %w", err)
	}

	log.Info("reminder created", "reminderId", outcome.Reminder.ID, "method", outcome.Reminder.Method, "degraded", outcome.Reminder.Degraded)
	m.metrics.ReminderCreated(ctx, string(outcome.Reminder.Method))
	m.publish(ctx, events.ReminderCreated{
		BaseEvent:   events.NewBaseEventAt(now),
		CompanyID:   companyID,
		ReminderID:  outcome.Reminder.ID,
		RuleID:      outcome.Reminder.RuleID,
		LeadID:      outcome.Reminder.LeadID,
		Method:      outcome.Reminder.Method,
		ScheduledAt: outcome.Reminder.ScheduledAt,
		Degraded:    outcome.Reminder.Degraded,
	})
	return outcome, nil
}

// Dispatch sends a pending reminder and marks it sent. A failed send
// leaves the reminder pending and returns a retryable error. Concurrent
// dispatches of the same reminder are rejected with a conflict. When the
// reminder is closed while the message is in flight, the closing status is
// kept and SentAt records the delivery.
func (m *Manager) Dispatch(ctx context.Context, companyID, reminderID uuid.UUID) (domain.Reminder, error) {
	log := m.log.WithContext(ctx).WithCompany(companyID.String()).With("reminderId", reminderID)

	lease, ok, err := m.locker.TryAcquire(ctx, "followup:dispatch:"+reminderID.String(), m.lockTTL)
	if err != nil {
		return domain.Reminder{}, apperr.Unavailable("dispatch lock unavailable", err)
	}
	if !ok {
		return domain.Reminder{}, apperr.Conflict("reminder dispatch already in progress")
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			log.Warn("release dispatch lock failed", "error", err)
		}
	}()

	snap, err := m.store.Snapshot(ctx, companyID)
	if err != nil {
		return domain.Reminder{}, fmt.Errorf("load reminders: %w", err)
	}
	idx := findReminder(snap.Reminders, reminderID)
	if idx < 0 {
		return domain.Reminder{}, apperr.NotFound("reminder not found")
	}
	reminder := snap.Reminders[idx]
	if err := domain.ValidateTransition(reminder.Status, domain.StatusSent); err != nil {
		return domain.Reminder{}, conflict(err)
	}
	if m.sender == nil {
		return domain.Reminder{}, apperr.Unavailable("no dispatch channel configured", nil)
	}

	var contact domain.Contact
	if i := findLead(snap.Leads, reminder.LeadID); i >= 0 {
		contact = domain.ContactOf(snap.Leads[i])
	}
	msg := domain.Message{
		CompanyID:  companyID,
		ReminderID: reminder.ID,
		LeadID:     reminder.LeadID,
		Method:     reminder.Method,
		Recipient:  contact.RecipientFor(reminder.Method),
		Contact:    contact,
		Subject:    reminder.Content.Subject,
		Body:       reminder.Content.Body,
	}
	if err := m.sender.Send(ctx, msg); err != nil {
		m.metrics.DispatchFailed(ctx, string(reminder.Method))
		log.Warn("reminder dispatch failed", "method", reminder.Method, "error", err)
		return domain.Reminder{}, apperr.Unavailable("reminder dispatch failed", err)
	}

	closedInFlight := false
	updated, err := m.mutate(ctx, companyID, reminderID, func(r *domain.Reminder, _ *repository.Collections, now time.Time) error {
		err := markSent(r, now)
		if !errors.Is(err, domain.ErrInvalidTransition) {
			return err
		}
		closedInFlight = true
		return recordDelivery(r, now)
	})
	if err != nil {
		return domain.Reminder{}, err
	}
	if closedInFlight {
		log.Warn("reminder closed while dispatching, delivery recorded", "status", updated.Status)
	}
	return updated, nil
}

// Snooze postpones a pending or sent reminder by days.
func (m *Manager) Snooze(ctx context.Context, companyID, reminderID uuid.UUID, days int) (domain.Reminder, error) {
	if days < 1 {
		return domain.Reminder{}, apperr.Validation("snooze days must be at least 1")
	}
	return m.mutate(ctx, companyID, reminderID, func(r *domain.Reminder, _ *repository.Collections, now time.Time) error {
		return snooze(r, days, now)
	})
}

// Complete closes a sent or escalated reminder.
func (m *Manager) Complete(ctx context.Context, companyID, reminderID uuid.UUID) (domain.Reminder, error) {
	return m.mutate(ctx, companyID, reminderID, func(r *domain.Reminder, _ *repository.Collections, now time.Time) error {
		return complete(r, now)
	})
}

// Cancel cancels a non-terminal reminder.
func (m *Manager) Cancel(ctx context.Context, companyID, reminderID uuid.UUID, reason string) (domain.Reminder, error) {
	if reason == "" {
		reason = "cancelled by user"
	}
	return m.mutate(ctx, companyID, reminderID, func(r *domain.Reminder, _ *repository.Collections, now time.Time) error {
		return cancel(r, reason, now)
	})
}

// Escalate escalates one sent reminder on demand.
func (m *Manager) Escalate(ctx context.Context, companyID, reminderID uuid.UUID) (domain.Reminder, error) {
	updated, err := m.mutate(ctx, companyID, reminderID, func(r *domain.Reminder, c *repository.Collections, now time.Time) error {
		i := findRule(c.Rules, r.RuleID)
		if i < 0 {
			return fmt.Errorf("%w: rule %s no longer exists", domain.ErrInvalidTransition, r.RuleID)
		}
		return escalate(r, c.Rules[i], now)
	})
	if err != nil {
		return domain.Reminder{}, err
	}
	m.PublishEscalations(ctx, companyID, []Escalation{escalationOf(updated)})
	return updated, nil
}

// RecordInteraction stores an externally reported outcome.
func (m *Manager) RecordInteraction(ctx context.Context, companyID, reminderID uuid.UUID, kind domain.InteractionKind) (domain.Reminder, error) {
	switch kind {
	case domain.InteractionOpened, domain.InteractionClicked, domain.InteractionResponded, domain.InteractionConverted:
	default:
		return domain.Reminder{}, apperr.Validation(fmt.Sprintf("unknown interaction %q", kind))
	}
	return m.mutate(ctx, companyID, reminderID, func(r *domain.Reminder, _ *repository.Collections, now time.Time) error {
		return recordInteraction(r, kind, now)
	})
}

// RemoveLead drops a deleted lead and cancels its open reminders in one
// unit of work.
func (m *Manager) RemoveLead(ctx context.Context, companyID, leadID uuid.UUID) (int, error) {
	cancelled := 0
	err := m.store.Update(ctx, companyID, func(c *repository.Collections) error {
		if i := findLead(c.Leads, leadID); i >= 0 {
			c.Leads = append(c.Leads[:i], c.Leads[i+1:]...)
		}
		cancelled = CancelForLead(c, leadID, "lead deleted", m.Now())
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("remove lead: %w", err)
	}
	if cancelled > 0 {
		m.log.WithContext(ctx).Info("cancelled reminders of deleted lead", "leadId", leadID, "count", cancelled)
	}
	return cancelled, nil
}

// UpsertLead stores the latest snapshot of a lead.
func (m *Manager) UpsertLead(ctx context.Context, companyID uuid.UUID, lead domain.Lead) error {
	lead.CompanyID = companyID
	err := m.store.Update(ctx, companyID, func(c *repository.Collections) error {
		if i := findLead(c.Leads, lead.ID); i >= 0 {
			c.Leads[i] = lead
			return nil
		}
		c.Leads = append(c.Leads, lead)
		return nil
	})
	if err != nil {
		return fmt.Errorf("upsert lead: %w", err)
	}
	return nil
}

// PublishEscalations announces escalations applied by a sweep or on demand.
func (m *Manager) PublishEscalations(ctx context.Context, companyID uuid.UUID, escalations []Escalation) {
	now := m.Now()
	for _, e := range escalations {
		m.publish(ctx, events.ReminderEscalated{
			BaseEvent:   events.NewBaseEventAt(now),
			CompanyID:   companyID,
			ReminderID:  e.ReminderID,
			LeadID:      e.LeadID,
			Level:       e.Level,
			EscalatedTo: e.EscalatedTo,
		})
	}
}

type mutation func(r *domain.Reminder, c *repository.Collections, now time.Time) error

// mutate applies fn to a copy of one reminder inside a unit of work and
// stores it only when fn succeeds.
func (m *Manager) mutate(ctx context.Context, companyID, reminderID uuid.UUID, fn mutation) (domain.Reminder, error) {
	var before, after domain.Reminder
	err := m.store.Update(ctx, companyID, func(c *repository.Collections) error {
		idx := findReminder(c.Reminders, reminderID)
		if idx < 0 {
			return apperr.NotFound("reminder not found")
		}
		before = c.Reminders[idx]
		working := before
		if err := fn(&working, c, m.Now()); err != nil {
			return err
		}
		c.Reminders[idx] = working
		after = working
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			return domain.Reminder{}, conflict(err)
		}
		var appErr *apperr.Error
		if errors.As(err, &appErr) {
			return domain.Reminder{}, err
		}
		return domain.Reminder{}, fmt.Errorf("update reminder: %w", err)
	}
	if before.Status != after.Status {
		m.log.WithContext(ctx).ReminderTransition(reminderID.String(), string(before.Status), string(after.Status))
	}
	return after, nil
}

func (m *Manager) publish(ctx context.Context, event events.Event) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(ctx, event)
}

func conflict(err error) error {
	return apperr.Wrap(apperr.KindConflict, "reminder transition rejected", err)
}

func escalationOf(r domain.Reminder) Escalation {
	e := Escalation{ReminderID: r.ID, LeadID: r.LeadID, Level: r.EscalationLevel}
	if r.EscalatedTo != nil {
		e.EscalatedTo = *r.EscalatedTo
	}
	return e
}

func findReminder(reminders []domain.Reminder, id uuid.UUID) int {
	for i := range reminders {
		if reminders[i].ID == id {
			return i
		}
	}
	return -1
}

func findRule(rules []domain.FollowUpRule, id uuid.UUID) int {
	for i := range rules {
		if rules[i].ID == id {
			return i
		}
	}
	return -1
}

func findLead(leads []domain.Lead, id uuid.UUID) int {
	for i := range leads {
		if leads[i].ID == id {
			return i
		}
	}
	return -1
}
