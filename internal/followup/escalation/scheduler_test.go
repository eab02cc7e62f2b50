package escalation

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"leadflow_backend/internal/followup/domain"
	"leadflow_backend/internal/followup/lifecycle"
	"leadflow_backend/internal/followup/repository"
)

const day = 24 * time.Hour

var now = time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)

func seed(t *testing.T, escalation bool, reminders ...domain.Reminder) (*repository.MemoryStore, uuid.UUID, domain.FollowUpRule) {
	t.Helper()
	store := repository.NewMemoryStore()
	companyID := uuid.New()
	rule := domain.FollowUpRule{
		ID:     uuid.New(),
		Active: true,
		Reminder: domain.ReminderConfig{
			Method:    domain.MethodEmail,
			Frequency: domain.FrequencyOnce,
			Escalation: domain.EscalationPolicy{
				Enabled:    escalation,
				DelayDays:  3,
				Recipients: []string{"manager-1"},
			},
		},
	}
	for i := range reminders {
		reminders[i].RuleID = rule.ID
		if reminders[i].ID == uuid.Nil {
			reminders[i].ID = uuid.New()
		}
	}
	ctx := context.Background()
	if err := store.SetRules(ctx, companyID, []domain.FollowUpRule{rule}); err != nil {
		t.Fatalf("seed rules: %v", err)
	}
	if err := store.SetReminders(ctx, companyID, reminders); err != nil {
		t.Fatalf("seed reminders: %v", err)
	}
	return store, companyID, rule
}

func timePtr(t time.Time) *time.Time { return &t }

func TestSweepEscalatesOverdueSentReminder(t *testing.T) {
	store, companyID, _ := seed(t, true, domain.Reminder{
		LeadID: uuid.New(),
		Status: domain.StatusSent,
		SentAt: timePtr(now.Add(-4 * day)),
	})
	s := NewScheduler(store, nil, nil, nil, time.Minute)

	res, err := s.Sweep(context.Background(), companyID, now)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(res.Escalated) != 1 {
		t.Fatalf("expected 1 escalation, got %d", len(res.Escalated))
	}

	reminders, _ := store.Reminders(context.Background(), companyID)
	r := reminders[0]
	if r.Status != domain.StatusEscalated || r.EscalationLevel != 1 {
		t.Fatalf("expected escalated level 1, got %s level %d", r.Status, r.EscalationLevel)
	}
	if r.EscalatedTo == nil || *r.EscalatedTo != "manager-1" {
		t.Fatalf("expected escalation to manager-1, got %v", r.EscalatedTo)
	}
}

func TestSweepLeavesRecentAndDisabledAlone(t *testing.T) {
	store, companyID, _ := seed(t, true, domain.Reminder{
		LeadID: uuid.New(),
		Status: domain.StatusSent,
		SentAt: timePtr(now.Add(-2 * day)),
	})
	s := NewScheduler(store, nil, nil, nil, time.Minute)
	if res, _ := s.Sweep(context.Background(), companyID, now); res.Changed() {
		t.Fatalf("reminder within delay must not escalate")
	}

	store, companyID, _ = seed(t, false, domain.Reminder{
		LeadID: uuid.New(),
		Status: domain.StatusSent,
		SentAt: timePtr(now.Add(-10 * day)),
	})
	s = NewScheduler(store, nil, nil, nil, time.Minute)
	if res, _ := s.Sweep(context.Background(), companyID, now); res.Changed() {
		t.Fatalf("rule without escalation must not escalate")
	}
}

func TestSweepDoesNotEscalateSnoozed(t *testing.T) {
	store, companyID, _ := seed(t, true, domain.Reminder{
		LeadID:       uuid.New(),
		Status:       domain.StatusSnoozed,
		SentAt:       timePtr(now.Add(-10 * day)),
		SnoozedUntil: timePtr(now.Add(day)),
	})
	s := NewScheduler(store, nil, nil, nil, time.Minute)
	if res, _ := s.Sweep(context.Background(), companyID, now); res.Changed() {
		t.Fatalf("snoozed reminder must not be escalated or woken early")
	}
}

func TestSnoozeScenario(t *testing.T) {
	store, companyID, _ := seed(t, false, domain.Reminder{
		LeadID:      uuid.New(),
		Status:      domain.StatusPending,
		ScheduledAt: now,
		CreatedAt:   now,
	})
	ctx := context.Background()
	reminders, _ := store.Reminders(ctx, companyID)
	id := reminders[0].ID

	current := now
	manager := lifecycle.New(lifecycle.Options{Store: store, Now: func() time.Time { return current }})
	s := NewScheduler(store, manager, nil, nil, time.Minute)

	r, err := manager.Snooze(ctx, companyID, id, 2)
	if err != nil {
		t.Fatalf("snooze: %v", err)
	}
	if r.Status != domain.StatusSnoozed || !r.SnoozedUntil.Equal(now.Add(2*day)) {
		t.Fatalf("unexpected snoozed reminder %+v", r)
	}

	if _, err := s.Sweep(ctx, companyID, now.Add(day)); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	reminders, _ = store.Reminders(ctx, companyID)
	if reminders[0].Status != domain.StatusSnoozed {
		t.Fatalf("expected still snoozed after 1 day, got %s", reminders[0].Status)
	}

	wakeAt := now.Add(3 * day)
	res, err := s.Sweep(ctx, companyID, wakeAt)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(res.Woken) != 1 {
		t.Fatalf("expected 1 woken reminder, got %d", len(res.Woken))
	}
	reminders, _ = store.Reminders(ctx, companyID)
	if reminders[0].Status != domain.StatusPending || !reminders[0].ScheduledAt.Equal(wakeAt) || reminders[0].SnoozedUntil != nil {
		t.Fatalf("unexpected woken reminder %+v", reminders[0])
	}
}

func TestSweepIsIdempotent(t *testing.T) {
	store, companyID, _ := seed(t, true,
		domain.Reminder{LeadID: uuid.New(), Status: domain.StatusSent, SentAt: timePtr(now.Add(-4 * day))},
		domain.Reminder{LeadID: uuid.New(), Status: domain.StatusSnoozed, SnoozedUntil: timePtr(now.Add(-time.Hour))},
	)
	s := NewScheduler(store, nil, nil, nil, time.Minute)
	ctx := context.Background()

	first, err := s.Sweep(ctx, companyID, now)
	if err != nil || !first.Changed() {
		t.Fatalf("expected first sweep to change state, err=%v", err)
	}
	before, _ := store.Reminders(ctx, companyID)

	second, err := s.Sweep(ctx, companyID, now)
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if second.Changed() {
		t.Fatalf("second sweep changed state: %+v", second)
	}
	after, _ := store.Reminders(ctx, companyID)
	for i := range before {
		if before[i].Status != after[i].Status || before[i].EscalationLevel != after[i].EscalationLevel {
			t.Fatalf("reminder %d changed on second sweep", i)
		}
	}
}

func TestSweepAllCoversEveryCompany(t *testing.T) {
	store, companyID, _ := seed(t, true, domain.Reminder{
		LeadID: uuid.New(),
		Status: domain.StatusSent,
		SentAt: timePtr(now.Add(-4 * day)),
	})
	s := NewScheduler(store, nil, nil, nil, time.Minute)
	if err := s.SweepAll(context.Background(), now); err != nil {
		t.Fatalf("sweep all: %v", err)
	}
	reminders, _ := store.Reminders(context.Background(), companyID)
	if reminders[0].Status != domain.StatusEscalated {
		t.Fatalf("expected escalated, got %s", reminders[0].Status)
	}
}
