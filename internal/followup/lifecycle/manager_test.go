package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"leadflow_backend/internal/followup/domain"
	"leadflow_backend/internal/followup/matcher"
	"leadflow_backend/internal/followup/repository"
	"leadflow_backend/platform/apperr"
)

var baseNow = time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type senderFunc func(ctx context.Context, msg domain.Message) error

func (f senderFunc) Send(ctx context.Context, msg domain.Message) error { return f(ctx, msg) }

type fixture struct {
	store     *repository.MemoryStore
	clock     *clock
	manager   *Manager
	companyID uuid.UUID
	lead      domain.Lead
	rule      domain.FollowUpRule
}

func ptr(v int) *int { return &v }

func newFixture(t *testing.T, sender Sender) *fixture {
	t.Helper()
	ctx := context.Background()
	store := repository.NewMemoryStore()
	clk := &clock{t: baseNow}
	companyID := uuid.New()

	lead := domain.Lead{
		ID:         uuid.New(),
		CompanyID:  companyID,
		Name:       "Ada",
		Email:      "ada@example.com",
		CreatedAt:  baseNow.Add(-10 * day),
		Status:     domain.LeadStatusNew,
		AssigneeID: "agent-1",
	}
	rule := domain.FollowUpRule{
		ID:          uuid.New(),
		CompanyID:   companyID,
		Name:        "contact gap",
		Active:      true,
		Priority:    domain.PriorityHigh,
		TriggerType: domain.TriggerContactGap,
		Conditions:  domain.Conditions{MinContactGapDays: ptr(7)},
		Reminder: domain.ReminderConfig{
			Method:    domain.MethodEmail,
			Frequency: domain.FrequencyOnce,
			Template:  domain.MessageTemplate{Subject: "Hi {{ lead.name }}", Body: "Body"},
			Escalation: domain.EscalationPolicy{
				Enabled:    true,
				DelayDays:  3,
				Recipients: []string{"manager-1", "manager-2"},
			},
		},
	}
	if err := store.SetLeads(ctx, companyID, []domain.Lead{lead}); err != nil {
		t.Fatalf("seed leads: %v", err)
	}
	if err := store.SetRules(ctx, companyID, []domain.FollowUpRule{rule}); err != nil {
		t.Fatalf("seed rules: %v", err)
	}

	m := New(Options{Store: store, Sender: sender, Now: clk.Now})
	return &fixture{store: store, clock: clk, manager: m, companyID: companyID, lead: lead, rule: rule}
}

func (f *fixture) trigger(t *testing.T) TriggerOutcome {
	t.Helper()
	res := matcher.Evaluate(f.lead, f.rule, nil, nil, f.clock.Now())
	if !res.Matched() {
		t.Fatalf("expected rule to match, got %s", res.Reason)
	}
	out, err := f.manager.ProcessTrigger(context.Background(), f.companyID, *res.Trigger, f.lead)
	if err != nil {
		t.Fatalf("process trigger: %v", err)
	}
	return out
}

func TestProcessTriggerCreatesPendingReminderAndCountsTrigger(t *testing.T) {
	f := newFixture(t, nil)
	out := f.trigger(t)
	if !out.Created {
		t.Fatalf("expected reminder to be created, reason %s", out.Reason)
	}

	snap, _ := f.store.Snapshot(context.Background(), f.companyID)
	if len(snap.Reminders) != 1 {
		t.Fatalf("expected 1 reminder, got %d", len(snap.Reminders))
	}
	r := snap.Reminders[0]
	if r.Status != domain.StatusPending || !r.ScheduledAt.Equal(baseNow) {
		t.Fatalf("unexpected reminder %+v", r)
	}
	if r.Content.Subject != "Hi Ada" || r.Content.AIGenerated || r.Degraded {
		t.Fatalf("unexpected content %+v degraded=%v", r.Content, r.Degraded)
	}
	if snap.Rules[0].Triggered != 1 {
		t.Fatalf("expected triggered=1, got %d", snap.Rules[0].Triggered)
	}
}

func TestProcessTriggerRejectsDuplicate(t *testing.T) {
	f := newFixture(t, nil)
	f.trigger(t)

	res := matcher.Evaluate(f.lead, f.rule, nil, nil, f.clock.Now())
	out, err := f.manager.ProcessTrigger(context.Background(), f.companyID, *res.Trigger, f.lead)
	if err != nil {
		t.Fatalf("process trigger: %v", err)
	}
	if out.Created || out.Reason != matcher.ReasonDuplicateOpen {
		t.Fatalf("expected duplicate skip, got %+v", out)
	}
}

func TestConcurrentTriggersCreateOneOpenReminder(t *testing.T) {
	f := newFixture(t, nil)
	res := matcher.Evaluate(f.lead, f.rule, nil, nil, f.clock.Now())

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.manager.ProcessTrigger(context.Background(), f.companyID, *res.Trigger, f.lead)
		}()
	}
	wg.Wait()

	snap, _ := f.store.Snapshot(context.Background(), f.companyID)
	open := 0
	for _, r := range snap.Reminders {
		if r.Status.IsOpen() {
			open++
		}
	}
	if open != 1 || len(snap.Reminders) != 1 {
		t.Fatalf("expected exactly one open reminder, got %d of %d", open, len(snap.Reminders))
	}
	if snap.Rules[0].Triggered != 1 {
		t.Fatalf("expected triggered=1, got %d", snap.Rules[0].Triggered)
	}
}

func TestDispatchMarksSent(t *testing.T) {
	var got domain.Message
	f := newFixture(t, senderFunc(func(_ context.Context, msg domain.Message) error {
		got = msg
		return nil
	}))
	out := f.trigger(t)

	r, err := f.manager.Dispatch(context.Background(), f.companyID, out.Reminder.ID)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if r.Status != domain.StatusSent || r.SentAt == nil {
		t.Fatalf("expected sent reminder, got %+v", r)
	}
	if got.Recipient != "ada@example.com" || got.Subject != "Hi Ada" {
		t.Fatalf("unexpected message %+v", got)
	}
}

func TestDispatchFailureKeepsPending(t *testing.T) {
	f := newFixture(t, senderFunc(func(context.Context, domain.Message) error {
		return errors.New("smtp down")
	}))
	out := f.trigger(t)

	_, err := f.manager.Dispatch(context.Background(), f.companyID, out.Reminder.ID)
	if !apperr.Is(err, apperr.KindUnavailable) {
		t.Fatalf("expected unavailable error, got %v", err)
	}

	reminders, _ := f.store.Reminders(context.Background(), f.companyID)
	if reminders[0].Status != domain.StatusPending || reminders[0].SentAt != nil {
		t.Fatalf("failed dispatch changed state: %+v", reminders[0])
	}
}

func TestCancelDuringDispatchRecordsDelivery(t *testing.T) {
	var f *fixture
	var reminderID uuid.UUID
	f = newFixture(t, senderFunc(func(ctx context.Context, _ domain.Message) error {
		if _, err := f.manager.Cancel(ctx, f.companyID, reminderID, "lead replied"); err != nil {
			t.Errorf("cancel in flight: %v", err)
		}
		return nil
	}))
	reminderID = f.trigger(t).Reminder.ID

	r, err := f.manager.Dispatch(context.Background(), f.companyID, reminderID)
	if err != nil {
		t.Fatalf("dispatch after in-flight cancel: %v", err)
	}
	if r.Status != domain.StatusCancelled || r.SentAt == nil {
		t.Fatalf("expected cancelled reminder with delivery recorded, got %+v", r)
	}

	reminders, _ := f.store.Reminders(context.Background(), f.companyID)
	if reminders[0].Status != domain.StatusCancelled || reminders[0].SentAt == nil || reminders[0].CancelReason != "lead replied" {
		t.Fatalf("stored reminder lost the delivery record: %+v", reminders[0])
	}
}

func TestInvalidTransitionLeavesStateUnchanged(t *testing.T) {
	f := newFixture(t, nil)
	out := f.trigger(t)

	_, err := f.manager.Complete(context.Background(), f.companyID, out.Reminder.ID)
	if !apperr.Is(err, apperr.KindConflict) || !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition conflict, got %v", err)
	}

	reminders, _ := f.store.Reminders(context.Background(), f.companyID)
	if reminders[0].Status != domain.StatusPending || reminders[0].CompletedAt != nil {
		t.Fatalf("rejected transition mutated reminder: %+v", reminders[0])
	}
}

func TestEscalateRejectedWhenRuleEscalationDisabled(t *testing.T) {
	f := newFixture(t, senderFunc(func(context.Context, domain.Message) error { return nil }))
	ctx := context.Background()
	out := f.trigger(t)
	if _, err := f.manager.Dispatch(ctx, f.companyID, out.Reminder.ID); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	_ = f.store.Update(ctx, f.companyID, func(c *repository.Collections) error {
		c.Rules[0].Reminder.Escalation.Enabled = false
		return nil
	})
	f.clock.Advance(10 * day)

	_, err := f.manager.Escalate(ctx, f.companyID, out.Reminder.ID)
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected InvalidTransition, got %v", err)
	}
	reminders, _ := f.store.Reminders(ctx, f.companyID)
	if reminders[0].Status != domain.StatusSent || reminders[0].EscalationLevel != 0 {
		t.Fatalf("rejected escalation mutated reminder: %+v", reminders[0])
	}
}

func TestEscalateRoundRobinsRecipients(t *testing.T) {
	r := domain.Reminder{Status: domain.StatusSent}
	sent := baseNow.Add(-5 * day)
	r.SentAt = &sent
	rule := domain.FollowUpRule{Reminder: domain.ReminderConfig{Escalation: domain.EscalationPolicy{
		Enabled: true, DelayDays: 3, Recipients: []string{"a", "b"},
	}}}

	r.EscalationLevel = 1
	if err := escalate(&r, rule, baseNow); err != nil {
		t.Fatalf("escalate: %v", err)
	}
	if r.EscalationLevel != 2 || *r.EscalatedTo != "b" {
		t.Fatalf("expected level 2 to b, got %d/%v", r.EscalationLevel, *r.EscalatedTo)
	}
}

func TestSnoozeRequiresPositiveDays(t *testing.T) {
	f := newFixture(t, nil)
	out := f.trigger(t)
	_, err := f.manager.Snooze(context.Background(), f.companyID, out.Reminder.ID, 0)
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRecordInteractionRequiresSend(t *testing.T) {
	f := newFixture(t, senderFunc(func(context.Context, domain.Message) error { return nil }))
	ctx := context.Background()
	out := f.trigger(t)

	if _, err := f.manager.RecordInteraction(ctx, f.companyID, out.Reminder.ID, domain.InteractionResponded); !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict before send, got %v", err)
	}
	if _, err := f.manager.Dispatch(ctx, f.companyID, out.Reminder.ID); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	r, err := f.manager.RecordInteraction(ctx, f.companyID, out.Reminder.ID, domain.InteractionResponded)
	if err != nil || !r.Interaction.Responded {
		t.Fatalf("expected responded flag, got %+v err=%v", r.Interaction, err)
	}
	if _, err := f.manager.RecordInteraction(ctx, f.companyID, out.Reminder.ID, "liked"); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error for unknown interaction, got %v", err)
	}
}

func TestRemoveLeadCancelsOpenReminders(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.trigger(t)

	n, err := f.manager.RemoveLead(ctx, f.companyID, f.lead.ID)
	if err != nil || n != 1 {
		t.Fatalf("expected 1 cancellation, got %d err=%v", n, err)
	}
	snap, _ := f.store.Snapshot(ctx, f.companyID)
	if len(snap.Leads) != 0 {
		t.Fatalf("expected lead to be removed")
	}
	if snap.Reminders[0].Status != domain.StatusCancelled || snap.Reminders[0].CancelReason != "lead deleted" {
		t.Fatalf("unexpected reminder %+v", snap.Reminders[0])
	}
}

func TestMissingReminderIsNotFound(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.manager.Cancel(context.Background(), f.companyID, uuid.New(), "")
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
