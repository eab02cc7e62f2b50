package matcher

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"leadflow_backend/internal/followup/domain"
)

var now = time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)

func ptr(v int) *int { return &v }

func daysAgo(n int) time.Time {
	return now.Add(-time.Duration(n) * 24 * time.Hour)
}

func contactGapRule(gap int) domain.FollowUpRule {
	return domain.FollowUpRule{
		ID:          uuid.New(),
		Active:      true,
		Priority:    domain.PriorityHigh,
		TriggerType: domain.TriggerContactGap,
		Conditions:  domain.Conditions{MinContactGapDays: ptr(gap)},
		Reminder: domain.ReminderConfig{
			Method:    domain.MethodEmail,
			Frequency: domain.FrequencyOnce,
		},
	}
}

func TestContactGapRuleMatchesUncontactedLead(t *testing.T) {
	lead := domain.Lead{ID: uuid.New(), CompanyID: uuid.New(), CreatedAt: daysAgo(10)}
	rule := contactGapRule(7)

	res := Evaluate(lead, rule, nil, domain.DefaultBuckets(), now)
	if !res.Matched() {
		t.Fatalf("expected match, got %s (%s)", res.Reason, res.Condition)
	}
	if res.Trigger.RuleID != rule.ID || res.Trigger.LeadID != lead.ID || res.Trigger.Method != domain.MethodEmail {
		t.Fatalf("unexpected trigger %+v", res.Trigger)
	}
	if res.Trigger.Classification.DaysSinceContact != 10 {
		t.Fatalf("expected 10 days since contact, got %d", res.Trigger.Classification.DaysSinceContact)
	}
}

func TestInactiveRuleNeverMatches(t *testing.T) {
	rule := contactGapRule(0)
	rule.Active = false
	res := Evaluate(domain.Lead{ID: uuid.New(), CreatedAt: daysAgo(1)}, rule, nil, nil, now)
	if res.Reason != ReasonRuleInactive {
		t.Fatalf("expected inactive, got %s", res.Reason)
	}
}

func TestOpenReminderIsDuplicate(t *testing.T) {
	lead := domain.Lead{ID: uuid.New(), CreatedAt: daysAgo(10)}
	rule := contactGapRule(7)
	rule.Reminder.Frequency = domain.FrequencyDaily

	for _, status := range []domain.Status{domain.StatusPending, domain.StatusSent, domain.StatusEscalated} {
		history := []domain.Reminder{{RuleID: rule.ID, LeadID: lead.ID, Status: status, CreatedAt: daysAgo(5)}}
		if res := Evaluate(lead, rule, history, nil, now); res.Reason != ReasonDuplicateOpen {
			t.Fatalf("status %s: expected duplicate, got %s", status, res.Reason)
		}
	}

	otherRule := []domain.Reminder{{RuleID: uuid.New(), LeadID: lead.ID, Status: domain.StatusPending}}
	if res := Evaluate(lead, rule, otherRule, nil, now); !res.Matched() {
		t.Fatalf("reminders of other rules must not block, got %s", res.Reason)
	}
}

func TestFrequencyGate(t *testing.T) {
	lead := domain.Lead{ID: uuid.New(), CreatedAt: daysAgo(30)}
	hours := 12

	tests := []struct {
		name      string
		frequency domain.Frequency
		custom    *int
		latest    domain.Reminder
		want      Reason
	}{
		{"once blocks after completion", domain.FrequencyOnce, nil, domain.Reminder{Status: domain.StatusCompleted, CreatedAt: daysAgo(20)}, ReasonFrequencyBlocked},
		{"once blocks after cancellation", domain.FrequencyOnce, nil, domain.Reminder{Status: domain.StatusCancelled, CreatedAt: daysAgo(20)}, ReasonFrequencyBlocked},
		{"daily after interval", domain.FrequencyDaily, nil, domain.Reminder{Status: domain.StatusCompleted, CreatedAt: now.Add(-25 * time.Hour)}, ReasonMatched},
		{"daily within interval", domain.FrequencyDaily, nil, domain.Reminder{Status: domain.StatusCompleted, CreatedAt: now.Add(-23 * time.Hour)}, ReasonFrequencyBlocked},
		{"daily waits for snoozed", domain.FrequencyDaily, nil, domain.Reminder{Status: domain.StatusSnoozed, CreatedAt: daysAgo(3)}, ReasonFrequencyBlocked},
		{"weekly within interval", domain.FrequencyWeekly, nil, domain.Reminder{Status: domain.StatusCompleted, CreatedAt: daysAgo(6)}, ReasonFrequencyBlocked},
		{"weekly after interval", domain.FrequencyWeekly, nil, domain.Reminder{Status: domain.StatusCancelled, CreatedAt: daysAgo(7)}, ReasonMatched},
		{"custom after interval", domain.FrequencyCustom, &hours, domain.Reminder{Status: domain.StatusCompleted, CreatedAt: now.Add(-13 * time.Hour)}, ReasonMatched},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := contactGapRule(7)
			rule.Reminder.Frequency = tt.frequency
			rule.Reminder.CustomIntervalHours = tt.custom
			latest := tt.latest
			latest.RuleID = rule.ID
			latest.LeadID = lead.ID
			older := domain.Reminder{RuleID: rule.ID, LeadID: lead.ID, Status: domain.StatusCompleted, CreatedAt: daysAgo(29)}

			res := Evaluate(lead, rule, []domain.Reminder{latest, older}, nil, now)
			if res.Reason != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, res.Reason)
			}
		})
	}
}

func TestConditionsCombineWithAnd(t *testing.T) {
	contact := daysAgo(2)
	lead := domain.Lead{
		ID:               uuid.New(),
		CreatedAt:        daysAgo(20),
		LastContactAt:    &contact,
		Status:           domain.LeadStatusContacted,
		Rating:           domain.RatingWarm,
		Score:            70,
		RecentActivities: []string{"email_opened", "call"},
	}

	full := domain.Conditions{
		MinLeadAgeDays:    ptr(14),
		MinContactGapDays: ptr(2),
		Statuses:          []domain.LeadStatus{domain.LeadStatusContacted, domain.LeadStatusQualified},
		Ratings:           []domain.Rating{domain.RatingWarm},
		ScoreThreshold:    ptr(70),
		ActivityTypes:     []string{"call"},
	}

	tests := []struct {
		name   string
		mutate func(*domain.Conditions)
		want   string
	}{
		{"all hold", func(*domain.Conditions) {}, ""},
		{"age too low", func(c *domain.Conditions) { c.MinLeadAgeDays = ptr(21) }, "minLeadAgeDays"},
		{"gap too small", func(c *domain.Conditions) { c.MinContactGapDays = ptr(3) }, "minContactGapDays"},
		{"status excluded", func(c *domain.Conditions) { c.Statuses = []domain.LeadStatus{domain.LeadStatusNew} }, "statuses"},
		{"rating excluded", func(c *domain.Conditions) { c.Ratings = []domain.Rating{domain.RatingHot} }, "ratings"},
		{"score below threshold", func(c *domain.Conditions) { c.ScoreThreshold = ptr(71) }, "scoreThreshold"},
		{"no matching activity", func(c *domain.Conditions) { c.ActivityTypes = []string{"meeting"} }, "activityTypes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cond := full
			tt.mutate(&cond)
			rule := contactGapRule(0)
			rule.Conditions = cond

			res := Evaluate(lead, rule, nil, nil, now)
			if tt.want == "" {
				if !res.Matched() {
					t.Fatalf("expected match, failed on %s", res.Condition)
				}
				return
			}
			if res.Reason != ReasonConditionFailed || res.Condition != tt.want {
				t.Fatalf("expected failure on %s, got %s/%s", tt.want, res.Reason, res.Condition)
			}
		})
	}
}

func TestEmptyConditionsAlwaysHold(t *testing.T) {
	if preds := Compile(domain.Conditions{}); len(preds) != 0 {
		t.Fatalf("expected no predicates, got %d", len(preds))
	}
	rule := contactGapRule(0)
	rule.Conditions = domain.Conditions{}
	if res := Evaluate(domain.Lead{ID: uuid.New()}, rule, nil, nil, now); !res.Matched() {
		t.Fatalf("expected match, got %s", res.Reason)
	}
}

func TestHasOpenReminder(t *testing.T) {
	pair := domain.Pair{RuleID: uuid.New(), LeadID: uuid.New()}
	history := []domain.Reminder{
		{RuleID: pair.RuleID, LeadID: pair.LeadID, Status: domain.StatusCompleted},
		{RuleID: pair.RuleID, LeadID: uuid.New(), Status: domain.StatusPending},
	}
	if HasOpenReminder(history, pair) {
		t.Fatalf("completed or foreign reminders must not count as open")
	}

	history = append(history, domain.Reminder{RuleID: pair.RuleID, LeadID: pair.LeadID, Status: domain.StatusEscalated})
	if !HasOpenReminder(history, pair) {
		t.Fatalf("escalated reminder must count as open")
	}
}
