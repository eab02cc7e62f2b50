package lifecycle

import (
	"time"

	"github.com/google/uuid"

	"leadflow_backend/internal/followup/domain"
	"leadflow_backend/internal/followup/repository"
)

// Escalation records one escalated reminder.
type Escalation struct {
	ReminderID  uuid.UUID
	LeadID      uuid.UUID
	Level       int
	EscalatedTo string
}

// EscalateDue escalates every sent reminder whose rule has escalation
// enabled and whose delay elapsed. Snoozed and already escalated reminders
// are left alone.
func EscalateDue(c *repository.Collections, now time.Time) []Escalation {
	rules := make(map[uuid.UUID]domain.FollowUpRule, len(c.Rules))
	for _, rule := range c.Rules {
		rules[rule.ID] = rule
	}

	var out []Escalation
	for i := range c.Reminders {
		r := &c.Reminders[i]
		if r.Status != domain.StatusSent {
			continue
		}
		rule, ok := rules[r.RuleID]
		if !ok || !rule.Reminder.Escalation.Enabled || !escalationDue(r, rule.Reminder.Escalation, now) {
			continue
		}
		if err := escalate(r, rule, now); err != nil {
			continue
		}
		out = append(out, escalationOf(*r))
	}
	return out
}

// WakeDue returns snoozed reminders whose snooze ran out to pending.
func WakeDue(c *repository.Collections, now time.Time) []uuid.UUID {
	var woken []uuid.UUID
	for i := range c.Reminders {
		r := &c.Reminders[i]
		if r.Status != domain.StatusSnoozed {
			continue
		}
		if err := wake(r, now); err == nil {
			woken = append(woken, r.ID)
		}
	}
	return woken
}

// CancelOpenFor cancels every non-terminal reminder accepted by match and
// returns how many were cancelled.
func CancelOpenFor(c *repository.Collections, match func(domain.Reminder) bool, reason string, now time.Time) int {
	n := 0
	for i := range c.Reminders {
		r := &c.Reminders[i]
		if r.Status.IsTerminal() || !match(*r) {
			continue
		}
		if err := cancel(r, reason, now); err == nil {
			n++
		}
	}
	return n
}

// CancelForRule cancels the rule's non-terminal reminders.
func CancelForRule(c *repository.Collections, ruleID uuid.UUID, reason string, now time.Time) int {
	return CancelOpenFor(c, func(r domain.Reminder) bool { return r.RuleID == ruleID }, reason, now)
}

// CancelForLead cancels the lead's non-terminal reminders.
func CancelForLead(c *repository.Collections, leadID uuid.UUID, reason string, now time.Time) int {
	return CancelOpenFor(c, func(r domain.Reminder) bool { return r.LeadID == leadID }, reason, now)
}
