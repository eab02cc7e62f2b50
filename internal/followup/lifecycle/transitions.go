package lifecycle

import (
	"fmt"
	"time"

	"leadflow_backend/internal/followup/domain"
)

const day = 24 * time.Hour

// Each transition validates before it mutates, so a rejected call leaves
// the reminder untouched.

func markSent(r *domain.Reminder, now time.Time) error {
	if err := domain.ValidateTransition(r.Status, domain.StatusSent); err != nil {
		return err
	}
	r.Status = domain.StatusSent
	r.SentAt = &now
	r.UpdatedAt = now
	return nil
}

// recordDelivery notes a message that went out after the reminder left the
// pending state. The status is left alone.
func recordDelivery(r *domain.Reminder, now time.Time) error {
	if r.SentAt == nil {
		r.SentAt = &now
	}
	r.UpdatedAt = now
	return nil
}

func snooze(r *domain.Reminder, days int, now time.Time) error {
	if err := domain.ValidateTransition(r.Status, domain.StatusSnoozed); err != nil {
		return err
	}
	until := now.Add(time.Duration(days) * day)
	r.Status = domain.StatusSnoozed
	r.SnoozedUntil = &until
	r.UpdatedAt = now
	return nil
}

func complete(r *domain.Reminder, now time.Time) error {
	if err := domain.ValidateTransition(r.Status, domain.StatusCompleted); err != nil {
		return err
	}
	r.Status = domain.StatusCompleted
	r.CompletedAt = &now
	r.UpdatedAt = now
	return nil
}

func cancel(r *domain.Reminder, reason string, now time.Time) error {
	if err := domain.ValidateTransition(r.Status, domain.StatusCancelled); err != nil {
		return err
	}
	r.Status = domain.StatusCancelled
	r.CancelledAt = &now
	r.CancelReason = reason
	r.UpdatedAt = now
	return nil
}

// escalate moves a sent reminder up one level. The rule must have
// escalation enabled and the delay since sending must have elapsed.
func escalate(r *domain.Reminder, rule domain.FollowUpRule, now time.Time) error {
	if err := domain.ValidateTransition(r.Status, domain.StatusEscalated); err != nil {
		return err
	}
	policy := rule.Reminder.Escalation
	if !policy.Enabled {
		return fmt.Errorf("%w: escalation disabled for rule %s", domain.ErrInvalidTransition, rule.ID)
	}
	if !escalationDue(r, policy, now) {
		return fmt.Errorf("%w: escalation delay of %d days not reached", domain.ErrInvalidTransition, policy.DelayDays)
	}

	level := r.EscalationLevel + 1
	r.Status = domain.StatusEscalated
	r.EscalationLevel = level
	r.EscalatedAt = &now
	if n := len(policy.Recipients); n > 0 {
		to := policy.Recipients[(level-1)%n]
		r.EscalatedTo = &to
	}
	r.UpdatedAt = now
	return nil
}

func escalationDue(r *domain.Reminder, policy domain.EscalationPolicy, now time.Time) bool {
	if r.SentAt == nil {
		return false
	}
	return now.Sub(*r.SentAt) >= time.Duration(policy.DelayDays)*day
}

// wake returns a snoozed reminder to pending once its snooze ran out.
func wake(r *domain.Reminder, now time.Time) error {
	if err := domain.ValidateTransition(r.Status, domain.StatusPending); err != nil {
		return err
	}
	if r.SnoozedUntil == nil || r.SnoozedUntil.After(now) {
		return fmt.Errorf("%w: snoozed until %v", domain.ErrInvalidTransition, r.SnoozedUntil)
	}
	r.Status = domain.StatusPending
	r.SnoozedUntil = nil
	r.ScheduledAt = now
	r.UpdatedAt = now
	return nil
}

func recordInteraction(r *domain.Reminder, kind domain.InteractionKind, now time.Time) error {
	if r.SentAt == nil {
		return fmt.Errorf("%w: reminder %s was never sent", domain.ErrInvalidTransition, r.ID)
	}
	switch kind {
	case domain.InteractionOpened:
		r.Interaction.Opened = true
	case domain.InteractionClicked:
		r.Interaction.Clicked = true
	case domain.InteractionResponded:
		r.Interaction.Responded = true
	case domain.InteractionConverted:
		r.Converted = true
	default:
		return fmt.Errorf("unknown interaction %q", kind)
	}
	r.UpdatedAt = now
	return nil
}
