// Package matcher decides whether a follow-up rule fires for a lead.
package matcher

import (
	"time"

	"github.com/google/uuid"

	"leadflow_backend/internal/followup/domain"
)

// Reason explains a match decision.
type Reason string

const (
	ReasonMatched          Reason = "matched"
	ReasonRuleInactive     Reason = "rule_inactive"
	ReasonDuplicateOpen    Reason = "duplicate_open_reminder"
	ReasonFrequencyBlocked Reason = "frequency_blocked"
	ReasonConditionFailed  Reason = "condition_failed"
)

// Trigger is the candidate reminder a matched rule produces.
type Trigger struct {
	RuleID         uuid.UUID
	LeadID         uuid.UUID
	CompanyID      uuid.UUID
	RuleName       string
	Method         domain.Method
	Priority       domain.Priority
	Template       domain.MessageTemplate
	AIEnabled      bool
	Classification domain.Classification
}

// Result of evaluating one rule against one lead.
type Result struct {
	Reason Reason
	// Condition names the first failing predicate for ReasonConditionFailed.
	Condition string
	Trigger   *Trigger
}

// Matched reports whether the rule fired.
func (r Result) Matched() bool {
	return r.Reason == ReasonMatched
}

// Evaluate checks rule against lead. history holds reminders of the lead;
// entries for other rules are ignored.
func Evaluate(lead domain.Lead, rule domain.FollowUpRule, history []domain.Reminder, buckets []domain.AgingBucket, now time.Time) Result {
	if !rule.Active {
		return Result{Reason: ReasonRuleInactive}
	}

	pairHistory := forPair(history, rule.ID, lead.ID)
	for _, r := range pairHistory {
		if r.Status.IsOpen() {
			return Result{Reason: ReasonDuplicateOpen}
		}
	}

	if !frequencyAllows(rule, pairHistory, now) {
		return Result{Reason: ReasonFrequencyBlocked}
	}

	subject := Subject{Lead: lead, Classification: domain.Classify(lead, buckets, now)}
	for _, p := range Compile(rule.Conditions) {
		if !p.Holds(subject) {
			return Result{Reason: ReasonConditionFailed, Condition: p.Name}
		}
	}

	return Result{
		Reason: ReasonMatched,
		Trigger: &Trigger{
			RuleID:         rule.ID,
			LeadID:         lead.ID,
			CompanyID:      lead.CompanyID,
			RuleName:       rule.Name,
			Method:         rule.Reminder.Method,
			Priority:       rule.Priority,
			Template:       rule.Reminder.Template,
			AIEnabled:      rule.Reminder.AIEnabled,
			Classification: subject.Classification,
		},
	}
}

// HasOpenReminder reports whether history holds an open reminder for the pair.
func HasOpenReminder(history []domain.Reminder, pair domain.Pair) bool {
	for _, r := range history {
		if r.RuleID == pair.RuleID && r.LeadID == pair.LeadID && r.Status.IsOpen() {
			return true
		}
	}
	return false
}

func forPair(history []domain.Reminder, ruleID, leadID uuid.UUID) []domain.Reminder {
	var out []domain.Reminder
	for _, r := range history {
		if r.RuleID == ruleID && r.LeadID == leadID {
			out = append(out, r)
		}
	}
	return out
}

// frequencyAllows applies the repeat policy over the full pair history.
// Once rules never re-fire. Repeating rules need the latest reminder to be
// terminal and the interval to have passed since it was created.
func frequencyAllows(rule domain.FollowUpRule, pairHistory []domain.Reminder, now time.Time) bool {
	if len(pairHistory) == 0 {
		return true
	}

	interval, repeats := rule.RepeatInterval()
	if !repeats {
		return false
	}

	latest := pairHistory[0]
	for _, r := range pairHistory[1:] {
		if r.CreatedAt.After(latest.CreatedAt) {
			latest = r
		}
	}
	if !latest.Status.IsTerminal() {
		return false
	}
	return now.Sub(latest.CreatedAt) >= interval
}
