package domain

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// Priority of a follow-up rule.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// TriggerType labels what a rule reacts to. Matching is driven by the
// populated conditions; the trigger type is descriptive.
type TriggerType string

const (
	TriggerAgeBased      TriggerType = "age_based"
	TriggerContactGap    TriggerType = "contact_gap"
	TriggerStatusChange  TriggerType = "status_change"
	TriggerScoreChange   TriggerType = "score_change"
	TriggerActivityBased TriggerType = "activity_based"
)

// Method is the dispatch channel of a reminder.
type Method string

const (
	MethodNotification Method = "notification"
	MethodEmail        Method = "email"
	MethodSMS          Method = "sms"
	MethodTask         Method = "task"
	MethodAll          Method = "all"
)

// Frequency controls how often a rule may re-fire for the same lead.
type Frequency string

const (
	FrequencyOnce   Frequency = "once"
	FrequencyDaily  Frequency = "daily"
	FrequencyWeekly Frequency = "weekly"
	FrequencyCustom Frequency = "custom"
)

// Conditions are the optional predicates of a rule. A nil or empty field is
// not evaluated.
type Conditions struct {
	MinLeadAgeDays    *int         `json:"minLeadAgeDays,omitempty"`
	MinContactGapDays *int         `json:"minContactGapDays,omitempty"`
	Statuses          []LeadStatus `json:"statuses,omitempty"`
	Ratings           []Rating     `json:"ratings,omitempty"`
	ScoreThreshold    *int         `json:"scoreThreshold,omitempty"`
	ActivityTypes     []string     `json:"activityTypes,omitempty"`
}

// MessageTemplate holds Liquid templates rendered against the lead.
type MessageTemplate struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// EscalationPolicy configures escalation of unanswered sent reminders.
type EscalationPolicy struct {
	Enabled    bool     `json:"enabled"`
	DelayDays  int      `json:"delayDays"`
	Recipients []string `json:"recipients,omitempty"`
}

// ReminderConfig is what a rule produces when it fires.
type ReminderConfig struct {
	Method              Method           `json:"method"`
	Frequency           Frequency        `json:"frequency"`
	CustomIntervalHours *int             `json:"customIntervalHours,omitempty"`
	Template            MessageTemplate  `json:"template"`
	AIEnabled           bool             `json:"aiEnabled"`
	Escalation          EscalationPolicy `json:"escalation"`
}

// FollowUpRule is an administrator-defined trigger and dispatch policy.
type FollowUpRule struct {
	ID          uuid.UUID      `json:"id"`
	CompanyID   uuid.UUID      `json:"companyId"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Active      bool           `json:"active"`
	Priority    Priority       `json:"priority"`
	TriggerType TriggerType    `json:"triggerType"`
	Conditions  Conditions     `json:"conditions"`
	Reminder    ReminderConfig `json:"reminder"`
	Triggered   int            `json:"triggered"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// RepeatInterval returns the minimum gap between two reminders of the rule
// for the same lead. ok is false for rules that fire only once.
func (r FollowUpRule) RepeatInterval() (interval time.Duration, ok bool) {
	switch r.Reminder.Frequency {
	case FrequencyDaily:
		return 24 * time.Hour, true
	case FrequencyWeekly:
		return 7 * 24 * time.Hour, true
	case FrequencyCustom:
		if r.Reminder.CustomIntervalHours != nil && *r.Reminder.CustomIntervalHours > 0 {
			return time.Duration(*r.Reminder.CustomIntervalHours) * time.Hour, true
		}
		return 0, false
	default:
		return 0, false
	}
}

// Effectiveness is the share of triggered reminders that got a response, in percent.
func Effectiveness(triggered, responded int) int {
	denom := triggered
	if denom < 1 {
		denom = 1
	}
	return int(math.Round(100 * float64(responded) / float64(denom)))
}
