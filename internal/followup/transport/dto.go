package transport

import (
	"time"

	"github.com/google/uuid"

	"leadflow_backend/internal/followup/analytics"
	"leadflow_backend/internal/followup/domain"
)

// ConditionsRequest are the optional predicates of a rule.
type ConditionsRequest struct {
	MinLeadAgeDays    *int     `json:"minLeadAgeDays,omitempty" validate:"omitempty,min=0"`
	MinContactGapDays *int     `json:"minContactGapDays,omitempty" validate:"omitempty,min=0"`
	Statuses          []string `json:"statuses,omitempty" validate:"omitempty,dive,oneof=new contacted qualified unqualified"`
	Ratings           []string `json:"ratings,omitempty" validate:"omitempty,dive,oneof=hot warm cold"`
	ScoreThreshold    *int     `json:"scoreThreshold,omitempty" validate:"omitempty,min=0,max=100"`
	ActivityTypes     []string `json:"activityTypes,omitempty" validate:"omitempty,dive,notblank,max=64"`
}

// TemplateRequest holds Liquid subject and body templates.
type TemplateRequest struct {
	Subject string `json:"subject" validate:"max=200"`
	Body    string `json:"body" validate:"max=5000"`
}

// EscalationRequest configures escalation of unanswered reminders.
type EscalationRequest struct {
	Enabled    bool     `json:"enabled"`
	DelayDays  int      `json:"delayDays" validate:"min=0,max=365"`
	Recipients []string `json:"recipients,omitempty" validate:"omitempty,max=20,dive,notblank,max=200"`
}

// ReminderConfigRequest is what a rule produces when it fires.
type ReminderConfigRequest struct {
	Method              string            `json:"method" validate:"required,oneof=notification email sms task all"`
	Frequency           string            `json:"frequency" validate:"required,oneof=once daily weekly custom"`
	CustomIntervalHours *int              `json:"customIntervalHours,omitempty" validate:"omitempty,min=1,max=8760"`
	Template            TemplateRequest   `json:"template"`
	AIEnabled           bool              `json:"aiEnabled"`
	Escalation          EscalationRequest `json:"escalation"`
}

// RuleRequest contains data for creating or replacing a follow-up rule.
type RuleRequest struct {
	Name        string                `json:"name" validate:"required,notblank,max=100"`
	Description string                `json:"description,omitempty" validate:"max=500"`
	Active      *bool                 `json:"active,omitempty"`
	Priority    string                `json:"priority" validate:"required,oneof=low medium high critical"`
	TriggerType string                `json:"triggerType" validate:"required,oneof=age_based contact_gap status_change score_change activity_based"`
	Conditions  ConditionsRequest     `json:"conditions"`
	Reminder    ReminderConfigRequest `json:"reminder"`
}

// RuleListResponse wraps a list of rules.
type RuleListResponse struct {
	Items []domain.FollowUpRule `json:"items"`
	Total int                   `json:"total"`
}

// DeleteRuleResponse reports a deletion and its reminder cancellations.
type DeleteRuleResponse struct {
	ID                 uuid.UUID `json:"id"`
	CancelledReminders int       `json:"cancelledReminders"`
}

// ListRemindersRequest filters the reminder list.
type ListRemindersRequest struct {
	Status string `form:"status" validate:"omitempty,oneof=pending sent completed snoozed escalated cancelled"`
	RuleID string `form:"ruleId" validate:"omitempty,uuid"`
	LeadID string `form:"leadId" validate:"omitempty,uuid"`
	Method string `form:"method" validate:"omitempty,oneof=notification email sms task all"`
}

// ReminderListResponse wraps a list of reminders.
type ReminderListResponse struct {
	Items []domain.Reminder `json:"items"`
	Total int               `json:"total"`
}

// SnoozeRequest postpones a reminder.
type SnoozeRequest struct {
	Days int `json:"days" validate:"required,min=1,max=365"`
}

// CancelRequest cancels a reminder.
type CancelRequest struct {
	Reason string `json:"reason,omitempty" validate:"max=500"`
}

// InteractionRequest records an outcome reported by a channel or user.
type InteractionRequest struct {
	Kind string `json:"kind" validate:"required,oneof=opened clicked responded converted"`
}

// RuleEffectivenessResponse lists per-rule effectiveness.
type RuleEffectivenessResponse struct {
	Items []analytics.RuleStats `json:"items"`
}

// SweepResponse reports a manual re-evaluation.
type SweepResponse struct {
	Escalated  int       `json:"escalated"`
	Woken      int       `json:"woken"`
	Evaluated  int       `json:"evaluated"`
	Created    int       `json:"created"`
	Dispatched int       `json:"dispatched"`
	RanAt      time.Time `json:"ranAt"`
}

// LeadRequest is the CRM snapshot of a lead pushed for evaluation.
type LeadRequest struct {
	Name             string     `json:"name" validate:"required,notblank,max=200"`
	Email            string     `json:"email,omitempty" validate:"omitempty,email,max=254"`
	Phone            string     `json:"phone,omitempty" validate:"omitempty,max=32"`
	CreatedAt        *time.Time `json:"createdAt,omitempty"`
	LastContactAt    *time.Time `json:"lastContactAt,omitempty"`
	NextFollowUpAt   *time.Time `json:"nextFollowUpAt,omitempty"`
	Status           string     `json:"status,omitempty" validate:"omitempty,oneof=new contacted qualified unqualified"`
	Rating           string     `json:"rating,omitempty" validate:"omitempty,oneof=hot warm cold"`
	Score            int        `json:"score" validate:"min=0,max=100"`
	AssigneeID       string     `json:"assigneeId,omitempty" validate:"max=200"`
	RecentActivities []string   `json:"recentActivities,omitempty" validate:"omitempty,max=50,dive,notblank,max=64"`
}

// LeadSyncResponse reports the stored lead and what its evaluation did.
type LeadSyncResponse struct {
	Lead    domain.Lead `json:"lead"`
	Matched int         `json:"matched"`
	Created int         `json:"created"`
}

// DeleteLeadResponse reports a lead removal and its reminder cancellations.
type DeleteLeadResponse struct {
	ID                 uuid.UUID `json:"id"`
	CancelledReminders int       `json:"cancelledReminders"`
}
