package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is a reminder lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSent      Status = "sent"
	StatusCompleted Status = "completed"
	StatusSnoozed   Status = "snoozed"
	StatusEscalated Status = "escalated"
	StatusCancelled Status = "cancelled"
)

// ErrInvalidTransition is wrapped by every rejected status change.
var ErrInvalidTransition = errors.New("invalid reminder transition")

var transitions = map[Status]map[Status]bool{
	StatusPending:   {StatusSent: true, StatusSnoozed: true, StatusCancelled: true},
	StatusSent:      {StatusSnoozed: true, StatusCompleted: true, StatusEscalated: true, StatusCancelled: true},
	StatusSnoozed:   {StatusPending: true, StatusCancelled: true},
	StatusEscalated: {StatusCompleted: true, StatusCancelled: true},
}

// CanTransition reports whether from -> to is in the lifecycle table.
func CanTransition(from, to Status) bool {
	return transitions[from][to]
}

// ValidateTransition returns an error wrapping ErrInvalidTransition when
// from -> to is not allowed.
func ValidateTransition(from, to Status) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// IsTerminal reports whether no further transitions are possible.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// IsOpen reports whether the status counts against the one-open-reminder
// per rule and lead invariant.
func (s Status) IsOpen() bool {
	return s == StatusPending || s == StatusSent || s == StatusEscalated
}

// IsValidStatus reports whether s is a known status.
func IsValidStatus(s Status) bool {
	switch s {
	case StatusPending, StatusSent, StatusCompleted, StatusSnoozed, StatusEscalated, StatusCancelled:
		return true
	}
	return false
}

// InteractionKind is an externally reported outcome of a reminder.
type InteractionKind string

const (
	InteractionOpened    InteractionKind = "opened"
	InteractionClicked   InteractionKind = "clicked"
	InteractionResponded InteractionKind = "responded"
	InteractionConverted InteractionKind = "converted"
)

// Interaction flags recorded against a reminder.
type Interaction struct {
	Opened    bool `json:"opened"`
	Clicked   bool `json:"clicked"`
	Responded bool `json:"responded"`
}

// Content is the message carried by a reminder.
type Content struct {
	Subject     string `json:"subject"`
	Body        string `json:"body"`
	AIGenerated bool   `json:"aiGenerated"`
}

// Insight is the recommendation captured when the reminder was created.
type Insight struct {
	SuccessProbability float64 `json:"successProbability"`
	RecommendedAction  string  `json:"recommendedAction,omitempty"`
}

// Reminder is one follow-up instance produced by a rule for a lead.
// Reminders are never deleted; cancelled ones stay for analytics.
type Reminder struct {
	ID              uuid.UUID   `json:"id"`
	CompanyID       uuid.UUID   `json:"companyId"`
	RuleID          uuid.UUID   `json:"ruleId"`
	LeadID          uuid.UUID   `json:"leadId"`
	Method          Method      `json:"method"`
	Priority        Priority    `json:"priority"`
	Status          Status      `json:"status"`
	ScheduledAt     time.Time   `json:"scheduledAt"`
	SentAt          *time.Time  `json:"sentAt,omitempty"`
	CompletedAt     *time.Time  `json:"completedAt,omitempty"`
	SnoozedUntil    *time.Time  `json:"snoozedUntil,omitempty"`
	CancelledAt     *time.Time  `json:"cancelledAt,omitempty"`
	CancelReason    string      `json:"cancelReason,omitempty"`
	EscalationLevel int         `json:"escalationLevel"`
	EscalatedTo     *string     `json:"escalatedTo,omitempty"`
	EscalatedAt     *time.Time  `json:"escalatedAt,omitempty"`
	Interaction     Interaction `json:"interaction"`
	Converted       bool        `json:"converted"`
	Content         Content     `json:"content"`
	Insight         Insight     `json:"insight"`
	Degraded        bool        `json:"degraded"`
	CreatedAt       time.Time   `json:"createdAt"`
	UpdatedAt       time.Time   `json:"updatedAt"`
}

// Pair identifies the rule and lead a reminder belongs to.
type Pair struct {
	RuleID uuid.UUID
	LeadID uuid.UUID
}

// Key returns a stable string for locking.
func (p Pair) Key() string {
	return p.RuleID.String() + ":" + p.LeadID.String()
}

// Pair returns the reminder's rule and lead.
func (r Reminder) Pair() Pair {
	return Pair{RuleID: r.RuleID, LeadID: r.LeadID}
}
