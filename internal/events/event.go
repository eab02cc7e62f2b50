// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"time"

	"leadflow_backend/internal/followup/domain"
	"leadflow_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var (
	NewBaseEvent   = events.NewBaseEvent
	NewBaseEventAt = events.NewBaseEventAt
)

// =============================================================================
// Lead Events (published by the CRM, consumed by the follow-up engine)
// =============================================================================

// LeadUpdated is published when a lead is created or changed.
type LeadUpdated struct {
	BaseEvent
	CompanyID uuid.UUID   `json:"companyId"`
	Lead      domain.Lead `json:"lead"`
}

func (e LeadUpdated) EventName() string { return "leads.lead.updated" }

// LeadDeleted is published when a lead is removed.
type LeadDeleted struct {
	BaseEvent
	CompanyID uuid.UUID `json:"companyId"`
	LeadID    uuid.UUID `json:"leadId"`
}

func (e LeadDeleted) EventName() string { return "leads.lead.deleted" }

// =============================================================================
// Follow-Up Events
// =============================================================================

// ReminderCreated is published after a rule produced a new reminder.
type ReminderCreated struct {
	BaseEvent
	CompanyID   uuid.UUID     `json:"companyId"`
	ReminderID  uuid.UUID     `json:"reminderId"`
	RuleID      uuid.UUID     `json:"ruleId"`
	LeadID      uuid.UUID     `json:"leadId"`
	Method      domain.Method `json:"method"`
	ScheduledAt time.Time     `json:"scheduledAt"`
	Degraded    bool          `json:"degraded"`
}

func (e ReminderCreated) EventName() string { return "followup.reminder.created" }

// ReminderEscalated is published when a sent reminder was escalated.
type ReminderEscalated struct {
	BaseEvent
	CompanyID   uuid.UUID `json:"companyId"`
	ReminderID  uuid.UUID `json:"reminderId"`
	LeadID      uuid.UUID `json:"leadId"`
	Level       int       `json:"level"`
	EscalatedTo string    `json:"escalatedTo,omitempty"`
}

func (e ReminderEscalated) EventName() string { return "followup.reminder.escalated" }
