// Package repository persists follow-up collections keyed by company.
package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"leadflow_backend/internal/followup/domain"
)

// Kind names one persisted collection.
type Kind string

const (
	KindLeads     Kind = "leads"
	KindRules     Kind = "rules"
	KindReminders Kind = "reminders"
)

var ErrNoCompany = errors.New("company id is required")

// Collections is the full follow-up state of one company.
type Collections struct {
	Leads     []domain.Lead
	Rules     []domain.FollowUpRule
	Reminders []domain.Reminder
}

// =====================================
// Segregated Interfaces
// =====================================

// LeadStore reads and replaces the lead collection.
type LeadStore interface {
	Leads(ctx context.Context, companyID uuid.UUID) ([]domain.Lead, error)
	SetLeads(ctx context.Context, companyID uuid.UUID, leads []domain.Lead) error
}

// RuleStore reads and replaces the rule collection.
type RuleStore interface {
	Rules(ctx context.Context, companyID uuid.UUID) ([]domain.FollowUpRule, error)
	SetRules(ctx context.Context, companyID uuid.UUID, rules []domain.FollowUpRule) error
}

// ReminderStore reads and replaces the reminder collection.
type ReminderStore interface {
	Reminders(ctx context.Context, companyID uuid.UUID) ([]domain.Reminder, error)
	SetReminders(ctx context.Context, companyID uuid.UUID, reminders []domain.Reminder) error
}

// UnitOfWork applies fn to all collections of a company while holding the
// company's write lock. The collections are written back only when fn
// returns nil; either all of them are stored or none.
type UnitOfWork interface {
	Update(ctx context.Context, companyID uuid.UUID, fn func(*Collections) error) error
}

// Store is the full persistence surface of the follow-up engine.
type Store interface {
	LeadStore
	RuleStore
	ReminderStore
	UnitOfWork
	// Snapshot reads all collections of a company.
	Snapshot(ctx context.Context, companyID uuid.UUID) (Collections, error)
	// Companies lists companies that have any stored collection.
	Companies(ctx context.Context) ([]uuid.UUID, error)
}
