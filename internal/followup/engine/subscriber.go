package engine

import (
	"context"

	"github.com/google/uuid"

	"leadflow_backend/internal/events"
	"leadflow_backend/internal/followup/domain"
)

// SyncLead stores the latest snapshot of a lead and re-evaluates the
// company's rules for it.
func (e *Engine) SyncLead(ctx context.Context, companyID uuid.UUID, lead domain.Lead) (Report, error) {
	if err := e.manager.UpsertLead(ctx, companyID, lead); err != nil {
		return Report{}, err
	}
	return e.EvaluateLead(ctx, companyID, lead.ID)
}

// DropLead removes a lead and cancels its open reminders. It returns how
// many reminders were cancelled.
func (e *Engine) DropLead(ctx context.Context, companyID, leadID uuid.UUID) (int, error) {
	return e.manager.RemoveLead(ctx, companyID, leadID)
}

// Subscriber keeps the lead collection in sync with CRM events published
// in process.
type Subscriber struct {
	engine *Engine
}

func NewSubscriber(engine *Engine) *Subscriber {
	return &Subscriber{engine: engine}
}

// Register subscribes to lead events on bus.
func (s *Subscriber) Register(bus events.Bus) {
	bus.Subscribe(events.LeadUpdated{}.EventName(), s)
	bus.Subscribe(events.LeadDeleted{}.EventName(), s)
}

// Handle routes events to the appropriate handler method.
func (s *Subscriber) Handle(ctx context.Context, event events.Event) error {
	switch e := event.(type) {
	case events.LeadUpdated:
		_, err := s.engine.SyncLead(ctx, e.CompanyID, e.Lead)
		return err
	case events.LeadDeleted:
		_, err := s.engine.DropLead(ctx, e.CompanyID, e.LeadID)
		return err
	default:
		return nil
	}
}
