// Package escalation runs the periodic sweep that escalates overdue sent
// reminders and wakes snoozed ones.
package escalation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"leadflow_backend/internal/followup/lifecycle"
	"leadflow_backend/internal/followup/repository"
	"leadflow_backend/platform/logger"
	"leadflow_backend/platform/telemetry"
)

const defaultSweepInterval = 5 * time.Minute

// Result summarises one company sweep.
type Result struct {
	Escalated []lifecycle.Escalation
	Woken     []uuid.UUID
}

// Changed reports whether the sweep mutated anything.
func (r Result) Changed() bool {
	return len(r.Escalated) > 0 || len(r.Woken) > 0
}

// Scheduler sweeps reminders of every company on an interval.
type Scheduler struct {
	store    repository.Store
	manager  *lifecycle.Manager
	metrics  *telemetry.Metrics
	log      *logger.Logger
	interval time.Duration
}

func NewScheduler(store repository.Store, manager *lifecycle.Manager, metrics *telemetry.Metrics, log *logger.Logger, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Scheduler{
		store:    store,
		manager:  manager,
		metrics:  metrics,
		log:      log,
		interval: interval,
	}
}

// Sweep escalates and wakes the reminders of one company as of now.
// Running it again without time passing changes nothing.
func (s *Scheduler) Sweep(ctx context.Context, companyID uuid.UUID, now time.Time) (Result, error) {
	var res Result
	err := s.store.Update(ctx, companyID, func(c *repository.Collections) error {
		res = Result{
			Escalated: lifecycle.EscalateDue(c, now),
			Woken:     lifecycle.WakeDue(c, now),
		}
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("sweep company %s: %w", companyID, err)
	}

	if res.Changed() {
		s.log.Info("follow-up sweep applied",
			"companyId", companyID, "escalated", len(res.Escalated), "woken", len(res.Woken))
	}
	s.metrics.RemindersEscalated(ctx, len(res.Escalated))
	s.metrics.RemindersWoken(ctx, len(res.Woken))
	if s.manager != nil {
		s.manager.PublishEscalations(ctx, companyID, res.Escalated)
	}
	return res, nil
}

// SweepAll sweeps every known company. A failing company is logged and
// does not stop the others.
func (s *Scheduler) SweepAll(ctx context.Context, now time.Time) error {
	companies, err := s.store.Companies(ctx)
	if err != nil {
		return fmt.Errorf("list companies: %w", err)
	}
	for _, companyID := range companies {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		start := time.Now()
		if _, err := s.Sweep(ctx, companyID, now); err != nil {
			s.log.Warn("follow-up sweep failed", "companyId", companyID, "error", err)
		}
		s.metrics.SweepFinished(ctx, time.Since(start))
	}
	return nil
}

// Run sweeps immediately and then on every tick until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	if s == nil || s.store == nil {
		return
	}

	s.tick(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	now := time.Now().UTC()
	if s.manager != nil {
		now = s.manager.Now()
	}
	if err := s.SweepAll(ctx, now); err != nil && ctx.Err() == nil {
		s.log.Warn("follow-up sweep round failed", "error", err)
	}
}
