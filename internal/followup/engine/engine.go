// Package engine runs the rule matcher over a company's leads and feeds
// matches into the lifecycle manager.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"leadflow_backend/internal/followup/domain"
	"leadflow_backend/internal/followup/lifecycle"
	"leadflow_backend/internal/followup/matcher"
	"leadflow_backend/internal/followup/repository"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/logger"
)

const defaultConcurrency = 8

// Report summarises one evaluation pass.
type Report struct {
	Evaluated int `json:"evaluated"`
	Matched   int `json:"matched"`
	Created   int `json:"created"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// DispatchReport summarises one due-dispatch pass.
type DispatchReport struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

// Engine evaluates rules against leads.
type Engine struct {
	store       repository.Store
	manager     *lifecycle.Manager
	log         *logger.Logger
	concurrency int
}

func New(store repository.Store, manager *lifecycle.Manager, log *logger.Logger, concurrency int) *Engine {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Engine{store: store, manager: manager, log: log, concurrency: concurrency}
}

// EvaluateCompany matches every active rule against every lead.
func (e *Engine) EvaluateCompany(ctx context.Context, companyID uuid.UUID) (Report, error) {
	snap, err := e.store.Snapshot(ctx, companyID)
	if err != nil {
		return Report{}, fmt.Errorf("load company state: %w", err)
	}
	return e.evaluate(ctx, companyID, snap, snap.Leads)
}

// EvaluateLead matches every active rule against one lead.
func (e *Engine) EvaluateLead(ctx context.Context, companyID, leadID uuid.UUID) (Report, error) {
	snap, err := e.store.Snapshot(ctx, companyID)
	if err != nil {
		return Report{}, fmt.Errorf("load company state: %w", err)
	}
	for _, lead := range snap.Leads {
		if lead.ID == leadID {
			return e.evaluate(ctx, companyID, snap, []domain.Lead{lead})
		}
	}
	return Report{}, apperr.NotFound("lead not found")
}

func (e *Engine) evaluate(ctx context.Context, companyID uuid.UUID, snap repository.Collections, leads []domain.Lead) (Report, error) {
	now := e.manager.Now()
	buckets := e.manager.Buckets()

	byLead := make(map[uuid.UUID][]domain.Reminder)
	for _, r := range snap.Reminders {
		byLead[r.LeadID] = append(byLead[r.LeadID], r)
	}

	var (
		mu     sync.Mutex
		report Report
	)
	count := func(fn func(*Report)) {
		mu.Lock()
		fn(&report)
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)

	for _, rule := range snap.Rules {
		if !rule.Active {
			continue
		}
		for _, lead := range leads {
			res := matcher.Evaluate(lead, rule, byLead[lead.ID], buckets, now)
			count(func(r *Report) { r.Evaluated++ })
			if !res.Matched() {
				continue
			}
			count(func(r *Report) { r.Matched++ })

			trig := *res.Trigger
			g.Go(func() error {
				out, err := e.manager.ProcessTrigger(gctx, companyID, trig, lead)
				if err != nil {
					e.log.WithContext(gctx).Warn("process trigger failed",
						"companyId", companyID, "ruleId", trig.RuleID, "leadId", trig.LeadID, "error", err)
					count(func(r *Report) { r.Failed++ })
					return nil
				}
				if out.Created {
					count(func(r *Report) { r.Created++ })
				} else {
					count(func(r *Report) { r.Skipped++ })
				}
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return report, err
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}

// DispatchDue sends every pending reminder whose scheduled time has come.
// Failures leave reminders pending for the next pass.
func (e *Engine) DispatchDue(ctx context.Context, companyID uuid.UUID, now time.Time) (DispatchReport, error) {
	reminders, err := e.store.Reminders(ctx, companyID)
	if err != nil {
		return DispatchReport{}, fmt.Errorf("load reminders: %w", err)
	}

	var report DispatchReport
	for _, r := range reminders {
		if r.Status != domain.StatusPending || r.ScheduledAt.After(now) {
			continue
		}
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		if _, err := e.manager.Dispatch(ctx, companyID, r.ID); err != nil {
			if apperr.Is(err, apperr.KindConflict) {
				continue
			}
			report.Failed++
			continue
		}
		report.Sent++
	}
	return report, nil
}
