package scheduler

import (
	"context"
	"time"

	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
)

const defaultSweepInterval = 5 * time.Minute

// CompanyLister lists the companies that have follow-up state.
type CompanyLister interface {
	Companies(ctx context.Context) ([]uuid.UUID, error)
}

// SweepDispatcher enqueues one sweep per company on every tick and the
// previous day's analytics snapshot once per day.
type SweepDispatcher struct {
	client    FollowUpScheduler
	companies CompanyLister
	interval  time.Duration
	loc       *time.Location
	log       *logger.Logger
	now       func() time.Time
}

func NewSweepDispatcher(client FollowUpScheduler, companies CompanyLister, interval time.Duration, loc *time.Location, log *logger.Logger) *SweepDispatcher {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	if loc == nil {
		loc = time.UTC
	}
	return &SweepDispatcher{
		client:    client,
		companies: companies,
		interval:  interval,
		loc:       loc,
		log:       log,
		now:       time.Now,
	}
}

func (d *SweepDispatcher) Run(ctx context.Context) {
	if d == nil || d.client == nil || d.companies == nil {
		return
	}

	d.tick(ctx)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.tick(ctx)
		}
	}
}

// tick returns the number of sweeps enqueued.
func (d *SweepDispatcher) tick(ctx context.Context) int {
	companies, err := d.companies.Companies(ctx)
	if err != nil {
		d.log.Warn("list follow-up companies failed", "error", err)
		return 0
	}

	enqueued := 0
	for _, companyID := range companies {
		if err := d.client.EnqueueSweep(ctx, companyID, d.interval); err != nil {
			d.log.Warn("enqueue follow-up sweep failed", "companyId", companyID, "error", err)
			continue
		}
		enqueued++
	}

	yesterday := d.now().In(d.loc).AddDate(0, 0, -1)
	if err := d.client.EnqueueSnapshot(ctx, yesterday); err != nil {
		d.log.Warn("enqueue analytics snapshot failed", "error", err)
	}
	return enqueued
}
