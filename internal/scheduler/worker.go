package scheduler

import (
	"context"
	"fmt"
	"time"

	"leadflow_backend/internal/followup/domain"
	"leadflow_backend/internal/followup/transport"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// Sweeper runs a full follow-up pass for one company.
type Sweeper interface {
	Sweep(ctx context.Context, companyID uuid.UUID) (transport.SweepResponse, error)
}

// ReminderDispatcher sends one pending reminder.
type ReminderDispatcher interface {
	Dispatch(ctx context.Context, companyID, reminderID uuid.UUID) (domain.Reminder, error)
}

// SnapshotArchiver stores analytics snapshots of every company.
type SnapshotArchiver interface {
	ArchiveAll(ctx context.Context, now time.Time) (int, error)
}

type Worker struct {
	server     *asynq.Server
	mux        *asynq.ServeMux
	sweeper    Sweeper
	dispatcher ReminderDispatcher
	archiver   SnapshotArchiver
	loc        *time.Location
	log        *logger.Logger
}

// NewWorker creates the asynq worker. archiver may be nil when object
// storage is not configured; loc defines snapshot days.
func NewWorker(cfg config.SchedulerConfig, loc *time.Location, sweeper Sweeper, dispatcher ReminderDispatcher, archiver SnapshotArchiver, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queueName(cfg): 1,
		},
	})

	w := newWorker(loc, sweeper, dispatcher, archiver, log)
	w.server = server
	return w, nil
}

func newWorker(loc *time.Location, sweeper Sweeper, dispatcher ReminderDispatcher, archiver SnapshotArchiver, log *logger.Logger) *Worker {
	if loc == nil {
		loc = time.UTC
	}
	mux := asynq.NewServeMux()
	w := &Worker{
		mux:        mux,
		sweeper:    sweeper,
		dispatcher: dispatcher,
		archiver:   archiver,
		loc:        loc,
		log:        log,
	}

	mux.HandleFunc(TaskFollowUpSweep, w.handleFollowUpSweep)
	mux.HandleFunc(TaskReminderDispatch, w.handleReminderDispatch)
	mux.HandleFunc(TaskAnalyticsSnapshot, w.handleAnalyticsSnapshot)
	return w
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}

func (w *Worker) handleFollowUpSweep(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseFollowUpSweepPayload(task)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	companyID, err := uuid.Parse(payload.CompanyID)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	res, err := w.sweeper.Sweep(ctx, companyID)
	if err != nil {
		return err
	}
	if res.Escalated > 0 || res.Created > 0 || res.Dispatched > 0 {
		w.log.Info("follow-up sweep task finished", "companyId", companyID,
			"escalated", res.Escalated, "created", res.Created, "dispatched", res.Dispatched)
	}
	return nil
}

func (w *Worker) handleReminderDispatch(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseReminderDispatchPayload(task)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	companyID, err := uuid.Parse(payload.CompanyID)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	reminderID, err := uuid.Parse(payload.ReminderID)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	_, err = w.dispatcher.Dispatch(ctx, companyID, reminderID)
	switch {
	case err == nil:
		return nil
	case apperr.Is(err, apperr.KindConflict), apperr.Is(err, apperr.KindNotFound):
		// Already sent, snoozed, cancelled or removed; nothing left to do.
		return nil
	default:
		return err
	}
}

func (w *Worker) handleAnalyticsSnapshot(ctx context.Context, task *asynq.Task) error {
	if w.archiver == nil {
		return nil
	}

	payload, err := ParseAnalyticsSnapshotPayload(task)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	day, err := time.ParseInLocation(snapshotDayLayout, payload.Day, w.loc)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	// Snapshot as of the last moment of the requested day.
	asOf := day.AddDate(0, 0, 1).Add(-time.Second)
	archived, err := w.archiver.ArchiveAll(ctx, asOf)
	if err != nil {
		return err
	}
	w.log.Info("analytics snapshots archived", "day", payload.Day, "companies", archived)
	return nil
}
