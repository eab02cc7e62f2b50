package scheduler

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"leadflow_backend/internal/events"
	"leadflow_backend/platform/config"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

const (
	snapshotDayLayout = "2006-01-02"
	snapshotRetention = 48 * time.Hour
	dispatchUniqueTTL = time.Hour
)

type Client struct {
	client *asynq.Client
	queue  string
}

// FollowUpScheduler enqueues follow-up work for the worker.
type FollowUpScheduler interface {
	EnqueueSweep(ctx context.Context, companyID uuid.UUID, window time.Duration) error
	ScheduleDispatch(ctx context.Context, companyID, reminderID uuid.UUID, runAt time.Time) error
	EnqueueSnapshot(ctx context.Context, day time.Time) error
}

func NewClient(cfg config.SchedulerConfig) (*Client, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	return &Client{
		client: asynq.NewClient(opt),
		queue:  queueName(cfg),
	}, nil
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// EnqueueSweep enqueues a company sweep. At most one sweep per company is
// queued within window.
func (c *Client) EnqueueSweep(ctx context.Context, companyID uuid.UUID, window time.Duration) error {
	if c == nil || c.client == nil {
		return nil
	}

	task, err := NewFollowUpSweepTask(FollowUpSweepPayload{CompanyID: companyID.String()})
	if err != nil {
		return err
	}

	return c.enqueue(ctx, task, asynq.Queue(c.queue), asynq.Unique(window))
}

// ScheduleDispatch sends a reminder at runAt.
func (c *Client) ScheduleDispatch(ctx context.Context, companyID, reminderID uuid.UUID, runAt time.Time) error {
	if c == nil || c.client == nil {
		return nil
	}

	task, err := NewReminderDispatchTask(ReminderDispatchPayload{
		CompanyID:  companyID.String(),
		ReminderID: reminderID.String(),
	})
	if err != nil {
		return err
	}

	return c.enqueue(ctx, task, asynq.ProcessAt(runAt), asynq.Queue(c.queue), asynq.Unique(dispatchUniqueTTL))
}

// EnqueueSnapshot archives the analytics of day. The task id is derived
// from the day and completed tasks are retained, so a day is archived once.
func (c *Client) EnqueueSnapshot(ctx context.Context, day time.Time) error {
	if c == nil || c.client == nil {
		return nil
	}

	task, err := NewAnalyticsSnapshotTask(AnalyticsSnapshotPayload{Day: day.Format(snapshotDayLayout)})
	if err != nil {
		return err
	}

	return c.enqueue(ctx, task,
		asynq.Queue(c.queue),
		asynq.TaskID(TaskAnalyticsSnapshot+":"+day.Format(snapshotDayLayout)),
		asynq.Retention(snapshotRetention),
	)
}

// Handle schedules delivery of newly created reminders.
func (c *Client) Handle(ctx context.Context, event events.Event) error {
	switch e := event.(type) {
	case events.ReminderCreated:
		return c.ScheduleDispatch(ctx, e.CompanyID, e.ReminderID, e.ScheduledAt)
	default:
		return nil
	}
}

// RegisterHandlers subscribes the client to reminder creation.
func (c *Client) RegisterHandlers(bus events.Bus) {
	bus.Subscribe(events.ReminderCreated{}.EventName(), c)
}

func (c *Client) enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) error {
	_, err := c.client.EnqueueContext(ctx, task, opts...)
	if errors.Is(err, asynq.ErrDuplicateTask) || errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	return err
}

func queueName(cfg config.SchedulerConfig) string {
	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}
	return queue
}

func redisClientOpt(redisURL string, tlsInsecure bool) (asynq.RedisClientOpt, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}

	var tlsConfig *tls.Config
	if opt.TLSConfig != nil {
		clone := opt.TLSConfig.Clone()
		if tlsInsecure {
			clone.InsecureSkipVerify = true
		}
		tlsConfig = clone
	} else if tlsInsecure {
		tlsConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return asynq.RedisClientOpt{
		Addr:      opt.Addr,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: tlsConfig,
	}, nil
}
