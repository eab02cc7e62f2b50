// Package bootstrap builds the follow-up module's collaborators from
// configuration. Both the API and the scheduler binaries use it so the two
// processes agree on locks, channels and the recommendation backend.
package bootstrap

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/redis/go-redis/v9"

	"leadflow_backend/internal/adapters/storage"
	"leadflow_backend/internal/events"
	"leadflow_backend/internal/followup"
	"leadflow_backend/internal/followup/archive"
	"leadflow_backend/internal/followup/dispatch"
	"leadflow_backend/internal/followup/domain"
	"leadflow_backend/internal/followup/inbox"
	"leadflow_backend/internal/followup/recommendation"
	"leadflow_backend/internal/followup/repository"
	"leadflow_backend/platform/ai/moonshot"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/distlock"
	"leadflow_backend/platform/logger"
	"leadflow_backend/platform/telemetry"
	"leadflow_backend/platform/validator"
)

// Runtime holds the shared pieces a binary needs after wiring.
type Runtime struct {
	Module   *followup.Module
	Archiver *archive.Archiver
	Storage  storage.StorageService
	Redis    *redis.Client
}

// Close releases the Redis connection if one was opened.
func (r *Runtime) Close() error {
	if r.Redis != nil {
		return r.Redis.Close()
	}
	return nil
}

// NewRedis opens a go-redis client for the configured URL. It returns nil
// without error when Redis is not configured.
func NewRedis(cfg config.SchedulerConfig) (*redis.Client, error) {
	if cfg.GetRedisURL() == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(cfg.GetRedisURL())
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if opts.TLSConfig != nil && cfg.GetRedisTLSInsecure() {
		opts.TLSConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in for self-signed dev brokers
	}
	return redis.NewClient(opts), nil
}

// NewGenerator returns the LLM-backed generator, or nil when no API key is set.
// The nil interface makes the composer fall back to templates.
func NewGenerator(cfg config.RecommendationConfig) recommendation.Generator {
	if !cfg.IsRecommendationEnabled() {
		return nil
	}
	llm := moonshot.NewModel(moonshot.Config{
		APIKey:  cfg.GetMoonshotAPIKey(),
		Model:   cfg.GetMoonshotModel(),
		Timeout: cfg.GetRecommendationTimeout(),
	})
	return recommendation.NewLLMGenerator(llm, cfg.GetRecommendationRatePerMinute())
}

// NewSender registers a channel per reminder method. Notifications and tasks
// go to the persisted inbox. Email and SMS fall back to the log channel when
// their transports are not configured.
func NewSender(cfg *config.Config, notifications *inbox.Service, log *logger.Logger) *dispatch.Router {
	logChannel := dispatch.NewLogChannel(log)
	inApp := dispatch.NewInboxChannel(notifications)

	router := dispatch.NewRouter(log).
		Register(domain.MethodNotification, inApp).
		Register(domain.MethodTask, inApp)

	if cfg.IsSMTPEnabled() {
		router.Register(domain.MethodEmail, dispatch.NewEmailChannel(cfg))
	} else {
		log.Warn("SMTP not configured, email reminders are logged only")
		router.Register(domain.MethodEmail, logChannel)
	}

	if cfg.IsSMSEnabled() {
		router.Register(domain.MethodSMS, dispatch.NewSMSChannel(cfg))
	} else {
		log.Warn("SMS gateway not configured, sms reminders are logged only")
		router.Register(domain.MethodSMS, logChannel)
	}
	return router
}

// Build wires the follow-up module on top of an opened store, inbox and bus.
// ensureBucket is called once for the analytics bucket when MinIO is enabled.
func Build(
	ctx context.Context,
	cfg *config.Config,
	store repository.Store,
	notifications inbox.Repository,
	bus events.Bus,
	metrics *telemetry.Metrics,
	log *logger.Logger,
	ensureBucket func(ctx context.Context, svc storage.StorageService, bucket string),
) (*Runtime, error) {
	buckets, err := domain.LoadBuckets(cfg.GetAgingBucketsFile())
	if err != nil {
		return nil, err
	}

	redisClient, err := NewRedis(cfg)
	if err != nil {
		return nil, err
	}
	if redisClient == nil {
		log.Warn("REDIS_URL not set, reminder locks are process-local")
	}

	rt := &Runtime{Redis: redisClient}
	if cfg.IsMinIOEnabled() {
		svc, err := storage.NewMinIOService(cfg)
		if err != nil {
			_ = rt.Close()
			return nil, err
		}
		if ensureBucket != nil {
			ensureBucket(ctx, svc, cfg.GetMinioBucketAnalytics())
		}
		rt.Storage = svc
		rt.Archiver = archive.New(store, svc, cfg.GetMinioBucketAnalytics(), buckets, cfg.GetTimezone(), log)
	} else {
		log.Warn("MinIO not configured, analytics snapshots are disabled")
	}

	inboxSvc := inbox.NewService(notifications, log)
	rt.Module = followup.NewModule(cfg, cfg, followup.Deps{
		Store:     store,
		Inbox:     inboxSvc,
		Locker:    distlock.New(redisClient),
		Generator: NewGenerator(cfg),
		Sender:    NewSender(cfg, inboxSvc, log),
		Bus:       bus,
		Metrics:   metrics,
		Buckets:   buckets,
		Archive:   rt.Archiver,
		Validator: validator.New(),
		Log:       log,
	})
	return rt, nil
}
