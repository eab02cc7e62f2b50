// Package followup provides the lead follow-up bounded context module:
// aging classification, rule evaluation, reminder lifecycle, escalation
// and analytics.
package followup

import (
	"leadflow_backend/internal/events"
	"leadflow_backend/internal/followup/archive"
	"leadflow_backend/internal/followup/domain"
	"leadflow_backend/internal/followup/engine"
	"leadflow_backend/internal/followup/escalation"
	"leadflow_backend/internal/followup/handler"
	"leadflow_backend/internal/followup/inbox"
	"leadflow_backend/internal/followup/lifecycle"
	"leadflow_backend/internal/followup/recommendation"
	"leadflow_backend/internal/followup/repository"
	"leadflow_backend/internal/followup/rules"
	"leadflow_backend/internal/followup/service"
	"leadflow_backend/internal/followup/stream"
	apphttp "leadflow_backend/internal/http"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/distlock"
	"leadflow_backend/platform/httpkit"
	"leadflow_backend/platform/logger"
	"leadflow_backend/platform/telemetry"
	"leadflow_backend/platform/validator"
)

const roleAdmin = "admin"

// Deps are the collaborators the module is built from.
type Deps struct {
	Store     repository.Store
	Inbox     *inbox.Service
	Locker    distlock.Locker
	Generator recommendation.Generator
	Sender    lifecycle.Sender
	Bus       events.Bus
	Metrics   *telemetry.Metrics
	Buckets   []domain.AgingBucket
	Archive   *archive.Archiver
	Validator *validator.Validator
	Log       *logger.Logger
}

// Module is the follow-up bounded context module implementing http.Module.
type Module struct {
	handler    *handler.Handler
	inbox      *handler.NotificationHandler
	manager    *lifecycle.Manager
	engine     *engine.Engine
	scheduler  *escalation.Scheduler
	service    *service.Service
	rules      *rules.Service
	subscriber *engine.Subscriber
	stream     *stream.Hub
}

// NewModule creates and initializes the follow-up module with all its dependencies.
func NewModule(cfg config.FollowUpConfig, recCfg config.RecommendationConfig, deps Deps) *Module {
	if deps.Inbox == nil {
		deps.Inbox = inbox.NewService(inbox.NewMemoryRepository(), deps.Log)
	}
	composer := recommendation.NewComposer(deps.Generator, recCfg.GetRecommendationTimeout(), deps.Log, deps.Metrics)
	manager := lifecycle.New(lifecycle.Options{
		Store:    deps.Store,
		Locker:   deps.Locker,
		LockTTL:  cfg.GetPairLockTTL(),
		Composer: composer,
		Sender:   deps.Sender,
		Bus:      deps.Bus,
		Metrics:  deps.Metrics,
		Buckets:  deps.Buckets,
		Log:      deps.Log,
	})
	eng := engine.New(deps.Store, manager, deps.Log, cfg.GetEvaluationConcurrency())
	scheduler := escalation.NewScheduler(deps.Store, manager, deps.Metrics, deps.Log, cfg.GetSweepInterval())
	svc := service.New(deps.Store, manager, eng, scheduler, cfg.GetTimezone(), deps.Log)
	rulesSvc := rules.New(deps.Store, composer.Renderer(), deps.Log)

	return &Module{
		handler:    handler.New(rulesSvc, svc, deps.Archive, deps.Validator),
		inbox:      handler.NewNotificationHandler(deps.Inbox),
		manager:    manager,
		engine:     eng,
		scheduler:  scheduler,
		service:    svc,
		rules:      rulesSvc,
		subscriber: engine.NewSubscriber(eng),
		stream:     stream.NewHub(deps.Inbox, deps.Log),
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "followups"
}

// Manager returns the reminder lifecycle manager.
func (m *Module) Manager() *lifecycle.Manager { return m.manager }

// Engine returns the rule evaluation engine.
func (m *Module) Engine() *engine.Engine { return m.engine }

// Scheduler returns the escalation scheduler.
func (m *Module) Scheduler() *escalation.Scheduler { return m.scheduler }

// Service returns the service layer for external use.
func (m *Module) Service() *service.Service { return m.service }

// RegisterRoutes mounts follow-up routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	g := ctx.Protected.Group("/followups")

	g.GET("/rules", m.handler.ListRules)
	g.GET("/rules/:id", m.handler.GetRule)

	g.GET("/reminders", m.handler.ListReminders)
	g.GET("/reminders/:id", m.handler.GetReminder)
	g.POST("/reminders/:id/dispatch", m.handler.DispatchReminder)
	g.POST("/reminders/:id/complete", m.handler.CompleteReminder)
	g.POST("/reminders/:id/snooze", m.handler.SnoozeReminder)
	g.POST("/reminders/:id/cancel", m.handler.CancelReminder)
	g.POST("/reminders/:id/interactions", m.handler.RecordInteraction)

	g.GET("/analytics/summary", m.handler.Summary)
	g.GET("/analytics/rules", m.handler.RuleEffectiveness)
	g.GET("/analytics/snapshots", m.handler.ListSnapshots)
	g.GET("/analytics/snapshots/:date", m.handler.GetSnapshot)
	g.GET("/analytics/snapshots/:date/download", m.handler.DownloadSnapshot)
	g.GET("/aging", m.handler.Aging)
	g.PUT("/leads/:id", m.handler.UpsertLead)
	g.DELETE("/leads/:id", m.handler.DeleteLead)
	g.GET("/stream", m.stream.Handler)
	m.inbox.RegisterRoutes(g.Group("/notifications"))

	// Rule administration and manual passes
	admin := g.Group("", httpkit.RequireRole(roleAdmin))
	admin.POST("/rules", m.handler.CreateRule)
	admin.PUT("/rules/:id", m.handler.UpdateRule)
	admin.DELETE("/rules/:id", m.handler.DeleteRule)
	admin.PATCH("/rules/:id/toggle-active", m.handler.ToggleRule)
	admin.POST("/reminders/:id/escalate", m.handler.EscalateReminder)
	admin.POST("/sweep", m.handler.Sweep)
}

// RegisterHandlers subscribes to in-process lead events and feeds reminder
// events to the live stream. Out-of-process CRMs use the /leads routes.
func (m *Module) RegisterHandlers(bus events.Bus) {
	m.subscriber.Register(bus)
	m.stream.Register(bus)
}

// Stream returns the live event hub.
func (m *Module) Stream() *stream.Hub { return m.stream }

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
