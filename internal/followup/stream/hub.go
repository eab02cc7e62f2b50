// Package stream pushes follow-up events to connected agents over
// Server-Sent Events.
package stream

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"leadflow_backend/internal/events"
	"leadflow_backend/internal/followup/domain"
	"leadflow_backend/internal/followup/inbox"
	"leadflow_backend/platform/httpkit"
	"leadflow_backend/platform/logger"
)

// EventType names the SSE event sent to the browser.
type EventType string

const (
	EventReminderCreated   EventType = "reminder_created"
	EventReminderEscalated EventType = "reminder_escalated"
	EventReminderNotice    EventType = "reminder_notification"
	EventReminderTask      EventType = "reminder_task"
)

const (
	clientBuffer = 32
	pollBatch    = 100
)

// Source is the durable inbox the hub tails for notifications written by
// any process.
type Source interface {
	Since(ctx context.Context, companyID uuid.UUID, afterSeq int64, limit int) ([]inbox.Notification, error)
	LatestSeq(ctx context.Context, companyID uuid.UUID) (int64, error)
}

// Event is the SSE payload.
type Event struct {
	Type       EventType `json:"type"`
	ReminderID uuid.UUID `json:"reminderId"`
	LeadID     uuid.UUID `json:"leadId"`
	Message    string    `json:"message,omitempty"`
	Data       any       `json:"data,omitempty"`
}

type client struct {
	userID    uuid.UUID
	companyID uuid.UUID
	events    chan Event
}

// Hub fans bus events and new inbox rows out to the SSE clients of a
// company.
type Hub struct {
	mu      sync.RWMutex
	clients map[uuid.UUID][]*client // companyID -> clients
	cursors map[uuid.UUID]int64     // companyID -> last streamed inbox seq
	source  Source
	log     *logger.Logger
}

// NewHub creates an empty hub. source may be nil, in which case only bus
// events are streamed.
func NewHub(source Source, log *logger.Logger) *Hub {
	if log == nil {
		log = logger.Discard()
	}
	return &Hub{
		clients: make(map[uuid.UUID][]*client),
		cursors: make(map[uuid.UUID]int64),
		source:  source,
		log:     log,
	}
}

func (h *Hub) addClient(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.companyID] = append(h.clients[c.companyID], c)
}

func (h *Hub) removeClient(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := h.clients[c.companyID]
	for i, cl := range clients {
		if cl == c {
			h.clients[c.companyID] = append(clients[:i], clients[i+1:]...)
			break
		}
	}
	if len(h.clients[c.companyID]) == 0 {
		delete(h.clients, c.companyID)
		delete(h.cursors, c.companyID)
	}
}

// track starts tailing the inbox of a company at its current end, so a new
// connection only sees notifications created after it.
func (h *Hub) track(ctx context.Context, companyID uuid.UUID) error {
	if h.source == nil {
		return nil
	}
	h.mu.RLock()
	_, ok := h.cursors[companyID]
	h.mu.RUnlock()
	if ok {
		return nil
	}

	seq, err := h.source.LatestSeq(ctx, companyID)
	if err != nil {
		return err
	}
	h.mu.Lock()
	if _, ok := h.cursors[companyID]; !ok {
		h.cursors[companyID] = seq
	}
	h.mu.Unlock()
	return nil
}

// Clients reports how many connections a company has open.
func (h *Hub) Clients(companyID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[companyID])
}

// Publish sends event to every connection of the company. Slow clients
// drop events instead of blocking the publisher.
func (h *Hub) Publish(companyID uuid.UUID, event Event) {
	h.mu.RLock()
	clients := append([]*client(nil), h.clients[companyID]...)
	h.mu.RUnlock()

	for _, c := range clients {
		select {
		case c.events <- event:
		default:
			h.log.Warn("stream buffer full, event dropped", "userId", c.userID, "type", event.Type)
		}
	}
}

// Watch polls the inbox every interval until ctx is done.
func (h *Hub) Watch(ctx context.Context, interval time.Duration) {
	if h.source == nil {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.poll(ctx)
		}
	}
}

// poll streams inbox rows created since the last poll to every tracked
// company.
func (h *Hub) poll(ctx context.Context) {
	h.mu.RLock()
	cursors := make(map[uuid.UUID]int64, len(h.cursors))
	for companyID, seq := range h.cursors {
		cursors[companyID] = seq
	}
	h.mu.RUnlock()

	for companyID, after := range cursors {
		items, err := h.source.Since(ctx, companyID, after, pollBatch)
		if err != nil {
			h.log.Warn("inbox poll failed", "companyId", companyID, "error", err)
			continue
		}
		for _, n := range items {
			h.Publish(companyID, inboxEvent(n))
			after = n.Seq
		}

		h.mu.Lock()
		if current, ok := h.cursors[companyID]; ok && current < after {
			h.cursors[companyID] = after
		}
		h.mu.Unlock()
	}
}

func inboxEvent(n inbox.Notification) Event {
	eventType := EventReminderNotice
	if n.Kind == domain.MethodTask {
		eventType = EventReminderTask
	}
	return Event{
		Type:       eventType,
		ReminderID: n.ReminderID,
		LeadID:     n.LeadID,
		Message:    n.Title,
		Data:       gin.H{"notificationId": n.ID, "recipient": n.Recipient, "body": n.Content},
	}
}

// Register subscribes the hub to reminder events.
func (h *Hub) Register(bus events.Bus) {
	bus.Subscribe(events.ReminderCreated{}.EventName(), h)
	bus.Subscribe(events.ReminderEscalated{}.EventName(), h)
}

// Handle implements events.Handler.
func (h *Hub) Handle(_ context.Context, event events.Event) error {
	switch e := event.(type) {
	case events.ReminderCreated:
		h.Publish(e.CompanyID, Event{
			Type:       EventReminderCreated,
			ReminderID: e.ReminderID,
			LeadID:     e.LeadID,
			Data:       gin.H{"ruleId": e.RuleID, "method": e.Method, "scheduledAt": e.ScheduledAt},
		})
	case events.ReminderEscalated:
		h.Publish(e.CompanyID, Event{
			Type:       EventReminderEscalated,
			ReminderID: e.ReminderID,
			LeadID:     e.LeadID,
			Data:       gin.H{"level": e.Level, "escalatedTo": e.EscalatedTo},
		})
	}
	return nil
}

// Handler streams the caller's company events until the client disconnects.
func (h *Hub) Handler(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	cl := &client{
		userID:    identity.UserID(),
		companyID: identity.CompanyID(),
		events:    make(chan Event, clientBuffer),
	}
	h.addClient(cl)
	defer h.removeClient(cl)
	if err := h.track(c.Request.Context(), cl.companyID); err != nil {
		h.log.Warn("inbox cursor unavailable, streaming bus events only", "companyId", cl.companyID, "error", err)
	}

	c.SSEvent("connected", gin.H{"userId": cl.userID, "companyId": cl.companyID})
	c.Writer.Flush()
	h.log.Debug("stream client connected", "userId", cl.userID, "companyId", cl.companyID)

	clientGone := c.Request.Context().Done()
	for {
		select {
		case <-clientGone:
			h.log.Debug("stream client disconnected", "userId", cl.userID)
			return
		case event := <-cl.events:
			data, err := json.Marshal(event)
			if err != nil {
				continue
			}
			c.SSEvent(string(event.Type), string(data))
			c.Writer.Flush()
		}
	}
}
