package stream

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"leadflow_backend/internal/events"
	"leadflow_backend/internal/followup/domain"
	"leadflow_backend/internal/followup/inbox"
	"leadflow_backend/platform/httpkit"
)

func TestHubPublishesToCompanyOnly(t *testing.T) {
	hub := NewHub(nil, nil)
	companyA, companyB := uuid.New(), uuid.New()
	a := &client{companyID: companyA, events: make(chan Event, 1)}
	b := &client{companyID: companyB, events: make(chan Event, 1)}
	hub.addClient(a)
	hub.addClient(b)

	err := hub.Handle(context.Background(), events.ReminderEscalated{
		CompanyID:  companyA,
		ReminderID: uuid.New(),
		Level:      1,
	})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}

	select {
	case ev := <-a.events:
		if ev.Type != EventReminderEscalated {
			t.Fatalf("unexpected event %+v", ev)
		}
	default:
		t.Fatalf("expected event for company A")
	}
	if len(b.events) != 0 {
		t.Fatalf("company B must not receive company A events")
	}
}

func deliver(t *testing.T, svc *inbox.Service, companyID uuid.UUID, method domain.Method, subject string) {
	t.Helper()
	_, err := svc.Deliver(context.Background(), domain.Message{
		CompanyID:  companyID,
		ReminderID: uuid.New(),
		LeadID:     uuid.New(),
		Method:     method,
		Recipient:  "agent-1",
		Subject:    subject,
	})
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
}

func TestHubStreamsNewInboxRows(t *testing.T) {
	svc := inbox.NewService(inbox.NewMemoryRepository(), nil)
	hub := NewHub(svc, nil)
	companyID, other := uuid.New(), uuid.New()
	ctx := context.Background()

	deliver(t, svc, companyID, domain.MethodNotification, "Before connect")

	c := &client{companyID: companyID, events: make(chan Event, 4)}
	hub.addClient(c)
	if err := hub.track(ctx, companyID); err != nil {
		t.Fatalf("track: %v", err)
	}

	deliver(t, svc, companyID, domain.MethodTask, "Call back")
	deliver(t, svc, other, domain.MethodNotification, "Other company")
	hub.poll(ctx)

	if len(c.events) != 1 {
		t.Fatalf("expected only the row written after connect, got %d events", len(c.events))
	}
	ev := <-c.events
	if ev.Type != EventReminderTask || ev.Message != "Call back" {
		t.Fatalf("unexpected event %+v", ev)
	}

	hub.poll(ctx)
	if len(c.events) != 0 {
		t.Fatalf("rows must be streamed once")
	}

	hub.removeClient(c)
	deliver(t, svc, companyID, domain.MethodNotification, "Nobody listening")
	hub.poll(ctx)
	if len(c.events) != 0 {
		t.Fatalf("disconnected company must not be polled")
	}
}

func TestHubDropsWhenBufferFull(t *testing.T) {
	hub := NewHub(nil, nil)
	companyID := uuid.New()
	c := &client{companyID: companyID, events: make(chan Event, 1)}
	hub.addClient(c)

	hub.Publish(companyID, Event{Type: EventReminderCreated})
	hub.Publish(companyID, Event{Type: EventReminderEscalated})

	if len(c.events) != 1 {
		t.Fatalf("expected one buffered event, got %d", len(c.events))
	}
	if ev := <-c.events; ev.Type != EventReminderCreated {
		t.Fatalf("expected first event to be kept, got %s", ev.Type)
	}

	hub.removeClient(c)
	if hub.Clients(companyID) != 0 {
		t.Fatalf("expected client removed")
	}
}

func TestHandlerStreamsCompanyEvents(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := NewHub(nil, nil)
	companyID := uuid.New()

	engine := gin.New()
	engine.GET("/stream", func(c *gin.Context) {
		c.Set(httpkit.ContextUserIDKey, uuid.New())
		c.Set(httpkit.ContextCompanyIDKey, companyID)
		c.Next()
	}, hub.Handler)
	srv := httptest.NewServer(engine)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/stream", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("unexpected content type %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	waitForEvent(t, reader, "connected")

	reminderID := uuid.New()
	hub.Publish(companyID, Event{Type: EventReminderCreated, ReminderID: reminderID})

	data := waitForEvent(t, reader, string(EventReminderCreated))
	if !strings.Contains(data, reminderID.String()) {
		t.Fatalf("expected reminder id in payload, got %s", data)
	}
}

func TestHandlerRequiresCompany(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := NewHub(nil, nil)

	engine := gin.New()
	engine.GET("/stream", hub.Handler)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/stream", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

// waitForEvent reads until the named event and returns its data line.
func waitForEvent(t *testing.T, reader *bufio.Reader, name string) string {
	t.Helper()
	matched := false
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read stream waiting for %s: %v", name, err)
		}
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "event:"):
			matched = strings.TrimSpace(strings.TrimPrefix(line, "event:")) == name
		case matched && strings.HasPrefix(line, "data:"):
			return strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
	}
}
