package followup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"leadflow_backend/internal/followup/dispatch"
	"leadflow_backend/internal/followup/domain"
	"leadflow_backend/internal/followup/inbox"
	"leadflow_backend/internal/followup/repository"
	apphttp "leadflow_backend/internal/http"
	"leadflow_backend/internal/http/router"
	"leadflow_backend/platform/logger"
	"leadflow_backend/platform/validator"
)

const testSecret = "test-secret"

type testConfig struct{}

func (testConfig) GetJWTAccessSecret() string              { return testSecret }
func (testConfig) GetHTTPAddr() string                     { return ":0" }
func (testConfig) GetCORSAllowAll() bool                   { return true }
func (testConfig) GetCORSOrigins() []string                { return nil }
func (testConfig) GetCORSAllowCreds() bool                 { return false }
func (testConfig) GetSweepInterval() time.Duration         { return time.Minute }
func (testConfig) GetEvaluationConcurrency() int           { return 2 }
func (testConfig) GetPairLockTTL() time.Duration           { return time.Second }
func (testConfig) GetTimezone() *time.Location             { return time.UTC }
func (testConfig) GetAgingBucketsFile() string             { return "" }
func (testConfig) GetMoonshotAPIKey() string               { return "" }
func (testConfig) GetMoonshotModel() string                { return "" }
func (testConfig) GetRecommendationTimeout() time.Duration { return time.Second }
func (testConfig) GetRecommendationRatePerMinute() int     { return 0 }
func (testConfig) IsRecommendationEnabled() bool           { return false }

type senderFunc func(ctx context.Context, msg domain.Message) error

func (f senderFunc) Send(ctx context.Context, msg domain.Message) error { return f(ctx, msg) }

type apiFixture struct {
	engine    *gin.Engine
	module    *Module
	store     *repository.MemoryStore
	companyID uuid.UUID
	leadID    uuid.UUID
	sent      []domain.Message
}

func newAPIFixture(t *testing.T) *apiFixture {
	return newAPIFixtureWith(t, nil)
}

// newAPIFixtureWith lets a test replace module dependencies before the
// module is built.
func newAPIFixtureWith(t *testing.T, configure func(*Deps)) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	f := &apiFixture{store: repository.NewMemoryStore(), companyID: uuid.New(), leadID: uuid.New()}

	lead := domain.Lead{
		ID:         f.leadID,
		Name:       "Ada",
		Email:      "ada@example.com",
		CreatedAt:  time.Now().Add(-10 * 24 * time.Hour),
		Status:     domain.LeadStatusNew,
		AssigneeID: "agent-1",
	}
	if err := f.store.SetLeads(context.Background(), f.companyID, []domain.Lead{lead}); err != nil {
		t.Fatalf("seed leads: %v", err)
	}

	log := logger.Discard()
	deps := Deps{
		Store: f.store,
		Sender: senderFunc(func(_ context.Context, msg domain.Message) error {
			f.sent = append(f.sent, msg)
			return nil
		}),
		Validator: validator.New(),
		Log:       log,
	}
	if configure != nil {
		configure(&deps)
	}
	f.module = NewModule(testConfig{}, testConfig{}, deps)
	f.engine = router.New(&apphttp.App{Config: testConfig{}, Logger: log, Modules: []apphttp.Module{f.module}})
	return f
}

func (f *apiFixture) do(t *testing.T, method, path string, body any, roles ...string) *httptest.ResponseRecorder {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":        uuid.NewString(),
		"type":       "access",
		"company_id": f.companyID.String(),
		"roles":      roles,
		"exp":        time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Authorization", "Bearer "+signed)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.engine.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %s: %v", rec.Body.String(), err)
	}
	return out
}

var ruleBody = map[string]any{
	"name":        "Contact gap",
	"priority":    "high",
	"triggerType": "contact_gap",
	"conditions":  map[string]any{"minContactGapDays": 7},
	"reminder": map[string]any{
		"method":    "email",
		"frequency": "once",
		"template":  map[string]any{"subject": "Follow up {{ lead.name }}", "body": "It has been {{ aging.days_since_contact }} days."},
	},
}

func TestRuleAdministrationRequiresAdmin(t *testing.T) {
	f := newAPIFixture(t)
	if rec := f.do(t, http.MethodPost, "/api/v1/followups/rules", ruleBody); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	rec := f.do(t, http.MethodPost, "/api/v1/followups/rules", map[string]any{"name": "x"}, roleAdmin)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid rule, got %d", rec.Code)
	}
}

func TestFollowUpFlowOverHTTP(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/followups/rules", ruleBody, roleAdmin)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create rule: %d %s", rec.Code, rec.Body.String())
	}
	rule := decode[domain.FollowUpRule](t, rec)

	rec = f.do(t, http.MethodPost, "/api/v1/followups/sweep", nil, roleAdmin)
	if rec.Code != http.StatusOK {
		t.Fatalf("sweep: %d %s", rec.Code, rec.Body.String())
	}
	sweep := decode[map[string]any](t, rec)
	if sweep["created"].(float64) != 1 || sweep["dispatched"].(float64) != 1 {
		t.Fatalf("unexpected sweep result %v", sweep)
	}
	if len(f.sent) != 1 || f.sent[0].Recipient != "ada@example.com" || f.sent[0].Subject != "Follow up Ada" {
		t.Fatalf("unexpected dispatched messages %+v", f.sent)
	}

	rec = f.do(t, http.MethodGet, "/api/v1/followups/reminders?status=sent&ruleId="+rule.ID.String(), nil)
	list := decode[struct {
		Items []domain.Reminder `json:"items"`
		Total int               `json:"total"`
	}](t, rec)
	if list.Total != 1 {
		t.Fatalf("expected one sent reminder, got %d", list.Total)
	}
	reminderPath := "/api/v1/followups/reminders/" + list.Items[0].ID.String()

	if rec := f.do(t, http.MethodPost, reminderPath+"/snooze", map[string]any{"days": 0}); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for zero snooze days, got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodPost, reminderPath+"/interactions", map[string]any{"kind": "responded"}); rec.Code != http.StatusOK {
		t.Fatalf("record interaction: %d %s", rec.Code, rec.Body.String())
	}
	if rec := f.do(t, http.MethodPost, reminderPath+"/complete", nil); rec.Code != http.StatusOK {
		t.Fatalf("complete: %d %s", rec.Code, rec.Body.String())
	}
	if rec := f.do(t, http.MethodPost, reminderPath+"/dispatch", nil); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 dispatching a completed reminder, got %d", rec.Code)
	}

	rec = f.do(t, http.MethodGet, "/api/v1/followups/analytics/rules", nil)
	stats := decode[struct {
		Items []struct {
			Triggered     int `json:"triggered"`
			Effectiveness int `json:"effectiveness"`
		} `json:"items"`
	}](t, rec)
	if len(stats.Items) != 1 || stats.Items[0].Triggered != 1 || stats.Items[0].Effectiveness != 100 {
		t.Fatalf("unexpected effectiveness %+v", stats.Items)
	}

	rec = f.do(t, http.MethodGet, "/api/v1/followups/analytics/summary", nil)
	summary := decode[map[string]any](t, rec)
	if summary["totalReminders"].(float64) != 1 || summary["responseRate"].(float64) != 100 {
		t.Fatalf("unexpected summary %v", summary)
	}

	rec = f.do(t, http.MethodGet, "/api/v1/followups/aging", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("aging: %d", rec.Code)
	}
}

func TestMissingReminderIsNotFound(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, http.MethodGet, "/api/v1/followups/reminders/"+uuid.NewString(), nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	rec = f.do(t, http.MethodGet, "/api/v1/followups/reminders/not-a-uuid", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func notificationRule() map[string]any {
	return map[string]any{
		"name":        "Assignee nudge",
		"priority":    "medium",
		"triggerType": "contact_gap",
		"conditions":  map[string]any{"minContactGapDays": 7},
		"reminder": map[string]any{
			"method":    "notification",
			"frequency": "once",
			"template":  map[string]any{"subject": "Call {{ lead.name }}", "body": "No contact yet."},
		},
	}
}

type inboxPage struct {
	Items []inbox.Notification `json:"items"`
	Total int                  `json:"total"`
}

func TestNotificationDispatchWithoutListenersIsPersisted(t *testing.T) {
	var inboxSvc *inbox.Service
	f := newAPIFixtureWith(t, func(d *Deps) {
		inboxSvc = inbox.NewService(inbox.NewMemoryRepository(), d.Log)
		d.Inbox = inboxSvc
		d.Sender = dispatch.NewRouter(d.Log).Register(domain.MethodNotification, dispatch.NewInboxChannel(inboxSvc))
	})

	if rec := f.do(t, http.MethodPost, "/api/v1/followups/rules", notificationRule(), roleAdmin); rec.Code != http.StatusCreated {
		t.Fatalf("create rule: %d %s", rec.Code, rec.Body.String())
	}
	if f.module.Stream().Clients(f.companyID) != 0 {
		t.Fatalf("expected no stream clients")
	}

	rec := f.do(t, http.MethodPost, "/api/v1/followups/sweep", nil, roleAdmin)
	sweep := decode[map[string]any](t, rec)
	if sweep["dispatched"].(float64) != 1 {
		t.Fatalf("unexpected sweep result %v", sweep)
	}

	page := decode[inboxPage](t, f.do(t, http.MethodGet, "/api/v1/followups/notifications?all=true", nil))
	if page.Total != 1 || page.Items[0].Title != "Call Ada" || page.Items[0].Recipient != "agent-1" {
		t.Fatalf("expected persisted notification, got %+v", page)
	}

	rec = f.do(t, http.MethodGet, "/api/v1/followups/notifications/unread?all=true", nil)
	if count := decode[map[string]any](t, rec)["count"].(float64); count != 1 {
		t.Fatalf("expected one unread, got %v", count)
	}
	if rec := f.do(t, http.MethodPatch, "/api/v1/followups/notifications/"+page.Items[0].ID.String()+"/read", nil); rec.Code != http.StatusOK {
		t.Fatalf("mark read: %d %s", rec.Code, rec.Body.String())
	}
	rec = f.do(t, http.MethodGet, "/api/v1/followups/notifications/unread?all=true", nil)
	if count := decode[map[string]any](t, rec)["count"].(float64); count != 0 {
		t.Fatalf("expected no unread after marking read, got %v", count)
	}
}

type brokenInbox struct {
	*inbox.MemoryRepository
}

func (brokenInbox) Create(context.Context, inbox.Notification) (inbox.Notification, error) {
	return inbox.Notification{}, errors.New("database unavailable")
}

func TestNotificationStoreFailureKeepsReminderPending(t *testing.T) {
	f := newAPIFixtureWith(t, func(d *Deps) {
		svc := inbox.NewService(brokenInbox{inbox.NewMemoryRepository()}, d.Log)
		d.Inbox = svc
		d.Sender = dispatch.NewRouter(d.Log).Register(domain.MethodNotification, dispatch.NewInboxChannel(svc))
	})

	if rec := f.do(t, http.MethodPost, "/api/v1/followups/rules", notificationRule(), roleAdmin); rec.Code != http.StatusCreated {
		t.Fatalf("create rule: %d %s", rec.Code, rec.Body.String())
	}
	sweep := decode[map[string]any](t, f.do(t, http.MethodPost, "/api/v1/followups/sweep", nil, roleAdmin))
	if sweep["dispatched"].(float64) != 0 {
		t.Fatalf("nothing may count as dispatched, got %v", sweep)
	}

	list := decode[struct {
		Total int `json:"total"`
	}](t, f.do(t, http.MethodGet, "/api/v1/followups/reminders?status=pending", nil))
	if list.Total != 1 {
		t.Fatalf("expected the reminder to stay pending, got %d", list.Total)
	}
}

func TestDeletingLeadOverHTTPCancelsReminders(t *testing.T) {
	f := newAPIFixture(t)
	if rec := f.do(t, http.MethodPost, "/api/v1/followups/rules", ruleBody, roleAdmin); rec.Code != http.StatusCreated {
		t.Fatalf("create rule: %d %s", rec.Code, rec.Body.String())
	}
	if rec := f.do(t, http.MethodPost, "/api/v1/followups/sweep", nil, roleAdmin); rec.Code != http.StatusOK {
		t.Fatalf("sweep: %d %s", rec.Code, rec.Body.String())
	}

	rec := f.do(t, http.MethodDelete, "/api/v1/followups/leads/"+f.leadID.String(), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete lead: %d %s", rec.Code, rec.Body.String())
	}
	if got := decode[map[string]any](t, rec)["cancelledReminders"].(float64); got != 1 {
		t.Fatalf("expected one cancelled reminder, got %v", got)
	}

	list := decode[struct {
		Items []domain.Reminder `json:"items"`
	}](t, f.do(t, http.MethodGet, "/api/v1/followups/reminders?leadId="+f.leadID.String(), nil))
	if len(list.Items) != 1 || list.Items[0].Status != domain.StatusCancelled || list.Items[0].CancelReason != "lead deleted" {
		t.Fatalf("expected cancelled reminder, got %+v", list.Items)
	}

	leads, _ := f.store.Leads(context.Background(), f.companyID)
	if len(leads) != 0 {
		t.Fatalf("expected lead removed, got %+v", leads)
	}
}

func TestUpsertLeadOverHTTPEvaluatesRules(t *testing.T) {
	f := newAPIFixture(t)
	if rec := f.do(t, http.MethodPost, "/api/v1/followups/rules", ruleBody, roleAdmin); rec.Code != http.StatusCreated {
		t.Fatalf("create rule: %d %s", rec.Code, rec.Body.String())
	}

	leadID := uuid.New()
	path := "/api/v1/followups/leads/" + leadID.String()
	if rec := f.do(t, http.MethodPut, path, map[string]any{"name": "Grace", "email": "not-an-email"}); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid email, got %d", rec.Code)
	}

	rec := f.do(t, http.MethodPut, path, map[string]any{
		"name":      "Grace",
		"email":     "grace@example.com",
		"createdAt": time.Now().Add(-20 * 24 * time.Hour),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("upsert lead: %d %s", rec.Code, rec.Body.String())
	}
	if created := decode[map[string]any](t, rec)["created"].(float64); created != 1 {
		t.Fatalf("expected a reminder for the new lead, got %v", created)
	}

	leads, _ := f.store.Leads(context.Background(), f.companyID)
	found := false
	for _, l := range leads {
		if l.ID == leadID {
			found = l.Status == domain.LeadStatusNew && l.Email == "grace@example.com"
		}
	}
	if !found {
		t.Fatalf("expected stored lead, got %+v", leads)
	}
}
