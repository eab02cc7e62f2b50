// Package inbox persists in-app reminder notifications and tasks so agents
// can read them regardless of which process dispatched them.
package inbox

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"leadflow_backend/internal/followup/domain"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/logger"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Notification is one in-app delivery of a reminder.
type Notification struct {
	ID         uuid.UUID     `json:"id"`
	Seq        int64         `json:"seq"`
	CompanyID  uuid.UUID     `json:"companyId"`
	ReminderID uuid.UUID     `json:"reminderId"`
	LeadID     uuid.UUID     `json:"leadId"`
	Kind       domain.Method `json:"kind"`
	Recipient  string        `json:"recipient"`
	Title      string        `json:"title"`
	Content    string        `json:"content"`
	IsRead     bool          `json:"isRead"`
	ReadAt     *time.Time    `json:"readAt,omitempty"`
	CreatedAt  time.Time     `json:"createdAt"`
}

// Filter narrows a notification listing.
type Filter struct {
	Recipient  string
	UnreadOnly bool
	Limit      int
	Offset     int
}

// Repository stores notifications. Create is idempotent per reminder and
// kind: a repeated delivery returns the existing row.
type Repository interface {
	Create(ctx context.Context, n Notification) (Notification, error)
	List(ctx context.Context, companyID uuid.UUID, filter Filter) ([]Notification, int, error)
	CountUnread(ctx context.Context, companyID uuid.UUID, recipient string) (int, error)
	MarkRead(ctx context.Context, companyID, id uuid.UUID, at time.Time) error
	MarkAllRead(ctx context.Context, companyID uuid.UUID, recipient string, at time.Time) error
	// Since returns notifications with Seq greater than afterSeq in Seq order.
	Since(ctx context.Context, companyID uuid.UUID, afterSeq int64, limit int) ([]Notification, error)
	LatestSeq(ctx context.Context, companyID uuid.UUID) (int64, error)
}

// Service delivers reminders to the inbox and serves the inbox to agents.
type Service struct {
	repo Repository
	log  *logger.Logger
	now  func() time.Time
}

func NewService(repo Repository, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Discard()
	}
	return &Service{repo: repo, log: log, now: time.Now}
}

// Deliver persists msg as a notification or task. The returned error means
// nobody will ever see the message.
func (s *Service) Deliver(ctx context.Context, msg domain.Message) (Notification, error) {
	if s == nil || s.repo == nil {
		return Notification{}, apperr.Internal("inbox not configured")
	}
	if msg.CompanyID == uuid.Nil || msg.ReminderID == uuid.Nil {
		return Notification{}, apperr.Validation("companyId and reminderId are required")
	}
	if msg.Method != domain.MethodNotification && msg.Method != domain.MethodTask {
		return Notification{}, apperr.Validation("inbox only accepts notifications and tasks")
	}
	recipient := strings.TrimSpace(msg.Recipient)
	if recipient == "" {
		return Notification{}, apperr.Validation("recipient is required")
	}

	title := strings.TrimSpace(msg.Subject)
	if title == "" {
		title = "Follow-up reminder"
	}
	n, err := s.repo.Create(ctx, Notification{
		ID:         uuid.New(),
		CompanyID:  msg.CompanyID,
		ReminderID: msg.ReminderID,
		LeadID:     msg.LeadID,
		Kind:       msg.Method,
		Recipient:  recipient,
		Title:      title,
		Content:    msg.Body,
		CreatedAt:  s.now().UTC(),
	})
	if err != nil {
		s.log.WithContext(ctx).Error("failed to persist in-app notification", "error", err, "reminderId", msg.ReminderID)
		return Notification{}, err
	}
	return n, nil
}

// List returns one page of the company inbox, newest first.
func (s *Service) List(ctx context.Context, companyID uuid.UUID, filter Filter) ([]Notification, int, error) {
	if filter.Limit < 1 {
		filter.Limit = defaultPageSize
	}
	if filter.Limit > maxPageSize {
		filter.Limit = maxPageSize
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.repo.List(ctx, companyID, filter)
}

func (s *Service) CountUnread(ctx context.Context, companyID uuid.UUID, recipient string) (int, error) {
	return s.repo.CountUnread(ctx, companyID, recipient)
}

func (s *Service) MarkRead(ctx context.Context, companyID, id uuid.UUID) error {
	return s.repo.MarkRead(ctx, companyID, id, s.now().UTC())
}

func (s *Service) MarkAllRead(ctx context.Context, companyID uuid.UUID, recipient string) error {
	return s.repo.MarkAllRead(ctx, companyID, recipient, s.now().UTC())
}

// Since is used by the live stream to pick up rows written by any process.
func (s *Service) Since(ctx context.Context, companyID uuid.UUID, afterSeq int64, limit int) ([]Notification, error) {
	return s.repo.Since(ctx, companyID, afterSeq, limit)
}

func (s *Service) LatestSeq(ctx context.Context, companyID uuid.UUID) (int64, error) {
	return s.repo.LatestSeq(ctx, companyID)
}
