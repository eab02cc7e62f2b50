package dispatch

import (
	"context"

	"leadflow_backend/internal/followup/domain"
	"leadflow_backend/internal/followup/inbox"
	"leadflow_backend/platform/logger"
)

// InboxChannel persists notifications and tasks in the in-app inbox. The
// API process streams new rows to connected agents, so delivery does not
// depend on anyone listening at send time.
type InboxChannel struct {
	inbox *inbox.Service
}

// NewInboxChannel creates a channel writing to svc.
func NewInboxChannel(svc *inbox.Service) *InboxChannel {
	return &InboxChannel{inbox: svc}
}

// Send fails when the notification could not be stored.
func (c *InboxChannel) Send(ctx context.Context, msg domain.Message) error {
	_, err := c.inbox.Deliver(ctx, msg)
	return err
}

// LogChannel only logs the message. It stands in for channels that are
// not configured in development.
type LogChannel struct {
	log *logger.Logger
}

// NewLogChannel creates a logging channel.
func NewLogChannel(log *logger.Logger) *LogChannel {
	return &LogChannel{log: log}
}

// Send logs msg and always succeeds.
func (c *LogChannel) Send(ctx context.Context, msg domain.Message) error {
	c.log.WithContext(ctx).Info("reminder delivered to log channel",
		"reminderId", msg.ReminderID, "method", msg.Method, "recipient", msg.Recipient, "subject", msg.Subject)
	return nil
}
