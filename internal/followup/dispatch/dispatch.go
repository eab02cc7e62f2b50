// Package dispatch delivers reminders over concrete channels.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"leadflow_backend/internal/followup/domain"
	"leadflow_backend/platform/logger"
)

var (
	// ErrDispatchFailed wraps every delivery failure.
	ErrDispatchFailed = errors.New("dispatch failed")
	// ErrNoRecipient is returned when the lead has no address for the channel.
	ErrNoRecipient = errors.New("no recipient for channel")
	// ErrNoChannel is returned for methods without a configured channel.
	ErrNoChannel = errors.New("no channel configured")
)

// Channel delivers one message.
type Channel interface {
	Send(ctx context.Context, msg domain.Message) error
}

// Router picks the channel for a message's method. MethodAll fans out to
// every configured channel the lead has an address for.
type Router struct {
	channels map[domain.Method]Channel
	log      *logger.Logger
}

// NewRouter creates a router without channels.
func NewRouter(log *logger.Logger) *Router {
	if log == nil {
		log = logger.Discard()
	}
	return &Router{channels: make(map[domain.Method]Channel), log: log}
}

// Register binds method to ch. Registering MethodAll is ignored.
func (r *Router) Register(method domain.Method, ch Channel) *Router {
	if method != domain.MethodAll && ch != nil {
		r.channels[method] = ch
	}
	return r
}

// Send delivers msg. Errors wrap ErrDispatchFailed.
func (r *Router) Send(ctx context.Context, msg domain.Message) error {
	if msg.Method == domain.MethodAll {
		return r.fanOut(ctx, msg)
	}
	return r.sendOne(ctx, msg)
}

func (r *Router) sendOne(ctx context.Context, msg domain.Message) error {
	ch, ok := r.channels[msg.Method]
	if !ok {
		return fmt.Errorf("%w: %w for %s", ErrDispatchFailed, ErrNoChannel, msg.Method)
	}
	if msg.Recipient == "" {
		msg.Recipient = msg.Contact.RecipientFor(msg.Method)
	}
	if msg.Recipient == "" {
		return fmt.Errorf("%w: %w %s", ErrDispatchFailed, ErrNoRecipient, msg.Method)
	}
	if err := ch.Send(ctx, msg); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrDispatchFailed, msg.Method, err)
	}
	return nil
}

// fanOut succeeds when at least one channel delivered. Failed channels are
// logged; retrying would re-deliver on the channels that worked.
func (r *Router) fanOut(ctx context.Context, msg domain.Message) error {
	var (
		mu        sync.Mutex
		errs      []error
		delivered int
	)

	g, gctx := errgroup.WithContext(ctx)
	for method := range r.channels {
		sub := msg
		sub.Method = method
		sub.Recipient = msg.Contact.RecipientFor(method)
		if sub.Recipient == "" {
			continue
		}
		g.Go(func() error {
			err := r.sendOne(gctx, sub)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return nil
			}
			delivered++
			return nil
		})
	}
	_ = g.Wait()

	if delivered == 0 {
		if len(errs) == 0 {
			return fmt.Errorf("%w: %w for any channel", ErrDispatchFailed, ErrNoRecipient)
		}
		return errors.Join(errs...)
	}
	for _, err := range errs {
		r.log.WithContext(ctx).Warn("fan-out channel failed", "reminderId", msg.ReminderID, "error", err)
	}
	return nil
}
