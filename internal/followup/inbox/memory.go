package inbox

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"leadflow_backend/platform/apperr"
)

// MemoryRepository keeps notifications in process. Used in tests and when
// no database is configured.
type MemoryRepository struct {
	mu    sync.Mutex
	items []Notification
	seq   int64
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) Create(_ context.Context, n Notification) (Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.items {
		if existing.ReminderID == n.ReminderID && existing.Kind == n.Kind {
			return existing, nil
		}
	}
	r.seq++
	n.Seq = r.seq
	r.items = append(r.items, n)
	return n, nil
}

func matches(n Notification, companyID uuid.UUID, recipient string, unreadOnly bool) bool {
	if n.CompanyID != companyID {
		return false
	}
	if recipient != "" && n.Recipient != recipient {
		return false
	}
	return !unreadOnly || !n.IsRead
}

func (r *MemoryRepository) List(_ context.Context, companyID uuid.UUID, filter Filter) ([]Notification, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var all []Notification
	for _, n := range r.items {
		if matches(n, companyID, filter.Recipient, filter.UnreadOnly) {
			all = append(all, n)
		}
	}
	slices.SortFunc(all, func(a, b Notification) int {
		if a.Seq > b.Seq {
			return -1
		}
		if a.Seq < b.Seq {
			return 1
		}
		return 0
	})

	total := len(all)
	if filter.Offset >= total {
		return []Notification{}, total, nil
	}
	end := min(filter.Offset+filter.Limit, total)
	return all[filter.Offset:end], total, nil
}

func (r *MemoryRepository) CountUnread(_ context.Context, companyID uuid.UUID, recipient string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for _, n := range r.items {
		if matches(n, companyID, recipient, true) {
			count++
		}
	}
	return count, nil
}

func (r *MemoryRepository) MarkRead(_ context.Context, companyID, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.items {
		if r.items[i].ID == id && r.items[i].CompanyID == companyID {
			if !r.items[i].IsRead {
				r.items[i].IsRead = true
				r.items[i].ReadAt = &at
			}
			return nil
		}
	}
	return apperr.NotFound("notification not found")
}

func (r *MemoryRepository) MarkAllRead(_ context.Context, companyID uuid.UUID, recipient string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.items {
		if matches(r.items[i], companyID, recipient, true) {
			r.items[i].IsRead = true
			r.items[i].ReadAt = &at
		}
	}
	return nil
}

func (r *MemoryRepository) Since(_ context.Context, companyID uuid.UUID, afterSeq int64, limit int) ([]Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Notification
	for _, n := range r.items {
		if n.CompanyID == companyID && n.Seq > afterSeq {
			out = append(out, n)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (r *MemoryRepository) LatestSeq(_ context.Context, companyID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var latest int64
	for _, n := range r.items {
		if n.CompanyID == companyID && n.Seq > latest {
			latest = n.Seq
		}
	}
	return latest, nil
}
