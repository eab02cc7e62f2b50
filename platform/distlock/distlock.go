// Package distlock provides keyed mutual exclusion across workers.
// A Redis backend is used when Redis is configured; otherwise locks are
// held in-process, which only serialises callers inside one binary.
package distlock

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Locker hands out short-lived keyed locks.
type Locker interface {
	// TryAcquire attempts to take the lock for key without waiting.
	// When acquired is false the returned Lease is nil.
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (lease Lease, acquired bool, err error)
}

// Lease is an acquired lock.
type Lease interface {
	// Release gives the lock back if it is still owned by this lease.
	Release(ctx context.Context) error
}

// New returns a Redis-backed locker when client is non-nil and an
// in-process locker otherwise.
func New(client *redis.Client) Locker {
	if client != nil {
		return NewRedisLocker(client)
	}
	return NewLocalLocker()
}

// LocalLocker implements Locker with an in-process key set.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]time.Time
	now  func() time.Time
}

// NewLocalLocker creates an empty in-process locker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]time.Time), now: time.Now}
}

// TryAcquire takes key unless another lease holds it and has not expired.
func (l *LocalLocker) TryAcquire(_ context.Context, key string, ttl time.Duration) (Lease, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if expires, ok := l.held[key]; ok && now.Before(expires) {
		return nil, false, nil
	}
	expires := now.Add(ttl)
	l.held[key] = expires
	return &localLease{locker: l, key: key, expires: expires}, true, nil
}

type localLease struct {
	locker  *LocalLocker
	key     string
	expires time.Time
}

func (l *localLease) Release(_ context.Context) error {
	l.locker.mu.Lock()
	defer l.locker.mu.Unlock()
	// A lease that expired may have been handed to someone else.
	if current, ok := l.locker.held[l.key]; ok && current.Equal(l.expires) {
		delete(l.locker.held, l.key)
	}
	return nil
}
