package lock

import (
	"context"
	"sync"
	"time"

	"github.com/funnelworks/funnel/internal/scoring/application/services"
)

// LocalLocker implements services.EntityLocker with an in-process mutex map.
// It is used in local mode where no Redis is available; it only guards
// against concurrent scoring within a single process.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]time.Time
}

// NewLocalLocker creates a new in-process locker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]time.Time)}
}

// Acquire takes the lock for the given key, returning a release function.
func (l *LocalLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if expiry, ok := l.held[key]; ok && time.Now().Before(expiry) {
		return nil, services.ErrScoringInProgress
	}
	l.held[key] = time.Now().Add(ttl)

	release := func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, key)
	}
	return release, nil
}
