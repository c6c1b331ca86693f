package plan

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrPassInProgress means another horizon pass already owns the tenant's
// Day/Route records.
var ErrPassInProgress = errors.New("planning pass already in progress for tenant")

// Locker grants exclusive, scoped ownership of a tenant's planning state for
// the duration of one horizon pass, so concurrent passes cannot double-book
// a driver's capacity.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}

// MemoryLocker is the single-process Locker.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: map[string]struct{}{}}
}

func (l *MemoryLocker) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return nil, ErrPassInProgress
	}
	l.held[key] = struct{}{}
	return func() {
		l.mu.Lock()
		delete(l.held, key)
		l.mu.Unlock()
	}, nil
}
