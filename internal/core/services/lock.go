package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dcvotebot/dcvotebot/internal/core/domain"
)

// sessionLocks serializes operations per session id. Locking is never
// global: voters on different sessions do not contend. Acquisition is
// bounded; a timed-out wait surfaces as ErrUnavailable so the caller
// can tell the actor to retry instead of queueing forever.
type sessionLocks struct {
	wait time.Duration

	mu    sync.Mutex
	locks map[uuid.UUID]chan struct{}
}

func newSessionLocks(wait time.Duration) *sessionLocks {
	return &sessionLocks{
		wait:  wait,
		locks: make(map[uuid.UUID]chan struct{}),
	}
}

// acquire blocks until the session lock is held, the wait budget runs
// out, or ctx is done. The returned release must be called exactly once.
func (l *sessionLocks) acquire(ctx context.Context, id uuid.UUID) (release func(), err error) {
	l.mu.Lock()
	ch, ok := l.locks[id]
	if !ok {
		ch = make(chan struct{}, 1)
		l.locks[id] = ch
	}
	l.mu.Unlock()

	timer := time.NewTimer(l.wait)
	defer timer.Stop()

	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-timer.C:
		return nil, fmt.Errorf("lock wait timed out for session %s: %w", id, domain.ErrUnavailable)
	case <-ctx.Done():
		return nil, fmt.Errorf("lock wait interrupted for session %s: %w", id, domain.ErrUnavailable)
	}
}
