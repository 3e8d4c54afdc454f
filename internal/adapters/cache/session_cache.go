// Package cache keeps recently-touched session state resident so the
// hot cast path does not round-trip to storage. It is write-through:
// callers update it only after the durable write succeeded, so eviction
// can never lose committed data.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/dcvotebot/dcvotebot/internal/core/domain"
	"github.com/dcvotebot/dcvotebot/internal/core/ports"
)

const (
	DefaultMaxEntries = 10_000
	DefaultIdleTTL    = 24 * time.Hour
)

type SessionCache struct {
	sessions ports.SessionRepository
	votes    ports.VoteRepository
	lru      *expirable.LRU[uuid.UUID, *domain.SessionState]
	group    singleflight.Group
}

func New(sessions ports.SessionRepository, votes ports.VoteRepository, maxEntries int, idleTTL time.Duration) *SessionCache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if idleTTL <= 0 {
		idleTTL = DefaultIdleTTL
	}
	return &SessionCache{
		sessions: sessions,
		votes:    votes,
		lru:      expirable.NewLRU[uuid.UUID, *domain.SessionState](maxEntries, nil, idleTTL),
	}
}

// Get returns the resident state or loads it from storage. Concurrent
// misses for the same id collapse into a single storage read; a session
// absent in storage yields (nil, nil).
func (c *SessionCache) Get(ctx context.Context, id uuid.UUID) (*domain.SessionState, error) {
	if state, ok := c.lru.Get(id); ok {
		// Re-add to restart the idle clock.
		c.lru.Add(id, state)
		return state, nil
	}

	v, err, _ := c.group.Do(id.String(), func() (any, error) {
		if state, ok := c.lru.Get(id); ok {
			return state, nil
		}
		session, err := c.sessions.Load(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			return (*domain.SessionState)(nil), nil
		}
		if err != nil {
			return nil, fmt.Errorf("load session %s: %w", id, err)
		}
		votes, err := c.votes.List(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load votes for %s: %w", id, err)
		}
		state := domain.NewSessionState(session, votes)
		c.lru.Add(id, state)
		return state, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.SessionState), nil
}

func (c *SessionCache) Put(id uuid.UUID, state *domain.SessionState) {
	c.lru.Add(id, state)
}

// Invalidate drops the entry and any in-flight load so the next Get
// reloads from storage.
func (c *SessionCache) Invalidate(id uuid.UUID) {
	c.group.Forget(id.String())
	c.lru.Remove(id)
}

var _ ports.SessionCache = (*SessionCache)(nil)
