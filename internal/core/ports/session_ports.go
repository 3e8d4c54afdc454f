package ports

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dcvotebot/dcvotebot/internal/core/domain"
)

// SessionRepository is the durable store for sessions and their options.
// Every call is transactional on its own; the core never spans calls.
type SessionRepository interface {
	// Save inserts a new session with its options.
	Save(ctx context.Context, session *domain.Session) error
	// Update rewrites the mutable fields (prompt, description, settings,
	// message binding). Options and status are not touched.
	Update(ctx context.Context, session *domain.Session) error
	// Load returns domain.ErrNotFound for an unknown id.
	Load(ctx context.Context, id uuid.UUID) (*domain.Session, error)
	// UpdateStatus transitions from -> to and reports whether a row
	// changed, so repeated expiry sweeps stay idempotent.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.Status, at time.Time) (bool, error)
	// Delete removes the session; votes cascade with it.
	Delete(ctx context.Context, id uuid.UUID) error
	ListOpenWithExpiryBefore(ctx context.Context, t time.Time) ([]*domain.Session, error)
	// PurgeClosedBefore deletes sessions that reached a terminal status
	// before t and returns the ids removed, so callers can drop cache
	// entries.
	PurgeClosedBefore(ctx context.Context, t time.Time) ([]uuid.UUID, error)
	Stats(ctx context.Context) (domain.Stats, error)
}

// VoteRepository stores cast votes keyed by (session, voter).
type VoteRepository interface {
	// Upsert inserts or replaces the voter's vote. A stored vote with a
	// newer CastSeq is kept; the stale write is a no-op.
	Upsert(ctx context.Context, vote domain.Vote) error
	List(ctx context.Context, sessionID uuid.UUID) ([]domain.Vote, error)
}

// DefaultsRepository keeps per-context default session settings.
type DefaultsRepository interface {
	// LoadDefaults returns nil when the context has no stored defaults.
	LoadDefaults(ctx context.Context, contextID string) (*domain.Settings, error)
	SaveDefaults(ctx context.Context, contextID string, settings domain.Settings) error
}

// SessionCache fronts the repositories for hot session state.
type SessionCache interface {
	// Get returns the resident entry, loading through to storage on a
	// miss. Absent in storage yields (nil, nil), not an error.
	Get(ctx context.Context, id uuid.UUID) (*domain.SessionState, error)
	// Put makes state resident. Callers put only after the durable
	// write succeeded.
	Put(id uuid.UUID, state *domain.SessionState)
	// Invalidate forces the next Get to reload from storage.
	Invalidate(id uuid.UUID)
}
