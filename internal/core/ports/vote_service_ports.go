package ports

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dcvotebot/dcvotebot/internal/core/domain"
)

type CreateSessionInput struct {
	ContextID   string
	CreatorID   string
	Prompt      string
	Description string
	Options     []string
	// ExpiresAt overrides the duration derived from the context
	// defaults when set.
	ExpiresAt *time.Time
	Duration  *time.Duration
	CanRevote *bool
}

// EditSessionInput patches an open session. Nil fields stay unchanged.
type EditSessionInput struct {
	SessionID   uuid.UUID
	RequesterID string
	Prompt      *string
	Description *string
	Duration    *time.Duration
	CanRevote   *bool
}

// Policy answers authorization questions for the service. The chat
// adapter supplies one backed by platform roles.
type Policy interface {
	CanCreate(contextID, userID string) bool
	// CanModerate grants close/edit/delete on sessions the user did not
	// create, and changing context defaults.
	CanModerate(contextID, userID string) bool
}

type VoteService interface {
	CreateSession(ctx context.Context, in CreateSessionInput) (*domain.Session, error)
	CastVote(ctx context.Context, sessionID uuid.UUID, voterID string, optionIndex int) (domain.Tally, error)
	CloseSession(ctx context.Context, sessionID uuid.UUID, requesterID string) (domain.Tally, error)
	ExpireDueSessions(ctx context.Context, now time.Time) ([]*domain.Session, error)
	GetTally(ctx context.Context, sessionID uuid.UUID) (domain.Tally, error)
	GetSession(ctx context.Context, sessionID uuid.UUID) (*domain.SessionState, error)
	EditSession(ctx context.Context, in EditSessionInput) (*domain.Session, error)
	DeleteSession(ctx context.Context, sessionID uuid.UUID, requesterID string) error
	// AttachMessage binds the rendered chat message to the session so
	// background updates can find it.
	AttachMessage(ctx context.Context, sessionID uuid.UUID, messageID string) error
	DefaultSettings(ctx context.Context, contextID string) (domain.Settings, error)
	SetDefaultSettings(ctx context.Context, contextID, requesterID string, settings domain.Settings) error
	PurgeClosedSessions(ctx context.Context, now time.Time) (int64, error)
	Stats(ctx context.Context) (domain.Stats, error)
}
