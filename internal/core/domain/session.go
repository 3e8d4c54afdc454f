package domain

import (
	"time"

	"github.com/google/uuid"
)

// MaxOptions is the most options a single session may carry. The chat
// platform renders one button per option and caps components at 25.
const MaxOptions = 25

type Status string

const (
	StatusOpen    Status = "open"
	StatusClosed  Status = "closed"
	StatusExpired Status = "expired"
)

// Terminal reports whether a session in this status can never reopen.
func (s Status) Terminal() bool {
	return s == StatusClosed || s == StatusExpired
}

type Option struct {
	Index int    `json:"index"`
	Label string `json:"label"`
}

// Settings control how voters interact with a session. A zero Duration
// means the session never expires on its own.
type Settings struct {
	Duration  time.Duration `json:"duration"`
	CanRevote bool          `json:"can_revote"`
	Timezone  string        `json:"timezone"`
}

func DefaultSettings() Settings {
	return Settings{
		Duration:  24 * time.Hour,
		CanRevote: true,
		Timezone:  "UTC",
	}
}

type Session struct {
	ID          uuid.UUID  `json:"id"`
	ContextID   string     `json:"context_id"`
	CreatorID   string     `json:"creator_id"`
	MessageID   string     `json:"message_id,omitempty"`
	Prompt      string     `json:"prompt"`
	Description string     `json:"description,omitempty"`
	Options     []Option   `json:"options"`
	Settings    Settings   `json:"settings"`
	Status      Status     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	ClosedAt    *time.Time `json:"closed_at,omitempty"`
}

// OptionInRange reports whether idx names a declared option.
func (s *Session) OptionInRange(idx int) bool {
	return idx >= 0 && idx < len(s.Options)
}

// AcceptsVotesAt reports whether the session admits casts at the given
// instant. A session past its expiry rejects casts even before the
// expiry sweep has transitioned it.
func (s *Session) AcceptsVotesAt(now time.Time) bool {
	if s.Status != StatusOpen {
		return false
	}
	if s.ExpiresAt != nil && !now.Before(*s.ExpiresAt) {
		return false
	}
	return true
}

type Stats struct {
	OpenSessions  int64 `json:"open_sessions"`
	TotalSessions int64 `json:"total_sessions"`
	TotalVotes    int64 `json:"total_votes"`
}
