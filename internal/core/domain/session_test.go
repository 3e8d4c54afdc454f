package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestAcceptsVotesAt(t *testing.T) {
	now := time.Now()
	expiry := now.Add(time.Hour)

	open := &Session{ID: uuid.New(), Status: StatusOpen, ExpiresAt: &expiry}
	assert.True(t, open.AcceptsVotesAt(now))
	assert.False(t, open.AcceptsVotesAt(expiry), "expiry instant itself rejects casts")
	assert.False(t, open.AcceptsVotesAt(expiry.Add(time.Minute)))

	endless := &Session{ID: uuid.New(), Status: StatusOpen}
	assert.True(t, endless.AcceptsVotesAt(now.Add(1000*time.Hour)))

	closed := &Session{ID: uuid.New(), Status: StatusClosed, ExpiresAt: &expiry}
	assert.False(t, closed.AcceptsVotesAt(now))

	expired := &Session{ID: uuid.New(), Status: StatusExpired}
	assert.False(t, expired.AcceptsVotesAt(now))
}

func TestOptionInRange(t *testing.T) {
	s := &Session{Options: []Option{{Index: 0, Label: "A"}, {Index: 1, Label: "B"}, {Index: 2, Label: "C"}}}

	assert.True(t, s.OptionInRange(0))
	assert.True(t, s.OptionInRange(2))
	assert.False(t, s.OptionInRange(3))
	assert.False(t, s.OptionInRange(-1))
}

func TestStatusTerminal(t *testing.T) {
	assert.False(t, StatusOpen.Terminal())
	assert.True(t, StatusClosed.Terminal())
	assert.True(t, StatusExpired.Terminal())
}

func TestDefaultSettings(t *testing.T) {
	settings := DefaultSettings()

	assert.Equal(t, 24*time.Hour, settings.Duration)
	assert.True(t, settings.CanRevote)
	assert.Equal(t, "UTC", settings.Timezone)
}
