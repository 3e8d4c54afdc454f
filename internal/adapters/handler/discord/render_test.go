package discord

import (
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dcvotebot/dcvotebot/internal/core/domain"
)

func renderFixture() *domain.SessionState {
	expiry := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	session := &domain.Session{
		ID:        uuid.New(),
		ContextID: "channel",
		CreatorID: "creator",
		Prompt:    "Where should we eat?",
		Options: []domain.Option{
			{Index: 0, Label: "Pizza"},
			{Index: 1, Label: "Sushi"},
		},
		Settings:  domain.DefaultSettings(),
		Status:    domain.StatusOpen,
		CreatedAt: expiry.Add(-24 * time.Hour),
		ExpiresAt: &expiry,
	}
	return domain.NewSessionState(session, []domain.Vote{
		{SessionID: session.ID, VoterID: "alice", OptionIndex: 0, CastSeq: 1},
		{SessionID: session.ID, VoterID: "bob", OptionIndex: 0, CastSeq: 2},
		{SessionID: session.ID, VoterID: "carol", OptionIndex: 1, CastSeq: 3},
	})
}

func TestRenderMessage(t *testing.T) {
	state := renderFixture()
	now := state.Session.CreatedAt.Add(time.Hour)

	msg := RenderMessage(state, now)

	assert.Contains(t, msg, "**Where should we eat?**")
	assert.Contains(t, msg, "Pizza — 2 votes")
	assert.Contains(t, msg, "Sushi — 1 vote")
	assert.Contains(t, msg, "Total votes: 3")
	assert.Contains(t, msg, "Open until 2025-06-02 12:00 UTC.")
	assert.Contains(t, msg, state.Session.ID.String())
}

func TestRenderMessageClosed(t *testing.T) {
	state := renderFixture()
	state.Session.Status = domain.StatusClosed

	msg := RenderMessage(state, time.Now())

	assert.Contains(t, msg, "This poll is closed.")
}

func TestRenderMessagePastExpiry(t *testing.T) {
	state := renderFixture()

	msg := RenderMessage(state, state.Session.ExpiresAt.Add(time.Minute))

	assert.Contains(t, msg, "This poll has ended.")
}

func TestRenderMessageHonorsTimezone(t *testing.T) {
	state := renderFixture()
	state.Session.Settings.Timezone = "Europe/Berlin"

	msg := RenderMessage(state, state.Session.CreatedAt)

	// 12:00 UTC is 14:00 in Berlin during DST.
	assert.Contains(t, msg, "Open until 2025-06-02 14:00 CEST.")
}

func TestBuildComponentsRows(t *testing.T) {
	session := &domain.Session{ID: uuid.New()}
	for i := 0; i < 7; i++ {
		session.Options = append(session.Options, domain.Option{Index: i, Label: "opt"})
	}

	rows := BuildComponents(session)

	require.Len(t, rows, 2, "seven buttons fill one row of five plus one of two")
	first, ok := rows[0].(discordgo.ActionsRow)
	require.True(t, ok)
	assert.Len(t, first.Components, 5)
	second, ok := rows[1].(discordgo.ActionsRow)
	require.True(t, ok)
	assert.Len(t, second.Components, 2)

	button, ok := first.Components[2].(discordgo.Button)
	require.True(t, ok)
	assert.Equal(t, "cast:"+session.ID.String()+":2", button.CustomID)
}

func TestParseCastID(t *testing.T) {
	id := uuid.New()

	sessionID, idx, err := parseCastID("cast:" + id.String() + ":4")
	require.NoError(t, err)
	assert.Equal(t, id, sessionID)
	assert.Equal(t, 4, idx)

	roundTrips := BuildComponents(&domain.Session{
		ID:      id,
		Options: []domain.Option{{Index: 0, Label: "A"}},
	})
	row := roundTrips[0].(discordgo.ActionsRow)
	sessionID, idx, err = parseCastID(row.Components[0].(discordgo.Button).CustomID)
	require.NoError(t, err)
	assert.Equal(t, id, sessionID)
	assert.Equal(t, 0, idx)

	for _, bad := range []string{"", "cast", "cast:not-a-uuid:0", "cast:" + id.String() + ":x", "other:" + id.String() + ":0"} {
		_, _, err := parseCastID(bad)
		assert.Error(t, err, "custom id %q", bad)
	}
}

func TestSplitOptions(t *testing.T) {
	assert.Equal(t, []string{"Pizza", "Sushi", "Tacos"}, splitOptions("Pizza; Sushi ;Tacos"))
	assert.Equal(t, []string{"solo"}, splitOptions("solo;;  ;"))
	assert.Empty(t, splitOptions("  "))
}

func TestErrorMessages(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{domain.ErrNotFound, "No such poll"},
		{domain.ErrSessionClosed, "already ended"},
		{domain.ErrAlreadyClosed, "already closed"},
		{domain.ErrAlreadyVoted, "already voted"},
		{domain.ErrPermissionDenied, "not allowed"},
		{domain.ErrInvalidArgument, "Invalid request"},
		{domain.ErrUnavailable, "try again"},
		{assert.AnError, "Something went wrong"},
	}
	for _, tc := range cases {
		assert.True(t, strings.Contains(errorMessage(tc.err), tc.want),
			"message for %v should mention %q", tc.err, tc.want)
	}
}
