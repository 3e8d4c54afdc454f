package integration

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dcvotebot/dcvotebot/internal/adapters/repository/mariadb"
	"github.com/dcvotebot/dcvotebot/internal/core/domain"
)

func TestSessionRoundTrip(t *testing.T) {
	db := setupDB(t)
	repo := mariadb.NewSessionRepository(db)
	ctx := context.Background()

	session := newStoredSession()
	require.NoError(t, repo.Save(ctx, session))

	loaded, err := repo.Load(ctx, session.ID)
	require.NoError(t, err)

	assert.Equal(t, session.ID, loaded.ID)
	assert.Equal(t, session.ContextID, loaded.ContextID)
	assert.Equal(t, session.CreatorID, loaded.CreatorID)
	assert.Equal(t, session.Prompt, loaded.Prompt)
	assert.Equal(t, session.Description, loaded.Description)
	assert.Equal(t, session.Options, loaded.Options)
	assert.Equal(t, session.Settings, loaded.Settings)
	assert.Equal(t, domain.StatusOpen, loaded.Status)
	assert.WithinDuration(t, session.CreatedAt, loaded.CreatedAt, time.Second)
	require.NotNil(t, loaded.ExpiresAt)
	assert.WithinDuration(t, *session.ExpiresAt, *loaded.ExpiresAt, time.Second)
	assert.Nil(t, loaded.ClosedAt)
}

func TestLoadUnknownSession(t *testing.T) {
	db := setupDB(t)
	repo := mariadb.NewSessionRepository(db)

	_, err := repo.Load(context.Background(), uuid.New())

	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpdateSession(t *testing.T) {
	db := setupDB(t)
	repo := mariadb.NewSessionRepository(db)
	ctx := context.Background()

	session := newStoredSession()
	require.NoError(t, repo.Save(ctx, session))

	session.Prompt = "Updated question?"
	session.MessageID = "msg-123"
	session.Settings.CanRevote = false
	session.ExpiresAt = nil
	require.NoError(t, repo.Update(ctx, session))

	loaded, err := repo.Load(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, "Updated question?", loaded.Prompt)
	assert.Equal(t, "msg-123", loaded.MessageID)
	assert.False(t, loaded.Settings.CanRevote)
	assert.Nil(t, loaded.ExpiresAt)

	// Updating an unknown session reports not found.
	missing := newStoredSession()
	assert.ErrorIs(t, repo.Update(ctx, missing), domain.ErrNotFound)
}

func TestUpdateStatusCompareAndSwap(t *testing.T) {
	db := setupDB(t)
	repo := mariadb.NewSessionRepository(db)
	ctx := context.Background()

	session := newStoredSession()
	require.NoError(t, repo.Save(ctx, session))
	now := time.Now().UTC().Truncate(time.Microsecond)

	changed, err := repo.UpdateStatus(ctx, session.ID, domain.StatusOpen, domain.StatusExpired, now)
	require.NoError(t, err)
	assert.True(t, changed)

	// A concurrent sweep running the same transition is a no-op.
	changed, err = repo.UpdateStatus(ctx, session.ID, domain.StatusOpen, domain.StatusExpired, now)
	require.NoError(t, err)
	assert.False(t, changed)

	loaded, err := repo.Load(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusExpired, loaded.Status)
	require.NotNil(t, loaded.ClosedAt)
}

func TestListOpenWithExpiryBefore(t *testing.T) {
	db := setupDB(t)
	repo := mariadb.NewSessionRepository(db)
	ctx := context.Background()

	due := newStoredSession()
	pastExpiry := time.Now().UTC().Add(-time.Hour).Truncate(time.Microsecond)
	due.ExpiresAt = &pastExpiry
	require.NoError(t, repo.Save(ctx, due))

	notDue := newStoredSession()
	require.NoError(t, repo.Save(ctx, notDue))

	endless := newStoredSession()
	endless.ExpiresAt = nil
	require.NoError(t, repo.Save(ctx, endless))

	sessions, err := repo.ListOpenWithExpiryBefore(ctx, time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, due.ID, sessions[0].ID)
	assert.Equal(t, due.Options, sessions[0].Options)
}

func TestDeleteSessionCascades(t *testing.T) {
	db := setupDB(t)
	sessions := mariadb.NewSessionRepository(db)
	votes := mariadb.NewVoteRepository(db)
	ctx := context.Background()

	session := newStoredSession()
	require.NoError(t, sessions.Save(ctx, session))
	require.NoError(t, votes.Upsert(ctx, domain.Vote{
		SessionID: session.ID, VoterID: "alice", OptionIndex: 0,
		CastAt: time.Now().UTC(), CastSeq: 1,
	}))

	require.NoError(t, sessions.Delete(ctx, session.ID))

	_, err := sessions.Load(ctx, session.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	var voteCount, optionCount int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM votes WHERE session_id = ?", session.ID.String()).Scan(&voteCount))
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM session_options WHERE session_id = ?", session.ID.String()).Scan(&optionCount))
	assert.Equal(t, 0, voteCount)
	assert.Equal(t, 0, optionCount)

	assert.ErrorIs(t, sessions.Delete(ctx, session.ID), domain.ErrNotFound)
}

func TestPurgeClosedBefore(t *testing.T) {
	db := setupDB(t)
	sessions := mariadb.NewSessionRepository(db)
	votes := mariadb.NewVoteRepository(db)
	ctx := context.Background()

	oldSession := newStoredSession()
	require.NoError(t, sessions.Save(ctx, oldSession))
	longAgo := time.Now().UTC().Add(-40 * 24 * time.Hour)
	_, err := sessions.UpdateStatus(ctx, oldSession.ID, domain.StatusOpen, domain.StatusClosed, longAgo)
	require.NoError(t, err)
	require.NoError(t, votes.Upsert(ctx, domain.Vote{
		SessionID: oldSession.ID, VoterID: "alice", OptionIndex: 0,
		CastAt: time.Now().UTC(), CastSeq: 1,
	}))

	freshSession := newStoredSession()
	require.NoError(t, sessions.Save(ctx, freshSession))
	_, err = sessions.UpdateStatus(ctx, freshSession.ID, domain.StatusOpen, domain.StatusClosed, time.Now().UTC())
	require.NoError(t, err)

	cutoff := time.Now().UTC().Add(-30 * 24 * time.Hour)
	purged, err := sessions.PurgeClosedBefore(ctx, cutoff)
	require.NoError(t, err)
	require.Len(t, purged, 1)
	assert.Equal(t, oldSession.ID, purged[0])

	_, err = sessions.Load(ctx, oldSession.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = sessions.Load(ctx, freshSession.ID)
	assert.NoError(t, err)

	// Nothing left to purge.
	purged, err = sessions.PurgeClosedBefore(ctx, cutoff)
	require.NoError(t, err)
	assert.Empty(t, purged)
}

func TestStats(t *testing.T) {
	db := setupDB(t)
	sessions := mariadb.NewSessionRepository(db)
	votes := mariadb.NewVoteRepository(db)
	ctx := context.Background()

	open := newStoredSession()
	require.NoError(t, sessions.Save(ctx, open))
	closed := newStoredSession()
	require.NoError(t, sessions.Save(ctx, closed))
	_, err := sessions.UpdateStatus(ctx, closed.ID, domain.StatusOpen, domain.StatusClosed, time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, votes.Upsert(ctx, domain.Vote{
		SessionID: open.ID, VoterID: "alice", OptionIndex: 0,
		CastAt: time.Now().UTC(), CastSeq: 1,
	}))

	stats, err := sessions.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.OpenSessions)
	assert.Equal(t, int64(2), stats.TotalSessions)
	assert.Equal(t, int64(1), stats.TotalVotes)
}
