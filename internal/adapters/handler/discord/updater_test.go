package discord

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dcvotebot/dcvotebot/internal/adapters/cache"
	"github.com/dcvotebot/dcvotebot/internal/adapters/memory"
	"github.com/dcvotebot/dcvotebot/internal/core/ports"
	"github.com/dcvotebot/dcvotebot/internal/core/services"
)

type fakeEditor struct {
	mu    sync.Mutex
	edits []*discordgo.MessageEdit
	done  chan struct{}
}

func newFakeEditor() *fakeEditor {
	return &fakeEditor{done: make(chan struct{}, 16)}
}

func (f *fakeEditor) ChannelMessageEditComplex(m *discordgo.MessageEdit, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	f.edits = append(f.edits, m)
	f.mu.Unlock()
	f.done <- struct{}{}
	return &discordgo.Message{ID: m.ID}, nil
}

func (f *fakeEditor) all() []*discordgo.MessageEdit {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*discordgo.MessageEdit(nil), f.edits...)
}

func updaterFixture(t *testing.T) (ports.VoteService, *MessageUpdater, *fakeEditor) {
	t.Helper()
	store := memory.NewStore()
	svc := services.NewVoteService(services.VoteServiceDeps{
		Sessions: store,
		Votes:    store,
		Defaults: store,
		Cache:    cache.New(store, store, 0, 0),
	})
	updater := NewMessageUpdater(svc, slog.Default())
	editor := newFakeEditor()
	updater.Bind(editor)
	updater.pacing = time.Millisecond
	updater.retryPause = time.Millisecond
	return svc, updater, editor
}

func updaterSession(t *testing.T, svc ports.VoteService, messageID string) uuid.UUID {
	t.Helper()
	session, err := svc.CreateSession(context.Background(), ports.CreateSessionInput{
		ContextID: "channel-7", CreatorID: "creator", Prompt: "q",
		Options: []string{"A", "B"},
	})
	require.NoError(t, err)
	if messageID != "" {
		require.NoError(t, svc.AttachMessage(context.Background(), session.ID, messageID))
	}
	return session.ID
}

func TestTryUpdateEditsBoundMessage(t *testing.T) {
	svc, updater, editor := updaterFixture(t)
	sessionID := updaterSession(t, svc, "msg-1")
	_, err := svc.CastVote(context.Background(), sessionID, "alice", 0)
	require.NoError(t, err)

	require.NoError(t, updater.tryUpdate(context.Background(), sessionID))

	edits := editor.all()
	require.Len(t, edits, 1)
	assert.Equal(t, "msg-1", edits[0].ID)
	assert.Equal(t, "channel-7", edits[0].Channel)
	assert.Contains(t, *edits[0].Content, "Total votes: 1")
	assert.NotEmpty(t, *edits[0].Components, "open polls keep their buttons")
}

func TestTryUpdateSkipsUnboundMessage(t *testing.T) {
	svc, updater, editor := updaterFixture(t)
	sessionID := updaterSession(t, svc, "")

	require.NoError(t, updater.tryUpdate(context.Background(), sessionID))

	assert.Empty(t, editor.all())
}

func TestTryUpdateStripsComponentsWhenEnded(t *testing.T) {
	svc, updater, editor := updaterFixture(t)
	sessionID := updaterSession(t, svc, "msg-2")
	_, err := svc.CloseSession(context.Background(), sessionID, "creator")
	require.NoError(t, err)

	require.NoError(t, updater.tryUpdate(context.Background(), sessionID))

	edits := editor.all()
	require.Len(t, edits, 1)
	assert.Empty(t, *edits[0].Components, "ended polls lose their buttons")
	assert.Contains(t, *edits[0].Content, "This poll is closed.")
}

func TestEnqueueDeduplicates(t *testing.T) {
	_, updater, _ := updaterFixture(t)
	sessionID := uuid.New()

	updater.Enqueue(sessionID)
	updater.Enqueue(sessionID)
	updater.Enqueue(sessionID)

	assert.Len(t, updater.queue, 1)
}

func TestRunProcessesQueue(t *testing.T) {
	svc, updater, editor := updaterFixture(t)
	sessionID := updaterSession(t, svc, "msg-3")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go updater.Run(ctx)

	updater.Enqueue(sessionID)

	select {
	case <-editor.done:
	case <-time.After(2 * time.Second):
		t.Fatal("updater never edited the message")
	}
	require.Len(t, editor.all(), 1)
}
