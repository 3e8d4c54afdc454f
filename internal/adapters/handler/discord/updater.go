package discord

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"

	"github.com/dcvotebot/dcvotebot/internal/core/domain"
	"github.com/dcvotebot/dcvotebot/internal/core/ports"
)

const (
	updaterQueueSize    = 256
	defaultUpdateTries  = 3
	defaultRetryPause   = 5 * time.Second
	defaultUpdatePacing = time.Second
)

// messageEditor is the slice of the gateway session the updater needs.
type messageEditor interface {
	ChannelMessageEditComplex(m *discordgo.MessageEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// MessageUpdater re-renders poll messages after casts and lifecycle
// changes. Edits are queued and deduplicated so a burst of votes on one
// poll costs a single API call, and failed edits are retried a bounded
// number of times.
type MessageUpdater struct {
	svc    ports.VoteService
	editor messageEditor
	log    *slog.Logger

	queue  chan uuid.UUID
	mu     sync.Mutex
	queued map[uuid.UUID]struct{}

	maxTries   int
	retryPause time.Duration
	pacing     time.Duration
}

func NewMessageUpdater(svc ports.VoteService, log *slog.Logger) *MessageUpdater {
	return &MessageUpdater{
		svc:        svc,
		log:        log,
		queue:      make(chan uuid.UUID, updaterQueueSize),
		queued:     make(map[uuid.UUID]struct{}),
		maxTries:   defaultUpdateTries,
		retryPause: defaultRetryPause,
		pacing:     defaultUpdatePacing,
	}
}

// Bind attaches the gateway session once the dispatcher owns one.
func (u *MessageUpdater) Bind(editor messageEditor) {
	u.editor = editor
}

// Enqueue schedules a re-render. Already-queued sessions are skipped.
func (u *MessageUpdater) Enqueue(sessionID uuid.UUID) {
	u.mu.Lock()
	if _, pending := u.queued[sessionID]; pending {
		u.mu.Unlock()
		return
	}
	u.queued[sessionID] = struct{}{}
	u.mu.Unlock()

	select {
	case u.queue <- sessionID:
	default:
		// Queue full: drop the marker so a later cast can requeue.
		u.mu.Lock()
		delete(u.queued, sessionID)
		u.mu.Unlock()
		u.log.Warn("update queue full, dropping update", "session", sessionID)
	}
}

// Run processes the queue until ctx is done.
func (u *MessageUpdater) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case sessionID := <-u.queue:
			u.mu.Lock()
			delete(u.queued, sessionID)
			u.mu.Unlock()

			u.update(ctx, sessionID)

			select {
			case <-ctx.Done():
				return
			case <-time.After(u.pacing):
			}
		}
	}
}

func (u *MessageUpdater) update(ctx context.Context, sessionID uuid.UUID) {
	var lastErr error
	for try := 0; try < u.maxTries; try++ {
		if try > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(u.retryPause):
			}
		}
		if lastErr = u.tryUpdate(ctx, sessionID); lastErr == nil {
			return
		}
		if errors.Is(lastErr, domain.ErrNotFound) {
			// Poll deleted while queued, nothing to render.
			return
		}
	}
	u.log.Error("giving up on message update", "session", sessionID, "error", lastErr)
}

func (u *MessageUpdater) tryUpdate(ctx context.Context, sessionID uuid.UUID) error {
	state, err := u.svc.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if state.Session.MessageID == "" {
		return nil
	}

	content := RenderMessage(state, time.Now())
	components := BuildComponents(state.Session)
	if !state.Session.AcceptsVotesAt(time.Now()) {
		components = []discordgo.MessageComponent{}
	}

	_, err = u.editor.ChannelMessageEditComplex(&discordgo.MessageEdit{
		Channel:    state.Session.ContextID,
		ID:         state.Session.MessageID,
		Content:    &content,
		Components: &components,
	})
	return err
}
