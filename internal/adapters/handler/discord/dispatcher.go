// Package discord translates chat-platform interactions into calls on
// the vote service and renders the results back as messages. All
// platform mechanics (gateway, rate limits, reconnects) stay behind
// the discordgo session; the core never sees them.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"

	"github.com/dcvotebot/dcvotebot/internal/core/domain"
	"github.com/dcvotebot/dcvotebot/internal/core/ports"
)

const (
	castPrefix          = "cast"
	defaultRetryBackoff = 500 * time.Millisecond
	interactionTimeout  = 10 * time.Second
)

type Dispatcher struct {
	svc          ports.VoteService
	session      *discordgo.Session
	updater      *MessageUpdater
	log          *slog.Logger
	retryBackoff time.Duration
}

// NewGatewaySession builds the discordgo session the dispatcher and
// its collaborators share.
func NewGatewaySession(token string) (*discordgo.Session, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages
	return session, nil
}

func NewDispatcher(session *discordgo.Session, svc ports.VoteService, updater *MessageUpdater, log *slog.Logger) *Dispatcher {
	d := &Dispatcher{
		svc:          svc,
		session:      session,
		updater:      updater,
		log:          log,
		retryBackoff: defaultRetryBackoff,
	}
	session.AddHandler(d.onInteraction)
	return d
}

// NewChannelPolicy authorizes against channel permissions: anyone may
// create polls, moderation needs Manage Messages.
func NewChannelPolicy(session *discordgo.Session) ports.Policy {
	return channelPolicy{session: session}
}

type channelPolicy struct {
	session *discordgo.Session
}

func (channelPolicy) CanCreate(string, string) bool { return true }

func (p channelPolicy) CanModerate(contextID, userID string) bool {
	perms, err := p.session.State.UserChannelPermissions(userID, contextID)
	if err != nil {
		return false
	}
	return perms&discordgo.PermissionManageMessages != 0
}

func (d *Dispatcher) Start() error {
	if err := d.session.Open(); err != nil {
		return fmt.Errorf("failed to open gateway: %w", err)
	}
	appID := d.session.State.User.ID
	for _, cmd := range commandDefinitions() {
		if _, err := d.session.ApplicationCommandCreate(appID, "", cmd); err != nil {
			return fmt.Errorf("failed to register command %s: %w", cmd.Name, err)
		}
	}
	d.log.Info("dispatcher connected", "user", d.session.State.User.Username)
	return nil
}

func (d *Dispatcher) Stop() error {
	return d.session.Close()
}

func (d *Dispatcher) onInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx, cancel := context.WithTimeout(context.Background(), interactionTimeout)
	defer cancel()

	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		d.onCommand(ctx, i)
	case discordgo.InteractionMessageComponent:
		d.onComponent(ctx, i)
	}
}

func (d *Dispatcher) onCommand(ctx context.Context, i *discordgo.InteractionCreate) {
	data := i.ApplicationCommandData()
	switch data.Name {
	case "create-poll":
		d.handleCreate(ctx, i, data)
	case "edit-poll":
		d.handleEdit(ctx, i, data)
	case "close-poll":
		d.handleClose(ctx, i, data)
	case "delete-poll":
		d.handleDelete(ctx, i, data)
	case "poll-results":
		d.handleResults(ctx, i, data)
	case "poll-settings":
		d.handleSettings(ctx, i, data)
	case "poll-stats":
		d.handleStats(ctx, i)
	default:
		d.log.Warn("unknown command", "name", data.Name)
	}
}

func (d *Dispatcher) onComponent(ctx context.Context, i *discordgo.InteractionCreate) {
	customID := i.MessageComponentData().CustomID
	sessionID, optionIndex, err := parseCastID(customID)
	if err != nil {
		d.log.Warn("unhandled component", "custom_id", customID)
		return
	}

	voterID := interactionUserID(i)
	tally, err := d.castWithRetry(ctx, sessionID, voterID, optionIndex)
	if err != nil {
		d.replyEphemeral(i, errorMessage(err))
		return
	}

	d.replyEphemeral(i, fmt.Sprintf("Saved your answer. %d votes in so far.", tally.Total))
	d.updater.Enqueue(sessionID)
}

// castWithRetry retries exactly once with backoff when storage reports
// itself unavailable; every other error kind goes straight back to the
// actor.
func (d *Dispatcher) castWithRetry(ctx context.Context, sessionID uuid.UUID, voterID string, optionIndex int) (domain.Tally, error) {
	tally, err := d.svc.CastVote(ctx, sessionID, voterID, optionIndex)
	if err != nil && errors.Is(err, domain.ErrUnavailable) {
		d.log.Warn("cast unavailable, retrying once", "session", sessionID)
		time.Sleep(d.retryBackoff)
		return d.svc.CastVote(ctx, sessionID, voterID, optionIndex)
	}
	return tally, err
}

func (d *Dispatcher) handleCreate(ctx context.Context, i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) {
	opts := commandOptions(data)
	in := ports.CreateSessionInput{
		ContextID:   i.ChannelID,
		CreatorID:   interactionUserID(i),
		Prompt:      opts.str("prompt"),
		Description: opts.str("description"),
		Options:     splitOptions(opts.str("options")),
	}
	if raw := opts.str("duration"); raw != "" {
		dur, err := time.ParseDuration(raw)
		if err != nil {
			d.replyEphemeral(i, fmt.Sprintf("Invalid duration %q, use forms like 90m or 24h.", raw))
			return
		}
		in.Duration = &dur
	}
	if v, ok := opts.boolVal("can-revote"); ok {
		in.CanRevote = &v
	}

	session, err := d.svc.CreateSession(ctx, in)
	if err != nil {
		d.replyEphemeral(i, errorMessage(err))
		return
	}

	state := domain.NewSessionState(session, nil)
	err = d.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content:    RenderMessage(state, time.Now()),
			Components: BuildComponents(session),
		},
	})
	if err != nil {
		d.log.Error("failed to post poll message", "session", session.ID, "error", err)
		return
	}

	msg, err := d.session.InteractionResponse(i.Interaction)
	if err != nil {
		d.log.Error("failed to resolve poll message", "session", session.ID, "error", err)
		return
	}
	if err := d.svc.AttachMessage(ctx, session.ID, msg.ID); err != nil {
		d.log.Error("failed to bind poll message", "session", session.ID, "error", err)
	}
}

func (d *Dispatcher) handleEdit(ctx context.Context, i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) {
	opts := commandOptions(data)
	sessionID, err := uuid.Parse(opts.str("poll-id"))
	if err != nil {
		d.replyEphemeral(i, "Invalid poll id.")
		return
	}

	in := ports.EditSessionInput{
		SessionID:   sessionID,
		RequesterID: interactionUserID(i),
	}
	if v := opts.str("prompt"); v != "" {
		in.Prompt = &v
	}
	if v := opts.str("description"); v != "" {
		in.Description = &v
	}
	if raw := opts.str("duration"); raw != "" {
		dur, err := time.ParseDuration(raw)
		if err != nil {
			d.replyEphemeral(i, fmt.Sprintf("Invalid duration %q, use forms like 90m or 24h.", raw))
			return
		}
		in.Duration = &dur
	}
	if v, ok := opts.boolVal("can-revote"); ok {
		in.CanRevote = &v
	}

	if _, err := d.svc.EditSession(ctx, in); err != nil {
		d.replyEphemeral(i, errorMessage(err))
		return
	}
	d.replyEphemeral(i, "Poll updated.")
	d.updater.Enqueue(sessionID)
}

func (d *Dispatcher) handleClose(ctx context.Context, i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) {
	opts := commandOptions(data)
	sessionID, err := uuid.Parse(opts.str("poll-id"))
	if err != nil {
		d.replyEphemeral(i, "Invalid poll id.")
		return
	}

	tally, err := d.svc.CloseSession(ctx, sessionID, interactionUserID(i))
	if err != nil {
		d.replyEphemeral(i, errorMessage(err))
		return
	}
	d.replyEphemeral(i, fmt.Sprintf("Poll closed with %d votes.", tally.Total))
	d.updater.Enqueue(sessionID)
}

func (d *Dispatcher) handleDelete(ctx context.Context, i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) {
	opts := commandOptions(data)
	sessionID, err := uuid.Parse(opts.str("poll-id"))
	if err != nil {
		d.replyEphemeral(i, "Invalid poll id.")
		return
	}

	if err := d.svc.DeleteSession(ctx, sessionID, interactionUserID(i)); err != nil {
		d.replyEphemeral(i, errorMessage(err))
		return
	}
	d.replyEphemeral(i, "Poll deleted.")
}

func (d *Dispatcher) handleResults(ctx context.Context, i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) {
	opts := commandOptions(data)
	sessionID, err := uuid.Parse(opts.str("poll-id"))
	if err != nil {
		d.replyEphemeral(i, "Invalid poll id.")
		return
	}

	state, err := d.svc.GetSession(ctx, sessionID)
	if err != nil {
		d.replyEphemeral(i, errorMessage(err))
		return
	}
	d.replyEphemeral(i, RenderMessage(state, time.Now()))
}

func (d *Dispatcher) handleSettings(ctx context.Context, i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) {
	opts := commandOptions(data)
	settings, err := d.svc.DefaultSettings(ctx, i.ChannelID)
	if err != nil {
		d.replyEphemeral(i, errorMessage(err))
		return
	}

	changed := false
	if raw := opts.str("duration"); raw != "" {
		dur, err := time.ParseDuration(raw)
		if err != nil {
			d.replyEphemeral(i, fmt.Sprintf("Invalid duration %q, use forms like 90m or 24h.", raw))
			return
		}
		settings.Duration = dur
		changed = true
	}
	if v, ok := opts.boolVal("can-revote"); ok {
		settings.CanRevote = v
		changed = true
	}
	if v := opts.str("timezone"); v != "" {
		settings.Timezone = v
		changed = true
	}

	if !changed {
		d.replyEphemeral(i, fmt.Sprintf("Current defaults: duration %s, revoting %s, timezone %s.",
			settings.Duration, enabledWord(settings.CanRevote), settings.Timezone))
		return
	}

	if err := d.svc.SetDefaultSettings(ctx, i.ChannelID, interactionUserID(i), settings); err != nil {
		d.replyEphemeral(i, errorMessage(err))
		return
	}
	d.replyEphemeral(i, "Defaults updated for this channel.")
}

func (d *Dispatcher) handleStats(ctx context.Context, i *discordgo.InteractionCreate) {
	stats, err := d.svc.Stats(ctx)
	if err != nil {
		d.replyEphemeral(i, errorMessage(err))
		return
	}
	d.replyEphemeral(i, fmt.Sprintf("%d open polls, %d polls total, %d votes stored.",
		stats.OpenSessions, stats.TotalSessions, stats.TotalVotes))
}

func (d *Dispatcher) replyEphemeral(i *discordgo.InteractionCreate, content string) {
	err := d.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		d.log.Error("failed to respond to interaction", "error", err)
	}
}

func interactionUserID(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}

// parseCastID decodes "cast:<session>:<index>" button ids.
func parseCastID(customID string) (uuid.UUID, int, error) {
	parts := strings.Split(customID, ":")
	if len(parts) != 3 || parts[0] != castPrefix {
		return uuid.Nil, 0, fmt.Errorf("not a cast id: %q", customID)
	}
	sessionID, err := uuid.Parse(parts[1])
	if err != nil {
		return uuid.Nil, 0, fmt.Errorf("bad session id in %q: %w", customID, err)
	}
	idx, err := strconv.Atoi(parts[2])
	if err != nil {
		return uuid.Nil, 0, fmt.Errorf("bad option index in %q: %w", customID, err)
	}
	return sessionID, idx, nil
}

func splitOptions(raw string) []string {
	parts := strings.Split(raw, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// errorMessage maps error kinds to the text shown to the actor.
func errorMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return "No such poll. It may have been deleted."
	case errors.Is(err, domain.ErrSessionClosed):
		return "This poll already ended."
	case errors.Is(err, domain.ErrAlreadyClosed):
		return "This poll is already closed."
	case errors.Is(err, domain.ErrAlreadyVoted):
		return "You already voted and can't change your answer here."
	case errors.Is(err, domain.ErrPermissionDenied):
		return "You are not allowed to do that."
	case errors.Is(err, domain.ErrInvalidArgument):
		return "Invalid request: " + err.Error()
	case errors.Is(err, domain.ErrUnavailable):
		return "The bot is overloaded right now, please try again in a moment."
	default:
		return "Something went wrong, please try again later."
	}
}

func enabledWord(b bool) string {
	if b {
		return "enabled"
	}
	return "disabled"
}
